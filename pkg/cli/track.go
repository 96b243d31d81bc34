package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/phinze/plugwatch/internal/logger"
	"github.com/phinze/plugwatch/pkg/device"
	"github.com/spf13/cobra"
)

// newSource builds the event source for track; tests swap it out.
var newSource = device.NewSource

func newTrackCmd() *cobra.Command {
	var (
		ids        []string
		once       bool
		timeout    time.Duration
		sourceKind string
		enumerate  bool
	)

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Track devices in the foreground",
		Long: `Runs the tracking pipeline in this process and prints a line for every
matching device that is plugged in or unplugged. Devices come from --id, or
from the config file when no --id is given.

With --once, waits for the first matching device, waits for it to be
unplugged, then exits.`,
		Example: `  plugwatch track --id 2FE3:0100
  plugwatch track --id 2FE3:0100 --id 2FE3:001A --once --timeout 2m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			identities := cfg.Devices
			if len(ids) > 0 {
				if identities, err = parseIdentities(ids); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("source") {
				cfg.Source.Kind = sourceKind
			}
			if cmd.Flags().Changed("enumerate") {
				cfg.Source.Enumerate = enumerate
			}

			log := logger.Get()
			if verbose {
				log = logger.Setup("debug")
			}

			srcCfg, err := cfg.DeviceSource(log)
			if err != nil {
				return err
			}
			src, err := newSource(srcCfg)
			if err != nil {
				return err
			}

			p, err := device.NewPipeline(device.PipelineConfig{
				Source:     src,
				Identities: identities,
				Logger:     log,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			err = track(ctx, cmd.OutOrStdout(), p, once)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("timed out after %s", timeout)
			}
			return err
		},
	}

	cmd.Flags().StringArrayVar(&ids, "id", nil, "Device to track as VVVV:PPPP (repeatable)")
	cmd.Flags().BoolVar(&once, "once", false, "Exit after the first matching device is unplugged")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long")
	cmd.Flags().StringVar(&sourceKind, "source", device.SourceAuto, "Event source: auto, netlink or poll")
	cmd.Flags().BoolVar(&enumerate, "enumerate", true, "Report devices already connected at startup")

	return cmd
}

// track prints devices from the pipeline until it ends. Each device's unplug
// is awaited on its own goroutine: the signal only resolves while the loop
// keeps pulling from the stream.
func track(ctx context.Context, w io.Writer, p *device.Pipeline, once bool) error {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	devices, err := p.Devices(ctx)
	if err != nil {
		return err
	}

	out := &syncWriter{w: w}
	watching := false

	for dev, err := range devices {
		if err != nil {
			return fmt.Errorf("tracking failed: %w", err)
		}
		if once && watching {
			continue
		}
		watching = true

		out.printf("plugged    %s  %s  %s\n", dev.Identity(), dev.Port, dev.ID)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dev.Unplugged.Wait(ctx); err != nil && !dev.Unplugged.Resolved() {
				return
			}
			out.printf("unplugged  %s  %s  %s\n", dev.Identity(), dev.Port, dev.ID)
			if once {
				_ = p.Gate().Fire()
			}
		}()
	}
	return nil
}

func parseIdentities(ids []string) ([]device.Identity, error) {
	identities := make([]device.Identity, 0, len(ids))
	for _, s := range ids {
		id, err := device.ParseIdentity(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --id %q: %w", s, err)
		}
		identities = append(identities, id)
	}
	return identities, nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}
