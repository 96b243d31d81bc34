package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/phinze/plugwatch/pkg/config"
	"github.com/phinze/plugwatch/pkg/device"
	"github.com/phinze/plugwatch/pkg/protocol"
	"github.com/phinze/plugwatch/pkg/service"
	"github.com/phinze/plugwatch/version"
)

// Options holds process-level settings that do not come from the config file
type Options struct {
	SystemdMode bool   // Report status over NOTIFY_SOCKET and accept socket activation
	PIDFile     string // Path to PID file (optional)

	// Source replaces the source built from the config.
	Source device.Source
}

// Daemon represents the plugwatch daemon
type Daemon struct {
	config      *config.Config
	logger      *slog.Logger
	pipeline    *device.Pipeline
	registry    *Registry
	listener    net.Listener
	wg          sync.WaitGroup
	systemdMode bool
	activated   bool
	pidFile     string
	startTime   time.Time
}

// New creates a new daemon instance. cfg must already be validated.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	src := opts.Source
	if src == nil {
		srcCfg, err := cfg.DeviceSource(logger)
		if err != nil {
			return nil, fmt.Errorf("invalid source config: %w", err)
		}
		src, err = device.NewSource(srcCfg)
		if err != nil {
			return nil, err
		}
	}

	pipeline, err := device.NewPipeline(device.PipelineConfig{
		Source:     src,
		Identities: cfg.Devices,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracking pipeline: %w", err)
	}

	return &Daemon{
		config:      cfg,
		logger:      logger,
		pipeline:    pipeline,
		registry:    NewRegistry(),
		systemdMode: opts.SystemdMode,
		pidFile:     opts.PIDFile,
	}, nil
}

// Run hosts the daemon under the platform's service manager until a stop or
// shutdown control arrives.
func (d *Daemon) Run(ctx context.Context) error {
	return service.Run(ctx, service.Config{
		Name:    d.config.ServiceName,
		Systemd: d.systemdMode,
		Logger:  d.logger,
	}, d.Serve)
}

// Serve is the service body: it tracks devices, answers the status socket
// and fires the pipeline's gate on stop or shutdown.
func (d *Daemon) Serve(ctx context.Context, h *service.Handle, controls <-chan service.Control) (err error) {
	d.startTime = time.Now()

	h.SetServiceType(service.OwnProcess)
	d.report(h.SetCurrentState(service.StartPending).
		SetWaitHint(10 * time.Second).
		SetMessage("Starting plugwatch daemon"))

	defer func() {
		var code uint32
		if err != nil {
			code = 1
		}
		d.report(h.SetCurrentState(service.Stopped).
			SetControlAccept(0).
			SetWaitHint(0).
			SetExitCode(code).
			SetMessage("Stopped"))
	}()

	if err := d.writePIDFile(); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, d.removePIDFile())
	}()

	listener, err := d.listen()
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	d.listener = listener
	defer func() {
		err = multierr.Append(err, d.removeSocket())
	}()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	devices, err := d.pipeline.Devices(gctx)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to start tracking: %w", err), listener.Close())
	}

	d.logger.Info("Daemon started",
		"network", d.config.Network,
		"address", d.config.Address,
		"source", sourceName(d.pipeline.Source()),
		"identities", d.pipeline.Identities(),
	)
	d.report(h.SetCurrentState(service.Running).
		SetControlAccept(service.AcceptStop | service.AcceptShutdown | service.AcceptParamChange).
		SetWaitHint(0).
		SetMessage("Tracking devices"))

	g.Go(func() error {
		// tracking ending for any reason stops the rest
		defer stop()
		return d.track(devices)
	})
	g.Go(func() error {
		return d.acceptConnections(gctx)
	})
	g.Go(func() error {
		d.handleControls(gctx, h, controls)
		return nil
	})

	err = g.Wait()
	d.wg.Wait()
	d.registry.Clear()

	d.logger.Info("Daemon stopped")
	return err
}

// track feeds the registry from the device stream until it ends.
func (d *Daemon) track(devices iter.Seq2[*device.TrackedDevice, error]) error {
	for dev, err := range devices {
		if err != nil {
			return fmt.Errorf("device tracking failed: %w", err)
		}
		d.registry.Add(dev)
		d.logger.Debug("Registered device", "id", dev.ID, "port", dev.Port)
	}
	d.logger.Info("Device tracking stopped")
	return nil
}

// handleControls reacts to service manager requests until ctx is done.
func (d *Daemon) handleControls(ctx context.Context, h *service.Handle, controls <-chan service.Control) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-controls:
			if !ok {
				return
			}
			d.logger.Info("Received service control", "control", c)

			switch {
			case c.Terminates():
				d.report(h.SetCurrentState(service.StopPending).
					SetWaitHint(5 * time.Second).
					SetMessage("Shutting down"))
				if err := d.pipeline.Gate().Fire(); err != nil {
					d.logger.Debug("Gate already fired", "error", err)
				}
			case c == service.Interrogate:
				d.report(h)
			case c == service.ParamChange:
				d.logger.Warn("Configuration reload is not supported, restart the daemon to apply changes")
			default:
				d.logger.Debug("Ignoring unsupported control", "control", c)
			}
		}
	}
}

func (d *Daemon) report(h *service.Handle) {
	if err := h.SetStatus(); err != nil {
		d.logger.Warn("Failed to report service status", "error", err)
	}
}

// acceptConnections accepts incoming connections until ctx is done
func (d *Daemon) acceptConnections(ctx context.Context) error {
	stopClose := context.AfterFunc(ctx, func() {
		_ = d.listener.Close()
	})
	defer stopClose()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				// Shutting down
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed unexpectedly: %w", err)
			}
			d.logger.Error("Failed to accept connection", "error", err)
			continue
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection handles a single connection
func (d *Daemon) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	d.logger.Debug("New connection", "remote", remoteAddr)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			d.logger.Error("Failed to read from connection", "error", err, "remote", remoteAddr)
		}
		return
	}

	req, err := protocol.ParseRequest([]byte(line))
	if err != nil {
		d.logger.Error("Failed to parse request", "error", err, "remote", remoteAddr)
		d.sendResponse(conn, protocol.NewErrorResponse("", fmt.Errorf("invalid request format")))
		return
	}

	d.logger.Debug("Received command", "type", req.Type, "id", req.ID, "remote", remoteAddr)

	// a broken connection abandons the request. A half-close (EOF) does not:
	// the client may still be reading.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if _, err := reader.ReadByte(); err != nil && !errors.Is(err, io.EOF) {
			cancel()
		}
	}()

	d.sendResponse(conn, d.handleCommand(ctx, req))
}

// handleCommand processes a command and returns a response
func (d *Daemon) handleCommand(ctx context.Context, req *protocol.Request) *protocol.Response {
	switch req.Type {
	case protocol.CommandStatus:
		return d.handleStatusCommand(req)
	case protocol.CommandList:
		return d.handleListCommand(req)
	case protocol.CommandWait:
		return d.handleWaitCommand(ctx, req)
	default:
		return protocol.NewErrorResponse(req.ID, fmt.Errorf("unknown command type: %s", req.Type))
	}
}

// handleStatusCommand handles the status command
func (d *Daemon) handleStatusCommand(req *protocol.Request) *protocol.Response {
	active, total := d.registry.Counts()

	identities := d.pipeline.Identities()
	ids := make([]string, len(identities))
	for i, id := range identities {
		ids[i] = id.String()
	}

	status := protocol.StatusResponse{
		Version:       version.GetVersion(),
		Uptime:        time.Since(d.startTime).Round(time.Second).String(),
		Source:        sourceName(d.pipeline.Source()),
		Identities:    ids,
		ActiveDevices: active,
		TotalPlugged:  total,
	}

	resp, err := protocol.NewSuccessResponse(req.ID, status)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, err)
	}
	return resp
}

// handleListCommand handles the list devices command
func (d *Daemon) handleListCommand(req *protocol.Request) *protocol.Response {
	devices := d.registry.List()

	infos := make([]protocol.DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		infos = append(infos, deviceInfo(dev))
	}

	resp, err := protocol.NewSuccessResponse(req.ID, protocol.ListResponse{Devices: infos})
	if err != nil {
		return protocol.NewErrorResponse(req.ID, err)
	}
	return resp
}

// handleWaitCommand holds the request until the device is unplugged, the
// timeout passes, or the client or daemon goes away.
func (d *Daemon) handleWaitCommand(ctx context.Context, req *protocol.Request) *protocol.Response {
	var waitReq protocol.WaitRequest
	if err := json.Unmarshal(req.Payload, &waitReq); err != nil {
		return protocol.NewErrorResponse(req.ID, fmt.Errorf("invalid payload: %w", err))
	}

	timeout, err := waitReq.ParseTimeout()
	if err != nil {
		return protocol.NewErrorResponse(req.ID, err)
	}

	dev, ok := d.registry.Get(waitReq.DeviceID)
	if !ok {
		return protocol.NewErrorResponse(req.ID, fmt.Errorf("unknown device: %s", waitReq.DeviceID))
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result := protocol.WaitResponse{DeviceID: dev.ID}
	switch err := dev.Unplugged.Wait(waitCtx); {
	case err == nil:
		result.Unplugged = true
	case ctx.Err() != nil:
		return protocol.NewErrorResponse(req.ID, fmt.Errorf("wait abandoned: %w", ctx.Err()))
	case errors.Is(err, context.DeadlineExceeded):
		// timed out, still plugged
	default:
		return protocol.NewErrorResponse(req.ID, err)
	}

	resp, err := protocol.NewSuccessResponse(req.ID, result)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, err)
	}
	return resp
}

// sendResponse sends a response to the client
func (d *Daemon) sendResponse(conn net.Conn, resp *protocol.Response) {
	data, err := protocol.MarshalResponse(resp)
	if err != nil {
		d.logger.Error("Failed to marshal response", "error", err)
		return
	}

	// Add newline for easier parsing
	data = append(data, '\n')

	if _, err := conn.Write(data); err != nil {
		d.logger.Error("Failed to send response", "error", err)
	}
}

// removeSocket deletes the unix socket file we created
func (d *Daemon) removeSocket() error {
	if d.config.Network != "unix" || d.activated {
		return nil
	}
	if err := os.RemoveAll(d.config.Address); err != nil {
		return fmt.Errorf("failed to remove socket file: %w", err)
	}
	return nil
}

func deviceInfo(dev *device.TrackedDevice) protocol.DeviceInfo {
	return protocol.DeviceInfo{
		ID:        dev.ID,
		Port:      dev.Port,
		VendorID:  dev.VendorID,
		ProductID: dev.ProductID,
		PluggedAt: dev.PluggedAt.Format(time.RFC3339),
	}
}

func sourceName(src device.Source) string {
	if s, ok := src.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", src)
}
