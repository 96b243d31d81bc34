package cli

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/phinze/plugwatch/pkg/protocol"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Get daemon status",
		Long:  `Retrieves the current status of the plugwatch daemon and its systemd unit if available.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			// The unit may not exist, so this only informs
			if cfg, err := loadConfig(); err == nil {
				if err := showUnitStatus(out, cfg.ServiceName); err != nil && verbose {
					fmt.Fprintf(cmd.ErrOrStderr(), "Service: %v\n", err)
				}
			}

			var status protocol.StatusResponse
			if err := sendRequest(cmd.Context(), cmd.ErrOrStderr(), protocol.CommandStatus, nil, &status); err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			printStatus(out, status)
			return nil
		},
	}

	return cmd
}

func printStatus(w io.Writer, status protocol.StatusResponse) {
	fmt.Fprintf(w, "Daemon Status:\n")
	fmt.Fprintf(w, "  Version: %s\n", status.Version)
	fmt.Fprintf(w, "  Uptime: %s\n", status.Uptime)
	fmt.Fprintf(w, "  Source: %s\n", status.Source)
	fmt.Fprintf(w, "  Tracking: %s\n", strings.Join(status.Identities, ", "))
	fmt.Fprintf(w, "  Connected Devices: %d\n", status.ActiveDevices)
	fmt.Fprintf(w, "  Devices Seen: %d\n", status.TotalPlugged)
}

// showUnitStatus displays the state of the daemon's systemd user unit
func showUnitStatus(w io.Writer, unit string) error {
	if _, err := exec.LookPath("systemctl"); err != nil {
		return fmt.Errorf("systemctl not available")
	}

	cmd := exec.Command("systemctl", "--user", "is-active", unit)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	_ = cmd.Run() // non-zero for inactive units

	fmt.Fprintf(w, "Service Status (%s):\n", unit)
	switch state := strings.TrimSpace(out.String()); state {
	case "active":
		fmt.Fprintf(w, "  State: \033[32m●\033[0m Running\n")
	case "inactive", "dead":
		fmt.Fprintf(w, "  State: \033[90m○\033[0m Not running\n")
	case "failed":
		fmt.Fprintf(w, "  State: \033[31m×\033[0m Failed\n")
	default:
		fmt.Fprintf(w, "  State: \033[33m?\033[0m %s\n", state)
	}

	fmt.Fprintln(w)
	return nil
}
