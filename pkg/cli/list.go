package cli

import (
	"fmt"

	"github.com/phinze/plugwatch/pkg/protocol"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected devices",
		Long:  `Lists the tracked devices the daemon currently sees as plugged in.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var list protocol.ListResponse
			if err := sendRequest(cmd.Context(), cmd.ErrOrStderr(), protocol.CommandList, nil, &list); err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(list.Devices) == 0 {
				fmt.Fprintln(out, "No connected devices")
				return nil
			}

			fmt.Fprintln(out, "Connected Devices:")
			for _, dev := range list.Devices {
				fmt.Fprintf(out, "  %s  %s:%s on %s (since: %s)\n",
					dev.ID, dev.VendorID, dev.ProductID, dev.Port, dev.PluggedAt)
			}

			return nil
		},
	}
}
