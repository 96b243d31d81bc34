package cli

import (
	"fmt"

	"github.com/phinze/plugwatch/pkg/protocol"
	"github.com/spf13/cobra"
)

func newWaitCmd() *cobra.Command {
	var timeout string

	cmd := &cobra.Command{
		Use:   "wait <device-id>",
		Short: "Wait for a connected device to be unplugged",
		Long: `Blocks until the daemon sees the device with the given id unplugged.
Ids are shown by 'plugwatch list'. With --timeout, exits with an error if the
device is still connected when the timeout passes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := protocol.WaitRequest{DeviceID: args[0], Timeout: timeout}
			if _, err := req.ParseTimeout(); err != nil {
				return err
			}

			var resp protocol.WaitResponse
			if err := sendRequest(cmd.Context(), cmd.ErrOrStderr(), protocol.CommandWait, req, &resp); err != nil {
				return fmt.Errorf("failed to wait for device: %w", err)
			}

			if !resp.Unplugged {
				return fmt.Errorf("device %s still connected after %s", resp.DeviceID, timeout)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Device %s unplugged\n", resp.DeviceID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&timeout, "timeout", "t", "", "Give up after this long (e.g. 30s); waits indefinitely when empty")

	return cmd
}
