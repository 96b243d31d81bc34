package cli

import (
	"github.com/phinze/plugwatch/version"
	"github.com/spf13/cobra"
)

var (
	socketPath string
	configPath string
	verbose    bool
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plugwatch",
		Short: "plugwatch - track USB serial devices as they come and go",
		Long: `plugwatch follows serial devices by USB vendor and product id:
- Track plug and unplug events for chosen devices
- Query the plugwatch daemon for connected devices
- Wait for a device to be unplugged`,
		Version:      version.GetFullVersion(),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "", "Path to plugwatch socket")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (default: ~/.config/plugwatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(newTrackCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newWaitCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newDaemonCmd())

	return rootCmd
}
