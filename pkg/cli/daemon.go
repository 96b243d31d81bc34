package cli

import (
	"fmt"

	"github.com/phinze/plugwatch/internal/logger"
	"github.com/phinze/plugwatch/pkg/daemon"
	"github.com/phinze/plugwatch/version"
	"github.com/spf13/cobra"
)

var (
	systemdMode bool
	logLevel    string
	pidFile     string
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the plugwatch daemon (used by systemd)",
		Long: `Run the plugwatch daemon process. This command is typically called by systemd
or registered as a Windows service.

For manual control, use systemctl:
  systemctl --user start plugwatch    # Start daemon
  systemctl --user stop plugwatch     # Stop daemon
  systemctl --user status plugwatch   # Check status
  journalctl --user -u plugwatch      # View logs`,
	}

	cmd.AddCommand(newDaemonRunCmd())

	return cmd
}

func newDaemonRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon directly (used by systemd)",
		Long:  `Run the plugwatch daemon process directly. This is typically called by systemd.`,
		Args:  cobra.NoArgs,
		RunE:  runDaemon,
	}

	cmd.Flags().BoolVar(&systemdMode, "systemd", false, "Run in systemd mode with sd_notify support")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file")

	return cmd
}

// NewDaemonRootCmd returns the root command of the standalone plugwatchd
// binary: 'daemon run' with its own --config flag.
func NewDaemonRootCmd() *cobra.Command {
	cmd := newDaemonRunCmd()
	cmd.Use = "plugwatchd"
	cmd.Short = "plugwatch daemon - tracks USB serial devices and answers queries"
	cmd.Long = `plugwatchd watches for the configured USB serial devices, keeps track of
which are connected, and answers status, list and wait requests on a local
socket. It runs under systemd, as a Windows service, or in the foreground.`
	cmd.Version = version.GetFullVersion()
	cmd.SilenceUsage = true
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (default: ~/.config/plugwatch/config.yaml)")
	return cmd
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log := logger.Setup(cfg.LogLevel)

	log.Info("Starting plugwatch daemon",
		"version", version.GetVersion(),
		"commit", version.Commit,
		"date", version.Date,
	)

	d, err := daemon.New(cfg, log, daemon.Options{
		SystemdMode: systemdMode,
		PIDFile:     pidFile,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Run(cmd.Context()); err != nil {
		return fmt.Errorf("daemon failed: %w", err)
	}

	return nil
}
