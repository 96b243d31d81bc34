package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phinze/plugwatch/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Display plugwatch configuration",
		Long:  `Displays the effective configuration including socket path, source and tracked devices.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func showConfig(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "plugwatch Configuration:")
	fmt.Fprintf(w, "  Network: %s\n", cfg.Network)
	fmt.Fprintf(w, "  Address: %s\n", cfg.Address)
	fmt.Fprintf(w, "  Log Level: %s\n", cfg.LogLevel)
	fmt.Fprintf(w, "  Service Name: %s\n", cfg.ServiceName)
	fmt.Fprintf(w, "  Source: %s (classes: %v, poll interval: %s, enumerate: %t)\n",
		cfg.Source.Kind, cfg.Source.Classes, cfg.Source.PollInterval, cfg.Source.Enumerate)

	if cfg.Network == "unix" {
		if _, err := os.Stat(cfg.Address); err == nil {
			fmt.Fprintf(w, "  Socket Status: Active\n")
		} else if os.IsNotExist(err) {
			fmt.Fprintf(w, "  Socket Status: Not found (daemon may not be running)\n")
		}
	}

	if len(cfg.Devices) == 0 {
		fmt.Fprintf(w, "\nTracked Devices: none (add some with 'plugwatch config init --id VVVV:PPPP')\n")
		return nil
	}
	fmt.Fprintf(w, "\nTracked Devices:\n")
	for _, id := range cfg.Devices {
		fmt.Fprintf(w, "  %s\n", id)
	}
	return nil
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvedConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var (
		ids   []string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Writes the default configuration to the config path. Devices given with
--id are added to the tracked set. An existing file is left alone unless --force
is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvedConfigPath()
			if err != nil {
				return err
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			cfg.Devices, err = parseIdentities(ids)
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&ids, "id", nil, "Device to track as VVVV:PPPP (repeatable)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")

	return cmd
}
