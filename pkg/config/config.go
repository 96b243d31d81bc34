package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/phinze/plugwatch/pkg/device"
	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration
type Config struct {
	// Network type: "unix" or "tcp"
	Network string `yaml:"network"`

	// Address to listen on
	// For unix: socket path (default: ~/.plugwatch.sock)
	// For tcp: host:port (default: 127.0.0.1:9998)
	Address string `yaml:"address"`

	// LogLevel: debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// ServiceName is the name registered with the service manager
	ServiceName string `yaml:"service_name"`

	// Source selects and tunes the device notification source
	Source SourceConfig `yaml:"source,omitempty"`

	// Devices are the vendor/product pairs to track
	Devices []device.Identity `yaml:"devices,omitempty"`
}

// SourceConfig represents the configuration of the device notification source
type SourceConfig struct {
	// Kind: auto, netlink or poll
	Kind         string   `yaml:"kind,omitempty"`
	Classes      []string `yaml:"classes,omitempty"`
	PollInterval string   `yaml:"pollInterval,omitempty"`
	// Enumerate reports devices already connected at startup
	Enumerate bool   `yaml:"enumerate"`
	DevDir    string `yaml:"devDir,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Network:     "unix",
		Address:     "~/.plugwatch.sock",
		LogLevel:    "info",
		ServiceName: "plugwatch",
		Source: SourceConfig{
			Kind:         device.SourceAuto,
			Classes:      []string{"serial"},
			PollInterval: "1s",
			Enumerate:    true,
		},
	}
}

// DefaultPath returns ~/.config/plugwatch/config.yaml
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "plugwatch", "config.yaml"), nil
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// If no path specified, try the default location
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration. Paths are expanded and device
// identities normalized in place.
func (c *Config) Validate() error {
	switch c.Network {
	case "unix", "tcp":
		// Valid
	default:
		return fmt.Errorf("invalid network type: %s (must be 'unix' or 'tcp')", c.Network)
	}

	if c.Network == "unix" {
		expanded, err := homedir.Expand(c.Address)
		if err != nil {
			return fmt.Errorf("failed to expand address: %w", err)
		}
		c.Address = expanded
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.ServiceName == "" {
		return fmt.Errorf("service_name must not be empty")
	}

	switch c.Source.Kind {
	case "", device.SourceAuto, device.SourceNetlink, device.SourcePoll:
		// Valid
	default:
		return fmt.Errorf("invalid source kind: %s (must be 'auto', 'netlink' or 'poll')", c.Source.Kind)
	}

	if _, err := c.classes(); err != nil {
		return err
	}

	if c.Source.PollInterval != "" {
		d, err := time.ParseDuration(c.Source.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll interval %q: %w", c.Source.PollInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid poll interval %q: must be positive", c.Source.PollInterval)
		}
	}

	if c.Source.DevDir != "" {
		expanded, err := homedir.Expand(c.Source.DevDir)
		if err != nil {
			return fmt.Errorf("failed to expand device directory: %w", err)
		}
		c.Source.DevDir = expanded
	}

	for i, id := range c.Devices {
		norm, err := id.Normalize()
		if err != nil {
			return fmt.Errorf("invalid device %d: %w", i, err)
		}
		c.Devices[i] = norm
	}

	return nil
}

func (c *Config) classes() ([]device.DeviceClass, error) {
	classes := make([]device.DeviceClass, 0, len(c.Source.Classes))
	for _, name := range c.Source.Classes {
		class, err := device.ParseDeviceClass(name)
		if err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, nil
}

// DeviceSource converts the source section into a device.SourceConfig.
// Call Validate first.
func (c *Config) DeviceSource(logger *slog.Logger) (device.SourceConfig, error) {
	classes, err := c.classes()
	if err != nil {
		return device.SourceConfig{}, err
	}

	var interval time.Duration
	if c.Source.PollInterval != "" {
		interval, err = time.ParseDuration(c.Source.PollInterval)
		if err != nil {
			return device.SourceConfig{}, fmt.Errorf("invalid poll interval %q: %w", c.Source.PollInterval, err)
		}
	}

	return device.SourceConfig{
		Kind:         c.Source.Kind,
		Classes:      classes,
		PollInterval: interval,
		Enumerate:    c.Source.Enumerate,
		DevDir:       c.Source.DevDir,
		Logger:       logger,
	}, nil
}
