package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phinze/plugwatch/pkg/device"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Network != "unix" {
		t.Errorf("DefaultConfig() Network = %v, want %v", cfg.Network, "unix")
	}
	if cfg.Address != "~/.plugwatch.sock" {
		t.Errorf("DefaultConfig() Address = %v, want %v", cfg.Address, "~/.plugwatch.sock")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("DefaultConfig() LogLevel = %v, want %v", cfg.LogLevel, "info")
	}
	if cfg.Source.Kind != device.SourceAuto {
		t.Errorf("DefaultConfig() Source.Kind = %v, want %v", cfg.Source.Kind, device.SourceAuto)
	}
	if !cfg.Source.Enumerate {
		t.Errorf("DefaultConfig() Source.Enumerate = false, want true")
	}
	if len(cfg.Devices) != 0 {
		t.Errorf("DefaultConfig() Devices = %v, want none", cfg.Devices)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    *Config
		wantErr bool
	}{
		{
			name: "valid config",
			content: `network: tcp
address: 127.0.0.1:8888
log_level: debug
source:
  kind: poll
  classes: [serial]
  pollInterval: 250ms
  enumerate: false
devices:
  - vendor: "2FE3"
    product: "0100"
  - vendor: "1a86"
    product: "7523"`,
			want: &Config{
				Network:     "tcp",
				Address:     "127.0.0.1:8888",
				LogLevel:    "debug",
				ServiceName: "plugwatch",
				Source: SourceConfig{
					Kind:         "poll",
					Classes:      []string{"serial"},
					PollInterval: "250ms",
					Enumerate:    false,
				},
				Devices: []device.Identity{device.ID("2FE3", "0100"), device.ID("1a86", "7523")},
			},
		},
		{
			name: "partial config",
			content: `network: tcp
log_level: warn`,
			want: &Config{
				Network:     "tcp",
				Address:     "~/.plugwatch.sock",
				LogLevel:    "warn",
				ServiceName: "plugwatch",
				Source:      DefaultConfig().Source,
			},
		},
		{
			name:    "empty config",
			content: "",
			want:    DefaultConfig(),
		},
		{
			name:    "invalid yaml",
			content: "network: [invalid yaml",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			tmpFile := filepath.Join(tmpDir, "config.yaml")

			if tt.content != "" {
				if err := os.WriteFile(tmpFile, []byte(tt.content), 0644); err != nil {
					t.Fatalf("Failed to write test config: %v", err)
				}
			}

			got, err := Load(tmpFile)
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if got.Network != tt.want.Network {
				t.Errorf("Load() Network = %v, want %v", got.Network, tt.want.Network)
			}
			if got.Address != tt.want.Address {
				t.Errorf("Load() Address = %v, want %v", got.Address, tt.want.Address)
			}
			if got.LogLevel != tt.want.LogLevel {
				t.Errorf("Load() LogLevel = %v, want %v", got.LogLevel, tt.want.LogLevel)
			}
			if got.Source.Kind != tt.want.Source.Kind ||
				got.Source.PollInterval != tt.want.Source.PollInterval ||
				got.Source.Enumerate != tt.want.Source.Enumerate ||
				strings.Join(got.Source.Classes, ",") != strings.Join(tt.want.Source.Classes, ",") {
				t.Errorf("Load() Source = %+v, want %+v", got.Source, tt.want.Source)
			}
			if len(got.Devices) != len(tt.want.Devices) {
				t.Fatalf("Load() Devices = %v, want %v", got.Devices, tt.want.Devices)
			}
			for i := range got.Devices {
				if got.Devices[i] != tt.want.Devices[i] {
					t.Errorf("Load() Devices[%d] = %v, want %v", i, got.Devices[i], tt.want.Devices[i])
				}
			}
		})
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/non/existent/path/config.yaml")
	if err != nil {
		t.Errorf("Load() with non-existent file should return default config, got error: %v", err)
	}
	if cfg == nil {
		t.Errorf("Load() with non-existent file should return default config, got nil")
	}

	t.Setenv("HOME", t.TempDir())
	cfg, err = Load("")
	if err != nil {
		t.Errorf("Load() with empty path should return default config, got error: %v", err)
	}
	if cfg == nil {
		t.Errorf("Load() with empty path should return default config, got nil")
	}
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Devices = []device.Identity{device.ID("2FE3", "0100")}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid unix config",
			mutate: func(*Config) {},
		},
		{
			name: "valid tcp config",
			mutate: func(c *Config) {
				c.Network = "tcp"
				c.Address = "127.0.0.1:9998"
			},
		},
		{
			name:    "invalid network type",
			mutate:  func(c *Config) { c.Network = "udp" },
			wantErr: true,
			errMsg:  "invalid network type: udp",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
			errMsg:  "invalid log level: verbose",
		},
		{
			name:    "empty service name",
			mutate:  func(c *Config) { c.ServiceName = "" },
			wantErr: true,
			errMsg:  "service_name must not be empty",
		},
		{
			name:    "invalid source kind",
			mutate:  func(c *Config) { c.Source.Kind = "ebpf" },
			wantErr: true,
			errMsg:  "invalid source kind: ebpf",
		},
		{
			name:    "invalid class",
			mutate:  func(c *Config) { c.Source.Classes = []string{"serial", "bluetooth"} },
			wantErr: true,
			errMsg:  "unknown device class",
		},
		{
			name:    "invalid poll interval",
			mutate:  func(c *Config) { c.Source.PollInterval = "often" },
			wantErr: true,
			errMsg:  "invalid poll interval",
		},
		{
			name:    "negative poll interval",
			mutate:  func(c *Config) { c.Source.PollInterval = "-1s" },
			wantErr: true,
			errMsg:  "invalid poll interval",
		},
		{
			name:    "malformed device",
			mutate:  func(c *Config) { c.Devices = append(c.Devices, device.ID("2FE", "0100")) },
			wantErr: true,
			errMsg:  "invalid device 1",
		},
		{
			name:   "no devices",
			mutate: func(c *Config) { c.Devices = nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestValidateLogLevels(t *testing.T) {
	validLevels := []string{"debug", "info", "warn", "error"}

	for _, level := range validLevels {
		cfg := validConfig()
		cfg.LogLevel = level
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() with log level %s should not error, got: %v", level, err)
		}
	}
}

func TestValidateNormalizes(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultConfig()
	cfg.Devices = []device.Identity{device.ID("2fe3", "01ab")}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Devices[0] != device.ID("2FE3", "01AB") {
		t.Errorf("Devices[0] = %v, want upper-cased", cfg.Devices[0])
	}
	if strings.HasPrefix(cfg.Address, "~") {
		t.Errorf("Address = %v, want home expanded", cfg.Address)
	}
}

func TestValidateMalformedDeviceIsInvalidIdentity(t *testing.T) {
	cfg := validConfig()
	cfg.Devices = []device.Identity{device.ID("XYZ1", "0100")}

	if err := cfg.Validate(); !errors.Is(err, device.ErrInvalidIdentity) {
		t.Errorf("Validate() error = %v, want InvalidIdentity", err)
	}
}

func TestDeviceSource(t *testing.T) {
	cfg := validConfig()
	cfg.Source = SourceConfig{
		Kind:         "poll",
		Classes:      []string{"tty"},
		PollInterval: "500ms",
		Enumerate:    true,
		DevDir:       "/dev",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	got, err := cfg.DeviceSource(nil)
	if err != nil {
		t.Fatalf("DeviceSource() error = %v", err)
	}
	if got.Kind != device.SourcePoll {
		t.Errorf("Kind = %v, want poll", got.Kind)
	}
	if len(got.Classes) != 1 || got.Classes[0] != device.SerialPortClass {
		t.Errorf("Classes = %v, want [serial]", got.Classes)
	}
	if got.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", got.PollInterval)
	}
	if !got.Enumerate || got.DevDir != "/dev" {
		t.Errorf("DeviceSource() = %+v", got)
	}
}
