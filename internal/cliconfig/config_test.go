package cliconfig

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ConfigPath != DefaultConfigFile {
		t.Errorf("ConfigPath = %v, want %v", cfg.ConfigPath, DefaultConfigFile)
	}
	if cfg.Docker != "docker" {
		t.Errorf("Docker = %v, want docker", cfg.Docker)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
	if cfg.KeepOnProbeFailure {
		t.Error("KeepOnProbeFailure = true, want false")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantErr   bool
		wantLevel string
	}{
		{
			name:      "defaults are valid",
			config:    DefaultConfig(),
			wantErr:   false,
			wantLevel: "info",
		},
		{
			name: "missing config path",
			config: Config{
				Docker:   "docker",
				LogLevel: "info",
				Timeout:  time.Second,
			},
			wantErr: true,
		},
		{
			name: "missing docker binary",
			config: Config{
				ConfigPath: "rig.toml",
				LogLevel:   "info",
				Timeout:    time.Second,
			},
			wantErr: true,
		},
		{
			name: "log level is case insensitive",
			config: Config{
				ConfigPath: "rig.toml",
				Docker:     "podman",
				LogLevel:   "DEBUG",
				Timeout:    time.Second,
			},
			wantErr:   false,
			wantLevel: "debug",
		},
		{
			name: "unknown log level",
			config: Config{
				ConfigPath: "rig.toml",
				Docker:     "docker",
				LogLevel:   "loud",
				Timeout:    time.Second,
			},
			wantErr: true,
		},
		{
			name: "zero timeout",
			config: Config{
				ConfigPath: "rig.toml",
				Docker:     "docker",
				LogLevel:   "warn",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && cfg.LogLevel != tt.wantLevel {
				t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, tt.wantLevel)
			}
		})
	}
}
