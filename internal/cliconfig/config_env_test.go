package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"FLOWRIG_CONFIG":                "/env/rig.toml",
				"FLOWRIG_DOCKER":                "podman",
				"FLOWRIG_LOG_LEVEL":             "debug",
				"FLOWRIG_TIMEOUT":               "30s",
				"FLOWRIG_KEEP_ON_PROBE_FAILURE": "true",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				ConfigPath:         "/env/rig.toml",
				Docker:             "podman",
				LogLevel:           "debug",
				Timeout:            30 * time.Second,
				KeepOnProbeFailure: true,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"FLOWRIG_DOCKER":    "podman",
				"FLOWRIG_LOG_LEVEL": "error",
			},
			changed: map[string]bool{"docker": true},
			initial: Config{Docker: "/usr/bin/docker"},
			expected: Config{
				Docker:   "/usr/bin/docker",
				LogLevel: "error",
			},
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"FLOWRIG_TIMEOUT": "soon",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name: "handles bool '1' as true",
			envVars: map[string]string{
				"FLOWRIG_VERBOSE": "1",
			},
			changed:  map[string]bool{},
			expected: Config{Verbose: true},
		},
		{
			name: "handles bool 'false' as false",
			envVars: map[string]string{
				"FLOWRIG_KEEP_ON_PROBE_FAILURE": "false",
			},
			changed:  map[string]bool{},
			initial:  Config{KeepOnProbeFailure: true},
			expected: Config{KeepOnProbeFailure: false},
		},
		{
			name:     "unset variables leave values alone",
			envVars:  map[string]string{},
			changed:  map[string]bool{},
			initial:  DefaultConfig(),
			expected: DefaultConfig(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{
				"FLOWRIG_CONFIG", "FLOWRIG_DOCKER", "FLOWRIG_LOG_LEVEL",
				"FLOWRIG_TIMEOUT", "FLOWRIG_KEEP_ON_PROBE_FAILURE", "FLOWRIG_VERBOSE",
			} {
				t.Setenv(k, tt.envVars[k])
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}
