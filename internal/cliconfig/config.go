package cliconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/flowrig/pkg/flowtest"
	"github.com/bft-labs/flowrig/pkg/log"
)

// DefaultConfigFile is looked up in the working directory when --config is
// not given.
const DefaultConfigFile = "flowrig.toml"

// Config holds the global CLI settings. The environment itself (containers,
// flow, resources, cases) lives in the config file, see FileConfig.
type Config struct {
	ConfigPath         string
	Docker             string
	LogLevel           string
	Timeout            time.Duration
	KeepOnProbeFailure bool
	Verbose            bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ConfigPath: DefaultConfigFile,
		Docker:     "docker",
		LogLevel:   log.LevelInfo,
		Timeout:    flowtest.DefaultTimeout,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ConfigPath == "" {
		return fmt.Errorf("config is required")
	}
	if c.Docker == "" {
		return fmt.Errorf("docker binary is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case log.LevelDebug, log.LevelInfo, log.LevelWarn, "warning", log.LevelError:
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
