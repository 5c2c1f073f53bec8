package cliconfig

import "os"

// ApplyEnvConfig applies FLOWRIG_* environment variables to cfg, skipping
// settings whose flag was set explicitly.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("config", os.Getenv("FLOWRIG_CONFIG"), &cfg.ConfigPath)
	s.setString("docker", os.Getenv("FLOWRIG_DOCKER"), &cfg.Docker)
	s.setString("log-level", os.Getenv("FLOWRIG_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("timeout", os.Getenv("FLOWRIG_TIMEOUT"), &cfg.Timeout); err != nil {
		return err
	}

	s.setBoolFromString("keep-on-probe-failure", os.Getenv("FLOWRIG_KEEP_ON_PROBE_FAILURE"), &cfg.KeepOnProbeFailure)
	s.setBoolFromString("verbose", os.Getenv("FLOWRIG_VERBOSE"), &cfg.Verbose)

	return nil
}
