package cliconfig

import (
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML environment file. Durations are strings parsed by
// time.ParseDuration.
type FileConfig struct {
	Docker             string `toml:"docker"`
	LogLevel           string `toml:"log_level"`
	Timeout            string `toml:"timeout"`
	KeepOnProbeFailure *bool  `toml:"keep_on_probe_failure"`
	Verbose            *bool  `toml:"verbose"`

	Containers []ContainerConfig `toml:"container"`
	Flow       *FlowConfig       `toml:"flow"`
	Resources  []ResourceConfig  `toml:"resource"`
	Cases      []CaseConfig      `toml:"case"`
}

// PortConfig is one published port of a container.
type PortConfig struct {
	Name      string `toml:"name"`
	Host      int    `toml:"host"`
	Container int    `toml:"container"`
}

// ProbeConfig describes a readiness probe. Kind is http, amqp or redis.
type ProbeConfig struct {
	Kind             string `toml:"kind"`
	Path             string `toml:"path"`
	URL              string `toml:"url"`
	Addr             string `toml:"addr"`
	InitialDelay     string `toml:"initial_delay"`
	Period           string `toml:"period"`
	Timeout          string `toml:"timeout"`
	FailureThreshold int    `toml:"failure_threshold"`
	SuccessThreshold int    `toml:"success_threshold"`
}

// ContainerConfig is a [[container]] table.
type ContainerConfig struct {
	Name  string            `toml:"name"`
	Image string            `toml:"image"`
	Env   map[string]string `toml:"env"`
	Ports []PortConfig      `toml:"port"`
	Probe *ProbeConfig      `toml:"probe"`
}

// FlowConfig is the [flow] table.
type FlowConfig struct {
	Command  string            `toml:"command"`
	Path     string            `toml:"path"`
	Port     int               `toml:"port"`
	UserDir  string            `toml:"user_dir"`
	Settings string            `toml:"settings"`
	Env      map[string]string `toml:"env"`
	Probe    *ProbeConfig      `toml:"probe"`
}

// ResourceConfig is a [[resource]] table. Kind is amqp, redis or static.
type ResourceConfig struct {
	Name     string `toml:"name"`
	Kind     string `toml:"kind"`
	URL      string `toml:"url"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Value    any    `toml:"value"`
}

// PropertiesConfig mirrors flowtest.Properties.
type PropertiesConfig struct {
	ContentType     string         `toml:"content_type"`
	ContentEncoding string         `toml:"content_encoding"`
	CorrelationID   string         `toml:"correlation_id"`
	MessageID       string         `toml:"message_id"`
	Type            string         `toml:"type"`
	AppID           string         `toml:"app_id"`
	ReplyTo         string         `toml:"reply_to"`
	Headers         map[string]any `toml:"headers"`
}

// InputConfig is a [case.input] table.
type InputConfig struct {
	Exchange     string           `toml:"exchange"`
	ExchangeType string           `toml:"exchange_type"`
	RoutingKey   string           `toml:"routing_key"`
	Payload      any              `toml:"payload"`
	Properties   PropertiesConfig `toml:"properties"`
}

// BindingConfig is a [[case.output.binding]] table.
type BindingConfig struct {
	Exchange     string `toml:"exchange"`
	ExchangeType string `toml:"exchange_type"`
	Queue        string `toml:"queue"`
	RoutingKey   string `toml:"routing_key"`
}

// OutputConfig is a [case.output] table.
type OutputConfig struct {
	Queues             []string          `toml:"queues"`
	ExpectedQueue      string            `toml:"expected_queue"`
	ExpectedPayload    any               `toml:"expected_payload"`
	ExpectedProperties map[string]string `toml:"expected_properties"`
	Bindings           []BindingConfig   `toml:"binding"`
}

// CaseConfig is a [[case]] table. Connection names the amqp resource the
// case runs on.
type CaseConfig struct {
	Name       string       `toml:"name"`
	Connection string       `toml:"connection"`
	Timeout    string       `toml:"timeout"`
	Input      InputConfig  `toml:"input"`
	Output     OutputConfig `toml:"output"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return DefaultConfigFile
}

// ApplyFileConfig applies the global settings of a file to cfg.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("docker", fc.Docker, &cfg.Docker)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("timeout", fc.Timeout, &cfg.Timeout); err != nil {
		return err
	}

	s.setBool("keep-on-probe-failure", fc.KeepOnProbeFailure, &cfg.KeepOnProbeFailure)
	s.setBool("verbose", fc.Verbose, &cfg.Verbose)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
