// Package flowengine starts the message-flow engine (Node-RED by default)
// as a child process and waits for it to accept requests.
package flowengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/bft-labs/flowrig/internal/adapters/process"
	"github.com/bft-labs/flowrig/pkg/fault"
	"github.com/bft-labs/flowrig/pkg/log"
	"github.com/bft-labs/flowrig/pkg/probe"
	"github.com/bft-labs/flowrig/pkg/release"
)

// Defaults applied to zero-valued Flow fields.
const (
	DefaultCommand  = "npx node-red"
	DefaultPath     = "flows.json"
	DefaultPort     = 1880
	DefaultUserDir  = "."
	DefaultSettings = "settings.js"

	// killTimeout bounds the wait for an engine that failed to become ready.
	killTimeout = 10 * time.Second

	defaultInitialDelay     = 2 * time.Second
	defaultFailureThreshold = 5
)

// Flow describes one flow engine instance.
type Flow struct {
	// Command is the engine command line, tokenized like a shell would.
	Command  string
	Path     string
	Port     int
	UserDir  string
	Settings string
	Env      map[string]string

	// ReadinessProbe defaults to an HTTP GET on Port.
	ReadinessProbe *probe.Spec

	Stdout io.Writer
	Stderr io.Writer
}

func (f Flow) withDefaults() Flow {
	if f.Command == "" {
		f.Command = DefaultCommand
	}
	if f.Path == "" {
		f.Path = DefaultPath
	}
	if f.Port == 0 {
		f.Port = DefaultPort
	}
	if f.UserDir == "" {
		f.UserDir = DefaultUserDir
	}
	if f.Settings == "" {
		f.Settings = DefaultSettings
	}
	if f.ReadinessProbe == nil {
		f.ReadinessProbe = &probe.Spec{
			InitialDelay:     defaultInitialDelay,
			FailureThreshold: defaultFailureThreshold,
			Check:            probe.HTTP(probe.HTTPOptions{}),
		}
	}
	return f
}

// Argv returns the full command line, defaults applied.
func (f Flow) Argv() ([]string, error) {
	f = f.withDefaults()
	if f.Port < 0 {
		return nil, fault.Configf("flow.port", "must be positive")
	}

	parser := shellwords.NewParser()
	parser.ParseEnv = false
	parser.ParseBacktick = false
	argv, err := parser.Parse(f.Command)
	if err != nil {
		return nil, fault.Configf("flow.command", "%v", err)
	}
	if len(argv) == 0 {
		return nil, fault.Configf("flow.command", "is empty")
	}
	return append(argv,
		"-p", strconv.Itoa(f.Port),
		"--userDir", f.UserDir,
		"--settings", f.Settings,
		f.Path,
	), nil
}

func (f Flow) environ() []string {
	keys := make([]string, 0, len(f.Env))
	for k := range f.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+f.Env[k])
	}
	return env
}

// Option configures Start.
type Option func(*options)

type options struct {
	logger log.Logger
	runner *probe.Runner
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = log.OrNoop(l) }
}

// WithProbeRunner sets the runner used for the readiness probe.
func WithProbeRunner(r *probe.Runner) Option {
	return func(o *options) {
		if r != nil {
			o.runner = r
		}
	}
}

// Start spawns the engine and waits for its readiness probe. The probe races
// against the process exiting; either a probe failure or an early exit kills
// the process and returns an error. The returned Termination kills the
// process and waits for it to exit.
func Start(ctx context.Context, f Flow, opts ...Option) (release.Termination, error) {
	o := options{logger: log.NoopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runner == nil {
		o.runner = probe.NewRunner(probe.WithLogger(o.logger))
	}

	argv, err := f.Argv()
	if err != nil {
		return nil, err
	}
	f = f.withDefaults()
	if err := f.ReadinessProbe.Validate(); err != nil {
		return nil, err
	}

	o.logger.Info("starting flow engine",
		log.Strings("argv", argv),
		log.Int("port", f.Port))

	h, err := process.Spawn(ctx, process.Command{
		Path:   argv[0],
		Args:   argv[1:],
		Env:    f.environ(),
		Stdout: f.Stdout,
		Stderr: f.Stderr,
	})
	if err != nil {
		return nil, &fault.StartError{Target: "flow engine", Err: err}
	}

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ready := make(chan error, 1)
	go func() {
		ready <- o.runner.Perform(probeCtx, f.ReadinessProbe, []int{f.Port})
	}()

	select {
	case err := <-ready:
		if err != nil {
			o.logger.Warn("flow engine not ready, killing it", log.Err(err))
			killCtx, cancelKill := context.WithTimeout(context.Background(), killTimeout)
			_ = kill(killCtx, h)
			cancelKill()
			return nil, err
		}
	case <-h.Done():
		cancel()
		<-ready
		exitErr := h.Wait()
		// Descendants may outlive the engine process.
		_ = h.Kill()
		if exitErr == nil {
			exitErr = errors.New("exited with code 0")
		}
		return nil, &fault.StartError{
			Target: "flow engine",
			Err:    fmt.Errorf("process ended before becoming ready: %w", exitErr),
		}
	}

	o.logger.Info("flow engine ready", log.Int("pid", h.Pid()), log.Int("port", f.Port))
	return func(ctx context.Context) error {
		return kill(ctx, h)
	}, nil
}

func kill(ctx context.Context, h *process.Handle) error {
	if err := h.Kill(); err != nil {
		return err
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
