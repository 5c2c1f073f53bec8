package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/flowrig/pkg/fault"
	"github.com/bft-labs/flowrig/pkg/log"
	"github.com/bft-labs/flowrig/pkg/probe"
	"github.com/bft-labs/flowrig/pkg/release"
)

// ProbeFailurePolicy decides what happens to a running container whose
// readiness probe was exhausted.
type ProbeFailurePolicy int

const (
	// StopOnProbeFailure removes the container before reporting the probe error.
	StopOnProbeFailure ProbeFailurePolicy = iota

	// LeaveRunning reports the probe error and leaves the container for
	// inspection.
	LeaveRunning
)

// String returns a human-readable representation of the policy.
func (p ProbeFailurePolicy) String() string {
	switch p {
	case StopOnProbeFailure:
		return "stop"
	case LeaveRunning:
		return "leave-running"
	default:
		return "unknown"
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *Orchestrator) { o.logger = log.OrNoop(l) }
}

// WithProbeRunner sets the runner used for readiness probes.
func WithProbeRunner(r *probe.Runner) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.runner = r
		}
	}
}

// WithProbeFailurePolicy sets the probe failure policy. Default StopOnProbeFailure.
func WithProbeFailurePolicy(p ProbeFailurePolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithEventEmitter receives every state change of every managed container.
func WithEventEmitter(e EventEmitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithNameGenerator overrides how names are picked for unnamed containers.
func WithNameGenerator(f func() string) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newName = f
		}
	}
}

// Orchestrator starts and stops containers through an Engine.
type Orchestrator struct {
	engine  Engine
	runner  *probe.Runner
	logger  log.Logger
	emitter EventEmitter
	policy  ProbeFailurePolicy
	newName func() string

	mu       sync.Mutex
	machines map[string]*Machine
}

// NewOrchestrator creates an orchestrator driving engine.
func NewOrchestrator(engine Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:   engine,
		logger:   log.NoopLogger{},
		policy:   StopOnProbeFailure,
		newName:  func() string { return "flowrig-" + uuid.NewString() },
		machines: make(map[string]*Machine),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runner == nil {
		o.runner = probe.NewRunner(probe.WithLogger(o.logger))
	}
	return o
}

// State returns the state of the container started or adopted under name.
func (o *Orchestrator) State(name string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.machines[name]; ok {
		return m.State()
	}
	return StateUnstarted
}

func (o *Orchestrator) track(name string) *Machine {
	m := NewMachine(name, o.logger, o.emitter)
	o.mu.Lock()
	o.machines[name] = m
	o.mu.Unlock()
	return m
}

// FindID returns the id of the running container named name, or "".
func (o *Orchestrator) FindID(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fault.Configf("name", "is required")
	}
	return o.engine.FindID(ctx, name)
}

// Start runs c and waits for its readiness probe, if any. The returned
// Termination removes the container.
//
// A named container that is already running is adopted without probing.
// When the probe is exhausted the probe error is returned; a container that
// is still running is removed first unless the policy is LeaveRunning.
func (o *Orchestrator) Start(ctx context.Context, c *Container) (release.Termination, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.Name != "" {
		id, err := o.engine.FindID(ctx, c.Name)
		if err != nil {
			return nil, &fault.StartError{Target: c.Name, Err: fmt.Errorf("look up running container: %w", err)}
		}
		if id != "" {
			m := o.track(c.Name)
			_ = m.TransitionTo(StateRunning, "adopted")
			o.logger.Info("adopted running container",
				log.String("name", c.Name),
				log.String("id", id))
			return o.terminator(m, id), nil
		}
	}

	name := c.Name
	if name == "" {
		name = o.newName()
	}
	m := o.track(name)
	_ = m.TransitionTo(StateStarting, "start requested")

	o.logger.Info("starting container",
		log.String("name", name),
		log.String("image", c.Image),
		log.Ints("ports", c.HostPorts()))

	err := o.engine.Run(ctx, RunRequest{
		Name:   name,
		Image:  c.Image,
		Ports:  c.Ports,
		Env:    c.Env,
		Stdout: c.Stdout,
		Stderr: c.Stderr,
	})
	if err != nil {
		_ = m.TransitionTo(StateFailed, "run failed")
		return nil, &fault.StartError{Target: fmt.Sprintf("%s (%s)", name, c.Image), Err: err}
	}

	if c.ReadinessProbe != nil {
		_ = m.TransitionTo(StateProbing, "waiting for readiness")
		if perr := o.runner.Perform(ctx, c.ReadinessProbe, c.HostPorts()); perr != nil {
			_ = m.TransitionTo(StateFailed, "readiness probe failed")
			return nil, o.afterProbeFailure(ctx, name, perr)
		}
	}

	id, err := o.engine.FindID(ctx, name)
	if err != nil {
		_ = m.TransitionTo(StateFailed, "not running after start")
		return nil, &fault.StartError{Target: name, Err: err}
	}
	if id == "" {
		_ = m.TransitionTo(StateFailed, "not running after start")
		serr := &fault.StartError{Target: name, Err: fmt.Errorf("container %s is not running", name)}
		if rerr := o.clearExited(ctx, name); rerr != nil {
			return nil, fault.NewComposite("start "+name, serr, rerr)
		}
		return nil, serr
	}

	_ = m.TransitionTo(StateRunning, "ready")
	o.logger.Info("container running", log.String("name", name), log.String("id", id))
	return o.terminator(m, id), nil
}

func (o *Orchestrator) afterProbeFailure(ctx context.Context, name string, perr error) error {
	id, err := o.engine.FindID(ctx, name)
	if err != nil {
		return fault.NewComposite("readiness probe failed for "+name, perr,
			fmt.Errorf("look up container after probe failure: %w", err))
	}
	if id == "" {
		o.logger.Warn("readiness probe failed, container is not running",
			log.String("name", name), log.Err(perr))
		if rerr := o.clearExited(ctx, name); rerr != nil {
			return fault.NewComposite("readiness probe failed for "+name, perr, rerr)
		}
		return perr
	}
	if o.policy == LeaveRunning {
		o.logger.Warn("readiness probe failed, leaving container running",
			log.String("name", name), log.String("id", id), log.Err(perr))
		return perr
	}

	o.logger.Warn("readiness probe failed, stopping container",
		log.String("name", name), log.String("id", id), log.Err(perr))
	if serr := o.Stop(ctx, id); serr != nil {
		return fault.NewComposite("readiness probe failed for "+name, perr, serr)
	}
	return perr
}

// clearExited removes a stopped container by name so the name can be reused.
func (o *Orchestrator) clearExited(ctx context.Context, name string) error {
	if err := o.engine.Remove(ctx, name); err != nil {
		return fmt.Errorf("remove exited container: %w", err)
	}
	return nil
}

func (o *Orchestrator) terminator(m *Machine, id string) release.Termination {
	return func(ctx context.Context) error {
		if err := o.Stop(ctx, id); err != nil {
			return err
		}
		_ = m.TransitionTo(StateStopped, "removed")
		return nil
	}
}

// Stop force-removes the container with id.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	if id == "" {
		return fault.Configf("id", "missing container id")
	}
	if err := o.engine.Remove(ctx, id); err != nil {
		return &fault.StopError{ID: id, Err: err}
	}
	o.logger.Info("container removed", log.String("id", id))
	return nil
}

// StartAll starts cs one after another. When one fails, the containers
// already started are stopped in start order and the result is a
// *fault.CompositeError holding the start failure followed by any stop
// failures. No partial result is returned.
func (o *Orchestrator) StartAll(ctx context.Context, cs []Container) ([]release.Termination, error) {
	started := make([]release.Termination, 0, len(cs))
	for i := range cs {
		term, err := o.Start(ctx, &cs[i])
		if err != nil {
			o.logger.Warn("container failed to start, stopping the ones already started",
				log.Int("index", i),
				log.Int("started", len(started)),
				log.Err(err))
			errs := []error{fmt.Errorf("container %d (%s): %w", i, cs[i].label(), err)}
			errs = append(errs, o.invoke(ctx, termTargets(started))...)
			return nil, fault.NewComposite("failed to start containers", errs...)
		}
		started = append(started, term)
	}
	return started, nil
}

// StopAll stops every target, in order, regardless of earlier failures.
func (o *Orchestrator) StopAll(ctx context.Context, targets []Target) error {
	return fault.NewComposite("failed to stop containers", o.invoke(ctx, targets)...)
}

func (o *Orchestrator) invoke(ctx context.Context, targets []Target) []error {
	var errs []error
	for _, t := range targets {
		var err error
		if t.term != nil {
			err = t.term(ctx)
		} else {
			err = o.Stop(ctx, t.id)
		}
		if err != nil {
			o.logger.Warn("stop failed", log.String("target", t.String()), log.Err(err))
			errs = append(errs, err)
		}
	}
	return errs
}

func termTargets(terms []release.Termination) []Target {
	targets := make([]Target, 0, len(terms))
	for _, t := range terms {
		targets = append(targets, ByTermination(t))
	}
	return targets
}
