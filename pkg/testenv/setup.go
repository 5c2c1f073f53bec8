package testenv

import (
	"context"
	"fmt"

	"github.com/bft-labs/flowrig/pkg/fault"
	"github.com/bft-labs/flowrig/pkg/flowengine"
	"github.com/bft-labs/flowrig/pkg/lifecycle"
	"github.com/bft-labs/flowrig/pkg/log"
	"github.com/bft-labs/flowrig/pkg/release"
	"github.com/bft-labs/flowrig/pkg/resource"
)

// Config lists what a test run needs.
type Config struct {
	Containers []lifecycle.Container
	Flow       *flowengine.Flow
	Resources  resource.Factories
}

// FlowStarter starts a flow engine.
type FlowStarter func(ctx context.Context, f flowengine.Flow) (release.Termination, error)

// Option configures Setup.
type Option func(*options)

type options struct {
	logger       log.Logger
	orchestrator *lifecycle.Orchestrator
	engine       lifecycle.Engine
	startFlow    FlowStarter
}

// WithLogger sets the logger used by Setup and the components it creates.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = log.OrNoop(l) }
}

// WithOrchestrator uses orch to start containers.
func WithOrchestrator(orch *lifecycle.Orchestrator) Option {
	return func(o *options) { o.orchestrator = orch }
}

// WithEngine builds a default orchestrator around engine. Ignored when
// WithOrchestrator is also given.
func WithEngine(engine lifecycle.Engine) Option {
	return func(o *options) { o.engine = engine }
}

// WithFlowStarter replaces flowengine.Start.
func WithFlowStarter(f FlowStarter) Option {
	return func(o *options) {
		if f != nil {
			o.startFlow = f
		}
	}
}

// Setup starts the containers, then the flow engine, then initializes the
// resources. It is all-or-nothing: when a stage fails, everything acquired
// so far is released in reverse order and the result is a
// *fault.CompositeError holding the stage failure followed by any release
// failures.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*Context, error) {
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	o := options{logger: log.NoopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.startFlow == nil {
		logger := o.logger
		o.startFlow = func(ctx context.Context, f flowengine.Flow) (release.Termination, error) {
			return flowengine.Start(ctx, f, flowengine.WithLogger(logger))
		}
	}
	if o.orchestrator == nil && len(cfg.Containers) > 0 {
		if o.engine == nil {
			return nil, fault.Configf("engine", "containers are configured but no engine was given")
		}
		o.orchestrator = lifecycle.NewOrchestrator(o.engine, lifecycle.WithLogger(o.logger))
	}

	var terms []release.Termination
	fail := func(stage string, err error) (*Context, error) {
		o.logger.Warn("setup failed, releasing acquired resources",
			log.String("stage", stage),
			log.Int("acquired", len(terms)),
			log.Err(err))
		errs := []error{fmt.Errorf("%s: %w", stage, err)}
		errs = append(errs, release.Reverse(ctx, terms)...)
		return nil, fault.NewComposite("failed to set up test environment", errs...)
	}

	if len(cfg.Containers) > 0 {
		started, err := o.orchestrator.StartAll(ctx, cfg.Containers)
		if err != nil {
			return fail("start containers", err)
		}
		terms = append(terms, started...)
	}

	if cfg.Flow != nil {
		stop, err := o.startFlow(ctx, *cfg.Flow)
		if err != nil {
			return fail("start flow engine", err)
		}
		terms = append(terms, stop)
	}

	res, err := resource.Init(ctx, cfg.Resources, resource.WithLogger(o.logger))
	if err != nil {
		return fail("initialize resources", err)
	}
	terms = append(terms, res.Terminations()...)

	o.logger.Info("test environment ready",
		log.Int("containers", len(cfg.Containers)),
		log.Bool("flow", cfg.Flow != nil),
		log.Strings("resources", res.Names()))
	return New(terms, res.Values()), nil
}

// Teardown destroys c.
func Teardown(ctx context.Context, c *Context) error {
	if c == nil {
		return fault.Configf("context", "missing test environment")
	}
	return c.Destroy(ctx)
}
