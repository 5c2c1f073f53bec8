package resource

import (
	"context"
	"fmt"

	"github.com/bft-labs/flowrig/pkg/fault"
	"github.com/bft-labs/flowrig/pkg/log"
	"github.com/bft-labs/flowrig/pkg/release"
)

// Resource is a value acquired by a Factory together with the Termination
// that releases it. Value is opaque to flowrig.
type Resource struct {
	Value     any
	Terminate release.Termination
}

// Factory creates one Resource. It is invoked at most once per Init.
type Factory func(ctx context.Context) (Resource, error)

// Named binds a Factory to the name its value is published under.
type Named struct {
	Name    string
	Factory Factory
}

// Factories is an ordered list of named factories. Order matters: a later
// factory may rely on side effects of an earlier one.
type Factories []Named

// Add appends a named factory and returns the extended list.
func (f Factories) Add(name string, factory Factory) Factories {
	return append(f, Named{Name: name, Factory: factory})
}

// Resources is the result of a successful Init.
type Resources struct {
	order []string
	items map[string]Resource
}

// Names returns resource names in creation order.
func (r *Resources) Names() []string {
	return append([]string(nil), r.order...)
}

// Get returns the named resource.
func (r *Resources) Get(name string) (Resource, bool) {
	res, ok := r.items[name]
	return res, ok
}

// Values returns a fresh name to value map.
func (r *Resources) Values() map[string]any {
	out := make(map[string]any, len(r.items))
	for name, res := range r.items {
		out[name] = res.Value
	}
	return out
}

// Terminations returns the terminations in creation order.
func (r *Resources) Terminations() []release.Termination {
	out := make([]release.Termination, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.items[name].Terminate)
	}
	return out
}

// Close terminates every resource in reverse creation order.
func (r *Resources) Close(ctx context.Context) error {
	return release.Sweep(ctx, "failed to close resources", r.Terminations())
}

// Option configures Init.
type Option func(*options)

type options struct {
	logger log.Logger
}

// WithLogger sets the logger used by Init.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = log.OrNoop(l) }
}

// Init runs the factories sequentially in list order. When one fails no
// further factory runs; every resource created so far is terminated in
// creation order and the result is a *fault.CompositeError holding the
// factory failure followed by any rollback failures. A partially populated
// Resources is never returned.
func Init(ctx context.Context, factories Factories, opts ...Option) (*Resources, error) {
	o := options{logger: log.NoopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}

	if err := validate(factories); err != nil {
		return nil, err
	}

	res := &Resources{items: make(map[string]Resource, len(factories))}
	for _, nf := range factories {
		r, err := nf.Factory(ctx)
		if err != nil {
			o.logger.Warn("resource factory failed, rolling back",
				log.String("resource", nf.Name),
				log.Int("created", len(res.order)),
				log.Err(err))
			errs := []error{fmt.Errorf("resource %q: %w", nf.Name, err)}
			errs = append(errs, rollback(ctx, res)...)
			return nil, fault.NewComposite("failed to initialize resources", errs...)
		}
		if r.Terminate == nil {
			r.Terminate = func(context.Context) error { return nil }
		}
		res.order = append(res.order, nf.Name)
		res.items[nf.Name] = r
		o.logger.Debug("resource created", log.String("resource", nf.Name))
	}
	return res, nil
}

func validate(factories Factories) error {
	seen := make(map[string]struct{}, len(factories))
	for i, nf := range factories {
		if nf.Name == "" {
			return fault.Configf(fmt.Sprintf("factories[%d]", i), "name is required")
		}
		if nf.Factory == nil {
			return fault.Configf(nf.Name, "factory is nil")
		}
		if _, dup := seen[nf.Name]; dup {
			return fault.Configf(nf.Name, "duplicate resource name")
		}
		seen[nf.Name] = struct{}{}
	}
	return nil
}

func rollback(ctx context.Context, res *Resources) []error {
	var errs []error
	for _, name := range res.order {
		if err := res.items[name].Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rollback resource %q: %w", name, err))
		}
	}
	return errs
}
