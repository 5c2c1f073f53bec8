package testenv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bft-labs/flowrig/pkg/fault"
	"github.com/bft-labs/flowrig/pkg/release"
)

// ErrNoValue is returned by Get for an unknown name.
var ErrNoValue = errors.New("testenv: no such value")

// Context owns everything a test run acquired: the terminations, in
// acquisition order, and the named values handed to the tests.
type Context struct {
	terms  []release.Termination
	values map[string]any
	closed atomic.Bool
}

// New creates a Context. Both arguments are copied.
func New(terms []release.Termination, values map[string]any) *Context {
	c := &Context{
		terms:  append([]release.Termination(nil), terms...),
		values: make(map[string]any, len(values)),
	}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

// Values returns a copy of the named values.
func (c *Context) Values() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Value returns the named value.
func (c *Context) Value(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Get returns the named value as a T.
func Get[T any](c *Context, name string) (T, error) {
	var zero T
	v, ok := c.values[name]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNoValue, name)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("testenv: value %q is %T, not %T", name, v, zero)
	}
	return t, nil
}

// Closed reports whether Destroy has been called.
func (c *Context) Closed() bool { return c.closed.Load() }

// Destroy runs every termination in reverse acquisition order, continuing
// past failures. It runs at most once; later calls return
// fault.ErrAlreadyClosed and do nothing. Safe for concurrent use.
func (c *Context) Destroy(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return fault.ErrAlreadyClosed
	}
	return release.Sweep(ctx, "failed to destroy test environment", c.terms)
}
