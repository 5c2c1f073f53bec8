// Package release defines Termination, the release action for one acquired
// resource or process, and the best-effort sweeps that run many of them.
package release

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/flowrig/pkg/fault"
)

// Termination releases one acquired resource. Implementations do not have to
// be idempotent, but calling one on something that is already gone must
// surface an error rather than panic.
type Termination func(ctx context.Context) error

// ErrNilTermination is reported when a sweep meets a nil Termination.
var ErrNilTermination = errors.New("nil termination")

// Forward invokes every termination in order and returns the failures in the
// same order. It never short-circuits.
func Forward(ctx context.Context, terms []Termination) []error {
	var errs []error
	for i, t := range terms {
		if err := call(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("termination %d: %w", i, err))
		}
	}
	return errs
}

// Reverse invokes every termination from last to first and returns the
// failures in invocation order. It never short-circuits.
func Reverse(ctx context.Context, terms []Termination) []error {
	var errs []error
	for i := len(terms) - 1; i >= 0; i-- {
		if err := call(ctx, terms[i]); err != nil {
			errs = append(errs, fmt.Errorf("termination %d: %w", i, err))
		}
	}
	return errs
}

// Sweep runs Reverse and aggregates the failures into a fault.CompositeError
// labelled op. It returns nil when every termination succeeded.
func Sweep(ctx context.Context, op string, terms []Termination) error {
	return fault.NewComposite(op, Reverse(ctx, terms)...)
}

func call(ctx context.Context, t Termination) (err error) {
	if t == nil {
		return ErrNilTermination
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("termination panicked: %v", r)
		}
	}()
	return t(ctx)
}
