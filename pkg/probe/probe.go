package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/flowrig/pkg/fault"
	"github.com/bft-labs/flowrig/pkg/log"
)

// Defaults applied to zero-valued Spec fields.
const (
	DefaultPeriod           = 10 * time.Second
	DefaultFailureThreshold = 3
	DefaultSuccessThreshold = 1

	// MinBackoff is the floor of the randomized wait between attempts.
	MinBackoff = time.Second
)

// Func checks readiness of the services published on ports.
type Func func(ctx context.Context, ports []int) error

// Spec configures a readiness probe. It is not modified by Perform.
type Spec struct {
	// InitialDelay is waited once before the first attempt. It is not
	// counted against FailureThreshold or Timeout.
	InitialDelay time.Duration

	// Period is the ceiling of the randomized wait between attempts.
	// The floor is MinBackoff. Default 10s.
	Period time.Duration

	// Timeout bounds the whole retry loop. Zero means unbounded.
	Timeout time.Duration

	// SuccessThreshold is the number of consecutive successful checks
	// required. Default 1, so the first success terminates the probe.
	SuccessThreshold int

	// FailureThreshold is the number of failed checks tolerated before
	// giving up. Default 3.
	FailureThreshold int

	// Check performs one readiness check.
	Check Func
}

func (s Spec) withDefaults() Spec {
	if s.Period <= 0 {
		s.Period = DefaultPeriod
	}
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = DefaultSuccessThreshold
	}
	return s
}

// Validate reports configuration problems without running anything.
func (s *Spec) Validate() error {
	if s == nil {
		return fault.Configf("probe", "missing probe configuration")
	}
	if s.Check == nil {
		return fault.Configf("probe.check", "missing probe function")
	}
	if s.InitialDelay < 0 || s.Timeout < 0 {
		return fault.Configf("probe", "durations must not be negative")
	}
	return nil
}

// Clock abstracts time for the runner.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Runner executes probes under the retry policy of their Spec.
type Runner struct {
	clock  Clock
	rand   func() float64
	logger log.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithRand replaces the jitter source. f must return values in [0,1).
func WithRand(f func() float64) Option {
	return func(r *Runner) { r.rand = f }
}

// WithLogger sets the logger used to report attempts.
func WithLogger(l log.Logger) Option {
	return func(r *Runner) { r.logger = log.OrNoop(l) }
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		clock:  realClock{},
		logger: log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRunner = NewRunner()

// Perform runs spec with the default runner.
func Perform(ctx context.Context, spec *Spec, ports []int) error {
	return defaultRunner.Perform(ctx, spec, ports)
}

// Perform runs the check until it succeeds SuccessThreshold times in a row,
// fails FailureThreshold times, or exceeds Timeout. Configuration errors are
// returned immediately without attempting the check. Exhaustion is reported
// as *fault.ProbeExhaustedError wrapping the last check error.
func (r *Runner) Perform(ctx context.Context, spec *Spec, ports []int) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	s := spec.withDefaults()

	if s.InitialDelay > 0 {
		r.logger.Debug("probe initial delay", log.Duration("delay", s.InitialDelay))
		if err := r.clock.Sleep(ctx, s.InitialDelay); err != nil {
			return fmt.Errorf("probe canceled during initial delay: %w", err)
		}
	}

	start := r.clock.Now()
	checkCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	backoff := NewBackoff(MinBackoff, s.Period)
	if r.rand != nil {
		backoff.rand = r.rand
	}

	var (
		last      error
		attempts  int
		failures  int
		successes int
	)
	for {
		attempts++
		err := s.Check(checkCtx, ports)
		if err == nil {
			successes++
			r.logger.Debug("probe check passed",
				log.Ints("ports", ports),
				log.Int("attempt", attempts),
				log.Int("streak", successes))
			if successes >= s.SuccessThreshold {
				return nil
			}
		} else {
			successes = 0
			failures++
			last = err
			r.logger.Debug("probe check failed",
				log.Ints("ports", ports),
				log.Int("attempt", attempts),
				log.Err(err))
			if failures >= s.FailureThreshold {
				return r.exhausted(attempts, start, last)
			}
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("probe canceled after %d attempt(s): %w", attempts, errors.Join(err, last))
		}

		wait := backoff.Next()
		if s.Timeout > 0 {
			elapsed := r.clock.Now().Sub(start)
			if elapsed >= s.Timeout || elapsed+wait > s.Timeout {
				return r.exhausted(attempts, start, last)
			}
		}
		if err := r.clock.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("probe canceled after %d attempt(s): %w", attempts, errors.Join(err, last))
		}
	}
}

func (r *Runner) exhausted(attempts int, start time.Time, last error) error {
	if last == nil {
		last = errors.New("success threshold not reached")
	}
	err := &fault.ProbeExhaustedError{
		Attempts: attempts,
		Elapsed:  r.clock.Now().Sub(start),
		Last:     last,
	}
	r.logger.Warn("probe exhausted", log.Int("attempts", attempts), log.Err(last))
	return err
}
