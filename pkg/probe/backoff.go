package probe

import (
	"math/rand"
	"time"
)

// Backoff produces randomized, exponentially growing waits bounded by a
// floor and a ceiling.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
	rand    func() float64
}

// NewBackoff creates a backoff starting at initial and capped at max.
// A max below initial is raised to initial.
func NewBackoff(initial, max time.Duration) *Backoff {
	if max < initial {
		max = initial
	}
	return &Backoff{
		initial: initial,
		max:     max,
		current: initial,
		rand:    rand.Float64,
	}
}

// Next returns the wait before the next attempt and grows the window.
// The result is current*(1+r) for r in [0,1), clamped to [initial, max].
func (b *Backoff) Next() time.Duration {
	d := time.Duration(float64(b.current) * (1 + b.rand()))
	if d > b.max {
		d = b.max
	}
	if d < b.initial {
		d = b.initial
	}

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset resets the backoff to the initial duration.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// Current returns the current base duration.
func (b *Backoff) Current() time.Duration {
	return b.current
}
