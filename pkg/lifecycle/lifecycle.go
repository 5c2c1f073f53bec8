package lifecycle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/flowrig/pkg/log"
)

// State represents the lifecycle state of one managed process.
type State int

const (
	StateUnstarted State = iota
	StateStarting
	StateProbing
	StateRunning
	StateStopped
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "Unstarted"
	case StateStarting:
		return "Starting"
	case StateProbing:
		return "Probing"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ErrInvalidTransition is returned by TransitionTo for a transition the
// state machine does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// EventEmitter is called when a process changes state.
type EventEmitter interface {
	OnStateChange(process string, previous, current State, reason string)
}

// transitions lists the allowed targets per state. Unstarted -> Running is
// the adoption path.
var transitions = map[State][]State{
	StateUnstarted: {StateStarting, StateRunning},
	StateStarting:  {StateProbing, StateRunning, StateFailed},
	StateProbing:   {StateRunning, StateFailed},
	StateRunning:   {StateStopped},
}

// Machine tracks the state of one process.
type Machine struct {
	mu      sync.RWMutex
	process string
	state   State
	logger  log.Logger
	emitter EventEmitter
}

// NewMachine creates a machine in StateUnstarted. logger and emitter may be nil.
func NewMachine(process string, logger log.Logger, emitter EventEmitter) *Machine {
	return &Machine{
		process: process,
		state:   StateUnstarted,
		logger:  log.OrNoop(logger),
		emitter: emitter,
	}
}

// Process returns the label the machine reports events under.
func (m *Machine) Process() string { return m.process }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// TransitionTo moves to newState, or returns ErrInvalidTransition.
func (m *Machine) TransitionTo(newState State, reason string) error {
	m.mu.Lock()
	oldState := m.state
	if !allowed(oldState, newState) {
		m.mu.Unlock()
		return fmt.Errorf("%s: %s -> %s: %w", m.process, oldState, newState, ErrInvalidTransition)
	}
	m.state = newState
	m.mu.Unlock()

	// Emit outside of lock
	if m.emitter != nil {
		m.emitter.OnStateChange(m.process, oldState, newState, reason)
	}

	m.logger.Debug("state transition",
		log.String("process", m.process),
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
