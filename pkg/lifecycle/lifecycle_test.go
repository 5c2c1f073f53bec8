package lifecycle

import (
	"errors"
	"sync"
	"testing"
)

// mockEmitter tracks state change events for testing.
type mockEmitter struct {
	mu     sync.Mutex
	events []stateChangeEvent
}

type stateChangeEvent struct {
	process  string
	previous State
	current  State
	reason   string
}

func (m *mockEmitter) OnStateChange(process string, previous, current State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stateChangeEvent{process, previous, current, reason})
}

func (m *mockEmitter) Events() []stateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateChangeEvent{}, m.events...)
}

func TestNewMachine(t *testing.T) {
	m := NewMachine("broker", nil, nil)

	if m == nil {
		t.Fatal("NewMachine returned nil")
	}
	if m.State() != StateUnstarted {
		t.Errorf("initial state = %v, want StateUnstarted", m.State())
	}
	if m.Process() != "broker" {
		t.Errorf("Process() = %q, want broker", m.Process())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUnstarted, "Unstarted"},
		{StateStarting, "Starting"},
		{StateProbing, "Probing"},
		{StateRunning, "Running"},
		{StateStopped, "Stopped"},
		{StateFailed, "Failed"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		got := tt.state.String()
		if got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestMachine_TransitionTo_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"unstarted to starting", StateUnstarted, StateStarting},
		{"unstarted to running (adopted)", StateUnstarted, StateRunning},
		{"starting to probing", StateStarting, StateProbing},
		{"starting to running", StateStarting, StateRunning},
		{"starting to failed", StateStarting, StateFailed},
		{"probing to running", StateProbing, StateRunning},
		{"probing to failed", StateProbing, StateFailed},
		{"running to stopped", StateRunning, StateStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine("p", nil, nil)
			m.state = tt.from

			if err := m.TransitionTo(tt.to, "test"); err != nil {
				t.Fatalf("TransitionTo() error = %v", err)
			}
			if m.State() != tt.to {
				t.Errorf("state = %v after transition, want %v", m.State(), tt.to)
			}
		})
	}
}

func TestMachine_TransitionTo_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"unstarted to probing", StateUnstarted, StateProbing},
		{"unstarted to stopped", StateUnstarted, StateStopped},
		{"probing to starting", StateProbing, StateStarting},
		{"running to failed", StateRunning, StateFailed},
		{"stopped to starting", StateStopped, StateStarting},
		{"failed to running", StateFailed, StateRunning},
		{"failed to stopped", StateFailed, StateStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine("p", nil, nil)
			m.state = tt.from

			err := m.TransitionTo(tt.to, "test")
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("TransitionTo() error = %v, want ErrInvalidTransition", err)
			}
			if m.State() != tt.from {
				t.Errorf("state changed to %v on invalid transition", m.State())
			}
		})
	}
}

func TestMachine_EmitsEvents(t *testing.T) {
	emitter := &mockEmitter{}
	m := NewMachine("cache", nil, emitter)

	_ = m.TransitionTo(StateStarting, "start")
	_ = m.TransitionTo(StateRunning, "ready")

	events := emitter.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	want := stateChangeEvent{"cache", StateStarting, StateRunning, "ready"}
	if events[1] != want {
		t.Errorf("events[1] = %+v, want %+v", events[1], want)
	}
}
