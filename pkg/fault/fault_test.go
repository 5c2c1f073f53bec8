package fault

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewComposite_DropsNilChildren(t *testing.T) {
	assert.NoError(t, NewComposite("op"))
	assert.NoError(t, NewComposite("op", nil, nil))

	a := errors.New("a")
	err := NewComposite("op", nil, a)

	var ce *CompositeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []error{a}, ce.Errors)
}

func TestCompositeError_KeepsOrderAndUnwraps(t *testing.T) {
	start := &StartError{Target: "nginx", Err: errors.New("exit status 125")}
	stop := &StopError{ID: "abc", Err: errors.New("no such container")}

	err := NewComposite("failed to start all containers", start, stop)

	var ce *CompositeError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 2, ce.Len())
	assert.Same(t, start, ce.Errors[0])
	assert.Same(t, stop, ce.Errors[1])

	var se *StopError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "abc", se.ID)

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "failed to start all containers"))
	assert.Contains(t, msg, "failed to start nginx: exit status 125")
	assert.Contains(t, msg, "failed to stop abc: no such container")
}

func TestCompositeError_NestedIs(t *testing.T) {
	inner := NewComposite("inner", ErrAlreadyClosed)
	outer := NewComposite("outer", errors.New("x"), inner)

	assert.ErrorIs(t, outer, ErrAlreadyClosed)
	assert.Contains(t, outer.Error(), "\n      - flowrig: context is already closed")
}

func TestProbeExhaustedError(t *testing.T) {
	last := errors.New("connection refused")
	err := &ProbeExhaustedError{Attempts: 3, Elapsed: 2500 * time.Millisecond, Last: last}

	assert.ErrorIs(t, err, last)
	assert.Equal(t, "probe failed after 3 attempt(s) in 2.5s: connection refused", err.Error())
}

func TestConfigError(t *testing.T) {
	assert.Equal(t, "invalid configuration: image: is required", Configf("image", "is required").Error())
	assert.Equal(t, "invalid configuration: missing", (&ConfigError{Reason: "missing"}).Error())
}
