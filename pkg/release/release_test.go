package release

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/flowrig/pkg/fault"
)

func recorder(calls *[]string, name string, err error) Termination {
	return func(context.Context) error {
		*calls = append(*calls, name)
		return err
	}
}

func TestForward_RunsAllInOrder(t *testing.T) {
	var calls []string
	boom := errors.New("boom")

	errs := Forward(context.Background(), []Termination{
		recorder(&calls, "a", nil),
		recorder(&calls, "b", boom),
		recorder(&calls, "c", nil),
	})

	assert.Equal(t, []string{"a", "b", "c"}, calls)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestReverse_RunsAllBackwards(t *testing.T) {
	var calls []string
	e1, e3 := errors.New("first"), errors.New("third")

	errs := Reverse(context.Background(), []Termination{
		recorder(&calls, "a", e1),
		recorder(&calls, "b", nil),
		recorder(&calls, "c", e3),
	})

	assert.Equal(t, []string{"c", "b", "a"}, calls)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], e3)
	assert.ErrorIs(t, errs[1], e1)
}

func TestSweep(t *testing.T) {
	var calls []string
	assert.NoError(t, Sweep(context.Background(), "teardown", []Termination{recorder(&calls, "a", nil)}))

	err := Sweep(context.Background(), "teardown", []Termination{
		nil,
		func(context.Context) error { panic("kaboom") },
	})
	var ce *fault.CompositeError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 2, ce.Len())
	assert.Contains(t, ce.Errors[0].Error(), "termination panicked: kaboom")
	assert.ErrorIs(t, ce.Errors[1], ErrNilTermination)
}
