package resource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/flowrig/pkg/fault"
)

type tracker struct {
	created    []string
	terminated []string
}

func (tr *tracker) factory(name string, createErr, termErr error) Factory {
	return func(context.Context) (Resource, error) {
		if createErr != nil {
			return Resource{}, createErr
		}
		tr.created = append(tr.created, name)
		return Resource{
			Value: "value-" + name,
			Terminate: func(context.Context) error {
				tr.terminated = append(tr.terminated, name)
				return termErr
			},
		}, nil
	}
}

func TestInit_Success(t *testing.T) {
	tr := &tracker{}
	res, err := Init(context.Background(), Factories{}.
		Add("broker", tr.factory("broker", nil, nil)).
		Add("cache", tr.factory("cache", nil, nil)).
		Add("mock", Static(42, nil)))
	require.NoError(t, err)

	assert.Equal(t, []string{"broker", "cache", "mock"}, res.Names())
	assert.Equal(t, map[string]any{"broker": "value-broker", "cache": "value-cache", "mock": 42}, res.Values())

	r, ok := res.Get("cache")
	require.True(t, ok)
	assert.Equal(t, "value-cache", r.Value)

	require.NoError(t, res.Close(context.Background()))
	assert.Equal(t, []string{"cache", "broker"}, tr.terminated)
}

func TestInit_Empty(t *testing.T) {
	res, err := Init(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Names())
	assert.Empty(t, res.Terminations())
}

func TestInit_FailureRollsBackInCreationOrder(t *testing.T) {
	tr := &tracker{}
	bErr := errors.New("b is down")
	var ranAfter bool

	res, err := Init(context.Background(), Factories{}.
		Add("a", tr.factory("a", nil, nil)).
		Add("x", tr.factory("x", nil, nil)).
		Add("b", tr.factory("b", bErr, nil)).
		Add("c", func(context.Context) (Resource, error) {
			ranAfter = true
			return Resource{}, nil
		}))

	assert.Nil(t, res)
	assert.False(t, ranAfter, "factories after the failing one must not run")
	assert.Equal(t, []string{"a", "x"}, tr.terminated)

	var ce *fault.CompositeError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 1, ce.Len())
	assert.ErrorIs(t, ce.Errors[0], bErr)
	assert.Contains(t, ce.Errors[0].Error(), `resource "b"`)
}

func TestInit_RollbackFailureIsReportedAlongside(t *testing.T) {
	tr := &tracker{}
	aRollback := errors.New("a close failed")
	bErr := errors.New("b is down")

	_, err := Init(context.Background(), Factories{}.
		Add("a", tr.factory("a", nil, aRollback)).
		Add("b", tr.factory("b", bErr, nil)))

	assert.Equal(t, []string{"a"}, tr.terminated, "a's terminator runs exactly once")

	var ce *fault.CompositeError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 2, ce.Len())
	assert.ErrorIs(t, ce.Errors[0], bErr)
	assert.ErrorIs(t, ce.Errors[1], aRollback)
}

func TestInit_ConfigErrors(t *testing.T) {
	tr := &tracker{}
	tests := []struct {
		name      string
		factories Factories
	}{
		{"empty name", Factories{}.Add("", tr.factory("a", nil, nil))},
		{"nil factory", Factories{}.Add("a", nil)},
		{"duplicate", Factories{}.Add("a", tr.factory("a", nil, nil)).Add("a", tr.factory("a", nil, nil))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Init(context.Background(), tt.factories)
			var cfgErr *fault.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
	assert.Empty(t, tr.created, "no factory runs on a configuration error")
}
