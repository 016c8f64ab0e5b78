package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream failure")

func TestBuildSettings_Defaults(t *testing.T) {
	s := BuildSettings("model", 0, -1, 0, 0)

	assert.Equal(t, "model", s.Name)
	assert.Equal(t, time.Minute, s.Interval)
	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.Equal(t, uint32(5), s.FailureThreshold)
	assert.Equal(t, uint32(1), s.SuccessThreshold)
}

func TestBuildSettings_Explicit(t *testing.T) {
	s := BuildSettings("model", 10, 5, 3, 2)

	assert.Equal(t, 10*time.Second, s.Interval)
	assert.Equal(t, 5*time.Second, s.Timeout)
	assert.Equal(t, uint32(3), s.FailureThreshold)
	assert.Equal(t, uint32(2), s.SuccessThreshold)
}

func TestBreaker_PassesThroughResults(t *testing.T) {
	b := NewBreaker(BuildSettings("model", 60, 60, 3, 1), nil, nil)

	out, err := b.Execute(func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = b.Execute(func() (interface{}, error) {
		return nil, errDownstream
	})
	assert.ErrorIs(t, err, errDownstream)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []gobreaker.State
	observer := func(name string, from, to gobreaker.State) {
		assert.Equal(t, "model", name)
		transitions = append(transitions, to)
	}

	b := NewBreaker(BuildSettings("model", 60, 60, 2, 1), observer, nil)

	for i := 0; i < 2; i++ {
		_, err := b.Execute(func() (interface{}, error) {
			return nil, errDownstream
		})
		require.ErrorIs(t, err, errDownstream)
	}

	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	called := false
	_, err := b.Execute(func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "guarded function must not run while open")
}

func TestStateValue(t *testing.T) {
	assert.Equal(t, 0.0, StateValue(gobreaker.StateClosed))
	assert.Equal(t, 0.5, StateValue(gobreaker.StateHalfOpen))
	assert.Equal(t, 1.0, StateValue(gobreaker.StateOpen))
}
