package errors

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker that trips after two failures
	cb := NewCircuitBreaker("search", WithMaxFailures(2), WithResetTimeout(time.Hour))
	boom := stderrors.New("boom")

	// When: two calls fail
	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })

	// Then: the next call fails fast without running
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	// Given: an open breaker whose reset timeout has passed
	now := time.Now()
	cb := NewCircuitBreaker("search", WithMaxFailures(1), WithResetTimeout(time.Second))
	cb.now = func() time.Time { return now }
	_ = cb.Execute(func() error { return stderrors.New("boom") })
	now = now.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	// When: the probe succeeds
	got, err := CircuitExecute(cb, func() (int, error) { return 42, nil })

	// Then: the circuit closes
	assert.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("search", WithMaxFailures(3), WithResetTimeout(time.Second))
	cb.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return stderrors.New("boom") })
	}
	now = now.Add(2 * time.Second)

	err := cb.Execute(func() error { return stderrors.New("still down") })

	assert.EqualError(t, err, "still down")
	assert.Equal(t, StateOpen, cb.State())
}
