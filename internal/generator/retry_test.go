package generator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRetriableClassification tests transient vs permanent error detection
func TestRetriableClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		shouldRetry bool
	}{
		{
			name:        "nil error",
			err:         nil,
			shouldRetry: false,
		},
		{
			name:        "provider error marked retriable",
			err:         &ProviderError{Provider: "anthropic", StatusCode: 529, Retriable: true, Err: errors.New("overloaded")},
			shouldRetry: true,
		},
		{
			name:        "provider error marked permanent",
			err:         &ProviderError{Provider: "anthropic", StatusCode: 401, Retriable: false, Err: errors.New("unauthorized")},
			shouldRetry: false,
		},
		{
			name:        "wrapped provider error keeps its classification",
			err:         fmt.Errorf("generator call failed after 4 attempts: %w", &ProviderError{Provider: "openai", Retriable: true, Err: errors.New("reset")}),
			shouldRetry: true,
		},
		{
			name:        "deadline exceeded",
			err:         context.DeadlineExceeded,
			shouldRetry: true,
		},
		{
			name:        "rate limit by message",
			err:         errors.New("429 rate limit exceeded"),
			shouldRetry: true,
		},
		{
			name:        "server error by message",
			err:         errors.New("500 internal server error"),
			shouldRetry: true,
		},
		{
			name:        "connection reset by message",
			err:         errors.New("read tcp: connection reset by peer"),
			shouldRetry: true,
		},
		{
			name:        "auth error not retried",
			err:         errors.New("401 unauthorized"),
			shouldRetry: false,
		},
		{
			name:        "bad request not retried",
			err:         errors.New("400 bad request"),
			shouldRetry: false,
		},
		{
			name:        "unknown error not retried",
			err:         errors.New("mysterious failure"),
			shouldRetry: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldRetry, Retriable(tt.err))
		})
	}
}

// TestRetriableStatus tests HTTP status classification
func TestRetriableStatus(t *testing.T) {
	tests := []struct {
		code        int
		shouldRetry bool
	}{
		{408, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{529, true},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{422, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.shouldRetry, retriableStatus(tt.code))
		})
	}
}

// TestCircuitBreakerOpensAtThreshold tests that repeated failures trip the circuit
func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.GetState(), "circuit should stay closed below threshold")
	assert.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState(), "circuit should open at threshold")
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

// TestCircuitBreakerSuccessResetsFailures tests that a success clears the failure count
func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 2, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	state, failures, _ := cb.GetMetrics()
	assert.Equal(t, CircuitClosed, state)
	assert.Equal(t, 2, failures)
}

// TestCircuitBreakerRecovery tests the open -> half-open -> closed path
func TestCircuitBreakerRecovery(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 5*time.Millisecond)

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	// After the open timeout the next request probes in half-open
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.GetState(), "needs two successes to close")
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState())
}

// TestCircuitBreakerReopensOnHalfOpenFailure tests that a failed probe reopens the circuit
func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(1, 2, 5*time.Millisecond)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())
}

// TestCircuitStateStringer tests the state names used in logs
func TestCircuitStateStringer(t *testing.T) {
	assert.Equal(t, "CLOSED", CircuitClosed.String())
	assert.Equal(t, "OPEN", CircuitOpen.String())
	assert.Equal(t, "HALF_OPEN", CircuitHalfOpen.String())
	assert.Equal(t, "UNKNOWN", CircuitState(42).String())
}
