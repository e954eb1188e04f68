package generator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestLimiterBurstCapacity tests that a full bucket admits exactly its capacity
func TestLimiterBurstCapacity(t *testing.T) {
	l := NewLimiter(3, 5*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Acquire(ctx), "token %d should be granted from the initial burst", i)
	}

	// Bucket is empty and refills at one token per 20s, far beyond the
	// wait window
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, ErrRateLimited)
}

// TestLimiterNilAdmitsAll tests that a disabled limiter never blocks
func TestLimiterNilAdmitsAll(t *testing.T) {
	var l *Limiter
	for i := 0; i < 10; i++ {
		assert.NoError(t, l.Acquire(context.Background()))
	}
	assert.Nil(t, NewLimiter(0, time.Second))
}

// TestLimiterContextCancellation tests that caller cancellation is not reported as rate limiting
func TestLimiterContextCancellation(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	assert.NoError(t, l.Acquire(ctx))

	cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

// TestLimiterConcurrentNeverBypassed tests that concurrent callers cannot
// exceed the bucket capacity
func TestLimiterConcurrentNeverBypassed(t *testing.T) {
	l := NewLimiter(2, 5*time.Millisecond)

	var granted, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				limited.Add(1)
			} else {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), granted.Load(), "only the burst capacity may be granted")
	assert.Equal(t, int32(4), limited.Load())
}
