package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Caller wraps a backend with retry, circuit breaking, rate limiting and
// a concurrency cap. It satisfies Generator, so the revision loop uses a
// wrapped backend transparently. Concurrent sessions share one Caller;
// the breaker, limiter and semaphore are the only state they share.
type Caller struct {
	gen     Generator
	retry   RetryConfig
	breaker *CircuitBreaker
	limiter *Limiter
	sem     *semaphore.Weighted
}

// NewCaller wraps gen with the given retry policy. A zero cfg is replaced
// with DefaultRetryConfig. limiter may be nil to disable rate limiting.
func NewCaller(gen Generator, cfg RetryConfig, limiter *Limiter) *Caller {
	if cfg.MaxRetries == 0 {
		cfg = DefaultRetryConfig()
	}

	c := &Caller{gen: gen, retry: cfg, limiter: limiter}
	if cfg.CircuitBreakerEnabled {
		c.breaker = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout)
	}
	if cfg.MaxConcurrentCalls > 0 {
		c.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}
	return c
}

// Name returns the wrapped backend's name.
func (c *Caller) Name() string { return c.gen.Name() }

// Breaker exposes the circuit breaker for health checks. May be nil.
func (c *Caller) Breaker() *CircuitBreaker { return c.breaker }

// Generate invokes the backend with retries and exponential backoff.
// Retriable failures are retried up to MaxRetries times; non-retriable
// failures and rate-limit timeouts (ErrRateLimited) return immediately so
// the caller can apply its own policy.
func (c *Caller) Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("acquire generator slot: %w", err)
		}
		defer c.sem.Release(1)
	}

	var lastErr error
	backoff := c.retry.InitialBackoff

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		// Check circuit breaker before attempting the request
		if c.breaker != nil {
			if err := c.breaker.Allow(); err != nil {
				state, failures, _ := c.breaker.GetMetrics()
				slog.Warn("generator call blocked by circuit breaker",
					"generator", c.gen.Name(), "state", state.String(), "failures", failures)
				return "", fmt.Errorf("generator call failed: %w", err)
			}
		}

		// A token from the shared bucket is needed for every attempt
		if err := c.limiter.Acquire(ctx); err != nil {
			return "", err
		}

		attemptCtx := ctx
		var cancel context.CancelFunc = func() {}
		if c.retry.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.retry.Timeout)
		}
		text, err := c.gen.Generate(attemptCtx, systemPrompt, userPrompt, temperature, maxTokens)
		cancel()

		if err == nil {
			if c.breaker != nil {
				c.breaker.RecordSuccess()
			}
			if attempt > 0 {
				slog.Debug("generator call recovered", "generator", c.gen.Name(), "retries", attempt)
			}
			return text, nil
		}

		lastErr = err

		// Non-retriable errors (like auth failures) shouldn't count
		// against the circuit breaker
		if c.breaker != nil && Retriable(err) {
			c.breaker.RecordFailure()
		}

		if !Retriable(err) {
			slog.Warn("generator call failed with non-retriable error",
				"generator", c.gen.Name(), "error", err)
			return "", err
		}

		if attempt == c.retry.MaxRetries {
			break
		}

		if ctx.Err() != nil {
			return "", fmt.Errorf("generator call canceled: %w", ctx.Err())
		}

		slog.Debug("generator call failed, retrying",
			"generator", c.gen.Name(),
			"attempt", attempt+1, "max_attempts", c.retry.MaxRetries+1,
			"backoff", backoff, "error", err)

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiplier)
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		case <-ctx.Done():
			return "", fmt.Errorf("generator call canceled during backoff: %w", ctx.Err())
		}
	}

	return "", fmt.Errorf("generator call failed after %d attempts: %w", c.retry.MaxRetries+1, lastErr)
}
