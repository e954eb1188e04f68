// Package generator abstracts the model backends that produce draft and
// review text.
//
// A Generator turns a system/user prompt pair into completion text. Two
// backends are provided, Anthropic (default) and OpenAI, selected by name
// through New. Sessions should not call a backend directly: Caller wraps
// one with retries, a circuit breaker, a shared rate limiter and a
// concurrency cap, so transient provider failures are absorbed before
// they reach the revision loop. Caller itself satisfies Generator, which
// keeps the wrapping invisible to consumers.
//
// Example usage:
//
//	gen, err := generator.New("anthropic", "")
//	if err != nil {
//		return err
//	}
//	limiter := generator.NewLimiter(30, 10*time.Second)
//	caller := generator.NewCaller(gen, generator.DefaultRetryConfig(), limiter)
//	text, err := caller.Generate(ctx, systemPrompt, userPrompt, 0.7, 4096)
package generator

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces completion text from a prompt pair.
//
// Implementations wrap backend failures in *ProviderError so callers can
// tell transient faults (rate limits, server errors, timeouts) apart from
// permanent ones (bad requests, auth failures).
type Generator interface {
	// Name identifies the backend ("anthropic", "openai") for logs and
	// run metadata.
	Name() string

	// Generate produces completion text for the given prompts.
	// A negative temperature means use the provider default.
	Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

// ProviderError wraps a backend failure with enough context to decide
// whether retrying can help.
type ProviderError struct {
	Provider   string // backend name
	StatusCode int    // HTTP status, 0 when the failure never reached the API
	Retriable  bool   // rate limits, server errors, timeouts, connection resets
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s generator: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s generator: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// New constructs a backend by name. An empty name selects Anthropic.
// model overrides the backend's default model when non-empty. API keys
// come from the environment (ANTHROPIC_API_KEY, OPENAI_API_KEY).
func New(name, model string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "anthropic":
		return NewAnthropic(model)
	case "openai":
		return NewOpenAI(model)
	default:
		return nil, fmt.Errorf("unknown generator %q (supported: anthropic, openai)", name)
	}
}
