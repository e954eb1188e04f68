// Package loop drives the draft/review/patch convergence cycle that
// turns an idea into an accepted document.
//
// A Controller owns one session: it asks the Generator for a draft,
// requests a structured review of it, and then either accepts, applies
// the review's patch operations, or regenerates from scratch, until the
// review score crosses the acceptance threshold or the iteration budget
// runs out. Recoverable faults (malformed review payloads, failing patch
// batches) become rewrites rather than errors; only invalid
// configuration, generator unavailability and cancellation surface to
// the caller. The best-scoring draft seen so far is always retained, so
// an exhausted or canceled session still yields the strongest document
// it produced.
//
// Example usage:
//
//	ctrl, err := loop.NewController(caller, store, loop.Config{
//		Idea:            "operations runbook for the billing service",
//		AcceptThreshold: 90,
//		MaxIterations:   5,
//	})
//	if err != nil {
//		return err
//	}
//	result, err := ctrl.Run(ctx)
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"draftloop/internal/refstore"
)

// State identifies a phase of the revision cycle.
type State int

const (
	StateDrafting  State = iota // generating a full draft
	StateReviewing              // requesting and validating a critique
	StatePatching               // applying the critique's edit operations
	StateRewriting              // discarding the draft for a full regeneration
	StateAccepted               // terminal: review crossed the threshold
	StateExhausted              // terminal: iteration budget spent
	StateFailed                 // terminal: hard failure or cancellation
)

func (s State) String() string {
	switch s {
	case StateDrafting:
		return "drafting"
	case StateReviewing:
		return "reviewing"
	case StatePatching:
		return "patching"
	case StateRewriting:
		return "rewriting"
	case StateAccepted:
		return "accepted"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a session.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateExhausted || s == StateFailed
}

// ErrInvalidConfiguration is returned before any generator call when the
// session cannot possibly run.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrGeneratorUnavailable is returned when the generator fails past its
// retry budget. The session's Result still carries the best draft.
var ErrGeneratorUnavailable = errors.New("generator unavailable")

// Retriever supplies reference snippets folded into prompts. Implemented
// by refstore.Store; a nil Retriever disables reference context.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]refstore.Snippet, error)
}

// Answerer resolves the reviewer's clarifying questions, for example by
// prompting the user. A nil Answerer leaves questions unanswered.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Config controls one revision session.
type Config struct {
	// Idea is the topic the document must cover. Required.
	Idea string

	// StartingDocument seeds the first draft prompt with partial content
	// to continue from. Optional.
	StartingDocument string

	// WriterGuidelines and ReviewerGuidelines are folded verbatim into
	// the writer and reviewer prompts. Never parsed.
	WriterGuidelines   string
	ReviewerGuidelines string

	// AcceptThreshold is the minimum review score for acceptance.
	// Range: 0-100. DefaultConfig sets 90.
	AcceptThreshold int

	// MaxIterations bounds how many draft versions the session may
	// produce. Must be at least 1. DefaultConfig sets 3.
	MaxIterations int

	// Temperature is passed through to the generator. DefaultConfig
	// sets 0.7.
	Temperature float64

	// MaxTokens caps each generator response. Default: 4096.
	MaxTokens int

	// TopK is how many reference snippets to retrieve. Default: 5.
	TopK int

	// RateLimitRetries and RateLimitWait bound how often a rate-limited
	// generator call is re-attempted before the session gives up.
	// Defaults: 3 and 2s.
	RateLimitRetries int
	RateLimitWait    time.Duration

	// Observer, when set, is called after every completed review with
	// the iteration number, its score, and the current rendered draft.
	Observer func(iteration, score int, draft string)

	// Answerer resolves clarifying questions. Ignored when AutoAnswer
	// is set.
	Answerer Answerer

	// AutoAnswer makes the session answer clarifying questions itself
	// through the generator, for unattended runs.
	AutoAnswer bool
}

// DefaultConfig returns a Config with every tunable at its default.
// Idea must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		AcceptThreshold:  90,
		MaxIterations:    3,
		Temperature:      0.7,
		MaxTokens:        4096,
		TopK:             5,
		RateLimitRetries: 3,
		RateLimitWait:    2 * time.Second,
	}
}

// withDefaults fills the knobs whose zero value is never meaningful.
// AcceptThreshold and Temperature are left alone: zero is a valid
// setting for both.
func (c Config) withDefaults() Config {
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.RateLimitRetries == 0 {
		c.RateLimitRetries = 3
	}
	if c.RateLimitWait == 0 {
		c.RateLimitWait = 2 * time.Second
	}
	return c
}

// Validate checks the fatal preconditions. It runs before any generator
// call is made.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Idea) == "" {
		return fmt.Errorf("%w: idea must not be empty", ErrInvalidConfiguration)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations must be at least 1, got %d", ErrInvalidConfiguration, c.MaxIterations)
	}
	if c.AcceptThreshold < 0 || c.AcceptThreshold > 100 {
		return fmt.Errorf("%w: accept threshold must be within [0,100], got %d", ErrInvalidConfiguration, c.AcceptThreshold)
	}
	return nil
}
