package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"draftloop/internal/document"
	"draftloop/internal/generator"
	"draftloop/internal/patch"
	"draftloop/internal/review"
)

// Controller binds a validated Config to a generator and an optional
// retriever. One Controller can run many sessions; each Run call is
// independent.
type Controller struct {
	gen       generator.Generator
	retriever Retriever
	cfg       Config
}

// NewController validates cfg and returns a Controller ready to run.
// Validation failures are reported before any generator call is made.
func NewController(gen generator.Generator, retriever Retriever, cfg Config) (*Controller, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: generator is required", ErrInvalidConfiguration)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{gen: gen, retriever: retriever, cfg: cfg}, nil
}

// Run executes one revision session to a terminal state:
//
//  1. Drafting: generate a full draft (the first from the idea alone,
//     later ones from the previous draft plus review feedback).
//  2. Reviewing: request a structured critique. An unusable payload gets
//     one corrective retry; a second failure forces a rewrite. A score
//     at or above the threshold accepts the draft.
//  3. Patching: apply the critique's edit operations. The batch lands
//     whole or not at all; a rejected batch forces a rewrite.
//  4. Rewriting: regenerate from scratch, carrying the critique forward.
//
// Safeguards:
//   - Every new draft version spends one unit of the iteration budget;
//     exceeding it ends the session in StateExhausted.
//   - The best-scoring draft is retained across iterations and is what
//     an exhausted or failed session emits.
//   - Cancellation is honored at every state transition and before
//     every generator call.
//
// The returned error is non-nil only for hard failures: invalid context,
// generator exhaustion (ErrGeneratorUnavailable) or cancellation. Even
// then the Result carries the best draft produced so far.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	s := &session{
		id:      uuid.New().String(),
		answers: make(map[string]string),
		details: make([]IterationDetail, 0, c.cfg.MaxIterations),
	}
	slog.Info("revision session starting",
		"session", s.id,
		"generator", c.gen.Name(),
		"max_iterations", c.cfg.MaxIterations,
		"accept_threshold", c.cfg.AcceptThreshold)

	if c.retriever != nil {
		refs, err := c.retriever.Retrieve(ctx, c.cfg.Idea, c.cfg.TopK)
		if err != nil {
			slog.Warn("reference retrieval failed, continuing without context", "session", s.id, "error", err)
		} else {
			s.refs = refs
			slog.Info("reference snippets retrieved", "session", s.id, "count", len(refs))
		}
	}

	state := StateDrafting
	var rewriteFeedback *review.Result

	for {
		if err := ctx.Err(); err != nil {
			return c.finish(s, StateFailed, false), fmt.Errorf("session canceled: %w", err)
		}

		switch state {
		case StateDrafting:
			s.iteration++
			if s.iteration > c.cfg.MaxIterations {
				slog.Info("iteration budget exhausted", "session", s.id, "max_iterations", c.cfg.MaxIterations)
				return c.finish(s, StateExhausted, false), nil
			}
			var system, user string
			if s.iteration == 1 {
				system, user = buildDraftPrompt(c.cfg, s.refs)
			} else {
				system, user = buildRewritePrompt(c.cfg, s.refs, s.doc.Render(), rewriteFeedback, s.answers, s.answerOrder)
			}
			slog.Info("generating draft", "session", s.id, "iteration", s.iteration)
			text, err := c.generate(ctx, s, system, user)
			if err != nil {
				return c.finish(s, StateFailed, false), err
			}
			s.doc = document.Parse(text)
			rewriteFeedback = nil
			state = StateReviewing

		case StateReviewing:
			rr, usable, err := c.review(ctx, s)
			if err != nil {
				return c.finish(s, StateFailed, false), err
			}
			if !usable {
				slog.Warn("review payload unusable after retry, forcing rewrite", "session", s.id, "iteration", s.iteration)
				rewriteFeedback = nil
				state = StateRewriting
				continue
			}
			if rr.Accept && rr.Score < c.cfg.AcceptThreshold {
				slog.Warn("reviewer accepted below threshold, demoting to revision",
					"session", s.id, "score", rr.Score, "threshold", c.cfg.AcceptThreshold)
				rr.Accept = false
			}
			s.lastReview = rr
			s.recordBest(rr.Score)

			accepting := rr.Accept || rr.Score >= c.cfg.AcceptThreshold
			rr.ClarifyingQuestions = s.filterAnswered(rr.ClarifyingQuestions)
			var answered map[string]string
			if !accepting {
				answered = c.askClarifying(ctx, s, rr.ClarifyingQuestions)
			}
			s.details = append(s.details, IterationDetail{
				Iteration:           s.iteration,
				Score:               rr.Score,
				Issues:              rr.Issues,
				Suggestions:         rr.Suggestions,
				ClarifyingQuestions: rr.ClarifyingQuestions,
				ClarifyingAnswers:   answered,
			})
			if c.cfg.Observer != nil {
				c.cfg.Observer(s.iteration, rr.Score, s.doc.Render())
			}
			slog.Info("review completed",
				"session", s.id,
				"iteration", s.iteration,
				"score", rr.Score,
				"accept", accepting,
				"major_rewrite", rr.MajorRewrite,
				"changes", len(rr.Changes))

			switch {
			case accepting:
				return c.finish(s, StateAccepted, true), nil
			case rr.MajorRewrite:
				rewriteFeedback = rr
				state = StateRewriting
			default:
				rewriteFeedback = rr
				state = StatePatching
			}

		case StatePatching:
			applied, perr := patch.Apply(s.doc, s.lastReview.Changes)
			if perr != nil {
				slog.Warn("patch batch rejected, forcing rewrite",
					"session", s.id,
					"iteration", s.iteration,
					"op_index", perr.Index,
					"kind", perr.Kind,
					"detail", perr.Detail)
				state = StateRewriting
				continue
			}
			s.doc = applied
			s.iteration++
			if s.iteration > c.cfg.MaxIterations {
				slog.Info("iteration budget exhausted after patch", "session", s.id, "max_iterations", c.cfg.MaxIterations)
				return c.finish(s, StateExhausted, false), nil
			}
			slog.Info("patch batch applied", "session", s.id, "iteration", s.iteration, "operations", len(s.lastReview.Changes))
			state = StateReviewing

		case StateRewriting:
			// The next Drafting entry spends the iteration.
			slog.Info("rewriting from scratch", "session", s.id)
			state = StateDrafting
		}
	}
}

// generate wraps a single generator call with the session's bounded
// rate-limit policy. Rate-limited calls wait and retry up to
// RateLimitRetries times; any other failure, or retry exhaustion, is
// reported as ErrGeneratorUnavailable. Cancellation is never folded
// into the unavailability error.
func (c *Controller) generate(ctx context.Context, s *session, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.RateLimitRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("session canceled: %w", err)
		}
		text, err := c.gen.Generate(ctx, systemPrompt, userPrompt, c.cfg.Temperature, c.cfg.MaxTokens)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", fmt.Errorf("session canceled: %w", ctx.Err())
		}
		if !errors.Is(err, generator.ErrRateLimited) {
			break
		}
		if attempt == c.cfg.RateLimitRetries {
			break
		}
		slog.Warn("generator rate limited, waiting",
			"session", s.id,
			"attempt", attempt+1,
			"wait", c.cfg.RateLimitWait)
		select {
		case <-time.After(c.cfg.RateLimitWait):
		case <-ctx.Done():
			return "", fmt.Errorf("session canceled: %w", ctx.Err())
		}
	}
	return "", fmt.Errorf("%w: %w", ErrGeneratorUnavailable, lastErr)
}

// review requests a critique of the current draft and validates it. An
// invalid payload gets exactly one corrective retry that names the
// violation; usable is false when both attempts fail validation.
func (c *Controller) review(ctx context.Context, s *session) (rr *review.Result, usable bool, err error) {
	systemPrompt, userPrompt := buildReviewPrompt(c.cfg, s.refs, s.doc.Render(), s.answers, s.answerOrder)
	slog.Info("requesting review", "session", s.id, "iteration", s.iteration)
	raw, err := c.generate(ctx, s, systemPrompt, userPrompt)
	if err != nil {
		return nil, false, err
	}
	rr, violation := review.Validate(raw)
	if violation == nil {
		return rr, true, nil
	}
	slog.Warn("review payload rejected, requesting correction",
		"session", s.id, "iteration", s.iteration, "violation", violation.Description)
	raw, err = c.generate(ctx, s, systemPrompt, buildCorrectiveReviewPrompt(userPrompt, violation))
	if err != nil {
		return nil, false, err
	}
	rr, violation = review.Validate(raw)
	if violation == nil {
		return rr, true, nil
	}
	slog.Warn("corrected review payload still invalid",
		"session", s.id, "iteration", s.iteration, "violation", violation.Description)
	return nil, false, nil
}

// askClarifying resolves the reviewer's open questions through the
// configured channel and records the answers for later prompts. A
// failed or empty answer drops the question without failing the
// session.
func (c *Controller) askClarifying(ctx context.Context, s *session, questions []string) map[string]string {
	if len(questions) == 0 {
		return nil
	}
	if !c.cfg.AutoAnswer && c.cfg.Answerer == nil {
		return nil
	}
	answered := make(map[string]string)
	for _, q := range questions {
		var (
			answer string
			err    error
		)
		if c.cfg.AutoAnswer {
			answer, err = c.autoAnswer(ctx, s, q)
		} else {
			answer, err = c.cfg.Answerer.Answer(ctx, q)
		}
		if err != nil {
			slog.Warn("clarifying question left unanswered", "session", s.id, "question", truncate(q, 80), "error", err)
			continue
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			continue
		}
		answered[q] = answer
		s.answers[q] = answer
		s.answerOrder = append(s.answerOrder, q)
	}
	if len(answered) == 0 {
		return nil
	}
	return answered
}

// autoAnswer has the generator answer its own reviewer's question, with
// the same context the writer prompt carries.
func (c *Controller) autoAnswer(ctx context.Context, s *session, question string) (string, error) {
	systemPrompt, userPrompt := buildAnswerPrompt(c.cfg, s.refs, s.doc.Render(), question)
	return c.generate(ctx, s, systemPrompt, userPrompt)
}

// finish assembles the terminal Result. Accepted sessions emit the
// accepting draft, which by construction is also the best-scoring one;
// every other terminal state emits the best draft seen so far.
func (c *Controller) finish(s *session, state State, accepted bool) *Result {
	meta := Metadata{
		Generator:        c.gen.Name(),
		Score:            s.bestScore,
		Iterations:       len(s.details),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		Accepted:         accepted,
		References:       make([]Reference, 0, len(s.refs)),
		IterationDetails: s.details,
	}
	for _, ref := range s.refs {
		meta.References = append(meta.References, Reference{SourceID: ref.SourceID, Chunk: ref.ChunkIndex})
	}
	slog.Info("revision session finished",
		"session", s.id,
		"state", state.String(),
		"score", meta.Score,
		"best_iteration", s.bestIter,
		"iterations", meta.Iterations,
		"accepted", accepted)
	return &Result{State: state, Document: s.best, Metadata: meta}
}
