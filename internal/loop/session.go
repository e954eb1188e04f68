package loop

import (
	"log/slog"
	"regexp"
	"strings"

	"draftloop/internal/document"
	"draftloop/internal/refstore"
	"draftloop/internal/review"
)

// Result is what a session terminates with. Document is the emitted
// draft: the accepted one, or the best-scoring draft when the session
// exhausted its budget or failed partway. It is nil only when the
// session failed before completing its first review.
type Result struct {
	State    State
	Document *document.Document
	Metadata Metadata
}

// Metadata is the record describing a finished session, shaped for JSON
// output alongside the emitted document.
type Metadata struct {
	Generator        string            `json:"generator"`
	Score            int               `json:"score"`
	Iterations       int               `json:"iterations"`
	Timestamp        string            `json:"timestamp"`
	Accepted         bool              `json:"accepted"`
	References       []Reference       `json:"references"`
	IterationDetails []IterationDetail `json:"iteration_details"`
}

// Reference identifies one knowledge base snippet that informed the
// session's prompts.
type Reference struct {
	SourceID string `json:"source_id"`
	Chunk    int    `json:"chunk"`
}

// IterationDetail records the review outcome of a single iteration.
type IterationDetail struct {
	Iteration           int               `json:"iteration"`
	Score               int               `json:"score"`
	Issues              []string          `json:"issues"`
	Suggestions         []string          `json:"suggestions"`
	ClarifyingQuestions []string          `json:"clarifying_questions"`
	ClarifyingAnswers   map[string]string `json:"clarifying_answers,omitempty"`
}

// session is the mutable state of one Run. The controller owns it for
// the duration of the call; nothing escapes except through Result.
type session struct {
	id   string
	refs []refstore.Snippet

	doc        *document.Document
	iteration  int
	lastReview *review.Result

	best      *document.Document
	bestScore int
	bestIter  int

	answers     map[string]string
	answerOrder []string

	details []IterationDetail
}

// recordBest keeps a clone of the current draft when its review score
// beats every earlier one. Ties keep the earlier draft.
func (s *session) recordBest(score int) {
	if s.best != nil && score <= s.bestScore {
		return
	}
	s.best = s.doc.Clone()
	s.bestScore = score
	s.bestIter = s.iteration
	slog.Debug("best draft updated", "session", s.id, "iteration", s.iteration, "score", score)
}

// filterAnswered drops clarifying questions that duplicate one already
// answered earlier in the session, so the same question is never posed
// twice.
func (s *session) filterAnswered(questions []string) []string {
	if len(questions) == 0 || len(s.answers) == 0 {
		return questions
	}
	var kept []string
	for _, q := range questions {
		answered := false
		for prev := range s.answers {
			if similarQuestions(q, prev) {
				answered = true
				break
			}
		}
		if answered {
			slog.Debug("dropping already answered clarifying question", "session", s.id, "question", truncate(q, 80))
			continue
		}
		kept = append(kept, q)
	}
	return kept
}

var (
	questionPunct      = regexp.MustCompile(`[^\w\s/]`)
	questionWhitespace = regexp.MustCompile(`\s+`)
)

// similarQuestions reports whether two questions ask the same thing:
// equal after normalization, or one contained in the other when both
// are long enough for containment to be meaningful.
func similarQuestions(a, b string) bool {
	na := normalizeQuestion(a)
	nb := normalizeQuestion(b)
	if na == nb {
		return true
	}
	if len(na) > 10 && len(nb) > 10 {
		return strings.Contains(na, nb) || strings.Contains(nb, na)
	}
	return false
}

func normalizeQuestion(q string) string {
	q = strings.ToLower(q)
	q = questionPunct.ReplaceAllString(q, "")
	q = questionWhitespace.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
