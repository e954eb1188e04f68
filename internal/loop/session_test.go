package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"draftloop/internal/document"
)

func TestSimilarQuestions(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"identical", "What is the goal?", "What is the goal?", true},
		{"case and punctuation", "What is the goal?", "what is the goal", true},
		{"extra whitespace", "What  is   the goal?", "What is the goal?", true},
		{"containment long enough", "What is the deployment cadence for this service?", "the deployment cadence", true},
		{"containment reversed", "the deployment cadence", "What is the deployment cadence for this service?", true},
		{"short strings never contained", "why", "why not now", false},
		{"unrelated", "What is the audience?", "When does the report run?", false},
		{"apostrophes ignored", "What's the plan?", "Whats the plan", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, similarQuestions(tt.a, tt.b))
		})
	}
}

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t, "whats the plan", normalizeQuestion("What's  the   plan?!"))
	assert.Equal(t, "a/b testing", normalizeQuestion("A/B testing?"))
	assert.Equal(t, "", normalizeQuestion("  ?! "))
}

func TestFilterAnswered(t *testing.T) {
	s := &session{answers: map[string]string{
		"What is the target audience?": "Platform engineers.",
	}}
	kept := s.filterAnswered([]string{
		"what is the target audience",
		"How is the rollout staged?",
	})
	assert.Equal(t, []string{"How is the rollout staged?"}, kept)

	// No recorded answers passes everything through.
	empty := &session{answers: map[string]string{}}
	qs := []string{"Anything?"}
	assert.Equal(t, qs, empty.filterAnswered(qs))
}

func TestRecordBestKeepsEarliestOnTie(t *testing.T) {
	s := &session{doc: document.Parse("# A\n\nfirst.\n"), iteration: 1}
	s.recordBest(50)

	s.doc = document.Parse("# A\n\nsecond.\n")
	s.iteration = 2
	s.recordBest(50)
	assert.Contains(t, s.best.Render(), "first.")
	assert.Equal(t, 1, s.bestIter)

	s.recordBest(60)
	assert.Contains(t, s.best.Render(), "second.")
	assert.Equal(t, 60, s.bestScore)
	assert.Equal(t, 2, s.bestIter)
}

func TestRecordBestClonesDraft(t *testing.T) {
	s := &session{doc: document.Parse("# A\n\noriginal.\n"), iteration: 1}
	s.recordBest(80)

	// Later mutation of the live draft must not reach the stored best.
	s.doc.Sections[0].Body = "mutated."
	assert.Contains(t, s.best.Render(), "original.")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly ten", truncate("exactly ten", 11))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
