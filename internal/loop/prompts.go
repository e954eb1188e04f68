package loop

import (
	"fmt"
	"strings"

	"draftloop/internal/refstore"
	"draftloop/internal/review"
)

// Prompt construction for the three generator roles. The reviewer
// contract (field names, operation shapes, fence prohibition) must stay
// in lockstep with the review and patch packages; the validator rejects
// anything the prompt does not promise.

const (
	writerSystemPrompt   = "You are a writer producing comprehensive, well-structured markdown documents."
	reviewerSystemPrompt = "You are a meticulous reviewer evaluating a draft document. You respond only with structured JSON."
	answererSystemPrompt = "You are the writer of a draft document, answering a reviewer's clarifying question about it."

	writerRefLimit   = 5
	writerRefChars   = 500
	reviewerRefLimit = 3
	reviewerRefChars = 300
)

// buildDraftPrompt produces the first-iteration writer prompt.
func buildDraftPrompt(cfg Config, refs []refstore.Snippet) (systemPrompt, userPrompt string) {
	var b strings.Builder
	if g := strings.TrimSpace(cfg.WriterGuidelines); g != "" {
		fmt.Fprintf(&b, "WRITER GUIDELINES:\n%s\n\n", g)
	}
	b.WriteString("TASK:\nCreate a comprehensive, well-organized document for the following idea.\n\n")
	fmt.Fprintf(&b, "IDEA: %s\n\n", strings.TrimSpace(cfg.Idea))
	if p := strings.TrimSpace(cfg.StartingDocument); p != "" {
		fmt.Fprintf(&b, "PARTIAL DOCUMENT (continue from this, keeping what already works):\n%s\n\n", p)
	}
	fmt.Fprintf(&b, "RELEVANT KNOWLEDGE BASE REFERENCES:\n%s\n", formatWriterReferences(refs))
	b.WriteString("\nGenerate the complete document in markdown format. Output only the document itself, with no surrounding commentary and no code fences around the whole document.")
	return writerSystemPrompt, b.String()
}

// buildRewritePrompt produces the writer prompt for a full regeneration,
// folding in the critique that triggered it. feedback is nil when the
// rewrite was forced by an unusable review payload.
func buildRewritePrompt(cfg Config, refs []refstore.Snippet, currentDraft string, feedback *review.Result, answers map[string]string, answerOrder []string) (systemPrompt, userPrompt string) {
	var b strings.Builder
	if g := strings.TrimSpace(cfg.WriterGuidelines); g != "" {
		fmt.Fprintf(&b, "WRITER GUIDELINES:\n%s\n\n", g)
	}
	b.WriteString("TASK:\nThe previous draft needs a major rewrite. Produce a complete revised document that resolves the review feedback while keeping the material that already works.\n\n")
	fmt.Fprintf(&b, "ORIGINAL IDEA: %s\n\n", strings.TrimSpace(cfg.Idea))
	if p := strings.TrimSpace(cfg.StartingDocument); p != "" {
		fmt.Fprintf(&b, "PARTIAL DOCUMENT (the revision must still cover this):\n%s\n\n", p)
	}
	fmt.Fprintf(&b, "PREVIOUS DRAFT:\n%s\n\n", currentDraft)
	if feedback != nil {
		b.WriteString("REVIEW FEEDBACK:\n")
		if len(feedback.Issues) > 0 {
			b.WriteString("ISSUES FOUND:\n")
			for _, issue := range feedback.Issues {
				fmt.Fprintf(&b, "- %s\n", issue)
			}
			b.WriteString("\n")
		}
		if len(feedback.Suggestions) > 0 {
			b.WriteString("SUGGESTIONS:\n")
			for _, sug := range feedback.Suggestions {
				fmt.Fprintf(&b, "- %s\n", sug)
			}
			b.WriteString("\n")
		}
	}
	if len(answerOrder) > 0 {
		b.WriteString("CLARIFYING ANSWERS (honor these in the revision):\n")
		for _, q := range answerOrder {
			fmt.Fprintf(&b, "- %s: %s\n", q, answers[q])
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "RELEVANT KNOWLEDGE BASE REFERENCES:\n%s\n", formatWriterReferences(refs))
	b.WriteString("\nGenerate the complete revised document in markdown format. Output only the document itself, with no surrounding commentary and no code fences around the whole document.")
	return writerSystemPrompt, b.String()
}

// buildReviewPrompt produces the reviewer prompt, including the response
// contract the validator enforces.
func buildReviewPrompt(cfg Config, refs []refstore.Snippet, draft string, answers map[string]string, answerOrder []string) (systemPrompt, userPrompt string) {
	var b strings.Builder
	if g := strings.TrimSpace(cfg.ReviewerGuidelines); g != "" {
		fmt.Fprintf(&b, "REVIEWER GUIDELINES:\n%s\n\n", g)
	}
	fmt.Fprintf(&b, "ORIGINAL IDEA: %s\n\n", strings.TrimSpace(cfg.Idea))
	fmt.Fprintf(&b, "DOCUMENT DRAFT TO REVIEW:\n%s\n\n", draft)
	if len(refs) > 0 {
		fmt.Fprintf(&b, "KNOWLEDGE BASE REFERENCES USED IN DRAFTING:\n%s\n", formatReviewerReferences(refs))
	}
	if len(answerOrder) > 0 {
		b.WriteString("PREVIOUSLY ANSWERED CLARIFYING QUESTIONS:\n")
		for _, q := range answerOrder {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", q, answers[q])
		}
		b.WriteString("Do not ask these questions again.\n\n")
	}
	b.WriteString(`IMPORTANT NOTES FOR REVIEW:
- Judge whether the document covers the idea completely and accurately.
- Check structure: logical section order, no redundancy, no gaps.
- Check consistency with the knowledge base references when present.
- Score the overall quality from 0 to 100.

RESPONSE FORMAT (a single JSON object with exactly these fields):
{
  "accept": true or false,
  "score": <integer 0-100>,
  "major_rewrite": true or false,
  "issues": ["<specific problem>", ...],
  "suggestions": ["<specific improvement>", ...],
  "changes": [<operation object>, ...],
  "clarifying_questions": ["<question for the author>", ...]
}

Each operation object is {"operation": "<name>", "params": {...}} with one of:
- {"operation": "replace", "params": {"old_text": "<exact current text>", "new_text": "<replacement>", "section": "<heading, optional>"}}
- {"operation": "insert_before", "params": {"anchor": "<exact current text>", "content": "<new text>"}}
- {"operation": "insert_after", "params": {"anchor": "<exact current text>", "content": "<new text>"}}
- {"operation": "append", "params": {"section": "<heading>", "content": "<text to add at section end>"}}
- {"operation": "add_section", "params": {"heading": "<new heading>", "content": "<section body>", "after_section": "<heading, optional>"}}

RULES:
`)
	fmt.Fprintf(&b, "- Set accept=true ONLY if score >= %d and there are no major issues.\n", cfg.AcceptThreshold)
	b.WriteString(`- Set major_rewrite=true if score < 70 or the document requires complete restructuring.
- Prefer changes over major_rewrite for targeted fixes when score >= 70.
- Anchors and old_text must quote the draft exactly and uniquely; quote enough surrounding text to be unambiguous.
- Be specific and actionable in issues and suggestions.

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap in markdown code fences.`)
	return reviewerSystemPrompt, b.String()
}

// buildCorrectiveReviewPrompt wraps the original review request with the
// validator's complaint for the single retry the controller allows.
func buildCorrectiveReviewPrompt(userPrompt string, violation *review.SchemaViolation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your previous response was not a valid review payload: %s\n\n", violation.Description)
	b.WriteString("Answer the review request below again, following the response format exactly.\n\n")
	b.WriteString(userPrompt)
	return b.String()
}

// buildAnswerPrompt produces the prompt for answering a reviewer's
// clarifying question on the writer's behalf.
func buildAnswerPrompt(cfg Config, refs []refstore.Snippet, draft string, question string) (systemPrompt, userPrompt string) {
	var b strings.Builder
	fmt.Fprintf(&b, "ORIGINAL IDEA: %s\n\n", strings.TrimSpace(cfg.Idea))
	if g := strings.TrimSpace(cfg.WriterGuidelines); g != "" {
		fmt.Fprintf(&b, "WRITER GUIDELINES:\n%s\n\n", g)
	}
	fmt.Fprintf(&b, "CURRENT DRAFT:\n%s\n\n", draft)
	fmt.Fprintf(&b, "RELEVANT KNOWLEDGE BASE REFERENCES:\n%s\n", formatWriterReferences(refs))
	fmt.Fprintf(&b, "\nQUESTION: %s\n\n", question)
	b.WriteString("Provide a concise, direct answer (2-4 sentences) that lets the reviewer finalize the document. Answer with the decision itself, not with options.")
	return answererSystemPrompt, b.String()
}

func formatWriterReferences(refs []refstore.Snippet) string {
	return formatReferences(refs, writerRefLimit, writerRefChars)
}

func formatReviewerReferences(refs []refstore.Snippet) string {
	return formatReferences(refs, reviewerRefLimit, reviewerRefChars)
}

func formatReferences(refs []refstore.Snippet, limit, chars int) string {
	if len(refs) == 0 {
		return "No specific references available.\n"
	}
	var b strings.Builder
	for i, ref := range refs {
		if i == limit {
			break
		}
		fmt.Fprintf(&b, "%d. From %s (chunk %d):\n%s\n\n", i+1, ref.SourceID, ref.ChunkIndex, truncate(ref.Text, chars))
	}
	return b.String()
}
