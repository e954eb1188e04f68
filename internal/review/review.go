// Package review turns raw critique payloads from a generator into
// well-typed review results. Validation is strict and all-or-nothing: a
// payload with a missing field, a non-integer score, or a single
// unrecognized change entry fails as a whole. Silently dropping the bad
// parts would let a patch batch apply only a fraction of the critique
// the reviewer actually issued.
//
// The failure type carries a description written for the follow-up
// prompt that asks the reviewer to correct its output.
package review

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"draftloop/internal/patch"
)

// Result is a validated reviewer critique.
type Result struct {
	// Accept reports whether the reviewer considers the draft done.
	Accept bool

	// Score is the reviewer's quality grade, 0-100.
	Score int

	// MajorRewrite requests a full regeneration; when set, Changes is
	// ignored by the controller even if non-empty.
	MajorRewrite bool

	Issues      []string
	Suggestions []string

	// Changes is the ordered patch batch to apply when neither Accept
	// nor MajorRewrite is set.
	Changes []patch.Operation

	// ClarifyingQuestions are open questions for the author; answers
	// are folded into subsequent prompts.
	ClarifyingQuestions []string
}

// SchemaViolation describes why a payload failed validation. The
// Description is written to be embedded in a corrective prompt.
type SchemaViolation struct {
	Description string
}

func (v *SchemaViolation) Error() string {
	return "review schema violation: " + v.Description
}

var requiredFields = []string{
	"accept",
	"score",
	"major_rewrite",
	"issues",
	"suggestions",
	"changes",
	"clarifying_questions",
}

// Validate parses and validates a raw critique payload. It tolerates
// cosmetic damage (code fences, narration around the object, trailing
// commas) but nothing structural: every required field must be present
// and well-typed, score must be an integer in [0,100], and every entry
// of changes must decode to a known patch operation shape.
func Validate(raw string) (*Result, *SchemaViolation) {
	fields, sv := parseObject(raw)
	if sv != nil {
		return nil, sv
	}

	var problems []string
	missing := missingFields(fields)
	if len(missing) > 0 {
		problems = append(problems, "missing required fields: "+strings.Join(missing, ", "))
	}

	res := &Result{}

	if rawv, ok := fields["accept"]; ok {
		if err := json.Unmarshal(rawv, &res.Accept); err != nil {
			problems = append(problems, "accept must be a boolean")
		}
	}
	if rawv, ok := fields["major_rewrite"]; ok {
		if err := json.Unmarshal(rawv, &res.MajorRewrite); err != nil {
			problems = append(problems, "major_rewrite must be a boolean")
		}
	}
	if rawv, ok := fields["score"]; ok {
		score, err := parseScore(rawv)
		if err != "" {
			problems = append(problems, err)
		} else {
			res.Score = score
		}
	}

	res.Issues = parseStringList(fields, "issues", &problems)
	res.Suggestions = parseStringList(fields, "suggestions", &problems)
	res.ClarifyingQuestions = parseStringList(fields, "clarifying_questions", &problems)

	if rawv, ok := fields["changes"]; ok {
		var entries []json.RawMessage
		if err := json.Unmarshal(rawv, &entries); err != nil {
			problems = append(problems, "changes must be an array of operation objects")
		} else {
			for i, entry := range entries {
				op, derr := patch.Decode(entry)
				if derr != nil {
					problems = append(problems, fmt.Sprintf("changes[%d] (%s): %s", i, derr.Op, derr.Detail))
					continue
				}
				res.Changes = append(res.Changes, op)
			}
		}
	}

	if len(problems) > 0 {
		slog.Debug("review payload failed validation",
			"problems", len(problems),
			"preview", preview(raw, 120))
		return nil, &SchemaViolation{Description: strings.Join(problems, "; ")}
	}
	return res, nil
}

// parseObject locates and decodes the top-level JSON object, trying
// each extraction candidate in order.
func parseObject(raw string) (map[string]json.RawMessage, *SchemaViolation) {
	cands := jsonCandidates(raw)
	if len(cands) == 0 {
		return nil, &SchemaViolation{Description: "response was empty; reply with the review JSON object only"}
	}
	for i, cand := range cands {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(cand), &fields); err == nil {
			if i > 0 {
				slog.Debug("review payload needed cleanup before parsing", "strategy", i)
			}
			return fields, nil
		}
	}
	return nil, &SchemaViolation{
		Description: "response does not contain a parseable JSON object; reply with the review JSON object only, no code fences or commentary",
	}
}

func missingFields(fields map[string]json.RawMessage) []string {
	var missing []string
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	return missing
}

// parseScore accepts JSON integers and whole-valued floats (models
// emit both 87 and 87.0); anything fractional or outside [0,100] is a
// violation, not a value to clamp. Quoted numbers are rejected before
// decoding: json.Number's string kind would otherwise accept "85".
func parseScore(rawv json.RawMessage) (int, string) {
	raw := bytes.TrimSpace(rawv)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, "score must be a number"
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, "score must be a number"
	}
	f, err := n.Float64()
	if err != nil {
		return 0, "score must be a number"
	}
	if f != math.Trunc(f) {
		return 0, fmt.Sprintf("score must be an integer, got %s", n.String())
	}
	score := int(f)
	if score < 0 || score > 100 {
		return 0, fmt.Sprintf("score must be between 0 and 100, got %d", score)
	}
	return score, ""
}

func parseStringList(fields map[string]json.RawMessage, name string, problems *[]string) []string {
	rawv, ok := fields[name]
	if !ok {
		return nil
	}
	var list []string
	if err := json.Unmarshal(rawv, &list); err != nil {
		*problems = append(*problems, name+" must be an array of strings")
		return nil
	}
	return list
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
