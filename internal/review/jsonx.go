package review

import (
	"regexp"
	"strings"
)

// Pre-compiled patterns; compiling per validation would dominate the
// cost of small payloads.
var (
	// Code fences with optional language tag and optional newlines.
	// Matches ```json\n{...}\n```, ```{...}``` and friends.
	fenceWholeRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	fenceAnyRegex   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRegex   = regexp.MustCompile(`(?m)//.*$`)
	blockCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// jsonCandidates returns payload candidates in decreasing order of
// trust. Reviewers are told to answer with raw JSON, but models still
// wrap payloads in code fences or surround them with narration, so each
// cleanup stage contributes a candidate and the caller tries them in
// order until one parses:
//
//  1. the trimmed response itself
//  2. the response with code fences stripped
//  3. the above with trailing commas and comments removed
//  4. the outermost {...} span found in the cleaned text
func jsonCandidates(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		for _, seen := range out {
			if seen == s {
				return
			}
		}
		out = append(out, s)
	}

	add(trimmed)
	unfenced := stripFences(trimmed)
	add(unfenced)
	cleaned := cleanupJSON(unfenced)
	add(cleaned)
	if match := objectRegex.FindString(cleaned); match != "" {
		add(match)
	}
	return out
}

// cleanupJSON fixes the malformations models actually produce: trailing
// commas before a closing brace or bracket, and // or /* */ comments.
// Single quotes are left alone; rewriting them would corrupt valid JSON
// containing apostrophes.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = lineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = blockCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func stripFences(text string) string {
	cleaned := fenceWholeRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		cleaned = fenceAnyRegex.ReplaceAllString(text, "$1")
	}
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.TrimPrefix(cleaned, "`")
		cleaned = strings.TrimSuffix(cleaned, "`")
	}
	return strings.TrimSpace(cleaned)
}
