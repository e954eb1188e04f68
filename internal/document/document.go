// Package document provides the structured representation of a markdown
// draft under revision. A Document is a flat, ordered list of sections
// keyed by heading text; the patch engine edits sections in place and the
// loop controller re-renders the document between iterations.
//
// Parsing never fails: text without headings becomes a single unnamed
// section holding the whole body, so every generator response yields a
// usable Document. Heading detection walks the goldmark AST rather than
// scanning lines, so a "# " inside a fenced code block is body text, not
// a section boundary.
//
// Render is the inverse of Parse up to whitespace normalization:
// Render(Parse(x)) preserves headings, order, and body text, but trailing
// whitespace and blank-line runs are normalized.
package document

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is one heading-delimited region of a document. The unnamed
// preamble before the first heading is represented as a Section with
// Level 0 and an empty Heading.
type Section struct {
	// Heading is the heading text without the leading '#' markers.
	Heading string

	// Level is the heading level (1-6), or 0 for the unnamed preamble.
	Level int

	// Body is the section content below the heading line, with leading
	// blank lines and trailing whitespace trimmed.
	Body string
}

// Document is an ordered sequence of sections. Order is significant and
// heading text is expected to be unique within one revision; lookups
// return the first match when it is not.
type Document struct {
	Sections []Section
}

// Parse splits text into heading-delimited sections. It always returns a
// usable Document: input without headings becomes a single unnamed
// section containing the whole body.
func Parse(input string) *Document {
	input = strings.ReplaceAll(input, "\r\n", "\n")
	src := []byte(input)
	lines := strings.Split(input, "\n")
	lineStarts := lineStartOffsets(input)

	headings := collectHeadings(src, lines, lineStarts)

	doc := &Document{}
	if len(headings) == 0 {
		doc.Sections = append(doc.Sections, Section{Body: normalizeBody(input)})
		return doc
	}

	// Preamble before the first heading.
	if headings[0].startLine > 0 {
		pre := strings.Join(lines[:headings[0].startLine], "\n")
		if normalizeBody(pre) != "" {
			doc.Sections = append(doc.Sections, Section{Body: normalizeBody(pre)})
		}
	}

	for i, h := range headings {
		bodyStart := h.endLine + 1
		bodyEnd := len(lines)
		if i+1 < len(headings) {
			bodyEnd = headings[i+1].startLine
		}
		body := ""
		if bodyStart < bodyEnd {
			body = strings.Join(lines[bodyStart:bodyEnd], "\n")
		}
		doc.Sections = append(doc.Sections, Section{
			Heading: h.text,
			Level:   h.level,
			Body:    normalizeBody(body),
		})
	}
	return doc
}

// Render reconstructs the document text deterministically: sections in
// stored order, a blank line between heading and body and between
// sections, exactly one trailing newline.
func (d *Document) Render() string {
	var b strings.Builder
	first := true
	for _, s := range d.Sections {
		if s.Heading == "" && s.Level == 0 && s.Body == "" {
			continue
		}
		if !first {
			b.WriteString("\n")
		}
		first = false
		if s.Level > 0 {
			b.WriteString(strings.Repeat("#", s.Level))
			b.WriteString(" ")
			b.WriteString(s.Heading)
			b.WriteString("\n")
			if s.Body != "" {
				b.WriteString("\n")
				b.WriteString(s.Body)
				b.WriteString("\n")
			}
		} else {
			b.WriteString(s.Body)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Clone returns a deep, independent copy. The patch engine mutates a
// clone so a failed batch can be discarded without touching the
// original.
func (d *Document) Clone() *Document {
	c := &Document{Sections: make([]Section, len(d.Sections))}
	copy(c.Sections, d.Sections)
	return c
}

// FindSection returns the index of the first section whose heading
// matches name. The name may carry leading '#' markers; they are ignored
// for the comparison.
func (d *Document) FindSection(name string) (int, bool) {
	want := NormalizeHeading(name)
	if want == "" {
		return 0, false
	}
	for i, s := range d.Sections {
		if s.Level > 0 && s.Heading == want {
			return i, true
		}
	}
	return 0, false
}

// InsertSectionAt inserts s at index i, shifting later sections right.
// An index past the end appends.
func (d *Document) InsertSectionAt(i int, s Section) {
	if i < 0 {
		i = 0
	}
	if i >= len(d.Sections) {
		d.Sections = append(d.Sections, s)
		return
	}
	d.Sections = append(d.Sections, Section{})
	copy(d.Sections[i+1:], d.Sections[i:])
	d.Sections[i] = s
}

// NormalizeHeading strips leading '#' markers and surrounding whitespace
// from a heading reference, so "## Usage", "# Usage" and "Usage" all
// address the same section.
func NormalizeHeading(name string) string {
	s := strings.TrimSpace(name)
	s = strings.TrimLeft(s, "#")
	return strings.TrimSpace(s)
}

// HeadingLevel reports the level encoded by leading '#' markers in a
// heading reference, or 0 if the reference is bare text.
func HeadingLevel(name string) int {
	s := strings.TrimSpace(name)
	n := 0
	for n < len(s) && s[n] == '#' {
		n++
	}
	if n > 6 {
		n = 6
	}
	return n
}

type headingSpan struct {
	text      string
	level     int
	startLine int
	endLine   int
}

// collectHeadings walks the goldmark AST and maps each heading node back
// to the source lines it occupies. Setext headings span their text lines
// plus the underline; empty ATX headings carry no text segment and are
// left to fall through as body text.
func collectHeadings(src []byte, lines []string, lineStarts []int) []headingSpan {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	var spans []headingSpan
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		// Only top-level headings delimit sections; a heading nested in
		// a blockquote or list item is quoted material.
		if _, top := h.Parent().(*ast.Document); !top {
			return ast.WalkSkipChildren, nil
		}
		if h.Lines().Len() == 0 {
			return ast.WalkSkipChildren, nil
		}

		first := h.Lines().At(0)
		last := h.Lines().At(h.Lines().Len() - 1)
		startLine := lineIndexOf(lineStarts, first.Start)
		endLine := lineIndexOf(lineStarts, last.Start)

		// A setext underline sits on the line after the heading text.
		if !isATXLine(lines[startLine]) && endLine+1 < len(lines) {
			endLine++
		}

		var parts []string
		for i := 0; i < h.Lines().Len(); i++ {
			seg := h.Lines().At(i)
			parts = append(parts, string(src[seg.Start:seg.Stop]))
		}
		// Collapse internal whitespace so a multi-line setext heading
		// cannot smuggle a newline into the heading text.
		spans = append(spans, headingSpan{
			text:      strings.Join(strings.Fields(strings.Join(parts, " ")), " "),
			level:     h.Level,
			startLine: startLine,
			endLine:   endLine,
		})
		return ast.WalkSkipChildren, nil
	})

	sort.Slice(spans, func(i, j int) bool { return spans[i].startLine < spans[j].startLine })
	return spans
}

func isATXLine(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " "), "#")
}

// lineIndexOf returns the index of the line containing byte offset off.
func lineIndexOf(lineStarts []int, off int) int {
	i := sort.Search(len(lineStarts), func(i int) bool { return lineStarts[i] > off })
	return i - 1
}

func lineStartOffsets(s string) []int {
	starts := []int{0}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func normalizeBody(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimLeft(s, "\n")
	return strings.TrimRight(s, " \t\n")
}
