// Package patch applies ordered batches of structured edit operations to
// a document, all-or-nothing. A reviewer's critique may reference stale
// or slightly wrong text; partially applying its edits can leave a
// document worse than either the input or the fully-edited output, so a
// batch either applies completely or not at all.
//
// Anchor resolution is fail-closed: an anchor that matches nowhere fails
// with AnchorNotFound, and one that matches more than once fails with
// AnchorAmbiguous rather than guessing which occurrence was intended.
package patch

import (
	"fmt"
	"strings"

	"draftloop/internal/document"
)

// ErrorKind classifies why a patch operation failed.
type ErrorKind string

const (
	// AnchorNotFound means the anchor or target text matched nothing in
	// the addressed scope.
	AnchorNotFound ErrorKind = "anchor_not_found"

	// AnchorAmbiguous means the anchor matched more than once; the
	// engine never guesses which occurrence was intended.
	AnchorAmbiguous ErrorKind = "anchor_ambiguous"

	// DuplicateSection means an add_section names a heading that already
	// exists.
	DuplicateSection ErrorKind = "duplicate_section"

	// UnknownOperation means a wire payload did not decode to one of the
	// known operation shapes.
	UnknownOperation ErrorKind = "unknown_operation"
)

// Error reports the first failing operation of a batch. Index is the
// position of that operation in the submitted list.
type Error struct {
	Index  int
	Op     string
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("patch op %d (%s): %s: %s", e.Index, e.Op, e.Kind, e.Detail)
}

// Operation is one structured edit instruction. The type is closed: the
// only implementations are Replace, InsertBefore, InsertAfter, Append
// and AddSection, and wire payloads decode through Decode.
type Operation interface {
	// Name returns the wire name of the operation.
	Name() string

	apply(doc *document.Document) *opError
}

type opError struct {
	kind   ErrorKind
	detail string
}

// Apply processes operations strictly in list order against a clone of
// doc. Every operation must succeed; on the first failure the whole
// batch is abandoned and the original document is returned untouched
// alongside an Error identifying the failing operation. An empty batch
// returns the document unchanged.
func Apply(doc *document.Document, ops []Operation) (*document.Document, *Error) {
	if len(ops) == 0 {
		return doc, nil
	}
	clone := doc.Clone()
	for i, op := range ops {
		if err := op.apply(clone); err != nil {
			return doc, &Error{Index: i, Op: op.Name(), Kind: err.kind, Detail: err.detail}
		}
	}
	return clone, nil
}

// Replace substitutes the unique occurrence of OldText with NewText.
// When Section is set the search is confined to that section's body,
// otherwise the whole document is searched.
type Replace struct {
	Section string
	OldText string
	NewText string
}

func (r Replace) Name() string { return "replace" }

func (r Replace) apply(doc *document.Document) *opError {
	scope := doc.Sections
	if r.Section != "" {
		idx, ok := doc.FindSection(r.Section)
		if !ok {
			return &opError{AnchorNotFound, fmt.Sprintf("section %q does not exist", r.Section)}
		}
		scope = doc.Sections[idx : idx+1]
	}

	hit := -1
	total := 0
	for i := range scope {
		n := strings.Count(scope[i].Body, r.OldText)
		total += n
		if n > 0 && hit < 0 {
			hit = i
		}
	}
	switch {
	case total == 0:
		return &opError{AnchorNotFound, fmt.Sprintf("text %q not found", truncate(r.OldText, 80))}
	case total > 1:
		return &opError{AnchorAmbiguous, fmt.Sprintf("text %q matches %d times", truncate(r.OldText, 80), total)}
	}
	scope[hit].Body = strings.Replace(scope[hit].Body, r.OldText, r.NewText, 1)
	return nil
}

// InsertBefore inserts Content as a new block on the line above the
// unique occurrence of Anchor.
type InsertBefore struct {
	Anchor  string
	Content string
}

func (op InsertBefore) Name() string { return "insert_before" }

func (op InsertBefore) apply(doc *document.Document) *opError {
	sec, pos, err := resolveAnchor(doc, op.Anchor)
	if err != nil {
		return err
	}
	body := doc.Sections[sec].Body
	lineStart := strings.LastIndexByte(body[:pos], '\n') + 1
	doc.Sections[sec].Body = body[:lineStart] + op.Content + "\n" + body[lineStart:]
	return nil
}

// InsertAfter inserts Content as a new block on the line below the
// unique occurrence of Anchor.
type InsertAfter struct {
	Anchor  string
	Content string
}

func (op InsertAfter) Name() string { return "insert_after" }

func (op InsertAfter) apply(doc *document.Document) *opError {
	sec, pos, err := resolveAnchor(doc, op.Anchor)
	if err != nil {
		return err
	}
	body := doc.Sections[sec].Body
	end := pos + len(op.Anchor)
	nl := strings.IndexByte(body[end:], '\n')
	if nl < 0 {
		doc.Sections[sec].Body = body + "\n" + op.Content
		return nil
	}
	p := end + nl + 1
	doc.Sections[sec].Body = body[:p] + op.Content + "\n" + body[p:]
	return nil
}

// Append adds Content to the end of the named section's body. A missing
// section is created at the document end rather than failing; reviewers
// routinely append to sections they are proposing at the same time.
type Append struct {
	Section string
	Content string
}

func (op Append) Name() string { return "append" }

func (op Append) apply(doc *document.Document) *opError {
	if idx, ok := doc.FindSection(op.Section); ok {
		body := doc.Sections[idx].Body
		if body == "" {
			doc.Sections[idx].Body = op.Content
		} else {
			doc.Sections[idx].Body = body + "\n\n" + op.Content
		}
		return nil
	}
	doc.Sections = append(doc.Sections, document.Section{
		Heading: document.NormalizeHeading(op.Section),
		Level:   levelOrDefault(op.Section),
		Body:    op.Content,
	})
	return nil
}

// AddSection creates a new section. An existing heading fails with
// DuplicateSection so a critique cannot silently overwrite a section.
// With AfterSection set the new section is placed immediately after it;
// otherwise it goes to the document end.
type AddSection struct {
	Heading      string
	Content      string
	AfterSection string
}

func (op AddSection) Name() string { return "add_section" }

func (op AddSection) apply(doc *document.Document) *opError {
	if _, ok := doc.FindSection(op.Heading); ok {
		return &opError{DuplicateSection, fmt.Sprintf("section %q already exists", document.NormalizeHeading(op.Heading))}
	}
	sec := document.Section{
		Heading: document.NormalizeHeading(op.Heading),
		Level:   levelOrDefault(op.Heading),
		Body:    op.Content,
	}
	if op.AfterSection == "" {
		doc.Sections = append(doc.Sections, sec)
		return nil
	}
	idx, ok := doc.FindSection(op.AfterSection)
	if !ok {
		return &opError{AnchorNotFound, fmt.Sprintf("after_section %q does not exist", op.AfterSection)}
	}
	doc.InsertSectionAt(idx+1, sec)
	return nil
}

// resolveAnchor locates the unique occurrence of anchor across all
// section bodies, returning the owning section index and the byte
// offset within its body.
func resolveAnchor(doc *document.Document, anchor string) (int, int, *opError) {
	sec, pos, total := -1, -1, 0
	for i := range doc.Sections {
		body := doc.Sections[i].Body
		n := strings.Count(body, anchor)
		total += n
		if n > 0 && sec < 0 {
			sec = i
			pos = strings.Index(body, anchor)
		}
	}
	switch {
	case total == 0:
		return 0, 0, &opError{AnchorNotFound, fmt.Sprintf("anchor %q not found", truncate(anchor, 80))}
	case total > 1:
		return 0, 0, &opError{AnchorAmbiguous, fmt.Sprintf("anchor %q matches %d times", truncate(anchor, 80), total)}
	}
	return sec, pos, nil
}

func levelOrDefault(heading string) int {
	if lvl := document.HeadingLevel(heading); lvl > 0 {
		return lvl
	}
	return 2
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
