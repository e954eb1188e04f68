package patch

import (
	"strings"
	"testing"

	"draftloop/internal/document"
)

const baseDoc = "# Intro\n\nThe quick brown fox.\n\n## Details\n\nAlpha beta gamma.\n\nShared token here.\n\n## Notes\n\nShared token here.\n"

func parseBase(t *testing.T) *document.Document {
	t.Helper()
	return document.Parse(baseDoc)
}

func TestApplyEmptyBatchIsIdentity(t *testing.T) {
	doc := parseBase(t)
	before := doc.Render()

	got, err := Apply(doc, nil)
	if err != nil {
		t.Fatalf("Apply(doc, nil) error: %v", err)
	}
	if got != doc {
		t.Errorf("empty batch returned a different document")
	}
	if got.Render() != before {
		t.Errorf("empty batch changed rendering")
	}
}

func TestApplyFailureLeavesOriginalUntouched(t *testing.T) {
	doc := parseBase(t)
	before := doc.Render()

	ops := []Operation{
		Replace{OldText: "quick brown", NewText: "slow green"},
		Replace{OldText: "no such text anywhere", NewText: "x"},
	}
	got, err := Apply(doc, ops)
	if err == nil {
		t.Fatal("expected error for failing batch")
	}
	if err.Index != 1 {
		t.Errorf("failing index = %d, want 1", err.Index)
	}
	if err.Kind != AnchorNotFound {
		t.Errorf("kind = %s, want %s", err.Kind, AnchorNotFound)
	}
	if got != doc {
		t.Errorf("error path should return the original document")
	}
	if doc.Render() != before {
		t.Errorf("original mutated despite batch failure:\n%s", doc.Render())
	}
}

func TestReplaceOccurrenceRules(t *testing.T) {
	tests := []struct {
		name     string
		op       Replace
		wantKind ErrorKind
		wantText string
	}{
		{
			name:     "unique match succeeds",
			op:       Replace{OldText: "quick brown fox", NewText: "lazy dog"},
			wantText: "The lazy dog.",
		},
		{
			name:     "zero matches",
			op:       Replace{OldText: "missing anchor", NewText: "x"},
			wantKind: AnchorNotFound,
		},
		{
			name:     "two matches ambiguous",
			op:       Replace{OldText: "Shared token here.", NewText: "x"},
			wantKind: AnchorAmbiguous,
		},
		{
			name:     "section scope disambiguates",
			op:       Replace{Section: "Notes", OldText: "Shared token here.", NewText: "Scoped."},
			wantText: "Scoped.",
		},
		{
			name:     "missing section is not found",
			op:       Replace{Section: "Absent", OldText: "anything", NewText: "x"},
			wantKind: AnchorNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseBase(t)
			got, err := Apply(doc, []Operation{tt.op})
			if tt.wantKind != "" {
				if err == nil {
					t.Fatalf("expected %s, got success", tt.wantKind)
				}
				if err.Kind != tt.wantKind {
					t.Fatalf("kind = %s, want %s", err.Kind, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(got.Render(), tt.wantText) {
				t.Errorf("result missing %q:\n%s", tt.wantText, got.Render())
			}
		})
	}
}

func TestInsertBeforePlacesAboveAnchorLine(t *testing.T) {
	doc := parseBase(t)
	got, err := Apply(doc, []Operation{InsertBefore{Anchor: "Alpha beta", Content: "Inserted line."}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx, _ := got.FindSection("Details")
	if want := "Inserted line.\nAlpha beta gamma."; !strings.HasPrefix(got.Sections[idx].Body, want) {
		t.Errorf("body = %q, want prefix %q", got.Sections[idx].Body, want)
	}
}

func TestInsertAfterPlacesBelowAnchorLine(t *testing.T) {
	doc := parseBase(t)
	got, err := Apply(doc, []Operation{InsertAfter{Anchor: "gamma.", Content: "Inserted line."}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx, _ := got.FindSection("Details")
	if want := "Alpha beta gamma.\nInserted line.\n\nShared token here."; got.Sections[idx].Body != want {
		t.Errorf("body = %q, want %q", got.Sections[idx].Body, want)
	}
}

func TestInsertAfterAnchorOnLastLine(t *testing.T) {
	doc := document.Parse("# Only\n\nSolo line.\n")
	got, err := Apply(doc, []Operation{InsertAfter{Anchor: "Solo line.", Content: "Tail."}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "Solo line.\nTail."; got.Sections[0].Body != want {
		t.Errorf("body = %q, want %q", got.Sections[0].Body, want)
	}
}

func TestInsertAnchorResolution(t *testing.T) {
	doc := parseBase(t)

	if _, err := Apply(doc, []Operation{InsertBefore{Anchor: "nope", Content: "x"}}); err == nil || err.Kind != AnchorNotFound {
		t.Errorf("missing anchor: err = %v, want AnchorNotFound", err)
	}
	if _, err := Apply(doc, []Operation{InsertAfter{Anchor: "Shared token here.", Content: "x"}}); err == nil || err.Kind != AnchorAmbiguous {
		t.Errorf("duplicated anchor: err = %v, want AnchorAmbiguous", err)
	}
}

func TestAppendToExistingSection(t *testing.T) {
	doc := parseBase(t)
	got, err := Apply(doc, []Operation{Append{Section: "## Notes", Content: "Appended."}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx, _ := got.FindSection("Notes")
	if want := "Shared token here.\n\nAppended."; got.Sections[idx].Body != want {
		t.Errorf("body = %q, want %q", got.Sections[idx].Body, want)
	}
}

func TestAppendCreatesMissingSection(t *testing.T) {
	doc := parseBase(t)
	got, err := Apply(doc, []Operation{Append{Section: "# Future Work", Content: "Later."}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := got.Sections[len(got.Sections)-1]
	if last.Heading != "Future Work" || last.Level != 1 || last.Body != "Later." {
		t.Errorf("created section = %+v", last)
	}
}

func TestAddSectionRules(t *testing.T) {
	tests := []struct {
		name     string
		op       AddSection
		wantKind ErrorKind
		check    func(t *testing.T, doc *document.Document)
	}{
		{
			name:     "duplicate heading rejected",
			op:       AddSection{Heading: "## Notes", Content: "x"},
			wantKind: DuplicateSection,
		},
		{
			name: "fresh heading appended last",
			op:   AddSection{Heading: "Appendix", Content: "Extra."},
			check: func(t *testing.T, doc *document.Document) {
				last := doc.Sections[len(doc.Sections)-1]
				if last.Heading != "Appendix" || last.Level != 2 {
					t.Errorf("last section = %+v, want Appendix level 2", last)
				}
			},
		},
		{
			name: "after_section placement",
			op:   AddSection{Heading: "### Caveats", Content: "Careful.", AfterSection: "Details"},
			check: func(t *testing.T, doc *document.Document) {
				idx, ok := doc.FindSection("Caveats")
				if !ok {
					t.Fatal("Caveats not inserted")
				}
				if prev := doc.Sections[idx-1].Heading; prev != "Details" {
					t.Errorf("inserted after %q, want Details", prev)
				}
				if doc.Sections[idx].Level != 3 {
					t.Errorf("level = %d, want 3", doc.Sections[idx].Level)
				}
			},
		},
		{
			name:     "missing after_section",
			op:       AddSection{Heading: "Orphan", Content: "x", AfterSection: "Absent"},
			wantKind: AnchorNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseBase(t)
			got, err := Apply(doc, []Operation{tt.op})
			if tt.wantKind != "" {
				if err == nil || err.Kind != tt.wantKind {
					t.Fatalf("err = %v, want kind %s", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestBatchOrderMatters(t *testing.T) {
	doc := parseBase(t)
	ops := []Operation{
		AddSection{Heading: "## Roadmap", Content: "Step one."},
		InsertAfter{Anchor: "Step one.", Content: "Step two."},
	}
	got, err := Apply(doc, ops)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx, _ := got.FindSection("Roadmap")
	if want := "Step one.\nStep two."; got.Sections[idx].Body != want {
		t.Errorf("body = %q, want %q", got.Sections[idx].Body, want)
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Index: 2, Op: "replace", Kind: AnchorAmbiguous, Detail: "text matches 3 times"}
	s := err.Error()
	for _, want := range []string{"2", "replace", "anchor_ambiguous", "matches 3 times"} {
		if !strings.Contains(s, want) {
			t.Errorf("Error() = %q missing %q", s, want)
		}
	}
}
