package patch

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeKnownShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Operation
	}{
		{
			name: "replace",
			raw:  `{"operation": "replace", "params": {"old_text": "a", "new_text": "b"}}`,
			want: Replace{OldText: "a", NewText: "b"},
		},
		{
			name: "replace with section scope",
			raw:  `{"operation": "replace", "params": {"section": "Usage", "old_text": "a", "new_text": ""}}`,
			want: Replace{Section: "Usage", OldText: "a"},
		},
		{
			name: "insert_before",
			raw:  `{"operation": "insert_before", "params": {"anchor": "x", "content": "y"}}`,
			want: InsertBefore{Anchor: "x", Content: "y"},
		},
		{
			name: "insert_after",
			raw:  `{"operation": "insert_after", "params": {"anchor": "x", "content": "y"}}`,
			want: InsertAfter{Anchor: "x", Content: "y"},
		},
		{
			name: "append",
			raw:  `{"operation": "append", "params": {"section": "# Usage", "content": "more"}}`,
			want: Append{Section: "# Usage", Content: "more"},
		},
		{
			name: "add_section",
			raw:  `{"operation": "add_section", "params": {"heading": "## New", "content": "body", "after_section": "Intro"}}`,
			want: AddSection{Heading: "## New", Content: "body", AfterSection: "Intro"},
		},
		{
			name: "mixed case operation name",
			raw:  `{"operation": "Replace", "params": {"old_text": "a", "new_text": "b"}}`,
			want: Replace{OldText: "a", NewText: "b"},
		},
		{
			name: "extra params tolerated",
			raw:  `{"operation": "append", "params": {"section": "Usage", "content": "x", "reason": "because"}}`,
			want: Append{Section: "Usage", Content: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeRejectsUnknownShapes(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantDetail string
	}{
		{"unknown operation", `{"operation": "delete_section", "params": {}}`, "must be one of"},
		{"missing operation", `{"params": {"old_text": "a"}}`, "missing operation"},
		{"not an object", `"replace"`, "not an object"},
		{"replace without old_text", `{"operation": "replace", "params": {"new_text": "b"}}`, "old_text"},
		{"insert without anchor", `{"operation": "insert_after", "params": {"content": "y"}}`, "anchor"},
		{"append without section", `{"operation": "append", "params": {"content": "y"}}`, "section"},
		{"add_section without heading", `{"operation": "add_section", "params": {"content": "y"}}`, "heading"},
		{"add_section with marker-only heading", `{"operation": "add_section", "params": {"heading": "##", "content": "y"}}`, "heading"},
		{"params wrong type", `{"operation": "replace", "params": ["old_text"]}`, "not an object"},
		{"no params at all", `{"operation": "replace"}`, "old_text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := Decode(json.RawMessage(tt.raw))
			if err == nil {
				t.Fatalf("Decode = %#v, want error", op)
			}
			if err.Kind != UnknownOperation {
				t.Errorf("kind = %s, want %s", err.Kind, UnknownOperation)
			}
			if !strings.Contains(err.Detail, tt.wantDetail) {
				t.Errorf("detail = %q, want substring %q", err.Detail, tt.wantDetail)
			}
		})
	}
}
