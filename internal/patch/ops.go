package patch

import (
	"encoding/json"
	"strings"

	"draftloop/internal/document"
)

// Wire shapes accepted from a reviewer payload. Every entry is an object
// {"operation": <name>, "params": {...}}; the five known names and their
// required params are listed below. Anything else is an unknown shape
// and fails decoding, which in turn fails the whole review validation;
// silently dropping an entry would let a batch apply only part of the
// critique that was issued.
//
//	replace        {"old_text", "new_text", "section"?}
//	insert_before  {"anchor", "content"}
//	insert_after   {"anchor", "content"}
//	append         {"section", "content"}
//	add_section    {"heading", "content", "after_section"?}

type wireOp struct {
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params"`
}

// Decode converts one wire entry into a concrete Operation. Failures
// return an *Error with Kind UnknownOperation and Index -1; the caller
// owns the batch position.
func Decode(raw json.RawMessage) (Operation, *Error) {
	var w wireOp
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, decodeErr("", "entry is not an object with operation and params")
	}
	name := strings.ToLower(strings.TrimSpace(w.Operation))
	params := w.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	switch name {
	case "replace":
		var p struct {
			Section string `json:"section"`
			OldText string `json:"old_text"`
			NewText string `json:"new_text"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, decodeErr(name, "params is not an object")
		}
		if p.OldText == "" {
			return nil, decodeErr(name, "missing required param old_text")
		}
		return Replace{Section: p.Section, OldText: p.OldText, NewText: p.NewText}, nil

	case "insert_before", "insert_after":
		var p struct {
			Anchor  string `json:"anchor"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, decodeErr(name, "params is not an object")
		}
		if p.Anchor == "" {
			return nil, decodeErr(name, "missing required param anchor")
		}
		if name == "insert_before" {
			return InsertBefore{Anchor: p.Anchor, Content: p.Content}, nil
		}
		return InsertAfter{Anchor: p.Anchor, Content: p.Content}, nil

	case "append":
		var p struct {
			Section string `json:"section"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, decodeErr(name, "params is not an object")
		}
		if document.NormalizeHeading(p.Section) == "" {
			return nil, decodeErr(name, "missing required param section")
		}
		return Append{Section: p.Section, Content: p.Content}, nil

	case "add_section":
		var p struct {
			Heading      string `json:"heading"`
			Content      string `json:"content"`
			AfterSection string `json:"after_section"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, decodeErr(name, "params is not an object")
		}
		if document.NormalizeHeading(p.Heading) == "" {
			return nil, decodeErr(name, "missing required param heading")
		}
		return AddSection{Heading: p.Heading, Content: p.Content, AfterSection: p.AfterSection}, nil

	case "":
		return nil, decodeErr("", "missing operation name")
	default:
		return nil, decodeErr(name, `operation must be one of replace, insert_before, insert_after, append, add_section`)
	}
}

func decodeErr(op, detail string) *Error {
	if op == "" {
		op = "?"
	}
	return &Error{Index: -1, Op: op, Kind: UnknownOperation, Detail: detail}
}
