package variables

import (
	"encoding/json"
	"errors"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindUndefined Kind = iota // no value; never written to a Store
	KindString
	KindList
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindJSON:
		return "json"
	default:
		return "undefined"
	}
}

// Value is a variable value: a scalar string, an ordered list of strings
// (array-accumulating steps) or a raw JSON document (API responses).
type Value struct {
	kind Kind
	str  string
	list []string
	raw  json.RawMessage
}

// String returns a scalar string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// List returns a list value holding a copy of items.
func List(items ...string) Value {
	return Value{kind: KindList, list: append([]string{}, items...)}
}

// JSON returns a JSON value. raw must be a valid JSON document.
func JSON(raw []byte) Value {
	return Value{kind: KindJSON, raw: append(json.RawMessage{}, raw...)}
}

// EmptyObject is the JSON value {}.
func EmptyObject() Value {
	return JSON([]byte("{}"))
}

// Undefined returns the zero Value.
func Undefined() Value {
	return Value{}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsDefined() bool { return v.kind != KindUndefined }

// Str returns the scalar string, or "" for other variants.
func (v Value) Str() string {
	if v.kind != KindString {
		return ""
	}
	return v.str
}

// Items returns a copy of the list items, or nil for other variants.
func (v Value) Items() []string {
	if v.kind != KindList {
		return nil
	}
	return append([]string{}, v.list...)
}

// Raw returns the JSON document, or nil for other variants.
func (v Value) Raw() json.RawMessage {
	if v.kind != KindJSON {
		return nil
	}
	return v.raw
}

// Text renders the value the way it appears when substituted into a template:
// lists are comma-joined and JSON documents appear as their compact text.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindList:
		return strings.Join(v.list, ",")
	case KindJSON:
		return string(v.raw)
	default:
		return ""
	}
}

// MarshalJSON encodes strings and lists natively and embeds JSON documents as-is.
// Undefined values encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindJSON:
		return v.raw, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON. Arrays made only of strings become
// lists; any other non-string document is kept as JSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Undefined()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = String(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*v = List(items...)
		return nil
	}
	if !json.Valid(data) {
		return errors.New("invalid JSON value")
	}
	*v = JSON(data)
	return nil
}

// normalize collapses whitespace in string values; other variants pass through.
func normalize(v Value) Value {
	if v.kind != KindString {
		return v
	}
	return String(normalizeString(v.str))
}

func normalizeString(s string) string {
	s = lineBreaks.Replace(s)
	return whitespaceRun.ReplaceAllString(s, " ")
}
