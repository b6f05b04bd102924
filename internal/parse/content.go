package parse

import (
	"bytes"
	"encoding/json"
	"strings"
)

type ContentShape int

const (
	ShapeNone ContentShape = iota
	ShapeString
	ShapeList
	ShapeOther
)

// Content is a message or tool-result payload: a plain string, an ordered
// list of typed parts, or some other JSON value kept verbatim.
type Content struct {
	Shape  ContentShape
	String string
	Parts  []Part
	Raw    json.RawMessage
}

// Part is one element of a list payload. The set of implementations is closed.
type Part interface {
	// Flatten returns the text the part contributes to flattened content and
	// whether it contributes at all.
	Flatten() (string, bool)
	isPart()
}

type TextPart struct {
	Text string
}

type ToolInvocationPart struct {
	ID    string
	Name  string
	Input json.RawMessage
}

type ToolResultPart struct {
	ToolUseID string
	Content   Content
	IsError   bool
}

// PlainString is a bare string element inside a list payload.
type PlainString string

// OtherPart is a typed part this importer does not model (image, thinking, ...).
type OtherPart struct {
	Type string
}

func (p TextPart) Flatten() (string, bool)           { return p.Text, true }
func (p ToolInvocationPart) Flatten() (string, bool) { return "", false }
func (p ToolResultPart) Flatten() (string, bool)     { return "", false }
func (p PlainString) Flatten() (string, bool)        { return string(p), true }
func (p OtherPart) Flatten() (string, bool)          { return "", false }

func (TextPart) isPart()           {}
func (ToolInvocationPart) isPart() {}
func (ToolResultPart) isPart()     {}
func (PlainString) isPart()        {}
func (OtherPart) isPart()          {}

type rawPart struct {
	Type      string          `json:"type"`
	Text      *string         `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   Content         `json:"content"`
	IsError   bool            `json:"is_error"`
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = Content{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		c.Shape = ShapeString
		c.String = s
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return err
		}
		c.Shape = ShapeList
		c.Parts = make([]Part, 0, len(elems))
		for _, e := range elems {
			c.Parts = append(c.Parts, decodePart(e))
		}
	default:
		c.Shape = ShapeOther
		c.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

func decodePart(data json.RawMessage) Part {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return PlainString(s)
		}
		return OtherPart{}
	}

	var rp rawPart
	if err := json.Unmarshal(data, &rp); err != nil {
		return OtherPart{}
	}
	switch rp.Type {
	case "text":
		if rp.Text == nil {
			return OtherPart{Type: rp.Type}
		}
		return TextPart{Text: *rp.Text}
	case "tool_use":
		return ToolInvocationPart{ID: rp.ID, Name: rp.Name, Input: rp.Input}
	case "tool_result":
		return ToolResultPart{ToolUseID: rp.ToolUseID, Content: rp.Content, IsError: rp.IsError}
	default:
		return OtherPart{Type: rp.Type}
	}
}

// Flatten returns the text of the payload. A string is returned verbatim;
// a list yields its text parts joined by newlines; anything else is returned
// as its JSON text.
func (c Content) Flatten() string {
	switch c.Shape {
	case ShapeString:
		return c.String
	case ShapeList:
		var parts []string
		for _, p := range c.Parts {
			if s, ok := p.Flatten(); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case ShapeOther:
		return string(c.Raw)
	default:
		return ""
	}
}

func (c Content) Invocations() []ToolInvocationPart {
	var out []ToolInvocationPart
	for _, p := range c.Parts {
		if inv, ok := p.(ToolInvocationPart); ok {
			out = append(out, inv)
		}
	}
	return out
}

func (c Content) Results() []ToolResultPart {
	var out []ToolResultPart
	for _, p := range c.Parts {
		if res, ok := p.(ToolResultPart); ok {
			out = append(out, res)
		}
	}
	return out
}
