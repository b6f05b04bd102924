package parse

import "encoding/json"

type RecordKind int

const (
	KindMessage RecordKind = iota + 1
	KindToolUse
	KindToolResult
)

func (k RecordKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindToolUse:
		return "tool_use"
	case KindToolResult:
		return "tool_result"
	default:
		return "unknown"
	}
}

// Record is one recognized line of a transcript file. Exactly one of
// Message, ToolUse and ToolResult is set, matching Kind.
type Record struct {
	Kind       RecordKind
	Line       int    // 1-based line number in the source file
	Timestamp  string // "ts" or "timestamp" of the line, normalized to text
	Message    *Message
	ToolUse    *LegacyToolUse
	ToolResult *LegacyToolResult
}

type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
	Usage   *Usage  `json:"usage"`
}

type Usage struct {
	InputTokens              *int64         `json:"input_tokens"`
	OutputTokens             *int64         `json:"output_tokens"`
	CacheCreationInputTokens *int64         `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     *int64         `json:"cache_read_input_tokens"`
	CacheCreation            *CacheCreation `json:"cache_creation"`
}

type CacheCreation struct {
	Ephemeral5mInputTokens *int64 `json:"ephemeral_5m_input_tokens"`
	Ephemeral1hInputTokens *int64 `json:"ephemeral_1h_input_tokens"`
}

// LegacyToolUse and LegacyToolResult are the standalone "toolUse" /
// "toolResult" lines written by older clients.
type LegacyToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type LegacyToolResult struct {
	ToolUseID string  `json:"toolUseId"`
	Content   Content `json:"content"`
	IsError   bool    `json:"isError"`
}

// Transcript is a fully decoded file.
type Transcript struct {
	Path     string
	Records  []Record
	Warnings []Warning
}

// Messages returns the message records in file order.
func (t *Transcript) Messages() []Record {
	var out []Record
	for _, r := range t.Records {
		if r.Kind == KindMessage {
			out = append(out, r)
		}
	}
	return out
}
