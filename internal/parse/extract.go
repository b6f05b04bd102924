package parse

import (
	"bytes"
	"encoding/json"
)

// TokenCounts holds the usage counters of an assistant turn. A nil field
// means the counter was absent from the record.
type TokenCounts struct {
	Input            *int64
	Output           *int64
	CacheCreation    *int64
	CacheRead        *int64
	CacheEphemeral5m *int64
	CacheEphemeral1h *int64
}

type MessageRow struct {
	SessionID string
	Index     int
	Role      string
	Content   string
	Timestamp string
	Tokens    TokenCounts
}

type ToolUseRow struct {
	ToolUseID    string
	SessionID    string
	MessageIndex int
	ToolName     string
	ToolInput    *string
	ToolResult   *string
	IsError      bool
	Timestamp    string
}

// ExtractMessage converts a message record into its row shape.
func ExtractMessage(sessionID string, index int, rec Record) MessageRow {
	row := MessageRow{
		SessionID: sessionID,
		Index:     index,
		Timestamp: rec.Timestamp,
	}
	if rec.Message == nil {
		return row
	}
	row.Role = rec.Message.Role
	row.Content = rec.Message.Content.Flatten()
	if rec.Message.Role == "assistant" && rec.Message.Usage != nil {
		row.Tokens = extractTokens(rec.Message.Usage)
	}
	return row
}

func extractTokens(u *Usage) TokenCounts {
	tc := TokenCounts{
		Input:         u.InputTokens,
		Output:        u.OutputTokens,
		CacheCreation: u.CacheCreationInputTokens,
		CacheRead:     u.CacheReadInputTokens,
	}
	if u.CacheCreation != nil {
		tc.CacheEphemeral5m = u.CacheCreation.Ephemeral5mInputTokens
		tc.CacheEphemeral1h = u.CacheCreation.Ephemeral1hInputTokens
	}
	return tc
}

// ExtractToolUse builds a tool_uses row from an invocation and, when it has
// arrived, its result. A missing result leaves the result column nil.
func ExtractToolUse(sessionID string, messageIndex int, timestamp string, inv ToolInvocationPart, res *ToolResultPart) ToolUseRow {
	row := ToolUseRow{
		ToolUseID:    inv.ID,
		SessionID:    sessionID,
		MessageIndex: messageIndex,
		ToolName:     inv.Name,
		ToolInput:    SerializeInput(inv.Input),
		Timestamp:    timestamp,
	}
	if res != nil {
		text := res.Content.Flatten()
		row.ToolResult = &text
		row.IsError = res.IsError
	}
	return row
}

// SerializeInput returns the compact JSON text of a tool input, or nil for
// an absent or empty input.
func SerializeInput(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		s := string(raw)
		return &s
	}
	switch buf.String() {
	case "null", "{}", "[]", `""`, "false", "0":
		return nil
	}
	s := buf.String()
	return &s
}
