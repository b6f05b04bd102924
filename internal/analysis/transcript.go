package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Zuo-Peng/cc-analytics/internal/index"
)

var ErrSessionNotFound = errors.New("session not found")

// maxToolText caps tool inputs and results in the rendered transcript.
const maxToolText = 2000

// Transcript renders the stored messages and tool uses of a session as plain
// text for a prompt.
func Transcript(ctx context.Context, db *index.DB, sessionID string) (string, error) {
	sess, err := db.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	msgs, err := db.Messages(ctx, sessionID, 0, -1)
	if err != nil {
		return "", err
	}
	tools, err := db.ToolUses(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return renderTranscript(*sess, msgs, tools), nil
}

func renderTranscript(sess index.SessionSummary, msgs []index.StoredMessage, tools []index.StoredToolUse) string {
	byMessage := make(map[int][]index.StoredToolUse)
	for _, t := range tools {
		byMessage[t.MessageIndex] = append(byMessage[t.MessageIndex], t)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\nProject: %s\nStarted: %s\nEnded: %s\nMessages: %d, tool uses: %d\n",
		sess.SessionID, sess.ProjectName, sess.StartTime, sess.EndTime, sess.MessageCount, sess.ToolUseCount)

	for _, m := range msgs {
		b.WriteString("\n")
		fmt.Fprintf(&b, "[%s] %s:\n", m.Timestamp, strings.ToUpper(m.Role))
		if text := strings.TrimSpace(m.Content); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
		for _, t := range byMessage[m.Index] {
			fmt.Fprintf(&b, "-> %s", t.ToolName)
			if t.ToolInput != nil {
				fmt.Fprintf(&b, " %s", truncate(*t.ToolInput, maxToolText))
			}
			b.WriteString("\n")
			if t.ToolResult != nil {
				label := "result"
				if t.IsError {
					label = "error"
				}
				fmt.Fprintf(&b, "   %s: %s\n", label, truncate(*t.ToolResult, maxToolText))
			}
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "... [truncated]"
}
