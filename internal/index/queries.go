package index

import (
	"context"
	"database/sql"
	"fmt"
)

type ProjectSummary struct {
	ProjectID     string `json:"project_id"`
	ProjectName   string `json:"project_name"`
	TotalSessions int    `json:"total_sessions"`
	FirstSession  string `json:"first_session"`
	LastSession   string `json:"last_session"`
	TotalMessages int    `json:"total_messages"`
	TotalToolUses int    `json:"total_tool_uses"`
}

type SessionSummary struct {
	SessionID         string `json:"session_id"`
	ProjectID         string `json:"project_id"`
	ProjectName       string `json:"project_name"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	DurationSeconds   int64  `json:"duration_seconds"`
	MessageCount      int    `json:"message_count"`
	ToolUseCount      int    `json:"tool_use_count"`
	UserMessages      int    `json:"user_message_count"`
	AssistantMessages int    `json:"assistant_message_count"`
}

type ToolUsageSummary struct {
	ToolName         string  `json:"tool_name"`
	TotalUses        int     `json:"total_uses"`
	ErrorCount       int     `json:"error_count"`
	ErrorRatePercent float64 `json:"error_rate_percent"`
	SessionsUsedIn   int     `json:"sessions_used_in"`
	FirstUsed        string  `json:"first_used"`
	LastUsed         string  `json:"last_used"`
}

type StoredMessage struct {
	SessionID    string `json:"session_id"`
	Index        int    `json:"message_index"`
	Role         string `json:"role"`
	Content      string `json:"content"`
	Timestamp    string `json:"timestamp"`
	InputTokens  *int64 `json:"input_tokens,omitempty"`
	OutputTokens *int64 `json:"output_tokens,omitempty"`
}

type StoredToolUse struct {
	ToolUseID    string  `json:"tool_use_id"`
	SessionID    string  `json:"session_id"`
	MessageIndex int     `json:"message_index"`
	ToolName     string  `json:"tool_name"`
	ToolInput    *string `json:"tool_input"`
	ToolResult   *string `json:"tool_result"`
	IsError      bool    `json:"is_error"`
	Timestamp    string  `json:"timestamp"`
}

func (d *DB) ProjectSummaries(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT project_id, project_name, total_sessions,
		       COALESCE(first_session, ''), COALESCE(last_session, ''),
		       total_messages, total_tool_uses
		FROM project_summary
		ORDER BY last_session DESC`)
	if err != nil {
		return nil, fmt.Errorf("query project_summary: %w", err)
	}
	defer rows.Close()

	var out []ProjectSummary
	for rows.Next() {
		var p ProjectSummary
		if err := rows.Scan(&p.ProjectID, &p.ProjectName, &p.TotalSessions,
			&p.FirstSession, &p.LastSession, &p.TotalMessages, &p.TotalToolUses); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const sessionSummaryColumns = `
	session_id, project_id, project_name,
	COALESCE(start_time, ''), COALESCE(end_time, ''), COALESCE(duration_seconds, 0),
	message_count, tool_use_count, user_message_count, assistant_message_count`

func scanSessionSummary(sc interface{ Scan(...any) error }) (SessionSummary, error) {
	var s SessionSummary
	err := sc.Scan(&s.SessionID, &s.ProjectID, &s.ProjectName,
		&s.StartTime, &s.EndTime, &s.DurationSeconds,
		&s.MessageCount, &s.ToolUseCount, &s.UserMessages, &s.AssistantMessages)
	return s, err
}

// SessionSummaries lists sessions, most recent first. An empty projectID
// lists every project; limit <= 0 means no limit.
func (d *DB) SessionSummaries(ctx context.Context, projectID string, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+sessionSummaryColumns+`
		FROM session_summary
		WHERE (? = '' OR project_id = ?)
		ORDER BY start_time DESC
		LIMIT ?`, projectID, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query session_summary: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		s, err := scanSessionSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSession returns nil when the session is not in the store.
func (d *DB) GetSession(ctx context.Context, sessionID string) (*SessionSummary, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT "+sessionSummaryColumns+" FROM session_summary WHERE session_id = ?", sessionID)
	s, err := scanSessionSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DB) ToolUsageSummaries(ctx context.Context) ([]ToolUsageSummary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT tool_name, total_uses, error_count, COALESCE(error_rate_percent, 0),
		       sessions_used_in, COALESCE(first_used, ''), COALESCE(last_used, '')
		FROM tool_usage_summary`)
	if err != nil {
		return nil, fmt.Errorf("query tool_usage_summary: %w", err)
	}
	defer rows.Close()

	var out []ToolUsageSummary
	for rows.Next() {
		var t ToolUsageSummary
		if err := rows.Scan(&t.ToolName, &t.TotalUses, &t.ErrorCount, &t.ErrorRatePercent,
			&t.SessionsUsedIn, &t.FirstUsed, &t.LastUsed); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Messages returns the messages of a session with from <= index <= to, in
// index order. A negative to means through the last message.
func (d *DB) Messages(ctx context.Context, sessionID string, from, to int) ([]StoredMessage, error) {
	if to < 0 {
		to = int(^uint32(0) >> 1)
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT session_id, message_index, role, COALESCE(content, ''), timestamp, input_tokens, output_tokens
		FROM messages
		WHERE session_id = ? AND message_index BETWEEN ? AND ?
		ORDER BY message_index`, sessionID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var in, outTok sql.NullInt64
		if err := rows.Scan(&m.SessionID, &m.Index, &m.Role, &m.Content, &m.Timestamp, &in, &outTok); err != nil {
			return nil, err
		}
		if in.Valid {
			m.InputTokens = &in.Int64
		}
		if outTok.Valid {
			m.OutputTokens = &outTok.Int64
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MessageContext returns up to n messages on each side of index, including
// the message itself.
func (d *DB) MessageContext(ctx context.Context, sessionID string, index, n int) ([]StoredMessage, error) {
	from := index - n
	if from < 0 {
		from = 0
	}
	return d.Messages(ctx, sessionID, from, index+n)
}

// ToolUses returns the tool uses of a session in message order.
func (d *DB) ToolUses(ctx context.Context, sessionID string) ([]StoredToolUse, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT tool_use_id, session_id, message_index, tool_name, tool_input, tool_result, is_error, timestamp
		FROM tool_uses
		WHERE session_id = ?
		ORDER BY message_index, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query tool uses: %w", err)
	}
	defer rows.Close()

	var out []StoredToolUse
	for rows.Next() {
		var t StoredToolUse
		var input, result sql.NullString
		if err := rows.Scan(&t.ToolUseID, &t.SessionID, &t.MessageIndex, &t.ToolName,
			&input, &result, &t.IsError, &t.Timestamp); err != nil {
			return nil, err
		}
		if input.Valid {
			t.ToolInput = &input.String
		}
		if result.Valid {
			t.ToolResult = &result.String
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
