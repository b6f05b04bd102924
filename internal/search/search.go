package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/Zuo-Peng/cc-analytics/internal/index"
)

// ErrNoIndex is returned when the full-text tables have not been built.
var ErrNoIndex = errors.New("search index not built; run `cca import` or `cca import --reindex-only`")

type MessageHit struct {
	SessionID    string  `json:"session_id"`
	ProjectName  string  `json:"project_name"`
	MessageIndex int     `json:"message_index"`
	Role         string  `json:"role"`
	Timestamp    string  `json:"timestamp"`
	Snippet      string  `json:"snippet"`
	Rank         float64 `json:"rank"`
}

type ToolHit struct {
	ToolUseID   string  `json:"tool_use_id"`
	SessionID   string  `json:"session_id"`
	ProjectName string  `json:"project_name"`
	ToolName    string  `json:"tool_name"`
	Timestamp   string  `json:"timestamp"`
	Snippet     string  `json:"snippet"`
	Rank        float64 `json:"rank"`
}

type Options struct {
	Query         string
	Project       string // project_name, "" = all
	Role          string // "" = all, "user", "assistant"; messages only
	Limit         int
	OnePerSession bool // keep only the best hit of each session
}

// containsCJK returns true if the string contains any CJK Unified Ideograph.
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// makeSnippet extracts a snippet around the first occurrence of query in text.
func makeSnippet(text, query string, contextChars int) string {
	lower := strings.ToLower(text)
	qLower := strings.ToLower(query)
	idx := strings.Index(lower, qLower)
	runes := []rune(text)
	if idx < 0 || len(lower) != len(text) {
		if len(runes) > contextChars*2 {
			return string(runes[:contextChars*2]) + "..."
		}
		return text
	}
	qLen := len([]rune(query))
	runePos := len([]rune(text[:idx]))
	start := max(runePos-contextChars, 0)
	end := min(runePos+qLen+contextChars, len(runes))

	var prefix, suffix string
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}
	return prefix + string(runes[start:runePos]) +
		">>>" + string(runes[runePos:runePos+qLen]) + "<<<" +
		string(runes[runePos+qLen:end]) + suffix
}

func ready(ctx context.Context, db *index.DB) error {
	_, ok, err := db.SearchIndexCounts(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoIndex
	}
	return nil
}

func normalize(opts *Options) int {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if !opts.OnePerSession {
		return opts.Limit
	}
	// fetch more before dedup so we still have enough after
	return opts.Limit * 3
}

// Messages searches message content. Queries containing CJK characters use
// substring matching since the tokenizer does not segment them.
func Messages(ctx context.Context, db *index.DB, opts Options) ([]MessageHit, error) {
	if err := ready(ctx, db); err != nil {
		return nil, err
	}
	fetch := normalize(&opts)

	var conditions []string
	var args []any
	var query string
	if containsCJK(opts.Query) {
		conditions = append(conditions, "m.content LIKE ?")
		args = append(args, "%"+opts.Query+"%")
		if opts.Project != "" {
			conditions = append(conditions, "p.project_name = ?")
			args = append(args, opts.Project)
		}
		if opts.Role != "" {
			conditions = append(conditions, "m.role = ?")
			args = append(args, opts.Role)
		}
		query = fmt.Sprintf(`
			SELECT m.session_id, p.project_name, m.message_index, m.role, m.timestamp, m.content, 0
			FROM messages m
			JOIN sessions s ON m.session_id = s.session_id
			JOIN projects p ON s.project_id = p.project_id
			WHERE %s
			ORDER BY m.timestamp DESC
			LIMIT ?`, strings.Join(conditions, " AND "))
	} else {
		conditions = append(conditions, "fts_messages MATCH ?")
		args = append(args, opts.Query)
		if opts.Project != "" {
			conditions = append(conditions, "project_name = ?")
			args = append(args, opts.Project)
		}
		if opts.Role != "" {
			conditions = append(conditions, "role = ?")
			args = append(args, opts.Role)
		}
		query = fmt.Sprintf(`
			SELECT session_id, project_name, message_index, role, timestamp,
			       snippet(fts_messages, 0, '>>>', '<<<', '...', 40),
			       bm25(fts_messages)
			FROM fts_messages
			WHERE %s
			ORDER BY rank
			LIMIT ?`, strings.Join(conditions, " AND "))
	}
	args = append(args, fetch)

	rows, err := db.Raw().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	cjk := containsCJK(opts.Query)
	var hits []MessageHit
	for rows.Next() {
		var h MessageHit
		if err := rows.Scan(&h.SessionID, &h.ProjectName, &h.MessageIndex, &h.Role, &h.Timestamp, &h.Snippet, &h.Rank); err != nil {
			return nil, err
		}
		if cjk {
			h.Snippet = makeSnippet(h.Snippet, opts.Query, 30)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if opts.OnePerSession {
		hits = dedup(hits, opts.Limit, func(h MessageHit) string { return h.SessionID })
	}
	return hits, nil
}

// Tools searches tool names, inputs and results.
func Tools(ctx context.Context, db *index.DB, opts Options) ([]ToolHit, error) {
	if err := ready(ctx, db); err != nil {
		return nil, err
	}
	fetch := normalize(&opts)

	var conditions []string
	var args []any
	var query string
	if containsCJK(opts.Query) {
		conditions = append(conditions, "(COALESCE(t.tool_input, '') || ' ' || COALESCE(t.tool_result, '')) LIKE ?")
		args = append(args, "%"+opts.Query+"%")
		if opts.Project != "" {
			conditions = append(conditions, "p.project_name = ?")
			args = append(args, opts.Project)
		}
		query = fmt.Sprintf(`
			SELECT t.tool_use_id, t.session_id, p.project_name, t.tool_name, t.timestamp,
			       COALESCE(t.tool_input, '') || ' ' || COALESCE(t.tool_result, ''), 0
			FROM tool_uses t
			JOIN sessions s ON t.session_id = s.session_id
			JOIN projects p ON s.project_id = p.project_id
			WHERE %s
			ORDER BY t.timestamp DESC
			LIMIT ?`, strings.Join(conditions, " AND "))
	} else {
		conditions = append(conditions, "fts_tool_uses MATCH ?")
		args = append(args, opts.Query)
		if opts.Project != "" {
			conditions = append(conditions, "project_name = ?")
			args = append(args, opts.Project)
		}
		query = fmt.Sprintf(`
			SELECT tool_use_id, session_id, project_name, tool_name, timestamp,
			       snippet(fts_tool_uses, -1, '>>>', '<<<', '...', 40),
			       bm25(fts_tool_uses)
			FROM fts_tool_uses
			WHERE %s
			ORDER BY rank
			LIMIT ?`, strings.Join(conditions, " AND "))
	}
	args = append(args, fetch)

	rows, err := db.Raw().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	cjk := containsCJK(opts.Query)
	var hits []ToolHit
	for rows.Next() {
		var h ToolHit
		if err := rows.Scan(&h.ToolUseID, &h.SessionID, &h.ProjectName, &h.ToolName, &h.Timestamp, &h.Snippet, &h.Rank); err != nil {
			return nil, err
		}
		if cjk {
			h.Snippet = makeSnippet(h.Snippet, opts.Query, 30)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if opts.OnePerSession {
		hits = dedup(hits, opts.Limit, func(h ToolHit) string { return h.SessionID })
	}
	return hits, nil
}

func dedup[T any](hits []T, limit int, key func(T) string) []T {
	seen := make(map[string]bool)
	var out []T
	for _, h := range hits {
		k := key(h)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, h)
		if len(out) >= limit {
			break
		}
	}
	return out
}
