package index

import (
	"context"
	"fmt"
)

const ftsSchema = `
DROP TABLE IF EXISTS fts_messages;
DROP TABLE IF EXISTS fts_tool_uses;

CREATE VIRTUAL TABLE fts_messages USING fts5(
    content,
    role,
    project_name,
    session_id,
    message_id UNINDEXED,
    timestamp UNINDEXED,
    message_index UNINDEXED,
    tokenize = 'porter unicode61'
);

CREATE VIRTUAL TABLE fts_tool_uses USING fts5(
    tool_name,
    tool_input,
    tool_result,
    project_name,
    session_id,
    tool_use_id UNINDEXED,
    timestamp UNINDEXED,
    tokenize = 'porter unicode61'
);
`

// FTSCounts is the number of rows in each full-text table.
type FTSCounts struct {
	Messages int
	ToolUses int
}

// RebuildSearchIndex drops and repopulates the full-text tables from the
// messages and tool_uses tables. Messages with empty content are not indexed.
func (d *DB) RebuildSearchIndex(ctx context.Context) (FTSCounts, error) {
	var counts FTSCounts

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, ftsSchema); err != nil {
		return counts, fmt.Errorf("create fts tables: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO fts_messages (rowid, content, role, project_name, session_id, message_id, timestamp, message_index)
		SELECT m.message_id, m.content, m.role, p.project_name, m.session_id, m.message_id, m.timestamp, m.message_index
		FROM messages m
		JOIN sessions s ON m.session_id = s.session_id
		JOIN projects p ON s.project_id = p.project_id
		WHERE m.content IS NOT NULL AND LENGTH(m.content) > 0`)
	if err != nil {
		return counts, fmt.Errorf("populate fts_messages: %w", err)
	}
	n, _ := res.RowsAffected()
	counts.Messages = int(n)

	res, err = tx.ExecContext(ctx, `
		INSERT INTO fts_tool_uses (rowid, tool_name, tool_input, tool_result, project_name, session_id, tool_use_id, timestamp)
		SELECT t.rowid, t.tool_name, t.tool_input, t.tool_result, p.project_name, t.session_id, t.tool_use_id, t.timestamp
		FROM tool_uses t
		JOIN sessions s ON t.session_id = s.session_id
		JOIN projects p ON s.project_id = p.project_id`)
	if err != nil {
		return counts, fmt.Errorf("populate fts_tool_uses: %w", err)
	}
	n, _ = res.RowsAffected()
	counts.ToolUses = int(n)

	return counts, tx.Commit()
}

// SearchIndexCounts returns the row counts of the full-text tables. ok is
// false when they have not been built yet.
func (d *DB) SearchIndexCounts(ctx context.Context) (counts FTSCounts, ok bool, err error) {
	var n int
	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('fts_messages', 'fts_tool_uses')",
	).Scan(&n); err != nil {
		return counts, false, err
	}
	if n < 2 {
		return counts, false, nil
	}
	if counts.Messages, err = d.count(ctx, "fts_messages"); err != nil {
		return counts, false, err
	}
	if counts.ToolUses, err = d.count(ctx, "fts_tool_uses"); err != nil {
		return counts, false, err
	}
	return counts, true, nil
}
