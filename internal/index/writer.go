package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Zuo-Peng/cc-analytics/internal/parse"
	"github.com/Zuo-Peng/cc-analytics/internal/reconcile"
	"github.com/Zuo-Peng/cc-analytics/internal/scan"
)

var (
	// ErrSessionExists is returned when a session expected to be new is
	// already present, typically because another writer got there first.
	ErrSessionExists = errors.New("session already exists")
	// ErrIndexConflict is returned when a message index about to be
	// inserted is already persisted for the session.
	ErrIndexConflict = errors.New("message index already persisted")
	// ErrBatchAborted is returned once a failed session could not be undone;
	// nothing more is written and the batch can only be rolled back.
	ErrBatchAborted = errors.New("batch aborted")
)

// Applied reports the rows a delta actually added.
type Applied struct {
	NewSession bool
	Messages   int
	ToolUses   int
}

// Batch groups the writes of several sessions into one transaction. Each
// session is applied under its own savepoint so a failure rolls back only
// that session.
type Batch struct {
	tx       *sql.Tx
	sessions int
	err      error
}

func (d *DB) Begin(ctx context.Context) (*Batch, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &Batch{tx: tx}, nil
}

// Sessions returns how many sessions were applied since the batch began.
func (b *Batch) Sessions() int {
	return b.sessions
}

// Err returns the error that aborted the batch, if any.
func (b *Batch) Err() error {
	return b.err
}

// Commit commits the batch, or rolls it back and returns the abort error
// when a session could not be undone.
func (b *Batch) Commit() error {
	if b.err != nil {
		_ = b.tx.Rollback()
		return b.err
	}
	return b.tx.Commit()
}

func (b *Batch) Rollback() error {
	return b.tx.Rollback()
}

// Prior loads the persisted state of a session.
func (b *Batch) Prior(ctx context.Context, sessionID string) (reconcile.Prior, error) {
	return sessionPrior(ctx, b.tx, sessionID)
}

// FileUnchanged reports whether fi matches the fingerprint recorded when the
// file was last imported and the session it produced is still stored.
func (b *Batch) FileUnchanged(ctx context.Context, fi scan.FileInfo) (bool, error) {
	var mtime, size int64
	err := b.tx.QueryRowContext(ctx,
		`SELECT f.mtime, f.size FROM source_files f
		 LEFT JOIN sessions s ON s.session_id = f.session_id
		 WHERE f.file_path = ? AND (f.session_id IS NULL OR s.session_id IS NOT NULL)`,
		fi.Path,
	).Scan(&mtime, &size)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return mtime == fi.Mtime && size == fi.Size, nil
}

// MarkFile records the fingerprint of a file whose content is fully
// reflected in the store.
func (b *Batch) MarkFile(ctx context.Context, fi scan.FileInfo) error {
	if b.err != nil {
		return b.err
	}
	return markFile(ctx, b.tx, fi)
}

// Apply persists a delta for a session of projectID. When fi is not nil its
// fingerprint is recorded in the same savepoint.
func (b *Batch) Apply(ctx context.Context, projectID string, d reconcile.Delta, fi *scan.FileInfo) (Applied, error) {
	if b.err != nil {
		return Applied{}, b.err
	}
	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT apply_session"); err != nil {
		return Applied{}, err
	}

	applied, err := applyDelta(ctx, b.tx, projectID, d)
	if err == nil && fi != nil {
		err = markFile(ctx, b.tx, *fi)
	}
	if err != nil {
		// must run even when ctx is already cancelled
		if undoErr := b.undo(context.WithoutCancel(ctx)); undoErr != nil {
			return Applied{}, errors.Join(err, undoErr)
		}
		return Applied{}, err
	}

	if _, err := b.tx.ExecContext(ctx, "RELEASE apply_session"); err != nil {
		return Applied{}, err
	}
	b.sessions++
	return applied, nil
}

// undo discards the writes of the open session savepoint. ROLLBACK TO keeps
// the savepoint open, so it is released as well. When either fails the
// session's partial rows may still be in the transaction, and the batch is
// aborted.
func (b *Batch) undo(ctx context.Context) error {
	if _, err := b.tx.ExecContext(ctx, "ROLLBACK TO apply_session"); err != nil {
		b.err = fmt.Errorf("%w: rollback session: %v", ErrBatchAborted, err)
		return b.err
	}
	if _, err := b.tx.ExecContext(ctx, "RELEASE apply_session"); err != nil {
		b.err = fmt.Errorf("%w: release session: %v", ErrBatchAborted, err)
		return b.err
	}
	return nil
}

func applyDelta(ctx context.Context, q queryer, projectID string, d reconcile.Delta) (Applied, error) {
	applied := Applied{NewSession: d.IsNew}

	if _, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO projects (project_id, project_name) VALUES (?, ?)",
		projectID, parse.DecodeProjectName(projectID),
	); err != nil {
		return applied, fmt.Errorf("insert project: %w", err)
	}

	if d.IsNew {
		res, err := q.ExecContext(ctx,
			`INSERT INTO sessions (session_id, project_id, start_time, end_time, message_count, tool_use_count)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(session_id) DO NOTHING`,
			d.SessionID, projectID, d.StartTime, d.EndTime, d.MessageCount, d.ToolUseCount,
		)
		if err != nil {
			return applied, fmt.Errorf("insert session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return applied, ErrSessionExists
		}
	} else {
		if _, err := q.ExecContext(ctx,
			"UPDATE sessions SET end_time = ?, message_count = ? WHERE session_id = ?",
			d.EndTime, d.MessageCount, d.SessionID,
		); err != nil {
			return applied, fmt.Errorf("update session: %w", err)
		}
	}

	for _, m := range d.Messages {
		if err := insertMessage(ctx, q, m); err != nil {
			return applied, err
		}
		applied.Messages++
	}

	for _, tu := range d.ToolUses {
		res, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO tool_uses
			 (tool_use_id, session_id, message_index, tool_name, tool_input, tool_result, is_error, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			tu.ToolUseID, tu.SessionID, tu.MessageIndex, tu.ToolName,
			nullString(tu.ToolInput), nullString(tu.ToolResult), tu.IsError, tu.Timestamp,
		)
		if err != nil {
			return applied, fmt.Errorf("insert tool use %s: %w", tu.ToolUseID, err)
		}
		n, _ := res.RowsAffected()
		applied.ToolUses += int(n)
	}

	// ids already owned by another session are ignored above, so count what landed
	if _, err := q.ExecContext(ctx,
		`UPDATE sessions SET tool_use_count = (SELECT COUNT(*) FROM tool_uses WHERE session_id = ?)
		 WHERE session_id = ?`,
		d.SessionID, d.SessionID,
	); err != nil {
		return applied, fmt.Errorf("count tool uses: %w", err)
	}
	return applied, nil
}

func insertMessage(ctx context.Context, q queryer, m parse.MessageRow) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO messages
		 (session_id, message_index, role, content, timestamp,
		  input_tokens, output_tokens, cache_creation_input_tokens, cache_read_input_tokens,
		  cache_ephemeral_5m_tokens, cache_ephemeral_1h_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SessionID, m.Index, m.Role, m.Content, m.Timestamp,
		nullInt(m.Tokens.Input), nullInt(m.Tokens.Output),
		nullInt(m.Tokens.CacheCreation), nullInt(m.Tokens.CacheRead),
		nullInt(m.Tokens.CacheEphemeral5m), nullInt(m.Tokens.CacheEphemeral1h),
	)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: session %s index %d", ErrIndexConflict, m.SessionID, m.Index)
	}
	return fmt.Errorf("insert message %d: %w", m.Index, err)
}

func sessionPrior(ctx context.Context, q queryer, sessionID string) (reconcile.Prior, error) {
	prior := reconcile.NewSession()
	err := q.QueryRowContext(ctx,
		"SELECT project_id, tool_use_count FROM sessions WHERE session_id = ?", sessionID,
	).Scan(&prior.ProjectID, &prior.ToolUseCount)
	if err == sql.ErrNoRows {
		return prior, nil
	}
	if err != nil {
		return prior, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	prior.Exists = true

	var maxIndex sql.NullInt64
	if err := q.QueryRowContext(ctx,
		"SELECT MAX(message_index) FROM messages WHERE session_id = ?", sessionID,
	).Scan(&maxIndex); err != nil {
		return prior, fmt.Errorf("load watermark %s: %w", sessionID, err)
	}
	if maxIndex.Valid {
		prior.MaxIndex = int(maxIndex.Int64)
	}
	return prior, nil
}

// markFile upserts the fingerprint of fi, linking it to the session row when
// one exists.
func markFile(ctx context.Context, q queryer, fi scan.FileInfo) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO source_files (file_path, session_id, mtime, size, imported_at)
		 VALUES (?, (SELECT session_id FROM sessions WHERE session_id = ?), ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(file_path) DO UPDATE SET
		   session_id = excluded.session_id,
		   mtime = excluded.mtime,
		   size = excluded.size,
		   imported_at = excluded.imported_at`,
		fi.Path, fi.SessionID, fi.Mtime, fi.Size,
	)
	if err != nil {
		return fmt.Errorf("record file %s: %w", fi.Path, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
