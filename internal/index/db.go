package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA cache_size = -64000;

CREATE TABLE IF NOT EXISTS projects (
    project_id   TEXT PRIMARY KEY,
    project_name TEXT NOT NULL,
    created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sessions (
    session_id     TEXT PRIMARY KEY,
    project_id     TEXT NOT NULL,
    start_time     TEXT,
    end_time       TEXT,
    message_count  INTEGER DEFAULT 0,
    tool_use_count INTEGER DEFAULT 0,
    created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (project_id) REFERENCES projects(project_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS messages (
    message_id    INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    TEXT NOT NULL,
    message_index INTEGER NOT NULL,
    role          TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
    content       TEXT,
    timestamp     TEXT NOT NULL,
    input_tokens                INTEGER,
    output_tokens               INTEGER,
    cache_creation_input_tokens INTEGER,
    cache_read_input_tokens     INTEGER,
    cache_ephemeral_5m_tokens   INTEGER,
    cache_ephemeral_1h_tokens   INTEGER,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE,
    UNIQUE(session_id, message_index)
);

CREATE TABLE IF NOT EXISTS tool_uses (
    tool_use_id   TEXT PRIMARY KEY,
    session_id    TEXT NOT NULL,
    message_index INTEGER NOT NULL,
    tool_name     TEXT NOT NULL,
    tool_input    TEXT,
    tool_result   TEXT,
    is_error      BOOLEAN DEFAULT 0,
    timestamp     TEXT NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);

CREATE INDEX IF NOT EXISTS idx_sessions_project_id ON sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);
CREATE INDEX IF NOT EXISTS idx_sessions_end_time ON sessions(end_time);
CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_role ON messages(role);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
CREATE INDEX IF NOT EXISTS idx_tool_uses_session_id ON tool_uses(session_id);
CREATE INDEX IF NOT EXISTS idx_tool_uses_tool_name ON tool_uses(tool_name);
CREATE INDEX IF NOT EXISTS idx_tool_uses_timestamp ON tool_uses(timestamp);
CREATE INDEX IF NOT EXISTS idx_tool_uses_is_error ON tool_uses(is_error);

CREATE VIEW IF NOT EXISTS project_summary AS
SELECT
    p.project_id,
    p.project_name,
    COUNT(DISTINCT s.session_id) AS total_sessions,
    MIN(s.start_time) AS first_session,
    MAX(s.end_time) AS last_session,
    COALESCE(SUM(s.message_count), 0) AS total_messages,
    COALESCE(SUM(s.tool_use_count), 0) AS total_tool_uses
FROM projects p
LEFT JOIN sessions s ON p.project_id = s.project_id
GROUP BY p.project_id, p.project_name;

CREATE VIEW IF NOT EXISTS session_summary AS
SELECT
    s.session_id,
    s.project_id,
    p.project_name,
    s.start_time,
    s.end_time,
    CAST(ROUND((julianday(s.end_time) - julianday(s.start_time)) * 86400) AS INTEGER) AS duration_seconds,
    s.message_count,
    s.tool_use_count,
    COUNT(DISTINCT CASE WHEN m.role = 'user' THEN m.message_id END) AS user_message_count,
    COUNT(DISTINCT CASE WHEN m.role = 'assistant' THEN m.message_id END) AS assistant_message_count
FROM sessions s
INNER JOIN projects p ON s.project_id = p.project_id
LEFT JOIN messages m ON s.session_id = m.session_id
GROUP BY s.session_id;

CREATE VIEW IF NOT EXISTS tool_usage_summary AS
SELECT
    tool_name,
    COUNT(*) AS total_uses,
    SUM(CASE WHEN is_error = 1 THEN 1 ELSE 0 END) AS error_count,
    ROUND(SUM(CASE WHEN is_error = 1 THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) AS error_rate_percent,
    COUNT(DISTINCT session_id) AS sessions_used_in,
    MIN(timestamp) AS first_used,
    MAX(timestamp) AS last_used
FROM tool_uses
GROUP BY tool_name
ORDER BY total_uses DESC;
`

// schemaVersion should be bumped whenever decoding or extraction changes in
// a way that requires every transcript to be decoded again.
const schemaVersion = "2"

// sourceFiles holds the last seen mtime/size per transcript, to skip
// unchanged files. session_id is NULL for files that produced no session;
// a fingerprint goes away with the session it describes.
const sourceFiles = `
CREATE TABLE IF NOT EXISTS source_files (
    file_path   TEXT PRIMARY KEY,
    session_id  TEXT,
    mtime       INTEGER NOT NULL DEFAULT 0,
    size        INTEGER NOT NULL DEFAULT 0,
    imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_source_files_session_id ON source_files(session_id);
`

type DB struct {
	db   *sql.DB
	path string
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// single writer: one connection, and reads during an import go through its transaction
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema + sourceFiles); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	d := &DB{db: db, path: dbPath}
	if err := d.migrateSchemaVersion(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return d, nil
}

func (d *DB) migrateSchemaVersion() error {
	var ver string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&ver)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if ver == schemaVersion {
		return nil
	}
	// forget file fingerprints so every transcript is decoded again
	if _, err := d.db.Exec("DROP TABLE IF EXISTS source_files"); err != nil {
		return err
	}
	if _, err := d.db.Exec(sourceFiles); err != nil {
		return err
	}
	_, err = d.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Raw() *sql.DB {
	return d.db
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) count(ctx context.Context, table string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	return n, err
}

func (d *DB) ProjectCount(ctx context.Context) (int, error) { return d.count(ctx, "projects") }
func (d *DB) SessionCount(ctx context.Context) (int, error) { return d.count(ctx, "sessions") }
func (d *DB) MessageCount(ctx context.Context) (int, error) { return d.count(ctx, "messages") }
func (d *DB) ToolUseCount(ctx context.Context) (int, error) { return d.count(ctx, "tool_uses") }
