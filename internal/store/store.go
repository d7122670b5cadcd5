// Package store persists scan results to SQLite so reports can be generated
// after the fact and repeated scans can be compared.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database connection.
type Store struct {
	conn *sql.DB
	path string
}

// DefaultPath returns ~/.soc2guard/scan.db, creating the directory if needed.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, ".soc2guard")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "scan.db"), nil
}

// Open opens or creates the database at the given path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &Store{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying *sql.DB for advanced queries.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scans (
    id                 TEXT PRIMARY KEY,
    root_path          TEXT NOT NULL,
    mode               TEXT NOT NULL CHECK(mode IN ('regex_only','smart','analyze_all')),
    model              TEXT NOT NULL,
    files_total        INTEGER NOT NULL DEFAULT 0,
    files_scanned      INTEGER NOT NULL DEFAULT 0,
    files_failed       INTEGER NOT NULL DEFAULT 0,
    input_tokens       INTEGER NOT NULL DEFAULT 0,
    output_tokens      INTEGER NOT NULL DEFAULT 0,
    cache_read_tokens  INTEGER NOT NULL DEFAULT 0,
    cache_write_tokens INTEGER NOT NULL DEFAULT 0,
    cost_usd           REAL NOT NULL DEFAULT 0,
    started_at         TEXT NOT NULL DEFAULT (datetime('now')),
    finished_at        TEXT
);

CREATE TABLE IF NOT EXISTS violations (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id            TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
    control_id         TEXT NOT NULL,
    severity           TEXT NOT NULL CHECK(severity IN ('critical','high','medium','low')),
    description        TEXT NOT NULL,
    file_path          TEXT NOT NULL,
    line_number        INTEGER NOT NULL,
    code_snippet       TEXT,
    detection_method   TEXT NOT NULL CHECK(detection_method IN ('pattern','semantic','hybrid')),
    confidence_score   INTEGER,
    pattern_reasoning  TEXT,
    semantic_reasoning TEXT
);
CREATE INDEX IF NOT EXISTS idx_violations_scan ON violations(scan_id, control_id);
CREATE INDEX IF NOT EXISTS idx_violations_file ON violations(scan_id, file_path);

CREATE TABLE IF NOT EXISTS fixes (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id       TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
    control_id    TEXT NOT NULL,
    file_path     TEXT NOT NULL,
    line_number   INTEGER NOT NULL,
    original_code TEXT,
    fixed_code    TEXT NOT NULL,
    explanation   TEXT,
    trust_level   TEXT NOT NULL CHECK(trust_level IN ('auto','review','manual'))
);
CREATE INDEX IF NOT EXISTS idx_fixes_scan ON fixes(scan_id, file_path);

CREATE TABLE IF NOT EXISTS scan_events (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id   TEXT NOT NULL,
    event     TEXT NOT NULL CHECK(event IN ('started','file_done','file_failed','limit_hit','resumed','stopped','finished')),
    file_path TEXT,
    detail    TEXT,
    timestamp TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_events_scan ON scan_events(scan_id, timestamp DESC);
`

// Migrate applies the database schema.
func (s *Store) Migrate() error {
	var count int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (s *Store) Reset() error {
	tables := []string{"scan_events", "fixes", "violations", "scans", "schema_version"}
	for _, t := range tables {
		if _, err := s.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return s.Migrate()
}
