// Package storage persists the ledgers to SQLite. The in-memory ledgers stay
// authoritative; the server writes through after each committed mutation and
// the daemon reloads everything on boot.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to a SQLite database.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) a SQLite database at path and runs schema
// migrations.
func NewDB(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	// Enable foreign keys.
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	d := &DB{db: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// migrate creates all required tables if they do not already exist.
func (d *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS config (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    required_bond INTEGER NOT NULL,
    paused INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS agents (
    id INTEGER PRIMARY KEY,
    owner TEXT NOT NULL UNIQUE,
    uri TEXT NOT NULL,
    bond INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id INTEGER NOT NULL,
    reviewer TEXT NOT NULL,
    rating INTEGER NOT NULL,
    evidence_uri TEXT,
    task_hash TEXT,
    at INTEGER NOT NULL,
    FOREIGN KEY (agent_id) REFERENCES agents(id)
);

CREATE TABLE IF NOT EXISTS validation_requests (
    id INTEGER PRIMARY KEY,
    agent_id INTEGER NOT NULL,
    task_hash TEXT,
    task_uri TEXT,
    requester TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    completed INTEGER DEFAULT 0,
    FOREIGN KEY (agent_id) REFERENCES agents(id)
);

CREATE TABLE IF NOT EXISTS validation_responses (
    validation_id INTEGER PRIMARY KEY,
    validator TEXT NOT NULL,
    is_valid INTEGER NOT NULL,
    proof_uri TEXT,
    at INTEGER NOT NULL,
    FOREIGN KEY (validation_id) REFERENCES validation_requests(id)
);

CREATE TABLE IF NOT EXISTS categories (
    agent_id INTEGER PRIMARY KEY,
    category TEXT NOT NULL,
    FOREIGN KEY (agent_id) REFERENCES agents(id)
);

CREATE TABLE IF NOT EXISTS stakes (
    agent_id INTEGER PRIMARY KEY,
    amount INTEGER NOT NULL,
    tier TEXT NOT NULL,
    active INTEGER DEFAULT 1,
    unstake_requested_at INTEGER DEFAULT 0,
    FOREIGN KEY (agent_id) REFERENCES agents(id)
);

CREATE TABLE IF NOT EXISTS claims (
    id INTEGER PRIMARY KEY,
    agent_id INTEGER NOT NULL,
    claimant TEXT NOT NULL,
    amount INTEGER NOT NULL,
    validation_id INTEGER NOT NULL,
    evidence_uri TEXT,
    dispute_uri TEXT,
    status TEXT NOT NULL,
    filed_at INTEGER NOT NULL,
    resolved_at INTEGER DEFAULT 0,
    FOREIGN KEY (agent_id) REFERENCES agents(id),
    FOREIGN KEY (validation_id) REFERENCES validation_requests(id)
);

CREATE TABLE IF NOT EXISTS balances (
    address TEXT PRIMARY KEY,
    amount INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY,
    id TEXT NOT NULL,
    kind TEXT NOT NULL,
    agent_id INTEGER,
    actor TEXT,
    payload TEXT,
    at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_agent ON feedback(agent_id);
CREATE INDEX IF NOT EXISTS idx_validation_requests_agent ON validation_requests(agent_id);
CREATE INDEX IF NOT EXISTS idx_claims_agent ON claims(agent_id);
CREATE INDEX IF NOT EXISTS idx_categories_category ON categories(category);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);`
	_, err := d.db.Exec(schema)
	return err
}

// boolToInt converts a bool to an integer (0 or 1) for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
