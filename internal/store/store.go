// Package store implements Concord persistence over SQLite. It is the
// authoritative source for users, servers, memberships, channels, messages,
// direct conversations, and invites, and it assigns every message its
// identity before any realtime event can reference it. The store also backs
// the membership oracle's read-only directory lookups.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique constraint rejects a write.
var ErrDuplicate = errors.New("record already exists")

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS servers (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	owner_id   TEXT NOT NULL REFERENCES users(id),
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS server_members (
	server_id  TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (server_id, user_id)
);

CREATE TABLE IF NOT EXISTS channels (
	id         TEXT PRIMARY KEY,
	server_id  TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_channels_server ON channels(server_id, created_at);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	author_id  TEXT NOT NULL REFERENCES users(id),
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	is_edited  INTEGER NOT NULL DEFAULT 0,
	deleted_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at);

CREATE TABLE IF NOT EXISTS dm_conversations (
	id         TEXT PRIMARY KEY,
	user_a_id  TEXT NOT NULL REFERENCES users(id),
	user_b_id  TEXT NOT NULL REFERENCES users(id),
	created_at INTEGER NOT NULL,
	UNIQUE (user_a_id, user_b_id),
	CHECK (user_a_id < user_b_id)
);

CREATE TABLE IF NOT EXISTS dm_messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES dm_conversations(id) ON DELETE CASCADE,
	author_id       TEXT NOT NULL REFERENCES users(id),
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	is_edited       INTEGER NOT NULL DEFAULT 0,
	deleted_at      INTEGER
);
CREATE INDEX IF NOT EXISTS idx_dm_messages_conversation ON dm_messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS invites (
	id            TEXT PRIMARY KEY,
	server_id     TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
	token         TEXT NOT NULL UNIQUE,
	created_by_id TEXT NOT NULL REFERENCES users(id),
	expires_at    INTEGER,
	max_uses      INTEGER NOT NULL DEFAULT 0,
	use_count     INTEGER NOT NULL DEFAULT 0,
	is_active     INTEGER NOT NULL DEFAULT 1,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invites_server ON invites(server_id, created_at);
`

// Store wraps the SQLite database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies the
// schema. The DSN enables WAL, foreign keys, and a busy timeout so concurrent
// request handlers do not trip over each other.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// isUniqueViolation detects SQLite unique-constraint failures.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
