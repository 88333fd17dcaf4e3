// Package storage provides the session-scoped key-value persistence used by
// the browsing stores, plus the lenient JSON field codec for reading it back.
package storage

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store is a session-scoped key-value store of JSON-serializable blobs.
// Set may fail (disk, quota); callers catch and log, never propagate —
// in-memory state stays authoritative.
type Store interface {
	// Get returns the stored value, or ok=false when the key is absent.
	Get(key string) (value string, ok bool)

	// Set stores a value under key.
	Set(key, value string) error

	// Remove deletes a key. Removing an absent key is a no-op.
	Remove(key string)
}

// SessionStore is a sqlite-backed Store. Values are scoped to a session id,
// so a new session starts with a clean slate while a resumed session sees
// everything written during it.
type SessionStore struct {
	db        *sql.DB
	sessionID string
	logger    *slog.Logger
}

// Open creates or opens the state database at dbPath and scopes all
// operations to sessionID.
func Open(dbPath, sessionID string, logger *slog.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &SessionStore{db: db, sessionID: sessionID, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_state (
		session_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, key)
	);

	CREATE INDEX IF NOT EXISTS idx_session_state_session ON session_state(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Get returns the value stored under key for this session.
func (s *SessionStore) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM session_state WHERE session_id = ? AND key = ?`,
		s.sessionID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		s.logger.Warn("session state read failed", "key", key, "error", err)
		return "", false
	}
	return value, true
}

// Set stores value under key for this session.
func (s *SessionStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO session_state (session_id, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, s.sessionID, key, value)
	return err
}

// Remove deletes key for this session.
func (s *SessionStore) Remove(key string) {
	if _, err := s.db.Exec(
		`DELETE FROM session_state WHERE session_id = ? AND key = ?`,
		s.sessionID, key,
	); err != nil {
		s.logger.Warn("session state delete failed", "key", key, "error", err)
	}
}

// Reset wipes every value belonging to this session. Called when the
// session ends.
func (s *SessionStore) Reset() error {
	_, err := s.db.Exec(`DELETE FROM session_state WHERE session_id = ?`, s.sessionID)
	return err
}

var _ Store = (*SessionStore)(nil)
