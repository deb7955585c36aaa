// Package identity persists the active session's account id across
// restarts. The store is read once at startup and written on login or
// account creation; nothing ever clears it.
package identity

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const accountIDKey = "account_id"

// Store wraps the SQLite-backed identity.db for one profile.
type Store struct {
	db *sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open identity db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping identity db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AccountID returns the persisted account id, with ok=false when no
// account has ever logged in on this profile.
func (s *Store) AccountID() (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM identity WHERE key = ?`, accountIDKey).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read account id: %w", err)
	}
	return value, true, nil
}

// SetAccountID persists the account id, replacing any previous value.
func (s *Store) SetAccountID(id string) error {
	_, err := s.db.Exec(`
		INSERT INTO identity (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		accountIDKey, id)
	if err != nil {
		return fmt.Errorf("persist account id: %w", err)
	}
	return nil
}
