// Package handle manages the directory capability: an opaque, revocable
// grant naming the user-chosen notes directory. The grant is persisted in
// its own small SQLite database so that independently started execution
// contexts (the HTTP server, the MCP process, background workers) can each
// recover the same capability; in-memory handles are never shared across
// contexts.
package handle

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Handle names a granted notes directory.
type Handle struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	GrantedAt time.Time `json:"grantedAt"`
}

const storeSchemaSQL = `
CREATE TABLE IF NOT EXISTS handle (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	path       TEXT NOT NULL,
	name       TEXT NOT NULL,
	approved   INTEGER NOT NULL DEFAULT 1,
	granted_at DATETIME NOT NULL
);
`

// Store persists the single directory handle record.
type Store struct {
	conn *sql.DB
}

// OpenStore opens (or creates) the handle database and applies the schema.
func OpenStore(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("handle: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handle: ping: %w", err)
	}
	if _, err := conn.Exec(storeSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handle: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Save persists the handle and marks it approved, replacing any prior grant.
func (s *Store) Save(h *Handle) error {
	_, err := s.conn.Exec(`
		INSERT INTO handle (id, path, name, approved, granted_at)
		VALUES (1, ?, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			path       = excluded.path,
			name       = excluded.name,
			approved   = 1,
			granted_at = excluded.granted_at
	`, h.Path, h.Name, h.GrantedAt)
	if err != nil {
		return fmt.Errorf("handle: save: %w", err)
	}
	return nil
}

// Restore returns the persisted handle and whether its approval is still in
// force. A missing record yields (nil, false, nil).
func (s *Store) Restore() (*Handle, bool, error) {
	var h Handle
	var approved int
	err := s.conn.QueryRow(`SELECT path, name, approved, granted_at FROM handle WHERE id = 1`).
		Scan(&h.Path, &h.Name, &approved, &h.GrantedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("handle: restore: %w", err)
	}
	return &h, approved != 0, nil
}

// MarkRevoked drops the approval flag while keeping the handle record, so a
// later interactive context can re-request permission instead of starting
// from scratch. A missing record is a no-op.
func (s *Store) MarkRevoked() error {
	if _, err := s.conn.Exec(`UPDATE handle SET approved = 0 WHERE id = 1`); err != nil {
		return fmt.Errorf("handle: revoke: %w", err)
	}
	return nil
}
