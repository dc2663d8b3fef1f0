// Package cache implements the hot tier of the note store: a SQLite-backed
// key-value table holding one PageRecord per normalized URL. It is available
// to every execution context without folder access, is volatile/best-effort,
// and is never the sole source of truth once durable access exists.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/beyondguo/webnote/internal/models"
	"github.com/beyondguo/webnote/internal/urlutil"
)

const keyPrefix = "cache_"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store wraps a sql.DB with cache-specific operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the cache database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func cacheKey(rawURL string) string {
	return keyPrefix + urlutil.Normalize(rawURL)
}

// Get returns the cached PageRecord for a URL, or nil when absent.
func (s *Store) Get(rawURL string) (*models.PageRecord, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, cacheKey(rawURL)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get: %w", err)
	}
	var rec models.PageRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", cacheKey(rawURL), err)
	}
	return &rec, nil
}

// Put stores the whole PageRecord under the URL's cache key.
func (s *Store) Put(rawURL string, rec *models.PageRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	_, err = s.conn.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, cacheKey(rawURL), string(value), time.Now())
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// Remove deletes the cache entry for a URL. Removing a missing entry is a no-op.
func (s *Store) Remove(rawURL string) error {
	if _, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, cacheKey(rawURL)); err != nil {
		return fmt.Errorf("cache: remove: %w", err)
	}
	return nil
}

// ListAll returns every cached PageRecord, ordered by key. Entries that fail
// to decode are skipped rather than aborting the enumeration.
func (s *Store) ListAll() ([]models.PageRecord, error) {
	rows, err := s.conn.Query(`SELECT value FROM kv WHERE key LIKE ? ORDER BY key`, keyPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("cache: list: %w", err)
	}
	defer rows.Close()

	out := []models.PageRecord{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		var rec models.PageRecord
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			continue
		}
		if rec.URL == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AddNote prepends a note to the page's cached record, creating the record on
// first save. The call is idempotent on the note id: a duplicate id leaves the
// record untouched.
func (s *Store) AddNote(page models.PageInfo, note models.Note) error {
	rec, err := s.Get(page.URL)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &models.PageRecord{
			URL:       page.URL,
			PageTitle: page.Title,
			CreatedAt: time.Now(),
			Notes:     []models.Note{},
		}
	}
	if !rec.PrependNote(note) {
		return nil
	}
	return s.Put(page.URL, rec)
}

// RemoveNote deletes a note from the cached record. When the last note is
// removed the whole entry is dropped. A missing record or note id is a no-op.
func (s *Store) RemoveNote(rawURL, noteID string) error {
	rec, err := s.Get(rawURL)
	if err != nil {
		return err
	}
	if rec == nil || !rec.RemoveNote(noteID) {
		return nil
	}
	if len(rec.Notes) == 0 {
		return s.Remove(rawURL)
	}
	return s.Put(rawURL, rec)
}

// UpdateNote applies a partial note edit to the cached record. Missing record
// or note id is a no-op: the file tier is the authoritative target for edits.
func (s *Store) UpdateNote(rawURL, noteID string, upd models.NoteUpdate) error {
	rec, err := s.Get(rawURL)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	n := rec.FindNote(noteID)
	if n == nil {
		return nil
	}
	upd.Apply(n, time.Now())
	return s.Put(rawURL, rec)
}

// UpdateTitle sets the page title (and custom-title override) on the cached
// record, if one exists.
func (s *Store) UpdateTitle(rawURL, title string) error {
	rec, err := s.Get(rawURL)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.PageTitle = title
	rec.CustomTitle = title
	rec.UpdatedAt = time.Now()
	return s.Put(rawURL, rec)
}
