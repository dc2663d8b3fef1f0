// Package pagefile implements the durable tier of the note store: one
// pretty-printed JSON document per page plus one markdown snapshot per page,
// inside the user-granted directory. Filenames derive deterministically from
// the hash of the normalized URL, so file identity is stable across note
// edits and title changes.
package pagefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beyondguo/webnote/internal/apperr"
	"github.com/beyondguo/webnote/internal/models"
	"github.com/beyondguo/webnote/internal/urlutil"
)

// FS performs file operations inside a granted notes directory. Callers are
// expected to have verified access via the handle holder for every call;
// the FS itself is cheap to construct per operation.
type FS struct {
	root string
}

// New returns an FS rooted at the granted directory.
func New(root string) *FS {
	return &FS{root: root}
}

// path joins a derived filename against the root, rejecting anything that
// would escape it.
func (f *FS) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("pagefile: invalid file name %q", name)
	}
	return filepath.Join(f.root, name), nil
}

// write atomically replaces a file: tmp file, fsync, rename.
func (f *FS) write(name string, content []byte) error {
	abs, err := f.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.root, ".webnote-tmp-*")
	if err != nil {
		return fmt.Errorf("pagefile: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("pagefile: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("pagefile: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pagefile: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("pagefile: rename: %w", err)
	}
	success = true
	return nil
}

func (f *FS) read(name string) ([]byte, error) {
	abs, err := f.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// ReadPage returns the page record for a URL, or nil when no file exists.
// The record's embedded URL is verified against the requested identity so a
// hash collision surfaces as ErrHashCollision instead of silently returning
// another page's notes.
func (f *FS) ReadPage(rawURL string) (*models.PageRecord, error) {
	name := urlutil.NoteFileName(rawURL)
	rec, err := f.readPageFile(name)
	if err != nil || rec == nil {
		return rec, err
	}
	if rec.URL != "" && urlutil.Normalize(rec.URL) != urlutil.Normalize(rawURL) {
		return nil, fmt.Errorf("pagefile: %s owned by %q, requested %q: %w",
			name, rec.URL, rawURL, apperr.ErrHashCollision)
	}
	return rec, nil
}

// ReadPageFile reads a page record by filename, as produced by ListNames.
func (f *FS) ReadPageFile(name string) (*models.PageRecord, error) {
	return f.readPageFile(name)
}

func (f *FS) readPageFile(name string) (*models.PageRecord, error) {
	data, err := f.read(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pagefile: read %s: %w", name, err)
	}
	var rec models.PageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("pagefile: decode %s: %w", name, err)
	}
	return &rec, nil
}

// WritePage creates or wholly replaces the page file for a URL.
func (f *FS) WritePage(rawURL string, rec *models.PageRecord) error {
	content, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("pagefile: encode: %w", err)
	}
	return f.write(urlutil.NoteFileName(rawURL), content)
}

// DeletePage removes the page file for a URL. A missing file is not an error.
func (f *FS) DeletePage(rawURL string) error {
	abs, err := f.path(urlutil.NoteFileName(rawURL))
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("pagefile: delete: %w", err)
	}
	return nil
}

// ListNames returns the filenames of every page document in the directory.
func (f *FS) ListNames() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("pagefile: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// AddNote prepends a note to the page's file, creating the file on first
// save. Idempotent on the note id.
func (f *FS) AddNote(page models.PageInfo, note models.Note) error {
	rec, err := f.ReadPage(page.URL)
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
	return f.WritePage(page.URL, rec)
}

// UpdateNote applies a partial edit to one note via read-modify-write.
// A missing file or note id yields ErrNotFound; the file is never created
// implicitly.
func (f *FS) UpdateNote(rawURL, noteID string, upd models.NoteUpdate) error {
	rec, err := f.ReadPage(rawURL)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("pagefile: page for %s: %w", rawURL, apperr.ErrNotFound)
	}
	n := rec.FindNote(noteID)
	if n == nil {
		return fmt.Errorf("pagefile: note %s: %w", noteID, apperr.ErrNotFound)
	}
	upd.Apply(n, time.Now())
	return f.WritePage(rawURL, rec)
}

// DeleteNote removes one note via read-modify-write. Deleting the last note
// removes the whole file rather than leaving an empty document. A missing
// file or note id is a no-op.
func (f *FS) DeleteNote(rawURL, noteID string) error {
	rec, err := f.ReadPage(rawURL)
	if err != nil {
		return err
	}
	if rec == nil || !rec.RemoveNote(noteID) {
		return nil
	}
	if len(rec.Notes) == 0 {
		return f.DeletePage(rawURL)
	}
	return f.WritePage(rawURL, rec)
}

// UpdateTitle sets the page title and custom-title override on the page
// file, if one exists.
func (f *FS) UpdateTitle(rawURL, title string) error {
	rec, err := f.ReadPage(rawURL)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.PageTitle = title
	rec.CustomTitle = title
	rec.UpdatedAt = time.Now()
	return f.WritePage(rawURL, rec)
}

// WriteRaw writes verbatim bytes under the given filename. Used by the
// migration path, which must preserve file contents byte for byte.
func (f *FS) WriteRaw(name string, data []byte) error {
	return f.write(name, data)
}

// WriteMarkdown creates or wholly replaces the markdown snapshot for a URL.
// The content is expected to already carry the extractor's metadata header.
func (f *FS) WriteMarkdown(rawURL, content string) error {
	return f.write(urlutil.MarkdownFileName(rawURL), []byte(content))
}

// ReadMarkdown returns the markdown snapshot for a URL, or ErrNotFound.
func (f *FS) ReadMarkdown(rawURL string) (string, error) {
	data, err := f.read(urlutil.MarkdownFileName(rawURL))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("pagefile: markdown for %s: %w", rawURL, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("pagefile: read markdown: %w", err)
	}
	return string(data), nil
}
