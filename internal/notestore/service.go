// Package notestore implements the public note operations, fanning each one
// out to the cache and file tiers per the dual-write policy and surfacing
// partial-failure status to callers.
package notestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/beyondguo/webnote/internal/apperr"
	"github.com/beyondguo/webnote/internal/cache"
	"github.com/beyondguo/webnote/internal/handle"
	"github.com/beyondguo/webnote/internal/models"
	"github.com/beyondguo/webnote/internal/pagefile"
	"github.com/beyondguo/webnote/internal/syncengine"
	"github.com/beyondguo/webnote/internal/urlutil"
)

// Mode describes the execution context a Service runs in. A foreground
// context can surface a user-facing re-authorization warning; a background
// context cannot prompt and reports unsynced saves as pending instead.
type Mode int

const (
	ModeForeground Mode = iota
	ModeBackground
)

// FSStatus is the file-tier outcome of a save.
type FSStatus string

const (
	FSWritten      FSStatus = "written"
	FSPending      FSStatus = "pending"
	FSRequiresAuth FSStatus = "requires_auth"
)

// SaveResult reports the per-tier outcome of a save. Only a cache failure is
// fatal; every file-tier outcome is terminal-but-non-fatal for the caller.
type SaveResult struct {
	Note  models.Note `json:"note"`
	Cache bool        `json:"cache"`
	FS    FSStatus    `json:"fs"`
	Error string      `json:"error,omitempty"`
}

// TagCount is one tag with its usage frequency.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// FolderStatus describes the current directory grant.
type FolderStatus struct {
	Permission string `json:"permission"`
	Path       string `json:"path,omitempty"`
	Name       string `json:"name,omitempty"`
}

// GrantResult reports a folder re-grant and any preceding migration.
type GrantResult struct {
	Path      string                      `json:"path"`
	Migration *syncengine.MigrationReport `json:"migration,omitempty"`
}

// EventSink receives store events for live status reporting. Implementations
// must not block.
type EventSink interface {
	PublishNoteEvent(kind, url string)
	PublishSyncStatus(status, detail string)
}

// Service is the note CRUD orchestrator for one execution context.
type Service struct {
	cache  *cache.Store
	holder *handle.Holder
	engine *syncengine.Engine
	mode   Mode
	logger *slog.Logger

	events  EventSink
	onGrant func(dir string)
}

// Option configures a Service.
type Option func(*Service)

// WithEvents installs the live event sink.
func WithEvents(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithGrantNotify installs a callback invoked after a successful folder
// grant, e.g. to re-point the directory watcher.
func WithGrantNotify(fn func(dir string)) Option {
	return func(s *Service) { s.onGrant = fn }
}

// New creates a Service.
func New(c *cache.Store, h *handle.Holder, e *syncengine.Engine, mode Mode, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{cache: c, holder: h, engine: e, mode: mode, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publishNote(kind, url string) {
	if s.events != nil {
		s.events.PublishNoteEvent(kind, urlutil.Normalize(url))
	}
}

func (s *Service) publishSync(status, detail string) {
	if s.events != nil {
		s.events.PublishSyncStatus(status, detail)
	}
}

// SaveNote writes a note to the cache first (a cache failure fails the whole
// operation), then attempts a non-interactive file write. The file tier
// outcome distinguishes written, pending (no access in a context that cannot
// prompt; a later reconciliation will rescue the note) and requires-auth
// (a foreground context that never obtained permission, which should surface
// a user-facing warning).
func (s *Service) SaveNote(ctx context.Context, page models.PageInfo, note models.Note) (*SaveResult, error) {
	if page.URL == "" {
		return nil, fmt.Errorf("notestore: page url is required")
	}
	if note.Text == "" {
		return nil, fmt.Errorf("notestore: note text is required")
	}
	if note.ID == "" {
		note.ID = urlutil.NewNoteID()
	}
	if note.Timestamp.IsZero() {
		note.Timestamp = time.Now()
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}

	if err := s.cache.AddNote(page, note); err != nil {
		return nil, fmt.Errorf("notestore: cache write: %w", err)
	}
	res := &SaveResult{Note: note, Cache: true}

	// Save may run from a context that cannot prompt, so the access
	// attempt is always non-interactive.
	if s.holder.EnsureAccess(ctx, false) {
		if dir, ok := s.holder.Dir(); ok {
			if err := pagefile.New(dir).AddNote(page, note); err != nil {
				// Stranded in cache; rescued by a later reconciliation.
				s.logger.Warn("notestore: file write failed",
					slog.String("url", page.URL), slog.String("error", err.Error()))
				res.FS = FSPending
				res.Error = err.Error()
				s.publishSync("pending", page.URL)
			} else {
				res.FS = FSWritten
			}
			s.publishNote("saved", page.URL)
			return res, nil
		}
	}

	if s.mode == ModeForeground {
		res.FS = FSRequiresAuth
		s.publishSync("requires_auth", page.URL)
	} else {
		res.FS = FSPending
		s.publishSync("pending", page.URL)
	}
	s.publishNote("saved", page.URL)
	return res, nil
}

// LoadNotes returns the notes for one URL, or nil when the page has none.
func (s *Service) LoadNotes(ctx context.Context, rawURL string) (*models.PageRecord, error) {
	return s.engine.LoadNotes(ctx, rawURL)
}

// LoadAllNotes returns every page record per the engine's read policy.
func (s *Service) LoadAllNotes(ctx context.Context, interactive bool) ([]models.PageRecord, error) {
	return s.engine.LoadAllNotes(ctx, interactive)
}

// UpdateNote edits a note. The file tier is the authoritative target and
// requires access; the cache is mirrored best-effort.
func (s *Service) UpdateNote(ctx context.Context, rawURL, noteID string, upd models.NoteUpdate) error {
	if upd.Empty() {
		return fmt.Errorf("notestore: empty update")
	}
	if !s.holder.EnsureAccess(ctx, false) {
		return fmt.Errorf("notestore: update %s: %w", noteID, apperr.ErrPermissionUnavailable)
	}
	dir, _ := s.holder.Dir()
	if err := pagefile.New(dir).UpdateNote(rawURL, noteID, upd); err != nil {
		return err
	}
	if err := s.cache.UpdateNote(rawURL, noteID, upd); err != nil {
		s.logger.Warn("notestore: cache mirror of update failed",
			slog.String("url", rawURL), slog.String("error", err.Error()))
	}
	s.publishNote("updated", rawURL)
	return nil
}

// DeleteNote removes a note from both tiers. The cache delete is
// best-effort; the file delete runs only when access is available and a
// delete that empties a page removes the file entirely. A missing note is a
// no-op.
func (s *Service) DeleteNote(ctx context.Context, rawURL, noteID string) error {
	if err := s.cache.RemoveNote(rawURL, noteID); err != nil {
		s.logger.Warn("notestore: cache delete failed",
			slog.String("url", rawURL), slog.String("error", err.Error()))
	}
	if s.holder.EnsureAccess(ctx, false) {
		dir, _ := s.holder.Dir()
		if err := pagefile.New(dir).DeleteNote(rawURL, noteID); err != nil {
			return err
		}
	}
	s.publishNote("deleted", rawURL)
	return nil
}

// UpdatePageTitle sets the title on the file (when access is available) and
// mirrors it into the cache best-effort.
func (s *Service) UpdatePageTitle(ctx context.Context, rawURL, title string) error {
	if s.holder.EnsureAccess(ctx, false) {
		dir, _ := s.holder.Dir()
		if err := pagefile.New(dir).UpdateTitle(rawURL, title); err != nil {
			return err
		}
	}
	if err := s.cache.UpdateTitle(rawURL, title); err != nil {
		s.logger.Warn("notestore: cache title update failed",
			slog.String("url", rawURL), slog.String("error", err.Error()))
	}
	s.publishNote("updated", rawURL)
	return nil
}

// GetAllTags counts tag occurrences across every note of every page and
// returns them by descending frequency; ties keep first-seen order.
func (s *Service) GetAllTags(ctx context.Context) ([]TagCount, error) {
	pages, err := s.engine.LoadAllNotes(ctx, false)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	var order []string
	for _, page := range pages {
		for _, n := range page.Notes {
			for _, tag := range n.Tags {
				if _, seen := counts[tag]; !seen {
					order = append(order, tag)
				}
				counts[tag]++
			}
		}
	}
	out := make([]TagCount, len(order))
	for i, tag := range order {
		out[i] = TagCount{Tag: tag, Count: counts[tag]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// SavePageMarkdown persists the extracted markdown snapshot for a URL.
// Requires folder access; the snapshot has no cache tier.
func (s *Service) SavePageMarkdown(ctx context.Context, rawURL, markdown string) error {
	if !s.holder.EnsureAccess(ctx, false) {
		return fmt.Errorf("notestore: save markdown: %w", apperr.ErrPermissionUnavailable)
	}
	dir, _ := s.holder.Dir()
	if err := pagefile.New(dir).WriteMarkdown(rawURL, markdown); err != nil {
		return err
	}
	s.publishNote("markdown", rawURL)
	return nil
}

// LoadPageMarkdown returns the markdown snapshot for a URL.
func (s *Service) LoadPageMarkdown(ctx context.Context, rawURL string) (string, error) {
	if !s.holder.EnsureAccess(ctx, false) {
		return "", fmt.Errorf("notestore: load markdown: %w", apperr.ErrPermissionUnavailable)
	}
	dir, _ := s.holder.Dir()
	return pagefile.New(dir).ReadMarkdown(rawURL)
}

// RequestFolderAccess records an explicit user-driven directory selection.
// When migrate is set and a different directory was granted before, its page
// files are first copied into the new location; the handle switches only
// after the migration finishes (fully or partially).
func (s *Service) RequestFolderAccess(ctx context.Context, path string, migrate bool) (*GrantResult, error) {
	res := &GrantResult{}

	if migrate {
		if old, perm, err := s.holder.Stored(); err == nil && old != nil && perm != handle.PermissionDenied {
			if old.Path != path {
				report, err := s.engine.Migrate(ctx, old.Path, path)
				if err != nil {
					return nil, err
				}
				res.Migration = report
			}
		}
	}

	hd, err := s.holder.Grant(ctx, path)
	if err != nil {
		return nil, err
	}
	res.Path = hd.Path
	s.publishSync("granted", hd.Path)
	if s.onGrant != nil {
		s.onGrant(hd.Path)
	}
	return res, nil
}

// RevokeFolderAccess drops the approval on the current grant, forcing the
// prompt state on the next access attempt.
func (s *Service) RevokeFolderAccess(_ context.Context) error {
	if err := s.holder.Revoke(); err != nil {
		return err
	}
	s.publishSync("revoked", "")
	return nil
}

// Status reports the current directory grant and its derived permission.
func (s *Service) Status(_ context.Context) (*FolderStatus, error) {
	hd, perm, err := s.holder.Stored()
	if err != nil {
		return nil, err
	}
	st := &FolderStatus{Permission: perm.String()}
	if hd != nil {
		st.Path = hd.Path
		st.Name = hd.Name
	}
	return st, nil
}

// IsNotFound reports whether err denotes a missing page, note or snapshot.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
