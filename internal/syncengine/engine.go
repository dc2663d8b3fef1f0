// Package syncengine decides which storage tier is authoritative for reads
// and rescues notes stranded in the cache by partial dual-writes. Once file
// access exists the file tier is absolute authority; the cache is only read
// when no directory access can be obtained. Reconciliation is strictly
// one-directional (cache into files) and never deletes from either tier, so
// notes removed from files stay removed.
package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/beyondguo/webnote/internal/cache"
	"github.com/beyondguo/webnote/internal/handle"
	"github.com/beyondguo/webnote/internal/models"
	"github.com/beyondguo/webnote/internal/pagefile"
)

// Engine coordinates reads and reconciliation across the two tiers.
type Engine struct {
	cache  *cache.Store
	holder *handle.Holder
	logger *slog.Logger
}

// New creates a reconciliation engine.
func New(c *cache.Store, h *handle.Holder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cache: c, holder: h, logger: logger}
}

// LoadAllNotes returns every page record per the read policy: with file
// access the cache is first reconciled into the files and the directory
// contents are returned verbatim (the cache is deliberately not merged into
// the result); without access the cache contents are returned instead.
func (e *Engine) LoadAllNotes(ctx context.Context, interactive bool) ([]models.PageRecord, error) {
	if e.holder.EnsureAccess(ctx, interactive) {
		dir, ok := e.holder.Dir()
		if ok {
			return e.loadFromFiles(ctx, pagefile.New(dir))
		}
	}
	e.logger.Debug("syncengine: no folder access, reading cache")
	return e.cache.ListAll()
}

// LoadNotes returns the record for one URL: from the file tier when access
// is available, from the cache otherwise. Nil means no notes for the page.
func (e *Engine) LoadNotes(ctx context.Context, rawURL string) (*models.PageRecord, error) {
	if e.holder.EnsureAccess(ctx, false) {
		if dir, ok := e.holder.Dir(); ok {
			return pagefile.New(dir).ReadPage(rawURL)
		}
	}
	return e.cache.Get(rawURL)
}

func (e *Engine) loadFromFiles(ctx context.Context, fs *pagefile.FS) ([]models.PageRecord, error) {
	// Rescue cache-only notes before treating the directory as truth.
	if err := e.SyncCacheToFiles(ctx, fs); err != nil {
		e.logger.Warn("syncengine: reconciliation incomplete", slog.String("error", err.Error()))
	}

	names, err := fs.ListNames()
	if err != nil {
		return nil, err
	}
	out := []models.PageRecord{}
	for _, name := range names {
		rec, err := fs.ReadPageFile(name)
		if err != nil {
			e.logger.Warn("syncengine: skipping unreadable page file",
				slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		if rec == nil || rec.URL == "" {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// SyncCacheToFiles copies cache-only notes into their corresponding files.
// For each cached page: if the file exists, cache notes whose ids are absent
// from the file are prepended (file content wins for overlapping ids); if
// the file is missing, the whole cached record is written out. Per-page
// failures are logged and do not abort the pass; a summarizing error is
// returned when any page failed.
func (e *Engine) SyncCacheToFiles(_ context.Context, fs *pagefile.FS) error {
	entries, err := e.cache.ListAll()
	if err != nil {
		return err
	}

	failed := 0
	for i := range entries {
		if err := e.syncPage(fs, &entries[i]); err != nil {
			failed++
			e.logger.Warn("syncengine: page sync failed",
				slog.String("url", entries[i].URL), slog.String("error", err.Error()))
		}
	}
	if failed > 0 {
		return fmt.Errorf("syncengine: %d of %d cached pages failed to sync", failed, len(entries))
	}
	return nil
}

func (e *Engine) syncPage(fs *pagefile.FS, cached *models.PageRecord) error {
	existing, err := fs.ReadPage(cached.URL)
	if err != nil {
		return err
	}
	if existing == nil {
		return fs.WritePage(cached.URL, cached)
	}

	fileIDs := existing.NoteIDs()
	var missing []models.Note
	for _, n := range cached.Notes {
		if _, ok := fileIDs[n.ID]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	existing.Notes = append(missing, existing.Notes...)
	if err := fs.WritePage(cached.URL, existing); err != nil {
		return err
	}
	e.logger.Info("syncengine: rescued cached notes",
		slog.String("url", cached.URL), slog.Int("count", len(missing)))
	return nil
}

// ReconcileNow runs one non-interactive reconciliation pass. It reports
// whether file access was available; lack of access is not an error.
func (e *Engine) ReconcileNow(ctx context.Context) (bool, error) {
	if !e.holder.EnsureAccess(ctx, false) {
		return false, nil
	}
	dir, ok := e.holder.Dir()
	if !ok {
		return false, nil
	}
	return true, e.SyncCacheToFiles(ctx, pagefile.New(dir))
}

// MigrationFailure records one file that could not be migrated.
type MigrationFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// MigrationReport summarizes a directory migration.
type MigrationReport struct {
	Migrated int                `json:"migrated"`
	Failed   []MigrationFailure `json:"failed,omitempty"`
}

// Migrate copies every *.json page file from oldDir into newDir byte for
// byte, under the same filename. Per-file failures are collected and the
// remaining files continue; the report carries the aggregate outcome.
// Switching the handle to the new directory is the caller's responsibility
// and must happen only after migration completes.
func (e *Engine) Migrate(_ context.Context, oldDir, newDir string) (*MigrationReport, error) {
	if err := os.MkdirAll(newDir, 0o755); err != nil {
		return nil, fmt.Errorf("syncengine: create target dir: %w", err)
	}
	entries, err := os.ReadDir(oldDir)
	if err != nil {
		return nil, fmt.Errorf("syncengine: read source dir: %w", err)
	}

	report := &MigrationReport{}
	dest := pagefile.New(newDir)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(oldDir, name))
		if err == nil {
			err = dest.WriteRaw(name, data)
		}
		if err != nil {
			report.Failed = append(report.Failed, MigrationFailure{Name: name, Error: err.Error()})
			e.logger.Warn("syncengine: migrate file failed",
				slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		report.Migrated++
	}
	e.logger.Info("syncengine: migration complete",
		slog.String("from", oldDir), slog.String("to", newDir),
		slog.Int("migrated", report.Migrated), slog.Int("failed", len(report.Failed)))
	return report, nil
}
