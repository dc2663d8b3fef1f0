package notestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/beyondguo/webnote/internal/apperr"
	"github.com/beyondguo/webnote/internal/handle"
	"github.com/beyondguo/webnote/internal/models"
	"github.com/beyondguo/webnote/internal/pagefile"
	"github.com/beyondguo/webnote/internal/syncengine"
	"github.com/beyondguo/webnote/internal/testutil"
	"github.com/beyondguo/webnote/internal/urlutil"
)

type sinkRecorder struct {
	mu    sync.Mutex
	notes []string
	syncs []string
}

func (r *sinkRecorder) PublishNoteEvent(kind, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, kind)
}

func (r *sinkRecorder) PublishSyncStatus(status, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs = append(r.syncs, status)
}

func (r *sinkRecorder) lastSync() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.syncs) == 0 {
		return ""
	}
	return r.syncs[len(r.syncs)-1]
}

// newService builds a service over fresh stores. Access starts denied; tests
// grant a folder via RequestFolderAccess when they need the file tier.
func newService(t *testing.T, mode Mode, opts ...Option) *Service {
	t.Helper()
	c := testutil.TestCache(t)
	h := handle.NewHolder(testutil.TestHandleStore(t))
	e := syncengine.New(c, h, nil)
	return New(c, h, e, mode, nil, opts...)
}

func TestSaveNoteWithoutAccessForeground(t *testing.T) {
	sink := &sinkRecorder{}
	svc := newService(t, ModeForeground, WithEvents(sink))

	res, err := svc.SaveNote(context.Background(),
		models.PageInfo{URL: "https://example.com/a", Title: "A"},
		models.Note{Text: "highlight"})
	if err != nil {
		t.Fatalf("SaveNote: %v", err)
	}
	if !res.Cache {
		t.Error("cache tier not written")
	}
	if res.FS != FSRequiresAuth {
		t.Errorf("fs = %q, want requires_auth", res.FS)
	}
	if res.Note.ID == "" || res.Note.Timestamp.IsZero() {
		t.Errorf("defaults not filled: %+v", res.Note)
	}
	if res.Note.Tags == nil {
		t.Error("tags must default to empty, not null")
	}
	if sink.lastSync() != "requires_auth" {
		t.Errorf("sync status = %q", sink.lastSync())
	}
}

func TestSaveNoteWithoutAccessBackground(t *testing.T) {
	svc := newService(t, ModeBackground)
	res, err := svc.SaveNote(context.Background(),
		models.PageInfo{URL: "https://example.com/a"}, models.Note{Text: "x"})
	if err != nil {
		t.Fatalf("SaveNote: %v", err)
	}
	if res.FS != FSPending {
		t.Errorf("fs = %q, want pending", res.FS)
	}
}

func TestSaveNoteValidation(t *testing.T) {
	svc := newService(t, ModeForeground)
	if _, err := svc.SaveNote(context.Background(), models.PageInfo{}, models.Note{Text: "x"}); err == nil {
		t.Error("missing url accepted")
	}
	if _, err := svc.SaveNote(context.Background(), models.PageInfo{URL: "https://e.com"}, models.Note{}); err == nil {
		t.Error("missing text accepted")
	}
}

func TestSaveNoteWithAccess(t *testing.T) {
	svc := newService(t, ModeForeground)
	dir := t.TempDir()
	if _, err := svc.RequestFolderAccess(context.Background(), dir, false); err != nil {
		t.Fatalf("RequestFolderAccess: %v", err)
	}

	res, err := svc.SaveNote(context.Background(),
		models.PageInfo{URL: "https://example.com/a", Title: "A"},
		models.Note{Text: "highlight", Tags: []string{"go"}})
	if err != nil {
		t.Fatalf("SaveNote: %v", err)
	}
	if res.FS != FSWritten {
		t.Errorf("fs = %q, want written", res.FS)
	}

	name := urlutil.NoteFileName("https://example.com/a")
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("page file %s not written: %v", name, err)
	}
}

func TestStrandedNoteRescuedAfterGrant(t *testing.T) {
	svc := newService(t, ModeForeground)
	ctx := context.Background()

	// Save lands in the cache only.
	res, err := svc.SaveNote(ctx, models.PageInfo{URL: "https://example.com/a", Title: "A"},
		models.Note{Text: "stranded"})
	if err != nil {
		t.Fatalf("SaveNote: %v", err)
	}
	if res.FS != FSRequiresAuth {
		t.Fatalf("fs = %q", res.FS)
	}

	// Granting a folder and loading everything rescues it into a file.
	dir := t.TempDir()
	if _, err := svc.RequestFolderAccess(ctx, dir, false); err != nil {
		t.Fatalf("RequestFolderAccess: %v", err)
	}
	pages, err := svc.LoadAllNotes(ctx, false)
	if err != nil {
		t.Fatalf("LoadAllNotes: %v", err)
	}
	if len(pages) != 1 || len(pages[0].Notes) != 1 || pages[0].Notes[0].ID != res.Note.ID {
		t.Errorf("pages = %+v", pages)
	}

	rec, err := pagefile.New(dir).ReadPage("https://example.com/a")
	if err != nil || rec == nil || !rec.HasNote(res.Note.ID) {
		t.Errorf("note not rescued to file: rec=%+v err=%v", rec, err)
	}
}

func TestUpdateNoteRequiresAccess(t *testing.T) {
	svc := newService(t, ModeForeground)
	text := "x"
	err := svc.UpdateNote(context.Background(), "https://example.com/a", "n1",
		models.NoteUpdate{Text: &text})
	if !errors.Is(err, apperr.ErrPermissionUnavailable) {
		t.Errorf("err = %v, want ErrPermissionUnavailable", err)
	}
}

func TestUpdateNoteBothTiers(t *testing.T) {
	svc := newService(t, ModeForeground)
	ctx := context.Background()
	_, _ = svc.RequestFolderAccess(ctx, t.TempDir(), false)

	res, _ := svc.SaveNote(ctx, models.PageInfo{URL: "https://example.com/a"}, models.Note{Text: "old"})

	text := "edited"
	if err := svc.UpdateNote(ctx, "https://example.com/a", res.Note.ID, models.NoteUpdate{Text: &text}); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}

	rec, _ := svc.LoadNotes(ctx, "https://example.com/a")
	if rec.Notes[0].Text != "edited" {
		t.Errorf("file tier text = %q", rec.Notes[0].Text)
	}
	cached, _ := svc.cache.Get("https://example.com/a")
	if cached.Notes[0].Text != "edited" {
		t.Errorf("cache mirror text = %q", cached.Notes[0].Text)
	}
}

func TestUpdateNoteNotFound(t *testing.T) {
	svc := newService(t, ModeForeground)
	_, _ = svc.RequestFolderAccess(context.Background(), t.TempDir(), false)
	text := "x"
	err := svc.UpdateNote(context.Background(), "https://example.com/none", "n1",
		models.NoteUpdate{Text: &text})
	if !IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestDeleteNoteBothTiers(t *testing.T) {
	svc := newService(t, ModeForeground)
	ctx := context.Background()
	dir := t.TempDir()
	_, _ = svc.RequestFolderAccess(ctx, dir, false)

	res, _ := svc.SaveNote(ctx, models.PageInfo{URL: "https://example.com/a"}, models.Note{Text: "x"})
	if err := svc.DeleteNote(ctx, "https://example.com/a", res.Note.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}

	if cached, _ := svc.cache.Get("https://example.com/a"); cached != nil {
		t.Error("note survives in cache")
	}
	name := urlutil.NoteFileName("https://example.com/a")
	if _, err := os.Stat(filepath.Join(dir, name)); !errors.Is(err, os.ErrNotExist) {
		t.Error("empty page file not removed")
	}

	// A deleted note never resurrects on the next reconciliation.
	pages, _ := svc.LoadAllNotes(ctx, false)
	if len(pages) != 0 {
		t.Errorf("deleted note came back: %+v", pages)
	}
}

func TestUpdatePageTitle(t *testing.T) {
	svc := newService(t, ModeForeground)
	ctx := context.Background()
	_, _ = svc.RequestFolderAccess(ctx, t.TempDir(), false)
	_, _ = svc.SaveNote(ctx, models.PageInfo{URL: "https://example.com/a", Title: "Old"}, models.Note{Text: "x"})

	if err := svc.UpdatePageTitle(ctx, "https://example.com/a", "Renamed"); err != nil {
		t.Fatalf("UpdatePageTitle: %v", err)
	}
	rec, _ := svc.LoadNotes(ctx, "https://example.com/a")
	if rec.CustomTitle != "Renamed" {
		t.Errorf("file title = %q", rec.CustomTitle)
	}
	cached, _ := svc.cache.Get("https://example.com/a")
	if cached.CustomTitle != "Renamed" {
		t.Errorf("cache title = %q", cached.CustomTitle)
	}
}

func TestGetAllTags(t *testing.T) {
	svc := newService(t, ModeBackground)
	ctx := context.Background()
	_, _ = svc.SaveNote(ctx, models.PageInfo{URL: "https://example.com/a"},
		models.Note{Text: "1", Tags: []string{"go", "web"}})
	_, _ = svc.SaveNote(ctx, models.PageInfo{URL: "https://example.com/b"},
		models.Note{Text: "2", Tags: []string{"go"}})

	tags, err := svc.GetAllTags(ctx)
	if err != nil {
		t.Fatalf("GetAllTags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("tags = %+v", tags)
	}
	if tags[0].Tag != "go" || tags[0].Count != 2 {
		t.Errorf("top tag = %+v, want go x2", tags[0])
	}
	if tags[1].Tag != "web" || tags[1].Count != 1 {
		t.Errorf("second tag = %+v", tags[1])
	}
}

func TestMarkdownSnapshot(t *testing.T) {
	svc := newService(t, ModeForeground)
	ctx := context.Background()

	if err := svc.SavePageMarkdown(ctx, "https://example.com/a", "# A"); !errors.Is(err, apperr.ErrPermissionUnavailable) {
		t.Errorf("save without access: err = %v", err)
	}

	_, _ = svc.RequestFolderAccess(ctx, t.TempDir(), false)
	if err := svc.SavePageMarkdown(ctx, "https://example.com/a", "# A\n\nbody"); err != nil {
		t.Fatalf("SavePageMarkdown: %v", err)
	}
	md, err := svc.LoadPageMarkdown(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("LoadPageMarkdown: %v", err)
	}
	if md != "# A\n\nbody" {
		t.Errorf("md = %q", md)
	}

	if _, err := svc.LoadPageMarkdown(ctx, "https://example.com/none"); !IsNotFound(err) {
		t.Errorf("missing snapshot: err = %v", err)
	}
}

func TestRequestFolderAccessMigrates(t *testing.T) {
	svc := newService(t, ModeForeground)
	ctx := context.Background()

	oldDir := t.TempDir()
	if _, err := svc.RequestFolderAccess(ctx, oldDir, false); err != nil {
		t.Fatal(err)
	}
	_, _ = svc.SaveNote(ctx, models.PageInfo{URL: "https://example.com/a"}, models.Note{Text: "x"})

	newDir := filepath.Join(t.TempDir(), "new")
	res, err := svc.RequestFolderAccess(ctx, newDir, true)
	if err != nil {
		t.Fatalf("RequestFolderAccess: %v", err)
	}
	if res.Migration == nil || res.Migration.Migrated != 1 {
		t.Errorf("migration = %+v", res.Migration)
	}

	rec, err := pagefile.New(newDir).ReadPage("https://example.com/a")
	if err != nil || rec == nil {
		t.Errorf("page not present in new folder: rec=%+v err=%v", rec, err)
	}
	// The old directory keeps its files.
	if rec, _ := pagefile.New(oldDir).ReadPage("https://example.com/a"); rec == nil {
		t.Error("old folder lost its files")
	}
}

func TestGrantNotify(t *testing.T) {
	var granted string
	svc := newService(t, ModeForeground, WithGrantNotify(func(dir string) { granted = dir }))
	dir := t.TempDir()
	if _, err := svc.RequestFolderAccess(context.Background(), dir, false); err != nil {
		t.Fatal(err)
	}
	if granted != dir {
		t.Errorf("grant notify = %q, want %q", granted, dir)
	}
}

func TestRevokeAndStatus(t *testing.T) {
	svc := newService(t, ModeForeground)
	ctx := context.Background()

	st, err := svc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Permission != "denied" {
		t.Errorf("initial permission = %q", st.Permission)
	}

	dir := t.TempDir()
	_, _ = svc.RequestFolderAccess(ctx, dir, false)
	st, _ = svc.Status(ctx)
	if st.Permission != "granted" || st.Path != dir {
		t.Errorf("status after grant = %+v", st)
	}

	if err := svc.RevokeFolderAccess(ctx); err != nil {
		t.Fatalf("RevokeFolderAccess: %v", err)
	}
	st, _ = svc.Status(ctx)
	if st.Permission != "prompt" {
		t.Errorf("status after revoke = %+v", st)
	}

	// Saves keep working against the cache.
	res, err := svc.SaveNote(ctx, models.PageInfo{URL: "https://example.com/a"}, models.Note{Text: "x"})
	if err != nil {
		t.Fatalf("SaveNote after revoke: %v", err)
	}
	if res.FS != FSRequiresAuth {
		t.Errorf("fs = %q", res.FS)
	}
}

func TestEventsPublished(t *testing.T) {
	sink := &sinkRecorder{}
	svc := newService(t, ModeForeground, WithEvents(sink))
	ctx := context.Background()
	_, _ = svc.RequestFolderAccess(ctx, t.TempDir(), false)

	res, _ := svc.SaveNote(ctx, models.PageInfo{URL: "https://example.com/a"}, models.Note{Text: "x"})
	text := "y"
	_ = svc.UpdateNote(ctx, "https://example.com/a", res.Note.ID, models.NoteUpdate{Text: &text})
	_ = svc.DeleteNote(ctx, "https://example.com/a", res.Note.ID)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	want := []string{"saved", "updated", "deleted"}
	if len(sink.notes) != len(want) {
		t.Fatalf("events = %v", sink.notes)
	}
	for i, kind := range want {
		if sink.notes[i] != kind {
			t.Errorf("event[%d] = %q, want %q", i, sink.notes[i], kind)
		}
	}
}

func TestExportPage(t *testing.T) {
	page := &models.PageRecord{
		URL:       "https://example.com/a",
		PageTitle: "Example",
		Notes: []models.Note{
			{ID: "n1", Text: "quoted\ntext", Tags: []string{"go"}, Note: "remark"},
		},
	}
	out := ExportPage(page)
	for _, want := range []string{"# Example", "**URL**: https://example.com/a", "#go", "> quoted\n> text", "**Annotation**: remark"} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}

	// Custom title wins over the captured one.
	page.CustomTitle = "My Title"
	if !strings.Contains(ExportPage(page), "# My Title") {
		t.Error("custom title not used")
	}
}

func TestExportAll(t *testing.T) {
	pages := []models.PageRecord{
		{URL: "https://example.com/a", PageTitle: "A", Notes: []models.Note{{ID: "1", Text: "x"}}},
		{URL: "https://example.com/b", PageTitle: "B", Notes: []models.Note{{ID: "2", Text: "y"}}},
	}
	out := ExportAll(pages)
	for _, want := range []string{"# Web Notes", "**Pages**: 2", "**Notes**: 2", "# A", "# B"} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q", want)
		}
	}
}
