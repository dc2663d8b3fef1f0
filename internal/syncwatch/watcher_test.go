package syncwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) record(kind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+name)
}

func (r *eventRecorder) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		r.mu.Lock()
		for _, e := range r.events {
			if e == want {
				r.mu.Unlock()
				return
			}
		}
		r.mu.Unlock()
		select {
		case <-deadline:
			r.mu.Lock()
			defer r.mu.Unlock()
			t.Fatalf("timeout waiting for %q, saw %v", want, r.events)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func startWatch(t *testing.T, dirs chan string, rec *eventRecorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = Watch(ctx, dirs, nil, rec.record)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the watcher a moment to pick up the directory.
	time.Sleep(100 * time.Millisecond)
}

func TestWatchReportsPageFileChanges(t *testing.T) {
	dir := t.TempDir()
	dirs := make(chan string, 1)
	dirs <- dir
	rec := &eventRecorder{}
	startWatch(t, dirs, rec)

	path := filepath.Join(dir, "note_abc.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "created:note_abc.json")

	if err := os.WriteFile(path, []byte(`{"url":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "updated:note_abc.json")

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, "deleted:note_abc.json")
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	dirs := make(chan string, 1)
	dirs <- dir
	rec := &eventRecorder{}
	startWatch(t, dirs, rec)

	_ = os.WriteFile(filepath.Join(dir, ".webnote-tmp-123"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "page_abc.md"), []byte("# x"), 0o644)

	rec.waitFor(t, "created:page_abc.md")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, e := range rec.events {
		if e != "created:page_abc.md" && e != "updated:page_abc.md" {
			t.Errorf("unexpected event %q", e)
		}
	}
}

func TestWatchSwapsDirectory(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	dirs := make(chan string, 2)
	dirs <- first
	rec := &eventRecorder{}
	startWatch(t, dirs, rec)

	dirs <- second
	time.Sleep(100 * time.Millisecond)

	// Changes in the old directory are no longer reported.
	_ = os.WriteFile(filepath.Join(first, "note_old.json"), []byte("{}"), 0o644)
	_ = os.WriteFile(filepath.Join(second, "note_new.json"), []byte("{}"), 0o644)

	rec.waitFor(t, "created:note_new.json")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, e := range rec.events {
		if e == "created:note_old.json" {
			t.Error("event from unwatched directory")
		}
	}
}
