// Package testutil provides shared test helpers for setting up cache and
// handle databases and granted notes folders.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/beyondguo/webnote/internal/cache"
	"github.com/beyondguo/webnote/internal/handle"
)

// TestCache creates a temporary cache database that is automatically cleaned up.
func TestCache(t *testing.T) *cache.Store {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// TestHandleStore creates a temporary handle database that is automatically cleaned up.
func TestHandleStore(t *testing.T) *handle.Store {
	t.Helper()
	s, err := handle.OpenStore(filepath.Join(t.TempDir(), "handle.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// GrantedHolder creates a Holder with access already granted to a temporary
// notes folder, returning the holder and the folder path.
func GrantedHolder(t *testing.T, opts ...handle.HolderOption) (*handle.Holder, string) {
	t.Helper()
	h := handle.NewHolder(TestHandleStore(t), opts...)
	dir := t.TempDir()
	if _, err := h.Grant(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	return h, dir
}
