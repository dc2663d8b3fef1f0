package handle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Permission is the tri-valued state of the directory capability.
type Permission int

const (
	PermissionDenied Permission = iota
	PermissionPrompt
	PermissionGranted
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionPrompt:
		return "prompt"
	default:
		return "denied"
	}
}

// Prompter asks the user to re-approve a previously granted handle. It is
// only consulted on interactive paths; non-interactive contexts leave it nil
// and fail silently to denied.
type Prompter interface {
	Confirm(ctx context.Context, h *Handle) (bool, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, h *Handle) (bool, error)

func (f PrompterFunc) Confirm(ctx context.Context, h *Handle) (bool, error) { return f(ctx, h) }

// Selector performs an explicit user-driven directory selection, the last
// resort of an interactive access attempt. An empty path means the user
// declined.
type Selector interface {
	Select(ctx context.Context) (string, error)
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(ctx context.Context) (string, error)

func (f SelectorFunc) Select(ctx context.Context) (string, error) { return f(ctx) }

// Holder is the per-context view of the directory capability. It keeps at
// most one in-memory handle, treated strictly as a local cache: permission
// is re-derived from the durable store and a filesystem probe on every
// access attempt, because the grant can be revoked from another context at
// any time.
type Holder struct {
	mu       sync.Mutex
	store    *Store
	prompter Prompter
	selector Selector
	logger   *slog.Logger
	current  *Handle
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithPrompter installs the interactive re-approval hook.
func WithPrompter(p Prompter) HolderOption {
	return func(h *Holder) { h.prompter = p }
}

// WithSelector installs the explicit directory selection hook.
func WithSelector(s Selector) HolderOption {
	return func(h *Holder) { h.selector = s }
}

// WithLogger sets the holder's logger.
func WithLogger(l *slog.Logger) HolderOption {
	return func(h *Holder) { h.logger = l }
}

// NewHolder creates a Holder backed by the given durable store.
func NewHolder(store *Store, opts ...HolderOption) *Holder {
	h := &Holder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// permission derives the capability state from the handle record and a live
// filesystem probe.
func permission(h *Handle, approved bool) Permission {
	info, err := os.Stat(h.Path)
	if err != nil || !info.IsDir() {
		return PermissionDenied
	}
	if !approved {
		return PermissionPrompt
	}
	if err := probeWrite(h.Path); err != nil {
		return PermissionPrompt
	}
	return PermissionGranted
}

// probeWrite verifies the directory is actually writable right now.
func probeWrite(dir string) error {
	f, err := os.CreateTemp(dir, ".webnote-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// EnsureAccess makes the holder's in-memory handle usable, following the
// recovery ladder: validate the live handle, restore from the durable store,
// re-request permission (interactive only), and finally fall through to an
// explicit directory selection (interactive only). It returns whether file
// operations may proceed. Permission-check failures are treated as "handle
// invalid" rather than propagated.
func (h *Holder) EnsureAccess(ctx context.Context, interactive bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	hd, approved, err := h.store.Restore()
	if err != nil {
		h.logger.Warn("handle: restore failed", slog.String("error", err.Error()))
		hd = nil
	}

	// The in-memory handle is only trusted while it matches the durable
	// record and the record still checks out.
	if h.current != nil && (hd == nil || hd.Path != h.current.Path) {
		h.current = nil
	}

	if hd != nil {
		switch permission(hd, approved) {
		case PermissionGranted:
			h.current = hd
			return true
		case PermissionPrompt:
			h.current = nil
			if interactive && h.prompter != nil {
				ok, err := h.prompter.Confirm(ctx, hd)
				if err != nil {
					h.logger.Warn("handle: permission prompt failed", slog.String("error", err.Error()))
				} else if ok {
					if err := h.store.Save(hd); err != nil {
						h.logger.Warn("handle: re-approve failed", slog.String("error", err.Error()))
					} else if permission(hd, true) == PermissionGranted {
						h.current = hd
						return true
					}
				}
			}
		default:
			h.current = nil
		}
	}

	if !interactive || h.selector == nil {
		return false
	}

	path, err := h.selector.Select(ctx)
	if err != nil {
		h.logger.Warn("handle: directory selection failed", slog.String("error", err.Error()))
		return false
	}
	if path == "" {
		return false
	}
	if _, err := h.grantLocked(path); err != nil {
		h.logger.Warn("handle: grant failed", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Grant records a fresh user-driven directory selection, replacing any prior
// handle. The directory is created if needed and must be writable.
func (h *Holder) Grant(_ context.Context, path string) (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.grantLocked(path)
}

func (h *Holder) grantLocked(path string) (*Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("handle: resolve path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("handle: create dir: %w", err)
	}
	if err := probeWrite(abs); err != nil {
		return nil, fmt.Errorf("handle: dir not writable: %w", err)
	}
	hd := &Handle{Path: abs, Name: filepath.Base(abs), GrantedAt: time.Now()}
	if err := h.store.Save(hd); err != nil {
		return nil, err
	}
	h.current = hd
	return hd, nil
}

// Revoke drops the approval on the stored handle and invalidates the live
// one, modelling the platform silently withdrawing the permission.
func (h *Holder) Revoke() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = nil
	return h.store.MarkRevoked()
}

// Dir returns the directory of the live handle. Callers must have obtained
// access via EnsureAccess in the same context first.
func (h *Holder) Dir() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return "", false
	}
	return h.current.Path, true
}

// Stored returns the durable handle record (regardless of permission) and
// its current derived permission state. Used for status reporting and for
// locating the previous directory ahead of a migration.
func (h *Holder) Stored() (*Handle, Permission, error) {
	hd, approved, err := h.store.Restore()
	if err != nil {
		return nil, PermissionDenied, err
	}
	if hd == nil {
		return nil, PermissionDenied, nil
	}
	return hd, permission(hd, approved), nil
}
