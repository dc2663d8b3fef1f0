package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/beyondguo/webnote/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestChatConfig_EnabledWithoutKey(t *testing.T) {
	cfg := ChatConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled chat without api key should fail")
	}
	cfg.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("enabled chat with key should pass: %v", err)
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Sync.Interval.Std() != 30*time.Second {
		t.Errorf("sync interval = %v", cfg.Sync.Interval.Std())
	}
	if cfg.App.HTTP.Address() != ":8080" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
}

func TestConfigLoadYAML(t *testing.T) {
	t.Setenv("TEST_WEBNOTE_TOKEN", "supersecret")

	content := `
app:
  log_level: DEBUG
  http:
    port: 9090
data:
  cache_path: /tmp/c.db
  handle_path: /tmp/h.db
notes:
  dir: /tmp/notes
sync:
  interval: 90s
auth:
  mode: token
  token: ${TEST_WEBNOTE_TOKEN}
extract:
  timeout: 5s
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
	if cfg.Sync.Interval.Std() != 90*time.Second {
		t.Errorf("interval = %v", cfg.Sync.Interval.Std())
	}
	if cfg.Extract.Timeout.Std() != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Extract.Timeout.Std())
	}
	if cfg.Auth.Token != "supersecret" {
		t.Errorf("env expansion failed: %q", cfg.Auth.Token)
	}
	if cfg.Notes.Dir != "/tmp/notes" {
		t.Errorf("notes dir = %q", cfg.Notes.Dir)
	}
}

func TestConfigLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  interval: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err == nil {
		t.Fatal("invalid duration should fail to load")
	}
}

func TestConfigLoadIfExistsMissing(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(filepath.Join(t.TempDir(), "none.yaml"), cfg); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
	if cfg.App.HTTP.Port != 8080 {
		t.Errorf("defaults changed: %d", cfg.App.HTTP.Port)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}
