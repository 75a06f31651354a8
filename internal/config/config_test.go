package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != DefaultConfig().Server.Port {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
host = "0.0.0.0"
port = 9999

[quota]
inbox_limit_count = 10
attachments_limit_bytes = 1024
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 || cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("unexpected server section: %+v", cfg.Server)
	}
	if cfg.Quota.InboxLimitCount != 10 {
		t.Fatalf("expected overridden quota, got %d", cfg.Quota.InboxLimitCount)
	}
	// Untouched sections keep their defaults.
	if cfg.Archive.CommitAuthor != DefaultConfig().Archive.CommitAuthor {
		t.Fatalf("expected default archive.commit_author to survive partial override")
	}
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port 0")
	}
}

func TestValidate_ReportsMultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = -1
	cfg.Quota.InboxLimitCount = 0
	cfg.Identity.Mode = "bogus"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"server.port", "quota.inbox_limit_count", "identity.mode"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected joined error to mention %q, got: %s", want, msg)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir available")
	}
	if got := ExpandHome("~/foo"); got != filepath.Join(home, "foo") {
		t.Fatalf("ExpandHome(~/foo) = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("ExpandHome should not touch absolute paths, got %q", got)
	}
}
