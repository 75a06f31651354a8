package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/agent-mail/mailserver/internal/config"
	"github.com/agent-mail/mailserver/internal/core"
)

// loadConfig reads and validates the TOML config at path (DefaultPath() if
// empty), the same load-then-validate sequence every subcommand needs
// before touching the store.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore opens the SQLite database and wires a ModelManager over it and
// cfg's archive root. Callers own the returned DB's lifetime.
func openStore(cfg *config.Config) (*core.DB, *core.ModelManager, error) {
	db, err := core.OpenDB(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	mm := core.NewModelManager(db, cfg.Archive.RepoRoot)
	if cfg.Archive.LockStaleAfterS > 0 {
		mm.LockTimeout = time.Duration(cfg.Archive.LockStaleAfterS) * time.Second
	}
	return db, mm, nil
}

// identityMode maps config's identity.mode string onto the matching
// core.IdentityMode formula.
func identityMode(cfg *config.Config) core.IdentityMode {
	switch cfg.Identity.Mode {
	case "git_remote":
		return core.ModeGitRemote
	case "git_toplevel":
		return core.ModeGitToplevel
	case "git_common_dir":
		return core.ModeGitCommonDir
	default:
		return core.ModeDirectoryOnly
	}
}

// loadSigningKey reads a hex-encoded ed25519 private key (64 bytes,
// 128 hex characters) from path. An empty path means no signing key is
// configured, which export_mailbox treats as "sign=true unavailable".
func loadSigningKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key %s: %w", path, err)
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode signing key %s: %w", path, err)
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key %s: want %d bytes, got %d", path, ed25519.PrivateKeySize, len(decoded))
	}
	return ed25519.PrivateKey(decoded), nil
}
