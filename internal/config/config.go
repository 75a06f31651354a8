// Package config loads agentmaild's TOML configuration, mirroring the
// teacher's default-then-override-then-validate pattern.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	PublicBaseURL string `toml:"public_base_url"`
}

type DatabaseConfig struct {
	Path              string `toml:"path"`
	BusyTimeoutMS     int    `toml:"busy_timeout_ms"`
}

type ArchiveConfig struct {
	RepoRoot        string `toml:"repo_root"`
	CommitAuthor    string `toml:"commit_author"`
	CommitEmail     string `toml:"commit_email"`
	LockStaleAfterS int    `toml:"lock_stale_after_seconds"`
}

type QuotaConfig struct {
	InboxLimitCount       int `toml:"inbox_limit_count"`
	AttachmentsLimitBytes int `toml:"attachments_limit_bytes"`
}

type IdentityConfig struct {
	Mode string `toml:"mode"` // dir | git_remote | git_toplevel | git_common_dir
}

type ExportConfig struct {
	DefaultFormat  string `toml:"default_format"`
	SigningKeyPath string `toml:"signing_key_path"`
}

// Config is agentmaild's full runtime configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Archive  ArchiveConfig  `toml:"archive"`
	Quota    QuotaConfig    `toml:"quota"`
	Identity IdentityConfig `toml:"identity"`
	Export   ExportConfig   `toml:"export"`
}

// DefaultConfig returns the built-in defaults Load() starts from before
// applying the TOML file on top.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8741,
		},
		Database: DatabaseConfig{
			Path:          "~/.config/agentmaild/state.db",
			BusyTimeoutMS: 5000,
		},
		Archive: ArchiveConfig{
			RepoRoot:        "~/.config/agentmaild/projects",
			CommitAuthor:    "mcp-bot",
			CommitEmail:     "mcp-bot@localhost",
			LockStaleAfterS: 3600,
		},
		Quota: QuotaConfig{
			InboxLimitCount:       500,
			AttachmentsLimitBytes: 10 * 1024 * 1024,
		},
		Identity: IdentityConfig{
			Mode: "dir",
		},
		Export: ExportConfig{
			DefaultFormat: "json",
		},
	}
}

// DefaultPath returns the default location agentmaild looks for its
// config file: ~/.config/agentmaild/config.toml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "agentmaild.toml"
	}
	return filepath.Join(home, ".config", "agentmaild", "config.toml")
}

// Load reads path (or DefaultPath() if empty) over the built-in defaults.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if envPath := os.Getenv("AGENTMAILD_DB_PATH"); envPath != "" {
		cfg.Database.Path = envPath
	}
	if envRoot := os.Getenv("AGENTMAILD_ARCHIVE_ROOT"); envRoot != "" {
		cfg.Archive.RepoRoot = envRoot
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Archive.RepoRoot = ExpandHome(cfg.Archive.RepoRoot)
	cfg.Export.SigningKeyPath = ExpandHome(cfg.Export.SigningKeyPath)

	return cfg, nil
}

// ExpandHome expands a leading "~" or "~/" to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Validate checks the configuration for range and consistency errors,
// returning every problem found rather than stopping at the first.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs []error

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: must be in 1..65535, got %d", cfg.Server.Port))
	}
	if cfg.Database.BusyTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("database.busy_timeout_ms: must be non-negative, got %d", cfg.Database.BusyTimeoutMS))
	}
	if cfg.Archive.RepoRoot == "" {
		errs = append(errs, errors.New("archive.repo_root: must not be empty"))
	}
	if cfg.Archive.LockStaleAfterS < 1 {
		errs = append(errs, fmt.Errorf("archive.lock_stale_after_seconds: must be at least 1, got %d", cfg.Archive.LockStaleAfterS))
	}
	if cfg.Quota.InboxLimitCount < 1 {
		errs = append(errs, fmt.Errorf("quota.inbox_limit_count: must be at least 1, got %d", cfg.Quota.InboxLimitCount))
	}
	if cfg.Quota.AttachmentsLimitBytes < 1 {
		errs = append(errs, fmt.Errorf("quota.attachments_limit_bytes: must be at least 1, got %d", cfg.Quota.AttachmentsLimitBytes))
	}
	switch cfg.Identity.Mode {
	case "dir", "git_remote", "git_toplevel", "git_common_dir":
	default:
		errs = append(errs, fmt.Errorf("identity.mode: unrecognized %q", cfg.Identity.Mode))
	}
	switch cfg.Export.DefaultFormat {
	case "json", "html", "markdown", "csv", "yaml":
	default:
		errs = append(errs, fmt.Errorf("export.default_format: unrecognized %q", cfg.Export.DefaultFormat))
	}

	return errors.Join(errs...)
}
