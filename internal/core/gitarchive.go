package core

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	archiveAuthorName  = "mcp-bot"
	archiveAuthorEmail = "mcp-bot@localhost"
)

// GitArchive wraps a single project's content-addressed Git archive. All
// operations shell out to the `git` binary, the same subprocess style the
// teacher uses for tmux/gh control and the original model uses for
// `git rev-parse`/`git config` (no libgit2 binding appears anywhere in the
// retrieval pack, so a real git2 dependency like the Rust original used has
// no Go analogue here; subprocess git is the grounded substitute).
type GitArchive struct {
	root string // absolute path to the repo working directory
}

// OpenGitArchive initializes a (non-bare) repository with a working tree at
// root if one doesn't already exist, then returns a handle to it. Mirrors
// mouchak-mail-core/src/store/git_store.rs's init_or_open_repo.
func OpenGitArchive(ctx context.Context, root string) (*GitArchive, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, Internal(err)
	}
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		if err := runGit(ctx, root, "init", "--quiet"); err != nil {
			return nil, err
		}
		if err := runGit(ctx, root, "config", "user.name", archiveAuthorName); err != nil {
			return nil, err
		}
		if err := runGit(ctx, root, "config", "user.email", archiveAuthorEmail); err != nil {
			return nil, err
		}
	}
	return &GitArchive{root: root}, nil
}

// EnsureGitAttributes writes a `.gitattributes` forcing JSON/Markdown to
// text line endings, committing it once, matching project.rs's
// ensure_archive.
func (a *GitArchive) EnsureGitAttributes(ctx context.Context) error {
	path := filepath.Join(a.root, ".gitattributes")
	want := "*.json text\n*.md text\n"
	existing, _ := os.ReadFile(path)
	if string(existing) == want {
		return nil
	}
	if err := os.WriteFile(path, []byte(want), 0o644); err != nil {
		return Internal(err)
	}
	return a.CommitPaths(ctx, []string{".gitattributes"}, "chore: initialize archive")
}

// WriteJSON writes a JSON payload to relPath under the archive root. The
// caller is responsible for committing it via CommitPaths under the holding
// ArchiveLock.
func (a *GitArchive) WriteJSON(relPath string, data []byte) error {
	full := filepath.Join(a.root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Internal(err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return Internal(err)
	}
	return nil
}

// CommitPaths stages the given relative paths and commits them, returning
// only an error. If nothing changed, it creates no empty commit.
func (a *GitArchive) CommitPaths(ctx context.Context, relPaths []string, message string) error {
	args := append([]string{"add"}, relPaths...)
	if err := runGit(ctx, a.root, args...); err != nil {
		return err
	}

	status, err := outputGit(ctx, a.root, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return nil
	}

	return runGit(ctx, a.root, "-c", "user.name="+archiveAuthorName, "-c", "user.email="+archiveAuthorEmail,
		"commit", "--quiet", "-m", message)
}

// HeadOID returns the current HEAD commit hash, or "" if the repo has no
// commits yet.
func (a *GitArchive) HeadOID(ctx context.Context) (string, error) {
	out, err := outputGit(ctx, a.root, "rev-parse", "HEAD")
	if err != nil {
		return "", nil // no commits yet
	}
	return strings.TrimSpace(out), nil
}

// FindCommitBefore walks `git log` to find the last commit at or before
// asOf, the Go analogue of the original's find_commit_before used by the
// time-travel reader.
func (a *GitArchive) FindCommitBefore(ctx context.Context, asOf time.Time) (string, error) {
	out, err := outputGit(ctx, a.root, "log",
		"--until="+asOf.UTC().Format(time.RFC3339),
		"--format=%H", "-n", "1")
	if err != nil {
		return "", err
	}
	oid := strings.TrimSpace(out)
	if oid == "" {
		return "", NotFound("commit", "before "+asOf.Format(time.RFC3339))
	}
	return oid, nil
}

// ShowFileAt returns the content of relPath as it existed at commit oid, or
// nil with no error if the file did not exist yet at that commit.
func (a *GitArchive) ShowFileAt(ctx context.Context, oid, relPath string) ([]byte, error) {
	out, err := outputGitRaw(ctx, a.root, "show", fmt.Sprintf("%s:%s", oid, relPath))
	if err != nil {
		if strings.Contains(err.Error(), "exists on disk, but not in") || strings.Contains(err.Error(), "does not exist") {
			return nil, nil
		}
		return nil, Internal(err)
	}
	return out, nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Internal(fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String()))
	}
	return nil
}

func outputGit(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := outputGitRaw(ctx, dir, args...)
	if err != nil {
		return "", Internal(err)
	}
	return string(out), nil
}

func outputGitRaw(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}
