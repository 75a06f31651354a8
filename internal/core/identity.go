package core

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// IdentitySource records which precedence rule produced a ResolvedIdentity.
type IdentitySource int

const (
	SourceCommittedMarker IdentitySource = iota
	SourcePrivateMarker
	SourceRemoteFingerprint
	SourceGitToplevel
	SourceGitCommonDir
	SourceDirectoryPath
)

func (s IdentitySource) String() string {
	switch s {
	case SourceCommittedMarker:
		return "committed_marker"
	case SourcePrivateMarker:
		return "private_marker"
	case SourceRemoteFingerprint:
		return "remote_fingerprint"
	case SourceGitToplevel:
		return "git_toplevel"
	case SourceGitCommonDir:
		return "git_common_dir"
	default:
		return "directory_path"
	}
}

// IdentityMode selects which of the four project-key derivation formulas
// ResolveIdentity applies. Ported from crates/libs/lib-core/src/model/
// identity.rs's IdentityMode enum (Dir/GitRemote/GitToplevel/GitCommonDir).
type IdentityMode int

const (
	// ModeDirectoryOnly never shells out to git: slug is derived purely
	// from the basename and a hash of the path itself.
	ModeDirectoryOnly IdentityMode = iota
	// ModeGitRemote prefers the origin remote URL, normalized so SSH and
	// HTTPS forms of the same remote collide on one slug.
	ModeGitRemote
	// ModeGitToplevel keys off the repo's working-tree root, so distinct
	// worktrees of the same repo get distinct slugs.
	ModeGitToplevel
	// ModeGitCommonDir keys off the shared .git directory, so a repo and
	// every worktree attached to it collide on one slug intentionally.
	ModeGitCommonDir
)

// ResolvedIdentity is the stable project identity plus the short slug
// derived from it and the provenance of both. Ported from
// crates/libs/lib-core/src/model/identity.rs.
type ResolvedIdentity struct {
	// Identity is the full-precision stable key used for equality checks
	// (SameIdentity) and, for marker-file sources, the marker's raw
	// content.
	Identity string
	// Slug is the short, filesystem- and URL-safe form used as the
	// project's slug and archive directory name.
	Slug            string
	Source          IdentitySource
	OriginalPath    string
	NormalizedPath  string
	GitCommonDir    string
	CaseInsensitive bool
}

const (
	committedMarkerFile = ".agent-mail-identity"
	privateMarkerFile   = ".agent-mail-identity.local"
)

// ResolveIdentity computes the stable project identity and slug for path
// under mode. Git-aware modes (everything but ModeDirectoryOnly) consult,
// in order, a committed marker file at the repo root, a private marker
// file, then the mode's own formula; any mode falls back to the plain
// directory formula when path isn't inside a git repository at all.
func ResolveIdentity(ctx context.Context, path string, mode IdentityMode) (*ResolvedIdentity, error) {
	normalized := normalizeWSL2Path(path)

	if mode == ModeDirectoryOnly {
		return dirIdentity(normalized, path), nil
	}

	commonDir, err := gitCommonDir(ctx, normalized)
	if err != nil || commonDir == "" {
		return dirIdentity(normalized, path), nil
	}
	caseInsensitive := gitIgnoreCase(ctx, normalized)
	repoRoot := filepath.Dir(commonDir)

	if marker, src, ok := readMarkerFile(repoRoot, commonDir); ok {
		return &ResolvedIdentity{
			Identity: marker, Slug: Slugify(marker), Source: src, OriginalPath: path,
			NormalizedPath: normalized, GitCommonDir: commonDir, CaseInsensitive: caseInsensitive,
		}, nil
	}

	switch mode {
	case ModeGitRemote:
		if raw, err := remoteFingerprint(ctx, normalized); err == nil && raw != "" {
			normalizedRemote := normalizeGitRemote(raw)
			repo := repoNameFromRemote(normalizedRemote)
			return &ResolvedIdentity{
				Identity: hashString(normalizedRemote), Slug: repo + "-" + hashPrefix(normalizedRemote, 10),
				Source: SourceRemoteFingerprint, OriginalPath: path, NormalizedPath: normalized,
				GitCommonDir: commonDir, CaseInsensitive: caseInsensitive,
			}, nil
		}
		// No remote configured: fall through to the common-dir formula
		// rather than the plain directory one, since we are inside a repo.
		return gitCommonDirIdentity(path, normalized, commonDir, caseInsensitive), nil

	case ModeGitToplevel:
		toplevel, err := gitToplevel(ctx, normalized)
		if err != nil || toplevel == "" {
			return gitCommonDirIdentity(path, normalized, commonDir, caseInsensitive), nil
		}
		if caseInsensitive {
			toplevel = strings.ToLower(toplevel)
		}
		slug := Slugify(filepath.Base(toplevel)) + "-" + hashPrefix(toplevel, 10)
		return &ResolvedIdentity{
			Identity: hashString(toplevel), Slug: slug, Source: SourceGitToplevel, OriginalPath: path,
			NormalizedPath: normalized, GitCommonDir: commonDir, CaseInsensitive: caseInsensitive,
		}, nil

	default: // ModeGitCommonDir
		return gitCommonDirIdentity(path, normalized, commonDir, caseInsensitive), nil
	}
}

func gitCommonDirIdentity(originalPath, normalized, commonDir string, caseInsensitive bool) *ResolvedIdentity {
	key := commonDir
	if caseInsensitive {
		key = strings.ToLower(key)
	}
	return &ResolvedIdentity{
		Identity: hashString(key), Slug: "repo-" + hashPrefix(key, 10), Source: SourceGitCommonDir,
		OriginalPath: originalPath, NormalizedPath: normalized, GitCommonDir: commonDir, CaseInsensitive: caseInsensitive,
	}
}

// dirIdentity is the mode-independent fallback: slugify(basename(path)) +
// "-" + sha1(path)[0..8].
func dirIdentity(normalized, originalPath string) *ResolvedIdentity {
	slug := Slugify(filepath.Base(normalized)) + "-" + hashPrefix(normalized, 8)
	return &ResolvedIdentity{
		Identity: hashString(normalized), Slug: slug, Source: SourceDirectoryPath,
		OriginalPath: originalPath, NormalizedPath: normalized,
	}
}

// SameIdentity reports whether two paths resolve to the same project identity.
func SameIdentity(ctx context.Context, a, b string, mode IdentityMode) (bool, error) {
	ra, err := ResolveIdentity(ctx, a, mode)
	if err != nil {
		return false, err
	}
	rb, err := ResolveIdentity(ctx, b, mode)
	if err != nil {
		return false, err
	}
	return ra.Identity == rb.Identity, nil
}

// normalizeWSL2Path rewrites /mnt/{drive}/... into {DRIVE}:/... so that WSL2
// and native Windows paths to the same tree resolve identically.
func normalizeWSL2Path(path string) string {
	const prefix = "/mnt/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := path[len(prefix):]
	if len(rest) < 1 {
		return path
	}
	drive := rest[0]
	if !((drive >= 'a' && drive <= 'z') || (drive >= 'A' && drive <= 'Z')) {
		return path
	}
	remainder := rest[1:]
	if remainder != "" && remainder[0] != '/' {
		return path
	}
	return strings.ToUpper(string(drive)) + ":" + remainder
}

func gitCommonDir(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "-C", path, "rev-parse", "--git-common-dir").Output()
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(path, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir, nil
	}
	return abs, nil
}

// gitToplevel returns the canonical working-tree root for path, which
// differs from git-common-dir for a linked worktree (each worktree has its
// own toplevel but shares one common dir with the main checkout).
func gitToplevel(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "-C", path, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(string(out))
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir, nil
	}
	return abs, nil
}

func gitIgnoreCase(ctx context.Context, path string) bool {
	out, err := exec.CommandContext(ctx, "git", "-C", path, "config", "--get", "core.ignorecase").Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "true"
}

func remoteFingerprint(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "-C", path, "config", "--get", "remote.origin.url").Output()
	if err != nil {
		return "", err
	}
	url := strings.TrimSpace(string(out))
	if url == "" {
		return "", errors.New("no remote configured")
	}
	return url, nil
}

// normalizeGitRemote collapses SSH (git@host:owner/repo.git), ssh://, and
// https:// remote URLs referring to the same repository down to one
// canonical "host/owner/repo" form, stripping scheme, embedded user, and
// the trailing ".git" suffix.
func normalizeGitRemote(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")

	if !strings.Contains(s, "://") && strings.Contains(s, "@") && strings.Contains(s, ":") {
		// scp-like syntax: git@host:owner/repo
		after := s[strings.Index(s, "@")+1:]
		after = strings.Replace(after, ":", "/", 1)
		return strings.ToLower(after)
	}

	if idx := strings.Index(s, "://"); idx != -1 {
		s = s[idx+3:]
	}
	if idx := strings.Index(s, "@"); idx != -1 {
		s = s[idx+1:]
	}
	return strings.ToLower(s)
}

// repoNameFromRemote returns the last path segment of a normalized
// "host/owner/repo" remote, i.e. the bare repo name.
func repoNameFromRemote(normalized string) string {
	parts := strings.Split(normalized, "/")
	if len(parts) == 0 {
		return normalized
	}
	return parts[len(parts)-1]
}

// readMarkerFile walks up from gitDir's parent to the repo root looking for
// a committed marker first, then a private (gitignored) marker.
func readMarkerFile(repoRoot, gitCommonDir string) (string, IdentitySource, bool) {
	if id, ok := readTrimmedFile(filepath.Join(repoRoot, committedMarkerFile)); ok {
		return id, SourceCommittedMarker, true
	}
	if id, ok := readTrimmedFile(filepath.Join(repoRoot, privateMarkerFile)); ok {
		return id, SourcePrivateMarker, true
	}
	return "", 0, false
}

func readTrimmedFile(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "", false
	}
	return s, true
}

func hashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hashPrefix(s string, n int) string {
	h := hashString(s)
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}

// HashPath is the exported form used by the file-reservation BMC to derive
// archive filenames from path patterns.
func HashPath(s string) string { return hashString(s) }
