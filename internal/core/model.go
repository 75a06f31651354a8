package core

import (
	"context"
	"path/filepath"
	"sync"
	"time"
)

// ModelManager is the single entry point every BMC is constructed from. It
// owns the SQL connection, the archive root directory, and the per-project
// archive locks — the Go analogue of mouchak-mail-core's ModelManager,
// renamed here because Go has no module-level "mm" convention to preserve.
type ModelManager struct {
	DB          *DB
	ArchiveRoot string
	LockTimeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*ArchiveLock
}

// NewModelManager wires a DB and archive root together. archiveRoot is the
// directory under which each project gets its own projects/<slug>/ subtree.
func NewModelManager(db *DB, archiveRoot string) *ModelManager {
	return &ModelManager{
		DB:          db,
		ArchiveRoot: archiveRoot,
		LockTimeout: 10 * time.Second,
		locks:       make(map[string]*ArchiveLock),
	}
}

// ProjectArchiveDir returns the absolute path to a project's archive
// subtree: <archiveRoot>/projects/<slug>.
func (mm *ModelManager) ProjectArchiveDir(slug string) string {
	return filepath.Join(mm.ArchiveRoot, "projects", slug)
}

// lockFor returns (creating if necessary) the ArchiveLock guarding a
// project's archive directory.
func (mm *ModelManager) lockFor(slug string) *ArchiveLock {
	mm.locksMu.Lock()
	defer mm.locksMu.Unlock()
	if l, ok := mm.locks[slug]; ok {
		return l
	}
	l := NewArchiveLock(mm.ProjectArchiveDir(slug), time.Hour)
	mm.locks[slug] = l
	return l
}

// WithArchive acquires the project's archive lock, opens (or initializes)
// its Git working tree, and runs fn, releasing the lock afterward
// regardless of fn's outcome. Every durable write in this package funnels
// through here so the relational write and the archive commit stay paired.
func (mm *ModelManager) WithArchive(ctx context.Context, slug, agent string, fn func(*GitArchive) error) error {
	lock := mm.lockFor(slug)
	guard, err := lock.Acquire(ctx, agent, mm.LockTimeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	archive, err := OpenGitArchive(ctx, mm.ProjectArchiveDir(slug))
	if err != nil {
		return err
	}
	return fn(archive)
}

// CleanupStaleLocks is called once at startup to proactively clear any
// `.archive.lock`/`.archive.lock.owner` pair left behind by a crashed
// previous process, the same recovery the original ModelManager performs
// on boot (archive_lock.rs's test_crash_recovery_integration scenario).
func (mm *ModelManager) CleanupStaleLocks(ctx context.Context, slugs []string) {
	for _, slug := range slugs {
		lock := mm.lockFor(slug)
		guard, err := lock.Acquire(ctx, "startup-cleanup", 200*time.Millisecond)
		if err != nil {
			continue
		}
		guard.Release()
	}
}
