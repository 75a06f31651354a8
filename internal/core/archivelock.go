package core

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// lockOwner is the JSON payload written to .archive.lock.owner, ported from
// archive_lock.rs's LockOwner.
type lockOwner struct {
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
	Agent     string    `json:"agent,omitempty"`
	Hostname  string    `json:"hostname"`
}

func (o lockOwner) isStale(maxAge time.Duration) bool {
	if time.Since(o.Timestamp) > maxAge {
		return true
	}
	return !processAlive(o.PID)
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.Stat(filepath.Join("/proc", itoa(pid)))
	return err == nil
}

// ArchiveLock is the cross-process advisory lock serializing writes to a
// project's Git archive. It pairs a process-local sync.Mutex (for goroutines
// within this server) with a file-based lock the way
// crates/libs/lib-core/src/store/archive_lock.rs does for multiple OS
// processes sharing the same archive directory.
type ArchiveLock struct {
	lockPath  string
	ownerPath string
	inner     sync.Mutex
	maxAge    time.Duration
}

// NewArchiveLock builds a lock rooted at archivePath (a project's archive
// directory). maxAge defaults to one hour, matching the original.
func NewArchiveLock(archivePath string, maxAge time.Duration) *ArchiveLock {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &ArchiveLock{
		lockPath:  filepath.Join(archivePath, ".archive.lock"),
		ownerPath: filepath.Join(archivePath, ".archive.lock.owner"),
		maxAge:    maxAge,
	}
}

// LockGuard releases the lock when Release is called or the process exits
// unexpectedly (the next acquirer will find it stale and clean it up).
type LockGuard struct {
	lock *ArchiveLock
}

// Acquire blocks (polling every 100ms) until the lock is free, a stale
// owner is cleaned up, or timeout elapses.
func (l *ArchiveLock) Acquire(ctx context.Context, agent string, timeout time.Duration) (*LockGuard, error) {
	deadline := time.Now().Add(timeout)

	for {
		if !l.inner.TryLock() {
			if time.Now().After(deadline) {
				owner, _ := l.readOwner()
				return nil, LockTimeout(l.lockPath, owner.PID)
			}
			select {
			case <-ctx.Done():
				return nil, Internal(ctx.Err())
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		if _, err := os.Stat(l.lockPath); err == nil {
			owner, ok := l.readOwner()
			stale := !ok || owner.isStale(l.maxAge)
			if stale {
				l.forceCleanup()
			} else {
				l.inner.Unlock()
				if time.Now().After(deadline) {
					return nil, LockTimeout(l.lockPath, owner.PID)
				}
				select {
				case <-ctx.Done():
					return nil, Internal(ctx.Err())
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}
		}

		if err := os.WriteFile(l.lockPath, nil, 0o644); err != nil {
			l.inner.Unlock()
			return nil, Internal(err)
		}
		owner := lockOwner{PID: os.Getpid(), Timestamp: time.Now().UTC(), Agent: agent, Hostname: hostname()}
		data, _ := json.MarshalIndent(owner, "", "  ")
		if err := os.WriteFile(l.ownerPath, data, 0o644); err != nil {
			l.inner.Unlock()
			return nil, Internal(err)
		}

		return &LockGuard{lock: l}, nil
	}
}

func (l *ArchiveLock) readOwner() (lockOwner, bool) {
	data, err := os.ReadFile(l.ownerPath)
	if err != nil {
		return lockOwner{}, false
	}
	var owner lockOwner
	if err := json.Unmarshal(data, &owner); err != nil {
		return lockOwner{}, false
	}
	return owner, true
}

func (l *ArchiveLock) forceCleanup() {
	os.Remove(l.lockPath)
	os.Remove(l.ownerPath)
}

// Release removes the lock files and frees the process-local mutex. Safe to
// call exactly once per successful Acquire.
func (g *LockGuard) Release() {
	os.Remove(g.lock.lockPath)
	os.Remove(g.lock.ownerPath)
	g.lock.inner.Unlock()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
