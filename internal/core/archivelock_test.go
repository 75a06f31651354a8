package core

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestArchiveLock_AcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	lock := NewArchiveLock(dir, time.Hour)

	guard, err := lock.Acquire(context.Background(), "OakRidge", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".archive.lock")); err != nil {
		t.Fatalf("expected a lock file to exist: %v", err)
	}

	guard.Release()
	if _, err := os.Stat(filepath.Join(dir, ".archive.lock")); !os.IsNotExist(err) {
		t.Fatalf("expected the lock file to be removed after Release, err=%v", err)
	}
}

func TestArchiveLock_TimesOutWhenHeld(t *testing.T) {
	dir := t.TempDir()
	lock := NewArchiveLock(dir, time.Hour)

	guard, err := lock.Acquire(context.Background(), "OakRidge", time.Second)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer guard.Release()

	_, err = lock.Acquire(context.Background(), "MossHaven", 150*time.Millisecond)
	if err == nil {
		t.Fatal("expected Acquire to time out while the lock is held")
	}
	if AsError(err).Kind != KindLockTimeout {
		t.Fatalf("kind = %v, want KindLockTimeout", AsError(err).Kind)
	}
}

func TestArchiveLock_RecoversStaleLock(t *testing.T) {
	dir := t.TempDir()
	lock := NewArchiveLock(dir, 10*time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, ".archive.lock"), nil, 0o644); err != nil {
		t.Fatalf("write lock file: %v", err)
	}
	owner := lockOwner{PID: os.Getpid(), Timestamp: time.Now().UTC().Add(-time.Hour), Agent: "ghost", Hostname: "h"}
	data, err := json.Marshal(owner)
	if err != nil {
		t.Fatalf("marshal owner: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".archive.lock.owner"), data, 0o644); err != nil {
		t.Fatalf("write owner file: %v", err)
	}

	guard, err := lock.Acquire(context.Background(), "OakRidge", time.Second)
	if err != nil {
		t.Fatalf("Acquire should recover a stale lock, got %v", err)
	}
	guard.Release()
}
