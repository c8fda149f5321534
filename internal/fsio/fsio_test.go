package fsio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"workmesh/internal/wmerr"
)

func TestAcquireCreatesMissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workmesh", ".index", "lock")
	lock, err := Acquire(path, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	lock.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("lock file not removed on release")
	}
}

func TestAcquireTimesOutOnHeldLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	held, err := Acquire(path, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Release()

	if _, err := Acquire(path, 100*time.Millisecond); !wmerr.IsKind(err, wmerr.ConcurrencyError) {
		t.Fatalf("err = %v, want ConcurrencyError", err)
	}
}

func TestAcquireBreaksStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	if err := os.WriteFile(path, []byte("999999 stale\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-lockStaleAfter - time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(path, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("stale lock not broken: %v", err)
	}
	lock.Release()
}

func TestAcquireStopsOnPersistentOpenError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission denials do not apply to root")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	done := make(chan error, 1)
	go func() {
		_, err := Acquire(filepath.Join(dir, "lock"), 200*time.Millisecond)
		done <- err
	}()
	select {
	case err := <-done:
		if !wmerr.IsKind(err, wmerr.IOError) {
			t.Fatalf("err = %v, want IOError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("acquire kept retrying an unrecoverable open error")
	}
}
