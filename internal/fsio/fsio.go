// Package fsio provides the filesystem primitives shared by the stores:
// atomic file replacement, JSONL append and scan, and the per-root lock
// that serializes mutating operations across processes.
package fsio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"workmesh/internal/wmerr"
)

// WriteFileAtomic writes data to path via a temp file in the same
// directory followed by a rename, so readers never observe a partial
// write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s -> %s: %w", tmpName, path, err)
	}
	return nil
}

// AppendJSONLine marshals v and appends it as a single line to path,
// creating parent directories as needed.
func AppendJSONLine(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializing event: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s for append: %w", path, err)
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return nil
}

// ScanJSONLines calls fn for each non-empty line of a JSONL file with
// its 1-based line number. A missing file is treated as empty.
func ScanJSONLines(path string, fn func(line []byte, n int) error) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line, n); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// Lock is a held filesystem lock.
type Lock struct {
	path string
}

const (
	lockRetryInterval = 25 * time.Millisecond
	// A lock file older than this is assumed to be left over from a
	// crashed process and is broken.
	lockStaleAfter = 5 * time.Minute
)

// Acquire takes an exclusive lock file, waiting up to timeout. It
// returns a ConcurrencyError when the wait is exhausted.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	for {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(file, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			file.Close()
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			// Only a missing parent directory is retryable.
			if os.IsNotExist(err) {
				if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr == nil {
					continue
				}
			}
			return nil, wmerr.IO(err, "acquiring lock %s", path)
		}
		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, wmerr.New(wmerr.ConcurrencyError, "timed out waiting for lock %s", path)
		}
		time.Sleep(lockRetryInterval)
	}
}

// Release removes the lock file.
func (l *Lock) Release() {
	if l != nil {
		os.Remove(l.path)
	}
}
