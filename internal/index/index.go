// Package index maintains the derived task projection at
// <root>/.index/tasks.jsonl. The index is advisory: it can be deleted
// and rebuilt at any time, and readers fall back to the task files
// when it is missing or stale.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"workmesh/internal/diag"
	"workmesh/internal/fsio"
	"workmesh/internal/paths"
	"workmesh/internal/task"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
)

// Entry is one JSONL line: a task snapshot plus the source file stat
// used for change detection. Path is repo-relative.
type Entry struct {
	Path           string             `json:"path"`
	ID             string             `json:"id"`
	UID            string             `json:"uid,omitempty"`
	Title          string             `json:"title"`
	Kind           string             `json:"kind,omitempty"`
	Status         string             `json:"status"`
	Priority       string             `json:"priority,omitempty"`
	Phase          string             `json:"phase,omitempty"`
	Labels         []string           `json:"labels,omitempty"`
	Assignee       []string           `json:"assignee,omitempty"`
	Dependencies   []string           `json:"dependencies,omitempty"`
	Relationships  task.Relationships `json:"relationships,omitempty"`
	Project        string             `json:"project,omitempty"`
	Initiative     string             `json:"initiative,omitempty"`
	LeaseOwner     string             `json:"lease_owner,omitempty"`
	LeaseExpiresAt string             `json:"lease_expires_at,omitempty"`
	CreatedDate    string             `json:"created_date,omitempty"`
	UpdatedDate    string             `json:"updated_date,omitempty"`
	Mtime          int64              `json:"mtime"`
	Hash           string             `json:"hash"`
}

func entryFor(layout paths.Layout, t *task.Task, mtime int64, hash string) Entry {
	e := Entry{
		Path:          layout.RelPath(t.Path),
		ID:            t.ID,
		UID:           t.UID,
		Title:         t.Title,
		Kind:          t.Kind,
		Status:        t.Status,
		Priority:      t.Priority,
		Phase:         t.Phase,
		Labels:        t.Labels,
		Assignee:      t.Assignee,
		Dependencies:  t.Dependencies,
		Relationships: t.Relationships,
		Project:       t.Project,
		Initiative:    t.Initiative,
		CreatedDate:   t.CreatedDate,
		UpdatedDate:   t.UpdatedDate,
		Mtime:         mtime,
		Hash:          hash,
	}
	if t.Lease != nil {
		e.LeaseOwner = t.Lease.Owner
		e.LeaseExpiresAt = t.Lease.ExpiresAt
	}
	return e
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ID != entries[j].ID {
			return entries[i].ID < entries[j].ID
		}
		if entries[i].UID != entries[j].UID {
			return entries[i].UID < entries[j].UID
		}
		return entries[i].Path < entries[j].Path
	})
}

func writeEntries(layout paths.Layout, entries []Entry) error {
	sortEntries(entries)
	var b strings.Builder
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return wmerr.Wrap(wmerr.IOError, err, "serializing index entry %s", e.Path)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	if err := fsio.WriteFileAtomic(layout.IndexPath(), []byte(b.String()), 0o644); err != nil {
		return wmerr.IO(err, "writing index")
	}
	return nil
}

// Load reads the index. A missing file yields an empty slice.
func Load(layout paths.Layout) ([]Entry, error) {
	var entries []Entry
	err := fsio.ScanJSONLines(layout.IndexPath(), func(line []byte, n int) error {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return wmerr.Wrap(wmerr.ParseError, err, "index line %d", n).WithPath(layout.IndexPath(), n)
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func taskFiles(layout paths.Layout) ([]string, error) {
	files, err := doublestar.FilepathGlob(layout.TasksDir + "/*.md")
	if err != nil {
		return nil, wmerr.IO(err, "listing %s", layout.TasksDir)
	}
	sort.Strings(files)
	return files, nil
}

// Rebuild parses every task file and rewrites the index from scratch.
func Rebuild(layout paths.Layout, sink diag.Sink) error {
	files, err := taskFiles(layout)
	if err != nil {
		return err
	}
	cache, cacheErr := openStatCache(layout.IndexDir())
	if cacheErr != nil {
		diag.Warnf(sink, "index", "stat cache unavailable: %v", cacheErr)
	}
	defer cache.Close()

	entries := make([]Entry, 0, len(files))
	for _, path := range files {
		entry, err := buildEntry(layout, cache, path)
		if err != nil {
			diag.Warnf(sink, "index", "skipping %s: %v", path, err)
			continue
		}
		entries = append(entries, entry)
	}
	return writeEntries(layout, entries)
}

func buildEntry(layout paths.Layout, cache *statCache, path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, wmerr.IO(err, "stat %s", path)
	}
	var content []byte
	hash, err := cache.hashFor(layout.RelPath(path), info, func() ([]byte, error) {
		var readErr error
		content, readErr = os.ReadFile(path)
		return content, readErr
	})
	if err != nil {
		return Entry{}, wmerr.IO(err, "reading %s", path)
	}
	if content == nil {
		if content, err = os.ReadFile(path); err != nil {
			return Entry{}, wmerr.IO(err, "reading %s", path)
		}
	}
	t, err := task.Parse(string(content), path)
	if err != nil {
		return Entry{}, err
	}
	return entryFor(layout, t, info.ModTime().UnixNano(), hash), nil
}

// Refresh updates the index incrementally: unchanged entries (same
// mtime and hash) are kept as-is, changed and new files are reparsed,
// and entries whose source is gone are dropped. Legacy absolute paths
// are upgraded to repo-relative in place.
func Refresh(layout paths.Layout, sink diag.Sink) error {
	existing, err := Load(layout)
	if err != nil {
		// A corrupt index is rebuilt rather than repaired.
		diag.Warnf(sink, "index", "unreadable index, rebuilding: %v", err)
		return Rebuild(layout, sink)
	}
	byPath := make(map[string]Entry, len(existing))
	for _, e := range existing {
		byPath[layout.RelPath(e.Path)] = e
	}

	files, err := taskFiles(layout)
	if err != nil {
		return err
	}
	cache, cacheErr := openStatCache(layout.IndexDir())
	if cacheErr != nil {
		diag.Warnf(sink, "index", "stat cache unavailable: %v", cacheErr)
	}
	defer cache.Close()

	entries := make([]Entry, 0, len(files))
	for _, path := range files {
		rel := layout.RelPath(path)
		info, err := os.Stat(path)
		if err != nil {
			diag.Warnf(sink, "index", "stat %s: %v", path, err)
			continue
		}
		if have, ok := byPath[rel]; ok && have.Mtime == info.ModTime().UnixNano() {
			// The mtime alone does not vouch for the entry: a corrupted
			// index line keeps the old stat but the wrong snapshot.
			hash, hashErr := cache.hashFor(rel, info, func() ([]byte, error) {
				return os.ReadFile(path)
			})
			if hashErr == nil && hash == have.Hash {
				have.Path = rel
				entries = append(entries, have)
				continue
			}
		}
		entry, err := buildEntry(layout, cache, path)
		if err != nil {
			diag.Warnf(sink, "index", "skipping %s: %v", path, err)
			continue
		}
		entries = append(entries, entry)
	}
	for rel := range byPath {
		if _, err := os.Stat(layout.AbsPath(rel)); os.IsNotExist(err) {
			cache.remove(rel)
		}
	}
	return writeEntries(layout, entries)
}

// Verify compares the stored index against the task files and returns
// a description of each divergence without writing anything.
func Verify(layout paths.Layout, sink diag.Sink) ([]string, error) {
	existing, err := Load(layout)
	if err != nil {
		return []string{fmt.Sprintf("index unreadable: %v", err)}, nil
	}
	byPath := make(map[string]Entry, len(existing))
	for _, e := range existing {
		byPath[layout.RelPath(e.Path)] = e
	}

	files, err := taskFiles(layout)
	if err != nil {
		return nil, err
	}

	var drift []string
	seen := make(map[string]bool, len(files))
	for _, path := range files {
		rel := layout.RelPath(path)
		seen[rel] = true
		have, ok := byPath[rel]
		if !ok {
			drift = append(drift, fmt.Sprintf("missing entry for %s", rel))
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			drift = append(drift, fmt.Sprintf("unreadable source %s: %v", rel, err))
			continue
		}
		if hash := util.Blake3HashHex(content); hash != have.Hash {
			drift = append(drift, fmt.Sprintf("stale entry for %s", rel))
		}
	}
	for rel := range byPath {
		if !seen[rel] {
			drift = append(drift, fmt.Sprintf("orphan entry for %s", rel))
		}
	}
	sort.Strings(drift)
	return drift, nil
}
