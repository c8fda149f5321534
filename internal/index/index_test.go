package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"workmesh/internal/diag"
	"workmesh/internal/paths"
)

func testLayout(t *testing.T) paths.Layout {
	t.Helper()
	root := t.TempDir()
	layout, err := paths.ResolveOrInit(root)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if err := os.MkdirAll(layout.TasksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return layout
}

func writeTaskFile(t *testing.T, layout paths.Layout, name, id, status string) string {
	t.Helper()
	content := "---\n" +
		"id: " + id + "\n" +
		"title: " + id + "\n" +
		"status: " + status + "\n" +
		"priority: P2\n" +
		"phase: Phase1\n" +
		"dependencies: []\n" +
		"labels: []\n" +
		"assignee: []\n" +
		"---\n"
	path := filepath.Join(layout.TasksDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRebuildSortsByID(t *testing.T) {
	layout := testLayout(t)
	writeTaskFile(t, layout, "b.md", "task-002", "To Do")
	writeTaskFile(t, layout, "a.md", "task-001", "Done")

	if err := Rebuild(layout, nil); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	entries, err := Load(layout)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ID != "task-001" || entries[1].ID != "task-002" {
		t.Errorf("order = %s, %s", entries[0].ID, entries[1].ID)
	}
	if entries[0].Status != "Done" || entries[0].Hash == "" {
		t.Errorf("entry = %+v", entries[0])
	}
	if filepath.IsAbs(entries[0].Path) {
		t.Errorf("path not repo-relative: %s", entries[0].Path)
	}
}

func TestRefreshPicksUpChanges(t *testing.T) {
	layout := testLayout(t)
	path := writeTaskFile(t, layout, "a.md", "task-001", "To Do")
	writeTaskFile(t, layout, "b.md", "task-002", "To Do")
	if err := Rebuild(layout, nil); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// Change one file, remove the other, add a third.
	writeTaskFile(t, layout, "a.md", "task-001", "Done")
	// Force a distinct mtime in case the filesystem is coarse.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(layout.TasksDir, "b.md")); err != nil {
		t.Fatal(err)
	}
	writeTaskFile(t, layout, "c.md", "task-003", "To Do")

	if err := Refresh(layout, nil); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	entries, err := Load(layout)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2: %+v", len(entries), entries)
	}
	if entries[0].ID != "task-001" || entries[0].Status != "Done" {
		t.Errorf("changed entry not refreshed: %+v", entries[0])
	}
	if entries[1].ID != "task-003" {
		t.Errorf("new entry missing: %+v", entries[1])
	}
}

func TestRefreshRestoresTamperedEntry(t *testing.T) {
	layout := testLayout(t)
	writeTaskFile(t, layout, "a.md", "task-001", "To Do")
	if err := Rebuild(layout, nil); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// Corrupt the entry by hand; the source file keeps its stat, so
	// only the hash comparison can catch this.
	entries, err := Load(layout)
	if err != nil {
		t.Fatal(err)
	}
	entries[0].Title = "tampered"
	entries[0].Hash = strings.Repeat("0", 64)
	line, err := json.Marshal(entries[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.IndexPath(), append(line, '\n'), 0o644); err != nil {
		t.Fatal(err)
	}

	drift, err := Verify(layout, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(drift) != 1 {
		t.Fatalf("drift = %v, want one stale entry", drift)
	}

	if err := Refresh(layout, nil); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	entries, err = Load(layout)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Title != "task-001" {
		t.Fatalf("tampered entry not restored: %+v", entries)
	}
	drift, err = Verify(layout, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("drift after refresh: %v", drift)
	}
}

func TestRefreshUpgradesAbsolutePaths(t *testing.T) {
	layout := testLayout(t)
	path := writeTaskFile(t, layout, "a.md", "task-001", "To Do")
	if err := Rebuild(layout, nil); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// Rewrite the index with a legacy absolute path.
	data, err := os.ReadFile(layout.IndexPath())
	if err != nil {
		t.Fatal(err)
	}
	legacy := strings.Replace(string(data), `"path":"`+layout.RelPath(path)+`"`,
		`"path":"`+filepath.ToSlash(path)+`"`, 1)
	if err := os.WriteFile(layout.IndexPath(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Refresh(layout, nil); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	entries, err := Load(layout)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || filepath.IsAbs(entries[0].Path) {
		t.Fatalf("absolute path not upgraded: %+v", entries)
	}
}

func TestVerifyReportsDrift(t *testing.T) {
	layout := testLayout(t)
	writeTaskFile(t, layout, "a.md", "task-001", "To Do")
	if err := Rebuild(layout, nil); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	drift, err := Verify(layout, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("clean index reported drift: %v", drift)
	}

	writeTaskFile(t, layout, "a.md", "task-001", "Done")
	writeTaskFile(t, layout, "b.md", "task-002", "To Do")
	drift, err = Verify(layout, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(drift) != 2 {
		t.Fatalf("drift = %v, want stale + missing", drift)
	}
}

func TestRebuildSkipsUnparseable(t *testing.T) {
	layout := testLayout(t)
	writeTaskFile(t, layout, "a.md", "task-001", "To Do")
	bad := filepath.Join(layout.TasksDir, "bad.md")
	if err := os.WriteFile(bad, []byte("no front matter"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink := &diag.Buffer{}
	if err := Rebuild(layout, sink); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	entries, err := Load(layout)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if len(sink.Entries()) == 0 {
		t.Error("expected a diagnostic for the bad file")
	}
}
