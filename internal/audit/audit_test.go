package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"workmesh/internal/diag"
	"workmesh/internal/util"
)

func testLog(t *testing.T) (*Log, *util.FixedClock) {
	t.Helper()
	clock := &util.FixedClock{T: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
	return &Log{
		Path:  filepath.Join(t.TempDir(), ".audit.log"),
		Clock: clock,
		Actor: "tester",
	}, clock
}

func TestAppendAndRead(t *testing.T) {
	log, clock := testLog(t)
	sink := &diag.Buffer{}

	log.Append(sink, "add", "task-001", "UID1", nil)
	clock.Advance(time.Minute)
	log.Append(sink, "set_status", "task-001", "UID1", FieldDiff("status", "To Do", "In Progress"))

	if entries := sink.Entries(); len(entries) != 0 {
		t.Fatalf("unexpected diagnostics: %v", entries)
	}
	events, err := Read(log.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Action != "add" || events[0].TS != "2026-01-05T10:00:00Z" {
		t.Errorf("first event = %+v", events[0])
	}
	diff := events[1].Diff["status"].(map[string]interface{})
	if diff["after"] != "In Progress" {
		t.Errorf("diff = %v", events[1].Diff)
	}
}

func TestAppendFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "file")
	if err := os.WriteFile(blocked, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	log := &Log{
		// Parent is a regular file, so the append must fail.
		Path:  filepath.Join(blocked, ".audit.log"),
		Clock: &util.FixedClock{T: time.Now()},
	}
	sink := &diag.Buffer{}
	log.Append(sink, "add", "task-001", "", nil)
	entries := sink.Entries()
	if len(entries) != 1 || entries[0].Component != "audit" {
		t.Fatalf("expected one audit warning, got %v", entries)
	}
}

func TestRecentSkipsCorruptLines(t *testing.T) {
	log, clock := testLog(t)
	log.Append(nil, "add", "task-001", "", nil)
	clock.Advance(time.Minute)
	log.Append(nil, "add", "task-002", "", nil)
	f, err := os.OpenFile(log.Path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	events, err := Recent(log.Path, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 || events[0].TaskID != "task-002" {
		t.Fatalf("recent = %+v", events)
	}
}
