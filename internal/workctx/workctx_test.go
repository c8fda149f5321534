package workctx

import (
	"os"
	"testing"
	"time"

	"workmesh/internal/paths"
	"workmesh/internal/util"
)

func testLayout(t *testing.T) paths.Layout {
	t.Helper()
	layout, err := paths.ResolveOrInit(t.TempDir())
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if err := os.MkdirAll(layout.TasksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return layout
}

func TestSaveLoadClear(t *testing.T) {
	layout := testLayout(t)
	clock := &util.FixedClock{T: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}

	state := &State{
		ProjectID:  "payments",
		EpicID:     "task-paym-010",
		Objective:  "ship retry logic",
		WorkingSet: []string{"task-paym-001", "task-paym-002"},
	}
	if err := Save(layout, state, clock); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(layout)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.EpicID != "task-paym-010" || len(loaded.WorkingSet) != 2 {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.UpdatedAt != "2026-01-05T10:00:00Z" {
		t.Errorf("updated_at = %q", loaded.UpdatedAt)
	}

	if err := Clear(layout); err != nil {
		t.Fatalf("clear: %v", err)
	}
	empty, err := Load(layout)
	if err != nil {
		t.Fatalf("load after clear: %v", err)
	}
	if !empty.IsEmpty() {
		t.Fatalf("state after clear = %+v", empty)
	}
}

func TestLoadFallsBackToLegacyFocus(t *testing.T) {
	layout := testLayout(t)
	legacy := `{"project_id":"payments","working_set":["task-001"]}`
	if err := os.WriteFile(layout.LegacyFocusPath(), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	state, err := Load(layout)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.ProjectID != "payments" || len(state.WorkingSet) != 1 {
		t.Fatalf("legacy state = %+v", state)
	}
}

func TestWorkingSetMaintenance(t *testing.T) {
	state := &State{}
	if !state.AddToWorkingSet("task-001") || !state.AddToWorkingSet("task-002") {
		t.Fatal("adds should report change")
	}
	if state.AddToWorkingSet("TASK-001") {
		t.Error("duplicate add should be a no-op")
	}
	if state.WorkingSetIndex("task-002") != 1 {
		t.Errorf("index = %d", state.WorkingSetIndex("task-002"))
	}
	if !state.RemoveFromWorkingSet("task-001") {
		t.Error("remove should report change")
	}
	if state.RemoveFromWorkingSet("task-001") {
		t.Error("second remove should be a no-op")
	}
	if len(state.WorkingSet) != 1 || state.WorkingSet[0] != "task-002" {
		t.Errorf("working set = %v", state.WorkingSet)
	}
}
