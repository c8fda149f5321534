package ready

import (
	"testing"
	"time"

	"workmesh/internal/task"
	"workmesh/internal/util"
	"workmesh/internal/workctx"
)

var now = time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

func mk(id, status, priority string, deps ...string) *task.Task {
	return &task.Task{ID: id, Title: id, Status: status, Priority: priority, Dependencies: deps}
}

func TestNextTasksOrdering(t *testing.T) {
	// A (P1, deps=[B]), B (P2, Done), C (P0, In Progress), D (P1,
	// leased by alice). bob asks: expect [C, A].
	a := mk("task-a", "To Do", "P1", "task-b")
	b := mk("task-b", "Done", "P2")
	c := mk("task-c", "In Progress", "P0")
	d := mk("task-d", "To Do", "P1")
	d.Lease = &task.Lease{
		Owner:     "alice",
		ExpiresAt: util.FormatRFC3339(now.Add(30 * time.Minute)),
	}
	tasks := []*task.Task{a, b, c, d}

	got := NextTasks(tasks, &workctx.State{}, "bob", now, 10)
	if len(got) != 2 || got[0].ID != "task-c" || got[1].ID != "task-a" {
		ids := make([]string, len(got))
		for i, x := range got {
			ids[i] = x.ID
		}
		t.Fatalf("ready order = %v, want [task-c task-a]", ids)
	}

	// alice sees her own leased task as available and active.
	got = NextTasks(tasks, &workctx.State{}, "alice", now, 10)
	if len(got) != 3 || got[0].ID != "task-c" || got[1].ID != "task-d" {
		ids := make([]string, len(got))
		for i, x := range got {
			ids[i] = x.ID
		}
		t.Fatalf("alice order = %v, want [task-c task-d task-a]", ids)
	}
}

func TestWorkingSetOrdersFirst(t *testing.T) {
	a := mk("task-a", "To Do", "P0")
	b := mk("task-b", "To Do", "P3")
	c := mk("task-c", "To Do", "P2")
	ctx := &workctx.State{WorkingSet: []string{"task-b", "task-c"}}

	got := NextTasks([]*task.Task{a, b, c}, ctx, "bob", now, 0)
	if got[0].ID != "task-b" || got[1].ID != "task-c" || got[2].ID != "task-a" {
		t.Fatalf("order = %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestDanglingReferenceBlocks(t *testing.T) {
	a := mk("task-a", "To Do", "P1", "task-ghost")
	got := NextTasks([]*task.Task{a}, &workctx.State{}, "bob", now, 0)
	if len(got) != 0 {
		t.Fatalf("dangling dep should block, got %d ready", len(got))
	}
}

func TestNextReturnsNilWhenNothingReady(t *testing.T) {
	done := mk("task-a", "Done", "P1")
	if got := Next([]*task.Task{done}, &workctx.State{}, "bob", now); got != nil {
		t.Fatalf("next = %v, want nil", got.ID)
	}
}

func TestBlockersSortByImpact(t *testing.T) {
	blocker := mk("task-blocker", "To Do", "P2")
	x := mk("task-x", "To Do", "P1", "task-blocker")
	y := mk("task-y", "To Do", "P1", "task-blocker")
	z := mk("task-z", "To Do", "P1", "task-ghost")

	got := Blockers([]*task.Task{blocker, x, y, z}, "")
	if len(got) != 2 {
		t.Fatalf("blockers = %d, want 2", len(got))
	}
	if got[0].ID != "task-blocker" || len(got[0].Blocked) != 2 {
		t.Fatalf("top blocker = %+v", got[0])
	}
	if !got[1].Dangling || got[1].ID != "task-ghost" {
		t.Fatalf("dangling blocker = %+v", got[1])
	}
}

func TestBlockersEpicScope(t *testing.T) {
	epic := &task.Task{ID: "task-epic", Kind: "epic", Status: "To Do"}
	inside := mk("task-in", "To Do", "P1", "task-dep")
	inside.Relationships.Parent = []string{"task-epic"}
	dep := mk("task-dep", "To Do", "P1")
	outside := mk("task-out", "To Do", "P1", "task-dep")

	got := Blockers([]*task.Task{epic, inside, dep, outside}, "task-epic")
	if len(got) != 1 || got[0].ID != "task-dep" || len(got[0].Blocked) != 1 {
		t.Fatalf("scoped blockers = %+v", got)
	}
	if got[0].Blocked[0] != "task-in" {
		t.Fatalf("blocked = %v", got[0].Blocked)
	}
}

func TestEpicDone(t *testing.T) {
	epic := &task.Task{ID: "task-epic", Kind: "epic", Status: "In Progress"}
	x := mk("task-x", "In Progress", "P1")
	x.Relationships.Parent = []string{"task-epic"}
	y := mk("task-y", "Done", "P1")
	y.Relationships.Parent = []string{"task-epic"}
	tasks := []*task.Task{epic, x, y}

	if EpicDone(epic, tasks) {
		t.Fatal("epic should not be completable while a child is open")
	}
	x.Status = "Done"
	if !EpicDone(epic, tasks) {
		t.Fatal("epic should be completable once children are Done")
	}

	epic.Dependencies = []string{"task-ghost"}
	if EpicDone(epic, tasks) {
		t.Fatal("dangling dependency should fail the predicate")
	}
}

func TestBoardStatusLanes(t *testing.T) {
	tasks := []*task.Task{
		mk("task-b", "To Do", "P1"),
		mk("task-a", "to do", "P2"),
		mk("task-c", "In Progress", "P0"),
		mk("task-d", "Review", "P1"),
	}
	lanes := Board(tasks, "status", nil, false)
	if len(lanes) != 3 {
		t.Fatalf("lanes = %d, want 3", len(lanes))
	}
	if lanes[0].Name != "To Do" || len(lanes[0].Tasks) != 2 || lanes[0].Tasks[0].ID != "task-a" {
		t.Fatalf("first lane = %+v", lanes[0])
	}
	if lanes[1].Name != "In Progress" || lanes[2].Name != "Review" {
		t.Fatalf("lane order = %s, %s", lanes[1].Name, lanes[2].Name)
	}
}

func TestBoardFocus(t *testing.T) {
	epic := &task.Task{ID: "task-epic", Kind: "epic", Status: "In Progress"}
	child := mk("task-child", "To Do", "P1")
	child.Relationships.Parent = []string{"task-epic"}
	stray := mk("task-stray", "To Do", "P1")
	ctx := &workctx.State{EpicID: "task-epic"}

	lanes := Board([]*task.Task{epic, child, stray}, "status", ctx, true)
	total := 0
	for _, lane := range lanes {
		total += len(lane.Tasks)
		for _, x := range lane.Tasks {
			if x.ID == "task-stray" {
				t.Fatal("focus should exclude tasks outside the subtree")
			}
		}
	}
	if total != 2 {
		t.Fatalf("focused tasks = %d, want 2", total)
	}
}
