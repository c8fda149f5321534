package store

import (
	"os"
	"strings"
	"testing"
	"time"

	"workmesh/internal/audit"
	"workmesh/internal/diag"
	"workmesh/internal/gitio"
	"workmesh/internal/paths"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
	"workmesh/internal/workctx"
)

func testStore(t *testing.T) (*Store, *util.FixedClock) {
	t.Helper()
	layout, err := paths.ResolveOrInit(t.TempDir())
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	clock := &util.FixedClock{T: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
	s := &Store{
		Layout: layout,
		Clock:  clock,
		Git:    &gitio.Fake{Branch: "feature/payments", Repo: true},
		Sink:   &diag.Buffer{},
		Actor:  "tester",
	}
	if err := s.EnsureLayout(); err != nil {
		t.Fatalf("ensure layout: %v", err)
	}
	return s, clock
}

func TestAddAllocatesIdentity(t *testing.T) {
	s, _ := testStore(t)
	first, err := s.Add(AddOptions{Title: "First task"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.ID != "task-paym-001" {
		t.Errorf("id = %q", first.ID)
	}
	if len(first.UID) != 26 {
		t.Errorf("uid = %q", first.UID)
	}
	second, err := s.Add(AddOptions{Title: "Second task"})
	if err != nil {
		t.Fatalf("add second: %v", err)
	}
	if second.ID != "task-paym-002" {
		t.Errorf("second id = %q", second.ID)
	}
	if _, err := os.Stat(first.Path); err != nil {
		t.Errorf("task file missing: %v", err)
	}

	events, err := audit.Read(s.Layout.AuditPath())
	if err != nil {
		t.Fatalf("audit read: %v", err)
	}
	if len(events) != 2 || events[0].Action != "add" {
		t.Errorf("audit events = %+v", events)
	}
}

func TestAddRejectsExplicitDuplicate(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.Add(AddOptions{ID: "task-001", Title: "One"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err := s.Add(AddOptions{ID: "task-001", Title: "Clone"})
	if !wmerr.IsKind(err, wmerr.DuplicateID) {
		t.Fatalf("err = %v, want DuplicateID", err)
	}
}

func TestSetStatusMaintainsContext(t *testing.T) {
	s, _ := testStore(t)
	created, err := s.Add(AddOptions{Title: "Work item"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := s.SetStatus(created.ID, "In Progress", true); err != nil {
		t.Fatalf("set status: %v", err)
	}
	state, err := workctx.Load(s.Layout)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if !state.InWorkingSet(created.ID) {
		t.Fatalf("working set = %v", state.WorkingSet)
	}

	if _, err := s.SetStatus(created.ID, "Done", true); err != nil {
		t.Fatalf("set done: %v", err)
	}
	state, _ = workctx.Load(s.Layout)
	if state.InWorkingSet(created.ID) {
		t.Fatalf("done task kept in working set: %v", state.WorkingSet)
	}
}

func TestEpicGating(t *testing.T) {
	s, _ := testStore(t)
	epic, err := s.Add(AddOptions{ID: "task-epic", Title: "Epic", Kind: "epic"})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"task-x", "task-y", "task-z"} {
		if _, err := s.Add(AddOptions{ID: id, Title: id}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.SetField(id, "status", "In Progress"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.RelAdd(id, "parent", "task-epic"); err != nil {
			t.Fatal(err)
		}
	}

	ctxState := &workctx.State{EpicID: "task-epic", ProjectID: "payments"}
	if err := workctx.Save(s.Layout, ctxState, s.Clock); err != nil {
		t.Fatal(err)
	}

	if _, err := s.SetStatus(epic.ID, "Done", true); !wmerr.IsKind(err, wmerr.InvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
	for _, id := range []string{"task-x", "task-y", "task-z"} {
		if _, err := s.SetStatus(id, "Done", true); err != nil {
			t.Fatalf("set %s done: %v", id, err)
		}
	}
	if _, err := s.SetStatus(epic.ID, "Done", true); err != nil {
		t.Fatalf("epic done after children: %v", err)
	}

	state, err := workctx.Load(s.Layout)
	if err != nil {
		t.Fatal(err)
	}
	if state.EpicID != "" || len(state.WorkingSet) != 0 {
		t.Fatalf("epic context not auto-cleared: %+v", state)
	}
	if state.ProjectID != "payments" {
		t.Fatalf("project dropped on auto-clear: %+v", state)
	}
}

func TestLeaseExpiryScenario(t *testing.T) {
	s, clock := testStore(t)
	created, err := s.Add(AddOptions{Title: "Contended"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Claim(created.ID, "alice", 1, false); err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	// While alice's lease is active, bob is refused.
	clock.Advance(30 * time.Second)
	if _, err := s.Claim(created.ID, "bob", 10, false); !wmerr.IsKind(err, wmerr.Leased) {
		t.Fatalf("err = %v, want Leased", err)
	}
	// At t=90s the one-minute lease has expired; bob takes over.
	clock.Advance(60 * time.Second)
	if _, err := s.Claim(created.ID, "bob", 10, false); err != nil {
		t.Fatalf("bob claim after expiry: %v", err)
	}
	clock.Advance(10 * time.Second)
	if _, err := s.Release(created.ID, "alice", false); !wmerr.IsKind(err, wmerr.NotOwner) {
		t.Fatalf("alice release err = %v, want NotOwner", err)
	}
	released, err := s.Release(created.ID, "bob", false)
	if err != nil {
		t.Fatalf("bob release: %v", err)
	}
	if released.Lease != nil {
		t.Fatalf("lease survived release: %+v", released.Lease)
	}
}

func TestStatusChangeClearsLeaseOnTerminal(t *testing.T) {
	s, _ := testStore(t)
	created, err := s.Add(AddOptions{Title: "Leased work"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(created.ID, "alice", 30, true); err != nil {
		t.Fatal(err)
	}
	done, err := s.SetStatus(created.ID, "Done", true)
	if err != nil {
		t.Fatal(err)
	}
	if done.Lease != nil {
		t.Fatalf("lease survived In Progress -> Done: %+v", done.Lease)
	}
}

func TestDepAddRejectsCycle(t *testing.T) {
	s, _ := testStore(t)
	for _, id := range []string{"task-a", "task-b", "task-c"} {
		if _, err := s.Add(AddOptions{ID: id, Title: id}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.DepAdd("task-a", "task-b"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DepAdd("task-b", "task-c"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DepAdd("task-c", "task-a"); !wmerr.IsKind(err, wmerr.CycleDetected) {
		t.Fatalf("err = %v, want CycleDetected", err)
	}
	if _, err := s.DepAdd("task-a", "task-a"); !wmerr.IsKind(err, wmerr.CycleDetected) {
		t.Fatalf("self dep err = %v, want CycleDetected", err)
	}
}

func TestSetFieldDispatchesSections(t *testing.T) {
	s, _ := testStore(t)
	created, err := s.Add(AddOptions{Title: "Sectioned"})
	if err != nil {
		t.Fatal(err)
	}
	updated, err := s.SetField(created.ID, "description", "- Rewritten description.")
	if err != nil {
		t.Fatalf("set description: %v", err)
	}
	if !strings.Contains(updated.Body, "- Rewritten description.") {
		t.Fatalf("body = %q", updated.Body)
	}
	if _, err := s.SetField(created.ID, "nonsense", "x"); err == nil {
		t.Fatal("unknown field should fail")
	}
}

func TestArchiveBeforeToday(t *testing.T) {
	s, _ := testStore(t)
	done, err := s.Add(AddOptions{ID: "task-done", Title: "Old done"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus(done.ID, "Done", true); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(AddOptions{ID: "task-open", Title: "Still open"}); err != nil {
		t.Fatal(err)
	}

	result, err := s.Archive(ArchiveOptions{Before: s.Clock.Now()})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(result.Archived) != 1 || result.Archived[0] != "task-done" {
		t.Fatalf("archived = %v", result.Archived)
	}
	if _, err := s.Get("task-done"); !wmerr.IsKind(err, wmerr.NotFound) {
		t.Fatalf("archived task still live: %v", err)
	}
	monthDir := "2026-01"
	entries, err := os.ReadDir(s.Layout.ArchiveDir() + "/" + monthDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("archive dir %s: %v, %d entries", monthDir, err, len(entries))
	}
}

func TestBulkStopsAtFirstFailure(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.Add(AddOptions{ID: "task-a", Title: "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(AddOptions{ID: "task-c", Title: "C"}); err != nil {
		t.Fatal(err)
	}

	outcomes := s.BulkSetStatus([]string{"task-a", "task-missing", "task-c"}, "In Progress")
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2 (stop at failure)", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[1].Err == nil {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	got, err := s.Get("task-c")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "To Do" {
		t.Fatalf("task-c mutated after failure: %q", got.Status)
	}
}

func TestListFilter(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.Add(AddOptions{ID: "task-a", Title: "Auth work", Labels: []string{"backend"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(AddOptions{ID: "task-b", Title: "Frontend work"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus("task-b", "Done", true); err != nil {
		t.Fatal(err)
	}

	got := s.List(Filter{Status: []string{"to do"}})
	if len(got) != 1 || got[0].ID != "task-a" {
		t.Fatalf("status filter = %+v", got)
	}
	got = s.List(Filter{Labels: []string{"backend"}})
	if len(got) != 1 || got[0].ID != "task-a" {
		t.Fatalf("label filter = %+v", got)
	}
	got = s.List(Filter{Search: "frontend"})
	if len(got) != 1 || got[0].ID != "task-b" {
		t.Fatalf("search filter = %+v", got)
	}
}
