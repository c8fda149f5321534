package truth

import (
	"os"
	"testing"
	"time"

	"workmesh/internal/diag"
	"workmesh/internal/fsio"
	"workmesh/internal/paths"
	"workmesh/internal/task"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
)

func testLedger(t *testing.T) (*Ledger, *util.FixedClock) {
	t.Helper()
	layout, err := paths.ResolveOrInit(t.TempDir())
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if err := os.MkdirAll(layout.TruthDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	clock := &util.FixedClock{T: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
	return &Ledger{Layout: layout, Clock: clock, Actor: "tester", Sink: &diag.Buffer{}}, clock
}

func TestSupersedeLifecycle(t *testing.T) {
	l, clock := testLedger(t)

	first, err := l.Propose(ProposeOptions{Title: "Use REST", Statement: "All APIs are REST."})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := l.Accept(first.ID, ""); err != nil {
		t.Fatalf("accept first: %v", err)
	}

	clock.Advance(time.Minute)
	second, err := l.Propose(ProposeOptions{
		Title:      "Use gRPC",
		Statement:  "Internal APIs are gRPC.",
		Supersedes: first.ID,
	})
	if err != nil {
		t.Fatalf("propose successor: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := l.Accept(second.ID, "benchmarked"); err != nil {
		t.Fatalf("accept successor: %v", err)
	}

	oldRecord, err := l.Show(first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if oldRecord.State != StateSuperseded || oldRecord.SupersededBy != second.ID {
		t.Fatalf("predecessor = %+v", oldRecord)
	}
	newRecord, _ := l.Show(second.ID)
	if newRecord.State != StateAccepted || newRecord.Supersedes != first.ID {
		t.Fatalf("successor = %+v", newRecord)
	}

	// The projection carries both with their exact states.
	projected, err := l.ReadProjection()
	if err != nil {
		t.Fatal(err)
	}
	states := make(map[string]string, len(projected))
	for _, r := range projected {
		states[r.ID] = r.State
	}
	if states[first.ID] != StateSuperseded || states[second.ID] != StateAccepted {
		t.Fatalf("projection states = %v", states)
	}

	// A superseded truth can never be accepted again.
	if _, err := l.Accept(first.ID, ""); !wmerr.IsKind(err, wmerr.InvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
}

func TestExplicitSupersedeRequiresAcceptedPair(t *testing.T) {
	l, clock := testLedger(t)
	old, _ := l.Propose(ProposeOptions{Title: "Old"})
	clock.Advance(time.Minute)
	successor, _ := l.Propose(ProposeOptions{Title: "New"})
	clock.Advance(time.Minute)

	if _, err := l.Supersede(old.ID, successor.ID, "replaced"); !wmerr.IsKind(err, wmerr.InvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
	if _, err := l.Accept(old.ID, ""); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if _, err := l.Supersede(old.ID, successor.ID, "replaced"); !wmerr.IsKind(err, wmerr.InvalidTransition) {
		t.Fatalf("successor not accepted: err = %v, want InvalidTransition", err)
	}
	if _, err := l.Accept(successor.ID, ""); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	r, err := l.Supersede(old.ID, successor.ID, "replaced")
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if r.State != StateSuperseded || r.SupersededBy != successor.ID {
		t.Fatalf("record = %+v", r)
	}
	if _, err := l.Supersede("truth-missing", successor.ID, ""); !wmerr.IsKind(err, wmerr.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestRejectOnlyFromProposed(t *testing.T) {
	l, clock := testLedger(t)
	r, err := l.Propose(ProposeOptions{Title: "Tentative"})
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if _, err := l.Reject(r.ID, "not needed"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := l.Reject(r.ID, "again"); !wmerr.IsKind(err, wmerr.InvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
	if _, err := l.Accept(r.ID, ""); !wmerr.IsKind(err, wmerr.InvalidTransition) {
		t.Fatalf("err = %v, want InvalidTransition", err)
	}
}

func TestProposeRejectsDanglingSupersedes(t *testing.T) {
	l, _ := testLedger(t)
	_, err := l.Propose(ProposeOptions{Title: "Orphan", Supersedes: "truth-missing"})
	if !wmerr.IsKind(err, wmerr.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestListFilters(t *testing.T) {
	l, clock := testLedger(t)
	a, _ := l.Propose(ProposeOptions{
		Title: "Scoped",
		Tags:  []string{"api"},
		Scope: Scope{ProjectID: "payments"},
	})
	clock.Advance(time.Minute)
	if _, err := l.Propose(ProposeOptions{Title: "Other", Scope: Scope{ProjectID: "billing"}}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if _, err := l.Accept(a.ID, ""); err != nil {
		t.Fatal(err)
	}

	got, err := l.List(Query{State: StateAccepted})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("state filter = %+v", got)
	}
	got, _ = l.List(Query{Tag: "api"})
	if len(got) != 1 {
		t.Fatalf("tag filter = %d records", len(got))
	}
	got, _ = l.List(Query{Scope: Scope{ProjectID: "billing"}})
	if len(got) != 1 || got[0].Title != "Other" {
		t.Fatalf("scope filter = %+v", got)
	}
}

func TestVerifyDetectsDrift(t *testing.T) {
	l, clock := testLedger(t)
	r, err := l.Propose(ProposeOptions{Title: "Tracked"})
	if err != nil {
		t.Fatal(err)
	}
	drift, err := l.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if len(drift) != 0 {
		t.Fatalf("fresh ledger drifted: %v", drift)
	}

	// Append an event without refreshing the projection.
	clock.Advance(time.Minute)
	e := l.newEvent(EventAccepted, r.ID)
	if err := appendRaw(l, e); err != nil {
		t.Fatal(err)
	}
	drift, err = l.Verify()
	if err != nil {
		t.Fatal(err)
	}
	if len(drift) == 0 {
		t.Fatal("stale projection not reported")
	}

	if err := l.Rebuild(); err != nil {
		t.Fatal(err)
	}
	drift, _ = l.Verify()
	if len(drift) != 0 {
		t.Fatalf("drift after rebuild: %v", drift)
	}
}

// appendRaw bypasses the projection refresh that Ledger.append runs.
func appendRaw(l *Ledger, e Event) error {
	return fsio.AppendJSONLine(l.Layout.TruthEventsPath(), e)
}

func TestLegacyBackfillIsIdempotent(t *testing.T) {
	l, clock := testLedger(t)
	tasks := []*task.Task{
		{
			ID:      "task-001",
			Project: "payments",
			Body:    "Notes:\n- Decision: retries use exponential backoff\n- plain note\n",
		},
	}
	candidates := AuditLegacy(tasks)
	if len(candidates) != 1 || candidates[0].Statement != "retries use exponential backoff" {
		t.Fatalf("candidates = %+v", candidates)
	}

	created, err := l.Backfill(candidates)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %v", created)
	}
	r, err := l.Show(created[0])
	if err != nil {
		t.Fatal(err)
	}
	if r.State != StateProposed {
		t.Fatalf("backfilled truth auto-advanced: %s", r.State)
	}
	if !r.HasTag("legacy:" + candidates[0].Fingerprint) {
		t.Fatalf("fingerprint tag missing: %v", r.Tags)
	}

	clock.Advance(time.Minute)
	again, err := l.Backfill(candidates)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("second backfill created %v", again)
	}
}
