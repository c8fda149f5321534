package migrate

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"workmesh/internal/paths"
	"workmesh/internal/task"
	"workmesh/internal/wmerr"
)

func seedRekeyRepo(t *testing.T) paths.Layout {
	t.Helper()
	layout, err := paths.ResolveOrInit(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(layout.TasksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(layout.TasksDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("task-001 - alpha - u1.md",
		"---\nuid: U1\nid: task-001\ntitle: Alpha\nstatus: To Do\n---\nbody\n")
	write("task-002 - beta - u2.md",
		"---\nuid: U2\nid: task-002\ntitle: Beta\nstatus: To Do\n---\nbody\n")
	write("task-003 - gamma - u3.md",
		"---\nuid: U3\nid: task-003\ntitle: Gamma\nstatus: To Do\ndependencies: [task-001]\nrelationships:\n  blocked_by: [task-002]\n---\nThis work depends on task-001 and waits for task-002.\n")
	return layout
}

func rekeyMapping() *RekeyRequest {
	return &RekeyRequest{Mapping: map[string]string{
		"task-001": "task-logi-001",
		"task-002": "task-logi-002",
	}}
}

func TestParseRekeyRequest(t *testing.T) {
	req, err := ParseRekeyRequest(`{"mapping": {"task-001": "task-logi-001"}, "strict": true}`)
	if err != nil {
		t.Fatal(err)
	}
	if !req.Strict || req.Mapping["task-001"] != "task-logi-001" {
		t.Fatalf("req = %+v", req)
	}

	// A bare mapping object defaults to non-strict.
	req, err = ParseRekeyRequest(`{"task-001": "task-logi-001"}`)
	if err != nil {
		t.Fatal(err)
	}
	if req.Strict || req.Mapping["task-001"] != "task-logi-001" {
		t.Fatalf("req = %+v", req)
	}

	if _, err := ParseRekeyRequest("  "); !wmerr.IsKind(err, wmerr.ParseError) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}

func TestRekeyPromptCarriesTasksAndGraph(t *testing.T) {
	m := testMigrator(t)
	layout := seedRekeyRepo(t)

	prompt := m.RenderRekeyPrompt(layout, RekeyPromptOptions{})
	for _, want := range []string{`"mapping"`, `"graph"`, `"tasks"`, "task-003", "depends_on", "blocked_by"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "This work depends on") {
		t.Fatal("body included without IncludeBody")
	}

	prompt = m.RenderRekeyPrompt(layout, RekeyPromptOptions{IncludeBody: true})
	if !strings.Contains(prompt, "This work depends on") {
		t.Fatal("body missing with IncludeBody")
	}
}

func TestRekeyPlanOnly(t *testing.T) {
	m := testMigrator(t)
	layout := seedRekeyRepo(t)

	report, err := m.RekeyApply(layout, rekeyMapping(), RekeyApplyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Changes) != 2 || report.Apply {
		t.Fatalf("report = %+v", report)
	}
	if _, err := os.Stat(filepath.Join(layout.TasksDir, "task-001 - alpha - u1.md")); err != nil {
		t.Fatal("plan-only run touched files")
	}
}

func TestRekeyNonStrictRewritesBodies(t *testing.T) {
	m := testMigrator(t)
	layout := seedRekeyRepo(t)

	report, err := m.RekeyApply(layout, rekeyMapping(), RekeyApplyOptions{Apply: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(report.Changes) != 2 {
		t.Fatalf("changes = %+v", report.Changes)
	}

	if _, err := os.Stat(filepath.Join(layout.TasksDir, "task-logi-001 - alpha - u1.md")); err != nil {
		t.Fatalf("renamed file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(layout.TasksDir, "task-001 - alpha - u1.md")); !os.IsNotExist(err) {
		t.Fatal("old path still present after rename")
	}
	gamma, err := task.ParseFile(filepath.Join(layout.TasksDir, "task-003 - gamma - u3.md"))
	if err != nil {
		t.Fatal(err)
	}
	if gamma.Dependencies[0] != "task-logi-001" || gamma.Relationships.BlockedBy[0] != "task-logi-002" {
		t.Fatalf("structured refs = %+v", gamma)
	}
	if !strings.Contains(gamma.Body, "depends on task-logi-001") ||
		strings.Contains(gamma.Body, "task-001") {
		t.Fatalf("body = %q", gamma.Body)
	}

	// Re-running the same mapping is a no-op.
	again, err := m.RekeyApply(layout, rekeyMapping(), RekeyApplyOptions{Apply: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Changes) != 0 {
		t.Fatalf("second run changed %+v", again.Changes)
	}
}

func TestRekeyStrictLeavesBodiesAlone(t *testing.T) {
	m := testMigrator(t)
	layout := seedRekeyRepo(t)

	if _, err := m.RekeyApply(layout, rekeyMapping(), RekeyApplyOptions{Apply: true, Strict: true}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	gamma, err := task.ParseFile(filepath.Join(layout.TasksDir, "task-003 - gamma - u3.md"))
	if err != nil {
		t.Fatal(err)
	}
	if gamma.Dependencies[0] != "task-logi-001" {
		t.Fatalf("structured refs = %+v", gamma.Dependencies)
	}
	if !strings.Contains(gamma.Body, "depends on task-001") {
		t.Fatalf("strict mode rewrote the body: %q", gamma.Body)
	}
}

func TestRekeyStrictRejectsMissingIDs(t *testing.T) {
	m := testMigrator(t)
	layout := seedRekeyRepo(t)
	req := &RekeyRequest{Mapping: map[string]string{"task-900": "task-logi-900"}}

	if _, err := m.RekeyApply(layout, req, RekeyApplyOptions{Apply: true, Strict: true}); !wmerr.IsKind(err, wmerr.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}

	// Non-strict mode keeps going and rewrites body mentions anyway.
	report, err := m.RekeyApply(layout, &RekeyRequest{Mapping: map[string]string{
		"task-900": "task-logi-900",
		"task-001": "task-logi-001",
	}}, RekeyApplyOptions{Apply: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Warnings) == 0 {
		t.Fatalf("missing-id warning absent: %+v", report)
	}
}

func TestRekeyCollisionLeavesFileUntouched(t *testing.T) {
	m := testMigrator(t)
	layout := seedRekeyRepo(t)
	src := filepath.Join(layout.TasksDir, "task-001 - alpha - u1.md")
	before, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	// Occupy the rename target.
	taken := filepath.Join(layout.TasksDir, "task-logi-001 - alpha - u1.md")
	if err := os.WriteFile(taken, []byte("occupied"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := m.RekeyApply(layout, &RekeyRequest{Mapping: map[string]string{
		"task-001": "task-logi-001",
	}}, RekeyApplyOptions{Apply: true, Strict: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Warnings) == 0 {
		t.Fatalf("collision not reported: %+v", report)
	}
	after, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("source file gone: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("refused rekey still rewrote the file")
	}
}

func TestRekeyRejectsDuplicateNewIDs(t *testing.T) {
	m := testMigrator(t)
	layout := seedRekeyRepo(t)
	req := &RekeyRequest{Mapping: map[string]string{
		"task-001": "task-logi-001",
		"task-002": "TASK-LOGI-001",
	}}
	if _, err := m.RekeyApply(layout, req, RekeyApplyOptions{Apply: true}); !wmerr.IsKind(err, wmerr.DuplicateID) {
		t.Fatalf("err = %v, want DuplicateID", err)
	}
}

func TestRekeyBoundaryMatching(t *testing.T) {
	body, changed := rewriteBody("see task-001, not task-0011 or xtask-001",
		map[string]string{"task-001": "task-logi-001"})
	if changed != 1 {
		t.Fatalf("changed = %d", changed)
	}
	if body != "see task-logi-001, not task-0011 or xtask-001" {
		t.Fatalf("body = %q", body)
	}
}
