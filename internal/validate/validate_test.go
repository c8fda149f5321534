package validate

import (
	"os"
	"path/filepath"
	"testing"

	"workmesh/internal/diag"
	"workmesh/internal/index"
	"workmesh/internal/paths"
)

func seedLayout(t *testing.T) paths.Layout {
	t.Helper()
	layout, err := paths.ResolveOrInit(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(layout.TasksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return layout
}

func writeTask(t *testing.T, layout paths.Layout, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(layout.TasksDir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func findings(report *Report, check string) []Finding {
	var out []Finding
	for _, f := range report.Findings {
		if f.Check == check {
			out = append(out, f)
		}
	}
	return out
}

func TestCleanRepoHasNoFindings(t *testing.T) {
	layout := seedLayout(t)
	writeTask(t, layout, "task-001 - a - u1.md",
		"---\nuid: U1\nid: task-001\ntitle: A\nstatus: Done\n---\nbody\n")
	writeTask(t, layout, "task-002 - b - u2.md",
		"---\nuid: U2\nid: task-002\ntitle: B\nstatus: To Do\ndependencies: [task-001]\n---\nbody\n")

	report, err := Run(layout, &diag.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() || len(report.Findings) != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestDuplicateUIDIsError(t *testing.T) {
	layout := seedLayout(t)
	writeTask(t, layout, "task-001 - a - u1.md",
		"---\nuid: SAME\nid: task-001\ntitle: A\nstatus: To Do\n---\nbody\n")
	writeTask(t, layout, "task-002 - b - u1.md",
		"---\nuid: same\nid: task-002\ntitle: B\nstatus: To Do\n---\nbody\n")

	report, _ := Run(layout, &diag.Buffer{})
	if report.OK() {
		t.Fatal("duplicate uid not an error")
	}
	if got := findings(report, "duplicate_uid"); len(got) != 1 {
		t.Fatalf("findings = %+v", report.Findings)
	}
}

func TestDuplicateIDIsWarning(t *testing.T) {
	layout := seedLayout(t)
	writeTask(t, layout, "task-001 - a - u1.md",
		"---\nuid: U1\nid: task-001\ntitle: A\nstatus: To Do\n---\nbody\n")
	writeTask(t, layout, "task-001 - b - u2.md",
		"---\nuid: U2\nid: task-001\ntitle: B\nstatus: To Do\n---\nbody\n")

	report, _ := Run(layout, &diag.Buffer{})
	if !report.OK() {
		t.Fatalf("duplicate id escalated to error: %+v", report.Findings)
	}
	if got := findings(report, "duplicate_id"); len(got) != 1 {
		t.Fatalf("findings = %+v", report.Findings)
	}
}

func TestDanglingReferenceIsWarning(t *testing.T) {
	layout := seedLayout(t)
	writeTask(t, layout, "task-001 - a - u1.md",
		"---\nuid: U1\nid: task-001\ntitle: A\nstatus: To Do\ndependencies: [task-900]\n---\nbody\n")

	report, _ := Run(layout, &diag.Buffer{})
	got := findings(report, "dangling_reference")
	if len(got) != 1 || got[0].TaskID != "task-001" {
		t.Fatalf("findings = %+v", report.Findings)
	}
	if !report.OK() {
		t.Fatal("dangling reference should be a warning")
	}
}

func TestCycleIsError(t *testing.T) {
	layout := seedLayout(t)
	writeTask(t, layout, "task-001 - a - u1.md",
		"---\nuid: U1\nid: task-001\ntitle: A\nstatus: To Do\ndependencies: [task-002]\n---\nbody\n")
	writeTask(t, layout, "task-002 - b - u2.md",
		"---\nuid: U2\nid: task-002\ntitle: B\nstatus: To Do\ndependencies: [task-001]\n---\nbody\n")
	writeTask(t, layout, "task-003 - c - u3.md",
		"---\nuid: U3\nid: task-003\ntitle: C\nstatus: To Do\n---\nbody\n")

	report, _ := Run(layout, &diag.Buffer{})
	got := findings(report, "dependency_cycle")
	if len(got) != 2 {
		t.Fatalf("findings = %+v", report.Findings)
	}
	if report.OK() {
		t.Fatal("cycle not an error")
	}
}

func TestDoneEpicWithOpenChildIsError(t *testing.T) {
	layout := seedLayout(t)
	writeTask(t, layout, "task-epic - e - u1.md",
		"---\nuid: U1\nid: task-epic\ntitle: Epic\nkind: epic\nstatus: Done\n---\nbody\n")
	writeTask(t, layout, "task-002 - b - u2.md",
		"---\nuid: U2\nid: task-002\ntitle: B\nstatus: To Do\nrelationships:\n  parent: [task-epic]\n---\nbody\n")

	report, _ := Run(layout, &diag.Buffer{})
	got := findings(report, "epic_open_children")
	if len(got) != 1 || got[0].TaskID != "task-epic" {
		t.Fatalf("findings = %+v", report.Findings)
	}
}

func TestMissingPRDIsWarning(t *testing.T) {
	layout := seedLayout(t)
	writeTask(t, layout, "task-001 - a - u1.md",
		"---\nuid: U1\nid: task-001\ntitle: A\nstatus: To Do\nprd: docs/missing.md\n---\nbody\n")

	report, _ := Run(layout, &diag.Buffer{})
	if got := findings(report, "missing_prd"); len(got) != 1 {
		t.Fatalf("findings = %+v", report.Findings)
	}
}

func TestIndexDriftIsWarning(t *testing.T) {
	layout := seedLayout(t)
	sink := &diag.Buffer{}
	writeTask(t, layout, "task-001 - a - u1.md",
		"---\nuid: U1\nid: task-001\ntitle: A\nstatus: To Do\n---\nbody\n")
	if err := index.Rebuild(layout, sink); err != nil {
		t.Fatal(err)
	}
	writeTask(t, layout, "task-002 - b - u2.md",
		"---\nuid: U2\nid: task-002\ntitle: B\nstatus: To Do\n---\nbody\n")

	report, _ := Run(layout, sink)
	if got := findings(report, "task_index"); len(got) == 0 {
		t.Fatalf("index drift not reported: %+v", report.Findings)
	}
	if !report.OK() {
		t.Fatal("index drift should be a warning")
	}
}
