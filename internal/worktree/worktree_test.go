package worktree

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"workmesh/internal/diag"
	"workmesh/internal/gitio"
	"workmesh/internal/paths"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
	"workmesh/internal/workctx"
)

func testRegistry(t *testing.T) (*Registry, *gitio.Fake) {
	t.Helper()
	layout, err := paths.ResolveOrInit(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(layout.MeshDir, 0o755); err != nil {
		t.Fatal(err)
	}
	git := &gitio.Fake{Repo: true, Branch: "main"}
	return &Registry{
		Layout: layout,
		Clock:  &util.FixedClock{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		Git:    git,
		Sink:   &diag.Buffer{},
	}, git
}

func TestCreateAndList(t *testing.T) {
	r, git := testRegistry(t)
	path := filepath.Join(t.TempDir(), "wt-pay")

	binding, err := r.Create(CreateOptions{
		Path:      path,
		Branch:    "feature/payments",
		ProjectID: "payments",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if binding.ID == "" || binding.Path != path || binding.Branch != "feature/payments" {
		t.Fatalf("binding = %+v", binding)
	}
	if git.Worktrees[path] != "feature/payments" {
		t.Fatalf("git not called: %v", git.Worktrees)
	}

	bindings, err := r.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(bindings) != 1 || bindings[0].ID != binding.ID {
		t.Fatalf("list = %+v", bindings)
	}

	// The same path cannot be registered twice.
	if _, err := r.Create(CreateOptions{Path: path, Branch: "other"}); !wmerr.IsKind(err, wmerr.DuplicateID) {
		t.Fatalf("err = %v, want DuplicateID", err)
	}
}

func TestCreateSeedsContext(t *testing.T) {
	r, _ := testRegistry(t)
	path := filepath.Join(t.TempDir(), "wt-epic")

	if _, err := r.Create(CreateOptions{
		Path:        path,
		Branch:      "epic/checkout",
		ProjectID:   "payments",
		EpicID:      "task-pay-010",
		SeedContext: true,
	}); err != nil {
		t.Fatal(err)
	}

	layout, err := paths.ResolveOrInit(path)
	if err != nil {
		t.Fatal(err)
	}
	state, err := workctx.Load(layout)
	if err != nil {
		t.Fatal(err)
	}
	if state.ProjectID != "payments" || state.EpicID != "task-pay-010" {
		t.Fatalf("seeded context = %+v", state)
	}
}

func TestCreateFailsWhenGitFails(t *testing.T) {
	r, git := testRegistry(t)
	git.FailAdd = true
	_, err := r.Create(CreateOptions{Path: filepath.Join(t.TempDir(), "wt"), Branch: "b"})
	if !wmerr.IsKind(err, wmerr.GitError) {
		t.Fatalf("err = %v, want GitError", err)
	}
	bindings, _ := r.List()
	if len(bindings) != 0 {
		t.Fatalf("binding registered despite git failure: %+v", bindings)
	}
}

func TestAttachDetach(t *testing.T) {
	r, _ := testRegistry(t)
	path := filepath.Join(t.TempDir(), "wt")
	binding, err := r.Create(CreateOptions{Path: path, Branch: "b"})
	if err != nil {
		t.Fatal(err)
	}

	attached, err := r.Attach(binding.ID, "SESSION1")
	if err != nil {
		t.Fatal(err)
	}
	if attached.SessionID != "SESSION1" {
		t.Fatalf("attached = %+v", attached)
	}
	found, err := r.Find(path)
	if err != nil {
		t.Fatal(err)
	}
	if found.SessionID != "SESSION1" {
		t.Fatalf("find = %+v", found)
	}

	if err := r.Detach(binding.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Find(binding.ID); !wmerr.IsKind(err, wmerr.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
	if err := r.Detach(binding.ID); !wmerr.IsKind(err, wmerr.NotFound) {
		t.Fatalf("double detach err = %v", err)
	}
}

func TestDoctor(t *testing.T) {
	r, git := testRegistry(t)
	missing := filepath.Join(t.TempDir(), "gone")
	present := t.TempDir()

	if _, err := r.Create(CreateOptions{Path: missing, Branch: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(CreateOptions{Path: present, Branch: "b"}); err != nil {
		t.Fatal(err)
	}

	// The registry says branch b, but git reports main.
	git.Branch = "main"
	problems, err := r.Doctor()
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 2 {
		t.Fatalf("problems = %+v", problems)
	}
	issues := map[string]string{}
	for _, p := range problems {
		issues[p.Path] = p.Issue
	}
	if issues[missing] != "worktree directory missing" {
		t.Fatalf("missing path issue = %q", issues[missing])
	}
	if issues[present] == "" {
		t.Fatalf("branch drift not reported: %+v", problems)
	}
}
