package sessions

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"workmesh/internal/diag"
	"workmesh/internal/gitio"
	"workmesh/internal/paths"
	"workmesh/internal/task"
	"workmesh/internal/truth"
	"workmesh/internal/workctx"
)

// SnapshotInput parameterizes BuildSnapshot. Cwd is required; the rest
// is optional and degrades to an emptier snapshot.
type SnapshotInput struct {
	Cwd       string
	Objective string
	Git       gitio.Git
	Worktree  *BindingRef
	Sink      diag.Sink
}

var branchTaskID = regexp.MustCompile(`task-(?:[a-z]+-)?\d+`)

// BuildSnapshot assembles a session from the repository around cwd:
// context pointer, active tasks, git position, and the accepted truths
// in scope. Everything is best-effort; a cwd outside any repository
// still yields a saveable session.
func (s *Store) BuildSnapshot(in SnapshotInput) Session {
	session := Session{
		Cwd:        in.Cwd,
		Objective:  in.Objective,
		WorkingSet: []string{},
		Worktree:   in.Worktree,
	}

	if in.Git != nil && in.Git.Available(in.Cwd) {
		session.Git = GitSnapshot{
			Branch:  in.Git.CurrentBranch(in.Cwd),
			HeadSHA: in.Git.HeadSHA(in.Cwd),
			Dirty:   in.Git.IsDirty(in.Cwd),
		}
	}

	root, ok := paths.FindRoot(in.Cwd)
	if !ok {
		return session
	}
	session.RepoRoot = root
	layout, err := paths.Resolve(root)
	if err != nil {
		return session
	}

	if ctx, err := workctx.Load(layout); err == nil {
		session.ProjectID = ctx.ProjectID
		session.EpicID = ctx.EpicID
		if session.Objective == "" {
			session.Objective = ctx.Objective
		}
		session.WorkingSet = append(session.WorkingSet, ctx.WorkingSet...)
	} else {
		diag.Warnf(in.Sink, "sessions", "context: %v", err)
	}

	// A branch named after a task pins the epic when the context does
	// not.
	if session.EpicID == "" {
		if id := branchTaskID.FindString(session.Git.Branch); id != "" {
			session.EpicID = id
		}
	}

	now := s.Clock.Now()
	for _, t := range task.LoadAll(layout.TasksDir, in.Sink) {
		if t.Status == "In Progress" || t.Lease.Active(now) {
			session.WorkingSet = appendUnique(session.WorkingSet, t.ID)
		}
	}

	session.CheckpointRef = latestCheckpoint(layout)
	session.TruthRefs = scopedTruthRefs(layout, session.ProjectID, session.EpicID, in.Sink)
	return session
}

func appendUnique(set []string, id string) []string {
	for _, have := range set {
		if strings.EqualFold(have, id) {
			return set
		}
	}
	return append(set, id)
}

// latestCheckpoint returns the newest file under <mesh>/checkpoints,
// or "".
func latestCheckpoint(layout paths.Layout) string {
	dir := filepath.Join(layout.MeshDir, "checkpoints")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return layout.RelPath(filepath.Join(dir, names[len(names)-1]))
}

// scopedTruthRefs collects accepted truth ids matching the session's
// project or epic.
func scopedTruthRefs(layout paths.Layout, projectID, epicID string, sink diag.Sink) []string {
	if projectID == "" && epicID == "" {
		return nil
	}
	ledger := &truth.Ledger{Layout: layout, Sink: sink}
	records, err := ledger.List(truth.Query{State: truth.StateAccepted})
	if err != nil {
		diag.Warnf(sink, "sessions", "truth refs: %v", err)
		return nil
	}
	var refs []string
	for _, r := range records {
		if projectID != "" && strings.EqualFold(r.Scope.ProjectID, projectID) {
			refs = append(refs, r.ID)
			continue
		}
		if epicID != "" && strings.EqualFold(r.Scope.EpicID, epicID) {
			refs = append(refs, r.ID)
		}
	}
	return refs
}

// Resume holds what a developer needs to pick a session back up.
type Resume struct {
	Session Session  `json:"session"`
	Script  []string `json:"script"`
}

// BuildResume returns the session plus the shell commands that restore
// its working state. With an empty id the current session is used.
func (s *Store) BuildResume(id string) (*Resume, error) {
	if id == "" {
		id = s.CurrentID()
	}
	session, err := s.Show(id)
	if err != nil {
		return nil, err
	}
	script := []string{fmt.Sprintf("cd %s", session.Cwd)}
	if session.RepoRoot != "" {
		script = append(script, "workmesh context show")
		truthCmd := "workmesh truth list --state accepted"
		if session.ProjectID != "" {
			truthCmd += " --project " + session.ProjectID
		} else if session.EpicID != "" {
			truthCmd += " --epic " + session.EpicID
		}
		script = append(script, truthCmd, "workmesh next")
	}
	return &Resume{Session: *session, Script: script}, nil
}

// AutoUpdater returns a hook that refreshes the current session after
// a task mutation. Failures are reported to the sink only; a mutation
// never fails on session upkeep.
func (s *Store) AutoUpdater(cwd string, git gitio.Git) func() {
	return func() {
		id := s.CurrentID()
		if id == "" {
			return
		}
		current, err := s.Show(id)
		if err != nil {
			diag.Warnf(s.Sink, "sessions", "auto-update: %v", err)
			return
		}
		snapshot := s.BuildSnapshot(SnapshotInput{
			Cwd:       cwd,
			Objective: current.Objective,
			Git:       git,
			Worktree:  current.Worktree,
			Sink:      s.Sink,
		})
		// Only the session rooted in this repository is refreshed.
		if snapshot.RepoRoot == "" || snapshot.RepoRoot != current.RepoRoot {
			return
		}
		snapshot.ID = current.ID
		snapshot.CreatedAt = current.CreatedAt
		if _, err := s.Save(snapshot); err != nil {
			diag.Warnf(s.Sink, "sessions", "auto-update save: %v", err)
		}
	}
}
