// Package store is the task store: the only writer of task files. All
// mutations are file-level atomic, serialized by the per-root lock,
// recorded in the audit log, and followed by best-effort index and
// context maintenance.
package store

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"workmesh/internal/audit"
	"workmesh/internal/diag"
	"workmesh/internal/fsio"
	"workmesh/internal/gitio"
	"workmesh/internal/ids"
	"workmesh/internal/index"
	"workmesh/internal/paths"
	"workmesh/internal/ready"
	"workmesh/internal/task"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
	"workmesh/internal/workctx"
)

const lockTimeout = 5 * time.Second

// Store mutates one repository's task set.
type Store struct {
	Layout paths.Layout
	Clock  util.Clock
	Git    gitio.Git
	Sink   diag.Sink
	Actor  string

	// AfterMutate runs after each successful mutation, outside the
	// root lock. The CLI wires the auto-session updater here; failures
	// inside the hook must not propagate.
	AfterMutate func()
}

// New builds a store with the system clock and git.
func New(layout paths.Layout, actor string) *Store {
	return &Store{
		Layout: layout,
		Clock:  util.SystemClock{},
		Git:    gitio.System{},
		Sink:   diag.Stderr{},
		Actor:  actor,
	}
}

func (s *Store) auditLog() *audit.Log {
	return &audit.Log{Path: s.Layout.AuditPath(), Clock: s.Clock, Actor: s.Actor}
}

// Load parses every live task file.
func (s *Store) Load() []*task.Task {
	return task.LoadAll(s.Layout.TasksDir, s.Sink)
}

// Get finds a task by id or uid, case-insensitively.
func (s *Store) Get(ref string) (*task.Task, error) {
	return findTask(s.Load(), ref)
}

func findTask(tasks []*task.Task, ref string) (*task.Task, error) {
	needle := strings.ToLower(strings.TrimSpace(ref))
	for _, t := range tasks {
		if strings.ToLower(t.ID) == needle || strings.ToLower(t.UID) == needle {
			return t, nil
		}
	}
	return nil, wmerr.New(wmerr.NotFound, "task %s not found", ref).WithTask(ref)
}

func (s *Store) lock() (*fsio.Lock, error) {
	return fsio.Acquire(s.Layout.LockPath(), lockTimeout)
}

// saveTask renders and atomically writes a task, assigning a path
// under the tasks dir when the task is new.
func (s *Store) saveTask(t *task.Task) error {
	if t.Path == "" {
		t.Path = filepath.Join(s.Layout.TasksDir, t.Filename())
	}
	if err := fsio.WriteFileAtomic(t.Path, []byte(t.Render()), 0o644); err != nil {
		return wmerr.IO(err, "writing %s", t.Path).WithTask(t.ID)
	}
	return nil
}

// finish runs the best-effort followers of a mutation: index refresh
// and the auto-session hook.
func (s *Store) finish() {
	if err := index.Refresh(s.Layout, s.Sink); err != nil {
		diag.Warnf(s.Sink, "index", "refresh: %v", err)
	}
	if s.AfterMutate != nil {
		s.AfterMutate()
	}
}

// maintainContext applies the working-set rules for a status change or
// claim, and auto-clears the epic when its completion predicate begins
// to hold. Context failures never fail the primary operation.
func (s *Store) maintainContext(t *task.Task, tasks []*task.Task) {
	state, err := workctx.Load(s.Layout)
	if err != nil {
		diag.Warnf(s.Sink, "context", "load: %v", err)
		return
	}
	changed := false
	status := strings.TrimSpace(t.Status)
	switch {
	case strings.EqualFold(status, "In Progress"):
		changed = state.AddToWorkingSet(t.ID)
	case strings.EqualFold(status, "To Do") || t.IsTerminal():
		changed = state.RemoveFromWorkingSet(t.ID)
	}
	if t.Lease.Active(s.Clock.Now()) {
		if state.AddToWorkingSet(t.ID) {
			changed = true
		}
	}
	if state.EpicID != "" {
		if epic, err := findTask(tasks, state.EpicID); err == nil && ready.EpicDone(epic, tasks) {
			state.EpicID = ""
			state.WorkingSet = nil
			changed = true
		}
	}
	if !changed {
		return
	}
	if err := workctx.Save(s.Layout, state, s.Clock); err != nil {
		diag.Warnf(s.Sink, "context", "save: %v", err)
		return
	}
	s.auditLog().Append(s.Sink, "context_update", t.ID, t.UID, nil)
}

// AddOptions are the caller-supplied fields for a new task.
type AddOptions struct {
	// ID overrides allocation; collision is an error.
	ID           string
	Title        string
	Kind         string
	Status       string
	Priority     string
	Phase        string
	Dependencies []string
	Labels       []string
	Assignee     []string
	Project      string
	Initiative   string
	PRD          string
	Body         string
}

// Add allocates identity, writes the task file, and returns the task.
func (s *Store) Add(opts AddOptions) (*task.Task, error) {
	lock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	tasks := s.Load()
	existing := make([]string, 0, len(tasks))
	for _, t := range tasks {
		existing = append(existing, t.ID)
	}

	id := strings.TrimSpace(opts.ID)
	initiative := strings.TrimSpace(opts.Initiative)
	if id != "" {
		if err := ids.ValidateExplicitID(existing, id); err != nil {
			return nil, err
		}
	} else {
		if initiative == "" {
			branch := ids.BranchHint(s.Git.CurrentBranch(s.Layout.RepoRoot))
			initiative, err = ids.EnsureBranchInitiative(s.Layout.RepoRoot, branch)
			if err != nil {
				return nil, err
			}
		}
		id = ids.NextTaskID(existing, initiative)
	}

	status := opts.Status
	if status == "" {
		status = "To Do"
	}
	priority := opts.Priority
	if priority == "" {
		priority = "P2"
	}
	body := opts.Body
	if body == "" {
		body = task.DefaultBody()
	}
	now := util.FormatTaskDate(s.Clock.Now())
	t := &task.Task{
		UID:          ids.NewUID(s.Clock),
		ID:           id,
		Title:        opts.Title,
		Kind:         opts.Kind,
		Status:       status,
		Priority:     priority,
		Phase:        opts.Phase,
		Dependencies: opts.Dependencies,
		Labels:       opts.Labels,
		Assignee:     opts.Assignee,
		Project:      opts.Project,
		Initiative:   initiative,
		PRD:          opts.PRD,
		CreatedDate:  now,
		UpdatedDate:  now,
		Body:         body,
	}
	if err := s.saveTask(t); err != nil {
		return nil, err
	}
	s.auditLog().Append(s.Sink, "add", t.ID, t.UID, map[string]interface{}{
		"title":  t.Title,
		"status": t.Status,
	})
	s.finish()
	return t, nil
}

// update locks the store, applies fn to the named task, persists it,
// and runs the mutation followers. fn returns the audit action and
// diff; touch controls updated_date.
func (s *Store) update(ref string, touch bool, fn func(t *task.Task, tasks []*task.Task) (string, map[string]interface{}, error)) (*task.Task, error) {
	lock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	tasks := s.Load()
	t, err := findTask(tasks, ref)
	if err != nil {
		return nil, err
	}
	action, diff, err := fn(t, tasks)
	if err != nil {
		return nil, err
	}
	if touch {
		t.Touch(s.Clock)
	}
	if err := s.saveTask(t); err != nil {
		return nil, err
	}
	s.auditLog().Append(s.Sink, action, t.ID, t.UID, diff)
	s.maintainContext(t, tasks)
	s.finish()
	return t, nil
}

// SetStatus changes a task's status. Epics may only move to Done when
// the completion predicate holds. Setting Done always touches
// updated_date regardless of touch.
func (s *Store) SetStatus(ref, status string, touch bool) (*task.Task, error) {
	done := strings.EqualFold(strings.TrimSpace(status), "Done")
	return s.update(ref, touch || done, func(t *task.Task, tasks []*task.Task) (string, map[string]interface{}, error) {
		if t.IsEpic() && done && !ready.EpicDone(t, tasks) {
			return "", nil, wmerr.New(wmerr.InvalidTransition,
				"epic %s has open children or blockers", t.ID).WithTask(t.ID)
		}
		before := t.Status
		t.Status = status
		if wasInProgress(before) && t.IsTerminal() {
			t.Lease = nil
		}
		return "set_status", audit.FieldDiff("status", before, status), nil
	})
}

func wasInProgress(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "In Progress")
}

// SetField sets a scalar front-matter field or, for section-style
// fields, rewrites the body section.
func (s *Store) SetField(ref, field, value string) (*task.Task, error) {
	if section := task.SectionNameForField(field); section != "" {
		return s.SetSection(ref, section, value)
	}
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		before, err := setScalarField(t, field, value)
		if err != nil {
			return "", nil, err
		}
		return "set_field", audit.FieldDiff(field, before, value), nil
	})
}

func setScalarField(t *task.Task, field, value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "title":
		before := t.Title
		t.Title = value
		return before, nil
	case "kind":
		before := t.Kind
		t.Kind = value
		return before, nil
	case "status":
		before := t.Status
		t.Status = value
		return before, nil
	case "priority":
		before := t.Priority
		t.Priority = value
		return before, nil
	case "phase":
		before := t.Phase
		t.Phase = value
		return before, nil
	case "project":
		before := t.Project
		t.Project = value
		return before, nil
	case "initiative":
		before := t.Initiative
		t.Initiative = value
		return before, nil
	case "prd":
		before := t.PRD
		t.PRD = value
		return before, nil
	case "assignee":
		before := strings.Join(t.Assignee, ", ")
		t.Assignee = splitList(value)
		return before, nil
	case "labels":
		before := strings.Join(t.Labels, ", ")
		t.Labels = splitList(value)
		return before, nil
	}
	return "", wmerr.New(wmerr.ParseError, "unknown field %q", field)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LabelAdd appends a label unless already present.
func (s *Store) LabelAdd(ref, label string) (*task.Task, error) {
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		if t.HasLabel(label) {
			return "label_add", nil, nil
		}
		before := append([]string(nil), t.Labels...)
		t.Labels = append(t.Labels, label)
		return "label_add", audit.FieldDiff("labels", before, t.Labels), nil
	})
}

// LabelRemove drops a label.
func (s *Store) LabelRemove(ref, label string) (*task.Task, error) {
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		before := append([]string(nil), t.Labels...)
		kept := t.Labels[:0]
		for _, have := range t.Labels {
			if !strings.EqualFold(have, label) {
				kept = append(kept, have)
			}
		}
		t.Labels = kept
		return "label_remove", audit.FieldDiff("labels", before, t.Labels), nil
	})
}

// DepAdd appends a dependency after checking that the edge keeps the
// dependency graph acyclic.
func (s *Store) DepAdd(ref, depID string) (*task.Task, error) {
	return s.update(ref, true, func(t *task.Task, tasks []*task.Task) (string, map[string]interface{}, error) {
		for _, have := range t.Dependencies {
			if strings.EqualFold(have, depID) {
				return "dep_add", nil, nil
			}
		}
		if createsCycle(tasks, t.ID, depID) {
			return "", nil, wmerr.New(wmerr.CycleDetected,
				"adding %s -> %s creates a dependency cycle", t.ID, depID).WithTask(t.ID)
		}
		before := append([]string(nil), t.Dependencies...)
		t.Dependencies = append(t.Dependencies, depID)
		return "dep_add", audit.FieldDiff("dependencies", before, t.Dependencies), nil
	})
}

// createsCycle reports whether from -> to would close a cycle, walking
// dependency edges iteratively from to.
func createsCycle(tasks []*task.Task, from, to string) bool {
	byID := task.ByID(tasks)
	target := strings.ToLower(from)
	visited := make(map[string]bool)
	stack := []string{strings.ToLower(to)}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == target {
			return true
		}
		if visited[node] {
			continue
		}
		visited[node] = true
		if t, ok := byID[node]; ok {
			for _, dep := range t.Dependencies {
				stack = append(stack, strings.ToLower(dep))
			}
		}
	}
	return false
}

// DepRemove drops a dependency.
func (s *Store) DepRemove(ref, depID string) (*task.Task, error) {
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		before := append([]string(nil), t.Dependencies...)
		kept := t.Dependencies[:0]
		for _, have := range t.Dependencies {
			if !strings.EqualFold(have, depID) {
				kept = append(kept, have)
			}
		}
		t.Dependencies = kept
		return "dep_remove", audit.FieldDiff("dependencies", before, t.Dependencies), nil
	})
}

// RelAdd appends id to one of the relationship edge lists
// (blocked_by, parent, child, discovered_from).
func (s *Store) RelAdd(ref, relType, id string) (*task.Task, error) {
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		list, err := relationshipList(t, relType)
		if err != nil {
			return "", nil, err
		}
		for _, have := range *list {
			if strings.EqualFold(have, id) {
				return "rel_add", nil, nil
			}
		}
		before := append([]string(nil), *list...)
		*list = append(*list, id)
		return "rel_add", audit.FieldDiff(relType, before, *list), nil
	})
}

// RelRemove drops id from a relationship edge list.
func (s *Store) RelRemove(ref, relType, id string) (*task.Task, error) {
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		list, err := relationshipList(t, relType)
		if err != nil {
			return "", nil, err
		}
		before := append([]string(nil), *list...)
		kept := (*list)[:0]
		for _, have := range *list {
			if !strings.EqualFold(have, id) {
				kept = append(kept, have)
			}
		}
		*list = kept
		return "rel_remove", audit.FieldDiff(relType, before, *list), nil
	})
}

func relationshipList(t *task.Task, relType string) (*[]string, error) {
	switch strings.ToLower(strings.TrimSpace(relType)) {
	case "blocked_by":
		return &t.Relationships.BlockedBy, nil
	case "parent":
		return &t.Relationships.Parent, nil
	case "child":
		return &t.Relationships.Child, nil
	case "discovered_from":
		return &t.Relationships.DiscoveredFrom, nil
	}
	return nil, wmerr.New(wmerr.ParseError, "unknown relationship %q", relType)
}

// AddNote appends a bullet to the Notes section.
func (s *Store) AddNote(ref, note string) (*task.Task, error) {
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		t.Body = task.AppendNote(t.Body, note)
		return "add_note", map[string]interface{}{"note": note}, nil
	})
}

// SetBody replaces the whole body.
func (s *Store) SetBody(ref, body string) (*task.Task, error) {
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		t.Body = body
		return "set_body", nil, nil
	})
}

// SetSection rewrites one body section.
func (s *Store) SetSection(ref, section, content string) (*task.Task, error) {
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		t.Body = task.ReplaceSection(t.Body, section, content)
		return "set_section", map[string]interface{}{"section": section}, nil
	})
}

// Remove is not provided: tasks are archived, never destroyed.

// StatusCounts tallies tasks per canonical status string.
func (s *Store) StatusCounts() map[string]int {
	counts := make(map[string]int)
	for _, t := range s.Load() {
		counts[strings.TrimSpace(t.Status)]++
	}
	return counts
}

// EnsureLayout creates the tasks directory when missing.
func (s *Store) EnsureLayout() error {
	if err := os.MkdirAll(s.Layout.TasksDir, 0o755); err != nil {
		return wmerr.IO(err, "creating %s", s.Layout.TasksDir)
	}
	return nil
}
