// Package worktree tracks linked git worktrees in the registry at
// <mesh>/worktrees.json, binding each worktree to the session, project,
// and epic it was created for.
package worktree

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"workmesh/internal/diag"
	"workmesh/internal/fsio"
	"workmesh/internal/gitio"
	"workmesh/internal/paths"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
	"workmesh/internal/workctx"
)

// Binding is one registered worktree.
type Binding struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Branch    string `json:"branch"`
	SessionID string `json:"session_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	EpicID    string `json:"epic_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

type registryFile struct {
	Bindings []Binding `json:"bindings"`
}

// Registry reads and writes one repository's worktree bindings.
type Registry struct {
	Layout paths.Layout
	Clock  util.Clock
	Git    gitio.Git
	Sink   diag.Sink
}

// List returns the bindings sorted by creation time then id. A missing
// registry file yields an empty list.
func (r *Registry) List() ([]Binding, error) {
	data, err := os.ReadFile(r.Layout.WorktreesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wmerr.IO(err, "reading worktree registry")
	}
	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, wmerr.Wrap(wmerr.ParseError, err, "parsing worktree registry").
			WithPath(r.Layout.WorktreesPath(), 0)
	}
	sort.Slice(file.Bindings, func(i, j int) bool {
		a, b := file.Bindings[i], file.Bindings[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
	return file.Bindings, nil
}

func (r *Registry) write(bindings []Binding) error {
	data, err := json.MarshalIndent(registryFile{Bindings: bindings}, "", "  ")
	if err != nil {
		return wmerr.Wrap(wmerr.IOError, err, "serializing worktree registry")
	}
	if err := fsio.WriteFileAtomic(r.Layout.WorktreesPath(), append(data, '\n'), 0o644); err != nil {
		return wmerr.IO(err, "writing worktree registry")
	}
	return nil
}

// Find returns the binding matching id, or a path match when no id
// matches.
func (r *Registry) Find(ref string) (*Binding, error) {
	bindings, err := r.List()
	if err != nil {
		return nil, err
	}
	for i := range bindings {
		if strings.EqualFold(bindings[i].ID, ref) {
			return &bindings[i], nil
		}
	}
	abs, _ := filepath.Abs(ref)
	for i := range bindings {
		if bindings[i].Path == ref || bindings[i].Path == abs {
			return &bindings[i], nil
		}
	}
	return nil, wmerr.New(wmerr.NotFound, "worktree %s not found", ref)
}

// CreateOptions parameterizes Create.
type CreateOptions struct {
	Path      string
	Branch    string
	SessionID string
	ProjectID string
	EpicID    string
	// SeedContext writes a context pointer into the new worktree's mesh
	// dir carrying the project and epic.
	SeedContext bool
}

// Create adds a git worktree, registers its binding, and optionally
// seeds its context pointer.
func (r *Registry) Create(opts CreateOptions) (*Binding, error) {
	if opts.Path == "" || opts.Branch == "" {
		return nil, wmerr.New(wmerr.ConfigError, "worktree create needs a path and a branch")
	}
	abs, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, wmerr.IO(err, "resolving %s", opts.Path)
	}
	bindings, err := r.List()
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		if b.Path == abs {
			return nil, wmerr.New(wmerr.DuplicateID, "worktree at %s already registered", abs)
		}
	}

	if err := r.Git.CreateWorktree(r.Layout.RepoRoot, abs, opts.Branch); err != nil {
		return nil, wmerr.Wrap(wmerr.GitError, err, "adding worktree at %s", abs)
	}

	binding := Binding{
		ID:        uuid.NewString(),
		Path:      abs,
		Branch:    opts.Branch,
		SessionID: opts.SessionID,
		ProjectID: opts.ProjectID,
		EpicID:    opts.EpicID,
		CreatedAt: util.FormatRFC3339(r.Clock.Now()),
	}
	bindings = append(bindings, binding)
	if err := r.write(bindings); err != nil {
		return nil, err
	}

	if opts.SeedContext && (opts.ProjectID != "" || opts.EpicID != "") {
		if err := r.seedContext(abs, opts.ProjectID, opts.EpicID); err != nil {
			diag.Warnf(r.Sink, "worktree", "seeding context: %v", err)
		}
	}
	return &binding, nil
}

func (r *Registry) seedContext(worktreePath, projectID, epicID string) error {
	layout, err := paths.ResolveOrInit(worktreePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(layout.MeshDir, 0o755); err != nil {
		return wmerr.IO(err, "creating %s", layout.MeshDir)
	}
	state := &workctx.State{ProjectID: projectID, EpicID: epicID}
	return workctx.Save(layout, state, r.Clock)
}

// Attach binds an existing worktree to a session.
func (r *Registry) Attach(ref, sessionID string) (*Binding, error) {
	bindings, err := r.List()
	if err != nil {
		return nil, err
	}
	for i := range bindings {
		if strings.EqualFold(bindings[i].ID, ref) || bindings[i].Path == ref {
			bindings[i].SessionID = sessionID
			if err := r.write(bindings); err != nil {
				return nil, err
			}
			return &bindings[i], nil
		}
	}
	return nil, wmerr.New(wmerr.NotFound, "worktree %s not found", ref)
}

// Detach removes a binding from the registry. The worktree on disk is
// left alone.
func (r *Registry) Detach(ref string) error {
	bindings, err := r.List()
	if err != nil {
		return err
	}
	for i := range bindings {
		if strings.EqualFold(bindings[i].ID, ref) || bindings[i].Path == ref {
			bindings = append(bindings[:i], bindings[i+1:]...)
			return r.write(bindings)
		}
	}
	return wmerr.New(wmerr.NotFound, "worktree %s not found", ref)
}

// Problem is one finding from Doctor.
type Problem struct {
	BindingID string `json:"binding_id"`
	Path      string `json:"path"`
	Issue     string `json:"issue"`
}

// Doctor checks each binding against the filesystem and git: missing
// directories, paths that are no longer repositories, and branch
// drift.
func (r *Registry) Doctor() ([]Problem, error) {
	bindings, err := r.List()
	if err != nil {
		return nil, err
	}
	var problems []Problem
	for _, b := range bindings {
		if info, err := os.Stat(b.Path); err != nil || !info.IsDir() {
			problems = append(problems, Problem{
				BindingID: b.ID,
				Path:      b.Path,
				Issue:     "worktree directory missing",
			})
			continue
		}
		if !r.Git.Available(b.Path) {
			problems = append(problems, Problem{
				BindingID: b.ID,
				Path:      b.Path,
				Issue:     "path is not a git worktree",
			})
			continue
		}
		if branch := r.Git.CurrentBranch(b.Path); branch != "" && branch != b.Branch {
			problems = append(problems, Problem{
				BindingID: b.ID,
				Path:      b.Path,
				Issue:     fmt.Sprintf("branch is %s, binding says %s", branch, b.Branch),
			})
		}
	}
	return problems, nil
}
