// Package paths locates the WorkMesh directories for a repository and
// the developer-global home. All returned paths are absolute; callers
// that persist paths are responsible for making them repo-relative.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"workmesh/internal/wmerr"
)

// Task directory candidates relative to the repo root, in precedence
// order. The first present wins; the first is also the creation layout.
var taskDirCandidates = []string{
	filepath.Join("workmesh", "tasks"),
	filepath.Join(".workmesh", "tasks"),
	"tasks",
	filepath.Join("backlog", "tasks"),
	filepath.Join("project", "tasks"),
}

// Layout describes the resolved on-disk layout for one repository.
type Layout struct {
	// RepoRoot is the repository root the caller supplied.
	RepoRoot string
	// MeshDir is the directory holding tasks/, truth/, context.json
	// and the derived artifacts (typically <root>/workmesh).
	MeshDir string
	// TasksDir is MeshDir/tasks.
	TasksDir string
}

// Resolve finds an existing task directory under root following the
// precedence list. It fails with NotFound when no candidate exists.
func Resolve(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, wmerr.IO(err, "resolving %s", root)
	}
	for _, candidate := range taskDirCandidates {
		tasksDir := filepath.Join(abs, candidate)
		if info, err := os.Stat(tasksDir); err == nil && info.IsDir() {
			return Layout{
				RepoRoot: abs,
				MeshDir:  filepath.Dir(tasksDir),
				TasksDir: tasksDir,
			}, nil
		}
	}
	return Layout{}, wmerr.New(wmerr.NotFound, "no task directory under %s", abs)
}

// ResolveOrInit resolves an existing layout or returns the creation
// layout (<root>/workmesh/tasks) without creating it.
func ResolveOrInit(root string) (Layout, error) {
	layout, err := Resolve(root)
	if err == nil {
		return layout, nil
	}
	if !wmerr.IsKind(err, wmerr.NotFound) {
		return Layout{}, err
	}
	abs, absErr := filepath.Abs(root)
	if absErr != nil {
		return Layout{}, wmerr.IO(absErr, "resolving %s", root)
	}
	meshDir := filepath.Join(abs, "workmesh")
	return Layout{
		RepoRoot: abs,
		MeshDir:  meshDir,
		TasksDir: filepath.Join(meshDir, "tasks"),
	}, nil
}

// FindRoot walks upward from start looking for a directory that
// resolves to a layout or carries a project config.
func FindRoot(start string) (string, bool) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		if _, err := Resolve(dir); err == nil {
			return dir, true
		}
		for _, name := range configCandidates {
			if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
				return dir, true
			}
		}
		if dir == filepath.Dir(dir) {
			return "", false
		}
	}
}

var configCandidates = []string{".workmesh.toml", ".workmeshrc"}

// ConfigPath returns the path of an existing project config, or the
// preferred path (.workmesh.toml) when none exists.
func ConfigPath(repoRoot string) string {
	for _, name := range configCandidates {
		path := filepath.Join(repoRoot, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return filepath.Join(repoRoot, configCandidates[0])
}

// Home resolves the developer-global home: $WORKMESH_HOME, else the OS
// user home joined with ".workmesh".
func Home() (string, error) {
	if value := strings.TrimSpace(os.Getenv("WORKMESH_HOME")); value != "" {
		return value, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", wmerr.Wrap(wmerr.ConfigError, err, "resolving home directory; set WORKMESH_HOME")
	}
	return filepath.Join(home, ".workmesh"), nil
}

// GlobalConfigPath is $WORKMESH_HOME/config.toml.
func GlobalConfigPath() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "config.toml"), nil
}

// ArchiveDir is the archive root under the mesh dir.
func (l Layout) ArchiveDir() string {
	return filepath.Join(l.MeshDir, "archive")
}

// ContextPath is the context pointer file.
func (l Layout) ContextPath() string {
	return filepath.Join(l.MeshDir, "context.json")
}

// LegacyFocusPath is the pre-context pointer file.
func (l Layout) LegacyFocusPath() string {
	return filepath.Join(l.MeshDir, "focus.json")
}

// TruthDir holds the truth ledger.
func (l Layout) TruthDir() string {
	return filepath.Join(l.MeshDir, "truth")
}

// TruthEventsPath is the append-only truth event log.
func (l Layout) TruthEventsPath() string {
	return filepath.Join(l.TruthDir(), "events.jsonl")
}

// TruthCurrentPath is the derived truth projection.
func (l Layout) TruthCurrentPath() string {
	return filepath.Join(l.TruthDir(), "current.jsonl")
}

// IndexDir holds derived projections.
func (l Layout) IndexDir() string {
	return filepath.Join(l.MeshDir, ".index")
}

// IndexPath is the derived task index.
func (l Layout) IndexPath() string {
	return filepath.Join(l.IndexDir(), "tasks.jsonl")
}

// AuditPath is the append-only audit log.
func (l Layout) AuditPath() string {
	return filepath.Join(l.MeshDir, ".audit.log")
}

// WorktreesPath is the worktree registry.
func (l Layout) WorktreesPath() string {
	return filepath.Join(l.MeshDir, "worktrees.json")
}

// LockPath is the per-root mutation lock.
func (l Layout) LockPath() string {
	return filepath.Join(l.RepoRoot, ".workmesh.lock")
}

// RelPath converts an absolute path under the repo root to a
// forward-slash repo-relative path. Paths outside the root are
// returned unchanged (already-relative paths included).
func (l Layout) RelPath(path string) string {
	rel, err := filepath.Rel(l.RepoRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// AbsPath converts a repo-relative path back to an absolute one.
func (l Layout) AbsPath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(l.RepoRoot, filepath.FromSlash(rel))
}
