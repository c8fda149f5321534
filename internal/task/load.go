package task

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"workmesh/internal/diag"
)

// LoadAll parses every task file directly under dir, in path order.
// Unparseable files are reported to sink and skipped; readers degrade
// rather than fail on one bad file.
func LoadAll(dir string, sink diag.Sink) []*Task {
	paths, err := doublestar.FilepathGlob(dir + "/*.md")
	if err != nil {
		diag.Errorf(sink, "task", "listing %s: %v", dir, err)
		return nil
	}
	sort.Strings(paths)
	tasks := make([]*Task, 0, len(paths))
	for _, path := range paths {
		t, err := ParseFile(path)
		if err != nil {
			diag.Warnf(sink, "task", "skipping %s: %v", path, err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// LoadArchived parses archived tasks under the archive root, which
// nests files in YYYY-MM directories.
func LoadArchived(archiveDir string, sink diag.Sink) []*Task {
	paths, err := doublestar.FilepathGlob(archiveDir + "/*/*.md")
	if err != nil {
		diag.Errorf(sink, "task", "listing %s: %v", archiveDir, err)
		return nil
	}
	sort.Strings(paths)
	tasks := make([]*Task, 0, len(paths))
	for _, path := range paths {
		t, err := ParseFile(path)
		if err != nil {
			diag.Warnf(sink, "task", "skipping %s: %v", path, err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// ByID indexes tasks by lowercased id. When ids collide the first
// occurrence wins; validate surfaces the duplicate.
func ByID(tasks []*Task) map[string]*Task {
	out := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		key := strings.ToLower(t.ID)
		if _, exists := out[key]; !exists {
			out[key] = t
		}
	}
	return out
}

// ByUID indexes tasks by lowercased uid, skipping tasks without one.
func ByUID(tasks []*Task) map[string]*Task {
	out := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		if t.UID == "" {
			continue
		}
		key := strings.ToLower(t.UID)
		if _, exists := out[key]; !exists {
			out[key] = t
		}
	}
	return out
}

// DefaultBody is the body skeleton for newly created tasks.
func DefaultBody() string {
	lines := []string{
		"Description:",
		strings.Repeat("-", 50),
		"- ",
		"",
		"Acceptance Criteria:",
		strings.Repeat("-", 50),
		"- ",
		"",
		"Definition of Done:",
		strings.Repeat("-", 50),
		"- Code/config committed.",
		"- Docs updated if needed.",
	}
	return strings.Join(lines, "\n") + "\n"
}
