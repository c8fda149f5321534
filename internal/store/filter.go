package store

import (
	"sort"
	"strings"

	"workmesh/internal/task"
)

// Filter selects tasks. Zero-value fields do not constrain.
type Filter struct {
	Status    []string
	Phase     []string
	Priority  []string
	Labels    []string // any-of
	Kind      string
	Project   string
	DependsOn string
	Search    string // matches title or body, case-insensitive
	Ready     bool   // only tasks whose dependencies are all Done
	Blocked   bool   // only tasks with an unmet dependency
}

// List applies the filter and returns tasks sorted by id.
func (s *Store) List(f Filter) []*task.Task {
	tasks := s.Load()
	doneIDs := make(map[string]bool)
	for _, t := range tasks {
		if t.IsDone() {
			doneIDs[strings.ToLower(t.ID)] = true
		}
	}

	var out []*task.Task
	for _, t := range tasks {
		if !f.matches(t, doneIDs) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f Filter) matches(t *task.Task, doneIDs map[string]bool) bool {
	if len(f.Status) > 0 && !containsFold(f.Status, t.Status) {
		return false
	}
	if len(f.Phase) > 0 && !containsFold(f.Phase, t.Phase) {
		return false
	}
	if len(f.Priority) > 0 && !containsFold(f.Priority, t.Priority) {
		return false
	}
	if len(f.Labels) > 0 {
		any := false
		for _, label := range f.Labels {
			if t.HasLabel(label) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if f.Kind != "" && !strings.EqualFold(f.Kind, t.Kind) {
		return false
	}
	if f.Project != "" && !strings.EqualFold(f.Project, t.Project) {
		return false
	}
	if f.DependsOn != "" && !containsFold(t.Dependencies, f.DependsOn) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Body), needle) {
			return false
		}
	}
	if f.Ready && !depsSatisfied(t, doneIDs) {
		return false
	}
	if f.Blocked && depsSatisfied(t, doneIDs) {
		return false
	}
	return true
}

func depsSatisfied(t *task.Task, doneIDs map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !doneIDs[strings.ToLower(dep)] {
			return false
		}
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, have := range haystack {
		if strings.EqualFold(have, needle) {
			return true
		}
	}
	return false
}
