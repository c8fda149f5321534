package ready

import (
	"sort"
	"strings"

	"workmesh/internal/task"
	"workmesh/internal/workctx"
)

// Lane is one column of the board view.
type Lane struct {
	Name  string
	Tasks []*task.Task
}

// Canonical status lane order; statuses outside it are appended
// alphabetically after Archived.
var statusLaneOrder = []string{"To Do", "In Progress", "Blocked", "Done", "Archived"}

// Board groups tasks into lanes by "status", "phase", or "priority".
// Within each lane tasks sort by id. When focus is true the board is
// restricted to the context working set plus the epic subtree.
func Board(tasks []*task.Task, groupBy string, ctx *workctx.State, focus bool) []Lane {
	if focus && ctx != nil {
		tasks = focusScope(tasks, ctx)
	}

	byLane := make(map[string][]*task.Task)
	for _, t := range tasks {
		byLane[laneName(t, groupBy)] = append(byLane[laneName(t, groupBy)], t)
	}
	for _, lane := range byLane {
		sort.Slice(lane, func(i, j int) bool { return lane[i].ID < lane[j].ID })
	}

	var names []string
	if groupBy == "status" || groupBy == "" {
		seen := make(map[string]bool)
		for _, name := range statusLaneOrder {
			if _, ok := byLane[name]; ok {
				names = append(names, name)
				seen[name] = true
			}
		}
		var rest []string
		for name := range byLane {
			if !seen[name] {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest)
		names = append(names, rest...)
	} else {
		for name := range byLane {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	lanes := make([]Lane, 0, len(names))
	for _, name := range names {
		lanes = append(lanes, Lane{Name: name, Tasks: byLane[name]})
	}
	return lanes
}

func laneName(t *task.Task, groupBy string) string {
	var raw string
	switch groupBy {
	case "phase":
		raw = strings.TrimSpace(t.Phase)
	case "priority":
		raw = strings.TrimSpace(t.Priority)
	default:
		raw = canonicalStatus(t.Status)
	}
	if raw == "" {
		return "(none)"
	}
	return raw
}

// canonicalStatus folds case variants onto the canonical lane names so
// "to do" and "To Do" land in one lane.
func canonicalStatus(status string) string {
	trimmed := strings.TrimSpace(status)
	for _, name := range statusLaneOrder {
		if strings.EqualFold(trimmed, name) {
			return name
		}
	}
	return trimmed
}

func focusScope(tasks []*task.Task, ctx *workctx.State) []*task.Task {
	include := make(map[string]bool)
	for _, id := range ctx.WorkingSet {
		include[strings.ToLower(id)] = true
	}
	if ctx.EpicID != "" {
		for id := range Subtree(tasks, ctx.EpicID) {
			include[id] = true
		}
	}
	var scoped []*task.Task
	for _, t := range tasks {
		if include[strings.ToLower(t.ID)] {
			scoped = append(scoped, t)
		}
	}
	return scoped
}
