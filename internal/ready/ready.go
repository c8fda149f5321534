// Package ready computes readiness, blocker, and board views over the
// task set. All functions are pure over their inputs so callers can
// feed them either the index or freshly parsed files.
package ready

import (
	"sort"
	"strings"
	"time"

	"workmesh/internal/task"
	"workmesh/internal/workctx"
)

// IsReady reports whether t can be picked up by owner now: the status
// is non-terminal, every dependency and blocked_by edge resolves to an
// existing Done task, and no other owner holds an active lease.
// Dangling references block.
func IsReady(t *task.Task, byID map[string]*task.Task, owner string, now time.Time) bool {
	if t.IsTerminal() {
		return false
	}
	if leasedByOther(t, owner, now) {
		return false
	}
	return blockersOf(t, byID) == nil
}

func leasedByOther(t *task.Task, owner string, now time.Time) bool {
	return t.Lease.Active(now) && !strings.EqualFold(t.Lease.Owner, owner)
}

// blockersOf returns the unmet blocker ids of t: referenced tasks not
// Done, and dangling references verbatim.
func blockersOf(t *task.Task, byID map[string]*task.Task) []string {
	var unmet []string
	seen := make(map[string]bool)
	check := func(ids []string) {
		for _, id := range ids {
			key := strings.ToLower(id)
			if seen[key] {
				continue
			}
			seen[key] = true
			dep, ok := byID[key]
			if !ok || !dep.IsDone() {
				unmet = append(unmet, id)
			}
		}
	}
	check(t.Dependencies)
	check(t.Relationships.BlockedBy)
	return unmet
}

// isActive reports whether t counts as active work for owner.
func isActive(t *task.Task, owner string, now time.Time) bool {
	if strings.EqualFold(strings.TrimSpace(t.Status), "In Progress") {
		return true
	}
	return t.Lease.Active(now) && strings.EqualFold(t.Lease.Owner, owner)
}

var priorityRanks = map[string]int{"p0": 0, "p1": 1, "p2": 2, "p3": 3}

func priorityRank(priority string) int {
	if rank, ok := priorityRanks[strings.ToLower(strings.TrimSpace(priority))]; ok {
		return rank
	}
	return len(priorityRanks)
}

// sortReady orders ready tasks deterministically: context working-set
// entries first in context order, then active work, then priority
// P0..P3, then id.
func sortReady(tasks []*task.Task, ctx *workctx.State, owner string, now time.Time) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		aWS, bWS := ctx.WorkingSetIndex(a.ID), ctx.WorkingSetIndex(b.ID)
		if (aWS >= 0) != (bWS >= 0) {
			return aWS >= 0
		}
		if aWS >= 0 && aWS != bWS {
			return aWS < bWS
		}
		aActive, bActive := isActive(a, owner, now), isActive(b, owner, now)
		if aActive != bActive {
			return aActive
		}
		if ap, bp := priorityRank(a.Priority), priorityRank(b.Priority); ap != bp {
			return ap < bp
		}
		return a.ID < b.ID
	})
}

// NextTasks returns up to limit ready tasks for owner, ordered. A
// limit <= 0 means no limit.
func NextTasks(tasks []*task.Task, ctx *workctx.State, owner string, now time.Time, limit int) []*task.Task {
	byID := task.ByID(tasks)
	var ready []*task.Task
	for _, t := range tasks {
		if IsReady(t, byID, owner, now) {
			ready = append(ready, t)
		}
	}
	sortReady(ready, ctx, owner, now)
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	return ready
}

// Next returns the single best ready task, or nil.
func Next(tasks []*task.Task, ctx *workctx.State, owner string, now time.Time) *task.Task {
	ready := NextTasks(tasks, ctx, owner, now, 1)
	if len(ready) == 0 {
		return nil
	}
	return ready[0]
}

// Blocker aggregates one blocking task and everything it holds up.
type Blocker struct {
	ID       string
	Task     *task.Task // nil for dangling references
	Blocked  []string   // ids of tasks waiting on this blocker, sorted
	Dangling bool
}

// Blockers enumerates unmet blockers across all non-Done tasks, sorted
// by the number of dependents blocked descending, then id. When epicID
// is non-empty the view is scoped to the epic's subtree.
func Blockers(tasks []*task.Task, epicID string) []Blocker {
	byID := task.ByID(tasks)
	scope := map[string]bool(nil)
	if epicID != "" {
		scope = Subtree(tasks, epicID)
	}

	blockedBy := make(map[string][]string)
	for _, t := range tasks {
		if t.IsDone() {
			continue
		}
		if scope != nil && !scope[strings.ToLower(t.ID)] {
			continue
		}
		for _, id := range blockersOf(t, byID) {
			key := strings.ToLower(id)
			blockedBy[key] = append(blockedBy[key], t.ID)
		}
	}

	blockers := make([]Blocker, 0, len(blockedBy))
	for key, blocked := range blockedBy {
		sort.Strings(blocked)
		b := Blocker{ID: key, Blocked: blocked}
		if t, ok := byID[key]; ok {
			b.ID = t.ID
			b.Task = t
		} else {
			b.Dangling = true
		}
		blockers = append(blockers, b)
	}
	sort.Slice(blockers, func(i, j int) bool {
		if len(blockers[i].Blocked) != len(blockers[j].Blocked) {
			return len(blockers[i].Blocked) > len(blockers[j].Blocked)
		}
		return blockers[i].ID < blockers[j].ID
	})
	return blockers
}

// Subtree returns the lowercased ids of the epic and every task that
// reaches it through parent edges, walked iteratively. Explicit child
// edges are followed as well. Cycles terminate via the visited set.
func Subtree(tasks []*task.Task, epicID string) map[string]bool {
	children := make(map[string][]string)
	byID := task.ByID(tasks)
	for _, t := range tasks {
		key := strings.ToLower(t.ID)
		for _, parent := range t.Relationships.Parent {
			pk := strings.ToLower(parent)
			children[pk] = append(children[pk], key)
		}
	}
	for id, t := range byID {
		for _, child := range t.Relationships.Child {
			children[id] = append(children[id], strings.ToLower(child))
		}
	}

	root := strings.ToLower(epicID)
	visited := map[string]bool{root: true}
	stack := []string{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range children[node] {
			if !visited[child] {
				visited[child] = true
				stack = append(stack, child)
			}
		}
	}
	return visited
}

// EpicDone reports whether the epic-completion predicate holds: every
// dependency, blocked_by, explicit child, and inferred child (a task
// whose parent list names the epic) is Done. Dangling references fail
// the predicate.
func EpicDone(epic *task.Task, tasks []*task.Task) bool {
	byID := task.ByID(tasks)
	check := func(ids []string) bool {
		for _, id := range ids {
			dep, ok := byID[strings.ToLower(id)]
			if !ok || !dep.IsDone() {
				return false
			}
		}
		return true
	}
	if !check(epic.Dependencies) || !check(epic.Relationships.BlockedBy) || !check(epic.Relationships.Child) {
		return false
	}
	epicKey := strings.ToLower(epic.ID)
	for _, t := range tasks {
		for _, parent := range t.Relationships.Parent {
			if strings.ToLower(parent) == epicKey && !t.IsDone() {
				return false
			}
		}
	}
	return true
}
