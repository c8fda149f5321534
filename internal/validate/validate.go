// Package validate checks a repository's task files and derived
// artifacts for structural problems: duplicate identities, dangling
// references, cycles, projection drift, and epic state violations.
package validate

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"workmesh/internal/diag"
	"workmesh/internal/index"
	"workmesh/internal/paths"
	"workmesh/internal/ready"
	"workmesh/internal/task"
	"workmesh/internal/truth"
)

// Severities of a finding. Errors make the repo unsafe to mutate;
// warnings are advisory.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Finding is one problem discovered by a check.
type Finding struct {
	Severity string `json:"severity"`
	Check    string `json:"check"`
	TaskID   string `json:"task_id,omitempty"`
	Detail   string `json:"detail"`
}

// Report aggregates the findings of one run.
type Report struct {
	Findings []Finding `json:"findings"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
}

// OK reports whether no errors were found. Warnings do not fail a run.
func (r *Report) OK() bool {
	return r.Errors == 0
}

func (r *Report) add(f Finding) {
	r.Findings = append(r.Findings, f)
	switch f.Severity {
	case SeverityError:
		r.Errors++
	default:
		r.Warnings++
	}
}

// Run executes every check against the repository at layout.
func Run(layout paths.Layout, sink diag.Sink) (*Report, error) {
	tasks := task.LoadAll(layout.TasksDir, sink)
	report := &Report{}

	checkIdentity(report, tasks)
	checkReferences(report, tasks)
	checkPRDs(report, layout, tasks)
	checkCycles(report, tasks)
	checkEpics(report, tasks)
	checkTruth(report, layout, sink)
	checkIndex(report, layout, sink)

	sortFindings(report.Findings)
	return report, nil
}

// checkIdentity flags duplicate uids as errors and duplicate ids with
// distinct uids as warnings: the former is corruption, the latter is
// recoverable by rekey.
func checkIdentity(report *Report, tasks []*task.Task) {
	byUID := make(map[string][]*task.Task)
	byID := make(map[string][]*task.Task)
	for _, t := range tasks {
		if t.UID != "" {
			key := strings.ToLower(t.UID)
			byUID[key] = append(byUID[key], t)
		}
		byID[strings.ToLower(t.ID)] = append(byID[strings.ToLower(t.ID)], t)
	}
	for uid, group := range byUID {
		if len(group) > 1 {
			report.add(Finding{
				Severity: SeverityError,
				Check:    "duplicate_uid",
				TaskID:   group[0].ID,
				Detail:   fmt.Sprintf("uid %s is shared by %d task files", uid, len(group)),
			})
		}
	}
	for id, group := range byID {
		if len(group) < 2 {
			continue
		}
		distinct := make(map[string]bool)
		for _, t := range group {
			distinct[strings.ToLower(t.UID)] = true
		}
		if len(distinct) > 1 {
			report.add(Finding{
				Severity: SeverityWarning,
				Check:    "duplicate_id",
				TaskID:   group[0].ID,
				Detail:   fmt.Sprintf("id %s is used by %d distinct tasks", id, len(group)),
			})
		}
	}
}

// checkReferences flags dependencies and relationship edges pointing at
// ids that do not exist.
func checkReferences(report *Report, tasks []*task.Task) {
	byID := task.ByID(tasks)
	for _, t := range tasks {
		for _, ref := range t.Refs() {
			if _, ok := byID[strings.ToLower(ref)]; !ok {
				report.add(Finding{
					Severity: SeverityWarning,
					Check:    "dangling_reference",
					TaskID:   t.ID,
					Detail:   fmt.Sprintf("references %s, which does not exist", ref),
				})
			}
		}
	}
}

// checkPRDs flags prd fields pointing at files that are missing.
func checkPRDs(report *Report, layout paths.Layout, tasks []*task.Task) {
	for _, t := range tasks {
		if t.PRD == "" {
			continue
		}
		if _, err := os.Stat(layout.AbsPath(t.PRD)); err != nil {
			report.add(Finding{
				Severity: SeverityWarning,
				Check:    "missing_prd",
				TaskID:   t.ID,
				Detail:   fmt.Sprintf("prd %s is missing", t.PRD),
			})
		}
	}
}

// checkCycles reports each dependency cycle once, keyed by its smallest
// member.
func checkCycles(report *Report, tasks []*task.Task) {
	byID := task.ByID(tasks)
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(byID))
	inCycle := make(map[string]bool)

	var visit func(id string, stack []string)
	visit = func(id string, stack []string) {
		color[id] = gray
		stack = append(stack, id)
		t := byID[id]
		for _, dep := range t.Dependencies {
			key := strings.ToLower(dep)
			if _, ok := byID[key]; !ok {
				continue
			}
			switch color[key] {
			case white:
				visit(key, stack)
			case gray:
				for i := len(stack) - 1; i >= 0; i-- {
					inCycle[stack[i]] = true
					if stack[i] == key {
						break
					}
				}
			}
		}
		color[id] = black
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			visit(id, nil)
		}
	}
	for _, id := range ids {
		if inCycle[id] {
			report.add(Finding{
				Severity: SeverityError,
				Check:    "dependency_cycle",
				TaskID:   byID[id].ID,
				Detail:   "participates in a dependency cycle",
			})
		}
	}
}

// checkEpics flags Done epics whose subtree still has open work. Such
// files were edited by hand; the store refuses the transition.
func checkEpics(report *Report, tasks []*task.Task) {
	for _, t := range tasks {
		if !t.IsEpic() || !t.IsDone() {
			continue
		}
		if !ready.EpicDone(t, tasks) {
			report.add(Finding{
				Severity: SeverityError,
				Check:    "epic_open_children",
				TaskID:   t.ID,
				Detail:   "epic is Done but has children or dependencies that are not",
			})
		}
	}
}

func checkTruth(report *Report, layout paths.Layout, sink diag.Sink) {
	if _, err := os.Stat(layout.TruthEventsPath()); err != nil {
		return
	}
	ledger := &truth.Ledger{Layout: layout, Sink: sink}
	drift, err := ledger.Verify()
	if err != nil {
		report.add(Finding{
			Severity: SeverityError,
			Check:    "truth_projection",
			Detail:   fmt.Sprintf("verify failed: %v", err),
		})
		return
	}
	for _, d := range drift {
		report.add(Finding{
			Severity: SeverityError,
			Check:    "truth_projection",
			Detail:   d,
		})
	}
}

func checkIndex(report *Report, layout paths.Layout, sink diag.Sink) {
	if _, err := os.Stat(layout.IndexPath()); err != nil {
		return
	}
	drift, err := index.Verify(layout, sink)
	if err != nil {
		report.add(Finding{
			Severity: SeverityWarning,
			Check:    "task_index",
			Detail:   fmt.Sprintf("verify failed: %v", err),
		})
		return
	}
	for _, d := range drift {
		report.add(Finding{
			Severity: SeverityWarning,
			Check:    "task_index",
			Detail:   d,
		})
	}
}

func sortFindings(findings []Finding) {
	rank := map[string]int{SeverityError: 0, SeverityWarning: 1}
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if rank[a.Severity] != rank[b.Severity] {
			return rank[a.Severity] < rank[b.Severity]
		}
		if a.Check != b.Check {
			return a.Check < b.Check
		}
		if a.TaskID != b.TaskID {
			return a.TaskID < b.TaskID
		}
		return a.Detail < b.Detail
	})
}
