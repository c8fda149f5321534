package store

import "workmesh/internal/task"

// BulkOutcome is the per-task result of a bulk operation.
type BulkOutcome struct {
	Ref  string
	Task *task.Task
	Err  error
}

// Bulk applies op to refs in order, stopping at the first failure. The
// returned slice holds one outcome per attempted ref; refs after the
// failure are not attempted.
func (s *Store) Bulk(refs []string, op func(ref string) (*task.Task, error)) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(refs))
	for _, ref := range refs {
		t, err := op(ref)
		outcomes = append(outcomes, BulkOutcome{Ref: ref, Task: t, Err: err})
		if err != nil {
			break
		}
	}
	return outcomes
}

// BulkSetStatus applies one status to an ordered list of tasks.
func (s *Store) BulkSetStatus(refs []string, status string) []BulkOutcome {
	return s.Bulk(refs, func(ref string) (*task.Task, error) {
		return s.SetStatus(ref, status, true)
	})
}

// BulkClaim leases an ordered list of tasks for one owner.
func (s *Store) BulkClaim(refs []string, owner string, minutes int) []BulkOutcome {
	return s.Bulk(refs, func(ref string) (*task.Task, error) {
		return s.Claim(ref, owner, minutes, false)
	})
}

// BulkLabelAdd adds one label to an ordered list of tasks.
func (s *Store) BulkLabelAdd(refs []string, label string) []BulkOutcome {
	return s.Bulk(refs, func(ref string) (*task.Task, error) {
		return s.LabelAdd(ref, label)
	})
}
