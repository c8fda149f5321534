package store

import (
	"strings"
	"time"

	"workmesh/internal/audit"
	"workmesh/internal/task"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
)

// DefaultLeaseMinutes bounds a claim when the caller gives none.
const DefaultLeaseMinutes = 60

// Claim attaches a time-bounded lease for owner. An active lease held
// by a different owner fails with Leased; an expired lease is
// overwritten silently. The status moves to In Progress only when
// setInProgress is true.
func (s *Store) Claim(ref, owner string, minutes int, setInProgress bool) (*task.Task, error) {
	if minutes <= 0 {
		minutes = DefaultLeaseMinutes
	}
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		now := s.Clock.Now()
		if t.Lease.Active(now) && !strings.EqualFold(t.Lease.Owner, owner) {
			return "", nil, wmerr.New(wmerr.Leased, "task %s is leased by %s", t.ID, t.Lease.Owner).
				WithTask(t.ID).
				WithLease(t.Lease.Owner, t.Lease.ExpiresAt)
		}
		t.Lease = &task.Lease{
			Owner:      owner,
			AcquiredAt: util.FormatRFC3339(now),
			ExpiresAt:  util.FormatRFC3339(now.Add(time.Duration(minutes) * time.Minute)),
		}
		diff := map[string]interface{}{
			"owner":      owner,
			"expires_at": t.Lease.ExpiresAt,
		}
		if setInProgress {
			diff["status"] = map[string]interface{}{"before": t.Status, "after": "In Progress"}
			t.Status = "In Progress"
		}
		return "claim", diff, nil
	})
}

// Release clears the lease. Only the owner may release unless force is
// set; a foreign release fails with NotOwner. Releasing an unleased
// task is a no-op.
func (s *Store) Release(ref, owner string, force bool) (*task.Task, error) {
	return s.update(ref, true, func(t *task.Task, _ []*task.Task) (string, map[string]interface{}, error) {
		if t.Lease == nil || t.Lease.Owner == "" {
			return "release", nil, nil
		}
		if !force && !strings.EqualFold(t.Lease.Owner, owner) {
			return "", nil, wmerr.New(wmerr.NotOwner, "task %s is leased by %s, not %s", t.ID, t.Lease.Owner, owner).
				WithTask(t.ID).
				WithLease(t.Lease.Owner, t.Lease.ExpiresAt)
		}
		before := t.Lease.Owner
		t.Lease = nil
		return "release", audit.FieldDiff("lease_owner", before, nil), nil
	})
}
