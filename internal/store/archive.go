package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"workmesh/internal/task"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
)

// DefaultArchiveStatuses are the terminal statuses archived when the
// caller names none.
var DefaultArchiveStatuses = []string{"Done", "Cancelled", "Canceled", "Won't Do", "Wont Do"}

// ArchiveOptions select which tasks to move.
type ArchiveOptions struct {
	// Before is the inclusive cutoff; tasks dated after it stay.
	Before time.Time
	// Statuses overrides the terminal defaults when non-empty.
	Statuses []string
	// DryRun reports what would move without moving.
	DryRun bool
}

// ArchiveResult lists the moved task ids.
type ArchiveResult struct {
	Archived   []string
	ArchiveDir string
}

// Archive moves matching tasks under <mesh>/archive/YYYY-MM, the month
// taken from the task's own date. Tasks without a parseable date count
// as dated today.
func (s *Store) Archive(opts ArchiveOptions) (*ArchiveResult, error) {
	lock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = DefaultArchiveStatuses
	}
	allowed := make(map[string]bool, len(statuses))
	for _, status := range statuses {
		allowed[normalizeStatus(status)] = true
	}

	result := &ArchiveResult{ArchiveDir: s.Layout.ArchiveDir()}
	for _, t := range s.Load() {
		if !allowed[normalizeStatus(t.Status)] {
			continue
		}
		date := archiveDate(t, s.Clock.Now())
		if date.After(opts.Before) {
			continue
		}
		if opts.DryRun {
			result.Archived = append(result.Archived, t.ID)
			continue
		}
		monthDir := filepath.Join(s.Layout.ArchiveDir(), fmt.Sprintf("%04d-%02d", date.Year(), date.Month()))
		if err := os.MkdirAll(monthDir, 0o755); err != nil {
			return nil, wmerr.IO(err, "creating %s", monthDir)
		}
		target := filepath.Join(monthDir, filepath.Base(t.Path))
		if err := os.Rename(t.Path, target); err != nil {
			return nil, wmerr.IO(err, "archiving %s", t.ID).WithTask(t.ID)
		}
		s.auditLog().Append(s.Sink, "archive", t.ID, t.UID, map[string]interface{}{
			"to": s.Layout.RelPath(target),
		})
		result.Archived = append(result.Archived, t.ID)
	}
	if !opts.DryRun && len(result.Archived) > 0 {
		s.finish()
	}
	return result, nil
}

// normalizeStatus strips everything but alphanumerics so "Won't Do"
// and "Wont Do" compare equal.
func normalizeStatus(status string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(status) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// archiveDate is updated_date, else created_date, else now.
func archiveDate(t *task.Task, now time.Time) time.Time {
	for _, value := range []string{t.UpdatedDate, t.CreatedDate} {
		if value == "" {
			continue
		}
		if date, ok := util.ParseTaskDate(value); ok {
			return date
		}
	}
	return now
}
