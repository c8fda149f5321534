// Package task owns the on-disk task format: the Markdown file with
// YAML front matter, its tolerant parser, the canonical writer, and
// the body section helpers.
package task

import (
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"workmesh/internal/util"
)

// Lease marks a task as claimed by an owner until expiry.
type Lease struct {
	Owner      string `json:"owner"`
	AcquiredAt string `json:"acquired_at,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// Active reports whether the lease has not yet expired. A lease with an
// unparseable expiry is treated as inactive.
func (l *Lease) Active(now time.Time) bool {
	if l == nil || l.Owner == "" {
		return false
	}
	expires, ok := util.ParseRFC3339(l.ExpiresAt)
	if !ok {
		return false
	}
	return now.Before(expires)
}

// Relationships are the typed edges between tasks, each a list of
// task ids.
type Relationships struct {
	BlockedBy      []string `json:"blocked_by,omitempty"`
	Parent         []string `json:"parent,omitempty"`
	Child          []string `json:"child,omitempty"`
	DiscoveredFrom []string `json:"discovered_from,omitempty"`
}

// Empty reports whether no edges are present.
func (r Relationships) Empty() bool {
	return len(r.BlockedBy) == 0 && len(r.Parent) == 0 && len(r.Child) == 0 && len(r.DiscoveredFrom) == 0
}

// ExtraField is an unknown front-matter key preserved across rewrites,
// in original order.
type ExtraField struct {
	Key   string
	Value *yaml.Node
}

// Task is one unit of work. The zero value is not valid; tasks come
// from Parse or from the store's add operation.
type Task struct {
	UID           string
	ID            string
	Title         string
	Kind          string
	Status        string
	Priority      string
	Phase         string
	Labels        []string
	Assignee      []string
	Dependencies  []string
	Relationships Relationships
	Project       string
	Initiative    string
	External      map[string]string
	Lease         *Lease
	CreatedDate   string
	UpdatedDate   string
	PRD           string
	Extra         []ExtraField
	Body          string

	// Path is the absolute file path the task was loaded from, empty
	// for tasks not yet written.
	Path string
}

// IsDone reports whether the status is Done, case-insensitively.
func (t *Task) IsDone() bool {
	return strings.EqualFold(strings.TrimSpace(t.Status), "Done")
}

// Terminal statuses end a task's life. User-defined variants are
// matched case-insensitively.
var terminalStatuses = map[string]bool{
	"done":      true,
	"cancelled": true,
	"canceled":  true,
	"won't do":  true,
	"wont do":   true,
}

// IsTerminal reports whether the status ends the task's lifecycle.
func (t *Task) IsTerminal() bool {
	return terminalStatuses[strings.ToLower(strings.TrimSpace(t.Status))]
}

// IsEpic reports whether the task is an epic.
func (t *Task) IsEpic() bool {
	return strings.EqualFold(strings.TrimSpace(t.Kind), "epic")
}

// Refs returns every task id this task references through dependencies
// and relationships.
func (t *Task) Refs() []string {
	var refs []string
	refs = append(refs, t.Dependencies...)
	refs = append(refs, t.Relationships.BlockedBy...)
	refs = append(refs, t.Relationships.Parent...)
	refs = append(refs, t.Relationships.Child...)
	refs = append(refs, t.Relationships.DiscoveredFrom...)
	return refs
}

// HasLabel reports whether label is present, case-insensitively.
func (t *Task) HasLabel(label string) bool {
	for _, have := range t.Labels {
		if strings.EqualFold(have, label) {
			return true
		}
	}
	return false
}

// Touch sets updated_date from the clock.
func (t *Task) Touch(clock util.Clock) {
	t.UpdatedDate = util.FormatTaskDate(clock.Now())
}

var (
	slugStrip    = regexp.MustCompile(`[^a-zA-Z0-9\s\-]`)
	slugCollapse = regexp.MustCompile(`\s+`)
)

// SlugTitle reduces a title to the filename-safe slug: punctuation
// stripped, lowercased, runs of whitespace collapsed.
func SlugTitle(title string) string {
	cleaned := slugStrip.ReplaceAllString(title, "")
	cleaned = strings.ToLower(strings.TrimSpace(cleaned))
	cleaned = slugCollapse.ReplaceAllString(cleaned, " ")
	if cleaned == "" {
		return "untitled"
	}
	return cleaned
}

// Filename returns the canonical file name, "<id> - <slug> - <uid8>.md"
// when a uid is present and "<id> - <slug>.md" otherwise. The uid
// suffix keeps files distinct when two branches allocate the same id.
func (t *Task) Filename() string {
	slug := SlugTitle(t.Title)
	if t.UID == "" {
		return t.ID + " - " + slug + ".md"
	}
	prefix := strings.ToLower(t.UID)
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return t.ID + " - " + slug + " - " + prefix + ".md"
}
