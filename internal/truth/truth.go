// Package truth is the decision ledger: an append-only event log under
// <root>/truth/ with a folded projection of the live records. Truths
// move proposed -> accepted or rejected, and accepted -> superseded
// when a successor that names them is accepted.
package truth

import (
	"encoding/json"
	"strings"

	"workmesh/internal/diag"
	"workmesh/internal/fsio"
	"workmesh/internal/ids"
	"workmesh/internal/paths"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
)

// States of a truth record.
const (
	StateProposed   = "proposed"
	StateAccepted   = "accepted"
	StateRejected   = "rejected"
	StateSuperseded = "superseded"
)

// Event types in events.jsonl.
const (
	EventProposed   = "proposed"
	EventAccepted   = "accepted"
	EventRejected   = "rejected"
	EventSuperseded = "superseded"
)

// Scope are the free-form filter fields attached to a truth.
type Scope struct {
	ProjectID    string `json:"project_id,omitempty"`
	EpicID       string `json:"epic_id,omitempty"`
	Feature      string `json:"feature,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	WorktreeID   string `json:"worktree_id,omitempty"`
	WorktreePath string `json:"worktree_path,omitempty"`
}

// Matches reports whether every non-empty field of filter equals the
// corresponding scope field.
func (s Scope) Matches(filter Scope) bool {
	match := func(want, have string) bool {
		return want == "" || strings.EqualFold(want, have)
	}
	return match(filter.ProjectID, s.ProjectID) &&
		match(filter.EpicID, s.EpicID) &&
		match(filter.Feature, s.Feature) &&
		match(filter.SessionID, s.SessionID) &&
		match(filter.WorktreeID, s.WorktreeID) &&
		match(filter.WorktreePath, s.WorktreePath)
}

// Event is one line of events.jsonl. Payload fields are set per type:
// proposed carries the full record, accepted/rejected a note, and
// superseded the successor pointer.
type Event struct {
	EventID     string   `json:"event_id"`
	Type        string   `json:"type"`
	TruthID     string   `json:"truth_id"`
	TS          string   `json:"ts"`
	Actor       string   `json:"actor,omitempty"`
	Title       string   `json:"title,omitempty"`
	Statement   string   `json:"statement,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Scope       Scope    `json:"scope,omitempty"`
	Supersedes  string   `json:"supersedes,omitempty"`
	Note        string   `json:"note,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	By          string   `json:"by,omitempty"`
}

// Transition is one history entry on a folded record.
type Transition struct {
	Type   string `json:"type"`
	TS     string `json:"ts"`
	Actor  string `json:"actor,omitempty"`
	Note   string `json:"note,omitempty"`
	Reason string `json:"reason,omitempty"`
	By     string `json:"by,omitempty"`
}

// Record is the folded state of one truth, as projected into
// current.jsonl.
type Record struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Statement    string       `json:"statement,omitempty"`
	Constraints  []string     `json:"constraints,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	Scope        Scope        `json:"scope,omitempty"`
	State        string       `json:"state"`
	Supersedes   string       `json:"supersedes,omitempty"`
	SupersededBy string       `json:"superseded_by,omitempty"`
	History      []Transition `json:"history,omitempty"`
}

// HasTag reports a case-insensitive tag match.
func (r *Record) HasTag(tag string) bool {
	for _, have := range r.Tags {
		if strings.EqualFold(have, tag) {
			return true
		}
	}
	return false
}

// Ledger reads and writes one repository's truth store.
type Ledger struct {
	Layout paths.Layout
	Clock  util.Clock
	Actor  string
	Sink   diag.Sink
}

// fold replays events in file order (timestamp then insertion order,
// since appends are ordered) into the record map and the insertion
// order of truth ids.
func fold(events []Event) (map[string]*Record, []string) {
	records := make(map[string]*Record)
	var order []string
	for _, e := range events {
		r, ok := records[e.TruthID]
		if !ok {
			r = &Record{ID: e.TruthID, State: StateProposed}
			records[e.TruthID] = r
			order = append(order, e.TruthID)
		}
		switch e.Type {
		case EventProposed:
			r.Title = e.Title
			r.Statement = e.Statement
			r.Constraints = e.Constraints
			r.Tags = e.Tags
			r.Scope = e.Scope
			r.Supersedes = e.Supersedes
			r.State = StateProposed
		case EventAccepted:
			r.State = StateAccepted
		case EventRejected:
			r.State = StateRejected
		case EventSuperseded:
			r.State = StateSuperseded
			r.SupersededBy = e.By
		}
		r.History = append(r.History, Transition{
			Type:   e.Type,
			TS:     e.TS,
			Actor:  e.Actor,
			Note:   e.Note,
			Reason: e.Reason,
			By:     e.By,
		})
	}
	return records, order
}

func (l *Ledger) readEvents() ([]Event, error) {
	var events []Event
	err := fsio.ScanJSONLines(l.Layout.TruthEventsPath(), func(line []byte, n int) error {
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return wmerr.Wrap(wmerr.ParseError, err, "truth event line %d", n).
				WithPath(l.Layout.TruthEventsPath(), n)
		}
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (l *Ledger) state() (map[string]*Record, []string, error) {
	events, err := l.readEvents()
	if err != nil {
		return nil, nil, err
	}
	records, order := fold(events)
	return records, order, nil
}

func (l *Ledger) append(events ...Event) error {
	for _, e := range events {
		if err := fsio.AppendJSONLine(l.Layout.TruthEventsPath(), e); err != nil {
			return wmerr.IO(err, "appending truth event").WithTruth(e.TruthID)
		}
	}
	if err := l.Rebuild(); err != nil {
		diag.Warnf(l.Sink, "truth", "projection refresh: %v", err)
	}
	return nil
}

func (l *Ledger) newEvent(eventType, truthID string) Event {
	return Event{
		EventID: ids.NewEventID(l.Clock),
		Type:    eventType,
		TruthID: truthID,
		TS:      util.FormatRFC3339(l.Clock.Now()),
		Actor:   l.Actor,
	}
}

// ProposeOptions are the fields of a new truth.
type ProposeOptions struct {
	Title       string
	Statement   string
	Constraints []string
	Tags        []string
	Scope       Scope
	Supersedes  string
}

// Propose appends a Proposed event and returns the new record.
func (l *Ledger) Propose(opts ProposeOptions) (*Record, error) {
	if opts.Supersedes != "" {
		records, _, err := l.state()
		if err != nil {
			return nil, err
		}
		if _, ok := records[opts.Supersedes]; !ok {
			return nil, wmerr.New(wmerr.NotFound, "supersedes target %s not found", opts.Supersedes).
				WithTruth(opts.Supersedes)
		}
	}
	e := l.newEvent(EventProposed, ids.NewTruthID(l.Clock))
	e.Title = opts.Title
	e.Statement = opts.Statement
	e.Constraints = opts.Constraints
	e.Tags = opts.Tags
	e.Scope = opts.Scope
	e.Supersedes = opts.Supersedes
	if err := l.append(e); err != nil {
		return nil, err
	}
	return l.Show(e.TruthID)
}

// Accept moves a proposed truth to accepted. When the truth names an
// accepted predecessor in supersedes, the predecessor's Superseded
// event is appended atomically with the acceptance.
func (l *Ledger) Accept(truthID, note string) (*Record, error) {
	records, _, err := l.state()
	if err != nil {
		return nil, err
	}
	r, ok := records[truthID]
	if !ok {
		return nil, wmerr.New(wmerr.NotFound, "truth %s not found", truthID).WithTruth(truthID)
	}
	if r.State != StateProposed {
		return nil, wmerr.New(wmerr.InvalidTransition,
			"truth %s is %s; only proposed truths can be accepted", truthID, r.State).WithTruth(truthID)
	}

	accepted := l.newEvent(EventAccepted, truthID)
	accepted.Note = note
	events := []Event{accepted}

	if r.Supersedes != "" {
		if prior, ok := records[r.Supersedes]; ok && prior.State == StateAccepted {
			superseded := l.newEvent(EventSuperseded, r.Supersedes)
			superseded.By = truthID
			events = append(events, superseded)
		} else if ok && prior.State != StateSuperseded {
			diag.Warnf(l.Sink, "truth", "supersedes target %s is %s, not accepted; leaving it alone",
				r.Supersedes, prior.State)
		}
	}
	if err := l.append(events...); err != nil {
		return nil, err
	}
	return l.Show(truthID)
}

// Supersede marks old as superseded by byID. Both records must be
// accepted; the implicit path through Accept handles the
// propose-with-supersedes flow.
func (l *Ledger) Supersede(oldID, byID, reason string) (*Record, error) {
	records, _, err := l.state()
	if err != nil {
		return nil, err
	}
	old, ok := records[oldID]
	if !ok {
		return nil, wmerr.New(wmerr.NotFound, "truth %s not found", oldID).WithTruth(oldID)
	}
	successor, ok := records[byID]
	if !ok {
		return nil, wmerr.New(wmerr.NotFound, "truth %s not found", byID).WithTruth(byID)
	}
	if old.State != StateAccepted {
		return nil, wmerr.New(wmerr.InvalidTransition,
			"truth %s is %s; only accepted truths can be superseded", oldID, old.State).WithTruth(oldID)
	}
	if successor.State != StateAccepted {
		return nil, wmerr.New(wmerr.InvalidTransition,
			"successor %s is %s; it must be accepted first", byID, successor.State).WithTruth(byID)
	}
	e := l.newEvent(EventSuperseded, oldID)
	e.By = byID
	e.Reason = reason
	if err := l.append(e); err != nil {
		return nil, err
	}
	return l.Show(oldID)
}

// Reject moves a proposed truth to rejected.
func (l *Ledger) Reject(truthID, note string) (*Record, error) {
	records, _, err := l.state()
	if err != nil {
		return nil, err
	}
	r, ok := records[truthID]
	if !ok {
		return nil, wmerr.New(wmerr.NotFound, "truth %s not found", truthID).WithTruth(truthID)
	}
	if r.State != StateProposed {
		return nil, wmerr.New(wmerr.InvalidTransition,
			"truth %s is %s; only proposed truths can be rejected", truthID, r.State).WithTruth(truthID)
	}
	e := l.newEvent(EventRejected, truthID)
	e.Note = note
	if err := l.append(e); err != nil {
		return nil, err
	}
	return l.Show(truthID)
}

// Show returns the folded record for one truth.
func (l *Ledger) Show(truthID string) (*Record, error) {
	records, _, err := l.state()
	if err != nil {
		return nil, err
	}
	r, ok := records[truthID]
	if !ok {
		return nil, wmerr.New(wmerr.NotFound, "truth %s not found", truthID).WithTruth(truthID)
	}
	return r, nil
}

// Query filters List results. Zero-value fields do not constrain.
type Query struct {
	State string
	Tag   string
	Scope Scope
}

// List returns records in insertion order, filtered by the query.
func (l *Ledger) List(q Query) ([]*Record, error) {
	records, order, err := l.state()
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, id := range order {
		r := records[id]
		if q.State != "" && !strings.EqualFold(q.State, r.State) {
			continue
		}
		if q.Tag != "" && !r.HasTag(q.Tag) {
			continue
		}
		if !r.Scope.Matches(q.Scope) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
