// Package audit appends semantic change events to the per-root audit
// log. The log is history, not state: every entry is derivable from
// the mutation that produced it, so writes are best-effort.
package audit

import (
	"encoding/json"

	"workmesh/internal/diag"
	"workmesh/internal/fsio"
	"workmesh/internal/util"
)

// Event is one JSONL line in <root>/.audit.log.
type Event struct {
	TS     string                 `json:"ts"`
	Action string                 `json:"action"`
	TaskID string                 `json:"task_id,omitempty"`
	UID    string                 `json:"uid,omitempty"`
	Actor  string                 `json:"actor,omitempty"`
	Diff   map[string]interface{} `json:"diff,omitempty"`
}

// Log writes events to one audit file.
type Log struct {
	Path  string
	Clock util.Clock
	Actor string
}

// Append records an event. Failures are reported to sink and swallowed;
// the primary mutation already succeeded.
func (l *Log) Append(sink diag.Sink, action, taskID, uid string, diff map[string]interface{}) {
	event := Event{
		TS:     util.FormatRFC3339(l.Clock.Now()),
		Action: action,
		TaskID: taskID,
		UID:    uid,
		Actor:  l.Actor,
		Diff:   diff,
	}
	if err := fsio.AppendJSONLine(l.Path, event); err != nil {
		diag.Warnf(sink, "audit", "appending %s for %s: %v", action, taskID, err)
	}
}

// FieldDiff builds the diff payload for a single-field change.
func FieldDiff(field string, before, after interface{}) map[string]interface{} {
	return map[string]interface{}{
		field: map[string]interface{}{"before": before, "after": after},
	}
}

// Read returns every event in the log, oldest first. Unparseable lines
// are skipped so a corrupt line cannot hide the rest of the history.
func Read(path string) ([]Event, error) {
	var events []Event
	err := fsio.ScanJSONLines(path, func(line []byte, n int) error {
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil
		}
		events = append(events, event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Recent returns up to limit events, newest first.
func Recent(path string, limit int) ([]Event, error) {
	events, err := Read(path)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
