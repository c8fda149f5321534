// Package sessions is the developer-global session store under
// $WORKMESH_HOME/sessions/: an append-only event log, a current
// pointer, and a derived index, so work can be resumed across repos
// and worktrees.
package sessions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"workmesh/internal/diag"
	"workmesh/internal/fsio"
	"workmesh/internal/ids"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
)

const lockTimeout = 5 * time.Second

// GitSnapshot captures the repo position at save time.
type GitSnapshot struct {
	Branch  string `json:"branch,omitempty"`
	HeadSHA string `json:"head_sha,omitempty"`
	Dirty   bool   `json:"dirty"`
}

// BindingRef points at a worktree binding.
type BindingRef struct {
	ID   string `json:"id,omitempty"`
	Path string `json:"path,omitempty"`
}

// Session is one saved work state.
type Session struct {
	ID            string      `json:"id"`
	CreatedAt     string      `json:"created_at"`
	UpdatedAt     string      `json:"updated_at"`
	Cwd           string      `json:"cwd"`
	RepoRoot      string      `json:"repo_root,omitempty"`
	ProjectID     string      `json:"project_id,omitempty"`
	EpicID        string      `json:"epic_id,omitempty"`
	Objective     string      `json:"objective,omitempty"`
	WorkingSet    []string    `json:"working_set"`
	Git           GitSnapshot `json:"git"`
	CheckpointRef string      `json:"checkpoint_ref,omitempty"`
	TruthRefs     []string    `json:"truth_refs,omitempty"`
	Worktree      *BindingRef `json:"worktree_binding,omitempty"`
}

// Event is one line of events.jsonl.
type Event struct {
	Type    string  `json:"type"` // session_saved
	TS      string  `json:"ts"`
	Actor   string  `json:"actor,omitempty"`
	Session Session `json:"session"`
}

// Store reads and writes one home's session data.
type Store struct {
	Home  string
	Clock util.Clock
	Actor string
	Sink  diag.Sink
}

func (s *Store) sessionsDir() string {
	return filepath.Join(s.Home, "sessions")
}

func (s *Store) eventsPath() string {
	return filepath.Join(s.sessionsDir(), "events.jsonl")
}

func (s *Store) currentPath() string {
	return filepath.Join(s.sessionsDir(), "current.json")
}

func (s *Store) indexPath() string {
	return filepath.Join(s.sessionsDir(), ".index", "sessions.jsonl")
}

func (s *Store) lock() (*fsio.Lock, error) {
	return fsio.Acquire(filepath.Join(s.Home, ".lock"), lockTimeout)
}

func (s *Store) readEvents() ([]Event, error) {
	var events []Event
	err := fsio.ScanJSONLines(s.eventsPath(), func(line []byte, n int) error {
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return wmerr.Wrap(wmerr.ParseError, err, "session event line %d", n).
				WithPath(s.eventsPath(), n)
		}
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// fold returns the latest snapshot per session id, in first-seen order.
func fold(events []Event) []Session {
	byID := make(map[string]int)
	var out []Session
	for _, e := range events {
		if idx, ok := byID[e.Session.ID]; ok {
			out[idx] = e.Session
			continue
		}
		byID[e.Session.ID] = len(out)
		out = append(out, e.Session)
	}
	return out
}

// Save appends a session_saved event. A session without an id gets a
// fresh one; saving an existing id updates its snapshot. The current
// pointer and index follow best-effort.
func (s *Store) Save(session Session) (*Session, error) {
	lock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	now := util.FormatRFC3339(s.Clock.Now())
	if session.ID == "" {
		session.ID = ids.NewSessionID(s.Clock)
		session.CreatedAt = now
	}
	if session.CreatedAt == "" {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.WorkingSet == nil {
		session.WorkingSet = []string{}
	}

	event := Event{Type: "session_saved", TS: now, Actor: s.Actor, Session: session}
	if err := fsio.AppendJSONLine(s.eventsPath(), event); err != nil {
		return nil, wmerr.IO(err, "appending session event")
	}
	s.setCurrent(session.ID)
	if err := s.RebuildIndex(); err != nil {
		diag.Warnf(s.Sink, "sessions", "index refresh: %v", err)
	}
	return &session, nil
}

func (s *Store) setCurrent(id string) {
	pointer := map[string]string{"id": id}
	data, err := json.Marshal(pointer)
	if err == nil {
		err = fsio.WriteFileAtomic(s.currentPath(), append(data, '\n'), 0o644)
	}
	if err != nil {
		diag.Warnf(s.Sink, "sessions", "current pointer: %v", err)
	}
}

// CurrentID returns the current session id, or "".
func (s *Store) CurrentID() string {
	data, err := os.ReadFile(s.currentPath())
	if err != nil {
		return ""
	}
	var pointer map[string]string
	if err := json.Unmarshal(data, &pointer); err != nil {
		return ""
	}
	return pointer["id"]
}

// List returns the latest snapshot per session, sorted by updated_at
// descending then id. The index is used when present, else the events
// are folded.
func (s *Store) List() ([]Session, error) {
	sessions, err := s.readIndex()
	if err != nil || sessions == nil {
		events, eventsErr := s.readEvents()
		if eventsErr != nil {
			return nil, eventsErr
		}
		sessions = fold(events)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt != sessions[j].UpdatedAt {
			return sessions[i].UpdatedAt > sessions[j].UpdatedAt
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// Show returns the latest snapshot for one session id, always from the
// event log.
func (s *Store) Show(id string) (*Session, error) {
	events, err := s.readEvents()
	if err != nil {
		return nil, err
	}
	for _, session := range fold(events) {
		if session.ID == id {
			return &session, nil
		}
	}
	return nil, wmerr.New(wmerr.NotFound, "session %s not found", id)
}

func (s *Store) readIndex() ([]Session, error) {
	if _, err := os.Stat(s.indexPath()); err != nil {
		return nil, nil
	}
	var sessions []Session
	err := fsio.ScanJSONLines(s.indexPath(), func(line []byte, n int) error {
		var session Session
		if err := json.Unmarshal(line, &session); err != nil {
			return wmerr.Wrap(wmerr.ParseError, err, "session index line %d", n)
		}
		sessions = append(sessions, session)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// RebuildIndex rewrites .index/sessions.jsonl from the event log,
// sorted by id.
func (s *Store) RebuildIndex() error {
	events, err := s.readEvents()
	if err != nil {
		return err
	}
	sessions := fold(events)
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	var data []byte
	for _, session := range sessions {
		line, err := json.Marshal(session)
		if err != nil {
			return wmerr.Wrap(wmerr.IOError, err, "serializing session %s", session.ID)
		}
		data = append(data, line...)
		data = append(data, '\n')
	}
	if err := fsio.WriteFileAtomic(s.indexPath(), data, 0o644); err != nil {
		return wmerr.IO(err, "writing session index")
	}
	return nil
}
