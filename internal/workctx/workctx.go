// Package workctx owns the context pointer at <root>/context.json: the
// active project, epic, objective, and ordered working set that steer
// readiness ordering and session snapshots.
package workctx

import (
	"encoding/json"
	"os"
	"strings"

	"workmesh/internal/fsio"
	"workmesh/internal/paths"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
)

// State is the persisted context pointer.
type State struct {
	ProjectID  string   `json:"project_id,omitempty"`
	EpicID     string   `json:"epic_id,omitempty"`
	Objective  string   `json:"objective,omitempty"`
	WorkingSet []string `json:"working_set"`
	UpdatedAt  string   `json:"updated_at,omitempty"`
}

// IsEmpty reports whether nothing is set.
func (s *State) IsEmpty() bool {
	return s.ProjectID == "" && s.EpicID == "" && s.Objective == "" && len(s.WorkingSet) == 0
}

// InWorkingSet reports whether id is present, case-insensitively.
func (s *State) InWorkingSet(id string) bool {
	return s.workingSetIndex(id) >= 0
}

// WorkingSetIndex returns the position of id in the working set, or -1.
// Readiness ordering uses this to preserve context order.
func (s *State) WorkingSetIndex(id string) int {
	return s.workingSetIndex(id)
}

func (s *State) workingSetIndex(id string) int {
	for i, have := range s.WorkingSet {
		if strings.EqualFold(have, id) {
			return i
		}
	}
	return -1
}

// AddToWorkingSet appends id unless already present. Returns true when
// the set changed.
func (s *State) AddToWorkingSet(id string) bool {
	if s.InWorkingSet(id) {
		return false
	}
	s.WorkingSet = append(s.WorkingSet, id)
	return true
}

// RemoveFromWorkingSet drops id. Returns true when the set changed.
func (s *State) RemoveFromWorkingSet(id string) bool {
	idx := s.workingSetIndex(id)
	if idx < 0 {
		return false
	}
	s.WorkingSet = append(s.WorkingSet[:idx], s.WorkingSet[idx+1:]...)
	return true
}

// Load reads the context pointer. When context.json is absent, the
// legacy focus.json is read instead; a missing file yields an empty
// state.
func Load(layout paths.Layout) (*State, error) {
	for _, path := range []string{layout.ContextPath(), layout.LegacyFocusPath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, wmerr.IO(err, "reading %s", path)
		}
		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, wmerr.Wrap(wmerr.ParseError, err, "parsing %s", path).WithPath(path, 0)
		}
		return &state, nil
	}
	return &State{}, nil
}

// Save writes the context pointer atomically, touching updated_at.
func Save(layout paths.Layout, state *State, clock util.Clock) error {
	state.UpdatedAt = util.FormatRFC3339(clock.Now())
	if state.WorkingSet == nil {
		state.WorkingSet = []string{}
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return wmerr.Wrap(wmerr.IOError, err, "serializing context")
	}
	if err := fsio.WriteFileAtomic(layout.ContextPath(), append(data, '\n'), 0o644); err != nil {
		return wmerr.IO(err, "writing context")
	}
	return nil
}

// Clear removes the context pointer and the legacy focus file.
func Clear(layout paths.Layout) error {
	for _, path := range []string{layout.ContextPath(), layout.LegacyFocusPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return wmerr.IO(err, "removing %s", path)
		}
	}
	return nil
}
