package truth

import (
	"regexp"
	"sort"
	"strings"

	"workmesh/internal/task"
	"workmesh/internal/util"
)

// LegacyCandidate is a decision note found outside the ledger, eligible
// for backfill as a proposed truth. The fingerprint keys idempotency:
// a candidate already carried by a "legacy:" tag is never re-proposed.
type LegacyCandidate struct {
	SourceType     string `json:"source_type"` // task_note or session_handoff
	SourceID       string `json:"source_id"`
	SourcePath     string `json:"source_path,omitempty"`
	Statement      string `json:"statement"`
	SuggestedTitle string `json:"suggested_title"`
	Fingerprint    string `json:"fingerprint"`
	Scope          Scope  `json:"scope"`
}

var decisionLine = regexp.MustCompile(`(?i)^(?:[-*]\s*)?(?:decision|truth)\s*:\s*(.+)$`)

// AuditLegacy scans task bodies for "Decision:" and "Truth:" lines and
// returns backfill candidates sorted by source then statement.
func AuditLegacy(tasks []*task.Task) []LegacyCandidate {
	var candidates []LegacyCandidate
	for _, t := range tasks {
		for _, line := range strings.Split(t.Body, "\n") {
			m := decisionLine.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			statement := strings.TrimSpace(m[1])
			if statement == "" {
				continue
			}
			candidates = append(candidates, LegacyCandidate{
				SourceType:     "task_note",
				SourceID:       t.ID,
				SourcePath:     t.Path,
				Statement:      statement,
				SuggestedTitle: SuggestTitle(statement),
				Fingerprint:    LegacyFingerprint("task_note", t.ID, statement),
				Scope: Scope{
					ProjectID: t.Project,
					EpicID:    t.ID,
					Feature:   t.ID,
				},
			})
		}
	}
	sortCandidates(candidates)
	return candidates
}

// SessionCandidate builds a backfill candidate from a session handoff
// decision line.
func SessionCandidate(sessionID, sourcePath, statement, projectID, epicID string) LegacyCandidate {
	statement = strings.TrimSpace(statement)
	return LegacyCandidate{
		SourceType:     "session_handoff",
		SourceID:       sessionID,
		SourcePath:     sourcePath,
		Statement:      statement,
		SuggestedTitle: SuggestTitle(statement),
		Fingerprint:    LegacyFingerprint("session_handoff", sessionID, statement),
		Scope: Scope{
			ProjectID: projectID,
			EpicID:    epicID,
			Feature:   epicID,
			SessionID: sessionID,
		},
	}
}

func sortCandidates(candidates []LegacyCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.SourceType != b.SourceType {
			return a.SourceType < b.SourceType
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.Statement < b.Statement
	})
}

// LegacyFingerprint hashes the candidate identity for dedup.
func LegacyFingerprint(sourceType, sourceID, text string) string {
	return util.Blake3HashHex([]byte(sourceType + "|" + sourceID + "|" + text))
}

// SuggestTitle truncates a statement to a short title on a word
// boundary.
func SuggestTitle(statement string) string {
	const maxLen = 60
	statement = strings.TrimSpace(statement)
	if len(statement) <= maxLen {
		return statement
	}
	cut := statement[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > 20 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// MigratedFingerprints returns the fingerprints already backfilled,
// read from "legacy:" tags on existing records.
func (l *Ledger) MigratedFingerprints() (map[string]bool, error) {
	records, _, err := l.state()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, r := range records {
		for _, tag := range r.Tags {
			if fp, ok := strings.CutPrefix(tag, "legacy:"); ok {
				out[fp] = true
			}
		}
	}
	return out, nil
}

// PlanBackfill filters candidates down to those not yet migrated.
func (l *Ledger) PlanBackfill(candidates []LegacyCandidate) ([]LegacyCandidate, error) {
	migrated, err := l.MigratedFingerprints()
	if err != nil {
		return nil, err
	}
	var pending []LegacyCandidate
	for _, c := range candidates {
		if !migrated[c.Fingerprint] {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// Backfill proposes each pending candidate as a new truth tagged with
// its legacy fingerprint. Candidates are never auto-accepted. Returns
// the new truth ids in order.
func (l *Ledger) Backfill(candidates []LegacyCandidate) ([]string, error) {
	pending, err := l.PlanBackfill(candidates)
	if err != nil {
		return nil, err
	}
	var created []string
	for _, c := range pending {
		r, err := l.Propose(ProposeOptions{
			Title:     c.SuggestedTitle,
			Statement: c.Statement,
			Tags:      []string{"legacy", "legacy:" + c.Fingerprint},
			Scope:     c.Scope,
		})
		if err != nil {
			return created, err
		}
		created = append(created, r.ID)
	}
	return created, nil
}
