// Package ids allocates WorkMesh identifiers: ULID uids, truth and
// event ids, 4-letter initiative codes, and sequential task ids.
package ids

import (
	"crypto/rand"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"workmesh/internal/config"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
)

// NewUID returns a fresh ULID in canonical uppercase form.
func NewUID(clock util.Clock) string {
	return newULID(clock).String()
}

// NewTruthID returns a truth identifier, "truth-" plus a lowercase ULID.
func NewTruthID(clock util.Clock) string {
	return "truth-" + strings.ToLower(newULID(clock).String())
}

// NewEventID returns an identifier for a ledger event.
func NewEventID(clock util.Clock) string {
	return "evt-" + strings.ToLower(newULID(clock).String())
}

// NewSessionID returns a session identifier.
func NewSessionID(clock util.Clock) string {
	return newULID(clock).String()
}

// Monotonic entropy keeps ULIDs unique and ordered even when several
// are minted in the same millisecond.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newULID(clock util.Clock) ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(clock.Now()), entropy)
}

// BranchHint returns the branch name used for initiative derivation:
// the WORKMESH_BRANCH override when set, else branch.
func BranchHint(branch string) string {
	if v := strings.TrimSpace(os.Getenv("WORKMESH_BRANCH")); v != "" {
		return v
	}
	return branch
}

// InitiativeFromBranch derives the 4-letter initiative code from a
// branch hint: last path segment, letters only, lowercased, first four
// letters, padded by repeating when shorter. An empty result yields
// "work".
func InitiativeFromBranch(branch string) string {
	segment := branch
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	var letters []rune
	for _, r := range strings.ToLower(segment) {
		if r >= 'a' && r <= 'z' {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return "work"
	}
	code := make([]rune, 0, 4)
	for len(code) < 4 {
		code = append(code, letters[len(code)%len(letters)])
	}
	return string(code)
}

// EnsureBranchInitiative returns the initiative code frozen for branch,
// deriving and freezing a new one when absent. Codes already frozen for
// other branches are avoided by deterministic increment.
func EnsureBranchInitiative(repoRoot, branch string) (string, error) {
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return "", err
	}
	if code, ok := cfg.BranchInitiatives[branch]; ok && code != "" {
		return code, nil
	}
	taken := make(map[string]bool, len(cfg.BranchInitiatives))
	for _, code := range cfg.BranchInitiatives {
		taken[code] = true
	}
	code := InitiativeFromBranch(branch)
	for taken[code] {
		code = nextCode(code)
	}
	if cfg.BranchInitiatives == nil {
		cfg.BranchInitiatives = make(map[string]string)
	}
	cfg.BranchInitiatives[branch] = code
	if err := config.Write(repoRoot, cfg); err != nil {
		return "", err
	}
	return code, nil
}

// nextCode increments a 4-letter code in base 26, last letter first,
// carrying into earlier positions and wrapping z to a.
func nextCode(code string) string {
	chars := []byte(code)
	for i := len(chars) - 1; i >= 0; i-- {
		if chars[i] < 'z' {
			chars[i]++
			return string(chars)
		}
		chars[i] = 'a'
	}
	return string(chars)
}

var taskIDPattern = regexp.MustCompile(`^task-(?:([a-z]+)-)?(\d+)$`)

// ParseTaskID splits a task id into its initiative code and number.
// Legacy ids (task-NNN) yield an empty initiative.
func ParseTaskID(id string) (init string, n int, ok bool) {
	m := taskIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], n, true
}

// NextTaskID returns task-<init>-NNN with the lowest zero-padded
// integer not already used for that initiative among existing ids.
func NextTaskID(existing []string, init string) string {
	max := 0
	for _, id := range existing {
		code, n, ok := ParseTaskID(id)
		if ok && code == init && n > max {
			max = n
		}
	}
	return fmt.Sprintf("task-%s-%03d", init, max+1)
}

// ValidateExplicitID checks a caller-supplied id against the existing
// set, failing with DuplicateID on collision. Ids collide
// case-insensitively, matching every lookup path.
func ValidateExplicitID(existing []string, id string) error {
	for _, have := range existing {
		if strings.EqualFold(have, id) {
			return wmerr.New(wmerr.DuplicateID, "task id %s already exists", id).WithTask(id)
		}
	}
	return nil
}
