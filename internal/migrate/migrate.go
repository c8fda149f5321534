// Package migrate detects legacy repository layouts and artifacts and
// converts them in three phases: audit finds problems, plan orders the
// conversions, apply executes them with optional backups.
package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"workmesh/internal/config"
	"workmesh/internal/diag"
	"workmesh/internal/fsio"
	"workmesh/internal/paths"
	"workmesh/internal/sessions"
	"workmesh/internal/task"
	"workmesh/internal/truth"
	"workmesh/internal/util"
	"workmesh/internal/wmerr"
	"workmesh/internal/workctx"
)

// Action keys, in apply order.
const (
	ActionLayout         = "layout_backlog_to_workmesh"
	ActionFocusToContext = "focus_to_context"
	ActionTruthBackfill  = "truth_backfill"
	ActionSessionEnrich  = "session_handoff_enrichment"
	ActionConfigCleanup  = "config_cleanup"
)

const lockTimeout = 5 * time.Second

var actionOrder = []string{
	ActionLayout,
	ActionFocusToContext,
	ActionTruthBackfill,
	ActionSessionEnrich,
	ActionConfigCleanup,
}

// Severities of an audit finding.
const (
	SeverityRequired    = "required"
	SeverityRecommended = "recommended"
)

// Finding is one audit observation with its suggested action.
type Finding struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Severity        string            `json:"severity"`
	Details         map[string]string `json:"details,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
}

// AuditReport is the output of Audit.
type AuditReport struct {
	RepoRoot string    `json:"repo_root"`
	MeshDir  string    `json:"mesh_dir"`
	Layout   string    `json:"layout"`
	Findings []Finding `json:"findings"`
}

// Migrator runs the three phases against one repository.
type Migrator struct {
	Clock util.Clock
	Sink  diag.Sink
	Actor string
	// Home is the developer-global root for session enrichment; empty
	// skips session actions.
	Home string
}

// layoutName classifies the mesh dir relative to the repo root.
func layoutName(layout paths.Layout) string {
	if layout.MeshDir == layout.RepoRoot {
		return "root-tasks"
	}
	return filepath.Base(layout.MeshDir)
}

func layoutIsLegacy(layout paths.Layout) bool {
	name := layoutName(layout)
	return name != "workmesh" && name != ".workmesh"
}

// Audit inspects the repository and returns the findings without
// mutating anything.
func (m *Migrator) Audit(root string) (*AuditReport, error) {
	layout, err := paths.Resolve(root)
	if err != nil {
		return nil, err
	}
	report := &AuditReport{
		RepoRoot: layout.RepoRoot,
		MeshDir:  layout.MeshDir,
		Layout:   layoutName(layout),
	}

	if layoutIsLegacy(layout) {
		report.Findings = append(report.Findings, Finding{
			ID:       "legacy_layout",
			Title:    "Legacy task layout detected",
			Severity: SeverityRequired,
			Details: map[string]string{
				"layout": report.Layout,
				"from":   layout.MeshDir,
				"target": filepath.Join(layout.RepoRoot, "workmesh"),
			},
			SuggestedAction: ActionLayout,
		})
	}

	hasFocus := fileExists(layout.LegacyFocusPath())
	hasContext := fileExists(layout.ContextPath())
	if hasFocus {
		report.Findings = append(report.Findings, Finding{
			ID:       "legacy_focus",
			Title:    "Deprecated focus.json detected",
			Severity: SeverityRequired,
			Details: map[string]string{
				"path":        layout.LegacyFocusPath(),
				"replacement": layout.ContextPath(),
			},
			SuggestedAction: ActionFocusToContext,
		})
	} else if !hasContext {
		report.Findings = append(report.Findings, Finding{
			ID:              "missing_context",
			Title:           "No context.json found",
			Severity:        SeverityRecommended,
			Details:         map[string]string{"path": layout.ContextPath()},
			SuggestedAction: ActionFocusToContext,
		})
	}

	if cfg, err := config.Load(layout.RepoRoot); err == nil {
		if cfg.DoNotMigrate != nil && *cfg.DoNotMigrate {
			report.Findings = append(report.Findings, Finding{
				ID:              "deprecated_config_do_not_migrate",
				Title:           "Deprecated do_not_migrate=true config found",
				Severity:        SeverityRecommended,
				Details:         map[string]string{"config_root": layout.RepoRoot},
				SuggestedAction: ActionConfigCleanup,
			})
		}
	}

	tasks := task.LoadAll(layout.TasksDir, m.Sink)
	ledger := &truth.Ledger{Layout: layout, Clock: m.Clock, Actor: m.Actor, Sink: m.Sink}
	if pending, err := ledger.PlanBackfill(truth.AuditLegacy(tasks)); err == nil && len(pending) > 0 {
		report.Findings = append(report.Findings, Finding{
			ID:       "legacy_truth_candidates",
			Title:    "Legacy decision notes found for truth backfill",
			Severity: SeverityRecommended,
			Details: map[string]string{
				"candidate_count": fmt.Sprintf("%d", len(pending)),
			},
			SuggestedAction: ActionTruthBackfill,
		})
	}

	if m.Home != "" {
		store := m.sessionStore()
		if list, err := store.List(); err == nil {
			bare := 0
			for _, s := range list {
				if sameRoot(s.RepoRoot, layout.RepoRoot) && len(s.TruthRefs) == 0 &&
					(s.ProjectID != "" || s.EpicID != "") {
					bare++
				}
			}
			if bare > 0 {
				report.Findings = append(report.Findings, Finding{
					ID:       "sessions_missing_truth_refs",
					Title:    "Global sessions missing scoped truth references",
					Severity: SeverityRecommended,
					Details: map[string]string{
						"home":          m.Home,
						"missing_count": fmt.Sprintf("%d", bare),
					},
					SuggestedAction: ActionSessionEnrich,
				})
			}
		}
	}

	return report, nil
}

// PlanStep is one ordered conversion in a plan.
type PlanStep struct {
	Action   string `json:"action"`
	Required bool   `json:"required"`
	Reason   string `json:"reason"`
}

// Plan is the ordered list of conversions derived from an audit.
type Plan struct {
	RepoRoot string     `json:"repo_root"`
	Steps    []PlanStep `json:"steps"`
	Warnings []string   `json:"warnings,omitempty"`
}

// PlanOptions filter the actions a plan carries.
type PlanOptions struct {
	Include []string
	Exclude []string
}

var actionReasons = map[string]string{
	ActionLayout:         "normalize legacy task layout",
	ActionFocusToContext: "replace deprecated focus.json with context.json",
	ActionTruthBackfill:  "backfill legacy decision notes into the truth ledger",
	ActionSessionEnrich:  "attach scoped truth references to global sessions",
	ActionConfigCleanup:  "remove deprecated migration suppression flag",
}

// BuildPlan orders the audit's suggested actions, honoring include and
// exclude filters.
func BuildPlan(report *AuditReport, opts PlanOptions) *Plan {
	wanted := make(map[string]bool)
	for _, f := range report.Findings {
		if f.SuggestedAction != "" {
			wanted[f.SuggestedAction] = true
		}
	}
	include := toSet(opts.Include)
	exclude := toSet(opts.Exclude)

	plan := &Plan{RepoRoot: report.RepoRoot}
	for _, action := range actionOrder {
		if !wanted[action] {
			continue
		}
		if len(include) > 0 && !include[action] {
			continue
		}
		if exclude[action] {
			plan.Warnings = append(plan.Warnings, "excluded action "+action)
			continue
		}
		plan.Steps = append(plan.Steps, PlanStep{
			Action:   action,
			Required: action == ActionLayout || action == ActionFocusToContext,
			Reason:   actionReasons[action],
		})
	}
	return plan
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out[v] = true
		}
	}
	return out
}

// ApplyOptions control Apply. DryRun lists the work without touching
// files; Backup archives the mesh dir first.
type ApplyOptions struct {
	DryRun bool
	Backup bool
}

// ApplyResult reports what Apply did.
type ApplyResult struct {
	Applied  []string `json:"applied"`
	Skipped  []string `json:"skipped,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Backups  []string `json:"backups,omitempty"`
}

// Apply executes a plan under the repo lock.
func (m *Migrator) Apply(root string, plan *Plan, opts ApplyOptions) (*ApplyResult, error) {
	result := &ApplyResult{Warnings: append([]string(nil), plan.Warnings...)}
	if opts.DryRun {
		for _, step := range plan.Steps {
			result.Applied = append(result.Applied, step.Action+" (dry-run)")
		}
		return result, nil
	}

	layout, err := paths.Resolve(root)
	if err != nil {
		return nil, err
	}
	lock, err := fsio.Acquire(layout.LockPath(), lockTimeout)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if opts.Backup && len(plan.Steps) > 0 {
		backup, err := m.backupMeshDir(layout)
		if err != nil {
			return nil, err
		}
		result.Backups = append(result.Backups, backup)
	}

	for _, step := range plan.Steps {
		switch step.Action {
		case ActionLayout:
			layout, err = m.applyLayout(layout, result)
		case ActionFocusToContext:
			err = m.applyFocusToContext(layout, result)
		case ActionTruthBackfill:
			err = m.applyTruthBackfill(layout, result)
		case ActionSessionEnrich:
			err = m.applySessionEnrich(layout, result)
		case ActionConfigCleanup:
			err = m.applyConfigCleanup(layout, result)
		default:
			result.Warnings = append(result.Warnings, "unknown action "+step.Action)
			result.Skipped = append(result.Skipped, step.Action)
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (m *Migrator) applyLayout(layout paths.Layout, result *ApplyResult) (paths.Layout, error) {
	if !layoutIsLegacy(layout) {
		result.Skipped = append(result.Skipped, ActionLayout)
		return layout, nil
	}
	target := filepath.Join(layout.RepoRoot, "workmesh")
	if _, err := os.Stat(target); err == nil {
		return layout, wmerr.New(wmerr.ConfigError, "migration target %s already exists", target)
	}

	if layout.MeshDir == layout.RepoRoot {
		// Bare tasks/ at the repo root: assemble a fresh mesh dir and
		// move the pieces in.
		if err := os.MkdirAll(target, 0o755); err != nil {
			return layout, wmerr.IO(err, "creating %s", target)
		}
		if err := os.Rename(layout.TasksDir, filepath.Join(target, "tasks")); err != nil {
			return layout, wmerr.IO(err, "moving %s", layout.TasksDir)
		}
		for _, name := range []string{".audit.log", ".index", "migrations"} {
			src := filepath.Join(layout.MeshDir, name)
			if _, err := os.Stat(src); err == nil {
				if err := os.Rename(src, filepath.Join(target, name)); err != nil {
					return layout, wmerr.IO(err, "moving %s", src)
				}
			}
		}
	} else {
		if err := os.Rename(layout.MeshDir, target); err != nil {
			return layout, wmerr.IO(err, "moving %s", layout.MeshDir)
		}
	}
	result.Applied = append(result.Applied, ActionLayout)
	migrated, err := paths.Resolve(layout.RepoRoot)
	if err != nil {
		return layout, err
	}
	// Backups taken before the rename moved with the mesh dir.
	for i, backup := range result.Backups {
		if rel, err := filepath.Rel(layout.MeshDir, backup); err == nil && !strings.HasPrefix(rel, "..") {
			result.Backups[i] = filepath.Join(migrated.MeshDir, rel)
		}
	}
	return migrated, nil
}

func (m *Migrator) applyFocusToContext(layout paths.Layout, result *ApplyResult) error {
	hasFocus := fileExists(layout.LegacyFocusPath())
	if fileExists(layout.ContextPath()) && !hasFocus {
		result.Skipped = append(result.Skipped, ActionFocusToContext)
		return nil
	}
	// Load falls back to focus.json, so this carries the legacy state
	// forward; a missing file yields an empty context.
	state, err := workctx.Load(layout)
	if err != nil {
		return err
	}
	if err := workctx.Save(layout, state, m.Clock); err != nil {
		return err
	}
	if hasFocus {
		if err := os.Remove(layout.LegacyFocusPath()); err != nil && !os.IsNotExist(err) {
			return wmerr.IO(err, "removing %s", layout.LegacyFocusPath())
		}
	}
	result.Applied = append(result.Applied, ActionFocusToContext)
	return nil
}

func (m *Migrator) applyTruthBackfill(layout paths.Layout, result *ApplyResult) error {
	tasks := task.LoadAll(layout.TasksDir, m.Sink)
	ledger := &truth.Ledger{Layout: layout, Clock: m.Clock, Actor: m.Actor, Sink: m.Sink}
	created, err := ledger.Backfill(truth.AuditLegacy(tasks))
	if err != nil {
		return err
	}
	if len(created) == 0 {
		result.Warnings = append(result.Warnings, "truth_backfill: no legacy candidates to migrate")
	}
	result.Applied = append(result.Applied, ActionTruthBackfill)
	return nil
}

func (m *Migrator) applySessionEnrich(layout paths.Layout, result *ApplyResult) error {
	if m.Home == "" {
		result.Skipped = append(result.Skipped, ActionSessionEnrich)
		return nil
	}
	store := m.sessionStore()
	list, err := store.List()
	if err != nil {
		return err
	}
	ledger := &truth.Ledger{Layout: layout, Clock: m.Clock, Actor: m.Actor, Sink: m.Sink}
	changed := 0
	for _, s := range list {
		if !sameRoot(s.RepoRoot, layout.RepoRoot) || len(s.TruthRefs) > 0 {
			continue
		}
		if s.ProjectID == "" && s.EpicID == "" {
			continue
		}
		refs := scopedRefs(ledger, s.ProjectID, s.EpicID)
		if len(refs) == 0 {
			continue
		}
		s.TruthRefs = refs
		if _, err := store.Save(s); err != nil {
			return err
		}
		changed++
	}
	if changed == 0 {
		result.Warnings = append(result.Warnings, "session_handoff_enrichment: nothing to enrich")
	}
	result.Applied = append(result.Applied, ActionSessionEnrich)
	return nil
}

func scopedRefs(ledger *truth.Ledger, projectID, epicID string) []string {
	records, err := ledger.List(truth.Query{State: truth.StateAccepted})
	if err != nil {
		return nil
	}
	var refs []string
	for _, r := range records {
		if projectID != "" && strings.EqualFold(r.Scope.ProjectID, projectID) {
			refs = append(refs, r.ID)
			continue
		}
		if epicID != "" && strings.EqualFold(r.Scope.EpicID, epicID) {
			refs = append(refs, r.ID)
		}
	}
	return refs
}

func (m *Migrator) applyConfigCleanup(layout paths.Layout, result *ApplyResult) error {
	cfg, err := config.Load(layout.RepoRoot)
	if err != nil {
		return err
	}
	if cfg.DoNotMigrate == nil || !*cfg.DoNotMigrate {
		result.Skipped = append(result.Skipped, ActionConfigCleanup)
		return nil
	}
	if err := config.UpdateDoNotMigrate(layout.RepoRoot, false); err != nil {
		return err
	}
	result.Applied = append(result.Applied, ActionConfigCleanup)
	return nil
}

func (m *Migrator) sessionStore() *sessions.Store {
	return &sessions.Store{Home: m.Home, Clock: m.Clock, Actor: m.Actor, Sink: m.Sink}
}

func sameRoot(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return filepath.Clean(a) == filepath.Clean(b)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
