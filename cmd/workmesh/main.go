// Package main provides the workmesh CLI.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"workmesh/internal/audit"
	"workmesh/internal/config"
	"workmesh/internal/diag"
	"workmesh/internal/gitio"
	"workmesh/internal/index"
	"workmesh/internal/migrate"
	"workmesh/internal/paths"
	"workmesh/internal/ready"
	"workmesh/internal/sessions"
	"workmesh/internal/store"
	"workmesh/internal/task"
	"workmesh/internal/truth"
	"workmesh/internal/util"
	"workmesh/internal/validate"
	"workmesh/internal/wmerr"
	"workmesh/internal/workctx"
	"workmesh/internal/worktree"
)

var rootCmd = &cobra.Command{
	Use:   "workmesh",
	Short: "WorkMesh - git-native tasks, context, and decisions",
	Long: `WorkMesh keeps tasks as plain Markdown files in your repository,
tracks the working context and decision ledger next to them, and saves
resumable sessions globally. Everything is a file; everything derived
is rebuildable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize WorkMesh in the current repository",
	RunE:  runInit,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show task counts per status",
	RunE:  runStatus,
}

// Task commands
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Task commands",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a task",
	Long: `Create a task file with an allocated id and uid.

The id is task-<init>-NNN where <init> derives from the current branch,
unless --id or --initiative overrides it.

Examples:
  workmesh task add --title "Wire payment retries" --priority P1
  workmesh task add --title "Spike" --id task-core-099`,
	RunE: runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskSetCmd = &cobra.Command{
	Use:   "set <id> <field> <value>",
	Short: "Set a task field or body section",
	Args:  cobra.ExactArgs(3),
	RunE:  runTaskSet,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Change a task's status",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskStatus,
}

var taskLabelCmd = &cobra.Command{
	Use:   "label",
	Short: "Label commands",
}

var taskLabelAddCmd = &cobra.Command{
	Use:   "add <id> <label>",
	Short: "Add a label",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskLabelAdd,
}

var taskLabelRemoveCmd = &cobra.Command{
	Use:   "remove <id> <label>",
	Short: "Remove a label",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskLabelRemove,
}

var taskDepCmd = &cobra.Command{
	Use:   "dep",
	Short: "Dependency commands",
}

var taskDepAddCmd = &cobra.Command{
	Use:   "add <id> <dep-id>",
	Short: "Add a dependency (rejects cycles)",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskDepAdd,
}

var taskDepRemoveCmd = &cobra.Command{
	Use:   "remove <id> <dep-id>",
	Short: "Remove a dependency",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskDepRemove,
}

var taskRelCmd = &cobra.Command{
	Use:   "rel",
	Short: "Relationship edge commands",
}

var taskRelAddCmd = &cobra.Command{
	Use:   "add <id> <blocked_by|parent|child|discovered_from> <target-id>",
	Short: "Add a relationship edge",
	Args:  cobra.ExactArgs(3),
	RunE:  runTaskRelAdd,
}

var taskRelRemoveCmd = &cobra.Command{
	Use:   "remove <id> <blocked_by|parent|child|discovered_from> <target-id>",
	Short: "Remove a relationship edge",
	Args:  cobra.ExactArgs(3),
	RunE:  runTaskRelRemove,
}

var taskNoteCmd = &cobra.Command{
	Use:   "note <id> <text...>",
	Short: "Append a note to a task",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTaskNote,
}

var taskClaimCmd = &cobra.Command{
	Use:   "claim <id>",
	Short: "Lease a task for an owner",
	RunE:  runTaskClaim,
	Args:  cobra.ExactArgs(1),
}

var taskReleaseCmd = &cobra.Command{
	Use:   "release <id>",
	Short: "Release a task's lease",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRelease,
}

var taskArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move terminal tasks under archive/YYYY-MM",
	RunE:  runTaskArchive,
}

var taskBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Apply one operation to many tasks, stopping on first failure",
}

var taskBulkStatusCmd = &cobra.Command{
	Use:   "status <status> <id...>",
	Short: "Set one status on many tasks",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTaskBulkStatus,
}

var taskBulkClaimCmd = &cobra.Command{
	Use:   "claim <id...>",
	Short: "Lease many tasks for one owner",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskBulkClaim,
}

var taskBulkLabelCmd = &cobra.Command{
	Use:   "label <label> <id...>",
	Short: "Add one label to many tasks",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTaskBulkLabel,
}

// Readiness commands
var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next ready task(s)",
	Long: `Show ready tasks ordered by context working set, active work,
then priority. A task is ready when it is non-terminal, all its
dependencies and blocked_by edges are Done, and nobody else holds an
active lease on it.`,
	RunE: runNext,
}

var blockersCmd = &cobra.Command{
	Use:   "blockers",
	Short: "Show what is blocking the most work",
	RunE:  runBlockers,
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show tasks grouped into lanes",
	RunE:  runBoard,
}

// Context commands
var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Working-context commands",
}

var contextShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the context pointer",
	RunE:  runContextShow,
}

var contextSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set context fields",
	RunE:  runContextSet,
}

var contextAddCmd = &cobra.Command{
	Use:   "add <task-id>",
	Short: "Add a task to the working set",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextAdd,
}

var contextRemoveCmd = &cobra.Command{
	Use:   "remove <task-id>",
	Short: "Remove a task from the working set",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextRemove,
}

var contextClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the context pointer",
	RunE:  runContextClear,
}

// Truth commands
var truthCmd = &cobra.Command{
	Use:   "truth",
	Short: "Decision ledger commands",
	Long: `Truths are validated decisions in an append-only ledger. They move
proposed -> accepted or rejected, and accepted -> superseded when a
successor that names them is accepted.`,
}

var truthProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a truth",
	RunE:  runTruthPropose,
}

var truthAcceptCmd = &cobra.Command{
	Use:   "accept <truth-id>",
	Short: "Accept a proposed truth",
	Args:  cobra.ExactArgs(1),
	RunE:  runTruthAccept,
}

var truthRejectCmd = &cobra.Command{
	Use:   "reject <truth-id>",
	Short: "Reject a proposed truth",
	Args:  cobra.ExactArgs(1),
	RunE:  runTruthReject,
}

var truthSupersedeCmd = &cobra.Command{
	Use:   "supersede <old-id> <new-id>",
	Short: "Mark an accepted truth as superseded by another",
	Args:  cobra.ExactArgs(2),
	RunE:  runTruthSupersede,
}

var truthShowCmd = &cobra.Command{
	Use:   "show <truth-id>",
	Short: "Show one truth with its history",
	Args:  cobra.ExactArgs(1),
	RunE:  runTruthShow,
}

var truthListCmd = &cobra.Command{
	Use:   "list",
	Short: "List truths",
	RunE:  runTruthList,
}

var truthRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild current.jsonl from the event log",
	RunE:  runTruthRebuild,
}

// Session commands
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Global session commands",
}

var sessionSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Snapshot the current work state",
	RunE:  runSessionSave,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions",
	RunE:  runSessionList,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume [session-id]",
	Short: "Show a session with its resume script",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionResume,
}

// Worktree commands
var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "Worktree binding commands",
}

var worktreeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a git worktree and register its binding",
	RunE:  runWorktreeCreate,
}

var worktreeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List worktree bindings",
	RunE:  runWorktreeList,
}

var worktreeAttachCmd = &cobra.Command{
	Use:   "attach <id-or-path>",
	Short: "Bind a worktree to a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorktreeAttach,
}

var worktreeDetachCmd = &cobra.Command{
	Use:   "detach <id-or-path>",
	Short: "Remove a worktree binding (the worktree stays on disk)",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorktreeDetach,
}

var worktreeDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check bindings against the filesystem and git",
	RunE:  runWorktreeDoctor,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the repository for structural problems",
	RunE:  runValidate,
}

// Migration commands
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Legacy layout and artifact migrations",
}

var migrateAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Detect legacy layouts and artifacts",
	RunE:  runMigrateAudit,
}

var migratePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the ordered migration steps",
	RunE:  runMigratePlan,
}

var migrateApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Execute the migration plan",
	Long: `Execute the migration plan against this repository.

Apply refuses to run without --yes; use --dry-run to preview and
--backup to archive the mesh directory first.`,
	RunE: runMigrateApply,
}

var rekeyCmd = &cobra.Command{
	Use:   "rekey",
	Short: "Re-identify tasks with an externally produced mapping",
}

var rekeyPromptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Emit the self-contained rekey payload (tasks + graph)",
	RunE:  runRekeyPrompt,
}

var rekeyApplyCmd = &cobra.Command{
	Use:   "apply [mapping-file]",
	Short: "Apply an id mapping (reads stdin without a file)",
	Long: `Apply a rekey mapping produced from the prompt payload.

Without --apply the changes are only planned. Strict mode leaves task
bodies alone and fails on mapping entries that match no task. Each file
is all-or-nothing: either its full mapping applies or it is untouched
and reported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRekeyApply,
}

// Index commands
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Derived task index commands",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rewrite the index from the task files",
	RunE:  runIndexRebuild,
}

var indexRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Update the index incrementally",
	RunE:  runIndexRefresh,
}

var indexVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Report index divergence without writing",
	RunE:  runIndexVerify,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log commands",
}

var auditRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recent audit events, newest first",
	RunE:  runAuditRecent,
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for workmesh.

To load completions:

Bash:
  $ source <(workmesh completion bash)

Zsh:
  $ source <(workmesh completion zsh)

Fish:
  $ workmesh completion fish | source

PowerShell:
  PS> workmesh completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:                  runCompletion,
}

var (
	// Persistent flags
	rootDir   string
	actorFlag string
	jsonOut   bool

	// Task add flags
	addTitle      string
	addKind       string
	addStatus     string
	addPriority   string
	addPhase      string
	addProject    string
	addInitiative string
	addPRD        string
	addID         string
	addBody       string
	addLabels     []string
	addDeps       []string
	addAssignees  []string

	// Task list flags
	listStatus    []string
	listPhase     []string
	listPriority  []string
	listLabel     []string
	listKind      string
	listProject   string
	listDependsOn string
	listSearch    string
	listReady     bool
	listBlocked   bool

	statusNoTouch bool

	// Lease flags
	claimOwner   string
	claimMinutes int
	claimStart   bool
	releaseOwner string
	releaseForce bool

	// Archive flags
	archiveBefore   string
	archiveStatuses []string
	archiveDryRun   bool

	// Bulk flags
	bulkOwner   string
	bulkMinutes int

	// Readiness flags
	nextOwner    string
	nextLimit    int
	blockersEpic string
	boardGroup   string
	boardFocus   bool

	// Context flags
	ctxProject   string
	ctxEpic      string
	ctxObjective string
	ctxTasks     []string

	// Truth flags
	truthTitle        string
	truthStatement    string
	truthConstraints  []string
	truthTags         []string
	truthSupersedes   string
	truthNote         string
	truthReason       string
	truthState        string
	truthTag          string
	scopeProject      string
	scopeEpic         string
	scopeFeature      string
	scopeSession      string
	scopeWorktreeID   string
	scopeWorktreePath string

	sessionObjective string

	// Worktree flags
	wtPath        string
	wtBranch      string
	wtSession     string
	wtProject     string
	wtEpic        string
	wtSeedContext bool
	attachSession string

	// Migration flags
	migInclude []string
	migExclude []string
	migDryRun  bool
	migBackup  bool
	migYes     bool

	// Rekey flags
	rekeyIncludeBody    bool
	rekeyIncludeArchive bool
	rekeyLimit          int
	rekeyRun            bool
	rekeyStrict         bool

	auditLimit int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Repository root (default: walk up from the current directory)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor recorded in audit and ledger events (default: $WORKMESH_ACTOR, then $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output machine-readable JSON")

	taskAddCmd.Flags().StringVar(&addTitle, "title", "", "Task title (required)")
	taskAddCmd.Flags().StringVar(&addKind, "kind", "", "Task kind (task, epic, bug, ...)")
	taskAddCmd.Flags().StringVar(&addStatus, "status", "", "Initial status (default: To Do)")
	taskAddCmd.Flags().StringVar(&addPriority, "priority", "", "Priority P0-P3 (default: P2)")
	taskAddCmd.Flags().StringVar(&addPhase, "phase", "", "Phase")
	taskAddCmd.Flags().StringVar(&addProject, "project", "", "Project id")
	taskAddCmd.Flags().StringVar(&addInitiative, "initiative", "", "Initiative code for id allocation")
	taskAddCmd.Flags().StringVar(&addPRD, "prd", "", "Repo-relative PRD path")
	taskAddCmd.Flags().StringVar(&addID, "id", "", "Explicit task id (fails on collision)")
	taskAddCmd.Flags().StringVar(&addBody, "body", "", "Task body (default: section template)")
	taskAddCmd.Flags().StringSliceVar(&addLabels, "label", nil, "Label (repeatable)")
	taskAddCmd.Flags().StringSliceVar(&addDeps, "dep", nil, "Dependency task id (repeatable)")
	taskAddCmd.Flags().StringSliceVar(&addAssignees, "assignee", nil, "Assignee (repeatable)")
	taskAddCmd.MarkFlagRequired("title")

	taskListCmd.Flags().StringSliceVar(&listStatus, "status", nil, "Filter by status (repeatable)")
	taskListCmd.Flags().StringSliceVar(&listPhase, "phase", nil, "Filter by phase (repeatable)")
	taskListCmd.Flags().StringSliceVar(&listPriority, "priority", nil, "Filter by priority (repeatable)")
	taskListCmd.Flags().StringSliceVar(&listLabel, "label", nil, "Filter by label, any-of (repeatable)")
	taskListCmd.Flags().StringVar(&listKind, "kind", "", "Filter by kind")
	taskListCmd.Flags().StringVar(&listProject, "project", "", "Filter by project")
	taskListCmd.Flags().StringVar(&listDependsOn, "depends-on", "", "Only tasks depending on this id")
	taskListCmd.Flags().StringVar(&listSearch, "search", "", "Match title or body, case-insensitive")
	taskListCmd.Flags().BoolVar(&listReady, "deps-ready", false, "Only tasks whose dependencies are all Done")
	taskListCmd.Flags().BoolVar(&listBlocked, "blocked", false, "Only tasks with an unmet dependency")

	taskStatusCmd.Flags().BoolVar(&statusNoTouch, "no-touch", false, "Do not touch updated_date (Done always touches)")

	taskClaimCmd.Flags().StringVar(&claimOwner, "owner", "", "Lease owner (default: actor)")
	taskClaimCmd.Flags().IntVar(&claimMinutes, "minutes", 0, "Lease duration in minutes (default: 60)")
	taskClaimCmd.Flags().BoolVar(&claimStart, "start", false, "Also move the task to In Progress")
	taskReleaseCmd.Flags().StringVar(&releaseOwner, "owner", "", "Lease owner (default: actor)")
	taskReleaseCmd.Flags().BoolVar(&releaseForce, "force", false, "Release a lease held by someone else")

	taskArchiveCmd.Flags().StringVar(&archiveBefore, "before", "", "Inclusive cutoff date YYYY-MM-DD (default: today)")
	taskArchiveCmd.Flags().StringSliceVar(&archiveStatuses, "status", nil, "Statuses to archive (default: terminal statuses)")
	taskArchiveCmd.Flags().BoolVar(&archiveDryRun, "dry-run", false, "Report what would move without moving")

	taskBulkClaimCmd.Flags().StringVar(&bulkOwner, "owner", "", "Lease owner (default: actor)")
	taskBulkClaimCmd.Flags().IntVar(&bulkMinutes, "minutes", 0, "Lease duration in minutes (default: 60)")

	nextCmd.Flags().StringVar(&nextOwner, "owner", "", "Owner for lease checks (default: actor)")
	nextCmd.Flags().IntVarP(&nextLimit, "limit", "n", 1, "Number of tasks to show (0 = all ready)")
	blockersCmd.Flags().StringVar(&blockersEpic, "epic", "", "Scope to one epic's subtree")
	boardCmd.Flags().StringVar(&boardGroup, "group", "status", "Group lanes by status, phase, or priority")
	boardCmd.Flags().BoolVar(&boardFocus, "focus", false, "Restrict to the context working set and epic subtree")

	contextSetCmd.Flags().StringVar(&ctxProject, "project", "", "Active project id")
	contextSetCmd.Flags().StringVar(&ctxEpic, "epic", "", "Active epic id")
	contextSetCmd.Flags().StringVar(&ctxObjective, "objective", "", "Current objective")
	contextSetCmd.Flags().StringSliceVar(&ctxTasks, "task", nil, "Working-set task id, replaces the set (repeatable)")

	truthProposeCmd.Flags().StringVar(&truthTitle, "title", "", "Truth title (required)")
	truthProposeCmd.Flags().StringVar(&truthStatement, "statement", "", "The decision statement")
	truthProposeCmd.Flags().StringSliceVar(&truthConstraints, "constraint", nil, "Constraint (repeatable)")
	truthProposeCmd.Flags().StringSliceVar(&truthTags, "tag", nil, "Tag (repeatable)")
	truthProposeCmd.Flags().StringVar(&truthSupersedes, "supersedes", "", "Truth id this proposal replaces on acceptance")
	truthProposeCmd.MarkFlagRequired("title")
	truthAcceptCmd.Flags().StringVar(&truthNote, "note", "", "Acceptance note")
	truthRejectCmd.Flags().StringVar(&truthNote, "note", "", "Rejection note")
	truthSupersedeCmd.Flags().StringVar(&truthReason, "reason", "", "Supersede reason")
	truthListCmd.Flags().StringVar(&truthState, "state", "", "Filter by state")
	truthListCmd.Flags().StringVar(&truthTag, "tag", "", "Filter by tag")
	for _, cmd := range []*cobra.Command{truthProposeCmd, truthListCmd} {
		cmd.Flags().StringVar(&scopeProject, "project", "", "Scope: project id")
		cmd.Flags().StringVar(&scopeEpic, "epic", "", "Scope: epic id")
		cmd.Flags().StringVar(&scopeFeature, "feature", "", "Scope: feature")
		cmd.Flags().StringVar(&scopeSession, "session", "", "Scope: session id")
		cmd.Flags().StringVar(&scopeWorktreeID, "worktree-id", "", "Scope: worktree binding id")
		cmd.Flags().StringVar(&scopeWorktreePath, "worktree-path", "", "Scope: worktree path")
	}

	sessionSaveCmd.Flags().StringVar(&sessionObjective, "objective", "", "Objective for this session")

	worktreeCreateCmd.Flags().StringVar(&wtPath, "path", "", "Worktree path (required)")
	worktreeCreateCmd.Flags().StringVar(&wtBranch, "branch", "", "Branch to check out, created if missing (required)")
	worktreeCreateCmd.Flags().StringVar(&wtSession, "session", "", "Session id to bind")
	worktreeCreateCmd.Flags().StringVar(&wtProject, "project", "", "Project id for the binding")
	worktreeCreateCmd.Flags().StringVar(&wtEpic, "epic", "", "Epic id for the binding")
	worktreeCreateCmd.Flags().BoolVar(&wtSeedContext, "seed-context", true, "Seed the new worktree's context pointer")
	worktreeCreateCmd.MarkFlagRequired("path")
	worktreeCreateCmd.MarkFlagRequired("branch")
	worktreeAttachCmd.Flags().StringVar(&attachSession, "session", "", "Session id (required)")
	worktreeAttachCmd.MarkFlagRequired("session")

	migratePlanCmd.Flags().StringSliceVar(&migInclude, "include", nil, "Only these action keys")
	migratePlanCmd.Flags().StringSliceVar(&migExclude, "exclude", nil, "Skip these action keys")
	migrateApplyCmd.Flags().StringSliceVar(&migInclude, "include", nil, "Only these action keys")
	migrateApplyCmd.Flags().StringSliceVar(&migExclude, "exclude", nil, "Skip these action keys")
	migrateApplyCmd.Flags().BoolVar(&migDryRun, "dry-run", false, "List the steps without executing them")
	migrateApplyCmd.Flags().BoolVar(&migBackup, "backup", false, "Archive the mesh dir before applying")
	migrateApplyCmd.Flags().BoolVar(&migYes, "yes", false, "Confirm the apply")

	rekeyPromptCmd.Flags().BoolVar(&rekeyIncludeBody, "include-body", false, "Include task bodies in the payload")
	rekeyPromptCmd.Flags().BoolVar(&rekeyIncludeArchive, "include-archive", false, "Include archived tasks")
	rekeyPromptCmd.Flags().IntVar(&rekeyLimit, "limit", 0, "Cap the number of tasks in the payload")
	rekeyApplyCmd.Flags().BoolVar(&rekeyRun, "apply", false, "Write the changes (default: plan only)")
	rekeyApplyCmd.Flags().BoolVar(&rekeyStrict, "strict", false, "Rewrite structured fields only; fail on unmatched ids")
	rekeyApplyCmd.Flags().BoolVar(&rekeyIncludeArchive, "include-archive", false, "Rekey archived tasks too")

	auditRecentCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of events to show")

	taskLabelCmd.AddCommand(taskLabelAddCmd)
	taskLabelCmd.AddCommand(taskLabelRemoveCmd)
	taskDepCmd.AddCommand(taskDepAddCmd)
	taskDepCmd.AddCommand(taskDepRemoveCmd)
	taskRelCmd.AddCommand(taskRelAddCmd)
	taskRelCmd.AddCommand(taskRelRemoveCmd)
	taskBulkCmd.AddCommand(taskBulkStatusCmd)
	taskBulkCmd.AddCommand(taskBulkClaimCmd)
	taskBulkCmd.AddCommand(taskBulkLabelCmd)

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskSetCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskLabelCmd)
	taskCmd.AddCommand(taskDepCmd)
	taskCmd.AddCommand(taskRelCmd)
	taskCmd.AddCommand(taskNoteCmd)
	taskCmd.AddCommand(taskClaimCmd)
	taskCmd.AddCommand(taskReleaseCmd)
	taskCmd.AddCommand(taskArchiveCmd)
	taskCmd.AddCommand(taskBulkCmd)

	contextCmd.AddCommand(contextShowCmd)
	contextCmd.AddCommand(contextSetCmd)
	contextCmd.AddCommand(contextAddCmd)
	contextCmd.AddCommand(contextRemoveCmd)
	contextCmd.AddCommand(contextClearCmd)

	truthCmd.AddCommand(truthProposeCmd)
	truthCmd.AddCommand(truthAcceptCmd)
	truthCmd.AddCommand(truthRejectCmd)
	truthCmd.AddCommand(truthSupersedeCmd)
	truthCmd.AddCommand(truthShowCmd)
	truthCmd.AddCommand(truthListCmd)
	truthCmd.AddCommand(truthRebuildCmd)

	sessionCmd.AddCommand(sessionSaveCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionResumeCmd)

	worktreeCmd.AddCommand(worktreeCreateCmd)
	worktreeCmd.AddCommand(worktreeListCmd)
	worktreeCmd.AddCommand(worktreeAttachCmd)
	worktreeCmd.AddCommand(worktreeDetachCmd)
	worktreeCmd.AddCommand(worktreeDoctorCmd)

	migrateCmd.AddCommand(migrateAuditCmd)
	migrateCmd.AddCommand(migratePlanCmd)
	migrateCmd.AddCommand(migrateApplyCmd)

	rekeyCmd.AddCommand(rekeyPromptCmd)
	rekeyCmd.AddCommand(rekeyApplyCmd)

	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexRefreshCmd)
	indexCmd.AddCommand(indexVerifyCmd)

	auditCmd.AddCommand(auditRecentCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(blockersCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(truthCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(worktreeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rekeyCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(completionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOut {
			printJSON(map[string]interface{}{"status": "error", "error": errorObject(err)})
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// Shared helpers

func actorName() string {
	if actorFlag != "" {
		return actorFlag
	}
	if v := strings.TrimSpace(os.Getenv("WORKMESH_ACTOR")); v != "" {
		return v
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "unknown"
}

func workRoot() string {
	if rootDir != "" {
		return rootDir
	}
	return "."
}

// repoRoot walks upward from the working root to the repository root.
func repoRoot() (string, error) {
	if root, ok := paths.FindRoot(workRoot()); ok {
		return root, nil
	}
	return "", wmerr.New(wmerr.NotFound, "no WorkMesh repository found from %s; run workmesh init", workRoot())
}

func resolveLayout() (paths.Layout, error) {
	root, err := repoRoot()
	if err != nil {
		return paths.Layout{}, err
	}
	return paths.Resolve(root)
}

func openStore() (*store.Store, error) {
	layout, err := resolveLayout()
	if err != nil {
		return nil, err
	}
	s := store.New(layout, actorName())
	if home, homeErr := paths.Home(); homeErr == nil && config.ResolveAutoSession(layout.RepoRoot, home) {
		cwd, _ := os.Getwd()
		s.AfterMutate = sessionStore(home).AutoUpdater(cwd, s.Git)
	}
	return s, nil
}

func sessionStore(home string) *sessions.Store {
	return &sessions.Store{Home: home, Clock: util.SystemClock{}, Actor: actorName(), Sink: diag.Stderr{}}
}

func openSessions() (*sessions.Store, error) {
	home, err := paths.Home()
	if err != nil {
		return nil, err
	}
	return sessionStore(home), nil
}

func openLedger() (*truth.Ledger, error) {
	layout, err := resolveLayout()
	if err != nil {
		return nil, err
	}
	return &truth.Ledger{Layout: layout, Clock: util.SystemClock{}, Actor: actorName(), Sink: diag.Stderr{}}, nil
}

func openRegistry() (*worktree.Registry, error) {
	layout, err := resolveLayout()
	if err != nil {
		return nil, err
	}
	return &worktree.Registry{Layout: layout, Clock: util.SystemClock{}, Git: gitio.System{}, Sink: diag.Stderr{}}, nil
}

func newMigrator() *migrate.Migrator {
	m := &migrate.Migrator{Clock: util.SystemClock{}, Sink: diag.Stderr{}, Actor: actorName()}
	if home, err := paths.Home(); err == nil {
		m.Home = home
	}
	return m
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func okResult(fields map[string]interface{}) error {
	out := map[string]interface{}{"status": "ok"}
	for k, v := range fields {
		out[k] = v
	}
	return printJSON(out)
}

func errorObject(err error) interface{} {
	var e *wmerr.Error
	if errors.As(err, &e) {
		return e
	}
	return &wmerr.Error{Kind: wmerr.KindOf(err), Message: err.Error()}
}

// taskView is the JSON shape of one task in CLI output.
type taskView struct {
	ID            string             `json:"id"`
	UID           string             `json:"uid,omitempty"`
	Title         string             `json:"title"`
	Kind          string             `json:"kind,omitempty"`
	Status        string             `json:"status"`
	Priority      string             `json:"priority,omitempty"`
	Phase         string             `json:"phase,omitempty"`
	Labels        []string           `json:"labels,omitempty"`
	Assignee      []string           `json:"assignee,omitempty"`
	Dependencies  []string           `json:"dependencies,omitempty"`
	Relationships task.Relationships `json:"relationships,omitempty"`
	Project       string             `json:"project,omitempty"`
	Initiative    string             `json:"initiative,omitempty"`
	Lease         *task.Lease        `json:"lease,omitempty"`
	CreatedDate   string             `json:"created_date,omitempty"`
	UpdatedDate   string             `json:"updated_date,omitempty"`
	PRD           string             `json:"prd,omitempty"`
	Path          string             `json:"path,omitempty"`
}

func viewOf(layout paths.Layout, t *task.Task) taskView {
	return taskView{
		ID:            t.ID,
		UID:           t.UID,
		Title:         t.Title,
		Kind:          t.Kind,
		Status:        t.Status,
		Priority:      t.Priority,
		Phase:         t.Phase,
		Labels:        t.Labels,
		Assignee:      t.Assignee,
		Dependencies:  t.Dependencies,
		Relationships: t.Relationships,
		Project:       t.Project,
		Initiative:    t.Initiative,
		Lease:         t.Lease,
		CreatedDate:   t.CreatedDate,
		UpdatedDate:   t.UpdatedDate,
		PRD:           t.PRD,
		Path:          layout.RelPath(t.Path),
	}
}

// emitTask is the shared output path of the single-task mutations.
func emitTask(layout paths.Layout, t *task.Task, verb string) error {
	if jsonOut {
		return okResult(map[string]interface{}{"task": viewOf(layout, t)})
	}
	fmt.Printf("%s %s: %s [%s]\n", verb, t.ID, t.Title, t.Status)
	return nil
}

func printTaskTable(tasks []*task.Task) {
	fmt.Printf("%-20s  %-12s  %-4s  %-10s  %s\n", "ID", "STATUS", "PRI", "PHASE", "TITLE")
	fmt.Println(strings.Repeat("-", 80))
	for _, t := range tasks {
		fmt.Printf("%-20s  %-12s  %-4s  %-10s  %s\n", t.ID, t.Status, t.Priority, t.Phase, t.Title)
	}
}

// Command implementations

func runInit(cmd *cobra.Command, args []string) error {
	layout, err := paths.ResolveOrInit(workRoot())
	if err != nil {
		return err
	}
	s := store.New(layout, actorName())
	if err := s.EnsureLayout(); err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"mesh_dir": layout.MeshDir, "tasks_dir": layout.TasksDir})
	}
	fmt.Printf("Initialized WorkMesh in %s\n", layout.MeshDir)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	counts := s.StatusCounts()
	if jsonOut {
		return okResult(map[string]interface{}{"counts": counts})
	}
	names := make([]string, 0, len(counts))
	total := 0
	for name, n := range counts {
		names = append(names, name)
		total += n
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-16s  %d\n", name, counts[name])
	}
	fmt.Printf("%-16s  %d\n", "total", total)
	return nil
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.Add(store.AddOptions{
		ID:           addID,
		Title:        addTitle,
		Kind:         addKind,
		Status:       addStatus,
		Priority:     addPriority,
		Phase:        addPhase,
		Dependencies: addDeps,
		Labels:       addLabels,
		Assignee:     addAssignees,
		Project:      addProject,
		Initiative:   addInitiative,
		PRD:          addPRD,
		Body:         addBody,
	})
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"task": viewOf(s.Layout, t)})
	}
	fmt.Printf("Created %s: %s\n", t.ID, t.Title)
	fmt.Printf("  %s\n", s.Layout.RelPath(t.Path))
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	tasks := s.List(store.Filter{
		Status:    listStatus,
		Phase:     listPhase,
		Priority:  listPriority,
		Labels:    listLabel,
		Kind:      listKind,
		Project:   listProject,
		DependsOn: listDependsOn,
		Search:    listSearch,
		Ready:     listReady,
		Blocked:   listBlocked,
	})
	if jsonOut {
		views := make([]taskView, 0, len(tasks))
		for _, t := range tasks {
			views = append(views, viewOf(s.Layout, t))
		}
		return okResult(map[string]interface{}{"count": len(views), "tasks": views})
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}
	printTaskTable(tasks)
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.Get(args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"task": viewOf(s.Layout, t), "body": t.Body})
	}
	fmt.Printf("%s  %s\n", t.ID, t.Title)
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("  uid:          %s\n", t.UID)
	fmt.Printf("  status:       %s\n", t.Status)
	if t.Kind != "" {
		fmt.Printf("  kind:         %s\n", t.Kind)
	}
	fmt.Printf("  priority:     %s\n", t.Priority)
	if t.Phase != "" {
		fmt.Printf("  phase:        %s\n", t.Phase)
	}
	if t.Project != "" {
		fmt.Printf("  project:      %s\n", t.Project)
	}
	if len(t.Labels) > 0 {
		fmt.Printf("  labels:       %s\n", strings.Join(t.Labels, ", "))
	}
	if len(t.Assignee) > 0 {
		fmt.Printf("  assignee:     %s\n", strings.Join(t.Assignee, ", "))
	}
	if len(t.Dependencies) > 0 {
		fmt.Printf("  dependencies: %s\n", strings.Join(t.Dependencies, ", "))
	}
	if len(t.Relationships.BlockedBy) > 0 {
		fmt.Printf("  blocked_by:   %s\n", strings.Join(t.Relationships.BlockedBy, ", "))
	}
	if len(t.Relationships.Parent) > 0 {
		fmt.Printf("  parent:       %s\n", strings.Join(t.Relationships.Parent, ", "))
	}
	if t.Lease != nil && t.Lease.Owner != "" {
		fmt.Printf("  lease:        %s until %s\n", t.Lease.Owner, t.Lease.ExpiresAt)
	}
	fmt.Printf("  updated:      %s\n", t.UpdatedDate)
	fmt.Printf("  file:         %s\n", s.Layout.RelPath(t.Path))
	if strings.TrimSpace(t.Body) != "" {
		fmt.Println()
		fmt.Println(t.Body)
	}
	return nil
}

func runTaskSet(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.SetField(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	return emitTask(s.Layout, t, "Updated")
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.SetStatus(args[0], args[1], !statusNoTouch)
	if err != nil {
		return err
	}
	return emitTask(s.Layout, t, "Updated")
}

func runTaskLabelAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.LabelAdd(args[0], args[1])
	if err != nil {
		return err
	}
	return emitTask(s.Layout, t, "Labeled")
}

func runTaskLabelRemove(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.LabelRemove(args[0], args[1])
	if err != nil {
		return err
	}
	return emitTask(s.Layout, t, "Unlabeled")
}

func runTaskDepAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.DepAdd(args[0], args[1])
	if err != nil {
		return err
	}
	return emitTask(s.Layout, t, "Updated")
}

func runTaskDepRemove(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.DepRemove(args[0], args[1])
	if err != nil {
		return err
	}
	return emitTask(s.Layout, t, "Updated")
}

func runTaskRelAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.RelAdd(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	return emitTask(s.Layout, t, "Updated")
}

func runTaskRelRemove(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.RelRemove(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	return emitTask(s.Layout, t, "Updated")
}

func runTaskNote(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	t, err := s.AddNote(args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	return emitTask(s.Layout, t, "Noted")
}

func runTaskClaim(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	owner := claimOwner
	if owner == "" {
		owner = actorName()
	}
	t, err := s.Claim(args[0], owner, claimMinutes, claimStart)
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"task": viewOf(s.Layout, t)})
	}
	fmt.Printf("Claimed %s for %s until %s\n", t.ID, t.Lease.Owner, t.Lease.ExpiresAt)
	return nil
}

func runTaskRelease(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	owner := releaseOwner
	if owner == "" {
		owner = actorName()
	}
	t, err := s.Release(args[0], owner, releaseForce)
	if err != nil {
		return err
	}
	return emitTask(s.Layout, t, "Released")
}

func runTaskArchive(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	before := s.Clock.Now()
	if archiveBefore != "" {
		parsed, ok := util.ParseTaskDate(archiveBefore)
		if !ok {
			return wmerr.New(wmerr.ParseError, "invalid --before date %q", archiveBefore)
		}
		before = parsed
	}
	result, err := s.Archive(store.ArchiveOptions{
		Before:   before,
		Statuses: archiveStatuses,
		DryRun:   archiveDryRun,
	})
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{
			"archived": result.Archived,
			"dry_run":  archiveDryRun,
		})
	}
	verb := "Archived"
	if archiveDryRun {
		verb = "Would archive"
	}
	fmt.Printf("%s %d task(s)\n", verb, len(result.Archived))
	for _, id := range result.Archived {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

// reportOutcomes renders the per-task results of a bulk operation.
func reportOutcomes(action string, outcomes []store.BulkOutcome) error {
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if jsonOut {
		results := make([]map[string]interface{}, 0, len(outcomes))
		for _, o := range outcomes {
			r := map[string]interface{}{"ref": o.Ref}
			if o.Err != nil {
				r["status"] = "error"
				r["error"] = errorObject(o.Err)
			} else {
				r["status"] = "ok"
				r["task_id"] = o.Task.ID
			}
			results = append(results, r)
		}
		status := "ok"
		if failed > 0 {
			status = "failed"
		}
		return printJSON(map[string]interface{}{
			"status":  status,
			"action":  action,
			"applied": len(outcomes) - failed,
			"failed":  failed,
			"results": results,
		})
	}
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Printf("%-20s  FAILED: %v\n", o.Ref, o.Err)
		} else {
			fmt.Printf("%-20s  ok\n", o.Task.ID)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%s stopped: %d applied, %d failed", action, len(outcomes)-failed, failed)
	}
	fmt.Printf("%d applied\n", len(outcomes))
	return nil
}

func runTaskBulkStatus(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	return reportOutcomes("bulk status", s.BulkSetStatus(args[1:], args[0]))
}

func runTaskBulkClaim(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	owner := bulkOwner
	if owner == "" {
		owner = actorName()
	}
	return reportOutcomes("bulk claim", s.BulkClaim(args, owner, bulkMinutes))
}

func runTaskBulkLabel(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	return reportOutcomes("bulk label", s.BulkLabelAdd(args[1:], args[0]))
}

func runNext(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	ctx, err := workctx.Load(s.Layout)
	if err != nil {
		return err
	}
	owner := nextOwner
	if owner == "" {
		owner = actorName()
	}
	tasks := ready.NextTasks(s.Load(), ctx, owner, s.Clock.Now(), nextLimit)
	if jsonOut {
		views := make([]taskView, 0, len(tasks))
		for _, t := range tasks {
			views = append(views, viewOf(s.Layout, t))
		}
		return okResult(map[string]interface{}{"count": len(views), "tasks": views})
	}
	if len(tasks) == 0 {
		fmt.Println("No ready tasks")
		return nil
	}
	printTaskTable(tasks)
	return nil
}

func runBlockers(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	blockers := ready.Blockers(s.Load(), blockersEpic)
	if jsonOut {
		type blockerView struct {
			ID       string   `json:"id"`
			Title    string   `json:"title,omitempty"`
			Status   string   `json:"status,omitempty"`
			Dangling bool     `json:"dangling,omitempty"`
			Blocked  []string `json:"blocked"`
		}
		views := make([]blockerView, 0, len(blockers))
		for _, b := range blockers {
			v := blockerView{ID: b.ID, Dangling: b.Dangling, Blocked: b.Blocked}
			if b.Task != nil {
				v.Title = b.Task.Title
				v.Status = b.Task.Status
			}
			views = append(views, v)
		}
		return okResult(map[string]interface{}{"count": len(views), "blockers": views})
	}
	if len(blockers) == 0 {
		fmt.Println("Nothing is blocked")
		return nil
	}
	fmt.Printf("%-20s  %-12s  %-7s  %s\n", "BLOCKER", "STATUS", "BLOCKS", "WAITING")
	fmt.Println(strings.Repeat("-", 80))
	for _, b := range blockers {
		status := "missing"
		if b.Task != nil {
			status = b.Task.Status
		}
		fmt.Printf("%-20s  %-12s  %-7d  %s\n", b.ID, status, len(b.Blocked), strings.Join(b.Blocked, ", "))
	}
	return nil
}

func runBoard(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	ctx, err := workctx.Load(s.Layout)
	if err != nil {
		return err
	}
	lanes := ready.Board(s.Load(), boardGroup, ctx, boardFocus)
	if jsonOut {
		type laneView struct {
			Name  string     `json:"name"`
			Tasks []taskView `json:"tasks"`
		}
		views := make([]laneView, 0, len(lanes))
		for _, lane := range lanes {
			v := laneView{Name: lane.Name, Tasks: []taskView{}}
			for _, t := range lane.Tasks {
				v.Tasks = append(v.Tasks, viewOf(s.Layout, t))
			}
			views = append(views, v)
		}
		return okResult(map[string]interface{}{"lanes": views})
	}
	for i, lane := range lanes {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s (%d)\n", lane.Name, len(lane.Tasks))
		fmt.Println(strings.Repeat("-", 60))
		for _, t := range lane.Tasks {
			fmt.Printf("  %-20s  %-4s  %s\n", t.ID, t.Priority, t.Title)
		}
	}
	return nil
}

func runContextShow(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	state, err := workctx.Load(layout)
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"context": state})
	}
	if state.IsEmpty() {
		fmt.Println("No context set")
		return nil
	}
	if state.ProjectID != "" {
		fmt.Printf("project:     %s\n", state.ProjectID)
	}
	if state.EpicID != "" {
		fmt.Printf("epic:        %s\n", state.EpicID)
	}
	if state.Objective != "" {
		fmt.Printf("objective:   %s\n", state.Objective)
	}
	if len(state.WorkingSet) > 0 {
		fmt.Printf("working set: %s\n", strings.Join(state.WorkingSet, ", "))
	}
	if state.UpdatedAt != "" {
		fmt.Printf("updated:     %s\n", state.UpdatedAt)
	}
	return nil
}

// saveContext persists the pointer and records the change best-effort.
func saveContext(layout paths.Layout, state *workctx.State) error {
	clock := util.SystemClock{}
	if err := workctx.Save(layout, state, clock); err != nil {
		return err
	}
	log := &audit.Log{Path: layout.AuditPath(), Clock: clock, Actor: actorName()}
	log.Append(diag.Stderr{}, "context_update", "", "", nil)
	return nil
}

func runContextSet(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	state, err := workctx.Load(layout)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("project") {
		state.ProjectID = ctxProject
	}
	if cmd.Flags().Changed("epic") {
		state.EpicID = ctxEpic
	}
	if cmd.Flags().Changed("objective") {
		state.Objective = ctxObjective
	}
	if cmd.Flags().Changed("task") {
		state.WorkingSet = ctxTasks
	}
	if err := saveContext(layout, state); err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"context": state})
	}
	fmt.Println("Context updated")
	return nil
}

func runContextAdd(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	state, err := workctx.Load(layout)
	if err != nil {
		return err
	}
	if !state.AddToWorkingSet(args[0]) {
		if jsonOut {
			return okResult(map[string]interface{}{"context": state})
		}
		fmt.Printf("%s already in the working set\n", args[0])
		return nil
	}
	if err := saveContext(layout, state); err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"context": state})
	}
	fmt.Printf("Added %s to the working set\n", args[0])
	return nil
}

func runContextRemove(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	state, err := workctx.Load(layout)
	if err != nil {
		return err
	}
	if !state.RemoveFromWorkingSet(args[0]) {
		return wmerr.New(wmerr.NotFound, "%s is not in the working set", args[0]).WithTask(args[0])
	}
	if err := saveContext(layout, state); err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"context": state})
	}
	fmt.Printf("Removed %s from the working set\n", args[0])
	return nil
}

func runContextClear(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	if err := workctx.Clear(layout); err != nil {
		return err
	}
	if jsonOut {
		return okResult(nil)
	}
	fmt.Println("Context cleared")
	return nil
}

func truthScope() truth.Scope {
	return truth.Scope{
		ProjectID:    scopeProject,
		EpicID:       scopeEpic,
		Feature:      scopeFeature,
		SessionID:    scopeSession,
		WorktreeID:   scopeWorktreeID,
		WorktreePath: scopeWorktreePath,
	}
}

// emitTruth is the shared output path of the truth mutations.
func emitTruth(r *truth.Record, verb string) error {
	if jsonOut {
		return okResult(map[string]interface{}{"truth": r})
	}
	fmt.Printf("%s %s: %s [%s]\n", verb, r.ID, r.Title, r.State)
	return nil
}

func runTruthPropose(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	r, err := l.Propose(truth.ProposeOptions{
		Title:       truthTitle,
		Statement:   truthStatement,
		Constraints: truthConstraints,
		Tags:        truthTags,
		Scope:       truthScope(),
		Supersedes:  truthSupersedes,
	})
	if err != nil {
		return err
	}
	return emitTruth(r, "Proposed")
}

func runTruthAccept(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	r, err := l.Accept(args[0], truthNote)
	if err != nil {
		return err
	}
	return emitTruth(r, "Accepted")
}

func runTruthReject(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	r, err := l.Reject(args[0], truthNote)
	if err != nil {
		return err
	}
	return emitTruth(r, "Rejected")
}

func runTruthSupersede(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	r, err := l.Supersede(args[0], args[1], truthReason)
	if err != nil {
		return err
	}
	return emitTruth(r, "Superseded")
}

func runTruthShow(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	r, err := l.Show(args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"truth": r})
	}
	fmt.Printf("%s  %s\n", r.ID, r.Title)
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("  state:     %s\n", r.State)
	if r.Statement != "" {
		fmt.Printf("  statement: %s\n", r.Statement)
	}
	for _, c := range r.Constraints {
		fmt.Printf("  constraint: %s\n", c)
	}
	if len(r.Tags) > 0 {
		fmt.Printf("  tags:      %s\n", strings.Join(r.Tags, ", "))
	}
	if r.Supersedes != "" {
		fmt.Printf("  supersedes: %s\n", r.Supersedes)
	}
	if r.SupersededBy != "" {
		fmt.Printf("  superseded by: %s\n", r.SupersededBy)
	}
	for _, h := range r.History {
		line := fmt.Sprintf("  %s  %s", h.TS, h.Type)
		if h.Actor != "" {
			line += "  by " + h.Actor
		}
		if h.Note != "" {
			line += "  (" + h.Note + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runTruthList(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	records, err := l.List(truth.Query{State: truthState, Tag: truthTag, Scope: truthScope()})
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"count": len(records), "truths": records})
	}
	if len(records) == 0 {
		fmt.Println("No truths found")
		return nil
	}
	fmt.Printf("%-32s  %-11s  %s\n", "ID", "STATE", "TITLE")
	fmt.Println(strings.Repeat("-", 80))
	for _, r := range records {
		fmt.Printf("%-32s  %-11s  %s\n", r.ID, r.State, r.Title)
	}
	return nil
}

func runTruthRebuild(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	if err := l.Rebuild(); err != nil {
		return err
	}
	if jsonOut {
		return okResult(nil)
	}
	fmt.Println("Truth projection rebuilt")
	return nil
}

// currentBinding looks the cwd up in the worktree registry, best-effort.
func currentBinding(cwd string) *sessions.BindingRef {
	layout, err := resolveLayout()
	if err != nil {
		return nil
	}
	reg := &worktree.Registry{Layout: layout, Clock: util.SystemClock{}, Git: gitio.System{}, Sink: diag.Stderr{}}
	b, err := reg.Find(cwd)
	if err != nil {
		return nil
	}
	return &sessions.BindingRef{ID: b.ID, Path: b.Path}
}

func runSessionSave(cmd *cobra.Command, args []string) error {
	ss, err := openSessions()
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	snapshot := ss.BuildSnapshot(sessions.SnapshotInput{
		Cwd:       cwd,
		Objective: sessionObjective,
		Git:       gitio.System{},
		Worktree:  currentBinding(cwd),
		Sink:      diag.Stderr{},
	})
	saved, err := ss.Save(snapshot)
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"session": saved})
	}
	fmt.Printf("Saved session %s\n", saved.ID)
	if saved.RepoRoot != "" {
		fmt.Printf("  repo:        %s\n", saved.RepoRoot)
	}
	if len(saved.WorkingSet) > 0 {
		fmt.Printf("  working set: %s\n", strings.Join(saved.WorkingSet, ", "))
	}
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	ss, err := openSessions()
	if err != nil {
		return err
	}
	list, err := ss.List()
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"count": len(list), "sessions": list})
	}
	if len(list) == 0 {
		fmt.Println("No sessions saved")
		return nil
	}
	current := ss.CurrentID()
	fmt.Printf("%-28s  %-20s  %-12s  %s\n", "ID", "UPDATED", "EPIC", "OBJECTIVE")
	fmt.Println(strings.Repeat("-", 90))
	for _, s := range list {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		fmt.Printf("%s %-26s  %-20s  %-12s  %s\n", marker, s.ID, s.UpdatedAt, s.EpicID, s.Objective)
	}
	return nil
}

func printSession(s *sessions.Session) {
	fmt.Printf("%s\n", s.ID)
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("  cwd:         %s\n", s.Cwd)
	if s.RepoRoot != "" {
		fmt.Printf("  repo:        %s\n", s.RepoRoot)
	}
	if s.ProjectID != "" {
		fmt.Printf("  project:     %s\n", s.ProjectID)
	}
	if s.EpicID != "" {
		fmt.Printf("  epic:        %s\n", s.EpicID)
	}
	if s.Objective != "" {
		fmt.Printf("  objective:   %s\n", s.Objective)
	}
	if len(s.WorkingSet) > 0 {
		fmt.Printf("  working set: %s\n", strings.Join(s.WorkingSet, ", "))
	}
	if s.Git.Branch != "" || s.Git.HeadSHA != "" {
		fmt.Printf("  git:         %s @ %s (dirty: %v)\n", s.Git.Branch, shortSHA(s.Git.HeadSHA), s.Git.Dirty)
	}
	if len(s.TruthRefs) > 0 {
		fmt.Printf("  truths:      %s\n", strings.Join(s.TruthRefs, ", "))
	}
	if s.Worktree != nil {
		fmt.Printf("  worktree:    %s\n", s.Worktree.Path)
	}
	fmt.Printf("  updated:     %s\n", s.UpdatedAt)
}

// shortSHA safely truncates a commit hash to 12 characters.
func shortSHA(s string) string {
	if len(s) >= 12 {
		return s[:12]
	}
	return s
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	ss, err := openSessions()
	if err != nil {
		return err
	}
	s, err := ss.Show(args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"session": s})
	}
	printSession(s)
	return nil
}

func runSessionResume(cmd *cobra.Command, args []string) error {
	ss, err := openSessions()
	if err != nil {
		return err
	}
	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	r, err := ss.BuildResume(id)
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"session": r.Session, "script": r.Script})
	}
	printSession(&r.Session)
	fmt.Println()
	fmt.Println("Resume script:")
	for _, line := range r.Script {
		fmt.Printf("  %s\n", line)
	}
	return nil
}

func runWorktreeCreate(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	b, err := reg.Create(worktree.CreateOptions{
		Path:        wtPath,
		Branch:      wtBranch,
		SessionID:   wtSession,
		ProjectID:   wtProject,
		EpicID:      wtEpic,
		SeedContext: wtSeedContext,
	})
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"binding": b})
	}
	fmt.Printf("Created worktree %s on %s\n", b.Path, b.Branch)
	fmt.Printf("  binding: %s\n", b.ID)
	return nil
}

func runWorktreeList(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	bindings, err := reg.List()
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"count": len(bindings), "bindings": bindings})
	}
	if len(bindings) == 0 {
		fmt.Println("No worktrees registered")
		return nil
	}
	fmt.Printf("%-36s  %-20s  %-12s  %s\n", "ID", "BRANCH", "EPIC", "PATH")
	fmt.Println(strings.Repeat("-", 100))
	for _, b := range bindings {
		fmt.Printf("%-36s  %-20s  %-12s  %s\n", b.ID, b.Branch, b.EpicID, b.Path)
	}
	return nil
}

func runWorktreeAttach(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	b, err := reg.Attach(args[0], attachSession)
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"binding": b})
	}
	fmt.Printf("Attached session %s to %s\n", b.SessionID, b.Path)
	return nil
}

func runWorktreeDetach(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	if err := reg.Detach(args[0]); err != nil {
		return err
	}
	if jsonOut {
		return okResult(nil)
	}
	fmt.Printf("Detached %s\n", args[0])
	return nil
}

func runWorktreeDoctor(cmd *cobra.Command, args []string) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	problems, err := reg.Doctor()
	if err != nil {
		return err
	}
	if jsonOut {
		status := "ok"
		if len(problems) > 0 {
			status = "failed"
		}
		return printJSON(map[string]interface{}{"status": status, "problems": problems})
	}
	if len(problems) == 0 {
		fmt.Println("All worktree bindings are healthy")
		return nil
	}
	for _, p := range problems {
		fmt.Printf("%-36s  %s: %s\n", p.BindingID, p.Path, p.Issue)
	}
	return fmt.Errorf("%d worktree problem(s)", len(problems))
}

func runValidate(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	report, err := validate.Run(layout, diag.Stderr{})
	if err != nil {
		return err
	}
	if jsonOut {
		status := "ok"
		if !report.OK() {
			status = "failed"
		}
		return printJSON(map[string]interface{}{
			"status":   status,
			"errors":   report.Errors,
			"warnings": report.Warnings,
			"findings": report.Findings,
		})
	}
	if len(report.Findings) == 0 {
		fmt.Println("No problems found")
		return nil
	}
	fmt.Printf("%-8s  %-20s  %-20s  %s\n", "LEVEL", "CHECK", "TASK", "DETAIL")
	fmt.Println(strings.Repeat("-", 100))
	for _, f := range report.Findings {
		fmt.Printf("%-8s  %-20s  %-20s  %s\n", strings.ToUpper(f.Severity), f.Check, f.TaskID, f.Detail)
	}
	if !report.OK() {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", report.Errors, report.Warnings)
	}
	fmt.Printf("%d warning(s), no errors\n", report.Warnings)
	return nil
}

func runMigrateAudit(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	report, err := newMigrator().Audit(root)
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"report": report})
	}
	fmt.Printf("Layout: %s (%s)\n", report.Layout, report.MeshDir)
	if len(report.Findings) == 0 {
		fmt.Println("Nothing to migrate")
		return nil
	}
	fmt.Printf("%-12s  %-34s  %s\n", "SEVERITY", "FINDING", "ACTION")
	fmt.Println(strings.Repeat("-", 90))
	for _, f := range report.Findings {
		fmt.Printf("%-12s  %-34s  %s\n", f.Severity, f.ID, f.SuggestedAction)
	}
	return nil
}

func buildMigrationPlan() (string, *migrate.Plan, error) {
	root, err := repoRoot()
	if err != nil {
		return "", nil, err
	}
	report, err := newMigrator().Audit(root)
	if err != nil {
		return "", nil, err
	}
	plan := migrate.BuildPlan(report, migrate.PlanOptions{Include: migInclude, Exclude: migExclude})
	return root, plan, nil
}

func runMigratePlan(cmd *cobra.Command, args []string) error {
	_, plan, err := buildMigrationPlan()
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"plan": plan})
	}
	if len(plan.Steps) == 0 {
		fmt.Println("Nothing to migrate")
		return nil
	}
	for i, step := range plan.Steps {
		required := "recommended"
		if step.Required {
			required = "required"
		}
		fmt.Printf("%d. %-30s  %-12s  %s\n", i+1, step.Action, required, step.Reason)
	}
	for _, w := range plan.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}

func runMigrateApply(cmd *cobra.Command, args []string) error {
	root, plan, err := buildMigrationPlan()
	if err != nil {
		return err
	}
	if len(plan.Steps) == 0 {
		if jsonOut {
			return okResult(map[string]interface{}{"applied": []string{}})
		}
		fmt.Println("Nothing to migrate")
		return nil
	}
	if !migDryRun && !migYes {
		return fmt.Errorf("refusing to apply %d step(s) without --yes (use --dry-run to preview)", len(plan.Steps))
	}
	result, err := newMigrator().Apply(root, plan, migrate.ApplyOptions{DryRun: migDryRun, Backup: migBackup})
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"result": result})
	}
	for _, action := range result.Applied {
		fmt.Printf("applied: %s\n", action)
	}
	for _, action := range result.Skipped {
		fmt.Printf("skipped: %s\n", action)
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, b := range result.Backups {
		fmt.Printf("backup: %s\n", b)
	}
	return nil
}

func runRekeyPrompt(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	prompt := newMigrator().RenderRekeyPrompt(layout, migrate.RekeyPromptOptions{
		IncludeBody:    rekeyIncludeBody,
		IncludeArchive: rekeyIncludeArchive,
		Limit:          rekeyLimit,
	})
	fmt.Println(prompt)
	return nil
}

func runRekeyApply(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	var input []byte
	if len(args) == 1 {
		input, err = os.ReadFile(args[0])
		if err != nil {
			return wmerr.IO(err, "reading %s", args[0])
		}
	} else {
		input, err = io.ReadAll(os.Stdin)
		if err != nil {
			return wmerr.IO(err, "reading mapping from stdin")
		}
	}
	req, err := migrate.ParseRekeyRequest(string(input))
	if err != nil {
		return err
	}
	report, err := newMigrator().RekeyApply(layout, req, migrate.RekeyApplyOptions{
		Apply:          rekeyRun,
		Strict:         rekeyStrict || req.Strict,
		IncludeArchive: rekeyIncludeArchive,
	})
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"report": report})
	}
	verb := "Rekeyed"
	if !report.Apply {
		verb = "Would rekey"
	}
	fmt.Printf("%s %d task(s)\n", verb, len(report.Changes))
	for _, c := range report.Changes {
		fmt.Printf("  %s -> %s\n", c.OldID, c.NewID)
	}
	for _, w := range report.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	if err := index.Rebuild(layout, diag.Stderr{}); err != nil {
		return err
	}
	if jsonOut {
		return okResult(nil)
	}
	fmt.Println("Index rebuilt")
	return nil
}

func runIndexRefresh(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	if err := index.Refresh(layout, diag.Stderr{}); err != nil {
		return err
	}
	if jsonOut {
		return okResult(nil)
	}
	fmt.Println("Index refreshed")
	return nil
}

func runIndexVerify(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	drift, err := index.Verify(layout, diag.Stderr{})
	if err != nil {
		return err
	}
	if jsonOut {
		status := "ok"
		if len(drift) > 0 {
			status = "failed"
		}
		return printJSON(map[string]interface{}{"status": status, "drift": drift})
	}
	if len(drift) == 0 {
		fmt.Println("Index matches the task files")
		return nil
	}
	for _, line := range drift {
		fmt.Println(line)
	}
	return fmt.Errorf("index drift: %d divergence(s)", len(drift))
}

func runAuditRecent(cmd *cobra.Command, args []string) error {
	layout, err := resolveLayout()
	if err != nil {
		return err
	}
	events, err := audit.Recent(layout.AuditPath(), auditLimit)
	if err != nil {
		return err
	}
	if jsonOut {
		return okResult(map[string]interface{}{"count": len(events), "events": events})
	}
	if len(events) == 0 {
		fmt.Println("No audit events")
		return nil
	}
	fmt.Printf("%-25s  %-14s  %-20s  %s\n", "TS", "ACTION", "TASK", "ACTOR")
	fmt.Println(strings.Repeat("-", 80))
	for _, e := range events {
		fmt.Printf("%-25s  %-14s  %-20s  %s\n", e.TS, e.Action, e.TaskID, e.Actor)
	}
	return nil
}

func runCompletion(cmd *cobra.Command, args []string) error {
	switch args[0] {
	case "bash":
		return rootCmd.GenBashCompletion(os.Stdout)
	case "zsh":
		return rootCmd.GenZshCompletion(os.Stdout)
	case "fish":
		return rootCmd.GenFishCompletion(os.Stdout, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
	}
	return nil
}
