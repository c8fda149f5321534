package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"workmesh/internal/fsio"
	"workmesh/internal/paths"
	"workmesh/internal/task"
	"workmesh/internal/wmerr"
)

// RekeyRequest is the mapping an external mapper returns. Strict mode
// rewrites only structured fields; the default also rewrites free-text
// id mentions in task bodies.
type RekeyRequest struct {
	Mapping map[string]string `json:"mapping"`
	Strict  bool              `json:"strict"`
}

// ParseRekeyRequest accepts either the full request object or, for
// convenience, a bare mapping object.
func ParseRekeyRequest(input string) (*RekeyRequest, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, wmerr.New(wmerr.ParseError, "empty mapping input")
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, wmerr.Wrap(wmerr.ParseError, err, "invalid rekey JSON")
	}
	if _, ok := probe["mapping"]; ok {
		var req RekeyRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return nil, wmerr.Wrap(wmerr.ParseError, err, "invalid rekey request")
		}
		return &req, nil
	}
	var mapping map[string]string
	if err := json.Unmarshal([]byte(trimmed), &mapping); err != nil {
		return nil, wmerr.Wrap(wmerr.ParseError, err, "invalid rekey mapping")
	}
	return &RekeyRequest{Mapping: mapping}, nil
}

// RekeyPromptOptions shape the prompt payload.
type RekeyPromptOptions struct {
	IncludeBody    bool
	IncludeArchive bool
	Limit          int
}

type promptTask struct {
	ID            string             `json:"id"`
	UID           string             `json:"uid,omitempty"`
	Title         string             `json:"title"`
	Kind          string             `json:"kind,omitempty"`
	Status        string             `json:"status,omitempty"`
	Priority      string             `json:"priority,omitempty"`
	Phase         string             `json:"phase,omitempty"`
	Project       string             `json:"project,omitempty"`
	Initiative    string             `json:"initiative,omitempty"`
	Dependencies  []string           `json:"dependencies"`
	Relationships task.Relationships `json:"relationships"`
	Path          string             `json:"path,omitempty"`
	Body          string             `json:"body,omitempty"`
}

type graphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

type promptGraph struct {
	Nodes []string    `json:"nodes"`
	Edges []graphEdge `json:"edges"`
}

func exportGraph(tasks []*task.Task) promptGraph {
	graph := promptGraph{}
	for _, t := range tasks {
		graph.Nodes = append(graph.Nodes, t.ID)
		for _, dep := range t.Dependencies {
			graph.Edges = append(graph.Edges, graphEdge{From: t.ID, To: dep, Type: "depends_on"})
		}
		for _, id := range t.Relationships.BlockedBy {
			graph.Edges = append(graph.Edges, graphEdge{From: t.ID, To: id, Type: "blocked_by"})
		}
		for _, id := range t.Relationships.Parent {
			graph.Edges = append(graph.Edges, graphEdge{From: t.ID, To: id, Type: "parent"})
		}
		for _, id := range t.Relationships.Child {
			graph.Edges = append(graph.Edges, graphEdge{From: t.ID, To: id, Type: "child"})
		}
		for _, id := range t.Relationships.DiscoveredFrom {
			graph.Edges = append(graph.Edges, graphEdge{From: t.ID, To: id, Type: "discovered_from"})
		}
	}
	return graph
}

// RenderRekeyPrompt emits a self-contained instruction plus the task
// and graph payload for an external mapper.
func (m *Migrator) RenderRekeyPrompt(layout paths.Layout, opts RekeyPromptOptions) string {
	tasks := m.loadForRekey(layout, opts.IncludeArchive)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	if opts.Limit > 0 && len(tasks) > opts.Limit {
		tasks = tasks[:opts.Limit]
	}

	payload := make([]promptTask, 0, len(tasks))
	for _, t := range tasks {
		p := promptTask{
			ID:            t.ID,
			UID:           t.UID,
			Title:         t.Title,
			Kind:          t.Kind,
			Status:        t.Status,
			Priority:      t.Priority,
			Phase:         t.Phase,
			Project:       t.Project,
			Initiative:    t.Initiative,
			Dependencies:  t.Dependencies,
			Relationships: t.Relationships,
			Path:          layout.RelPath(t.Path),
		}
		if opts.IncludeBody {
			p.Body = t.Body
		}
		payload = append(payload, p)
	}
	data, err := json.MarshalIndent(map[string]interface{}{
		"tasks_dir":   layout.RelPath(layout.TasksDir),
		"tasks":       payload,
		"graph":       exportGraph(tasks),
		"strict_mode": false,
	}, "", "  ")
	if err != nil {
		data = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("You are helping migrate WorkMesh task IDs.\n\n")
	b.WriteString("GOAL\n- Produce a JSON mapping from old task IDs to new task IDs.\n\n")
	b.WriteString("HARD RULES\n")
	b.WriteString("- Return JSON only (no markdown).\n")
	b.WriteString("- Do not invent new tasks.\n")
	b.WriteString("- Every reference must be renumbered via the mapping.\n")
	b.WriteString("- Default behavior rewrites structured fields AND free-text mentions in task bodies.\n")
	b.WriteString("- If you want structured-only rewrites, set `strict: true`.\n\n")
	b.WriteString("OUTPUT JSON SCHEMA\n")
	b.WriteString("{\n  \"mapping\": { \"<old_id>\": \"<new_id>\" },\n  \"strict\": false\n}\n\n")
	b.WriteString("NEW ID FORMAT\n")
	b.WriteString("- Use `task-<init>-NNN` where `<init>` is exactly 4 lowercase letters and `NNN` is 3 digits.\n\n")
	b.WriteString("DATA (JSON)\n")
	b.Write(data)
	b.WriteString("\n")
	return b.String()
}

func (m *Migrator) loadForRekey(layout paths.Layout, includeArchive bool) []*task.Task {
	tasks := task.LoadAll(layout.TasksDir, m.Sink)
	if includeArchive {
		tasks = append(tasks, task.LoadArchived(layout.ArchiveDir(), m.Sink)...)
	}
	return tasks
}

// RekeyApplyOptions control RekeyApply. With Apply false the report
// lists the planned changes only.
type RekeyApplyOptions struct {
	Apply          bool
	Strict         bool
	IncludeArchive bool
}

// RekeyChange is one rekeyed task.
type RekeyChange struct {
	Path    string `json:"path"`
	OldID   string `json:"old_id"`
	NewID   string `json:"new_id"`
	Renamed bool   `json:"renamed"`
	NewPath string `json:"new_path,omitempty"`
}

// RekeyReport is the outcome of one RekeyApply run.
type RekeyReport struct {
	OK       bool          `json:"ok"`
	Apply    bool          `json:"apply"`
	Strict   bool          `json:"strict"`
	Changes  []RekeyChange `json:"changes"`
	Warnings []string      `json:"warnings,omitempty"`
}

var bodyTaskID = regexp.MustCompile(`(?i)task-[a-z0-9-]+`)

func isIDByte(b byte) bool {
	return b == '-' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// rewriteBody replaces exact mapping hits in free text. Matches must be
// bounded by non-id characters so task-0011 never matches task-001.
func rewriteBody(body string, mapping map[string]string) (string, int) {
	var out strings.Builder
	last := 0
	changed := 0
	for _, loc := range bodyTaskID.FindAllStringIndex(body, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isIDByte(body[start-1]) {
			continue
		}
		if end < len(body) && isIDByte(body[end]) {
			continue
		}
		newID, ok := mapping[strings.ToLower(body[start:end])]
		if !ok {
			continue
		}
		out.WriteString(body[last:start])
		out.WriteString(newID)
		last = end
		changed++
	}
	if changed == 0 {
		return body, 0
	}
	out.WriteString(body[last:])
	return out.String(), changed
}

func rewriteList(list []string, mapping map[string]string) int {
	changed := 0
	for i, id := range list {
		if newID, ok := mapping[strings.ToLower(strings.TrimSpace(id))]; ok && id != newID {
			list[i] = newID
			changed++
		}
	}
	return changed
}

// RekeyApply rewrites task ids per the mapping. Structured references
// always follow the mapping; bodies are rewritten too unless strict.
// Each file either takes the full rewrite or is left untouched with a
// warning, and re-running the same mapping is a no-op.
func (m *Migrator) RekeyApply(layout paths.Layout, req *RekeyRequest, opts RekeyApplyOptions) (*RekeyReport, error) {
	tasks := m.loadForRekey(layout, opts.IncludeArchive)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	mapping := make(map[string]string, len(req.Mapping))
	for old, newID := range req.Mapping {
		key := strings.ToLower(strings.TrimSpace(old))
		if key != "" {
			mapping[key] = strings.TrimSpace(newID)
		}
	}

	report := &RekeyReport{OK: true, Apply: opts.Apply, Strict: opts.Strict}

	existing := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		existing[strings.ToLower(t.ID)] = true
	}
	var missing []string
	for old := range mapping {
		if !existing[old] {
			missing = append(missing, old)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		if opts.Strict {
			return nil, wmerr.New(wmerr.NotFound, "mapping references missing task ids: %s",
				strings.Join(missing, ", "))
		}
		report.Warnings = append(report.Warnings,
			"continuing despite missing mapping ids: "+strings.Join(missing, ", "))
	}
	seen := make(map[string]bool, len(mapping))
	for _, newID := range mapping {
		key := strings.ToLower(newID)
		if seen[key] {
			return nil, wmerr.New(wmerr.DuplicateID, "duplicate new id in mapping: %s", newID)
		}
		seen[key] = true
	}

	if !opts.Apply {
		for _, t := range tasks {
			if newID, ok := mapping[strings.ToLower(t.ID)]; ok {
				report.Changes = append(report.Changes, RekeyChange{
					Path:  layout.RelPath(t.Path),
					OldID: t.ID,
					NewID: newID,
				})
			}
		}
		return report, nil
	}

	lock, err := fsio.Acquire(layout.LockPath(), lockTimeout)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	for _, t := range tasks {
		change, warn := m.rekeyFile(layout, t, mapping, opts.Strict)
		if warn != "" {
			report.Warnings = append(report.Warnings, warn)
			continue
		}
		if change != nil {
			report.Changes = append(report.Changes, *change)
		}
	}
	if len(report.Changes) == 0 && len(mapping) > 0 {
		report.Warnings = append(report.Warnings,
			"mapping applied, but no tasks were rekeyed (check id casing/spacing)")
	}
	return report, nil
}

// rekeyFile applies the full mapping to one task file. On any failure
// the file is left as it was and the failure comes back as a warning.
func (m *Migrator) rekeyFile(layout paths.Layout, t *task.Task, mapping map[string]string, strict bool) (*RekeyChange, string) {
	oldID := t.ID
	structured := rewriteList(t.Dependencies, mapping)
	structured += rewriteList(t.Relationships.BlockedBy, mapping)
	structured += rewriteList(t.Relationships.Parent, mapping)
	structured += rewriteList(t.Relationships.Child, mapping)
	structured += rewriteList(t.Relationships.DiscoveredFrom, mapping)

	bodyChanges := 0
	if !strict {
		t.Body, bodyChanges = rewriteBody(t.Body, mapping)
	}

	newID, renamed := mapping[strings.ToLower(oldID)]
	if renamed && newID != oldID {
		t.ID = newID
	} else {
		renamed = false
	}
	if structured == 0 && bodyChanges == 0 && !renamed {
		return nil, ""
	}

	// Decide the rename target before touching the file so a collision
	// leaves everything untouched.
	newPath := ""
	if renamed {
		base := filepath.Base(t.Path)
		if strings.HasPrefix(base, oldID) {
			candidate := filepath.Join(filepath.Dir(t.Path), newID+base[len(oldID):])
			if _, err := os.Stat(candidate); err == nil {
				return nil, fmt.Sprintf("%s: refusing to overwrite %s", oldID, candidate)
			}
			newPath = candidate
		}
	}

	// The rewrite lands at the final path so any failure leaves the old
	// file byte-identical.
	target := t.Path
	if newPath != "" {
		target = newPath
	}
	if err := fsio.WriteFileAtomic(target, []byte(t.Render()), 0o644); err != nil {
		return nil, fmt.Sprintf("%s: %v", oldID, err)
	}
	if newPath != "" {
		if err := os.Remove(t.Path); err != nil {
			os.Remove(newPath)
			return nil, fmt.Sprintf("%s: removing %s: %v", oldID, t.Path, err)
		}
	}
	if !renamed {
		// Reference-only rewrites are applied silently; the report
		// tracks identity changes.
		return nil, ""
	}
	return &RekeyChange{
		Path:    layout.RelPath(t.Path),
		OldID:   oldID,
		NewID:   newID,
		Renamed: newPath != "",
		NewPath: layout.RelPath(newPath),
	}, ""
}
