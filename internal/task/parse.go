package task

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"workmesh/internal/wmerr"
)

// SplitFrontMatter separates the front-matter block from the body. The
// file must open with a "---" line; the block runs to the next one.
func SplitFrontMatter(text string) (front, body string, err error) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", wmerr.New(wmerr.ParseError, "missing front matter delimiter")
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}
	return "", "", wmerr.New(wmerr.ParseError, "missing closing --- for front matter")
}

// Known front-matter keys. Anything else lands in Extra, order kept.
var knownKeys = map[string]bool{
	"uid": true, "id": true, "title": true, "kind": true,
	"status": true, "priority": true, "phase": true,
	"labels": true, "assignee": true, "dependencies": true,
	"relationships": true, "blocked_by": true, "parent": true,
	"child": true, "discovered_from": true,
	"project": true, "initiative": true, "external": true,
	"lease": true, "lease_owner": true, "lease_acquired_at": true,
	"lease_expires_at": true,
	"prd":              true, "created_date": true, "updated_date": true,
}

// Parse reads a task from its file text. Parsing is tolerant: both
// nested and flat relationship keys are accepted, list fields accept a
// scalar, and unknown keys are preserved for the next write.
func Parse(text, path string) (*Task, error) {
	front, body, err := SplitFrontMatter(text)
	if err != nil {
		if e, ok := err.(*wmerr.Error); ok {
			return nil, e.WithPath(path, 1)
		}
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(front), &doc); err != nil {
		return nil, wmerr.Wrap(wmerr.ParseError, err, "invalid front matter").WithPath(path, 2)
	}
	mapping := documentMapping(&doc)
	if mapping == nil && strings.TrimSpace(front) != "" {
		return nil, wmerr.New(wmerr.ParseError, "front matter is not a mapping").WithPath(path, 2)
	}

	t := &Task{Body: body, Path: path}
	if mapping != nil {
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			key := mapping.Content[i].Value
			value := mapping.Content[i+1]
			applyKey(t, key, value)
			if !knownKeys[key] {
				t.Extra = append(t.Extra, ExtraField{Key: key, Value: value})
			}
		}
	}
	if t.ID == "" && path != "" {
		t.ID = idFromFilename(path)
	}
	return t, nil
}

// ParseFile reads and parses a task file.
func ParseFile(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wmerr.IO(err, "reading %s", path)
	}
	return Parse(string(data), path)
}

func applyKey(t *Task, key string, value *yaml.Node) {
	switch key {
	case "uid":
		t.UID = scalarValue(value)
	case "id":
		t.ID = scalarValue(value)
	case "title":
		t.Title = scalarValue(value)
	case "kind":
		t.Kind = scalarValue(value)
	case "status":
		t.Status = scalarValue(value)
	case "priority":
		t.Priority = scalarValue(value)
	case "phase":
		t.Phase = scalarValue(value)
	case "labels":
		t.Labels = listValue(value)
	case "assignee":
		t.Assignee = listValue(value)
	case "dependencies":
		t.Dependencies = listValue(value)
	case "relationships":
		applyRelationships(&t.Relationships, value)
	case "blocked_by":
		t.Relationships.BlockedBy = listValue(value)
	case "parent":
		t.Relationships.Parent = listValue(value)
	case "child":
		t.Relationships.Child = listValue(value)
	case "discovered_from":
		t.Relationships.DiscoveredFrom = listValue(value)
	case "project":
		t.Project = scalarValue(value)
	case "initiative":
		t.Initiative = scalarValue(value)
	case "external":
		t.External = mapValue(value)
	case "lease":
		applyLease(t, value)
	case "lease_owner":
		ensureLease(t).Owner = scalarValue(value)
	case "lease_acquired_at":
		ensureLease(t).AcquiredAt = scalarValue(value)
	case "lease_expires_at":
		ensureLease(t).ExpiresAt = scalarValue(value)
	case "prd":
		t.PRD = scalarValue(value)
	case "created_date":
		t.CreatedDate = scalarValue(value)
	case "updated_date":
		t.UpdatedDate = scalarValue(value)
	}
}

func applyRelationships(r *Relationships, node *yaml.Node) {
	if node == nil || node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		value := node.Content[i+1]
		switch node.Content[i].Value {
		case "blocked_by":
			r.BlockedBy = listValue(value)
		case "parent":
			r.Parent = listValue(value)
		case "child":
			r.Child = listValue(value)
		case "discovered_from":
			r.DiscoveredFrom = listValue(value)
		}
	}
}

func applyLease(t *Task, node *yaml.Node) {
	if node == nil || node.Kind != yaml.MappingNode {
		return
	}
	lease := ensureLease(t)
	for i := 0; i+1 < len(node.Content); i += 2 {
		value := scalarValue(node.Content[i+1])
		switch node.Content[i].Value {
		case "owner":
			lease.Owner = value
		case "acquired_at":
			lease.AcquiredAt = value
		case "expires_at":
			lease.ExpiresAt = value
		}
	}
}

func ensureLease(t *Task) *Lease {
	if t.Lease == nil {
		t.Lease = &Lease{}
	}
	return t.Lease
}

func documentMapping(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind == yaml.MappingNode {
		return doc
	}
	return nil
}

func scalarValue(node *yaml.Node) string {
	if node == nil {
		return ""
	}
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return ""
		}
		return strings.TrimSpace(node.Value)
	case yaml.SequenceNode:
		items := listValue(node)
		return strings.Join(items, ", ")
	}
	return ""
}

// listValue accepts a YAML sequence, a bracketed string, or a bare
// comma-separated scalar.
func listValue(node *yaml.Node) []string {
	if node == nil {
		return nil
	}
	switch node.Kind {
	case yaml.SequenceNode:
		var out []string
		for _, item := range node.Content {
			if v := strings.TrimSpace(item.Value); v != "" {
				out = append(out, v)
			}
		}
		return out
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
		return splitListString(node.Value)
	}
	return nil
}

func splitListString(value string) []string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "[")
	value = strings.TrimSuffix(value, "]")
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func mapValue(node *yaml.Node) map[string]string {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	out := make(map[string]string, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out[node.Content[i].Value] = scalarValue(node.Content[i+1])
	}
	return out
}

// idFromFilename recovers an id from "<id> - <slug>.md" when the front
// matter omits one.
func idFromFilename(path string) string {
	base := path
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".md")
	if i := strings.Index(base, " - "); i >= 0 {
		return strings.TrimSpace(base[:i])
	}
	return strings.TrimSpace(base)
}
