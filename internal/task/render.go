package task

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Render produces the canonical file text: front-matter keys in a fixed
// order, list fields in flow form, unknown keys appended in the order
// they were read, then the body verbatim.
func (t *Task) Render() string {
	var b strings.Builder
	b.WriteString("---\n")
	if t.UID != "" {
		writeScalar(&b, "uid", t.UID)
	}
	writeScalar(&b, "id", t.ID)
	writeScalar(&b, "title", t.Title)
	if t.Kind != "" {
		writeScalar(&b, "kind", t.Kind)
	}
	writeScalar(&b, "status", t.Status)
	writeScalar(&b, "priority", t.Priority)
	writeScalar(&b, "phase", t.Phase)
	writeList(&b, "dependencies", t.Dependencies)
	writeList(&b, "labels", t.Labels)
	writeList(&b, "assignee", t.Assignee)
	if !t.Relationships.Empty() {
		b.WriteString("relationships:\n")
		writeNestedList(&b, "blocked_by", t.Relationships.BlockedBy)
		writeNestedList(&b, "parent", t.Relationships.Parent)
		writeNestedList(&b, "child", t.Relationships.Child)
		writeNestedList(&b, "discovered_from", t.Relationships.DiscoveredFrom)
	}
	if t.Project != "" {
		writeScalar(&b, "project", t.Project)
	}
	if t.Initiative != "" {
		writeScalar(&b, "initiative", t.Initiative)
	}
	if len(t.External) > 0 {
		b.WriteString("external:\n")
		keys := make([]string, 0, len(t.External))
		for k := range t.External {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, yamlScalar(t.External[k]))
		}
	}
	if t.Lease != nil && t.Lease.Owner != "" {
		b.WriteString("lease:\n")
		fmt.Fprintf(&b, "  owner: %s\n", yamlScalar(t.Lease.Owner))
		if t.Lease.AcquiredAt != "" {
			fmt.Fprintf(&b, "  acquired_at: %s\n", yamlScalar(t.Lease.AcquiredAt))
		}
		if t.Lease.ExpiresAt != "" {
			fmt.Fprintf(&b, "  expires_at: %s\n", yamlScalar(t.Lease.ExpiresAt))
		}
	}
	if t.PRD != "" {
		writeScalar(&b, "prd", t.PRD)
	}
	if t.CreatedDate != "" {
		writeScalar(&b, "created_date", t.CreatedDate)
	}
	if t.UpdatedDate != "" {
		writeScalar(&b, "updated_date", t.UpdatedDate)
	}
	for _, extra := range t.Extra {
		writeExtra(&b, extra)
	}
	b.WriteString("---\n")

	body := t.Body
	if body != "" {
		body = strings.TrimLeft(body, "\n")
		if !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		b.WriteString("\n")
		b.WriteString(body)
	}
	return b.String()
}

func writeScalar(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s: %s\n", key, yamlScalar(value))
}

func writeList(b *strings.Builder, key string, items []string) {
	fmt.Fprintf(b, "%s: %s\n", key, flowList(items))
}

func writeNestedList(b *strings.Builder, key string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s: %s\n", key, flowList(items))
}

func flowList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		if needsQuote(item) || strings.Contains(item, ",") {
			quoted[i] = strconv.Quote(item)
		} else {
			quoted[i] = item
		}
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func writeExtra(b *strings.Builder, extra ExtraField) {
	node := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: extra.Key},
			extra.Value,
		},
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		fmt.Fprintf(b, "%s: %s\n", extra.Key, yamlScalar(extra.Value.Value))
		return
	}
	enc.Close()
	b.WriteString(buf.String())
}

func yamlScalar(s string) string {
	if needsQuote(s) {
		return strconv.Quote(s)
	}
	return s
}

// needsQuote reports whether a scalar must be double-quoted to survive
// a YAML round trip. The rules are conservative; over-quoting is
// harmless, under-quoting corrupts files.
func needsQuote(s string) bool {
	if s == "" {
		return true
	}
	if s != strings.TrimSpace(s) {
		return true
	}
	if strings.Contains(s, ": ") || strings.HasSuffix(s, ":") {
		return true
	}
	if strings.Contains(s, " #") {
		return true
	}
	if strings.ContainsAny(s, "\"\n\t") {
		return true
	}
	switch s[0] {
	case '-', '?', ':', ',', '[', ']', '{', '}', '#', '&', '*', '!', '|', '>', '\'', '%', '@', '`':
		return true
	}
	switch strings.ToLower(s) {
	case "null", "~", "true", "false", "yes", "no", "on", "off":
		return true
	}
	return false
}
