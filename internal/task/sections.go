package task

import "strings"

// Bodies use two section styles: "## Name" headers and "Name:" headers
// followed by a dash line. Both are recognized; unknown sections pass
// through untouched.

const (
	notesBegin = "<!-- SECTION:NOTES:BEGIN -->"
	notesEnd   = "<!-- SECTION:NOTES:END -->"
)

var knownSectionHeaders = map[string]bool{
	"description:":        true,
	"acceptance criteria:": true,
	"definition of done:":  true,
	"notes:":               true,
}

// SectionNameForField maps a field-style name to its canonical section
// title, or "" when the field is not a section.
func SectionNameForField(field string) string {
	normalized := strings.ToLower(strings.TrimSpace(field))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	switch normalized {
	case "description":
		return "Description"
	case "acceptance_criteria":
		return "Acceptance Criteria"
	case "definition_of_done":
		return "Definition of Done"
	case "notes":
		return "Notes"
	case "implementation_notes", "impl":
		return "Implementation Notes"
	}
	return ""
}

// ReplaceSection rewrites one section of the body, appending the
// section when absent. Implementation Notes live between HTML marker
// comments; other sections use the "Name:" plus dash-line style.
func ReplaceSection(body, section, content string) string {
	section = strings.TrimSpace(section)
	if section == "" {
		return body
	}
	if strings.EqualFold(section, "implementation notes") || strings.EqualFold(section, "impl") {
		return replaceImplNotes(body, content)
	}

	lines := splitLines(body)
	header := strings.ToLower(section) + ":"
	headerIdx := -1
	for i, line := range lines {
		if strings.ToLower(strings.TrimSpace(line)) == header {
			headerIdx = i
			break
		}
	}

	if headerIdx < 0 {
		lines = padBlank(lines)
		lines = append(lines, section+":")
		lines = append(lines, strings.Repeat("-", 50))
		lines = append(lines, sectionContentLines(content)...)
		return finalizeLines(lines)
	}

	start := headerIdx + 1
	if start < len(lines) && isDashLine(lines[start]) {
		start++
	}
	end := len(lines)
	for i := start; i < len(lines); i++ {
		if isSectionHeader(lines, i) {
			end = i
			break
		}
	}

	out := make([]string, 0, len(lines))
	out = append(out, lines[:start]...)
	out = append(out, sectionContentLines(content)...)
	out = append(out, lines[end:]...)
	return finalizeLines(out)
}

// AppendNote adds a bullet to the Notes section, creating the section
// when absent.
func AppendNote(body, note string) string {
	lines := splitLines(body)
	noteLine := "- " + strings.TrimSpace(note)

	for i, line := range lines {
		if strings.TrimSpace(line) == "Notes:" {
			insertAt := i + 1
			if insertAt < len(lines) && isDashLine(lines[insertAt]) {
				insertAt++
			}
			out := make([]string, 0, len(lines)+1)
			out = append(out, lines[:insertAt]...)
			out = append(out, noteLine)
			out = append(out, lines[insertAt:]...)
			return finalizeLines(out)
		}
	}
	lines = padBlank(lines)
	lines = append(lines, "Notes:", noteLine)
	return finalizeLines(lines)
}

// AppendImplementationNote adds a line inside the Implementation Notes
// marker block, creating the block when absent.
func AppendImplementationNote(body, note string) string {
	lines := splitLines(body)
	beginIdx, endIdx := markerIndexes(lines)
	if beginIdx >= 0 && endIdx > beginIdx {
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:endIdx]...)
		out = append(out, note)
		out = append(out, lines[endIdx:]...)
		return finalizeLines(out)
	}
	lines = padBlank(lines)
	lines = append(lines, "## Implementation Notes", "", notesBegin, note, notesEnd)
	return finalizeLines(lines)
}

func replaceImplNotes(body, content string) string {
	lines := splitLines(body)
	beginIdx, endIdx := markerIndexes(lines)
	if beginIdx >= 0 && endIdx > beginIdx {
		out := make([]string, 0, len(lines))
		out = append(out, lines[:beginIdx+1]...)
		out = append(out, sectionContentLines(content)...)
		out = append(out, lines[endIdx:]...)
		return finalizeLines(out)
	}
	lines = padBlank(lines)
	lines = append(lines, "## Implementation Notes", "", notesBegin)
	lines = append(lines, sectionContentLines(content)...)
	lines = append(lines, notesEnd)
	return finalizeLines(lines)
}

func markerIndexes(lines []string) (begin, end int) {
	begin, end = -1, -1
	for i, line := range lines {
		switch strings.TrimSpace(line) {
		case notesBegin:
			if begin < 0 {
				begin = i
			}
		case notesEnd:
			if end < 0 {
				end = i
			}
		}
	}
	return begin, end
}

func isSectionHeader(lines []string, idx int) bool {
	stripped := strings.TrimSpace(lines[idx])
	if stripped == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(stripped), "## ") {
		return true
	}
	if strings.HasSuffix(stripped, ":") {
		if knownSectionHeaders[strings.ToLower(stripped)] {
			return true
		}
		for i := idx + 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "" {
				continue
			}
			return isDashLine(lines[i])
		}
	}
	return false
}

func isDashLine(line string) bool {
	stripped := strings.TrimSpace(line)
	if len(stripped) < 3 {
		return false
	}
	for _, r := range stripped {
		if r != '-' {
			return false
		}
	}
	return true
}

func sectionContentLines(content string) []string {
	trimmed := strings.TrimRight(content, "\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func splitLines(body string) []string {
	if body == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(body, "\n"), "\n")
}

func padBlank(lines []string) []string {
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) != "" {
		lines = append(lines, "")
	}
	return lines
}

func finalizeLines(lines []string) string {
	result := strings.Join(lines, "\n")
	result = strings.Trim(result, "\n")
	return result + "\n"
}
