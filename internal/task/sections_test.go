package task

import (
	"strings"
	"testing"
)

const sectionedBody = `Description:
--------------------------------------------------
- Original description.

Acceptance Criteria:
--------------------------------------------------
- Criterion one.
`

func TestReplaceSectionExisting(t *testing.T) {
	got := ReplaceSection(sectionedBody, "Description", "- Replaced.")
	if !strings.Contains(got, "- Replaced.") {
		t.Errorf("content not replaced:\n%s", got)
	}
	if strings.Contains(got, "Original description") {
		t.Errorf("old content kept:\n%s", got)
	}
	if !strings.Contains(got, "- Criterion one.") {
		t.Errorf("sibling section lost:\n%s", got)
	}
}

func TestReplaceSectionAppendsMissing(t *testing.T) {
	got := ReplaceSection(sectionedBody, "Definition of Done", "- Ship it.")
	if !strings.Contains(got, "Definition of Done:") {
		t.Errorf("section not created:\n%s", got)
	}
	if !strings.Contains(got, "- Ship it.") {
		t.Errorf("content missing:\n%s", got)
	}
}

func TestReplaceSectionStopsAtMarkdownHeader(t *testing.T) {
	body := "Description:\n---------\n- one\n\n## Review\n- keep\n"
	got := ReplaceSection(body, "Description", "- two")
	if !strings.Contains(got, "- keep") {
		t.Errorf("markdown section consumed:\n%s", got)
	}
	if strings.Contains(got, "- one") {
		t.Errorf("old content kept:\n%s", got)
	}
}

func TestAppendNote(t *testing.T) {
	got := AppendNote(sectionedBody, "first note")
	if !strings.Contains(got, "Notes:\n- first note") {
		t.Errorf("notes section not created:\n%s", got)
	}
	again := AppendNote(got, "second note")
	if !strings.Contains(again, "Notes:\n- second note\n- first note") {
		t.Errorf("note not prepended under header:\n%s", again)
	}
}

func TestAppendImplementationNote(t *testing.T) {
	got := AppendImplementationNote("", "wired the retry path")
	if !strings.Contains(got, "## Implementation Notes") {
		t.Errorf("header missing:\n%s", got)
	}
	if !strings.Contains(got, notesBegin) || !strings.Contains(got, notesEnd) {
		t.Errorf("markers missing:\n%s", got)
	}
	again := AppendImplementationNote(got, "second entry")
	beginCount := strings.Count(again, notesBegin)
	if beginCount != 1 {
		t.Errorf("marker duplicated %d times:\n%s", beginCount, again)
	}
	if strings.Index(again, "second entry") > strings.Index(again, notesEnd) {
		t.Errorf("note outside markers:\n%s", again)
	}
}

func TestReplaceImplementationNotes(t *testing.T) {
	body := AppendImplementationNote("", "old entry")
	got := ReplaceSection(body, "Implementation Notes", "new entry")
	if strings.Contains(got, "old entry") || !strings.Contains(got, "new entry") {
		t.Errorf("impl notes not replaced:\n%s", got)
	}
}

func TestSectionNameForField(t *testing.T) {
	cases := map[string]string{
		"description":         "Description",
		"acceptance-criteria": "Acceptance Criteria",
		"Definition of Done":  "Definition of Done",
		"impl":                "Implementation Notes",
		"status":              "",
	}
	for field, want := range cases {
		if got := SectionNameForField(field); got != want {
			t.Errorf("SectionNameForField(%q) = %q, want %q", field, got, want)
		}
	}
}
