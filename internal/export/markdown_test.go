package export

import (
	"strings"
	"testing"
	"time"
)

func TestMarkdown(t *testing.T) {
	result := Markdown(sampleGroups(t))

	if !strings.Contains(result, "# Saved Tab Groups") {
		t.Errorf("missing header, got:\n%s", result)
	}
	if !strings.Contains(result, "## Research (2 tabs, blue · pinned, open)") {
		t.Errorf("missing Research heading, got:\n%s", result)
	}
	if !strings.Contains(result, "## Untitled (1 tab, grey)") {
		t.Errorf("missing untitled heading, got:\n%s", result)
	}
	if !strings.Contains(result, "- [Go docs](https://go.dev/doc) · 3d ago") {
		t.Errorf("missing Go docs link, got:\n%s", result)
	}
	if !strings.Contains(result, "- [https://example.com](https://example.com) · just now") {
		t.Errorf("untitled tab should fall back to its URL, got:\n%s", result)
	}
}

func TestMarkdownEmpty(t *testing.T) {
	result := Markdown(nil)
	if strings.Contains(result, "##") {
		t.Errorf("expected no group headings, got:\n%s", result)
	}
}

func TestRelativeTime(t *testing.T) {
	if got := relativeTime(time.Time{}); got != "never" {
		t.Errorf("zero time = %q, want never", got)
	}
}
