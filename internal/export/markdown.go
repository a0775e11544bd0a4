package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/lotas/tabgroupsync/internal/types"
)

// Markdown formats saved groups as a markdown document.
func Markdown(groups []types.SavedTabGroup) string {
	var b strings.Builder

	b.WriteString("# Saved Tab Groups\n")
	fmt.Fprintf(&b, "> Exported %s\n", time.Now().Format("2006-01-02 15:04"))

	for _, g := range groups {
		n := len(g.Tabs)
		noun := "tabs"
		if n == 1 {
			noun = "tab"
		}
		title := g.Title
		if title == "" {
			title = "Untitled"
		}
		var marks []string
		if g.Pinned {
			marks = append(marks, "pinned")
		}
		if g.IsOpen() {
			marks = append(marks, "open")
		}
		suffix := ""
		if len(marks) > 0 {
			suffix = " · " + strings.Join(marks, ", ")
		}
		fmt.Fprintf(&b, "\n## %s (%d %s, %s%s)\n\n", title, n, noun, g.Color, suffix)

		for _, tab := range g.Tabs {
			label := tab.Title
			if label == "" {
				label = tab.URL
			}
			fmt.Fprintf(&b, "- [%s](%s) · %s\n", label, tab.URL, relativeTime(tab.UpdateTime))
		}
	}

	return b.String()
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
