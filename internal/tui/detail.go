package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabgroupsync/internal/types"
)

// DetailModel shows information about the selected item.
type DetailModel struct {
	Width  int
	Height int
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle()
)

func field(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label) + "\n")
	b.WriteString(valueStyle.Render(value) + "\n\n")
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	age := time.Since(t)
	switch days := int(age.Hours() / 24); {
	case days > 0:
		return fmt.Sprintf("%d days ago", days)
	case int(age.Hours()) > 0:
		return fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		return "just now"
	}
}

// wrap breaks s into lines of at most width bytes.
func wrap(s string, width int) string {
	if width < 1 {
		return s
	}
	var lines []string
	for len(s) > width {
		lines = append(lines, s[:width])
		s = s[width:]
	}
	return strings.Join(append(lines, s), "\n")
}

func (m DetailModel) ViewTab(tab *types.SavedTabGroupTab) string {
	if tab == nil {
		return ""
	}
	var b strings.Builder

	title := tab.Title
	if len(title) > m.Width-2 && m.Width > 3 {
		title = title[:m.Width-3] + "…"
	}
	field(&b, "Title", title)
	field(&b, "URL", wrap(tab.URL, m.Width-2))
	field(&b, "Updated", ago(tab.UpdateTime))

	state := "closed"
	if tab.LocalTabID != 0 {
		state = fmt.Sprintf("open (tab %d)", tab.LocalTabID)
	}
	field(&b, "State", state)
	if tab.LastUpdaterCacheGUID != "" {
		field(&b, "Last changed by", tab.LastUpdaterCacheGUID)
	}
	return b.String()
}

func (m DetailModel) ViewGroup(group *types.SavedTabGroup) string {
	if group == nil {
		return ""
	}
	var b strings.Builder

	field(&b, "Group", groupLabel(group))
	field(&b, "Tabs", fmt.Sprintf("%d", len(group.Tabs)))
	field(&b, "Color", string(group.Color))

	state := "saved"
	if group.IsOpen() {
		state = "open as " + string(group.LocalGroupID)
	}
	if group.Pinned {
		state += ", pinned"
	}
	field(&b, "State", state)
	field(&b, "Updated", ago(group.UpdateTime))
	field(&b, "GUID", group.GUID.String())
	if group.CreatorCacheGUID != "" {
		field(&b, "Created by", group.CreatorCacheGUID)
	}
	return b.String()
}
