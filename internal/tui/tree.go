package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/types"
)

// TreeNode represents a visible row in the tree.
type TreeNode struct {
	Group *types.SavedTabGroup    // non-nil for group headers
	Tab   *types.SavedTabGroupTab // non-nil for tab rows
	Owner uuid.UUID               // guid of the group the row belongs to
}

// TreeModel manages the collapsible saved group tree.
type TreeModel struct {
	Groups   []types.SavedTabGroup
	Expanded map[uuid.UUID]bool
	Cursor   int
	Offset   int // scroll offset
	Width    int
	Height   int
}

// NewTreeModel returns a tree with every group collapsed.
func NewTreeModel(groups []types.SavedTabGroup) TreeModel {
	return TreeModel{
		Groups:   groups,
		Expanded: make(map[uuid.UUID]bool),
	}
}

// VisibleNodes returns the flat list of currently visible nodes.
func (m TreeModel) VisibleNodes() []TreeNode {
	var nodes []TreeNode
	for gi := range m.Groups {
		g := &m.Groups[gi]
		nodes = append(nodes, TreeNode{Group: g, Owner: g.GUID})
		if m.Expanded[g.GUID] {
			for ti := range g.Tabs {
				nodes = append(nodes, TreeNode{Tab: &g.Tabs[ti], Owner: g.GUID})
			}
		}
	}
	return nodes
}

// SelectedNode returns the currently selected node, or nil.
func (m TreeModel) SelectedNode() *TreeNode {
	nodes := m.VisibleNodes()
	if m.Cursor >= 0 && m.Cursor < len(nodes) {
		return &nodes[m.Cursor]
	}
	return nil
}

func (m *TreeModel) visibleRows() int {
	if m.Height-2 < 1 {
		return 1
	}
	return m.Height - 2
}

// MoveUp moves the cursor up.
func (m *TreeModel) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
}

// MoveDown moves the cursor down.
func (m *TreeModel) MoveDown() {
	nodes := m.VisibleNodes()
	if m.Cursor < len(nodes)-1 {
		m.Cursor++
	}
	if m.Cursor >= m.Offset+m.visibleRows() {
		m.Offset = m.Cursor - m.visibleRows() + 1
	}
}

// Toggle expands/collapses the selected group.
func (m *TreeModel) Toggle() {
	node := m.SelectedNode()
	if node == nil || node.Group == nil {
		return
	}
	m.Expanded[node.Owner] = !m.Expanded[node.Owner]
}

// CollapseOrParent collapses the selected group, or jumps to the group
// header when the cursor is on a tab.
func (m *TreeModel) CollapseOrParent() {
	node := m.SelectedNode()
	if node == nil {
		return
	}
	if node.Group != nil {
		m.Expanded[node.Owner] = false
		return
	}
	nodes := m.VisibleNodes()
	for i := m.Cursor - 1; i >= 0; i-- {
		if nodes[i].Group != nil {
			m.Cursor = i
			if m.Cursor < m.Offset {
				m.Offset = m.Cursor
			}
			return
		}
	}
}

// ExpandOrEnter expands the selected group if collapsed, or moves into the
// first child tab if already expanded.
func (m *TreeModel) ExpandOrEnter() {
	node := m.SelectedNode()
	if node == nil || node.Group == nil {
		return
	}
	if !m.Expanded[node.Owner] {
		m.Expanded[node.Owner] = true
		return
	}
	nodes := m.VisibleNodes()
	if m.Cursor+1 < len(nodes) && nodes[m.Cursor+1].Tab != nil {
		m.MoveDown()
	}
}

// Replace swaps in a fresh group list, keeping expansion and clamping the
// cursor.
func (m *TreeModel) Replace(groups []types.SavedTabGroup) {
	m.Groups = groups
	n := len(m.VisibleNodes())
	if m.Cursor >= n {
		m.Cursor = n - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	if m.Offset > m.Cursor {
		m.Offset = m.Cursor
	}
}

var swatches = map[types.Color]lipgloss.Color{
	types.ColorGrey:   "245",
	types.ColorBlue:   "33",
	types.ColorRed:    "196",
	types.ColorYellow: "226",
	types.ColorGreen:  "42",
	types.ColorPink:   "212",
	types.ColorPurple: "135",
	types.ColorCyan:   "51",
	types.ColorOrange: "214",
}

func groupLabel(g *types.SavedTabGroup) string {
	if g.Title == "" {
		return "Untitled"
	}
	return g.Title
}

// View renders the tree.
func (m TreeModel) View() string {
	nodes := m.VisibleNodes()
	if len(nodes) == 0 {
		return "No saved groups."
	}

	visibleRows := m.Height
	if visibleRows < 1 {
		visibleRows = 20
	}
	end := m.Offset + visibleRows
	if end > len(nodes) {
		end = len(nodes)
	}

	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	groupStyle := lipgloss.NewStyle().Bold(true)
	openStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	var b strings.Builder
	for i := m.Offset; i < end; i++ {
		node := nodes[i]
		var line string

		if node.Group != nil {
			icon := "▶"
			if m.Expanded[node.Owner] {
				icon = "▼"
			}
			swatch := lipgloss.NewStyle().Foreground(swatches[node.Group.Color]).Render("●")
			line = swatch + " " + groupStyle.Render(fmt.Sprintf("%s %s (%d tabs)", icon, groupLabel(node.Group), len(node.Group.Tabs)))
			if node.Group.Pinned {
				line += " " + dimStyle.Render("pinned")
			}
			if node.Group.IsOpen() {
				line += " " + openStyle.Render("open")
			}
		} else if node.Tab != nil {
			prefix := "    "
			if node.Tab.LocalTabID != 0 {
				prefix = "  " + openStyle.Render("•") + " "
			}
			maxURLLen := m.Width - 6
			if maxURLLen < 10 {
				maxURLLen = 10
			}
			url := node.Tab.URL
			if len(url) > maxURLLen {
				url = url[:maxURLLen-1] + "…"
			}
			line = prefix + url
		}

		if i == m.Cursor {
			if pad := m.Width - lipgloss.Width(line); pad > 0 {
				line += strings.Repeat(" ", pad)
			}
			line = cursorStyle.Render(line)
		}

		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
