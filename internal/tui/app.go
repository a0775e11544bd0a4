// Package tui is a terminal browser for saved tab groups. It runs next to
// the service and talks to it only through a Backend.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/types"
)

// --- Messages ---

type groupsLoadedMsg struct {
	groups []types.SavedTabGroup
	err    error
}

type groupsChangedMsg struct{}

type actionDoneMsg struct {
	status string
	err    error
}

const callTimeout = 5 * time.Second

// --- Command helpers ---

func loadGroups(b Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		groups, err := b.Groups(ctx)
		return groupsLoadedMsg{groups: groups, err: err}
	}
}

func listenChanges(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return groupsChangedMsg{}
	}
}

func openGroup(b Backend, guid uuid.UUID, title string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		local, err := b.Open(ctx, guid)
		return actionDoneMsg{status: fmt.Sprintf("opened %q as %s", title, local), err: err}
	}
}

func deleteGroup(b Backend, guid uuid.UUID, title string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		err := b.Delete(ctx, guid)
		return actionDoneMsg{status: fmt.Sprintf("deleted %q", title), err: err}
	}
}

func togglePin(b Backend, guid uuid.UUID, title string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		err := b.TogglePin(ctx, guid)
		return actionDoneMsg{status: fmt.Sprintf("toggled pin of %q", title), err: err}
	}
}

// --- Model ---

type Model struct {
	backend Backend
	title   string

	tree    TreeModel
	detail  DetailModel
	loading bool
	err     error
	status  string
	width   int
	height  int

	// guid awaiting delete confirmation
	confirm *uuid.UUID
}

// NewModel returns a browser over b. title is shown in the top bar.
func NewModel(b Backend, title string) Model {
	return Model{
		backend: b,
		title:   title,
		tree:    NewTreeModel(nil),
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(loadGroups(m.backend), listenChanges(m.backend.Changes()))
}

func (m Model) selectedGroup() (*types.SavedTabGroup, bool) {
	node := m.tree.SelectedNode()
	if node == nil {
		return nil, false
	}
	for i := range m.tree.Groups {
		if m.tree.Groups[i].GUID == node.Owner {
			return &m.tree.Groups[i], true
		}
	}
	return nil, false
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tree.Width = m.width * 55 / 100
		m.detail.Width = m.width - m.tree.Width - 4 // borders
		m.tree.Height = m.height - 5                // top bar + bottom bar
		m.detail.Height = m.tree.Height
		return m, nil

	case tea.KeyMsg:
		if m.confirm != nil {
			guid := *m.confirm
			m.confirm = nil
			if msg.String() != "y" {
				m.status = "delete cancelled"
				return m, nil
			}
			g, ok := m.selectedGroup()
			title := ""
			if ok && g.GUID == guid {
				title = groupLabel(g)
			}
			return m, deleteGroup(m.backend, guid, title)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			m.tree.MoveUp()
		case "down", "j":
			m.tree.MoveDown()
		case "h":
			m.tree.CollapseOrParent()
		case "l":
			m.tree.ExpandOrEnter()
		case " ":
			m.tree.Toggle()
		case "enter", "o":
			if g, ok := m.selectedGroup(); ok {
				m.status = "opening..."
				return m, openGroup(m.backend, g.GUID, groupLabel(g))
			}
		case "p":
			if g, ok := m.selectedGroup(); ok {
				return m, togglePin(m.backend, g.GUID, groupLabel(g))
			}
		case "d", "delete":
			if g, ok := m.selectedGroup(); ok {
				guid := g.GUID
				m.confirm = &guid
				m.status = fmt.Sprintf("delete %q? y/n", groupLabel(g))
			}
		case "r":
			return m, loadGroups(m.backend)
		}
		return m, nil

	case groupsLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.tree.Replace(msg.groups)
		}
		return m, nil

	case groupsChangedMsg:
		return m, tea.Batch(loadGroups(m.backend), listenChanges(m.backend.Changes()))

	case actionDoneMsg:
		if msg.err != nil {
			m.status = "error: " + msg.err.Error()
		} else {
			m.status = msg.status
		}
		return m, loadGroups(m.backend)
	}

	return m, nil
}

func (m Model) View() string {
	if m.loading {
		return "\n  Loading saved groups...\n"
	}
	if m.err != nil {
		return fmt.Sprintf("\n  Error: %v\n\n  Press 'r' to retry, 'q' to quit.\n", m.err)
	}

	open, tabs := 0, 0
	for i := range m.tree.Groups {
		tabs += len(m.tree.Groups[i].Tabs)
		if m.tree.Groups[i].IsOpen() {
			open++
		}
	}
	topBarStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	topBar := topBarStyle.Render(fmt.Sprintf("%s  %d groups · %d open · %d tabs", m.title, len(m.tree.Groups), open, tabs))

	treeBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Width(m.tree.Width).
		Height(m.tree.Height)
	detailBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.detail.Width).
		Height(m.detail.Height)

	var detailContent string
	if node := m.tree.SelectedNode(); node != nil {
		if node.Tab != nil {
			detailContent = m.detail.ViewTab(node.Tab)
		} else {
			detailContent = m.detail.ViewGroup(node.Group)
		}
	}
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		treeBorder.Render(m.tree.View()),
		detailBorder.Render(detailContent))

	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	bottomText := "↑↓/jk navigate · h/l collapse/expand · enter open · p pin · d delete · r refresh · q quit"
	if m.status != "" {
		bottomText = m.status + "  │  " + bottomText
	}
	return lipgloss.JoinVertical(lipgloss.Left, topBar, panes, bottomBarStyle.Render(bottomText))
}
