package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lotas/tabgroupsync/internal/attach"
	"github.com/lotas/tabgroupsync/internal/types"
)

// Commander sends commands to the extension. *Server implements it.
type Commander interface {
	Send(msg OutgoingMsg) error
	Call(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error)
}

// tabHandle is the WebContents of a mirrored tab.
type tabHandle struct {
	id    types.LocalTabID
	url   string
	title string
	group types.LocalGroupID
	chain []string
}

func (t *tabHandle) TabID() types.LocalTabID { return t.id }
func (t *tabHandle) URL() string { return t.url }
func (t *tabHandle) Title() string { return t.title }
func (t *tabHandle) RedirectChain() []string { return t.chain }

// Mirror is the process-side copy of the extension's tab strip. Reads are
// answered from the copy; changes are sent to the extension and applied to
// the copy right away. Extension events keep it current. Like the rest of
// the tab group state it is only used on the sequence.
type Mirror struct {
	cmd     Commander
	tabs    []*tabHandle
	groups  map[types.LocalGroupID]GroupState
	nextNav int64
	timeout time.Duration
}

var _ attach.TabStrip = (*Mirror)(nil)

// NewMirror returns an empty Mirror driving cmd.
func NewMirror(cmd Commander) *Mirror {
	return &Mirror{
		cmd:     cmd,
		groups:  make(map[types.LocalGroupID]GroupState),
		timeout: 5 * time.Second,
	}
}

// Reset replaces the mirrored strip with snap. Handles of tabs that are
// still open stay valid.
func (m *Mirror) Reset(snap Snapshot) {
	old := make(map[types.LocalTabID]*tabHandle, len(m.tabs))
	for _, t := range m.tabs {
		old[t.id] = t
	}
	m.tabs = make([]*tabHandle, 0, len(snap.Tabs))
	for _, t := range snap.Tabs {
		h, ok := old[t.ID]
		if !ok {
			h = &tabHandle{id: t.ID}
		}
		h.url, h.title, h.group = t.URL, t.Title, t.Group
		m.tabs = append(m.tabs, h)
	}
	m.groups = make(map[types.LocalGroupID]GroupState, len(snap.Groups))
	for _, g := range snap.Groups {
		m.groups[g.ID] = g
	}
}

// GroupIDs returns the ids of all mirrored groups.
func (m *Mirror) GroupIDs() []types.LocalGroupID {
	out := make([]types.LocalGroupID, 0, len(m.groups))
	for id := range m.groups {
		out = append(out, id)
	}
	return out
}

// TabCount returns the number of mirrored tabs.
func (m *Mirror) TabCount() int { return len(m.tabs) }

func (m *Mirror) find(id types.LocalTabID) (int, *tabHandle) {
	for i, t := range m.tabs {
		if t.id == id {
			return i, t
		}
	}
	return -1, nil
}

func (m *Mirror) insertAt(t *tabHandle, index int) {
	if index < 0 || index > len(m.tabs) {
		index = len(m.tabs)
	}
	m.tabs = append(m.tabs, nil)
	copy(m.tabs[index+1:], m.tabs[index:])
	m.tabs[index] = t
}

func (m *Mirror) ensureGroup(id types.LocalGroupID) {
	if id == "" {
		return
	}
	if _, ok := m.groups[id]; !ok {
		m.groups[id] = GroupState{ID: id}
	}
}

// insertTab records a created tab. A tab already mirrored is updated and
// moved instead.
func (m *Mirror) insertTab(tab TabState, index int) {
	if i, t := m.find(tab.ID); t != nil {
		t.url, t.title, t.group = tab.URL, tab.Title, tab.Group
		m.tabs = append(m.tabs[:i], m.tabs[i+1:]...)
		m.insertAt(t, index)
	} else {
		m.insertAt(&tabHandle{id: tab.ID, url: tab.URL, title: tab.Title, group: tab.Group}, index)
	}
	m.ensureGroup(tab.Group)
}

func (m *Mirror) removeTab(id types.LocalTabID) bool {
	i, _ := m.find(id)
	if i < 0 {
		return false
	}
	m.tabs = append(m.tabs[:i], m.tabs[i+1:]...)
	return true
}

func (m *Mirror) moveTab(id types.LocalTabID, index int) bool {
	i, t := m.find(id)
	if i < 0 {
		return false
	}
	m.tabs = append(m.tabs[:i], m.tabs[i+1:]...)
	m.insertAt(t, index)
	return true
}

// setGroupOf moves a tab into group ("" ungroups it) and returns its
// previous group.
func (m *Mirror) setGroupOf(id types.LocalTabID, group types.LocalGroupID) (types.LocalGroupID, bool) {
	_, t := m.find(id)
	if t == nil {
		return "", false
	}
	old := t.group
	t.group = group
	m.ensureGroup(group)
	return old, true
}

func (m *Mirror) commitNavigation(id types.LocalTabID, url string, chain []string) {
	if _, t := m.find(id); t != nil {
		t.url = url
		t.chain = append([]string(nil), chain...)
	}
}

func (m *Mirror) setTitle(id types.LocalTabID, title string) {
	if _, t := m.find(id); t != nil {
		t.title = title
	}
}

func (m *Mirror) setGroup(g GroupState) { m.groups[g.ID] = g }

func (m *Mirror) dropGroup(id types.LocalGroupID) {
	delete(m.groups, id)
	for _, t := range m.tabs {
		if t.group == id {
			t.group = ""
		}
	}
}

// Group returns the mirrored visual data of a group.
func (m *Mirror) Group(id types.LocalGroupID) (GroupState, bool) {
	g, ok := m.groups[id]
	return g, ok
}

func (m *Mirror) call(msg OutgoingMsg) (IncomingMsg, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return m.cmd.Call(ctx, msg)
}

// Navigate asks the extension to load url in tab. The navigation id is
// assigned here and echoed back in the matching navigationFinished event.
func (m *Mirror) Navigate(tab types.LocalTabID, url string) (int64, error) {
	if _, t := m.find(tab); t == nil {
		return 0, fmt.Errorf("navigate tab %d: no such tab", tab)
	}
	m.nextNav++
	id := m.nextNav
	if err := m.cmd.Send(OutgoingMsg{Action: "navigate", TabID: int64(tab), URL: url, NavID: id}); err != nil {
		return 0, fmt.Errorf("navigate tab %d: %w", tab, err)
	}
	return id, nil
}

func (m *Mirror) OpenTab(url string, index int, background bool) (types.LocalTabID, error) {
	resp, err := m.call(OutgoingMsg{Action: "openTab", URL: url, Index: index, Background: background})
	if err != nil {
		return 0, fmt.Errorf("open tab: %w", err)
	}
	if resp.TabID == 0 {
		return 0, errors.New("open tab: response without tab id")
	}
	id := types.LocalTabID(resp.TabID)
	m.insertTab(TabState{ID: id, URL: url, Title: url}, index)
	return id, nil
}

func (m *Mirror) CloseTab(tab types.LocalTabID) error {
	if err := m.cmd.Send(OutgoingMsg{Action: "closeTab", TabID: int64(tab)}); err != nil {
		return fmt.Errorf("close tab %d: %w", tab, err)
	}
	m.removeTab(tab)
	return nil
}

func (m *Mirror) MoveTab(tab types.LocalTabID, index int) error {
	if err := m.cmd.Send(OutgoingMsg{Action: "moveTab", TabID: int64(tab), Index: index}); err != nil {
		return fmt.Errorf("move tab %d: %w", tab, err)
	}
	m.moveTab(tab, index)
	return nil
}

func (m *Mirror) WebContents(tab types.LocalTabID) (attach.WebContents, bool) {
	_, t := m.find(tab)
	if t == nil {
		return nil, false
	}
	return t, true
}

func (m *Mirror) TabIndex(tab types.LocalTabID) (int, bool) {
	i, _ := m.find(tab)
	return i, i >= 0
}

// GroupTabs puts tabs into group, creating the group if needed.
func (m *Mirror) GroupTabs(group types.LocalGroupID, tabs []types.LocalTabID) error {
	ids := make([]int64, len(tabs))
	for i, id := range tabs {
		ids[i] = int64(id)
	}
	if _, err := m.call(OutgoingMsg{Action: "groupTabs", GroupID: string(group), TabIDs: ids}); err != nil {
		return fmt.Errorf("group tabs: %w", err)
	}
	for _, id := range tabs {
		m.setGroupOf(id, group)
	}
	m.ensureGroup(group)
	return nil
}

func (m *Mirror) SetGroupVisualData(group types.LocalGroupID, title string, color types.Color) error {
	err := m.cmd.Send(OutgoingMsg{Action: "updateGroup", GroupID: string(group), Title: title, Color: string(color)})
	if err != nil {
		return fmt.Errorf("update group %s: %w", group, err)
	}
	m.groups[group] = GroupState{ID: group, Title: title, Color: color}
	return nil
}

func (m *Mirror) HasGroup(group types.LocalGroupID) bool {
	_, ok := m.groups[group]
	return ok
}

func (m *Mirror) GroupTabIDs(group types.LocalGroupID) []types.LocalTabID {
	var out []types.LocalTabID
	for _, t := range m.tabs {
		if t.group == group {
			out = append(out, t.id)
		}
	}
	return out
}

func (m *Mirror) FirstTabIndex(group types.LocalGroupID) (int, bool) {
	for i, t := range m.tabs {
		if t.group == group {
			return i, true
		}
	}
	return 0, false
}

func (m *Mirror) FocusGroup(group types.LocalGroupID) error {
	if err := m.cmd.Send(OutgoingMsg{Action: "focusGroup", GroupID: string(group)}); err != nil {
		return fmt.Errorf("focus group %s: %w", group, err)
	}
	return nil
}

// CloseGroup closes the group's tabs.
func (m *Mirror) CloseGroup(group types.LocalGroupID) error {
	if err := m.cmd.Send(OutgoingMsg{Action: "closeGroup", GroupID: string(group)}); err != nil {
		return fmt.Errorf("close group %s: %w", group, err)
	}
	kept := m.tabs[:0]
	for _, t := range m.tabs {
		if t.group != group {
			kept = append(kept, t)
		}
	}
	m.tabs = kept
	delete(m.groups, group)
	return nil
}
