// Package model holds the in-memory collection of saved tab groups.
//
// The Model is the single source of truth for saved groups. Every mutation
// publishes exactly one Event to the subscribers, tagged with whether it
// came from this device (SourceLocal) or from sync (SourceRemote).
// Attribution and interaction-time bookkeeping are the exception: they
// change no user-visible data and publish nothing.
//
// A Model is not safe for concurrent use; callers run it on one sequence.
package model

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/types"
)

// EventKind identifies what happened to a group.
type EventKind int

const (
	EventAdded EventKind = iota
	EventUpdated
	EventRemoved
	EventLocalIDChanged
	EventLoaded
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	case EventLocalIDChanged:
		return "local_id_changed"
	case EventLoaded:
		return "loaded"
	}
	return "unknown"
}

// Event describes one model mutation.
type Event struct {
	Kind   EventKind
	Source types.TriggerSource

	// GroupID and LocalGroupID identify the group. For EventRemoved they
	// are the identity pair of the deleted group.
	GroupID      uuid.UUID
	LocalGroupID types.LocalGroupID

	// TabID is set when the mutation targeted a single tab.
	TabID uuid.UUID

	// Group is a copy of the group after the change (before, for removals).
	Group types.SavedTabGroup
}

// Model owns every SavedTabGroup by value.
type Model struct {
	groups      []types.SavedTabGroup
	subscribers map[int]func(Event)
	nextSubID   int
	loaded      bool
	now         func() time.Time
}

// New returns an empty, not yet loaded model.
func New() *Model {
	return &Model{
		subscribers: make(map[int]func(Event)),
		now:         time.Now,
	}
}

// Subscribe registers fn for every event. The returned func unsubscribes.
func (m *Model) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	return func() { delete(m.subscribers, id) }
}

func (m *Model) publish(ev Event) {
	ids := make([]int, 0, len(m.subscribers))
	for id := range m.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if fn, ok := m.subscribers[id]; ok {
			fn(ev)
		}
	}
}

func (m *Model) publishGroup(kind EventKind, source types.TriggerSource, g *types.SavedTabGroup, tabID uuid.UUID) {
	m.publish(Event{
		Kind:         kind,
		Source:       source,
		GroupID:      g.GUID,
		LocalGroupID: g.LocalGroupID,
		TabID:        tabID,
		Group:        g.Clone(),
	})
}

// IsLoaded reports whether LoadStoredEntries has run.
func (m *Model) IsLoaded() bool { return m.loaded }

// Count returns the number of saved groups.
func (m *Model) Count() int { return len(m.groups) }

// Groups returns copies of all groups in display order.
func (m *Model) Groups() []types.SavedTabGroup {
	out := make([]types.SavedTabGroup, len(m.groups))
	for i := range m.groups {
		out[i] = m.groups[i].Clone()
	}
	return out
}

// Contains reports whether a group with guid exists.
func (m *Model) Contains(guid uuid.UUID) bool {
	return m.index(guid) >= 0
}

// Get returns a copy of the group with guid.
func (m *Model) Get(guid uuid.UUID) (types.SavedTabGroup, bool) {
	if g := m.find(guid); g != nil {
		return g.Clone(), true
	}
	return types.SavedTabGroup{}, false
}

// GetByLocalID returns a copy of the group open as localID.
func (m *Model) GetByLocalID(localID types.LocalGroupID) (types.SavedTabGroup, bool) {
	if g := m.findLocal(localID); g != nil {
		return g.Clone(), true
	}
	return types.SavedTabGroup{}, false
}

func (m *Model) index(guid uuid.UUID) int {
	for i := range m.groups {
		if m.groups[i].GUID == guid {
			return i
		}
	}
	return -1
}

func (m *Model) find(guid uuid.UUID) *types.SavedTabGroup {
	if i := m.index(guid); i >= 0 {
		return &m.groups[i]
	}
	return nil
}

func (m *Model) findLocal(localID types.LocalGroupID) *types.SavedTabGroup {
	if localID == "" {
		return nil
	}
	for i := range m.groups {
		if m.groups[i].LocalGroupID == localID {
			return &m.groups[i]
		}
	}
	return nil
}

// LoadStoredEntries replaces the model contents with groups read from
// storage and publishes EventLoaded. Duplicate GUIDs keep the first entry.
func (m *Model) LoadStoredEntries(groups []types.SavedTabGroup) {
	m.groups = m.groups[:0]
	for _, g := range groups {
		if m.Contains(g.GUID) {
			applog.Warn("model.load.duplicate", "guid", g.GUID)
			continue
		}
		g = g.Clone()
		// Local ids do not survive a restart; the service re-establishes them.
		g.LocalGroupID = ""
		g.ClearLocalTabIDs()
		m.groups = append(m.groups, g)
	}
	m.sortAndRenumber()
	m.loaded = true
	applog.Info("model.loaded", "groups", len(m.groups))
	m.publish(Event{Kind: EventLoaded, Source: types.SourceLocal})
}

// Add inserts a group created on this device.
func (m *Model) Add(g types.SavedTabGroup) {
	m.add(g, types.SourceLocal)
}

// AddedFromSync inserts a group received from sync.
func (m *Model) AddedFromSync(g types.SavedTabGroup) {
	m.add(g, types.SourceRemote)
}

func (m *Model) add(g types.SavedTabGroup, source types.TriggerSource) {
	if m.Contains(g.GUID) {
		applog.Warn("model.add.duplicate", "guid", g.GUID, "source", source)
		return
	}
	g = g.Clone()
	if source == types.SourceRemote {
		// A remote device's tab-strip ids mean nothing here.
		g.LocalGroupID = ""
		g.ClearLocalTabIDs()
	}
	m.insertAt(g, g.Position)
	m.publishGroup(EventAdded, source, m.find(g.GUID), uuid.Nil)
}

func (m *Model) insertAt(g types.SavedTabGroup, index int) {
	if index < 0 || index > len(m.groups) {
		index = len(m.groups)
	}
	m.groups = append(m.groups, types.SavedTabGroup{})
	copy(m.groups[index+1:], m.groups[index:])
	m.groups[index] = g
	m.sortAndRenumber()
}

// sortAndRenumber keeps pinned groups ahead of unpinned ones, preserving
// relative order within each band, and assigns contiguous positions.
func (m *Model) sortAndRenumber() {
	sort.SliceStable(m.groups, func(i, j int) bool {
		return m.groups[i].Pinned && !m.groups[j].Pinned
	})
	for i := range m.groups {
		m.groups[i].Position = i
	}
}

// Remove deletes a group on behalf of this device.
func (m *Model) Remove(guid uuid.UUID) {
	m.remove(m.index(guid), types.SourceLocal)
}

// RemoveByLocalID deletes the group open as localID.
func (m *Model) RemoveByLocalID(localID types.LocalGroupID) {
	g := m.findLocal(localID)
	if g == nil {
		applog.Warn("model.remove.missing", "local_id", localID)
		return
	}
	m.remove(m.index(g.GUID), types.SourceLocal)
}

// RemovedFromSync deletes a group removed on another device.
func (m *Model) RemovedFromSync(guid uuid.UUID) {
	m.remove(m.index(guid), types.SourceRemote)
}

func (m *Model) remove(i int, source types.TriggerSource) {
	if i < 0 {
		// Removal is idempotent.
		return
	}
	removed := m.groups[i]
	m.groups = append(m.groups[:i], m.groups[i+1:]...)
	m.sortAndRenumber()
	m.publishGroup(EventRemoved, source, &removed, uuid.Nil)
}

// UpdateVisualData changes the title and color of a group locally.
func (m *Model) UpdateVisualData(guid uuid.UUID, title string, color types.Color) {
	m.updateVisualData(guid, title, color, types.SourceLocal)
}

// UpdatedVisualDataFromSync applies a remote title/color change.
func (m *Model) UpdatedVisualDataFromSync(guid uuid.UUID, title string, color types.Color) {
	m.updateVisualData(guid, title, color, types.SourceRemote)
}

func (m *Model) updateVisualData(guid uuid.UUID, title string, color types.Color, source types.TriggerSource) {
	g := m.find(guid)
	if g == nil {
		applog.Warn("model.group.missing", "guid", guid, "op", "update_visual_data")
		return
	}
	g.Title = title
	g.Color = color
	g.UpdateTime = m.now()
	m.publishGroup(EventUpdated, source, g, uuid.Nil)
}

// TogglePinState flips the pinned flag and reorders the group band.
func (m *Model) TogglePinState(guid uuid.UUID) {
	g := m.find(guid)
	if g == nil {
		applog.Warn("model.group.missing", "guid", guid, "op", "toggle_pin")
		return
	}
	g.Pinned = !g.Pinned
	g.UpdateTime = m.now()
	m.sortAndRenumber()
	m.publishGroup(EventUpdated, types.SourceLocal, m.find(guid), uuid.Nil)
}

// ReorderGroupLocally moves a group to newIndex within the group list.
// Pinned groups stay ahead of unpinned ones regardless of newIndex.
func (m *Model) ReorderGroupLocally(guid uuid.UUID, newIndex int) {
	i := m.index(guid)
	if i < 0 {
		applog.Warn("model.group.missing", "guid", guid, "op", "reorder")
		return
	}
	g := m.groups[i]
	m.groups = append(m.groups[:i], m.groups[i+1:]...)
	m.insertAt(g, newIndex)
	m.publishGroup(EventUpdated, types.SourceLocal, m.find(guid), uuid.Nil)
}

// AddTabToGroupLocally inserts tab at tab.Position within the group.
func (m *Model) AddTabToGroupLocally(groupID uuid.UUID, tab types.SavedTabGroupTab) {
	m.addTab(groupID, tab, types.SourceLocal)
}

// AddTabToGroupFromSync inserts a tab received from sync.
func (m *Model) AddTabToGroupFromSync(groupID uuid.UUID, tab types.SavedTabGroupTab) {
	tab.LocalTabID = 0
	m.addTab(groupID, tab, types.SourceRemote)
}

func (m *Model) addTab(groupID uuid.UUID, tab types.SavedTabGroupTab, source types.TriggerSource) {
	g := m.find(groupID)
	if g == nil {
		applog.Warn("model.group.missing", "guid", groupID, "op", "add_tab")
		return
	}
	if g.TabIndex(tab.GUID) >= 0 {
		applog.Warn("model.add_tab.duplicate", "guid", groupID, "tab", tab.GUID)
		return
	}
	g.InsertTab(tab, tab.Position)
	g.UpdateTime = m.now()
	m.publishGroup(EventUpdated, source, g, tab.GUID)
}

// UpdateTabInGroup replaces a tab's URL, title and favicon locally.
func (m *Model) UpdateTabInGroup(groupID uuid.UUID, tab types.SavedTabGroupTab) {
	m.updateTab(groupID, tab, types.SourceLocal)
}

// UpdateTabInGroupFromSync applies a remote tab edit, moving the tab when
// its position changed. The local tab binding is preserved.
func (m *Model) UpdateTabInGroupFromSync(groupID uuid.UUID, tab types.SavedTabGroupTab) {
	m.updateTab(groupID, tab, types.SourceRemote)
}

func (m *Model) updateTab(groupID uuid.UUID, tab types.SavedTabGroupTab, source types.TriggerSource) {
	g := m.find(groupID)
	if g == nil {
		applog.Warn("model.group.missing", "guid", groupID, "op", "update_tab")
		return
	}
	existing := g.Tab(tab.GUID)
	if existing == nil {
		applog.Warn("model.tab.missing", "guid", groupID, "tab", tab.GUID, "op", "update_tab")
		return
	}
	existing.URL = tab.URL
	existing.Title = tab.Title
	existing.Favicon = tab.Favicon
	if tab.LastUpdaterCacheGUID != "" {
		existing.LastUpdaterCacheGUID = tab.LastUpdaterCacheGUID
	}
	existing.UpdateTime = m.now()
	if source == types.SourceRemote && tab.Position != existing.Position {
		g.MoveTab(tab.GUID, tab.Position)
	}
	g.UpdateTime = m.now()
	m.publishGroup(EventUpdated, source, g, tab.GUID)
}

// RemoveTabFromGroupLocally removes a tab. Removing the last tab removes
// the group itself.
func (m *Model) RemoveTabFromGroupLocally(groupID, tabID uuid.UUID) {
	m.removeTab(groupID, tabID, types.SourceLocal)
}

// RemoveTabFromGroupFromSync removes a tab deleted on another device.
func (m *Model) RemoveTabFromGroupFromSync(groupID, tabID uuid.UUID) {
	m.removeTab(groupID, tabID, types.SourceRemote)
}

func (m *Model) removeTab(groupID, tabID uuid.UUID, source types.TriggerSource) {
	i := m.index(groupID)
	if i < 0 {
		applog.Warn("model.group.missing", "guid", groupID, "op", "remove_tab")
		return
	}
	g := &m.groups[i]
	if g.TabIndex(tabID) < 0 {
		return
	}
	if len(g.Tabs) == 1 {
		m.remove(i, source)
		return
	}
	g.RemoveTab(tabID)
	g.UpdateTime = m.now()
	m.publishGroup(EventUpdated, source, g, tabID)
}

// MoveTabInGroupTo moves a tab to newIndex, renumbering positions.
func (m *Model) MoveTabInGroupTo(groupID, tabID uuid.UUID, newIndex int) {
	g := m.find(groupID)
	if g == nil {
		applog.Warn("model.group.missing", "guid", groupID, "op", "move_tab")
		return
	}
	if !g.MoveTab(tabID, newIndex) {
		applog.Warn("model.tab.missing", "guid", groupID, "tab", tabID, "op", "move_tab")
		return
	}
	g.UpdateTime = m.now()
	m.publishGroup(EventUpdated, types.SourceLocal, g, tabID)
}

// OnGroupOpenedInTabStrip binds a saved group to a live tab-strip group.
// Any other group holding the same local id is unbound first, with its own
// local id event.
func (m *Model) OnGroupOpenedInTabStrip(guid uuid.UUID, localID types.LocalGroupID) {
	g := m.find(guid)
	if g == nil {
		applog.Warn("model.group.missing", "guid", guid, "op", "open")
		return
	}
	if other := m.findLocal(localID); other != nil && other.GUID != guid {
		other.LocalGroupID = ""
		other.ClearLocalTabIDs()
		m.publishGroup(EventLocalIDChanged, types.SourceLocal, other, uuid.Nil)
	}
	g.LocalGroupID = localID
	m.publishGroup(EventLocalIDChanged, types.SourceLocal, g, uuid.Nil)
}

// OnGroupClosedInTabStrip unbinds the group open as localID. The saved
// group itself is kept.
func (m *Model) OnGroupClosedInTabStrip(localID types.LocalGroupID) {
	g := m.findLocal(localID)
	if g == nil {
		applog.Warn("model.group.missing", "local_id", localID, "op", "close")
		return
	}
	g.LocalGroupID = ""
	g.ClearLocalTabIDs()
	m.publishGroup(EventLocalIDChanged, types.SourceLocal, g, uuid.Nil)
}

// UpdateLocalTabID binds a saved tab to a live tab.
func (m *Model) UpdateLocalTabID(groupID, tabID uuid.UUID, localTabID types.LocalTabID) {
	g := m.find(groupID)
	if g == nil {
		applog.Warn("model.group.missing", "guid", groupID, "op", "update_local_tab_id")
		return
	}
	tab := g.Tab(tabID)
	if tab == nil {
		applog.Warn("model.tab.missing", "guid", groupID, "tab", tabID, "op", "update_local_tab_id")
		return
	}
	if localTabID != 0 {
		// Local tab ids are unique among attached tabs.
		for i := range m.groups {
			if t := m.groups[i].TabByLocalID(localTabID); t != nil && t.GUID != tabID {
				t.LocalTabID = 0
			}
		}
	}
	tab.LocalTabID = localTabID
	m.publishGroup(EventLocalIDChanged, types.SourceLocal, g, tabID)
}

// UpdateLastUpdaterCacheGUIDForGroup records which device last touched the
// group and, if tabID is non-zero, the tab attached to it. It publishes no
// event: the mutation it accompanies does.
func (m *Model) UpdateLastUpdaterCacheGUIDForGroup(cacheGUID string, localID types.LocalGroupID, tabID types.LocalTabID) {
	g := m.findLocal(localID)
	if g == nil {
		return
	}
	g.LastUpdaterCacheGUID = cacheGUID
	if tabID == 0 {
		return
	}
	if tab := g.TabByLocalID(tabID); tab != nil {
		tab.LastUpdaterCacheGUID = cacheGUID
	}
}

// UpdateLastUserInteractionTime marks the group as just used. Like
// attribution it publishes nothing.
func (m *Model) UpdateLastUserInteractionTime(guid uuid.UUID) {
	if g := m.find(guid); g != nil {
		g.LastUserInteractionTime = m.now()
	}
}
