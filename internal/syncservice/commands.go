package syncservice

import (
	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/metrics"
	"github.com/lotas/tabgroupsync/internal/types"
)

// TabFields carries a partial tab update. Empty URL or Title and a nil
// Favicon leave the existing value alone, except that a new URL without a
// title also becomes the title.
type TabFields struct {
	URL     string
	Title   string
	Favicon []byte
}

// GetAllGroups returns copies of every saved group in display order.
func (s *Service) GetAllGroups() []types.SavedTabGroup {
	return s.model.Groups()
}

// GetGroup looks a group up by its saved guid.
func (s *Service) GetGroup(syncID uuid.UUID) (types.SavedTabGroup, bool) {
	return s.model.Get(syncID)
}

// GetGroupByLocalID looks a group up by the tab-strip group it is open as.
func (s *Service) GetGroupByLocalID(localID types.LocalGroupID) (types.SavedTabGroup, bool) {
	return s.model.GetByLocalID(localID)
}

func (s *Service) lookupLocal(op string, localID types.LocalGroupID) (types.SavedTabGroup, bool) {
	g, ok := s.model.GetByLocalID(localID)
	if !ok {
		applog.Warn("service.group.missing", "op", op, "local_id", localID)
	}
	return g, ok
}

func (s *Service) lookupTab(op string, localID types.LocalGroupID, tabID types.LocalTabID) (types.SavedTabGroup, types.SavedTabGroupTab, bool) {
	g, ok := s.lookupLocal(op, localID)
	if !ok {
		return g, types.SavedTabGroupTab{}, false
	}
	tab := g.TabByLocalID(tabID)
	if tab == nil {
		applog.Warn("service.tab.missing", "op", op, "local_id", localID, "tab", tabID)
		return g, types.SavedTabGroupTab{}, false
	}
	return g, *tab, true
}

// AddGroup saves a group created on this device. The group must have tabs.
func (s *Service) AddGroup(g types.SavedTabGroup) {
	if s.model.Contains(g.GUID) {
		applog.Warn("service.group.exists", "guid", g.GUID)
		return
	}
	if len(g.Tabs) == 0 {
		applog.Warn("service.group.empty", "guid", g.GUID)
		return
	}
	g = g.Clone()
	if g.CreatorCacheGUID == "" {
		g.CreatorCacheGUID = s.cacheGUID
	}
	g.LastUpdaterCacheGUID = s.cacheGUID
	for i := range g.Tabs {
		if g.Tabs[i].CreatorCacheGUID == "" {
			g.Tabs[i].CreatorCacheGUID = s.cacheGUID
		}
		g.Tabs[i].LastUpdaterCacheGUID = s.cacheGUID
	}
	applog.Info("service.group.add", "guid", g.GUID, "tabs", len(g.Tabs), "local_id", g.LocalGroupID)
	s.model.Add(g)
}

// RemoveGroup deletes the saved group open as localID.
func (s *Service) RemoveGroup(localID types.LocalGroupID) {
	if _, ok := s.lookupLocal("remove_group", localID); !ok {
		return
	}
	s.model.RemoveByLocalID(localID)
}

// RemoveGroupBySyncID deletes a saved group by guid, open or not.
func (s *Service) RemoveGroupBySyncID(syncID uuid.UUID) {
	if !s.model.Contains(syncID) {
		applog.Warn("service.group.missing", "op", "remove_group", "guid", syncID)
		return
	}
	s.model.Remove(syncID)
}

// UpdateVisualData sets the title and color of the group open as localID.
func (s *Service) UpdateVisualData(localID types.LocalGroupID, title string, color types.Color) {
	g, ok := s.lookupLocal("update_visual_data", localID)
	if !ok {
		return
	}
	s.UpdateAttributions(localID, 0)
	s.model.UpdateVisualData(g.GUID, title, color)
}

// AddTab records a live tab joining the group at position. A negative
// position appends.
func (s *Service) AddTab(localID types.LocalGroupID, tabID types.LocalTabID, title, url string, position int) {
	g, ok := s.lookupLocal("add_tab", localID)
	if !ok {
		return
	}
	if g.TabByLocalID(tabID) != nil {
		applog.Warn("service.tab.exists", "local_id", localID, "tab", tabID)
		return
	}
	tab := types.NewSavedTabGroupTab(url, title)
	tab.LocalTabID = tabID
	tab.CreatorCacheGUID = s.cacheGUID
	tab.LastUpdaterCacheGUID = s.cacheGUID
	tab.Position = position
	if position < 0 {
		tab.Position = len(g.Tabs)
	}
	s.UpdateAttributions(localID, 0)
	s.model.AddTabToGroupLocally(g.GUID, tab)
	s.recordTabEvent(metrics.EventTabAdded, g.GUID, tab.GUID)
}

// UpdateTab applies a local navigation, title or favicon change.
func (s *Service) UpdateTab(localID types.LocalGroupID, tabID types.LocalTabID, fields TabFields) {
	g, tab, ok := s.lookupTab("update_tab", localID, tabID)
	if !ok {
		return
	}
	if fields.URL != "" && fields.URL != tab.URL && fields.Title == "" {
		// The old title belongs to the old page.
		tab.Title = fields.URL
	}
	if fields.URL != "" {
		tab.URL = fields.URL
	}
	if fields.Title != "" {
		tab.Title = fields.Title
	}
	if fields.Favicon != nil {
		tab.Favicon = fields.Favicon
	}
	tab.LastUpdaterCacheGUID = s.cacheGUID
	s.UpdateAttributions(localID, tabID)
	s.model.UpdateTabInGroup(g.GUID, tab)
	if fields.URL != "" {
		s.recordTabEvent(metrics.EventTabNavigated, g.GUID, tab.GUID)
	}
}

// RemoveTab drops a tab that left the group. Dropping the last tab deletes
// the group and its persisted mapping.
func (s *Service) RemoveTab(localID types.LocalGroupID, tabID types.LocalTabID) {
	g, tab, ok := s.lookupTab("remove_tab", localID, tabID)
	if !ok {
		return
	}
	lastTab := len(g.Tabs) == 1
	s.UpdateAttributions(localID, 0)
	s.recordTabEvent(metrics.EventTabRemoved, g.GUID, tab.GUID)
	s.model.RemoveTabFromGroupLocally(g.GUID, tab.GUID)
	if lastTab {
		applog.Info("service.group.emptied", "guid", g.GUID, "local_id", localID)
		s.deleteMapping(g.GUID)
	}
}

// MoveTab moves a tab to newIndex within its group.
func (s *Service) MoveTab(localID types.LocalGroupID, tabID types.LocalTabID, newIndex int) {
	g, tab, ok := s.lookupTab("move_tab", localID, tabID)
	if !ok {
		return
	}
	s.UpdateAttributions(localID, tabID)
	s.model.MoveTabInGroupTo(g.GUID, tab.GUID, newIndex)
}

// OnTabSelected records that the user switched to a tab in the group.
func (s *Service) OnTabSelected(localID types.LocalGroupID, tabID types.LocalTabID) {
	g, tab, ok := s.lookupTab("tab_selected", localID, tabID)
	if !ok {
		return
	}
	s.model.UpdateLastUserInteractionTime(g.GUID)
	s.recordTabEvent(metrics.EventTabSelected, g.GUID, tab.GUID)
}

// UpdateLocalTabGroupMapping binds a saved group to a tab-strip group.
func (s *Service) UpdateLocalTabGroupMapping(syncID uuid.UUID, localID types.LocalGroupID) {
	if !s.model.Contains(syncID) {
		applog.Warn("service.group.missing", "op", "map_local_group", "guid", syncID)
		return
	}
	s.model.OnGroupOpenedInTabStrip(syncID, localID)
}

// RemoveLocalTabGroupMapping unbinds the tab-strip group localID. The saved
// group stays; all of its tabs lose their local ids.
func (s *Service) RemoveLocalTabGroupMapping(localID types.LocalGroupID) {
	g, ok := s.lookupLocal("unmap_local_group", localID)
	if !ok {
		return
	}
	s.model.OnGroupClosedInTabStrip(localID)
	s.recordTabEvent(metrics.EventTabGroupClosed, g.GUID, uuid.Nil)
}

// UpdateLocalTabID binds the saved tab tabGUID to a live tab.
func (s *Service) UpdateLocalTabID(localID types.LocalGroupID, tabGUID uuid.UUID, tabID types.LocalTabID) {
	g, ok := s.lookupLocal("update_local_tab_id", localID)
	if !ok {
		return
	}
	if g.Tab(tabGUID) == nil {
		applog.Warn("service.tab.missing", "op", "update_local_tab_id", "local_id", localID, "tab_guid", tabGUID)
		return
	}
	s.model.UpdateLocalTabID(g.GUID, tabGUID, tabID)
}

// ConnectLocalTabGroup records that the saved group syncID was opened as
// localID. Tab bindings follow through UpdateLocalTabID.
func (s *Service) ConnectLocalTabGroup(syncID uuid.UUID, localID types.LocalGroupID) {
	if !s.model.Contains(syncID) {
		applog.Warn("service.group.missing", "op", "connect", "guid", syncID)
		return
	}
	s.model.OnGroupOpenedInTabStrip(syncID, localID)
	s.model.UpdateLastUserInteractionTime(syncID)
	s.recordTabEvent(metrics.EventTabGroupOpened, syncID, uuid.Nil)
}

// UpdateAttributions marks this device as the last updater of the group open
// as localID and, if tabID is set, of that tab.
func (s *Service) UpdateAttributions(localID types.LocalGroupID, tabID types.LocalTabID) {
	s.model.UpdateLastUpdaterCacheGUIDForGroup(s.cacheGUID, localID, tabID)
}

func (s *Service) recordTabEvent(name metrics.EventName, groupID, tabID uuid.UUID) {
	if s.metrics == nil {
		return
	}
	if g, ok := s.model.Get(groupID); ok {
		s.metrics.RecordTabGroupEvent(name, g, tabID)
	}
}

// TogglePinState pins or unpins a saved group.
func (s *Service) TogglePinState(syncID uuid.UUID) {
	g, ok := s.model.Get(syncID)
	if !ok {
		applog.Warn("service.group.missing", "op", "toggle_pin", "guid", syncID)
		return
	}
	s.UpdateAttributions(g.LocalGroupID, 0)
	s.model.TogglePinState(syncID)
}

// ReorderGroup moves a saved group to newIndex in the group list.
func (s *Service) ReorderGroup(syncID uuid.UUID, newIndex int) {
	if !s.model.Contains(syncID) {
		applog.Warn("service.group.missing", "op", "reorder", "guid", syncID)
		return
	}
	s.model.ReorderGroupLocally(syncID, newIndex)
}
