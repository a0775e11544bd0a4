package attach

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/syncservice"
	"github.com/lotas/tabgroupsync/internal/types"
)

// Delegate opens saved groups in the tab strip, keeps a GroupListener per
// open group and reacts to remote changes of open groups.
type Delegate struct {
	svc   Service
	strip TabStrip

	groups     map[types.LocalGroupID]*GroupListener
	newLocalID func() types.LocalGroupID
	remove     func()
}

// NewDelegate subscribes to svc. Call Close to unsubscribe.
func NewDelegate(svc Service, strip TabStrip) *Delegate {
	d := &Delegate{
		svc:        svc,
		strip:      strip,
		groups:     make(map[types.LocalGroupID]*GroupListener),
		newLocalID: func() types.LocalGroupID { return types.LocalGroupID(uuid.NewString()) },
	}
	d.remove = svc.AddObserver(d.onServiceEvent)
	return d
}

func (d *Delegate) Close() { d.remove() }

// Listener returns the GroupListener of an open group.
func (d *Delegate) Listener(local types.LocalGroupID) (*GroupListener, bool) {
	l, ok := d.groups[local]
	return l, ok
}

// HandleOpenTabGroupRequest shows a saved group: it focuses the group if it
// is already open, otherwise opens its tabs in the background, groups them
// under a fresh local id and connects the result to the saved group.
func (d *Delegate) HandleOpenTabGroupRequest(syncID uuid.UUID) (types.LocalGroupID, error) {
	g, ok := d.svc.GetGroup(syncID)
	if !ok {
		return "", fmt.Errorf("open %s: %w", syncID, ErrGroupNotFound)
	}
	if g.LocalGroupID != "" && d.strip.HasGroup(g.LocalGroupID) {
		if err := d.strip.FocusGroup(g.LocalGroupID); err != nil {
			return "", fmt.Errorf("focus group %s: %w", g.LocalGroupID, err)
		}
		return g.LocalGroupID, nil
	}

	var opened []types.LocalTabID
	mapping := make(map[types.LocalTabID]uuid.UUID)
	for _, tab := range g.Tabs {
		if !IsValidURL(tab.URL) {
			applog.Warn("attach.open.invalid_url", "guid", syncID, "url", tab.URL)
			continue
		}
		id, err := d.strip.OpenTab(tab.URL, -1, true)
		if err != nil {
			applog.Error("attach.open.tab", err, "url", tab.URL)
			continue
		}
		opened = append(opened, id)
		mapping[id] = tab.GUID
	}
	if len(opened) == 0 {
		return "", fmt.Errorf("open %s: %w", syncID, ErrNothingToOpen)
	}

	local := d.newLocalID()
	if err := d.strip.GroupTabs(local, opened); err != nil {
		return "", fmt.Errorf("group tabs: %w", err)
	}
	if err := d.strip.SetGroupVisualData(local, g.Title, g.Color); err != nil {
		applog.Error("attach.open.visual_data", err, "local_id", local)
	}
	d.ConnectToLocalTabGroup(syncID, local, mapping)
	applog.Info("attach.group.opened", "guid", syncID, "local_id", local, "tabs", len(opened))
	return local, nil
}

// ConnectToLocalTabGroup binds an open tab-strip group to a saved group
// and starts listening to it.
func (d *Delegate) ConnectToLocalTabGroup(syncID uuid.UUID, local types.LocalGroupID, mapping map[types.LocalTabID]uuid.UUID) *GroupListener {
	d.svc.ConnectLocalTabGroup(syncID, local)
	l := NewGroupListener(d.svc, d.strip, local, syncID, mapping)
	d.groups[local] = l
	return l
}

// SaveLocalGroup saves an unsaved tab-strip group and connects it.
func (d *Delegate) SaveLocalGroup(local types.LocalGroupID, title string, color types.Color) (uuid.UUID, error) {
	if existing, ok := d.svc.GetGroupByLocalID(local); ok {
		return existing.GUID, nil
	}
	ids := d.strip.GroupTabIDs(local)
	if len(ids) == 0 {
		return uuid.Nil, fmt.Errorf("save %s: %w", local, ErrNothingToOpen)
	}

	var tabs []types.SavedTabGroupTab
	mapping := make(map[types.LocalTabID]uuid.UUID)
	for _, id := range ids {
		contents, ok := d.strip.WebContents(id)
		if !ok {
			continue
		}
		tab := types.NewSavedTabGroupTab(contents.URL(), contents.Title())
		tab.LocalTabID = id
		tabs = append(tabs, tab)
		mapping[id] = tab.GUID
	}
	g := types.NewSavedTabGroup(title, color, tabs)
	g.LocalGroupID = local
	d.svc.AddGroup(g)
	if _, ok := d.svc.GetGroup(g.GUID); !ok {
		return uuid.Nil, fmt.Errorf("save %s: %w", local, ErrGroupNotFound)
	}
	d.groups[local] = NewGroupListener(d.svc, d.strip, local, g.GUID, mapping)
	return g.GUID, nil
}

func (d *Delegate) onServiceEvent(ev syncservice.Event) {
	switch ev.Kind {
	case syncservice.EventInitialized:
		d.closeDeletedGroups()
		d.reconnectOpenGroups()
	case syncservice.EventGroupUpdated:
		if ev.Source != types.SourceRemote || ev.LocalID == "" {
			return
		}
		if l, ok := d.groups[ev.LocalID]; ok {
			l.UpdateFromSync(ev.Group)
		}
	case syncservice.EventGroupRemoved:
		if ev.LocalID == "" {
			return
		}
		delete(d.groups, ev.LocalID)
		if ev.Source == types.SourceRemote && d.strip.HasGroup(ev.LocalID) {
			if err := d.strip.CloseGroup(ev.LocalID); err != nil {
				applog.Error("attach.close_group", err, "local_id", ev.LocalID)
			}
		}
	}
}

// closeDeletedGroups closes tab-strip groups whose saved group was deleted
// while nothing was listening.
func (d *Delegate) closeDeletedGroups() {
	for _, local := range d.svc.GetDeletedGroupIDs() {
		if _, ok := d.svc.GetGroupByLocalID(local); ok {
			continue
		}
		if !d.strip.HasGroup(local) {
			continue
		}
		applog.Info("attach.close_deleted", "local_id", local)
		if err := d.strip.CloseGroup(local); err != nil {
			applog.Error("attach.close_group", err, "local_id", local)
		}
	}
}

// reconnectOpenGroups starts listening to groups that were re-attached at
// startup. Tab ids do not survive a restart, so live tabs are paired with
// saved tabs by order.
func (d *Delegate) reconnectOpenGroups() {
	for _, g := range d.svc.GetAllGroups() {
		if g.LocalGroupID == "" || !d.strip.HasGroup(g.LocalGroupID) {
			continue
		}
		if _, ok := d.groups[g.LocalGroupID]; ok {
			continue
		}
		ids := d.strip.GroupTabIDs(g.LocalGroupID)
		mapping := make(map[types.LocalTabID]uuid.UUID)
		for i, id := range ids {
			if i >= len(g.Tabs) {
				break
			}
			mapping[id] = g.Tabs[i].GUID
		}
		d.groups[g.LocalGroupID] = NewGroupListener(d.svc, d.strip, g.LocalGroupID, g.GUID, mapping)
		applog.Info("attach.group.reconnected", "guid", g.GUID, "local_id", g.LocalGroupID, "tabs", len(mapping))
	}
}

func (d *Delegate) findTab(id types.LocalTabID) (*GroupListener, *TabListener, bool) {
	for _, g := range d.groups {
		if t, ok := g.Tab(id); ok {
			return g, t, true
		}
	}
	return nil, nil, false
}

// OnTabAdded handles a tab joining group at stripIndex.
func (d *Delegate) OnTabAdded(group types.LocalGroupID, tab types.LocalTabID, stripIndex int) {
	l, ok := d.groups[group]
	if !ok {
		return
	}
	contents, ok := d.strip.WebContents(tab)
	if !ok {
		return
	}
	l.AddWebContents(contents, stripIndex)
}

// OnTabRemoved handles a tab closing or leaving its group.
func (d *Delegate) OnTabRemoved(tab types.LocalTabID) {
	if g, _, ok := d.findTab(tab); ok {
		g.RemoveWebContentsIfPresent(tab)
	}
}

// OnTabMoved handles a tab moving within its group.
func (d *Delegate) OnTabMoved(tab types.LocalTabID, stripIndex int) {
	if g, _, ok := d.findTab(tab); ok {
		g.MoveWebContents(tab, stripIndex)
	}
}

// OnNavigationFinished routes a finished navigation to its tab listener.
func (d *Delegate) OnNavigationFinished(tab types.LocalTabID, nav Navigation) {
	if _, t, ok := d.findTab(tab); ok {
		t.DidFinishNavigation(nav)
	}
}

// OnTitleChanged routes a title change to its tab listener.
func (d *Delegate) OnTitleChanged(tab types.LocalTabID, title string) {
	if _, t, ok := d.findTab(tab); ok {
		t.TitleWasSet(title)
	}
}

// OnFaviconChanged routes a favicon change to its tab listener.
func (d *Delegate) OnFaviconChanged(tab types.LocalTabID, icon []byte) {
	if _, t, ok := d.findTab(tab); ok {
		t.OnFaviconUpdated(icon)
	}
}

// OnTabActivated records the user switching to a tab of an open group.
func (d *Delegate) OnTabActivated(tab types.LocalTabID) {
	if g, _, ok := d.findTab(tab); ok {
		d.svc.OnTabSelected(g.LocalID(), tab)
	}
}

// OnGroupVisualsChanged records a local title or color edit.
func (d *Delegate) OnGroupVisualsChanged(group types.LocalGroupID, title string, color types.Color) {
	if _, ok := d.groups[group]; !ok {
		return
	}
	if g, ok := d.svc.GetGroupByLocalID(group); ok && g.Title == title && g.Color == color {
		return
	}
	d.svc.UpdateVisualData(group, title, color)
}

// OnGroupClosed handles the tab-strip group going away. The saved group
// is kept.
func (d *Delegate) OnGroupClosed(group types.LocalGroupID) {
	if _, ok := d.groups[group]; !ok {
		return
	}
	delete(d.groups, group)
	d.svc.RemoveLocalTabGroupMapping(group)
}
