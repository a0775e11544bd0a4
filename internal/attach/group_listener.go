package attach

import (
	"sort"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/types"
)

// GroupListener follows one saved group while it is open in the tab strip.
type GroupListener struct {
	svc    GroupUpdater
	strip  TabStrip
	local  types.LocalGroupID
	syncID uuid.UUID

	tabs map[types.LocalTabID]*TabListener
	// paused is set while sync changes are being pushed into the tab strip,
	// so the strip's own add/remove echoes are ignored.
	paused bool
}

// NewGroupListener attaches the live tabs in mapping to their saved tabs
// and starts a TabListener for each.
func NewGroupListener(svc GroupUpdater, strip TabStrip, local types.LocalGroupID, syncID uuid.UUID, mapping map[types.LocalTabID]uuid.UUID) *GroupListener {
	l := &GroupListener{
		svc:    svc,
		strip:  strip,
		local:  local,
		syncID: syncID,
		tabs:   make(map[types.LocalTabID]*TabListener),
	}

	ids := make([]types.LocalTabID, 0, len(mapping))
	for id := range mapping {
		ids = append(ids, id)
	}
	// Attach in tab-strip order; tabs the strip no longer knows sort last.
	index := func(id types.LocalTabID) int {
		if i, ok := strip.TabIndex(id); ok {
			return i
		}
		return len(mapping) + int(id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if a, b := index(ids[i]), index(ids[j]); a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		contents, ok := strip.WebContents(id)
		if !ok {
			applog.Warn("attach.tab.missing", "local_id", local, "tab", id)
			continue
		}
		svc.UpdateLocalTabID(local, mapping[id], id)
		l.tabs[id] = NewTabListener(svc, strip, local, contents)
	}
	return l
}

func (l *GroupListener) LocalID() types.LocalGroupID { return l.local }
func (l *GroupListener) SyncID() uuid.UUID { return l.syncID }

// Tab returns the listener for a live tab in the group.
func (l *GroupListener) Tab(id types.LocalTabID) (*TabListener, bool) {
	t, ok := l.tabs[id]
	return t, ok
}

// TabCount returns how many live tabs the group is following.
func (l *GroupListener) TabCount() int { return len(l.tabs) }

// relativePosition converts a tab-strip index into a position in the group.
func (l *GroupListener) relativePosition(stripIndex int) int {
	first, ok := l.strip.FirstTabIndex(l.local)
	if !ok || stripIndex < first {
		return 0
	}
	return stripIndex - first
}

// AddWebContents starts following a tab that joined the group at stripIndex.
func (l *GroupListener) AddWebContents(contents WebContents, stripIndex int) {
	if l.paused {
		return
	}
	id := contents.TabID()
	if _, ok := l.tabs[id]; ok {
		return
	}
	l.svc.AddTab(l.local, id, contents.Title(), contents.URL(), l.relativePosition(stripIndex))
	l.tabs[id] = NewTabListener(l.svc, l.strip, l.local, contents)
}

// RemoveWebContentsIfPresent stops following a tab that left the group.
func (l *GroupListener) RemoveWebContentsIfPresent(id types.LocalTabID) {
	if l.paused {
		return
	}
	if _, ok := l.tabs[id]; !ok {
		return
	}
	delete(l.tabs, id)
	l.svc.RemoveTab(l.local, id)
}

// MoveWebContents records a tab moved to stripIndex within the group.
func (l *GroupListener) MoveWebContents(id types.LocalTabID, stripIndex int) {
	if l.paused {
		return
	}
	if _, ok := l.tabs[id]; !ok {
		return
	}
	l.svc.MoveTab(l.local, id, l.relativePosition(stripIndex))
}

// UpdateFromSync pushes a remote version of the group into the tab strip:
// it applies title and color, opens tabs that are new, navigates tabs whose
// URL changed, reorders, and closes tabs that were removed.
func (l *GroupListener) UpdateFromSync(g types.SavedTabGroup) {
	l.paused = true
	defer func() { l.paused = false }()

	if err := l.strip.SetGroupVisualData(l.local, g.Title, g.Color); err != nil {
		applog.Error("attach.sync.visual_data", err, "local_id", l.local)
	}

	first, ok := l.strip.FirstTabIndex(l.local)
	if !ok {
		applog.Warn("attach.group.missing", "local_id", l.local)
		return
	}

	keep := make(map[types.LocalTabID]bool, len(g.Tabs))
	for _, tab := range g.Tabs {
		if tab.LocalTabID != 0 {
			if listener, ok := l.tabs[tab.LocalTabID]; ok {
				keep[tab.LocalTabID] = true
				if listener.Contents().URL() != tab.URL {
					listener.NavigateToURL(tab.URL)
				}
				if idx, ok := l.strip.TabIndex(tab.LocalTabID); ok && idx != first+tab.Position {
					if err := l.strip.MoveTab(tab.LocalTabID, first+tab.Position); err != nil {
						applog.Error("attach.sync.move", err, "tab", tab.LocalTabID)
					}
				}
				continue
			}
		}
		if !IsValidURL(tab.URL) {
			continue
		}
		id, err := l.strip.OpenTab(tab.URL, first+tab.Position, true)
		if err != nil {
			applog.Error("attach.sync.open", err, "url", tab.URL)
			continue
		}
		if err := l.strip.GroupTabs(l.local, []types.LocalTabID{id}); err != nil {
			applog.Error("attach.sync.group", err, "tab", id)
		}
		contents, ok := l.strip.WebContents(id)
		if !ok {
			continue
		}
		keep[id] = true
		l.svc.UpdateLocalTabID(l.local, tab.GUID, id)
		l.tabs[id] = NewTabListener(l.svc, l.strip, l.local, contents)
	}

	for id := range l.tabs {
		if keep[id] {
			continue
		}
		delete(l.tabs, id)
		if err := l.strip.CloseTab(id); err != nil {
			applog.Error("attach.sync.close", err, "tab", id)
		}
	}
}
