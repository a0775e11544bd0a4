// Package attach keeps live tab-strip tabs and saved tab groups in step.
//
// A TabListener follows one tab, a GroupListener one open group, and the
// Delegate opens saved groups in the tab strip and routes tab-strip events
// to the right listener. Everything here runs on the service's sequence.
package attach

import (
	"errors"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/syncservice"
	"github.com/lotas/tabgroupsync/internal/types"
)

var (
	// ErrGroupNotFound is returned when a saved group id is unknown.
	ErrGroupNotFound = errors.New("saved group not found")
	// ErrNothingToOpen is returned when none of a group's tabs has an
	// openable URL.
	ErrNothingToOpen = errors.New("no openable tabs in group")
)

// WebContents is a live tab.
type WebContents interface {
	TabID() types.LocalTabID
	URL() string
	Title() string
	// RedirectChain lists the URLs of the last committed navigation,
	// first request to final URL.
	RedirectChain() []string
}

// TabStrip is the browser window's tab strip.
type TabStrip interface {
	// Navigate starts loading url in tab and returns the navigation id
	// that the matching DidFinishNavigation will carry.
	Navigate(tab types.LocalTabID, url string) (int64, error)
	// OpenTab opens url at index (-1 appends) and returns the new tab.
	OpenTab(url string, index int, background bool) (types.LocalTabID, error)
	CloseTab(tab types.LocalTabID) error
	MoveTab(tab types.LocalTabID, index int) error
	WebContents(tab types.LocalTabID) (WebContents, bool)
	TabIndex(tab types.LocalTabID) (int, bool)

	GroupTabs(group types.LocalGroupID, tabs []types.LocalTabID) error
	SetGroupVisualData(group types.LocalGroupID, title string, color types.Color) error
	HasGroup(group types.LocalGroupID) bool
	GroupTabIDs(group types.LocalGroupID) []types.LocalTabID
	// FirstTabIndex is the strip index of the group's first tab.
	FirstTabIndex(group types.LocalGroupID) (int, bool)
	FocusGroup(group types.LocalGroupID) error
	CloseGroup(group types.LocalGroupID) error
}

// TabUpdater is the part of the sync service a TabListener writes to.
type TabUpdater interface {
	UpdateTab(localID types.LocalGroupID, tabID types.LocalTabID, fields syncservice.TabFields)
	UpdateAttributions(localID types.LocalGroupID, tabID types.LocalTabID)
}

// GroupUpdater is the part of the sync service a GroupListener writes to.
type GroupUpdater interface {
	TabUpdater
	AddTab(localID types.LocalGroupID, tabID types.LocalTabID, title, url string, position int)
	RemoveTab(localID types.LocalGroupID, tabID types.LocalTabID)
	MoveTab(localID types.LocalGroupID, tabID types.LocalTabID, newIndex int)
	UpdateLocalTabID(localID types.LocalGroupID, tabGUID uuid.UUID, tabID types.LocalTabID)
}

// Service is everything the Delegate needs from the sync service.
type Service interface {
	GroupUpdater
	AddObserver(fn func(syncservice.Event)) (remove func())
	GetAllGroups() []types.SavedTabGroup
	GetGroup(syncID uuid.UUID) (types.SavedTabGroup, bool)
	GetGroupByLocalID(localID types.LocalGroupID) (types.SavedTabGroup, bool)
	GetDeletedGroupIDs() []types.LocalGroupID
	AddGroup(g types.SavedTabGroup)
	ConnectLocalTabGroup(syncID uuid.UUID, localID types.LocalGroupID)
	RemoveLocalTabGroupMapping(localID types.LocalGroupID)
	UpdateVisualData(localID types.LocalGroupID, title string, color types.Color)
	OnTabSelected(localID types.LocalGroupID, tabID types.LocalTabID)
}
