package types

import (
	"time"

	"github.com/google/uuid"
)

// LocalGroupID identifies a tab group in the live tab strip. It is only
// valid for the lifetime of the browser process; empty if not open.
type LocalGroupID string

// LocalTabID identifies a live tab in the tab strip. 0 if not attached.
type LocalTabID int

// TriggerSource tells observers where a mutation came from.
type TriggerSource int

const (
	SourceLocal TriggerSource = iota
	SourceRemote
)

func (s TriggerSource) String() string {
	if s == SourceRemote {
		return "remote"
	}
	return "local"
}

// Color is a tab group palette entry.
type Color string

const (
	ColorGrey   Color = "grey"
	ColorBlue   Color = "blue"
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorPink   Color = "pink"
	ColorPurple Color = "purple"
	ColorCyan   Color = "cyan"
	ColorOrange Color = "orange"
)

var palette = map[Color]bool{
	ColorGrey: true, ColorBlue: true, ColorRed: true, ColorYellow: true,
	ColorGreen: true, ColorPink: true, ColorPurple: true, ColorCyan: true,
	ColorOrange: true,
}

// ParseColor maps a color name onto the palette, falling back to grey.
func ParseColor(s string) Color {
	c := Color(s)
	if palette[c] {
		return c
	}
	return ColorGrey
}

// SavedTabGroupTab is a single tab of a saved group.
type SavedTabGroupTab struct {
	GUID       uuid.UUID
	URL        string
	Title      string
	Favicon    []byte // nil if unknown
	Position   int
	LocalTabID LocalTabID // 0 if not attached to a live tab

	CreatorCacheGUID     string
	LastUpdaterCacheGUID string
	CreationTime         time.Time
	UpdateTime           time.Time
}

// SavedTabGroup is the durable, sync-visible representation of a tab group.
type SavedTabGroup struct {
	GUID         uuid.UUID
	Title        string
	Color        Color
	Position     int // -1 lets the model pick
	Pinned       bool
	LocalGroupID LocalGroupID // empty if not open in a tab strip

	CreatorCacheGUID        string
	LastUpdaterCacheGUID    string
	CreatedBeforeSyncing    bool
	CreationTime            time.Time
	UpdateTime              time.Time
	LastUserInteractionTime time.Time

	Tabs []SavedTabGroupTab
}

// NewSavedTabGroup returns a group with a fresh GUID and no position.
func NewSavedTabGroup(title string, color Color, tabs []SavedTabGroupTab) SavedTabGroup {
	now := time.Now()
	g := SavedTabGroup{
		GUID:                    uuid.New(),
		Title:                   title,
		Color:                   color,
		Position:                -1,
		CreationTime:            now,
		UpdateTime:              now,
		LastUserInteractionTime: now,
	}
	for _, t := range tabs {
		g.InsertTab(t, len(g.Tabs))
	}
	return g
}

// NewSavedTabGroupTab returns a tab with a fresh GUID.
func NewSavedTabGroupTab(url, title string) SavedTabGroupTab {
	now := time.Now()
	return SavedTabGroupTab{
		GUID:         uuid.New(),
		URL:          url,
		Title:        title,
		CreationTime: now,
		UpdateTime:   now,
	}
}

// Clone returns a deep copy so callers cannot alias model storage.
func (g SavedTabGroup) Clone() SavedTabGroup {
	out := g
	out.Tabs = make([]SavedTabGroupTab, len(g.Tabs))
	for i, t := range g.Tabs {
		out.Tabs[i] = t
		if t.Favicon != nil {
			out.Tabs[i].Favicon = append([]byte(nil), t.Favicon...)
		}
	}
	return out
}

// IsOpen reports whether the group is bound to a live tab-strip group.
func (g *SavedTabGroup) IsOpen() bool {
	return g.LocalGroupID != ""
}

// TabIndex returns the index of the tab with the given GUID, or -1.
func (g *SavedTabGroup) TabIndex(guid uuid.UUID) int {
	for i := range g.Tabs {
		if g.Tabs[i].GUID == guid {
			return i
		}
	}
	return -1
}

// TabIndexByLocalID returns the index of the tab attached to id, or -1.
func (g *SavedTabGroup) TabIndexByLocalID(id LocalTabID) int {
	if id == 0 {
		return -1
	}
	for i := range g.Tabs {
		if g.Tabs[i].LocalTabID == id {
			return i
		}
	}
	return -1
}

// Tab returns a pointer into the group's tab slice, or nil.
func (g *SavedTabGroup) Tab(guid uuid.UUID) *SavedTabGroupTab {
	if i := g.TabIndex(guid); i >= 0 {
		return &g.Tabs[i]
	}
	return nil
}

// TabByLocalID returns a pointer to the tab attached to id, or nil.
func (g *SavedTabGroup) TabByLocalID(id LocalTabID) *SavedTabGroupTab {
	if i := g.TabIndexByLocalID(id); i >= 0 {
		return &g.Tabs[i]
	}
	return nil
}

// InsertTab inserts tab at index (clamped) and renumbers positions.
func (g *SavedTabGroup) InsertTab(tab SavedTabGroupTab, index int) {
	if index < 0 || index > len(g.Tabs) {
		index = len(g.Tabs)
	}
	g.Tabs = append(g.Tabs, SavedTabGroupTab{})
	copy(g.Tabs[index+1:], g.Tabs[index:])
	g.Tabs[index] = tab
	g.renumberTabs()
}

// RemoveTab drops the tab with the given GUID. Returns false if absent.
func (g *SavedTabGroup) RemoveTab(guid uuid.UUID) bool {
	i := g.TabIndex(guid)
	if i < 0 {
		return false
	}
	g.Tabs = append(g.Tabs[:i], g.Tabs[i+1:]...)
	g.renumberTabs()
	return true
}

// MoveTab moves the tab to newIndex (clamped), keeping the relative order
// of the other tabs. Returns false if the tab is absent.
func (g *SavedTabGroup) MoveTab(guid uuid.UUID, newIndex int) bool {
	i := g.TabIndex(guid)
	if i < 0 {
		return false
	}
	tab := g.Tabs[i]
	g.Tabs = append(g.Tabs[:i], g.Tabs[i+1:]...)
	g.InsertTab(tab, newIndex)
	return true
}

// ClearLocalTabIDs detaches every tab from its live counterpart.
func (g *SavedTabGroup) ClearLocalTabIDs() {
	for i := range g.Tabs {
		g.Tabs[i].LocalTabID = 0
	}
}

func (g *SavedTabGroup) renumberTabs() {
	for i := range g.Tabs {
		g.Tabs[i].Position = i
	}
}

// Profile represents a Firefox profile, used when importing groups.
type Profile struct {
	Name       string
	Path       string // absolute path to profile directory
	IsDefault  bool
	IsRelative bool
}
