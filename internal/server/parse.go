package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/lotas/tabgroupsync/internal/attach"
	"github.com/lotas/tabgroupsync/internal/types"
)

type wireTab struct {
	ID      int64  `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	GroupID string `json:"groupId"`
	Index   int    `json:"index"`
}

type wireGroup struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Color string `json:"color"`
}

type wireNav struct {
	ID                  int64    `json:"id"`
	URL                 string   `json:"url"`
	IsPrimaryMainFrame  bool     `json:"isPrimaryMainFrame"`
	HasCommitted        bool     `json:"hasCommitted"`
	IsRedirect          bool     `json:"isRedirect"`
	IsPost              bool     `json:"isPost"`
	IsRendererInitiated bool     `json:"isRendererInitiated"`
	HasUserGesture      bool     `json:"hasUserGesture"`
	ShouldUpdateHistory bool     `json:"shouldUpdateHistory"`
	Transition          string   `json:"transition"`
	RedirectChain       []string `json:"redirectChain"`
}

// TabState is one tab of the extension's tab strip.
type TabState struct {
	ID    types.LocalTabID
	URL   string
	Title string
	Group types.LocalGroupID
}

// GroupState is one tab-strip group.
type GroupState struct {
	ID    types.LocalGroupID
	Title string
	Color types.Color
}

// Snapshot is the full tab strip, tabs in strip order.
type Snapshot struct {
	Tabs   []TabState
	Groups []GroupState
}

// ParseSnapshot converts an IncomingMsg of type "snapshot". Tabs are ordered
// by their index; tabs naming an unknown group are treated as ungrouped.
func ParseSnapshot(msg IncomingMsg) (Snapshot, error) {
	var tabs []wireTab
	if len(msg.Tabs) > 0 {
		if err := json.Unmarshal(msg.Tabs, &tabs); err != nil {
			return Snapshot{}, fmt.Errorf("parse tabs: %w", err)
		}
	}
	var groups []wireGroup
	if len(msg.Groups) > 0 {
		if err := json.Unmarshal(msg.Groups, &groups); err != nil {
			return Snapshot{}, fmt.Errorf("parse groups: %w", err)
		}
	}

	var snap Snapshot
	known := make(map[string]bool)
	for _, g := range groups {
		known[g.ID] = true
		snap.Groups = append(snap.Groups, GroupState{
			ID:    types.LocalGroupID(g.ID),
			Title: g.Title,
			Color: types.ParseColor(g.Color),
		})
	}

	ordered := make([]wireTab, len(tabs))
	copy(ordered, tabs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for _, wt := range ordered {
		tab := TabState{ID: types.LocalTabID(wt.ID), URL: wt.URL, Title: wt.Title}
		if known[wt.GroupID] {
			tab.Group = types.LocalGroupID(wt.GroupID)
		}
		snap.Tabs = append(snap.Tabs, tab)
	}
	return snap, nil
}

// ParseTab converts a raw JSON tab.
func ParseTab(raw json.RawMessage) (TabState, int, error) {
	var wt wireTab
	if err := json.Unmarshal(raw, &wt); err != nil {
		return TabState{}, 0, err
	}
	return TabState{
		ID:    types.LocalTabID(wt.ID),
		URL:   wt.URL,
		Title: wt.Title,
		Group: types.LocalGroupID(wt.GroupID),
	}, wt.Index, nil
}

// ParseGroup converts a raw JSON group.
func ParseGroup(raw json.RawMessage) (GroupState, error) {
	var wg wireGroup
	if err := json.Unmarshal(raw, &wg); err != nil {
		return GroupState{}, err
	}
	if wg.ID == "" {
		return GroupState{}, errors.New("group without id")
	}
	return GroupState{ID: types.LocalGroupID(wg.ID), Title: wg.Title, Color: types.ParseColor(wg.Color)}, nil
}

// ParseNavigation converts a raw JSON navigation and its redirect chain.
func ParseNavigation(raw json.RawMessage) (attach.Navigation, []string, error) {
	var wn wireNav
	if err := json.Unmarshal(raw, &wn); err != nil {
		return attach.Navigation{}, nil, err
	}
	return attach.Navigation{
		ID:                  wn.ID,
		URL:                 wn.URL,
		IsPrimaryMainFrame:  wn.IsPrimaryMainFrame,
		HasCommitted:        wn.HasCommitted,
		IsRedirect:          wn.IsRedirect,
		IsPost:              wn.IsPost,
		IsRendererInitiated: wn.IsRendererInitiated,
		HasUserGesture:      wn.HasUserGesture,
		ShouldUpdateHistory: wn.ShouldUpdateHistory,
		Transition:          attach.ParseTransition(wn.Transition),
	}, wn.RedirectChain, nil
}
