package attach

import (
	"errors"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/syncservice"
	"github.com/lotas/tabgroupsync/internal/types"
)

// fakeTab is a live tab and its WebContents.
type fakeTab struct {
	id    types.LocalTabID
	url   string
	title string
	group types.LocalGroupID
	chain []string
}

func (t *fakeTab) TabID() types.LocalTabID { return t.id }
func (t *fakeTab) URL() string { return t.url }
func (t *fakeTab) Title() string { return t.title }
func (t *fakeTab) RedirectChain() []string { return t.chain }

type navCall struct {
	tab types.LocalTabID
	url string
	id  int64
}

type visual struct {
	title string
	color types.Color
}

// fakeStrip is an in-memory tab strip. Tabs are kept in strip order.
type fakeStrip struct {
	tabs    []*fakeTab
	nextTab types.LocalTabID
	nextNav int64
	navs    []navCall
	visuals map[types.LocalGroupID]visual
	focused types.LocalGroupID
	closed  []types.LocalGroupID
}

func newFakeStrip() *fakeStrip {
	return &fakeStrip{nextTab: 100, nextNav: 1000, visuals: make(map[types.LocalGroupID]visual)}
}

// add appends a tab to the strip, optionally grouped.
func (s *fakeStrip) add(url string, group types.LocalGroupID) *fakeTab {
	s.nextTab++
	t := &fakeTab{id: s.nextTab, url: url, title: url, group: group}
	s.tabs = append(s.tabs, t)
	if group != "" {
		if _, ok := s.visuals[group]; !ok {
			s.visuals[group] = visual{}
		}
	}
	return t
}

func (s *fakeStrip) find(id types.LocalTabID) (int, *fakeTab) {
	for i, t := range s.tabs {
		if t.id == id {
			return i, t
		}
	}
	return -1, nil
}

func (s *fakeStrip) Navigate(tab types.LocalTabID, url string) (int64, error) {
	if _, t := s.find(tab); t == nil {
		return 0, errors.New("no such tab")
	}
	s.nextNav++
	s.navs = append(s.navs, navCall{tab: tab, url: url, id: s.nextNav})
	return s.nextNav, nil
}

func (s *fakeStrip) OpenTab(url string, index int, background bool) (types.LocalTabID, error) {
	s.nextTab++
	t := &fakeTab{id: s.nextTab, url: url, title: url}
	if index < 0 || index > len(s.tabs) {
		index = len(s.tabs)
	}
	s.tabs = append(s.tabs, nil)
	copy(s.tabs[index+1:], s.tabs[index:])
	s.tabs[index] = t
	return t.id, nil
}

func (s *fakeStrip) CloseTab(tab types.LocalTabID) error {
	i, _ := s.find(tab)
	if i < 0 {
		return errors.New("no such tab")
	}
	s.tabs = append(s.tabs[:i], s.tabs[i+1:]...)
	return nil
}

func (s *fakeStrip) MoveTab(tab types.LocalTabID, index int) error {
	i, t := s.find(tab)
	if i < 0 {
		return errors.New("no such tab")
	}
	s.tabs = append(s.tabs[:i], s.tabs[i+1:]...)
	if index > len(s.tabs) {
		index = len(s.tabs)
	}
	s.tabs = append(s.tabs, nil)
	copy(s.tabs[index+1:], s.tabs[index:])
	s.tabs[index] = t
	return nil
}

func (s *fakeStrip) WebContents(tab types.LocalTabID) (WebContents, bool) {
	_, t := s.find(tab)
	if t == nil {
		return nil, false
	}
	return t, true
}

func (s *fakeStrip) TabIndex(tab types.LocalTabID) (int, bool) {
	i, _ := s.find(tab)
	return i, i >= 0
}

func (s *fakeStrip) GroupTabs(group types.LocalGroupID, tabs []types.LocalTabID) error {
	for _, id := range tabs {
		_, t := s.find(id)
		if t == nil {
			return errors.New("no such tab")
		}
		t.group = group
	}
	if _, ok := s.visuals[group]; !ok {
		s.visuals[group] = visual{}
	}
	return nil
}

func (s *fakeStrip) SetGroupVisualData(group types.LocalGroupID, title string, color types.Color) error {
	s.visuals[group] = visual{title: title, color: color}
	return nil
}

func (s *fakeStrip) HasGroup(group types.LocalGroupID) bool {
	_, ok := s.visuals[group]
	return ok
}

func (s *fakeStrip) GroupTabIDs(group types.LocalGroupID) []types.LocalTabID {
	var out []types.LocalTabID
	for _, t := range s.tabs {
		if t.group == group {
			out = append(out, t.id)
		}
	}
	return out
}

func (s *fakeStrip) FirstTabIndex(group types.LocalGroupID) (int, bool) {
	for i, t := range s.tabs {
		if t.group == group {
			return i, true
		}
	}
	return 0, false
}

func (s *fakeStrip) FocusGroup(group types.LocalGroupID) error {
	s.focused = group
	return nil
}

func (s *fakeStrip) CloseGroup(group types.LocalGroupID) error {
	var kept []*fakeTab
	for _, t := range s.tabs {
		if t.group != group {
			kept = append(kept, t)
		}
	}
	s.tabs = kept
	delete(s.visuals, group)
	s.closed = append(s.closed, group)
	return nil
}

type tabUpdate struct {
	local  types.LocalGroupID
	tab    types.LocalTabID
	fields syncservice.TabFields
}

type addCall struct {
	tab      types.LocalTabID
	url      string
	position int
}

// spyService records what the listeners write.
type spyService struct {
	updates      []tabUpdate
	attributions int
	added        []addCall
	removed      []types.LocalTabID
	moved        map[types.LocalTabID]int
	mapped       map[types.LocalTabID]uuid.UUID
	mapOrder     []types.LocalTabID
}

func newSpyService() *spyService {
	return &spyService{
		moved:  make(map[types.LocalTabID]int),
		mapped: make(map[types.LocalTabID]uuid.UUID),
	}
}

func (s *spyService) UpdateTab(local types.LocalGroupID, tab types.LocalTabID, fields syncservice.TabFields) {
	s.updates = append(s.updates, tabUpdate{local: local, tab: tab, fields: fields})
}

func (s *spyService) UpdateAttributions(types.LocalGroupID, types.LocalTabID) {
	s.attributions++
}

func (s *spyService) AddTab(_ types.LocalGroupID, tab types.LocalTabID, _, url string, position int) {
	s.added = append(s.added, addCall{tab: tab, url: url, position: position})
}

func (s *spyService) RemoveTab(_ types.LocalGroupID, tab types.LocalTabID) {
	s.removed = append(s.removed, tab)
}

func (s *spyService) MoveTab(_ types.LocalGroupID, tab types.LocalTabID, newIndex int) {
	s.moved[tab] = newIndex
}

func (s *spyService) UpdateLocalTabID(_ types.LocalGroupID, tabGUID uuid.UUID, tab types.LocalTabID) {
	s.mapped[tab] = tabGUID
	s.mapOrder = append(s.mapOrder, tab)
}
