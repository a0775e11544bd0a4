package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/attach"
	"github.com/lotas/tabgroupsync/internal/sequence"
	"github.com/lotas/tabgroupsync/internal/types"
)

// fakeCommander answers Call with increasing tab ids.
type fakeCommander struct {
	sent    []OutgoingMsg
	nextTab int64
	err     error
}

func (c *fakeCommander) Send(msg OutgoingMsg) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeCommander) Call(_ context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	if err := c.Send(msg); err != nil {
		return IncomingMsg{}, err
	}
	ok := true
	resp := IncomingMsg{Type: "response", ID: msg.ID, OK: &ok}
	if msg.Action == "openTab" {
		c.nextTab++
		resp.TabID = c.nextTab
	}
	return resp, nil
}

func (c *fakeCommander) actions() []string {
	var out []string
	for _, m := range c.sent {
		out = append(out, m.Action)
	}
	return out
}

type handlerCall struct {
	name  string
	group types.LocalGroupID
	tab   types.LocalTabID
	index int
}

// recordingHandler records every event it receives.
type recordingHandler struct {
	calls   []handlerCall
	navs    []attach.Navigation
	opened  []uuid.UUID
	saved   []types.LocalGroupID
	openErr error
}

func (h *recordingHandler) add(name string, group types.LocalGroupID, tab types.LocalTabID, index int) {
	h.calls = append(h.calls, handlerCall{name: name, group: group, tab: tab, index: index})
}

func (h *recordingHandler) OnTabAdded(g types.LocalGroupID, tab types.LocalTabID, i int) {
	h.add("added", g, tab, i)
}
func (h *recordingHandler) OnTabRemoved(tab types.LocalTabID) { h.add("removed", "", tab, 0) }
func (h *recordingHandler) OnTabMoved(tab types.LocalTabID, i int) {
	h.add("moved", "", tab, i)
}
func (h *recordingHandler) OnNavigationFinished(tab types.LocalTabID, nav attach.Navigation) {
	h.add("nav", "", tab, 0)
	h.navs = append(h.navs, nav)
}
func (h *recordingHandler) OnTitleChanged(tab types.LocalTabID, _ string) { h.add("title", "", tab, 0) }
func (h *recordingHandler) OnFaviconChanged(tab types.LocalTabID, _ []byte) {
	h.add("favicon", "", tab, 0)
}
func (h *recordingHandler) OnTabActivated(tab types.LocalTabID) { h.add("activated", "", tab, 0) }
func (h *recordingHandler) OnGroupVisualsChanged(g types.LocalGroupID, _ string, _ types.Color) {
	h.add("visuals", g, 0, 0)
}
func (h *recordingHandler) OnGroupClosed(g types.LocalGroupID) { h.add("closed", g, 0, 0) }
func (h *recordingHandler) HandleOpenTabGroupRequest(id uuid.UUID) (types.LocalGroupID, error) {
	h.opened = append(h.opened, id)
	return "opened-group", h.openErr
}
func (h *recordingHandler) SaveLocalGroup(local types.LocalGroupID, _ string, _ types.Color) (uuid.UUID, error) {
	h.saved = append(h.saved, local)
	return uuid.New(), nil
}

func (h *recordingHandler) names() []string {
	var out []string
	for _, c := range h.calls {
		out = append(out, c.name)
	}
	return out
}

type routerFixture struct {
	cmd     *fakeCommander
	mirror  *Mirror
	handler *recordingHandler
	router  *Router
	replies []OutgoingMsg
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{cmd: &fakeCommander{nextTab: 500}, handler: &recordingHandler{}}
	f.mirror = NewMirror(f.cmd)
	f.router = NewRouter(sequence.New(), f.mirror, f.handler, func(m OutgoingMsg) error {
		f.replies = append(f.replies, m)
		return nil
	})
	f.router.Dispatch(IncomingMsg{
		Type:   "snapshot",
		Tabs:   json.RawMessage(`[{"id":1,"url":"https://a.example/","groupId":"g","index":0},{"id":2,"url":"https://b.example/","groupId":"g","index":1},{"id":3,"url":"https://c.example/","index":2}]`),
		Groups: json.RawMessage(`[{"id":"g","title":"Work","color":"red"}]`),
	})
	return f
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMirrorAnswersFromSnapshot(t *testing.T) {
	f := newRouterFixture(t)
	m := f.mirror

	if !m.HasGroup("g") || m.HasGroup("other") {
		t.Error("HasGroup wrong")
	}
	if ids := m.GroupTabIDs("g"); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("GroupTabIDs = %v", ids)
	}
	if i, ok := m.FirstTabIndex("g"); !ok || i != 0 {
		t.Errorf("FirstTabIndex = %d, %v", i, ok)
	}
	wc, ok := m.WebContents(3)
	if !ok || wc.URL() != "https://c.example/" {
		t.Errorf("WebContents(3) = %v, %v", wc, ok)
	}
	if g, _ := m.Group("g"); g.Title != "Work" || g.Color != types.ColorRed {
		t.Errorf("Group(g) = %+v", g)
	}
}

func TestMirrorCommands(t *testing.T) {
	f := newRouterFixture(t)
	m := f.mirror

	id, err := m.OpenTab("https://n.example/", 1, true)
	if err != nil || id != 501 {
		t.Fatalf("OpenTab = %d, %v", id, err)
	}
	if i, _ := m.TabIndex(id); i != 1 {
		t.Errorf("opened tab at %d, want 1", i)
	}
	if err := m.GroupTabs("h", []types.LocalTabID{id}); err != nil {
		t.Fatal(err)
	}
	if !m.HasGroup("h") {
		t.Error("group h not created")
	}

	nav1, _ := m.Navigate(1, "https://x.example/")
	nav2, _ := m.Navigate(2, "https://y.example/")
	if nav1 == nav2 {
		t.Errorf("navigation ids repeat: %d", nav1)
	}
	if _, err := m.Navigate(404, "https://z.example/"); err == nil {
		t.Error("navigating a missing tab succeeded")
	}
	if f.cmd.sent[len(f.cmd.sent)-1].NavID != nav2 {
		t.Errorf("navigate command without nav id: %+v", f.cmd.sent[len(f.cmd.sent)-1])
	}

	if err := m.CloseGroup("g"); err != nil {
		t.Fatal(err)
	}
	if m.HasGroup("g") || m.TabCount() != 2 {
		t.Errorf("after CloseGroup: has=%v tabs=%d", m.HasGroup("g"), m.TabCount())
	}

	want := []string{"openTab", "groupTabs", "navigate", "navigate", "closeGroup"}
	if got := f.cmd.actions(); !equalStrings(got, want) {
		t.Errorf("actions = %v, want %v", got, want)
	}
}

func TestMirrorReportsDisconnect(t *testing.T) {
	f := newRouterFixture(t)
	f.cmd.err = ErrNotConnected

	if _, err := f.mirror.OpenTab("https://a.example/", -1, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("OpenTab = %v", err)
	}
	if err := f.mirror.CloseTab(1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("CloseTab = %v", err)
	}
	if f.mirror.TabCount() != 3 {
		t.Errorf("mirror changed despite failed command")
	}
}

func TestRouterTabEvents(t *testing.T) {
	f := newRouterFixture(t)
	r := f.router

	r.Dispatch(IncomingMsg{Type: "tabCreated", Tab: json.RawMessage(`{"id":9,"url":"https://d.example/","groupId":"g","index":2}`)})
	r.Dispatch(IncomingMsg{Type: "tabCreated", Tab: json.RawMessage(`{"id":10,"url":"https://e.example/","index":4}`)})
	r.Dispatch(IncomingMsg{Type: "tabMoved", TabID: 9, Index: 0})
	r.Dispatch(IncomingMsg{Type: "tabMoved", TabID: 404, Index: 0})
	r.Dispatch(IncomingMsg{Type: "tabGrouped", TabID: 10, GroupID: "g"})
	r.Dispatch(IncomingMsg{Type: "tabGrouped", TabID: 10, GroupID: "g"})
	r.Dispatch(IncomingMsg{Type: "tabGrouped", TabID: 2, GroupID: ""})
	r.Dispatch(IncomingMsg{Type: "tabRemoved", TabID: 1})
	r.Dispatch(IncomingMsg{Type: "tabActivated", TabID: 9})

	want := []string{"added", "moved", "added", "removed", "removed", "activated"}
	if got := f.handler.names(); !equalStrings(got, want) {
		t.Fatalf("handler calls = %v, want %v", got, want)
	}
	if c := f.handler.calls[0]; c.group != "g" || c.tab != 9 || c.index != 2 {
		t.Errorf("first add = %+v", c)
	}
	if ids := f.mirror.GroupTabIDs("g"); len(ids) != 2 || ids[0] != 9 || ids[1] != 10 {
		t.Errorf("group g = %v", ids)
	}
}

func TestRouterNavigationUpdatesMirror(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Dispatch(IncomingMsg{Type: "navigationFinished", TabID: 1, Nav: json.RawMessage(
		`{"id":5,"url":"https://a2.example/","isPrimaryMainFrame":true,"hasCommitted":true,"redirectChain":["https://a1.example/","https://a2.example/"]}`)})
	f.router.Dispatch(IncomingMsg{Type: "navigationFinished", TabID: 1, Nav: json.RawMessage(
		`{"id":6,"url":"https://frame.example/","isPrimaryMainFrame":false,"hasCommitted":true}`)})
	f.router.Dispatch(IncomingMsg{Type: "titleChanged", TabID: 1, Title: "A2"})

	wc, _ := f.mirror.WebContents(1)
	if wc.URL() != "https://a2.example/" || wc.Title() != "A2" || len(wc.RedirectChain()) != 2 {
		t.Errorf("tab 1 = %q %q %v", wc.URL(), wc.Title(), wc.RedirectChain())
	}
	if len(f.handler.navs) != 2 || f.handler.navs[0].ID != 5 {
		t.Errorf("navs = %+v", f.handler.navs)
	}
}

func TestRouterGroupEvents(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Dispatch(IncomingMsg{Type: "groupUpdated", Group: json.RawMessage(`{"id":"g","title":"Play","color":"cyan"}`)})
	if g, _ := f.mirror.Group("g"); g.Title != "Play" || g.Color != types.ColorCyan {
		t.Errorf("group = %+v", g)
	}
	f.router.Dispatch(IncomingMsg{Type: "groupRemoved", GroupID: "g"})
	if f.mirror.HasGroup("g") || len(f.mirror.GroupTabIDs("g")) != 0 {
		t.Error("group still mirrored")
	}
	if got := f.handler.names(); !equalStrings(got, []string{"visuals", "closed"}) {
		t.Errorf("handler calls = %v", got)
	}
}

func TestRouterSnapshotClosesVanishedGroups(t *testing.T) {
	f := newRouterFixture(t)
	f.router.Dispatch(IncomingMsg{Type: "snapshot", Tabs: json.RawMessage(`[{"id":3,"url":"https://c.example/","index":0}]`)})

	if got := f.handler.names(); !equalStrings(got, []string{"closed"}) || f.handler.calls[0].group != "g" {
		t.Errorf("handler calls = %+v", f.handler.calls)
	}
	if f.mirror.TabCount() != 1 {
		t.Errorf("tabs = %d", f.mirror.TabCount())
	}
}

func TestRouterRequests(t *testing.T) {
	f := newRouterFixture(t)
	guid := uuid.New()

	f.router.Dispatch(IncomingMsg{Type: "openSavedGroup", ID: "r1", GUID: guid.String()})
	f.router.Dispatch(IncomingMsg{Type: "openSavedGroup", ID: "r2", GUID: "nonsense"})
	f.handler.openErr = attach.ErrGroupNotFound
	f.router.Dispatch(IncomingMsg{Type: "openSavedGroup", ID: "r3", GUID: uuid.NewString()})
	f.router.Dispatch(IncomingMsg{Type: "saveGroup", ID: "r4", GroupID: "g", Title: "Work", Color: "red"})

	if len(f.replies) != 4 {
		t.Fatalf("replies = %+v", f.replies)
	}
	if r := f.replies[0]; r.ID != "r1" || r.GroupID != "opened-group" || r.Error != "" {
		t.Errorf("open reply = %+v", r)
	}
	if f.replies[1].Error == "" || f.replies[2].Error == "" {
		t.Errorf("errors not reported: %+v %+v", f.replies[1], f.replies[2])
	}
	if r := f.replies[3]; r.ID != "r4" || r.GUID == "" {
		t.Errorf("save reply = %+v", r)
	}
	if len(f.handler.opened) != 2 || f.handler.opened[0] != guid || len(f.handler.saved) != 1 {
		t.Errorf("opened=%v saved=%v", f.handler.opened, f.handler.saved)
	}
}

func TestRouterRunPostsToSequence(t *testing.T) {
	f := newRouterFixture(t)
	seq := sequence.New()
	f.router.seq = seq

	msgs := make(chan IncomingMsg, 2)
	msgs <- IncomingMsg{Type: "tabActivated", TabID: 1}
	msgs <- IncomingMsg{Type: "tabActivated", TabID: 2}
	close(msgs)
	f.router.Run(context.Background(), msgs)

	if len(f.handler.calls) != 0 {
		t.Fatal("events handled off the sequence")
	}
	if n := seq.RunUntilIdle(); n != 2 {
		t.Errorf("ran %d tasks, want 2", n)
	}
	if got := f.handler.names(); !equalStrings(got, []string{"activated", "activated"}) {
		t.Errorf("handler calls = %v", got)
	}
}
