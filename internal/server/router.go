package server

import (
	"context"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/attach"
	"github.com/lotas/tabgroupsync/internal/sequence"
	"github.com/lotas/tabgroupsync/internal/types"
)

// Handler receives tab-strip events. *attach.Delegate implements it.
type Handler interface {
	OnTabAdded(group types.LocalGroupID, tab types.LocalTabID, stripIndex int)
	OnTabRemoved(tab types.LocalTabID)
	OnTabMoved(tab types.LocalTabID, stripIndex int)
	OnNavigationFinished(tab types.LocalTabID, nav attach.Navigation)
	OnTitleChanged(tab types.LocalTabID, title string)
	OnFaviconChanged(tab types.LocalTabID, icon []byte)
	OnTabActivated(tab types.LocalTabID)
	OnGroupVisualsChanged(group types.LocalGroupID, title string, color types.Color)
	OnGroupClosed(group types.LocalGroupID)
	HandleOpenTabGroupRequest(syncID uuid.UUID) (types.LocalGroupID, error)
	SaveLocalGroup(local types.LocalGroupID, title string, color types.Color) (uuid.UUID, error)
}

var _ Handler = (*attach.Delegate)(nil)

// Router applies extension events to the Mirror and the Handler. Events are
// read on the caller's goroutine and handled on the sequence.
type Router struct {
	seq     *sequence.Sequence
	mirror  *Mirror
	handler Handler
	reply   func(OutgoingMsg) error

	onSnapshot func()
}

// NewRouter wires a Router. reply sends answers to extension requests.
func NewRouter(seq *sequence.Sequence, mirror *Mirror, handler Handler, reply func(OutgoingMsg) error) *Router {
	return &Router{seq: seq, mirror: mirror, handler: handler, reply: reply}
}

// OnSnapshot registers fn to run on the sequence after every snapshot.
func (r *Router) OnSnapshot(fn func()) { r.onSnapshot = fn }

// Run posts every message from msgs to the sequence until ctx is done or
// msgs is closed.
func (r *Router) Run(ctx context.Context, msgs <-chan IncomingMsg) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.seq.Post(func() { r.Dispatch(msg) })
		}
	}
}

// Dispatch handles one message. It must run on the sequence.
func (r *Router) Dispatch(msg IncomingMsg) {
	tab := types.LocalTabID(msg.TabID)
	switch msg.Type {
	case "snapshot":
		r.applySnapshot(msg)

	case "tabCreated":
		state, index, err := ParseTab(msg.Tab)
		if err != nil {
			applog.Error("router.parse_tab", err)
			return
		}
		r.mirror.insertTab(state, index)
		if state.Group != "" {
			r.handler.OnTabAdded(state.Group, state.ID, index)
		}

	case "tabRemoved":
		r.mirror.removeTab(tab)
		r.handler.OnTabRemoved(tab)

	case "tabMoved":
		if r.mirror.moveTab(tab, msg.Index) {
			r.handler.OnTabMoved(tab, msg.Index)
		}

	case "tabGrouped":
		group := types.LocalGroupID(msg.GroupID)
		old, ok := r.mirror.setGroupOf(tab, group)
		if !ok || old == group {
			return
		}
		if old != "" {
			r.handler.OnTabRemoved(tab)
		}
		if group != "" {
			index, _ := r.mirror.TabIndex(tab)
			r.handler.OnTabAdded(group, tab, index)
		}

	case "navigationFinished":
		nav, chain, err := ParseNavigation(msg.Nav)
		if err != nil {
			applog.Error("router.parse_nav", err)
			return
		}
		if nav.HasCommitted && nav.IsPrimaryMainFrame {
			r.mirror.commitNavigation(tab, nav.URL, chain)
		}
		r.handler.OnNavigationFinished(tab, nav)

	case "titleChanged":
		r.mirror.setTitle(tab, msg.Title)
		r.handler.OnTitleChanged(tab, msg.Title)

	case "faviconChanged":
		r.handler.OnFaviconChanged(tab, msg.Favicon)

	case "tabActivated":
		r.handler.OnTabActivated(tab)

	case "groupUpdated":
		g, err := ParseGroup(msg.Group)
		if err != nil {
			applog.Error("router.parse_group", err)
			return
		}
		r.mirror.setGroup(g)
		r.handler.OnGroupVisualsChanged(g.ID, g.Title, g.Color)

	case "groupRemoved":
		group := types.LocalGroupID(msg.GroupID)
		r.mirror.dropGroup(group)
		r.handler.OnGroupClosed(group)

	case "openSavedGroup":
		r.openSavedGroup(msg)

	case "saveGroup":
		r.saveGroup(msg)

	default:
		applog.Warn("router.unknown_type", "type", msg.Type)
	}
}

func (r *Router) applySnapshot(msg IncomingMsg) {
	snap, err := ParseSnapshot(msg)
	if err != nil {
		applog.Error("router.parse_snapshot", err)
		return
	}
	before := r.mirror.GroupIDs()
	r.mirror.Reset(snap)
	for _, id := range before {
		if !r.mirror.HasGroup(id) {
			r.handler.OnGroupClosed(id)
		}
	}
	applog.Info("router.snapshot", "tabs", len(snap.Tabs), "groups", len(snap.Groups))
	if r.onSnapshot != nil {
		r.onSnapshot()
	}
}

func (r *Router) openSavedGroup(msg IncomingMsg) {
	out := OutgoingMsg{ID: msg.ID, Action: "openSavedGroupResult", GUID: msg.GUID}
	syncID, err := uuid.Parse(msg.GUID)
	if err == nil {
		var local types.LocalGroupID
		local, err = r.handler.HandleOpenTabGroupRequest(syncID)
		out.GroupID = string(local)
	}
	if err != nil {
		applog.Error("router.open_saved_group", err, "guid", msg.GUID)
		out.Error = err.Error()
	}
	r.send(out)
}

func (r *Router) saveGroup(msg IncomingMsg) {
	out := OutgoingMsg{ID: msg.ID, Action: "saveGroupResult", GroupID: msg.GroupID}
	guid, err := r.handler.SaveLocalGroup(types.LocalGroupID(msg.GroupID), msg.Title, types.ParseColor(msg.Color))
	if err != nil {
		applog.Error("router.save_group", err, "group", msg.GroupID)
		out.Error = err.Error()
	} else {
		out.GUID = guid.String()
	}
	r.send(out)
}

func (r *Router) send(msg OutgoingMsg) {
	if r.reply == nil {
		return
	}
	if err := r.reply(msg); err != nil {
		applog.Error("router.reply", err, "action", msg.Action)
	}
}
