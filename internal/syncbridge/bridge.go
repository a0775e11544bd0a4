package syncbridge

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/model"
	"github.com/lotas/tabgroupsync/internal/storage"
	"github.com/lotas/tabgroupsync/internal/types"
)

// ChangeProcessor sends local changes to the sync server.
type ChangeProcessor interface {
	Commit(ctx context.Context, records []Record) error
}

// Bridge persists model changes to sqlite, uploads local ones and applies
// remote records to the model. It runs on the model's sequence.
type Bridge struct {
	model     *model.Model
	db        *sql.DB
	proc      ChangeProcessor
	cacheGUID string
	now       func() time.Time

	// orphans holds tab records whose group has not arrived, by group guid.
	orphans map[uuid.UUID]map[uuid.UUID]Record

	unsubscribe func()
}

// New subscribes a Bridge to m. proc may be nil when there is no transport;
// changes are then only stored locally.
func New(m *model.Model, db *sql.DB, proc ChangeProcessor, cacheGUID string) *Bridge {
	b := &Bridge{
		model:     m,
		db:        db,
		proc:      proc,
		cacheGUID: cacheGUID,
		now:       time.Now,
		orphans:   make(map[uuid.UUID]map[uuid.UUID]Record),
	}
	b.unsubscribe = m.Subscribe(b.onModelEvent)
	return b
}

// Close stops following the model.
func (b *Bridge) Close() { b.unsubscribe() }

// Load reads stored groups into the model. The model publishes its load
// event even when reading fails, so observers never wait forever.
func (b *Bridge) Load() error {
	groups, err := storage.LoadGroups(b.db)
	if err != nil {
		b.model.LoadStoredEntries(nil)
		return fmt.Errorf("load saved groups: %w", err)
	}
	b.model.LoadStoredEntries(groups)
	return nil
}

// OrphanCount returns how many tab records wait for their group.
func (b *Bridge) OrphanCount() int {
	n := 0
	for _, tabs := range b.orphans {
		n += len(tabs)
	}
	return n
}

func (b *Bridge) onModelEvent(ev model.Event) {
	switch ev.Kind {
	case model.EventAdded, model.EventUpdated:
		if err := storage.SaveGroup(b.db, ev.Group); err != nil {
			applog.Error("bridge.persist", err, "guid", ev.GroupID)
		}
		if ev.Source == types.SourceLocal {
			b.upload(b.changedRecords(ev))
		}
	case model.EventRemoved:
		if err := storage.DeleteGroup(b.db, ev.GroupID); err != nil {
			applog.Error("bridge.persist_delete", err, "guid", ev.GroupID)
		}
		if ev.Source == types.SourceLocal {
			now := b.now()
			recs := []Record{Tombstone(GroupRecord(ev.Group), b.cacheGUID, now)}
			for _, t := range ev.Group.Tabs {
				recs = append(recs, Tombstone(TabRecord(ev.GroupID, t), b.cacheGUID, now))
			}
			b.upload(recs)
		}
	}
}

// changedRecords picks what a local add or update has to send. A removed tab
// goes out as a tombstone; otherwise every tab is sent since inserts and
// moves renumber siblings.
func (b *Bridge) changedRecords(ev model.Event) []Record {
	if ev.Kind == model.EventAdded || ev.TabID == uuid.Nil {
		return GroupRecords(ev.Group)
	}
	recs := []Record{GroupRecord(ev.Group)}
	tab := ev.Group.Tab(ev.TabID)
	if tab == nil {
		return append(recs, Tombstone(Record{Kind: KindTab, GUID: ev.TabID, GroupGUID: ev.GroupID}, b.cacheGUID, b.now()))
	}
	for _, t := range ev.Group.Tabs {
		recs = append(recs, TabRecord(ev.GroupID, t))
	}
	return recs
}

func (b *Bridge) upload(recs []Record) {
	if b.proc == nil || len(recs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.proc.Commit(ctx, recs); err != nil {
		applog.Error("bridge.upload", err, "records", len(recs))
		return
	}
	applog.Info("bridge.upload", "records", len(recs))
}

// ApplyRemoteChanges applies records received from sync, groups before tabs.
// Conflicts resolve by arrival order: the last applied record wins. It
// returns how many records changed the model or the orphan set.
func (b *Bridge) ApplyRemoteChanges(recs []Record) int {
	sorted := append([]Record(nil), recs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Kind == KindGroup && sorted[j].Kind != KindGroup
	})

	applied := 0
	for _, r := range sorted {
		var ok bool
		switch r.Kind {
		case KindGroup:
			ok = b.applyGroup(r)
		case KindTab:
			ok = b.applyTab(r)
		default:
			applog.Warn("bridge.apply.unknown_kind", "kind", r.Kind, "guid", r.GUID)
		}
		if ok {
			applied++
		}
	}
	applog.Info("bridge.apply", "records", len(recs), "applied", applied, "orphans", b.OrphanCount())
	return applied
}

func (b *Bridge) applyGroup(r Record) bool {
	existing, exists := b.model.Get(r.GUID)
	if r.Deleted {
		delete(b.orphans, r.GUID)
		if !exists {
			return false
		}
		b.model.RemovedFromSync(r.GUID)
		return true
	}

	if exists {
		color := types.ParseColor(r.Color)
		if existing.Title == r.Title && existing.Color == color {
			return false
		}
		b.model.UpdatedVisualDataFromSync(r.GUID, r.Title, color)
		return true
	}

	g := r.group()
	pending := b.orphans[r.GUID]
	delete(b.orphans, r.GUID)
	tabs := make([]Record, 0, len(pending))
	for _, t := range pending {
		tabs = append(tabs, t)
	}
	sort.Slice(tabs, func(i, j int) bool {
		if tabs[i].Position != tabs[j].Position {
			return tabs[i].Position < tabs[j].Position
		}
		return tabs[i].GUID.String() < tabs[j].GUID.String()
	})
	for _, t := range tabs {
		g.InsertTab(t.tab(), len(g.Tabs))
	}
	b.model.AddedFromSync(g)
	return true
}

func (b *Bridge) applyTab(r Record) bool {
	g, ok := b.model.Get(r.GroupGUID)
	if !ok {
		if r.Deleted {
			if held := b.orphans[r.GroupGUID]; held != nil {
				delete(held, r.GUID)
			}
			return false
		}
		held := b.orphans[r.GroupGUID]
		if held == nil {
			held = make(map[uuid.UUID]Record)
			b.orphans[r.GroupGUID] = held
		}
		held[r.GUID] = r
		applog.Info("bridge.tab.orphaned", "guid", r.GUID, "group", r.GroupGUID)
		return true
	}

	existing := g.Tab(r.GUID)
	if r.Deleted {
		if existing == nil {
			return false
		}
		b.model.RemoveTabFromGroupFromSync(r.GroupGUID, r.GUID)
		return true
	}
	if existing == nil {
		b.model.AddTabToGroupFromSync(r.GroupGUID, r.tab())
		return true
	}
	if existing.URL == r.URL && existing.Title == r.Title && existing.Position == r.Position {
		return false
	}
	tab := r.tab()
	tab.Favicon = existing.Favicon
	b.model.UpdateTabInGroupFromSync(r.GroupGUID, tab)
	return true
}
