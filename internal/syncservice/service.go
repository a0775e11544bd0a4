// Package syncservice is the public face of saved tab groups. It turns model
// events into observer notifications, holds back groups that arrive from sync
// without tabs, attributes local edits to this device and persists which
// saved group is open as which tab-strip group.
//
// All methods must run on the Service's sequence.
package syncservice

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/metrics"
	"github.com/lotas/tabgroupsync/internal/model"
	"github.com/lotas/tabgroupsync/internal/sequence"
	"github.com/lotas/tabgroupsync/internal/types"
)

// DefaultMetricsDelay is how long after load startup metrics are recorded.
const DefaultMetricsDelay = 10 * time.Second

// MappingStore persists saved guid -> local group id across restarts.
type MappingStore interface {
	LoadMappings(ctx context.Context) (map[uuid.UUID]types.LocalGroupID, error)
	StoreMapping(ctx context.Context, syncID uuid.UUID, localID types.LocalGroupID) error
	DeleteMapping(ctx context.Context, syncID uuid.UUID) error
}

// Metrics receives startup and per-action metrics.
type Metrics interface {
	RecordMetricsOnStartup(groups []types.SavedTabGroup) metrics.StartupCounts
	RecordTabGroupEvent(name metrics.EventName, g types.SavedTabGroup, tabID uuid.UUID)
}

// Options configures a Service. Store is required.
type Options struct {
	// CacheGUID identifies this device in attribution fields.
	CacheGUID string
	Store     MappingStore
	Metrics   Metrics
	// MetricsDelay defaults to DefaultMetricsDelay. Negative records
	// immediately after load.
	MetricsDelay time.Duration
	// HasLocalGroup reports whether a tab-strip group with the id is open
	// right now. Nil means none are.
	HasLocalGroup func(types.LocalGroupID) bool
}

// Service reconciles the model with tab-strip state and observers.
type Service struct {
	model   *model.Model
	seq     *sequence.Sequence
	store   MappingStore
	metrics Metrics

	cacheGUID     string
	metricsDelay  time.Duration
	hasLocalGroup func(types.LocalGroupID) bool

	// unannounced holds sync-added groups observers have not been told
	// about: adds still queued and groups that arrived without tabs.
	unannounced map[uuid.UUID]bool
	// queued counts sync events per group still waiting on the sequence.
	queued map[uuid.UUID]int
	// caughtUp marks groups whose observers already got the state their
	// queued sync events would report.
	caughtUp map[uuid.UUID]bool

	observers    map[int]func(Event)
	nextObserver int

	initialized     bool
	deletedGroupIDs []types.LocalGroupID
	cancelMetrics   func()
	unsubscribe     func()
}

// New wires a Service to m. The model should not be loaded yet; the Service
// finishes initialization when it sees the model's load event.
func New(m *model.Model, seq *sequence.Sequence, opts Options) *Service {
	s := &Service{
		model:         m,
		seq:           seq,
		store:         opts.Store,
		metrics:       opts.Metrics,
		cacheGUID:     opts.CacheGUID,
		metricsDelay:  opts.MetricsDelay,
		hasLocalGroup: opts.HasLocalGroup,
		unannounced:   make(map[uuid.UUID]bool),
		queued:        make(map[uuid.UUID]int),
		caughtUp:      make(map[uuid.UUID]bool),
		observers:     make(map[int]func(Event)),
	}
	if s.metricsDelay == 0 {
		s.metricsDelay = DefaultMetricsDelay
	}
	if s.hasLocalGroup == nil {
		s.hasLocalGroup = func(types.LocalGroupID) bool { return false }
	}
	s.unsubscribe = m.Subscribe(s.onModelEvent)
	if m.IsLoaded() {
		s.onModelLoaded()
	}
	return s
}

// Shutdown detaches from the model and cancels pending metrics.
func (s *Service) Shutdown() {
	if s.cancelMetrics != nil {
		s.cancelMetrics()
	}
	s.unsubscribe()
}

// AddObserver registers fn. If the service is already initialized fn gets
// an EventInitialized right away. The returned func removes the observer.
func (s *Service) AddObserver(fn func(Event)) (remove func()) {
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	if s.initialized {
		fn(Event{Kind: EventInitialized})
	}
	return func() { delete(s.observers, id) }
}

func (s *Service) notify(ev Event) {
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if fn, ok := s.observers[id]; ok {
			fn(ev)
		}
	}
}

// IsInitialized reports whether stored groups and mappings have been loaded.
func (s *Service) IsInitialized() bool { return s.initialized }

// CacheGUID returns this device's cache guid.
func (s *Service) CacheGUID() string { return s.cacheGUID }

// IsRemoteDevice reports whether cacheGUID belongs to another device. An
// empty guid is unknown, not remote.
func (s *Service) IsRemoteDevice(cacheGUID string) bool {
	return cacheGUID != "" && cacheGUID != s.cacheGUID
}

// GetDeletedGroupIDs returns local ids from the persisted mapping that could
// not be re-attached at startup: the saved group is gone or the tab-strip
// group no longer exists.
func (s *Service) GetDeletedGroupIDs() []types.LocalGroupID {
	return append([]types.LocalGroupID(nil), s.deletedGroupIDs...)
}

func (s *Service) onModelEvent(ev model.Event) {
	switch ev.Kind {
	case model.EventLoaded:
		s.onModelLoaded()
	case model.EventLocalIDChanged:
		s.onLocalIDChanged(ev)
	default:
		if ev.Source == types.SourceRemote {
			// Sync applies changes in batches; handle after the batch.
			if ev.Kind == model.EventAdded {
				s.unannounced[ev.GroupID] = true
			}
			s.queued[ev.GroupID]++
			s.seq.Post(func() { s.handleQueued(ev) })
			return
		}
		s.handleGroupEvent(ev)
	}
}

func (s *Service) handleQueued(ev model.Event) {
	id := ev.GroupID
	if s.queued[id]--; s.queued[id] <= 0 {
		delete(s.queued, id)
	}
	if s.caughtUp[id] && ev.Kind != model.EventRemoved {
		applog.Info("service.group.caught_up", "guid", id, "event", ev.Kind)
	} else {
		s.handleGroupEvent(ev)
	}
	if s.queued[id] == 0 {
		delete(s.caughtUp, id)
	}
}

// handleGroupEvent reads added and updated groups back from the model, so
// queued sync events report the group as it is now. Removals carry the
// group as it was just before deletion.
func (s *Service) handleGroupEvent(ev model.Event) {
	id := ev.GroupID
	if ev.Kind == model.EventRemoved {
		s.deleteMapping(id)
		if s.unannounced[id] {
			// Never announced, so nothing to retract.
			delete(s.unannounced, id)
			return
		}
		if s.metrics != nil && ev.Source == types.SourceLocal {
			s.metrics.RecordTabGroupEvent(metrics.EventTabGroupRemoved, ev.Group, uuid.Nil)
		}
		s.notify(Event{Kind: EventGroupRemoved, Source: ev.Source, Group: ev.Group, SyncID: id, LocalID: ev.LocalGroupID})
		return
	}

	g, ok := s.model.Get(id)
	if !ok {
		applog.Info("service.group.gone", "guid", id, "event", ev.Kind)
		return
	}
	if s.unannounced[id] {
		if len(g.Tabs) == 0 {
			applog.Info("service.group.deferred", "guid", id)
			return
		}
		delete(s.unannounced, id)
		applog.Info("service.group.announced", "guid", id, "tabs", len(g.Tabs))
		s.announce(EventGroupAdded, ev.Source, g, uuid.Nil)
		return
	}
	if ev.Kind == model.EventAdded {
		s.announce(EventGroupAdded, ev.Source, g, uuid.Nil)
		return
	}
	s.announce(EventGroupUpdated, ev.Source, g, ev.TabID)
}

func (s *Service) announce(kind EventKind, source types.TriggerSource, g types.SavedTabGroup, tabID uuid.UUID) {
	if kind == EventGroupAdded && g.LocalGroupID != "" {
		s.storeMapping(g.GUID, g.LocalGroupID)
	}
	if source == types.SourceRemote && s.queued[g.GUID] > 0 {
		s.caughtUp[g.GUID] = true
	}
	s.notify(Event{Kind: kind, Source: source, Group: g, SyncID: g.GUID, LocalID: g.LocalGroupID, TabID: tabID})
}

func (s *Service) onLocalIDChanged(ev model.Event) {
	if ev.TabID != uuid.Nil {
		return
	}
	if ev.Group.LocalGroupID == "" {
		s.deleteMapping(ev.GroupID)
		return
	}
	s.storeMapping(ev.GroupID, ev.Group.LocalGroupID)
}

func (s *Service) onModelLoaded() {
	if s.initialized {
		return
	}
	ctx := context.Background()
	mappings, err := s.store.LoadMappings(ctx)
	if err != nil {
		applog.Error("service.mappings.load", err)
		mappings = nil
	}

	syncIDs := make([]uuid.UUID, 0, len(mappings))
	for id := range mappings {
		syncIDs = append(syncIDs, id)
	}
	sort.Slice(syncIDs, func(i, j int) bool { return syncIDs[i].String() < syncIDs[j].String() })

	reattached := 0
	for _, syncID := range syncIDs {
		localID := mappings[syncID]
		if s.model.Contains(syncID) && s.hasLocalGroup(localID) {
			s.model.OnGroupOpenedInTabStrip(syncID, localID)
			reattached++
			continue
		}
		s.deletedGroupIDs = append(s.deletedGroupIDs, localID)
		s.deleteMapping(syncID)
	}

	s.initialized = true
	applog.Info("service.initialized",
		"groups", s.model.Count(),
		"reattached", reattached,
		"deleted_candidates", len(s.deletedGroupIDs),
	)
	s.notify(Event{Kind: EventInitialized})

	if s.metrics != nil {
		s.cancelMetrics = s.seq.PostDelayed(s.metricsDelay, func() {
			s.metrics.RecordMetricsOnStartup(s.model.Groups())
		})
	}
}

func (s *Service) storeMapping(syncID uuid.UUID, localID types.LocalGroupID) {
	if err := s.store.StoreMapping(context.Background(), syncID, localID); err != nil {
		applog.Error("service.mapping.store", err, "guid", syncID, "local_id", localID)
	}
}

func (s *Service) deleteMapping(syncID uuid.UUID) {
	if err := s.store.DeleteMapping(context.Background(), syncID); err != nil {
		applog.Error("service.mapping.delete", err, "guid", syncID)
	}
}
