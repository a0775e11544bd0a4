package main

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/metrics"
	"github.com/lotas/tabgroupsync/internal/model"
	"github.com/lotas/tabgroupsync/internal/sequence"
	"github.com/lotas/tabgroupsync/internal/storage"
	"github.com/lotas/tabgroupsync/internal/syncbridge"
	"github.com/lotas/tabgroupsync/internal/syncservice"
	"github.com/lotas/tabgroupsync/internal/types"
)

// stack is the service side of the program: storage, model, bridge and
// service on one sequence.
type stack struct {
	db        *sql.DB
	cacheGUID string
	store     storage.MappingStore
	transport *syncbridge.DirTransport // nil without a sync dir

	seq    *sequence.Sequence
	model  *model.Model
	bridge *syncbridge.Bridge
	svc    *syncservice.Service

	loaded  bool
	pending []syncbridge.Record
}

func openStack(cfg Config, hasLocalGroup func(types.LocalGroupID) bool) (*stack, error) {
	db, err := storage.OpenDB(cfg.DB)
	if err != nil {
		return nil, err
	}
	st := &stack{db: db}

	if st.cacheGUID, err = storage.LocalCacheGUID(db); err != nil {
		db.Close()
		return nil, err
	}
	if st.store, err = storage.OpenMappingStore(cfg.MappingDSN, db); err != nil {
		db.Close()
		return nil, err
	}

	var proc syncbridge.ChangeProcessor
	var devices metrics.DeviceInfoTracker
	if cfg.SyncDir != "" {
		st.transport, err = syncbridge.NewDirTransport(cfg.SyncDir, selfDevice(st.cacheGUID, cfg.DeviceName))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open sync dir: %w", err)
		}
		proc, devices = st.transport, st.transport
	}

	st.seq = sequence.New()
	st.model = model.New()
	st.bridge = syncbridge.New(st.model, db, proc, st.cacheGUID)
	st.svc = syncservice.New(st.model, st.seq, syncservice.Options{
		CacheGUID:     st.cacheGUID,
		Store:         st.store,
		Metrics:       metrics.NewLogger(devices, st.cacheGUID),
		MetricsDelay:  cfg.MetricsDelay,
		HasLocalGroup: hasLocalGroup,
	})
	applog.Info("stack.open", "db", cfg.DB, "cache_guid", st.cacheGUID, "sync_dir", cfg.SyncDir)
	return st, nil
}

func selfDevice(cacheGUID, name string) metrics.DeviceInfo {
	if name == "" {
		name, _ = os.Hostname()
	}
	osName := runtime.GOOS
	if osName == "darwin" {
		osName = "mac"
	}
	return metrics.DeviceInfo{CacheGUID: cacheGUID, Name: name, OS: osName, FormFactor: "desktop"}
}

// load reads stored groups into the model and applies remote records that
// arrived before. It must run on the sequence and only acts once.
func (st *stack) load() {
	if st.loaded {
		return
	}
	st.loaded = true
	if err := st.bridge.Load(); err != nil {
		applog.Error("stack.load", err)
	}
	if st.transport != nil {
		recs, err := st.transport.ReadAll()
		if err != nil {
			applog.Error("stack.sync.read", err)
		}
		var others []syncbridge.Record
		for _, r := range recs {
			if r.Writer != st.cacheGUID {
				others = append(others, r)
			}
		}
		st.pending = append(others, st.pending...)
	}
	if len(st.pending) > 0 {
		st.bridge.ApplyRemoteChanges(st.pending)
		st.pending = nil
	}
}

// applyRemote applies records from the transport, holding them until the
// model is loaded. It must run on the sequence.
func (st *stack) applyRemote(recs []syncbridge.Record) {
	if !st.loaded {
		st.pending = append(st.pending, recs...)
		return
	}
	st.bridge.ApplyRemoteChanges(recs)
}

func (st *stack) Close() {
	if st.svc != nil {
		st.svc.Shutdown()
	}
	if st.bridge != nil {
		st.bridge.Close()
	}
	if st.store != nil {
		if err := st.store.Close(); err != nil {
			applog.Error("stack.store.close", err)
		}
	}
	st.db.Close()
}
