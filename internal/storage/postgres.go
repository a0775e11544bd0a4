package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/lotas/tabgroupsync/internal/types"
)

const (
	postgresMappingTable     = "tabgroupsync_local_group_mappings"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresMappingStore keeps mappings in a shared postgres database, for
// installs whose profile directory is not durable.
type PostgresMappingStore struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresMappingStore(dsn string) (*PostgresMappingStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty postgres dsn", ErrUnsupportedDSN)
	}
	return &PostgresMappingStore{dsn: dsn, openDB: sql.Open}, nil
}

func (s *PostgresMappingStore) ensureReady(ctx context.Context) error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = fmt.Errorf("open postgres: %w", err)
			return
		}
		ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
		defer cancel()
		_, err = db.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				sync_guid  TEXT PRIMARY KEY,
				local_id   TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, postgresMappingTable))
		if err != nil {
			db.Close()
			s.initErr = fmt.Errorf("create mapping table: %w", err)
			return
		}
		s.db = db
	})
	return s.initErr
}

func (s *PostgresMappingStore) LoadMappings(ctx context.Context) (map[uuid.UUID]types.LocalGroupID, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT sync_guid, local_id FROM %s", postgresMappingTable))
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]types.LocalGroupID)
	for rows.Next() {
		var syncID, localID string
		if err := rows.Scan(&syncID, &localID); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		if guid, err := uuid.Parse(syncID); err == nil {
			out[guid] = types.LocalGroupID(localID)
		}
	}
	return out, rows.Err()
}

func (s *PostgresMappingStore) StoreMapping(ctx context.Context, syncID uuid.UUID, localID types.LocalGroupID) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (sync_guid, local_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (sync_guid)
		DO UPDATE SET local_id = EXCLUDED.local_id, updated_at = NOW()`, postgresMappingTable),
		syncID.String(), string(localID))
	if err != nil {
		return fmt.Errorf("store mapping %s: %w", syncID, err)
	}
	return nil
}

func (s *PostgresMappingStore) DeleteMapping(ctx context.Context, syncID uuid.UUID) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE sync_guid = $1", postgresMappingTable), syncID.String()); err != nil {
		return fmt.Errorf("delete mapping %s: %w", syncID, err)
	}
	return nil
}

func (s *PostgresMappingStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
