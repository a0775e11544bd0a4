package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/types"
)

// ErrUnsupportedDSN is returned for mapping store DSNs with an unknown scheme.
var ErrUnsupportedDSN = errors.New("unsupported mapping store dsn")

// MappingStore persists which live tab-strip group each saved group was
// open as, so the association survives a restart.
type MappingStore interface {
	LoadMappings(ctx context.Context) (map[uuid.UUID]types.LocalGroupID, error)
	StoreMapping(ctx context.Context, syncID uuid.UUID, localID types.LocalGroupID) error
	DeleteMapping(ctx context.Context, syncID uuid.UUID) error
	Close() error
}

// OpenMappingStore picks a MappingStore implementation from dsn:
//
//	""  or "sqlite:"          the local_group_mappings table of db
//	"memory:"                 process memory
//	"file:///path/prefs.json" a JSON preference dictionary
//	"postgres://..."          a postgres table
func OpenMappingStore(dsn string, db *sql.DB) (MappingStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "sqlite:"
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mapping dsn: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "sqlite":
		if db == nil {
			return nil, fmt.Errorf("%w: sqlite store needs an open database", ErrUnsupportedDSN)
		}
		return NewSQLiteMappingStore(db), nil
	case "memory", "mem":
		return NewMemoryMappingStore(), nil
	case "file":
		path := parsed.Path
		if path == "" {
			path = parsed.Opaque
		}
		if path == "" {
			return nil, fmt.Errorf("%w: file dsn without path", ErrUnsupportedDSN)
		}
		return NewJSONFileMappingStore(path), nil
	case "postgres", "postgresql":
		return NewPostgresMappingStore(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDSN, parsed.Scheme)
	}
}

// SQLiteMappingStore keeps mappings next to the sync records.
type SQLiteMappingStore struct {
	db *sql.DB
}

func NewSQLiteMappingStore(db *sql.DB) *SQLiteMappingStore {
	return &SQLiteMappingStore{db: db}
}

func (s *SQLiteMappingStore) LoadMappings(ctx context.Context) (map[uuid.UUID]types.LocalGroupID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT sync_guid, local_id FROM local_group_mappings")
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
		guid, err := uuid.Parse(syncID)
		if err != nil {
			continue
		}
		out[guid] = types.LocalGroupID(localID)
	}
	return out, rows.Err()
}

func (s *SQLiteMappingStore) StoreMapping(ctx context.Context, syncID uuid.UUID, localID types.LocalGroupID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_group_mappings (sync_guid, local_id, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (sync_guid) DO UPDATE SET local_id = excluded.local_id, updated_at = CURRENT_TIMESTAMP`,
		syncID.String(), string(localID))
	if err != nil {
		return fmt.Errorf("store mapping %s: %w", syncID, err)
	}
	return nil
}

func (s *SQLiteMappingStore) DeleteMapping(ctx context.Context, syncID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM local_group_mappings WHERE sync_guid = ?", syncID.String()); err != nil {
		return fmt.Errorf("delete mapping %s: %w", syncID, err)
	}
	return nil
}

// Close is a no-op; the database belongs to the caller.
func (s *SQLiteMappingStore) Close() error { return nil }

// MemoryMappingStore is a MappingStore that forgets everything on exit.
type MemoryMappingStore struct {
	mu       sync.Mutex
	mappings map[uuid.UUID]types.LocalGroupID
}

func NewMemoryMappingStore() *MemoryMappingStore {
	return &MemoryMappingStore{mappings: make(map[uuid.UUID]types.LocalGroupID)}
}

func (s *MemoryMappingStore) LoadMappings(context.Context) (map[uuid.UUID]types.LocalGroupID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]types.LocalGroupID, len(s.mappings))
	for k, v := range s.mappings {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryMappingStore) StoreMapping(_ context.Context, syncID uuid.UUID, localID types.LocalGroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[syncID] = localID
	return nil
}

func (s *MemoryMappingStore) DeleteMapping(_ context.Context, syncID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mappings, syncID)
	return nil
}

func (s *MemoryMappingStore) Close() error { return nil }

// JSONFileMappingStore stores mappings as a preference dictionary keyed by
// the local group id, with the saved group guid as the value.
type JSONFileMappingStore struct {
	mu   sync.Mutex
	path string
}

func NewJSONFileMappingStore(path string) *JSONFileMappingStore {
	return &JSONFileMappingStore{path: path}
}

func (s *JSONFileMappingStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	prefs := map[string]string{}
	if len(data) == 0 {
		return prefs, nil
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return prefs, nil
}

func (s *JSONFileMappingStore) write(prefs map[string]string) error {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}

func (s *JSONFileMappingStore) LoadMappings(context.Context) (map[uuid.UUID]types.LocalGroupID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]types.LocalGroupID, len(prefs))
	for localID, syncID := range prefs {
		guid, err := uuid.Parse(syncID)
		if err != nil {
			continue
		}
		out[guid] = types.LocalGroupID(localID)
	}
	return out, nil
}

func (s *JSONFileMappingStore) StoreMapping(_ context.Context, syncID uuid.UUID, localID types.LocalGroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, err := s.read()
	if err != nil {
		return err
	}
	for k, v := range prefs {
		if v == syncID.String() {
			delete(prefs, k)
		}
	}
	prefs[string(localID)] = syncID.String()
	return s.write(prefs)
}

func (s *JSONFileMappingStore) DeleteMapping(_ context.Context, syncID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs, err := s.read()
	if err != nil {
		return err
	}
	changed := false
	for k, v := range prefs {
		if v == syncID.String() {
			delete(prefs, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.write(prefs)
}

func (s *JSONFileMappingStore) Close() error { return nil }
