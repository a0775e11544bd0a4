package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "install metadata",
		SQL: `
CREATE TABLE IF NOT EXISTS meta (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL
);`,
	},
	{
		Version:     2,
		Description: "local group id mappings",
		SQL: `
CREATE TABLE IF NOT EXISTS local_group_mappings (
    sync_guid   TEXT PRIMARY KEY,
    local_id    TEXT NOT NULL,
    updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);`,
	},
	{
		Version:     3,
		Description: "saved group and tab sync records",
		SQL: `
CREATE TABLE IF NOT EXISTS saved_groups (
    guid                    TEXT PRIMARY KEY,
    title                   TEXT NOT NULL DEFAULT '',
    color                   TEXT NOT NULL DEFAULT 'grey',
    position                INTEGER NOT NULL DEFAULT -1,
    pinned                  BOOLEAN NOT NULL DEFAULT 0,
    creator_cache_guid      TEXT NOT NULL DEFAULT '',
    updater_cache_guid      TEXT NOT NULL DEFAULT '',
    created_before_syncing  BOOLEAN NOT NULL DEFAULT 0,
    created_at              DATETIME NOT NULL,
    updated_at              DATETIME NOT NULL,
    interacted_at           DATETIME
);
CREATE TABLE IF NOT EXISTS saved_tabs (
    guid                TEXT PRIMARY KEY,
    group_guid          TEXT NOT NULL,
    url                 TEXT NOT NULL,
    title               TEXT NOT NULL DEFAULT '',
    favicon             BLOB,
    position            INTEGER NOT NULL DEFAULT 0,
    creator_cache_guid  TEXT NOT NULL DEFAULT '',
    updater_cache_guid  TEXT NOT NULL DEFAULT '',
    created_at          DATETIME NOT NULL,
    updated_at          DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS saved_tabs_group ON saved_tabs(group_guid);`,
	},
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables WAL mode,
// and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// runMigrations ensures the schema_migrations table exists and applies any
// pending migrations in order.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// DefaultDataDir returns ~/.local/share/tabgroupsync.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tabgroupsync"), nil
}

const cacheGUIDKey = "cache_guid"

// LocalCacheGUID returns this install's sync cache guid, generating and
// storing one on first use.
func LocalCacheGUID(db *sql.DB) (string, error) {
	var guid string
	err := db.QueryRow("SELECT value FROM meta WHERE key = ?", cacheGUIDKey).Scan(&guid)
	if err == nil {
		return guid, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query cache guid: %w", err)
	}

	guid = uuid.NewString()
	if _, err := db.Exec("INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", cacheGUIDKey, guid); err != nil {
		return "", fmt.Errorf("store cache guid: %w", err)
	}
	// Another writer may have won the insert.
	if err := db.QueryRow("SELECT value FROM meta WHERE key = ?", cacheGUIDKey).Scan(&guid); err != nil {
		return "", fmt.Errorf("reload cache guid: %w", err)
	}
	return guid, nil
}
