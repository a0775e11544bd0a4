package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/types"
)

// SaveGroup writes a group and replaces its tab rows in one transaction.
func SaveGroup(db *sql.DB, g types.SavedTabGroup) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var interacted any
	if !g.LastUserInteractionTime.IsZero() {
		interacted = g.LastUserInteractionTime.UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO saved_groups (guid, title, color, position, pinned, creator_cache_guid,
			updater_cache_guid, created_before_syncing, created_at, updated_at, interacted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (guid) DO UPDATE SET
			title = excluded.title,
			color = excluded.color,
			position = excluded.position,
			pinned = excluded.pinned,
			updater_cache_guid = excluded.updater_cache_guid,
			updated_at = excluded.updated_at,
			interacted_at = excluded.interacted_at`,
		g.GUID.String(), g.Title, string(g.Color), g.Position, g.Pinned,
		g.CreatorCacheGUID, g.LastUpdaterCacheGUID, g.CreatedBeforeSyncing,
		g.CreationTime.UTC(), g.UpdateTime.UTC(), interacted)
	if err != nil {
		return fmt.Errorf("save group %s: %w", g.GUID, err)
	}

	if _, err := tx.Exec("DELETE FROM saved_tabs WHERE group_guid = ?", g.GUID.String()); err != nil {
		return fmt.Errorf("clear tabs of %s: %w", g.GUID, err)
	}
	for _, t := range g.Tabs {
		_, err := tx.Exec(`
			INSERT INTO saved_tabs (guid, group_guid, url, title, favicon, position,
				creator_cache_guid, updater_cache_guid, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.GUID.String(), g.GUID.String(), t.URL, t.Title, t.Favicon, t.Position,
			t.CreatorCacheGUID, t.LastUpdaterCacheGUID, t.CreationTime.UTC(), t.UpdateTime.UTC())
		if err != nil {
			return fmt.Errorf("save tab %s: %w", t.GUID, err)
		}
	}
	return tx.Commit()
}

// DeleteGroup removes a group and its tabs. Deleting a missing group is not
// an error.
func DeleteGroup(db *sql.DB, guid uuid.UUID) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM saved_tabs WHERE group_guid = ?", guid.String()); err != nil {
		return fmt.Errorf("delete tabs of %s: %w", guid, err)
	}
	if _, err := tx.Exec("DELETE FROM saved_groups WHERE guid = ?", guid.String()); err != nil {
		return fmt.Errorf("delete group %s: %w", guid, err)
	}
	return tx.Commit()
}

// LoadGroups returns every stored group with its tabs, ordered by position.
func LoadGroups(db *sql.DB) ([]types.SavedTabGroup, error) {
	rows, err := db.Query(`
		SELECT guid, title, color, position, pinned, creator_cache_guid, updater_cache_guid,
			created_before_syncing, created_at, updated_at, interacted_at
		FROM saved_groups
		ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []types.SavedTabGroup
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			g          types.SavedTabGroup
			guid       string
			color      string
			interacted sql.NullTime
		)
		if err := rows.Scan(&guid, &g.Title, &color, &g.Position, &g.Pinned,
			&g.CreatorCacheGUID, &g.LastUpdaterCacheGUID, &g.CreatedBeforeSyncing,
			&g.CreationTime, &g.UpdateTime, &interacted); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		parsed, err := uuid.Parse(guid)
		if err != nil {
			return nil, fmt.Errorf("parse group guid %q: %w", guid, err)
		}
		g.GUID = parsed
		g.Color = types.ParseColor(color)
		if interacted.Valid {
			g.LastUserInteractionTime = interacted.Time
		}
		index[g.GUID] = len(groups)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tabRows, err := db.Query(`
		SELECT guid, group_guid, url, title, favicon, position, creator_cache_guid,
			updater_cache_guid, created_at, updated_at
		FROM saved_tabs
		ORDER BY group_guid, position`)
	if err != nil {
		return nil, fmt.Errorf("query tabs: %w", err)
	}
	defer tabRows.Close()

	for tabRows.Next() {
		var (
			t         types.SavedTabGroupTab
			guid      string
			groupGUID string
			created   time.Time
			updated   time.Time
		)
		if err := tabRows.Scan(&guid, &groupGUID, &t.URL, &t.Title, &t.Favicon, &t.Position,
			&t.CreatorCacheGUID, &t.LastUpdaterCacheGUID, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan tab: %w", err)
		}
		t.CreationTime, t.UpdateTime = created, updated
		tabID, err := uuid.Parse(guid)
		if err != nil {
			return nil, fmt.Errorf("parse tab guid %q: %w", guid, err)
		}
		t.GUID = tabID
		groupID, err := uuid.Parse(groupGUID)
		if err != nil {
			continue
		}
		i, ok := index[groupID]
		if !ok {
			// Tab rows without a group are left for the bridge to resolve.
			continue
		}
		groups[i].Tabs = append(groups[i].Tabs, t)
	}
	return groups, tabRows.Err()
}
