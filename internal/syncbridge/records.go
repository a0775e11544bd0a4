// Package syncbridge moves saved tab groups between the local model and a
// sync transport. Groups and tabs travel as separate records; a tab may
// arrive before its group and is held until the group shows up.
package syncbridge

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/types"
)

// ErrInvalidRecord is returned for records that fail schema validation.
var ErrInvalidRecord = errors.New("invalid sync record")

// RecordKind tells group records from tab records.
type RecordKind string

const (
	KindGroup RecordKind = "group"
	KindTab   RecordKind = "tab"
)

// Record is one synced entity. Deleted records are tombstones and carry only
// the identity fields plus the writer.
type Record struct {
	Kind      RecordKind `json:"kind"`
	GUID      uuid.UUID  `json:"guid"`
	GroupGUID uuid.UUID  `json:"group_guid,omitempty"` // tabs only
	Deleted   bool       `json:"deleted,omitempty"`

	Title    string `json:"title,omitempty"`
	Color    string `json:"color,omitempty"` // groups only
	URL      string `json:"url,omitempty"`   // tabs only
	Position int    `json:"position"`
	Pinned   bool   `json:"pinned,omitempty"`

	CreatorCacheGUID string    `json:"creator_cache_guid,omitempty"`
	UpdaterCacheGUID string    `json:"updater_cache_guid,omitempty"`
	CreationTime     time.Time `json:"creation_time"`
	UpdateTime       time.Time `json:"update_time"`

	// Writer is the cache guid of the device that wrote the record, set by
	// the transport.
	Writer string `json:"writer,omitempty"`
}

// GroupRecord converts a group's own fields. Tabs are separate records.
func GroupRecord(g types.SavedTabGroup) Record {
	return Record{
		Kind:             KindGroup,
		GUID:             g.GUID,
		Title:            g.Title,
		Color:            string(g.Color),
		Position:         g.Position,
		Pinned:           g.Pinned,
		CreatorCacheGUID: g.CreatorCacheGUID,
		UpdaterCacheGUID: g.LastUpdaterCacheGUID,
		CreationTime:     g.CreationTime.UTC(),
		UpdateTime:       g.UpdateTime.UTC(),
	}
}

// TabRecord converts one tab of the group groupID.
func TabRecord(groupID uuid.UUID, t types.SavedTabGroupTab) Record {
	return Record{
		Kind:             KindTab,
		GUID:             t.GUID,
		GroupGUID:        groupID,
		Title:            t.Title,
		URL:              t.URL,
		Position:         t.Position,
		CreatorCacheGUID: t.CreatorCacheGUID,
		UpdaterCacheGUID: t.LastUpdaterCacheGUID,
		CreationTime:     t.CreationTime.UTC(),
		UpdateTime:       t.UpdateTime.UTC(),
	}
}

// Tombstone returns a deletion record for r written by cacheGUID.
func Tombstone(r Record, cacheGUID string, now time.Time) Record {
	return Record{
		Kind:             r.Kind,
		GUID:             r.GUID,
		GroupGUID:        r.GroupGUID,
		Deleted:          true,
		UpdaterCacheGUID: cacheGUID,
		CreationTime:     r.CreationTime,
		UpdateTime:       now.UTC(),
	}
}

// GroupRecords returns the group record followed by one record per tab.
func GroupRecords(g types.SavedTabGroup) []Record {
	out := make([]Record, 0, len(g.Tabs)+1)
	out = append(out, GroupRecord(g))
	for _, t := range g.Tabs {
		out = append(out, TabRecord(g.GUID, t))
	}
	return out
}

func (r Record) group() types.SavedTabGroup {
	return types.SavedTabGroup{
		GUID:                 r.GUID,
		Title:                r.Title,
		Color:                types.ParseColor(r.Color),
		Position:             r.Position,
		Pinned:               r.Pinned,
		CreatorCacheGUID:     r.CreatorCacheGUID,
		LastUpdaterCacheGUID: r.UpdaterCacheGUID,
		CreationTime:         r.CreationTime,
		UpdateTime:           r.UpdateTime,
	}
}

func (r Record) tab() types.SavedTabGroupTab {
	return types.SavedTabGroupTab{
		GUID:                 r.GUID,
		URL:                  r.URL,
		Title:                r.Title,
		Position:             r.Position,
		CreatorCacheGUID:     r.CreatorCacheGUID,
		LastUpdaterCacheGUID: r.UpdaterCacheGUID,
		CreationTime:         r.CreationTime,
		UpdateTime:           r.UpdateTime,
	}
}
