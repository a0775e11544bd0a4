package syncservice

import (
	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/types"
)

// EventKind is what an observer is being told.
type EventKind int

const (
	EventInitialized EventKind = iota
	EventGroupAdded
	EventGroupUpdated
	EventGroupRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventInitialized:
		return "initialized"
	case EventGroupAdded:
		return "group_added"
	case EventGroupUpdated:
		return "group_updated"
	case EventGroupRemoved:
		return "group_removed"
	}
	return "unknown"
}

// Event is delivered to observers. Groups always have at least one tab.
type Event struct {
	Kind   EventKind
	Source types.TriggerSource

	// Group is a copy as of delivery. For removals it is the group as it
	// was just before deletion.
	Group types.SavedTabGroup

	SyncID  uuid.UUID
	LocalID types.LocalGroupID
	// TabID is set for updates that touched a single tab.
	TabID uuid.UUID
}
