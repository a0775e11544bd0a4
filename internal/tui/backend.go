package tui

import (
	"context"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/sequence"
	"github.com/lotas/tabgroupsync/internal/syncservice"
	"github.com/lotas/tabgroupsync/internal/types"
)

// Backend is what the browser needs from the running service.
type Backend interface {
	Groups(ctx context.Context) ([]types.SavedTabGroup, error)
	Open(ctx context.Context, guid uuid.UUID) (types.LocalGroupID, error)
	Delete(ctx context.Context, guid uuid.UUID) error
	TogglePin(ctx context.Context, guid uuid.UUID) error
	// Changes fires, coalesced, whenever saved groups change.
	Changes() <-chan struct{}
}

// Opener opens saved groups in the tab strip. *attach.Delegate implements it.
type Opener interface {
	HandleOpenTabGroupRequest(syncID uuid.UUID) (types.LocalGroupID, error)
}

// SequenceBackend runs every call as a task on the service's sequence and
// waits for the result.
type SequenceBackend struct {
	seq     *sequence.Sequence
	svc     *syncservice.Service
	opener  Opener
	changes chan struct{}
}

// NewSequenceBackend registers an observer on svc from inside seq.
func NewSequenceBackend(seq *sequence.Sequence, svc *syncservice.Service, opener Opener) *SequenceBackend {
	b := &SequenceBackend{seq: seq, svc: svc, opener: opener, changes: make(chan struct{}, 1)}
	seq.Post(func() {
		svc.AddObserver(func(syncservice.Event) {
			select {
			case b.changes <- struct{}{}:
			default:
			}
		})
	})
	return b
}

func onSequence[T any](ctx context.Context, seq *sequence.Sequence, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	seq.Post(func() {
		v, err := fn()
		done <- result{v, err}
	})
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (b *SequenceBackend) Groups(ctx context.Context) ([]types.SavedTabGroup, error) {
	return onSequence(ctx, b.seq, func() ([]types.SavedTabGroup, error) {
		return b.svc.GetAllGroups(), nil
	})
}

func (b *SequenceBackend) Open(ctx context.Context, guid uuid.UUID) (types.LocalGroupID, error) {
	return onSequence(ctx, b.seq, func() (types.LocalGroupID, error) {
		return b.opener.HandleOpenTabGroupRequest(guid)
	})
}

func (b *SequenceBackend) Delete(ctx context.Context, guid uuid.UUID) error {
	_, err := onSequence(ctx, b.seq, func() (struct{}, error) {
		b.svc.RemoveGroupBySyncID(guid)
		return struct{}{}, nil
	})
	return err
}

func (b *SequenceBackend) TogglePin(ctx context.Context, guid uuid.UUID) error {
	_, err := onSequence(ctx, b.seq, func() (struct{}, error) {
		b.svc.TogglePinState(guid)
		return struct{}{}, nil
	})
	return err
}

func (b *SequenceBackend) Changes() <-chan struct{} { return b.changes }
