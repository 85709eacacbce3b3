// Package queue provides the in-memory, room-scoped projection over
// persisted queue rows.
package queue

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/noFlowWater/yukebox-sub000/internal/domain/queue"
)

// ErrEmpty indicates the queue holds no item for the operation.
var ErrEmpty = errors.New("queue is empty")

// Store is the durable side of the projection. Every mutation is a
// transactional round-trip that leaves positions contiguous.
type Store interface {
	FindByRoom(ctx context.Context, roomID string) ([]queue.Item, error)
	InsertAtFront(ctx context.Context, item queue.Item) error
	Append(ctx context.Context, item queue.Item) error
	AppendBulk(ctx context.Context, items []queue.Item) error
	Remove(ctx context.Context, roomID, id string) error
	Reorder(ctx context.Context, roomID, id string, newPos int) error
	MoveToFront(ctx context.Context, roomID, id string) error
	ShufflePositions(ctx context.Context, roomID string) error
	MarkStatus(ctx context.Context, roomID, id string, status queue.Status) error
	MarkPaused(ctx context.Context, roomID, id string, offsetSec int) error
	DeletePlaying(ctx context.Context, roomID string) error
	ClearPending(ctx context.Context, roomID string) error
}

// Projection is the ordered per-room view. It has no durability of its
// own: after every mutation the cache is reloaded from the store, so
// it never diverges for longer than one operation.
type Projection struct {
	store  Store
	roomID string

	mu    sync.RWMutex
	items []queue.Item
}

// NewProjection creates a projection for the room and loads its rows.
func NewProjection(ctx context.Context, store Store, roomID string) (*Projection, error) {
	p := &Projection{store: store, roomID: roomID}
	if err := p.reload(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Projection) reload(ctx context.Context) error {
	items, err := p.store.FindByRoom(ctx, p.roomID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.items = items
	p.mu.Unlock()
	return nil
}

// Items returns a copy of the cached items in position order.
func (p *Projection) Items() []queue.Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]queue.Item, len(p.items))
	copy(out, p.items)
	return out
}

// Len returns the number of cached items.
func (p *Projection) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Front returns the item at position 0.
func (p *Projection) Front() (queue.Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, it := range p.items {
		if it.Position == 0 {
			return it, true
		}
	}
	return queue.Item{}, false
}

// Find returns the cached item with the given id.
func (p *Projection) Find(id string) (queue.Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, it := range p.items {
		if it.ID == id {
			return it, true
		}
	}
	return queue.Item{}, false
}

// InsertAtFront shifts everything up by one and inserts at 0.
func (p *Projection) InsertAtFront(ctx context.Context, item queue.Item) error {
	item.RoomID = p.roomID
	if err := p.store.InsertAtFront(ctx, item); err != nil {
		return err
	}
	return p.reload(ctx)
}

// Append inserts at the end.
func (p *Projection) Append(ctx context.Context, item queue.Item) error {
	item.RoomID = p.roomID
	if err := p.store.Append(ctx, item); err != nil {
		return err
	}
	return p.reload(ctx)
}

// AppendBulk inserts several items at the end in order.
func (p *Projection) AppendBulk(ctx context.Context, items []queue.Item) error {
	for i := range items {
		items[i].RoomID = p.roomID
	}
	if err := p.store.AppendBulk(ctx, items); err != nil {
		return err
	}
	return p.reload(ctx)
}

// Remove deletes the item and compacts positions.
func (p *Projection) Remove(ctx context.Context, id string) error {
	if err := p.store.Remove(ctx, p.roomID, id); err != nil {
		return err
	}
	return p.reload(ctx)
}

// MoveToFront relocates the item to position 0 keeping its metadata.
func (p *Projection) MoveToFront(ctx context.Context, id string) error {
	if err := p.store.MoveToFront(ctx, p.roomID, id); err != nil {
		return err
	}
	return p.reload(ctx)
}

// Reorder relocates the item to newPos.
func (p *Projection) Reorder(ctx context.Context, id string, newPos int) error {
	if err := p.store.Reorder(ctx, p.roomID, id, newPos); err != nil {
		return err
	}
	return p.reload(ctx)
}

// Shuffle permutes pending items; playing and paused items keep their
// position.
func (p *Projection) Shuffle(ctx context.Context) error {
	if err := p.store.ShufflePositions(ctx, p.roomID); err != nil {
		return err
	}
	return p.reload(ctx)
}

// ClearPending deletes all pending items and compacts positions.
func (p *Projection) ClearPending(ctx context.Context) error {
	if err := p.store.ClearPending(ctx, p.roomID); err != nil {
		return err
	}
	return p.reload(ctx)
}

// MarkPlaying flags the item as the one on the air.
func (p *Projection) MarkPlaying(ctx context.Context, id string) error {
	if err := p.store.MarkStatus(ctx, p.roomID, id, queue.StatusPlaying); err != nil {
		return err
	}
	return p.reload(ctx)
}

// PauseFront marks the current front item paused and records the
// interrupted offset so it can be resumed later. At most one item per
// room is ever paused: an earlier interruption is demoted to pending,
// keeping its recorded offset but losing its resume priority.
func (p *Projection) PauseFront(ctx context.Context, offsetSec int) error {
	front, ok := p.Front()
	if !ok {
		return ErrEmpty
	}
	for _, it := range p.Items() {
		if it.Status == queue.StatusPaused && it.ID != front.ID {
			if err := p.store.MarkStatus(ctx, p.roomID, it.ID, queue.StatusPending); err != nil {
				return err
			}
		}
	}
	if err := p.store.MarkPaused(ctx, p.roomID, front.ID, offsetSec); err != nil {
		return err
	}
	return p.reload(ctx)
}

// RemovePlaying deletes whichever items have status playing.
func (p *Projection) RemovePlaying(ctx context.Context) error {
	if err := p.store.DeletePlaying(ctx, p.roomID); err != nil {
		return err
	}
	return p.reload(ctx)
}

// NextPlayable selects the next candidate: a paused item (interrupted
// work) always outranks any pending item regardless of position;
// otherwise the earliest-position pending item.
func (p *Projection) NextPlayable() (queue.Item, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var best queue.Item
	found := false
	for _, it := range p.items {
		if it.Status != queue.StatusPaused {
			continue
		}
		if !found || it.Position < best.Position {
			best = it
			found = true
		}
	}
	if found {
		return best, true
	}

	for _, it := range p.items {
		if it.Status != queue.StatusPending {
			continue
		}
		if !found || it.Position < best.Position {
			best = it
			found = true
		}
	}
	return best, found
}
