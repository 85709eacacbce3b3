package queue

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domqueue "github.com/noFlowWater/yukebox-sub000/internal/domain/queue"
)

// memStore is an in-memory Store that keeps the same contiguity
// contract as the SQL repository.
type memStore struct {
	mu    sync.Mutex
	items []domqueue.Item
}

func (s *memStore) FindByRoom(_ context.Context, roomID string) ([]domqueue.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domqueue.Item, 0, len(s.items))
	for _, it := range s.items {
		if it.RoomID == roomID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *memStore) InsertAtFront(_ context.Context, item domqueue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].RoomID == item.RoomID {
			s.items[i].Position++
		}
	}
	item.Position = 0
	s.items = append(s.items, item)
	return nil
}

func (s *memStore) Append(_ context.Context, item domqueue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.Position = s.countLocked(item.RoomID)
	s.items = append(s.items, item)
	return nil
}

func (s *memStore) AppendBulk(_ context.Context, items []domqueue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		item.Position = s.countLocked(item.RoomID)
		s.items = append(s.items, item)
	}
	return nil
}

func (s *memStore) Remove(_ context.Context, roomID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removedPos := -1
	for i, it := range s.items {
		if it.RoomID == roomID && it.ID == id {
			removedPos = it.Position
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	if removedPos < 0 {
		return nil
	}
	for i := range s.items {
		if s.items[i].RoomID == roomID && s.items[i].Position > removedPos {
			s.items[i].Position--
		}
	}
	return nil
}

func (s *memStore) Reorder(_ context.Context, roomID, id string, newPos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var target *domqueue.Item
	for i := range s.items {
		if s.items[i].RoomID == roomID && s.items[i].ID == id {
			target = &s.items[i]
			break
		}
	}
	if target == nil {
		return nil
	}
	if max := s.countLocked(roomID) - 1; newPos > max {
		newPos = max
	}
	if newPos < 0 {
		newPos = 0
	}
	old := target.Position
	for i := range s.items {
		it := &s.items[i]
		if it.RoomID != roomID || it.ID == id {
			continue
		}
		switch {
		case old < newPos && it.Position > old && it.Position <= newPos:
			it.Position--
		case old > newPos && it.Position >= newPos && it.Position < old:
			it.Position++
		}
	}
	target.Position = newPos
	return nil
}

func (s *memStore) MoveToFront(ctx context.Context, roomID, id string) error {
	return s.Reorder(ctx, roomID, id, 0)
}

func (s *memStore) ShufflePositions(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Deterministic permutation for tests: reverse the pending items'
	// position assignment, leaving playing/paused positions fixed.
	var pending []*domqueue.Item
	var positions []int
	for i := range s.items {
		if s.items[i].RoomID == roomID && s.items[i].Status == domqueue.StatusPending {
			pending = append(pending, &s.items[i])
			positions = append(positions, s.items[i].Position)
		}
	}
	for i, it := range pending {
		it.Position = positions[len(positions)-1-i]
	}
	return nil
}

func (s *memStore) MarkStatus(_ context.Context, roomID, id string, status domqueue.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].RoomID == roomID && s.items[i].ID == id {
			s.items[i].Status = status
			if status == domqueue.StatusPlaying {
				s.items[i].PausedPosition = nil
			}
			return nil
		}
	}
	return nil
}

func (s *memStore) MarkPaused(_ context.Context, roomID, id string, offsetSec int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].RoomID == roomID && s.items[i].ID == id {
			s.items[i].Status = domqueue.StatusPaused
			off := offsetSec
			s.items[i].PausedPosition = &off
			return nil
		}
	}
	return nil
}

func (s *memStore) DeletePlaying(ctx context.Context, roomID string) error {
	return s.deleteByStatus(roomID, domqueue.StatusPlaying)
}

func (s *memStore) ClearPending(ctx context.Context, roomID string) error {
	return s.deleteByStatus(roomID, domqueue.StatusPending)
}

func (s *memStore) deleteByStatus(roomID string, status domqueue.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	for _, it := range s.items {
		if it.RoomID == roomID && it.Status == status {
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	// Renumber survivors 0..n-1 in position order.
	var room []*domqueue.Item
	for i := range s.items {
		if s.items[i].RoomID == roomID {
			room = append(room, &s.items[i])
		}
	}
	sort.Slice(room, func(i, j int) bool { return room[i].Position < room[j].Position })
	for i, it := range room {
		it.Position = i
	}
	return nil
}

func (s *memStore) countLocked(roomID string) int {
	n := 0
	for _, it := range s.items {
		if it.RoomID == roomID {
			n++
		}
	}
	return n
}

func newTestProjection(t *testing.T) (*Projection, *memStore) {
	t.Helper()
	store := &memStore{}
	p, err := NewProjection(context.Background(), store, "room1")
	require.NoError(t, err)
	return p, store
}

func mustAppend(t *testing.T, p *Projection, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, p.Append(context.Background(), domqueue.Item{
			ID:     id,
			URL:    "https://example.com/" + id,
			Status: domqueue.StatusPending,
		}))
	}
}

func ids(items []domqueue.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestProjection_AppendAndInsertAtFront(t *testing.T) {
	p, _ := newTestProjection(t)
	ctx := context.Background()

	mustAppend(t, p, "a", "b")
	require.NoError(t, p.InsertAtFront(ctx, domqueue.Item{ID: "c", URL: "https://example.com/c"}))

	assert.Equal(t, []string{"c", "a", "b"}, ids(p.Items()))
	assert.True(t, domqueue.ContiguousPositions(p.Items()))

	front, ok := p.Front()
	require.True(t, ok)
	assert.Equal(t, "c", front.ID)
}

func TestProjection_RemoveCompactsPositions(t *testing.T) {
	p, _ := newTestProjection(t)
	ctx := context.Background()

	mustAppend(t, p, "a", "b", "c")
	require.NoError(t, p.Remove(ctx, "b"))

	assert.Equal(t, []string{"a", "c"}, ids(p.Items()))
	assert.True(t, domqueue.ContiguousPositions(p.Items()))
}

func TestProjection_Reorder(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		newPos int
		want   []string
	}{
		{name: "move forward", id: "a", newPos: 2, want: []string{"b", "c", "a"}},
		{name: "move backward", id: "c", newPos: 0, want: []string{"c", "a", "b"}},
		{name: "same position", id: "b", newPos: 1, want: []string{"a", "b", "c"}},
		{name: "clamped past end", id: "a", newPos: 99, want: []string{"b", "c", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProjection(t)
			mustAppend(t, p, "a", "b", "c")

			require.NoError(t, p.Reorder(context.Background(), tt.id, tt.newPos))
			assert.Equal(t, tt.want, ids(p.Items()))
			assert.True(t, domqueue.ContiguousPositions(p.Items()))
		})
	}
}

func TestProjection_PauseFrontRecordsOffset(t *testing.T) {
	p, _ := newTestProjection(t)
	ctx := context.Background()

	mustAppend(t, p, "a", "b")
	require.NoError(t, p.MarkPlaying(ctx, "a"))
	require.NoError(t, p.PauseFront(ctx, 42))

	it, ok := p.Find("a")
	require.True(t, ok)
	assert.Equal(t, domqueue.StatusPaused, it.Status)
	require.NotNil(t, it.PausedPosition)
	assert.Equal(t, 42, *it.PausedPosition)
	assert.Equal(t, 42, it.StartOffset())
}

func TestProjection_PauseFrontDemotesPreviousPaused(t *testing.T) {
	p, _ := newTestProjection(t)
	ctx := context.Background()

	mustAppend(t, p, "a")
	require.NoError(t, p.PauseFront(ctx, 10))
	require.NoError(t, p.InsertAtFront(ctx, domqueue.Item{ID: "b", Status: domqueue.StatusPending}))
	require.NoError(t, p.MarkPlaying(ctx, "b"))

	require.NoError(t, p.PauseFront(ctx, 20))

	pausedCount := 0
	for _, it := range p.Items() {
		if it.Status == domqueue.StatusPaused {
			pausedCount++
		}
	}
	assert.Equal(t, 1, pausedCount, "only the latest interruption stays paused")

	b, ok := p.Find("b")
	require.True(t, ok)
	assert.Equal(t, domqueue.StatusPaused, b.Status)

	a, ok := p.Find("a")
	require.True(t, ok)
	assert.Equal(t, domqueue.StatusPending, a.Status)
	require.NotNil(t, a.PausedPosition, "demoted item keeps its offset")
	assert.Equal(t, 10, *a.PausedPosition)
}

func TestProjection_PauseFrontEmpty(t *testing.T) {
	p, _ := newTestProjection(t)
	err := p.PauseFront(context.Background(), 10)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestProjection_MarkPlayingClearsPausedOffset(t *testing.T) {
	p, _ := newTestProjection(t)
	ctx := context.Background()

	mustAppend(t, p, "a")
	require.NoError(t, p.PauseFront(ctx, 30))
	require.NoError(t, p.MarkPlaying(ctx, "a"))

	it, _ := p.Find("a")
	assert.Equal(t, domqueue.StatusPlaying, it.Status)
	assert.Nil(t, it.PausedPosition)
}

func TestProjection_NextPlayable(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, p *Projection)
		wantID  string
		wantHit bool
	}{
		{
			name:    "empty queue",
			setup:   func(t *testing.T, p *Projection) {},
			wantHit: false,
		},
		{
			name: "earliest pending",
			setup: func(t *testing.T, p *Projection) {
				mustAppend(t, p, "a", "b")
			},
			wantID:  "a",
			wantHit: true,
		},
		{
			name: "paused outranks earlier pending",
			setup: func(t *testing.T, p *Projection) {
				mustAppend(t, p, "a", "b", "c")
				// Pause c while it sits at the back; a paused item wins
				// over any pending item regardless of position.
				require.NoError(t, p.Reorder(context.Background(), "c", 0))
				require.NoError(t, p.PauseFront(context.Background(), 15))
				require.NoError(t, p.Reorder(context.Background(), "c", 2))
			},
			wantID:  "c",
			wantHit: true,
		},
		{
			name: "playing item is not a candidate",
			setup: func(t *testing.T, p *Projection) {
				mustAppend(t, p, "a", "b")
				require.NoError(t, p.MarkPlaying(context.Background(), "a"))
			},
			wantID:  "b",
			wantHit: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProjection(t)
			tt.setup(t, p)

			it, ok := p.NextPlayable()
			assert.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Equal(t, tt.wantID, it.ID)
			}
		})
	}
}

func TestProjection_ClearPendingKeepsPlayingAndPaused(t *testing.T) {
	p, _ := newTestProjection(t)
	ctx := context.Background()

	mustAppend(t, p, "a", "b", "c", "d")
	require.NoError(t, p.MarkPlaying(ctx, "a"))
	require.NoError(t, p.Reorder(ctx, "b", 0))
	require.NoError(t, p.PauseFront(ctx, 5))

	require.NoError(t, p.ClearPending(ctx))

	items := p.Items()
	require.Len(t, items, 2)
	assert.True(t, domqueue.ContiguousPositions(items))
	for _, it := range items {
		assert.NotEqual(t, domqueue.StatusPending, it.Status)
	}
}

func TestProjection_RemovePlaying(t *testing.T) {
	p, _ := newTestProjection(t)
	ctx := context.Background()

	mustAppend(t, p, "a", "b")
	require.NoError(t, p.MarkPlaying(ctx, "a"))
	require.NoError(t, p.RemovePlaying(ctx))

	assert.Equal(t, []string{"b"}, ids(p.Items()))
	assert.True(t, domqueue.ContiguousPositions(p.Items()))
}

func TestProjection_ShuffleKeepsNonPendingFixed(t *testing.T) {
	p, _ := newTestProjection(t)
	ctx := context.Background()

	mustAppend(t, p, "a", "b", "c", "d")
	require.NoError(t, p.MarkPlaying(ctx, "a"))

	require.NoError(t, p.Shuffle(ctx))

	items := p.Items()
	assert.True(t, domqueue.ContiguousPositions(items))
	playing, ok := p.Find("a")
	require.True(t, ok)
	assert.Equal(t, 0, playing.Position, "playing item keeps its position across shuffle")
}
