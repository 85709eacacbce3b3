package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noFlowWater/yukebox-sub000/internal/domain/queue"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func seedItems(t *testing.T, repo *QueueRepository, roomID string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, repo.Append(context.Background(), queue.Item{
			ID:     id,
			RoomID: roomID,
			URL:    "https://example.com/" + id,
			Status: queue.StatusPending,
		}))
	}
}

func roomIDs(t *testing.T, repo *QueueRepository, roomID string) []string {
	t.Helper()
	items, err := repo.FindByRoom(context.Background(), roomID)
	require.NoError(t, err)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func assertContiguous(t *testing.T, repo *QueueRepository, roomID string) {
	t.Helper()
	items, err := repo.FindByRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.True(t, queue.ContiguousPositions(items), "positions must stay contiguous from 0")
}

func TestQueueRepository_AppendAndFind(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))

	seedItems(t, repo, "room1", "a", "b", "c")
	seedItems(t, repo, "room2", "x")

	assert.Equal(t, []string{"a", "b", "c"}, roomIDs(t, repo, "room1"))
	assert.Equal(t, []string{"x"}, roomIDs(t, repo, "room2"), "rooms are isolated")
	assertContiguous(t, repo, "room1")
}

func TestQueueRepository_InsertAtFront(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()

	seedItems(t, repo, "room1", "a", "b")
	require.NoError(t, repo.InsertAtFront(ctx, queue.Item{
		ID: "c", RoomID: "room1", URL: "https://example.com/c", Status: queue.StatusPending,
	}))

	assert.Equal(t, []string{"c", "a", "b"}, roomIDs(t, repo, "room1"))
	assertContiguous(t, repo, "room1")
}

func TestQueueRepository_AppendBulk(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()

	seedItems(t, repo, "room1", "a")
	require.NoError(t, repo.AppendBulk(ctx, []queue.Item{
		{ID: "b", RoomID: "room1", URL: "https://example.com/b", Status: queue.StatusPending},
		{ID: "c", RoomID: "room1", URL: "https://example.com/c", Status: queue.StatusPending},
	}))

	assert.Equal(t, []string{"a", "b", "c"}, roomIDs(t, repo, "room1"))
	assertContiguous(t, repo, "room1")
}

func TestQueueRepository_RemoveCompacts(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()

	seedItems(t, repo, "room1", "a", "b", "c")
	require.NoError(t, repo.Remove(ctx, "room1", "b"))

	assert.Equal(t, []string{"a", "c"}, roomIDs(t, repo, "room1"))
	assertContiguous(t, repo, "room1")
}

func TestQueueRepository_Reorder(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		newPos int
		want   []string
	}{
		{name: "toward back", id: "a", newPos: 2, want: []string{"b", "c", "a"}},
		{name: "toward front", id: "c", newPos: 0, want: []string{"c", "a", "b"}},
		{name: "unchanged", id: "b", newPos: 1, want: []string{"a", "b", "c"}},
		{name: "clamped", id: "a", newPos: 10, want: []string{"b", "c", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewQueueRepository(openTestDB(t))
			seedItems(t, repo, "room1", "a", "b", "c")

			require.NoError(t, repo.Reorder(context.Background(), "room1", tt.id, tt.newPos))
			assert.Equal(t, tt.want, roomIDs(t, repo, "room1"))
			assertContiguous(t, repo, "room1")
		})
	}
}

func TestQueueRepository_MarkStatusAndPaused(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()

	seedItems(t, repo, "room1", "a")
	require.NoError(t, repo.MarkPaused(ctx, "room1", "a", 33))

	items, err := repo.FindByRoom(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, queue.StatusPaused, items[0].Status)
	require.NotNil(t, items[0].PausedPosition)
	assert.Equal(t, 33, *items[0].PausedPosition)

	// Marking playing clears the paused offset.
	require.NoError(t, repo.MarkStatus(ctx, "room1", "a", queue.StatusPlaying))
	items, err = repo.FindByRoom(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPlaying, items[0].Status)
	assert.Nil(t, items[0].PausedPosition)
}

func TestQueueRepository_MarkStatusMissingRow(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	err := repo.MarkStatus(context.Background(), "room1", "ghost", queue.StatusPlaying)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueueRepository_DeletePlayingRenumbers(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()

	seedItems(t, repo, "room1", "a", "b", "c")
	require.NoError(t, repo.MarkStatus(ctx, "room1", "b", queue.StatusPlaying))
	require.NoError(t, repo.DeletePlaying(ctx, "room1"))

	assert.Equal(t, []string{"a", "c"}, roomIDs(t, repo, "room1"))
	assertContiguous(t, repo, "room1")
}

func TestQueueRepository_ClearPendingKeepsOthers(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()

	seedItems(t, repo, "room1", "a", "b", "c")
	require.NoError(t, repo.MarkStatus(ctx, "room1", "a", queue.StatusPlaying))
	require.NoError(t, repo.MarkPaused(ctx, "room1", "b", 10))
	require.NoError(t, repo.ClearPending(ctx, "room1"))

	items, err := repo.FindByRoom(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assertContiguous(t, repo, "room1")
}

func TestQueueRepository_ShuffleKeepsInvariants(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()

	seedItems(t, repo, "room1", "a", "b", "c", "d", "e")
	require.NoError(t, repo.MarkStatus(ctx, "room1", "a", queue.StatusPlaying))

	require.NoError(t, repo.ShufflePositions(ctx, "room1"))

	items, err := repo.FindByRoom(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, items, 5)
	assert.True(t, queue.ContiguousPositions(items))
	for _, it := range items {
		if it.ID == "a" {
			assert.Equal(t, 0, it.Position, "non-pending items keep their position")
		}
	}
}

func TestQueueRepository_ResetPlayingToPending(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()

	seedItems(t, repo, "room1", "a")
	seedItems(t, repo, "room2", "b")
	require.NoError(t, repo.MarkStatus(ctx, "room1", "a", queue.StatusPlaying))
	require.NoError(t, repo.MarkStatus(ctx, "room2", "b", queue.StatusPlaying))

	require.NoError(t, repo.ResetPlayingToPending(ctx))

	for _, roomID := range []string{"room1", "room2"} {
		items, err := repo.FindByRoom(ctx, roomID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, queue.StatusPending, items[0].Status)
	}
}
