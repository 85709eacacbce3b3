package store

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/noFlowWater/yukebox-sub000/internal/domain/queue"
)

// QueueRepository persists room-scoped queue rows. All mutations that
// touch positions run inside a transaction and leave positions for the
// room contiguous from 0.
type QueueRepository struct {
	db *gorm.DB
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// FindByRoom returns all items for the room ordered by position.
func (r *QueueRepository) FindByRoom(ctx context.Context, roomID string) ([]queue.Item, error) {
	var items []queue.Item
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("position ASC").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load queue items")
	}
	return items, nil
}

// InsertAtFront shifts every existing position up by one and inserts
// the item at position 0.
func (r *QueueRepository) InsertAtFront(ctx context.Context, item queue.Item) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&queue.Item{}).
			Where("room_id = ?", item.RoomID).
			UpdateColumn("position", gorm.Expr("position + 1")).Error; err != nil {
			return errors.Wrap(err, "failed to shift positions")
		}
		item.Position = 0
		return errors.Wrap(tx.Create(&item).Error, "failed to insert item")
	})
}

// Append inserts the item at the next contiguous position.
func (r *QueueRepository) Append(ctx context.Context, item queue.Item) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&queue.Item{}).
			Where("room_id = ?", item.RoomID).
			Count(&count).Error; err != nil {
			return errors.Wrap(err, "failed to count items")
		}
		item.Position = int(count)
		return errors.Wrap(tx.Create(&item).Error, "failed to append item")
	})
}

// AppendBulk inserts items at the end in the given order.
func (r *QueueRepository) AppendBulk(ctx context.Context, items []queue.Item) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&queue.Item{}).
			Where("room_id = ?", items[0].RoomID).
			Count(&count).Error; err != nil {
			return errors.Wrap(err, "failed to count items")
		}
		for i := range items {
			items[i].Position = int(count) + i
		}
		return errors.Wrap(tx.Create(&items).Error, "failed to append items")
	})
}

// Remove deletes the item and compacts positions after it.
func (r *QueueRepository) Remove(ctx context.Context, roomID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item queue.Item
		if err := tx.Where("room_id = ? AND id = ?", roomID, id).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return errors.Wrap(err, "failed to find item")
		}
		if err := tx.Delete(&item).Error; err != nil {
			return errors.Wrap(err, "failed to delete item")
		}
		err := tx.Model(&queue.Item{}).
			Where("room_id = ? AND position > ?", roomID, item.Position).
			UpdateColumn("position", gorm.Expr("position - 1")).Error
		return errors.Wrap(err, "failed to compact positions")
	})
}

// Reorder moves the item to newPos, shifting the half-open range of
// positions between old and new by one.
func (r *QueueRepository) Reorder(ctx context.Context, roomID, id string, newPos int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item queue.Item
		if err := tx.Where("room_id = ? AND id = ?", roomID, id).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return errors.Wrap(err, "failed to find item")
		}

		var count int64
		if err := tx.Model(&queue.Item{}).
			Where("room_id = ?", roomID).
			Count(&count).Error; err != nil {
			return errors.Wrap(err, "failed to count items")
		}
		if newPos < 0 {
			newPos = 0
		}
		if newPos >= int(count) {
			newPos = int(count) - 1
		}
		if newPos == item.Position {
			return nil
		}

		if newPos < item.Position {
			err := tx.Model(&queue.Item{}).
				Where("room_id = ? AND position >= ? AND position < ?", roomID, newPos, item.Position).
				UpdateColumn("position", gorm.Expr("position + 1")).Error
			if err != nil {
				return errors.Wrap(err, "failed to shift range up")
			}
		} else {
			err := tx.Model(&queue.Item{}).
				Where("room_id = ? AND position > ? AND position <= ?", roomID, item.Position, newPos).
				UpdateColumn("position", gorm.Expr("position - 1")).Error
			if err != nil {
				return errors.Wrap(err, "failed to shift range down")
			}
		}

		err := tx.Model(&queue.Item{}).
			Where("id = ?", item.ID).
			UpdateColumn("position", newPos).Error
		return errors.Wrap(err, "failed to relocate item")
	})
}

// MoveToFront relocates the item to position 0, preserving metadata.
func (r *QueueRepository) MoveToFront(ctx context.Context, roomID, id string) error {
	return r.Reorder(ctx, roomID, id, 0)
}

// ShufflePositions applies a Fisher-Yates permutation to the positions
// of pending items only; playing and paused items keep their position.
func (r *QueueRepository) ShufflePositions(ctx context.Context, roomID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []queue.Item
		err := tx.Where("room_id = ? AND status = ?", roomID, queue.StatusPending).
			Order("position ASC").
			Find(&pending).Error
		if err != nil {
			return errors.Wrap(err, "failed to load pending items")
		}
		if len(pending) < 2 {
			return nil
		}

		positions := make([]int, len(pending))
		for i, it := range pending {
			positions[i] = it.Position
		}

		rng := rand.New(rand.NewSource(cryptoSeed()))
		for i := len(pending) - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			pending[i], pending[j] = pending[j], pending[i]
		}

		for i, it := range pending {
			err := tx.Model(&queue.Item{}).
				Where("id = ?", it.ID).
				UpdateColumn("position", positions[i]).Error
			if err != nil {
				return errors.Wrap(err, "failed to update position")
			}
		}
		return nil
	})
}

// MarkStatus updates the item's status. Marking an item playing clears
// any recorded paused position.
func (r *QueueRepository) MarkStatus(ctx context.Context, roomID, id string, status queue.Status) error {
	updates := map[string]any{"status": status}
	if status == queue.StatusPlaying {
		updates["paused_position"] = nil
	}
	res := r.db.WithContext(ctx).Model(&queue.Item{}).
		Where("room_id = ? AND id = ?", roomID, id).
		Updates(updates)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to mark status")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaused sets the item paused and records the interrupted offset.
func (r *QueueRepository) MarkPaused(ctx context.Context, roomID, id string, offsetSec int) error {
	res := r.db.WithContext(ctx).Model(&queue.Item{}).
		Where("room_id = ? AND id = ?", roomID, id).
		Updates(map[string]any{
			"status":          queue.StatusPaused,
			"paused_position": offsetSec,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to mark paused")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePlaying removes whichever items currently have status playing
// and compacts the remaining positions.
func (r *QueueRepository) DeletePlaying(ctx context.Context, roomID string) error {
	return r.deleteByStatus(ctx, roomID, queue.StatusPlaying)
}

// ClearPending removes all pending items, leaving playing and paused
// items, and compacts positions.
func (r *QueueRepository) ClearPending(ctx context.Context, roomID string) error {
	return r.deleteByStatus(ctx, roomID, queue.StatusPending)
}

func (r *QueueRepository) deleteByStatus(ctx context.Context, roomID string, status queue.Status) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ? AND status = ?", roomID, status).
			Delete(&queue.Item{}).Error; err != nil {
			return errors.Wrap(err, "failed to delete items")
		}

		// Renumber survivors to close any gaps.
		var rest []queue.Item
		if err := tx.Where("room_id = ?", roomID).
			Order("position ASC").
			Find(&rest).Error; err != nil {
			return errors.Wrap(err, "failed to reload items")
		}
		for i, it := range rest {
			if it.Position == i {
				continue
			}
			err := tx.Model(&queue.Item{}).
				Where("id = ?", it.ID).
				UpdateColumn("position", i).Error
			if err != nil {
				return errors.Wrap(err, "failed to compact positions")
			}
		}
		return nil
	})
}

// ResetPlayingToPending downgrades every playing row to pending.
// Used on startup: rows left playing from a previous run have no
// process attached anymore.
func (r *QueueRepository) ResetPlayingToPending(ctx context.Context) error {
	err := r.db.WithContext(ctx).Model(&queue.Item{}).
		Where("status = ?", queue.StatusPlaying).
		UpdateColumn("status", queue.StatusPending).Error
	return errors.Wrap(err, "failed to reset playing items")
}

func cryptoSeed() int64 {
	var b [8]byte
	if _, err := cryptoRand.Read(b[:]); err != nil {
		return 1
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
