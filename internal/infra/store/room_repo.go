package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/noFlowWater/yukebox-sub000/internal/domain/room"
)

// RoomRepository persists room records.
type RoomRepository struct {
	db *gorm.DB
}

// NewRoomRepository creates a new RoomRepository.
func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create inserts a new room.
func (r *RoomRepository) Create(ctx context.Context, rm *room.Room) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(rm).Error, "failed to create room")
}

// FindAll returns every registered room.
func (r *RoomRepository) FindAll(ctx context.Context) ([]room.Room, error) {
	var rooms []room.Room
	err := r.db.WithContext(ctx).Order("name ASC").Find(&rooms).Error
	return rooms, errors.Wrap(err, "failed to load rooms")
}

// Get returns the room by id.
func (r *RoomRepository) Get(ctx context.Context, id string) (*room.Room, error) {
	var rm room.Room
	if err := r.db.WithContext(ctx).First(&rm, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to load room")
	}
	return &rm, nil
}

// Delete removes the room record.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&room.Room{}, "id = ?", id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to delete room")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
