package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/noFlowWater/yukebox-sub000/internal/domain/schedule"
)

// ScheduleRepository persists one-shot schedule triggers.
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create inserts a new schedule.
func (r *ScheduleRepository) Create(ctx context.Context, s *schedule.Schedule) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(s).Error, "failed to create schedule")
}

// FindByRoom returns all schedules for the room, soonest first.
func (r *ScheduleRepository) FindByRoom(ctx context.Context, roomID string) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("scheduled_at ASC").
		Find(&out).Error
	return out, errors.Wrap(err, "failed to load schedules")
}

// FindDue returns pending schedules whose time has arrived, soonest
// first.
func (r *ScheduleRepository) FindDue(ctx context.Context, now time.Time) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", schedule.StatusPending, now).
		Order("scheduled_at ASC").
		Find(&out).Error
	return out, errors.Wrap(err, "failed to load due schedules")
}

// FindPendingByGroup returns pending members of the group ordered by
// scheduled time.
func (r *ScheduleRepository) FindPendingByGroup(ctx context.Context, groupID string) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND status = ?", groupID, schedule.StatusPending).
		Order("scheduled_at ASC").
		Find(&out).Error
	return out, errors.Wrap(err, "failed to load group schedules")
}

// FindPlayingByRoom returns schedules currently marked playing on the
// room.
func (r *ScheduleRepository) FindPlayingByRoom(ctx context.Context, roomID string) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND status = ?", roomID, schedule.StatusPlaying).
		Find(&out).Error
	return out, errors.Wrap(err, "failed to load playing schedules")
}

// Get returns the schedule by id.
func (r *ScheduleRepository) Get(ctx context.Context, id string) (*schedule.Schedule, error) {
	var s schedule.Schedule
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to load schedule")
	}
	return &s, nil
}

// UpdateStatus transitions the schedule's status.
func (r *ScheduleRepository) UpdateStatus(ctx context.Context, id string, status schedule.Status) error {
	res := r.db.WithContext(ctx).Model(&schedule.Schedule{}).
		Where("id = ?", id).
		UpdateColumn("status", status)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update schedule status")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateScheduledTime moves the schedule to a new trigger time.
func (r *ScheduleRepository) UpdateScheduledTime(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&schedule.Schedule{}).
		Where("id = ?", id).
		UpdateColumn("scheduled_at", at)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update scheduled time")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
