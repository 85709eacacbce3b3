// Package registry owns one playback engine per room and dispatches
// due schedules to the matching engine.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/noFlowWater/yukebox-sub000/internal/app/engine"
	appqueue "github.com/noFlowWater/yukebox-sub000/internal/app/queue"
	"github.com/noFlowWater/yukebox-sub000/internal/app/resolver"
	"github.com/noFlowWater/yukebox-sub000/internal/domain/room"
	"github.com/noFlowWater/yukebox-sub000/internal/domain/schedule"
	"github.com/noFlowWater/yukebox-sub000/internal/infra/logger"
)

// ErrRoomNotFound indicates the room does not exist.
var ErrRoomNotFound = errors.New("room not found")

// RoomStore is the room repository surface the registry needs.
type RoomStore interface {
	FindAll(ctx context.Context) ([]room.Room, error)
	Get(ctx context.Context, id string) (*room.Room, error)
}

// QueueStore extends the projection store with startup recovery.
type QueueStore interface {
	appqueue.Store
	ResetPlayingToPending(ctx context.Context) error
}

// ScheduleStore extends the engine's schedule surface with the
// due-schedule query the poller runs.
type ScheduleStore interface {
	engine.ScheduleStore
	FindDue(ctx context.Context, now time.Time) ([]schedule.Schedule, error)
}

// PlayerFactory builds a player client bound to a room's audio device.
type PlayerFactory func(rm room.Room) engine.PlayerClient

// Config holds registry configuration.
type Config struct {
	PollInterval time.Duration // due-schedule sweep interval
	GraceWindow  time.Duration // overdue schedules beyond this are failed
}

// Registry lazily creates and owns one engine per room.
type Registry struct {
	rooms     RoomStore
	queues    QueueStore
	schedules ScheduleStore
	resolver  resolver.Resolver
	players   PlayerFactory
	notifier  *engine.Notifier
	cfg       Config

	mu      sync.Mutex
	engines map[string]*engine.Engine
}

// New creates a registry.
func New(rooms RoomStore, queues QueueStore, schedules ScheduleStore, res resolver.Resolver, players PlayerFactory, notifier *engine.Notifier, cfg Config) *Registry {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = time.Minute
	}
	return &Registry{
		rooms:     rooms,
		queues:    queues,
		schedules: schedules,
		resolver:  res,
		players:   players,
		notifier:  notifier,
		cfg:       cfg,
		engines:   make(map[string]*engine.Engine),
	}
}

// Notifier returns the shared engine event notifier.
func (r *Registry) Notifier() *engine.Notifier {
	return r.notifier
}

// GetOrCreate returns the room's engine, creating it on first use.
// Engines live until the room is removed.
func (r *Registry) GetOrCreate(ctx context.Context, roomID string) (*engine.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(ctx, roomID)
}

func (r *Registry) getOrCreateLocked(ctx context.Context, roomID string) (*engine.Engine, error) {
	if eng, ok := r.engines[roomID]; ok {
		return eng, nil
	}

	rm, err := r.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, errors.Wrapf(ErrRoomNotFound, "%s", roomID)
	}

	proj, err := appqueue.NewProjection(ctx, r.queues, roomID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load queue projection")
	}

	eng := engine.New(*rm, r.players(*rm), proj, r.resolver, r.schedules, r.notifier, logger.ForRoom(roomID))
	r.engines[roomID] = eng
	zlog.Info().Str("room_id", roomID).Msg("registry: engine created")
	return eng, nil
}

// Engines returns the current engines keyed by room id.
func (r *Registry) Engines() map[string]*engine.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*engine.Engine, len(r.engines))
	for k, v := range r.engines {
		out[k] = v
	}
	return out
}

// Remove destroys the room's engine, if any.
func (r *Registry) Remove(roomID string) {
	r.mu.Lock()
	eng, ok := r.engines[roomID]
	if ok {
		delete(r.engines, roomID)
	}
	r.mu.Unlock()

	if ok {
		eng.Destroy()
		zlog.Info().Str("room_id", roomID).Msg("registry: engine removed")
	}
}

// Startup prepares engines for every registered room so pre-existing
// queues can recover. Rows left playing from a previous run are reset
// to pending first: no process is attached to them anymore.
func (r *Registry) Startup(ctx context.Context) error {
	if err := r.queues.ResetPlayingToPending(ctx); err != nil {
		return err
	}

	rooms, err := r.rooms.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, rm := range rooms {
		if _, err := r.GetOrCreate(ctx, rm.ID); err != nil {
			zlog.Warn().Str("room_id", rm.ID).Msgf("registry: startup engine failed: %v", err)
		}
	}
	return nil
}

// Run polls for due schedules until the context is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep dispatches every due schedule. Per-schedule failures are
// recorded without aborting the rest of the sweep.
func (r *Registry) sweep(ctx context.Context) {
	now := time.Now()
	due, err := r.schedules.FindDue(ctx, now)
	if err != nil {
		zlog.Warn().Msgf("registry: due-schedule query failed: %v", err)
		return
	}

	for i := range due {
		s := due[i]
		if err := r.dispatch(ctx, now, &s); err != nil {
			zlog.Warn().Str("schedule_id", s.ID).Msgf("registry: schedule dispatch failed: %v", err)
		}
	}
}

func (r *Registry) dispatch(ctx context.Context, now time.Time, s *schedule.Schedule) error {
	if s.Overdue(now, r.cfg.GraceWindow) {
		zlog.Info().Str("schedule_id", s.ID).Msgf("registry: schedule overdue by %v, failing", now.Sub(s.ScheduledAt))
		return r.schedules.UpdateStatus(ctx, s.ID, schedule.StatusFailed)
	}

	eng, err := r.GetOrCreate(ctx, s.RoomID)
	if err != nil {
		if uerr := r.schedules.UpdateStatus(ctx, s.ID, schedule.StatusFailed); uerr != nil {
			return uerr
		}
		return err
	}

	return eng.TriggerSchedule(ctx, s)
}
