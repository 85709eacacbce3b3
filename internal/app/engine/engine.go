// Package engine provides the per-room playback state machine. One
// engine composes a player client and a queue projection; every public
// operation runs inside the room's FIFO command mutex so a user action
// and an asynchronous player event can never interleave.
package engine

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/noFlowWater/yukebox-sub000/internal/app/player"
	appqueue "github.com/noFlowWater/yukebox-sub000/internal/app/queue"
	"github.com/noFlowWater/yukebox-sub000/internal/app/resolver"
	"github.com/noFlowWater/yukebox-sub000/internal/domain/queue"
	"github.com/noFlowWater/yukebox-sub000/internal/domain/room"
	"github.com/noFlowWater/yukebox-sub000/internal/domain/schedule"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotFound = errors.New("item not found")
	ErrIdle     = errors.New("nothing is playing")
)

// PlayerClient is the subset of the player the engine drives.
type PlayerClient interface {
	Start(ctx context.Context, volume *int) error
	Play(ctx context.Context, url string, startPos int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, volume int) error
	Position(ctx context.Context) float64
	PlaybackInfo(ctx context.Context) player.PlaybackInfo
	Connected() bool
	Events() <-chan player.Event
	Destroy()
}

// ScheduleStore is the schedule repository surface the engine needs.
type ScheduleStore interface {
	Get(ctx context.Context, id string) (*schedule.Schedule, error)
	FindPlayingByRoom(ctx context.Context, roomID string) ([]schedule.Schedule, error)
	FindPendingByGroup(ctx context.Context, groupID string) ([]schedule.Schedule, error)
	UpdateStatus(ctx context.Context, id string, status schedule.Status) error
}

// TrackRequest describes what to play: direct metadata (Title set)
// or a reference the resolver turns into a stream.
type TrackRequest struct {
	URL       string
	Query     string
	Title     string
	Thumbnail string
	Duration  int
}

// Status is a point-in-time snapshot for API consumers.
type Status struct {
	RoomID  string              `json:"room_id"`
	State   string              `json:"state"`
	Volume  int                 `json:"volume"`
	Current *queue.Item         `json:"current,omitempty"`
	Player  player.PlaybackInfo `json:"player"`
}

// Engine is the per-room playback state machine.
type Engine struct {
	room      room.Room
	player    PlayerClient
	proj      *appqueue.Projection
	resolver  resolver.Resolver
	schedules ScheduleStore
	notifier  *Notifier
	log       zerolog.Logger

	cmd *commandMutex

	mu     sync.RWMutex
	state  State
	volume int

	cancel context.CancelFunc
}

// New creates an engine and starts consuming player events.
func New(rm room.Room, pc PlayerClient, proj *appqueue.Projection, res resolver.Resolver, schedules ScheduleStore, notifier *Notifier, log zerolog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		room:      rm,
		player:    pc,
		proj:      proj,
		resolver:  res,
		schedules: schedules,
		notifier:  notifier,
		log:       log,
		cmd:       &commandMutex{},
		state:     StateIdle,
		volume:    rm.DefaultVolume,
		cancel:    cancel,
	}
	go e.eventLoop(ctx)
	return e
}

// Room returns the room this engine drives.
func (e *Engine) Room() room.Room {
	return e.room
}

// Queue returns the engine's queue projection.
func (e *Engine) Queue() *appqueue.Projection {
	return e.proj
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	changed := e.state != s
	e.state = s
	e.mu.Unlock()
	if changed {
		e.notifier.Broadcast(Notification{
			Kind:   NotifyStateChanged,
			RoomID: e.room.ID,
			State:  s.String(),
		})
	}
}

// PlayNow resolves the requested track, interrupts whatever is on the
// air (pausing it with its captured offset, never stopping it), and
// plays the new track from the front of the queue.
func (e *Engine) PlayNow(ctx context.Context, req TrackRequest) (queue.Item, error) {
	e.cmd.Lock()
	defer e.cmd.Unlock()
	return e.playNowLocked(ctx, req)
}

func (e *Engine) playNowLocked(ctx context.Context, req TrackRequest) (queue.Item, error) {
	item, streamURL, err := e.resolveRequest(ctx, req)
	if err != nil {
		return queue.Item{}, err
	}

	if err := e.interruptLocked(ctx); err != nil {
		return queue.Item{}, err
	}

	if err := e.proj.InsertAtFront(ctx, item); err != nil {
		return queue.Item{}, err
	}
	if err := e.proj.MarkPlaying(ctx, item.ID); err != nil {
		return queue.Item{}, err
	}

	if err := e.startPlaybackLocked(ctx, streamURL, 0); err != nil {
		_ = e.proj.Remove(ctx, item.ID)
		e.setState(StateIdle)
		return queue.Item{}, err
	}

	started, _ := e.proj.Find(item.ID)
	e.notifier.Broadcast(Notification{
		Kind:   NotifyTrackStarted,
		RoomID: e.room.ID,
		State:  StatePlaying.String(),
		Item:   &started,
	})
	return started, nil
}

// resolveRequest turns the request into a queue item plus a stream
// URL. The resolver is always consulted for the stream; metadata the
// caller supplied directly wins over resolved metadata.
func (e *Engine) resolveRequest(ctx context.Context, req TrackRequest) (queue.Item, string, error) {
	ref := req.URL
	if ref == "" {
		ref = req.Query
	}
	resolved, err := e.resolver.Resolve(ctx, ref)
	if err != nil {
		return queue.Item{}, "", errors.Wrapf(err, "failed to resolve %q", ref)
	}

	item := queue.Item{
		ID:        uuid.New().String(),
		RoomID:    e.room.ID,
		URL:       resolved.SourceURL,
		Title:     resolved.Title,
		Thumbnail: resolved.Thumbnail,
		Duration:  resolved.Duration,
		Status:    queue.StatusPending,
	}
	if req.Title != "" {
		item.Title = req.Title
	}
	if req.Thumbnail != "" {
		item.Thumbnail = req.Thumbnail
	}
	if req.Duration > 0 {
		item.Duration = req.Duration
	}
	return item, resolved.StreamURL, nil
}

// interruptLocked pauses the current front item with the player's
// captured offset. Interrupted work stays resumable; it is never
// stopped outright.
func (e *Engine) interruptLocked(ctx context.Context) error {
	e.mu.RLock()
	st := e.state
	e.mu.RUnlock()
	if st != StatePlaying && st != StatePaused {
		return nil
	}

	offset := int(e.player.Position(ctx))
	if err := e.proj.PauseFront(ctx, offset); err != nil && !errors.Is(err, appqueue.ErrEmpty) {
		return errors.Wrap(err, "failed to pause front item")
	}
	return nil
}

// startPlaybackLocked runs one play attempt through the loading state.
func (e *Engine) startPlaybackLocked(ctx context.Context, streamURL string, startPos int) error {
	e.setState(StateLoading)

	if !e.player.Connected() {
		vol := e.currentVolume()
		if err := e.player.Start(ctx, &vol); err != nil {
			e.setState(StateIdle)
			return err
		}
	}
	if err := e.player.Play(ctx, streamURL, startPos); err != nil {
		e.setState(StateIdle)
		return err
	}

	e.setState(StatePlaying)
	return nil
}

// Stop stops the subprocess and deletes the currently-playing item.
// Paused items are left untouched. No-op when idle.
func (e *Engine) Stop(ctx context.Context) error {
	e.cmd.Lock()
	defer e.cmd.Unlock()

	if e.State() == StateIdle {
		return nil
	}

	if e.player.Connected() {
		if err := e.player.Stop(ctx); err != nil {
			e.log.Warn().Msgf("engine: player stop failed: %v", err)
		}
	}
	if err := e.proj.RemovePlaying(ctx); err != nil {
		return err
	}

	e.setState(StateIdle)
	e.notifier.Broadcast(Notification{
		Kind:   NotifyQueueChanged,
		RoomID: e.room.ID,
		State:  StateIdle.String(),
	})
	return nil
}

// TogglePause flips between playing and paused. No-op from idle.
func (e *Engine) TogglePause(ctx context.Context) (State, error) {
	e.cmd.Lock()
	defer e.cmd.Unlock()

	switch e.State() {
	case StatePlaying:
		if err := e.player.Pause(ctx); err != nil {
			return e.State(), err
		}
		e.setState(StatePaused)
	case StatePaused:
		if err := e.player.Resume(ctx); err != nil {
			return e.State(), err
		}
		e.setState(StatePlaying)
	}
	return e.State(), nil
}

// SetVolume passes the volume through and remembers it as the room's
// working default.
func (e *Engine) SetVolume(ctx context.Context, volume int) error {
	e.cmd.Lock()
	defer e.cmd.Unlock()

	e.mu.Lock()
	e.volume = volume
	e.mu.Unlock()
	return e.player.SetVolume(ctx, volume)
}

// Seek passes an absolute seek through to the player.
func (e *Engine) Seek(ctx context.Context, seconds float64) error {
	e.cmd.Lock()
	defer e.cmd.Unlock()

	if e.State() == StateIdle {
		return ErrIdle
	}
	return e.player.Seek(ctx, seconds)
}

// EnqueueBulk appends items to the end of the queue.
func (e *Engine) EnqueueBulk(ctx context.Context, items []queue.Item) error {
	e.cmd.Lock()
	defer e.cmd.Unlock()

	if err := e.proj.AppendBulk(ctx, items); err != nil {
		return err
	}
	e.notifyQueueChanged()
	return nil
}

// RemoveItem deletes a queue item. Taking the command mutex keeps the
// removal from interleaving with an in-flight auto-advance.
func (e *Engine) RemoveItem(ctx context.Context, id string) error {
	e.cmd.Lock()
	defer e.cmd.Unlock()

	if err := e.proj.Remove(ctx, id); err != nil {
		return err
	}
	e.notifyQueueChanged()
	return nil
}

// ReorderItem relocates a queue item to the given position.
func (e *Engine) ReorderItem(ctx context.Context, id string, newPos int) error {
	e.cmd.Lock()
	defer e.cmd.Unlock()

	if err := e.proj.Reorder(ctx, id, newPos); err != nil {
		return err
	}
	e.notifyQueueChanged()
	return nil
}

// ClearQueue deletes all pending items.
func (e *Engine) ClearQueue(ctx context.Context) error {
	e.cmd.Lock()
	defer e.cmd.Unlock()

	if err := e.proj.ClearPending(ctx); err != nil {
		return err
	}
	e.notifyQueueChanged()
	return nil
}

// ShuffleQueue permutes the pending items.
func (e *Engine) ShuffleQueue(ctx context.Context) error {
	e.cmd.Lock()
	defer e.cmd.Unlock()

	if err := e.proj.Shuffle(ctx); err != nil {
		return err
	}
	e.notifyQueueChanged()
	return nil
}

func (e *Engine) notifyQueueChanged() {
	e.notifier.Broadcast(Notification{
		Kind:   NotifyQueueChanged,
		RoomID: e.room.ID,
		State:  e.State().String(),
	})
}

// PlayFromQueue plays an existing queue item immediately, applying the
// same interruption rule as PlayNow. A resolution failure removes the
// target and reports not-found instead of raising.
func (e *Engine) PlayFromQueue(ctx context.Context, id string) (queue.Item, error) {
	e.cmd.Lock()
	defer e.cmd.Unlock()

	target, ok := e.proj.Find(id)
	if !ok {
		return queue.Item{}, ErrNotFound
	}

	resolved, err := e.resolver.Resolve(ctx, target.URL)
	if err != nil {
		e.log.Warn().Msgf("engine: failed to resolve queued item %s: %v", id, err)
		_ = e.proj.Remove(ctx, id)
		return queue.Item{}, ErrNotFound
	}

	if target.Status != queue.StatusPlaying {
		if err := e.interruptLocked(ctx); err != nil {
			return queue.Item{}, err
		}
	}

	startPos := target.StartOffset()
	if err := e.proj.MoveToFront(ctx, id); err != nil {
		return queue.Item{}, err
	}
	if err := e.proj.MarkPlaying(ctx, id); err != nil {
		return queue.Item{}, err
	}

	if err := e.startPlaybackLocked(ctx, resolved.StreamURL, startPos); err != nil {
		_ = e.proj.Remove(ctx, id)
		return queue.Item{}, err
	}

	started, _ := e.proj.Find(id)
	e.notifier.Broadcast(Notification{
		Kind:   NotifyTrackStarted,
		RoomID: e.room.ID,
		State:  StatePlaying.String(),
		Item:   &started,
	})
	return started, nil
}

// TriggerSchedule plays a due schedule's track immediately: any other
// schedule still marked playing on this room is force-completed, the
// current track is interrupted, and the schedule's track goes to the
// front tagged with its schedule id.
func (e *Engine) TriggerSchedule(ctx context.Context, s *schedule.Schedule) error {
	e.cmd.Lock()
	defer e.cmd.Unlock()
	return e.triggerScheduleLocked(ctx, s)
}

func (e *Engine) triggerScheduleLocked(ctx context.Context, s *schedule.Schedule) error {
	playing, err := e.schedules.FindPlayingByRoom(ctx, e.room.ID)
	if err != nil {
		return err
	}
	for _, p := range playing {
		if p.ID == s.ID {
			continue
		}
		if err := e.schedules.UpdateStatus(ctx, p.ID, schedule.StatusCompleted); err != nil {
			e.log.Warn().Msgf("engine: failed to complete superseded schedule %s: %v", p.ID, err)
		}
	}

	if err := e.interruptLocked(ctx); err != nil {
		return err
	}
	if err := e.proj.RemovePlaying(ctx); err != nil {
		return err
	}

	item := queue.Item{
		ID:         uuid.New().String(),
		RoomID:     e.room.ID,
		URL:        s.TrackRef(),
		Title:      s.Title,
		Duration:   s.Duration,
		Status:     queue.StatusPending,
		ScheduleID: &s.ID,
	}
	if err := e.proj.InsertAtFront(ctx, item); err != nil {
		return err
	}

	// A failed trigger must not leave the interrupted track stranded:
	// advancing resumes it from its captured offset, or goes idle when
	// nothing is playable.
	fail := func(cause error) error {
		_ = e.proj.Remove(ctx, item.ID)
		if err := e.schedules.UpdateStatus(ctx, s.ID, schedule.StatusFailed); err != nil {
			e.log.Warn().Msgf("engine: failed to mark schedule %s failed: %v", s.ID, err)
		}
		if err := e.playFrontLocked(ctx); err != nil {
			e.log.Warn().Msgf("engine: recovery after schedule failure failed: %v", err)
		}
		return cause
	}

	resolved, err := e.resolver.Resolve(ctx, s.TrackRef())
	if err != nil {
		return fail(errors.Wrapf(err, "failed to resolve schedule %s", s.ID))
	}

	if err := e.proj.MarkPlaying(ctx, item.ID); err != nil {
		return fail(err)
	}
	if err := e.startPlaybackLocked(ctx, resolved.StreamURL, 0); err != nil {
		return fail(err)
	}

	if err := e.schedules.UpdateStatus(ctx, s.ID, schedule.StatusPlaying); err != nil {
		e.log.Warn().Msgf("engine: failed to mark schedule %s playing: %v", s.ID, err)
	}

	started, _ := e.proj.Find(item.ID)
	e.notifier.Broadcast(Notification{
		Kind:   NotifyTrackStarted,
		RoomID: e.room.ID,
		State:  StatePlaying.String(),
		Item:   &started,
	})
	return nil
}

// TriggerGroupContinuation chains to the earliest pending schedule of
// the group that belongs to this room. Reports whether a continuation
// happened.
func (e *Engine) TriggerGroupContinuation(ctx context.Context, groupID string) (bool, error) {
	e.cmd.Lock()
	defer e.cmd.Unlock()
	return e.triggerGroupContinuationLocked(ctx, groupID)
}

func (e *Engine) triggerGroupContinuationLocked(ctx context.Context, groupID string) (bool, error) {
	members, err := e.schedules.FindPendingByGroup(ctx, groupID)
	if err != nil {
		return false, err
	}
	for i := range members {
		if members[i].RoomID != e.room.ID {
			continue
		}
		return true, e.triggerScheduleLocked(ctx, &members[i])
	}
	return false, nil
}

// CurrentStatus returns a snapshot of the engine and its player.
func (e *Engine) CurrentStatus(ctx context.Context) Status {
	st := Status{
		RoomID: e.room.ID,
		State:  e.State().String(),
		Volume: e.currentVolume(),
	}
	for _, it := range e.proj.Items() {
		if it.Status == queue.StatusPlaying {
			item := it
			st.Current = &item
			break
		}
	}
	if e.player.Connected() {
		st.Player = e.player.PlaybackInfo(ctx)
	}
	return st
}

// Destroy stops event consumption and tears down the player.
func (e *Engine) Destroy() {
	e.cancel()
	e.player.Destroy()
}

func (e *Engine) currentVolume() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.volume
}

// eventLoop consumes player notifications for the engine's lifetime.
func (e *Engine) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.player.Events():
			if !ok {
				return
			}
			e.handlePlayerEvent(ctx, ev)
		}
	}
}

// handlePlayerEvent runs an event-driven transition. When the command
// mutex is already held, a concurrently running command supersedes the
// event and it is skipped.
func (e *Engine) handlePlayerEvent(ctx context.Context, ev player.Event) {
	if !e.cmd.TryLock() {
		e.log.Debug().Msgf("engine: skipping %s event, command in flight", ev.Kind)
		return
	}
	defer e.cmd.Unlock()

	switch ev.Kind {
	case player.EventTrackEnd:
		e.onTrackEndLocked(ctx)
	case player.EventTrackError, player.EventProcessExit:
		// A crashed subprocess cannot distinguish a clean end from an
		// error end; both recover the same way.
		e.onTrackErrorLocked(ctx)
	}
}

func (e *Engine) onTrackEndLocked(ctx context.Context) {
	finished, ok := e.playingItem()
	if !ok {
		e.setState(StateIdle)
		return
	}

	var groupID *string
	if finished.ScheduleID != nil {
		if err := e.schedules.UpdateStatus(ctx, *finished.ScheduleID, schedule.StatusCompleted); err != nil {
			e.log.Warn().Msgf("engine: failed to complete schedule %s: %v", *finished.ScheduleID, err)
		}
		if s, err := e.schedules.Get(ctx, *finished.ScheduleID); err == nil {
			groupID = s.GroupID
		}
	}

	if err := e.proj.Remove(ctx, finished.ID); err != nil {
		e.log.Warn().Msgf("engine: failed to remove finished item %s: %v", finished.ID, err)
	}
	e.notifier.Broadcast(Notification{
		Kind:   NotifyTrackEnded,
		RoomID: e.room.ID,
		State:  e.State().String(),
		Item:   &finished,
	})

	if groupID != nil {
		continued, err := e.triggerGroupContinuationLocked(ctx, *groupID)
		if err != nil {
			e.log.Warn().Msgf("engine: group continuation failed: %v", err)
		}
		if continued {
			return
		}
	}

	if err := e.playFrontLocked(ctx); err != nil {
		e.log.Warn().Msgf("engine: auto-advance failed: %v", err)
	}
}

func (e *Engine) onTrackErrorLocked(ctx context.Context) {
	finished, ok := e.playingItem()
	if !ok {
		e.setState(StateIdle)
		return
	}

	if finished.ScheduleID != nil {
		if err := e.schedules.UpdateStatus(ctx, *finished.ScheduleID, schedule.StatusFailed); err != nil {
			e.log.Warn().Msgf("engine: failed to fail schedule %s: %v", *finished.ScheduleID, err)
		}
	}
	if err := e.proj.Remove(ctx, finished.ID); err != nil {
		e.log.Warn().Msgf("engine: failed to remove errored item %s: %v", finished.ID, err)
	}
	e.notifier.Broadcast(Notification{
		Kind:   NotifyTrackEnded,
		RoomID: e.room.ID,
		State:  e.State().String(),
		Item:   &finished,
	})

	if err := e.playFrontLocked(ctx); err != nil {
		e.log.Warn().Msgf("engine: auto-advance failed: %v", err)
	}
}

// playFrontLocked advances to the next playable item. Items that fail
// resolution are removed and the next candidate is tried; each
// iteration shrinks the queue, so the loop terminates.
func (e *Engine) playFrontLocked(ctx context.Context) error {
	for {
		item, ok := e.proj.NextPlayable()
		if !ok {
			e.setState(StateIdle)
			return nil
		}

		// A paused schedule item whose schedule has since completed is
		// stale work; discard it and try the next candidate.
		if item.ScheduleID != nil && item.Status == queue.StatusPaused {
			if s, err := e.schedules.Get(ctx, *item.ScheduleID); err == nil && s.Status == schedule.StatusCompleted {
				if err := e.proj.Remove(ctx, item.ID); err != nil {
					return err
				}
				continue
			}
		}

		resolved, err := e.resolver.Resolve(ctx, item.URL)
		if err != nil {
			e.log.Warn().Msgf("engine: failed to resolve %q, skipping: %v", item.URL, err)
			if item.ScheduleID != nil {
				_ = e.schedules.UpdateStatus(ctx, *item.ScheduleID, schedule.StatusFailed)
			}
			if err := e.proj.Remove(ctx, item.ID); err != nil {
				return err
			}
			continue
		}

		startPos := item.StartOffset()
		if err := e.proj.MarkPlaying(ctx, item.ID); err != nil {
			return err
		}
		if err := e.startPlaybackLocked(ctx, resolved.StreamURL, startPos); err != nil {
			e.log.Warn().Msgf("engine: playback start failed, skipping: %v", err)
			if err := e.proj.Remove(ctx, item.ID); err != nil {
				return err
			}
			continue
		}

		started, _ := e.proj.Find(item.ID)
		e.notifier.Broadcast(Notification{
			Kind:   NotifyTrackStarted,
			RoomID: e.room.ID,
			State:  StatePlaying.String(),
			Item:   &started,
		})
		return nil
	}
}

func (e *Engine) playingItem() (queue.Item, bool) {
	for _, it := range e.proj.Items() {
		if it.Status == queue.StatusPlaying {
			return it, true
		}
	}
	return queue.Item{}, false
}
