package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/noFlowWater/yukebox-sub000/internal/domain/queue"
)

// NotifyKind tags an engine notification.
type NotifyKind string

const (
	NotifyTrackStarted NotifyKind = "track_started"
	NotifyTrackEnded   NotifyKind = "track_ended"
	NotifyStateChanged NotifyKind = "state_changed"
	NotifyQueueChanged NotifyKind = "queue_changed"
)

// Notification is one engine event delivered to subscribers.
type Notification struct {
	Kind   NotifyKind  `json:"kind"`
	RoomID string      `json:"room_id"`
	State  string      `json:"state"`
	Item   *queue.Item `json:"item,omitempty"`
}

// Notifier fans engine events out to subscribers. Sends never block:
// a slow subscriber loses events rather than stalling the engine.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string]chan Notification
}

// NewNotifier creates a new Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subscribers: make(map[string]chan Notification)}
}

// Subscribe registers a subscriber and returns its id and channel.
func (n *Notifier) Subscribe() (string, <-chan Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Notification, 32)
	n.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.subscribers[id]; ok {
		delete(n.subscribers, id)
		close(ch)
	}
}

// Broadcast delivers the notification to every subscriber.
func (n *Notifier) Broadcast(ev Notification) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
