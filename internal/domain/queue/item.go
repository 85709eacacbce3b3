// Package queue provides the queue item domain entity.
package queue

// Status represents the lifecycle state of a queue item.
type Status string

const (
	StatusPending Status = "pending" // Waiting in the queue
	StatusPlaying Status = "playing" // Currently handed to the player
	StatusPaused  Status = "paused"  // Interrupted mid-track, resumable
)

// Item represents one track slot in a room's ordered play queue.
// At most one item per room may be playing and at most one paused
// at any instant; positions form a contiguous 0-based sequence.
type Item struct {
	ID             string  `gorm:"primaryKey" json:"id"`
	URL            string  `gorm:"not null" json:"url"`
	Title          string  `json:"title"`
	Thumbnail      string  `json:"thumbnail,omitempty"`
	Duration       int     `json:"duration"` // seconds
	Position       int     `gorm:"index:idx_queue_room_pos" json:"position"`
	Status         Status  `gorm:"default:pending" json:"status"`
	PausedPosition *int    `json:"paused_position,omitempty"` // seconds into the track when interrupted
	RoomID         string  `gorm:"index:idx_queue_room_pos" json:"room_id"`
	ScheduleID     *string `json:"schedule_id,omitempty"`
}

// TableName gives the backing table an explicit name.
func (Item) TableName() string {
	return "queue_items"
}

// IsResumable reports whether the item was interrupted and carries
// an offset to resume from.
func (i *Item) IsResumable() bool {
	return i.Status == StatusPaused
}

// StartOffset returns the position in seconds playback should start
// from, zero for a fresh item.
func (i *Item) StartOffset() int {
	if i.PausedPosition != nil {
		return *i.PausedPosition
	}
	return 0
}

// ContiguousPositions reports whether items form the position sequence
// 0..n-1 with no gaps or duplicates. Items may be in any order.
func ContiguousPositions(items []Item) bool {
	seen := make([]bool, len(items))
	for _, it := range items {
		if it.Position < 0 || it.Position >= len(items) || seen[it.Position] {
			return false
		}
		seen[it.Position] = true
	}
	return true
}
