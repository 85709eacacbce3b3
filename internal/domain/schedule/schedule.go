// Package schedule provides the scheduled-track domain entity.
package schedule

import "time"

// Status represents the lifecycle state of a schedule.
type Status string

const (
	StatusPending   Status = "pending"   // Not yet triggered
	StatusPlaying   Status = "playing"   // Its track is on the air
	StatusCompleted Status = "completed" // Finished naturally or superseded
	StatusFailed    Status = "failed"    // Resolution failed or overdue past grace
)

// Schedule is a one-shot future trigger to insert a track into a
// room's playback at a specific time. Members of a group share a
// GroupID and chain in scheduled-at order, each on its own room.
type Schedule struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	URL         string    `json:"url,omitempty"`   // direct URL, or empty when Query is set
	Query       string    `json:"query,omitempty"` // search query resolved at trigger time
	Title       string    `json:"title"`
	Duration    int       `json:"duration"` // seconds, advisory
	ScheduledAt time.Time `gorm:"index" json:"scheduled_at"`
	Status      Status    `gorm:"default:pending;index" json:"status"`
	GroupID     *string   `gorm:"index" json:"group_id,omitempty"`
	RoomID      string    `gorm:"index" json:"room_id"`
}

// Overdue reports whether the schedule missed its slot by more than
// the grace window at the given instant.
func (s *Schedule) Overdue(now time.Time, grace time.Duration) bool {
	return now.Sub(s.ScheduledAt) > grace
}

// TrackRef returns the reference the resolver should use: the direct
// URL when present, otherwise the search query.
func (s *Schedule) TrackRef() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Query
}
