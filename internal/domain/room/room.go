// Package room provides the room domain entity.
package room

// Room is an independent audio output with its own queue, schedule
// set, and playback engine. AudioDevice names the sink mpv binds to.
type Room struct {
	ID            string `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"not null" json:"name"`
	AudioDevice   string `json:"audio_device,omitempty"`
	DefaultVolume int    `gorm:"default:50" json:"default_volume"`
}
