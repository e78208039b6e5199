// Package activity defines the sampled activity events shipped to the backend.
package activity

import "time"

// Activity classification for a sampled tick.
const (
	TypeActive = "active"
	TypeIdle   = "idle"
)

// Event is one sampled slice of foreground activity. Events are immutable
// once created and are deleted only after the backend confirms acceptance.
type Event struct {
	Timestamp       time.Time `json:"ts"`
	AppName         string    `json:"app_name"`
	WindowTitle     *string   `json:"window_title"` // nil when no window title could be read
	ActivityType    string    `json:"activity_type"`
	IdleSeconds     int       `json:"idle_seconds"`
	DurationSeconds int       `json:"duration_seconds"`
	DeviceID        string    `json:"device_id"`
}

// BatchRequest is the body of POST /activity/batch.
type BatchRequest struct {
	Events []Event `json:"events"`
}

// BatchResponse reports how many events the backend accepted.
type BatchResponse struct {
	Accepted int `json:"accepted"`
}
