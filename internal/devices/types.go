package devices

import "time"

// KnownDevice is a device a user has registered at least once.
// Only identity and labels are stored, never playback state.
type KnownDevice struct {
	UserID     string    `json:"-"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	DeviceType string    `json:"device_type"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// UpsertInput records a sighting of a device. An empty DeviceName keeps the stored name.
type UpsertInput struct {
	UserID     string
	DeviceID   string
	DeviceName string
	DeviceType string
}
