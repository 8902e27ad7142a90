package audit

import "time"

// EventType represents the type of hub coordination event.
type EventType string

const (
	EventConnected        EventType = "CONNECTED"
	EventDisconnected     EventType = "DISCONNECTED"
	EventDeviceRegistered EventType = "DEVICE_REGISTERED"
	EventTakeover         EventType = "TAKEOVER"
	EventTransfer         EventType = "TRANSFER"
	EventTransferFailed   EventType = "TRANSFER_FAILED"
)

// validEventTypes is used to validate the type query filter.
var validEventTypes = map[EventType]bool{
	EventConnected:        true,
	EventDisconnected:     true,
	EventDeviceRegistered: true,
	EventTakeover:         true,
	EventTransfer:         true,
	EventTransferFailed:   true,
}

// EventLevel represents the severity level of an audit event.
type EventLevel string

const (
	EventLevelInfo EventLevel = "INFO"
	EventLevelWarn EventLevel = "WARN"
)

// HubEvent is one persisted coordination event. It never carries track data.
type HubEvent struct {
	EventID      string         `json:"event_id"`
	Timestamp    time.Time      `json:"timestamp"`
	UserID       string         `json:"user_id"`
	ConnectionID *string        `json:"connection_id,omitempty"`
	DeviceID     *string        `json:"device_id,omitempty"`
	Type         EventType      `json:"type"`
	Level        EventLevel     `json:"level"`
	Message      string         `json:"message"`
	Payload      map[string]any `json:"payload"`
}

// WriteEventInput contains the fields for creating a new event.
// A zero Timestamp is replaced with the repository clock's time; an empty Level defaults to INFO.
type WriteEventInput struct {
	Type         EventType
	Level        EventLevel
	UserID       string
	ConnectionID string
	DeviceID     string
	Message      string
	Payload      map[string]any
	Timestamp    time.Time
}

// EventQueryFilters contains filters for querying a user's events.
type EventQueryFilters struct {
	UserID       string
	Type         *EventType
	ConnectionID *string
	Since        *time.Time
	Limit        int
	Offset       int
}
