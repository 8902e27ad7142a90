package playback

// Server-to-client notification names.
const (
	EventConnected              = "Connected"
	EventRegisterDeviceResult   = "RegisterDeviceResult"
	EventStopPlayback           = "StopPlayback"
	EventPausePlayback          = "PausePlayback"
	EventSessionTakenOver       = "SessionTakenOver"
	EventPlaybackDenied         = "PlaybackDenied"
	EventPlaybackAllowed        = "PlaybackAllowed"
	EventTakeoverSuccess        = "TakeoverSuccess"
	EventStartPlaybackRemote    = "StartPlaybackRemote"
	EventPlaybackPositionSync   = "PlaybackPositionSync"
	EventPlaybackStateChanged   = "PlaybackStateChanged"
	EventTransferPlaybackResult = "TransferPlaybackResult"
	EventError                  = "Error"
)

// User-facing reasons and messages carried in notifications.
const (
	reasonPlayingElsewhere  = "Playing on another device"
	reasonActiveElsewhere   = "Playback is active on another device"
	messageTakenOver        = "Playback taken over by another device"
	messageTakeoverSuccess  = "You are now the active playback device"
	messageDeviceRegistered = "Device registered successfully"
	messageTransferred      = "Playback transferred successfully"
	messageTargetNotFound   = "Target device not found"
)

// Notification is one server-to-client message. Target names the client-side handler.
type Notification struct {
	Target  string
	Payload any
}

// ConnectedPayload greets a newly registered connection.
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	DeviceName   string `json:"deviceName"`
}

// RegisterDeviceResultPayload answers RegisterDevice.
type RegisterDeviceResultPayload struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	DeviceID   string `json:"deviceId,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
}

// PausePlaybackPayload tells a device that playback moved elsewhere.
// Device and DeviceName carry the same label; older web clients read deviceName.
type PausePlaybackPayload struct {
	Reason         string `json:"reason"`
	Device         string `json:"device"`
	DeviceName     string `json:"deviceName"`
	TrackID        string `json:"trackId"`
	TrackName      string `json:"trackName"`
	SourceDeviceID string `json:"sourceDeviceId,omitempty"`
}

// SessionTakenOverPayload is sent to devices that lost the playing slot to a takeover.
type SessionTakenOverPayload struct {
	NewDevice string `json:"newDevice"`
	Message   string `json:"message"`
}

// PlaybackDeniedPayload answers RequestPlayback while another device is fresh.
type PlaybackDeniedPayload struct {
	Reason       string `json:"reason"`
	ActiveDevice string `json:"activeDevice"`
	CanTakeover  bool   `json:"canTakeover"`
}

// TakeoverSuccessPayload answers TakeoverPlayback.
type TakeoverSuccessPayload struct {
	Message string `json:"message"`
}

// StartPlaybackRemotePayload instructs a transfer target to load and seek.
type StartPlaybackRemotePayload struct {
	TrackID      string `json:"trackId"`
	PositionMs   int64  `json:"positionMs"`
	IsPlaying    bool   `json:"isPlaying"`
	SourceDevice string `json:"sourceDevice"`
	TrackName    string `json:"trackName"`
	ImageURL     string `json:"imageUrl"`
	ArtistName   string `json:"artistName"`
}

// PlaybackPositionSyncPayload mirrors the sender's position to the other devices.
type PlaybackPositionSyncPayload struct {
	TrackID    string `json:"trackId"`
	PositionMs int64  `json:"positionMs"`
	IsPlaying  bool   `json:"isPlaying"`
}

// PlaybackStateChangedPayload is the lightweight UI sync broadcast.
type PlaybackStateChangedPayload struct {
	State    string   `json:"state"`
	TrackID  *string  `json:"trackId"`
	Position *float64 `json:"position"`
	Device   string   `json:"device"`
}

// TransferResult answers TransferPlayback.
type TransferResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	TargetDevice string `json:"targetDevice,omitempty"`
}

// ErrorPayload reports a protocol-level problem with a single call.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
