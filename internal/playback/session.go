package playback

import "time"

// DefaultFreshnessWindow is how long a StartPlayback keeps a session "actively playing".
const DefaultFreshnessWindow = 5 * time.Minute

// Session is the coordinator's record of one live connection.
// Values returned by the registry are copies; mutating them has no effect.
type Session struct {
	UserID         string
	ConnectionID   string
	DeviceID       string
	DeviceName     string // explicit label from RegisterDevice/NotifyPlaybackStarted
	DeviceType     string
	TransportHints string
	ConnectedAt    time.Time

	CurrentTrackID   string
	CurrentTrackName string

	// LastPlaybackAt is zero when the session is not claiming playback.
	LastPlaybackAt time.Time
}

// Label returns the display name: explicit registration wins over inference.
func (s Session) Label() string {
	return resolveLabel(s.DeviceName, s.TransportHints)
}

// TargetID is the identifier other devices use to address this session.
func (s Session) TargetID() string {
	if s.DeviceID != "" {
		return s.DeviceID
	}
	return s.ConnectionID
}

// IsFresh reports whether the session started playback within window of now.
func (s Session) IsFresh(now time.Time, window time.Duration) bool {
	if s.LastPlaybackAt.IsZero() {
		return false
	}
	return now.Sub(s.LastPlaybackAt) < window
}

// matchesTarget reports whether target addresses this session by device or connection id.
func (s Session) matchesTarget(target string) bool {
	if target == "" {
		return false
	}
	return s.DeviceID == target || s.ConnectionID == target
}

// CurrentTrack is the track a device last started or received.
type CurrentTrack struct {
	TrackID   string `json:"trackId"`
	TrackName string `json:"trackName"`
}

// DeviceView is one entry of GetConnectedDevices.
type DeviceView struct {
	DeviceID        string        `json:"deviceId"`
	DeviceName      string        `json:"deviceName"`
	DeviceType      string        `json:"deviceType,omitempty"`
	ConnectionID    string        `json:"connectionId"`
	IsActive        bool          `json:"isActive"`
	IsCurrentDevice bool          `json:"isCurrentDevice"`
	ConnectedAt     time.Time     `json:"connectedAt"`
	CurrentTrack    *CurrentTrack `json:"currentTrack"`
}

func newDeviceView(s Session, currentConnectionID string, now time.Time, window time.Duration) DeviceView {
	view := DeviceView{
		DeviceID:        s.TargetID(),
		DeviceName:      s.Label(),
		DeviceType:      s.DeviceType,
		ConnectionID:    s.ConnectionID,
		IsActive:        s.IsFresh(now, window),
		IsCurrentDevice: currentConnectionID != "" && s.ConnectionID == currentConnectionID,
		ConnectedAt:     s.ConnectedAt,
	}
	if s.CurrentTrackID != "" || s.CurrentTrackName != "" {
		view.CurrentTrack = &CurrentTrack{TrackID: s.CurrentTrackID, TrackName: s.CurrentTrackName}
	}
	return view
}
