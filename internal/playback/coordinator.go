package playback

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/strefethen/playback-hub-go/internal/audit"
	"github.com/strefethen/playback-hub-go/internal/devices"
	"github.com/strefethen/playback-hub-go/internal/logging"
	"github.com/strefethen/playback-hub-go/internal/metrics"
)

// EventRecorder receives coordination events. Record must not block.
type EventRecorder interface {
	Record(input audit.WriteEventInput)
}

// DeviceStore remembers device labels across reconnects.
type DeviceStore interface {
	Upsert(ctx context.Context, input devices.UpsertInput) (*devices.KnownDevice, error)
	Get(ctx context.Context, userID, deviceID string) (*devices.KnownDevice, error)
}

// TransferRequest carries the arguments of TransferPlayback.
type TransferRequest struct {
	TargetDeviceID string
	TrackID        string
	PositionMs     int64
	IsPlaying      bool
	TrackName      string
	ImageURL       string
	ArtistName     string
}

// Coordinator implements the arbitration and transfer protocol on top of the Registry.
// Every method takes the calling connection's id; calls from unregistered connections
// are silent no-ops.
type Coordinator struct {
	registry  *Registry
	publisher Publisher
	devices   DeviceStore
	recorder  EventRecorder
	logger    *zap.SugaredLogger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPublisher replaces the in-process group fan-out.
func WithPublisher(p Publisher) CoordinatorOption {
	return func(c *Coordinator) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithDeviceStore enables known-device persistence.
func WithDeviceStore(store DeviceStore) CoordinatorOption {
	return func(c *Coordinator) {
		c.devices = store
	}
}

// WithEventRecorder enables the coordination audit log.
func WithEventRecorder(recorder EventRecorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.recorder = recorder
	}
}

// NewCoordinator creates a coordinator over registry.
func NewCoordinator(registry *Registry, logger *zap.SugaredLogger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry:  registry,
		publisher: NewGroups(registry),
		logger:    logging.OrNop(logger).Named("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry exposes the underlying registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Connect registers a new connection and greets it with a Connected notification.
func (c *Coordinator) Connect(ctx context.Context, connectionID, userID, transportHints string, sink Sink) (Session, error) {
	session, err := c.registry.Register(connectionID, userID, transportHints, sink)
	if err != nil {
		return Session{}, err
	}
	label := c.registry.ResolveLabel(connectionID, transportHints)

	c.publisher.SendToOne(connectionID, Notification{
		Target: EventConnected,
		Payload: ConnectedPayload{
			ConnectionID: connectionID,
			DeviceName:   label,
		},
	})

	c.logger.Infow("Client connected",
		"user_id", userID,
		"connection_id", connectionID,
		"device", label,
	)
	c.record(audit.WriteEventInput{
		Type:         audit.EventConnected,
		UserID:       userID,
		ConnectionID: connectionID,
		Message:      "Connected",
		Payload:      map[string]any{"device_name": label},
	})
	return session, nil
}

// Disconnect removes the connection and its group membership immediately.
// Other devices are not notified.
func (c *Coordinator) Disconnect(ctx context.Context, connectionID string) {
	session, ok := c.registry.Unregister(connectionID)
	if !ok {
		return
	}

	c.logger.Infow("Client disconnected",
		"user_id", session.UserID,
		"connection_id", connectionID,
		"device", session.Label(),
	)
	c.record(audit.WriteEventInput{
		Type:         audit.EventDisconnected,
		UserID:       session.UserID,
		ConnectionID: connectionID,
		DeviceID:     session.DeviceID,
		Message:      "Disconnected",
	})
}

// RegisterDevice sets the caller's explicit device identity. An empty name reuses the
// name stored for deviceID, if any.
func (c *Coordinator) RegisterDevice(ctx context.Context, connectionID, deviceID, deviceName, deviceType string) {
	caller, ok := c.registry.Get(connectionID)
	if !ok {
		c.logger.Warnw("RegisterDevice from unregistered connection", "connection_id", connectionID)
		return
	}

	if deviceName == "" && deviceID != "" && c.devices != nil {
		known, err := c.devices.Get(ctx, caller.UserID, deviceID)
		if err != nil {
			c.logger.Warnw("Known device lookup failed", "user_id", caller.UserID, "device_id", deviceID, "error", err)
		} else if known != nil {
			deviceName = known.DeviceName
		}
	}

	var label string
	updated := c.registry.update(connectionID, func(_ time.Time, self *entry, _ []*entry) {
		self.session.DeviceID = deviceID
		self.session.DeviceName = deviceName
		self.session.DeviceType = deviceType
		label = self.session.Label()
	})
	if !updated {
		return
	}

	c.publisher.SendToOne(connectionID, Notification{
		Target: EventRegisterDeviceResult,
		Payload: RegisterDeviceResultPayload{
			Success:    true,
			Message:    messageDeviceRegistered,
			DeviceID:   deviceID,
			DeviceName: label,
		},
	})

	c.logger.Infow("Device registered",
		"user_id", caller.UserID,
		"connection_id", connectionID,
		"device_id", deviceID,
		"device", label,
		"device_type", deviceType,
	)
	c.rememberDevice(ctx, caller.UserID, deviceID, deviceName, deviceType)
	c.record(audit.WriteEventInput{
		Type:         audit.EventDeviceRegistered,
		UserID:       caller.UserID,
		ConnectionID: connectionID,
		DeviceID:     deviceID,
		Message:      messageDeviceRegistered,
		Payload:      map[string]any{"device_name": label, "device_type": deviceType},
	})
}

// StartPlayback makes the caller the playing device and tells every other device of
// the user to stop.
func (c *Coordinator) StartPlayback(ctx context.Context, connectionID, trackID, trackName string) {
	var claim playbackClaim
	updated := c.registry.update(connectionID, func(now time.Time, self *entry, members []*entry) {
		if trackID != "" {
			self.session.CurrentTrackID = trackID
		}
		if trackName != "" {
			self.session.CurrentTrackName = trackName
		}
		claim = claimPlayback(now, self, members)
	})
	if !updated {
		c.logger.Warnw("StartPlayback from unregistered connection", "connection_id", connectionID)
		return
	}

	c.announceClaim(connectionID, claim)
}

// NotifyPlaybackStarted is StartPlayback for clients that identify themselves by
// device id instead of track. It also updates the caller's device id and label.
func (c *Coordinator) NotifyPlaybackStarted(ctx context.Context, connectionID, deviceID, deviceName string) {
	var claim playbackClaim
	updated := c.registry.update(connectionID, func(now time.Time, self *entry, members []*entry) {
		if deviceID != "" {
			self.session.DeviceID = deviceID
		}
		if deviceName != "" {
			self.session.DeviceName = deviceName
		}
		claim = claimPlayback(now, self, members)
	})
	if !updated {
		c.logger.Warnw("NotifyPlaybackStarted from unregistered connection", "connection_id", connectionID)
		return
	}

	c.announceClaim(connectionID, claim)
	if deviceID != "" {
		c.rememberDevice(ctx, claim.userID, deviceID, deviceName, "")
	}
}

// RequestPlayback asks whether the caller may play. It answers PlaybackDenied while
// another device of the user is fresh, PlaybackAllowed otherwise. Nothing is reserved.
func (c *Coordinator) RequestPlayback(ctx context.Context, connectionID string) bool {
	caller, ok := c.registry.Get(connectionID)
	if !ok {
		c.logger.Warnw("RequestPlayback from unregistered connection", "connection_id", connectionID)
		return false
	}

	active, playing := c.registry.ActiveSession(caller.UserID, connectionID)
	if playing {
		c.publisher.SendToOne(connectionID, Notification{
			Target: EventPlaybackDenied,
			Payload: PlaybackDeniedPayload{
				Reason:       reasonActiveElsewhere,
				ActiveDevice: active.Label(),
				CanTakeover:  true,
			},
		})
		c.logger.Debugw("Playback denied",
			"user_id", caller.UserID,
			"connection_id", connectionID,
			"active_connection_id", active.ConnectionID,
		)
		return false
	}

	c.publisher.SendToOne(connectionID, Notification{Target: EventPlaybackAllowed})
	return true
}

// TakeoverPlayback unconditionally claims the playing slot for the caller.
func (c *Coordinator) TakeoverPlayback(ctx context.Context, connectionID string) {
	var claim playbackClaim
	updated := c.registry.update(connectionID, func(now time.Time, self *entry, members []*entry) {
		claim = claimPlayback(now, self, members)
	})
	if !updated {
		c.logger.Warnw("TakeoverPlayback from unregistered connection", "connection_id", connectionID)
		return
	}

	c.publisher.Publish(claim.userID, connectionID, Notification{
		Target: EventSessionTakenOver,
		Payload: SessionTakenOverPayload{
			NewDevice: claim.label,
			Message:   messageTakenOver,
		},
	})
	c.publisher.SendToOne(connectionID, Notification{
		Target:  EventTakeoverSuccess,
		Payload: TakeoverSuccessPayload{Message: messageTakeoverSuccess},
	})

	metrics.TakeoversTotal.Inc()
	c.logger.Infow("Playback taken over",
		"user_id", claim.userID,
		"connection_id", connectionID,
		"device", claim.label,
		"displaced", claim.displaced,
	)
	c.record(audit.WriteEventInput{
		Type:         audit.EventTakeover,
		UserID:       claim.userID,
		ConnectionID: connectionID,
		DeviceID:     claim.deviceID,
		Message:      messageTakeoverSuccess,
		Payload:      map[string]any{"device_name": claim.label, "displaced": claim.displaced},
	})
}

// UpdatePlaybackState mirrors a pause/resume/seek to the user's other devices.
// Arbitration state is untouched.
func (c *Coordinator) UpdatePlaybackState(ctx context.Context, connectionID, state string, trackID *string, position *float64) {
	caller, ok := c.registry.Get(connectionID)
	if !ok {
		return
	}

	c.publisher.Publish(caller.UserID, connectionID, Notification{
		Target: EventPlaybackStateChanged,
		Payload: PlaybackStateChangedPayload{
			State:    state,
			TrackID:  trackID,
			Position: position,
			Device:   caller.Label(),
		},
	})
}

// SyncPlaybackPosition mirrors the caller's position to the user's other devices.
func (c *Coordinator) SyncPlaybackPosition(ctx context.Context, connectionID, trackID string, positionMs int64, isPlaying bool) {
	caller, ok := c.registry.Get(connectionID)
	if !ok {
		return
	}

	c.publisher.Publish(caller.UserID, connectionID, Notification{
		Target: EventPlaybackPositionSync,
		Payload: PlaybackPositionSyncPayload{
			TrackID:    trackID,
			PositionMs: positionMs,
			IsPlaying:  isPlaying,
		},
	})
}

// GetConnectedDevices lists the caller's user's live devices in connect order.
func (c *Coordinator) GetConnectedDevices(ctx context.Context, connectionID string) []DeviceView {
	caller, ok := c.registry.Get(connectionID)
	if !ok {
		return []DeviceView{}
	}
	return c.devicesFor(caller.UserID, connectionID)
}

// DevicesForUser lists userID's live devices for callers that are not hub connections.
func (c *Coordinator) DevicesForUser(userID string) []DeviceView {
	return c.devicesFor(userID, "")
}

func (c *Coordinator) devicesFor(userID, currentConnectionID string) []DeviceView {
	now := c.registry.Now()
	window := c.registry.FreshnessWindow()

	sessions := c.registry.ListByUser(userID)
	views := make([]DeviceView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newDeviceView(s, currentConnectionID, now, window))
	}
	return views
}

// TransferPlayback hands the caller's playback to another device of the same user.
// Everyone except the target is told to stop, including the caller. The result is
// returned and also sent to the caller as TransferPlaybackResult.
func (c *Coordinator) TransferPlayback(ctx context.Context, connectionID string, req TransferRequest) TransferResult {
	var (
		userID       string
		sourceLabel  string
		targetConnID string
		targetID     string
	)
	updated := c.registry.update(connectionID, func(now time.Time, self *entry, members []*entry) {
		userID = self.session.UserID
		sourceLabel = self.session.Label()

		var target *entry
		for _, e := range members {
			if e.session.matchesTarget(req.TargetDeviceID) {
				target = e
				break
			}
		}
		if target == nil {
			return
		}
		targetConnID = target.session.ConnectionID
		targetID = target.session.TargetID()

		if req.TrackID != "" {
			target.session.CurrentTrackID = req.TrackID
			target.session.CurrentTrackName = req.TrackName
		}
		for _, e := range members {
			if e != target {
				e.session.LastPlaybackAt = time.Time{}
			}
		}
		if req.IsPlaying {
			target.session.LastPlaybackAt = now
		}
	})
	if !updated {
		c.logger.Warnw("TransferPlayback from unregistered connection", "connection_id", connectionID)
		return TransferResult{}
	}

	if targetConnID == "" {
		result := TransferResult{Success: false, Message: messageTargetNotFound}
		c.publisher.SendToOne(connectionID, Notification{Target: EventTransferPlaybackResult, Payload: result})

		metrics.TransfersTotal.WithLabelValues("not_found").Inc()
		c.logger.Infow("Transfer target not found",
			"user_id", userID,
			"connection_id", connectionID,
			"target_device_id", req.TargetDeviceID,
		)
		c.record(audit.WriteEventInput{
			Type:         audit.EventTransferFailed,
			Level:        audit.EventLevelWarn,
			UserID:       userID,
			ConnectionID: connectionID,
			Message:      messageTargetNotFound,
			Payload:      map[string]any{"target_device_id": req.TargetDeviceID},
		})
		return result
	}

	c.publisher.Publish(userID, targetConnID, Notification{Target: EventStopPlayback, Payload: req.TargetDeviceID})
	c.publisher.SendToOne(targetConnID, Notification{
		Target: EventStartPlaybackRemote,
		Payload: StartPlaybackRemotePayload{
			TrackID:      req.TrackID,
			PositionMs:   req.PositionMs,
			IsPlaying:    req.IsPlaying,
			SourceDevice: sourceLabel,
			TrackName:    req.TrackName,
			ImageURL:     req.ImageURL,
			ArtistName:   req.ArtistName,
		},
	})

	result := TransferResult{Success: true, Message: messageTransferred, TargetDevice: req.TargetDeviceID}
	c.publisher.SendToOne(connectionID, Notification{Target: EventTransferPlaybackResult, Payload: result})

	metrics.TransfersTotal.WithLabelValues("success").Inc()
	c.logger.Infow("Playback transferred",
		"user_id", userID,
		"connection_id", connectionID,
		"target_connection_id", targetConnID,
		"position_ms", req.PositionMs,
		"is_playing", req.IsPlaying,
	)
	c.record(audit.WriteEventInput{
		Type:         audit.EventTransfer,
		UserID:       userID,
		ConnectionID: connectionID,
		DeviceID:     targetID,
		Message:      messageTransferred,
		Payload:      map[string]any{"source_device": sourceLabel, "target_connection_id": targetConnID},
	})
	return result
}

// playbackClaim is what claimPlayback captures under the registry lock.
type playbackClaim struct {
	userID    string
	label     string
	deviceID  string
	sourceID  string
	trackID   string
	trackName string
	displaced int
}

// claimPlayback marks self as the playing session and clears every other session's
// claim. Must be called with the registry lock held.
func claimPlayback(now time.Time, self *entry, members []*entry) playbackClaim {
	self.session.LastPlaybackAt = now

	displaced := 0
	for _, e := range members {
		if e == self {
			continue
		}
		if !e.session.LastPlaybackAt.IsZero() {
			displaced++
		}
		e.session.LastPlaybackAt = time.Time{}
	}

	return playbackClaim{
		userID:    self.session.UserID,
		label:     self.session.Label(),
		deviceID:  self.session.DeviceID,
		sourceID:  self.session.TargetID(),
		trackID:   self.session.CurrentTrackID,
		trackName: self.session.CurrentTrackName,
		displaced: displaced,
	}
}

// announceClaim sends StopPlayback then PausePlayback to the claimant's other devices.
func (c *Coordinator) announceClaim(connectionID string, claim playbackClaim) {
	recipients := c.publisher.Publish(claim.userID, connectionID,
		Notification{Target: EventStopPlayback, Payload: claim.sourceID},
		Notification{
			Target: EventPausePlayback,
			Payload: PausePlaybackPayload{
				Reason:         reasonPlayingElsewhere,
				Device:         claim.label,
				DeviceName:     claim.label,
				TrackID:        claim.trackID,
				TrackName:      claim.trackName,
				SourceDeviceID: claim.sourceID,
			},
		},
	)

	c.logger.Infow("Playback started",
		"user_id", claim.userID,
		"connection_id", connectionID,
		"device", claim.label,
		"track_id", claim.trackID,
		"notified", recipients,
	)
}

func (c *Coordinator) rememberDevice(ctx context.Context, userID, deviceID, deviceName, deviceType string) {
	if c.devices == nil || deviceID == "" {
		return
	}
	if _, err := c.devices.Upsert(ctx, devices.UpsertInput{
		UserID:     userID,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		DeviceType: deviceType,
	}); err != nil {
		c.logger.Warnw("Failed to remember device",
			"user_id", userID,
			"device_id", deviceID,
			"error", err,
		)
	}
}

func (c *Coordinator) record(input audit.WriteEventInput) {
	if c.recorder == nil {
		return
	}
	c.recorder.Record(input)
}
