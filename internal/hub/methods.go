package hub

import (
	"context"

	"github.com/strefethen/playback-hub-go/internal/apperrors"
	"github.com/strefethen/playback-hub-go/internal/playback"
)

// Client-to-server method names.
const (
	MethodRegisterDevice        = "RegisterDevice"
	MethodStartPlayback         = "StartPlayback"
	MethodNotifyPlaybackStarted = "NotifyPlaybackStarted"
	MethodRequestPlayback       = "RequestPlayback"
	MethodTakeoverPlayback      = "TakeoverPlayback"
	MethodUpdatePlaybackState   = "UpdatePlaybackState"
	MethodGetConnectedDevices   = "GetConnectedDevices"
	MethodSyncPlaybackPosition  = "SyncPlaybackPosition"
	MethodTransferPlayback      = "TransferPlayback"
)

// method runs one invocation for connectionID. The returned value becomes the
// completion result; nil means a void method.
type method func(ctx context.Context, c *playback.Coordinator, connectionID string, args arguments) (any, error)

func invalidArgument(err error) error {
	return apperrors.NewValidationError(err.Error(), nil)
}

var methods = map[string]method{
	MethodRegisterDevice: func(ctx context.Context, c *playback.Coordinator, connID string, args arguments) (any, error) {
		deviceID, err := args.requiredString(0, "deviceId")
		if err != nil {
			return nil, invalidArgument(err)
		}
		deviceName, err := args.optionalString(1, "deviceName")
		if err != nil {
			return nil, invalidArgument(err)
		}
		deviceType, err := args.optionalString(2, "deviceType")
		if err != nil {
			return nil, invalidArgument(err)
		}
		c.RegisterDevice(ctx, connID, deviceID, deviceName, deviceType)
		return nil, nil
	},

	MethodStartPlayback: func(ctx context.Context, c *playback.Coordinator, connID string, args arguments) (any, error) {
		trackID, err := args.optionalString(0, "trackId")
		if err != nil {
			return nil, invalidArgument(err)
		}
		trackName, err := args.optionalString(1, "trackName")
		if err != nil {
			return nil, invalidArgument(err)
		}
		c.StartPlayback(ctx, connID, trackID, trackName)
		return nil, nil
	},

	MethodNotifyPlaybackStarted: func(ctx context.Context, c *playback.Coordinator, connID string, args arguments) (any, error) {
		deviceID, err := args.optionalString(0, "deviceId")
		if err != nil {
			return nil, invalidArgument(err)
		}
		deviceName, err := args.optionalString(1, "deviceName")
		if err != nil {
			return nil, invalidArgument(err)
		}
		c.NotifyPlaybackStarted(ctx, connID, deviceID, deviceName)
		return nil, nil
	},

	MethodRequestPlayback: func(ctx context.Context, c *playback.Coordinator, connID string, _ arguments) (any, error) {
		c.RequestPlayback(ctx, connID)
		return nil, nil
	},

	MethodTakeoverPlayback: func(ctx context.Context, c *playback.Coordinator, connID string, _ arguments) (any, error) {
		c.TakeoverPlayback(ctx, connID)
		return nil, nil
	},

	MethodUpdatePlaybackState: func(ctx context.Context, c *playback.Coordinator, connID string, args arguments) (any, error) {
		state, err := args.requiredString(0, "state")
		if err != nil {
			return nil, invalidArgument(err)
		}
		trackID, err := args.optionalStringPtr(1, "trackId")
		if err != nil {
			return nil, invalidArgument(err)
		}
		position, err := args.optionalFloatPtr(2, "position")
		if err != nil {
			return nil, invalidArgument(err)
		}
		c.UpdatePlaybackState(ctx, connID, state, trackID, position)
		return nil, nil
	},

	MethodGetConnectedDevices: func(ctx context.Context, c *playback.Coordinator, connID string, _ arguments) (any, error) {
		return c.GetConnectedDevices(ctx, connID), nil
	},

	MethodSyncPlaybackPosition: func(ctx context.Context, c *playback.Coordinator, connID string, args arguments) (any, error) {
		trackID, err := args.optionalString(0, "trackId")
		if err != nil {
			return nil, invalidArgument(err)
		}
		positionMs, err := args.millis(1, "positionMs")
		if err != nil {
			return nil, invalidArgument(err)
		}
		isPlaying, err := args.boolean(2, "isPlaying")
		if err != nil {
			return nil, invalidArgument(err)
		}
		c.SyncPlaybackPosition(ctx, connID, trackID, positionMs, isPlaying)
		return nil, nil
	},

	MethodTransferPlayback: func(ctx context.Context, c *playback.Coordinator, connID string, args arguments) (any, error) {
		var req playback.TransferRequest
		var err error
		if req.TargetDeviceID, err = args.requiredString(0, "targetDeviceId"); err != nil {
			return nil, invalidArgument(err)
		}
		if req.TrackID, err = args.optionalString(1, "trackId"); err != nil {
			return nil, invalidArgument(err)
		}
		if req.PositionMs, err = args.millis(2, "positionMs"); err != nil {
			return nil, invalidArgument(err)
		}
		if req.IsPlaying, err = args.boolean(3, "isPlaying"); err != nil {
			return nil, invalidArgument(err)
		}
		if req.TrackName, err = args.optionalString(4, "trackName"); err != nil {
			return nil, invalidArgument(err)
		}
		if req.ImageURL, err = args.optionalString(5, "imageUrl"); err != nil {
			return nil, invalidArgument(err)
		}
		if req.ArtistName, err = args.optionalString(6, "artistName"); err != nil {
			return nil, invalidArgument(err)
		}
		return c.TransferPlayback(ctx, connID, req), nil
	},
}
