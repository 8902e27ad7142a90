package hub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeEvent(t *testing.T) {
	data, err := encodeEvent("PlaybackAllowed", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"event","target":"PlaybackAllowed","arguments":[]}`, string(data))

	data, err = encodeEvent("StopPlayback", "device-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"event","target":"StopPlayback","arguments":["device-1"]}`, string(data))
}

func TestCompletionFrame_VoidResultIsNull(t *testing.T) {
	data, err := json.Marshal(completionFrame{Type: frameCompletion, InvocationID: "7"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"completion","invocationId":"7","result":null}`, string(data))
}

func TestDecodeFrame(t *testing.T) {
	frame, err := decodeFrame([]byte(`{"type":"invoke","invocationId":"1","target":"StartPlayback","arguments":["t1",null]}`))
	require.NoError(t, err)
	require.Equal(t, frameInvoke, frame.Type)
	require.Equal(t, "1", frame.InvocationID)
	require.Equal(t, "StartPlayback", frame.Target)
	require.Len(t, frame.Arguments, 2)

	_, err = decodeFrame([]byte(`not json`))
	require.Error(t, err)

	_, err = decodeFrame([]byte(`{"target":"StartPlayback"}`))
	require.Error(t, err)

	_, err = decodeFrame([]byte(`{"type":"invoke"}`))
	require.Error(t, err)

	frame, err = decodeFrame([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	require.Equal(t, framePing, frame.Type)
}

func decodeArgs(t *testing.T, raw string) arguments {
	t.Helper()
	var args []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &args))
	return arguments(args)
}

func TestArguments_OptionalAndNull(t *testing.T) {
	args := decodeArgs(t, `["a", null]`)

	value, err := args.optionalString(0, "first")
	require.NoError(t, err)
	require.Equal(t, "a", value)

	value, err = args.optionalString(1, "second")
	require.NoError(t, err)
	require.Empty(t, value)

	value, err = args.optionalString(5, "missing")
	require.NoError(t, err)
	require.Empty(t, value)

	ptr, err := args.optionalStringPtr(1, "second")
	require.NoError(t, err)
	require.Nil(t, ptr)

	ptr, err = args.optionalStringPtr(0, "first")
	require.NoError(t, err)
	require.NotNil(t, ptr)
	require.Equal(t, "a", *ptr)
}

func TestArguments_Required(t *testing.T) {
	args := decodeArgs(t, `[null]`)

	_, err := args.requiredString(0, "state")
	require.Error(t, err)
	require.Contains(t, err.Error(), "state")

	_, err = arguments(nil).requiredString(0, "state")
	require.Error(t, err)
}

func TestArguments_WrongType(t *testing.T) {
	args := decodeArgs(t, `[42, "yes", "fast"]`)

	_, err := args.optionalString(0, "trackId")
	require.Error(t, err)

	_, err = args.boolean(1, "isPlaying")
	require.Error(t, err)

	_, err = args.optionalFloatPtr(2, "position")
	require.Error(t, err)
}

func TestArguments_Millis(t *testing.T) {
	args := decodeArgs(t, `[1500, 1234.6, -1, null]`)

	ms, err := args.millis(0, "positionMs")
	require.NoError(t, err)
	require.Equal(t, int64(1500), ms)

	ms, err = args.millis(1, "positionMs")
	require.NoError(t, err)
	require.Equal(t, int64(1235), ms)

	_, err = args.millis(2, "positionMs")
	require.Error(t, err)

	ms, err = args.millis(3, "positionMs")
	require.NoError(t, err)
	require.Zero(t, ms)
}

func TestArguments_MillisRejectsOverflow(t *testing.T) {
	args := decodeArgs(t, `[1e19, 9.3e18, 1e300, 9007199254740992]`)

	for i := 0; i < 3; i++ {
		_, err := args.millis(i, "positionMs")
		require.Error(t, err, "argument %d", i)
	}

	ms, err := args.millis(3, "positionMs")
	require.NoError(t, err)
	require.Equal(t, int64(9007199254740992), ms)
}

func TestArguments_Boolean(t *testing.T) {
	args := decodeArgs(t, `[true]`)

	value, err := args.boolean(0, "isPlaying")
	require.NoError(t, err)
	require.True(t, value)

	value, err = args.boolean(1, "isPlaying")
	require.NoError(t, err)
	require.False(t, value)
}
