package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Frame types.
const (
	frameInvoke     = "invoke"
	frameEvent      = "event"
	frameCompletion = "completion"
	framePing       = "ping"
)

// inboundFrame is a client-to-server message. Arguments are positional.
type inboundFrame struct {
	Type         string            `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target"`
	Arguments    []json.RawMessage `json:"arguments"`
}

// eventFrame carries one notification. Arguments holds zero or one payload.
type eventFrame struct {
	Type      string `json:"type"`
	Target    string `json:"target"`
	Arguments []any  `json:"arguments"`
}

// completionFrame answers an invocation that carried an invocationId.
type completionFrame struct {
	Type         string `json:"type"`
	InvocationID string `json:"invocationId"`
	Result       any    `json:"result"`
	Error        string `json:"error,omitempty"`
}

type pingFrame struct {
	Type string `json:"type"`
}

func encodeEvent(target string, payload any) ([]byte, error) {
	args := []any{}
	if payload != nil {
		args = append(args, payload)
	}
	return json.Marshal(eventFrame{Type: frameEvent, Target: target, Arguments: args})
}

func decodeFrame(data []byte) (inboundFrame, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return inboundFrame{}, fmt.Errorf("malformed frame: %w", err)
	}
	if frame.Type == "" {
		return inboundFrame{}, fmt.Errorf("frame type is required")
	}
	if frame.Type == frameInvoke && frame.Target == "" {
		return inboundFrame{}, fmt.Errorf("invoke frame requires a target")
	}
	return frame, nil
}

// arguments reads positional invocation arguments. Missing trailing arguments and
// JSON null read as absent.
type arguments []json.RawMessage

var jsonNull = []byte("null")

func (a arguments) present(i int) bool {
	return i < len(a) && len(a[i]) > 0 && !bytes.Equal(bytes.TrimSpace(a[i]), jsonNull)
}

func (a arguments) decode(i int, name string, dest any) error {
	if err := json.Unmarshal(a[i], dest); err != nil {
		return fmt.Errorf("argument %d (%s) has the wrong type", i, name)
	}
	return nil
}

func (a arguments) requiredString(i int, name string) (string, error) {
	if !a.present(i) {
		return "", fmt.Errorf("argument %d (%s) is required", i, name)
	}
	var value string
	if err := a.decode(i, name, &value); err != nil {
		return "", err
	}
	return value, nil
}

func (a arguments) optionalString(i int, name string) (string, error) {
	if !a.present(i) {
		return "", nil
	}
	var value string
	if err := a.decode(i, name, &value); err != nil {
		return "", err
	}
	return value, nil
}

func (a arguments) optionalStringPtr(i int, name string) (*string, error) {
	if !a.present(i) {
		return nil, nil
	}
	value, err := a.optionalString(i, name)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (a arguments) optionalFloatPtr(i int, name string) (*float64, error) {
	if !a.present(i) {
		return nil, nil
	}
	var value float64
	if err := a.decode(i, name, &value); err != nil {
		return nil, err
	}
	return &value, nil
}

// millis accepts integral or fractional numbers and rounds to whole milliseconds.
func (a arguments) millis(i int, name string) (int64, error) {
	if !a.present(i) {
		return 0, nil
	}
	var value float64
	if err := a.decode(i, name, &value); err != nil {
		return 0, err
	}
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("argument %d (%s) must be a non-negative number", i, name)
	}
	rounded := math.Round(value)
	if rounded >= math.MaxInt64 {
		return 0, fmt.Errorf("argument %d (%s) is out of range", i, name)
	}
	return int64(rounded), nil
}

func (a arguments) boolean(i int, name string) (bool, error) {
	if !a.present(i) {
		return false, nil
	}
	var value bool
	if err := a.decode(i, name, &value); err != nil {
		return false, err
	}
	return value, nil
}
