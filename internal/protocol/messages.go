package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pscheid92/ledsync/internal/domain"
)

// Inbound is a validated client message. Value is nil for buttonPress.
type Inbound struct {
	Kind  domain.MessageKind
	Value *int
}

// rawInbound holds the frame's members by their exact key. Struct decoding is
// avoided because encoding/json matches field names case-insensitively.
type rawInbound map[string]json.RawMessage

type snapshotFrame struct {
	Type  string             `json:"type"`
	State domain.DeviceState `json:"state"`
}

// Snapshot encodes the full-state frame sent once to a newly connected client.
func Snapshot(state domain.DeviceState) ([]byte, error) {
	data, err := json.Marshal(snapshotFrame{Type: domain.FrameInitialState, State: state})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Encode encodes a delta frame.
func Encode(delta domain.Delta) ([]byte, error) {
	data, err := json.Marshal(delta)
	if err != nil {
		return nil, fmt.Errorf("marshal delta: %w", err)
	}
	return data, nil
}
