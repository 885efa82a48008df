package domain

import (
	"context"
	"encoding/json"
)

// Gateway is the persistence boundary used by the HTTP surface: an
// append-only reading log plus one independent boolean light flag.
type Gateway interface {
	LightFlag(ctx context.Context) (bool, error)
	ToggleLightFlag(ctx context.Context) (bool, error)
	Readings(ctx context.Context) ([]json.RawMessage, error)
	AppendReading(ctx context.Context, reading json.RawMessage) error
	Ping(ctx context.Context) error
}

// StateReader exposes the current device state snapshot.
type StateReader interface {
	Get() DeviceState
}
