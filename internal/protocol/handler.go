package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/pscheid92/ledsync/internal/domain"
)

var (
	ErrMalformed    = fmt.Errorf("%w: malformed json", domain.ErrProtocol)
	ErrUnknownType  = fmt.Errorf("%w: unknown message type", domain.ErrProtocol)
	ErrMissingValue = fmt.Errorf("%w: missing value", domain.ErrProtocol)
	ErrInvalidValue = fmt.Errorf("%w: value is not an integer", domain.ErrProtocol)
)

// Mutator is the subset of the State Store the protocol writes to.
type Mutator interface {
	ToggleLED() bool
	SetBrightness(v int)
	SetPulse(v int)
	SetServo(v int)
}

// Parse decodes and validates one inbound frame.
func Parse(data []byte) (Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	rawType, ok := raw["type"]
	if !ok {
		return Inbound{}, fmt.Errorf("%w: type missing", ErrUnknownType)
	}
	var typeName string
	if err := json.Unmarshal(rawType, &typeName); err != nil {
		return Inbound{}, fmt.Errorf("%w: type: %w", ErrMalformed, err)
	}

	kind := domain.MessageKind(typeName)
	switch kind {
	case domain.KindButtonPress:
		return Inbound{Kind: kind}, nil
	case domain.KindBrightness, domain.KindPulse, domain.KindServo:
		rawValue, ok := raw["value"]
		if !ok || string(rawValue) == "null" {
			return Inbound{}, fmt.Errorf("%w: %s", ErrMissingValue, kind)
		}
		v, err := strconv.Atoi(string(rawValue))
		if err != nil {
			return Inbound{}, fmt.Errorf("%w: %s=%s", ErrInvalidValue, kind, rawValue)
		}
		return Inbound{Kind: kind, Value: &v}, nil
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
}

// Apply performs the single-field mutation for msg and returns the delta to broadcast.
func Apply(store Mutator, msg Inbound) (domain.Delta, error) {
	if msg.Kind == domain.KindButtonPress {
		return domain.Delta{Type: domain.FrameLEDState, Value: store.ToggleLED()}, nil
	}
	if msg.Value == nil {
		return domain.Delta{}, fmt.Errorf("%w: %s", ErrMissingValue, msg.Kind)
	}

	v := *msg.Value
	switch msg.Kind {
	case domain.KindBrightness:
		store.SetBrightness(v)
	case domain.KindPulse:
		store.SetPulse(v)
	case domain.KindServo:
		store.SetServo(v)
	default:
		return domain.Delta{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Kind)
	}
	return domain.Delta{Type: string(msg.Kind), Value: v}, nil
}

// Handle parses data and applies it to store.
func Handle(store Mutator, data []byte) (domain.Delta, error) {
	msg, err := Parse(data)
	if err != nil {
		return domain.Delta{}, err
	}
	return Apply(store, msg)
}

// Reason maps a protocol error to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, ErrMissingValue):
		return "missing_value"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	default:
		return "other"
	}
}
