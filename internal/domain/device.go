package domain

// DeviceState is the single shared record broadcast to every connected viewer.
type DeviceState struct {
	LEDOn      bool `json:"ledOn"`
	Brightness int  `json:"brightness"`
	PulseRate  int  `json:"pulseRate"`
	ServoAngle int  `json:"servoAngle"`
}

// DefaultDeviceState is the state a freshly started server exposes.
func DefaultDeviceState() DeviceState {
	return DeviceState{
		LEDOn:      false,
		Brightness: 128,
		PulseRate:  50,
		ServoAngle: 90,
	}
}

// MessageKind identifies an inbound control message.
type MessageKind string

const (
	KindButtonPress MessageKind = "buttonPress"
	KindBrightness  MessageKind = "brightness"
	KindPulse       MessageKind = "pulse"
	KindServo       MessageKind = "servo"
)

// Outbound frame types.
const (
	FrameInitialState = "initialState"
	FrameLEDState     = "ledState"
)

// Delta is a single-field state change as it is broadcast to all connections.
// Value is a bool for ledState and an int for every other type.
type Delta struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// DeltaObserver is notified after a delta has been applied and fanned out.
type DeltaObserver interface {
	ObserveDelta(delta Delta)
}
