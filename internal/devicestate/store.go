package devicestate

import (
	"sync"

	"github.com/pscheid92/ledsync/internal/domain"
)

// Store guards the single DeviceState instance.
type Store struct {
	mu    sync.RWMutex
	state domain.DeviceState
}

// NewStore creates a store seeded with initial.
func NewStore(initial domain.DeviceState) *Store {
	return &Store{state: initial}
}

// Get returns a snapshot of the current state.
func (s *Store) Get() domain.DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ToggleLED flips LEDOn and returns the new value.
func (s *Store) ToggleLED() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LEDOn = !s.state.LEDOn
	return s.state.LEDOn
}

// SetBrightness stores v without range checks.
func (s *Store) SetBrightness(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Brightness = v
}

func (s *Store) SetPulse(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PulseRate = v
}

func (s *Store) SetServo(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ServoAngle = v
}
