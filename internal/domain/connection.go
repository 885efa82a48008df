package domain

// Connection is one open client channel as seen by the broadcast core.
// Send must not block; implementations queue the frame and report a full
// queue or a closed channel as an error.
type Connection interface {
	ID() string
	Send(data []byte) error
	IsOpen() bool
	Close()
}
