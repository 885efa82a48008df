package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ledsync/internal/domain"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 32
)

// ClientWriter adapts a gorilla connection to domain.Connection. All writes
// happen on its own goroutine, so Send never blocks the caller.
type ClientWriter struct {
	id          string
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	open        atomic.Bool
}

var _ domain.Connection = (*ClientWriter)(nil)

// NewClientWriter wraps connection and starts its writer goroutine.
// The pong handler it installs extends the read deadline, so the caller's
// read loop fails once the peer stops answering pings.
func NewClientWriter(connection *websocket.Conn, clock clockwork.Clock) *ClientWriter {
	cw := &ClientWriter{
		id:          uuid.NewString(),
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.open.Store(true)
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *ClientWriter) ID() string { return cw.id }

func (cw *ClientWriter) IsOpen() bool { return cw.open.Load() }

// Send queues data for delivery.
func (cw *ClientWriter) Send(data []byte) error {
	if !cw.IsOpen() {
		return domain.ErrConnectionClosed
	}
	select {
	case cw.sendChannel <- data:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

// Close stops the writer and closes the underlying connection. Safe to call repeatedly.
func (cw *ClientWriter) Close() {
	cw.stopOnce.Do(func() {
		cw.open.Store(false)
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// CloseWithReason sends a normal-closure frame carrying reason before closing.
func (cw *ClientWriter) CloseWithReason(reason string) {
	cw.stopOnce.Do(func() {
		cw.open.Store(false)
		close(cw.doneChannel)

		// The run goroutine must be gone before we write the close frame.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *ClientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.fail()
				return
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				cw.fail()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// fail marks the connection closed after a write error; closing the socket
// makes the reader observe the failure and unregister.
func (cw *ClientWriter) fail() {
	cw.open.Store(false)
	_ = cw.connection.Close()
}

func (cw *ClientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *ClientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *ClientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
