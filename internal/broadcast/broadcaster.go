package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ledsync/internal/adapter/metrics"
	"github.com/pscheid92/ledsync/internal/domain"
	"github.com/pscheid92/ledsync/internal/protocol"
)

const (
	commandTimeout       = 5 * time.Second
	stopTimeout          = 10 * time.Second
	commandChannelSize   = 256
	commandDepthWarnMark = 200
)

// StateStore is the device state the broadcaster mutates and snapshots.
type StateStore interface {
	protocol.Mutator
	Get() domain.DeviceState
}

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type connectCmd struct {
	baseBroadcasterCmd
	connection   domain.Connection
	errorChannel chan error
}

type disconnectCmd struct {
	baseBroadcasterCmd
	connection domain.Connection
}

type messageCmd struct {
	baseBroadcasterCmd
	connection domain.Connection
	data       []byte
}

type clientCountCmd struct {
	baseBroadcasterCmd
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// gracefulCloser is implemented by connections that can say goodbye with a close frame.
type gracefulCloser interface {
	CloseWithReason(reason string)
}

// Broadcaster owns the connection registry and applies inbound messages to the device state.
type Broadcaster struct {
	cmdCh          chan broadcasterCmd
	clock          clockwork.Clock
	registry       *Registry
	store          StateStore
	observers      []domain.DeltaObserver
	wsMetrics      *metrics.WebSocketMetrics
	maxConnections int
	done           chan struct{}
	stopOnce       sync.Once
	stopTimeout    time.Duration
}

// NewBroadcaster creates a broadcaster and starts its goroutine.
// maxConnections <= 0 disables the connection cap. wsMetrics may be nil.
// observers are notified of every delta after it has been fanned out.
func NewBroadcaster(store StateStore, clock clockwork.Clock, maxConnections int, wsMetrics *metrics.WebSocketMetrics, observers ...domain.DeltaObserver) *Broadcaster {
	b := &Broadcaster{
		cmdCh:          make(chan broadcasterCmd, commandChannelSize),
		clock:          clock,
		registry:       NewRegistry(),
		store:          store,
		observers:      observers,
		wsMetrics:      wsMetrics,
		maxConnections: maxConnections,
		done:           make(chan struct{}),
		stopTimeout:    stopTimeout,
	}
	go b.run()
	return b
}

// Connect registers conn and queues the initialState snapshot for it.
// Returns domain.ErrTooManyConnections when the registry is full; the caller owns closing conn then.
func (b *Broadcaster) Connect(conn domain.Connection) error {
	errCh := make(chan error, 1)
	if !b.enqueue(connectCmd{connection: conn, errorChannel: errCh}) {
		return errors.New("broadcaster stopped")
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("connect command timed out after %v", commandTimeout)
	}
}

// Disconnect removes conn from the registry. No broadcast is sent.
func (b *Broadcaster) Disconnect(conn domain.Connection) {
	b.enqueue(disconnectCmd{connection: conn})
}

// HandleMessage processes one inbound frame from conn. Frames from the same
// caller are handled in the order they were submitted.
func (b *Broadcaster) HandleMessage(conn domain.Connection, data []byte) {
	b.enqueue(messageCmd{connection: conn, data: data})
}

// ClientCount returns the number of registered connections, or -1 on timeout.
func (b *Broadcaster) ClientCount() int {
	replyCh := make(chan int, 1)
	if !b.enqueue(clientCountCmd{replyChannel: replyCh}) {
		return 0
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every connection and waits for the broadcaster goroutine to exit.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.enqueue(stopCmd{})

		timeout := b.clock.NewTimer(b.stopTimeout)
		defer timeout.Stop()

		select {
		case <-b.done:
			slog.Info("Broadcaster stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout)
		}
	})
}

// enqueue hands cmd to the actor. Returns false once the actor has exited.
func (b *Broadcaster) enqueue(cmd broadcasterCmd) bool {
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.cmdCh <- cmd:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			b.closeAll("broadcaster panic")
		}
	}()

	depthTicker := b.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			if depth := len(b.cmdCh); depth > commandDepthWarnMark {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(b.cmdCh))
			}

		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case connectCmd:
				b.handleConnect(c)
			case disconnectCmd:
				b.handleDisconnect(c)
			case messageCmd:
				b.handleMessage(c)
			case clientCountCmd:
				c.replyChannel <- b.registry.Len()
			case stopCmd:
				b.handleStop()
				return
			default:
				slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (b *Broadcaster) handleConnect(c connectCmd) {
	if b.registry.Contains(c.connection) {
		c.errorChannel <- nil
		return
	}

	if b.maxConnections > 0 && b.registry.Len() >= b.maxConnections {
		slog.Warn("Rejecting connection: registry full", "connection_id", c.connection.ID(), "max_connections", b.maxConnections)
		if b.wsMetrics != nil {
			b.wsMetrics.RejectedConnections.Inc()
		}
		c.errorChannel <- domain.ErrTooManyConnections
		return
	}

	b.registry.Add(c.connection)
	if b.wsMetrics != nil {
		b.wsMetrics.ActiveConnections.Set(float64(b.registry.Len()))
	}

	// The snapshot is queued before this connection can see any delta.
	snapshot, err := protocol.Snapshot(b.store.Get())
	if err != nil {
		slog.Error("Failed to encode initial state", "connection_id", c.connection.ID(), "error", err)
	} else if err := c.connection.Send(snapshot); err != nil {
		slog.Warn("Failed to send initial state", "connection_id", c.connection.ID(), "error", err)
	}

	slog.Info("Client connected", "connection_id", c.connection.ID(), "total_clients", b.registry.Len())
	c.errorChannel <- nil
}

func (b *Broadcaster) handleDisconnect(c disconnectCmd) {
	if !b.registry.Remove(c.connection) {
		return
	}
	if b.wsMetrics != nil {
		b.wsMetrics.ActiveConnections.Set(float64(b.registry.Len()))
	}
	slog.Info("Client disconnected", "connection_id", c.connection.ID(), "remaining_clients", b.registry.Len())
}

func (b *Broadcaster) handleMessage(c messageCmd) {
	if b.wsMetrics != nil {
		b.wsMetrics.MessagesReceived.Inc()
	}

	delta, err := protocol.Handle(b.store, c.data)
	if err != nil {
		reason := protocol.Reason(err)
		slog.Warn("Discarding inbound message", "connection_id", c.connection.ID(), "reason", reason, "error", err)
		if b.wsMetrics != nil {
			b.wsMetrics.ProtocolErrors.WithLabelValues(reason).Inc()
		}
		return
	}
	slog.Debug("Applied message", "connection_id", c.connection.ID(), "type", delta.Type, "value", delta.Value)

	b.broadcast(delta)
}

func (b *Broadcaster) broadcast(delta domain.Delta) {
	data, err := protocol.Encode(delta)
	if err != nil {
		slog.Error("Failed to encode delta", "type", delta.Type, "error", err)
		return
	}

	delivery := b.registry.SendAll(data)
	for _, f := range delivery.Failed {
		slog.Warn("Broadcast send failed", "connection_id", f.Conn.ID(), "error", f.Err)
		if b.wsMetrics != nil {
			b.wsMetrics.SendFailures.Inc()
		}
		// Closing makes the connection's read loop report the disconnect.
		go f.Conn.Close()
	}
	if b.wsMetrics != nil {
		b.wsMetrics.DeltasBroadcast.WithLabelValues(delta.Type).Inc()
	}

	for _, o := range b.observers {
		o.ObserveDelta(delta)
	}
}

func (b *Broadcaster) handleStop() {
	total := b.registry.Len()
	slog.Info("Broadcaster shutting down", "total_clients", total)
	b.closeAll("Server shutting down")
	slog.Info("Broadcaster shutdown complete", "disconnected_clients", total)
}

// closeAll closes every connection with the given reason and empties the registry.
func (b *Broadcaster) closeAll(reason string) {
	var wg sync.WaitGroup
	b.registry.ForEach(func(conn domain.Connection) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gc, ok := conn.(gracefulCloser); ok {
				gc.CloseWithReason(reason)
				return
			}
			conn.Close()
		}()
	})
	wg.Wait()

	b.registry = NewRegistry()
	if b.wsMetrics != nil {
		b.wsMetrics.ActiveConnections.Set(0)
	}
}
