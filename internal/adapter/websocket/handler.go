package websocket

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ledsync/internal/broadcast"
	"github.com/pscheid92/ledsync/internal/domain"
	"github.com/pscheid92/ledsync/internal/platform/correlation"
)

// maxMessageSize bounds a single inbound frame. Control messages are tiny;
// larger frames are discarded and the connection stays open.
const maxMessageSize = 4096

// Hub is the broadcast core as seen by the connection handler.
type Hub interface {
	Connect(conn domain.Connection) error
	Disconnect(conn domain.Connection)
	HandleMessage(conn domain.Connection, data []byte)
}

// Handler upgrades HTTP requests to WebSocket connections and pumps their
// inbound frames into the hub until the peer goes away.
type Handler struct {
	upgrader ws.Upgrader
	hub      Hub
	clock    clockwork.Clock
}

func NewHandler(hub Hub, checkOrigin func(r *http.Request) bool, clock clockwork.Clock) *Handler {
	return &Handler{
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		hub:   hub,
		clock: clock,
	}
}

// ServeHTTP blocks for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		slog.WarnContext(r.Context(), "WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := broadcast.NewClientWriter(conn, h.clock)
	ctx := correlation.WithConnectionID(r.Context(), client.ID())

	if err := h.hub.Connect(client); err != nil {
		reason := "Server error"
		if errors.Is(err, domain.ErrTooManyConnections) {
			reason = "Too many connections"
		}
		slog.WarnContext(ctx, "WebSocket connection refused", "error", err)
		client.CloseWithReason(reason)
		return
	}
	slog.DebugContext(ctx, "WebSocket connection opened", "remote_addr", r.RemoteAddr)

	defer client.Close()
	defer h.hub.Disconnect(client)

	for {
		data, err := readFrame(conn)
		if errors.Is(err, errFrameTooLarge) {
			slog.WarnContext(ctx, "Discarding oversized frame", "limit", maxMessageSize)
			continue
		}
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway, ws.CloseNoStatusReceived) {
				slog.DebugContext(ctx, "WebSocket closed unexpectedly", "error", err)
			}
			return
		}
		h.hub.HandleMessage(client, data)
	}
}

var errFrameTooLarge = errors.New("frame exceeds size limit")

// readFrame reads the next data frame, buffering at most maxMessageSize bytes.
// The remainder of an oversized frame is drained so the next frame can be read.
func readFrame(conn *ws.Conn) ([]byte, error) {
	_, r, err := conn.NextReader()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, maxMessageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxMessageSize {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
		return nil, errFrameTooLarge
	}
	return data, nil
}
