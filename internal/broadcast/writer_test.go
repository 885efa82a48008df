package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/ledsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientWriter_SendDeliversTextFrame(t *testing.T) {
	server, client := newTestConnPair(t)

	cw := NewClientWriter(server, clockwork.NewRealClock())
	t.Cleanup(cw.Close)

	require.NoError(t, cw.Send([]byte(`{"type":"pulse","value":3}`)))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.JSONEq(t, `{"type":"pulse","value":3}`, string(data))
}

func TestClientWriter_PingsOnInterval(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Now())
	server, client := newTestConnPair(t)

	pinged := make(chan struct{}, 1)
	client.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	cw := NewClientWriter(server, fakeClock)
	t.Cleanup(cw.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fakeClock.BlockUntilContext(ctx, 1))

	fakeClock.Advance(pingInterval)

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received after ping interval")
	}
	assert.True(t, cw.IsOpen())
}

func TestClientWriter_SendAfterClose(t *testing.T) {
	server, _ := newTestConnPair(t)

	cw := NewClientWriter(server, clockwork.NewRealClock())
	cw.Close()

	assert.False(t, cw.IsOpen())
	assert.ErrorIs(t, cw.Send([]byte("x")), domain.ErrConnectionClosed)
}

func TestClientWriter_SendBufferFull(t *testing.T) {
	// No writer goroutine drains this buffer.
	cw := &ClientWriter{sendChannel: make(chan []byte, 1)}
	cw.open.Store(true)

	require.NoError(t, cw.Send([]byte("first")))
	assert.ErrorIs(t, cw.Send([]byte("second")), domain.ErrSendBufferFull)
}

func TestClientWriter_WriteFailureMarksClosed(t *testing.T) {
	server, _ := newTestConnPair(t)

	cw := NewClientWriter(server, clockwork.NewRealClock())
	t.Cleanup(cw.Close)

	require.NoError(t, server.UnderlyingConn().Close())
	require.NoError(t, cw.Send([]byte("lost")))

	assert.Eventually(t, func() bool { return !cw.IsOpen() }, 2*time.Second, 5*time.Millisecond)
}

func TestClientWriter_CloseWithReason(t *testing.T) {
	server, client := newTestConnPair(t)

	cw := NewClientWriter(server, clockwork.NewRealClock())
	cw.CloseWithReason("Server shutting down")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "Server shutting down", closeErr.Text)
}

func TestClientWriter_ConcurrentClose(t *testing.T) {
	server, _ := newTestConnPair(t)
	cw := NewClientWriter(server, clockwork.NewRealClock())

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				cw.Close()
			} else {
				cw.CloseWithReason("bye")
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent close calls deadlocked")
	}
	assert.False(t, cw.IsOpen())
}

func TestRegistry_SendAllReportsFailures(t *testing.T) {
	r := NewRegistry()
	ok := newFakeConn()
	closed := newFakeConn()
	closed.Close()

	assert.True(t, r.Add(ok))
	assert.False(t, r.Add(ok))
	assert.True(t, r.Add(closed))

	d := r.SendAll([]byte("hello"))
	assert.Equal(t, 1, d.Delivered)
	require.Len(t, d.Failed, 1)
	assert.Same(t, closed, d.Failed[0].Conn)
	assert.ErrorIs(t, d.Failed[0].Err, domain.ErrConnectionClosed)

	assert.True(t, r.Remove(closed))
	assert.False(t, r.Remove(closed))
	assert.Equal(t, 1, r.Len())
}

func newTestConnPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}
