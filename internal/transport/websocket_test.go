package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu         sync.Mutex
	opens      int
	chunks     [][]byte
	onOpen     func(n int) error
	onChunkErr error
}

func (h *recordingHandler) OnOpen() error {
	h.mu.Lock()
	h.opens++
	n := h.opens
	h.mu.Unlock()
	if h.onOpen != nil {
		return h.onOpen(n)
	}
	return nil
}

func (h *recordingHandler) OnChunk(chunk []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.onChunkErr != nil {
		return h.onChunkErr
	}
	h.chunks = append(h.chunks, chunk)
	return nil
}

func (h *recordingHandler) snapshot() (int, [][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens, append([][]byte(nil), h.chunks...)
}

// feedServer sends frames on every connection and then closes it.
func feedServer(t *testing.T, frames func(conn *websocket.Conn)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connections.Add(1)
		frames(conn)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	}))
	t.Cleanup(srv.Close)
	return srv, &connections
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_DeliversBinaryFrames(t *testing.T) {
	srv, _ := feedServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("ftyp"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("moov"))
	})

	h := &recordingHandler{}
	client := NewClient(Config{URL: wsURL(srv)}, quietLogger())

	err := client.Run(context.Background(), h)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrHandler))
	assert.ErrorIs(t, err, ErrFeedClosed)

	opens, chunks := h.snapshot()
	assert.Equal(t, 1, opens)
	assert.Equal(t, [][]byte{[]byte("ftyp"), []byte("moov")}, chunks)

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.Connects)
	assert.Equal(t, uint64(2), stats.Messages)
	assert.Equal(t, uint64(8), stats.Bytes)
	assert.Equal(t, uint64(1), stats.IgnoredFrames)
}

func TestClient_Reconnects(t *testing.T) {
	srv, connections := feedServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &recordingHandler{onOpen: func(n int) error {
		if n == 3 {
			cancel()
		}
		return nil
	}}
	client := NewClient(Config{
		URL:               wsURL(srv),
		Reconnect:         true,
		ReconnectDelay:    5 * time.Millisecond,
		MaxReconnectDelay: 20 * time.Millisecond,
	}, quietLogger())

	err := client.Run(ctx, h)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, connections.Load(), int32(3))
	assert.GreaterOrEqual(t, client.Stats().Connects, uint64(3))
}

func TestClient_HandlerErrorStopsRun(t *testing.T) {
	srv, connections := feedServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
	})

	rejected := errors.New("streamer closed")
	h := &recordingHandler{onChunkErr: rejected}
	client := NewClient(Config{URL: wsURL(srv), Reconnect: true, ReconnectDelay: time.Millisecond}, quietLogger())

	err := client.Run(context.Background(), h)
	assert.ErrorIs(t, err, ErrHandler)
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, int32(1), connections.Load())
}

func TestClient_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := NewClient(Config{URL: wsURL(srv), HandshakeTimeout: time.Second}, quietLogger())
	err := client.Run(context.Background(), &recordingHandler{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dialing feed")
	assert.Equal(t, uint64(0), client.Stats().Connects)
}

func TestClient_CancelWhileConnected(t *testing.T) {
	release := make(chan struct{})
	srv, _ := feedServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{9})
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	h := &recordingHandler{}
	done := make(chan error, 1)
	client := NewClient(Config{URL: wsURL(srv), Reconnect: true}, quietLogger())
	go func() { done <- client.Run(ctx, h) }()

	require.Eventually(t, func() bool {
		_, chunks := h.snapshot()
		return len(chunks) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
