package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventcollab/videochat/internal/crypto"
	"github.com/eventcollab/videochat/internal/health"
	"github.com/eventcollab/videochat/internal/ratelimit"
	"github.com/eventcollab/videochat/internal/registry"
	"github.com/eventcollab/videochat/internal/signaling"
	"github.com/eventcollab/videochat/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	svc, err := store.NewService(mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	reg := registry.New()
	codec, err := crypto.NewCodec(make([]byte, 32))
	require.NoError(t, err)
	router := signaling.New(reg, svc, codec)

	rl, err := ratelimit.NewRateLimiter(nil, "100-S", "100-S")
	require.NoError(t, err)

	healthHandler := health.NewHandler(nil, nil)

	return NewServer(reg, router, rl, healthHandler), reg
}

func TestHandleRoot_ReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleRoomEcho_ReturnsQueryParams(t *testing.T) {
	srv, reg := newTestServer(t)
	reg.Register("R1", "alice", dummyConn{})

	req := httptest.NewRequest(http.MethodGet, "/room/?room_id=R1&user_id=alice", nil)
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"room_id":"R1"`))
}

func TestHealthRoutes_ReturnOK(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		srv.Engine().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestWebSocket_ChatRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Engine())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/R1/alice"

	aliceConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer aliceConn.Close()

	bobURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/R1/bob"
	bobConn, _, err := websocket.DefaultDialer.Dial(bobURL, nil)
	require.NoError(t, err)
	defer bobConn.Close()

	require.NoError(t, aliceConn.WriteMessage(websocket.TextMessage, []byte(`{"message":"hello"}`)))

	_ = bobConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := bobConn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "alice", frame["user_id"])
	assert.Equal(t, "hello", frame["message"])
}

type dummyConn struct{}

func (dummyConn) Send(data []byte) error { return nil }
