package transport

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventcollab/videochat/internal/crypto"
	"github.com/eventcollab/videochat/internal/ratelimit"
	"github.com/eventcollab/videochat/internal/registry"
	"github.com/eventcollab/videochat/internal/signaling"
	"github.com/eventcollab/videochat/internal/store"
)

// fakeConn is an in-memory wsConnection: inbound feeds ReadMessage,
// outbound captures every WriteMessage call. It also satisfies
// registry.Connection, so it can stand in for another room member; frames
// sent to it that way land in outbound too.
type fakeConn struct {
	mu       sync.Mutex
	inbound  [][]byte
	readIdx  int
	outbound [][]byte
	closed   bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readIdx >= len(f.inbound) {
		return 0, nil, errors.New("fakeConn: no more inbound messages")
	}
	msg := f.inbound[f.readIdx]
	f.readIdx++
	return websocket.TextMessage, msg, nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.TextMessage {
		f.outbound = append(f.outbound, data)
	}
	return nil
}

func (f *fakeConn) Send(data []byte) error {
	return f.WriteMessage(websocket.TextMessage, data)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) outboundSnapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.outbound))
	copy(out, f.outbound)
	return out
}

func newTestRouter(t *testing.T) (*signaling.Router, *registry.Registry) {
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
	return signaling.New(reg, svc, codec), reg
}

func TestClient_Serve_RegistersAndUnregistersOnClose(t *testing.T) {
	router, reg := newTestRouter(t)
	conn := &fakeConn{inbound: [][]byte{[]byte(`{"message":"hi"}`)}}

	client := NewClient(conn, "R1", "alice", reg, router, nil)

	done := make(chan struct{})
	go func() {
		client.Serve(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after read error")
	}

	assert.Empty(t, reg.TargetsFor("R1", "alice"))
	assert.True(t, conn.closed)
}

func TestClient_Serve_DropsChatSendsOverRateLimit(t *testing.T) {
	router, reg := newTestRouter(t)
	rate, err := ratelimit.NewRateLimiter(nil, "100-M", "1-M")
	require.NoError(t, err)

	bob := &fakeConn{}
	reg.Register("R1", "bob", bob)

	conn := &fakeConn{inbound: [][]byte{
		[]byte(`{"message":"first"}`),
		[]byte(`{"message":"second"}`),
	}}
	client := NewClient(conn, "R1", "alice", reg, router, rate)

	done := make(chan struct{})
	go func() {
		client.Serve(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after exhausting inbound messages")
	}

	// Only the first chat send should have reached bob as a "first"/"second"
	// broadcast — the second is throttled before it ever reaches the router.
	var firstSeen, secondSeen int
	for _, frame := range bob.outboundSnapshot() {
		if strings.Contains(string(frame), "first") {
			firstSeen++
		}
		if strings.Contains(string(frame), "second") {
			secondSeen++
		}
	}
	assert.Equal(t, 1, firstSeen)
	assert.Equal(t, 0, secondSeen)
}

// TestClient_Serve_HistoryPrecedesConcurrentLiveBroadcast exercises the
// spec's ordering invariant end to end against a real (miniredis-backed)
// store.Service: a joiner must see the pre-existing history message before
// any live chat sent by another connection, even when that live chat is
// fired as concurrently as possible with the join.
func TestClient_Serve_HistoryPrecedesConcurrentLiveBroadcast(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	svc, err := store.NewService(mr.Addr(), "")
	require.NoError(t, err)
	defer svc.Close()

	codec, err := crypto.NewCodec(make([]byte, 32))
	require.NoError(t, err)

	ciphertext, err := codec.Encrypt("history message")
	require.NoError(t, err)
	require.NoError(t, svc.InsertMessage(context.Background(), "R1", "bob", ciphertext))

	reg := registry.New()
	router := signaling.New(reg, svc, codec)

	// carol is already in the room and will race to send a live chat the
	// moment alice's connection is visible in the registry.
	carol := &fakeConn{}
	reg.Register("R1", "carol", carol)

	joiner := &fakeConn{}
	client := NewClient(joiner, "R1", "alice", reg, router, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			router.Dispatch(context.Background(), "R1", "carol", carol, []byte(`{"message":"live"}`))
			if len(reg.TargetsFor("R1", "alice")) > 0 {
				return
			}
		}
	}()

	client.Serve(context.Background())
	wg.Wait()

	frames := joiner.outboundSnapshot()
	require.NotEmpty(t, frames)

	var sawLive bool
	for _, raw := range frames {
		var frame map[string]any
		require.NoError(t, json.Unmarshal(raw, &frame))
		if frame["type"] == "chat-history" {
			assert.False(t, sawLive, "history frame arrived after a live frame")
			continue
		}
		if frame["message"] == "live" {
			sawLive = true
		}
	}
}

func TestClient_Send_NonBlockingOnFullBuffer(t *testing.T) {
	router, reg := newTestRouter(t)
	conn := &fakeConn{}
	client := NewClient(conn, "R1", "bob", reg, router, nil)

	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, client.Send([]byte("x")))
	}
	err := client.Send([]byte("overflow"))
	assert.Error(t, err)
}
