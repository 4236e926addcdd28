// Package signaling classifies inbound WebSocket frames for a single
// connection and routes them: broadcast chat, targeted WebRTC relay, and
// presence/disconnect notices. It never performs socket I/O for reads —
// only the outbound Send calls against registry.Connection.
package signaling

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/crypto"
	"github.com/eventcollab/videochat/internal/logging"
	"github.com/eventcollab/videochat/internal/metrics"
	"github.com/eventcollab/videochat/internal/registry"
	"github.com/eventcollab/videochat/internal/store"
)

// FrameType classifies an inbound frame. The empty value means an
// ordinary chat message — the wire protocol has no explicit "chat" type.
type FrameType string

const (
	FrameChat         FrameType = ""
	FrameNewUser      FrameType = "new-user"
	FrameOffer        FrameType = "offer"
	FrameAnswer       FrameType = "answer"
	FrameICECandidate FrameType = "ice-candidate"
)

// inboundFrame covers every shape a client may send. Fields irrelevant to
// a given Type are left zero.
type inboundFrame struct {
	Type      FrameType       `json:"type"`
	Message   string          `json:"message"`
	To        string          `json:"to"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

const timeLayout = time.RFC3339Nano

// Router dispatches decoded frames for one room's connections. A single
// Router is shared across every connection in the process.
type Router struct {
	registry *registry.Registry
	store    *store.Service
	codec    *crypto.Codec
}

// New returns a Router wired to the given registry, message store and
// crypto codec.
func New(reg *registry.Registry, st *store.Service, codec *crypto.Codec) *Router {
	return &Router{registry: reg, store: st, codec: codec}
}

// Dispatch decodes raw as a JSON frame from (room, user, conn) and routes
// it. Malformed JSON is logged at error level and swallowed: the
// connection stays open per the protocol's error-handling contract.
func (r *Router) Dispatch(ctx context.Context, room, user string, conn registry.Connection, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logging.Error(ctx, "malformed inbound frame", zap.String("room_id", room), zap.Error(err))
		metrics.FramesRouted.WithLabelValues("malformed", "dropped").Inc()
		return
	}

	start := time.Now()
	label := string(frame.Type)
	if label == "" {
		label = "chat"
	}
	defer func() {
		metrics.MessageProcessingDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	switch frame.Type {
	case FrameNewUser:
		r.handleNewUser(ctx, room, user)
	case FrameOffer:
		r.relay(ctx, room, user, frame.To, "offer", "offer", frame.Offer)
	case FrameAnswer:
		r.relay(ctx, room, user, frame.To, "answer", "answer", frame.Answer)
	case FrameICECandidate:
		r.relay(ctx, room, user, frame.To, "ice-candidate", "candidate", frame.Candidate)
	default:
		r.handleChat(ctx, room, user, frame.Message)
	}
}

// ReplayHistory sends every stored message for room to conn as
// chat-history frames, in ascending timestamp order, before any live
// frame reaches it. Called once by the connection lifecycle immediately
// before registration, unconditionally.
func (r *Router) ReplayHistory(ctx context.Context, room string, conn registry.Connection) {
	messages, err := r.store.GetMessages(ctx, room)
	if err != nil {
		logging.Error(ctx, "history replay failed to load messages", zap.String("room_id", room), zap.Error(err))
		return
	}

	for _, m := range messages {
		plaintext, err := r.codec.Decrypt(m.Ciphertext)
		if err != nil {
			logging.Warn(ctx, "skipping undecryptable history message", zap.String("room_id", room), zap.Error(err))
			continue
		}

		frame := map[string]any{
			"type":      "chat-history",
			"user_id":   m.UserID,
			"message":   plaintext,
			"timestamp": m.Timestamp.UTC().Format(timeLayout),
		}
		if err := sendJSON(conn, frame); err != nil {
			logging.Warn(ctx, "history replay send failed, aborting replay", zap.String("room_id", room), zap.Error(err))
			return
		}
	}
}

// BroadcastDisconnect synthesizes the disconnect notice for user and
// broadcasts it to every remaining connection in room. Never persisted.
func (r *Router) BroadcastDisconnect(ctx context.Context, room, user string) {
	frame := map[string]any{
		"user_id":   user,
		"message":   "User " + user + " has disconnected.",
		"timestamp": time.Now().UTC().Format(timeLayout),
	}
	r.broadcast(ctx, room, "disconnect", frame)
}

func (r *Router) handleNewUser(ctx context.Context, room, user string) {
	frame := map[string]any{
		"type":    "new-user",
		"user_id": user,
		"message": "user connected",
	}
	r.broadcast(ctx, room, "new-user", frame)
}

func (r *Router) handleChat(ctx context.Context, room, user, plaintext string) {
	ciphertext, err := r.codec.Encrypt(plaintext)
	if err != nil {
		logging.Error(ctx, "chat encrypt failed, dropping message", zap.String("room_id", room), zap.Error(err))
		metrics.FramesRouted.WithLabelValues("chat", "error").Inc()
		return
	}

	now := time.Now().UTC()
	if err := r.store.InsertMessage(ctx, room, user, ciphertext); err != nil {
		logging.Warn(ctx, "chat store insert failed, dropping frame", zap.String("room_id", room), zap.Error(err))
		metrics.FramesRouted.WithLabelValues("chat", "store_error").Inc()
		return
	}

	frame := map[string]any{
		"user_id":   user,
		"message":   plaintext,
		"timestamp": now.Format(timeLayout),
	}
	r.broadcast(ctx, room, "chat", frame)
}

func (r *Router) relay(ctx context.Context, room, sender, to, frameType, payloadKey string, payload json.RawMessage) {
	if to == "" || len(payload) == 0 {
		logging.Warn(ctx, "directed frame missing target or payload, dropping", zap.String("frame_type", frameType), zap.String("room_id", room))
		metrics.FramesRouted.WithLabelValues(frameType, "dropped").Inc()
		return
	}

	targets := r.registry.TargetsFor(room, to)
	if len(targets) == 0 {
		logging.Warn(ctx, "directed frame target has no live connections", zap.String("frame_type", frameType), zap.String("room_id", room), zap.String("user_id", to))
		metrics.FramesRouted.WithLabelValues(frameType, "dropped").Inc()
		return
	}

	frame := map[string]any{
		"type":     frameType,
		"user_id":  sender,
		payloadKey: payload,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		logging.Error(ctx, "failed to marshal relay frame", zap.Error(err))
		metrics.FramesRouted.WithLabelValues(frameType, "error").Inc()
		return
	}

	for _, conn := range targets {
		if err := conn.Send(data); err != nil {
			r.registry.Unregister(room, to, conn)
			continue
		}
	}
	metrics.FramesRouted.WithLabelValues(frameType, "relayed").Inc()
}

func (r *Router) broadcast(ctx context.Context, room, frameType string, frame map[string]any) {
	targets := r.registry.TargetsIn(room)
	data, err := json.Marshal(frame)
	if err != nil {
		logging.Error(ctx, "failed to marshal broadcast frame", zap.Error(err))
		metrics.FramesRouted.WithLabelValues(frameType, "error").Inc()
		return
	}

	for _, target := range targets {
		if err := target.Conn.Send(data); err != nil {
			r.registry.Unregister(room, target.UserID, target.Conn)
		}
	}
	metrics.FramesRouted.WithLabelValues(frameType, "broadcast").Inc()
}

func sendJSON(conn registry.Connection, frame map[string]any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Send(data)
}
