// Package store persists per-room chat history. One Redis list holds one
// room's messages in append order; reads return them sorted ascending by
// timestamp (a no-op sort unless clocks disagree, since append order
// already matches arrival order).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/logging"
	"github.com/eventcollab/videochat/internal/metrics"
)

// StoreError wraps any I/O failure talking to the backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// Message is one persisted, still-encrypted chat entry.
type Message struct {
	UserID     string    `json:"user_id"`
	Ciphertext string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// Service is the Redis-backed message store. A nil *Service is valid and
// behaves as a no-op store (writes fail closed, reads return empty) — this
// mirrors the teacher's graceful single-instance-mode degradation, repointed
// at a document store instead of pub/sub.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// NewService dials Redis and verifies connectivity before returning.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "message-store",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues("message-store").Set(stateValue(to))
		},
	}

	return &Service{client: rdb, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func messageKey(room string) string {
	return fmt.Sprintf("room:%s:messages", room)
}

// InsertMessage appends ciphertext to room's document, stamping it with the
// store's own UTC clock. Fails closed with *StoreError when the circuit is
// open or Redis errors.
func (s *Service) InsertMessage(ctx context.Context, room, user, ciphertext string) error {
	if s == nil || s.client == nil {
		return &StoreError{Op: "insert", Err: fmt.Errorf("store not configured")}
	}

	msg := Message{UserID: user, Ciphertext: ciphertext, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return &StoreError{Op: "insert", Err: err}
	}

	start := time.Now()
	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.RPush(ctx, messageKey(room), data).Err()
	})
	metrics.StoreOperationDuration.WithLabelValues("insert").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.StoreOperations.WithLabelValues("insert", "error").Inc()
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("message-store").Inc()
			logging.Warn(ctx, "message store circuit open, write dropped", zap.String("user_id", user))
		}
		return &StoreError{Op: "insert", Err: err}
	}

	metrics.StoreOperations.WithLabelValues("insert", "success").Inc()
	return nil
}

// GetMessages returns all stored messages for room sorted ascending by
// timestamp, or an empty slice if the room has no document yet. On circuit
// breaker trip it fails open to an empty slice rather than erroring, since a
// chat room should keep functioning without its history.
func (s *Service) GetMessages(ctx context.Context, room string) ([]Message, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}

	start := time.Now()
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.LRange(ctx, messageKey(room), 0, -1).Result()
	})
	metrics.StoreOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("message-store").Inc()
			metrics.StoreOperations.WithLabelValues("get", "degraded").Inc()
			logging.Warn(ctx, "message store circuit open, returning empty history")
			return nil, nil
		}
		metrics.StoreOperations.WithLabelValues("get", "error").Inc()
		return nil, &StoreError{Op: "get", Err: err}
	}

	raw := res.([]string)
	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			logging.Error(ctx, "skipping unparseable stored message", zap.Error(err))
			continue
		}
		messages = append(messages, m)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	metrics.StoreOperations.WithLabelValues("get", "success").Inc()
	return messages, nil
}

// Ping checks Redis connectivity; used by the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil && err != gobreaker.ErrOpenState {
		return err
	}
	return err
}

// Close releases the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
