// Package authclient talks to the Authentication service's ValidateUser
// RPC. It never retries and never caches: callers decide policy based on
// the classified error this package returns.
package authclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/eventcollab/videochat/internal/logging"
	"github.com/eventcollab/videochat/internal/metrics"
	"github.com/eventcollab/videochat/internal/rpc/authpb"
)

// AuthUnavailable indicates the Authentication service could not be
// reached at all — transport failure or an open circuit breaker.
type AuthUnavailable struct{ Err error }

func (e *AuthUnavailable) Error() string { return fmt.Sprintf("auth service unavailable: %v", e.Err) }
func (e *AuthUnavailable) Unwrap() error { return e.Err }

// UserNotFound indicates the Authentication service explicitly rejected
// the email.
type UserNotFound struct{ Email string }

func (e *UserNotFound) Error() string { return fmt.Sprintf("user not found: %s", e.Email) }

var registerCodecOnce sync.Once

// Client dials the Authentication service once at startup and reuses the
// connection for every ValidateUser call.
type Client struct {
	conn    *grpc.ClientConn
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// New dials addr and wraps calls in a circuit breaker named "auth-service".
func New(addr string, timeout time.Duration) (*Client, error) {
	registerCodecOnce.Do(func() {
		encoding.RegisterCodec(authpb.Codec)
	})

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("authclient: failed to dial %s: %w", addr, err)
	}

	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	st := gobreaker.Settings{
		Name:        "auth-service",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("auth-service").Set(v)
		},
	}

	return &Client{
		conn:    conn,
		cb:      gobreaker.NewCircuitBreaker(st),
		timeout: timeout,
	}, nil
}

// ValidateUser classifies the outcome per the Authentication service's
// contract: transport failure or an open circuit -> *AuthUnavailable;
// an explicit negative reply -> *UserNotFound; otherwise nil.
func (c *Client) ValidateUser(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.cb.Execute(func() (interface{}, error) {
		req := &authpb.ValidateUserRequest{Email: email}
		var out authpb.ValidateUserResponse
		if err := c.conn.Invoke(ctx, authpb.ValidateUserMethod, req, &out, grpc.CallContentSubtype(authpb.CodecName)); err != nil {
			return nil, err
		}
		return &out, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			metrics.CircuitBreakerFailures.WithLabelValues("auth-service").Inc()
			metrics.AuthProbes.WithLabelValues("unavailable").Inc()
			return &AuthUnavailable{Err: err}
		}
		logging.Error(ctx, "auth RPC transport failure", zap.Error(err))
		metrics.AuthProbes.WithLabelValues("unavailable").Inc()
		return &AuthUnavailable{Err: err}
	}

	out := resp.(*authpb.ValidateUserResponse)
	if !out.IsValid {
		metrics.AuthProbes.WithLabelValues("not_found").Inc()
		return &UserNotFound{Email: email}
	}

	metrics.AuthProbes.WithLabelValues("valid").Inc()
	return nil
}

// Healthy reports whether a trivial ValidateUser round trip succeeds
// without necessarily validating any particular email; used by the
// readiness probe. An explicit UserNotFound still counts as "reachable".
func (c *Client) Healthy(ctx context.Context) bool {
	err := c.ValidateUser(ctx, "healthcheck@probe.local")
	var unavailable *AuthUnavailable
	return !errors.As(err, &unavailable)
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
