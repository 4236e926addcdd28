// Package ratelimit throttles WebSocket connect attempts per IP and chat
// sends per user, using Redis when available and falling back to an
// in-process store for local development.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/logging"
	"github.com/eventcollab/videochat/internal/metrics"
)

// RateLimiter enforces the two limits this service needs: WebSocket connect
// attempts per client IP, and chat sends per authenticated user.
type RateLimiter struct {
	wsConnect *limiter.Limiter
	chatSend  *limiter.Limiter
}

// NewRateLimiter builds a RateLimiter. When redisClient is nil, limits are
// tracked in process memory only (acceptable for a single-instance
// deployment; fails to rate-limit across replicas).
func NewRateLimiter(redisClient *redis.Client, wsConnectRate, chatSendRate string) (*RateLimiter, error) {
	wsRate, err := limiter.NewRateFromFormatted(wsConnectRate)
	if err != nil {
		return nil, fmt.Errorf("invalid ws connect rate: %w", err)
	}
	chatRate, err := limiter.NewRateFromFormatted(chatSendRate)
	if err != nil {
		return nil, fmt.Errorf("invalid chat send rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "ratelimit:v1:"})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using in-process memory store")
	}

	return &RateLimiter{
		wsConnect: limiter.New(store, wsRate),
		chatSend:  limiter.New(store, chatRate),
	}, nil
}

// AllowConnect checks the per-IP WebSocket connect limit.
func (rl *RateLimiter) AllowConnect(ctx context.Context, ip string) bool {
	lc, err := rl.wsConnect.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed (connect)", zap.Error(err))
		return true // fail open: availability over strict limiting
	}
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_connect").Inc()
		return false
	}
	return true
}

// AllowChatSend checks the per-user chat send limit.
func (rl *RateLimiter) AllowChatSend(ctx context.Context, userID string) bool {
	lc, err := rl.chatSend.Get(ctx, userID)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed (chat send)", zap.Error(err))
		return true
	}
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues("chat_send").Inc()
		return false
	}
	return true
}
