package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/authclient"
	"github.com/eventcollab/videochat/internal/config"
	"github.com/eventcollab/videochat/internal/crypto"
	"github.com/eventcollab/videochat/internal/health"
	"github.com/eventcollab/videochat/internal/logging"
	"github.com/eventcollab/videochat/internal/ratelimit"
	"github.com/eventcollab/videochat/internal/registry"
	"github.com/eventcollab/videochat/internal/signaling"
	"github.com/eventcollab/videochat/internal/store"
	"github.com/eventcollab/videochat/internal/tracing"
	"github.com/eventcollab/videochat/internal/transport"
	"github.com/redis/go-redis/v9"
)

func main() {
	for _, path := range []string{".env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv(false)
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		panic(err)
	}
	ctx := context.Background()
	logger := logging.GetLogger()
	defer logger.Sync()

	tp, err := tracing.InitTracer(ctx, "videochatd", os.Getenv("OTEL_COLLECTOR_ADDR"))
	if err != nil {
		logging.Error(ctx, "failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	key, err := crypto.ParseKey(cfg.CryptoKey)
	if err != nil {
		logging.Error(ctx, "invalid CRYPTO_KEY", zap.Error(err))
		os.Exit(1)
	}
	codec, err := crypto.NewCodec(key)
	if err != nil {
		logging.Error(ctx, "failed to build message codec", zap.Error(err))
		os.Exit(1)
	}

	messageStore, err := store.NewService(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logging.Error(ctx, "failed to connect to redis message store", zap.Error(err))
		os.Exit(1)
	}
	defer messageStore.Close()

	authTimeout := time.Duration(cfg.AuthTimeoutSeconds) * time.Second
	authClient, err := authclient.New(cfg.AuthGRPCAddr, authTimeout)
	if err != nil {
		logging.Error(ctx, "failed to dial auth service", zap.Error(err))
		os.Exit(1)
	}
	defer authClient.Close()

	reg := registry.New()
	router := signaling.New(reg, messageStore, codec)

	rateRedis := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	rate, err := ratelimit.NewRateLimiter(rateRedis, "20-M", "30-S")
	if err != nil {
		logging.Error(ctx, "failed to build rate limiter", zap.Error(err))
		os.Exit(1)
	}

	healthHandler := health.NewHandler(messageStore, authClient)
	server := transport.NewServer(reg, router, rate, healthHandler)

	logging.Info(ctx, "videochatd starting", zap.String("port", cfg.Port))

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(runCtx, ":"+cfg.Port, 10*time.Second); err != nil {
		logging.Error(ctx, "videochatd exited with error", zap.Error(err))
		os.Exit(1)
	}

	logging.Info(ctx, "videochatd exiting")
}
