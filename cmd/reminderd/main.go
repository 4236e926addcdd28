package main

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/config"
	"github.com/eventcollab/videochat/internal/health"
	"github.com/eventcollab/videochat/internal/logging"
	"github.com/eventcollab/videochat/internal/mail"
	"github.com/eventcollab/videochat/internal/reminder"
)

func main() {
	for _, path := range []string{".env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv(true)
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		panic(err)
	}
	ctx := context.Background()
	logger := logging.GetLogger()
	defer logger.Sync()

	reminderStore, err := reminder.NewStore(cfg.DatabaseURL)
	if err != nil {
		logging.Error(ctx, "failed to connect to reminder database", zap.Error(err))
		panic(err)
	}
	defer reminderStore.Close()

	smtpPort, err := strconv.Atoi(cfg.SMTPPort)
	if err != nil {
		logging.Error(ctx, "invalid SMTP_PORT", zap.Error(err))
		panic(err)
	}

	sink, err := mail.NewSink(mail.Config{
		Host:        cfg.SMTPHost,
		Port:        smtpPort,
		User:        cfg.SMTPUser,
		Password:    cfg.SMTPPassword,
		FromName:    cfg.SMTPFromName,
		FromAddress: cfg.SMTPFromAddress,
	})
	if err != nil {
		logging.Error(ctx, "failed to build mail sink", zap.Error(err))
		panic(err)
	}

	scheduler := reminder.NewScheduler(
		reminderStore,
		sink,
		time.Duration(cfg.SchedulerTickSeconds)*time.Second,
		time.Duration(cfg.SchedulerWindowSeconds)*time.Second,
	)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthHandler := health.NewHandler(nil, nil)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/health/live", healthHandler.Liveness)
	engine.GET("/health/ready", healthHandler.Readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: engine}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "reminderd health server failed", zap.Error(err))
		}
	}()

	logging.Info(ctx, "reminderd starting",
		zap.Int("tick_seconds", cfg.SchedulerTickSeconds),
		zap.Int("window_seconds", cfg.SchedulerWindowSeconds))

	scheduler.Run(runCtx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	logging.Info(ctx, "reminderd exiting")
}
