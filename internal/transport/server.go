package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/health"
	"github.com/eventcollab/videochat/internal/logging"
	"github.com/eventcollab/videochat/internal/middleware"
	"github.com/eventcollab/videochat/internal/ratelimit"
	"github.com/eventcollab/videochat/internal/registry"
	"github.com/eventcollab/videochat/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the room registry and signaling router to the HTTP/WS
// boundary described in the protocol.
type Server struct {
	registry *registry.Registry
	router   *signaling.Router
	rate     *ratelimit.RateLimiter
	health   *health.Handler

	engine *gin.Engine
}

// NewServer builds a ready-to-run gin.Engine with permissive CORS, the
// WebSocket endpoint, diagnostic routes, health probes and metrics.
func NewServer(reg *registry.Registry, router *signaling.Router, rate *ratelimit.RateLimiter, healthHandler *health.Handler) *Server {
	s := &Server{registry: reg, router: router, rate: rate, health: healthHandler}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationID())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"*"},
	}))

	engine.GET("/", s.handleRoot)
	engine.GET("/room/", s.handleRoomEcho)
	engine.GET("/ws/:room/:user", s.handleWebSocket)
	engine.GET("/health/live", healthHandler.Liveness)
	engine.GET("/health/ready", healthHandler.Readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = engine
	return s
}

// Engine returns the underlying gin.Engine for binding to an http.Server.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "videochat signaling service is running")
}

func (s *Server) handleRoomEcho(c *gin.Context) {
	roomID := c.Query("room_id")
	userID := c.Query("user_id")
	c.JSON(http.StatusOK, gin.H{
		"room_id":      roomID,
		"user_id":      userID,
		"participants": s.registry.ParticipantCount(roomID),
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	room := c.Param("room")
	user := c.Param("user")

	if s.rate != nil && !s.rate.AllowConnect(c.Request.Context(), c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.String("room_id", room), zap.Error(err))
		return
	}

	client := NewClient(conn, room, user, s.registry, s.router, s.rate)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c.Request.Context().Done()
		cancel()
	}()
	defer cancel()

	client.Serve(ctx)
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// performs a graceful shutdown bounded by shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("transport: server failed: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
