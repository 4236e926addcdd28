// Package health exposes liveness and readiness probes for the signaling
// daemon.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eventcollab/videochat/internal/logging"
)

// StorePinger is satisfied by internal/store.Service.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// AuthChecker is satisfied by internal/authclient.Client.
type AuthChecker interface {
	Healthy(ctx context.Context) bool
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	store StorePinger
	auth  AuthChecker
}

// NewHandler builds a Handler. Either dependency may be nil, in which case
// that check is reported healthy (single-instance / auth-disabled dev mode).
func NewHandler(store StorePinger, auth AuthChecker) *Handler {
	return &Handler{store: store, auth: auth}
}

type livenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type readinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness reports the process is alive; it never checks dependencies.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, livenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness reports whether the message store and auth client are reachable.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	storeStatus := h.checkStore(ctx)
	checks["store"] = storeStatus
	if storeStatus != "healthy" {
		allHealthy = false
	}

	authStatus := h.checkAuth(ctx)
	checks["auth"] = authStatus
	if authStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, readinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkStore(ctx context.Context) string {
	if h.store == nil {
		return "healthy"
	}
	if err := h.store.Ping(ctx); err != nil {
		logging.Error(ctx, "message store health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkAuth(ctx context.Context) string {
	if h.auth == nil {
		return "healthy"
	}
	if !h.auth.Healthy(ctx) {
		return "unhealthy"
	}
	return "healthy"
}
