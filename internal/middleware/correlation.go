// Package middleware contains Gin middleware shared across HTTP routes.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventcollab/videochat/internal/logging"
)

// HeaderXCorrelationID is the header carrying the request correlation ID.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID assigns (or propagates) a correlation ID for every request,
// echoing it back in the response header and storing it in gin's context
// under the "correlation_id" key. The logging helpers read
// logging.CorrelationIDKey from a context.Context, so they do not see this
// gin key on their own.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Header(HeaderXCorrelationID, correlationID)
		c.Set(string(logging.CorrelationIDKey), correlationID)

		c.Next()
	}
}
