package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/chatgate/internal/shared/id"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID accepts a well-formed inbound X-Request-ID or generates one,
// stores it on the request context with a request-scoped logger and echoes
// it in the response.
func RequestID(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		rid := id.Accept(c.GetHeader(RequestIDHeader))

		ctx := id.WithRequestID(c.Request.Context(), rid)
		ctx = logging.WithContext(ctx, logger.With(zap.String("request_id", rid.String())))
		c.Request = c.Request.WithContext(ctx)

		c.Set(requestIDKey, rid)
		c.Header(RequestIDHeader, rid.String())
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID
func GetRequestID(c *gin.Context) id.RequestID {
	if v, ok := c.Get(requestIDKey); ok {
		if rid, ok := v.(id.RequestID); ok {
			return rid
		}
	}
	return id.RequestIDFrom(c.Request.Context())
}
