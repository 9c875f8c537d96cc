package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/logging"
)

// StatusClientClosedRequest is the de facto status for a caller that went away
const StatusClientClosedRequest = 499

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind chat.Kind) int {
	switch kind {
	case chat.KindValidation:
		return http.StatusBadRequest
	case chat.KindExhausted, chat.KindUnavailable:
		return http.StatusServiceUnavailable
	case chat.KindTimeout:
		return http.StatusGatewayTimeout
	case chat.KindParse:
		return http.StatusBadGateway
	case chat.KindCanceled:
		return StatusClientClosedRequest
	}
	return http.StatusInternalServerError
}

// writeError renders err as {error:{kind,message,finish_reason}}
func (h *Handlers) writeError(c *gin.Context, err error) {
	e := chat.AsError(err)
	status := StatusFor(e.Kind)

	if e.Kind == chat.KindExhausted || e.Kind == chat.KindUnavailable {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(h.retryAfter.Seconds()))))
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context(), h.logger).Debug("Request failed",
			zap.String("kind", string(e.Kind)),
			zap.Int("status", status),
			zap.Error(e))
	}
	c.AbortWithStatusJSON(status, e.Payload())
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, chat.Validation(msg).Payload())
}
