package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
)

// Kinds reported by middleware rejections. They share the error envelope
// of the chat error taxonomy.
const (
	KindUnauthorized chat.Kind = "unauthorized"
	KindRateLimited  chat.Kind = "rate_limited"
)

func abort(c *gin.Context, status int, kind chat.Kind, message string) {
	c.AbortWithStatusJSON(status, chat.ErrorBody{
		Error: chat.ErrorDetail{Kind: kind, Message: message, FinishReason: chat.FinishError},
	})
}
