package gateway

import (
	"strings"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
)

// maxMessages bounds the conversation length forwarded to the site
const maxMessages = 256

// normalize checks req and fills in the default model. Error messages are
// fixed strings and never echo request content.
func (g *Gateway) normalize(req chat.ChatRequest) (chat.ChatRequest, error) {
	if len(req.Messages) == 0 {
		return req, chat.Validation("messages must not be empty")
	}
	if len(req.Messages) > maxMessages {
		return req, chat.Validation("too many messages")
	}

	hasUser := false
	for _, m := range req.Messages {
		if !m.Role.Valid() {
			return req, chat.Validation("message role must be system, user or assistant")
		}
		if strings.TrimSpace(m.Content) == "" {
			return req, chat.Validation("message content must not be empty")
		}
		if m.Role == chat.RoleUser {
			hasUser = true
		}
	}
	if !hasUser {
		return req, chat.Validation("at least one user message is required")
	}

	req.Model = strings.TrimSpace(req.Model)
	if req.Model == "" {
		req.Model = g.defaultModel
	}
	if !g.catalog.Accepts(req.Model) {
		return req, chat.Validation("unknown model")
	}
	return req, nil
}
