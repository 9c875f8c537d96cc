package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/logging"
)

// MaxBodySize bounds request bodies
const MaxBodySize = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

type completionRequest struct {
	Model    string         `json:"model"`
	Messages []chat.Message `json:"messages"`
	Stream   bool           `json:"stream"`
}

// fields consumed by the gateway; everything else is forwarded as overrides
var knownFields = map[string]bool{"model": true, "messages": true, "stream": true}

func readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxBodySize {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func decodeCompletion(body []byte) (chat.ChatRequest, error) {
	var req completionRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		return chat.ChatRequest{}, err
	}

	var raw map[string]interface{}
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return chat.ChatRequest{}, err
	}
	var overrides map[string]interface{}
	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		if overrides == nil {
			overrides = make(map[string]interface{})
		}
		overrides[k] = v
	}

	return chat.ChatRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		Stream:    req.Stream,
		Overrides: overrides,
	}, nil
}

// ChatCompletions serves POST /v1/chat/completions, buffered or as SSE
func (h *Handlers) ChatCompletions(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		badRequest(c, "request body unreadable or too large")
		return
	}
	req, err := decodeCompletion(body)
	if err != nil {
		badRequest(c, "request body must be a JSON chat completion request")
		return
	}

	completion, err := h.gateway.ChatCompletion(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if completion.Stream != nil {
		h.streamSSE(c, completion.Stream)
		return
	}
	h.writeJSON(c, http.StatusOK, completion.Response)
}

type simpleChatRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// SimpleChat serves POST /chat: {message, model} -> {response, model}
func (h *Handlers) SimpleChat(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		badRequest(c, "request body unreadable or too large")
		return
	}
	var in simpleChatRequest
	if err := sonic.Unmarshal(body, &in); err != nil {
		badRequest(c, "request body must be {\"message\": ..., \"model\": ...}")
		return
	}
	if strings.TrimSpace(in.Message) == "" {
		badRequest(c, "message must not be empty")
		return
	}

	completion, err := h.gateway.ChatCompletion(c.Request.Context(), chat.ChatRequest{
		Model:    in.Model,
		Messages: []chat.Message{{Role: chat.RoleUser, Content: in.Message}},
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.writeJSON(c, http.StatusOK, gin.H{
		"response": completion.Response.Content(),
		"model":    completion.Response.Model,
		"usage":    completion.Response.Usage,
	})
}

// writeJSON encodes with sonic, matching the SSE and websocket encoders
func (h *Handlers) writeJSON(c *gin.Context, status int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		h.writeError(c, chat.Internal(err))
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

// streamSSE relays chunks as server-sent events. [DONE] follows only a
// terminal chunk; a stream cut short by the caller just ends.
func (h *Handlers) streamSSE(c *gin.Context, stream <-chan chat.ChatChunk) {
	logger := logging.FromContext(c.Request.Context(), h.logger)

	w := c.Writer
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	finished := false
	for chunk := range stream {
		data, err := sonic.Marshal(chunk)
		if err != nil {
			logger.Error("Failed to encode chunk", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			logger.Debug("Stream client went away", zap.Error(err))
			return
		}
		w.Flush()
		finished = finished || chunk.Done
	}

	if finished {
		fmt.Fprint(w, "data: [DONE]\n\n")
		w.Flush()
	}
}
