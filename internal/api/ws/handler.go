package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
	"github.com/GriffinCanCode/chatgate/internal/domain/gateway"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/monitoring"
)

const (
	// MaxMessageSize bounds a single client frame
	MaxMessageSize = 1 << 20

	writeWait = 10 * time.Second

	// frames queued while a chat is in flight
	frameBacklog = 16
)

// Message types
const (
	TypeChat     = "chat"
	TypePing     = "ping"
	TypePong     = "pong"
	TypeSystem   = "system"
	TypeChunk    = "chunk"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Completer is the part of the gateway the stream endpoint needs
type Completer interface {
	ChatCompletion(ctx context.Context, req chat.ChatRequest) (*gateway.Completion, error)
}

// Inbound is a client frame. Message is shorthand for a single user turn.
type Inbound struct {
	Type     string                 `json:"type"`
	Model    string                 `json:"model,omitempty"`
	Messages []chat.Message         `json:"messages,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// Outbound is a server frame
type Outbound struct {
	Type         string            `json:"type"`
	Message      string            `json:"message,omitempty"`
	Chunk        *chat.ChatChunk   `json:"chunk,omitempty"`
	ID           string            `json:"id,omitempty"`
	FinishReason chat.FinishReason `json:"finish_reason,omitempty"`
	Usage        *chat.Usage       `json:"usage,omitempty"`
	Error        *chat.ErrorDetail `json:"error,omitempty"`
	Timestamp    int64             `json:"timestamp"`
}

// Options configures the handler
type Options struct {
	// AllowedOrigins restricts the Origin header; empty allows any origin
	AllowedOrigins []string
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
}

// Handler manages WebSocket connections
type Handler struct {
	gateway  Completer
	upgrader websocket.Upgrader
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(gw Completer, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	return &Handler{
		gateway: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(origins, r.Header.Get("Origin"))
			},
		},
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// HandleConnection upgrades the request and serves chat frames until the
// client goes away. Frames are handled one at a time.
func (h *Handler) HandleConnection(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.FromContext(ctx, h.logger)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(MaxMessageSize)

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	if err := h.send(conn, Outbound{Type: TypeSystem, Message: "connected"}); err != nil {
		return
	}

	// The reader keeps draining the socket while a chat runs so a client that
	// goes away cancels the in-flight completion and frees its session.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	frames := make(chan []byte, frameBacklog)
	go h.readLoop(ctx, cancel, conn, frames, logger)

	for data := range frames {
		var msg Inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.record("in", "invalid")
			if h.sendError(conn, chat.Validation("frame must be a JSON object")) != nil {
				return
			}
			continue
		}
		h.record("in", msg.Type)

		switch msg.Type {
		case TypeChat:
			err = h.handleChat(ctx, conn, msg)
		case TypePing:
			err = h.send(conn, Outbound{Type: TypePong})
		default:
			err = h.sendError(conn, chat.Validation("unknown message type"))
		}
		if err != nil {
			logger.Debug("WebSocket write failed", zap.Error(err))
			return
		}
	}
}

// readLoop forwards client frames until the connection fails, then cancels
// the connection context.
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, frames chan<- []byte, logger *zap.Logger) {
	defer close(frames)
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// handleChat runs one streamed completion. Only write failures are returned;
// completion failures are reported to the client as error frames.
func (h *Handler) handleChat(ctx context.Context, conn *websocket.Conn, msg Inbound) error {
	messages := msg.Messages
	if len(messages) == 0 && strings.TrimSpace(msg.Message) != "" {
		messages = []chat.Message{{Role: chat.RoleUser, Content: msg.Message}}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	completion, err := h.gateway.ChatCompletion(ctx, chat.ChatRequest{
		Model:     msg.Model,
		Messages:  messages,
		Stream:    true,
		Overrides: msg.Options,
	})
	if err != nil {
		return h.sendError(conn, err)
	}

	resp := completion.Response
	if completion.Stream == nil {
		return h.send(conn, Outbound{Type: TypeComplete, ID: resp.ID, Message: resp.Content(), FinishReason: chat.FinishStop, Usage: &resp.Usage})
	}

	var finish chat.FinishReason
	for chunk := range completion.Stream {
		if err := h.send(conn, Outbound{Type: TypeChunk, Chunk: &chunk}); err != nil {
			cancel()
			// drain so the emitter exits
			for range completion.Stream {
			}
			return err
		}
		if chunk.Done && len(chunk.Choices) > 0 && chunk.Choices[0].FinishReason != nil {
			finish = *chunk.Choices[0].FinishReason
		}
	}
	if finish == "" {
		return h.sendError(conn, chat.Canceled(ctx.Err()))
	}
	return h.send(conn, Outbound{Type: TypeComplete, ID: resp.ID, FinishReason: finish, Usage: &resp.Usage})
}

func (h *Handler) send(conn *websocket.Conn, out Outbound) error {
	if out.Timestamp == 0 {
		out.Timestamp = time.Now().Unix()
	}
	data, err := sonic.Marshal(out)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	h.record("out", out.Type)
	return nil
}

func (h *Handler) sendError(conn *websocket.Conn, err error) error {
	detail := chat.AsError(err).Payload().Error
	return h.send(conn, Outbound{Type: TypeError, Message: detail.Message, Error: &detail})
}

func (h *Handler) record(direction, msgType string) {
	if h.metrics == nil {
		return
	}
	switch msgType {
	case TypeChat, TypePing, TypePong, TypeSystem, TypeChunk, TypeComplete, TypeError, "invalid":
	default:
		msgType = "unknown"
	}
	h.metrics.RecordWSMessage(direction, msgType)
}
