package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
	"github.com/GriffinCanCode/chatgate/internal/domain/gateway"
	"github.com/GriffinCanCode/chatgate/internal/domain/pool"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/monitoring"
)

// Gateway is the facade the handlers serve
type Gateway interface {
	ChatCompletion(ctx context.Context, req chat.ChatRequest) (*gateway.Completion, error)
	ListModels() []chat.ModelDescriptor
	DefaultModel() string
	Status() gateway.Status
	PoolStats() pool.Stats
}

// Options configures Handlers
type Options struct {
	Service string
	Version string
	// RetryAfter is advertised when the pool is exhausted
	RetryAfter time.Duration
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	gateway    Gateway
	service    string
	version    string
	retryAfter time.Duration
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	started    time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(gw Gateway, opts Options) *Handlers {
	if opts.Service == "" {
		opts.Service = "chatgate"
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handlers{
		gateway:    gw,
		service:    opts.Service,
		version:    opts.Version,
		retryAfter: opts.RetryAfter,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		started:    time.Now(),
	}
}

// Root returns the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.service,
		"version": h.version,
		"status":  h.gateway.Status(),
		"endpoints": gin.H{
			"models":      "/v1/models",
			"completions": "/v1/chat/completions",
			"stream":      "/v1/chat/stream",
			"chat":        "/chat",
			"health":      "/health",
			"stats":       "/stats",
			"metrics":     "/metrics",
		},
	})
}

// Health reports gateway readiness. It always answers 200 so a degraded
// gateway stays observable; callers read the status field.
func (h *Handlers) Health(c *gin.Context) {
	stats := h.gateway.PoolStats()
	c.JSON(http.StatusOK, gin.H{
		"status":         h.gateway.Status(),
		"service":        h.service,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"pool": gin.H{
			"max_sessions": stats.MaxSessions,
			"sessions":     stats.Sessions,
			"states":       stats.States,
			"waiters":      stats.Waiters,
			"breaker":      stats.Breaker,
		},
	})
}

// Stats returns pool and request statistics
func (h *Handlers) Stats(c *gin.Context) {
	resp := gin.H{
		"status": h.gateway.Status(),
		"pool":   h.gateway.PoolStats(),
	}
	if h.metrics != nil {
		resp["requests"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Name    string `json:"name"`
}

func (h *Handlers) modelObject(m chat.ModelDescriptor) modelObject {
	return modelObject{
		ID:      m.ID,
		Object:  chat.ObjectModel,
		Created: h.started.Unix(),
		OwnedBy: m.OwnedBy,
		Name:    m.Name,
	}
}

// ListModels returns the model catalog in the OpenAI list shape
func (h *Handlers) ListModels(c *gin.Context) {
	models := h.gateway.ListModels()
	data := make([]modelObject, len(models))
	for i, m := range models {
		data[i] = h.modelObject(m)
	}
	c.JSON(http.StatusOK, gin.H{
		"object": chat.ObjectList,
		"data":   data,
	})
}

// GetModel returns one catalog entry
func (h *Handlers) GetModel(c *gin.Context) {
	modelID := c.Param("id")
	for _, m := range h.gateway.ListModels() {
		if m.ID == modelID {
			c.JSON(http.StatusOK, h.modelObject(m))
			return
		}
	}
	c.JSON(http.StatusNotFound, chat.Validation("unknown model").Payload())
}
