package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
	"github.com/GriffinCanCode/chatgate/internal/domain/pool"
	"github.com/GriffinCanCode/chatgate/internal/domain/translator"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/chatgate/internal/shared/id"
)

var ErrClosed = errors.New("gateway is closed")

// Status is the gateway readiness as reported by health endpoints
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusDegraded     Status = "degraded"
	StatusClosed       Status = "closed"
)

// Options configure a Gateway. Pool and Translator are required.
type Options struct {
	Pool               *pool.Pool
	Translator         *translator.Translator
	Models             []chat.ModelDescriptor
	DefaultModel       string
	Passthrough        []string
	RequestTimeout     time.Duration
	InteractionTimeout time.Duration
	WarmOnStart        int
	Cache              ReplyCache
	CacheTTL           time.Duration
	Metrics            Metrics
	Logger             *zap.Logger
}

// Completion is the result of ChatCompletion. Response is always set;
// Stream is set for streaming requests and replays Response.Content as
// emulated chunks.
type Completion struct {
	Response *chat.ChatResponse
	Stream   <-chan chat.ChatChunk
}

// Gateway is the entry point the HTTP layer uses
type Gateway struct {
	pool       *pool.Pool
	translator *translator.Translator
	catalog    *Catalog
	cache      ReplyCache
	metrics    Metrics
	logger     *zap.Logger
	now        func() time.Time

	defaultModel       string
	requestTimeout     time.Duration
	interactionTimeout time.Duration
	warmOnStart        int
	cacheTTL           time.Duration

	mu          sync.RWMutex
	initialized bool
	initErr     error
	closed      atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

// New builds a gateway from its collaborators
func New(opts Options) (*Gateway, error) {
	if opts.Pool == nil {
		return nil, errors.New("gateway: pool is required")
	}
	if opts.Translator == nil {
		return nil, errors.New("gateway: translator is required")
	}

	catalog, err := NewCatalog(opts.Models, opts.Passthrough)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		pool:               opts.Pool,
		translator:         opts.Translator,
		catalog:            catalog,
		cache:              opts.Cache,
		metrics:            opts.Metrics,
		logger:             opts.Logger,
		now:                time.Now,
		defaultModel:       opts.DefaultModel,
		requestTimeout:     opts.RequestTimeout,
		interactionTimeout: opts.InteractionTimeout,
		warmOnStart:        opts.WarmOnStart,
		cacheTTL:           opts.CacheTTL,
	}
	if g.metrics == nil {
		g.metrics = nopMetrics{}
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.defaultModel == "" {
		g.defaultModel = DefaultModelID
	}
	if g.requestTimeout <= 0 {
		g.requestTimeout = 120 * time.Second
	}
	if g.interactionTimeout <= 0 {
		g.interactionTimeout = 60 * time.Second
	}
	if g.cacheTTL <= 0 {
		g.cacheTTL = 10 * time.Minute
	}
	if !catalog.Accepts(g.defaultModel) {
		return nil, errors.New("gateway: default model " + g.defaultModel + " is not in the catalog")
	}
	return g, nil
}

// Initialize warms the configured number of sessions. A warm-up failure is
// returned for logging, but the gateway stays usable and will retry lazily.
func (g *Gateway) Initialize(ctx context.Context) error {
	var errs []error
	for i := 0; i < g.warmOnStart; i++ {
		if err := g.pool.Warm(ctx); err != nil {
			errs = append(errs, err)
			break
		}
	}
	err := errors.Join(errs...)

	g.mu.Lock()
	g.initialized = true
	g.initErr = err
	g.mu.Unlock()

	if err != nil {
		g.logger.Error("gateway initialization failed, serving degraded", zap.Error(err))
		return err
	}
	g.logger.Info("gateway initialized", zap.Int("sessions", g.warmOnStart))
	return nil
}

// Close shuts the pool down. It is safe to call more than once.
func (g *Gateway) Close(ctx context.Context) error {
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		g.closeErr = g.pool.Shutdown(ctx)
		g.logger.Info("gateway closed")
	})
	return g.closeErr
}

// Status reports readiness for health checks
func (g *Gateway) Status() Status {
	if g.closed.Load() {
		return StatusClosed
	}

	g.mu.RLock()
	initialized, initErr := g.initialized, g.initErr
	g.mu.RUnlock()

	switch {
	case !initialized:
		return StatusInitializing
	case g.pool.Healthy():
		return StatusReady
	case initErr != nil:
		return StatusDegraded
	}

	stats := g.pool.Stats()
	if stats.States[pool.StateDegraded.String()] > 0 || stats.Breaker != "closed" {
		return StatusDegraded
	}
	return StatusReady
}

// Ready reports whether requests are likely to be served
func (g *Gateway) Ready() bool {
	return g.Status() == StatusReady
}

// PoolStats exposes the pool snapshot for health and stats endpoints
func (g *Gateway) PoolStats() pool.Stats {
	return g.pool.Stats()
}

// ListModels returns the static model catalog
func (g *Gateway) ListModels() []chat.ModelDescriptor {
	return g.catalog.List()
}

// DefaultModel returns the model used when a request names none
func (g *Gateway) DefaultModel() string {
	return g.defaultModel
}

// ChatCompletion answers one request through a pooled session. The whole
// call is bounded by the request timeout and the site interaction by the
// interaction timeout. Errors are *chat.Error. For streaming requests the
// session is released before the stream starts; the stream follows ctx.
func (g *Gateway) ChatCompletion(ctx context.Context, req chat.ChatRequest) (*Completion, error) {
	logger := logging.FromContext(ctx, g.logger)
	if rid := id.RequestIDFrom(ctx); rid != "" {
		logger = logger.With(zap.String("request_id", rid.String()))
	}
	tr := newRequestTrace(logger, g.metrics, g.now, req)

	if g.closed.Load() {
		err := chat.Unavailable("gateway is closed", ErrClosed)
		tr.fail(err)
		return nil, err
	}

	req, err := g.normalize(req)
	if err != nil {
		e := chat.AsError(err)
		tr.fail(e)
		return nil, e
	}
	tr.model = req.Model

	reqCtx, cancel := context.WithTimeout(ctx, g.requestTimeout)
	defer cancel()

	script := g.translator.BuildInteraction(req)
	cacheKey := ""
	if g.cache != nil && !req.Stream {
		cacheKey = CacheKey(script)
		if content, ok := g.cacheLookup(reqCtx, logger, cacheKey); ok {
			tr.complete(content)
			return g.respond(ctx, req, script, content), nil
		}
	}

	tr.to(StateAcquiring)
	session, err := g.pool.Acquire(reqCtx, 0)
	if err != nil {
		e := g.classify(ctx, err)
		tr.fail(e)
		return nil, e
	}
	logger = logger.With(zap.String("session_id", session.ID().String()))
	tr.logger = logger

	tr.to(StateInteracting)
	content, err := g.interact(reqCtx, session, script)
	g.pool.Release(session, g.outcome(ctx, err))
	if err != nil {
		e := g.classify(ctx, err)
		tr.fail(e)
		return nil, e
	}

	if cacheKey != "" {
		if err := g.cache.Set(reqCtx, cacheKey, content, g.cacheTTL); err != nil {
			logger.Warn("reply cache write failed", zap.Error(err))
		}
	}

	tr.complete(content)
	return g.respond(ctx, req, script, content), nil
}

func (g *Gateway) interact(ctx context.Context, session *pool.Session, script chat.SiteScript) (string, error) {
	ictx, cancel := context.WithTimeout(ctx, g.interactionTimeout)
	defer cancel()

	raw, err := session.Interact(ictx, script)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ictx.Err() == context.DeadlineExceeded {
			return "", chat.Timeout("site interaction timed out", err)
		}
		return "", err
	}
	return g.translator.ParseReply(raw)
}

// outcome decides how the session is released. A caller that walked away
// does not count against the session.
func (g *Gateway) outcome(ctx context.Context, err error) pool.Outcome {
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return pool.OutcomeAborted
	}
	if err != nil && chat.IsKind(err, chat.KindCanceled) {
		return pool.OutcomeAborted
	}
	return pool.OutcomeFor(err)
}

// classify turns any failure into a caller-safe *chat.Error
func (g *Gateway) classify(ctx context.Context, err error) *chat.Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return chat.Canceled(ctx.Err())
	}

	var e *chat.Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return chat.Timeout("request deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return chat.Canceled(err)
	}
	return chat.Unavailable("site interaction failed", err)
}

func (g *Gateway) cacheLookup(ctx context.Context, logger *zap.Logger, key string) (string, bool) {
	content, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("reply cache read failed", zap.Error(err))
		return "", false
	}
	g.metrics.RecordCacheLookup(ok)
	return content, ok
}

func (g *Gateway) respond(ctx context.Context, req chat.ChatRequest, script chat.SiteScript, content string) *Completion {
	created := g.now().Unix()
	resp := &chat.ChatResponse{
		ID:      string(id.NewCompletionID()),
		Object:  chat.ObjectCompletion,
		Created: created,
		Model:   req.Model,
		Choices: []chat.Choice{{
			Index:        0,
			Message:      chat.Message{Role: chat.RoleAssistant, Content: content},
			FinishReason: chat.FinishStop,
		}},
		Usage: translator.EstimateUsage(script.Prompt, content),
	}

	c := &Completion{Response: resp}
	if req.Stream {
		c.Stream = g.translator.EmulateStream(ctx, translator.StreamMeta{
			ID:      resp.ID,
			Model:   resp.Model,
			Created: created,
		}, content)
	}
	return c
}
