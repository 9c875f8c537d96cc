package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/GriffinCanCode/chatgate/internal/api/http"
	"github.com/GriffinCanCode/chatgate/internal/api/middleware"
	"github.com/GriffinCanCode/chatgate/internal/api/ws"
	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
	"github.com/GriffinCanCode/chatgate/internal/domain/gateway"
	"github.com/GriffinCanCode/chatgate/internal/domain/pool"
	"github.com/GriffinCanCode/chatgate/internal/domain/translator"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/chatgate/internal/providers/browser"
	"github.com/GriffinCanCode/chatgate/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/chatgate/internal/providers/cache"
)

// HealthService is the gRPC health service name mirroring gateway readiness
const HealthService = "chatgate.Gateway"

const healthInterval = 5 * time.Second

// Server wires the gateway to its HTTP and gRPC surfaces
type Server struct {
	config  *config.Config
	profile config.SiteProfile
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	scripts *sandbox.Pool
	cache   *cache.RedisCache
	gateway *gateway.Gateway
	router  *gin.Engine
	handler stdhttp.Handler
	grpc    *grpc.Server
	health  *health.Server
}

// NewServer creates a new server instance. Nothing touches the network until
// Initialize or Run.
func NewServer(cfg *config.Config, version string) (*Server, error) {
	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	profile, err := config.ResolveProfile(cfg.Site)
	if err != nil {
		return nil, err
	}

	logger.Info("Initializing chat gateway",
		zap.String("site", profile.Name),
		zap.String("base_url", profile.BaseURL),
		zap.Int("max_sessions", cfg.Pool.MaxSessions),
		zap.Duration("min_spacing", cfg.Pool.MinSpacing),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("chatgate", logger.Logger)

	s := &Server{
		config:  cfg,
		profile: profile,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}
	if err := s.buildGateway(); err != nil {
		s.release()
		return nil, err
	}
	s.buildRouter(version)
	s.buildGRPC()

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) buildGateway() error {
	cfg := s.config
	logger := s.logger.Logger

	scripts, err := sandbox.NewPool(sandbox.DefaultConfig(), cfg.Pool.MaxSessions)
	if err != nil {
		return fmt.Errorf("failed to create script sandbox: %w", err)
	}
	s.scripts = scripts

	onStateChange := func(name string, from, to resilience.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	siteHTTP := resilience.New("site-http", resilience.Settings{
		Timeout:       30 * time.Second,
		OnStateChange: onStateChange,
	})
	factory := browser.NewFactory(browser.Options{
		Profile: s.profile,
		Breaker: siteHTTP,
		Scripts: scripts,
		Timeout: cfg.Gateway.InteractionTimeout,
		Logger:  logger.Named("browser"),
	})

	sessions := pool.New(pool.Config{
		MaxSessions:    cfg.Pool.MaxSessions,
		MinSpacing:     cfg.Pool.MinSpacing,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		MaxFailures:    cfg.Pool.MaxFailures,
		WarmTimeout:    cfg.Pool.WarmTimeout,
		WarmAttempts:   cfg.Pool.WarmAttempts,
		ShutdownGrace:  cfg.Pool.ShutdownGrace,
		Breaker:        resilience.Settings{OnStateChange: onStateChange},
	}, factory, logger.Named("pool")).WithMetrics(s.metrics)

	interval := cfg.Gateway.StreamInterval
	if interval == 0 {
		interval = -1
	}
	tr, err := translator.New(translator.Options{
		Region:         s.profile.Reply.Region,
		Chrome:         s.profile.Reply.Chrome,
		Strip:          s.profile.Reply.Strip,
		JSONField:      s.profile.Reply.JSONField,
		StreamInterval: interval,
	})
	if err != nil {
		return fmt.Errorf("invalid reply profile: %w", err)
	}

	opts := gateway.Options{
		Pool:               sessions,
		Translator:         tr,
		Models:             catalogModels(s.profile.Models),
		DefaultModel:       cfg.Gateway.DefaultModel,
		Passthrough:        cfg.Gateway.PassthroughModels,
		RequestTimeout:     cfg.Gateway.RequestTimeout,
		InteractionTimeout: cfg.Gateway.InteractionTimeout,
		WarmOnStart:        cfg.Pool.WarmOnStart,
		Metrics:            s.metrics,
		Logger:             logger.Named("gateway"),
	}
	if cfg.Cache.Enabled {
		s.cache = cache.NewRedisCache(cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		})
		opts.Cache = s.cache
		opts.CacheTTL = cfg.Cache.TTL
	}

	gw, err := gateway.New(opts)
	if err != nil {
		return err
	}
	s.gateway = gw
	return nil
}

func catalogModels(entries []config.ModelEntry) []chat.ModelDescriptor {
	models := make([]chat.ModelDescriptor, 0, len(entries))
	for _, e := range entries {
		models = append(models, chat.ModelDescriptor{ID: e.ID, Name: e.Name, OwnedBy: e.OwnedBy})
	}
	return models
}

func (s *Server) buildRouter(version string) {
	cfg := s.config
	logger := s.logger.Logger

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AccessLog(logger))
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	handlers := http.NewHandlers(s.gateway, http.Options{
		Version: version,
		Metrics: s.metrics,
		Logger:  logger,
	})
	wsHandler := ws.NewHandler(s.gateway, ws.Options{Metrics: s.metrics, Logger: logger})

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/stats", handlers.Stats)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := router.Group("/")
	keys := middleware.NewKeySet(cfg.Auth.APIKeys)
	if keys.Empty() {
		logger.Warn("API key authentication disabled")
	} else {
		api.Use(middleware.APIKeyAuth(keys))
	}
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		api.Use(middleware.RateLimit(limits))
	}

	api.GET("/v1/models", handlers.ListModels)
	api.GET("/v1/models/:id", handlers.GetModel)
	api.POST("/v1/chat/completions", handlers.ChatCompletions)
	api.GET("/v1/chat/stream", wsHandler.HandleConnection)
	api.POST("/chat", handlers.SimpleChat)

	s.router = router
	s.handler = router
	if cfg.Compression.Enabled {
		s.handler = compress(router, logger)
	}
}

// compress gzips buffered responses. Event streams and websocket upgrades
// bypass the wrapper.
func compress(next stdhttp.Handler, logger *zap.Logger) stdhttp.Handler {
	wrap, err := gzhttp.NewWrapper(gzhttp.ExceptContentTypes([]string{"text/event-stream"}))
	if err != nil {
		logger.Warn("Compression disabled", zap.Error(err))
		return next
	}
	gz := wrap(next)
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

func (s *Server) buildGRPC() {
	s.health = health.NewServer()
	s.grpc = grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			tracing.GRPCUnaryInterceptor(s.tracer),
			monitoring.UnaryServerInterceptor(s.metrics),
		),
		grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(s.tracer)),
	)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.syncHealth()
}

// syncHealth mirrors gateway readiness into the gRPC health service
func (s *Server) syncHealth() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.gateway.Status() == gateway.StatusReady {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HealthService, status)
}

// Handler returns the HTTP handler, including compression when enabled
func (s *Server) Handler() stdhttp.Handler {
	return s.handler
}

// Gateway returns the gateway the server fronts
func (s *Server) Gateway() *gateway.Gateway {
	return s.gateway
}

// Initialize checks the optional cache and warms the pool. Failures are
// logged; the server still starts and serves degraded.
func (s *Server) Initialize(ctx context.Context) {
	timer := monitoring.NewTimer(s.metrics, "initialize")
	defer func() {
		s.logger.Info("Gateway initialization finished",
			zap.Duration("duration", timer.Stop()),
			zap.String("status", string(s.gateway.Status())))
		s.syncHealth()
	}()

	if s.cache != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.cache.Ping(pingCtx)
		cancel()
		if err != nil {
			s.logger.Warn("Reply cache unreachable, lookups will miss", zap.Error(err))
		}
	}

	if err := s.gateway.Initialize(ctx); err != nil {
		s.logger.Warn("Serving degraded", zap.Error(err))
	}
}

// Run serves HTTP and gRPC until ctx is done, then shuts everything down
func (s *Server) Run(ctx context.Context) error {
	cfg := s.config.Server
	httpServer := &stdhttp.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var lis net.Listener
	if cfg.GRPCEnabled {
		var err error
		lis, err = net.Listen("tcp", net.JoinHostPort(cfg.Host, cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port %s: %w", cfg.GRPCPort, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if lis != nil {
		g.Go(func() error {
			s.logger.Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
			if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s.syncHealth()
			}
		}
	})

	g.Go(func() error {
		s.Initialize(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return s.shutdown(shutdownCtx, httpServer)
	})

	return g.Wait()
}

func (s *Server) shutdown(ctx context.Context, httpServer *stdhttp.Server) error {
	s.logger.Info("Shutting down server...")
	s.health.Shutdown()

	var errs []error
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}

	if err := s.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close shuts the gateway down and releases supporting resources. It is safe
// to call on a server that never ran.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if s.gateway != nil {
		if err := s.gateway.Close(ctx); err != nil {
			s.logger.Error("Failed to close gateway", zap.Error(err))
			errs = append(errs, err)
		}
	}
	s.release()
	return errors.Join(errs...)
}

func (s *Server) release() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("Failed to close reply cache", zap.Error(err))
		}
		s.cache = nil
	}
	if s.scripts != nil {
		s.scripts.Close()
		s.scripts = nil
	}
	s.tracer.Close()
	s.logger.Sync()
}
