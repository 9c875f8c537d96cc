package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Pool        PoolConfig
	Gateway     GatewayConfig
	Site        SiteConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
	Auth        AuthConfig
	Cache       CacheConfig
	Compression CompressionConfig
}

// ServerConfig holds HTTP and gRPC listener configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	GRPCPort        string        `envconfig:"GRPC_PORT" default:"50051"`
	GRPCEnabled     bool          `envconfig:"GRPC_ENABLED" default:"true"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"20s"`
}

// PoolConfig holds browser session pool configuration.
// MinSpacing is the site-wide floor between two dispatches; the site
// tolerates roughly four to five requests per minute.
type PoolConfig struct {
	MaxSessions    int           `envconfig:"POOL_MAX_SESSIONS" default:"2"`
	MinSpacing     time.Duration `envconfig:"POOL_MIN_SPACING" default:"12s"`
	AcquireTimeout time.Duration `envconfig:"POOL_ACQUIRE_TIMEOUT" default:"100s"`
	MaxFailures    int           `envconfig:"POOL_MAX_FAILURES" default:"3"`
	WarmOnStart    int           `envconfig:"POOL_WARM_ON_START" default:"1"`
	WarmTimeout    time.Duration `envconfig:"POOL_WARM_TIMEOUT" default:"45s"`
	WarmAttempts   int           `envconfig:"POOL_WARM_ATTEMPTS" default:"3"`
	ShutdownGrace  time.Duration `envconfig:"POOL_SHUTDOWN_GRACE" default:"10s"`
}

// GatewayConfig holds per-request behavior.
type GatewayConfig struct {
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"120s"`
	InteractionTimeout time.Duration `envconfig:"INTERACTION_TIMEOUT" default:"60s"`
	StreamInterval     time.Duration `envconfig:"STREAM_INTERVAL" default:"100ms"`
	DefaultModel       string        `envconfig:"DEFAULT_MODEL" default:"toolbaz-v4.5-fast"`
	PassthroughModels  []string      `envconfig:"PASSTHROUGH_MODELS" default:"*"`
}

// SiteConfig points at the target site profile.
type SiteConfig struct {
	ProfilePath string `envconfig:"SITE_PROFILE"`
	BaseURL     string `envconfig:"SITE_BASE_URL"`
	UserAgent   string `envconfig:"SITE_USER_AGENT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds inbound rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"10"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"20"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// AuthConfig lists accepted API keys. Entries may be bcrypt hashes.
// An empty list disables authentication.
type AuthConfig struct {
	APIKeys []string `envconfig:"API_KEYS"`
}

// CacheConfig configures the optional redis reply cache.
type CacheConfig struct {
	Enabled  bool          `envconfig:"CACHE_ENABLED" default:"false"`
	Addr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"CACHE_TTL" default:"10m"`
}

// CompressionConfig toggles gzip for buffered responses.
type CompressionConfig struct {
	Enabled bool `envconfig:"COMPRESSION_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			GRPCPort:        "50051",
			GRPCEnabled:     true,
			ShutdownTimeout: 20 * time.Second,
		},
		Pool: PoolConfig{
			MaxSessions:    2,
			MinSpacing:     12 * time.Second,
			AcquireTimeout: 100 * time.Second,
			MaxFailures:    3,
			WarmOnStart:    1,
			WarmTimeout:    45 * time.Second,
			WarmAttempts:   3,
			ShutdownGrace:  10 * time.Second,
		},
		Gateway: GatewayConfig{
			RequestTimeout:     120 * time.Second,
			InteractionTimeout: 60 * time.Second,
			StreamInterval:     100 * time.Millisecond,
			DefaultModel:       "toolbaz-v4.5-fast",
			PassthroughModels:  []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			Enabled:           true,
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
			TTL:  10 * time.Minute,
		},
		Compression: CompressionConfig{
			Enabled: true,
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.Pool.MaxSessions < 1 {
		errs = append(errs, errors.New("POOL_MAX_SESSIONS must be at least 1"))
	}
	if c.Pool.MaxFailures < 1 {
		errs = append(errs, errors.New("POOL_MAX_FAILURES must be at least 1"))
	}
	if c.Pool.MinSpacing < 0 {
		errs = append(errs, errors.New("POOL_MIN_SPACING must not be negative"))
	}
	if c.Pool.WarmOnStart > c.Pool.MaxSessions {
		errs = append(errs, errors.New("POOL_WARM_ON_START exceeds POOL_MAX_SESSIONS"))
	}
	if c.Gateway.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.Gateway.InteractionTimeout > c.Gateway.RequestTimeout {
		errs = append(errs, errors.New("INTERACTION_TIMEOUT must not exceed REQUEST_TIMEOUT"))
	}
	if c.Pool.AcquireTimeout > c.Gateway.RequestTimeout {
		errs = append(errs, errors.New("POOL_ACQUIRE_TIMEOUT must not exceed REQUEST_TIMEOUT"))
	}
	if c.Gateway.StreamInterval < 0 {
		errs = append(errs, errors.New("STREAM_INTERVAL must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
