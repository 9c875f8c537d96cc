package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Config configures the redis reply cache
type Config struct {
	Addr        string
	Password    string
	DB          int
	TTL         time.Duration
	DialTimeout time.Duration
}

// entry is the stored form of a reply
type entry struct {
	Content  string `json:"content"`
	StoredAt int64  `json:"stored_at"`
}

// RedisCache stores parsed replies keyed by prompt digest
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisCache creates a redis-backed reply cache. Nothing is dialed until
// the first command.
func NewRedisCache(cfg Config) *RedisCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: cfg.DialTimeout,
		}),
		ttl: cfg.TTL,
		now: time.Now,
	}
}

// Get returns the cached reply and true, or false on a miss
func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis_cache: get: %w", err)
	}

	e, err := decodeEntry(val)
	if err != nil {
		return "", false, err
	}
	return e.Content, true, nil
}

// Set stores a reply. A non-positive ttl uses the configured default.
func (r *RedisCache) Set(ctx context.Context, key, content string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	data, err := encodeEntry(entry{Content: content, StoredAt: r.now().Unix()})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis_cache: set: %w", err)
	}
	return nil
}

// Ping checks the redis connection
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the redis connection
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func encodeEntry(e entry) ([]byte, error) {
	data, err := sonic.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("redis_cache: marshal: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (entry, error) {
	var e entry
	if err := sonic.Unmarshal(data, &e); err != nil {
		return entry{}, fmt.Errorf("redis_cache: unmarshal: %w", err)
	}
	return e, nil
}
