package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryEncoding(t *testing.T) {
	data, err := encodeEntry(entry{Content: "Hello\nthere", StoredAt: 1700000000})
	require.NoError(t, err)

	e, err := decodeEntry(data)
	require.NoError(t, err)
	assert.Equal(t, "Hello\nthere", e.Content)
	assert.Equal(t, int64(1700000000), e.StoredAt)

	_, err = decodeEntry([]byte("not json"))
	assert.ErrorContains(t, err, "redis_cache: unmarshal")
}

func TestDefaults(t *testing.T) {
	c := NewRedisCache(Config{Addr: "127.0.0.1:1"})
	defer c.Close()
	assert.Equal(t, 10*time.Minute, c.ttl)
}

func TestUnreachableServerIsAnError(t *testing.T) {
	c := NewRedisCache(Config{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, hit, err := c.Get(ctx, "chatgate:reply:abc")
	assert.False(t, hit)
	assert.ErrorContains(t, err, "redis_cache: get")

	err = c.Set(ctx, "chatgate:reply:abc", "x", 0)
	assert.ErrorContains(t, err, "redis_cache: set")

	assert.Error(t, c.Ping(ctx))
}
