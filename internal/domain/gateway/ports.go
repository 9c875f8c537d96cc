package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
)

// ReplyCache stores parsed replies for identical non-streaming requests
type ReplyCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, content string, ttl time.Duration) error
}

// Metrics receives per-request observations
type Metrics interface {
	RecordCompletion(model string, stream bool, state string, duration time.Duration)
	RecordStage(stage string, duration time.Duration)
	RecordCacheLookup(hit bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordCompletion(string, bool, string, time.Duration) {}
func (nopMetrics) RecordStage(string, time.Duration)                    {}
func (nopMetrics) RecordCacheLookup(bool)                               {}

// CacheKey derives the reply cache key from the model and site prompt
func CacheKey(script chat.SiteScript) string {
	h := sha256.New()
	h.Write([]byte(script.Model))
	h.Write([]byte{0})
	h.Write([]byte(script.Prompt))
	return "chatgate:reply:" + hex.EncodeToString(h.Sum(nil))
}
