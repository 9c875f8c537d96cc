// Package id generates the identifiers used across the gateway.
//
// All identifiers are ULIDs so they sort by creation time in logs. Typed
// wrappers keep request, session and completion ids from being mixed up:
//   - req_<ulid>       inbound HTTP / websocket requests
//   - sess_<ulid>      pooled browser sessions
//   - span_<ulid>      tracing spans
//   - chatcmpl-<ulid>  OpenAI-style completion ids returned to callers
package id

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies an inbound request
type RequestID string

// SessionID identifies a pooled browser session
type SessionID string

// SpanID identifies a tracing span
type SpanID string

// CompletionID identifies a chat completion returned to a caller
type CompletionID string

const (
	RequestPrefix    = "req"
	SessionPrefix    = "sess"
	SpanPrefix       = "span"
	CompletionPrefix = "chatcmpl"
)

// Generator produces monotonic ULIDs from a shared entropy source
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic output.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string joined by sep
func (g *Generator) GenerateWithPrefix(prefix, sep string) string {
	return fmt.Sprintf("%s%s%s", prefix, sep, g.GenerateString())
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix, "_"))
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix, "_"))
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(Default().GenerateWithPrefix(SpanPrefix, "_"))
}

// NewCompletionID generates an OpenAI-style completion id
func NewCompletionID() CompletionID {
	return CompletionID(Default().GenerateWithPrefix(CompletionPrefix, "-"))
}

func (id RequestID) String() string    { return string(id) }
func (id SessionID) String() string    { return string(id) }
func (id SpanID) String() string       { return string(id) }
func (id CompletionID) String() string { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string, stripping a known prefix if present
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(strip(id))
}

// Timestamp extracts the creation time from a (prefixed) ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// Accept returns the caller-supplied request id when it is usable,
// otherwise a freshly generated one.
func Accept(header string) RequestID {
	header = strings.TrimSpace(header)
	if header == "" || len(header) > 128 || strings.ContainsAny(header, " \t\r\n") {
		return NewRequestID()
	}
	return RequestID(header)
}

type requestIDKey struct{}

// WithRequestID stores the request id in ctx
func WithRequestID(ctx context.Context, rid RequestID) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestIDFrom returns the request id carried by ctx, or ""
func RequestIDFrom(ctx context.Context) RequestID {
	rid, _ := ctx.Value(requestIDKey{}).(RequestID)
	return rid
}

func strip(id string) string {
	if i := strings.LastIndexAny(id, "_-"); i >= 0 {
		return id[i+1:]
	}
	return id
}
