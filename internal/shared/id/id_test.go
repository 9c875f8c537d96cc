package id

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	a := gen.Generate()
	b := gen.Generate()

	assert.NotEqual(t, a.String(), b.String())
	assert.Len(t, gen.GenerateString(), 26)
}

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		prefix string
	}{
		{"request", NewRequestID().String(), "req_"},
		{"session", NewSessionID().String(), "sess_"},
		{"span", NewSpanID().String(), "span_"},
		{"completion", NewCompletionID().String(), "chatcmpl-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, strings.HasPrefix(tt.value, tt.prefix), tt.value)
			assert.True(t, IsValid(strings.TrimPrefix(tt.value, tt.prefix)))
		})
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(NewGenerator().GenerateString()))

	for _, bad := range []string{"", "invalid", "1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		assert.False(t, IsValid(bad), bad)
	}
}

func TestTimestampOfPrefixedID(t *testing.T) {
	before := time.Now().UnixMilli()
	cid := NewCompletionID()
	after := time.Now().UnixMilli()

	ts, err := Timestamp(cid.String())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ts.UnixMilli(), before)
	assert.LessOrEqual(t, ts.UnixMilli(), after)
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"client supplied", "abc-123", true},
		{"empty", "", false},
		{"whitespace inside", "abc 123", false},
		{"too long", strings.Repeat("x", 200), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Accept(tt.header)
			if tt.keep {
				assert.Equal(t, RequestID(tt.header), got)
				return
			}
			assert.True(t, strings.HasPrefix(got.String(), "req_"))
		})
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const perGoroutine = 100

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, goroutines*perGoroutine)
	)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				s := gen.GenerateString()
				mu.Lock()
				seen[s] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestRequestIDContext(t *testing.T) {
	assert.Empty(t, RequestIDFrom(context.Background()))

	rid := NewRequestID()
	ctx := WithRequestID(context.Background(), rid)
	assert.Equal(t, rid, RequestIDFrom(ctx))
}
