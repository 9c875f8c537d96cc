package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/chatgate/internal/infrastructure/resilience"
)

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, UserAgent: "test-agent"})
	resp, err := c.Execute(context.Background(), func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/")
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.String())
	assert.Equal(t, uint32(1), c.BreakerCounts().TotalSuccesses)
}

func TestExecuteRejectedStatus(t *testing.T) {
	tests := []struct {
		code     int
		rejected bool
	}{
		{http.StatusOK, false},
		{http.StatusNotFound, false},
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL})
			resp, err := c.Execute(context.Background(), func(r *resty.Request) (*resty.Response, error) {
				return r.Post("/chat")
			})
			require.NotNil(t, resp)
			assert.Equal(t, tt.code, resp.StatusCode())
			if !tt.rejected {
				assert.NoError(t, err)
				return
			}
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.code, statusErr.Code)
		})
	}
}

func TestRetriesOnlyIdempotentRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Retries: 2, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond})

	_, err := c.Execute(context.Background(), func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/")
	})
	assert.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())

	hits.Store(0)
	_, err = c.Execute(context.Background(), func(r *resty.Request) (*resty.Response, error) {
		return r.Post("/")
	})
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestOpenBreakerRejectsRequests(t *testing.T) {
	breaker := resilience.New("test", resilience.Settings{
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 1 },
		Timeout:     time.Hour,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Breaker: breaker})
	_, err := c.Execute(context.Background(), func(r *resty.Request) (*resty.Response, error) {
		return r.Post("/")
	})
	require.Error(t, err)
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	_, err = c.Request(context.Background())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	_, err = c.Execute(context.Background(), func(r *resty.Request) (*resty.Response, error) {
		return r.Post("/")
	})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestCookiesPersistUntilReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			return
		}
		if c, err := r.Cookie("sid"); err == nil {
			w.Write([]byte(c.Value))
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	get := func(path string) string {
		resp, err := c.Execute(context.Background(), func(r *resty.Request) (*resty.Response, error) {
			return r.Get(path)
		})
		require.NoError(t, err)
		return resp.String()
	}

	get("/set")
	assert.Equal(t, "abc", get("/read"))

	c.ResetCookies()
	assert.Empty(t, get("/read"))
}
