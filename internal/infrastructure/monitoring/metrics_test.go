package monitoring

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
	"github.com/GriffinCanCode/chatgate/internal/domain/gateway"
	"github.com/GriffinCanCode/chatgate/internal/domain/pool"
)

var (
	_ pool.Metrics    = (*Metrics)(nil)
	_ gateway.Metrics = (*Metrics)(nil)
)

func value(t *testing.T, metric prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, metric.Write(&out))
	if c := out.GetCounter(); c != nil {
		return c.GetValue()
	}
	return out.GetGauge().GetValue()
}

func seriesCount(t *testing.T, m *Metrics, name string) int {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return len(f.GetMetric())
		}
	}
	return 0
}

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.RecordRelease("success")
	assert.Equal(t, 1.0, value(t, a.ReleaseTotal.WithLabelValues("success")))
	assert.Equal(t, 0.0, value(t, b.ReleaseTotal.WithLabelValues("success")))
}

func TestPoolMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordAcquire(20*time.Millisecond, "granted")
	m.RecordWarm(time.Second, nil)
	m.RecordWarm(time.Second, chat.Unavailable("down", nil))
	m.RecordInteraction(time.Second, chat.Timeout("slow", nil))
	m.SetSessionStates(map[string]int{"ready": 2, "busy": 1})

	assert.Equal(t, 1.0, value(t, m.AcquireTotal.WithLabelValues("granted")))
	assert.Equal(t, 1.0, value(t, m.WarmTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, value(t, m.WarmTotal.WithLabelValues(string(chat.KindUnavailable))))
	assert.Equal(t, 1.0, value(t, m.InteractionTotal.WithLabelValues(string(chat.KindTimeout))))
	assert.Equal(t, 2.0, value(t, m.Sessions.WithLabelValues("ready")))
	assert.Equal(t, 1.0, value(t, m.Sessions.WithLabelValues("busy")))
}

func TestGatewayMetricsAndSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordCompletion("gpt-5", false, "completed", 2*time.Second)
	m.RecordCompletion("gpt-5", true, "timed_out", 4*time.Second)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordStage("acquiring", time.Second)
	NewTimer(m, "initialize").Stop()

	assert.Equal(t, 1.0, value(t, m.CompletionsTotal.WithLabelValues("gpt-5", "true", "timed_out")))
	assert.Equal(t, 1.0, value(t, m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, value(t, m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 2, seriesCount(t, m, "chatgate_gateway_stage_duration_seconds"))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Completions)
	assert.Equal(t, int64(1), snap.CompletionErrors)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.InDelta(t, 3.0, snap.AvgCompletionSec, 1e-9)
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/v1/models/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	for _, path := range []string{"/v1/models/a", "/v1/models/b", "/nope"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, value(t, m.RequestsTotal.WithLabelValues("GET", "/v1/models/:id", "200")))
	assert.Equal(t, 1.0, value(t, m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, int64(1), m.Snapshot().TotalErrors)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(string(body), "chatgate_http_requests_total"))
	assert.True(t, strings.Contains(string(body), "chatgate_uptime_seconds"))
}

func TestUnaryServerInterceptor(t *testing.T) {
	m := NewMetrics()
	intercept := UnaryServerInterceptor(m)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := intercept(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	_, err = intercept(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Unavailable, "down")
	})
	require.Error(t, err)

	assert.Equal(t, 1.0, value(t, m.GRPCCalls.WithLabelValues(info.FullMethod, "OK")))
	assert.Equal(t, 1.0, value(t, m.GRPCCalls.WithLabelValues(info.FullMethod, "Unavailable")))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, string(chat.KindInternal), resultLabel(errors.New("boom")))
	assert.Equal(t, string(chat.KindParse), resultLabel(chat.Parse("bad", nil)))
}
