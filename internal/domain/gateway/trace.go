package gateway

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
)

// RequestState is the lifecycle state of one chat completion request
type RequestState string

const (
	StateReceived    RequestState = "received"
	StateAcquiring   RequestState = "acquiring"
	StateInteracting RequestState = "interacting"
	StateCompleted   RequestState = "completed"
	StateTimedOut    RequestState = "timed_out"
	StateFailed      RequestState = "failed"
)

// Terminal reports whether no further transition is possible
func (s RequestState) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateFailed
}

var transitions = map[RequestState][]RequestState{
	StateReceived:    {StateAcquiring, StateCompleted, StateFailed, StateTimedOut},
	StateAcquiring:   {StateInteracting, StateFailed, StateTimedOut},
	StateInteracting: {StateCompleted, StateFailed, StateTimedOut},
}

// requestTrace follows one request through its states and reports each
// stage duration.
type requestTrace struct {
	logger  *zap.Logger
	metrics Metrics
	now     func() time.Time

	model   string
	stream  bool
	state   RequestState
	start   time.Time
	entered time.Time
	history []RequestState
}

func newRequestTrace(logger *zap.Logger, metrics Metrics, now func() time.Time, req chat.ChatRequest) *requestTrace {
	t := now()
	tr := &requestTrace{
		logger:  logger,
		metrics: metrics,
		now:     now,
		model:   req.Model,
		stream:  req.Stream,
		state:   StateReceived,
		start:   t,
		entered: t,
		history: []RequestState{StateReceived},
	}
	tr.logger.Debug("chat completion received", zap.Bool("stream", req.Stream), zap.Int("messages", len(req.Messages)))
	return tr
}

func (t *requestTrace) to(next RequestState) {
	allowed := false
	for _, s := range transitions[t.state] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		t.logger.Error("invalid request state transition",
			zap.String("from", string(t.state)),
			zap.String("to", string(next)),
		)
		return
	}

	now := t.now()
	t.metrics.RecordStage(string(t.state), now.Sub(t.entered))
	t.state = next
	t.entered = now
	t.history = append(t.history, next)

	if next.Terminal() {
		t.metrics.RecordCompletion(t.model, t.stream, string(next), now.Sub(t.start))
		return
	}
	t.logger.Debug("request state", zap.String("state", string(next)))
}

func (t *requestTrace) complete(content string) {
	t.to(StateCompleted)
	t.logger.Info("chat completion finished",
		zap.String("model", t.model),
		zap.Bool("stream", t.stream),
		zap.Int("words", chat.WordCount(content)),
		zap.Duration("duration", t.now().Sub(t.start)),
	)
}

func (t *requestTrace) fail(err *chat.Error) {
	next := StateFailed
	if err.Kind == chat.KindTimeout {
		next = StateTimedOut
	}
	t.to(next)

	fields := []zap.Field{
		zap.String("model", t.model),
		zap.String("kind", string(err.Kind)),
		zap.Duration("duration", t.now().Sub(t.start)),
		zap.Error(err),
	}
	switch err.Kind {
	case chat.KindValidation, chat.KindCanceled:
		t.logger.Info("chat completion rejected", fields...)
	default:
		t.logger.Warn("chat completion failed", fields...)
	}
}
