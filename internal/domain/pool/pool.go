package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
	"github.com/GriffinCanCode/chatgate/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/chatgate/internal/shared/id"
)

var (
	ErrPoolClosed     = errors.New("session pool is closed")
	ErrExhausted      = errors.New("no healthy session available")
	ErrAcquireTimeout = errors.New("timed out waiting for a session")
	ErrWarmFailed     = errors.New("session warm-up failed")
)

// Outcome reports how a session's interaction went
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	// OutcomeAborted means the caller gave up; the session is not blamed.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeAborted:
		return "aborted"
	}
	return "unknown"
}

// OutcomeFor classifies an interaction error for Release
func OutcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled):
		return OutcomeAborted
	default:
		return OutcomeFailure
	}
}

// Config controls pool sizing, pacing and failure handling
type Config struct {
	MaxSessions    int
	MinSpacing     time.Duration
	AcquireTimeout time.Duration
	MaxFailures    int
	WarmTimeout    time.Duration
	WarmAttempts   int
	ShutdownGrace  time.Duration
	// Breaker guards warm-ups; zero values take the package defaults.
	Breaker resilience.Settings
}

// DefaultConfig returns the production pool configuration
func DefaultConfig() Config {
	return Config{
		MaxSessions:    2,
		MinSpacing:     12 * time.Second,
		AcquireTimeout: 100 * time.Second,
		MaxFailures:    3,
		WarmTimeout:    45 * time.Second,
		WarmAttempts:   3,
		ShutdownGrace:  10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxSessions <= 0 {
		c.MaxSessions = def.MaxSessions
	}
	if c.MinSpacing < 0 {
		c.MinSpacing = 0
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = def.AcquireTimeout
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = def.MaxFailures
	}
	if c.WarmTimeout <= 0 {
		c.WarmTimeout = def.WarmTimeout
	}
	if c.WarmAttempts <= 0 {
		c.WarmAttempts = 1
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = def.ShutdownGrace
	}
	if c.Breaker.ReadyToTrip == nil {
		c.Breaker.ReadyToTrip = func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
	return c
}

// Metrics receives pool events. Implementations must not call back into the pool.
type Metrics interface {
	RecordAcquire(wait time.Duration, result string)
	RecordWarm(duration time.Duration, err error)
	RecordRelease(outcome string)
	RecordInteraction(duration time.Duration, err error)
	SetSessionStates(counts map[string]int)
}

type grant struct {
	session *Session
	err     error
}

type waiter struct {
	ch   chan grant
	elem *list.Element
}

// Pool hands out browser sessions under concurrency, pacing and failure limits
type Pool struct {
	cfg     Config
	factory DriverFactory
	logger  *zap.Logger
	metrics Metrics
	breaker *resilience.Breaker
	limiter *rate.Limiter
	now     func() time.Time

	runCtx    context.Context
	runCancel context.CancelFunc
	warmers   sync.WaitGroup

	mu       sync.Mutex
	sessions map[id.SessionID]*Session
	idle     []*Session
	waiters  *list.List
	busy     int
	closed   bool
	drained  chan struct{}
	warmEWMA time.Duration
	lastErr  error
	counters counters
	latency  *latencyWindow

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an empty pool. Sessions are created lazily or by Warm.
func New(cfg Config, factory DriverFactory, logger *zap.Logger) *Pool {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.MinSpacing > 0 {
		limit = rate.Every(cfg.MinSpacing)
	}

	p := &Pool{
		cfg:      cfg,
		factory:  factory,
		logger:   logger,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
		sessions: make(map[id.SessionID]*Session),
		waiters:  list.New(),
		latency:  newLatencyWindow(256),
	}
	p.runCtx, p.runCancel = context.WithCancel(context.Background())

	breakerSettings := cfg.Breaker
	userHook := breakerSettings.OnStateChange
	breakerSettings.OnStateChange = func(name string, from, to resilience.State) {
		p.logger.Warn("site breaker changed state",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	p.breaker = resilience.New("site-warm", breakerSettings)

	return p
}

// WithMetrics attaches a metrics sink
func (p *Pool) WithMetrics(m Metrics) *Pool {
	p.metrics = m
	return p
}

// Config returns the effective configuration
func (p *Pool) Config() Config {
	return p.cfg
}

// Warm creates one session (if below MaxSessions) and warms it synchronously.
// It returns nil without work when the pool is already full.
func (p *Pool) Warm(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return chat.Unavailable("session pool is closed", ErrPoolClosed)
	}
	if len(p.sessions) >= p.cfg.MaxSessions {
		p.mu.Unlock()
		return nil
	}
	s := p.newSessionLocked()
	p.mu.Unlock()

	return p.warmSession(ctx, s)
}

// Acquire blocks until a ready session is handed to the caller, the timeout
// elapses or ctx ends. A zero timeout uses Config.AcquireTimeout. When ctx
// carries a deadline the wait ends slightly before it, so exhaustion is
// reported while the caller can still answer.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Session, error) {
	start := p.now()
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}
	if err := ctx.Err(); err != nil {
		return nil, p.contextError(err, start)
	}
	budget, deadline := p.budget(ctx, timeout)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.recordAcquire(start, "closed")
		return nil, chat.Unavailable("session pool is closed", ErrPoolClosed)
	}
	if s := p.takeIdleLocked(); s != nil {
		p.markBusyLocked(s)
		p.mu.Unlock()
		return p.dispatch(ctx, s, start)
	}

	p.growLocked()
	if err := p.hopelessLocked(deadline); err != nil {
		p.mu.Unlock()
		p.recordAcquire(start, string(chat.KindOf(err)))
		return nil, err
	}

	w := &waiter{ch: make(chan grant, 1)}
	w.elem = p.waiters.PushBack(w)
	p.mu.Unlock()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case g := <-w.ch:
		if g.err != nil {
			p.recordAcquire(start, string(chat.KindOf(g.err)))
			return nil, g.err
		}
		return p.dispatch(ctx, g.session, start)
	case <-timer.C:
		return nil, p.abandon(w, nil, start)
	case <-ctx.Done():
		return nil, p.abandon(w, ctx.Err(), start)
	}
}

// Release returns a session taken by Acquire
func (p *Pool) Release(s *Session, outcome Outcome) {
	if s == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if s.state != StateBusy {
		p.logger.Warn("release of a session that is not busy",
			zap.String("session_id", s.id.String()),
			zap.String("state", s.state.String()),
		)
		return
	}

	p.busy--
	s.lastUsed = p.now()
	p.counters.released++
	if p.metrics != nil {
		p.metrics.RecordRelease(outcome.String())
	}

	if p.closed {
		p.returnLocked(s)
		return
	}

	switch outcome {
	case OutcomeSuccess:
		s.failures = 0
		p.handOffLocked(s)
	case OutcomeAborted:
		p.handOffLocked(s)
	default:
		s.failures++
		p.counters.failures++
		if s.failures >= p.cfg.MaxFailures {
			p.demoteLocked(s)
		} else {
			p.logger.Debug("session failure recorded",
				zap.String("session_id", s.id.String()),
				zap.Int("failures", s.failures),
			)
			p.handOffLocked(s)
		}
	}
	p.publishLocked()
}

// Healthy reports whether at least one session is ready or busy
func (p *Pool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.sessions {
		if s.state == StateReady || s.state == StateBusy {
			return true
		}
	}
	return false
}

// Shutdown closes the pool: waiters are rejected, idle sessions torn down and
// busy sessions given Config.ShutdownGrace (or until ctx ends) to be released
// before their interactions are canceled. A second call is a no-op.
func (p *Pool) Shutdown(ctx context.Context) error {
	first := false
	p.shutdownOnce.Do(func() {
		first = true
		p.shutdownErr = p.shutdown(ctx)
	})
	if !first {
		return nil
	}
	return p.shutdownErr
}

func (p *Pool) shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	closedErr := chat.Unavailable("session pool is closed", ErrPoolClosed)
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		w.elem = nil
		w.ch <- grant{err: closedErr}
	}
	p.waiters.Init()
	for _, s := range p.idle {
		s.state = StateClosed
	}
	p.idle = nil

	var drained chan struct{}
	if p.busy > 0 {
		drained = make(chan struct{})
		p.drained = drained
	}
	busy := p.busy
	p.publishLocked()
	p.mu.Unlock()

	p.logger.Info("shutting down session pool", zap.Int("busy", busy))

	if drained != nil {
		grace := time.NewTimer(p.cfg.ShutdownGrace)
		select {
		case <-drained:
		case <-grace.C:
			p.logger.Warn("shutdown grace elapsed, canceling in-flight interactions")
		case <-ctx.Done():
			p.logger.Warn("shutdown context ended, canceling in-flight interactions")
		}
		grace.Stop()
	}

	p.runCancel()
	p.warmers.Wait()

	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		s.state = StateClosed
		sessions = append(sessions, s)
	}
	p.sessions = make(map[id.SessionID]*Session)
	p.publishLocked()
	p.mu.Unlock()

	tctx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownGrace)
	defer cancel()

	g, gctx := errgroup.WithContext(tctx)
	for _, s := range sessions {
		g.Go(func() error {
			if err := s.driver.Teardown(gctx); err != nil {
				return fmt.Errorf("teardown %s: %w", s.id, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		p.logger.Error("session teardown failed", zap.Error(err))
	}
	p.logger.Info("session pool closed", zap.Int("sessions", len(sessions)))
	return err
}

// budget computes how long a waiter may block. With a ctx deadline the wait
// stops a small guard before it.
func (p *Pool) budget(ctx context.Context, timeout time.Duration) (time.Duration, time.Time) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return timeout, time.Time{}
	}

	remaining := deadline.Sub(p.now())
	guard := remaining / 20
	if guard < 5*time.Millisecond {
		guard = 5 * time.Millisecond
	}
	if guard > time.Second {
		guard = time.Second
	}

	budget := remaining - guard
	if budget > timeout {
		budget = timeout
	}
	if budget < 0 {
		budget = 0
	}
	return budget, deadline
}

func (p *Pool) dispatch(ctx context.Context, s *Session, start time.Time) (*Session, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		p.Release(s, OutcomeAborted)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, p.contextError(ctxErr, start)
		}
		p.recordAcquire(start, string(chat.KindTimeout))
		return nil, chat.Timeout("rate floor would push dispatch past the deadline", err)
	}

	p.recordAcquire(start, "ok")
	p.logger.Debug("session acquired",
		zap.String("session_id", s.id.String()),
		zap.Duration("wait", p.now().Sub(start)),
	)
	return s, nil
}

// abandon withdraws a waiter. If a session was granted concurrently it is
// passed on to the next waiter.
func (p *Pool) abandon(w *waiter, ctxErr error, start time.Time) error {
	p.mu.Lock()

	var granted error
	if w.elem != nil {
		p.waiters.Remove(w.elem)
		w.elem = nil
	} else {
		select {
		case g := <-w.ch:
			granted = g.err
			if g.session != nil {
				p.busy--
				p.counters.acquired--
				p.returnLocked(g.session)
			}
		default:
		}
	}

	var err error
	switch {
	case granted != nil:
		err = granted
	case errors.Is(ctxErr, context.Canceled):
		err = chat.Canceled(ctxErr)
	case p.healthyLocked() == 0:
		err = chat.Exhausted("no healthy session became available before the deadline", ErrExhausted)
	default:
		err = chat.Timeout("all sessions stayed busy until the deadline", ErrAcquireTimeout)
	}
	p.mu.Unlock()

	p.recordAcquire(start, string(chat.KindOf(err)))
	return err
}

func (p *Pool) contextError(err error, start time.Time) error {
	e := chat.AsError(err)
	p.recordAcquire(start, string(e.Kind))
	return e
}

func (p *Pool) takeIdleLocked() *Session {
	for len(p.idle) > 0 {
		s := p.idle[0]
		p.idle = p.idle[1:]
		if s.state == StateReady {
			return s
		}
	}
	return nil
}

func (p *Pool) markBusyLocked(s *Session) {
	s.state = StateBusy
	s.lastUsed = p.now()
	p.busy++
	p.counters.acquired++
	p.publishLocked()
}

// returnLocked puts back a session that was granted but not used
func (p *Pool) returnLocked(s *Session) {
	if p.closed {
		s.state = StateClosed
		if p.busy == 0 && p.drained != nil {
			close(p.drained)
			p.drained = nil
		}
	} else {
		p.handOffLocked(s)
	}
	p.publishLocked()
}

// handOffLocked makes s ready and gives it to the oldest waiter, if any
func (p *Pool) handOffLocked(s *Session) {
	s.state = StateReady
	if front := p.waiters.Front(); front != nil {
		w := p.waiters.Remove(front).(*waiter)
		w.elem = nil
		p.markBusyLocked(s)
		w.ch <- grant{session: s}
		return
	}
	p.idle = append(p.idle, s)
}

// growLocked starts warming another session when waiters outnumber the
// sessions already on their way to ready.
func (p *Pool) growLocked() {
	if len(p.sessions) >= p.cfg.MaxSessions || !p.breaker.Allow() {
		return
	}

	pending := 0
	for _, s := range p.sessions {
		if s.state == StateCold || s.state == StateWarming || s.state == StateDegraded {
			pending++
		}
	}
	if p.waiters.Len()+1 <= pending {
		return
	}

	s := p.newSessionLocked()
	p.warmers.Add(1)
	go func() {
		defer p.warmers.Done()
		_ = p.warmSession(p.runCtx, s)
	}()
}

// hopelessLocked fails an acquire early when no session can be ready in time
func (p *Pool) hopelessLocked(deadline time.Time) error {
	pending := 0
	var eta time.Time
	for _, s := range p.sessions {
		switch s.state {
		case StateReady, StateBusy:
			return nil
		case StateCold, StateWarming, StateDegraded:
			pending++
			if p.warmEWMA > 0 && !s.warmStarted.IsZero() {
				at := s.warmStarted.Add(p.warmEWMA)
				if eta.IsZero() || at.Before(eta) {
					eta = at
				}
			}
		}
	}

	if pending == 0 {
		return chat.Unavailable("site warm-up is failing", p.unavailableCauseLocked())
	}
	if !deadline.IsZero() && !eta.IsZero() && eta.After(deadline) {
		return chat.Exhausted("no session can be re-warmed before the deadline", ErrExhausted)
	}
	return nil
}

func (p *Pool) unavailableCauseLocked() error {
	if p.lastErr != nil {
		return p.lastErr
	}
	return resilience.ErrCircuitOpen
}

func (p *Pool) healthyLocked() int {
	n := 0
	for _, s := range p.sessions {
		if s.state == StateReady || s.state == StateBusy {
			n++
		}
	}
	return n
}

func (p *Pool) newSessionLocked() *Session {
	sid := id.NewSessionID()
	s := &Session{
		id:          sid,
		driver:      p.factory(sid),
		pool:        p,
		state:       StateWarming,
		warmStarted: p.now(),
	}
	p.sessions[sid] = s
	p.publishLocked()
	p.logger.Debug("session created", zap.String("session_id", sid.String()))
	return s
}

func (p *Pool) demoteLocked(s *Session) {
	s.state = StateDegraded
	s.warmStarted = p.now()
	p.counters.demotions++
	p.logger.Warn("session demoted after consecutive failures",
		zap.String("session_id", s.id.String()),
		zap.Int("failures", s.failures),
	)

	p.warmers.Add(1)
	go func() {
		defer p.warmers.Done()
		tctx, cancel := context.WithTimeout(p.runCtx, p.cfg.WarmTimeout)
		if err := s.driver.Teardown(tctx); err != nil {
			p.logger.Debug("teardown before re-warm failed",
				zap.String("session_id", s.id.String()),
				zap.Error(err),
			)
		}
		cancel()
		_ = p.warmSession(p.runCtx, s)
	}()
}

// warmSession brings s to ready, retrying through the site breaker. On
// failure the session is closed and its slot freed for lazy replacement.
func (p *Pool) warmSession(ctx context.Context, s *Session) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.WarmTimeout)
	defer cancel()
	stop := context.AfterFunc(p.runCtx, cancel)
	defer stop()

	start := p.now()
	retry := resilience.RetryConfig{
		Attempts:  p.cfg.WarmAttempts,
		BaseDelay: 250 * time.Millisecond,
		MaxDelay:  5 * time.Second,
	}
	err := resilience.Retry(ctx, retry, func(ctx context.Context) error {
		err := p.breaker.Execute(ctx, s.driver.Warm)
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return resilience.Permanent(err)
		}
		return err
	})
	elapsed := p.now().Sub(start)
	if p.metrics != nil {
		p.metrics.RecordWarm(elapsed, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		s.state = StateClosed
		p.publishLocked()
		return chat.Unavailable("session pool is closed", ErrPoolClosed)
	}

	if err != nil {
		s.state = StateClosed
		delete(p.sessions, s.id)
		p.lastErr = err
		p.counters.warmFailures++
		p.logger.Error("session warm-up failed",
			zap.String("session_id", s.id.String()),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		p.failWaitersLocked()
		p.publishLocked()

		p.warmers.Add(1)
		go func() {
			defer p.warmers.Done()
			tctx, cancel := context.WithTimeout(context.Background(), p.cfg.WarmTimeout)
			defer cancel()
			_ = s.driver.Teardown(tctx)
		}()
		return chat.Unavailable("site warm-up failed", fmt.Errorf("%w: %w", ErrWarmFailed, err))
	}

	if p.warmEWMA == 0 {
		p.warmEWMA = elapsed
	} else {
		p.warmEWMA = (p.warmEWMA*7 + elapsed*3) / 10
	}
	s.failures = 0
	s.warmStarted = time.Time{}
	p.lastErr = nil
	p.logger.Info("session ready",
		zap.String("session_id", s.id.String()),
		zap.Duration("warm", elapsed),
	)
	p.handOffLocked(s)
	p.publishLocked()
	return nil
}

// failWaitersLocked rejects every waiter when nothing can serve them
func (p *Pool) failWaitersLocked() {
	for _, s := range p.sessions {
		if s.state != StateClosed {
			return
		}
	}
	if p.waiters.Len() == 0 {
		return
	}

	err := chat.Unavailable("site warm-up failed", p.unavailableCauseLocked())
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		w.elem = nil
		w.ch <- grant{err: err}
	}
	p.waiters.Init()
}

func (p *Pool) recordAcquire(start time.Time, result string) {
	if p.metrics != nil {
		p.metrics.RecordAcquire(p.now().Sub(start), result)
	}
}

func (p *Pool) recordInteraction(d time.Duration, err error) {
	if err == nil {
		p.mu.Lock()
		p.latency.add(d)
		p.mu.Unlock()
	}
	if p.metrics != nil {
		p.metrics.RecordInteraction(d, err)
	}
}

func (p *Pool) publishLocked() {
	if p.metrics == nil {
		return
	}
	p.metrics.SetSessionStates(p.stateCountsLocked())
}

func (p *Pool) stateCountsLocked() map[string]int {
	counts := make(map[string]int, len(stateNames))
	for _, st := range States() {
		counts[st.String()] = 0
	}
	for _, s := range p.sessions {
		counts[s.state.String()]++
	}
	return counts
}
