package pool

import (
	"context"
	"time"

	"github.com/GriffinCanCode/chatgate/internal/domain/chat"
	"github.com/GriffinCanCode/chatgate/internal/shared/id"
)

// State is the lifecycle state of a Session
type State int

const (
	StateCold State = iota
	StateWarming
	StateReady
	StateBusy
	StateDegraded
	StateClosed
)

var stateNames = [...]string{"cold", "warming", "ready", "busy", "degraded", "closed"}

// String returns the lowercase state name
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// States lists every state in lifecycle order
func States() []State {
	return []State{StateCold, StateWarming, StateReady, StateBusy, StateDegraded, StateClosed}
}

// Driver is the narrow capability an automated browsing context offers.
// Warm must be idempotent and safe to retry. Teardown must tolerate being
// called on a context that never warmed.
type Driver interface {
	Warm(ctx context.Context) error
	Interact(ctx context.Context, script chat.SiteScript) (chat.RawReply, error)
	Teardown(ctx context.Context) error
}

// DriverFactory builds the driver for a new session
type DriverFactory func(sessionID id.SessionID) Driver

// Session is one pooled browsing context. Its mutable fields are guarded by
// the owning pool's mutex; callers only see it between Acquire and Release.
type Session struct {
	id     id.SessionID
	driver Driver
	pool   *Pool

	state       State
	lastUsed    time.Time
	failures    int
	warmStarted time.Time
}

// ID returns the session handle
func (s *Session) ID() id.SessionID {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	return s.state
}

// Failures returns the consecutive-failure counter
func (s *Session) Failures() int {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	return s.failures
}

// LastUsed returns when the session was last acquired or released
func (s *Session) LastUsed() time.Time {
	s.pool.mu.Lock()
	defer s.pool.mu.Unlock()
	return s.lastUsed
}

// Interact runs one site interaction on the session. The call is aborted
// when ctx ends or when the pool is forcibly shut down.
func (s *Session) Interact(ctx context.Context, script chat.SiteScript) (chat.RawReply, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.pool.runCtx, cancel)
	defer stop()

	start := s.pool.now()
	reply, err := s.driver.Interact(ctx, script)
	s.pool.recordInteraction(s.pool.now().Sub(start), err)
	return reply, err
}
