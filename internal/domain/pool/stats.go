package pool

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

type counters struct {
	acquired     uint64
	released     uint64
	failures     uint64
	demotions    uint64
	warmFailures uint64
}

// Stats is a point-in-time snapshot of the pool
type Stats struct {
	MaxSessions  int            `json:"max_sessions"`
	Sessions     int            `json:"sessions"`
	States       map[string]int `json:"states"`
	Waiters      int            `json:"waiters"`
	Busy         int            `json:"busy"`
	Acquired     uint64         `json:"acquired"`
	Released     uint64         `json:"released"`
	Failures     uint64         `json:"failures"`
	Demotions    uint64         `json:"demotions"`
	WarmFailures uint64         `json:"warm_failures"`
	WarmEstimate time.Duration  `json:"warm_estimate_ns"`
	Breaker      string         `json:"breaker"`
	Closed       bool           `json:"closed"`
	Latency      LatencyStats   `json:"latency"`
}

// LatencyStats summarizes recent successful interactions
type LatencyStats struct {
	Samples int           `json:"samples"`
	P50     time.Duration `json:"p50_ns"`
	P95     time.Duration `json:"p95_ns"`
	P99     time.Duration `json:"p99_ns"`
}

// Stats returns a snapshot of pool state and counters
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	st := Stats{
		MaxSessions:  p.cfg.MaxSessions,
		Sessions:     len(p.sessions),
		States:       p.stateCountsLocked(),
		Waiters:      p.waiters.Len(),
		Busy:         p.busy,
		Acquired:     p.counters.acquired,
		Released:     p.counters.released,
		Failures:     p.counters.failures,
		Demotions:    p.counters.demotions,
		WarmFailures: p.counters.warmFailures,
		WarmEstimate: p.warmEWMA,
		Closed:       p.closed,
	}
	samples := p.latency.snapshot()
	p.mu.Unlock()

	st.Breaker = p.breaker.State().String()
	st.Latency = summarize(samples)
	return st
}

func summarize(samples []float64) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	slices.Sort(samples)

	q := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, samples, nil))
	}
	return LatencyStats{
		Samples: len(samples),
		P50:     q(0.50),
		P95:     q(0.95),
		P99:     q(0.99),
	}
}

// latencyWindow keeps the most recent interaction durations
type latencyWindow struct {
	buf  []float64
	next int
	full bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{buf: make([]float64, size)}
}

func (w *latencyWindow) add(d time.Duration) {
	w.buf[w.next] = float64(d)
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
}

func (w *latencyWindow) snapshot() []float64 {
	n := w.next
	if w.full {
		n = len(w.buf)
	}
	return slices.Clone(w.buf[:n])
}
