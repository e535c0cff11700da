// Package circuitbreaker fails model calls fast while the model service keeps
// failing, and probes it again after a cool-down.
//
// The breaker sits outside the retry middleware, so one recorded failure is a
// call that exhausted its retries. Closed counts consecutive failures; at the
// threshold it opens. Open rejects calls until OpenTimeout has passed since
// the last failure, then admits a bounded number of half-open probes. A probe
// failure reopens; SuccessThreshold probe successes close it again.
package circuitbreaker

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-grader/internal/llm/configuration"
)

// State is the breaker's position in its state machine.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is safe for concurrent use. All state lives in atomics.
type Breaker struct {
	state           atomic.Int32
	failures        atomic.Int32
	successes       atomic.Int32
	probes          atomic.Int32
	lastFailureNano atomic.Int64

	cfg    configuration.BreakerConfig
	now    func() time.Time
	logger *slog.Logger
	stats  breakerStats
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

// New builds a closed breaker.
func New(cfg configuration.BreakerConfig, opts ...Option) *Breaker {
	b := &Breaker{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "circuit_breaker")
	b.state.Store(int32(StateClosed))
	return b
}

// State reports the current state.
func (b *Breaker) State() State { return State(b.state.Load()) }

// allow admits or rejects a call. When admitted, release must be called once
// the call finishes.
func (b *Breaker) allow() (release func(), ok bool) {
	for {
		state := State(b.state.Load())
		switch state {
		case StateClosed:
			b.stats.allowed.Add(1)
			return func() {}, true

		case StateOpen:
			last := time.Unix(0, b.lastFailureNano.Load())
			if b.now().Sub(last) < b.cfg.OpenTimeout {
				b.stats.rejected.Add(1)
				return nil, false
			}
			if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
				b.successes.Store(0)
				b.probes.Store(0)
				b.transitioned(StateOpen, StateHalfOpen)
			}

		case StateHalfOpen:
			cur := b.probes.Load()
			if int(cur) >= b.cfg.HalfOpenProbes {
				b.stats.rejected.Add(1)
				return nil, false
			}
			if b.probes.CompareAndSwap(cur, cur+1) {
				b.stats.allowed.Add(1)
				b.stats.probes.Add(1)
				return b.releaseProbe, true
			}
		}
	}
}

// releaseProbe frees a half-open slot, saturating at zero when a transition
// already reset the counter.
func (b *Breaker) releaseProbe() {
	for {
		cur := b.probes.Load()
		if cur == 0 || b.probes.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (b *Breaker) recordSuccess() {
	switch State(b.state.Load()) {
	case StateClosed:
		b.failures.Store(0)
	case StateHalfOpen:
		if int(b.successes.Add(1)) < b.cfg.SuccessThreshold {
			return
		}
		if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
			b.failures.Store(0)
			b.successes.Store(0)
			b.probes.Store(0)
			b.transitioned(StateHalfOpen, StateClosed)
		}
	}
}

func (b *Breaker) recordFailure() {
	b.lastFailureNano.Store(b.now().UnixNano())

	switch State(b.state.Load()) {
	case StateClosed:
		if int(b.failures.Add(1)) < b.cfg.FailureThreshold {
			return
		}
		if b.state.CompareAndSwap(int32(StateClosed), int32(StateOpen)) {
			b.failures.Store(0)
			b.transitioned(StateClosed, StateOpen)
		}
	case StateHalfOpen:
		if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
			b.successes.Store(0)
			b.probes.Store(0)
			b.transitioned(StateHalfOpen, StateOpen)
		}
	}
}

func (b *Breaker) transitioned(from, to State) {
	b.stats.transitions.Add(1)
	b.logger.Info("circuit breaker state transition", "from", from.String(), "to", to.String())
}
