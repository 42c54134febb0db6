// Package resilience guards the remote speech backends.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) kept per
// backend. [FallbackGroup] orders a primary backend and its fallbacks and
// routes each call to the first one whose breaker admits it. [STTFallback] and
// [TTSFallback] put a group behind the [stt.Provider] and [tts.Provider]
// interfaces so the dialogue never knows failover happened.
//
// Cancellation is not a failure: a call that ends with context.Canceled does
// not count against the breaker, and a group stops trying further backends as
// soon as the caller's context is done.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. All probes
	// succeeding closes the breaker; any probe failing re-opens it.
	StateHalfOpen
)

// String returns the lower-case name used in logs and metric labels.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and in OnStateChange.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close.
	// Default: 1.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition with the
	// mutex released. It is how metrics observe breaker health.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	onChange     func(name string, from, to State)
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeOK     int
}

// NewCircuitBreaker creates a closed [CircuitBreaker]. Zero-value fields in
// cfg take their defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		onChange:     cfg.OnStateChange,
		now:          cfg.Now,
		state:        StateClosed,
	}
}

// Name returns the configured breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the breaker rejects the call, in which case it
// returns [ErrCircuitOpen] without calling fn. The error from fn is returned
// unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	var changed []transition
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		changed = append(changed, cb.setState(StateHalfOpen))
		cb.probes = 0
		cb.probeOK = 0
	}
	probing := cb.state == StateHalfOpen
	if probing {
		if cb.probes >= cb.halfOpenMax {
			cb.mu.Unlock()
			cb.notify(changed)
			return ErrCircuitOpen
		}
		cb.probes++
	}
	cb.mu.Unlock()
	cb.notify(changed)

	err := fn()

	cb.mu.Lock()
	var after transition
	switch {
	case err == nil:
		after = cb.recordSuccess(probing)
	case isCancellation(err):
		if probing {
			// Give the probe slot back; the backend was never judged.
			cb.probes--
		}
	default:
		after = cb.recordFailure(probing, err)
	}
	cb.mu.Unlock()
	cb.notify([]transition{after})
	return err
}

type transition struct {
	from, to State
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to State) transition {
	t := transition{from: cb.state, to: to}
	cb.state = to
	return t
}

func (cb *CircuitBreaker) notify(ts []transition) {
	for _, t := range ts {
		if t.from == t.to {
			continue
		}
		slog.Info("circuit breaker state change",
			"name", cb.name, "from", t.from.String(), "to", t.to.String())
		if cb.onChange != nil {
			cb.onChange(cb.name, t.from, t.to)
		}
	}
}

// recordFailure must be called with cb.mu held.
func (cb *CircuitBreaker) recordFailure(probing bool, err error) transition {
	cb.lastFailure = cb.now()
	if probing {
		cb.failures = cb.maxFailures
		return cb.setState(StateOpen)
	}
	cb.failures++
	if cb.failures >= cb.maxFailures && cb.state == StateClosed {
		slog.Warn("circuit breaker tripped",
			"name", cb.name, "consecutive_failures", cb.failures, "err", err)
		return cb.setState(StateOpen)
	}
	return transition{from: cb.state, to: cb.state}
}

// recordSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) recordSuccess(probing bool) transition {
	cb.failures = 0
	if !probing || cb.state != StateHalfOpen {
		return transition{from: cb.state, to: cb.state}
	}
	cb.probeOK++
	if cb.probeOK < cb.halfOpenMax {
		return transition{from: cb.state, to: cb.state}
	}
	cb.probes = 0
	cb.probeOK = 0
	return cb.setState(StateClosed)
}

// State reports the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.setState(StateClosed)
	cb.failures = 0
	cb.probes = 0
	cb.probeOK = 0
	cb.mu.Unlock()
	cb.notify([]transition{t})
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
