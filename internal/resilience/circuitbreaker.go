// Package resilience shields the voice pipeline from flaky provider
// backends. A [CircuitBreaker] stops hammering a backend that keeps
// failing, and a [FallbackGroup] routes around it to the next configured
// backend of the same capability. The capability wrappers ([LLMFallback],
// [STTFallback], [TTSFallback]) present a group as a single provider.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// is open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen]. Entered after too
	// many consecutive failures; left once the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. The
	// breaker closes if enough probes succeed and re-opens on the first
	// probe failure.
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
	}
	return "unknown"
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the
// documented defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output, usually the backend name.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker open.
	// Default 5.
	MaxFailures int

	// ResetTimeout is how long the breaker rejects calls before probing
	// again. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax bounds the probe calls per half-open episode; that many
	// successes close the breaker. Default 3.
	HalfOpenMax int
}

// CircuitBreaker is a three-state breaker guarding a single backend.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probeBudget  int

	mu       sync.Mutex
	state    State
	failures int // consecutive, while closed
	openedAt time.Time
	probes   int // issued this half-open episode
	probeOKs int
}

// NewCircuitBreaker builds a closed breaker from cfg, filling in defaults
// for zero fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		probeBudget:  cfg.HalfOpenMax,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 30 * time.Second
	}
	if cb.probeBudget <= 0 {
		cb.probeBudget = 3
	}
	return cb
}

// Execute runs fn unless the breaker refuses the call, and feeds the
// outcome back into the breaker. Refused calls return [ErrCircuitOpen]
// without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed, advancing open→half-open when
// the reset timeout has elapsed. It reports whether the admitted call is a
// half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeOKs = 0
		slog.Info("circuit breaker probing", "name", cb.name)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.probeBudget {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, callErr error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case callErr == nil && probe:
		cb.probeOKs++
		if cb.probeOKs >= cb.probeBudget {
			cb.state = StateClosed
			cb.failures = 0
			slog.Info("circuit breaker closed", "name", cb.name)
		}

	case callErr == nil:
		cb.failures = 0

	case probe:
		// One failed probe ends the episode.
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.failures = cb.maxFailures
		slog.Warn("circuit breaker re-opened", "name", cb.name)

	default:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = time.Now()
			slog.Warn("circuit breaker opened",
				"name", cb.name, "failures", cb.failures)
		}
	}
}

// State reports the breaker's state. An open breaker whose reset timeout
// has elapsed reports [StateHalfOpen]; the stored transition happens on the
// next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeOKs = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}
