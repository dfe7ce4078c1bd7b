package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

// trip drives cb open with n consecutive failures.
func trip(cb *CircuitBreaker, n int) {
	for range n {
		_ = cb.Execute(func() error { return errBackend })
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "stt"})
	if cb.maxFailures != 5 || cb.resetTimeout != 30*time.Second || cb.probeBudget != 3 {
		t.Errorf("defaults: maxFailures=%d resetTimeout=%v probeBudget=%d",
			cb.maxFailures, cb.resetTimeout, cb.probeBudget)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("new breaker state: got %v, want closed", got)
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "stt", MaxFailures: 3, ResetTimeout: time.Hour,
	})

	trip(cb, 2)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("after 2 failures: got %v, want closed", got)
	}

	trip(cb, 1)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("after 3 failures: got %v, want open", got)
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker: got %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("open breaker must not invoke the call")
	}
}

func TestCircuitBreaker_SuccessClearsFailureStreak(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "stt", MaxFailures: 3, ResetTimeout: time.Hour,
	})

	trip(cb, 2)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("success call: %v", err)
	}
	trip(cb, 2)

	if got := cb.State(); got != StateClosed {
		t.Errorf("streak broken by success: got %v, want closed", got)
	}
}

func TestCircuitBreaker_ProbesAfterResetTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "stt", MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2,
	})
	trip(cb, 1)

	time.Sleep(20 * time.Millisecond)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("after reset timeout: got %v, want half-open", got)
	}

	// Two successful probes close the breaker again.
	for i := range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("after successful probes: got %v, want closed", got)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "stt", MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 3,
	})
	trip(cb, 1)
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("failing probe: got %v, want the call error", err)
	}

	// The failed probe restarted the reset clock.
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("call right after failed probe: got %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_ProbeBudgetBoundsConcurrentProbes(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "stt", MaxFailures: 1, ResetTimeout: 5 * time.Millisecond, HalfOpenMax: 1,
	})
	trip(cb, 1)
	time.Sleep(10 * time.Millisecond)

	// First probe is admitted but left unsettled from the breaker's point of
	// view until fn returns; a second call during the probe must be refused.
	var inner error
	err := cb.Execute(func() error {
		inner = cb.Execute(func() error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !errors.Is(inner, ErrCircuitOpen) {
		t.Errorf("second call during probe: got %v, want ErrCircuitOpen", inner)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "stt", MaxFailures: 1, ResetTimeout: time.Hour,
	})
	trip(cb, 1)

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("after Reset: got %v, want closed", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("call after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(-1), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d): got %q, want %q", tt.state, got, tt.want)
		}
	}
}
