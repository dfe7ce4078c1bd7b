package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry in a [FallbackGroup] produced a
// result, whether because the call failed or the entry's breaker was open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup]. The embedded breaker config
// is applied to every entry; the Name field is overwritten per entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered list of backends of one provider type,
// each behind its own [CircuitBreaker]. Calls go to the first entry whose
// breaker admits them and that returns a result; later entries are tried
// in order otherwise.
//
// Entries must all be added before the group is used; the group itself
// adds no locking beyond the per-entry breakers.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a backend tried after all earlier entries.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// attempt runs fn through entry's breaker and reports whether the group
// should move on to the next entry.
func (fg *FallbackGroup[T]) attempt(entry *fallbackEntry[T], fn func(T) error) error {
	err := entry.breaker.Execute(func() error { return fn(entry.value) })
	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		slog.Debug("backend skipped, breaker open", "backend", entry.name)
	default:
		slog.Warn("backend failed, trying next", "backend", entry.name, "err", err)
	}
	return err
}

// Execute runs fn against entries in order until one succeeds. If none
// does, the last error is wrapped in [ErrAllFailed].
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	var lastErr error
	for i := range fg.entries {
		if lastErr = fg.attempt(&fg.entries[i], fn); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a
// value. It is a package function because methods cannot introduce the
// result type parameter.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		result  R
		lastErr error
	)
	for i := range fg.entries {
		lastErr = fg.attempt(&fg.entries[i], func(v T) error {
			var err error
			result, err = fn(v)
			return err
		})
		if lastErr == nil {
			return result, nil
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
