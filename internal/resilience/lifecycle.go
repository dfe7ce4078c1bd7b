package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/vesper-voice/vesper/pkg/provider"
)

// initEntries initialises every group entry that declares a
// [provider.Lifecycle], joining any failures. A backend that fails Init is
// still part of the group; its circuit breaker opens as soon as it is used.
func initEntries[T any](ctx context.Context, fg *FallbackGroup[T]) error {
	var errs []error
	for i := range fg.entries {
		entry := &fg.entries[i]
		lc, ok := any(entry.value).(provider.Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Init(ctx); err != nil {
			errs = append(errs, fmt.Errorf("init %s: %w", entry.name, err))
		}
	}
	return errors.Join(errs...)
}

// shutdownEntries shuts down every group entry that declares a
// [provider.Lifecycle], joining any failures.
func shutdownEntries[T any](ctx context.Context, fg *FallbackGroup[T]) error {
	var errs []error
	for i := range fg.entries {
		entry := &fg.entries[i]
		lc, ok := any(entry.value).(provider.Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", entry.name, err))
		}
	}
	return errors.Join(errs...)
}
