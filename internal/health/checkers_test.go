package health

import (
	"context"
	"testing"

	"github.com/vesper-voice/vesper/internal/registry"
	"github.com/vesper-voice/vesper/pkg/audio"
	llmmock "github.com/vesper-voice/vesper/pkg/provider/llm/mock"
)

// TestProviderChecker_EmptyRegistryIsReady checks that unwired capabilities
// do not fail readiness.
func TestProviderChecker_EmptyRegistryIsReady(t *testing.T) {
	t.Parallel()

	c := ProviderChecker(registry.New(nil))
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestProviderChecker_UninitializedProviderFails checks that a constructed
// but not initialized provider blocks readiness.
func TestProviderChecker_UninitializedProviderFails(t *testing.T) {
	t.Parallel()

	reg := registry.New(nil)
	if err := reg.RegisterLLM("mock", &llmmock.Provider{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := ProviderChecker(reg)
	if err := c.Check(context.Background()); err == nil {
		t.Fatal("expected readiness failure for an uninitialized provider")
	}

	if err := reg.InitAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("expected readiness after init, got %v", err)
	}
}

// TestDeviceChecker checks the open-session invariant.
func TestDeviceChecker(t *testing.T) {
	t.Parallel()

	tracker := audio.NewTracker()
	c := DeviceChecker(tracker)
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
