package registry

import (
	"context"
	"errors"
	"testing"

	llmmock "github.com/vesper-voice/vesper/pkg/provider/llm/mock"
	sttmock "github.com/vesper-voice/vesper/pkg/provider/stt/mock"
)

// TestGet_BeforeInitFailsWithLifecycleError checks that constructed providers
// are not handed out.
func TestGet_BeforeInitFailsWithLifecycleError(t *testing.T) {
	t.Parallel()

	r := New(nil)
	if err := r.RegisterSTT("mock", &sttmock.Provider{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := r.STT()
	var lcErr *LifecycleError
	if !errors.As(err, &lcErr) {
		t.Fatalf("expected LifecycleError, got %v", err)
	}
	if lcErr.State != StateConstructed {
		t.Errorf("expected state constructed, got %v", lcErr.State)
	}
	if lcErr.Capability != "stt" {
		t.Errorf("expected capability stt, got %q", lcErr.Capability)
	}
}

// TestGet_NothingRegistered checks the empty-capability error.
func TestGet_NothingRegistered(t *testing.T) {
	t.Parallel()

	r := New(nil)
	if _, err := r.LLM(); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

// TestInitAll_MakesProvidersUsable checks the constructed → initialized step.
func TestInitAll_MakesProvidersUsable(t *testing.T) {
	t.Parallel()

	r := New(nil)
	p := &sttmock.Provider{}
	if err := r.RegisterSTT("mock", p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.InitAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := r.STT()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != p {
		t.Error("expected the registered provider instance")
	}
	if p.CallCountInit != 1 {
		t.Errorf("expected 1 Init call, got %d", p.CallCountInit)
	}
}

// TestInitAll_FailureLeavesProviderConstructed checks that a failing Init
// keeps the provider unusable but does not abort the rest.
func TestInitAll_FailureLeavesProviderConstructed(t *testing.T) {
	t.Parallel()

	r := New(nil)
	broken := &sttmock.Provider{InitErr: errors.New("model file missing")}
	if err := r.RegisterSTT("broken", broken); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.RegisterLLM("mock", &llmmock.Provider{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.InitAll(context.Background()); err == nil {
		t.Fatal("expected InitAll to report the failing provider")
	}

	var lcErr *LifecycleError
	if _, err := r.STT(); !errors.As(err, &lcErr) || lcErr.State != StateConstructed {
		t.Fatalf("expected constructed LifecycleError, got %v", err)
	}
	if _, err := r.LLM(); err != nil {
		t.Fatalf("expected the healthy provider to be usable, got %v", err)
	}
}

// TestRegister_DuplicateNameRejected checks that a name cannot be reused
// within a capability.
func TestRegister_DuplicateNameRejected(t *testing.T) {
	t.Parallel()

	r := New(nil)
	if err := r.RegisterLLM("mock", &llmmock.Provider{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.RegisterLLM("mock", &llmmock.Provider{}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

// TestActivate_SwapsWithoutDestroying checks runtime provider switching.
func TestActivate_SwapsWithoutDestroying(t *testing.T) {
	t.Parallel()

	r := New(nil)
	first := &llmmock.Provider{}
	second := &llmmock.Provider{}
	if err := r.RegisterLLM("first", first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.RegisterLLM("second", second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.InitAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := r.LLM()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != first {
		t.Error("expected the first registered provider to be active")
	}

	if err := r.ActivateLLM("second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ = r.LLM(); got != second {
		t.Error("expected the second provider after activation")
	}

	// The original stays registered and can be activated again.
	if err := r.ActivateLLM("first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ = r.LLM(); got != first {
		t.Error("expected the first provider after reactivation")
	}
}

// TestActivate_UnknownName checks the error for unregistered names.
func TestActivate_UnknownName(t *testing.T) {
	t.Parallel()

	r := New(nil)
	if err := r.ActivateTTS("ghost"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

// TestShutdownAll_IsTerminal checks that shut-down providers are never handed
// out again and Shutdown runs at most once.
func TestShutdownAll_IsTerminal(t *testing.T) {
	t.Parallel()

	r := New(nil)
	p := &sttmock.Provider{}
	if err := r.RegisterSTT("mock", p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.InitAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.ShutdownAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CallCountShutdown != 1 {
		t.Errorf("expected 1 Shutdown call, got %d", p.CallCountShutdown)
	}

	var lcErr *LifecycleError
	if _, err := r.STT(); !errors.As(err, &lcErr) || lcErr.State != StateShutdown {
		t.Fatalf("expected shutdown LifecycleError, got %v", err)
	}

	// A second pass is a no-op.
	if err := r.ShutdownAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CallCountShutdown != 1 {
		t.Errorf("expected Shutdown to run once, got %d", p.CallCountShutdown)
	}
}
