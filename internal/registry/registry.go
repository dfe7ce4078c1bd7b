// Package registry holds the configured provider instances for each
// capability (STT, TTS, LLM, clipboard) and drives their lifecycle.
//
// Each registered provider moves through constructed → initialized →
// shut down. Only initialized providers are handed out; Activate swaps the
// active provider of a capability without destroying the others, which is how
// runtime model switching (e.g. openai ↔ anthropic) works.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/clipboard"
	"github.com/vesper-voice/vesper/pkg/provider/llm"
	"github.com/vesper-voice/vesper/pkg/provider/stt"
	"github.com/vesper-voice/vesper/pkg/provider/tts"
)

// ErrNotRegistered is returned when no provider is registered under the
// requested name, or a capability has no provider at all.
var ErrNotRegistered = errors.New("registry: provider not registered")

// ErrAlreadyRegistered is returned when a name is registered twice for the
// same capability.
var ErrAlreadyRegistered = errors.New("registry: provider already registered")

// State is the lifecycle state of a registered provider.
type State int

const (
	// StateConstructed means the provider exists but Init has not run.
	StateConstructed State = iota
	// StateInitialized means the provider is usable.
	StateInitialized
	// StateShutdown means the provider has been shut down. Terminal.
	StateShutdown
)

// String returns a readable representation of the state.
func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateInitialized:
		return "initialized"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LifecycleError is returned when a provider is requested in a state where it
// is not usable.
type LifecycleError struct {
	Capability string
	Name       string
	State      State
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("registry: %s provider %q is %s, not usable", e.Capability, e.Name, e.State)
}

// entry pairs a provider with its lifecycle state.
type entry[T provider.Adapter] struct {
	value T
	state State
}

// slot holds all registered providers of one capability plus the active name.
// Methods assume the registry mutex is held by the caller.
type slot[T provider.Adapter] struct {
	kind    string
	entries map[string]*entry[T]
	order   []string
	active  string
}

func newSlot[T provider.Adapter](kind string) *slot[T] {
	return &slot[T]{kind: kind, entries: make(map[string]*entry[T])}
}

func (s *slot[T]) register(name string, value T) error {
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s/%q", ErrAlreadyRegistered, s.kind, name)
	}
	s.entries[name] = &entry[T]{value: value}
	s.order = append(s.order, name)
	if s.active == "" {
		s.active = name
	}
	return nil
}

func (s *slot[T]) activate(name string) error {
	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("%w: %s/%q", ErrNotRegistered, s.kind, name)
	}
	s.active = name
	return nil
}

func (s *slot[T]) get() (T, error) {
	var zero T
	if s.active == "" {
		return zero, fmt.Errorf("%w: no %s provider", ErrNotRegistered, s.kind)
	}
	e := s.entries[s.active]
	if e.state != StateInitialized {
		return zero, &LifecycleError{Capability: s.kind, Name: s.active, State: e.state}
	}
	return e.value, nil
}

// Registry is the set of configured providers. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	stt       *slot[stt.Provider]
	tts       *slot[tts.Provider]
	llm       *slot[llm.Provider]
	clipboard *slot[clipboard.Provider]
	log       *slog.Logger
}

// New returns an empty, ready-to-use Registry.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		stt:       newSlot[stt.Provider]("stt"),
		tts:       newSlot[tts.Provider]("tts"),
		llm:       newSlot[llm.Provider]("llm"),
		clipboard: newSlot[clipboard.Provider]("clipboard"),
		log:       log,
	}
}

// RegisterSTT records an STT provider under name. The first registered
// provider of a capability becomes its active one.
func (r *Registry) RegisterSTT(name string, p stt.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stt.register(name, p)
}

// RegisterTTS records a TTS provider under name.
func (r *Registry) RegisterTTS(name string, p tts.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tts.register(name, p)
}

// RegisterLLM records an LLM provider under name.
func (r *Registry) RegisterLLM(name string, p llm.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.llm.register(name, p)
}

// RegisterClipboard records a clipboard provider under name.
func (r *Registry) RegisterClipboard(name string, p clipboard.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clipboard.register(name, p)
}

// ActivateSTT makes the named STT provider the active one. Other registered
// providers stay registered and initialized.
func (r *Registry) ActivateSTT(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stt.activate(name)
}

// ActivateTTS makes the named TTS provider the active one.
func (r *Registry) ActivateTTS(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tts.activate(name)
}

// ActivateLLM makes the named LLM provider the active one.
func (r *Registry) ActivateLLM(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.llm.activate(name)
}

// ActivateClipboard makes the named clipboard provider the active one.
func (r *Registry) ActivateClipboard(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clipboard.activate(name)
}

// STT returns the active STT provider. It fails with a LifecycleError when
// the active provider has not been initialized or is already shut down.
func (r *Registry) STT() (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.get()
}

// TTS returns the active TTS provider.
func (r *Registry) TTS() (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.get()
}

// LLM returns the active LLM provider.
func (r *Registry) LLM() (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.get()
}

// Clipboard returns the active clipboard provider.
func (r *Registry) Clipboard() (clipboard.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clipboard.get()
}

// InitAll initializes every registered provider in registration order.
// Providers implementing provider.Lifecycle get Init called; the rest are
// usable as constructed. A failing Init leaves that provider in the
// constructed state; remaining providers are still attempted and all failures
// are joined.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	errs = append(errs, initSlot(ctx, r.stt, r.log)...)
	errs = append(errs, initSlot(ctx, r.tts, r.log)...)
	errs = append(errs, initSlot(ctx, r.llm, r.log)...)
	errs = append(errs, initSlot(ctx, r.clipboard, r.log)...)
	return errors.Join(errs...)
}

func initSlot[T provider.Adapter](ctx context.Context, s *slot[T], log *slog.Logger) []error {
	var errs []error
	for _, name := range s.order {
		e := s.entries[name]
		if e.state != StateConstructed {
			continue
		}
		if lc, ok := any(e.value).(provider.Lifecycle); ok {
			if err := lc.Init(ctx); err != nil {
				errs = append(errs, fmt.Errorf("registry: init %s/%q: %w", s.kind, name, err))
				continue
			}
		}
		e.state = StateInitialized
		log.Debug("provider initialized", "capability", s.kind, "name", name)
	}
	return errs
}

// ShutdownAll shuts down every initialized provider in reverse registration
// order. Every provider ends up in the terminal shutdown state regardless of
// Shutdown errors; errors are joined and returned.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	errs = append(errs, shutdownSlot(ctx, r.clipboard, r.log)...)
	errs = append(errs, shutdownSlot(ctx, r.llm, r.log)...)
	errs = append(errs, shutdownSlot(ctx, r.tts, r.log)...)
	errs = append(errs, shutdownSlot(ctx, r.stt, r.log)...)
	return errors.Join(errs...)
}

func shutdownSlot[T provider.Adapter](ctx context.Context, s *slot[T], log *slog.Logger) []error {
	var errs []error
	for i := len(s.order) - 1; i >= 0; i-- {
		name := s.order[i]
		e := s.entries[name]
		if e.state == StateShutdown {
			continue
		}
		wasInitialized := e.state == StateInitialized
		e.state = StateShutdown
		if !wasInitialized {
			continue
		}
		if lc, ok := any(e.value).(provider.Lifecycle); ok {
			if err := lc.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("registry: shutdown %s/%q: %w", s.kind, name, err))
				continue
			}
		}
		log.Debug("provider shut down", "capability", s.kind, "name", name)
	}
	return errs
}
