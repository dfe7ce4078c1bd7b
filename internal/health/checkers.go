package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/vesper-voice/vesper/internal/registry"
	"github.com/vesper-voice/vesper/pkg/audio"
)

// ProviderChecker reports ready when the active provider of every wired
// capability is initialized and usable. Capabilities with nothing registered
// are skipped — a text-only deployment without TTS is still ready.
func ProviderChecker(reg *registry.Registry) Checker {
	return Checker{
		Name: "providers",
		Check: func(ctx context.Context) error {
			checks := []struct {
				kind string
				get  func() error
			}{
				{"stt", func() error { _, err := reg.STT(); return err }},
				{"tts", func() error { _, err := reg.TTS(); return err }},
				{"llm", func() error { _, err := reg.LLM(); return err }},
				{"clipboard", func() error { _, err := reg.Clipboard(); return err }},
			}
			for _, c := range checks {
				err := c.get()
				if err == nil {
					continue
				}
				var lcErr *registry.LifecycleError
				if errors.As(err, &lcErr) {
					return fmt.Errorf("%s provider %q is %s", c.kind, lcErr.Name, lcErr.State)
				}
				// Nothing registered for this capability; acceptable.
			}
			return nil
		},
	}
}

// DeviceChecker reports the number of open audio sessions; it fails when a
// session leaked past the pipeline (open while the pipeline claims idle is
// not checkable here, but >1 always indicates a bug).
func DeviceChecker(tracker *audio.Tracker) Checker {
	return Checker{
		Name: "audio",
		Check: func(ctx context.Context) error {
			if n := tracker.OpenCount(); n > 1 {
				return fmt.Errorf("%d audio sessions open, expected at most 1", n)
			}
			return nil
		},
	}
}
