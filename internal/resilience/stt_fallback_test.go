package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider/stt"
	sttmock "github.com/vesper-voice/vesper/pkg/provider/stt/mock"
)

func TestSTTFallback_FailsOver(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errors.New("server unreachable")}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "hello there"}}

	f := NewSTTFallback(primary, "whisper", FallbackConfig{})
	f.AddFallback("deepgram", secondary)

	frames := []audio.AudioFrame{{Data: make([]byte, 320), SampleRate: 16000, Channels: 1}}
	tr, err := f.Transcribe(context.Background(), frames)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "hello there" {
		t.Errorf("Text = %q", tr.Text)
	}
	if primary.CallCountTranscribe != 1 || secondary.CallCountTranscribe != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCountTranscribe, secondary.CallCountTranscribe)
	}
}

func TestSTTFallback_RequiredFormatIsPrimary(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Format: audio.Format{SampleRate: 8000, Channels: 1}}
	f := NewSTTFallback(primary, "whisper", FallbackConfig{})
	f.AddFallback("deepgram", &sttmock.Provider{Format: audio.Format{SampleRate: 16000, Channels: 1}})

	if got := f.RequiredFormat(); got.SampleRate != 8000 {
		t.Errorf("RequiredFormat() = %+v, want the primary's format", got)
	}
}

func TestSTTFallback_InitPropagatesFailures(t *testing.T) {
	t.Parallel()

	bad := &sttmock.Provider{InitErr: errors.New("model missing")}
	f := NewSTTFallback(&sttmock.Provider{}, "whisper", FallbackConfig{})
	f.AddFallback("native", bad)

	if err := f.Init(context.Background()); err == nil {
		t.Fatal("expected init error from the fallback entry")
	}
}
