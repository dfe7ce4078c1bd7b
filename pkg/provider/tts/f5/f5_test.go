package f5

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider/tts"
)

func referenceDir(t *testing.T, samples ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range samples {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("riff"), 0o644); err != nil {
			t.Fatalf("write sample: %v", err)
		}
	}
	return dir
}

func TestSynthesize_DecodesWAVResponse(t *testing.T) {
	t.Parallel()

	dir := referenceDir(t, "me.wav")
	wav := audio.EncodeWAV(audio.AudioFrame{
		Data:       make([]byte, 24000*2), // one second at 24 kHz mono
		SampleRate: 24000,
		Channels:   1,
	})

	var gotReq synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write(wav)
	}))
	defer srv.Close()

	p, err := New(srv.URL, dir, WithSpeed(1.2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	voice := tts.VoiceProfile{ID: "me.wav", ReferenceAudio: "me.wav"}
	frames, err := p.Synthesize(context.Background(), "guten tag", voice)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if gotReq.Text != "guten tag" || gotReq.Speed != 1.2 {
		t.Errorf("request: %+v", gotReq)
	}
	if gotReq.RefAudio != filepath.Join(dir, "me.wav") {
		t.Errorf("ref audio path: got %q", gotReq.RefAudio)
	}
	if len(frames) != 5 {
		t.Fatalf("frames: got %d, want 5", len(frames))
	}
	if frames[0].SampleRate != 24000 || frames[0].Channels != 1 {
		t.Errorf("frame format: %+v", frames[0].Format())
	}
}

func TestSynthesize_ReferenceErrors(t *testing.T) {
	t.Parallel()

	dir := referenceDir(t, "me.wav")
	p, err := New("http://localhost:7860", dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name  string
		voice tts.VoiceProfile
	}{
		{"no reference configured", tts.VoiceProfile{ID: "x"}},
		{"missing sample", tts.VoiceProfile{ReferenceAudio: "ghost.wav"}},
		{"path escape rejected", tts.VoiceProfile{ReferenceAudio: "../me.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := p.Synthesize(context.Background(), "hello", tt.voice)
			var serr *tts.SynthesisError
			if !errors.As(err, &serr) {
				t.Errorf("want SynthesisError, got %v", err)
			} else if serr.Text != "hello" {
				t.Errorf("text: got %q, want the synthesis input", serr.Text)
			}
		})
	}
}

func TestNew_MissingReferenceDir(t *testing.T) {
	t.Parallel()

	if _, err := New("http://localhost:7860", "/does/not/exist"); err == nil {
		t.Fatal("missing reference dir must be rejected")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	dir := referenceDir(t, "alice.wav", "bob.WAV", "notes.txt")
	p, err := New("http://localhost:7860", dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("voices: got %d, want 2 (txt file excluded)", len(voices))
	}
	if voices[0].Name != "alice" || voices[0].ReferenceAudio != "alice.wav" {
		t.Errorf("voice[0]: %+v", voices[0])
	}
}
