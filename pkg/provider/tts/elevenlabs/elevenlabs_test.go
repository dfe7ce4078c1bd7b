package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider/tts"
)

func TestSynthesize_PCMOutput(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 16000*2) // one second of silence at 16 kHz mono
	var gotBody synthesizeRequest
	var gotKey, gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")
		gotQuery = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write(pcm)
	}))
	defer srv.Close()

	p, err := New("el-key", WithBaseURL(srv.URL), WithOutputFormat("pcm_16000"), WithModel("eleven_flash_v2_5"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	voice := tts.VoiceProfile{
		ID:              "rachel",
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
	frames, err := p.Synthesize(context.Background(), "hello", voice)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if gotKey != "el-key" {
		t.Errorf("api key header: got %q", gotKey)
	}
	if gotQuery != "output_format=pcm_16000" {
		t.Errorf("query: got %q", gotQuery)
	}
	if gotBody.Text != "hello" || gotBody.ModelID != "eleven_flash_v2_5" {
		t.Errorf("request body: %+v", gotBody)
	}
	if gotBody.VoiceSettings == nil || gotBody.VoiceSettings.Stability != 0.5 || !gotBody.VoiceSettings.UseSpeakerBoost {
		t.Errorf("voice settings: %+v", gotBody.VoiceSettings)
	}

	// One second at 200 ms per frame.
	if len(frames) != 5 {
		t.Fatalf("frames: got %d, want 5", len(frames))
	}
	var total int
	for _, f := range frames {
		if f.SampleRate != 16000 || f.Channels != 1 {
			t.Errorf("frame format: %+v", f.Format())
		}
		total += len(f.Data)
	}
	if total != len(pcm) {
		t.Errorf("total bytes: got %d, want %d", total, len(pcm))
	}
}

func TestSynthesize_ZeroProfileOmitsSettings(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write(make([]byte, 320))
	}))
	defer srv.Close()

	p, err := New("el-key", WithBaseURL(srv.URL), WithOutputFormat("pcm_16000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{ID: "adam"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if _, ok := gotBody["voice_settings"]; ok {
		t.Error("zero voice profile must omit voice_settings")
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := New("el-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Synthesize(context.Background(), "hello", tts.VoiceProfile{ID: "rachel"})
	var serr *tts.SynthesisError
	if !errors.As(err, &serr) {
		t.Fatalf("want SynthesisError, got %v", err)
	}
	if serr.Provider != "elevenlabs" {
		t.Errorf("provider: got %q", serr.Provider)
	}
	if serr.Text != "hello" {
		t.Errorf("text: got %q, want the synthesis input", serr.Text)
	}

	if _, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{}); !errors.As(err, &serr) {
		t.Errorf("missing voice ID: want SynthesisError, got %v", err)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	p, err := New("el-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	frames, err := p.Synthesize(context.Background(), "", tts.VoiceProfile{ID: "rachel"})
	if err != nil || frames != nil {
		t.Errorf("empty text: got (%v, %v), want (nil, nil)", frames, err)
	}
}

func TestPCMRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format   string
		wantRate int
		wantOK   bool
	}{
		{"pcm_16000", 16000, true},
		{"pcm_24000", 24000, true},
		{"mp3_44100_128", 0, false},
		{"pcm_", 0, false},
	}
	for _, tt := range tests {
		rate, ok := pcmRate(tt.format)
		if rate != tt.wantRate || ok != tt.wantOK {
			t.Errorf("pcmRate(%q) = (%d, %v), want (%d, %v)", tt.format, rate, ok, tt.wantRate, tt.wantOK)
		}
	}
}

func TestChunkFrame_ShortFrameReturnedWhole(t *testing.T) {
	t.Parallel()

	frame := audio.AudioFrame{Data: make([]byte, 100), SampleRate: 44100, Channels: 2}
	frames := chunkFrame(frame, 200*time.Millisecond)
	if len(frames) != 1 || len(frames[0].Data) != 100 {
		t.Errorf("short frame: got %d frames", len(frames))
	}
}

func TestParseVoicesResponse(t *testing.T) {
	t.Parallel()

	data := []byte(`{"voices":[
		{"voice_id":"v1","name":"Rachel","category":"premade","labels":{"accent":"american"}},
		{"voice_id":"v2","name":"Adam","labels":{}}
	]}`)

	profiles, err := parseVoicesResponse(data)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("profiles: got %d, want 2", len(profiles))
	}
	if profiles[0].ID != "v1" || profiles[0].Provider != "elevenlabs" {
		t.Errorf("profile[0]: %+v", profiles[0])
	}
	if profiles[0].Metadata["category"] != "premade" || profiles[0].Metadata["accent"] != "american" {
		t.Errorf("metadata: %+v", profiles[0].Metadata)
	}
}
