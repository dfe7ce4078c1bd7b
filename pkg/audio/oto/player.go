// Package oto implements the playback half of the [audio.Device] interface on
// top of github.com/ebitengine/oto/v3. It has no capture capability; pair it
// with a portaudio capture device when the host's playback path is simpler to
// drive through oto (the common case on desktop builds without a full
// PortAudio install).
//
// oto allows a single Context per process, created at a fixed sample rate;
// that rate becomes the device's native rate.
package oto

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/vesper-voice/vesper/pkg/audio"
)

// Device is a playback-only [audio.Device] backed by an oto Context.
type Device struct {
	ctx    *oto.Context
	format audio.Format
}

// Compile-time assertion that Device satisfies audio.Device.
var _ audio.Device = (*Device)(nil)

// New creates the process-wide oto context at the given format and returns a
// playback device for it. Call once; oto does not support re-initialisation.
func New(format audio.Format) (*Device, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("oto: invalid format %dHz/%dch", format.SampleRate, format.Channels)
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("oto: create context: %w", err)
	}
	<-ready
	return &Device{ctx: ctx, format: format}, nil
}

// Name implements [audio.Device].
func (d *Device) Name() string { return "oto" }

// NativeFormat implements [audio.Device].
func (d *Device) NativeFormat() audio.Format { return d.format }

// OpenInput implements [audio.Device]. oto has no capture path.
func (d *Device) OpenInput(audio.StreamConfig) (audio.InputStream, error) {
	return nil, errors.New("oto: device has no capture capability")
}

// OpenOutput implements [audio.Device].
func (d *Device) OpenOutput(cfg audio.StreamConfig) (audio.OutputStream, error) {
	if cfg.Format != d.format {
		return nil, fmt.Errorf("oto: requested format %dHz/%dch is not native (%dHz/%dch)",
			cfg.Format.SampleRate, cfg.Format.Channels, d.format.SampleRate, d.format.Channels)
	}
	pr, pw := io.Pipe()
	player := d.ctx.NewPlayer(pr)
	player.Play()
	return &outputStream{player: player, pw: pw, format: d.format}, nil
}

// outputStream feeds PCM to an oto player through a pipe so Write can stream
// arbitrarily sized frames.
type outputStream struct {
	mu     sync.Mutex
	player *oto.Player
	pw     *io.PipeWriter
	format audio.Format
	closed bool
}

func (s *outputStream) Write(frame audio.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrStreamClosed
	}
	if frame.Format() != s.format {
		return fmt.Errorf("oto: frame format %dHz/%dch does not match stream %dHz/%dch",
			frame.SampleRate, frame.Channels, s.format.SampleRate, s.format.Channels)
	}
	_, err := s.pw.Write(frame.Data)
	return err
}

func (s *outputStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.pw.Close()
	// Let the player drain its internal buffer before releasing it.
	for s.player.IsPlaying() && s.player.BufferedSize() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	return s.player.Close()
}
