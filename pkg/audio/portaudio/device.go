// Package portaudio implements the [audio.Device] interface on top of
// PortAudio via github.com/gordonklaus/portaudio. It provides both capture
// and playback streams on the host's default (or an explicitly selected)
// device, always at the device's native sample rate.
//
// [Initialize] must be called once before opening any device and [Terminate]
// once at shutdown; the app layer owns that lifecycle.
package portaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/vesper-voice/vesper/pkg/audio"
)

// Initialize prepares the PortAudio host API. Call once at startup.
func Initialize() error {
	return portaudio.Initialize()
}

// Terminate releases the PortAudio host API. Call once at shutdown, after all
// streams are closed.
func Terminate() error {
	return portaudio.Terminate()
}

// Device wraps one PortAudio device (capture and/or playback).
type Device struct {
	info     *portaudio.DeviceInfo
	channels int
}

// Compile-time assertion that Device satisfies audio.Device.
var _ audio.Device = (*Device)(nil)

// DefaultInput returns the host's default capture device, mono.
func DefaultInput() (*Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("portaudio: default input device: %w", err)
	}
	return &Device{info: info, channels: 1}, nil
}

// DefaultOutput returns the host's default playback device, mono.
func DefaultOutput() (*Device, error) {
	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("portaudio: default output device: %w", err)
	}
	return &Device{info: info, channels: 1}, nil
}

// ByName returns the device whose name contains name. Channel count is capped
// to the device's capability.
func ByName(name string, channels int) (*Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: enumerate devices: %w", err)
	}
	for _, info := range devices {
		if info.Name == name {
			return &Device{info: info, channels: channels}, nil
		}
	}
	return nil, fmt.Errorf("portaudio: no device named %q", name)
}

// Name implements [audio.Device].
func (d *Device) Name() string { return d.info.Name }

// NativeFormat implements [audio.Device]. The sample rate is the device's
// default rate as reported by PortAudio.
func (d *Device) NativeFormat() audio.Format {
	return audio.Format{SampleRate: int(d.info.DefaultSampleRate), Channels: d.channels}
}

// OpenInput implements [audio.Device].
func (d *Device) OpenInput(cfg audio.StreamConfig) (audio.InputStream, error) {
	if cfg.Format != d.NativeFormat() {
		return nil, fmt.Errorf("portaudio: requested format %dHz/%dch is not native to %q",
			cfg.Format.SampleRate, cfg.Format.Channels, d.info.Name)
	}
	if d.info.MaxInputChannels < cfg.Format.Channels {
		return nil, fmt.Errorf("portaudio: device %q has no capture capability", d.info.Name)
	}

	buf := make([]int16, cfg.ChunkSamples*cfg.Format.Channels)
	params := portaudio.LowLatencyParameters(d.info, nil)
	params.Input.Channels = cfg.Format.Channels
	params.SampleRate = float64(cfg.Format.SampleRate)
	params.FramesPerBuffer = cfg.ChunkSamples

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start capture stream: %w", err)
	}
	return &inputStream{stream: stream, buf: buf, format: cfg.Format, chunk: cfg.ChunkSamples}, nil
}

// OpenOutput implements [audio.Device].
func (d *Device) OpenOutput(cfg audio.StreamConfig) (audio.OutputStream, error) {
	if cfg.Format != d.NativeFormat() {
		return nil, fmt.Errorf("portaudio: requested format %dHz/%dch is not native to %q",
			cfg.Format.SampleRate, cfg.Format.Channels, d.info.Name)
	}
	if d.info.MaxOutputChannels < cfg.Format.Channels {
		return nil, fmt.Errorf("portaudio: device %q has no playback capability", d.info.Name)
	}

	buf := make([]int16, cfg.ChunkSamples*cfg.Format.Channels)
	params := portaudio.LowLatencyParameters(nil, d.info)
	params.Output.Channels = cfg.Format.Channels
	params.SampleRate = float64(cfg.Format.SampleRate)
	params.FramesPerBuffer = cfg.ChunkSamples

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start playback stream: %w", err)
	}
	return &outputStream{stream: stream, buf: buf, format: cfg.Format, chunk: cfg.ChunkSamples}, nil
}

// ─── input stream ─────────────────────────────────────────────────────────────

type inputStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	format audio.Format
	chunk  int
	closed bool
}

func (s *inputStream) Read() (audio.AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.AudioFrame{}, audio.ErrStreamClosed
	}

	err := s.stream.Read()
	frame := audio.AudioFrame{
		Data:       int16sToBytes(s.buf),
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
	}
	if err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return frame, audio.ErrOverflow
		}
		return audio.AudioFrame{}, err
	}
	return frame, nil
}

func (s *inputStream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	n, err := s.stream.AvailableToRead()
	if err != nil {
		return 0
	}
	return n
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.stream.Stop(); err != nil {
		_ = s.stream.Close()
		return err
	}
	return s.stream.Close()
}

// ─── output stream ────────────────────────────────────────────────────────────

type outputStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	format audio.Format
	chunk  int
	closed bool
}

func (s *outputStream) Write(frame audio.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrStreamClosed
	}
	if frame.Format() != s.format {
		return fmt.Errorf("portaudio: frame format %dHz/%dch does not match stream %dHz/%dch",
			frame.SampleRate, frame.Channels, s.format.SampleRate, s.format.Channels)
	}

	samples := bytesToInt16s(frame.Data)
	// The PortAudio buffer is fixed-size; write in chunk-sized slices and
	// zero-pad the tail so a short final frame still plays.
	step := s.chunk * s.format.Channels
	for off := 0; off < len(samples); off += step {
		end := min(off+step, len(samples))
		n := copy(s.buf, samples[off:end])
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return err
		}
	}
	return nil
}

func (s *outputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.stream.Stop(); err != nil {
		_ = s.stream.Close()
		return err
	}
	return s.stream.Close()
}

// ─── PCM helpers ──────────────────────────────────────────────────────────────

func int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func bytesToInt16s(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}
