// Package mock provides in-memory implementations of the [audio.Device],
// [audio.InputStream], and [audio.OutputStream] interfaces for use in unit
// tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on counts and arguments, and expose exported fields the test sets to
// script behaviour.
//
// Typical usage:
//
//	dev := &mock.Device{
//	    Format: audio.Format{SampleRate: 16000, Channels: 1},
//	    Input:  &mock.InputStream{Frames: frames, Backlog: 3},
//	}
//	sess, err := audio.OpenCapture(dev, 160, tracker)
package mock

import (
	"sync"
	"time"

	"github.com/vesper-voice/vesper/pkg/audio"
)

// ─── InputStream ──────────────────────────────────────────────────────────────

// InputStream is a scripted implementation of [audio.InputStream].
//
// Read serves frames from Frames in order. The final Backlog frames count as
// "already captured but unread" for [InputStream.Buffered], which lets tests
// exercise the drain-on-stop path: after the test stops reading normally,
// Buffered still reports the backlog and Read keeps serving it.
type InputStream struct {
	mu sync.Mutex

	// Frames is the script of frames served by Read, in order.
	Frames []audio.AudioFrame

	// Backlog is how many of the trailing Frames count as buffered
	// device-side (reported by Buffered until they are read).
	Backlog int

	// ReadErrs maps a read index to an error returned alongside that frame,
	// e.g. audio.ErrOverflow to simulate a transient overflow mid-drain.
	ReadErrs map[int]error

	// ReadDelay, if non-zero, makes every Read sleep first, simulating a
	// device that delivers chunks in real time.
	ReadDelay time.Duration

	// CallCountClose records how many times Close was called.
	CallCountClose int

	pos    int
	closed bool
}

// Read implements [audio.InputStream]. Once the script is exhausted it
// returns [audio.ErrStreamClosed].
func (s *InputStream) Read() (audio.AudioFrame, error) {
	if s.ReadDelay > 0 {
		time.Sleep(s.ReadDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed && s.pos >= len(s.Frames) {
		return audio.AudioFrame{}, audio.ErrStreamClosed
	}
	if s.pos >= len(s.Frames) {
		return audio.AudioFrame{}, audio.ErrStreamClosed
	}
	frame := s.Frames[s.pos]
	var err error
	if s.ReadErrs != nil {
		err = s.ReadErrs[s.pos]
	}
	s.pos++
	return frame, err
}

// Buffered implements [audio.InputStream]: the number of unread scripted
// frames within the backlog window.
func (s *InputStream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := len(s.Frames) - s.pos
	if remaining > s.Backlog {
		return s.Backlog
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Close implements [audio.InputStream].
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.CallCountClose++
	return nil
}

// Delivered reports how many frames have been read so far.
func (s *InputStream) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// ─── OutputStream ─────────────────────────────────────────────────────────────

// OutputStream is a recording implementation of [audio.OutputStream].
type OutputStream struct {
	mu sync.Mutex

	// WriteErr, if non-nil, is returned by every Write.
	WriteErr error

	// Written records every frame passed to Write, in order.
	Written []audio.AudioFrame

	// CallCountClose records how many times Close was called.
	CallCountClose int

	closed bool
}

// Write implements [audio.OutputStream].
func (s *OutputStream) Write(frame audio.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrStreamClosed
	}
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.Written = append(s.Written, frame)
	return nil
}

// Close implements [audio.OutputStream].
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.CallCountClose++
	return nil
}

// WrittenFrames returns a snapshot of the frames written so far.
func (s *OutputStream) WrittenFrames() []audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.AudioFrame, len(s.Written))
	copy(out, s.Written)
	return out
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// DeviceName is returned by Name. Defaults to "mock".
	DeviceName string

	// Format is returned by NativeFormat.
	Format audio.Format

	// Input is returned by OpenInput. Nil simulates a playback-only device.
	Input *InputStream

	// Output is returned by OpenOutput. Nil simulates a capture-only device.
	Output *OutputStream

	// OpenInputErr, if non-nil, is returned by OpenInput.
	OpenInputErr error

	// OpenOutputErr, if non-nil, is returned by OpenOutput.
	OpenOutputErr error

	// CallCountOpenInput records how many times OpenInput was called.
	CallCountOpenInput int

	// CallCountOpenOutput records how many times OpenOutput was called.
	CallCountOpenOutput int

	// OpenInputConfigs records every StreamConfig passed to OpenInput.
	OpenInputConfigs []audio.StreamConfig

	// OpenOutputConfigs records every StreamConfig passed to OpenOutput.
	OpenOutputConfigs []audio.StreamConfig
}

// Name implements [audio.Device].
func (d *Device) Name() string {
	if d.DeviceName == "" {
		return "mock"
	}
	return d.DeviceName
}

// NativeFormat implements [audio.Device].
func (d *Device) NativeFormat() audio.Format { return d.Format }

// OpenInput implements [audio.Device].
func (d *Device) OpenInput(cfg audio.StreamConfig) (audio.InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountOpenInput++
	d.OpenInputConfigs = append(d.OpenInputConfigs, cfg)
	if d.OpenInputErr != nil {
		return nil, d.OpenInputErr
	}
	if d.Input == nil {
		return nil, audio.ErrStreamClosed
	}
	return d.Input, nil
}

// OpenOutput implements [audio.Device].
func (d *Device) OpenOutput(cfg audio.StreamConfig) (audio.OutputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountOpenOutput++
	d.OpenOutputConfigs = append(d.OpenOutputConfigs, cfg)
	if d.OpenOutputErr != nil {
		return nil, d.OpenOutputErr
	}
	if d.Output == nil {
		return nil, audio.ErrStreamClosed
	}
	return d.Output, nil
}
