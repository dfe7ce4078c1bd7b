package audio

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDeviceBusy is returned by [Tracker.Acquire] while another session still
// holds the device, including a session whose Close has not yet completed.
// Audio devices are exclusive; a second open would fail at the platform layer
// with a much less helpful error.
var ErrDeviceBusy = errors.New("audio: device busy: a session is already open")

// Tracker enforces the one-open-session rule and answers the "is anything
// still open?" teardown check. The pipeline owns one Tracker and threads it
// through every session it opens.
type Tracker struct {
	mu   sync.Mutex
	open map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{open: make(map[string]struct{})}
}

// Acquire registers a new session ID. It fails with [ErrDeviceBusy] if any
// session is still registered — a prior session's close must complete before
// a new one may open.
func (t *Tracker) Acquire(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.open) > 0 {
		return ErrDeviceBusy
	}
	t.open[id] = struct{}{}
	return nil
}

// Release removes a session ID. Releasing an unknown ID is a no-op.
func (t *Tracker) Release(id string) {
	t.mu.Lock()
	delete(t.open, id)
	t.mu.Unlock()
}

// OpenCount reports how many sessions are currently registered.
func (t *Tracker) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// Session represents one exclusive open capture stream on a device for the
// duration of one listening cycle. It is opened on pipeline start, closed
// exactly once on stop (including on error), and never reopened while a prior
// session's close is incomplete — the [Tracker] enforces that.
type Session struct {
	id     string
	device string
	stream InputStream
	native Format
	chunk  int

	tracker   *Tracker
	started   time.Time
	closeOnce sync.Once
	closeErr  error
}

// OpenCapture opens an input stream on dev in its native format and registers
// the session with tracker. chunkSamples is the per-read chunk size in
// samples per channel.
func OpenCapture(dev Device, chunkSamples int, tracker *Tracker) (*Session, error) {
	id := uuid.NewString()
	if err := tracker.Acquire(id); err != nil {
		return nil, err
	}

	native := dev.NativeFormat()
	stream, err := dev.OpenInput(StreamConfig{Format: native, ChunkSamples: chunkSamples})
	if err != nil {
		tracker.Release(id)
		return nil, &DeviceError{Op: "open", Device: dev.Name(), Err: err}
	}

	return &Session{
		id:      id,
		device:  dev.Name(),
		stream:  stream,
		native:  native,
		chunk:   chunkSamples,
		tracker: tracker,
		started: time.Now(),
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// NativeFormat returns the device-native format all frames from this session
// carry.
func (s *Session) NativeFormat() Format { return s.native }

// Read blocks for the next captured chunk. An [ErrOverflow] result still
// carries a valid frame; any other error means the stream is unusable.
func (s *Session) Read() (AudioFrame, error) {
	frame, err := s.stream.Read()
	if err != nil && !errors.Is(err, ErrOverflow) {
		return frame, &DeviceError{Op: "read", Device: s.device, Err: err}
	}
	frame.Timestamp = time.Since(s.started)
	return frame, nil
}

// Close drains everything the device has already captured and then closes the
// stream, releasing the session slot. Each drained frame is passed to consume
// (which may be nil to discard). Draining reads in the device-native chunk
// size and ignores transient overflow errors so that stop never loses
// buffered audio and shutdown always completes; hard device errors during
// drain are logged and absorbed.
//
// Close is safe to call multiple times; subsequent calls return the first
// result.
func (s *Session) Close(consume func(AudioFrame)) error {
	s.closeOnce.Do(func() {
		for s.stream.Buffered() > 0 {
			frame, err := s.stream.Read()
			if err != nil {
				if errors.Is(err, ErrOverflow) {
					// Transient: the frame is valid, keep draining.
				} else {
					slog.Warn("audio: drain aborted by device error", "device", s.device, "err", err)
					break
				}
			}
			if consume != nil && len(frame.Data) > 0 {
				frame.Timestamp = time.Since(s.started)
				consume(frame)
			}
		}
		if err := s.stream.Close(); err != nil {
			s.closeErr = &DeviceError{Op: "close", Device: s.device, Err: err}
		}
		s.tracker.Release(s.id)
	})
	return s.closeErr
}

// Playback represents one exclusive open playback stream, closed exactly once.
type Playback struct {
	id      string
	device  string
	stream  OutputStream
	format  Format
	tracker *Tracker

	closeOnce sync.Once
	closeErr  error
}

// OpenPlayback opens an output stream on dev in its native format and
// registers the session with tracker.
func OpenPlayback(dev Device, chunkSamples int, tracker *Tracker) (*Playback, error) {
	id := uuid.NewString()
	if err := tracker.Acquire(id); err != nil {
		return nil, err
	}

	native := dev.NativeFormat()
	stream, err := dev.OpenOutput(StreamConfig{Format: native, ChunkSamples: chunkSamples})
	if err != nil {
		tracker.Release(id)
		return nil, &DeviceError{Op: "open", Device: dev.Name(), Err: err}
	}

	return &Playback{id: id, device: dev.Name(), stream: stream, format: native, tracker: tracker}, nil
}

// NativeFormat returns the format frames written to this session must carry.
func (p *Playback) NativeFormat() Format { return p.format }

// Write queues one frame for playback.
func (p *Playback) Write(frame AudioFrame) error {
	if err := p.stream.Write(frame); err != nil {
		return &DeviceError{Op: "write", Device: p.device, Err: err}
	}
	return nil
}

// Close flushes and closes the stream and releases the session slot. Safe to
// call multiple times.
func (p *Playback) Close() error {
	p.closeOnce.Do(func() {
		if err := p.stream.Close(); err != nil {
			p.closeErr = &DeviceError{Op: "close", Device: p.device, Err: err}
		}
		p.tracker.Release(p.id)
	})
	return p.closeErr
}
