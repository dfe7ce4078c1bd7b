// Package audio defines the audio data model and device abstractions for
// Vesper: PCM frames, format conversion, capture buffering, and the
// [Device] / [InputStream] / [OutputStream] interfaces that platform-specific
// adapter packages (audio/portaudio, audio/oto) implement.
//
// This package lives under pkg/ because external code (alternative device
// backends) is expected to implement [Device].
package audio

import "errors"

// ErrOverflow is the transient error an [InputStream.Read] returns when the
// device's internal ring buffer overran between reads. Data already queued is
// still readable; callers should log and continue. During a drain it is
// ignored entirely so that shutdown always completes.
var ErrOverflow = errors.New("audio: input overflow")

// ErrStreamClosed is returned by reads and writes on a closed stream.
var ErrStreamClosed = errors.New("audio: stream closed")

// StreamConfig describes how a device stream is opened.
type StreamConfig struct {
	// Format is the stream format. It must be the device's native format;
	// devices never resample (see [Device.NativeFormat]).
	Format Format

	// ChunkSamples is the number of samples per channel delivered by each
	// Read or accepted by each Write.
	ChunkSamples int
}

// InputStream is an open capture stream on a device.
//
// Implementations must be safe for concurrent use.
type InputStream interface {
	// Read blocks until one chunk of audio is available and returns it as a
	// frame in the stream's format. Returns [ErrOverflow] if the device
	// buffer overran (the frame is still valid), or [ErrStreamClosed] after
	// Close.
	Read() (AudioFrame, error)

	// Buffered reports the number of samples per channel already captured by
	// the device and not yet consumed by Read. Used by [Session.Close] to
	// drain without loss.
	Buffered() int

	// Close stops capture and releases the device handle. Data still
	// buffered device-side becomes unreadable; drain with Buffered/Read
	// first. Safe to call more than once.
	Close() error
}

// OutputStream is an open playback stream on a device.
//
// Implementations must be safe for concurrent use.
type OutputStream interface {
	// Write queues one frame for playback. The frame must carry the stream's
	// format. Write may block while the device buffer is full; it returns
	// [ErrStreamClosed] after Close.
	Write(AudioFrame) error

	// Close flushes queued audio, waits for playback to finish, and releases
	// the device handle. Safe to call more than once.
	Close() error
}

// Device is the entry point for an audio I/O backend. Implementations wrap a
// platform library (PortAudio, oto, …) and expose streams in the device's
// native format only — rate conversion is the pipeline's job, so cost and
// fidelity decisions stay in one place.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Name is a human-readable device identifier for logs and events.
	Name() string

	// NativeFormat reports the device's native sample rate and channel
	// count. OpenInput and OpenOutput reject any other format.
	NativeFormat() Format

	// OpenInput opens a capture stream. Returns an error if the device has
	// no capture capability, the format is not native, or the device is busy.
	OpenInput(cfg StreamConfig) (InputStream, error)

	// OpenOutput opens a playback stream. Returns an error if the device has
	// no playback capability or the format is not native.
	OpenOutput(cfg StreamConfig) (OutputStream, error)
}

// DeviceError describes a device open/read/write failure. It wraps the
// underlying platform error.
type DeviceError struct {
	// Op is the failing operation: "open", "read", "write", or "close".
	Op string

	// Device is the device name, when known.
	Device string

	// Err is the underlying platform error.
	Err error
}

func (e *DeviceError) Error() string {
	if e.Device == "" {
		return "audio: device " + e.Op + ": " + e.Err.Error()
	}
	return "audio: device " + e.Op + " (" + e.Device + "): " + e.Err.Error()
}

func (e *DeviceError) Unwrap() error { return e.Err }
