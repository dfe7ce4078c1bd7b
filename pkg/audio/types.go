package audio

import "time"

// AudioFrame represents a run of PCM audio flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from an input
// device, buffered and resampled, handed to STT, returned by TTS, and played
// through an output device.
//
// Sample rate and channel count are fixed when the frame is produced by a
// device session and are never rewritten in place; conversions allocate a new
// frame.
type AudioFrame struct {
	// PCM audio data: 16-bit signed little-endian samples, channels interleaved.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT input, 44100 for playback).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Format returns the frame's sample rate and channel count as a [Format].
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Samples returns the number of samples per channel contained in the frame.
func (f AudioFrame) Samples() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Data) / (2 * f.Channels)
}

// Duration returns the playback duration of the frame at its own sample rate.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}
