package audio

import (
	"fmt"
	"sync"
)

// CaptureBuffer accumulates raw frames in a device's native format and hands
// them back resampled to a requested target format, re-chunked to a
// caller-requested size. It is the staging area between an input device and
// an STT provider: the device appends whatever chunk size it produces, the
// consumer takes whatever the provider requires.
//
// CaptureBuffer never drops data: every sample appended is represented in the
// next Take or Frame call. It is safe for concurrent use.
type CaptureBuffer struct {
	mu     sync.Mutex
	native Format
	pcm    []byte
}

// NewCaptureBuffer returns an empty buffer for frames in the given native
// device format.
func NewCaptureBuffer(native Format) *CaptureBuffer {
	return &CaptureBuffer{native: native}
}

// Append adds a captured frame to the buffer. The frame must carry the
// buffer's native format; a device session never changes format mid-stream,
// so a mismatch indicates a programming error and is rejected.
func (b *CaptureBuffer) Append(frame AudioFrame) error {
	if frame.Format() != b.native {
		return fmt.Errorf("audio: frame format %dHz/%dch does not match buffer native %dHz/%dch",
			frame.SampleRate, frame.Channels, b.native.SampleRate, b.native.Channels)
	}
	b.mu.Lock()
	b.pcm = append(b.pcm, frame.Data...)
	b.mu.Unlock()
	return nil
}

// Len returns the number of buffered bytes.
func (b *CaptureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pcm)
}

// Frame returns all buffered audio as a single frame in the native format.
// The buffer is not cleared; the returned slice is a copy.
func (b *CaptureBuffer) Frame() AudioFrame {
	b.mu.Lock()
	data := make([]byte, len(b.pcm))
	copy(data, b.pcm)
	b.mu.Unlock()
	return AudioFrame{Data: data, SampleRate: b.native.SampleRate, Channels: b.native.Channels}
}

// Take drains the buffer and returns its contents peak-normalized, converted
// to target, and split into chunks of chunkSamples samples per channel. The
// final chunk may be shorter; no buffered data is ever discarded.
// chunkSamples <= 0 yields a single chunk with everything.
//
// Normalization brings quiet captures up to full scale before they reach a
// transcription backend; Frame is the way to read the raw capture.
func (b *CaptureBuffer) Take(target Format, chunkSamples int) ([]AudioFrame, error) {
	b.mu.Lock()
	pcm := b.pcm
	b.pcm = nil
	b.mu.Unlock()

	if len(pcm) == 0 {
		return nil, nil
	}
	pcm = Normalize(pcm)

	converted, err := Convert(AudioFrame{
		Data:       pcm,
		SampleRate: b.native.SampleRate,
		Channels:   b.native.Channels,
	}, target)
	if err != nil {
		return nil, err
	}
	if chunkSamples <= 0 {
		return []AudioFrame{converted}, nil
	}

	stride := 2 * target.Channels
	chunkBytes := chunkSamples * stride
	var out []AudioFrame
	for off := 0; off < len(converted.Data); off += chunkBytes {
		end := min(off+chunkBytes, len(converted.Data))
		out = append(out, AudioFrame{
			Data:       converted.Data[off:end],
			SampleRate: target.SampleRate,
			Channels:   target.Channels,
		})
	}
	return out, nil
}

// Reset discards all buffered audio.
func (b *CaptureBuffer) Reset() {
	b.mu.Lock()
	b.pcm = nil
	b.mu.Unlock()
}
