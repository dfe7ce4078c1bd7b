package audio_test

import (
	"errors"
	"testing"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/audio/mock"
)

func monoFrame(rate int, samples int) audio.AudioFrame {
	return audio.AudioFrame{Data: make([]byte, samples*2), SampleRate: rate, Channels: 1}
}

func newCaptureDevice(frames []audio.AudioFrame, backlog int) *mock.Device {
	return &mock.Device{
		Format: audio.Format{SampleRate: 16000, Channels: 1},
		Input:  &mock.InputStream{Frames: frames, Backlog: backlog},
	}
}

func TestOpenCapture_SecondSessionRejectedWhileOpen(t *testing.T) {
	t.Parallel()

	tracker := audio.NewTracker()
	dev := newCaptureDevice(nil, 0)

	first, err := audio.OpenCapture(dev, 160, tracker)
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}

	if _, err := audio.OpenCapture(dev, 160, tracker); !errors.Is(err, audio.ErrDeviceBusy) {
		t.Errorf("second open: want ErrDeviceBusy, got %v", err)
	}

	if err := first.Close(nil); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if tracker.OpenCount() != 0 {
		t.Errorf("open sessions after close: want 0, got %d", tracker.OpenCount())
	}

	// After the close completes a new session may open.
	dev2 := newCaptureDevice(nil, 0)
	if _, err := audio.OpenCapture(dev2, 160, tracker); err != nil {
		t.Errorf("reopen after close: %v", err)
	}
}

func TestSession_CloseDrainsBufferedFrames(t *testing.T) {
	t.Parallel()

	frames := []audio.AudioFrame{
		monoFrame(16000, 160), monoFrame(16000, 160), monoFrame(16000, 160),
		monoFrame(16000, 160), monoFrame(16000, 160),
	}
	// Two frames are read normally; three remain buffered device-side at
	// stop time and must all be delivered by the drain.
	dev := newCaptureDevice(frames, 3)
	tracker := audio.NewTracker()

	sess, err := audio.OpenCapture(dev, 160, tracker)
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	for range 2 {
		if _, err := sess.Read(); err != nil {
			t.Fatalf("Read: %v", err)
		}
	}

	var drained int
	if err := sess.Close(func(audio.AudioFrame) { drained++ }); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if drained != 3 {
		t.Errorf("drained frames: want 3, got %d", drained)
	}
	if dev.Input.CallCountClose != 1 {
		t.Errorf("stream close calls: want 1, got %d", dev.Input.CallCountClose)
	}
}

func TestSession_DrainIgnoresTransientOverflow(t *testing.T) {
	t.Parallel()

	frames := []audio.AudioFrame{
		monoFrame(16000, 160), monoFrame(16000, 160), monoFrame(16000, 160),
	}
	dev := &mock.Device{
		Format: audio.Format{SampleRate: 16000, Channels: 1},
		Input: &mock.InputStream{
			Frames:   frames,
			Backlog:  3,
			ReadErrs: map[int]error{1: audio.ErrOverflow},
		},
	}
	tracker := audio.NewTracker()

	sess, err := audio.OpenCapture(dev, 160, tracker)
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}

	var drained int
	if err := sess.Close(func(audio.AudioFrame) { drained++ }); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if drained != 3 {
		t.Errorf("drained frames despite overflow: want 3, got %d", drained)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	dev := newCaptureDevice([]audio.AudioFrame{monoFrame(16000, 160)}, 0)
	tracker := audio.NewTracker()

	sess, err := audio.OpenCapture(dev, 160, tracker)
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	if err := sess.Close(nil); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(nil); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if dev.Input.CallCountClose != 1 {
		t.Errorf("stream close calls: want 1, got %d", dev.Input.CallCountClose)
	}
}

func TestOpenCapture_OpenFailureReleasesSlot(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{
		Format:       audio.Format{SampleRate: 16000, Channels: 1},
		OpenInputErr: errors.New("device unplugged"),
	}
	tracker := audio.NewTracker()

	_, err := audio.OpenCapture(dev, 160, tracker)
	var devErr *audio.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("want DeviceError, got %v", err)
	}
	if tracker.OpenCount() != 0 {
		t.Errorf("failed open must not leave a session registered, got %d", tracker.OpenCount())
	}
}

func TestOpenPlayback_WriteAndClose(t *testing.T) {
	t.Parallel()

	out := &mock.OutputStream{}
	dev := &mock.Device{
		Format: audio.Format{SampleRate: 44100, Channels: 1},
		Output: out,
	}
	tracker := audio.NewTracker()

	pb, err := audio.OpenPlayback(dev, 441, tracker)
	if err != nil {
		t.Fatalf("OpenPlayback: %v", err)
	}
	if err := pb.Write(monoFrame(44100, 441)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := pb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(out.WrittenFrames()) != 1 {
		t.Errorf("written frames: want 1, got %d", len(out.WrittenFrames()))
	}
	if tracker.OpenCount() != 0 {
		t.Errorf("open sessions after close: want 0, got %d", tracker.OpenCount())
	}
}
