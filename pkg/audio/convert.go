package audio

import (
	"fmt"
	"math"
)

// Normalize scales 16-bit PCM so that the loudest sample maps to full scale.
// An all-zero input is returned unchanged (there is nothing to scale against),
// as is an empty input. The result is a new buffer; pcm is never mutated.
func Normalize(pcm []byte) []byte {
	if len(pcm) < 2 {
		return pcm
	}
	n := len(pcm) / 2

	var peak int32
	for i := range n {
		s := int32(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak == 0 {
		return pcm
	}

	gain := 32767.0 / float64(peak)
	out := make([]byte, n*2)
	for i := range n {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		scaled := int32(math.Round(s * gain))
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		out[i*2] = byte(scaled)
		out[i*2+1] = byte(scaled >> 8)
	}
	return out
}

// ResampleCount returns the number of per-channel output samples produced by
// resampling n input samples from srcRate to dstRate: round(n·dstRate/srcRate).
func ResampleCount(n, srcRate, dstRate int) int {
	return int((int64(n)*int64(dstRate) + int64(srcRate)/2) / int64(srcRate))
}

// Resample converts 16-bit interleaved PCM from srcRate to dstRate using
// linear interpolation. The conversion is closed-form and deterministic:
// identical input always yields byte-identical output, and the output length
// is ResampleCount(samples, srcRate, dstRate) per channel.
//
// If srcRate equals dstRate, or either rate is non-positive, the input is
// returned unchanged with no work done.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	if channels <= 0 {
		channels = 1
	}
	stride := 2 * channels
	srcFrames := len(pcm) / stride
	if srcFrames == 0 {
		return nil
	}
	dstFrames := ResampleCount(srcFrames, srcRate, dstRate)
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*stride)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		if srcIdx >= srcFrames {
			srcIdx = srcFrames - 1
		}
		frac := srcPos - float64(srcIdx)

		for ch := range channels {
			o0 := (srcIdx*channels + ch) * 2
			s0 := int16(pcm[o0]) | int16(pcm[o0+1])<<8
			s1 := s0
			if srcIdx+1 < srcFrames {
				o1 := ((srcIdx+1)*channels + ch) * 2
				s1 = int16(pcm[o1]) | int16(pcm[o1+1])<<8
			}
			v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			d := (i*channels + ch) * 2
			out[d] = byte(v)
			out[d+1] = byte(v >> 8)
		}
	}
	return out
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// Convert returns frame converted to the target format. If the source format
// already matches, the frame is returned unchanged (zero allocation).
// Conversion order: resample first, then channel convert.
func Convert(frame AudioFrame, target Format) (AudioFrame, error) {
	if len(frame.Data)%2 != 0 {
		return AudioFrame{}, fmt.Errorf("audio: odd byte count %d in PCM data", len(frame.Data))
	}
	if frame.SampleRate == target.SampleRate && frame.Channels == target.Channels {
		return frame, nil
	}

	pcm := frame.Data
	channels := frame.Channels
	if frame.SampleRate != target.SampleRate {
		pcm = Resample(pcm, channels, frame.SampleRate, target.SampleRate)
	}
	switch {
	case channels == 1 && target.Channels == 2:
		pcm = MonoToStereo(pcm)
	case channels == 2 && target.Channels == 1:
		pcm = StereoToMono(pcm)
	case channels != target.Channels:
		return AudioFrame{}, fmt.Errorf("audio: unsupported channel conversion %d -> %d", channels, target.Channels)
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: target.SampleRate,
		Channels:   target.Channels,
		Timestamp:  frame.Timestamp,
	}, nil
}

// RMS computes the root-mean-square energy of 16-bit PCM in native units
// (0..32767). It is the basis for the pipeline's level meter and silence
// detection. Empty input has zero energy.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
