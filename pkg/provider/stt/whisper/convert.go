package whisper

import "encoding/binary"

// pcmToFloat32 converts little-endian int16 PCM into the [-1, 1] float32
// samples the whisper bindings consume. A trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		samples[i] = float32(s) / 32768
	}
	return samples
}
