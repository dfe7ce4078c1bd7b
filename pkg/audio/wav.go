package audio

import (
	"encoding/binary"
	"errors"
)

// EncodeWAV wraps a PCM frame in a minimal RIFF/WAVE container (PCM format
// tag, 16 bits per sample). Used to hand captured utterances to batch STT
// backends and to dump scratch copies to disk.
func EncodeWAV(frame AudioFrame) []byte {
	dataLen := len(frame.Data)
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(frame.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(frame.SampleRate))
	byteRate := frame.SampleRate * frame.Channels * 2
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(frame.Channels*2)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                      // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[44:], frame.Data)
	return buf
}

// DecodeWAV extracts the PCM payload and format from a RIFF/WAVE container.
// It walks the RIFF chunks rather than assuming a fixed 44-byte header
// because the fmt chunk size may vary between encoders.
func DecodeWAV(wav []byte) (AudioFrame, error) {
	if len(wav) < 12 {
		return AudioFrame{}, errors.New("audio: WAV data too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return AudioFrame{}, errors.New("audio: WAV data missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return AudioFrame{}, errors.New("audio: WAV data missing WAVE identifier")
	}

	var frame AudioFrame
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				frame.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				frame.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return AudioFrame{}, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			end := min(offset+8+chunkSize, len(wav))
			frame.Data = wav[offset+8 : end]
			return frame, nil
		}

		// Chunks are word-aligned: pad by one byte if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return AudioFrame{}, errors.New("audio: WAV data missing data chunk")
}
