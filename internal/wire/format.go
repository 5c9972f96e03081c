// ABOUTME: AudioFormat descriptor encode/decode
// ABOUTME: Self-describing capture format carried as the GetFormat payload
package wire

import (
	"encoding/binary"
	"fmt"
)

// Encoding identifies the sample encoding carried by an AudioFormat.
type Encoding uint32

const (
	// EncodingPCM16 is signed 16-bit little-endian PCM.
	EncodingPCM16 Encoding = 0
	// EncodingFloat32 is IEEE float32 little-endian PCM.
	EncodingFloat32 Encoding = 1
)

func (e Encoding) String() string {
	switch e {
	case EncodingPCM16:
		return "pcm16"
	case EncodingFloat32:
		return "float32"
	default:
		return fmt.Sprintf("Encoding(%d)", uint32(e))
	}
}

// BytesPerSample returns the size of a single-channel sample for e, or 0 if
// e is not a recognized encoding.
func (e Encoding) BytesPerSample() int {
	switch e {
	case EncodingPCM16:
		return 2
	case EncodingFloat32:
		return 4
	default:
		return 0
	}
}

// AudioFormat describes the capture/playback PCM format. It is carried on
// the wire as an opaque, length-prefixed byte string (see ReadFormatReply /
// WriteFormatReply); Encode/Decode define that string's contents.
type AudioFormat struct {
	SampleRate uint32
	Channels   uint32
	Encoding   Encoding
}

// formatPayloadSize is the fixed encoded length: sample_rate, channels,
// encoding, each a u32.
const formatPayloadSize = 12

// BlockAlign returns the number of bytes representing one fully specified
// sample frame across all channels.
func (f AudioFormat) BlockAlign() int {
	return int(f.Channels) * f.Encoding.BytesPerSample()
}

// Encode serializes f to its wire payload.
func (f AudioFormat) Encode() []byte {
	buf := make([]byte, formatPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.SampleRate)
	binary.LittleEndian.PutUint32(buf[4:8], f.Channels)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(f.Encoding))
	return buf
}

// DecodeAudioFormat parses a GetFormat payload produced by Encode.
func DecodeAudioFormat(payload []byte) (AudioFormat, error) {
	if len(payload) < formatPayloadSize {
		return AudioFormat{}, fmt.Errorf("audio format: want at least %d bytes, got %d", formatPayloadSize, len(payload))
	}
	f := AudioFormat{
		SampleRate: binary.LittleEndian.Uint32(payload[0:4]),
		Channels:   binary.LittleEndian.Uint32(payload[4:8]),
		Encoding:   Encoding(binary.LittleEndian.Uint32(payload[8:12])),
	}
	if f.Channels == 0 {
		return AudioFormat{}, fmt.Errorf("audio format: channels must be nonzero")
	}
	if f.Encoding.BytesPerSample() == 0 {
		return AudioFormat{}, fmt.Errorf("audio format: unknown encoding %d", f.Encoding)
	}
	return f, nil
}
