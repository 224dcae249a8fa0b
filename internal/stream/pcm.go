package stream

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	bytesPerPCM16   = 2
	bytesPerFloat32 = 4
)

// PCM16ToFloat32 converts little-endian signed 16-bit samples to [-1, 1)
// floats. A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / bytesPerPCM16
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerPCM16:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// DecodeFloat32LE decodes little-endian IEEE-754 samples.
func DecodeFloat32LE(raw []byte) ([]float32, error) {
	if len(raw)%bytesPerFloat32 != 0 {
		return nil, fmt.Errorf("stream: float32 payload length %d is not a multiple of %d", len(raw), bytesPerFloat32)
	}
	out := make([]float32, len(raw)/bytesPerFloat32)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*bytesPerFloat32:]))
	}
	return out, nil
}

// EncodeFloat32LE is the inverse of DecodeFloat32LE.
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerFloat32)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*bytesPerFloat32:], math.Float32bits(s))
	}
	return out
}
