// Package pcm provides sample-format conversions between floating-point
// audio and 16-bit signed little-endian PCM, plus small buffer helpers used
// by the streaming bridge.
package pcm

import (
	"encoding/base64"
	"math"
)

// BytesPerSample is the width of one PCM16 sample on the wire.
const BytesPerSample = 2

// FloatToPCM16 converts float32 samples in [-1.0, 1.0] to little-endian
// int16 PCM. Out-of-range samples are clamped before conversion. Each sample
// is scaled by 32767 and rounded to the nearest integer.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(math.Round(float64(s) * 32767))
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

// PCM16ToFloat converts little-endian int16 PCM back to float32 samples in
// [-1.0, 1.0]. A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := range n {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32767
	}
	return out
}

// Combine concatenates sample chunks into one contiguous buffer.
// The input chunks are not modified.
func Combine(chunks [][]float32) []float32 {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]float32, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// EncodeBase64 returns the standard base64 encoding of a binary payload.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a standard base64 payload. Returns (nil, false) on
// malformed input.
func DecodeBase64(s string) ([]byte, bool) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return data, true
}
