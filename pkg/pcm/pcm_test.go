package pcm_test

import (
	"math"
	"testing"

	"github.com/streamlation/audiolink/pkg/pcm"
)

func TestFloatToPCM16_KnownValues(t *testing.T) {
	got := pcm.FloatToPCM16([]float32{0, 1, -1})
	want := []byte{
		0x00, 0x00, // 0
		0xff, 0x7f, // 32767
		0x01, 0x80, // -32767
	}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: got %#02x, want %#02x", i, got[i], want[i])
		}
	}
}

func TestFloatToPCM16_Clamping(t *testing.T) {
	got := pcm.FloatToPCM16([]float32{2.5, -3.0})
	samples := pcm.PCM16ToFloat(got)
	if samples[0] != 1.0 {
		t.Errorf("positive overflow: got %f, want 1.0", samples[0])
	}
	if samples[1] != -1.0 {
		t.Errorf("negative overflow: got %f, want -1.0", samples[1])
	}
}

func TestRoundTrip_QuantizationError(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.123456, -0.987654, 1, -1, 0.000001}
	out := pcm.PCM16ToFloat(pcm.FloatToPCM16(in))
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
	const maxErr = 1.0 / 32767
	for i := range in {
		diff := math.Abs(float64(in[i]) - float64(out[i]))
		if diff > maxErr {
			t.Errorf("sample %d: quantization error %g exceeds %g", i, diff, maxErr)
		}
	}
}

func TestPCM16ToFloat_OddTrailingByte(t *testing.T) {
	out := pcm.PCM16ToFloat([]byte{0x00, 0x40, 0xff})
	if len(out) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(out))
	}
}

func TestCombine(t *testing.T) {
	combined := pcm.Combine([][]float32{{1, 2}, nil, {3}, {4, 5}})
	want := []float32{1, 2, 3, 4, 5}
	if len(combined) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(combined), len(want))
	}
	for i := range want {
		if combined[i] != want[i] {
			t.Errorf("sample %d: got %f, want %f", i, combined[i], want[i])
		}
	}
}

func TestBase64RoundTrip(t *testing.T) {
	data := []byte{0x01, 0x02, 0xfe, 0xff}
	decoded, ok := pcm.DecodeBase64(pcm.EncodeBase64(data))
	if !ok {
		t.Fatal("decode failed")
	}
	if string(decoded) != string(data) {
		t.Errorf("got %v, want %v", decoded, data)
	}
}

func TestDecodeBase64_Malformed(t *testing.T) {
	if _, ok := pcm.DecodeBase64("not-base64!!!"); ok {
		t.Error("expected failure for malformed input")
	}
}
