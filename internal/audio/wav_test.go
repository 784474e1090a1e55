package audio

import (
	"testing"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768, 42}

	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Errorf("Encoded size = %d, want %d", len(data), 44+len(samples)*2)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("Decoded sample rate = %d, want 16000", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("Decoded %d samples, want %d", len(decoded), len(samples))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Sample %d = %d, want %d", i, decoded[i], samples[i])
		}
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("Expected error for empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	if _, _, err := DecodeWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for truncated data")
	}

	valid, err := EncodeWAV([]int16{1, 2, 3}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	corrupt := make([]byte, len(valid))
	copy(corrupt, valid)
	copy(corrupt[0:4], "JUNK")
	if _, _, err := DecodeWAV(corrupt); err == nil {
		t.Error("Expected error for missing RIFF header")
	}
}
