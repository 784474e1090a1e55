package audio

import (
	"math"
	"testing"
)

func TestSampleBufferAppendDrain(t *testing.T) {
	buf := NewSampleBuffer(1000)

	buf.Append([]int16{1, 2, 3})
	buf.Append([]int16{4, 5})

	if buf.Len() != 5 {
		t.Errorf("Len = %d, want 5", buf.Len())
	}

	chunk := buf.Drain()
	if len(chunk) != 5 {
		t.Fatalf("Drained %d samples, want 5", len(chunk))
	}
	for i, want := range []int16{1, 2, 3, 4, 5} {
		if chunk[i] != want {
			t.Errorf("chunk[%d] = %d, want %d", i, chunk[i], want)
		}
	}

	if buf.Len() != 0 {
		t.Errorf("Len after drain = %d, want 0", buf.Len())
	}
}

func TestSampleBufferDrainEmpty(t *testing.T) {
	buf := NewSampleBuffer(0)
	if chunk := buf.Drain(); chunk != nil {
		t.Errorf("Drain on empty buffer = %v, want nil", chunk)
	}
}

func TestSampleBufferDrainIsolation(t *testing.T) {
	buf := NewSampleBuffer(100)
	buf.Append([]int16{10, 20})

	chunk := buf.Drain()
	buf.Append([]int16{30})

	if len(chunk) != 2 || chunk[0] != 10 || chunk[1] != 20 {
		t.Errorf("Earlier drain mutated by later append: %v", chunk)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}
	if got := RMS([]int16{0, 0, 0, 0}); got != 0 {
		t.Errorf("RMS of silence = %f, want 0", got)
	}

	// Constant amplitude: RMS equals the amplitude.
	if got := RMS([]int16{1000, -1000, 1000, -1000}); math.Abs(got-1000) > 0.001 {
		t.Errorf("RMS of ±1000 square wave = %f, want 1000", got)
	}

	// Quiet signal sits below the default silence threshold, loud above.
	quiet := make([]int16, 16000)
	loud := make([]int16, 16000)
	for i := range quiet {
		quiet[i] = 50
		loud[i] = 5000
	}
	if got := RMS(quiet); got >= 500 {
		t.Errorf("Quiet RMS = %f, expected below 500", got)
	}
	if got := RMS(loud); got <= 500 {
		t.Errorf("Loud RMS = %f, expected above 500", got)
	}
}
