package audio

import (
	"math"
	"sync"
)

// SampleBuffer accumulates live PCM samples between chunk cuts. The
// capture collector appends frames; the segmenter tick drains everything
// accumulated since the previous drain as one chunk.
type SampleBuffer struct {
	samples []int16
	mu      sync.Mutex
}

// NewSampleBuffer creates a buffer pre-sized for one chunk interval.
func NewSampleBuffer(capacity int) *SampleBuffer {
	if capacity <= 0 {
		capacity = 16000 * 5
	}
	return &SampleBuffer{samples: make([]int16, 0, capacity)}
}

// Append adds a frame of samples to the buffer.
func (b *SampleBuffer) Append(frame []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, frame...)
}

// Drain removes and returns everything accumulated since the previous
// drain. Returns nil when empty.
func (b *SampleBuffer) Drain() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.samples) == 0 {
		return nil
	}
	chunk := b.samples
	b.samples = make([]int16, 0, cap(chunk))
	return chunk
}

// Len returns the number of buffered samples.
func (b *SampleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// RMS computes the root-mean-square amplitude of samples in the int16
// domain. An empty slice has zero amplitude.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	return math.Sqrt(energy / float64(len(samples)))
}
