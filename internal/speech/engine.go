package speech

import (
	"context"
	"errors"
)

// ErrModelLoad indicates the speech model could not be loaded.
var ErrModelLoad = errors.New("speech model load failed")

// Engine is the opaque speech-recognition boundary: a buffer of mono
// PCM-16 samples in, text out. Implementations are synchronous per call
// from the segmenter's perspective.
type Engine interface {
	// Load prepares the engine for transcription. Idempotent; the first
	// call may be slow (model load).
	Load(ctx context.Context) error

	// Transcribe converts one chunk of samples into text. An empty
	// string means the chunk contained no recognizable speech.
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}
