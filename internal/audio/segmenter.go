package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/umangiveystaff/iveymeetingnotetaker/internal/bus"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/capture"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/metrics"
)

// Engine is the segmenter's view of the speech-recognition boundary:
// a buffer of mono PCM-16 samples in, text out. It is satisfied by
// Engine implementations; declaring it here keeps audio from
// importing speech, which would form an import cycle.
type Engine interface {
	// Load prepares the engine for transcription. Idempotent; the first
	// call may be slow (model load).
	Load(ctx context.Context) error

	// Transcribe converts one chunk of samples into text. An empty
	// string means the chunk contained no recognizable speech.
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}

// Fragment is one transcribed chunk emitted to the coordinator. The
// timestamp is the completion time of transcription, not the time the
// audio was spoken.
type Fragment struct {
	Text      string
	Timestamp time.Time
}

// SegmenterConfig contains chunking parameters.
type SegmenterConfig struct {
	SampleRate          int
	Interval            time.Duration
	MinChunkDuration    time.Duration
	SilenceRMSThreshold float64
}

// Segmenter owns the live audio stream for one session. On a fixed
// interval it drains all samples accumulated since the previous drain
// into one chunk, gates out silence, and feeds the rest to the speech
// engine. A failed chunk is logged and absorbed; the stream continues.
type Segmenter struct {
	config  SegmenterConfig
	logger  *slog.Logger
	engine  Engine
	handle  capture.Handle
	events  *bus.Bus
	metrics *metrics.Metrics

	buffer *SampleBuffer
	out    chan Fragment

	stop     chan struct{}
	stopOnce sync.Once

	// engineReady tracks the once-per-session lazy load.
	engineReady bool
}

// NewSegmenter creates a segmenter reading from handle. Call Start to
// begin chunking.
func NewSegmenter(config SegmenterConfig, logger *slog.Logger, engine Engine,
	handle capture.Handle, events *bus.Bus, m *metrics.Metrics) *Segmenter {

	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}

	return &Segmenter{
		config:  config,
		logger:  logger,
		engine:  engine,
		handle:  handle,
		events:  events,
		metrics: m,
		buffer:  NewSampleBuffer(config.SampleRate * int(config.Interval.Seconds()+1)),
		out:     make(chan Fragment),
		stop:    make(chan struct{}),
	}
}

// Fragments returns the fragment stream. The channel is closed once the
// segmenter has fully drained after Stop; closure is the drain-complete
// signal.
func (s *Segmenter) Fragments() <-chan Fragment {
	return s.out
}

// Start launches the capture collector and the chunk timer.
func (s *Segmenter) Start() {
	go s.collect()
	go s.run()
}

// Stop halts new chunk admission immediately. A chunk already
// mid-transcription is allowed to complete and emit its fragment before
// the fragment channel closes (best-effort drain).
func (s *Segmenter) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// collect moves capture frames into the sample buffer until the handle
// stream ends or the segmenter stops.
func (s *Segmenter) collect() {
	for {
		select {
		case frame, ok := <-s.handle.Frames():
			if !ok {
				return
			}
			s.buffer.Append(frame)
		case <-s.stop:
			return
		}
	}
}

// run cuts one chunk per interval tick. The transcription call is
// synchronous, so a stop arriving mid-inference takes effect only after
// the in-flight chunk has completed and emitted.
func (s *Segmenter) run() {
	defer close(s.out)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Debug("segmenter started",
		slog.Duration("interval", s.config.Interval),
		slog.Int("sample_rate", s.config.SampleRate),
	)

	for {
		select {
		case <-s.stop:
			s.logger.Debug("segmenter stopping")
			return
		case <-ticker.C:
			s.processChunk(s.buffer.Drain())
		}
	}
}

// processChunk gates and transcribes one chunk. Silent or too-short
// chunks are discarded without involving the engine; this is intentional
// and never surfaces as an error.
func (s *Segmenter) processChunk(chunk []int16) {
	if len(chunk) == 0 {
		return
	}

	minSamples := int(float64(s.config.SampleRate) * s.config.MinChunkDuration.Seconds())
	if len(chunk) < minSamples {
		s.logger.Debug("discarding short chunk",
			slog.Int("samples", len(chunk)),
			slog.Int("min_samples", minSamples),
		)
		s.metrics.RecordChunkDiscarded(metrics.DiscardShort)
		return
	}

	if rms := RMS(chunk); rms < s.config.SilenceRMSThreshold {
		s.logger.Debug("discarding silent chunk",
			slog.Float64("rms", rms),
			slog.Float64("threshold", s.config.SilenceRMSThreshold),
		)
		s.metrics.RecordChunkDiscarded(metrics.DiscardSilence)
		return
	}

	if !s.ensureEngineLoaded() {
		return
	}

	startTime := time.Now()
	text, err := s.engine.Transcribe(context.Background(), chunk, s.config.SampleRate)
	elapsed := time.Since(startTime)

	if err != nil {
		// Absorbed: a single failed chunk must never abort the stream.
		s.logger.Warn("chunk transcription failed, continuing",
			slog.Int("samples", len(chunk)),
			slog.Duration("inference_time", elapsed),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordInferenceError()
		return
	}

	s.metrics.RecordChunkProcessed(elapsed.Seconds())

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.out <- Fragment{Text: text, Timestamp: time.Now()}
}

// ensureEngineLoaded performs the once-per-session lazy engine load,
// reporting progress as side-channel events to the UI. A failed load is
// logged and retried on the next chunk.
func (s *Segmenter) ensureEngineLoaded() bool {
	if s.engineReady {
		return true
	}

	s.events.Publish(bus.Event{Type: bus.EventEngineLoading, Message: "loading speech engine"})

	startTime := time.Now()
	if err := s.engine.Load(context.Background()); err != nil {
		s.logger.Error("speech engine load failed",
			slog.String("error", err.Error()),
		)
		s.events.Publish(bus.Event{Type: bus.EventError, Message: err.Error()})
		return false
	}

	s.metrics.RecordEngineLoad(time.Since(startTime).Seconds())
	s.engineReady = true
	s.events.Publish(bus.Event{Type: bus.EventEngineReady, Message: "speech engine ready"})
	s.logger.Info("speech engine loaded",
		slog.Duration("load_time", time.Since(startTime)),
	)
	return true
}
