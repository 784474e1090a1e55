// Package metrics provides Prometheus instrumentation for the audio
// pipeline, transcript store, and HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Discard reasons recorded on ChunksDiscarded.
const (
	DiscardShort   = "short"
	DiscardSilence = "silence"
)

// Metrics contains all Prometheus metrics for the note taker service.
type Metrics struct {
	// Audio pipeline metrics
	ChunksProcessed prometheus.Counter
	ChunksDiscarded *prometheus.CounterVec
	InferenceErrors prometheus.Counter
	InferenceTime   prometheus.Histogram
	EngineLoadTime  prometheus.Histogram

	// Transcript metrics
	FragmentsAppended prometheus.Counter
	SpeakerChanges    prometheus.Counter

	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter

	// Notes generation metrics
	NotesRequests prometheus.Counter
	NotesFailures prometheus.Counter
	NotesTime     prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// New creates all metrics and registers them with reg. Tests pass a
// fresh registry; main passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChunksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "notetaker_chunks_processed_total",
			Help: "Total number of audio chunks submitted to the speech engine",
		}),
		ChunksDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notetaker_chunks_discarded_total",
			Help: "Total number of audio chunks discarded before transcription",
		}, []string{"reason"}),
		InferenceErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "notetaker_inference_errors_total",
			Help: "Total number of per-chunk transcription failures (absorbed)",
		}),
		InferenceTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notetaker_inference_duration_seconds",
			Help:    "Duration of speech engine inference calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		EngineLoadTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notetaker_engine_load_duration_seconds",
			Help:    "Duration of lazy speech engine loads",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),
		FragmentsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "notetaker_fragments_appended_total",
			Help: "Total number of transcript entries appended",
		}),
		SpeakerChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "notetaker_speaker_changes_total",
			Help: "Total number of deduplicated speaker change events",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "notetaker_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "notetaker_sessions_stopped_total",
			Help: "Total number of capture sessions stopped and drained",
		}),
		NotesRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "notetaker_notes_requests_total",
			Help: "Total number of notes generation requests",
		}),
		NotesFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "notetaker_notes_failures_total",
			Help: "Total number of failed notes generation requests",
		}),
		NotesTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "notetaker_notes_duration_seconds",
			Help:    "Duration of summarization endpoint calls",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 9), // 0.5s to ~4 minutes
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notetaker_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notetaker_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notetaker_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkProcessed records a chunk submitted for inference.
func (m *Metrics) RecordChunkProcessed(inferenceSeconds float64) {
	m.ChunksProcessed.Inc()
	m.InferenceTime.Observe(inferenceSeconds)
}

// RecordChunkDiscarded records a chunk dropped before transcription.
func (m *Metrics) RecordChunkDiscarded(reason string) {
	m.ChunksDiscarded.WithLabelValues(reason).Inc()
}

// RecordInferenceError records an absorbed per-chunk transcription failure.
func (m *Metrics) RecordInferenceError() {
	m.InferenceErrors.Inc()
}

// RecordEngineLoad records a completed lazy engine load.
func (m *Metrics) RecordEngineLoad(seconds float64) {
	m.EngineLoadTime.Observe(seconds)
}

// RecordFragmentAppended increments the appended entries counter.
func (m *Metrics) RecordFragmentAppended() {
	m.FragmentsAppended.Inc()
}

// RecordSpeakerChange increments the speaker change counter.
func (m *Metrics) RecordSpeakerChange() {
	m.SpeakerChanges.Inc()
}

// RecordSessionStarted increments the sessions started counter.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionStopped increments the sessions stopped counter.
func (m *Metrics) RecordSessionStopped() {
	m.SessionsStopped.Inc()
}

// RecordNotesRequest records a notes generation attempt and its outcome.
func (m *Metrics) RecordNotesRequest(seconds float64, failed bool) {
	m.NotesRequests.Inc()
	m.NotesTime.Observe(seconds)
	if failed {
		m.NotesFailures.Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
