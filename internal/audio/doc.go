// Package audio handles live sample buffering, interval-based chunking,
// RMS silence gating, and WAV encoding for the speech engine. The
// Segmenter is the producer side of the transcription pipeline.
package audio
