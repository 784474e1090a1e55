// Package capture defines the opaque platform capture boundary: a source
// that hands out single-use handles producing live mono PCM-16 frames.
// Handles are not resumable across process restarts.
package capture
