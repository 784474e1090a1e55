// Package notes builds the fixed-schema summarization prompt from the
// transcript and calls the local-only summarization endpoint. Responses
// are free-form markdown; no output-schema validation is performed.
package notes
