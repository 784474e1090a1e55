// Package speech defines the speech engine boundary and its loopback
// HTTP implementation. The engine converts mono 16kHz PCM into text and
// is loaded lazily on first use per session.
package speech
