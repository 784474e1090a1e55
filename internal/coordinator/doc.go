// Package coordinator implements the capture session state machine. The
// coordinator's event loop is the single serializer of state transitions
// and the single writer of the persisted session record; the segmenter
// and attributor feed it typed messages over channels.
package coordinator
