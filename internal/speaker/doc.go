// Package speaker provides active-speaker attribution. An Attributor
// polls a pluggable observation capability and publishes deduplicated
// label change events to the coordinator.
package speaker
