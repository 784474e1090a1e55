// Package server provides the loopback-only HTTP API: session control
// (start, stop, notes), session inspection, health, configuration, and
// Prometheus metrics.
package server
