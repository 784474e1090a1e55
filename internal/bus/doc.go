// Package bus provides the in-process event bus used to push
// fire-and-forget progress and error events to any listening UI surface.
package bus
