package speaker

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Event is a deduplicated speaker label change.
type Event struct {
	Label     string
	Timestamp time.Time
}

// Observer is the external name-detection capability. Observe returns
// the currently detected speaker label, or ok=false when nothing is
// detected this poll.
type Observer interface {
	Observe(ctx context.Context) (label string, ok bool)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context) (string, bool)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context) (string, bool) {
	return f(ctx)
}

// Strategies is a prioritized list of detection strategies; the first
// non-empty match wins.
type Strategies []Observer

// Observe tries each strategy in order and returns the first match.
func (s Strategies) Observe(ctx context.Context) (string, bool) {
	for _, obs := range s {
		if label, ok := obs.Observe(ctx); ok {
			return label, ok
		}
	}
	return "", false
}

// FileObserver reads the current speaker label from a file maintained
// by the out-of-scope observation scripts. An absent or empty file
// means no detection.
type FileObserver struct {
	Path string
}

// Observe returns the first line of the label file, trimmed.
func (o FileObserver) Observe(ctx context.Context) (string, bool) {
	data, err := os.ReadFile(o.Path)
	if err != nil {
		return "", false
	}
	label, _, _ := strings.Cut(string(data), "\n")
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	return label, true
}

// Attributor runs the poll loop. It publishes a change event only when
// the detected label differs from the last published value; absence of
// detection keeps the label at its last known value.
type Attributor struct {
	observer Observer
	interval time.Duration
	logger   *slog.Logger
	out      chan Event
	last     string
}

// NewAttributor creates an attributor polling observer every interval.
func NewAttributor(observer Observer, interval time.Duration, logger *slog.Logger) *Attributor {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Attributor{
		observer: observer,
		interval: interval,
		logger:   logger,
		out:      make(chan Event, 16),
	}
}

// Events returns the change event stream. Closed when the poll loop
// exits.
func (a *Attributor) Events() <-chan Event {
	return a.out
}

// Run polls until ctx is cancelled.
func (a *Attributor) Run(ctx context.Context) {
	defer close(a.out)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Debug("speaker attributor started",
		slog.Duration("poll_interval", a.interval),
	)

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("speaker attributor stopping")
			return
		case <-ticker.C:
			a.poll(ctx)
		}
	}
}

func (a *Attributor) poll(ctx context.Context) {
	label, ok := a.observer.Observe(ctx)
	if !ok || label == a.last {
		return
	}

	a.last = label
	evt := Event{Label: label, Timestamp: time.Now()}

	select {
	case a.out <- evt:
	case <-ctx.Done():
	}
}
