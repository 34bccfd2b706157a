package metrics

import "time"

// Event names emitted by the client.
const (
	// EventSubmit is recorded once per settled submission; value is the
	// elapsed time in seconds, tags carry outcome and request_id.
	EventSubmit = "analysis.submit"
	// EventStep is recorded per forwarded progress step; value is the
	// step number.
	EventStep = "analysis.step"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
