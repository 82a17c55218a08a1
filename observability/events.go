package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"benevault/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the singleton registry counting engine event emissions.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bene",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of engine events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent counts one emission.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.emitted.WithLabelValues(eventType).Inc()
}

// CountingEmitter wraps another emitter and counts every event it forwards.
type CountingEmitter struct {
	next events.Emitter
}

// NewCountingEmitter wraps next, which may be nil.
func NewCountingEmitter(next events.Emitter) *CountingEmitter {
	return &CountingEmitter{next: next}
}

// Emit records the event type and forwards to the wrapped emitter.
func (e *CountingEmitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	Events().RecordEvent(evt.EventType())
	if e.next != nil {
		e.next.Emit(evt)
	}
}
