package executor

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the executor's queue depth and throughput as Prometheus
// gauges/counters, for a subscriber's host process to register.
type Metrics struct {
	Submitted prometheus.Counter
	Completed prometheus.Counter
	QueueSize prometheus.Gauge

	lastSubmitted atomic.Int64
	lastCompleted atomic.Int64
}

// NewMetrics builds Metrics with the given namespace/subsystem, unregistered.
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "handler_submitted_total",
			Help: "Total handler invocations submitted to the executor.",
		}),
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "handler_completed_total",
			Help: "Total handler invocations completed by the executor.",
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "handler_queue_depth",
			Help: "Current depth of the handler work queue.",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Submitted, m.Completed, m.QueueSize} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe copies an Executor's counters into m. Call periodically (e.g.
// from the subscriber's LSN flusher tick) since Executor itself has no
// Prometheus dependency. Counters only move forward, so Observe tracks
// the last-seen totals and adds the delta.
func (m *Metrics) Observe(e *Executor) {
	submitted, completed := e.Stats()
	if delta := submitted - m.lastSubmitted.Swap(submitted); delta > 0 {
		m.Submitted.Add(float64(delta))
	}
	if delta := completed - m.lastCompleted.Swap(completed); delta > 0 {
		m.Completed.Add(float64(delta))
	}
	m.QueueSize.Set(float64(submitted - completed))
}
