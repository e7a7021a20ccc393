package executor

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsObserve(t *testing.T) {
	e := New(Options{Size: 4})
	defer e.Close()

	m := NewMetrics("pgflow", "executor")
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 3; i++ {
		e.Submit(context.Background(), func() {})
	}
	e.Drain(context.Background())
	m.Observe(e)

	if got := counterValue(t, m.Submitted); got != 3 {
		t.Errorf("Submitted = %v, want 3", got)
	}
	if got := counterValue(t, m.Completed); got != 3 {
		t.Errorf("Completed = %v, want 3", got)
	}
	if got := gaugeValue(t, m.QueueSize); got != 0 {
		t.Errorf("QueueSize = %v, want 0", got)
	}

	e.Submit(context.Background(), func() {})
	m.Observe(e)
	if got := counterValue(t, m.Submitted); got != 4 {
		t.Errorf("Submitted after second observe = %v, want 4", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetGauge().GetValue()
}
