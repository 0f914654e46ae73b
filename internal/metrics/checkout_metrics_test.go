package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCheckoutMetrics_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newCheckoutMetricsWithRegisterer(registry)

	m.RecordFinalizeStarted()
	m.RecordFinalizeStarted()
	m.RecordFinalizeCompleted()
	m.RecordFinalizeFailed()
	m.RecordStockConflict()
	m.RecordCreditDecline()
	m.RecordFinalizeDuration(125 * time.Millisecond)
	m.RecordCartMutation("add_line")

	if got := counterValue(t, m.finalizeStarted); got != 2 {
		t.Fatalf("finalize started: expected 2, got %v", got)
	}
	if got := counterValue(t, m.finalizeCompleted); got != 1 {
		t.Fatalf("finalize completed: expected 1, got %v", got)
	}
	if got := counterValue(t, m.stockConflicts); got != 1 {
		t.Fatalf("stock conflicts: expected 1, got %v", got)
	}
}

func TestCheckoutMetrics_DoubleRegistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newCheckoutMetricsWithRegisterer(registry)
	second := newCheckoutMetricsWithRegisterer(registry)

	first.RecordFinalizeStarted()
	second.RecordFinalizeStarted()

	if got := counterValue(t, first.finalizeStarted); got != 2 {
		t.Fatalf("expected shared counter value 2, got %v", got)
	}
}
