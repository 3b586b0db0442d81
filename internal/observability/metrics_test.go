package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func counterValue(t *testing.T, mf *dto.MetricFamily, labelValue string) float64 {
	t.Helper()
	for _, m := range mf.GetMetric() {
		if labelValue == "" && len(m.GetLabel()) == 0 {
			return m.GetCounter().GetValue()
		}
		for _, l := range m.GetLabel() {
			if l.GetValue() == labelValue {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("no metric with label %q in %s", labelValue, mf.GetName())
	return 0
}

func TestSimCollectorRecordsCountersAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	c.HandoverApplied("A3")
	c.HandoverApplied("A3")
	c.HandoverApplied("ML")
	c.FallbackOccurred("FALLBACK_TIMEOUT")
	c.TickCompleted(3 * time.Millisecond)
	c.ObservePredictorCall(12*time.Millisecond, "ok")
	c.SetEntityCounts(5, 3)
	c.SetArmedTimers(2)

	handovers := gatherFamily(t, reg, "sim_handovers_total")
	if got := counterValue(t, handovers, "A3"); got != 2 {
		t.Fatalf("A3 handovers: want 2, got %v", got)
	}
	if got := counterValue(t, handovers, "ML"); got != 1 {
		t.Fatalf("ML handovers: want 1, got %v", got)
	}

	fallbacks := gatherFamily(t, reg, "sim_decision_fallbacks_total")
	if got := counterValue(t, fallbacks, "FALLBACK_TIMEOUT"); got != 1 {
		t.Fatalf("fallbacks: want 1, got %v", got)
	}

	ticks := gatherFamily(t, reg, "sim_ticks_total")
	if got := counterValue(t, ticks, ""); got != 1 {
		t.Fatalf("ticks: want 1, got %v", got)
	}

	tickHist := gatherFamily(t, reg, "sim_tick_duration_seconds")
	if got := tickHist.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("tick histogram count: want 1, got %d", got)
	}

	predHist := gatherFamily(t, reg, "sim_predictor_call_duration_seconds")
	if got := predHist.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("predictor histogram count: want 1, got %d", got)
	}

	stations := gatherFamily(t, reg, "sim_stations")
	if got := stations.GetMetric()[0].GetGauge().GetValue(); got != 5 {
		t.Fatalf("stations gauge: want 5, got %v", got)
	}
	armed := gatherFamily(t, reg, "sim_armed_a3_timers")
	if got := armed.GetMetric()[0].GetGauge().GetValue(); got != 2 {
		t.Fatalf("armed gauge: want 2, got %v", got)
	}
}

func TestSimCollectorReregistersCleanly(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("first NewSimCollector: %v", err)
	}
	b, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector against the same registry: %v", err)
	}

	// Both handles drive the same underlying collectors.
	a.HandoverApplied("A3")
	b.HandoverApplied("A3")
	handovers := gatherFamily(t, reg, "sim_handovers_total")
	if got := counterValue(t, handovers, "A3"); got != 2 {
		t.Fatalf("shared counter: want 2, got %v", got)
	}
}

func TestSimCollectorHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	c.HandoverApplied("A3")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sim_handovers_total") {
		t.Fatalf("exposition output missing sim_handovers_total")
	}
}

func TestSimCollectorNilSafety(t *testing.T) {
	var c *SimCollector
	c.HandoverApplied("A3")
	c.FallbackOccurred("FALLBACK_ERROR")
	c.TickCompleted(time.Millisecond)
	c.ObservePredictorCall(time.Millisecond, "ok")
	c.SetEntityCounts(1, 1)
	c.SetArmedTimers(1)
}
