package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestEventsTotalByOutcome(t *testing.T) {
	c := EventsTotal.WithLabelValues("test-outcome")
	before := counterValue(t, c)

	c.Inc()
	c.Inc()

	if got := counterValue(t, c) - before; got != 2 {
		t.Errorf("events_total delta = %v, want 2", got)
	}
}

func TestCollectorsRegistered(t *testing.T) {
	StageDuration.WithLabelValues(StageIngress).Observe(0.01)
	Errors.WithLabelValues(StageDownstream, "decode").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"triggerbench_stage_duration_seconds": false,
		"triggerbench_errors_total":           false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not registered", name)
		}
	}
}
