package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type fixedStats BufferStats

func (f fixedStats) BufferStats() BufferStats { return BufferStats(f) }

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(fixedStats{Active: 4, Pending: 2, Disabled: 1}))

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]float64{
		"diagsave_buffers_active":   4,
		"diagsave_buffers_pending":  2,
		"diagsave_buffers_disabled": 1,
	}
	if len(families) != len(want) {
		t.Fatalf("got %d families, want %d", len(families), len(want))
	}
	for _, f := range families {
		if got := f.GetMetric()[0].GetGauge().GetValue(); got != want[f.GetName()] {
			t.Errorf("%s = %v, want %v", f.GetName(), got, want[f.GetName()])
		}
	}
}
