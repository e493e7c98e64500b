package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue returns the summed counter value of a gathered family.
func counterValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range f.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}

func TestBackupMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBackupMetrics(reg)

	m.Requested()
	m.Requested()
	m.Coalesced()
	m.DroppedDisabled()
	m.Write(ResultOK, time.Millisecond)
	m.Write(ResultQuota, time.Millisecond)
	m.Evicted(3)
	m.Evicted(0)
	m.Corrupt()

	tests := []struct {
		name string
		want float64
	}{
		{"diagsave_backup_requests_total", 2},
		{"diagsave_backup_coalesced_total", 1},
		{"diagsave_backup_dropped_disabled_total", 1},
		{"diagsave_backup_writes_total", 2},
		{"diagsave_backup_evictions_total", 3},
		{"diagsave_backup_corrupt_entries_total", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, reg, tt.name); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestBackupMetrics_NilSafe(t *testing.T) {
	var m *BackupMetrics
	m.Requested()
	m.Coalesced()
	m.DroppedDisabled()
	m.Write(ResultError, time.Second)
	m.Evicted(1)
	m.Corrupt()

	var h *HTTPMetrics
	h.Observe(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.Backup.Requested()
	r.HTTP.Observe(http.MethodPost, "POST /v1/diagrams/{namespace}/backups", http.StatusCreated, time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"diagsave_backup_requests_total 1",
		`diagsave_http_requests_total{code="201"`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
