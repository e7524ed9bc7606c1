package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jacentio/docmap/metrics"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m == nil {
		t.Fatal("NewWithRegistry returned nil")
	}
	if m.Saves == nil || m.ValidationFailures == nil || m.Deletes == nil {
		t.Error("document metrics not initialized")
	}
	if m.Allocations == nil || m.CASRetries == nil || m.Exhausted == nil {
		t.Error("sequence metrics not initialized")
	}
}

func TestSave(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.Save("users", metrics.OutcomeSaved)
	m.Save("users", metrics.OutcomeSaved)
	m.Save("users", metrics.OutcomeInvalid)
	m.Save("users", metrics.OutcomeVetoed)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"saved", testutil.ToFloat64(m.Saves.WithLabelValues("users", metrics.OutcomeSaved)), 2},
		{"invalid", testutil.ToFloat64(m.Saves.WithLabelValues("users", metrics.OutcomeInvalid)), 1},
		{"vetoed", testutil.ToFloat64(m.Saves.WithLabelValues("users", metrics.OutcomeVetoed)), 1},
		{"validation failures", testutil.ToFloat64(m.ValidationFailures.WithLabelValues("users")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestSequenceCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.Allocation("orders")
	m.Retry("orders")
	m.Retry("orders")
	m.Exhaust("orders")

	if got := testutil.ToFloat64(m.Allocations.WithLabelValues("orders")); got != 1 {
		t.Errorf("allocations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CASRetries.WithLabelValues("orders")); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Exhausted.WithLabelValues("orders")); got != 1 {
		t.Errorf("exhausted = %v, want 1", got)
	}
}

func TestStoreDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveStore("upsert", 0.01)
	m.ObserveStore("upsert", 0.02)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "docmap_store_duration_seconds" {
			continue
		}
		if got := f.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
			t.Errorf("sample count = %d, want 2", got)
		}
		return
	}
	t.Error("docmap_store_duration_seconds metric not found")
}

func TestNilCollector(t *testing.T) {
	var m *metrics.Collector

	// Must not panic.
	m.Save("users", metrics.OutcomeSaved)
	m.Delete("users", metrics.OutcomeDeleted)
	m.ObserveStore("find", 0.1)
	m.Allocation("s")
	m.Retry("s")
	m.Exhaust("s")
}
