// Package metrics provides Prometheus metrics collection for docmap.
//
// A nil *Collector is valid and records nothing, so components accept one
// unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docmap"

// Lifecycle outcomes.
const (
	OutcomeSaved   = "saved"
	OutcomeDeleted = "deleted"
	OutcomeInvalid = "invalid"
	OutcomeVetoed  = "vetoed"
	OutcomeError   = "error"
)

// Collector holds all Prometheus metrics for docmap.
type Collector struct {
	// Document metrics
	Saves              *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	Deletes            *prometheus.CounterVec
	StoreDuration      *prometheus.HistogramVec

	// Sequence metrics
	Allocations *prometheus.CounterVec
	CASRetries  *prometheus.CounterVec
	Exhausted   *prometheus.CounterVec
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		Saves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saves_total",
				Help:      "Total number of document save attempts by outcome",
			},
			[]string{"collection", "outcome"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of failed validation passes at save time",
			},
			[]string{"collection"},
		),
		Deletes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deletes_total",
				Help:      "Total number of document delete attempts by outcome",
			},
			[]string{"collection", "outcome"},
		),
		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_duration_seconds",
				Help:      "Store operation duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		Allocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sequence_allocations_total",
				Help:      "Total number of sequence values issued",
			},
			[]string{"sequence"},
		),
		CASRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sequence_cas_retries_total",
				Help:      "Total number of conditional updates that lost a race",
			},
			[]string{"sequence"},
		),
		Exhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sequence_exhausted_total",
				Help:      "Total number of allocations that ran out of retries",
			},
			[]string{"sequence"},
		),
	}
}

// Save records a save attempt.
func (c *Collector) Save(collection, outcome string) {
	if c == nil {
		return
	}
	c.Saves.WithLabelValues(collection, outcome).Inc()
	if outcome == OutcomeInvalid {
		c.ValidationFailures.WithLabelValues(collection).Inc()
	}
}

// Delete records a delete attempt.
func (c *Collector) Delete(collection, outcome string) {
	if c == nil {
		return
	}
	c.Deletes.WithLabelValues(collection, outcome).Inc()
}

// ObserveStore records the duration of one store call.
func (c *Collector) ObserveStore(operation string, seconds float64) {
	if c == nil {
		return
	}
	c.StoreDuration.WithLabelValues(operation).Observe(seconds)
}

// Allocation records an issued sequence value.
func (c *Collector) Allocation(sequence string) {
	if c == nil {
		return
	}
	c.Allocations.WithLabelValues(sequence).Inc()
}

// Retry records a lost compare-and-swap.
func (c *Collector) Retry(sequence string) {
	if c == nil {
		return
	}
	c.CASRetries.WithLabelValues(sequence).Inc()
}

// Exhaust records an allocation that gave up.
func (c *Collector) Exhaust(sequence string) {
	if c == nil {
		return
	}
	c.Exhausted.WithLabelValues(sequence).Inc()
}
