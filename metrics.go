package cqlretrieve

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval outcomes recorded by Metrics.
const (
	OutcomeHit   = "hit"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Filter names recorded by Metrics.
const (
	FilterContext     = "context"
	FilterTerminology = "terminology"
)

// Metrics tracks retrieval activity. All methods are safe for concurrent use
// and are no-ops on a nil receiver.
type Metrics struct {
	retrievals  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	excluded    *prometheus.CounterVec
	fallThrough prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		retrievals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cqlretrieve_retrievals_total",
				Help: "Total number of retrieve calls",
			},
			[]string{"retriever", "data_type", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cqlretrieve_retrieve_duration_seconds",
				Help:    "Retrieve latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"retriever"},
		),
		excluded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cqlretrieve_records_excluded_total",
				Help: "Records removed by a filter",
			},
			[]string{"filter", "data_type"},
		),
		fallThrough: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cqlretrieve_priority_fallthrough_total",
				Help: "Priority children that returned no data",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.retrievals, m.duration, m.excluded, m.fallThrough)
	}
	return m
}

// RecordRetrieve records a completed retrieve call.
func (m *Metrics) RecordRetrieve(retriever, dataType string, n int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeHit
	switch {
	case err != nil:
		outcome = OutcomeError
	case n == 0:
		outcome = OutcomeEmpty
	}
	m.retrievals.WithLabelValues(retriever, dataType, outcome).Inc()
	m.duration.WithLabelValues(retriever).Observe(elapsed.Seconds())
}

// RecordExcluded records records removed by a filter.
func (m *Metrics) RecordExcluded(filter, dataType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.excluded.WithLabelValues(filter, dataType).Add(float64(n))
}

// RecordFallthrough records a priority child that returned nothing.
func (m *Metrics) RecordFallthrough() {
	if m == nil {
		return
	}
	m.fallThrough.Inc()
}

// Retrievals returns the retrieve counter, for tests and exporters, or nil
// on a nil receiver.
func (m *Metrics) Retrievals() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.retrievals
}

// Excluded returns the exclusion counter.
func (m *Metrics) Excluded() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.excluded
}

// Fallthrough returns the priority fall-through counter.
func (m *Metrics) Fallthrough() prometheus.Counter {
	if m == nil {
		return nil
	}
	return m.fallThrough
}
