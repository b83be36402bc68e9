// Package metrics provides Prometheus collectors for generation jobs and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GenerationMetrics contains Prometheus metrics for collection generation
type GenerationMetrics struct {
	registry *prometheus.Registry

	itemsGeneratedTotal      *prometheus.CounterVec
	compositionFailuresTotal prometheus.Counter
	rejectedDrawsTotal       prometheus.Counter
	jobDurationSeconds       *prometheus.HistogramVec
	jobsByStatus             *prometheus.GaugeVec
}

// NewGenerationMetrics creates and registers new generation metrics
func NewGenerationMetrics(registry *prometheus.Registry) (*GenerationMetrics, error) {
	m := &GenerationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *GenerationMetrics) initMetrics() {
	m.itemsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newart_items_generated_total",
			Help: "Total number of items written to job output",
		},
		[]string{"format"},
	)

	m.compositionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "newart_composition_failures_total",
		Help: "Total number of items whose image or metadata could not be written",
	})

	m.rejectedDrawsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "newart_rejected_draws_total",
		Help: "Total number of sampled combinations discarded as duplicates",
	})

	m.jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newart_job_duration_seconds",
			Help:    "Time taken to run a generation job",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14), // 0.5s to ~68m
		},
		[]string{"status"},
	)

	m.jobsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "newart_jobs",
			Help: "Number of stored jobs by status",
		},
		[]string{"status"},
	)
}

// Describe implements the Collector interface
func (m *GenerationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.itemsGeneratedTotal.Describe(ch)
	m.compositionFailuresTotal.Describe(ch)
	m.rejectedDrawsTotal.Describe(ch)
	m.jobDurationSeconds.Describe(ch)
	m.jobsByStatus.Describe(ch)
}

// Collect implements the Collector interface
func (m *GenerationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.itemsGeneratedTotal.Collect(ch)
	m.compositionFailuresTotal.Collect(ch)
	m.rejectedDrawsTotal.Collect(ch)
	m.jobDurationSeconds.Collect(ch)
	m.jobsByStatus.Collect(ch)
}

// RecordItem counts one generated item.
func (m *GenerationMetrics) RecordItem(format string) {
	m.itemsGeneratedTotal.WithLabelValues(format).Inc()
}

// RecordCompositionFailure counts one failed item.
func (m *GenerationMetrics) RecordCompositionFailure() {
	m.compositionFailuresTotal.Inc()
}

// RecordRejections counts duplicate draws.
func (m *GenerationMetrics) RecordRejections(n int) {
	if n > 0 {
		m.rejectedDrawsTotal.Add(float64(n))
	}
}

// ObserveJob records how long a finished job took.
func (m *GenerationMetrics) ObserveJob(status string, d time.Duration) {
	m.jobDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
}

// SetJobCounts replaces the per-status job gauge.
func (m *GenerationMetrics) SetJobCounts(counts map[string]int) {
	m.jobsByStatus.Reset()
	for status, n := range counts {
		m.jobsByStatus.WithLabelValues(status).Set(float64(n))
	}
}
