package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks document processing.
type Metrics struct {
	Documents       *prometheus.CounterVec
	ItemsDetected   *prometheus.CounterVec
	OutputsBlocked  prometheus.Counter
	ProcessDuration prometheus.Histogram
	DocumentBytes   prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Documents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "piiguard_pipeline_documents_total",
			Help: "Total number of documents processed by outcome",
		}, []string{"outcome"}),
		ItemsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "piiguard_pipeline_items_detected_total",
			Help: "Total number of sensitive items detected by category",
		}, []string{"category"}),
		OutputsBlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "piiguard_pipeline_outputs_blocked_total",
			Help: "Total number of anonymized outputs blocked by post-anonymization validation",
		}),
		ProcessDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "piiguard_pipeline_process_duration_seconds",
			Help:    "Duration of document processing including storage",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		DocumentBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "piiguard_pipeline_document_bytes",
			Help:    "Size of submitted documents",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}),
	}
}

// ObserveDocument records one processed document.
func (m *Metrics) ObserveDocument(outcome string, start time.Time, size int) {
	m.Documents.WithLabelValues(outcome).Inc()
	m.ProcessDuration.Observe(time.Since(start).Seconds())
	m.DocumentBytes.Observe(float64(size))
}

func (m *Metrics) IncrementItems(category string) {
	m.ItemsDetected.WithLabelValues(category).Inc()
}

func (m *Metrics) IncrementBlocked() {
	m.OutputsBlocked.Inc()
}
