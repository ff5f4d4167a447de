package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics captures counters and latency for transaction file ingestion.
type IngestMetrics struct {
	files    *prometheus.CounterVec
	records  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

var (
	ingestMetricsOnce sync.Once
	ingestRegistry    *IngestMetrics
)

// Ingest returns the lazily-initialised metrics registry used to record file
// ingestion activity.
func Ingest() *IngestMetrics {
	ingestMetricsOnce.Do(func() {
		ingestRegistry = &IngestMetrics{
			files: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "posfeed",
				Subsystem: "ingest",
				Name:      "files_total",
				Help:      "Count of ingested files segmented by file kind and outcome.",
			}, []string{"kind", "outcome"}),
			records: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "posfeed",
				Subsystem: "ingest",
				Name:      "records_total",
				Help:      "Count of normalized records segmented by file kind and disposition.",
			}, []string{"kind", "disposition"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "posfeed",
				Subsystem: "ingest",
				Name:      "file_duration_seconds",
				Help:      "Latency distribution for single-file ingestion runs.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "posfeed",
				Subsystem: "ingest",
				Name:      "record_errors_total",
				Help:      "Count of records that failed normalization segmented by file kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			ingestRegistry.files,
			ingestRegistry.records,
			ingestRegistry.latency,
			ingestRegistry.failures,
		)
	})
	return ingestRegistry
}

// ObserveFile records the outcome of a single file ingestion. Processed,
// skipped, and failed are the per-record dispositions reported by the
// normalizer that handled the file.
func (m *IngestMetrics) ObserveFile(kind string, processed, skipped, failed int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.files.WithLabelValues(kind, outcome).Inc()
	m.records.WithLabelValues(kind, "processed").Add(float64(processed))
	m.records.WithLabelValues(kind, "skipped").Add(float64(skipped))
	if failed > 0 {
		m.failures.WithLabelValues(kind).Add(float64(failed))
	}
	m.latency.WithLabelValues(kind).Observe(duration.Seconds())
}
