package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics (the out-of-core API layer still reports through this)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Database connection pool metrics
	dbPoolMaxConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_max_conns",
			Help: "Maximum number of database connections in pool",
		},
	)

	dbPoolAcquiredConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_acquired_conns",
			Help: "Number of currently acquired database connections",
		},
	)

	dbPoolIdleConns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_idle_conns",
			Help: "Number of idle database connections in pool",
		},
	)

	// Ingestion job metrics
	ingestionReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_records_received_total",
			Help: "Total number of records pulled from a source connector",
		},
		[]string{"job_id"},
	)

	ingestionProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_records_processed_total",
			Help: "Total number of records successfully written to the record store",
		},
		[]string{"job_id"},
	)

	ingestionFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_records_failed_total",
			Help: "Total number of records routed to the dead-letter queue",
		},
		[]string{"job_id", "reason"},
	)

	ingestionOMOPSyncFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_omop_sync_failed_total",
			Help: "Total number of OMOP sync failures (logged, not DLQ'd)",
		},
		[]string{"job_id"},
	)

	ingestionJobLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingestion_record_latency_seconds",
			Help:    "Per-record source-to-store latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"job_id"},
	)

	// Concept matching metrics
	conceptMatchStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_match_stage_total",
			Help: "Concept matches resolved, by stage",
		},
		[]string{"stage"},
	)
)

/* UpdateDBPoolMetrics updates database pool metrics */
func UpdateDBPoolMetrics(maxConns, acquiredConns, idleConns int32) {
	dbPoolMaxConns.Set(float64(maxConns))
	dbPoolAcquiredConns.Set(float64(acquiredConns))
	dbPoolIdleConns.Set(float64(idleConns))
}

/* RecordHTTPRequest records HTTP request metrics */
func RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	status := http.StatusText(statusCode)
	if status == "" {
		status = "unknown"
	}
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

/* IncrementIngestionReceived increments the received counter for a job */
func IncrementIngestionReceived(jobID string) {
	ingestionReceivedTotal.WithLabelValues(jobID).Inc()
}

/* IncrementIngestionProcessed increments the processed counter for a job */
func IncrementIngestionProcessed(jobID string) {
	ingestionProcessedTotal.WithLabelValues(jobID).Inc()
}

/* IncrementIngestionFailed increments the failed counter for a job, tagged with error reason */
func IncrementIngestionFailed(jobID, reason string) {
	ingestionFailedTotal.WithLabelValues(jobID, reason).Inc()
}

/* IncrementOMOPSyncFailed increments the non-fatal OMOP sync failure counter */
func IncrementOMOPSyncFailed(jobID string) {
	ingestionOMOPSyncFailedTotal.WithLabelValues(jobID).Inc()
}

/* RecordIngestionLatency records source-to-store latency for one record */
func RecordIngestionLatency(jobID string, duration time.Duration) {
	ingestionJobLatency.WithLabelValues(jobID).Observe(duration.Seconds())
}

/* IncrementConceptMatchStage records which concept-matching stage resolved a match */
func IncrementConceptMatchStage(stage string) {
	conceptMatchStageTotal.WithLabelValues(stage).Inc()
}

/* Handler returns the Prometheus metrics handler */
func Handler() http.Handler {
	return promhttp.Handler()
}
