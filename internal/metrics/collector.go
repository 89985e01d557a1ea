package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

/* MetricsCollector persists per-job ingestion latency and error history to
   Postgres so the durable percentile/error-rate view survives a process
   restart, complementing the in-memory Prometheus counters in metrics.go. */
type MetricsCollector struct {
	pool *pgxpool.Pool
}

/* NewMetricsCollector creates a new metrics collector */
func NewMetricsCollector(pool *pgxpool.Pool) *MetricsCollector {
	return &MetricsCollector{pool: pool}
}

/* LatencyMetrics represents latency percentiles */
type LatencyMetrics struct {
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
	P999 float64 `json:"p999"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Avg  float64 `json:"avg"`
}

/* CalculatePercentiles calculates percentiles from a slice of values */
func CalculatePercentiles(values []float64) LatencyMetrics {
	if len(values) == 0 {
		return LatencyMetrics{}
	}

	sort.Float64s(values)
	n := len(values)

	return LatencyMetrics{
		P50:  values[int(float64(n)*0.50)],
		P95:  values[int(float64(n)*0.95)],
		P99:  values[int(float64(n)*0.99)],
		P999: values[int(float64(n)*0.999)],
		Min:  values[0],
		Max:  values[n-1],
		Avg:  calculateAverage(values),
	}
}

/* calculateAverage calculates average of values */
func calculateAverage(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

/* RecordLatency records one record's processing latency for a job */
func (c *MetricsCollector) RecordLatency(ctx context.Context, jobID string, latencyMs float64) error {
	query := `
		INSERT INTO neuronip.latency_metrics (job_id, latency_ms, recorded_at)
		VALUES ($1, $2, NOW())
	`
	_, err := c.pool.Exec(ctx, query, jobID, latencyMs)
	return err
}

/* GetLatencyMetrics gets latency percentiles for a job over a window */
func (c *MetricsCollector) GetLatencyMetrics(ctx context.Context, jobID string, startTime, endTime time.Time) (*LatencyMetrics, error) {
	query := `
		SELECT latency_ms
		FROM neuronip.latency_metrics
		WHERE job_id = $1 AND recorded_at BETWEEN $2 AND $3
		ORDER BY recorded_at DESC
	`
	rows, err := c.pool.Query(ctx, query, jobID, startTime, endTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var latencies []float64
	for rows.Next() {
		var latency float64
		if err := rows.Scan(&latency); err == nil {
			latencies = append(latencies, latency)
		}
	}

	metrics := CalculatePercentiles(latencies)
	return &metrics, nil
}

/* RecordError records an ingestion job failure occurrence, keyed by jobID
   rather than the donor's HTTP endpoint. */
func (c *MetricsCollector) RecordError(ctx context.Context, jobID string, reason string) error {
	query := `
		INSERT INTO neuronip.error_metrics (job_id, reason, recorded_at)
		VALUES ($1, $2, NOW())
	`
	_, err := c.pool.Exec(ctx, query, jobID, reason)
	return err
}

/* GetErrorRate returns the number of DLQ-routed failures recorded for a
   job in error_metrics over a window, durable across process restarts.
   The value is a count; it is not divided by a received-record count. */
func (c *MetricsCollector) GetErrorRate(ctx context.Context, jobID string, startTime, endTime time.Time) (float64, error) {
	query := `
		SELECT COUNT(*)::float
		FROM neuronip.error_metrics
		WHERE job_id = $1 AND recorded_at BETWEEN $2 AND $3
	`
	var failures float64
	if err := c.pool.QueryRow(ctx, query, jobID, startTime, endTime).Scan(&failures); err != nil {
		return 0.0, err
	}
	return failures, nil
}
