// Package catalog implements the Job Catalog (C2): durable storage of
// mapping-job definitions and ingestion-job configurations/status/metrics,
// surviving process restarts. Grounded on the direct-SQL CRUD-with-JSON
// idiom of internal/ingestion/service.go.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neurondb/NeuronIP/api/internal/model"
)

/* Catalog is the Job Catalog. */
type Catalog struct {
	pool *pgxpool.Pool
}

/* New creates a Job Catalog backed by the given Postgres pool. */
func New(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

/* CreateMappingJob inserts a new DRAFT mapping job. */
func (c *Catalog) CreateMappingJob(ctx context.Context, job *model.MappingJob) error {
	sourceSchemaJSON, _ := json.Marshal(job.SourceSchema)
	targetSchemaJSON, _ := json.Marshal(job.TargetSchema)
	aiMappingsJSON, _ := json.Marshal(job.AIMappings)
	approvedMappingsJSON, _ := json.Marshal(job.ApprovedMappings)

	query := `
		INSERT INTO neuronip.mapping_jobs
			(job_id, user_id, name, source_schema, target_schema, target_resource, ai_mappings, approved_mappings, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`

	return c.pool.QueryRow(ctx, query,
		job.JobID, job.UserID, job.Name, sourceSchemaJSON, targetSchemaJSON, job.TargetResource,
		aiMappingsJSON, approvedMappingsJSON, job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

/* GetMappingJob fetches a mapping job by id. Returns (nil, nil) if absent. */
func (c *Catalog) GetMappingJob(ctx context.Context, jobID string) (*model.MappingJob, error) {
	query := `
		SELECT job_id, user_id, name, source_schema, target_schema, target_resource, ai_mappings, approved_mappings, status, created_at, updated_at
		FROM neuronip.mapping_jobs WHERE job_id = $1`

	var job model.MappingJob
	var sourceSchemaJSON, targetSchemaJSON, aiMappingsJSON, approvedMappingsJSON []byte

	err := c.pool.QueryRow(ctx, query, jobID).Scan(
		&job.JobID, &job.UserID, &job.Name, &sourceSchemaJSON, &targetSchemaJSON, &job.TargetResource,
		&aiMappingsJSON, &approvedMappingsJSON, &job.Status, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get mapping job: %w", err)
	}

	json.Unmarshal(sourceSchemaJSON, &job.SourceSchema)
	json.Unmarshal(targetSchemaJSON, &job.TargetSchema)
	json.Unmarshal(aiMappingsJSON, &job.AIMappings)
	json.Unmarshal(approvedMappingsJSON, &job.ApprovedMappings)

	return &job, nil
}

/* UpdateMappingJob persists the full mutable state of a mapping job
   (schemas, mappings, status). */
func (c *Catalog) UpdateMappingJob(ctx context.Context, job *model.MappingJob) error {
	sourceSchemaJSON, _ := json.Marshal(job.SourceSchema)
	targetSchemaJSON, _ := json.Marshal(job.TargetSchema)
	aiMappingsJSON, _ := json.Marshal(job.AIMappings)
	approvedMappingsJSON, _ := json.Marshal(job.ApprovedMappings)

	query := `
		UPDATE neuronip.mapping_jobs
		SET source_schema = $2, target_schema = $3, target_resource = $4, ai_mappings = $5,
		    approved_mappings = $6, status = $7, updated_at = NOW()
		WHERE job_id = $1
		RETURNING updated_at`

	return c.pool.QueryRow(ctx, query,
		job.JobID, sourceSchemaJSON, targetSchemaJSON, job.TargetResource, aiMappingsJSON, approvedMappingsJSON, job.Status,
	).Scan(&job.UpdatedAt)
}

/* ListMappingJobs lists mapping jobs, most recent first. */
func (c *Catalog) ListMappingJobs(ctx context.Context, userID string, limit int) ([]model.MappingJob, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows pgx.Rows
	var err error
	if userID != "" {
		rows, err = c.pool.Query(ctx, `
			SELECT job_id, user_id, name, source_schema, target_schema, target_resource, ai_mappings, approved_mappings, status, created_at, updated_at
			FROM neuronip.mapping_jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	} else {
		rows, err = c.pool.Query(ctx, `
			SELECT job_id, user_id, name, source_schema, target_schema, target_resource, ai_mappings, approved_mappings, status, created_at, updated_at
			FROM neuronip.mapping_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list mapping jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.MappingJob
	for rows.Next() {
		var job model.MappingJob
		var sourceSchemaJSON, targetSchemaJSON, aiMappingsJSON, approvedMappingsJSON []byte
		if err := rows.Scan(
			&job.JobID, &job.UserID, &job.Name, &sourceSchemaJSON, &targetSchemaJSON, &job.TargetResource,
			&aiMappingsJSON, &approvedMappingsJSON, &job.Status, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			continue
		}
		json.Unmarshal(sourceSchemaJSON, &job.SourceSchema)
		json.Unmarshal(targetSchemaJSON, &job.TargetSchema)
		json.Unmarshal(aiMappingsJSON, &job.AIMappings)
		json.Unmarshal(approvedMappingsJSON, &job.ApprovedMappings)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

/* CreateIngestionJob inserts an ingestion job config row in IDLE status. */
func (c *Catalog) CreateIngestionJob(ctx context.Context, cfg model.IngestionJobConfig) error {
	configJSON, _ := json.Marshal(cfg)
	metricsJSON, _ := json.Marshal(model.IngestionMetrics{LastUpdated: time.Now()})

	query := `
		INSERT INTO neuronip.ingestion_jobs (job_id, config, status, metrics, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, NOW(), NOW())`

	_, err := c.pool.Exec(ctx, query, cfg.JobID, configJSON, model.IngestionIdle, metricsJSON)
	return err
}

/* UpdateIngestionStatus persists {status, metrics} for an ingestion job,
   per the periodic-flush requirement of the Ingestion Engine worker loop. */
func (c *Catalog) UpdateIngestionStatus(ctx context.Context, jobID string, status model.IngestionStatus, metrics model.IngestionMetrics, errDetails *model.IngestionErrorDetails, errMessage string) error {
	metricsJSON, _ := json.Marshal(metrics)

	var errorJSON []byte
	if errDetails != nil {
		errorJSON, _ = json.Marshal(struct {
			Message string                      `json:"message"`
			Details model.IngestionErrorDetails `json:"details"`
		}{Message: errMessage, Details: *errDetails})
	}

	query := `
		UPDATE neuronip.ingestion_jobs
		SET status = $2, metrics = $3, error = $4, updated_at = NOW()
		WHERE job_id = $1`

	_, err := c.pool.Exec(ctx, query, jobID, status, metricsJSON, errorJSON)
	return err
}

/* GetIngestionJob fetches one ingestion job's config/status/metrics. */
func (c *Catalog) GetIngestionJob(ctx context.Context, jobID string) (*model.IngestionJob, error) {
	query := `SELECT config, status, metrics, error FROM neuronip.ingestion_jobs WHERE job_id = $1`

	var configJSON, metricsJSON, errorJSON []byte
	var status model.IngestionStatus

	err := c.pool.QueryRow(ctx, query, jobID).Scan(&configJSON, &status, &metricsJSON, &errorJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ingestion job: %w", err)
	}

	job := &model.IngestionJob{Status: status}
	json.Unmarshal(configJSON, &job.Config)
	json.Unmarshal(metricsJSON, &job.Metrics)
	if errorJSON != nil {
		var errPayload struct {
			Message string                       `json:"message"`
			Details *model.IngestionErrorDetails `json:"details"`
		}
		if json.Unmarshal(errorJSON, &errPayload) == nil {
			job.ErrorMessage = errPayload.Message
			job.ErrorDetails = errPayload.Details
		}
	}
	return job, nil
}

/* ListIngestionJobs reloads every ingestion job row. Per the spec, the
   Ingestion Engine always re-hydrates these in IDLE state on process
   start, regardless of the persisted status column. */
func (c *Catalog) ListIngestionJobs(ctx context.Context) ([]model.IngestionJob, error) {
	query := `SELECT config, status, metrics, error FROM neuronip.ingestion_jobs ORDER BY created_at ASC`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list ingestion jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.IngestionJob
	for rows.Next() {
		var configJSON, metricsJSON, errorJSON []byte
		var status model.IngestionStatus
		if err := rows.Scan(&configJSON, &status, &metricsJSON, &errorJSON); err != nil {
			continue
		}
		job := model.IngestionJob{Status: model.IngestionIdle}
		json.Unmarshal(configJSON, &job.Config)
		json.Unmarshal(metricsJSON, &job.Metrics)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
