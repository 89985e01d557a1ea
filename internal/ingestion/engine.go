package ingestion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	neuronerrors "github.com/neurondb/NeuronIP/api/internal/errors"
	"github.com/neurondb/NeuronIP/api/internal/logging"
	ingestmetrics "github.com/neurondb/NeuronIP/api/internal/metrics"
	"github.com/neurondb/NeuronIP/api/internal/model"
)

const qpsWindow = 10 * time.Second

/* JobCatalog is the subset of the Job Catalog the Ingestion Engine
   depends on. */
type JobCatalog interface {
	GetMappingJob(ctx context.Context, jobID string) (*model.MappingJob, error)
	UpdateIngestionStatus(ctx context.Context, jobID string, status model.IngestionStatus, metrics model.IngestionMetrics, errDetails *model.IngestionErrorDetails, errMessage string) error
	GetIngestionJob(ctx context.Context, jobID string) (*model.IngestionJob, error)
	ListIngestionJobs(ctx context.Context) ([]model.IngestionJob, error)
}

/* RecordStore is the subset of the Record Store the Ingestion Engine
   depends on for staging and idempotent FHIR persistence. */
type RecordStore interface {
	UpsertStaging(ctx context.Context, rec model.StagingRecord) error
	UpsertFHIR(ctx context.Context, resourceType string, res model.FHIRResource) error
}

/* TransformCore is the Transform Core's Apply entry point. */
type TransformCore interface {
	Apply(ctx context.Context, mappings []model.FieldMapping, source map[string]interface{}) (map[string]interface{}, error)
}

/* OMOPSyncer is the OMOP Engine's per-resource entry point, called after
   every successfully persisted FHIR resource when a job has OMOPAutoSync
   enabled. */
type OMOPSyncer interface {
	IngestOne(ctx context.Context, jobID string, res model.FHIRResource) error
}

/* Engine is the Ingestion Engine (C10): one goroutine per RUNNING job,
   pulling from a SourceConnector, transforming, persisting idempotently,
   writing to a DestinationConnector, and optionally triggering OMOP
   sync. Concurrency is a single mutex-guarded job map, matching
   backpressure.go's existing slot-based concurrency control. */
type Engine struct {
	catalog JobCatalog
	store   RecordStore
	dlq     *DLQ
	core    TransformCore
	omop    OMOPSyncer
	factory ConnectorFactory
	backpressure *BackpressureMonitor

	flushEvery      time.Duration
	flushRows       int64
	drainTimeout    time.Duration
	testFailureMode bool

	mu      sync.Mutex
	running map[string]*runningJob

	collector *ingestmetrics.MetricsCollector
}

/* SetCollector attaches the durable Postgres-backed latency/error
   collector. Optional: a nil collector (the default) means only the
   in-process Prometheus counters are recorded. */
func (e *Engine) SetCollector(c *ingestmetrics.MetricsCollector) {
	e.collector = c
}

type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

/* Config controls the worker loop's status-flush cadence and shutdown
   behavior, mirroring config.IngestionConfig. */
type Config struct {
	MaxConcurrentJobs int
	StatusFlushEvery  time.Duration
	StatusFlushRows   int64
	DrainTimeout      time.Duration
	TestFailureMode   bool
}

/* NewEngine creates an Ingestion Engine. */
func NewEngine(catalog JobCatalog, store RecordStore, dlq *DLQ, core TransformCore, omop OMOPSyncer, factory ConnectorFactory, cfg Config) *Engine {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 16
	}
	if cfg.StatusFlushEvery <= 0 {
		cfg.StatusFlushEvery = 2 * time.Second
	}
	if cfg.StatusFlushRows <= 0 {
		cfg.StatusFlushRows = 100
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}

	return &Engine{
		catalog:      catalog,
		store:        store,
		dlq:          dlq,
		core:         core,
		omop:         omop,
		factory:      factory,
		backpressure: NewBackpressureMonitor(cfg.MaxConcurrentJobs, cfg.MaxConcurrentJobs*4),
		flushEvery:      cfg.StatusFlushEvery,
		flushRows:       cfg.StatusFlushRows,
		drainTimeout:    cfg.DrainTimeout,
		testFailureMode: cfg.TestFailureMode,
	}
}

/* RehydrateIdle is called once at process start: the spec requires every
   persisted ingestion job to come back up IDLE regardless of what status
   was persisted before the crash/restart, since no worker goroutine for
   it is actually running yet. catalog.ListIngestionJobs already enforces
   this at the read layer; this method exists so main.go has a single
   documented call site for the invariant. */
func (e *Engine) RehydrateIdle(ctx context.Context) ([]model.IngestionJob, error) {
	return e.catalog.ListIngestionJobs(ctx)
}

/* Start preflight-validates a job's source and destination connectors
   and, if both are reachable, spawns its worker goroutine and marks it
   RUNNING. A connector that cannot be reached fails fast with the
   matching errorDetails.kind rather than starting a doomed job. */
func (e *Engine) Start(ctx context.Context, jobID string) error {
	job, err := e.catalog.GetIngestionJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("ingestion: load job: %w", err)
	}
	if job == nil {
		return neuronerrors.NotFound(fmt.Sprintf("ingestion job %q", jobID))
	}

	e.mu.Lock()
	if _, already := e.running[jobID]; already {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	mappingJob, err := e.resolveMappingJob(ctx, job.Config)
	if err != nil {
		e.failPreflight(ctx, jobID, "runtime_error", err.Error())
		return err
	}

	source, err := e.factory.NewSource(job.Config.SourceConnector)
	if err != nil {
		e.failPreflight(ctx, jobID, "source_missing", err.Error())
		return neuronerrors.SourceMissing(err.Error())
	}
	if err := source.Open(ctx); err != nil {
		e.failPreflight(ctx, jobID, "source_missing", err.Error())
		return neuronerrors.SourceMissing(err.Error())
	}

	var destination DestinationConnector
	if job.Config.DestinationConnector.Type != "" {
		destination, err = e.factory.NewDestination(job.Config.DestinationConnector)
		if err != nil {
			source.Close(ctx)
			e.failPreflight(ctx, jobID, "destination_missing", err.Error())
			return neuronerrors.DestinationMissing(err.Error())
		}
		if err := destination.Open(ctx); err != nil {
			source.Close(ctx)
			e.failPreflight(ctx, jobID, "destination_missing", err.Error())
			return neuronerrors.DestinationMissing(err.Error())
		}
	}

	if err := e.backpressure.AcquireSlot(ctx); err != nil {
		source.Close(ctx)
		if destination != nil {
			destination.Close(ctx)
		}
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rj := &runningJob{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	if e.running == nil {
		e.running = make(map[string]*runningJob)
	}
	e.running[jobID] = rj
	e.mu.Unlock()

	if err := e.catalog.UpdateIngestionStatus(ctx, jobID, model.IngestionRunning, model.IngestionMetrics{LastUpdated: time.Now()}, nil, ""); err != nil {
		logging.Warn("ingestion: failed to persist RUNNING status", "jobID", jobID, "error", err)
	}

	go e.run(runCtx, rj, jobID, job.Config, mappingJob, source, destination)

	return nil
}

/* Stop cancels a running job's goroutine and waits up to the configured
   drain timeout for it to flush its final status before returning. */
func (e *Engine) Stop(ctx context.Context, jobID string) error {
	e.mu.Lock()
	rj, ok := e.running[jobID]
	e.mu.Unlock()
	if !ok {
		return nil
	}

	rj.cancel()

	select {
	case <-rj.done:
	case <-time.After(e.drainTimeout):
		logging.Warn("ingestion: job did not drain within timeout", "jobID", jobID)
	}

	e.mu.Lock()
	delete(e.running, jobID)
	e.mu.Unlock()

	return e.catalog.UpdateIngestionStatus(ctx, jobID, model.IngestionStopped, model.IngestionMetrics{LastUpdated: time.Now()}, nil, "")
}

/* StopAll drains every currently-running job, used at process shutdown. */
func (e *Engine) StopAll(ctx context.Context) {
	e.mu.Lock()
	jobIDs := make([]string, 0, len(e.running))
	for jobID := range e.running {
		jobIDs = append(jobIDs, jobID)
	}
	e.mu.Unlock()

	for _, jobID := range jobIDs {
		if err := e.Stop(ctx, jobID); err != nil {
			logging.Warn("ingestion: failed to stop job during shutdown", "jobID", jobID, "error", err)
		}
	}
}

/* resolveMappingJob loads the linked mapping job, if any. mappingJobId is
   optional (model.IngestionJobConfig's `json:"mappingJobId,omitempty"`):
   a job with no linked mapping job is a pass-through job, whose source
   records are already in the target shape, per step 3 of the worker
   loop. Returning (nil, nil) in that case is not an error. */
func (e *Engine) resolveMappingJob(ctx context.Context, cfg model.IngestionJobConfig) (*model.MappingJob, error) {
	if cfg.MappingJobID == "" {
		return nil, nil
	}
	mj, err := e.catalog.GetMappingJob(ctx, cfg.MappingJobID)
	if err != nil {
		return nil, fmt.Errorf("ingestion: load mapping job %q: %w", cfg.MappingJobID, err)
	}
	if mj == nil {
		return nil, fmt.Errorf("ingestion: mapping job %q not found", cfg.MappingJobID)
	}
	if mj.Status != model.MappingApproved {
		return nil, fmt.Errorf("ingestion: mapping job %q is not APPROVED", cfg.MappingJobID)
	}
	return mj, nil
}

func (e *Engine) failPreflight(ctx context.Context, jobID, kind, message string) {
	if err := e.catalog.UpdateIngestionStatus(ctx, jobID, model.IngestionError, model.IngestionMetrics{LastUpdated: time.Now()}, &model.IngestionErrorDetails{Kind: kind}, message); err != nil {
		logging.Warn("ingestion: failed to persist preflight ERROR status", "jobID", jobID, "error", err)
	}
}

/* run is the per-job worker loop. It never panics the process: every
   per-record failure is routed to the DLQ or logged per the failure
   taxonomy, and only an exhausted sourceRead retry budget ends the job. */
func (e *Engine) run(ctx context.Context, rj *runningJob, jobID string, cfg model.IngestionJobConfig, mappingJob *model.MappingJob, source SourceConnector, destination DestinationConnector) {
	defer close(rj.done)
	defer e.backpressure.ReleaseSlot()
	defer source.Close(ctx)
	if destination != nil {
		defer destination.Close(ctx)
	}

	metrics := model.IngestionMetrics{LastUpdated: time.Now()}
	lastFlush := time.Now()
	windowStart := time.Now()
	windowRecords := int64(0)
	retryConfig := DefaultRetryConfig()

	flush := func(status model.IngestionStatus, errDetails *model.IngestionErrorDetails, errMessage string) {
		metrics.LastUpdated = time.Now()
		if err := e.catalog.UpdateIngestionStatus(ctx, jobID, status, metrics, errDetails, errMessage); err != nil {
			logging.Warn("ingestion: failed to flush status", "jobID", jobID, "error", err)
		}
		lastFlush = time.Now()
	}

	for {
		select {
		case <-ctx.Done():
			flush(model.IngestionStopped, nil, "")
			return
		default:
		}

		var row map[string]interface{}
		var ok bool
		readErr := Retry(ctx, retryConfig, func() error {
			r, o, err := source.Next(ctx)
			row, ok = r, o
			return err
		})
		if readErr != nil {
			flush(model.IngestionError, &model.IngestionErrorDetails{Kind: "runtime_error"}, neuronerrors.SourceRead(readErr).Error())
			return
		}
		if !ok {
			flush(model.IngestionIdle, nil, "")
			return
		}

		metrics.Received++
		ingestmetrics.IncrementIngestionReceived(jobID)

		if err := e.store.UpsertStaging(ctx, model.StagingRecord{Payload: row, JobID: jobID, IngestedAt: time.Now()}); err != nil {
			logging.Warn("ingestion: failed to write staging record", "jobID", jobID, "error", err)
		}

		recordStart := time.Now()
		e.processRecord(ctx, jobID, cfg, mappingJob, row, destination, &metrics)
		recordLatency := time.Since(recordStart)
		ingestmetrics.RecordIngestionLatency(jobID, recordLatency)
		if e.collector != nil {
			if err := e.collector.RecordLatency(ctx, jobID, float64(recordLatency.Milliseconds())); err != nil {
				logging.Warn("ingestion: failed to persist latency sample", "jobID", jobID, "error", err)
			}
		}

		windowRecords++
		if elapsed := time.Since(windowStart); elapsed >= qpsWindow {
			ingestmetrics.RecordQueriesPerSecond("ingestion_record", float64(windowRecords)/elapsed.Seconds())
			if metrics.Received > 0 {
				ingestmetrics.RecordErrorRate("ingestion_job", jobID, float64(metrics.Failed)/float64(metrics.Received)*100)
			}
			windowStart = time.Now()
			windowRecords = 0
		}

		if metrics.Received%e.flushRows == 0 || time.Since(lastFlush) >= e.flushEvery {
			flush(model.IngestionRunning, nil, "")
		}
	}
}

/* recordFailure updates both the in-process Prometheus counter and, if a
   durable collector is attached, the Postgres-backed error log. */
func (e *Engine) recordFailure(ctx context.Context, jobID, reason string) {
	ingestmetrics.IncrementIngestionFailed(jobID, reason)
	if e.collector != nil {
		if err := e.collector.RecordError(ctx, jobID, reason); err != nil {
			logging.Warn("ingestion: failed to persist error sample", "jobID", jobID, "error", err)
		}
	}
}

func (e *Engine) processRecord(ctx context.Context, jobID string, cfg model.IngestionJobConfig, mappingJob *model.MappingJob, row map[string]interface{}, destination DestinationConnector, metrics *model.IngestionMetrics) {
	if e.testFailureMode && metrics.Received%20 == 0 {
		metrics.Failed++
		e.recordFailure(ctx, jobID, "transform")
		if dlqErr := e.dlq.Add(ctx, jobID, row, "injected test failure (INGESTION_TEST_FAILURE_MODE)", "transform"); dlqErr != nil {
			logging.Warn("ingestion: failed to write DLQ entry", "jobID", jobID, "error", dlqErr)
		}
		return
	}

	var target map[string]interface{}
	var resourceType string
	if mappingJob != nil {
		var err error
		target, err = e.core.Apply(ctx, mappingJob.ApprovedMappings, row)
		if err != nil {
			metrics.Failed++
			e.recordFailure(ctx, jobID, "transform")
			if dlqErr := e.dlq.Add(ctx, jobID, row, err.Error(), "transform"); dlqErr != nil {
				logging.Warn("ingestion: failed to write DLQ entry", "jobID", jobID, "error", dlqErr)
			}
			return
		}
		resourceType = mappingJob.TargetResource
	} else {
		// No linked mapping job: the source is already in the target
		// shape, so the record passes through unmodified (worker loop
		// step 3). The resource type is read off the record itself,
		// matching FHIR's own convention of a self-describing
		// "resourceType" field.
		target = row
		resourceType = passThroughResourceType(row)
	}

	res := model.FHIRResource{
		ID:           deterministicResourceID(jobID, target),
		ResourceType: resourceType,
		JobID:        jobID,
		PersistedAt:  time.Now(),
		Resource:     target,
	}

	if err := e.store.UpsertFHIR(ctx, resourceType, res); err != nil {
		metrics.Failed++
		e.recordFailure(ctx, jobID, "destinationWrite")
		if dlqErr := e.dlq.Add(ctx, jobID, row, err.Error(), "destinationWrite"); dlqErr != nil {
			logging.Warn("ingestion: failed to write DLQ entry", "jobID", jobID, "error", dlqErr)
		}
		return
	}

	if destination != nil {
		if err := destination.Write(ctx, target); err != nil {
			metrics.Failed++
			e.recordFailure(ctx, jobID, "destinationWrite")
			if dlqErr := e.dlq.Add(ctx, jobID, row, err.Error(), "destinationWrite"); dlqErr != nil {
				logging.Warn("ingestion: failed to write DLQ entry", "jobID", jobID, "error", dlqErr)
			}
			return
		}
	}

	if cfg.OMOPAutoSync && e.omop != nil {
		// omopSync failures are logged, not DLQ'd: the FHIR write already
		// stands, and OMOP projection is a downstream convenience, not
		// part of the ingest contract's success/failure accounting.
		if err := e.omop.IngestOne(ctx, jobID, res); err != nil {
			ingestmetrics.IncrementOMOPSyncFailed(jobID)
			logging.Warn("ingestion: omop sync failed", "jobID", jobID, "resourceID", res.ID, "error", err)
		}
	}

	metrics.Processed++
	ingestmetrics.IncrementIngestionProcessed(jobID)
}

/* passThroughResourceType reads the FHIR "resourceType" field off a
   pass-through record; a record with no such field (or a non-FHIR
   shape) falls back to the generic "Resource" type. */
func passThroughResourceType(row map[string]interface{}) string {
	if rt, ok := row["resourceType"].(string); ok && rt != "" {
		return rt
	}
	return "Resource"
}

/* deterministicResourceID derives a stable FHIR resource id from the
   job and the transformed document's own fields, so re-ingesting the
   same logical record (e.g. after a retry or a re-run of the same
   source file) converges to the same upsert target rather than
   duplicating it. Grounded on internal/idservice's stableHash idiom. */
func deterministicResourceID(jobID string, target map[string]interface{}) string {
	keys := make([]string, 0, len(target))
	for k := range target {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	canonical := jobID
	for _, k := range keys {
		canonical += "|" + k + "=" + fmt.Sprintf("%v", target[k])
	}

	return fmt.Sprintf("%016x", xxhash.Sum64String(canonical))
}
