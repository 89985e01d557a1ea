package ingestion

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neurondb/NeuronIP/api/internal/model"
)

type fakeCatalog struct {
	mu         sync.Mutex
	mappingJob *model.MappingJob
	jobs       map[string]*model.IngestionJob
	statuses   []model.IngestionStatus
}

func (c *fakeCatalog) GetMappingJob(ctx context.Context, jobID string) (*model.MappingJob, error) {
	return c.mappingJob, nil
}

func (c *fakeCatalog) UpdateIngestionStatus(ctx context.Context, jobID string, status model.IngestionStatus, metrics model.IngestionMetrics, errDetails *model.IngestionErrorDetails, errMessage string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, status)
	if job, ok := c.jobs[jobID]; ok {
		job.Status = status
		job.Metrics = metrics
		job.ErrorDetails = errDetails
		job.ErrorMessage = errMessage
	}
	return nil
}

func (c *fakeCatalog) GetIngestionJob(ctx context.Context, jobID string) (*model.IngestionJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobs[jobID], nil
}

func (c *fakeCatalog) ListIngestionJobs(ctx context.Context) ([]model.IngestionJob, error) {
	return nil, nil
}

func (c *fakeCatalog) lastStatus() model.IngestionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.statuses) == 0 {
		return ""
	}
	return c.statuses[len(c.statuses)-1]
}

type fakeRecordStore struct {
	mu       sync.Mutex
	fhir     []model.FHIRResource
	staged   int
}

func (s *fakeRecordStore) UpsertStaging(ctx context.Context, rec model.StagingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged++
	return nil
}

func (s *fakeRecordStore) UpsertFHIR(ctx context.Context, resourceType string, res model.FHIRResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fhir = append(s.fhir, res)
	return nil
}

type passthroughTransform struct{}

func (passthroughTransform) Apply(ctx context.Context, mappings []model.FieldMapping, source map[string]interface{}) (map[string]interface{}, error) {
	return source, nil
}

type failingTransform struct{}

func (failingTransform) Apply(ctx context.Context, mappings []model.FieldMapping, source map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("boom")
}

type fakeDLQ struct {
	mu      sync.Mutex
	entries []string
}

func (d *fakeDLQ) UpsertDLQ(ctx context.Context, rec model.DLQRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, rec.ErrorReason)
	return nil
}

func (d *fakeDLQ) ListByJob(ctx context.Context, collection, jobID string, limit, skip int64) ([]map[string]interface{}, error) {
	return nil, nil
}

type sliceSource struct {
	rows []map[string]interface{}
	idx  int
}

func (s *sliceSource) Open(ctx context.Context) error { return nil }

func (s *sliceSource) Next(ctx context.Context) (map[string]interface{}, bool, error) {
	if s.idx >= len(s.rows) {
		return nil, false, nil
	}
	row := s.rows[s.idx]
	s.idx++
	return row, true, nil
}

func (s *sliceSource) Close(ctx context.Context) error { return nil }

func approvedMappingJob() *model.MappingJob {
	return &model.MappingJob{
		JobID:          "mj1",
		Status:         model.MappingApproved,
		TargetResource: "Patient",
		ApprovedMappings: []model.FieldMapping{
			{SourceField: "name", TargetField: "name", TransformType: model.TransformDirect},
		},
	}
}

func TestEngineProcessesAllRowsAndEndsIdle(t *testing.T) {
	catalog := &fakeCatalog{
		mappingJob: approvedMappingJob(),
		jobs: map[string]*model.IngestionJob{
			"job1": {Config: model.IngestionJobConfig{JobID: "job1", MappingJobID: "mj1", SourceConnector: model.ConnectorRef{Type: model.ConnectorCSVFile}}},
		},
	}
	store := &fakeRecordStore{}
	dlq := NewDLQ(&fakeDLQ{})
	engine := NewEngine(catalog, store, dlq, passthroughTransform{}, nil, nil, Config{})

	source := &sliceSource{rows: []map[string]interface{}{
		{"name": "Alice"}, {"name": "Bob"}, {"name": "Carol"},
	}}

	rj := &runningJob{cancel: func() {}, done: make(chan struct{})}
	ctx := context.Background()
	engine.run(ctx, rj, "job1", catalog.jobs["job1"].Config, approvedMappingJob(), source, nil)

	if store.staged != 3 {
		t.Fatalf("expected 3 staged records, got %d", store.staged)
	}
	if len(store.fhir) != 3 {
		t.Fatalf("expected 3 FHIR upserts, got %d", len(store.fhir))
	}
	if catalog.lastStatus() != model.IngestionIdle {
		t.Fatalf("expected job to end IDLE after source exhaustion, got %s", catalog.lastStatus())
	}
}

func TestEngineTransformFailureGoesToDLQNotFatal(t *testing.T) {
	catalog := &fakeCatalog{
		mappingJob: approvedMappingJob(),
		jobs: map[string]*model.IngestionJob{
			"job1": {Config: model.IngestionJobConfig{JobID: "job1", MappingJobID: "mj1"}},
		},
	}
	store := &fakeRecordStore{}
	dlqStore := &fakeDLQ{}
	dlq := NewDLQ(dlqStore)
	engine := NewEngine(catalog, store, dlq, failingTransform{}, nil, nil, Config{})

	source := &sliceSource{rows: []map[string]interface{}{{"name": "Alice"}}}

	rj := &runningJob{cancel: func() {}, done: make(chan struct{})}
	engine.run(context.Background(), rj, "job1", catalog.jobs["job1"].Config, approvedMappingJob(), source, nil)

	if len(dlqStore.entries) != 1 {
		t.Fatalf("expected one DLQ entry, got %d", len(dlqStore.entries))
	}
	if len(store.fhir) != 0 {
		t.Fatal("expected no FHIR upsert for a transform failure")
	}
}

func TestEngineResolveMappingJobNilWhenUnlinked(t *testing.T) {
	catalog := &fakeCatalog{}
	engine := NewEngine(catalog, &fakeRecordStore{}, NewDLQ(&fakeDLQ{}), passthroughTransform{}, nil, nil, Config{})

	mj, err := engine.resolveMappingJob(context.Background(), model.IngestionJobConfig{JobID: "job1"})
	if err != nil {
		t.Fatalf("expected no error for an unlinked job, got %v", err)
	}
	if mj != nil {
		t.Fatalf("expected nil mapping job for empty MappingJobID, got %+v", mj)
	}
}

func TestEnginePassesThroughWhenNoMappingJobLinked(t *testing.T) {
	catalog := &fakeCatalog{
		jobs: map[string]*model.IngestionJob{
			"job1": {Config: model.IngestionJobConfig{JobID: "job1"}},
		},
	}
	store := &fakeRecordStore{}
	dlq := NewDLQ(&fakeDLQ{})
	engine := NewEngine(catalog, store, dlq, failingTransform{}, nil, nil, Config{})

	source := &sliceSource{rows: []map[string]interface{}{
		{"resourceType": "Patient", "name": "Alice"},
		{"name": "Bob"},
	}}

	rj := &runningJob{cancel: func() {}, done: make(chan struct{})}
	engine.run(context.Background(), rj, "job1", catalog.jobs["job1"].Config, nil, source, nil)

	if len(store.fhir) != 2 {
		t.Fatalf("expected 2 pass-through FHIR upserts (transform never invoked), got %d", len(store.fhir))
	}
	if store.fhir[0].ResourceType != "Patient" {
		t.Fatalf("expected resourceType read off the record itself, got %q", store.fhir[0].ResourceType)
	}
	if store.fhir[1].ResourceType != "Resource" {
		t.Fatalf("expected generic fallback resourceType, got %q", store.fhir[1].ResourceType)
	}
	if store.fhir[0].Resource["name"] != "Alice" {
		t.Fatal("expected pass-through to use the source row unmodified")
	}
}

func TestDeterministicResourceIDIsStableAcrossCalls(t *testing.T) {
	target := map[string]interface{}{"b": "2", "a": "1"}
	id1 := deterministicResourceID("job1", target)
	id2 := deterministicResourceID("job1", map[string]interface{}{"a": "1", "b": "2"})
	if id1 != id2 {
		t.Fatalf("expected stable id regardless of map iteration order, got %s vs %s", id1, id2)
	}

	id3 := deterministicResourceID("job2", target)
	if id1 == id3 {
		t.Fatal("expected different job ids to produce different resource ids")
	}
}

func TestBackpressureMonitorBoundsConcurrentJobs(t *testing.T) {
	bp := NewBackpressureMonitor(1, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := bp.AcquireSlot(ctx); err != nil {
		t.Fatalf("unexpected error acquiring first slot: %v", err)
	}

	blockedCtx, blockedCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer blockedCancel()
	if err := bp.AcquireSlot(blockedCtx); err == nil {
		t.Fatal("expected second acquire to block until timeout with slot held")
	}

	bp.ReleaseSlot()
}
