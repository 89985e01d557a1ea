package mapping

import (
	"context"
	"testing"
	"time"

	"github.com/neurondb/NeuronIP/api/internal/llm"
	"github.com/neurondb/NeuronIP/api/internal/model"
)

type fakeJobStore struct {
	jobs map[string]*model.MappingJob
}

func newFakeJobStore(job *model.MappingJob) *fakeJobStore {
	return &fakeJobStore{jobs: map[string]*model.MappingJob{job.JobID: job}}
}

func (f *fakeJobStore) GetMappingJob(ctx context.Context, jobID string) (*model.MappingJob, error) {
	return f.jobs[jobID], nil
}

func (f *fakeJobStore) UpdateMappingJob(ctx context.Context, job *model.MappingJob) error {
	f.jobs[job.JobID] = job
	return nil
}

func draftJob() *model.MappingJob {
	return &model.MappingJob{
		JobID:        "job1",
		Status:       model.MappingDraft,
		SourceSchema: schemaOf("first_name", "last_name", "mrn"),
		TargetSchema: schemaOf("name.first", "name.last", "identifier"),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func TestAnalyzeMovesDraftToPendingReview(t *testing.T) {
	store := newFakeJobStore(draftJob())
	wf := NewWorkflow(store, NewEngine(llm.NewNullClient()), NewPredictor())

	job, err := wf.Analyze(context.Background(), "job1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != model.MappingPendingReview {
		t.Fatalf("expected PENDING_REVIEW, got %s", job.Status)
	}
	if job.TargetResource == "" {
		t.Fatal("expected Resource Predictor to set a target resource")
	}
}

func TestAnalyzeRejectsApprovedJob(t *testing.T) {
	job := draftJob()
	job.Status = model.MappingApproved
	store := newFakeJobStore(job)
	wf := NewWorkflow(store, NewEngine(llm.NewNullClient()), NewPredictor())

	if _, err := wf.Analyze(context.Background(), "job1"); err == nil {
		t.Fatal("expected error analyzing an already-APPROVED job")
	}
}

func TestApproveMappingsRejectsInvalidMapping(t *testing.T) {
	job := draftJob()
	job.Status = model.MappingPendingReview
	store := newFakeJobStore(job)
	wf := NewWorkflow(store, NewEngine(llm.NewNullClient()), NewPredictor())

	invalid := []model.FieldMapping{{SourceField: "", TargetField: "x", TransformType: model.TransformDirect}}
	if _, err := wf.ApproveMappings(context.Background(), "job1", invalid); err == nil {
		t.Fatal("expected error approving an invalid mapping")
	}
}

func TestApproveMappingsTransitionsToApproved(t *testing.T) {
	job := draftJob()
	job.Status = model.MappingPendingReview
	store := newFakeJobStore(job)
	wf := NewWorkflow(store, NewEngine(llm.NewNullClient()), NewPredictor())

	approved := []model.FieldMapping{
		{SourceField: "mrn", TargetField: "identifier", TransformType: model.TransformDirect},
	}
	result, err := wf.ApproveMappings(context.Background(), "job1", approved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.MappingApproved {
		t.Fatalf("expected APPROVED, got %s", result.Status)
	}
}

func TestApproveMappingsReapprovingSameListIsNoop(t *testing.T) {
	job := draftJob()
	job.Status = model.MappingApproved
	job.ApprovedMappings = []model.FieldMapping{
		{SourceField: "mrn", TargetField: "identifier", TransformType: model.TransformDirect},
	}
	store := newFakeJobStore(job)
	wf := NewWorkflow(store, NewEngine(llm.NewNullClient()), NewPredictor())

	result, err := wf.ApproveMappings(context.Background(), "job1", job.ApprovedMappings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != model.MappingApproved {
		t.Fatalf("expected re-approval to remain APPROVED, got %s", result.Status)
	}
}
