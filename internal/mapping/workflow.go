package mapping

import (
	"context"
	"fmt"
	"time"

	"github.com/neurondb/NeuronIP/api/internal/errors"
	"github.com/neurondb/NeuronIP/api/internal/model"
)

/* JobStore is the subset of the Job Catalog the Mapping Workflow needs,
   kept as an interface so this package doesn't import internal/catalog
   directly. */
type JobStore interface {
	GetMappingJob(ctx context.Context, jobID string) (*model.MappingJob, error)
	UpdateMappingJob(ctx context.Context, job *model.MappingJob) error
}

/* Workflow is the Mapping Workflow (C8): the DRAFT -> ANALYZING ->
   PENDING_REVIEW -> APPROVED state machine, grounded on the donor's
   status-string transition plus side-effect-update pattern
   (internal/semantic/approval.go's ApproveMetric/CreateApproval). */
type Workflow struct {
	jobs      JobStore
	engine    *Engine
	predictor *Predictor
}

/* NewWorkflow creates a Mapping Workflow. */
func NewWorkflow(jobs JobStore, engine *Engine, predictor *Predictor) *Workflow {
	return &Workflow{jobs: jobs, engine: engine, predictor: predictor}
}

/* Analyze runs the AI Mapping Engine and Resource Predictor over a DRAFT
   or PENDING_REVIEW job and moves it to PENDING_REVIEW. Idempotent: a
   second call against PENDING_REVIEW simply re-runs analysis. */
func (w *Workflow) Analyze(ctx context.Context, jobID string) (*model.MappingJob, error) {
	job, err := w.jobs.GetMappingJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("mapping workflow: job %s not found", jobID)
	}
	if job.Status != model.MappingDraft && job.Status != model.MappingPendingReview {
		return nil, fmt.Errorf("mapping workflow: cannot analyze job in status %s", job.Status)
	}

	job.Status = model.MappingAnalyzing

	job.AIMappings = w.engine.Suggest(ctx, job.SourceSchema, job.TargetSchema)

	if w.predictor != nil {
		prediction := w.predictor.Predict(job.SourceSchema)
		job.TargetResource = prediction.ResourceType
	}

	job.Status = model.MappingPendingReview
	job.UpdatedAt = time.Now()

	if err := w.jobs.UpdateMappingJob(ctx, job); err != nil {
		return nil, fmt.Errorf("mapping workflow: persist analysis: %w", err)
	}
	return job, nil
}

/* AddManualMapping appends a human-authored FieldMapping to a
   PENDING_REVIEW job's AI suggestions. */
func (w *Workflow) AddManualMapping(ctx context.Context, jobID string, fm model.FieldMapping) (*model.MappingJob, error) {
	job, err := w.jobs.GetMappingJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("mapping workflow: job %s not found", jobID)
	}
	if job.Status != model.MappingPendingReview {
		return nil, fmt.Errorf("mapping workflow: cannot add mapping to job in status %s", job.Status)
	}
	if !fm.Valid() {
		return nil, errors.InvalidMapping("manual mapping missing required fields", fm)
	}

	job.AIMappings = append(job.AIMappings, fm)
	job.UpdatedAt = time.Now()

	if err := w.jobs.UpdateMappingJob(ctx, job); err != nil {
		return nil, fmt.Errorf("mapping workflow: persist manual mapping: %w", err)
	}
	return job, nil
}

/* ApproveMappings moves a PENDING_REVIEW job to APPROVED, storing a
   point-in-time snapshot of the approved list. It does not mutate
   AIMappings. Re-approving an already-APPROVED job with the identical
   list is a no-op (round-trip/idempotence law). Every approved mapping
   must have a non-empty source/target field and a known transform type,
   or the call fails with ErrCodeInvalidMapping. */
func (w *Workflow) ApproveMappings(ctx context.Context, jobID string, approved []model.FieldMapping) (*model.MappingJob, error) {
	job, err := w.jobs.GetMappingJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("mapping workflow: job %s not found", jobID)
	}

	if job.Status == model.MappingApproved && sameMappings(job.ApprovedMappings, approved) {
		return job, nil
	}

	if job.Status != model.MappingPendingReview && job.Status != model.MappingApproved {
		return nil, fmt.Errorf("mapping workflow: cannot approve job in status %s", job.Status)
	}

	var offending []model.FieldMapping
	for _, fm := range approved {
		if !fm.Valid() {
			offending = append(offending, fm)
		}
	}
	if len(offending) > 0 {
		return nil, errors.InvalidMapping("one or more approved mappings are invalid", offending)
	}

	job.ApprovedMappings = approved
	job.Status = model.MappingApproved
	job.UpdatedAt = time.Now()

	if err := w.jobs.UpdateMappingJob(ctx, job); err != nil {
		return nil, fmt.Errorf("mapping workflow: persist approval: %w", err)
	}
	return job, nil
}

func sameMappings(a, b []model.FieldMapping) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].SourceField != b[i].SourceField ||
			a[i].TargetField != b[i].TargetField ||
			a[i].TransformType != b[i].TransformType {
			return false
		}
	}
	return true
}
