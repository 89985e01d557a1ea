package ingestion

import (
	"context"
	"time"

	"github.com/neurondb/NeuronIP/api/internal/model"
)

const dlqCollection = "staging_dlq"

/* DLQStore is the subset of the Record Store the Ingestion Engine's
   dead-letter path depends on. Replaces the donor's Postgres-backed
   dlq_entries table (internal/ingestion/dlq.go, deleted) with the
   Record Store's append-only staging_dlq collection, matching the
   spec's "DLQ is append-only" invariant and putting DLQ records in the
   same store as the staging/FHIR/OMOP data they're about. */
type DLQStore interface {
	UpsertDLQ(ctx context.Context, rec model.DLQRecord) error
	ListByJob(ctx context.Context, collection, jobID string, limit, skip int64) ([]map[string]interface{}, error)
}

/* DLQ wraps the Record Store's dead-letter operations for one ingestion
   run. */
type DLQ struct {
	store DLQStore
}

/* NewDLQ creates a DLQ helper over the given Record Store. */
func NewDLQ(store DLQStore) *DLQ {
	return &DLQ{store: store}
}

/* Add appends a failed record to the DLQ with its error reason and the
   pipeline stage that failed ("transform" or "destinationWrite" per the
   failure taxonomy). */
func (d *DLQ) Add(ctx context.Context, jobID string, payload map[string]interface{}, reason, source string) error {
	return d.store.UpsertDLQ(ctx, model.DLQRecord{
		Payload:     payload,
		JobID:       jobID,
		FailedAt:    time.Now(),
		ErrorReason: reason,
		Source:      source,
	})
}

/* List returns up to limit DLQ entries for a job. */
func (d *DLQ) List(ctx context.Context, jobID string, limit int64) ([]map[string]interface{}, error) {
	return d.store.ListByJob(ctx, dlqCollection, jobID, limit, 0)
}
