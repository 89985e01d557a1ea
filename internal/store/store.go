// Package store implements the Record Store (C1): persists ingested
// artifacts in staging, staging_dlq, fhir_<ResourceType>, and
// omop_<Table> collections. Grounded on the connection-dialing idiom of
// internal/ingestion/connectors/mongodb.go.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/neurondb/NeuronIP/api/internal/config"
	"github.com/neurondb/NeuronIP/api/internal/logging"
	"github.com/neurondb/NeuronIP/api/internal/model"
)

const (
	collStaging    = "staging"
	collStagingDLQ = "staging_dlq"
)

/* Store is the Record Store. Connection acquisition enforces a bounded
   timeout (5s connect, 10s operation) and fails loudly rather than hang. */
type Store struct {
	client         *mongo.Client
	db             *mongo.Database
	connectTimeout time.Duration
	opTimeout      time.Duration
}

/* Connect dials MongoDB per cfg and verifies reachability within the
   configured connect timeout. */
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(cfg.ConnectionURI()))
	if err != nil {
		return nil, fmt.Errorf("record store: failed to connect: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, connectTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("record store: failed to ping: %w", err)
	}

	s := &Store{
		client:         client,
		db:             client.Database(cfg.Database),
		connectTimeout: connectTimeout,
		opTimeout:      opTimeout,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		logging.Warn("record store: failed to ensure indexes", "error", err)
	}

	return s, nil
}

/* Close disconnects the underlying Mongo client. */
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func fhirCollectionName(resourceType string) string {
	return "fhir_" + resourceType
}

func omopCollectionName(table string) string {
	return "omop_" + table
}

/* ensureIndexes creates the job_id index on the staging and staging_dlq
   collections. The unique id index on each fhir_* collection is created
   by UpsertFHIR; fhir_* and omop_* collections get no job_id index. */
func (s *Store) ensureIndexes(ctx context.Context) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	jobIDIndex := mongo.IndexModel{Keys: bson.D{{Key: "job_id", Value: 1}}}
	for _, coll := range []string{collStaging, collStagingDLQ} {
		if _, err := s.db.Collection(coll).Indexes().CreateOne(opCtx, jobIDIndex); err != nil {
			return err
		}
	}
	return nil
}

/* UpsertStaging appends an accepted raw row. Staging is not idempotent by
   design: it records the at-least-once ingest trail. */
func (s *Store) UpsertStaging(ctx context.Context, rec model.StagingRecord) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.db.Collection(collStaging).InsertOne(opCtx, bson.M{
		"payload":     rec.Payload,
		"job_id":      rec.JobID,
		"ingested_at": rec.IngestedAt,
	})
	return err
}

/* UpsertDLQ appends a failed record with its error reason. The DLQ is
   append-only. */
func (s *Store) UpsertDLQ(ctx context.Context, rec model.DLQRecord) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.db.Collection(collStagingDLQ).InsertOne(opCtx, bson.M{
		"payload":      rec.Payload,
		"job_id":       rec.JobID,
		"failed_at":    rec.FailedAt,
		"error_reason": rec.ErrorReason,
		"source":       rec.Source,
	})
	return err
}

/* UpsertFHIR is idempotent on id: repeated upserts of the same logical
   resource converge to a single document. */
func (s *Store) UpsertFHIR(ctx context.Context, resourceType string, res model.FHIRResource) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	coll := s.db.Collection(fhirCollectionName(resourceType))
	if _, err := coll.Indexes().CreateOne(opCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		// non-fatal: index may already exist under a racing writer
		logging.Warn("record store: ensure fhir index", "resourceType", resourceType, "error", err)
	}

	doc := res.Resource
	if doc == nil {
		doc = map[string]interface{}{}
	}
	doc["id"] = res.ID
	doc["job_id"] = res.JobID
	doc["persisted_at"] = res.PersistedAt

	_, err := coll.UpdateOne(opCtx,
		bson.M{"id": res.ID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	return err
}

/* UpsertOMOP is idempotent on the natural key described by keyFields. */
func (s *Store) UpsertOMOP(ctx context.Context, table string, row model.OMOPRow, keyFields map[string]interface{}) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	coll := s.db.Collection(omopCollectionName(table))

	doc := row.Fields
	if doc == nil {
		doc = map[string]interface{}{}
	}
	doc["_table"] = row.Table
	doc["person_id"] = row.PersonID
	doc["job_id"] = row.JobID
	doc["persisted_at"] = row.PersistedAt
	doc["synced_from_fhir"] = row.SyncedFromFHIR

	filter := bson.M{}
	for k, v := range keyFields {
		filter[k] = v
	}

	_, err := coll.UpdateOne(opCtx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

/* CountByJob counts documents in a collection for a given job. */
func (s *Store) CountByJob(ctx context.Context, collection, jobID string) (int64, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.db.Collection(collection).CountDocuments(opCtx, bson.M{"job_id": jobID})
}

/* ListByJob lists documents in a collection for a job, paged by limit/skip. */
func (s *Store) ListByJob(ctx context.Context, collection, jobID string, limit, skip int64) ([]map[string]interface{}, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	opts := options.Find().SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.db.Collection(collection).Find(opCtx, bson.M{"job_id": jobID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(opCtx)

	var results []map[string]interface{}
	for cursor.Next(opCtx) {
		var doc map[string]interface{}
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		results = append(results, doc)
	}
	return results, cursor.Err()
}

/* ListResourceTypes lists the fhir_<ResourceType> collections present. */
func (s *Store) ListResourceTypes(ctx context.Context) ([]string, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	names, err := s.db.ListCollectionNames(opCtx, bson.M{"name": bson.M{"$regex": "^fhir_"}})
	if err != nil {
		return nil, err
	}

	types := make([]string, 0, len(names))
	for _, name := range names {
		types = append(types, name[len("fhir_"):])
	}
	return types, nil
}

/* FindFHIRByID looks up a single FHIR document by its deterministic id. */
func (s *Store) FindFHIRByID(ctx context.Context, resourceType, id string) (map[string]interface{}, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	var doc map[string]interface{}
	err := s.db.Collection(fhirCollectionName(resourceType)).FindOne(opCtx, bson.M{"id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return doc, err
}

/* FindFHIRMostRecent returns the most recently persisted documents of a
   resource type across all jobs. The OMOP Engine's concept normalization
   does not call it. */
func (s *Store) FindFHIRMostRecent(ctx context.Context, resourceType string, limit int64) ([]map[string]interface{}, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "persisted_at", Value: -1}}).SetLimit(limit)
	cursor, err := s.db.Collection(fhirCollectionName(resourceType)).Find(opCtx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(opCtx)

	var results []map[string]interface{}
	for cursor.Next(opCtx) {
		var doc map[string]interface{}
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		results = append(results, doc)
	}
	return results, cursor.Err()
}
