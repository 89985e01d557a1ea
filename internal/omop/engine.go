package omop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neurondb/NeuronIP/api/internal/idservice"
	"github.com/neurondb/NeuronIP/api/internal/logging"
	"github.com/neurondb/NeuronIP/api/internal/model"
)

/* RecordStore is the subset of the Record Store the OMOP Engine depends
   on: reading the normalization source and persisting rows.
   NormalizeConcepts reads only the job's own FHIR documents (never
   fabricated); it does not fall back to the most recent FHIR documents
   overall or to the job's staging records when those are empty. */
type RecordStore interface {
	UpsertOMOP(ctx context.Context, table string, row model.OMOPRow, keyFields map[string]interface{}) error
	ListByJob(ctx context.Context, collection, jobID string, limit, skip int64) ([]map[string]interface{}, error)
	FindFHIRMostRecent(ctx context.Context, resourceType string, limit int64) ([]map[string]interface{}, error)
	ListResourceTypes(ctx context.Context) ([]string, error)
}

/* IDResolver is the subset of the Deterministic ID Service the engine
   depends on. */
type IDResolver interface {
	GeneratePersonID(ctx context.Context, naturalKey string) (int64, error)
	GenerateVisitOccurrenceID(ctx context.Context, naturalKey string) (int64, error)
}

/* Engine is the OMOP Engine (C11): predicts tables, normalizes concepts,
   and projects FHIR resources into OMOP CDM rows. */
type Engine struct {
	store     RecordStore
	ids       IDResolver
	predictor *TablePredictor
	matcher   *ConceptMatcher
}

/* NewEngine creates an OMOP Engine. */
func NewEngine(store RecordStore, ids IDResolver, matcher *ConceptMatcher) *Engine {
	return &Engine{
		store:     store,
		ids:       ids,
		predictor: NewTablePredictor(),
		matcher:   matcher,
	}
}

/* PredictTable exposes the table predictor for preview/reporting use. */
func (e *Engine) PredictTable(resourceType string, fieldNames []string) TablePrediction {
	return e.predictor.Predict(resourceType, fieldNames)
}

/* IngestOne transforms a single persisted FHIR resource into its OMOP
   row(s) and upserts them. The person_id/visit_occurrence_id natural
   keys are derived from identifying fields present on the resource
   itself; a resource missing those fields still normalizes (no fields
   are fabricated), but the id falls back to a hash of the resource's own
   id so the upsert stays stable across re-ingest. */
func (e *Engine) IngestOne(ctx context.Context, jobID string, res model.FHIRResource) error {
	prediction := e.predictor.Predict(res.ResourceType, fieldNames(res.Resource))

	personID, err := e.resolvePersonID(ctx, res)
	if err != nil {
		return fmt.Errorf("omop: resolve person id: %w", err)
	}

	switch prediction.Table {
	case "PERSON":
		return e.persistPerson(ctx, jobID, personID, res)
	case "VISIT_OCCURRENCE":
		return e.persistVisitOccurrence(ctx, jobID, personID, res)
	case "CONDITION_OCCURRENCE":
		return e.persistConditionOccurrence(ctx, jobID, personID, res)
	case "MEASUREMENT":
		return e.persistMeasurement(ctx, jobID, personID, res)
	case "DRUG_EXPOSURE":
		return e.persistDrugExposure(ctx, jobID, personID, res)
	default:
		logging.Warn("omop: unrecognized table prediction, skipping", "table", prediction.Table, "resourceType", res.ResourceType)
		return nil
	}
}

/* ConceptSuggestion is one normalizeConcepts result: a source value,
   either supplied by the caller or pulled from real data, and the
   concept the matcher resolved it to (nil on no_match). */
type ConceptSuggestion struct {
	SourceValue string
	Concept     *model.OMOPConcept
	Stage       MatchStage
	Reason      string
}

/* NormalizeResult is normalizeConcepts' response envelope. Source is
   "provided" when values came from the caller (including an explicitly
   empty list) and "real_data" when they were pulled from jobID's FHIR
   documents. */
type NormalizeResult struct {
	Suggestions []ConceptSuggestion
	Source      string
	Count       int
}

/* NormalizeConcepts resolves source values to OMOP concepts in the
   given domain ("Condition", "Observation", "Drug"). A nil values slice
   pulls real FHIR documents for jobID's matching resource type and
   derives source values off them the way IngestOne's persist functions
   do, tagging the result source="real_data"; a non-nil values slice
   (including an explicitly empty one) is matched as given and tagged
   source="provided" — an empty provided list yields zero suggestions
   without touching the store, matching the concept matcher's own
   empty-input behavior. targetTable is not consulted by the matcher; it
   is only echoed back so a caller can route suggestions to a specific
   OMOP table. */
func (e *Engine) NormalizeConcepts(ctx context.Context, jobID, domain, targetTable string, values []string) (NormalizeResult, error) {
	if e.matcher == nil {
		return NormalizeResult{Source: "provided", Count: 0}, nil
	}

	source := "provided"
	if values == nil {
		source = "real_data"
		resourceType := domain
		if domain == "Drug" {
			resourceType = "MedicationRequest"
		}
		resources, err := e.store.ListByJob(ctx, fhirCollection(resourceType), jobID, 0, 0)
		if err != nil {
			return NormalizeResult{}, fmt.Errorf("omop: list %s documents for job %q: %w", domain, jobID, err)
		}
		values = make([]string, 0, len(resources))
		for _, res := range resources {
			if sv := extractDomainSourceValue(domain, res); sv != "" {
				values = append(values, sv)
			}
		}
	}

	field := domainApprovalField(domain)
	vocabularyID := vocabularyForDomain(domain)

	suggestions := make([]ConceptSuggestion, 0, len(values))
	for _, sv := range values {
		result := e.matcher.Match(ctx, jobID, field, vocabularyID, domain, sv)
		suggestions = append(suggestions, ConceptSuggestion{
			SourceValue: sv,
			Concept:     result.Concept,
			Stage:       result.Stage,
			Reason:      result.Reason,
		})
	}

	_ = targetTable
	return NormalizeResult{Suggestions: suggestions, Source: source, Count: len(suggestions)}, nil
}

/* Preview returns up to limit persisted OMOP rows for a job in the given
   table, for human review of a normalization/ingest run before a
   downstream consumer reads them. */
func (e *Engine) Preview(ctx context.Context, jobID, table string, limit int64) ([]map[string]interface{}, error) {
	rows, err := e.store.ListByJob(ctx, omopCollection(table), jobID, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("omop: preview %s for job %q: %w", table, jobID, err)
	}
	return rows, nil
}

/* PersistAll re-runs the FHIR -> OMOP projection for every resource
   already persisted under jobID, across every known FHIR resource type,
   optionally restricted to rows whose predicted table matches table.
   Used to rebuild the OMOP projection (e.g. after a vocabulary update)
   without re-ingesting the source feed. Per-resource failures are
   logged and skipped rather than aborting the batch. */
func (e *Engine) PersistAll(ctx context.Context, jobID, table string) (int, error) {
	resourceTypes, err := e.store.ListResourceTypes(ctx)
	if err != nil {
		return 0, fmt.Errorf("omop: list resource types: %w", err)
	}

	persisted := 0
	for _, resourceType := range resourceTypes {
		docs, err := e.store.ListByJob(ctx, fhirCollection(resourceType), jobID, 0, 0)
		if err != nil {
			return persisted, fmt.Errorf("omop: list %s documents for job %q: %w", resourceType, jobID, err)
		}
		for _, doc := range docs {
			res := fhirResourceFromDoc(jobID, resourceType, doc)
			if table != "" {
				prediction := e.predictor.Predict(res.ResourceType, fieldNames(res.Resource))
				if prediction.Table != table {
					continue
				}
			}
			if err := e.IngestOne(ctx, jobID, res); err != nil {
				logging.Warn("omop: persistAll failed for a resource, continuing", "jobID", jobID, "resourceID", res.ID, "error", err)
				continue
			}
			persisted++
		}
	}
	return persisted, nil
}

func (e *Engine) resolvePersonID(ctx context.Context, res model.FHIRResource) (int64, error) {
	mrn, _ := res.Resource["mrn"].(string)
	first, _ := res.Resource["firstName"].(string)
	last, _ := res.Resource["lastName"].(string)
	dob, _ := res.Resource["birthDate"].(string)

	if mrn == "" && first == "" && last == "" && dob == "" {
		// No demographic fields on this resource (e.g. a non-Patient
		// resource): key on the resource's own deterministic id so the
		// same resource always maps to the same synthetic person row.
		return e.ids.GeneratePersonID(ctx, idservice.NormalizePersonKey(res.ID, res.ResourceType, "", ""))
	}
	return e.ids.GeneratePersonID(ctx, idservice.NormalizePersonKey(mrn, first, last, dob))
}

func (e *Engine) persistPerson(ctx context.Context, jobID string, personID int64, res model.FHIRResource) error {
	fields := PersonFields(personID, res.Resource)
	row := model.OMOPRow{Table: "PERSON", PersonID: personID, Fields: fields, JobID: jobID, PersistedAt: time.Now(), SyncedFromFHIR: true}
	return e.store.UpsertOMOP(ctx, "PERSON", row, KeyFields("PERSON", personID, "", nil))
}

func (e *Engine) persistVisitOccurrence(ctx context.Context, jobID string, personID int64, res model.FHIRResource) error {
	visitKey := idservice.NormalizeVisitKey(fmt.Sprintf("%d", personID), stringField(res.Resource, "period", "start"), res.ResourceType)
	visitID, err := e.ids.GenerateVisitOccurrenceID(ctx, visitKey)
	if err != nil {
		return fmt.Errorf("omop: resolve visit id: %w", err)
	}

	fields := VisitOccurrenceFields(personID, visitID, res.Resource)
	sourceValue, _ := fields["visit_source_value"].(string)
	startDate := fields["visit_start_date"]
	row := model.OMOPRow{Table: "VISIT_OCCURRENCE", PersonID: personID, Fields: fields, JobID: jobID, PersistedAt: time.Now(), SyncedFromFHIR: true}
	return e.store.UpsertOMOP(ctx, "VISIT_OCCURRENCE", row, KeyFields("VISIT_OCCURRENCE", personID, sourceValue, startDate))
}

func (e *Engine) persistConditionOccurrence(ctx context.Context, jobID string, personID int64, res model.FHIRResource) error {
	sourceValue := stringField(res.Resource, "code", "text")
	if sourceValue == "" {
		sourceValue = codingCode(res.Resource, "code")
	}

	conceptID := e.resolveConcept(ctx, jobID, "condition_source_value", "ICD10CM", "Condition", sourceValue)

	fields := ConditionOccurrenceFields(personID, conceptID, sourceValue, res.Resource)
	startDate := fields["condition_start_date"]
	row := model.OMOPRow{Table: "CONDITION_OCCURRENCE", PersonID: personID, Fields: fields, JobID: jobID, PersistedAt: time.Now(), SyncedFromFHIR: true}
	return e.store.UpsertOMOP(ctx, "CONDITION_OCCURRENCE", row, KeyFields("CONDITION_OCCURRENCE", personID, sourceValue, startDate))
}

func (e *Engine) persistMeasurement(ctx context.Context, jobID string, personID int64, res model.FHIRResource) error {
	if res.ResourceType == "DiagnosticReport" {
		return e.persistDiagnosticReportMeasurements(ctx, jobID, personID, res)
	}

	sourceValue := codingCode(res.Resource, "code")
	conceptID := e.resolveConcept(ctx, jobID, "measurement_source_value", "LOINC", "Observation", sourceValue)

	fields := MeasurementFields(personID, conceptID, sourceValue, res.Resource)
	startDate := fields["measurement_date"]
	row := model.OMOPRow{Table: "MEASUREMENT", PersonID: personID, Fields: fields, JobID: jobID, PersistedAt: time.Now(), SyncedFromFHIR: true}
	return e.store.UpsertOMOP(ctx, "MEASUREMENT", row, KeyFields("MEASUREMENT", personID, sourceValue, startDate))
}

/* persistDiagnosticReportMeasurements emits one MEASUREMENT row per
   `result` entry of a DiagnosticReport, since a single report bundles
   several LOINC-coded lab results rather than the single coded value an
   Observation carries. Each entry is matched against the concept
   matcher independently; a report with no result entries emits no
   rows (tolerated per the row-emission contract: a row is dropped only
   when person_id can't be derived, and here there is simply nothing to
   emit a row for). */
func (e *Engine) persistDiagnosticReportMeasurements(ctx context.Context, jobID string, personID int64, res model.FHIRResource) error {
	results, ok := res.Resource["result"].([]interface{})
	if !ok || len(results) == 0 {
		return nil
	}

	reportDate, _ := res.Resource["effectiveDateTime"].(string)
	if reportDate == "" {
		reportDate, _ = res.Resource["issued"].(string)
	}

	var firstErr error
	for _, entry := range results {
		result, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}

		sourceValue := codingCode(result, "code")
		conceptID := e.resolveConcept(ctx, jobID, "measurement_source_value", "LOINC", "Observation", sourceValue)

		fields := MeasurementFields(personID, conceptID, sourceValue, result)
		if _, hasDate := fields["measurement_date"]; !hasDate && reportDate != "" {
			fields["measurement_date"] = reportDate
		}
		startDate := fields["measurement_date"]

		row := model.OMOPRow{Table: "MEASUREMENT", PersonID: personID, Fields: fields, JobID: jobID, PersistedAt: time.Now(), SyncedFromFHIR: true}
		if err := e.store.UpsertOMOP(ctx, "MEASUREMENT", row, KeyFields("MEASUREMENT", personID, sourceValue, startDate)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) persistDrugExposure(ctx context.Context, jobID string, personID int64, res model.FHIRResource) error {
	sourceValue := stringField(res.Resource, "medicationCodeableConcept", "text")
	if sourceValue == "" {
		sourceValue = codingCode(res.Resource, "medicationCodeableConcept")
	}
	conceptID := e.resolveConcept(ctx, jobID, "drug_source_value", "RxNorm", "Drug", sourceValue)

	fields := DrugExposureFields(personID, conceptID, sourceValue, res.Resource)
	startDate := fields["drug_exposure_start_date"]
	row := model.OMOPRow{Table: "DRUG_EXPOSURE", PersonID: personID, Fields: fields, JobID: jobID, PersistedAt: time.Now(), SyncedFromFHIR: true}
	return e.store.UpsertOMOP(ctx, "DRUG_EXPOSURE", row, KeyFields("DRUG_EXPOSURE", personID, sourceValue, startDate))
}

/* resolveConcept runs the four-stage matcher and returns 0 (no_match)
   rather than erroring, so a missed concept normalization never blocks
   persistence of the row it's attached to. */
func (e *Engine) resolveConcept(ctx context.Context, jobID, field, vocabularyID, domainID, sourceValue string) int64 {
	if e.matcher == nil || sourceValue == "" {
		return 0
	}
	result := e.matcher.Match(ctx, jobID, field, vocabularyID, domainID, sourceValue)
	if result.Concept == nil {
		return 0
	}
	return result.Concept.ConceptID
}

/* fhirCollection/omopCollection mirror internal/store's own (unexported)
   collection-naming convention, since the RecordStore interface takes a
   collection name rather than a resourceType/table directly. */
func fhirCollection(resourceType string) string {
	return "fhir_" + resourceType
}

func omopCollection(table string) string {
	return "omop_" + table
}

/* vocabularyForDomain and domainApprovalField mirror the vocabulary/field
   choices IngestOne's persist* functions make per table, so
   NormalizeConcepts resolves the same way a live ingest would. */
func vocabularyForDomain(domain string) string {
	switch domain {
	case "Condition":
		return "ICD10CM"
	case "Observation":
		return "LOINC"
	case "Drug":
		return "RxNorm"
	default:
		return domain
	}
}

func domainApprovalField(domain string) string {
	switch domain {
	case "Condition":
		return "condition_source_value"
	case "Observation":
		return "measurement_source_value"
	case "Drug":
		return "drug_source_value"
	default:
		return strings.ToLower(domain) + "_source_value"
	}
}

/* extractDomainSourceValue mirrors persistConditionOccurrence's,
   persistMeasurement's, and persistDrugExposure's own source-value
   derivation, so a real_data NormalizeConcepts call matches what a live
   ingest would have extracted from the same resource. */
func extractDomainSourceValue(domain string, resource map[string]interface{}) string {
	switch domain {
	case "Condition":
		if sv := stringField(resource, "code", "text"); sv != "" {
			return sv
		}
		return codingCode(resource, "code")
	case "Observation":
		return codingCode(resource, "code")
	case "Drug":
		if sv := stringField(resource, "medicationCodeableConcept", "text"); sv != "" {
			return sv
		}
		return codingCode(resource, "medicationCodeableConcept")
	default:
		return ""
	}
}

/* fhirResourceFromDoc rebuilds a model.FHIRResource from a stored
   document: UpsertFHIR flattens Resource's fields alongside id/job_id/
   persisted_at directly into the document rather than nesting it. */
func fhirResourceFromDoc(jobID, resourceType string, doc map[string]interface{}) model.FHIRResource {
	id, _ := doc["id"].(string)
	return model.FHIRResource{
		ID:           id,
		ResourceType: resourceType,
		JobID:        jobID,
		Resource:     doc,
	}
}

func fieldNames(resource map[string]interface{}) []string {
	names := make([]string, 0, len(resource))
	for k := range resource {
		names = append(names, k)
	}
	return names
}

func stringField(resource map[string]interface{}, path ...string) string {
	var cur interface{} = resource
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur = m[p]
	}
	s, _ := cur.(string)
	return s
}

func codingCode(resource map[string]interface{}, field string) string {
	container, ok := resource[field].(map[string]interface{})
	if !ok {
		return ""
	}
	codings, ok := container["coding"].([]interface{})
	if !ok || len(codings) == 0 {
		return ""
	}
	coding, ok := codings[0].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := coding["code"].(string)
	return code
}
