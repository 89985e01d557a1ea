package omop

import (
	"context"
	"testing"

	"github.com/neurondb/NeuronIP/api/internal/model"
)

type fakeStore struct {
	upserts []model.OMOPRow
	docs    map[string][]map[string]interface{} // collection -> documents
	types   []string
}

func (s *fakeStore) UpsertOMOP(ctx context.Context, table string, row model.OMOPRow, keyFields map[string]interface{}) error {
	s.upserts = append(s.upserts, row)
	return nil
}

func (s *fakeStore) ListByJob(ctx context.Context, collection, jobID string, limit, skip int64) ([]map[string]interface{}, error) {
	docs := s.docs[collection]
	if limit > 0 && int64(len(docs)) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *fakeStore) FindFHIRMostRecent(ctx context.Context, resourceType string, limit int64) ([]map[string]interface{}, error) {
	return nil, nil
}

func (s *fakeStore) ListResourceTypes(ctx context.Context) ([]string, error) {
	return s.types, nil
}

type fakeIDs struct{ next int64 }

func (f *fakeIDs) GeneratePersonID(ctx context.Context, naturalKey string) (int64, error) {
	f.next++
	return f.next, nil
}

func (f *fakeIDs) GenerateVisitOccurrenceID(ctx context.Context, naturalKey string) (int64, error) {
	f.next++
	return f.next, nil
}

func TestEngineIngestOnePatientPersistsPerson(t *testing.T) {
	store := &fakeStore{}
	ids := &fakeIDs{}
	vocab := newFakeVocab()
	engine := NewEngine(store, ids, NewConceptMatcher(vocab, nil))

	res := model.FHIRResource{
		ID:           "abc",
		ResourceType: "Patient",
		JobID:        "job1",
		Resource: map[string]interface{}{
			"mrn":       "MRN1",
			"firstName": "Jane",
			"lastName":  "Doe",
			"birthDate": "1980-05-01",
			"gender":    "female",
		},
	}

	if err := engine.IngestOne(context.Background(), "job1", res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(store.upserts))
	}
	if store.upserts[0].Table != "PERSON" {
		t.Fatalf("expected PERSON table, got %s", store.upserts[0].Table)
	}
	if store.upserts[0].Fields["gender_concept_id"] != int64(8532) {
		t.Fatalf("expected female concept id 8532, got %v", store.upserts[0].Fields["gender_concept_id"])
	}
}

func TestEngineIngestOneConditionResolvesNoMatchWithoutBlocking(t *testing.T) {
	store := &fakeStore{}
	ids := &fakeIDs{}
	vocab := newFakeVocab()
	engine := NewEngine(store, ids, NewConceptMatcher(vocab, nil))

	res := model.FHIRResource{
		ID:           "cond1",
		ResourceType: "Condition",
		JobID:        "job1",
		Resource: map[string]interface{}{
			"code": map[string]interface{}{
				"text": "Hypertension",
			},
			"onsetDateTime": "2020-01-01",
		},
	}

	if err := engine.IngestOne(context.Background(), "job1", res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected one upsert, got %d", len(store.upserts))
	}
	if store.upserts[0].Fields["condition_concept_id"] != int64(0) {
		t.Fatalf("expected no_match concept id 0, got %v", store.upserts[0].Fields["condition_concept_id"])
	}
}

func TestEngineIngestOneDiagnosticReportEmitsOneRowPerResult(t *testing.T) {
	store := &fakeStore{}
	ids := &fakeIDs{}
	vocab := newFakeVocab()
	vocab.byCode["LOINC|2345-7"] = model.OMOPConcept{ConceptID: 10, ConceptName: "Glucose"}
	engine := NewEngine(store, ids, NewConceptMatcher(vocab, nil))

	res := model.FHIRResource{
		ID:           "report1",
		ResourceType: "DiagnosticReport",
		JobID:        "job1",
		Resource: map[string]interface{}{
			"issued": "2021-03-01",
			"result": []interface{}{
				map[string]interface{}{
					"code":          map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "2345-7"}}},
					"valueQuantity": map[string]interface{}{"value": 95.0, "unit": "mg/dL"},
				},
				map[string]interface{}{
					"code":          map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "789-8"}}},
					"valueQuantity": map[string]interface{}{"value": 4.5, "unit": "10*6/uL"},
				},
			},
		},
	}

	if err := engine.IngestOne(context.Background(), "job1", res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("expected one MEASUREMENT row per result entry, got %d", len(store.upserts))
	}
	if store.upserts[0].Fields["measurement_concept_id"] != int64(10) {
		t.Fatalf("expected first result to resolve to the seeded concept, got %v", store.upserts[0].Fields["measurement_concept_id"])
	}
	if store.upserts[0].Fields["measurement_date"] != "2021-03-01" {
		t.Fatalf("expected result lacking its own date to fall back to the report's issued date, got %v", store.upserts[0].Fields["measurement_date"])
	}
	if store.upserts[1].Fields["measurement_concept_id"] != int64(0) {
		t.Fatalf("expected second result's unseeded code to resolve no_match (0), got %v", store.upserts[1].Fields["measurement_concept_id"])
	}
}

func TestEngineIngestOneDiagnosticReportWithNoResultsEmitsNoRows(t *testing.T) {
	store := &fakeStore{}
	engine := NewEngine(store, &fakeIDs{}, NewConceptMatcher(newFakeVocab(), nil))

	res := model.FHIRResource{
		ID:           "report2",
		ResourceType: "DiagnosticReport",
		JobID:        "job1",
		Resource:     map[string]interface{}{"issued": "2021-03-01"},
	}

	if err := engine.IngestOne(context.Background(), "job1", res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.upserts) != 0 {
		t.Fatalf("expected no rows for a report with no result entries, got %d", len(store.upserts))
	}
}

func TestEngineNormalizeConceptsEmptyProvidedValuesIsZeroSuggestions(t *testing.T) {
	store := &fakeStore{}
	engine := NewEngine(store, &fakeIDs{}, NewConceptMatcher(newFakeVocab(), nil))

	result, err := engine.NormalizeConcepts(context.Background(), "job1", "Condition", "", []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Source != "provided" || result.Count != 0 || len(result.Suggestions) != 0 {
		t.Fatalf("expected zero provided suggestions, got %+v", result)
	}
}

func TestEngineNormalizeConceptsPullsRealDataWhenValuesNil(t *testing.T) {
	vocab := newFakeVocab()
	vocab.byCode["ICD10CM|E11.9"] = model.OMOPConcept{ConceptID: 1, ConceptName: "Type 2 diabetes"}
	vocab.byCode["ICD10CM|I10"] = model.OMOPConcept{ConceptID: 2, ConceptName: "Hypertension"}
	vocab.byCode["ICD10CM|J45.909"] = model.OMOPConcept{ConceptID: 3, ConceptName: "Asthma"}

	store := &fakeStore{docs: map[string][]map[string]interface{}{
		"fhir_Condition": {
			{"code": map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "E11.9"}}}},
			{"code": map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "I10"}}}},
			{"code": map[string]interface{}{"coding": []interface{}{map[string]interface{}{"code": "J45.909"}}}},
		},
	}}
	engine := NewEngine(store, &fakeIDs{}, NewConceptMatcher(vocab, nil))

	result, err := engine.NormalizeConcepts(context.Background(), "job1", "Condition", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Source != "real_data" || result.Count != 3 {
		t.Fatalf("expected 3 real_data suggestions, got %+v", result)
	}
	for _, s := range result.Suggestions {
		if s.Concept == nil {
			t.Fatalf("expected every seeded code to resolve, got no match for %q", s.SourceValue)
		}
	}
}

func TestEnginePreviewListsOMOPRowsForJob(t *testing.T) {
	store := &fakeStore{docs: map[string][]map[string]interface{}{
		"omop_PERSON": {{"person_id": int64(1)}, {"person_id": int64(2)}},
	}}
	engine := NewEngine(store, &fakeIDs{}, NewConceptMatcher(newFakeVocab(), nil))

	rows, err := engine.Preview(context.Background(), "job1", "PERSON", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 preview rows, got %d", len(rows))
	}
}

func TestEnginePersistAllProjectsEveryStoredFHIRResource(t *testing.T) {
	store := &fakeStore{
		types: []string{"Patient", "Condition"},
		docs: map[string][]map[string]interface{}{
			"fhir_Patient": {
				{"id": "p1", "mrn": "MRN1", "firstName": "Jane", "lastName": "Doe", "birthDate": "1980-05-01"},
			},
			"fhir_Condition": {
				{"id": "c1", "code": map[string]interface{}{"text": "Hypertension"}},
			},
		},
	}
	engine := NewEngine(store, &fakeIDs{}, NewConceptMatcher(newFakeVocab(), nil))

	count, err := engine.PersistAll(context.Background(), "job1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 resources persisted, got %d", count)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("expected 2 OMOP upserts, got %d", len(store.upserts))
	}
}

func TestEnginePersistAllFiltersByTargetTable(t *testing.T) {
	store := &fakeStore{
		types: []string{"Patient", "Condition"},
		docs: map[string][]map[string]interface{}{
			"fhir_Patient": {
				{"id": "p1", "mrn": "MRN1", "firstName": "Jane", "lastName": "Doe", "birthDate": "1980-05-01"},
			},
			"fhir_Condition": {
				{"id": "c1", "code": map[string]interface{}{"text": "Hypertension"}},
			},
		},
	}
	engine := NewEngine(store, &fakeIDs{}, NewConceptMatcher(newFakeVocab(), nil))

	count, err := engine.PersistAll(context.Background(), "job1", "PERSON")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only the PERSON-predicted resource persisted, got %d", count)
	}
	if len(store.upserts) != 1 || store.upserts[0].Table != "PERSON" {
		t.Fatalf("expected a single PERSON upsert, got %+v", store.upserts)
	}
}
