package omop

import (
	"context"
	"testing"

	"github.com/neurondb/NeuronIP/api/internal/model"
)

type fakeVocab struct {
	approvals map[string]model.ConceptApproval
	byCode    map[string]model.OMOPConcept
	byText    map[string][]model.OMOPConcept
	byID      map[int64]model.OMOPConcept
	saved     []model.ConceptApproval
}

func newFakeVocab() *fakeVocab {
	return &fakeVocab{
		approvals: map[string]model.ConceptApproval{},
		byCode:    map[string]model.OMOPConcept{},
		byText:    map[string][]model.OMOPConcept{},
		byID:      map[int64]model.OMOPConcept{},
	}
}

func (f *fakeVocab) LookupByCode(ctx context.Context, vocabularyID, conceptCode string) (*model.OMOPConcept, error) {
	if c, ok := f.byCode[vocabularyID+"|"+conceptCode]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeVocab) SearchByText(ctx context.Context, domainID, text string, limit int) ([]model.OMOPConcept, error) {
	return f.byText[domainID+"|"+text], nil
}

func (f *fakeVocab) GetApproval(ctx context.Context, jobID, field, sourceValue string) (*model.ConceptApproval, error) {
	if a, ok := f.approvals[jobID+"|"+field+"|"+sourceValue]; ok {
		return &a, nil
	}
	return nil, nil
}

func (f *fakeVocab) SaveApproval(ctx context.Context, a model.ConceptApproval) error {
	f.saved = append(f.saved, a)
	f.approvals[a.JobID+"|"+a.Field+"|"+a.SourceValue] = a
	return nil
}

func (f *fakeVocab) GetByID(ctx context.Context, conceptID int64) (*model.OMOPConcept, error) {
	if c, ok := f.byID[conceptID]; ok {
		return &c, nil
	}
	return nil, nil
}

func TestConceptMatcherEmptyValueIsNoMatch(t *testing.T) {
	vocab := newFakeVocab()
	m := NewConceptMatcher(vocab, nil)
	result := m.Match(context.Background(), "job1", "measurement_source_value", "LOINC", "Observation", "")
	if result.Stage != StageNoMatch {
		t.Fatalf("expected no_match stage for empty source value, got %s", result.Stage)
	}
	if result.Concept != nil {
		t.Fatal("expected nil concept for empty source value")
	}
}

func TestConceptMatcherDirectLookup(t *testing.T) {
	vocab := newFakeVocab()
	vocab.byCode["LOINC|1234-5"] = model.OMOPConcept{ConceptID: 99, ConceptName: "Test"}
	m := NewConceptMatcher(vocab, nil)
	result := m.Match(context.Background(), "job1", "measurement_source_value", "LOINC", "Observation", "1234-5")
	if result.Stage != StageDirectLookup {
		t.Fatalf("expected direct_lookup, got %s", result.Stage)
	}
	if result.Concept == nil || result.Concept.ConceptID != 99 {
		t.Fatal("expected concept 99")
	}
}

func TestConceptMatcherApprovalCacheTakesPriority(t *testing.T) {
	vocab := newFakeVocab()
	vocab.byCode["LOINC|1234-5"] = model.OMOPConcept{ConceptID: 99, ConceptName: "Test"}
	vocab.approvals["job1|measurement_source_value|1234-5"] = model.ConceptApproval{JobID: "job1", Field: "measurement_source_value", SourceValue: "1234-5", ConceptID: 5}
	vocab.byID[5] = model.OMOPConcept{ConceptID: 5, ConceptName: "Approved"}
	m := NewConceptMatcher(vocab, nil)
	result := m.Match(context.Background(), "job1", "measurement_source_value", "LOINC", "Observation", "1234-5")
	if result.Stage != StageApprovalCache {
		t.Fatalf("expected approval_cache, got %s", result.Stage)
	}
	if result.Concept.ConceptID != 5 {
		t.Fatalf("expected approved concept 5, got %d", result.Concept.ConceptID)
	}
}

func TestConceptMatcherNoCandidatesIsNoMatch(t *testing.T) {
	vocab := newFakeVocab()
	m := NewConceptMatcher(vocab, nil)
	result := m.Match(context.Background(), "job1", "condition_source_value", "ICD10CM", "Condition", "Z99.9")
	if result.Stage != StageNoMatch {
		t.Fatalf("expected no_match, got %s", result.Stage)
	}
}
