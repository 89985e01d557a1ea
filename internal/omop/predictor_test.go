package omop

import "testing"

func TestPredictTablePatientWins(t *testing.T) {
	p := NewTablePredictor()
	result := p.Predict("Patient", []string{"birthDate", "gender", "name"})
	if result.Table != "PERSON" {
		t.Fatalf("expected PERSON, got %s", result.Table)
	}
	if result.Confidence < 0.70 {
		t.Fatalf("expected high confidence for unambiguous indicators, got %v", result.Confidence)
	}
}

func TestPredictTableZeroIndicatorsFallsBackToPersonAtFloor(t *testing.T) {
	p := NewTablePredictor()
	result := p.Predict("Unknown", nil)
	if result.Table != "PERSON" {
		t.Fatalf("expected PERSON fallback, got %s", result.Table)
	}
	if result.Confidence != 0.60 {
		t.Fatalf("expected floor confidence 0.60, got %v", result.Confidence)
	}
	if !result.ManualReviewRecommended {
		t.Fatal("expected manual review recommended at floor confidence")
	}
}

func TestPredictTableCondition(t *testing.T) {
	p := NewTablePredictor()
	result := p.Predict("Condition", []string{"code", "clinicalStatus", "onset"})
	if result.Table != "CONDITION_OCCURRENCE" {
		t.Fatalf("expected CONDITION_OCCURRENCE, got %s", result.Table)
	}
}
