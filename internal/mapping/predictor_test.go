package mapping

import (
	"testing"

	"github.com/neurondb/NeuronIP/api/internal/model"
)

func schemaOf(paths ...string) model.Schema {
	fields := make([]model.SchemaField, len(paths))
	for i, p := range paths {
		fields[i] = model.SchemaField{Path: p, Type: model.TypeString}
	}
	return model.Schema{Fields: fields}
}

func TestPredictDiagnosisCodeWinsCondition(t *testing.T) {
	p := NewPredictor()
	result := p.Predict(schemaOf("diagnosis_code", "patient_id"))
	if result.ResourceType != "Condition" {
		t.Fatalf("expected Condition, got %s", result.ResourceType)
	}
}

func TestPredictNoIndicatorsFallsBackToPatientAtFloorConfidence(t *testing.T) {
	p := NewPredictor()
	result := p.Predict(schemaOf("unrelated_field_a", "unrelated_field_b"))
	if result.ResourceType != "Patient" {
		t.Fatalf("expected Patient fallback, got %s", result.ResourceType)
	}
	if result.Confidence != 0.6 {
		t.Fatalf("expected floor confidence 0.6, got %f", result.Confidence)
	}
	if !result.LowMargin {
		t.Fatal("expected LowMargin to be true when no indicators matched")
	}
}

func TestPredictStrongMarginRaisesConfidenceAboveFloor(t *testing.T) {
	p := NewPredictor()
	result := p.Predict(schemaOf("diagnosis_code", "icd", "condition"))
	if result.Confidence <= 0.6 {
		t.Fatalf("expected confidence above floor for a strong single-resource match, got %f", result.Confidence)
	}
	if result.LowMargin {
		t.Fatal("expected LowMargin false for a decisive winner")
	}
}
