package mapping

import (
	"regexp"

	"github.com/neurondb/NeuronIP/api/internal/model"
)

/* ResourceScore is one FHIR resource candidate's indicator score. */
type ResourceScore struct {
	ResourceType string
	Score        float64
	Indicators   []string
}

/* PredictionResult is the Resource Predictor's output: the winning FHIR
   resource type, its confidence, and the indicator fields that drove it. */
type PredictionResult struct {
	ResourceType   string
	Confidence     float64
	KeyIndicators  []string
	LowMargin      bool
	Scores         []ResourceScore
}

type indicatorRule struct {
	pattern *regexp.Regexp
	weight  float64
}

/* resourceIndicators mirrors internal/classification/service.go's
   applyRule fixed confidence tiers (pattern=0.9, keyword=0.8,
   column_name=0.7), repurposed here as primary/secondary/demographic
   scoring weights (5/2/1-3) instead of PII/PHI/PCI classification
   confidence. */
var resourceIndicators = map[string][]indicatorRule{
	"Condition": {
		{regexp.MustCompile(`(?i)diagnosis_code|icd`), 5},
		{regexp.MustCompile(`(?i)condition|diagnosis`), 2},
	},
	"Observation": {
		{regexp.MustCompile(`(?i)lab_code|loinc|result_value`), 5},
		{regexp.MustCompile(`(?i)observation|test_result|lab_`), 2},
	},
	"MedicationRequest": {
		{regexp.MustCompile(`(?i)medication_code|rxnorm|ndc`), 5},
		{regexp.MustCompile(`(?i)medication|drug|prescription`), 2},
	},
	"Procedure": {
		{regexp.MustCompile(`(?i)procedure_code|cpt|hcpcs`), 5},
		{regexp.MustCompile(`(?i)procedure|surgery`), 2},
	},
	"Encounter": {
		{regexp.MustCompile(`(?i)visit_id|encounter_id|admission`), 5},
		{regexp.MustCompile(`(?i)encounter|visit|discharge`), 2},
	},
	"DiagnosticReport": {
		{regexp.MustCompile(`(?i)report_id|imaging_code`), 5},
		{regexp.MustCompile(`(?i)report|radiology|pathology`), 2},
	},
	"Patient": {
		{regexp.MustCompile(`(?i)^(first_name|last_name|dob|date_of_birth|gender|sex)$`), 3},
		{regexp.MustCompile(`(?i)mrn|patient_id`), 3},
		{regexp.MustCompile(`(?i)address|phone|email`), 1},
	},
}

var resourceTypes = []string{
	"Patient", "Observation", "Condition", "MedicationRequest",
	"Procedure", "Encounter", "DiagnosticReport",
}

/* Predictor is the Resource Predictor. */
type Predictor struct{}

/* NewPredictor creates a Resource Predictor. */
func NewPredictor() *Predictor {
	return &Predictor{}
}

/* Predict scores a source schema against every candidate FHIR resource
   type and returns the winner. */
func (p *Predictor) Predict(source model.Schema) PredictionResult {
	scores := make([]ResourceScore, 0, len(resourceTypes))
	for _, rt := range resourceTypes {
		score, indicators := scoreResource(rt, source)
		scores = append(scores, ResourceScore{ResourceType: rt, Score: score, Indicators: indicators})
	}

	sortScoresDesc(scores)

	winner := scores[0]
	var runnerUp ResourceScore
	if len(scores) > 1 {
		runnerUp = scores[1]
	}

	confidence := 0.6
	lowMargin := true
	if winner.Score > 0 {
		margin := (winner.Score - runnerUp.Score) / winner.Score
		confidence = clamp(0.6+0.35*margin, 0.6, 0.95)
		lowMargin = margin < 0.2
	}

	return PredictionResult{
		ResourceType:  winner.ResourceType,
		Confidence:    confidence,
		KeyIndicators: winner.Indicators,
		LowMargin:     lowMargin,
		Scores:        scores,
	}
}

func scoreResource(resourceType string, source model.Schema) (float64, []string) {
	rules := resourceIndicators[resourceType]
	score := 0.0
	var indicators []string
	for _, f := range source.Fields {
		for _, rule := range rules {
			if rule.pattern.MatchString(f.Path) {
				score += rule.weight
				indicators = append(indicators, f.Path)
				break
			}
		}
	}
	return score, indicators
}

func sortScoresDesc(scores []ResourceScore) {
	for i := 1; i < len(scores); i++ {
		for j := i; j > 0 && scores[j].Score > scores[j-1].Score; j-- {
			scores[j], scores[j-1] = scores[j-1], scores[j]
		}
	}
}
