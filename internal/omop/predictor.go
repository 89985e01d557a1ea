// Package omop implements the OMOP Engine (C11): predicts the target OMOP
// CDM table for an incoming FHIR resource, normalizes its coded values
// against the Vocabulary Service's concept tables through a four-stage
// matcher, and projects the resource into an OMOP row ready for
// persistence. Table prediction reuses the indicator-weighted scoring
// idiom of internal/mapping/predictor.go, retargeted from FHIR resource
// types onto the five OMOP tables this engine populates.
package omop

import (
	"regexp"
)

/* TableScore is one OMOP table candidate's indicator score. */
type TableScore struct {
	Table      string
	Score      float64
	Indicators []string
}

/* TablePrediction is the table predictor's output. */
type TablePrediction struct {
	Table                    string
	Confidence               float64
	KeyIndicators            []string
	ManualReviewRecommended  bool
	Scores                   []TableScore
}

type tableIndicatorRule struct {
	pattern *regexp.Regexp
	weight  float64
}

/* tableIndicators mirrors internal/mapping/predictor.go's resourceIndicators
   shape, retargeted from FHIR resource-name patterns onto the
   resourceType/field patterns that identify which OMOP table a FHIR
   resource should land in. */
var tableIndicators = map[string][]tableIndicatorRule{
	"PERSON": {
		{regexp.MustCompile(`(?i)^Patient$`), 5},
		{regexp.MustCompile(`(?i)birthDate|gender|name`), 2},
	},
	"VISIT_OCCURRENCE": {
		{regexp.MustCompile(`(?i)^Encounter$`), 5},
		{regexp.MustCompile(`(?i)period|class|admission|discharge`), 2},
	},
	"CONDITION_OCCURRENCE": {
		{regexp.MustCompile(`(?i)^Condition$`), 5},
		{regexp.MustCompile(`(?i)code|clinicalStatus|onset`), 2},
	},
	"MEASUREMENT": {
		{regexp.MustCompile(`(?i)^(Observation|DiagnosticReport)$`), 5},
		{regexp.MustCompile(`(?i)valueQuantity|result|effectiveDateTime`), 2},
	},
	"DRUG_EXPOSURE": {
		{regexp.MustCompile(`(?i)^MedicationRequest$`), 5},
		{regexp.MustCompile(`(?i)medicationCodeableConcept|dosage|authoredOn`), 2},
	},
}

var omopTables = []string{
	"PERSON", "VISIT_OCCURRENCE", "CONDITION_OCCURRENCE", "MEASUREMENT", "DRUG_EXPOSURE",
}

/* TablePredictor is the OMOP table predictor. */
type TablePredictor struct{}

/* NewTablePredictor creates an OMOP table predictor. */
func NewTablePredictor() *TablePredictor {
	return &TablePredictor{}
}

/* Predict scores resourceType and its top-level field names against
   every candidate OMOP table and returns the winner. A zero-indicator
   input (resourceType matches nothing, no fields match) yields the
   zero-margin floor of 0.60 confidence with manualReviewRecommended set,
   per the boundary case of an unrecognized resource defaulting to the
   PERSON table rather than refusing outright. */
func (p *TablePredictor) Predict(resourceType string, fieldNames []string) TablePrediction {
	scores := make([]TableScore, 0, len(omopTables))
	for _, table := range omopTables {
		score, indicators := scoreTable(table, resourceType, fieldNames)
		scores = append(scores, TableScore{Table: table, Score: score, Indicators: indicators})
	}

	sortTableScoresDesc(scores)

	winner := scores[0]
	var runnerUp TableScore
	if len(scores) > 1 {
		runnerUp = scores[1]
	}

	confidence := 0.6
	manualReview := true
	if winner.Score > 0 {
		margin := (winner.Score - runnerUp.Score) / winner.Score
		confidence = clamp(0.6+0.35*margin, 0.6, 0.95)
		manualReview = confidence < 0.70
	}

	table := winner.Table
	if winner.Score == 0 {
		table = "PERSON"
	}

	return TablePrediction{
		Table:                   table,
		Confidence:              confidence,
		KeyIndicators:           winner.Indicators,
		ManualReviewRecommended: manualReview,
		Scores:                  scores,
	}
}

func scoreTable(table, resourceType string, fieldNames []string) (float64, []string) {
	rules := tableIndicators[table]
	score := 0.0
	var indicators []string

	candidates := make([]string, 0, len(fieldNames)+1)
	candidates = append(candidates, resourceType)
	candidates = append(candidates, fieldNames...)

	for _, c := range candidates {
		for _, rule := range rules {
			if rule.pattern.MatchString(c) {
				score += rule.weight
				indicators = append(indicators, c)
				break
			}
		}
	}
	return score, indicators
}

func sortTableScoresDesc(scores []TableScore) {
	for i := 1; i < len(scores); i++ {
		for j := i; j > 0 && scores[j].Score > scores[j-1].Score; j-- {
			scores[j], scores[j-1] = scores[j-1], scores[j]
		}
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
