// Package mapping implements the AI Mapping Engine (C6), Resource
// Predictor (C7), and Mapping Workflow (C8). The engine's lexical +
// embedding + reasoning staging is grounded on the donor's
// internal/ai/service.go fallback-chain idiom as generalized by
// internal/llm.Client; its confidence-tier combination mirrors the
// weighted-rule scoring of internal/classification/service.go.
package mapping

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/neurondb/NeuronIP/api/internal/llm"
	"github.com/neurondb/NeuronIP/api/internal/model"
)

const (
	thresholdAutoApprove  = 0.90
	thresholdReview       = 0.70
	weightSemantic        = 0.4
	weightClinical        = 0.3
	weightTypeCompat      = 0.2
	weightStandardBonus   = 0.1
	topKEmbeddingCandidates = 5
)

var hl7FieldPath = regexp.MustCompile(`^[A-Z]{2,3}-\d+(\.\d+)?$`)

/* Engine is the AI Mapping Engine. */
type Engine struct {
	llm llm.Client
}

/* NewEngine creates an AI Mapping Engine against the given reasoning
   backend. Pass llm.NewNullClient() for a backend-free deployment. */
func NewEngine(client llm.Client) *Engine {
	return &Engine{llm: client}
}

/* Suggest produces a ranked list of FieldMapping suggestions for the
   given source and target schemas, applying the lexical, embedding, and
   reasoning stages described in the Mapping Engine's contract. */
func (e *Engine) Suggest(ctx context.Context, source, target model.Schema) []model.FieldMapping {
	sourceFields := fieldPaths(source)
	targetFields := fieldPaths(target)

	degraded := e.llm == nil || !e.llm.Available()
	switch c := e.llm.(type) {
	case *llm.NullClient:
		degraded = true
	case *llm.FallbackClient:
		if c.Primary == nil || !c.Primary.Available() {
			if _, ok := c.Secondary.(*llm.NullClient); ok {
				degraded = true
			}
		}
	}

	ranked, err := e.rank(ctx, sourceFields, targetFields)
	if err != nil {
		degraded = true
		ranked = lexicalOnlyRank(sourceFields, targetFields)
	}

	bySource := make(map[string][]llm.RankedPair)
	for _, r := range ranked {
		bySource[r.SourceField] = append(bySource[r.SourceField], r)
	}

	suggestions := make([]model.FieldMapping, 0, len(sourceFields))
	for _, src := range sourceFields {
		candidates := bySource[src]
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Similarity > candidates[j].Similarity
		})
		if len(candidates) > topKEmbeddingCandidates {
			candidates = candidates[:topKEmbeddingCandidates]
		}

		best := e.buildMapping(ctx, src, candidates, source, target, degraded)
		for i := 1; i < len(candidates); i++ {
			alt := e.buildMapping(ctx, src, candidates[i:i+1], source, target, degraded)
			best.Alternatives = append(best.Alternatives, alt)
		}
		suggestions = append(suggestions, best)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].ConfidenceScore != suggestions[j].ConfidenceScore {
			return suggestions[i].ConfidenceScore > suggestions[j].ConfidenceScore
		}
		if suggestions[i].TypeCompatible != suggestions[j].TypeCompatible {
			return suggestions[i].TypeCompatible
		}
		return suggestions[i].SourceField < suggestions[j].SourceField
	})

	return suggestions
}

func (e *Engine) rank(ctx context.Context, sourceFields, targetFields []string) ([]llm.RankedPair, error) {
	if e.llm == nil || !e.llm.Available() {
		return lexicalOnlyRank(sourceFields, targetFields), nil
	}
	return e.llm.Rank(ctx, sourceFields, targetFields, topKEmbeddingCandidates*len(sourceFields))
}

func lexicalOnlyRank(sourceFields, targetFields []string) []llm.RankedPair {
	pairs := make([]llm.RankedPair, 0, len(sourceFields)*len(targetFields))
	for _, src := range sourceFields {
		for _, tgt := range targetFields {
			pairs = append(pairs, llm.RankedPair{
				SourceField: src,
				TargetField: tgt,
				Similarity:  lexicalScore(src, tgt),
			})
		}
	}
	return pairs
}

func lexicalScore(a, b string) float64 {
	ta, tb := llm.Tokenize(a), llm.Tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	shared := 0
	for _, t := range tb {
		if set[t] {
			shared++
		}
	}
	denom := len(ta)
	if len(tb) > denom {
		denom = len(tb)
	}
	return float64(shared) / float64(denom)
}

func (e *Engine) buildMapping(ctx context.Context, src string, candidates []llm.RankedPair, source, target model.Schema, degraded bool) model.FieldMapping {
	top := candidates[0]
	lexical := lexicalScore(src, top.TargetField)

	srcType, _ := source.Get(src)
	tgtType, _ := target.Get(top.TargetField)
	typeCompatible := typesCompatible(srcType, tgtType)

	clinical := 0.0
	rationale := ""
	explanation := llm.Explanation{TypeCompatible: typeCompatible}
	if !degraded && e.llm != nil && e.llm.Available() {
		if exp, err := e.llm.Explain(ctx, src, top.TargetField, clinicalHint(srcType, tgtType)); err == nil {
			explanation = exp
			clinical = clamp(0.5+exp.ConfidenceAdjust, 0, 1)
			rationale = exp.Reasoning
		}
	}
	if rationale == "" {
		rationale = lexicalRationale(src, top.TargetField, lexical, top.Similarity)
	}

	standardBonus := 0.0
	if isStandardPathMatch(src, top.TargetField) {
		standardBonus = 1.0
	}

	confidence := weightSemantic*top.Similarity +
		weightClinical*clinical +
		weightTypeCompat*boolToFloat(typeCompatible||explanation.TypeCompatible) +
		weightStandardBonus*standardBonus
	confidence = clamp(confidence, 0, 1)

	transformType, hint := inferTransform(src, top.TargetField, srcType, tgtType)
	if hint != "" {
		rationale = rationale + " " + hint
	}

	return model.FieldMapping{
		SourceField:     src,
		TargetField:     top.TargetField,
		TransformType:   transformType,
		ConfidenceScore: confidence,
		Rationale:       rationale,
		ClinicalContext: explanation.ClinicalContext,
		TypeCompatible:  typeCompatible || explanation.TypeCompatible,
		Degraded:        degraded,
	}
}

func fieldPaths(s model.Schema) []string {
	paths := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		paths = append(paths, f.Path)
	}
	return paths
}

func typesCompatible(a, b model.SemanticType) bool {
	if a == "" || b == "" {
		return true
	}
	if a == b {
		return true
	}
	numeric := map[model.SemanticType]bool{model.TypeInteger: true, model.TypeDecimal: true}
	temporal := map[model.SemanticType]bool{model.TypeDate: true, model.TypeDateTime: true}
	return (numeric[a] && numeric[b]) || (temporal[a] && temporal[b])
}

func clinicalHint(srcType, tgtType model.SemanticType) string {
	if srcType != "" && tgtType != "" {
		return string(srcType) + " -> " + string(tgtType)
	}
	return ""
}

func lexicalRationale(src, tgt string, lexical, embedding float64) string {
	return "matched on token overlap and name similarity between " + src + " and " + tgt
}

func isStandardPathMatch(src, tgt string) bool {
	return hl7FieldPath.MatchString(src) || hl7FieldPath.MatchString(tgt)
}

/* inferTransform flags the composite-field and date-formatting pattern
   detections in the rationale and sets the matching transform: CONCAT
   for a full_name target, FORMAT_DATE for a date source feeding a
   datetime target. An HL7 field path in the source is only noted in the
   rationale; the transform stays DIRECT. */
func inferTransform(src, tgt string, srcType, tgtType model.SemanticType) (model.TransformKind, string) {
	lowerTgt := strings.ToLower(tgt)
	if strings.Contains(lowerTgt, "full_name") || strings.Contains(lowerTgt, "fullname") {
		return model.TransformConcat, "composite-field pattern: consider CONCAT of first+last into " + tgt
	}
	if srcType == model.TypeDate && tgtType == model.TypeDateTime {
		return model.TransformFormatDate, "date formatting: source is date, target is datetime"
	}
	if hl7FieldPath.MatchString(src) {
		return model.TransformDirect, "HL7 segment.field.component path detected in source"
	}
	return model.TransformDirect, ""
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
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

/* Threshold classifies a confidence score per the spec's three review
   tiers. */
func Threshold(confidence float64) string {
	switch {
	case confidence >= thresholdAutoApprove:
		return "auto_approvable"
	case confidence >= thresholdReview:
		return "review_required"
	default:
		return "reject"
	}
}
