package omop

import (
	"context"
	"fmt"
	"strings"

	"github.com/neurondb/NeuronIP/api/internal/llm"
	"github.com/neurondb/NeuronIP/api/internal/metrics"
	"github.com/neurondb/NeuronIP/api/internal/model"
)

/* MatchStage names which of the four concept-matching stages produced a
   result (or that none did). */
type MatchStage string

const (
	StageApprovalCache   MatchStage = "approval_cache"
	StageDirectLookup    MatchStage = "direct_lookup"
	StageSemanticSearch  MatchStage = "semantic_search"
	StageReasoning       MatchStage = "reasoning"
	StageNoMatch         MatchStage = "no_match"
)

const semanticSearchLimit = 5

/* VocabularyLookup is the subset of the Vocabulary Service the concept
   matcher depends on. */
type VocabularyLookup interface {
	LookupByCode(ctx context.Context, vocabularyID, conceptCode string) (*model.OMOPConcept, error)
	SearchByText(ctx context.Context, domainID, text string, limit int) ([]model.OMOPConcept, error)
	GetApproval(ctx context.Context, jobID, field, sourceValue string) (*model.ConceptApproval, error)
	SaveApproval(ctx context.Context, a model.ConceptApproval) error
	GetByID(ctx context.Context, conceptID int64) (*model.OMOPConcept, error)
}

/* MatchResult is the concept matcher's output for one source value. */
type MatchResult struct {
	Concept *model.OMOPConcept
	Stage   MatchStage
	Reason  string
}

/* ConceptMatcher resolves a source coded value to a standard OMOP concept
   through four escalating stages: a cached human approval, an exact
   vocabulary-code lookup, a text search over concept names (the
   Vocabulary Service's SearchByText, a case-insensitive substring
   match; no embedding is computed), and an LLM reasoning pass over the
   text-search candidates. Each stage only runs if the previous one
   found nothing. */
type ConceptMatcher struct {
	vocab VocabularyLookup
	llm   llm.Client
}

/* NewConceptMatcher creates a concept matcher against the given
   Vocabulary Service and reasoning backend. A nil llm.Client skips only
   the reasoning stage: the text search still runs and its best-ranked
   candidate is returned. */
func NewConceptMatcher(vocab VocabularyLookup, client llm.Client) *ConceptMatcher {
	return &ConceptMatcher{vocab: vocab, llm: client}
}

/* Match resolves sourceValue in the given domain/field to a standard
   concept. jobID and field scope the approval cache; vocabularyID scopes
   the direct-lookup stage (e.g. "LOINC", "RxNorm", "ICD10CM"); domainID
   scopes the semantic-search stage (e.g. "Observation", "Condition"). */
func (m *ConceptMatcher) Match(ctx context.Context, jobID, field, vocabularyID, domainID, sourceValue string) (result MatchResult) {
	defer func() { metrics.IncrementConceptMatchStage(string(result.Stage)) }()

	if strings.TrimSpace(sourceValue) == "" {
		return MatchResult{Stage: StageNoMatch, Reason: "empty source value"}
	}

	if approval, err := m.vocab.GetApproval(ctx, jobID, field, sourceValue); err == nil && approval != nil {
		if concept, err := m.vocab.GetByID(ctx, approval.ConceptID); err == nil && concept != nil {
			return MatchResult{Concept: concept, Stage: StageApprovalCache, Reason: "previously approved mapping"}
		}
	}

	if concept, err := m.vocab.LookupByCode(ctx, vocabularyID, sourceValue); err == nil && concept != nil {
		return MatchResult{Concept: concept, Stage: StageDirectLookup, Reason: "exact vocabulary code match"}
	}

	candidates, err := m.vocab.SearchByText(ctx, domainID, sourceValue, semanticSearchLimit)
	if err != nil || len(candidates) == 0 {
		return MatchResult{Stage: StageNoMatch, Reason: "no candidates in semantic search"}
	}
	if len(candidates) == 1 {
		c := candidates[0]
		return MatchResult{Concept: &c, Stage: StageSemanticSearch, Reason: "single unambiguous text match"}
	}

	if m.llm == nil || !m.llm.Available() {
		c := candidates[0]
		return MatchResult{Concept: &c, Stage: StageSemanticSearch, Reason: "multiple candidates, reasoning backend unavailable, took best-ranked"}
	}

	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.ConceptName)
	}
	ranked, err := m.llm.Rank(ctx, []string{sourceValue}, names, 1)
	if err != nil || len(ranked) == 0 {
		c := candidates[0]
		return MatchResult{Concept: &c, Stage: StageSemanticSearch, Reason: "reasoning stage errored, fell back to best-ranked text match"}
	}

	best := ranked[0]
	for i := range candidates {
		if candidates[i].ConceptName == best.TargetField {
			return MatchResult{
				Concept: &candidates[i],
				Stage:   StageReasoning,
				Reason:  fmt.Sprintf("reasoning stage selected %q (similarity %.2f)", best.TargetField, best.Similarity),
			}
		}
	}

	c := candidates[0]
	return MatchResult{Concept: &c, Stage: StageSemanticSearch, Reason: "reasoning selection unresolved, fell back to best-ranked text match"}
}

/* Approve records a human-confirmed match so future calls for the same
   (job, field, sourceValue) resolve at the approval-cache stage. */
func (m *ConceptMatcher) Approve(ctx context.Context, jobID, field, sourceValue string, conceptID int64) error {
	return m.vocab.SaveApproval(ctx, model.ConceptApproval{
		JobID:       jobID,
		Field:       field,
		SourceValue: sourceValue,
		ConceptID:   conceptID,
	})
}
