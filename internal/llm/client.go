// Package llm provides the reasoning and embedding backend used by the AI
// Mapping Engine and OMOP Engine concept matcher. Grounded on the donor's
// internal/ai/service.go try-primary-then-fallback-then-nil-check idiom,
// generalized from its MCP/NeuronDB specifics to a single Client
// interface with a null implementation that never hard-fails.
package llm

import "context"

/* RankedPair is one source/target field pair scored by an embedding
   backend. */
type RankedPair struct {
	SourceField string
	TargetField string
	Similarity  float64
}

/* Explanation is the reasoning stage's output for one candidate mapping. */
type Explanation struct {
	Reasoning        string
	ClinicalContext  string
	TypeCompatible   bool
	ConfidenceAdjust float64 // in [-0.2, +0.2]
}

/* Client is the AI Mapping Engine's and OMOP Engine's reasoning/embedding
   backend. When a backend is unreachable, implementations report
   Available() false and their calls return an error, so callers (or
   FallbackClient) can fall back to lexical-only scoring. */
type Client interface {
	/* Embed returns a fixed-dimension embedding vector for text. */
	Embed(ctx context.Context, text string) ([]float64, error)

	/* Rank scores every source/target field-name pair by cosine
	   similarity of their embeddings, returning the top-k. */
	Rank(ctx context.Context, sourceFields, targetFields []string, topK int) ([]RankedPair, error)

	/* Explain produces a reasoning-stage judgment for one candidate
	   mapping pair. */
	Explain(ctx context.Context, sourceField, targetField, clinicalHint string) (Explanation, error)

	/* Available reports whether the backend is currently reachable. The
	   AI Mapping Engine consults this to set the degraded flag rather
	   than probing with a live call per request. */
	Available() bool
}

/* FallbackClient tries a primary Client and falls back to a secondary
   when the primary is unavailable or errors, mirroring the donor's
   UnifiedAIService MCP-then-NeuronDB chain. A nil primary or secondary is
   simply skipped. */
type FallbackClient struct {
	Primary   Client
	Secondary Client
}

/* NewFallbackClient builds a FallbackClient. Either argument may be nil. */
func NewFallbackClient(primary, secondary Client) *FallbackClient {
	return &FallbackClient{Primary: primary, Secondary: secondary}
}

func (f *FallbackClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.Primary != nil && f.Primary.Available() {
		if v, err := f.Primary.Embed(ctx, text); err == nil {
			return v, nil
		}
	}
	if f.Secondary != nil && f.Secondary.Available() {
		return f.Secondary.Embed(ctx, text)
	}
	return nil, errUnavailable
}

func (f *FallbackClient) Rank(ctx context.Context, sourceFields, targetFields []string, topK int) ([]RankedPair, error) {
	if f.Primary != nil && f.Primary.Available() {
		if v, err := f.Primary.Rank(ctx, sourceFields, targetFields, topK); err == nil {
			return v, nil
		}
	}
	if f.Secondary != nil && f.Secondary.Available() {
		return f.Secondary.Rank(ctx, sourceFields, targetFields, topK)
	}
	return nil, errUnavailable
}

func (f *FallbackClient) Explain(ctx context.Context, sourceField, targetField, clinicalHint string) (Explanation, error) {
	if f.Primary != nil && f.Primary.Available() {
		if v, err := f.Primary.Explain(ctx, sourceField, targetField, clinicalHint); err == nil {
			return v, nil
		}
	}
	if f.Secondary != nil && f.Secondary.Available() {
		return f.Secondary.Explain(ctx, sourceField, targetField, clinicalHint)
	}
	return Explanation{}, errUnavailable
}

func (f *FallbackClient) Available() bool {
	return (f.Primary != nil && f.Primary.Available()) || (f.Secondary != nil && f.Secondary.Available())
}
