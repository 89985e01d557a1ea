package llm

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var errUnavailable = errors.New("llm: backend unavailable")

/* NullClient is the zero-dependency fallback embedding/reasoning backend.
   It never errors and is always Available, so the AI Mapping Engine
   always has somewhere to land: Embed produces a cheap bag-of-characters
   vector, Rank ranks by normalized token overlap, and Explain returns a
   zero-adjustment neutral judgment. Results from NullClient should always
   be treated as degraded by the caller. */
type NullClient struct{}

/* NewNullClient creates the always-available degraded-mode client. */
func NewNullClient() *NullClient { return &NullClient{} }

func (n *NullClient) Available() bool { return true }

/* Embed produces a deterministic 26-dimension vector of lowercase letter
   frequencies. It carries no real semantic signal; it exists purely so
   Rank has a stable cosine-similarity fallback when no embedding backend
   is configured. */
func (n *NullClient) Embed(ctx context.Context, text string) ([]float64, error) {
	vec := make([]float64, 26)
	lower := strings.ToLower(text)
	total := 0.0
	for _, r := range lower {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
			total++
		}
	}
	if total > 0 {
		for i := range vec {
			vec[i] /= total
		}
	}
	return vec, nil
}

/* Rank scores pairs by normalized token overlap (lexical stage), since
   the null embedding vector carries no domain signal worth ranking on. */
func (n *NullClient) Rank(ctx context.Context, sourceFields, targetFields []string, topK int) ([]RankedPair, error) {
	pairs := make([]RankedPair, 0, len(sourceFields)*len(targetFields))
	for _, src := range sourceFields {
		for _, tgt := range targetFields {
			pairs = append(pairs, RankedPair{
				SourceField: src,
				TargetField: tgt,
				Similarity:  tokenOverlap(src, tgt),
			})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	if topK > 0 && len(pairs) > topK {
		pairs = pairs[:topK]
	}
	return pairs, nil
}

/* Explain returns a neutral judgment: no adjustment, type compatibility
   left to the caller's own check. */
func (n *NullClient) Explain(ctx context.Context, sourceField, targetField, clinicalHint string) (Explanation, error) {
	return Explanation{
		Reasoning:        "lexical-only: no reasoning backend configured",
		ClinicalContext:  clinicalHint,
		TypeCompatible:   true,
		ConfidenceAdjust: 0,
	}, nil
}

/* tokenOverlap splits camelCase/snake_case names into lowercase tokens
   and returns the Jaccard overlap. Shared with the Mapping Engine's
   lexical stage so Rank and the engine's own lexical score agree. */
func tokenOverlap(a, b string) float64 {
	ta, tb := Tokenize(a), Tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	shared := 0
	seen := make(map[string]bool, len(tb))
	for _, t := range tb {
		if set[t] && !seen[t] {
			shared++
			seen[t] = true
		}
	}
	union := len(set)
	for _, t := range tb {
		if !set[t] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

/* Tokenize splits a field name on camelCase boundaries, underscores, and
   dots, lowercasing every token. Exported for reuse by internal/mapping's
   lexical stage. */
func Tokenize(name string) []string {
	var tokens []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			tokens = append(tokens, strings.ToLower(buf.String()))
			buf.Reset()
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '.' || r == '-' || r == '[' || r == ']':
			flush()
		case r >= 'A' && r <= 'Z' && i > 0 && !isUpperOrDigit(runes[i-1]):
			flush()
			buf.WriteRune(r)
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func isUpperOrDigit(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
