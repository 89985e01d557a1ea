package mapping

import (
	"context"
	"testing"

	"github.com/neurondb/NeuronIP/api/internal/llm"
)

func TestSuggestDegradesToLexicalRankWithNullClient(t *testing.T) {
	e := NewEngine(llm.NewNullClient())
	source := schemaOf("first_name", "last_name")
	target := schemaOf("name.first", "name.last")

	suggestions := e.Suggest(context.Background(), source, target)
	if len(suggestions) != 2 {
		t.Fatalf("expected one suggestion per source field, got %d", len(suggestions))
	}
	for _, s := range suggestions {
		if !s.Degraded {
			t.Fatalf("expected every suggestion to be marked degraded without a reasoning backend, got %+v", s)
		}
	}
}

func TestSuggestMatchesFirstNameToNameFirst(t *testing.T) {
	e := NewEngine(llm.NewNullClient())
	source := schemaOf("first_name")
	target := schemaOf("name.first", "name.last", "unrelated_field")

	suggestions := e.Suggest(context.Background(), source, target)
	if len(suggestions) != 1 {
		t.Fatalf("expected exactly one suggestion, got %d", len(suggestions))
	}
	if suggestions[0].TargetField != "name.first" {
		t.Fatalf("expected first_name to map to name.first, got %s", suggestions[0].TargetField)
	}
}
