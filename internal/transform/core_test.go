package transform

import (
	"context"
	"testing"

	"github.com/neurondb/NeuronIP/api/internal/model"
)

func TestApplyDirectTransform(t *testing.T) {
	core := New(nil)
	source := map[string]interface{}{"first_name": "Jane"}
	mappings := []model.FieldMapping{
		{SourceField: "first_name", TargetField: "name.first", TransformType: model.TransformDirect},
	}

	target, err := core.Apply(context.Background(), mappings, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	name, ok := target["name"].(map[string]interface{})
	if !ok || name["first"] != "Jane" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestApplyMissingSourceOmitsTargetKey(t *testing.T) {
	core := New(nil)
	mappings := []model.FieldMapping{
		{SourceField: "missing", TargetField: "out", TransformType: model.TransformDirect},
	}

	target, err := core.Apply(context.Background(), mappings, map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, present := target["out"]; present {
		t.Fatal("expected absent target key for missing source, not an explicit null")
	}
}

func TestApplyConcatJoinsFields(t *testing.T) {
	core := New(nil)
	source := map[string]interface{}{"first": "Jane", "last": "Doe"}
	mappings := []model.FieldMapping{
		{
			SourceField:   "first",
			TargetField:   "fullName",
			TransformType: model.TransformConcat,
			TransformOptions: map[string]interface{}{
				"fields": []interface{}{"first", "last"},
			},
		},
	}

	target, err := core.Apply(context.Background(), mappings, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target["fullName"] != "Jane Doe" {
		t.Fatalf("expected concatenated name, got %v", target["fullName"])
	}
}

func TestApplySplitRespectsCount(t *testing.T) {
	core := New(nil)
	source := map[string]interface{}{"tags": "a,b,c,d"}
	mappings := []model.FieldMapping{
		{
			SourceField:   "tags",
			TargetField:   "tags",
			TransformType: model.TransformSplit,
			TransformOptions: map[string]interface{}{
				"count": float64(2),
			},
		},
	}

	target, err := core.Apply(context.Background(), mappings, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts, ok := target["tags"].([]string)
	if !ok || len(parts) != 2 || parts[0] != "a" || parts[1] != "b" {
		t.Fatalf("unexpected split result: %+v", target["tags"])
	}
}

func TestApplyFormatDateDefaultsToRFC3339(t *testing.T) {
	core := New(nil)
	source := map[string]interface{}{"dob": "1980-05-01"}
	mappings := []model.FieldMapping{
		{SourceField: "dob", TargetField: "birthDate", TransformType: model.TransformFormatDate},
	}

	target, err := core.Apply(context.Background(), mappings, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target["birthDate"] != "1980-05-01T00:00:00Z" {
		t.Fatalf("unexpected formatted date: %v", target["birthDate"])
	}
}

func TestApplyNestedArrayTargetPath(t *testing.T) {
	core := New(nil)
	source := map[string]interface{}{"code": "1234-5"}
	mappings := []model.FieldMapping{
		{SourceField: "code", TargetField: "coding[0].code", TransformType: model.TransformDirect},
	}

	target, err := core.Apply(context.Background(), mappings, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	coding, ok := target["coding"].([]interface{})
	if !ok || len(coding) != 1 {
		t.Fatalf("expected single-element coding array, got %+v", target["coding"])
	}
	entry, ok := coding[0].(map[string]interface{})
	if !ok || entry["code"] != "1234-5" {
		t.Fatalf("unexpected coding entry: %+v", coding[0])
	}
}

func TestApplyCustomInvokesRegisteredScript(t *testing.T) {
	registry := NewRegistry()
	registry.Register("upperFirst", func(ctx context.Context, row map[string]interface{}) (interface{}, error) {
		s, _ := row["first"].(string)
		if s == "" {
			return nil, nil
		}
		return s + "!", nil
	})
	core := New(registry)

	source := map[string]interface{}{"first": "Jane"}
	mappings := []model.FieldMapping{
		{
			SourceField:      "first",
			TargetField:      "shout",
			TransformType:    model.TransformCustom,
			TransformOptions: map[string]interface{}{"script": "upperFirst"},
		},
	}

	target, err := core.Apply(context.Background(), mappings, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target["shout"] != "Jane!" {
		t.Fatalf("unexpected custom transform result: %v", target["shout"])
	}
}

func TestApplyUnknownCustomScriptErrors(t *testing.T) {
	core := New(NewRegistry())
	mappings := []model.FieldMapping{
		{
			SourceField:      "first",
			TargetField:      "shout",
			TransformType:    model.TransformCustom,
			TransformOptions: map[string]interface{}{"script": "doesNotExist"},
		},
	}

	_, err := core.Apply(context.Background(), mappings, map[string]interface{}{"first": "Jane"})
	if err == nil {
		t.Fatal("expected error for unregistered custom script")
	}
}
