// Package transform implements the Transform Core (C9): applies an
// approved mapping set to a single source record, producing one target
// document per the spec's DIRECT/CONCAT/SPLIT/UPPERCASE/LOWERCASE/
// FORMAT_DATE/CUSTOM transform types. Nested target-path materialization
// follows the a[0].b grammar. Grounded on the donor's
// internal/ingestion/etl/engine.go named-transformation-registry idiom
// (see registry.go) for the CUSTOM case.
package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	neuronerrors "github.com/neurondb/NeuronIP/api/internal/errors"
	"github.com/neurondb/NeuronIP/api/internal/model"
)

const defaultSourceDateFormat = "2006-01-02"

/* Core is the Transform Core. */
type Core struct {
	custom *Registry
}

/* New creates a Transform Core. A nil registry means CUSTOM transforms
   always fail with an unknown-script error. */
func New(custom *Registry) *Core {
	if custom == nil {
		custom = NewRegistry()
	}
	return &Core{custom: custom}
}

/* Apply runs every approved FieldMapping against one source record,
   producing a single target document. Missing source values propagate as
   absent target fields (the key is simply not set), never as explicit
   nulls. A transform error is returned immediately, naming the offending
   source field. */
func (c *Core) Apply(ctx context.Context, mappings []model.FieldMapping, source map[string]interface{}) (map[string]interface{}, error) {
	target := make(map[string]interface{})

	for _, m := range mappings {
		value, present, err := c.applyOne(ctx, m, source)
		if err != nil {
			return nil, neuronerrors.TransformFailed(m.SourceField, err)
		}
		if !present {
			continue
		}
		setNestedPath(target, m.TargetField, value)
	}

	return target, nil
}

func (c *Core) applyOne(ctx context.Context, m model.FieldMapping, source map[string]interface{}) (interface{}, bool, error) {
	switch m.TransformType {
	case model.TransformDirect:
		return directValue(source, m.SourceField)

	case model.TransformConcat:
		return c.concat(m, source)

	case model.TransformSplit:
		return c.split(m, source)

	case model.TransformUppercase:
		return c.changeCase(source, m.SourceField, strings.ToUpper)

	case model.TransformLowercase:
		return c.changeCase(source, m.SourceField, strings.ToLower)

	case model.TransformFormatDate:
		return c.formatDate(m, source)

	case model.TransformCustom:
		scriptName, _ := m.TransformOptions["script"].(string)
		v, err := c.custom.Invoke(ctx, scriptName, source)
		if err != nil {
			return nil, false, err
		}
		return v, v != nil, nil

	default:
		return nil, false, fmt.Errorf("unknown transform type %q", m.TransformType)
	}
}

func directValue(source map[string]interface{}, path string) (interface{}, bool, error) {
	v, ok := getNestedPath(source, path)
	if !ok || v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

/* concat joins multiple source fields named in TransformOptions["fields"]
   (falling back to the single SourceField), separator defaulting to a
   single space, result trimmed. */
func (c *Core) concat(m model.FieldMapping, source map[string]interface{}) (interface{}, bool, error) {
	fields := stringSliceOption(m.TransformOptions, "fields")
	if len(fields) == 0 {
		fields = []string{m.SourceField}
	}
	separator := " "
	if s, ok := m.TransformOptions["separator"].(string); ok {
		separator = s
	}

	parts := make([]string, 0, len(fields))
	anyPresent := false
	for _, f := range fields {
		v, ok := getNestedPath(source, f)
		if !ok || v == nil {
			continue
		}
		anyPresent = true
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	if !anyPresent {
		return nil, false, nil
	}
	return strings.TrimSpace(strings.Join(parts, separator)), true, nil
}

/* split breaks one source value by TransformOptions["separator"]
   (default comma) into up to TransformOptions["count"] components and
   returns the slice of components as the value of the mapping's single
   TargetField. The components are not spread over several target
   fields; a TransformOptions["targets"] entry is not read. */
func (c *Core) split(m model.FieldMapping, source map[string]interface{}) (interface{}, bool, error) {
	v, ok := getNestedPath(source, m.SourceField)
	if !ok || v == nil {
		return nil, false, nil
	}
	str := fmt.Sprintf("%v", v)

	separator := ","
	if s, ok := m.TransformOptions["separator"].(string); ok {
		separator = s
	}

	components := strings.Split(str, separator)
	for i := range components {
		components[i] = strings.TrimSpace(components[i])
	}

	if count, ok := m.TransformOptions["count"].(float64); ok && int(count) < len(components) {
		components = components[:int(count)]
	}

	return components, true, nil
}

func (c *Core) changeCase(source map[string]interface{}, path string, fn func(string) string) (interface{}, bool, error) {
	v, ok := getNestedPath(source, path)
	if !ok || v == nil {
		return nil, false, nil
	}
	str, ok := v.(string)
	if !ok {
		str = fmt.Sprintf("%v", v)
	}
	return fn(str), true, nil
}

/* formatDate parses the source per TransformOptions["sourceFormat"]
   (default YYYY-MM-DD) and renders per TransformOptions["targetFormat"]
   (default ISO-8601 datetime at midnight UTC). */
func (c *Core) formatDate(m model.FieldMapping, source map[string]interface{}) (interface{}, bool, error) {
	v, ok := getNestedPath(source, m.SourceField)
	if !ok || v == nil {
		return nil, false, nil
	}
	str := fmt.Sprintf("%v", v)

	sourceFormat := defaultSourceDateFormat
	if f, ok := m.TransformOptions["sourceFormat"].(string); ok {
		sourceFormat = f
	}

	parsed, err := time.Parse(sourceFormat, str)
	if err != nil {
		return nil, false, fmt.Errorf("format_date: parse %q as %q: %w", str, sourceFormat, err)
	}

	if targetFormat, ok := m.TransformOptions["targetFormat"].(string); ok {
		return parsed.Format(targetFormat), true, nil
	}
	return parsed.UTC().Format(time.RFC3339), true, nil
}

func stringSliceOption(options map[string]interface{}, key string) []string {
	raw, ok := options[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

/* getNestedPath resolves a dotted/indexed path (a[0].b) against a nested
   map/slice structure. */
func getNestedPath(data map[string]interface{}, path string) (interface{}, bool) {
	segments := splitPath(path)
	var current interface{} = data

	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]interface{}:
			v, ok := node[seg.key]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}

		if seg.index >= 0 {
			slice, ok := current.([]interface{})
			if !ok || seg.index >= len(slice) {
				return nil, false
			}
			current = slice[seg.index]
		}
	}
	return current, true
}

/* setNestedPath materializes arrays/objects on demand to set a value at a
   dotted/indexed path (a[0].b). */
func setNestedPath(data map[string]interface{}, path string, value interface{}) {
	segments := splitPath(path)
	current := data

	for i, seg := range segments {
		last := i == len(segments)-1

		if seg.index < 0 {
			if last {
				current[seg.key] = value
				return
			}
			next, ok := current[seg.key].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[seg.key] = next
			}
			current = next
			continue
		}

		slice, ok := current[seg.key].([]interface{})
		if !ok {
			slice = make([]interface{}, 0, seg.index+1)
		}
		for len(slice) <= seg.index {
			slice = append(slice, nil)
		}

		if last {
			slice[seg.index] = value
			current[seg.key] = slice
			return
		}

		next, ok := slice[seg.index].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
		}
		slice[seg.index] = next
		current[seg.key] = slice
		current = next
	}
}

type pathSegment struct {
	key   string
	index int // -1 when this segment has no array index
}

func splitPath(path string) []pathSegment {
	parts := strings.Split(path, ".")
	segments := make([]pathSegment, 0, len(parts))

	for _, part := range parts {
		key := part
		index := -1
		if open := strings.IndexByte(part, '['); open >= 0 && strings.HasSuffix(part, "]") {
			key = part[:open]
			if n, err := strconv.Atoi(part[open+1 : len(part)-1]); err == nil {
				index = n
			}
		}
		segments = append(segments, pathSegment{key: key, index: index})
	}
	return segments
}
