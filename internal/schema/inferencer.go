// Package schema implements the Schema Inferencer (C5): reads a sample of
// tabular rows and infers a column-to-semantic-type mapping using name
// heuristics and value patterns. Grounded on and generalizing
// internal/ingestion/parsers/csv.go's inferSchema/parseValue pair, raised
// from its 4-type DB-oriented schema to the 6-type tagged union the
// Mapping Engine needs.
package schema

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/neurondb/NeuronIP/api/internal/model"
)

const sampleSize = 100

var (
	nameDate     = regexp.MustCompile(`(?i)date|dob|birth`)
	nameDateTime = regexp.MustCompile(`(?i)datetime|timestamp|_at$`)
	nameInteger  = regexp.MustCompile(`(?i)age|count|number|id|mrn`)
	nameDecimal  = regexp.MustCompile(`(?i)price|amount|salary`)
	nameBoolean  = regexp.MustCompile(`(?i)^is_|^has_|^(active|flag)$`)

	isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

/* Inferencer infers a Schema and preview rows from sampled tabular data. */
type Inferencer struct{}

/* New creates a Schema Inferencer. */
func New() *Inferencer {
	return &Inferencer{}
}

/* Result is the Schema Inferencer's output: the inferred schema plus a
   preview of the first rows. */
type Result struct {
	Schema  model.Schema
	Preview []map[string]interface{}
}

/* Infer infers a column->semantic-type mapping from up to ~100 sample
   rows. columns gives the ordered column names (paths); rows gives each
   row's raw string values keyed by column name. Name heuristics trump
   value heuristics when both apply. */
func (inf *Inferencer) Infer(columns []string, rows []map[string]string) Result {
	if len(rows) > sampleSize {
		rows = rows[:sampleSize]
	}

	fields := make([]model.SchemaField, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, model.SchemaField{
			Path: col,
			Type: inf.inferColumn(col, rows),
		})
	}

	previewRows := rows
	if len(previewRows) > 5 {
		previewRows = previewRows[:5]
	}
	preview := make([]map[string]interface{}, 0, len(previewRows))
	for _, row := range previewRows {
		typed := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			typed[col] = ParseValue(row[col], fieldType(fields, col))
		}
		preview = append(preview, typed)
	}

	return Result{Schema: model.Schema{Fields: fields}, Preview: preview}
}

func fieldType(fields []model.SchemaField, path string) model.SemanticType {
	for _, f := range fields {
		if f.Path == path {
			return f.Type
		}
	}
	return model.TypeString
}

/* inferColumn applies name heuristics first, falling back to value
   heuristics (majority rule over non-empty samples) when the name gives
   no signal. */
func (inf *Inferencer) inferColumn(name string, rows []map[string]string) model.SemanticType {
	if t, ok := inferFromName(name); ok {
		return t
	}
	return inferFromValues(name, rows)
}

func inferFromName(name string) (model.SemanticType, bool) {
	switch {
	case nameDateTime.MatchString(name):
		return model.TypeDateTime, true
	case nameDate.MatchString(name):
		return model.TypeDate, true
	case nameInteger.MatchString(name):
		return model.TypeInteger, true
	case nameDecimal.MatchString(name):
		return model.TypeDecimal, true
	case nameBoolean.MatchString(name):
		return model.TypeBoolean, true
	default:
		return "", false
	}
}

func inferFromValues(column string, rows []map[string]string) model.SemanticType {
	nonEmpty := 0
	isDate, isInt, isDecimal, isBool := true, true, true, true

	for _, row := range rows {
		value := strings.TrimSpace(row[column])
		if value == "" {
			continue
		}
		nonEmpty++

		if isDate && !isoDate.MatchString(value) {
			isDate = false
		}
		if isInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				isInt = false
			}
		}
		if isDecimal {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				isDecimal = false
			}
		}
		if isBool && !isBooleanLiteral(value) {
			isBool = false
		}
	}

	switch {
	case nonEmpty == 0:
		return model.TypeString
	case isDate:
		return model.TypeDate
	case isBool:
		return model.TypeBoolean
	case isInt:
		return model.TypeInteger
	case isDecimal:
		return model.TypeDecimal
	default:
		return model.TypeString
	}
}

func isBooleanLiteral(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "1", "0", "yes", "no":
		return true
	default:
		return false
	}
}

/* ParseValue converts a raw string into a typed Go value per the given
   semantic type, mirroring the donor parser's parseValue but over the
   6-type tagged union. Unparsable values fall back to the raw string. */
func ParseValue(value string, t model.SemanticType) interface{} {
	if value == "" {
		return nil
	}
	switch t {
	case model.TypeInteger:
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
		return value
	case model.TypeDecimal:
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
		return value
	case model.TypeBoolean:
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	default:
		return value
	}
}
