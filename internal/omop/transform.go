package omop

import (
	"fmt"
	"time"
)

/* genderConceptID maps a FHIR administrative gender code to its OMOP
   standard concept, following the CDM's fixed vocabulary: male=8507,
   female=8532, anything else (including absent/unknown) maps to 0. */
func genderConceptID(fhirGender string) int64 {
	switch fhirGender {
	case "male":
		return 8507
	case "female":
		return 8532
	default:
		return 0
	}
}

/* PersonFields projects a FHIR Patient resource into PERSON table fields. */
func PersonFields(personID int64, patient map[string]interface{}) map[string]interface{} {
	gender, _ := patient["gender"].(string)
	birthDate, _ := patient["birthDate"].(string)

	fields := map[string]interface{}{
		"person_id":           personID,
		"gender_concept_id":   genderConceptID(gender),
		"gender_source_value": gender,
	}

	if birthDate != "" {
		if t, err := time.Parse("2006-01-02", birthDate); err == nil {
			fields["year_of_birth"] = t.Year()
			fields["month_of_birth"] = int(t.Month())
			fields["day_of_birth"] = t.Day()
			fields["birth_datetime"] = t
		}
	}

	return fields
}

/* VisitOccurrenceFields projects a FHIR Encounter resource into
   VISIT_OCCURRENCE table fields. */
func VisitOccurrenceFields(personID, visitOccurrenceID int64, encounter map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"visit_occurrence_id": visitOccurrenceID,
		"person_id":           personID,
	}

	if period, ok := encounter["period"].(map[string]interface{}); ok {
		if start, ok := period["start"].(string); ok {
			fields["visit_start_date"] = start
		}
		if end, ok := period["end"].(string); ok {
			fields["visit_end_date"] = end
		}
	}
	if class, ok := encounter["class"].(map[string]interface{}); ok {
		if code, ok := class["code"].(string); ok {
			fields["visit_source_value"] = code
		}
	}

	return fields
}

/* ConditionOccurrenceFields projects a FHIR Condition resource into
   CONDITION_OCCURRENCE table fields. conceptID is the matched standard
   concept for the condition code, or 0 when unmatched. */
func ConditionOccurrenceFields(personID int64, conceptID int64, sourceValue string, condition map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"person_id":                   personID,
		"condition_concept_id":        conceptID,
		"condition_source_value":      sourceValue,
	}
	if onset, ok := condition["onsetDateTime"].(string); ok {
		fields["condition_start_date"] = onset
	}
	return fields
}

/* MeasurementFields projects a FHIR Observation or DiagnosticReport
   resource into MEASUREMENT table fields. */
func MeasurementFields(personID int64, conceptID int64, sourceValue string, resource map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"person_id":               personID,
		"measurement_concept_id":  conceptID,
		"measurement_source_value": sourceValue,
	}
	if eff, ok := resource["effectiveDateTime"].(string); ok {
		fields["measurement_date"] = eff
	}
	if vq, ok := resource["valueQuantity"].(map[string]interface{}); ok {
		if v, ok := vq["value"].(float64); ok {
			fields["value_as_number"] = v
		}
		if unit, ok := vq["unit"].(string); ok {
			fields["unit_source_value"] = unit
		}
	}
	return fields
}

/* DrugExposureFields projects a FHIR MedicationRequest resource into
   DRUG_EXPOSURE table fields. */
func DrugExposureFields(personID int64, conceptID int64, sourceValue string, request map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"person_id":             personID,
		"drug_concept_id":       conceptID,
		"drug_source_value":     sourceValue,
	}
	if authored, ok := request["authoredOn"].(string); ok {
		fields["drug_exposure_start_date"] = authored
	}
	return fields
}

/* KeyFields returns the idempotency key for upserting a row of the given
   table, per the spec's persistence-upsert contract: PERSON keys on
   person_id alone; every event table keys on
   (_table, person_id, source_value, start_date). */
func KeyFields(table string, personID int64, sourceValue string, startDate interface{}) map[string]interface{} {
	if table == "PERSON" {
		return map[string]interface{}{"_table": table, "person_id": personID}
	}
	return map[string]interface{}{
		"_table":       table,
		"person_id":    personID,
		"source_value": fmt.Sprintf("%v", sourceValue),
		"start_date":   fmt.Sprintf("%v", startDate),
	}
}
