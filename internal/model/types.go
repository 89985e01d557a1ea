// Package model holds the data types shared across the mapping, ingestion,
// and OMOP subsystems: MappingJob, FieldMapping, IngestionJobConfig,
// IngestionJob, and the persisted record envelopes.
package model

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var connectorValidate = validator.New()

/* SemanticType is the tagged union used by the Schema Inferencer and the
   Mapping Engine in place of the dynamic-language free-form schemas the
   donor's source system carries. */
type SemanticType string

const (
	TypeString   SemanticType = "string"
	TypeInteger  SemanticType = "integer"
	TypeDecimal  SemanticType = "decimal"
	TypeBoolean  SemanticType = "boolean"
	TypeDate     SemanticType = "date"
	TypeDateTime SemanticType = "datetime"
)

/* Schema is an ordered mapping from field path to semantic type. Field
   paths may carry nested-path syntax (a[0].b). */
type Schema struct {
	Fields []SchemaField `json:"fields"`
}

/* SchemaField is one entry of a Schema, kept ordered via the parent slice. */
type SchemaField struct {
	Path string       `json:"path"`
	Type SemanticType `json:"type"`
}

/* Get returns the semantic type for a path, and whether it was found. */
func (s Schema) Get(path string) (SemanticType, bool) {
	for _, f := range s.Fields {
		if f.Path == path {
			return f.Type, true
		}
	}
	return "", false
}

/* TransformKind enumerates the Transform Core's supported transform types. */
type TransformKind string

const (
	TransformDirect     TransformKind = "DIRECT"
	TransformConcat     TransformKind = "CONCAT"
	TransformSplit      TransformKind = "SPLIT"
	TransformUppercase  TransformKind = "UPPERCASE"
	TransformLowercase  TransformKind = "LOWERCASE"
	TransformFormatDate TransformKind = "FORMAT_DATE"
	TransformCustom     TransformKind = "CUSTOM"
)

/* FieldMapping is one field-to-field mapping suggestion or approval. */
type FieldMapping struct {
	SourceField      string                 `json:"sourceField"`
	TargetField      string                 `json:"targetField"`
	TransformType    TransformKind          `json:"transformType"`
	ConfidenceScore  float64                `json:"confidenceScore"`
	Rationale        string                 `json:"rationale"`
	ClinicalContext  string                 `json:"clinicalContext,omitempty"`
	TypeCompatible   bool                   `json:"typeCompatible"`
	Alternatives     []FieldMapping         `json:"alternatives,omitempty"`
	Degraded         bool                   `json:"degraded,omitempty"`
	TransformOptions map[string]interface{} `json:"transformOptions,omitempty"`
}

/* Valid reports whether a field mapping satisfies the approveMappings
   invariant: non-empty source and target field, known transform type. */
func (m FieldMapping) Valid() bool {
	if m.SourceField == "" || m.TargetField == "" {
		return false
	}
	switch m.TransformType {
	case TransformDirect, TransformConcat, TransformSplit, TransformUppercase,
		TransformLowercase, TransformFormatDate, TransformCustom:
		return true
	default:
		return false
	}
}

/* MappingJobStatus is the Mapping Workflow state machine's state. */
type MappingJobStatus string

const (
	MappingDraft         MappingJobStatus = "DRAFT"
	MappingAnalyzing     MappingJobStatus = "ANALYZING"
	MappingPendingReview MappingJobStatus = "PENDING_REVIEW"
	MappingApproved      MappingJobStatus = "APPROVED"
)

/* MappingJob is the Job Catalog's mapping-job record. */
type MappingJob struct {
	JobID             string           `json:"jobId"`
	UserID            string           `json:"userId"`
	Name              string           `json:"name"`
	SourceSchema      Schema           `json:"sourceSchema"`
	TargetSchema      Schema           `json:"targetSchema"`
	TargetResource    string           `json:"targetResource,omitempty"`
	AIMappings        []FieldMapping   `json:"aiMappings"`
	ApprovedMappings  []FieldMapping   `json:"approvedMappings"`
	Status            MappingJobStatus `json:"status"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

/* ConnectorKind enumerates the source/destination connector types. */
type ConnectorKind string

const (
	ConnectorCSVFile       ConnectorKind = "csvFile"
	ConnectorMongoDB       ConnectorKind = "mongodb"
	ConnectorJSONAPI       ConnectorKind = "jsonApi"
	ConnectorHL7API        ConnectorKind = "hl7Api"
	ConnectorFHIRAPI       ConnectorKind = "fhirApi"
	ConnectorDataWarehouse ConnectorKind = "dataWarehouse"
)

/* ConnectorRef names a connector type and its tagged-union configuration. */
type ConnectorRef struct {
	Type   ConnectorKind          `json:"type" validate:"required,oneof=csvFile mongodb jsonApi hl7Api fhirApi dataWarehouse"`
	Config map[string]interface{} `json:"config" validate:"required"`
}

/* Validate checks the tagged-union shape (a known Type, a non-nil Config
   map) before a factory dispatches on it. It does not validate the
   contents of Config, since each connector kind defines its own required
   keys at construction time. */
func (r ConnectorRef) Validate() error {
	return connectorValidate.Struct(r)
}

/* IngestionJobConfig is the Job Catalog's ingestion-job-config record. */
type IngestionJobConfig struct {
	JobID                 string       `json:"jobId"`
	JobName                string       `json:"jobName"`
	MappingJobID           string       `json:"mappingJobId,omitempty"`
	SourceConnector        ConnectorRef `json:"sourceConnector"`
	DestinationConnector   ConnectorRef `json:"destinationConnector"`
	OMOPAutoSync           bool         `json:"omopAutoSync"`
	OMOPTargetTable        string       `json:"omopTargetTable,omitempty"`
}

/* IngestionStatus is the Ingestion Engine's runtime job status. */
type IngestionStatus string

const (
	IngestionIdle    IngestionStatus = "IDLE"
	IngestionRunning IngestionStatus = "RUNNING"
	IngestionStopped IngestionStatus = "STOPPED"
	IngestionError   IngestionStatus = "ERROR"
)

/* IngestionMetrics are the monotonic nondecreasing job counters. */
type IngestionMetrics struct {
	Received    int64     `json:"received"`
	Processed   int64     `json:"processed"`
	Failed      int64     `json:"failed"`
	LastUpdated time.Time `json:"lastUpdated"`
}

/* IngestionErrorDetails describes why a job moved to ERROR. */
type IngestionErrorDetails struct {
	Kind string `json:"kind"` // source_missing | destination_missing | runtime_error
}

/* IngestionJob is the Ingestion Engine's in-memory runtime object. */
type IngestionJob struct {
	Config       IngestionJobConfig     `json:"config"`
	Status       IngestionStatus        `json:"status"`
	Metrics      IngestionMetrics       `json:"metrics"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	ErrorDetails *IngestionErrorDetails `json:"errorDetails,omitempty"`
}

/* StagingRecord is a raw accepted row prior to transform. */
type StagingRecord struct {
	Payload    map[string]interface{} `json:"payload"`
	JobID      string                 `json:"jobId"`
	IngestedAt time.Time              `json:"ingestedAt"`
}

/* DLQRecord is a record that failed processing. */
type DLQRecord struct {
	Payload     map[string]interface{} `json:"payload"`
	JobID       string                 `json:"jobId"`
	FailedAt    time.Time              `json:"failedAt"`
	ErrorReason string                 `json:"errorReason"`
	Source      string                 `json:"source,omitempty"`
}

/* FHIRResource is a persisted FHIR R4 document. */
type FHIRResource struct {
	ID           string                 `json:"id"`
	ResourceType string                 `json:"resourceType"`
	JobID        string                 `json:"jobId"`
	PersistedAt  time.Time              `json:"persistedAt"`
	Resource     map[string]interface{} `json:"resource"`
}

/* OMOPRow is a persisted OMOP CDM row. */
type OMOPRow struct {
	Table          string                 `json:"_table"`
	PersonID       int64                  `json:"person_id"`
	Fields         map[string]interface{} `json:"fields"`
	JobID          string                 `json:"job_id"`
	PersistedAt    time.Time              `json:"persisted_at"`
	SyncedFromFHIR bool                   `json:"synced_from_fhir"`
}

/* OMOPConcept is a row of the vocabulary's concept table. */
type OMOPConcept struct {
	ConceptID       int64     `json:"concept_id"`
	ConceptName     string    `json:"concept_name"`
	DomainID        string    `json:"domain_id"`
	VocabularyID    string    `json:"vocabulary_id"`
	ConceptCode     string    `json:"concept_code"`
	StandardConcept string    `json:"standard_concept"`
	ConceptClassID  string    `json:"concept_class_id"`
	ValidStartDate  time.Time `json:"valid_start_date"`
	ValidEndDate    time.Time `json:"valid_end_date"`
}

/* ConceptApproval caches a user-confirmed source-value-to-concept mapping. */
type ConceptApproval struct {
	JobID       string `json:"jobId"`
	Field       string `json:"field"`
	SourceValue string `json:"sourceValue"`
	ConceptID   int64  `json:"conceptId"`
}
