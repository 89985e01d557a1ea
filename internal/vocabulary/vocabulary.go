// Package vocabulary implements the Vocabulary Service (C3): loads OMOP
// standard-vocabulary concept tables from CSV and serves exact/fuzzy
// lookups for the concept-normalization pipeline. CSV parsing is
// grounded on internal/ingestion/parsers/csv.go; the upsert idiom is
// grounded on internal/classification/service.go's ON CONFLICT pattern.
package vocabulary

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neurondb/NeuronIP/api/internal/db"
	"github.com/neurondb/NeuronIP/api/internal/model"
)

/* execer is the subset of *pgxpool.Pool and pgx.Tx that upsertConcept
   needs, so a bulk load can run either directly against the pool or
   inside a TransactionManager-managed transaction. */
type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

/* Service is the Vocabulary Service. */
type Service struct {
	pool *pgxpool.Pool
	tx   *db.TransactionManager
}

/* New creates a Vocabulary Service backed by the given Postgres pool. */
func New(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, tx: db.NewTransactionManager(pool)}
}

/* LoadFromCSV reads an OMOP CONCEPT.csv-shaped file (tab or comma
   delimited, header row required) and upserts every row into
   omop_concepts. Unparsable rows are skipped, not fatal. */
func (s *Service) LoadFromCSV(ctx context.Context, path string, delimiter rune) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("vocabulary: open %s: %w", path, err)
	}
	defer f.Close()

	return s.loadFromReader(ctx, f, delimiter)
}

/* SeedFromDirectory loads every *.csv file in dir, in lexical order. This
   is the bulk-seed entry point used at deployment time to populate the
   standard vocabularies (CONCEPT, CONCEPT_CLASS, VOCABULARY, etc). */
func (s *Service) SeedFromDirectory(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("vocabulary: read dir %s: %w", dir, err)
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".csv") {
			continue
		}
		n, err := s.LoadFromCSV(ctx, filepath.Join(dir, entry.Name()), ',')
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

/* loadFromReader parses and upserts one CSV file's worth of concepts
   inside a single transaction: a file is either fully loaded or, on the
   first unparsable required structure or write failure, not loaded at
   all, so a bulk seed can never leave the vocabulary half-populated
   from one file. */
func (s *Service) loadFromReader(ctx context.Context, r io.Reader, delimiter rune) (int, error) {
	if delimiter == 0 {
		delimiter = ','
	}
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("vocabulary: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}

	required := []string{"concept_id", "concept_name", "domain_id", "vocabulary_id", "concept_code"}
	for _, c := range required {
		if _, ok := col[c]; !ok {
			return 0, fmt.Errorf("vocabulary: missing required column %q", c)
		}
	}

	count := 0
	txErr := s.tx.Execute(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		for {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				continue
			}

			concept, ok := parseConceptRow(record, col)
			if !ok {
				continue
			}
			if err := s.upsertConcept(txCtx, tx, concept); err != nil {
				return fmt.Errorf("vocabulary: upsert concept %d: %w", concept.ConceptID, err)
			}
			count++
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return count, nil
}

func parseConceptRow(record []string, col map[string]int) (model.OMOPConcept, bool) {
	get := func(name string) string {
		if i, ok := col[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	conceptID, err := strconv.ParseInt(get("concept_id"), 10, 64)
	if err != nil {
		return model.OMOPConcept{}, false
	}

	concept := model.OMOPConcept{
		ConceptID:       conceptID,
		ConceptName:     get("concept_name"),
		DomainID:        get("domain_id"),
		VocabularyID:    get("vocabulary_id"),
		ConceptCode:     get("concept_code"),
		StandardConcept: get("standard_concept"),
		ConceptClassID:  get("concept_class_id"),
	}
	concept.ValidStartDate = parseOMOPDate(get("valid_start_date"))
	concept.ValidEndDate = parseOMOPDate(get("valid_end_date"))

	return concept, true
}

func parseOMOPDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (s *Service) upsertConcept(ctx context.Context, exec execer, c model.OMOPConcept) error {
	query := `
		INSERT INTO neuronip.omop_concepts
			(concept_id, concept_name, domain_id, vocabulary_id, concept_code,
			 standard_concept, concept_class_id, valid_start_date, valid_end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (concept_id)
		DO UPDATE SET
			concept_name = EXCLUDED.concept_name,
			domain_id = EXCLUDED.domain_id,
			vocabulary_id = EXCLUDED.vocabulary_id,
			concept_code = EXCLUDED.concept_code,
			standard_concept = EXCLUDED.standard_concept,
			concept_class_id = EXCLUDED.concept_class_id,
			valid_start_date = EXCLUDED.valid_start_date,
			valid_end_date = EXCLUDED.valid_end_date`

	_, err := exec.Exec(ctx, query,
		c.ConceptID, c.ConceptName, c.DomainID, c.VocabularyID, c.ConceptCode,
		c.StandardConcept, c.ConceptClassID, c.ValidStartDate, c.ValidEndDate,
	)
	return err
}

/* LookupByCode resolves a (vocabulary_id, concept_code) pair exactly.
   This backs the concept matcher's direct-lookup stage (source-value
   exact match against the vocabulary). Returns (nil, nil) if absent. */
func (s *Service) LookupByCode(ctx context.Context, vocabularyID, conceptCode string) (*model.OMOPConcept, error) {
	query := `
		SELECT concept_id, concept_name, domain_id, vocabulary_id, concept_code,
		       standard_concept, concept_class_id, valid_start_date, valid_end_date
		FROM neuronip.omop_concepts
		WHERE vocabulary_id = $1 AND concept_code = $2
		ORDER BY (standard_concept = 'S') DESC
		LIMIT 1`

	return s.scanOne(ctx, query, vocabularyID, conceptCode)
}

/* SearchByText performs a case-insensitive substring search over
   concept_name, scoped to a domain. Used as a fallback when exact-code
   lookup misses; results are ranked by name length (shorter == tighter
   match) as a cheap proxy for relevance, matching the donor's keyword
   pattern-detection style of "most specific match wins". */
func (s *Service) SearchByText(ctx context.Context, domainID, text string, limit int) ([]model.OMOPConcept, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT concept_id, concept_name, domain_id, vocabulary_id, concept_code,
		       standard_concept, concept_class_id, valid_start_date, valid_end_date
		FROM neuronip.omop_concepts
		WHERE domain_id = $1 AND concept_name ILIKE $2
		ORDER BY (standard_concept = 'S') DESC, LENGTH(concept_name) ASC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, domainID, "%"+text+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: search: %w", err)
	}
	defer rows.Close()

	var results []model.OMOPConcept
	for rows.Next() {
		var c model.OMOPConcept
		if err := rows.Scan(
			&c.ConceptID, &c.ConceptName, &c.DomainID, &c.VocabularyID, &c.ConceptCode,
			&c.StandardConcept, &c.ConceptClassID, &c.ValidStartDate, &c.ValidEndDate,
		); err != nil {
			continue
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

/* GetByID fetches a concept by its concept_id. Returns (nil, nil) if absent. */
func (s *Service) GetByID(ctx context.Context, conceptID int64) (*model.OMOPConcept, error) {
	query := `
		SELECT concept_id, concept_name, domain_id, vocabulary_id, concept_code,
		       standard_concept, concept_class_id, valid_start_date, valid_end_date
		FROM neuronip.omop_concepts WHERE concept_id = $1`

	return s.scanOne(ctx, query, conceptID)
}

/* SaveApproval records a human-reviewed concept match for a (job, field,
   sourceValue) triple, so the same source value is never re-sent through
   the matcher's expensive stages twice for the same job. */
func (s *Service) SaveApproval(ctx context.Context, a model.ConceptApproval) error {
	query := `
		INSERT INTO neuronip.concept_approvals (job_id, field, source_value, concept_id, approved_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (job_id, field, source_value)
		DO UPDATE SET concept_id = EXCLUDED.concept_id, approved_at = EXCLUDED.approved_at`

	_, err := s.pool.Exec(ctx, query, a.JobID, a.Field, a.SourceValue, a.ConceptID)
	if err != nil {
		return fmt.Errorf("vocabulary: save approval: %w", err)
	}
	return nil
}

/* GetApproval resolves a prior human approval for (field, sourceValue),
   preferring one scoped to jobID but falling back to any other job's
   approval for the same field/value when the current job has none --
   the same lab code approved as LOINC 1234-5 in one ingestion job is the
   same lab code in the next. Returns (nil, nil) if no approval exists at
   either scope. */
func (s *Service) GetApproval(ctx context.Context, jobID, field, sourceValue string) (*model.ConceptApproval, error) {
	query := `
		SELECT job_id, field, source_value, concept_id
		FROM neuronip.concept_approvals
		WHERE field = $2 AND source_value = $3
		ORDER BY (job_id = $1) DESC, approved_at DESC
		LIMIT 1`

	var a model.ConceptApproval
	err := s.pool.QueryRow(ctx, query, jobID, field, sourceValue).Scan(
		&a.JobID, &a.Field, &a.SourceValue, &a.ConceptID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("vocabulary: get approval: %w", err)
	}
	return &a, nil
}

func (s *Service) scanOne(ctx context.Context, query string, args ...interface{}) (*model.OMOPConcept, error) {
	var c model.OMOPConcept
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&c.ConceptID, &c.ConceptName, &c.DomainID, &c.VocabularyID, &c.ConceptCode,
		&c.StandardConcept, &c.ConceptClassID, &c.ValidStartDate, &c.ValidEndDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("vocabulary: lookup: %w", err)
	}
	return &c, nil
}
