// Package idservice implements the Deterministic ID Service (C4): derives
// stable person_id/visit_occurrence_id values from natural keys via
// hashed derivation, backed by a persistent key-to-id cache. Grounded on
// the donor's direct-SQL upsert idiom (internal/ingestion/service.go).
package idservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neurondb/NeuronIP/api/internal/db"
)

const idModulus = 1_000_000_000_000_000 // 15 decimal digits

// recordStoreTimeoutConfig bounds every cache lookup/upsert at the Record
// Store operation budget.
var recordStoreTimeoutConfig = &db.QueryTimeoutConfig{
	DefaultTimeout:     10 * time.Second,
	MaxTimeout:         10 * time.Second,
	MinTimeout:         1 * time.Second,
	SlowQueryThreshold: 250 * time.Millisecond,
}

/* Service is the Deterministic ID Service. Two independent cache tables
   back person ids and visit-occurrence ids: the natural key composition
   differs (mrn|first|last|dob vs. a visit-scoped key), so a value that
   collides in one space must not collide in the other. */
type Service struct {
	pool *pgxpool.Pool
	qtm  *db.QueryTimeoutManager
}

/* New creates a Deterministic ID Service backed by the given Postgres pool. */
func New(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, qtm: db.NewQueryTimeoutManager(recordStoreTimeoutConfig)}
}

/* NormalizePersonKey builds the natural key for a person: mrn, first
   name, last name, and date of birth, lowercased/trimmed and pipe-joined. */
func NormalizePersonKey(mrn, firstName, lastName, dob string) string {
	return normalize(mrn, firstName, lastName, dob)
}

/* NormalizeVisitKey builds the natural key for a visit occurrence. */
func NormalizeVisitKey(personKey, visitStartDate, visitType string) string {
	return normalize(personKey, visitStartDate, visitType)
}

func normalize(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(normalized, "|")
}

/* stableHash reduces a 64-bit hash to a positive 15-digit integer. Total
   and deterministic: equal input always yields equal output, across
   processes and restarts. */
func stableHash(key string) int64 {
	h := xxhash.Sum64String(key)
	return int64(h%(idModulus-idModulus/10)) + idModulus/10
}

/* GeneratePersonID resolves a person's deterministic id from its natural
   key, consulting (and populating) person_id_cache. */
func (s *Service) GeneratePersonID(ctx context.Context, naturalKey string) (int64, error) {
	return s.resolve(ctx, "person_id_cache", naturalKey)
}

/* GenerateVisitOccurrenceID resolves a visit occurrence's deterministic
   id from its natural key, consulting (and populating)
   visit_occurrence_id_cache. */
func (s *Service) GenerateVisitOccurrenceID(ctx context.Context, naturalKey string) (int64, error) {
	return s.resolve(ctx, "visit_occurrence_id_cache", naturalKey)
}

// resolve looks up (and, on miss, populates) a natural key's deterministic
// id. Every round trip is bounded at the Service's QueryTimeoutManager
// default, the Record Store operation budget.
func (s *Service) resolve(ctx context.Context, table, naturalKey string) (int64, error) {
	var id int64
	timeout := s.qtm.GetDefaultTimeout()

	selectQuery := fmt.Sprintf(`SELECT id FROM neuronip.%s WHERE natural_key = $1`, table)
	err := db.QueryRowWithTimeout(ctx, s.pool, timeout, selectQuery, naturalKey).Scan(&id)
	if err == nil {
		touchQuery := fmt.Sprintf(`UPDATE neuronip.%s SET last_seen = NOW() WHERE natural_key = $1`, table)
		if err := db.ExecWithTimeout(ctx, s.pool, timeout, touchQuery, naturalKey); err != nil {
			return 0, fmt.Errorf("idservice: refresh last_seen: %w", err)
		}
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("idservice: lookup %s: %w", table, err)
	}

	id = stableHash(naturalKey)
	now := time.Now()

	insertQuery := fmt.Sprintf(`
		INSERT INTO neuronip.%s (natural_key, id, created_at, last_seen)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (natural_key) DO UPDATE SET last_seen = EXCLUDED.last_seen
		RETURNING id`, table)

	if err := db.QueryRowWithTimeout(ctx, s.pool, timeout, insertQuery, naturalKey, id, now).Scan(&id); err != nil {
		return 0, fmt.Errorf("idservice: insert %s: %w", table, err)
	}
	return id, nil
}
