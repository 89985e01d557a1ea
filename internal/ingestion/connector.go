// Package ingestion implements the Ingestion Engine (C10): pulls records
// from a lazy, finite source connector, runs them through the Transform
// Core, persists FHIR resources idempotently in the Record Store, writes
// to an external destination connector, and optionally triggers the OMOP
// Engine's auto-sync step. Grounded on the donor's
// internal/ingestion/backpressure.go concurrency-control idiom and its
// connector.go RetryConfig/Retry exponential-backoff helper (kept
// verbatim below; everything else in that donor file described a
// discover-schema/bulk-sync abstraction this spec's per-record
// pull-based worker loop does not need).
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/neurondb/NeuronIP/api/internal/model"
)

/* SourceConnector is a lazy, finite, non-restartable sequence of raw
   records. Next returns (nil, false, nil) once the sequence is
   exhausted. Implementations must not buffer the entire source in
   memory. */
type SourceConnector interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (map[string]interface{}, bool, error)
	Close(ctx context.Context) error
}

/* DestinationConnector writes one transformed target document per call.
   Implementations should treat Write as at-least-once: the Ingestion
   Engine may call it again for a record it already wrote if a prior
   attempt's result was ambiguous. */
type DestinationConnector interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, record map[string]interface{}) error
	Close(ctx context.Context) error
}

/* RetryConfig controls the Ingestion Engine's sourceRead retry policy:
   the first read plus up to three retries, waiting 1s, 2s, then 4s
   (exponential backoff), before the job moves to ERROR. */
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

/* DefaultRetryConfig is the sourceRead policy: 4 attempts (3 retries),
   waiting 1s/2s/4s between them. */
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
	}
}

/* Retry runs fn up to config.MaxAttempts times with exponential backoff,
   returning the last error if every attempt fails. It respects
   ctx.Done(). */
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	delay := config.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return lastErr
}

/* ConnectorFactory builds source and destination connectors from a
   ConnectorRef. Concrete connector implementations live in
   internal/ingestion/connectors and satisfy SourceConnector/
   DestinationConnector structurally, without importing this package. */
type ConnectorFactory interface {
	NewSource(ref model.ConnectorRef) (SourceConnector, error)
	NewDestination(ref model.ConnectorRef) (DestinationConnector, error)
}

/* UnsupportedConnectorError is returned by a ConnectorFactory for a
   ConnectorKind it cannot build a connector for in a given direction. */
type UnsupportedConnectorError struct {
	Kind      model.ConnectorKind
	Direction string
}

func (e *UnsupportedConnectorError) Error() string {
	return fmt.Sprintf("ingestion: no %s connector for type %q", e.Direction, e.Kind)
}
