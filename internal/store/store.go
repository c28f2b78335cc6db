// Package store persists the pipeline's snapshot records and regime states.
// One record exists per (symbol, time); the pipeline owns only its dealer
// metrics, event and regime sub-fields and must never disturb sibling fields
// written by other producers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dealerflow/structure-pipeline/internal/gex"
	"github.com/dealerflow/structure-pipeline/internal/wyckoff"
)

var (
	// ErrUnavailable marks the store as unreachable; callers treat it as a
	// systemic failure and abort the run.
	ErrUnavailable = errors.New("snapshot store unavailable")
)

// SnapshotRecord is the persisted row for one symbol at one snapshot time.
// Indicators carries sibling fields owned by other producers; this pipeline
// reads it back verbatim and never writes it.
type SnapshotRecord struct {
	Symbol        string            `json:"symbol"`
	SnapshotTime  time.Time         `json:"snapshot_time"`
	DealerMetrics gex.DealerMetrics `json:"dealer_metrics"`
	Events        []wyckoff.Event   `json:"wyckoff_events"`
	Regime        wyckoff.State     `json:"regime"`
	Indicators    json.RawMessage   `json:"indicators,omitempty"`
}

// Store is the persistence collaborator interface. Acquire serializes all
// read-modify-write cycles for a symbol; CommitSymbol applies the snapshot
// upsert and the regime-state write in one transaction.
type Store interface {
	Ping(ctx context.Context) error

	// Acquire takes the per-symbol lock and returns its release func.
	Acquire(symbol string) func()

	// RegimeState returns the persisted state for a symbol, or the initial
	// state when none has been stored yet.
	RegimeState(ctx context.Context, symbol string) (wyckoff.State, error)

	// CommitSymbol upserts the record's owned sub-fields and saves the
	// regime state atomically.
	CommitSymbol(ctx context.Context, rec SnapshotRecord, state wyckoff.State) error

	Snapshot(ctx context.Context, symbol string, at time.Time) (*SnapshotRecord, error)
	SnapshotsAt(ctx context.Context, at time.Time) ([]SnapshotRecord, error)

	Close() error
}
