// Package run is the execution scaffold: both trigger paths resolve into one
// Context value and flow through a single Runner.Execute code path.
package run

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealerflow/structure-pipeline/internal/config"
	"github.com/dealerflow/structure-pipeline/internal/gex"
)

// ErrInvalidContext marks a context rejected before any computation or I/O.
var ErrInvalidContext = errors.New("invalid execution context")

// Mode distinguishes the two trigger paths. Execution semantics are
// identical; only symbol scope and concurrency differ.
type Mode string

const (
	ModeEvent Mode = "event"
	ModeBatch Mode = "batch"
)

// Overrides carries the per-invocation knobs the CLI may set. Nil fields
// leave the configured value in place.
type Overrides struct {
	MaxDTE        *int
	MinOI         *int64
	MinVolume     *int64
	WallsTopN     *int
	SlopeRangePct *float64
	Spot          *float64
}

// Apply returns a copy of cfg with the set overrides folded in.
func (o Overrides) Apply(cfg gex.Config) gex.Config {
	if o.MaxDTE != nil {
		cfg.MaxDTE = *o.MaxDTE
	}
	if o.MinOI != nil {
		cfg.MinOpenInterest = *o.MinOI
	}
	if o.MinVolume != nil {
		cfg.MinVolume = *o.MinVolume
	}
	if o.WallsTopN != nil {
		cfg.WallsTopN = *o.WallsTopN
	}
	if o.SlopeRangePct != nil {
		cfg.SlopeRangePct = *o.SlopeRangePct
	}
	return cfg
}

// Context is the single resolved execution context. Both triggers produce
// one; nothing downstream distinguishes how a run was started beyond Mode.
type Context struct {
	Mode         Mode
	Symbols      []string
	SnapshotTime time.Time
	DryRun       bool
	Overrides    Overrides
	TraceID      string
}

// EventTrigger requests computation for a single symbol, typically fired by
// an upstream data-arrival event.
type EventTrigger struct {
	Symbol       string
	SnapshotTime time.Time
	DryRun       bool
	Overrides    Overrides
}

// BatchTrigger requests computation for a set of symbols at one shared
// snapshot time, typically fired on a schedule.
type BatchTrigger struct {
	Symbols      []string
	SnapshotTime time.Time
	DryRun       bool
	Overrides    Overrides
}

func (t EventTrigger) Resolve() Context {
	return Context{
		Mode:         ModeEvent,
		Symbols:      []string{t.Symbol},
		SnapshotTime: t.SnapshotTime,
		DryRun:       t.DryRun,
		Overrides:    t.Overrides,
		TraceID:      uuid.NewString(),
	}
}

func (t BatchTrigger) Resolve() Context {
	symbols := make([]string, len(t.Symbols))
	copy(symbols, t.Symbols)
	return Context{
		Mode:         ModeBatch,
		Symbols:      symbols,
		SnapshotTime: t.SnapshotTime,
		DryRun:       t.DryRun,
		Overrides:    t.Overrides,
		TraceID:      uuid.NewString(),
	}
}

// Validate rejects malformed contexts before any work starts.
func (c Context) Validate() error {
	if c.Mode != ModeEvent && c.Mode != ModeBatch {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidContext, c.Mode)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: no symbols in scope", ErrInvalidContext)
	}
	if c.Mode == ModeEvent && len(c.Symbols) != 1 {
		return fmt.Errorf("%w: event mode requires exactly one symbol, got %d", ErrInvalidContext, len(c.Symbols))
	}
	if err := config.ValidateSymbols(c.Symbols); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}
	if c.SnapshotTime.IsZero() {
		return fmt.Errorf("%w: snapshot time is required", ErrInvalidContext)
	}
	if c.Overrides.MaxDTE != nil && *c.Overrides.MaxDTE < 0 {
		return fmt.Errorf("%w: max DTE must be >= 0", ErrInvalidContext)
	}
	if c.Overrides.WallsTopN != nil && *c.Overrides.WallsTopN < 1 {
		return fmt.Errorf("%w: walls top-n must be >= 1", ErrInvalidContext)
	}
	if c.Overrides.SlopeRangePct != nil && *c.Overrides.SlopeRangePct <= 0 {
		return fmt.Errorf("%w: slope range pct must be > 0", ErrInvalidContext)
	}
	if c.Overrides.Spot != nil && *c.Overrides.Spot <= 0 {
		return fmt.Errorf("%w: spot override must be > 0", ErrInvalidContext)
	}
	return nil
}
