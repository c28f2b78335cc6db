package gex

import (
	"time"

	"github.com/dealerflow/structure-pipeline/internal/market"
)

// Position classifies the dealer book implied by net gamma exposure.
type Position string

const (
	PositionLongGamma  Position = "long_gamma"
	PositionShortGamma Position = "short_gamma"
	PositionNeutral    Position = "neutral"
	PositionUnknown    Position = "unknown"
)

// Confidence grades how much option data backed the calculation.
type Confidence string

const (
	ConfidenceHigh    Confidence = "high"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceLow     Confidence = "low"
	ConfidenceInvalid Confidence = "invalid"
)

// Status is the derived quality classification. It is a pure function of
// eligible-contract count, null-ness of the aggregates, position validity
// and confidence; it is never set independently.
type Status string

const (
	StatusFull    Status = "FULL"
	StatusLimited Status = "LIMITED"
	StatusInvalid Status = "INVALID"
)

// Wall is a strike with locally maximal open interest on one side of the
// chain. Index 0 in a wall list is the primary wall.
type Wall struct {
	Strike       float64 `json:"strike"`
	OpenInterest int64   `json:"open_interest"`
	Gex          float64 `json:"gex"`
}

// FilterStats records per-reason rejection counts for auditability.
type FilterStats struct {
	Total          int `json:"total"`
	Eligible       int `json:"eligible"`
	Expired        int `json:"expired"`
	MissingGamma   int `json:"missing_gamma"`
	NonPositiveOI  int `json:"non_positive_oi"`
	DTEExceeded    int `json:"dte_exceeded"`
	OIBelowMin     int `json:"oi_below_min"`
	VolumeBelowMin int `json:"volume_below_min"`
}

// DealerMetrics is the full calculator output. Every field is always
// present; pointer fields serialize as explicit nulls when unavailable.
// Values are computed fresh each invocation and never mutated afterwards.
type DealerMetrics struct {
	Symbol       string    `json:"symbol"`
	SnapshotTime time.Time `json:"snapshot_time"`

	GexTotal  *float64 `json:"gex_total"`
	GexNet    *float64 `json:"gex_net"`
	GammaFlip *float64 `json:"gamma_flip"`
	GexSlope  *float64 `json:"gex_slope"`
	DGPI      *float64 `json:"dgpi"`

	CallWalls []Wall `json:"call_walls"`
	PutWalls  []Wall `json:"put_walls"`

	Position   Position   `json:"position"`
	Confidence Confidence `json:"confidence"`
	Status     Status     `json:"status"`

	SpotPrice  *float64          `json:"spot_price"`
	SpotSource market.SpotSource `json:"spot_source"`

	EligibleOptions int         `json:"eligible_options"`
	FilterStats     FilterStats `json:"filter_stats"`
	Diagnostics     []string    `json:"diagnostics"`
}

// Diagnostic codes attached to INVALID (and degraded) results.
const (
	DiagMissingSpotPrice    = "missing_spot_price"
	DiagNoContracts         = "no_contracts_in_snapshot"
	DiagAllFiltered         = "all_contracts_filtered"
	DiagNoEligibleOptions   = "no_eligible_options"
	DiagNoGammaFlip         = "no_gamma_flip_crossing"
	DiagSlopeInsufficient   = "insufficient_slope_points"
	DiagLowGreeksCompletion = "low_greeks_completeness"
)
