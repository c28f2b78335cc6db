package market

import "time"

// OptionSide distinguishes calls from puts.
type OptionSide string

const (
	Call OptionSide = "call"
	Put  OptionSide = "put"
)

// OptionContract is a single row of an option chain as supplied by the
// ingestion collaborator. Contracts are never mutated by this pipeline.
type OptionContract struct {
	Strike       float64    `json:"strike"`
	Expiry       time.Time  `json:"expiry"`
	Side         OptionSide `json:"side"`
	Gamma        *float64   `json:"gamma"`
	OpenInterest int64      `json:"open_interest"`
	Volume       int64      `json:"volume"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
}

// DTE returns whole days to expiry relative to the given reference time.
// Expired contracts return a negative value.
func (c OptionContract) DTE(ref time.Time) int {
	return int(c.Expiry.Sub(ref).Hours() / 24)
}

// OptionChainSnapshot is a read-only option chain for one symbol at one
// point in time.
type OptionChainSnapshot struct {
	Symbol       string           `json:"symbol"`
	SnapshotTime time.Time        `json:"snapshot_time"`
	Contracts    []OptionContract `json:"contracts"`
	Spot         *float64         `json:"spot"`
}

// SpotSource records which step of the resolution order supplied the spot
// price: explicit override, the chain itself, or the last OHLCV close.
type SpotSource string

const (
	SpotFromOverride SpotSource = "override"
	SpotFromChain    SpotSource = "chain"
	SpotFromClose    SpotSource = "ohlcv_close"
	SpotUnresolved   SpotSource = "unresolved"
)

// SpotPrice is a resolved spot price plus its provenance.
type SpotPrice struct {
	Value  *float64   `json:"value"`
	Source SpotSource `json:"source"`
}

// ResolveSpot applies the resolution order: explicit override, then the
// chain-supplied spot, then the last bar close. A nil result carries the
// SpotUnresolved source.
func ResolveSpot(override *float64, chain *OptionChainSnapshot, bars []OHLCVBar) SpotPrice {
	if override != nil {
		return SpotPrice{Value: override, Source: SpotFromOverride}
	}
	if chain != nil && chain.Spot != nil {
		return SpotPrice{Value: chain.Spot, Source: SpotFromChain}
	}
	if len(bars) > 0 {
		close := bars[len(bars)-1].Close
		return SpotPrice{Value: &close, Source: SpotFromClose}
	}
	return SpotPrice{Source: SpotUnresolved}
}

// OHLCVBar is one daily bar. Bars are externally supplied, read-only, and
// strictly time-ordered per symbol.
type OHLCVBar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// ValidateBars checks the strict time ordering precondition. Duplicate or
// out-of-order timestamps are rejected, not reordered.
func ValidateBars(bars []OHLCVBar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return &BarOrderError{Index: i, Prev: bars[i-1].Time, Curr: bars[i].Time}
		}
	}
	return nil
}
