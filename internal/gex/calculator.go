// Package gex turns a raw option-chain snapshot into dealer gamma exposure
// metrics with an auditable quality classification. Compute is a pure
// function: no I/O, no clock beyond the supplied snapshot time, and it never
// fails on bad data. Data-quality problems come back as status INVALID with
// diagnostics instead of an error.
package gex

import (
	"math"
	"sort"

	"github.com/dealerflow/structure-pipeline/internal/market"
)

// Compute calculates dealer metrics for one chain snapshot at one spot price.
func Compute(snapshot *market.OptionChainSnapshot, spot market.SpotPrice, cfg Config) DealerMetrics {
	m := DealerMetrics{
		Position:    PositionUnknown,
		Confidence:  ConfidenceInvalid,
		Status:      StatusInvalid,
		SpotSource:  spot.Source,
		SpotPrice:   spot.Value,
		CallWalls:   []Wall{},
		PutWalls:    []Wall{},
		Diagnostics: []string{},
	}
	if snapshot != nil {
		m.Symbol = snapshot.Symbol
		m.SnapshotTime = snapshot.SnapshotTime
	}

	if snapshot == nil || len(snapshot.Contracts) == 0 {
		m.Diagnostics = append(m.Diagnostics, DiagNoContracts)
		return m
	}

	eligible, stats := filterContracts(snapshot, cfg)
	m.FilterStats = stats
	m.EligibleOptions = stats.Eligible

	if spot.Value == nil {
		m.Diagnostics = append(m.Diagnostics, DiagMissingSpotPrice)
		return m
	}

	if stats.Eligible == 0 {
		if stats.Total > 0 {
			m.Diagnostics = append(m.Diagnostics, DiagAllFiltered)
		}
		m.Diagnostics = append(m.Diagnostics, DiagNoEligibleOptions)
		return m
	}

	levels := aggregateStrikes(eligible, cfg)

	var total, net float64
	for _, lv := range levels {
		total += math.Abs(lv.gex)
		net += lv.gex
	}
	m.GexTotal = &total
	m.GexNet = &net

	if flip, ok := gammaFlip(levels); ok {
		m.GammaFlip = &flip
	} else {
		m.Diagnostics = append(m.Diagnostics, DiagNoGammaFlip)
	}

	m.CallWalls = topWalls(levels, market.Call, cfg.WallsTopN)
	m.PutWalls = topWalls(levels, market.Put, cfg.WallsTopN)

	if slope, ok := gexSlope(levels, *spot.Value, cfg.SlopeRangePct); ok {
		m.GexSlope = &slope
	} else {
		m.Diagnostics = append(m.Diagnostics, DiagSlopeInsufficient)
	}

	dgpi := dgpiScore(net, m.GexSlope, cfg.DGPI)
	m.DGPI = &dgpi

	m.Position = classifyPosition(net, stats.Eligible, cfg.NeutralThreshold)
	m.Confidence = gradeConfidence(snapshot.Contracts, stats.Eligible, cfg, &m)
	m.Status = deriveStatus(&m)

	return m
}

// filterContracts applies the eligibility rules and tallies every rejection
// by reason. Rules are checked in a fixed order so a contract counts against
// exactly one reason.
func filterContracts(snapshot *market.OptionChainSnapshot, cfg Config) ([]market.OptionContract, FilterStats) {
	stats := FilterStats{Total: len(snapshot.Contracts)}
	eligible := make([]market.OptionContract, 0, len(snapshot.Contracts))

	for _, c := range snapshot.Contracts {
		dte := c.DTE(snapshot.SnapshotTime)
		switch {
		case dte < 0:
			stats.Expired++
		case c.Gamma == nil:
			stats.MissingGamma++
		case c.OpenInterest <= 0:
			stats.NonPositiveOI++
		case dte > cfg.MaxDTE:
			stats.DTEExceeded++
		case c.OpenInterest < cfg.MinOpenInterest:
			stats.OIBelowMin++
		case c.Volume < cfg.MinVolume:
			stats.VolumeBelowMin++
		default:
			eligible = append(eligible, c)
		}
	}

	stats.Eligible = len(eligible)
	return eligible, stats
}

// strikeLevel is the per-strike aggregation the flip, wall and slope
// calculations run over.
type strikeLevel struct {
	strike float64
	gex    float64
	callOI int64
	putOI  int64
}

func aggregateStrikes(contracts []market.OptionContract, cfg Config) []strikeLevel {
	byStrike := make(map[float64]*strikeLevel)
	for _, c := range contracts {
		lv, ok := byStrike[c.Strike]
		if !ok {
			lv = &strikeLevel{strike: c.Strike}
			byStrike[c.Strike] = lv
		}
		sign := cfg.CallSign
		if c.Side == market.Put {
			sign = cfg.PutSign
		}
		lv.gex += sign * *c.Gamma * float64(c.OpenInterest) * cfg.Multiplier
		if c.Side == market.Call {
			lv.callOI += c.OpenInterest
		} else {
			lv.putOI += c.OpenInterest
		}
	}

	levels := make([]strikeLevel, 0, len(byStrike))
	for _, lv := range byStrike {
		levels = append(levels, *lv)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].strike < levels[j].strike })
	return levels
}

// gammaFlip locates the first zero crossing of cumulative signed GEX over
// ascending strikes and linearly interpolates the crossing strike. A touch of
// exactly zero only counts as a crossing once the cumulative value continues
// on the other side; touching zero and returning to the same sign is not a
// flip.
func gammaFlip(levels []strikeLevel) (float64, bool) {
	cums := make([]float64, len(levels))
	var cum float64
	for i, lv := range levels {
		cum += lv.gex
		cums[i] = cum
	}

	lastSign := 0.0
	if len(cums) > 0 && cums[0] != 0 {
		lastSign = math.Copysign(1, cums[0])
	}
	for i := 1; i < len(cums); i++ {
		if cums[i] == 0 {
			continue
		}
		s := math.Copysign(1, cums[i])
		if lastSign == 0 {
			lastSign = s
			continue
		}
		if s != lastSign {
			// Interpolate across the adjacent pair. When the previous
			// cumulative value sits exactly at zero the flip is that strike.
			k1, k2 := levels[i-1].strike, levels[i].strike
			t := -cums[i-1] / (cums[i] - cums[i-1])
			return k1 + t*(k2-k1), true
		}
		lastSign = s
	}
	return 0, false
}

func topWalls(levels []strikeLevel, side market.OptionSide, n int) []Wall {
	walls := make([]Wall, 0, len(levels))
	for _, lv := range levels {
		oi := lv.callOI
		if side == market.Put {
			oi = lv.putOI
		}
		if oi > 0 {
			walls = append(walls, Wall{Strike: lv.strike, OpenInterest: oi, Gex: lv.gex})
		}
	}
	// Descending OI, ascending strike on ties, so output order is stable.
	sort.Slice(walls, func(i, j int) bool {
		if walls[i].OpenInterest != walls[j].OpenInterest {
			return walls[i].OpenInterest > walls[j].OpenInterest
		}
		return walls[i].Strike < walls[j].Strike
	})
	if len(walls) > n {
		walls = walls[:n]
	}
	return walls
}

// gexSlope is the finite difference of cumulative signed GEX across the
// strikes within ±rangePct of spot. Needs at least two in-range points.
func gexSlope(levels []strikeLevel, spot, rangePct float64) (float64, bool) {
	lo := spot * (1 - rangePct)
	hi := spot * (1 + rangePct)

	var cum float64
	type point struct{ strike, cum float64 }
	var inRange []point
	for _, lv := range levels {
		cum += lv.gex
		if lv.strike >= lo && lv.strike <= hi {
			inRange = append(inRange, point{lv.strike, cum})
		}
	}
	if len(inRange) < 2 {
		return 0, false
	}
	first, last := inRange[0], inRange[len(inRange)-1]
	if last.strike == first.strike {
		return 0, false
	}
	return (last.cum - first.cum) / (last.strike - first.strike), true
}

func dgpiScore(net float64, slope *float64, cfg DGPIConfig) float64 {
	score := cfg.WNet * math.Tanh(net/cfg.NetScale) * 100
	if slope != nil {
		score += cfg.WSlope * math.Tanh(*slope/cfg.SlopeScale) * 100
	}
	return math.Max(-100, math.Min(100, score))
}

func classifyPosition(net float64, eligible int, threshold float64) Position {
	if eligible == 0 {
		return PositionUnknown
	}
	switch {
	case net > threshold:
		return PositionLongGamma
	case net < -threshold:
		return PositionShortGamma
	default:
		return PositionNeutral
	}
}

// gradeConfidence combines eligible-contract count with the fraction of the
// raw chain that carried a usable gamma.
func gradeConfidence(all []market.OptionContract, eligible int, cfg Config, m *DealerMetrics) Confidence {
	if eligible == 0 {
		return ConfidenceInvalid
	}

	withGamma := 0
	for _, c := range all {
		if c.Gamma != nil {
			withGamma++
		}
	}
	completion := float64(withGamma) / float64(len(all))
	if completion < cfg.MinGreeksCompletion {
		m.Diagnostics = append(m.Diagnostics, DiagLowGreeksCompletion)
	}

	switch {
	case eligible >= cfg.HighMinEligible && completion >= cfg.MinGreeksCompletion:
		return ConfidenceHigh
	case eligible >= cfg.MediumMinEligible:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// deriveStatus applies the fixed decision table. FULL and LIMITED both
// require non-null, non-zero aggregates; anything else is INVALID.
func deriveStatus(m *DealerMetrics) Status {
	aggregatesOK := m.GexTotal != nil && m.GexNet != nil && *m.GexTotal > 0 && *m.GexNet != 0

	full := m.EligibleOptions >= 25 &&
		aggregatesOK &&
		m.Position != PositionUnknown &&
		(m.Confidence == ConfidenceHigh || m.Confidence == ConfidenceMedium)
	if full {
		return StatusFull
	}

	limited := m.EligibleOptions >= 1 &&
		aggregatesOK &&
		(m.Position == PositionLongGamma || m.Position == PositionShortGamma || m.Position == PositionNeutral) &&
		(m.Confidence == ConfidenceMedium || m.Confidence == ConfidenceInvalid)
	if limited {
		return StatusLimited
	}

	return StatusInvalid
}
