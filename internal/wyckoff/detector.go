// Package wyckoff detects structural market events (selling/buying climaxes,
// springs, upthrusts, signs of strength and weakness) over a daily bar
// history and tracks the resulting regime. Detect is a pure function of the
// bars, the prior state and the config: no randomness, no clock.
package wyckoff

import (
	"fmt"

	"github.com/dealerflow/structure-pipeline/internal/market"
)

// Detect scans the bar history and returns the events emitted along it plus
// the updated regime state. The prior state is never mutated. Events already
// recorded in the prior state for a bar date are re-emitted verbatim, which
// makes repeated runs over unchanged data idempotent. The only error is a
// violated bar-ordering precondition.
func Detect(symbol string, bars []market.OHLCVBar, prior State, cfg Config) ([]Event, State, error) {
	if err := market.ValidateBars(bars); err != nil {
		return nil, prior, fmt.Errorf("wyckoff: %w", err)
	}

	state := prior.clone()
	if state.Symbol == "" {
		state.Symbol = symbol
	}
	if state.CurrentRegime == "" {
		state.CurrentRegime = Unknown
	}
	if state.Events == nil {
		state.Events = []StateEvent{}
	}

	events := []Event{}

	start := warmup(cfg)
	if len(bars) <= start {
		// Insufficient lookback is not an error, just silence.
		return events, state, nil
	}
	// MaxLookback caps how far back the scan reaches on long histories;
	// older bars only contribute through the prior state.
	if cfg.MaxLookback > 0 {
		if from := len(bars) - cfg.MaxLookback; from > start {
			start = from
		}
	}

	s := buildSeries(bars, cfg)
	for i := start; i < len(bars); i++ {
		v := s.view(i)
		emitted := map[EventType]bool{}

		// Replay events this state already knows about for this date.
		for _, rec := range state.eventsAt(v.Time) {
			events = append(events, rec.Event)
			emitted[rec.Type] = true
		}

		// Bars at or before the last recorded event were analyzed by an
		// earlier run under the regime they had then; re-evaluating them
		// against the current regime would make reruns diverge.
		if cutoff := state.LastEventDate; cutoff != nil && !v.Time.After(*cutoff) {
			continue
		}

		for _, typ := range detectionOrder {
			if emitted[typ] || state.typeInSpan(typ) {
				continue
			}
			ev, ok := evaluate(typ, symbol, v, state, cfg)
			if !ok {
				continue
			}
			events = append(events, ev)
			state.apply(ev, v)
			emitted[typ] = true
		}
	}

	return events, state, nil
}

// warmup is the first scannable index: enough bars for the minimum lookback
// and for every trailing series to be warm.
func warmup(cfg Config) int {
	w := cfg.MinLookback
	for _, p := range []int{cfg.VolumeAvgPeriod, cfg.ATRPeriod + 1, cfg.MomentumPeriod + 1} {
		if p > w {
			w = p
		}
	}
	return w
}

// detectionOrder fixes the per-bar evaluation order so runs are
// deterministic when several candidates fire on the same bar.
var detectionOrder = []EventType{
	SellingClimax,
	AutomaticRally,
	RallyTop,
	Spring,
	Upthrust,
	SignOfStrength,
	BuyingClimax,
	SignOfWeakness,
}

func evaluate(typ EventType, symbol string, v barView, state State, cfg Config) (Event, bool) {
	switch typ {
	case SellingClimax:
		return evalSellingClimax(symbol, v, state, cfg)
	case AutomaticRally:
		return evalAutomaticRally(symbol, v, state, cfg)
	case RallyTop:
		return evalRallyTop(symbol, v, state, cfg)
	case Spring:
		return evalSpring(symbol, v, state, cfg)
	case Upthrust:
		return evalUpthrust(symbol, v, state, cfg)
	case SignOfStrength:
		return evalSignOfStrength(symbol, v, state, cfg)
	case BuyingClimax:
		return evalBuyingClimax(symbol, v, state, cfg)
	case SignOfWeakness:
		return evalSignOfWeakness(symbol, v, state, cfg)
	}
	return Event{}, false
}

// evalSellingClimax: a high-volume down close exhausting the decline. Valid
// while the regime is Unknown, Markdown, or inside an accumulation range.
func evalSellingClimax(symbol string, v barView, state State, cfg Config) (Event, bool) {
	switch state.CurrentRegime {
	case Unknown, Markdown, Accumulation:
	default:
		return Event{}, false
	}
	if v.Close >= v.Open || v.VolRatio < cfg.ClimaxVolumeRatio {
		return Event{}, false
	}

	conf := clamp01(0.5 + 0.25*(v.VolRatio-cfg.ClimaxVolumeRatio) + 0.25*v.CloseLoc)
	return Event{
		Symbol:        symbol,
		Date:          v.Time,
		Type:          SellingClimax,
		Confidence:    conf,
		PriceLevel:    v.Low,
		VolumeContext: volumeContext(v, cfg),
	}, true
}

// evalAutomaticRally: the reflex rally off the climax low on quiet volume.
func evalAutomaticRally(symbol string, v barView, state State, cfg Config) (Event, bool) {
	if state.CurrentRegime != Accumulation || !state.typeInSpan(SellingClimax) || state.RangeLow == nil {
		return Event{}, false
	}
	if v.Close < *state.RangeLow*(1+cfg.ARMinRallyPct) || v.VolRatio > cfg.ARMaxVolumeRatio {
		return Event{}, false
	}

	rally := (v.Close - *state.RangeLow) / *state.RangeLow
	conf := clamp01(0.5 + 5*rally)
	return Event{
		Symbol:        symbol,
		Date:          v.Time,
		Type:          AutomaticRally,
		Confidence:    conf,
		PriceLevel:    v.High,
		VolumeContext: volumeContext(v, cfg),
	}, true
}

// evalRallyTop: a push above the rally high that closes weak, marking the
// range ceiling.
func evalRallyTop(symbol string, v barView, state State, cfg Config) (Event, bool) {
	if state.CurrentRegime != Accumulation || !state.typeInSpan(AutomaticRally) || state.RangeHigh == nil {
		return Event{}, false
	}
	if v.High <= *state.RangeHigh || v.CloseLoc > cfg.ARTopMaxCloseLoc {
		return Event{}, false
	}

	conf := clamp01(0.5 + (cfg.ARTopMaxCloseLoc - v.CloseLoc))
	return Event{
		Symbol:        symbol,
		Date:          v.Time,
		Type:          RallyTop,
		Confidence:    conf,
		PriceLevel:    v.High,
		VolumeContext: volumeContext(v, cfg),
	}, true
}

// evalSpring: a false breakdown below the range low, recovered on the same
// bar with volume drying up. Scored 0..SpringWeights.Max().
func evalSpring(symbol string, v barView, state State, cfg Config) (Event, bool) {
	if state.CurrentRegime != Accumulation || state.RangeLow == nil {
		return Event{}, false
	}
	low := *state.RangeLow
	if v.Low >= low || v.Close <= low || v.VolRatio > cfg.SpringMaxVolumeRatio {
		return Event{}, false
	}
	penetration := (low - v.Low) / low
	if penetration > cfg.SpringMaxPenetrationPct {
		// Too deep to be a false break.
		return Event{}, false
	}

	score := springScore(v, penetration, cfg)
	if score < cfg.SpringMinScore {
		return Event{}, false
	}
	return Event{
		Symbol:        symbol,
		Date:          v.Time,
		Type:          Spring,
		Confidence:    clamp01(score / cfg.SpringWeights.Max()),
		PriceLevel:    v.Low,
		VolumeContext: volumeContext(v, cfg),
	}, true
}

// evalUpthrust: the distribution-side mirror of the spring, a false breakout
// above the range high.
func evalUpthrust(symbol string, v barView, state State, cfg Config) (Event, bool) {
	if state.CurrentRegime != Distribution || state.RangeHigh == nil {
		return Event{}, false
	}
	high := *state.RangeHigh
	if v.High <= high || v.Close >= high || v.VolRatio > cfg.UTMaxVolumeRatio {
		return Event{}, false
	}

	conf := clamp01(0.5 + (1 - v.CloseLoc) - (v.VolRatio / (2 * cfg.UTMaxVolumeRatio)))
	return Event{
		Symbol:        symbol,
		Date:          v.Time,
		Type:          Upthrust,
		Confidence:    conf,
		PriceLevel:    v.High,
		VolumeContext: volumeContext(v, cfg),
	}, true
}

// evalSignOfStrength: a volume-backed close above the range ceiling.
// Triggers the transition to Markup.
func evalSignOfStrength(symbol string, v barView, state State, cfg Config) (Event, bool) {
	if state.CurrentRegime != Accumulation && state.CurrentRegime != Markup {
		return Event{}, false
	}
	if state.RangeHigh == nil || v.Close <= *state.RangeHigh || v.VolRatio < cfg.SOSMinVolumeRatio {
		return Event{}, false
	}

	conf := clamp01(0.5 + 0.25*(v.VolRatio-cfg.SOSMinVolumeRatio) + 0.25*v.CloseLoc)
	return Event{
		Symbol:        symbol,
		Date:          v.Time,
		Type:          SignOfStrength,
		Confidence:    conf,
		PriceLevel:    v.Close,
		VolumeContext: volumeContext(v, cfg),
	}, true
}

// evalBuyingClimax: upside exhaustion during Markup, graded by the
// composite climax score. Triggers the transition to Distribution.
func evalBuyingClimax(symbol string, v barView, state State, cfg Config) (Event, bool) {
	if state.CurrentRegime != Markup {
		return Event{}, false
	}
	if v.Close <= v.Open || v.VolRatio < cfg.ClimaxVolumeRatio {
		return Event{}, false
	}

	score := bcScore(v, cfg)
	if score < cfg.BCMinScore {
		return Event{}, false
	}
	return Event{
		Symbol:        symbol,
		Date:          v.Time,
		Type:          BuyingClimax,
		Confidence:    clamp01(score / cfg.BCWeights.Max()),
		PriceLevel:    v.High,
		VolumeContext: volumeContext(v, cfg),
	}, true
}

// evalSignOfWeakness: a volume-backed close below range support during
// Distribution. Triggers the transition to Markdown.
func evalSignOfWeakness(symbol string, v barView, state State, cfg Config) (Event, bool) {
	if state.CurrentRegime != Distribution || state.RangeLow == nil {
		return Event{}, false
	}
	if v.Close >= *state.RangeLow || v.VolRatio < cfg.SOWMinVolumeRatio {
		return Event{}, false
	}

	conf := clamp01(0.5 + 0.25*(v.VolRatio-cfg.SOWMinVolumeRatio) + 0.25*(1-v.CloseLoc))
	return Event{
		Symbol:        symbol,
		Date:          v.Time,
		Type:          SignOfWeakness,
		Confidence:    conf,
		PriceLevel:    v.Close,
		VolumeContext: volumeContext(v, cfg),
	}, true
}
