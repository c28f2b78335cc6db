package wyckoff

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/dealerflow/structure-pipeline/internal/market"
)

// barView is everything the detection rules see about one bar: the raw bar
// plus its derived sub-signals over the trailing window.
type barView struct {
	market.OHLCVBar

	// VolRatio is bar volume over the trailing volume average, the average
	// taken up to but excluding this bar.
	VolRatio float64
	// ATR is the trailing average true range, excluding this bar.
	ATR float64
	// CloseLoc is the close location within the bar range in [0,1]; 0 at
	// the low, 1 at the high.
	CloseLoc float64
	// Divergence is true when the bar makes a new high over the momentum
	// window while momentum itself has fallen.
	Divergence bool
	// Support is the lowest low of the trailing support window.
	Support float64
}

// series precomputes the talib-derived series the per-bar views are built
// from. Building them once keeps Detect O(n).
type series struct {
	volSMA []float64
	atr    []float64
	mom    []float64
	bars   []market.OHLCVBar
	cfg    Config
}

func buildSeries(bars []market.OHLCVBar, cfg Config) series {
	n := len(bars)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
		volumes[i] = b.Volume
	}
	return series{
		volSMA: talib.Sma(volumes, cfg.VolumeAvgPeriod),
		atr:    talib.Atr(highs, lows, closes, cfg.ATRPeriod),
		mom:    talib.Mom(closes, cfg.MomentumPeriod),
		bars:   bars,
		cfg:    cfg,
	}
}

// view assembles the sub-signals for bar i. Callers only ask for
// i >= cfg.MinLookback, so the trailing series are warm.
func (s series) view(i int) barView {
	b := s.bars[i]
	v := barView{OHLCVBar: b}

	if i > 0 && s.volSMA[i-1] > 0 {
		v.VolRatio = b.Volume / s.volSMA[i-1]
	}
	if i > 0 {
		v.ATR = s.atr[i-1]
	}
	if r := b.High - b.Low; r > 0 {
		v.CloseLoc = (b.Close - b.Low) / r
	}

	lo := i - s.cfg.SupportWindow
	if lo < 0 {
		lo = 0
	}
	v.Support = s.bars[i].Low
	for j := lo; j < i; j++ {
		if s.bars[j].Low < v.Support {
			v.Support = s.bars[j].Low
		}
	}

	// Divergence: new high over the momentum window on fading momentum.
	mlo := i - s.cfg.MomentumPeriod
	if mlo >= 0 {
		newHigh := true
		for j := mlo; j < i; j++ {
			if s.bars[j].High >= b.High {
				newHigh = false
				break
			}
		}
		v.Divergence = newHigh && s.mom[i] < s.mom[i-1]
	}

	return v
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// bcScore grades a buying-climax candidate on volume expansion, range width
// relative to ATR, how far the close sits off the high, and momentum
// divergence. Maximum is BCWeights.Max() (28 by default).
func bcScore(v barView, cfg Config) float64 {
	volFrac := clamp01((v.VolRatio - 1) / (cfg.ClimaxVolumeRatio - 1))

	rangeFrac := 0.0
	if v.ATR > 0 {
		rangeFrac = clamp01((v.High - v.Low) / (2 * v.ATR))
	}

	offHighFrac := clamp01(2 * (1 - v.CloseLoc))

	divFrac := 0.0
	if v.Divergence {
		divFrac = 1
	}

	w := cfg.BCWeights
	return w.Volume*volFrac + w.Range*rangeFrac + w.CloseLocation*offHighFrac + w.Divergence*divFrac
}

// springScore grades a spring candidate. The Range weight grades how shallow
// the penetration below the range low was, CloseLocation grades the
// strength of the recovery close. Maximum is SpringWeights.Max() (12).
func springScore(v barView, penetration float64, cfg Config) float64 {
	volFrac := clamp01(1.5 - v.VolRatio)
	penFrac := clamp01(1 - penetration/cfg.SpringMaxPenetrationPct)
	recoveryFrac := clamp01(v.CloseLoc)

	w := cfg.SpringWeights
	return w.Volume*volFrac + w.Range*penFrac + w.CloseLocation*recoveryFrac
}

func volumeContext(v barView, cfg Config) string {
	return fmt.Sprintf("volume %.1fx %d-day average", v.VolRatio, cfg.VolumeAvgPeriod)
}
