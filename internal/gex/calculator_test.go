package gex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerflow/structure-pipeline/internal/market"
)

var snapTime = time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)

func contract(side market.OptionSide, strike, gamma float64, oi, vol int64) market.OptionContract {
	g := gamma
	return market.OptionContract{
		Strike:       strike,
		Expiry:       snapTime.AddDate(0, 0, 30),
		Side:         side,
		Gamma:        &g,
		OpenInterest: oi,
		Volume:       vol,
	}
}

func snapshot(symbol string, spot float64, contracts ...market.OptionContract) (*market.OptionChainSnapshot, market.SpotPrice) {
	s := &market.OptionChainSnapshot{
		Symbol:       symbol,
		SnapshotTime: snapTime,
		Contracts:    contracts,
		Spot:         &spot,
	}
	return s, market.ResolveSpot(nil, s, nil)
}

func looseConfig() Config {
	cfg := DefaultConfig()
	cfg.MinOpenInterest = 1
	cfg.MinVolume = 1
	return cfg
}

func TestComputeReferenceChain(t *testing.T) {
	snap, spot := snapshot("SPY", 144,
		contract(market.Call, 145, 0.05, 100, 10),
		contract(market.Put, 140, 0.04, 120, 10),
		contract(market.Call, 150, 0.03, 80, 10),
		contract(market.Put, 135, 0.02, 60, 10),
	)

	m := Compute(snap, spot, looseConfig())

	require.NotNil(t, m.GexTotal)
	require.NotNil(t, m.GexNet)
	assert.InDelta(t, 1340, *m.GexTotal, 1e-9)
	assert.InDelta(t, 140, *m.GexNet, 1e-9)

	// Cumulative signed GEX over ascending strikes:
	// 135:-120  140:-600  145:-100  150:+140 -> crossing between 145 and 150
	// at 145 + 5*100/240.
	require.NotNil(t, m.GammaFlip)
	assert.InDelta(t, 147.0833333, *m.GammaFlip, 1e-6)
	assert.Greater(t, *m.GammaFlip, 145.0)
	assert.Less(t, *m.GammaFlip, 150.0)

	require.NotEmpty(t, m.CallWalls)
	require.NotEmpty(t, m.PutWalls)
	assert.Equal(t, 145.0, m.CallWalls[0].Strike)
	assert.Equal(t, 140.0, m.PutWalls[0].Strike)

	// Only strike 145 falls within +/-2% of 144, so no slope.
	assert.Nil(t, m.GexSlope)
	assert.Contains(t, m.Diagnostics, DiagSlopeInsufficient)

	assert.Equal(t, PositionNeutral, m.Position)
	assert.Equal(t, 4, m.EligibleOptions)
}

func TestComputeIsDeterministic(t *testing.T) {
	snap, spot := snapshot("QQQ", 500,
		contract(market.Call, 505, 0.04, 900, 50),
		contract(market.Put, 495, 0.05, 800, 40),
		contract(market.Call, 510, 0.02, 400, 20),
	)

	a := Compute(snap, spot, looseConfig())
	b := Compute(snap, spot, looseConfig())
	assert.Equal(t, a, b)
}

func TestGammaFlipStrictlyInsideBracket(t *testing.T) {
	// Put-heavy low strikes, call-heavy high strikes force one crossing.
	snap, spot := snapshot("IWM", 200,
		contract(market.Put, 190, 0.06, 500, 10),
		contract(market.Put, 195, 0.05, 400, 10),
		contract(market.Call, 205, 0.07, 600, 10),
		contract(market.Call, 210, 0.04, 300, 10),
	)

	m := Compute(snap, spot, looseConfig())
	require.NotNil(t, m.GammaFlip)
	assert.Greater(t, *m.GammaFlip, 195.0)
	assert.Less(t, *m.GammaFlip, 205.0)
}

func TestGammaFlipZeroTouchSameSideIsNoCrossing(t *testing.T) {
	// Cumulative GEX runs +500, 0, +250: it touches zero at 105 but never
	// changes sign, so there is no flip.
	snap, spot := snapshot("SPY", 105,
		contract(market.Call, 100, 0.05, 100, 10),
		contract(market.Put, 105, 0.05, 100, 10),
		contract(market.Call, 110, 0.025, 100, 10),
	)

	m := Compute(snap, spot, looseConfig())
	assert.Nil(t, m.GammaFlip)
	assert.Contains(t, m.Diagnostics, DiagNoGammaFlip)
}

func TestGammaFlipZeroTouchWithSignChange(t *testing.T) {
	// Cumulative GEX runs +500, 0, -250: the crossing sits exactly on the
	// middle strike.
	snap, spot := snapshot("SPY", 105,
		contract(market.Call, 100, 0.05, 100, 10),
		contract(market.Put, 105, 0.05, 100, 10),
		contract(market.Put, 110, 0.025, 100, 10),
	)

	m := Compute(snap, spot, looseConfig())
	require.NotNil(t, m.GammaFlip)
	assert.Equal(t, 105.0, *m.GammaFlip)
}

func TestComputeNoCrossing(t *testing.T) {
	snap, spot := snapshot("TSLA", 250,
		contract(market.Call, 250, 0.05, 300, 10),
		contract(market.Call, 255, 0.04, 200, 10),
	)

	m := Compute(snap, spot, looseConfig())
	assert.Nil(t, m.GammaFlip)
	assert.Contains(t, m.Diagnostics, DiagNoGammaFlip)
}

func TestFilterStats(t *testing.T) {
	expired := contract(market.Call, 100, 0.01, 500, 10)
	expired.Expiry = snapTime.AddDate(0, 0, -1)

	noGamma := contract(market.Put, 100, 0, 500, 10)
	noGamma.Gamma = nil

	farOut := contract(market.Call, 100, 0.01, 500, 10)
	farOut.Expiry = snapTime.AddDate(0, 0, 120)

	thinOI := contract(market.Call, 100, 0.01, 5, 10)
	noVolume := contract(market.Put, 100, 0.01, 500, 0)
	good := contract(market.Call, 100, 0.01, 500, 10)

	snap, spot := snapshot("AAPL", 100, expired, noGamma, farOut, thinOI, noVolume, good)
	m := Compute(snap, spot, DefaultConfig())

	assert.Equal(t, FilterStats{
		Total:          6,
		Eligible:       1,
		Expired:        1,
		MissingGamma:   1,
		DTEExceeded:    1,
		OIBelowMin:     1,
		VolumeBelowMin: 1,
	}, m.FilterStats)
}

func TestComputeMissingSpot(t *testing.T) {
	snap := &market.OptionChainSnapshot{
		Symbol:       "NVDA",
		SnapshotTime: snapTime,
		Contracts:    []market.OptionContract{contract(market.Call, 100, 0.01, 500, 10)},
	}
	spot := market.ResolveSpot(nil, snap, nil)

	m := Compute(snap, spot, DefaultConfig())
	assert.Equal(t, StatusInvalid, m.Status)
	assert.Equal(t, market.SpotUnresolved, m.SpotSource)
	assert.Contains(t, m.Diagnostics, DiagMissingSpotPrice)
	assert.Nil(t, m.GexTotal)
	assert.Nil(t, m.GexNet)
}

func TestComputeEmptyChain(t *testing.T) {
	snap, spot := snapshot("META", 700)
	m := Compute(snap, spot, DefaultConfig())

	assert.Equal(t, StatusInvalid, m.Status)
	assert.Equal(t, PositionUnknown, m.Position)
	assert.Equal(t, ConfidenceInvalid, m.Confidence)
	assert.Contains(t, m.Diagnostics, DiagNoContracts)
}

func TestComputeAllFiltered(t *testing.T) {
	snap, spot := snapshot("AMD", 150, contract(market.Call, 150, 0.01, 1, 0))
	m := Compute(snap, spot, DefaultConfig())

	assert.Equal(t, StatusInvalid, m.Status)
	assert.Contains(t, m.Diagnostics, DiagAllFiltered)
	assert.Contains(t, m.Diagnostics, DiagNoEligibleOptions)
}

// wideChain builds n alternating call/put contracts spread around spot so the
// status tiers can be exercised directly.
func wideChain(n int) []market.OptionContract {
	contracts := make([]market.OptionContract, 0, n)
	for i := 0; i < n; i++ {
		side := market.Call
		if i%2 == 1 {
			side = market.Put
		}
		strike := 90 + float64(i)
		contracts = append(contracts, contract(side, strike, 0.01+0.0005*float64(i), 500, 25))
	}
	return contracts
}

func TestStatusDecisionTable(t *testing.T) {
	cases := []struct {
		name       string
		contracts  int
		status     Status
		confidence Confidence
	}{
		{"thirty eligible is FULL", 30, StatusFull, ConfidenceHigh},
		{"twelve eligible is LIMITED", 12, StatusLimited, ConfidenceMedium},
		{"four eligible downgrades to INVALID", 4, StatusInvalid, ConfidenceLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap, spot := snapshot("SPX", 100, wideChain(tc.contracts)...)
			m := Compute(snap, spot, looseConfig())
			require.Equal(t, tc.contracts, m.EligibleOptions)
			assert.Equal(t, tc.confidence, m.Confidence)
			assert.Equal(t, tc.status, m.Status)
		})
	}
}

func TestStatusIsPureFunctionOfInputs(t *testing.T) {
	// Same chain, recomputed with shuffled contract order: the status (and
	// everything else) must not depend on input ordering.
	contracts := wideChain(30)
	reversed := make([]market.OptionContract, len(contracts))
	for i, c := range contracts {
		reversed[len(contracts)-1-i] = c
	}

	snapA, spotA := snapshot("SPX", 100, contracts...)
	snapB, spotB := snapshot("SPX", 100, reversed...)

	a := Compute(snapA, spotA, looseConfig())
	b := Compute(snapB, spotB, looseConfig())
	assert.Equal(t, a.Status, b.Status)
	assert.Equal(t, a.GexNet, b.GexNet)
	assert.Equal(t, a.CallWalls, b.CallWalls)
	assert.Equal(t, a.Confidence, b.Confidence)
}
