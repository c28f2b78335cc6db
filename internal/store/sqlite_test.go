package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealerflow/structure-pipeline/internal/gex"
	"github.com/dealerflow/structure-pipeline/internal/market"
	"github.com/dealerflow/structure-pipeline/internal/wyckoff"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(symbol string, at time.Time) SnapshotRecord {
	total := 1340.0
	net := 140.0
	spot := 147.25

	return SnapshotRecord{
		Symbol:       symbol,
		SnapshotTime: at,
		DealerMetrics: gex.DealerMetrics{
			Symbol:          symbol,
			SnapshotTime:    at,
			GexTotal:        &total,
			GexNet:          &net,
			Position:        gex.PositionLongGamma,
			Confidence:      gex.ConfidenceMedium,
			Status:          gex.StatusLimited,
			SpotPrice:       &spot,
			SpotSource:      market.SpotFromChain,
			EligibleOptions: 4,
			FilterStats:     gex.FilterStats{Total: 4, Eligible: 4},
			Diagnostics:     []string{},
		},
		Events: []wyckoff.Event{{
			Symbol:        symbol,
			Date:          at.AddDate(0, 0, -1),
			Type:          wyckoff.SellingClimax,
			Confidence:    0.8,
			PriceLevel:    95.0,
			VolumeContext: "climactic",
		}},
		Regime: wyckoff.State{Symbol: symbol, CurrentRegime: wyckoff.Accumulation, Events: []wyckoff.StateEvent{}},
	}
}

func TestCommitAndReadBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)

	rec := testRecord("SPY", at)
	state := wyckoff.NewState("SPY")
	state.CurrentRegime = wyckoff.Accumulation

	require.NoError(t, s.CommitSymbol(ctx, rec, state))

	got, err := s.Snapshot(ctx, "SPY", at)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "SPY", got.Symbol)
	assert.True(t, got.SnapshotTime.Equal(at))
	require.NotNil(t, got.DealerMetrics.GexTotal)
	assert.Equal(t, 1340.0, *got.DealerMetrics.GexTotal)
	assert.Equal(t, gex.StatusLimited, got.DealerMetrics.Status)
	require.Len(t, got.Events, 1)
	assert.Equal(t, wyckoff.SellingClimax, got.Events[0].Type)
	assert.Empty(t, got.Indicators)
}

func TestCommitIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)

	rec := testRecord("SPY", at)
	state := wyckoff.NewState("SPY")

	require.NoError(t, s.CommitSymbol(ctx, rec, state))
	first, err := s.Snapshot(ctx, "SPY", at)
	require.NoError(t, err)

	require.NoError(t, s.CommitSymbol(ctx, rec, state))
	second, err := s.Snapshot(ctx, "SPY", at)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	var count int
	require.NoError(t, s.db.Get(&count, `SELECT COUNT(*) FROM snapshots`))
	assert.Equal(t, 1, count)
}

func TestUpsertPreservesSiblingColumns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)

	rec := testRecord("SPY", at)
	require.NoError(t, s.CommitSymbol(ctx, rec, wyckoff.NewState("SPY")))

	// Another producer fills its own column on the same row.
	_, err := s.db.Exec(`UPDATE snapshots SET indicators = ? WHERE symbol = ? AND snapshot_time = ?`,
		`{"rsi_14":61.2}`, "SPY", at.UTC().Format(time.RFC3339))
	require.NoError(t, err)

	// Re-running the pipeline must not clobber it.
	require.NoError(t, s.CommitSymbol(ctx, rec, wyckoff.NewState("SPY")))

	got, err := s.Snapshot(ctx, "SPY", at)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"rsi_14":61.2}`, string(got.Indicators))
}

func TestRegimeStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Unknown symbol yields the initial state.
	st, err := s.RegimeState(ctx, "QQQ")
	require.NoError(t, err)
	assert.Equal(t, wyckoff.Unknown, st.CurrentRegime)
	assert.Empty(t, st.Events)

	at := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)
	saved := wyckoff.NewState("QQQ")
	saved.CurrentRegime = wyckoff.Markup
	span := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	saved.SpanStart = &span

	require.NoError(t, s.CommitSymbol(ctx, testRecord("QQQ", at), saved))

	got, err := s.RegimeState(ctx, "QQQ")
	require.NoError(t, err)
	assert.Equal(t, wyckoff.Markup, got.CurrentRegime)
	require.NotNil(t, got.SpanStart)
	assert.True(t, got.SpanStart.Equal(span))
}

func TestSnapshotsAtOrdersBySymbol(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)

	for _, sym := range []string{"QQQ", "SPY", "IWM"} {
		require.NoError(t, s.CommitSymbol(ctx, testRecord(sym, at), wyckoff.NewState(sym)))
	}
	// A record at a different time must not appear.
	require.NoError(t, s.CommitSymbol(ctx, testRecord("SPY", at.Add(24*time.Hour)), wyckoff.NewState("SPY")))

	got, err := s.SnapshotsAt(ctx, at)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "IWM", got[0].Symbol)
	assert.Equal(t, "QQQ", got[1].Symbol)
	assert.Equal(t, "SPY", got[2].Symbol)
}

func TestSnapshotMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Snapshot(context.Background(), "SPY", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAcquireSerializesSameSymbol(t *testing.T) {
	s := openTestStore(t)

	release := s.Acquire("SPY")
	done := make(chan struct{})
	go func() {
		inner := s.Acquire("SPY")
		inner()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Acquire should block until release")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never proceeded")
	}
}
