package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dealerflow/structure-pipeline/internal/feed"
	"github.com/dealerflow/structure-pipeline/internal/gex"
	"github.com/dealerflow/structure-pipeline/internal/market"
	"github.com/dealerflow/structure-pipeline/internal/store"
	"github.com/dealerflow/structure-pipeline/internal/wyckoff"
)

// Runner drives one execution context through fetch, compute and persist.
// Event and batch contexts share this code path; batch merely widens the
// symbol scope and bounds concurrency with the worker pool.
type Runner struct {
	source  feed.Source
	store   store.Store
	gexCfg  gex.Config
	wyckCfg wyckoff.Config

	workers       int
	lookbackDays  int
	symbolTimeout time.Duration
	logger        *zap.Logger
}

func NewRunner(source feed.Source, st store.Store, gexCfg gex.Config, wyckCfg wyckoff.Config,
	workers, lookbackDays int, symbolTimeout time.Duration, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		source:        source,
		store:         st,
		gexCfg:        gexCfg,
		wyckCfg:       wyckCfg,
		workers:       workers,
		lookbackDays:  lookbackDays,
		symbolTimeout: symbolTimeout,
		logger:        logger,
	}
}

// Execute validates the context, runs every symbol in scope and returns the
// tally. Per-symbol failures are recorded and never abort siblings; an
// unreachable store is systemic and aborts the whole run.
func (r *Runner) Execute(ctx context.Context, rc Context) (*Result, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	if err := r.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("aborting run: %w", err)
	}

	cfg := rc.Overrides.Apply(r.gexCfg)

	start := time.Now()
	r.logger.Info("run started",
		zap.String("trace_id", rc.TraceID),
		zap.String("mode", string(rc.Mode)),
		zap.Strings("symbols", rc.Symbols),
		zap.Time("snapshot_time", rc.SnapshotTime),
		zap.Bool("dry_run", rc.DryRun),
		zap.Int("max_dte", cfg.MaxDTE),
		zap.Int64("min_oi", cfg.MinOpenInterest),
		zap.Int64("min_volume", cfg.MinVolume),
		zap.Int("walls_top_n", cfg.WallsTopN),
		zap.Float64("slope_range_pct", cfg.SlopeRangePct),
	)

	result := &Result{
		TraceID: rc.TraceID,
		Mode:    rc.Mode,
		DryRun:  rc.DryRun,
		Total:   len(rc.Symbols),
	}

	workers := r.workers
	if rc.Mode == ModeEvent || workers > len(rc.Symbols) {
		workers = len(rc.Symbols)
	}

	jobs := make(chan string, len(rc.Symbols))
	results := make(chan symbolResult, len(rc.Symbols))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx, rc, cfg, jobs, results)
		}()
	}

	go func() {
		for _, symbol := range rc.Symbols {
			select {
			case <-ctx.Done():
				return
			case jobs <- symbol:
			}
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for sr := range results {
		if sr.Err != nil {
			r.logger.Warn("symbol failed",
				zap.String("trace_id", rc.TraceID),
				zap.String("symbol", sr.Symbol),
				zap.Error(sr.Err))
		}
		result.record(sr)
	}

	result.Duration = time.Since(start)
	r.logger.Info("run finished",
		zap.String("trace_id", rc.TraceID),
		zap.String("mode", string(rc.Mode)),
		zap.Bool("dry_run", rc.DryRun),
		zap.Int("total", result.Total),
		zap.Int("success", result.Success),
		zap.Int("degraded", result.Degraded),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)

	return result, ctx.Err()
}

func (r *Runner) worker(ctx context.Context, rc Context, cfg gex.Config, jobs <-chan string, results chan<- symbolResult) {
	for symbol := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sr := r.processSymbol(ctx, rc, cfg, symbol)

		select {
		case <-ctx.Done():
			return
		case results <- sr:
		}
	}
}

// processSymbol is the whole per-symbol pipeline: fetch chain and bars,
// resolve spot, compute dealer metrics, advance the regime state and commit.
// The per-symbol timeout isolates a stuck symbol from its siblings.
func (r *Runner) processSymbol(ctx context.Context, rc Context, cfg gex.Config, symbol string) symbolResult {
	sctx := ctx
	if r.symbolTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, r.symbolTimeout)
		defer cancel()
	}

	release := r.store.Acquire(symbol)
	defer release()

	chain, err := r.source.OptionChain(sctx, symbol, rc.SnapshotTime)
	if err != nil && !errors.Is(err, feed.ErrNotFound) {
		return symbolResult{Symbol: symbol, Err: fmt.Errorf("fetching option chain: %w", err)}
	}

	bars, err := r.source.DailyBars(sctx, symbol, rc.SnapshotTime, r.lookbackDays)
	if err != nil && !errors.Is(err, feed.ErrNotFound) {
		return symbolResult{Symbol: symbol, Err: fmt.Errorf("fetching daily bars: %w", err)}
	}

	spot := market.ResolveSpot(rc.Overrides.Spot, chain, bars)

	metrics := gex.Compute(chain, spot, cfg)
	if chain == nil {
		metrics.Symbol = symbol
		metrics.SnapshotTime = rc.SnapshotTime
	}

	prior, err := r.store.RegimeState(sctx, symbol)
	if err != nil {
		return symbolResult{Symbol: symbol, Err: fmt.Errorf("loading regime state: %w", err)}
	}

	events, state, err := wyckoff.Detect(symbol, bars, prior, r.wyckCfg)
	if err != nil {
		return symbolResult{Symbol: symbol, Err: fmt.Errorf("detecting structure: %w", err)}
	}

	rec := store.SnapshotRecord{
		Symbol:        symbol,
		SnapshotTime:  rc.SnapshotTime,
		DealerMetrics: metrics,
		Events:        events,
		Regime:        state,
	}

	if rc.DryRun {
		r.logger.Info("dry run, skipping persistence",
			zap.String("trace_id", rc.TraceID),
			zap.String("symbol", symbol),
			zap.String("status", string(metrics.Status)),
			zap.Int("events", len(events)),
			zap.String("regime", string(state.CurrentRegime)))
		return symbolResult{Symbol: symbol, Status: metrics.Status, Record: rec}
	}

	if err := r.store.CommitSymbol(sctx, rec, state); err != nil {
		return symbolResult{Symbol: symbol, Err: fmt.Errorf("persisting snapshot: %w", err)}
	}

	return symbolResult{Symbol: symbol, Status: metrics.Status, Record: rec}
}
