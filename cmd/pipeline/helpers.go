package main

import (
	"time"

	"github.com/dealerflow/structure-pipeline/internal/feed"
	"github.com/dealerflow/structure-pipeline/internal/run"
	"github.com/dealerflow/structure-pipeline/internal/store"
)

// buildRunner wires the feed client, the snapshot store and the runner from
// the loaded config. The caller owns closing the returned store.
func buildRunner() (*run.Runner, store.Store, error) {
	client := feed.NewClient(
		cfg.Feed.BaseURL,
		cfg.Feed.APIKey,
		cfg.Feed.RatePerSecond,
		time.Duration(cfg.Feed.TimeoutSec)*time.Second,
		time.Duration(cfg.Feed.RetryDelaySec)*time.Second,
		cfg.Feed.RetryCount,
		logger,
	)

	st, err := store.OpenSQLite(cfg.Store.Path, logger)
	if err != nil {
		return nil, nil, err
	}

	runner := run.NewRunner(
		client,
		st,
		cfg.Gex,
		cfg.Wyckoff,
		cfg.Run.Workers,
		cfg.Run.LookbackDays,
		time.Duration(cfg.Run.SymbolTimeoutSec)*time.Second,
		logger,
	)
	return runner, st, nil
}
