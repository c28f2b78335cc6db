package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dealerflow/structure-pipeline/internal/config"
	"github.com/dealerflow/structure-pipeline/internal/feed"
	"github.com/dealerflow/structure-pipeline/internal/notify"
	"github.com/dealerflow/structure-pipeline/internal/run"
	"github.com/dealerflow/structure-pipeline/internal/store"
)

// RunTracker tracks the last date a scheduled batch completed
type RunTracker struct {
	stateFile string
}

// NewRunTracker creates a new tracker with the given state file path
func NewRunTracker(stateFile string) *RunTracker {
	return &RunTracker{stateFile: stateFile}
}

// LastRunDate reads the last completed run date from the state file
func (t *RunTracker) LastRunDate() string {
	data, err := os.ReadFile(t.stateFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SetLastRunDate writes the date to the state file
func (t *RunTracker) SetLastRunDate(date string) error {
	dir := filepath.Dir(t.stateFile)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	return os.WriteFile(t.stateFile, []byte(date+"\n"), 0600)
}

// AlreadyRan checks if the given date already completed
func (t *RunTracker) AlreadyRan(date string) bool {
	return t.LastRunDate() == date
}

// executeBatch runs the scheduled batch for the given date through the same
// execution path the CLI uses.
func executeBatch(ctx context.Context, cfg *config.Config, scheduler *Scheduler, date string, logger *zap.Logger) (*run.Result, error) {
	at, err := scheduler.SnapshotTime(date)
	if err != nil {
		return nil, err
	}

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
		return nil, err
	}
	defer func() { _ = st.Close() }()

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

	rc := run.BatchTrigger{
		Symbols:      config.EffectiveSymbols(nil, cfg.Symbols),
		SnapshotTime: at,
	}.Resolve()

	return runner.Execute(ctx, rc)
}

// notifyResult pushes the end-of-run summary when notifications are enabled.
func notifyResult(ctx context.Context, notifier notify.Notifier, result *run.Result, date string, err error, logger *zap.Logger) {
	var sendErr error
	if err != nil || (result != nil && result.Failed > 0) {
		sendErr = notifier.SendFailure(ctx, result, date, err)
	} else {
		sendErr = notifier.SendSuccess(ctx, result, date)
	}
	if sendErr != nil {
		logger.Warn("notification failed", zap.Error(sendErr))
	}
}
