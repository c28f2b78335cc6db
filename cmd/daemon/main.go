package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dealerflow/structure-pipeline/internal/config"
	"github.com/dealerflow/structure-pipeline/internal/notify"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	// Setup logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	// Load daemon config
	daemonCfg := LoadDaemonConfig()

	logger.Info("daemon configuration loaded",
		zap.Int("scheduleHour", daemonCfg.ScheduleHour),
		zap.Int("scheduleMinute", daemonCfg.ScheduleMinute),
		zap.String("timezone", daemonCfg.Timezone),
		zap.String("configPath", daemonCfg.ConfigPath),
		zap.String("stateFile", daemonCfg.StateFile),
		zap.Bool("runOnStartup", daemonCfg.RunOnStartup),
	)

	// Load pipeline config
	cfg, err := config.Load(daemonCfg.ConfigPath)
	if err != nil {
		logger.Error("failed to load pipeline config", zap.Error(err))
		return 1
	}

	logger.Info("pipeline configuration loaded",
		zap.String("storePath", cfg.Store.Path),
		zap.Int("workers", cfg.Run.Workers),
		zap.Int("symbols", len(config.EffectiveSymbols(nil, cfg.Symbols))),
	)

	// Notifications are optional; a bad config should fail loudly here, not
	// at the end of the first run.
	ntfyCfg := notify.LoadConfig()
	if err := ntfyCfg.Validate(); err != nil {
		logger.Error("invalid notification config", zap.Error(err))
		return 1
	}
	notifier := notify.New(ntfyCfg, logger)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Create scheduler and tracker
	scheduler := NewScheduler(daemonCfg.ScheduleHour, daemonCfg.ScheduleMinute, daemonCfg.Timezone)
	tracker := NewRunTracker(daemonCfg.StateFile)

	logger.Info("daemon started",
		zap.String("schedule", fmt.Sprintf("%02d:%02d %s", daemonCfg.ScheduleHour, daemonCfg.ScheduleMinute, daemonCfg.Timezone)),
	)

	// Check on startup if enabled
	if daemonCfg.RunOnStartup {
		logger.Info("checking for missed run on startup")
		if shouldRun(scheduler, tracker, logger) {
			runScheduledBatch(ctx, cfg, scheduler, tracker, notifier, logger)
		}
	}

	// Main loop - check every minute
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			cancel()
			return 0

		case <-ticker.C:
			if shouldRun(scheduler, tracker, logger) {
				runScheduledBatch(ctx, cfg, scheduler, tracker, notifier, logger)
			}

		case <-ctx.Done():
			logger.Info("context cancelled, shutting down")
			return 0
		}
	}
}

// shouldRun checks if conditions are met for triggering the batch
func shouldRun(scheduler *Scheduler, tracker *RunTracker, logger *zap.Logger) bool {
	today := scheduler.TodayDate()

	// Check if today's batch already completed
	if tracker.AlreadyRan(today) {
		return false
	}

	// Check if it's a market day
	if !scheduler.IsMarketDay(today) {
		logger.Debug("not a market day", zap.String("date", today))
		return false
	}

	// Check if it's the scheduled time
	if !scheduler.IsScheduledTime() {
		return false
	}

	logger.Info("batch conditions met",
		zap.String("date", today),
		zap.String("time", time.Now().In(scheduler.Location()).Format("15:04:05")),
	)

	return true
}

// runScheduledBatch executes the batch and updates the tracker
func runScheduledBatch(ctx context.Context, cfg *config.Config, scheduler *Scheduler, tracker *RunTracker, notifier notify.Notifier, logger *zap.Logger) {
	today := scheduler.TodayDate()

	logger.Info("starting scheduled batch", zap.String("date", today))

	result, err := executeBatch(ctx, cfg, scheduler, today, logger)
	notifyResult(ctx, notifier, result, today, err, logger)
	if err != nil {
		logger.Error("batch failed", zap.Error(err), zap.String("date", today))
		return
	}

	logger.Info("batch succeeded",
		zap.String("date", today),
		zap.String("summary", result.Summary()),
	)

	// Update tracker to prevent a duplicate batch
	if err := tracker.SetLastRunDate(today); err != nil {
		logger.Error("failed to update tracker", zap.Error(err))
	}
}
