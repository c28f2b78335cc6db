package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealerflow/structure-pipeline/internal/config"
	"github.com/dealerflow/structure-pipeline/internal/run"
)

func runCmd() *cobra.Command {
	var (
		symbols       []string
		snapshotTime  string
		dryRun        bool
		maxDTE        int
		minOI         int64
		minVolume     int64
		wallsTopN     int
		slopeRangePct float64
		spot          float64
	)

	cmd := &cobra.Command{
		Use:   "run [SYMBOL]",
		Short: "Compute and persist snapshots for one symbol or the full batch",
		Long: `Compute dealer positioning metrics and structural events.

With a SYMBOL argument the run is event-scoped to that one symbol;
without it every configured symbol runs as a batch.

Examples:
  # Event run for one symbol at an explicit snapshot time
  pipeline run SPY --snapshot-time 2025-06-02T20:00:00Z

  # Batch run over the configured symbols
  pipeline run

  # Batch over an explicit set, without persisting
  pipeline run --symbols SPX,NDX --dry-run

  # Tighten the contract filters for this invocation only
  pipeline run SPY --max-dte 30 --min-oi 500`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			at, err := parseSnapshotTime(snapshotTime)
			if err != nil {
				return err
			}

			overrides := run.Overrides{}
			if cmd.Flags().Changed("max-dte") {
				overrides.MaxDTE = &maxDTE
			}
			if cmd.Flags().Changed("min-oi") {
				overrides.MinOI = &minOI
			}
			if cmd.Flags().Changed("min-volume") {
				overrides.MinVolume = &minVolume
			}
			if cmd.Flags().Changed("walls-top-n") {
				overrides.WallsTopN = &wallsTopN
			}
			if cmd.Flags().Changed("slope-range-pct") {
				overrides.SlopeRangePct = &slopeRangePct
			}
			if cmd.Flags().Changed("spot") {
				overrides.Spot = &spot
			}

			var rc run.Context
			if len(args) == 1 {
				rc = run.EventTrigger{
					Symbol:       args[0],
					SnapshotTime: at,
					DryRun:       dryRun,
					Overrides:    overrides,
				}.Resolve()
			} else {
				rc = run.BatchTrigger{
					Symbols:      config.EffectiveSymbols(symbols, cfg.Symbols),
					SnapshotTime: at,
					DryRun:       dryRun,
					Overrides:    overrides,
				}.Resolve()
			}

			runner, st, err := buildRunner()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			result, err := runner.Execute(ctx, rc)
			if err != nil {
				return err
			}

			fmt.Println(result.Summary())
			if result.Failed > 0 {
				return fmt.Errorf("%d symbols failed", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "override symbols from config (batch mode)")
	cmd.Flags().StringVar(&snapshotTime, "snapshot-time", "", "snapshot time, RFC3339 (default: now, minute precision)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute everything, persist nothing")
	cmd.Flags().IntVar(&maxDTE, "max-dte", 0, "override max days-to-expiry filter")
	cmd.Flags().Int64Var(&minOI, "min-oi", 0, "override minimum open interest filter")
	cmd.Flags().Int64Var(&minVolume, "min-volume", 0, "override minimum volume filter")
	cmd.Flags().IntVar(&wallsTopN, "walls-top-n", 0, "override wall count per side")
	cmd.Flags().Float64Var(&slopeRangePct, "slope-range-pct", 0, "override slope strike range around spot")
	cmd.Flags().Float64Var(&spot, "spot", 0, "override spot price")

	return cmd
}

// parseSnapshotTime accepts RFC3339 or a plain date; empty means now,
// truncated to the minute so reruns within the same minute upsert the same
// row.
func parseSnapshotTime(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC().Truncate(time.Minute), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid snapshot time %q (use RFC3339 or YYYY-MM-DD)", s)
}
