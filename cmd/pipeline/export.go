package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dealerflow/structure-pipeline/internal/export"
	"github.com/dealerflow/structure-pipeline/internal/store"
)

func exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export SNAPSHOT_TIME",
		Short: "Export stored snapshot records as zstd-compressed JSONL",
		Long: `Export every record stored at one snapshot time.

Examples:
  # Export a specific snapshot
  pipeline export 2025-06-02T20:00:00Z

  # Export to an explicit path
  pipeline export 2025-06-02T20:00:00Z -o archives/spy-day.jsonl.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseSnapshotTime(args[0])
			if err != nil {
				return err
			}

			if output == "" {
				output = at.Format("2006-01-02T15-04-05Z") + ".jsonl.zst"
			}

			st, err := store.OpenSQLite(cfg.Store.Path, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			n, err := export.New(st, logger).Export(cmd.Context(), at, output)
			if err != nil {
				return err
			}

			fmt.Printf("exported %d records to %s\n", n, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: <snapshot-time>.jsonl.zst)")

	return cmd
}
