package main

import (
	"fmt"
	"runtime"

	"github.com/marketflow/marketflow/internal/classify"
	"github.com/marketflow/marketflow/internal/derive"

	"github.com/spf13/cobra"
)

func deriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Fit per-segment count regressions and write predictor tables",
		Long: `Run the derivation engine over every configured segment: fit a Poisson
count regression, classify predictors, and write versioned predictor tables
to the app zone. A degenerate segment degrades to the empty-schema sentinel
without aborting its siblings.`,
		RunE: runDerive,
	}

	cmd.Flags().Int("workers", runtime.GOMAXPROCS(0), "segment worker pool size")

	return cmd
}

func runDerive(cmd *cobra.Command, _ []string) error {
	cfg, zones, err := openZones()
	if err != nil {
		return err
	}
	defer func() { _ = zones.Close() }()

	workers, _ := cmd.Flags().GetInt("workers")
	engine := derive.New(zones, classify.DefaultPolicy(), cfg.Thresholds, workers)

	outcomes, err := engine.Run(cmd.Context(), cfg.Segments)
	if err != nil {
		return err
	}

	for _, out := range outcomes {
		status := "ok"
		if out.Fallback {
			status = "fallback: " + out.Result.Reason
		}
		fmt.Printf("%-20s %-40s %d predictors (%s)\n",
			out.SegmentID, out.Table, len(out.Records), status)
	}
	return nil
}
