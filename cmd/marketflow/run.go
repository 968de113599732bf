package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/marketflow/marketflow/internal/classify"
	"github.com/marketflow/marketflow/internal/derive"
	"github.com/marketflow/marketflow/internal/joiner"
	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/report"
	"github.com/marketflow/marketflow/internal/stager"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run stage, transform, and derive in phase order",
		Long: `Sequence the pipeline over already-imported raw tables: stage the order
headers and line items, resolve the composite-key join, and derive every
configured segment. The run aborts between phases on interrupt; partially
written tables are never valid inputs downstream (rerun rather than resume).

Every run ends with a structured summary, regardless of partial failure.`,
		RunE: runPipeline,
	}

	cmd.Flags().String("platform", "", "platform code the raw tables were imported under")
	cmd.Flags().Int("workers", runtime.GOMAXPROCS(0), "segment worker pool size")

	// The composite-key flags mirror the transform command.
	cmd.Flags().String("headers", "orders", "header entity name")
	cmd.Flags().String("details", "order_items", "line-item entity name")
	cmd.Flags().String("entity", "sales", "output entity name")
	cmd.Flags().String("order-column", "order_number", "shared order number column")
	cmd.Flags().String("owner-column", "owner_id", "owner identifier column on headers")
	cmd.Flags().String("owner-copy-column", "owner_id_copy", "denormalized owner copy column on line items")
	cmd.Flags().String("line-column", "line_number", "line number column on line items")
	cmd.Flags().String("quantity-column", "quantity", "quantity column on line items")
	cmd.Flags().String("price-column", "unit_price", "unit price column on line items")
	cmd.Flags().String("date-column", "order_date", "order date column on headers")

	_ = cmd.MarkFlagRequired("platform")

	return cmd
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, zones, err := openZones()
	if err != nil {
		return err
	}
	defer func() { _ = zones.Close() }()

	ctx := cmd.Context()
	platform, _ := cmd.Flags().GetString("platform")
	headers, _ := cmd.Flags().GetString("headers")
	details, _ := cmd.Flags().GetString("details")
	workers, _ := cmd.Flags().GetInt("workers")

	summary := &report.RunSummary{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}

	// Stage both entities. A failed entity aborts only its own staging.
	s := stager.New(zones, version)
	stagePhase := report.PhaseSummary{Phase: model.PhaseStage}
	for _, entity := range []string{headers, details} {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, mapErr := loadColumnMap(cfg, entity, "")
		if mapErr != nil {
			stagePhase.Results = append(stagePhase.Results, model.Failed(entity, mapErr.Error()))
			continue
		}
		result, _ := s.Stage(ctx, model.RawTableName(platform, entity), m)
		stagePhase.Results = append(stagePhase.Results, result)
	}
	summary.Phases = append(summary.Phases, stagePhase)

	// Transform. A failed join produces no transformed table at all.
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := transformOptions(cmd)
	opts.MinMatchRate = cfg.Thresholds.MinMatchRate
	j := joiner.New(zones)
	joinResult, _, joinErr := j.Join(ctx,
		model.TableName(headers, "staged"),
		model.TableName(details, "staged"),
		opts)
	summary.Phases = append(summary.Phases, report.PhaseSummary{
		Phase:   model.PhaseTransform,
		Results: []model.Result{joinResult},
	})

	// Derive only when the transform produced output.
	if joinResult.OK() {
		if err := ctx.Err(); err != nil {
			return err
		}
		engine := derive.New(zones, classify.DefaultPolicy(), cfg.Thresholds, workers)
		outcomes, deriveErr := engine.Run(ctx, cfg.Segments)
		derivePhase := report.PhaseSummary{Phase: model.PhaseDerive}
		for _, out := range outcomes {
			derivePhase.Results = append(derivePhase.Results, out.Result)
		}
		summary.Phases = append(summary.Phases, derivePhase)
		if deriveErr != nil {
			joinErr = deriveErr
		}
	}

	summary.Elapsed = time.Since(summary.Started)
	fmt.Println(summary.Render())

	if summary.Failed() || joinErr != nil {
		return fmt.Errorf("pipeline run %s completed with failures", summary.RunID)
	}
	return nil
}
