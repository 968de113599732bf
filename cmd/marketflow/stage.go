package main

import (
	"fmt"

	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/stager"

	"github.com/spf13/cobra"
)

func stageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Standardize a raw table into the staged zone",
		Long: `Apply an entity's declarative column map to its raw table: rename,
coerce types, repair encodings, deduplicate, and stamp staging metadata.
Business metrics are never computed here.`,
		RunE: runStage,
	}

	cmd.Flags().String("platform", "", "platform code the raw table was imported under")
	cmd.Flags().String("entity", "", "entity name")
	cmd.Flags().String("map", "", "column map file (default: <column_map_dir>/<entity>.yaml)")

	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}

func runStage(cmd *cobra.Command, _ []string) error {
	cfg, zones, err := openZones()
	if err != nil {
		return err
	}
	defer func() { _ = zones.Close() }()

	platform, _ := cmd.Flags().GetString("platform")
	entity, _ := cmd.Flags().GetString("entity")
	mapPath, _ := cmd.Flags().GetString("map")

	m, err := loadColumnMap(cfg, entity, mapPath)
	if err != nil {
		return err
	}

	s := stager.New(zones, version)
	result, err := s.Stage(cmd.Context(), model.RawTableName(platform, entity), m)
	if err != nil {
		return err
	}

	fmt.Printf("staged %s (%d → %d rows)\n", result.Table, result.RowsIn, result.RowsOut)
	for _, w := range result.Warnings {
		fmt.Println("  warning:", w)
	}
	return nil
}
