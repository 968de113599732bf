package main

import (
	"fmt"

	"github.com/marketflow/marketflow/internal/export"
	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/zone"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the combined predictor table to Google Sheets",
		RunE:  runExport,
	}

	cmd.Flags().String("table", model.TableName("predictors", "combined"), "app-zone table to export")
	cmd.Flags().String("spreadsheet-id", "", "existing spreadsheet id (created when empty)")
	cmd.Flags().String("service-account", "", "service account key file path")

	_ = viper.BindPFlag("export.spreadsheet_id", cmd.Flags().Lookup("spreadsheet-id"))
	_ = viper.BindPFlag("export.service_account", cmd.Flags().Lookup("service-account"))

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	_, zones, err := openZones()
	if err != nil {
		return err
	}
	defer func() { _ = zones.Close() }()

	tableName, _ := cmd.Flags().GetString("table")
	table, err := zones.Read(cmd.Context(), zone.App, tableName)
	if err != nil {
		return fmt.Errorf("failed to read %s from app zone: %w", tableName, err)
	}

	cfg := export.DefaultSheetsConfig()
	cfg.SpreadsheetID = viper.GetString("export.spreadsheet_id")
	cfg.ServiceAccountPath = viper.GetString("export.service_account")
	cfg.ClientID = viper.GetString("export.client_id")
	cfg.ClientSecret = viper.GetString("export.client_secret")
	cfg.RefreshToken = viper.GetString("export.refresh_token")

	writer, err := export.NewSheetsWriter(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if err := writer.Write(cmd.Context(), table); err != nil {
		return err
	}

	fmt.Printf("exported %s (%d rows)\n", table.Name, table.NumRows())
	return nil
}
