package main

import (
	"fmt"

	"github.com/marketflow/marketflow/internal/joiner"
	"github.com/marketflow/marketflow/internal/model"

	"github.com/spf13/cobra"
)

func transformCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Resolve order headers and line items into the transformed zone",
		Long: `Join the staged order headers and line items on their two-part composite
key (order number plus owner identifier) and materialize the transaction-level
sales table. Integrity checks run before the join; a disjoint owner-id domain
fails the run without producing output.`,
		RunE: runTransform,
	}

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

	return cmd
}

func runTransform(cmd *cobra.Command, _ []string) error {
	cfg, zones, err := openZones()
	if err != nil {
		return err
	}
	defer func() { _ = zones.Close() }()

	opts := transformOptions(cmd)
	opts.MinMatchRate = cfg.Thresholds.MinMatchRate

	headers, _ := cmd.Flags().GetString("headers")
	details, _ := cmd.Flags().GetString("details")

	j := joiner.New(zones)
	result, stats, err := j.Join(cmd.Context(),
		model.TableName(headers, "staged"),
		model.TableName(details, "staged"),
		opts)
	if err != nil {
		return err
	}

	fmt.Printf("transformed %s (%d of %d line items matched, rate %.2f)\n",
		result.Table, stats.MatchedRows, stats.DetailRows, stats.MatchRate)
	for _, w := range result.Warnings {
		fmt.Println("  warning:", w)
	}
	return nil
}

func transformOptions(cmd *cobra.Command) joiner.Options {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return joiner.Options{
		Entity: get("entity"),
		Keys: joiner.Keys{
			OrderNumber: get("order-column"),
			HeaderOwner: get("owner-column"),
			DetailOwner: get("owner-copy-column"),
		},
		LineNumber: get("line-column"),
		Quantity:   get("quantity-column"),
		UnitPrice:  get("price-column"),
		OrderDate:  get("date-column"),
	}
}
