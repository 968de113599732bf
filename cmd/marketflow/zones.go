package main

import (
	"fmt"

	"github.com/marketflow/marketflow/internal/zone"

	"github.com/spf13/cobra"
)

func zonesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Inspect the storage zones",
	}
	cmd.AddCommand(zonesListCmd())
	return cmd
}

func zonesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [zone]",
		Short: "List tables per zone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, zones, err := openZones()
			if err != nil {
				return err
			}
			defer func() { _ = zones.Close() }()

			names := zone.Names()
			if len(args) == 1 {
				names = []string{args[0]}
			}

			for _, z := range names {
				tables, err := zones.List(cmd.Context(), z)
				if err != nil {
					return err
				}
				fmt.Printf("%s (%d tables)\n", z, len(tables))
				for _, t := range tables {
					fmt.Println("  " + t)
				}
			}
			return nil
		},
	}
}
