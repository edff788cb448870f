package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/salespipe/salespipe/internal/dashboard"
	"github.com/salespipe/salespipe/internal/db"
)

var reportCity string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print summary reports from the published warehouse",
	Long: `Query the published dwh schema and print revenue summaries by month,
category and city, plus the temperature breakdown where weather data
was matched.

Example:
  salespipe report
  salespipe report --city york`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportCity, "city", "",
		"only include cities whose name contains this substring")
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	byMonth, err := dashboard.SalesByMonth(ctx, pool)
	if err != nil {
		return err
	}
	cmd.Println("Revenue by month:")
	for _, m := range byMonth {
		cmd.Printf("  %-10s %14.2f  (%d items)\n", m.Name, m.Revenue, m.Quantity)
	}

	byCategory, err := dashboard.SalesByCategory(ctx, pool)
	if err != nil {
		return err
	}
	cmd.Println()
	cmd.Println("Revenue by category:")
	for _, c := range byCategory {
		cmd.Printf("  %-20s %14.2f  (%d items)\n", c.Category, c.Revenue, c.Quantity)
	}

	byCity, err := dashboard.SalesByCity(ctx, pool, reportCity)
	if err != nil {
		return err
	}
	cmd.Println()
	if reportCity != "" {
		cmd.Printf("Revenue by city (matching %q):\n", reportCity)
	} else {
		cmd.Println("Revenue by city:")
	}
	for _, c := range byCity {
		cmd.Printf("  %-24s %-16s %14.2f  (%d orders)\n", c.City, c.Country, c.Revenue, c.Orders)
	}

	byTemp, err := dashboard.TemperatureImpact(ctx, pool)
	if err != nil {
		return err
	}
	if len(byTemp) > 0 {
		cmd.Println()
		cmd.Println("Revenue by sale-day max temperature:")
		for _, t := range byTemp {
			cmd.Printf("  %6.0f C %14.2f  (%d orders)\n", t.TemperatureC, t.Revenue, t.Orders)
		}
	}

	return nil
}
