package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/salespipe/salespipe/internal/db"
	"github.com/salespipe/salespipe/internal/logging"
	"github.com/salespipe/salespipe/internal/pipeline"
	"github.com/salespipe/salespipe/internal/warehouse"
)

var (
	runDataDir      string
	runYear         int
	runCountry      string
	runBatchSize    int
	runPolicy       string
	runClearStaging bool
	runSkipExtract  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full ELT pipeline",
	Long: `Run one full pipeline pass: load the CSV extracts and the public
holiday feed into staging, clean them, build the star schema, validate
it through the quality gate and publish it into dwh.

The published warehouse only changes if every stage succeeds. A failed
quality gate leaves the staged tables in place for inspection.

Example:
  salespipe run --data-dir ./data/raw --year 2018 --country US
  salespipe run --skip-extract --totalprice-policy source`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "",
		"directory holding the raw CSV extracts")
	runCmd.Flags().IntVar(&runYear, "year", 0,
		"calendar year the warehouse covers")
	runCmd.Flags().StringVar(&runCountry, "country", "",
		"ISO 3166-1 alpha-2 country code for the holiday feed")
	runCmd.Flags().IntVar(&runBatchSize, "sales-batch-size", 0,
		"number of sales rows loaded per batch")
	runCmd.Flags().StringVar(&runPolicy, "totalprice-policy", "",
		"totalprice handling: recompute or source")
	runCmd.Flags().BoolVar(&runClearStaging, "clear-staging", false,
		"drop all staged raw tables before extracting")
	runCmd.Flags().BoolVar(&runSkipExtract, "skip-extract", false,
		"reuse staged raw tables instead of reloading the extracts")
}

func runRun(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if runDataDir != "" {
		cfg.Pipeline.DataDir = runDataDir
	}
	if runYear > 0 {
		cfg.Pipeline.Year = runYear
	}
	if runCountry != "" {
		cfg.Pipeline.CountryCode = runCountry
	}
	if runBatchSize > 0 {
		cfg.Pipeline.SalesBatchSize = runBatchSize
	}
	if runPolicy != "" {
		cfg.Pipeline.TotalPricePolicy = runPolicy
	}
	if runClearStaging {
		cfg.Pipeline.ClearStaging = true
	}
	if runSkipExtract {
		cfg.Pipeline.SkipExtract = true
	}

	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logging.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
	}()

	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	runner := pipeline.NewRunner(pool, cfg)
	if err := runner.Run(ctx); err != nil {
		var gateErr *warehouse.GateError
		if errors.As(err, &gateErr) {
			logging.Error().
				Int("violations", len(gateErr.Violations)).
				Msg("Publish blocked; staged tables kept for inspection")
		}
		return err
	}
	return nil
}
