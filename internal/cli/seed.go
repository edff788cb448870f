package cli

import (
	"github.com/spf13/cobra"

	"github.com/salespipe/salespipe/internal/datagen"
)

var (
	seedOutDir    string
	seedSalesRows int
	seedRandom    uint64
	seedYear      int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate demo CSV extracts",
	Long: `Generate a consistent set of demo CSV extracts shaped like the real
OLTP exports, dirty edges included: mixed-case headers, inconsistent
city-name casing in the weather feed and a share of zeroed sale totals.

Example:
  salespipe seed --out ./data/raw --sales-rows 100000 --seed 42`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedOutDir, "out", "",
		"output directory for the generated CSV files")
	seedCmd.Flags().IntVar(&seedSalesRows, "sales-rows", 0,
		"number of sales transactions to generate")
	seedCmd.Flags().Uint64Var(&seedRandom, "seed", 0,
		"random seed for reproducible generation (0 = random)")
	seedCmd.Flags().IntVar(&seedYear, "year", 0,
		"calendar year the generated sales fall into")
}

func runSeed(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if seedOutDir != "" {
		cfg.Seed.OutDir = seedOutDir
	}
	if seedSalesRows > 0 {
		cfg.Seed.SalesRows = seedSalesRows
	}
	if seedRandom != 0 {
		cfg.Seed.RandomSeed = seedRandom
	}
	if seedYear > 0 {
		cfg.Pipeline.Year = seedYear
	}

	if err := cfg.ValidateSeed(); err != nil {
		return err
	}

	var faker *datagen.Faker
	if cfg.Seed.RandomSeed != 0 {
		faker = datagen.NewFakerWithSeed(cfg.Seed.RandomSeed)
	} else {
		faker = datagen.NewFaker()
	}

	seeder := datagen.NewSeeder(faker)
	return seeder.WriteAll(cfg.Seed.OutDir, cfg.Pipeline.Year, cfg.Seed.SalesRows)
}
