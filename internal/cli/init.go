package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/salespipe/salespipe/internal/db"
	"github.com/salespipe/salespipe/internal/logging"
)

var initDropExisting bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the warehouse schemas",
	Long: `Create the staging, staging_clean and dwh schemas, the lenient cast
helpers and the warehouse tables. Safe to run repeatedly; existing
tables are left alone unless --drop-existing is given.

Example:
  salespipe init --connection postgres://localhost/sales
  salespipe init --drop-existing`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop all pipeline schemas before initializing")
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if initDropExisting {
		logging.Warn().Msg("Dropping existing pipeline schemas")
		if err := db.DropSchema(ctx, pool); err != nil {
			return fmt.Errorf("failed to drop schemas: %w", err)
		}
	}

	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("failed to initialize schemas: %w", err)
	}

	logging.Info().Msg("Warehouse schemas initialized")
	return nil
}
