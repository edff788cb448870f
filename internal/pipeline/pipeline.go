//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline sequences the ELT stages: extract, clean, build,
// gate, publish. There is exactly one pipeline; behavior varies only
// through configuration.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salespipe/salespipe/internal/clean"
	"github.com/salespipe/salespipe/internal/config"
	"github.com/salespipe/salespipe/internal/db"
	"github.com/salespipe/salespipe/internal/extract"
	"github.com/salespipe/salespipe/internal/logging"
	"github.com/salespipe/salespipe/internal/warehouse"
)

// Runner executes the pipeline against an injected connection pool.
type Runner struct {
	pool *pgxpool.Pool
	cfg  *config.Config
}

// NewRunner creates a pipeline runner. The pool is owned by the caller.
func NewRunner(pool *pgxpool.Pool, cfg *config.Config) *Runner {
	return &Runner{pool: pool, cfg: cfg}
}

// Run executes one full pipeline run. The run is idempotent: every
// stage fully replaces its outputs, so rerunning over the same inputs
// reproduces the same warehouse, surrogate keys included.
//
// The published warehouse only changes inside the final publish
// transaction; any earlier failure leaves it as it was.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()
	pc := r.cfg.Pipeline

	if err := db.EnsureSchema(ctx, r.pool); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	if pc.SkipExtract {
		logging.Info().Msg("Skipping extraction, reusing staged raw tables")
	} else {
		if pc.ClearStaging {
			if err := extract.ClearStaging(ctx, r.pool); err != nil {
				return err
			}
		}
		if err := extract.LoadCSVs(ctx, r.pool, pc.DataDir, pc.SalesBatchSize); err != nil {
			return fmt.Errorf("extracting: %w", err)
		}
		if err := r.loadHolidays(ctx); err != nil {
			return err
		}
	}

	if err := clean.Run(ctx, r.pool); err != nil {
		return fmt.Errorf("cleaning: %w", err)
	}

	if err := warehouse.Build(ctx, r.pool, pc.Year, pc.TotalPricePolicy); err != nil {
		return fmt.Errorf("building star schema: %w", err)
	}

	if err := warehouse.RunGate(ctx, r.pool); err != nil {
		return err
	}

	factRows, err := warehouse.Publish(ctx, r.pool)
	if err != nil {
		return fmt.Errorf("publishing: %w", err)
	}

	if err := db.SaveRunMetadata(ctx, r.pool, pc.Year, factRows); err != nil {
		// The warehouse is already published; a metadata failure is
		// not worth failing the run over.
		logging.Warn().Err(err).Msg("Failed to save run metadata")
	}

	logging.Info().
		Int("year", pc.Year).
		Int64("fact_rows", factRows).
		Dur("elapsed", time.Since(start)).
		Msg("Pipeline run complete")
	return nil
}

// loadHolidays fetches the public-holiday feed and stages it. An
// unreachable feed degrades to a holiday-free calendar with a warning
// instead of failing the whole run.
func (r *Runner) loadHolidays(ctx context.Context) error {
	pc := r.cfg.Pipeline

	client := extract.NewHolidayClient(pc.HolidayFeedURL)
	holidays, err := client.Fetch(ctx, pc.Year, pc.CountryCode)
	if err != nil {
		logging.Warn().
			Err(err).
			Int("year", pc.Year).
			Str("country", pc.CountryCode).
			Msg("Holiday feed unavailable, continuing without holidays")
		holidays = nil
	}

	return extract.LoadHolidays(ctx, r.pool, holidays)
}
