//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package extract loads raw source data into the staging schema: CSV
// extracts verbatim as all-text tables, and the public-holiday feed as
// JSON rows. No typing or normalization happens here; that is the
// cleaning stage's job.
package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salespipe/salespipe/internal/logging"
)

// Source binds a CSV extract file to its raw staging table.
type Source struct {
	File  string
	Table string
}

// Sources lists the expected CSV extracts. A missing file is logged and
// skipped; the cleaning stage materializes the contract empty instead.
var Sources = []Source{
	{File: "countries.csv", Table: "countries_raw"},
	{File: "cities.csv", Table: "cities_raw"},
	{File: "categories.csv", Table: "categories_raw"},
	{File: "products.csv", Table: "products_raw"},
	{File: "customers.csv", Table: "customers_raw"},
	{File: "employees.csv", Table: "employees_raw"},
	{File: "weather.csv", Table: "weather_raw"},
	{File: "sales.csv", Table: "sales_raw"},
}

// ClearStaging drops and recreates the staging schema. Used for a full
// re-extract when leftover raw tables from a previous run must not
// survive into this one.
func ClearStaging(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        DROP SCHEMA IF EXISTS staging CASCADE;
        CREATE SCHEMA staging;
    `)
	if err != nil {
		return fmt.Errorf("failed to clear staging schema: %w", err)
	}
	logging.Info().Msg("Cleared staging schema")
	return nil
}

// LoadCSVs loads every expected CSV extract from dataDir into staging.
// Each table is rebuilt from scratch; rows are copied in batches of
// batchSize to bound peak memory on large sales extracts.
func LoadCSVs(ctx context.Context, pool *pgxpool.Pool, dataDir string, batchSize int) error {
	for _, s := range Sources {
		path := filepath.Join(dataDir, s.File)
		if err := loadCSV(ctx, pool, path, s.Table, batchSize); err != nil {
			return fmt.Errorf("loading %s: %w", s.File, err)
		}
	}
	return nil
}

// loadCSV loads one CSV file into an all-text staging table whose
// columns carry the file's header names verbatim.
func loadCSV(ctx context.Context, pool *pgxpool.Pool, path, table string, batchSize int) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Warn().
				Str("file", path).
				Str("table", table).
				Msg("Extract file not found, skipping")
			return nil
		}
		return fmt.Errorf("failed to open extract: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	// Raw extracts are occasionally ragged; short rows are padded with
	// empty strings, long rows truncated to the header width.
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			logging.Warn().Str("file", path).Msg("Extract file is empty, skipping")
			return nil
		}
		return fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\uFEFF"))
	}

	if err := createRawTable(ctx, pool, table, header); err != nil {
		return err
	}

	ident := pgx.Identifier{"staging", table}
	var total int64
	batch := make([][]any, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := pool.CopyFrom(ctx, ident, header, pgx.CopyFromRows(batch))
		if err != nil {
			return fmt.Errorf("failed to copy batch into staging.%s: %w", table, err)
		}
		total += n
		batch = batch[:0]
		return nil
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}

		row := make([]any, len(header))
		for i := range header {
			if i < len(record) {
				row[i] = record[i]
			} else {
				row[i] = ""
			}
		}
		batch = append(batch, row)

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	logging.Info().
		Str("table", table).
		Int64("rows", total).
		Msg("Loaded extract")
	return nil
}

// createRawTable rebuilds one all-text raw table with the header names
// as column names, casing preserved.
func createRawTable(ctx context.Context, pool *pgxpool.Pool, table string, header []string) error {
	defs := make([]string, len(header))
	for i, h := range header {
		defs[i] = quoteIdent(h) + " TEXT"
	}

	_, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS staging.%s", table))
	if err != nil {
		return fmt.Errorf("failed to drop previous raw table: %w", err)
	}
	_, err = pool.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE staging.%s (%s)", table, strings.Join(defs, ", ")))
	if err != nil {
		return fmt.Errorf("failed to create raw table: %w", err)
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
