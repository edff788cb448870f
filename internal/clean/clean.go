//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package clean

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salespipe/salespipe/internal/db"
	"github.com/salespipe/salespipe/internal/logging"
)

// Run rebuilds every cleaned table from its raw source inside a single
// transaction. Readers of staging_clean never observe a partially
// cleaned state.
func Run(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin cleaning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range Entities {
		if err := cleanEntity(ctx, tx, e); err != nil {
			return fmt.Errorf("cleaning %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cleaning transaction: %w", err)
	}

	logging.Info().Int("entities", len(Entities)).Msg("Cleaning stage complete")
	return nil
}

// cleanEntity drops and rebuilds one cleaned table. When the raw source
// table is absent, the contract is materialized empty so downstream
// stages still see every expected column.
func cleanEntity(ctx context.Context, q db.Queryer, e Entity) error {
	rawCols, err := rawColumns(ctx, q, e.RawTable)
	if err != nil {
		return fmt.Errorf("failed to inspect raw columns: %w", err)
	}

	if _, err := q.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS staging_clean.%s", e.Name)); err != nil {
		return fmt.Errorf("failed to drop previous cleaned table: %w", err)
	}

	if len(rawCols) == 0 {
		logging.Warn().
			Str("entity", e.Name).
			Str("raw_table", e.RawTable).
			Msg("Raw table absent, materializing empty cleaned table")
		_, err := q.Exec(ctx, fmt.Sprintf(
			"CREATE TABLE staging_clean.%s (%s)", e.Name, e.EmptyTableDDL()))
		if err != nil {
			return fmt.Errorf("failed to create empty cleaned table: %w", err)
		}
		return nil
	}

	sql := fmt.Sprintf("CREATE TABLE staging_clean.%s AS\nSELECT\n    %s\nFROM staging.%s",
		e.Name, e.SelectList(rawCols), e.RawTable)
	if _, err := q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to build cleaned table: %w", err)
	}

	var rows int64
	err = q.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM staging_clean.%s", e.Name)).Scan(&rows)
	if err != nil {
		return fmt.Errorf("failed to count cleaned rows: %w", err)
	}

	logging.Info().
		Str("entity", e.Name).
		Int64("rows", rows).
		Msg("Cleaned entity")
	return nil
}

// rawColumns returns the raw table's columns keyed by lowercased name.
// An empty map means the table does not exist.
func rawColumns(ctx context.Context, q db.Queryer, table string) (map[string]string, error) {
	rows, err := q.Query(ctx, `
        SELECT column_name
        FROM information_schema.columns
        WHERE table_schema = 'staging' AND table_name = $1
        ORDER BY ordinal_position
    `, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[lowerTrim(name)] = name
	}
	return cols, rows.Err()
}
