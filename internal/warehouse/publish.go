//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salespipe/salespipe/internal/db"
	"github.com/salespipe/salespipe/internal/logging"
)

// publishColumns pins the column order of every published table. The
// staged tables are created with the same order, but the insert is
// column-explicit so a drift fails loudly instead of scrambling data.
var publishColumns = map[string][]string{
	"dimdate":     {"dateid", "fulldate", "day", "month", "monthname", "quarter", "year", "dayofweek", "isholiday", "holidayname"},
	"dimlocation": {"locationid", "cityid_oltp", "cityname", "countryname"},
	"dimproduct":  {"productid", "productid_oltp", "productname", "price", "categoryname", "class", "isallergic"},
	"dimcustomer": {"customerid", "customerid_oltp", "customername", "address", "customercityname", "customercountryname"},
	"dimemployee": {"employeeid", "employeeid_oltp", "employeename", "gender", "hiredate"},
	"dimweather":  {"weatherid", "temperature_c", "feelslike_c", "wind_kph", "precip_mm", "isday", "dateid", "locationid"},
	"factsales":   {"dateid", "weatherid", "productid", "customerid", "employeeid", "locationid", "quantity", "totalprice", "discount"},
}

// Publish replaces the entire dwh schema content with the staged star
// schema in a single transaction. Readers see either the previous
// warehouse or the new one, never a mix. Returns the published fact
// row count.
func Publish(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin publish transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// One TRUNCATE covers all tables so the FK graph empties atomically.
	qualified := make([]string, len(db.WarehouseTables))
	for i, t := range db.WarehouseTables {
		qualified[i] = "dwh." + t
	}
	if _, err := tx.Exec(ctx, "TRUNCATE "+strings.Join(qualified, ", ")); err != nil {
		return 0, fmt.Errorf("failed to truncate warehouse: %w", err)
	}

	var factRows int64
	for _, t := range db.WarehouseTables {
		cols := strings.Join(publishColumns[t], ", ")
		tag, err := tx.Exec(ctx, fmt.Sprintf(
			"INSERT INTO dwh.%s (%s) SELECT %s FROM staging_clean.%s", t, cols, cols, t))
		if err != nil {
			return 0, fmt.Errorf("failed to publish %s: %w", t, err)
		}
		if t == "factsales" {
			factRows = tag.RowsAffected()
		}
		logging.Debug().
			Str("table", t).
			Int64("rows", tag.RowsAffected()).
			Msg("Published table")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit publish transaction: %w", err)
	}

	logging.Info().Int64("fact_rows", factRows).Msg("Published warehouse")

	verifyCounts(ctx, pool)
	return factRows, nil
}

// verifyCounts sweeps the published row counts after commit. An empty
// table or a count that drifted from its staged counterpart is worth an
// operator's attention but never rolls back the publish.
func verifyCounts(ctx context.Context, pool *pgxpool.Pool) {
	for _, t := range db.WarehouseTables {
		var staged, published int64
		err := pool.QueryRow(ctx, fmt.Sprintf(
			"SELECT (SELECT count(*) FROM staging_clean.%s), (SELECT count(*) FROM dwh.%s)", t, t)).
			Scan(&staged, &published)
		if err != nil {
			logging.Warn().Err(err).Str("table", t).Msg("Post-publish count check failed to run")
			continue
		}
		if published == 0 {
			logging.Warn().Str("table", t).Msg("Published table is empty")
		}
		if staged != published {
			logging.Error().
				Str("table", t).
				Int64("staged", staged).
				Int64("published", published).
				Msg("Post-publish row count mismatch")
		}
	}
}
