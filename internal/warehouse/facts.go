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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salespipe/salespipe/internal/config"
	"github.com/salespipe/salespipe/internal/db"
)

// totalPriceExpr returns the SELECT expression for the fact totalprice
// column under the given policy.
//
// Under the recompute policy a non-positive raw total is considered
// untrusted and replaced with quantity * unit price * (1 - discount);
// a positive raw total is kept. Under the source policy the raw total
// is always kept.
func totalPriceExpr(policy string) string {
	if policy == config.PolicySource {
		return "round(COALESCE(s.totalprice, 0), 2)"
	}
	return `CASE
        WHEN COALESCE(s.totalprice, 0) <= 0
        THEN round(COALESCE(s.quantity, 0) * COALESCE(p.price, 0) * (1 - COALESCE(s.discount, 0)), 2)
        ELSE round(s.totalprice, 2)
    END`
}

// buildFactSales joins the cleaned sales rows against every dimension.
// All joins are left joins: a sale that cannot be matched keeps NULL
// dimension keys and is surfaced by the quality gate, never dropped
// silently.
//
// The location of a sale is the customer's city; weather is matched on
// that location and the sale date.
func buildFactSales(ctx context.Context, q db.Queryer, policy string) error {
	sql := fmt.Sprintf(`
CREATE TABLE staging_clean.factsales AS
SELECT
    d.dateid,
    w.weatherid,
    p.productid,
    c.customerid,
    e.employeeid,
    l.locationid,
    COALESCE(s.quantity, 0)           AS quantity,
    %s                                AS totalprice,
    round(COALESCE(s.discount, 0), 2) AS discount
FROM staging_clean.sales s
LEFT JOIN staging_clean.dimdate d ON d.fulldate = s.salesdate
LEFT JOIN staging_clean.dimproduct p ON p.productid_oltp = s.productid
LEFT JOIN staging_clean.dimcustomer c ON c.customerid_oltp = s.customerid
LEFT JOIN staging_clean.dimemployee e ON e.employeeid_oltp = s.salespersonid
LEFT JOIN staging_clean.dimlocation l ON l.cityname = c.customercityname
LEFT JOIN staging_clean.dimweather w ON w.dateid = d.dateid AND w.locationid = l.locationid`,
		totalPriceExpr(policy))

	return rebuild(ctx, q, "factsales", sql)
}

// Build rebuilds the staged dimensions and fact table inside one
// transaction. The staged star schema is either fully rebuilt or left
// untouched.
func Build(ctx context.Context, pool *pgxpool.Pool, year int, policy string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin build transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := buildDimDate(ctx, tx, year); err != nil {
		return err
	}
	if err := buildDimLocation(ctx, tx); err != nil {
		return err
	}
	if err := buildDimProduct(ctx, tx); err != nil {
		return err
	}
	if err := buildDimCustomer(ctx, tx); err != nil {
		return err
	}
	if err := buildDimEmployee(ctx, tx); err != nil {
		return err
	}
	if err := buildDimWeather(ctx, tx); err != nil {
		return err
	}
	if err := buildFactSales(ctx, tx, policy); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit build transaction: %w", err)
	}
	return nil
}
