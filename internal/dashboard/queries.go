//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package dashboard holds the reporting queries that read the published
// warehouse. Only dwh is queried here; the staging schemas are pipeline
// internals.
package dashboard

import (
	"context"
	"fmt"

	"github.com/salespipe/salespipe/internal/db"
)

// MonthSales is revenue and volume for one calendar month.
type MonthSales struct {
	Month    int
	Name     string
	Revenue  float64
	Quantity int64
}

// CategorySales is revenue for one product category.
type CategorySales struct {
	Category string
	Revenue  float64
	Quantity int64
}

// CitySales is revenue for one city.
type CitySales struct {
	City    string
	Country string
	Revenue float64
	Orders  int64
}

// TemperatureSales is revenue aggregated over a one-degree temperature
// band of the sale-day weather.
type TemperatureSales struct {
	TemperatureC float64
	Revenue      float64
	Orders       int64
}

// SalesByMonth returns monthly revenue and volume, in calendar order.
func SalesByMonth(ctx context.Context, q db.Queryer) ([]MonthSales, error) {
	rows, err := q.Query(ctx, `
        SELECT d.month, d.monthname,
               COALESCE(sum(f.totalprice), 0)::float8,
               COALESCE(sum(f.quantity), 0)::bigint
        FROM dwh.factsales f
        JOIN dwh.dimdate d ON d.dateid = f.dateid
        GROUP BY d.month, d.monthname
        ORDER BY d.month
    `)
	if err != nil {
		return nil, fmt.Errorf("sales by month query failed: %w", err)
	}
	defer rows.Close()

	var out []MonthSales
	for rows.Next() {
		var m MonthSales
		if err := rows.Scan(&m.Month, &m.Name, &m.Revenue, &m.Quantity); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SalesByCategory returns revenue per product category, largest first.
func SalesByCategory(ctx context.Context, q db.Queryer) ([]CategorySales, error) {
	rows, err := q.Query(ctx, `
        SELECT COALESCE(p.categoryname, 'Unknown'),
               COALESCE(sum(f.totalprice), 0)::float8,
               COALESCE(sum(f.quantity), 0)::bigint
        FROM dwh.factsales f
        LEFT JOIN dwh.dimproduct p ON p.productid = f.productid
        GROUP BY p.categoryname
        ORDER BY sum(f.totalprice) DESC NULLS LAST
    `)
	if err != nil {
		return nil, fmt.Errorf("sales by category query failed: %w", err)
	}
	defer rows.Close()

	var out []CategorySales
	for rows.Next() {
		var c CategorySales
		if err := rows.Scan(&c.Category, &c.Revenue, &c.Quantity); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SalesByCity returns revenue per city, largest first. cityFilter is an
// optional substring match on the city name; it is always passed as a
// bound parameter, never interpolated into the statement.
func SalesByCity(ctx context.Context, q db.Queryer, cityFilter string) ([]CitySales, error) {
	rows, err := q.Query(ctx, `
        SELECT l.cityname, COALESCE(l.countryname, 'Unknown'),
               COALESCE(sum(f.totalprice), 0)::float8,
               count(*)::bigint
        FROM dwh.factsales f
        JOIN dwh.dimlocation l ON l.locationid = f.locationid
        WHERE $1 = '' OR l.cityname ILIKE '%' || $1 || '%'
        GROUP BY l.cityname, l.countryname
        ORDER BY sum(f.totalprice) DESC
    `, cityFilter)
	if err != nil {
		return nil, fmt.Errorf("sales by city query failed: %w", err)
	}
	defer rows.Close()

	var out []CitySales
	for rows.Next() {
		var c CitySales
		if err := rows.Scan(&c.City, &c.Country, &c.Revenue, &c.Orders); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TemperatureImpact returns revenue grouped into one-degree bands of
// the sale-day maximum temperature. Sales without a matched weather
// observation are excluded.
func TemperatureImpact(ctx context.Context, q db.Queryer) ([]TemperatureSales, error) {
	rows, err := q.Query(ctx, `
        SELECT round(w.temperature_c)::float8,
               COALESCE(sum(f.totalprice), 0)::float8,
               count(*)::bigint
        FROM dwh.factsales f
        JOIN dwh.dimweather w ON w.weatherid = f.weatherid
        WHERE w.temperature_c IS NOT NULL
        GROUP BY round(w.temperature_c)
        ORDER BY round(w.temperature_c)
    `)
	if err != nil {
		return nil, fmt.Errorf("temperature impact query failed: %w", err)
	}
	defer rows.Close()

	var out []TemperatureSales
	for rows.Next() {
		var t TemperatureSales
		if err := rows.Scan(&t.TemperatureC, &t.Revenue, &t.Orders); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
