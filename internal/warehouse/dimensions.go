//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package warehouse builds the staged star schema from the cleaned
// entities, validates it through the quality gate, and publishes it
// atomically into the dwh schema.
//
// Surrogate keys are dense row numbers over a deterministic natural-key
// ordering, so two runs over the same input assign identical keys.
package warehouse

import (
	"context"
	"fmt"

	"github.com/salespipe/salespipe/internal/db"
	"github.com/salespipe/salespipe/internal/logging"
)

// buildDimDate materializes one row per calendar day of the target year,
// flagged with the public holidays. Multiple holidays on one date
// collapse into a single row with the names joined alphabetically.
// The year is validated by config before it reaches this statement.
func buildDimDate(ctx context.Context, q db.Queryer, year int) error {
	sql := fmt.Sprintf(`
CREATE TABLE staging_clean.dimdate AS
WITH days AS (
    SELECT d::date AS fulldate
    FROM generate_series('%d-01-01'::date, '%d-12-31'::date, interval '1 day') AS d
),
hol AS (
    SELECT holidaydate,
           string_agg(DISTINCT holidayname, ', ' ORDER BY holidayname) AS holidayname
    FROM staging_clean.holidays
    WHERE holidaydate IS NOT NULL AND holidayname IS NOT NULL AND holidayname <> ''
    GROUP BY holidaydate
)
SELECT
    to_char(days.fulldate, 'YYYYMMDD')::integer       AS dateid,
    days.fulldate                                     AS fulldate,
    EXTRACT(DAY FROM days.fulldate)::integer          AS day,
    EXTRACT(MONTH FROM days.fulldate)::integer        AS month,
    trim(to_char(days.fulldate, 'FMMonth'))           AS monthname,
    EXTRACT(QUARTER FROM days.fulldate)::integer      AS quarter,
    EXTRACT(YEAR FROM days.fulldate)::integer         AS year,
    trim(to_char(days.fulldate, 'FMDay'))             AS dayofweek,
    (hol.holidaydate IS NOT NULL)                     AS isholiday,
    COALESCE(hol.holidayname, '')                     AS holidayname
FROM days
LEFT JOIN hol ON hol.holidaydate = days.fulldate
ORDER BY days.fulldate`, year, year)

	return rebuild(ctx, q, "dimdate", sql)
}

// buildDimLocation flattens cities and their countries. Duplicate city
// ids in the extract collapse to one row; the attribute columns join
// the ordering so conflicting duplicates collapse the same way on
// every run.
func buildDimLocation(ctx context.Context, q db.Queryer) error {
	const sql = `
CREATE TABLE staging_clean.dimlocation AS
WITH src AS (
    SELECT DISTINCT ON (ci.cityid_oltp)
        ci.cityid_oltp,
        ci.cityname,
        co.countryname
    FROM staging_clean.cities ci
    LEFT JOIN staging_clean.countries co ON co.countryid = ci.countryid
    WHERE ci.cityid_oltp IS NOT NULL
    ORDER BY ci.cityid_oltp, ci.cityname, co.countryname
)
SELECT
    row_number() OVER (ORDER BY cityid_oltp)::integer AS locationid,
    cityid_oltp,
    cityname,
    countryname
FROM src`

	return rebuild(ctx, q, "dimlocation", sql)
}

// buildDimProduct flattens products and their categories.
func buildDimProduct(ctx context.Context, q db.Queryer) error {
	const sql = `
CREATE TABLE staging_clean.dimproduct AS
WITH src AS (
    SELECT DISTINCT ON (p.productid_oltp)
        p.productid_oltp,
        p.productname,
        round(COALESCE(p.price, 0), 2) AS price,
        c.categoryname,
        p.class,
        p.isallergic
    FROM staging_clean.products p
    LEFT JOIN staging_clean.categories c ON c.categoryid = p.categoryid
    WHERE p.productid_oltp IS NOT NULL
    ORDER BY p.productid_oltp, p.productname, p.price, c.categoryname, p.class, p.isallergic
)
SELECT
    row_number() OVER (ORDER BY productid_oltp)::integer AS productid,
    productid_oltp,
    productname,
    price,
    categoryname,
    class,
    isallergic
FROM src`

	return rebuild(ctx, q, "dimproduct", sql)
}

// buildDimCustomer flattens customers with their city and country. The
// composed name drops missing parts instead of leaving stray spaces.
func buildDimCustomer(ctx context.Context, q db.Queryer) error {
	const sql = `
CREATE TABLE staging_clean.dimcustomer AS
WITH src AS (
    SELECT DISTINCT ON (cu.customerid_oltp)
        cu.customerid_oltp,
        concat_ws(' ', nullif(cu.firstname, ''), nullif(cu.lastname, '')) AS customername,
        cu.address,
        ci.cityname    AS customercityname,
        co.countryname AS customercountryname
    FROM staging_clean.customers cu
    LEFT JOIN staging_clean.cities ci ON ci.cityid_oltp = cu.cityid
    LEFT JOIN staging_clean.countries co ON co.countryid = ci.countryid
    WHERE cu.customerid_oltp IS NOT NULL
    ORDER BY cu.customerid_oltp, cu.firstname, cu.lastname, cu.address, ci.cityname, co.countryname
)
SELECT
    row_number() OVER (ORDER BY customerid_oltp)::integer AS customerid,
    customerid_oltp,
    customername,
    address,
    customercityname,
    customercountryname
FROM src`

	return rebuild(ctx, q, "dimcustomer", sql)
}

// buildDimEmployee flattens employees.
func buildDimEmployee(ctx context.Context, q db.Queryer) error {
	const sql = `
CREATE TABLE staging_clean.dimemployee AS
WITH src AS (
    SELECT DISTINCT ON (e.employeeid_oltp)
        e.employeeid_oltp,
        concat_ws(' ', nullif(e.firstname, ''), nullif(e.lastname, '')) AS employeename,
        e.gender,
        e.hiredate
    FROM staging_clean.employees e
    WHERE e.employeeid_oltp IS NOT NULL
    ORDER BY e.employeeid_oltp, e.firstname, e.lastname, e.gender, e.hiredate
)
SELECT
    row_number() OVER (ORDER BY employeeid_oltp)::integer AS employeeid,
    employeeid_oltp,
    employeename,
    gender,
    hiredate
FROM src`

	return rebuild(ctx, q, "dimemployee", sql)
}

// buildDimWeather keys daily observations to the date and location
// dimensions. Observations for unknown dates or cities keep NULL keys
// rather than being dropped.
func buildDimWeather(ctx context.Context, q db.Queryer) error {
	const sql = `
CREATE TABLE staging_clean.dimweather AS
WITH src AS (
    SELECT DISTINCT ON (w.obsdate, w.cityname)
        w.obsdate,
        w.cityname,
        round(w.temperature_c, 2) AS temperature_c,
        round(w.feelslike_c, 2)   AS feelslike_c,
        round(w.wind_kph, 2)      AS wind_kph,
        round(w.precip_mm, 2)     AS precip_mm,
        w.isday
    FROM staging_clean.weather w
    WHERE w.obsdate IS NOT NULL
    ORDER BY w.obsdate, w.cityname, w.temperature_c, w.feelslike_c, w.wind_kph, w.precip_mm, w.isday
)
SELECT
    row_number() OVER (ORDER BY src.obsdate, src.cityname)::integer AS weatherid,
    src.temperature_c,
    src.feelslike_c,
    src.wind_kph,
    src.precip_mm,
    src.isday,
    d.dateid,
    l.locationid
FROM src
LEFT JOIN staging_clean.dimdate d ON d.fulldate = src.obsdate
LEFT JOIN staging_clean.dimlocation l ON l.cityname = src.cityname`

	return rebuild(ctx, q, "dimweather", sql)
}

// rebuild drops and recreates one staged table, logging its row count.
func rebuild(ctx context.Context, q db.Queryer, table, createSQL string) error {
	if _, err := q.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS staging_clean.%s", table)); err != nil {
		return fmt.Errorf("failed to drop staged %s: %w", table, err)
	}
	if _, err := q.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to build staged %s: %w", table, err)
	}

	var rows int64
	if err := q.QueryRow(ctx, fmt.Sprintf("SELECT count(*) FROM staging_clean.%s", table)).Scan(&rows); err != nil {
		return fmt.Errorf("failed to count staged %s: %w", table, err)
	}

	logging.Info().
		Str("table", table).
		Int64("rows", rows).
		Msg("Built staged table")
	return nil
}
