//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queryer is satisfied by both *pgxpool.Pool and pgx.Tx, so pipeline
// stages can run against the pool directly or inside a transaction.
type Queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// The pipeline owns three namespaces:
//
//	staging       - raw source tables, loaded verbatim from the extracts
//	staging_clean - cleaned tables plus the staged dimensions and fact
//	dwh           - the published warehouse, the only externally read layer
const createSchemasSQL = `
CREATE SCHEMA IF NOT EXISTS staging;
CREATE SCHEMA IF NOT EXISTS staging_clean;
CREATE SCHEMA IF NOT EXISTS dwh;
`

// Lenient cast helpers. Raw extracts carry malformed dates and numbers;
// the cleaning stage coerces them to NULL instead of failing the run.
const createCastHelpersSQL = `
CREATE OR REPLACE FUNCTION staging_clean.try_date(v text) RETURNS date AS $$
BEGIN
    RETURN v::date;
EXCEPTION WHEN others THEN
    RETURN NULL;
END;
$$ LANGUAGE plpgsql IMMUTABLE;

CREATE OR REPLACE FUNCTION staging_clean.try_numeric(v text) RETURNS numeric AS $$
BEGIN
    RETURN v::numeric;
EXCEPTION WHEN others THEN
    RETURN NULL;
END;
$$ LANGUAGE plpgsql IMMUTABLE;

CREATE OR REPLACE FUNCTION staging_clean.try_int(v text) RETURNS integer AS $$
BEGIN
    RETURN v::integer;
EXCEPTION WHEN others THEN
    BEGIN
        RETURN round(v::numeric)::integer;
    EXCEPTION WHEN others THEN
        RETURN NULL;
    END;
END;
$$ LANGUAGE plpgsql IMMUTABLE;

CREATE OR REPLACE FUNCTION staging_clean.try_bool(v text) RETURNS boolean AS $$
BEGIN
    RETURN v::boolean;
EXCEPTION WHEN others THEN
    RETURN NULL;
END;
$$ LANGUAGE plpgsql IMMUTABLE;
`

// Warehouse DDL. Surrogate keys are assigned by the dimension builder,
// not by sequences, so reruns reproduce identical keys.
const createWarehouseSQL = `
CREATE TABLE IF NOT EXISTS dwh.dimdate (
    dateid      INTEGER PRIMARY KEY,
    fulldate    DATE NOT NULL,
    day         INTEGER NOT NULL,
    month       INTEGER NOT NULL,
    monthname   VARCHAR(16) NOT NULL,
    quarter     INTEGER NOT NULL,
    year        INTEGER NOT NULL,
    dayofweek   VARCHAR(16) NOT NULL,
    isholiday   BOOLEAN NOT NULL DEFAULT FALSE,
    holidayname TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dwh.dimlocation (
    locationid  INTEGER PRIMARY KEY,
    cityid_oltp INTEGER NOT NULL,
    cityname    TEXT,
    countryname TEXT
);

CREATE TABLE IF NOT EXISTS dwh.dimproduct (
    productid      INTEGER PRIMARY KEY,
    productid_oltp INTEGER NOT NULL,
    productname    TEXT,
    price          NUMERIC(10,2) NOT NULL DEFAULT 0,
    categoryname   TEXT,
    class          TEXT,
    isallergic     BOOLEAN
);

CREATE TABLE IF NOT EXISTS dwh.dimcustomer (
    customerid          INTEGER PRIMARY KEY,
    customerid_oltp     INTEGER NOT NULL,
    customername        TEXT,
    address             TEXT,
    customercityname    TEXT,
    customercountryname TEXT
);

CREATE TABLE IF NOT EXISTS dwh.dimemployee (
    employeeid      INTEGER PRIMARY KEY,
    employeeid_oltp INTEGER NOT NULL,
    employeename    TEXT,
    gender          TEXT,
    hiredate        DATE
);

CREATE TABLE IF NOT EXISTS dwh.dimweather (
    weatherid     INTEGER PRIMARY KEY,
    temperature_c NUMERIC(6,2),
    feelslike_c   NUMERIC(6,2),
    wind_kph      NUMERIC(6,2),
    precip_mm     NUMERIC(6,2),
    isday         BOOLEAN,
    dateid        INTEGER REFERENCES dwh.dimdate(dateid),
    locationid    INTEGER REFERENCES dwh.dimlocation(locationid)
);

CREATE TABLE IF NOT EXISTS dwh.factsales (
    dateid     INTEGER REFERENCES dwh.dimdate(dateid),
    weatherid  INTEGER REFERENCES dwh.dimweather(weatherid),
    productid  INTEGER REFERENCES dwh.dimproduct(productid),
    customerid INTEGER REFERENCES dwh.dimcustomer(customerid),
    employeeid INTEGER REFERENCES dwh.dimemployee(employeeid),
    locationid INTEGER REFERENCES dwh.dimlocation(locationid),
    quantity   INTEGER NOT NULL DEFAULT 0,
    totalprice NUMERIC(10,2) NOT NULL DEFAULT 0,
    discount   NUMERIC(10,2) NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_factsales_dateid ON dwh.factsales(dateid);
CREATE INDEX IF NOT EXISTS idx_factsales_productid ON dwh.factsales(productid);
CREATE INDEX IF NOT EXISTS idx_factsales_customerid ON dwh.factsales(customerid);
`

const dropAllSQL = `
DROP SCHEMA IF EXISTS staging CASCADE;
DROP SCHEMA IF EXISTS staging_clean CASCADE;
DROP SCHEMA IF EXISTS dwh CASCADE;
DROP TABLE IF EXISTS salespipe_metadata;
`

// WarehouseTables lists the published tables in publish/validation order:
// dimensions referenced by others come first, the fact table last.
var WarehouseTables = []string{
	"dimdate",
	"dimlocation",
	"dimproduct",
	"dimcustomer",
	"dimemployee",
	"dimweather",
	"factsales",
}

// EnsureSchema creates the three namespaces, the lenient cast helpers and
// the warehouse tables. Safe to run repeatedly.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, sql := range []string{createSchemasSQL, createCastHelpersSQL, createWarehouseSQL} {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return err
		}
	}
	return nil
}

// DropSchema drops all three namespaces and the metadata table.
func DropSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, dropAllSQL)
	return err
}
