//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package clean implements the cleaning stage: every raw entity is
// normalized into a table with a fixed, pipeline-internal column contract
// (lowercase names, typed values), independent of the raw extract's
// header naming and casing.
package clean

import (
	"fmt"
	"strings"
)

// Cast selects the typed conversion applied to a raw text column.
// All casts are lenient: malformed values become NULL, never an error.
type Cast int

const (
	CastText Cast = iota
	CastInt
	CastNumeric
	CastDate
	CastBool
)

// SQLType returns the column type used when the contract has to be
// materialized without a source table.
func (c Cast) SQLType() string {
	switch c {
	case CastInt:
		return "integer"
	case CastNumeric:
		return "numeric"
	case CastDate:
		return "date"
	case CastBool:
		return "boolean"
	default:
		return "text"
	}
}

// castExpr wraps a quoted raw column reference in the lenient cast helper.
func (c Cast) castExpr(ref string) string {
	switch c {
	case CastInt:
		return fmt.Sprintf("staging_clean.try_int(%s::text)", ref)
	case CastNumeric:
		return fmt.Sprintf("staging_clean.try_numeric(%s::text)", ref)
	case CastDate:
		return fmt.Sprintf("staging_clean.try_date(%s::text)", ref)
	case CastBool:
		return fmt.Sprintf("staging_clean.try_bool(%s::text)", ref)
	default:
		return fmt.Sprintf("%s::text", ref)
	}
}

// Normalize selects the string normalization applied after the cast.
// Join-key strings must be trimmed and case-normalized before any join;
// joins on inconsistent case silently lose rows.
type Normalize int

const (
	NormNone Normalize = iota
	NormTrim
	NormTitle
	NormUpper
)

func (n Normalize) apply(expr string) string {
	switch n {
	case NormTrim:
		return fmt.Sprintf("btrim(%s)", expr)
	case NormTitle:
		return fmt.Sprintf("initcap(btrim(%s))", expr)
	case NormUpper:
		return fmt.Sprintf("upper(btrim(%s))", expr)
	default:
		return expr
	}
}

// Column is one entry in an entity's cleaned column contract.
type Column struct {
	// Name is the canonical lowercase column name.
	Name string

	// Aliases are raw headers accepted for this column, matched
	// case-insensitively. The canonical name always matches.
	Aliases []string

	// Cast is the typed conversion applied to the raw value.
	Cast Cast

	// Normalize is applied to text values after the cast.
	Normalize Normalize

	// Fallback replaces NULL after the cast (e.g. "0" for counts,
	// "0.0" for monetary values). Empty means NULL is kept.
	Fallback string
}

// Entity binds a raw source table to its cleaned column contract.
type Entity struct {
	// Name is the cleaned table name in staging_clean.
	Name string

	// RawTable is the source table name in staging.
	RawTable string

	// Columns is the fixed column contract, in output order.
	Columns []Column
}

// quoteIdent quotes a raw identifier, which may carry arbitrary casing.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// lowerTrim folds a header for case-insensitive matching. CSV headers
// occasionally carry stray whitespace or a UTF-8 BOM.
func lowerTrim(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	return strings.ToLower(strings.TrimSpace(s))
}

// resolve finds the raw column matching the contract column, trying the
// canonical name first and then each alias, all case-insensitively.
// rawCols maps lowercased header names to their actual spelling.
func (c Column) resolve(rawCols map[string]string) (string, bool) {
	if actual, ok := rawCols[lowerTrim(c.Name)]; ok {
		return actual, true
	}
	for _, a := range c.Aliases {
		if actual, ok := rawCols[lowerTrim(a)]; ok {
			return actual, true
		}
	}
	return "", false
}

// SelectExpr builds the SELECT expression for this column against the
// resolved raw columns. A missing optional column degrades to its
// fallback (or NULL), typed to the contract.
func (c Column) SelectExpr(rawCols map[string]string) string {
	actual, ok := c.resolve(rawCols)
	if !ok {
		missing := c.Fallback
		if missing == "" {
			missing = "NULL"
		}
		return fmt.Sprintf("%s::%s AS %s", missing, c.Cast.SQLType(), c.Name)
	}

	expr := c.Cast.castExpr(quoteIdent(actual))
	expr = c.Normalize.apply(expr)
	if c.Fallback != "" {
		expr = fmt.Sprintf("COALESCE(%s, %s)", expr, c.Fallback)
	}
	return fmt.Sprintf("%s AS %s", expr, c.Name)
}

// SelectList builds the full SELECT list for the entity.
func (e Entity) SelectList(rawCols map[string]string) string {
	exprs := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		exprs[i] = c.SelectExpr(rawCols)
	}
	return strings.Join(exprs, ",\n    ")
}

// EmptyTableDDL builds the typed column list used to materialize the
// contract when the raw source table is absent.
func (e Entity) EmptyTableDDL() string {
	defs := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		defs[i] = fmt.Sprintf("%s %s", c.Name, c.Cast.SQLType())
	}
	return strings.Join(defs, ", ")
}

// Entities is the full set of cleaned entity contracts, in run order.
// Reference entities come first so their cleaned tables exist before the
// dimension builder joins against them.
var Entities = []Entity{
	{
		Name:     "countries",
		RawTable: "countries_raw",
		Columns: []Column{
			{Name: "countryid", Aliases: []string{"CountryID", "country_id"}, Cast: CastInt},
			{Name: "countryname", Aliases: []string{"CountryName", "country_name"}, Cast: CastText, Normalize: NormTrim},
		},
	},
	{
		Name:     "cities",
		RawTable: "cities_raw",
		Columns: []Column{
			{Name: "cityid_oltp", Aliases: []string{"CityID", "city_id"}, Cast: CastInt},
			{Name: "cityname", Aliases: []string{"CityName", "city_name", "city"}, Cast: CastText, Normalize: NormTitle},
			{Name: "countryid", Aliases: []string{"CountryID", "country_id"}, Cast: CastInt},
		},
	},
	{
		Name:     "categories",
		RawTable: "categories_raw",
		Columns: []Column{
			{Name: "categoryid", Aliases: []string{"CategoryID", "category_id"}, Cast: CastInt},
			{Name: "categoryname", Aliases: []string{"CategoryName", "category_name"}, Cast: CastText, Normalize: NormTrim},
		},
	},
	{
		Name:     "products",
		RawTable: "products_raw",
		Columns: []Column{
			{Name: "productid_oltp", Aliases: []string{"ProductID", "product_id"}, Cast: CastInt},
			{Name: "productname", Aliases: []string{"ProductName", "product_name"}, Cast: CastText, Normalize: NormTrim},
			{Name: "price", Aliases: []string{"Price"}, Cast: CastNumeric, Fallback: "0.0"},
			{Name: "categoryid", Aliases: []string{"CategoryID", "category_id"}, Cast: CastInt},
			{Name: "class", Aliases: []string{"Class"}, Cast: CastText, Normalize: NormTrim},
			{Name: "isallergic", Aliases: []string{"IsAllergic", "is_allergic"}, Cast: CastBool},
		},
	},
	{
		Name:     "customers",
		RawTable: "customers_raw",
		Columns: []Column{
			{Name: "customerid_oltp", Aliases: []string{"CustomerID", "customer_id"}, Cast: CastInt},
			{Name: "firstname", Aliases: []string{"FirstName", "first_name"}, Cast: CastText, Normalize: NormTrim, Fallback: "''"},
			{Name: "lastname", Aliases: []string{"LastName", "last_name"}, Cast: CastText, Normalize: NormTrim, Fallback: "''"},
			{Name: "address", Aliases: []string{"Address"}, Cast: CastText, Normalize: NormTrim},
			{Name: "cityid", Aliases: []string{"CityID", "city_id"}, Cast: CastInt},
		},
	},
	{
		Name:     "employees",
		RawTable: "employees_raw",
		Columns: []Column{
			{Name: "employeeid_oltp", Aliases: []string{"EmployeeID", "employee_id"}, Cast: CastInt},
			{Name: "firstname", Aliases: []string{"FirstName", "first_name"}, Cast: CastText, Normalize: NormTrim, Fallback: "''"},
			{Name: "lastname", Aliases: []string{"LastName", "last_name"}, Cast: CastText, Normalize: NormTrim, Fallback: "''"},
			{Name: "gender", Aliases: []string{"Gender"}, Cast: CastText, Normalize: NormUpper},
			{Name: "hiredate", Aliases: []string{"HireDate", "hire_date"}, Cast: CastDate},
		},
	},
	{
		Name:     "weather",
		RawTable: "weather_raw",
		Columns: []Column{
			{Name: "cityname", Aliases: []string{"CityName", "city_name", "city"}, Cast: CastText, Normalize: NormTitle},
			{Name: "obsdate", Aliases: []string{"time", "date"}, Cast: CastDate},
			{Name: "temperature_c", Aliases: []string{"temperature_2m_max"}, Cast: CastNumeric},
			{Name: "feelslike_c", Aliases: []string{"apparent_temperature_max"}, Cast: CastNumeric},
			{Name: "wind_kph", Aliases: []string{"windspeed_10m_max"}, Cast: CastNumeric},
			{Name: "precip_mm", Aliases: []string{"precipitation_sum"}, Cast: CastNumeric},
			{Name: "isday", Aliases: []string{"is_day"}, Cast: CastBool},
		},
	},
	{
		Name:     "holidays",
		RawTable: "holidays_raw",
		Columns: []Column{
			{Name: "holidaydate", Aliases: []string{"date"}, Cast: CastDate},
			{Name: "holidayname", Aliases: []string{"name", "localName"}, Cast: CastText, Normalize: NormTrim},
		},
	},
	{
		Name:     "sales",
		RawTable: "sales_raw",
		Columns: []Column{
			{Name: "salesdate", Aliases: []string{"SalesDate", "sales_date"}, Cast: CastDate},
			{Name: "productid", Aliases: []string{"ProductID", "product_id"}, Cast: CastInt},
			{Name: "customerid", Aliases: []string{"CustomerID", "customer_id"}, Cast: CastInt},
			{Name: "salespersonid", Aliases: []string{"SalesPersonID", "salesperson_id", "EmployeeID"}, Cast: CastInt},
			{Name: "quantity", Aliases: []string{"Quantity"}, Cast: CastInt, Fallback: "0"},
			{Name: "totalprice", Aliases: []string{"TotalPrice", "total_price"}, Cast: CastNumeric, Fallback: "0.0"},
			{Name: "discount", Aliases: []string{"Discount"}, Cast: CastNumeric, Fallback: "0.0"},
		},
	},
}
