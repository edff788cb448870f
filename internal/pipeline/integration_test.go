//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

//go:build integration
// +build integration

// End-to-end tests for the pipeline.
// Run with: go test -tags=integration ./internal/pipeline/...
// Requires PostgreSQL to be available.
// Set SALESPIPE_TEST_CONN environment variable to override connection string.

package pipeline_test

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salespipe/salespipe/internal/config"
	"github.com/salespipe/salespipe/internal/datagen"
	"github.com/salespipe/salespipe/internal/db"
	"github.com/salespipe/salespipe/internal/pipeline"
	"github.com/salespipe/salespipe/internal/testutil"
	"github.com/salespipe/salespipe/internal/warehouse"
)

// holidayFeed serves a fixed holiday payload with two holidays sharing
// one date, which must collapse into a single calendar row.
func holidayFeed(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
            {"date": "2018-01-01", "localName": "New Year's Day", "name": "New Year's Day"},
            {"date": "2018-12-25", "localName": "Christmas Day", "name": "Christmas Day"},
            {"date": "2018-12-25", "localName": "Another Observance", "name": "Another Observance"}
        ]`))
	}))
}

func setupPipeline(t *testing.T, dataDir string) (context.Context, *pgxpool.Pool, *config.Config) {
	t.Helper()

	baseConnStr := testutil.SkipIfNoPostgres(t)
	testConnStr := testutil.CreateTestDB(t, baseConnStr, "pipeline")
	dbName := testutil.GetDBNameFromConnStr(testConnStr)

	cleanup := testutil.NewTestCleanup(t, baseConnStr, dbName)
	t.Cleanup(cleanup.Cleanup)

	pool := testutil.ConnectTestDB(t, testConnStr)
	cleanup.SetPool(pool)

	feed := holidayFeed(t)
	t.Cleanup(feed.Close)

	cfg := config.DefaultConfig()
	cfg.Connection = testConnStr
	cfg.Pipeline.DataDir = dataDir
	cfg.Pipeline.Year = 2018
	cfg.Pipeline.CountryCode = "US"
	cfg.Pipeline.HolidayFeedURL = feed.URL
	cfg.Pipeline.SalesBatchSize = 500

	return context.Background(), pool, cfg
}

func seedExtracts(t *testing.T, salesRows int) string {
	t.Helper()
	dir := t.TempDir()
	seeder := datagen.NewSeeder(datagen.NewFakerWithSeed(42))
	if err := seeder.WriteAll(dir, 2018, salesRows); err != nil {
		t.Fatalf("Failed to seed extracts: %v", err)
	}
	return dir
}

func writeCSVFile(t *testing.T, dir, name string, rows [][]string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func countRows(t *testing.T, ctx context.Context, pool *pgxpool.Pool, table string) int64 {
	t.Helper()
	var n int64
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}

func TestPipelineFullRun(t *testing.T) {
	dataDir := seedExtracts(t, 2000)
	ctx, pool, cfg := setupPipeline(t, dataDir)

	runner := pipeline.NewRunner(pool, cfg)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	// Dimension cardinality matches the seeded entities
	expected := map[string]int64{
		"dwh.dimdate":     365,
		"dwh.dimlocation": 30,
		"dwh.dimproduct":  200,
		"dwh.dimcustomer": 1000,
		"dwh.dimemployee": 25,
		"dwh.factsales":   2000,
	}
	for table, want := range expected {
		if got := countRows(t, ctx, pool, table); got != want {
			t.Errorf("%s: expected %d rows, got %d", table, want, got)
		}
	}

	// Surrogate keys are dense starting at 1
	var minKey, maxKey, keys int64
	err := pool.QueryRow(ctx,
		"SELECT min(productid), max(productid), count(*) FROM dwh.dimproduct").
		Scan(&minKey, &maxKey, &keys)
	if err != nil {
		t.Fatalf("Failed to inspect product keys: %v", err)
	}
	if minKey != 1 || maxKey != keys {
		t.Errorf("Product keys not dense: min=%d max=%d count=%d", minKey, maxKey, keys)
	}

	// Two holidays on one date collapse to a single row with the names
	// joined alphabetically
	var isHoliday bool
	var holidayName string
	err = pool.QueryRow(ctx,
		"SELECT isholiday, holidayname FROM dwh.dimdate WHERE fulldate = '2018-12-25'").
		Scan(&isHoliday, &holidayName)
	if err != nil {
		t.Fatalf("Failed to read holiday row: %v", err)
	}
	if !isHoliday {
		t.Error("2018-12-25 should be flagged as a holiday")
	}
	if holidayName != "Another Observance, Christmas Day" {
		t.Errorf("Unexpected joined holiday name: %q", holidayName)
	}

	// The weather feed's mangled city casing still joins: every
	// observation resolves a location
	if n := countRows(t, ctx, pool, "dwh.dimweather WHERE locationid IS NULL"); n != 0 {
		t.Errorf("Expected every weather row to resolve a location, %d did not", n)
	}

	// Gate invariants hold in the published fact table
	if n := countRows(t, ctx, pool, "dwh.factsales WHERE productid IS NULL OR customerid IS NULL"); n != 0 {
		t.Errorf("Published facts with null gated keys: %d", n)
	}

	// The recompute policy repaired every zeroed total
	if n := countRows(t, ctx, pool, "dwh.factsales WHERE totalprice <= 0 AND quantity > 0"); n != 0 {
		t.Errorf("Facts with unrepaired totals: %d", n)
	}

	// Run metadata was recorded
	factRows, err := db.GetMetadataValue(ctx, pool, "fact_rows")
	if err != nil {
		t.Fatalf("Failed to read run metadata: %v", err)
	}
	if factRows != "2000" {
		t.Errorf("Expected fact_rows metadata '2000', got %q", factRows)
	}
}

func TestPipelineIdempotentRerun(t *testing.T) {
	dataDir := seedExtracts(t, 1000)
	ctx, pool, cfg := setupPipeline(t, dataDir)

	runner := pipeline.NewRunner(pool, cfg)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	var firstSum float64
	var firstCount int64
	err := pool.QueryRow(ctx,
		"SELECT COALESCE(sum(totalprice), 0)::float8, count(*) FROM dwh.factsales").
		Scan(&firstSum, &firstCount)
	if err != nil {
		t.Fatalf("Failed to checksum first run: %v", err)
	}

	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	var secondSum float64
	var secondCount int64
	err = pool.QueryRow(ctx,
		"SELECT COALESCE(sum(totalprice), 0)::float8, count(*) FROM dwh.factsales").
		Scan(&secondSum, &secondCount)
	if err != nil {
		t.Fatalf("Failed to checksum second run: %v", err)
	}

	if firstCount != secondCount || firstSum != secondSum {
		t.Errorf("Rerun changed the warehouse: count %d -> %d, sum %f -> %f",
			firstCount, secondCount, firstSum, secondSum)
	}

	// Surrogate keys are reproduced, not merely re-counted
	var drift int64
	err = pool.QueryRow(ctx, `
        SELECT count(*) FROM dwh.dimproduct d
        WHERE d.productid <> (
            SELECT row_number FROM (
                SELECT productid_oltp,
                       row_number() OVER (ORDER BY productid_oltp)
                FROM dwh.dimproduct
            ) r WHERE r.productid_oltp = d.productid_oltp
        )`).Scan(&drift)
	if err != nil {
		t.Fatalf("Failed to verify key assignment: %v", err)
	}
	if drift != 0 {
		t.Errorf("%d product keys drifted from their natural-key order", drift)
	}
}

func TestPipelineGateBlocksPublish(t *testing.T) {
	dataDir := seedExtracts(t, 500)
	ctx, pool, cfg := setupPipeline(t, dataDir)

	runner := pipeline.NewRunner(pool, cfg)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Baseline run failed: %v", err)
	}
	baseline := countRows(t, ctx, pool, "dwh.factsales")

	// One sale references an unknown product, another carries a negative
	// quantity; both checks must be reported in the same run
	writeCSVFile(t, dataDir, "sales.csv", [][]string{
		{"SalesDate", "ProductID", "CustomerID", "SalesPersonID", "Quantity", "TotalPrice", "Discount"},
		{"2018-03-01", "999999", "1", "1", "2", "10.00", "0.00"},
		{"2018-03-02", "1", "1", "1", "-1", "10.00", "0.00"},
	})

	err := runner.Run(ctx)
	if err == nil {
		t.Fatal("Expected the quality gate to fail the run")
	}
	var gateErr *warehouse.GateError
	if !errors.As(err, &gateErr) {
		t.Fatalf("Expected a GateError, got: %v", err)
	}
	violations := map[string]int64{}
	for _, v := range gateErr.Violations {
		violations[v.Check] = v.Rows
	}
	if violations["null product key"] != 1 {
		t.Errorf("Expected one 'null product key' violation, got: %v", gateErr.Violations)
	}
	if violations["negative quantity"] != 1 {
		t.Errorf("Expected one 'negative quantity' violation, got: %v", gateErr.Violations)
	}

	// The previously published warehouse is untouched
	if got := countRows(t, ctx, pool, "dwh.factsales"); got != baseline {
		t.Errorf("Blocked run changed the warehouse: %d -> %d", baseline, got)
	}

	// The staged tables are kept for inspection
	if got := countRows(t, ctx, pool, "staging_clean.factsales"); got != 2 {
		t.Errorf("Expected the failing staged fact table to remain, got %d rows", got)
	}
}

func TestPipelineRecomputesUntrustedTotals(t *testing.T) {
	dataDir := t.TempDir()

	writeCSVFile(t, dataDir, "countries.csv", [][]string{
		{"CountryID", "CountryName"},
		{"1", "Testland"},
	})
	writeCSVFile(t, dataDir, "cities.csv", [][]string{
		{"CityID", "CityName", "CountryID"},
		{"1", "Springfield", "1"},
	})
	writeCSVFile(t, dataDir, "categories.csv", [][]string{
		{"CategoryID", "CategoryName"},
		{"1", "Snacks"},
	})
	writeCSVFile(t, dataDir, "products.csv", [][]string{
		{"ProductID", "ProductName", "Price", "CategoryID", "Class", "IsAllergic"},
		{"1", "Crisps", "10.00", "1", "Low", "FALSE"},
	})
	writeCSVFile(t, dataDir, "customers.csv", [][]string{
		{"CustomerID", "FirstName", "LastName", "Address", "CityID"},
		{"1", "Pat", "Tester", "1 Main St", "1"},
	})
	writeCSVFile(t, dataDir, "employees.csv", [][]string{
		{"EmployeeID", "FirstName", "LastName", "Gender", "HireDate"},
		{"1", "Sam", "Seller", "F", "2015-04-01"},
	})
	// weather city in a different casing than the OLTP export
	writeCSVFile(t, dataDir, "weather.csv", [][]string{
		{"city", "time", "temperature_2m_max", "apparent_temperature_max", "windspeed_10m_max", "precipitation_sum", "is_day"},
		{"SPRINGFIELD", "2018-06-15", "24.5", "23.0", "12.0", "0.0", "1"},
	})
	// a zeroed total with quantity 3, price 10.00 and 10% discount
	writeCSVFile(t, dataDir, "sales.csv", [][]string{
		{"SalesDate", "ProductID", "CustomerID", "SalesPersonID", "Quantity", "TotalPrice", "Discount"},
		{"2018-06-15", "1", "1", "1", "3", "0.00", "0.10"},
	})

	ctx, pool, cfg := setupPipeline(t, dataDir)
	runner := pipeline.NewRunner(pool, cfg)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	var total string
	var weatherID *int
	err := pool.QueryRow(ctx,
		"SELECT totalprice::text, weatherid FROM dwh.factsales").Scan(&total, &weatherID)
	if err != nil {
		t.Fatalf("Failed to read the fact row: %v", err)
	}
	if total != "27.00" {
		t.Errorf("Expected recomputed total 27.00, got %s", total)
	}
	// the mangled weather city still matched the sale's location and date
	if weatherID == nil {
		t.Error("Expected the fact row to resolve a weather observation")
	}
}

func TestPublishFailureLeavesWarehouseIntact(t *testing.T) {
	dataDir := seedExtracts(t, 400)
	ctx, pool, cfg := setupPipeline(t, dataDir)

	runner := pipeline.NewRunner(pool, cfg)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Baseline run failed: %v", err)
	}

	baseline := map[string]int64{}
	for _, table := range db.WarehouseTables {
		baseline[table] = countRows(t, ctx, pool, "dwh."+table)
	}

	// Make the fact insert fail. factsales is published last, so the
	// transaction dies after the truncate and all six dimension inserts
	// have already run. NOT VALID keeps the existing rows out of the
	// constraint's reach; only the incoming insert trips it.
	_, err := pool.Exec(ctx,
		"ALTER TABLE dwh.factsales ADD CONSTRAINT factsales_quantity_cap CHECK (quantity > 999999) NOT VALID")
	if err != nil {
		t.Fatalf("Failed to add constraint: %v", err)
	}

	if _, err := warehouse.Publish(ctx, pool); err == nil {
		t.Fatal("Expected the publish to fail against the constraint")
	}

	// Readers see the previous warehouse in full, not a partial replace
	for _, table := range db.WarehouseTables {
		if got := countRows(t, ctx, pool, "dwh."+table); got != baseline[table] {
			t.Errorf("dwh.%s changed after failed publish: %d -> %d",
				table, baseline[table], got)
		}
	}
}

func TestPipelineMissingWeatherExtract(t *testing.T) {
	dataDir := seedExtracts(t, 800)
	if err := os.Remove(filepath.Join(dataDir, "weather.csv")); err != nil {
		t.Fatalf("Failed to remove weather extract: %v", err)
	}

	ctx, pool, cfg := setupPipeline(t, dataDir)
	runner := pipeline.NewRunner(pool, cfg)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Pipeline run failed without the weather extract: %v", err)
	}

	// The absent source cleans to an empty contract table and an empty
	// dimension; the rest of the warehouse still publishes
	if n := countRows(t, ctx, pool, "staging_clean.weather"); n != 0 {
		t.Errorf("Expected an empty cleaned weather table, got %d rows", n)
	}
	if n := countRows(t, ctx, pool, "dwh.dimweather"); n != 0 {
		t.Errorf("Expected an empty weather dimension, got %d rows", n)
	}
	if n := countRows(t, ctx, pool, "dwh.factsales"); n != 800 {
		t.Errorf("Expected 800 published facts, got %d", n)
	}
	if n := countRows(t, ctx, pool, "dwh.factsales WHERE weatherid IS NOT NULL"); n != 0 {
		t.Errorf("Expected every fact to carry a NULL weather key, %d did not", n)
	}
}

func TestPipelineDuplicateNaturalKeys(t *testing.T) {
	dataDir := t.TempDir()

	writeCSVFile(t, dataDir, "countries.csv", [][]string{
		{"CountryID", "CountryName"},
		{"1", "Testland"},
	})
	// two extract rows claim city id 1 with conflicting attributes
	writeCSVFile(t, dataDir, "cities.csv", [][]string{
		{"CityID", "CityName", "CountryID"},
		{"1", "Bville", "1"},
		{"1", "Aville", "1"},
	})

	ctx, pool, cfg := setupPipeline(t, dataDir)
	runner := pipeline.NewRunner(pool, cfg)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	readCity := func() string {
		var city string
		err := pool.QueryRow(ctx,
			"SELECT cityname FROM dwh.dimlocation WHERE cityid_oltp = 1").Scan(&city)
		if err != nil {
			t.Fatalf("Failed to read the location row: %v", err)
		}
		return city
	}

	if n := countRows(t, ctx, pool, "dwh.dimlocation"); n != 1 {
		t.Fatalf("Expected the duplicate city to collapse to 1 row, got %d", n)
	}
	// the collapse is ordered, not arbitrary: the first attribute value
	// in sort order survives, on this run and on every rerun
	if city := readCity(); city != "Aville" {
		t.Errorf("Expected the surviving city to be Aville, got %q", city)
	}

	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Rerun failed: %v", err)
	}
	if city := readCity(); city != "Aville" {
		t.Errorf("Rerun changed the surviving city to %q", city)
	}
}

func TestPipelineSourcePolicyKeepsTotals(t *testing.T) {
	dataDir := seedExtracts(t, 300)
	ctx, pool, cfg := setupPipeline(t, dataDir)
	cfg.Pipeline.TotalPricePolicy = config.PolicySource

	runner := pipeline.NewRunner(pool, cfg)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}

	// The seeded extracts contain zeroed totals; the source policy
	// publishes them as they are
	if n := countRows(t, ctx, pool, "dwh.factsales WHERE totalprice = 0 AND quantity > 0"); n == 0 {
		t.Error("Expected the source policy to keep zeroed totals")
	}
}
