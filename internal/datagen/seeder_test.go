package datagen

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, dir, name string) [][]string {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestSeederWritesAllExtracts(t *testing.T) {
	dir := t.TempDir()
	seeder := NewSeeder(NewFakerWithSeed(7))
	require.NoError(t, seeder.WriteAll(dir, 2018, 500))

	files := []string{
		"countries.csv", "cities.csv", "categories.csv", "products.csv",
		"customers.csv", "employees.csv", "weather.csv", "sales.csv",
	}
	for _, f := range files {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, "missing %s", f)
	}
}

func TestSeederHeadersAndCounts(t *testing.T) {
	dir := t.TempDir()
	seeder := NewSeeder(NewFakerWithSeed(7))
	require.NoError(t, seeder.WriteAll(dir, 2018, 500))

	sales := readCSV(t, dir, "sales.csv")
	assert.Equal(t,
		[]string{"SalesDate", "ProductID", "CustomerID", "SalesPersonID", "Quantity", "TotalPrice", "Discount"},
		sales[0])
	assert.Len(t, sales, 501)

	products := readCSV(t, dir, "products.csv")
	assert.Equal(t,
		[]string{"ProductID", "ProductName", "Price", "CategoryID", "Class", "IsAllergic"},
		products[0])
	assert.Len(t, products, numProducts+1)

	customers := readCSV(t, dir, "customers.csv")
	assert.Len(t, customers, numCustomers+1)

	// one observation per city per day of a non-leap year
	weather := readCSV(t, dir, "weather.csv")
	assert.Len(t, weather, numCities*365+1)
}

func TestSeederSalesReferenceValidIDs(t *testing.T) {
	dir := t.TempDir()
	seeder := NewSeeder(NewFakerWithSeed(11))
	require.NoError(t, seeder.WriteAll(dir, 2018, 300))

	sales := readCSV(t, dir, "sales.csv")
	for _, row := range sales[1:] {
		pid, err := strconv.Atoi(row[1])
		require.NoError(t, err)
		assert.True(t, pid >= 1 && pid <= numProducts, "product id out of range: %d", pid)

		cid, err := strconv.Atoi(row[2])
		require.NoError(t, err)
		assert.True(t, cid >= 1 && cid <= numCustomers, "customer id out of range: %d", cid)
	}
}

func TestSeederDirtyEdges(t *testing.T) {
	dir := t.TempDir()
	seeder := NewSeeder(NewFakerWithSeed(3))
	require.NoError(t, seeder.WriteAll(dir, 2018, 2000))

	sales := readCSV(t, dir, "sales.csv")
	var zeroTotals int
	for _, row := range sales[1:] {
		if row[5] == "0.00" {
			zeroTotals++
		}
	}
	assert.Greater(t, zeroTotals, 0, "expected some zeroed sale totals")

	// the weather feed never agrees with the OLTP export on casing
	weather := readCSV(t, dir, "weather.csv")
	var mangled int
	for _, row := range weather[1:] {
		city := row[0]
		if city == strings.ToLower(city) || city == strings.ToUpper(city) {
			mangled++
		}
	}
	assert.Greater(t, mangled, 0, "expected some mangled city names")
}

func TestSeederDiscountDistribution(t *testing.T) {
	dir := t.TempDir()
	seeder := NewSeeder(NewFakerWithSeed(13))
	require.NoError(t, seeder.WriteAll(dir, 2018, 5000))

	counts := map[string]int{}
	sales := readCSV(t, dir, "sales.csv")
	for _, row := range sales[1:] {
		counts[row[6]]++
	}

	valid := map[string]bool{"0.00": true, "0.05": true, "0.10": true, "0.20": true}
	for v := range counts {
		assert.True(t, valid[v], "unexpected discount value %s", v)
	}

	// the weighted pick must skew heavily toward undiscounted sales,
	// with each deeper cut rarer than the last
	assert.Greater(t, counts["0.00"], counts["0.05"])
	assert.Greater(t, counts["0.05"], counts["0.20"])
	for _, v := range []string{"0.05", "0.10", "0.20"} {
		assert.Greater(t, counts[v], 0, "discount %s never drawn", v)
	}
}

func TestChooseWeighted(t *testing.T) {
	f := NewFakerWithSeed(99)

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		counts[ChooseWeighted(f, []string{"common", "rare"}, []int{9, 1})]++
	}
	assert.Greater(t, counts["common"], counts["rare"]*3)
	assert.Greater(t, counts["rare"], 0)

	var zero string
	assert.Equal(t, zero, ChooseWeighted[string](f, nil, []int{1}))
	assert.Equal(t, zero, ChooseWeighted(f, []string{"x"}, nil))
}

func TestSeederReproducible(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	require.NoError(t, NewSeeder(NewFakerWithSeed(42)).WriteAll(dirA, 2018, 100))
	require.NoError(t, NewSeeder(NewFakerWithSeed(42)).WriteAll(dirB, 2018, 100))

	for _, f := range []string{"products.csv", "sales.csv"} {
		a, err := os.ReadFile(filepath.Join(dirA, f))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dirB, f))
		require.NoError(t, err)
		assert.Equal(t, a, b, "%s differs between identically seeded runs", f)
	}
}
