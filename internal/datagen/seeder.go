//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/salespipe/salespipe/internal/logging"
)

// Generation sizes for the reference entities. Sales volume is the only
// caller-controlled size.
const (
	numCountries  = 10
	numCities     = 30
	numCategories = 8
	numProducts   = 200
	numCustomers  = 1000
	numEmployees  = 25
)

var productClasses = []string{"Low", "Medium", "High"}

// Most sales carry no discount; the deeper cuts get rarer, matching the
// distribution seen in the real extract.
var (
	discountValues  = []float64{0, 0.05, 0.10, 0.20}
	discountWeights = []int{80, 10, 7, 3}
)

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Seeder writes a consistent set of demo CSV extracts. The files mimic
// the real OLTP exports: mixed-case headers, inconsistent city-name
// casing in the weather feed, and a share of zeroed sale totals.
type Seeder struct {
	f *Faker

	countryIDs  []int
	cityIDs     []int
	cityNames   []string
	categoryIDs []int
	productIDs  []int
	prices      []float64
	customerIDs []int
	employeeIDs []int
}

// NewSeeder creates a seeder over the given faker.
func NewSeeder(f *Faker) *Seeder {
	return &Seeder{f: f}
}

// WriteAll generates every demo extract into outDir. Sales dates fall
// within the given year so the generated set lines up with the date
// dimension the pipeline builds.
func (s *Seeder) WriteAll(outDir string, year, salesRows int) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	steps := []struct {
		file  string
		write func(w *csv.Writer, year int) error
	}{
		{"countries.csv", s.writeCountries},
		{"cities.csv", s.writeCities},
		{"categories.csv", s.writeCategories},
		{"products.csv", s.writeProducts},
		{"customers.csv", s.writeCustomers},
		{"employees.csv", s.writeEmployees},
		{"weather.csv", s.writeWeather},
	}
	for _, st := range steps {
		if err := s.writeFile(outDir, st.file, year, st.write); err != nil {
			return err
		}
	}

	err := s.writeFile(outDir, "sales.csv", year, func(w *csv.Writer, year int) error {
		return s.writeSales(w, year, salesRows)
	})
	if err != nil {
		return err
	}

	logging.Info().
		Str("dir", outDir).
		Int("sales_rows", salesRows).
		Msg("Seeded demo extracts")
	return nil
}

func (s *Seeder) writeFile(outDir, name string, year int, write func(w *csv.Writer, year int) error) error {
	f, err := os.Create(filepath.Join(outDir, name))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := write(w, year); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", name, err)
	}
	return f.Close()
}

func (s *Seeder) writeCountries(w *csv.Writer, _ int) error {
	if err := w.Write([]string{"CountryID", "CountryName"}); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i := 1; i <= numCountries; i++ {
		name := s.f.Country()
		for seen[name] {
			name = s.f.Country()
		}
		seen[name] = true
		s.countryIDs = append(s.countryIDs, i)
		if err := w.Write([]string{strconv.Itoa(i), name}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) writeCities(w *csv.Writer, _ int) error {
	if err := w.Write([]string{"CityID", "CityName", "CountryID"}); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i := 1; i <= numCities; i++ {
		name := s.f.City()
		for seen[name] {
			name = s.f.City()
		}
		seen[name] = true
		s.cityIDs = append(s.cityIDs, i)
		s.cityNames = append(s.cityNames, name)
		row := []string{
			strconv.Itoa(i),
			name,
			strconv.Itoa(Choose(s.f, s.countryIDs)),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) writeCategories(w *csv.Writer, _ int) error {
	if err := w.Write([]string{"CategoryID", "CategoryName"}); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i := 1; i <= numCategories; i++ {
		name := capitalize(s.f.Word())
		for seen[name] {
			name = capitalize(s.f.Word())
		}
		seen[name] = true
		s.categoryIDs = append(s.categoryIDs, i)
		if err := w.Write([]string{strconv.Itoa(i), name}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) writeProducts(w *csv.Writer, _ int) error {
	if err := w.Write([]string{"ProductID", "ProductName", "Price", "CategoryID", "Class", "IsAllergic"}); err != nil {
		return err
	}
	for i := 1; i <= numProducts; i++ {
		price := s.f.Price(0.5, 100)
		s.productIDs = append(s.productIDs, i)
		s.prices = append(s.prices, price)

		allergic := "FALSE"
		if s.f.Bool() {
			allergic = "TRUE"
		}
		// a handful of products carry the source system's literal
		// "Unknown" flag, which cleans to NULL
		if s.f.Int(1, 50) == 1 {
			allergic = "Unknown"
		}

		row := []string{
			strconv.Itoa(i),
			s.f.ProductName(),
			fmt.Sprintf("%.2f", price),
			strconv.Itoa(Choose(s.f, s.categoryIDs)),
			Choose(s.f, productClasses),
			allergic,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) writeCustomers(w *csv.Writer, _ int) error {
	if err := w.Write([]string{"CustomerID", "FirstName", "LastName", "Address", "CityID"}); err != nil {
		return err
	}
	for i := 1; i <= numCustomers; i++ {
		s.customerIDs = append(s.customerIDs, i)
		// stray whitespace around names, as the real export has
		first := s.f.FirstName()
		if s.f.Int(1, 20) == 1 {
			first = " " + first + " "
		}
		row := []string{
			strconv.Itoa(i),
			first,
			s.f.LastName(),
			s.f.Street(),
			strconv.Itoa(Choose(s.f, s.cityIDs)),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) writeEmployees(w *csv.Writer, year int) error {
	if err := w.Write([]string{"EmployeeID", "FirstName", "LastName", "Gender", "HireDate"}); err != nil {
		return err
	}
	hireStart := time.Date(year-10, 1, 1, 0, 0, 0, 0, time.UTC)
	hireEnd := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= numEmployees; i++ {
		s.employeeIDs = append(s.employeeIDs, i)
		gender := "m"
		if s.f.Bool() {
			gender = "F"
		}
		row := []string{
			strconv.Itoa(i),
			s.f.FirstName(),
			s.f.LastName(),
			gender,
			s.f.DateRange(hireStart, hireEnd).Format("2006-01-02"),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// writeWeather emits one observation per city per day. City names are
// randomly upper- or lower-cased to mirror the real feed, which never
// agreed with the OLTP export on casing.
func (s *Seeder) writeWeather(w *csv.Writer, year int) error {
	if err := w.Write([]string{"city", "time", "temperature_2m_max", "apparent_temperature_max", "windspeed_10m_max", "precipitation_sum", "is_day"}); err != nil {
		return err
	}
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, city := range s.cityNames {
		for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
			name := city
			switch s.f.Int(1, 4) {
			case 1:
				name = strings.ToLower(city)
			case 2:
				name = strings.ToUpper(city)
			}
			temp := s.f.Float64(-10, 38)
			row := []string{
				name,
				d.Format("2006-01-02"),
				fmt.Sprintf("%.1f", temp),
				fmt.Sprintf("%.1f", temp-s.f.Float64(0, 4)),
				fmt.Sprintf("%.1f", s.f.Float64(0, 60)),
				fmt.Sprintf("%.1f", s.f.Float64(0, 25)),
				"1",
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeSales emits the transaction extract. Roughly three percent of
// rows carry a zeroed TotalPrice, which the recompute policy repairs,
// and a small share of dates are malformed.
func (s *Seeder) writeSales(w *csv.Writer, year, rows int) error {
	if err := w.Write([]string{"SalesDate", "ProductID", "CustomerID", "SalesPersonID", "Quantity", "TotalPrice", "Discount"}); err != nil {
		return err
	}
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		pi := s.f.Int(0, len(s.productIDs)-1)
		qty := s.f.Int(1, 20)
		discount := ChooseWeighted(s.f, discountValues, discountWeights)

		total := fmt.Sprintf("%.2f", float64(qty)*s.prices[pi]*(1-discount))
		if s.f.Int(1, 33) == 1 {
			total = "0.00"
		}

		date := s.f.DateRange(start, end).Format("2006-01-02")
		if s.f.Int(1, 500) == 1 {
			date = "0000-00-00"
		}

		row := []string{
			date,
			strconv.Itoa(s.productIDs[pi]),
			strconv.Itoa(Choose(s.f, s.customerIDs)),
			strconv.Itoa(Choose(s.f, s.employeeIDs)),
			strconv.Itoa(qty),
			total,
			fmt.Sprintf("%.2f", discount),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
