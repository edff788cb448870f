//-------------------------------------------------------------------------
//
// salespipe - Sales Warehouse ELT Pipeline
//
// Copyright (c) 2025 - 2026, the salespipe authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salespipe/salespipe/internal/logging"
)

// Holiday is one public holiday as served by the feed. The feed may list
// several entries for the same date.
type Holiday struct {
	Date      string `json:"date"`
	LocalName string `json:"localName"`
	Name      string `json:"name"`
}

// HolidayClient fetches public holidays for a year and country.
type HolidayClient struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewHolidayClient creates a client against the given feed base URL.
// Transient failures are retried with backoff before giving up.
func NewHolidayClient(baseURL string) *HolidayClient {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = 30 * time.Second
	c.Logger = nil

	return &HolidayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  c,
	}
}

// Fetch retrieves the public holidays for one year and country code.
func (hc *HolidayClient) Fetch(ctx context.Context, year int, countryCode string) ([]Holiday, error) {
	url := fmt.Sprintf("%s/%d/%s", hc.baseURL, year, strings.ToUpper(countryCode))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build holiday request: %w", err)
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("holiday feed request failed: %w", err)
	}
	defer resp.Body.Close()

	// The feed answers 204 for countries it knows but has no data for.
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("holiday feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var holidays []Holiday
	if err := json.NewDecoder(resp.Body).Decode(&holidays); err != nil {
		return nil, fmt.Errorf("failed to decode holiday feed: %w", err)
	}

	logging.Info().
		Int("year", year).
		Str("country", strings.ToUpper(countryCode)).
		Int("holidays", len(holidays)).
		Msg("Fetched public holidays")
	return holidays, nil
}

// LoadHolidays rebuilds staging.holidays_raw from the fetched feed.
// Like the CSV extracts, the raw table is all text.
func LoadHolidays(ctx context.Context, pool *pgxpool.Pool, holidays []Holiday) error {
	_, err := pool.Exec(ctx, `DROP TABLE IF EXISTS staging.holidays_raw`)
	if err != nil {
		return fmt.Errorf("failed to drop previous holidays table: %w", err)
	}
	_, err = pool.Exec(ctx, `
        CREATE TABLE staging.holidays_raw (
            "date"      TEXT,
            "localName" TEXT,
            "name"      TEXT
        )`)
	if err != nil {
		return fmt.Errorf("failed to create holidays table: %w", err)
	}

	if len(holidays) == 0 {
		logging.Warn().Msg("No public holidays loaded")
		return nil
	}

	rows := make([][]any, len(holidays))
	for i, h := range holidays {
		rows[i] = []any{h.Date, h.LocalName, h.Name}
	}

	n, err := pool.CopyFrom(ctx,
		pgx.Identifier{"staging", "holidays_raw"},
		[]string{"date", "localName", "name"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy holidays into staging: %w", err)
	}

	logging.Info().Int64("rows", n).Msg("Loaded public holidays")
	return nil
}
