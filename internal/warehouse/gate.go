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

	"github.com/salespipe/salespipe/internal/db"
	"github.com/salespipe/salespipe/internal/logging"
)

// Check is one quality gate rule over the staged fact table. Threshold
// is the number of violating rows tolerated before the check fails.
type Check struct {
	Name      string
	SQL       string
	Threshold int64
}

// Checks is the quality gate. Every check runs even after an earlier one
// fails, so one run reports the full damage.
var Checks = []Check{
	{
		Name: "negative quantity",
		SQL:  "SELECT count(*) FROM staging_clean.factsales WHERE quantity < 0",
	},
	{
		Name: "negative totalprice",
		SQL:  "SELECT count(*) FROM staging_clean.factsales WHERE totalprice < 0",
	},
	{
		Name: "null product key",
		SQL:  "SELECT count(*) FROM staging_clean.factsales WHERE productid IS NULL",
	},
	{
		Name: "null customer key",
		SQL:  "SELECT count(*) FROM staging_clean.factsales WHERE customerid IS NULL",
	},
}

// Violation is one failed gate check.
type Violation struct {
	Check string
	Rows  int64
}

// GateError reports every failed check of a gate run.
type GateError struct {
	Violations []Violation
}

func (e *GateError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s (%d rows)", v.Check, v.Rows)
	}
	return "quality gate failed: " + strings.Join(parts, ", ")
}

// RunGate evaluates every check against the staged fact table. It only
// reads; the staged tables are left as they are so a failed run can be
// inspected. A non-nil error of type *GateError blocks publishing.
func RunGate(ctx context.Context, q db.Queryer) error {
	var violations []Violation

	for _, c := range Checks {
		var rows int64
		if err := q.QueryRow(ctx, c.SQL).Scan(&rows); err != nil {
			return fmt.Errorf("gate check %q failed to run: %w", c.Name, err)
		}

		if rows > c.Threshold {
			logging.Error().
				Str("check", c.Name).
				Int64("rows", rows).
				Int64("threshold", c.Threshold).
				Msg("Quality gate check failed")
			violations = append(violations, Violation{Check: c.Name, Rows: rows})
		} else {
			logging.Debug().
				Str("check", c.Name).
				Int64("rows", rows).
				Msg("Quality gate check passed")
		}
	}

	if len(violations) > 0 {
		return &GateError{Violations: violations}
	}

	logging.Info().Int("checks", len(Checks)).Msg("Quality gate passed")
	return nil
}
