package warehouse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/salespipe/salespipe/internal/config"
)

func TestGateErrorMessage(t *testing.T) {
	err := &GateError{
		Violations: []Violation{
			{Check: "negative quantity", Rows: 3},
			{Check: "null product key", Rows: 12},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "quality gate failed")
	assert.Contains(t, msg, "negative quantity (3 rows)")
	assert.Contains(t, msg, "null product key (12 rows)")
}

func TestGateChecks(t *testing.T) {
	assert.Len(t, Checks, 4)

	seen := map[string]bool{}
	for _, c := range Checks {
		assert.False(t, seen[c.Name], "duplicate check name %s", c.Name)
		seen[c.Name] = true

		assert.Zero(t, c.Threshold, "check %s must tolerate zero violations", c.Name)
		assert.Contains(t, c.SQL, "staging_clean.factsales",
			"check %s must inspect the staged fact table, not dwh", c.Name)
		assert.True(t, strings.HasPrefix(strings.TrimSpace(c.SQL), "SELECT count(*)"),
			"check %s must be a count query", c.Name)
	}
}

func TestTotalPriceExpr(t *testing.T) {
	recompute := totalPriceExpr(config.PolicyRecompute)
	assert.Contains(t, recompute, "CASE")
	assert.Contains(t, recompute, "COALESCE(s.totalprice, 0) <= 0")
	assert.Contains(t, recompute, "p.price")
	assert.Contains(t, recompute, "1 - COALESCE(s.discount, 0)")

	source := totalPriceExpr(config.PolicySource)
	assert.Equal(t, "round(COALESCE(s.totalprice, 0), 2)", source)
	assert.NotContains(t, source, "CASE")
}
