package clean

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnResolve(t *testing.T) {
	col := Column{Name: "salespersonid", Aliases: []string{"SalesPersonID", "salesperson_id", "EmployeeID"}}

	tests := []struct {
		name    string
		rawCols map[string]string
		want    string
		found   bool
	}{
		{
			name:    "canonical name wins over aliases",
			rawCols: map[string]string{"salespersonid": "SalesPersonID", "employeeid": "EmployeeID"},
			want:    "SalesPersonID",
			found:   true,
		},
		{
			name:    "snake case alias",
			rawCols: map[string]string{"salesperson_id": "salesperson_id"},
			want:    "salesperson_id",
			found:   true,
		},
		{
			name:    "legacy alias",
			rawCols: map[string]string{"employeeid": "EmployeeID"},
			want:    "EmployeeID",
			found:   true,
		},
		{
			name:    "no match",
			rawCols: map[string]string{"somethingelse": "SomethingElse"},
			found:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, ok := col.resolve(tt.rawCols)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, actual)
			}
		})
	}
}

func TestSelectExprCastAndNormalize(t *testing.T) {
	rawCols := map[string]string{"cityname": "CityName"}

	col := Column{Name: "cityname", Cast: CastText, Normalize: NormTitle}
	expr := col.SelectExpr(rawCols)

	assert.Equal(t, `initcap(btrim("CityName"::text)) AS cityname`, expr)
}

func TestSelectExprLenientCast(t *testing.T) {
	rawCols := map[string]string{"quantity": "Quantity"}

	col := Column{Name: "quantity", Cast: CastInt, Fallback: "0"}
	expr := col.SelectExpr(rawCols)

	assert.Equal(t, `COALESCE(staging_clean.try_int("Quantity"::text), 0) AS quantity`, expr)
}

func TestSelectExprMissingColumn(t *testing.T) {
	rawCols := map[string]string{"othercol": "OtherCol"}

	tests := []struct {
		name string
		col  Column
		want string
	}{
		{
			name: "missing without fallback becomes typed NULL",
			col:  Column{Name: "discount", Cast: CastNumeric},
			want: "NULL::numeric AS discount",
		},
		{
			name: "missing with fallback uses the fallback",
			col:  Column{Name: "quantity", Cast: CastInt, Fallback: "0"},
			want: "0::integer AS quantity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.col.SelectExpr(rawCols))
		})
	}
}

func TestSelectExprQuotesIdentifiers(t *testing.T) {
	rawCols := map[string]string{"localname": "localName"}

	col := Column{Name: "holidayname", Aliases: []string{"localName"}, Cast: CastText, Normalize: NormTrim}
	expr := col.SelectExpr(rawCols)

	assert.Contains(t, expr, `"localName"`)
}

func TestLowerTrim(t *testing.T) {
	assert.Equal(t, "cityid", lowerTrim("CityID"))
	assert.Equal(t, "cityid", lowerTrim("  CityID "))
	assert.Equal(t, "cityid", lowerTrim("\uFEFFCityID"))
}

func TestEmptyTableDDL(t *testing.T) {
	e := Entity{
		Name: "sample",
		Columns: []Column{
			{Name: "id", Cast: CastInt},
			{Name: "name", Cast: CastText},
			{Name: "price", Cast: CastNumeric},
			{Name: "sold", Cast: CastDate},
			{Name: "active", Cast: CastBool},
		},
	}

	assert.Equal(t,
		"id integer, name text, price numeric, sold date, active boolean",
		e.EmptyTableDDL())
}

func TestEntityContracts(t *testing.T) {
	byName := map[string]Entity{}
	for _, e := range Entities {
		byName[e.Name] = e
	}

	expected := []string{
		"countries", "cities", "categories", "products",
		"customers", "employees", "weather", "holidays", "sales",
	}
	for _, name := range expected {
		_, ok := byName[name]
		require.True(t, ok, "missing entity contract %s", name)
	}

	// Join-key city names must be case-normalized on both sides
	for _, name := range []string{"cities", "weather"} {
		var city *Column
		for i := range byName[name].Columns {
			if byName[name].Columns[i].Name == "cityname" {
				city = &byName[name].Columns[i]
			}
		}
		require.NotNil(t, city, "%s has no cityname column", name)
		assert.Equal(t, NormTitle, city.Normalize, "%s cityname must be title-cased", name)
	}

	// The measures the quality gate inspects must never clean to NULL
	sales := byName["sales"]
	for _, colName := range []string{"quantity", "totalprice", "discount"} {
		found := false
		for _, c := range sales.Columns {
			if c.Name == colName {
				found = true
				assert.NotEmpty(t, c.Fallback, "sales.%s needs a fallback", colName)
			}
		}
		require.True(t, found, "sales contract missing %s", colName)
	}
}
