package core

import (
	"regexp"
	"slices"
	"strconv"
)

// Price table column names.
const (
	StateCodeColumn     = "StateCodeFIPS"
	MunicipalCodeColumn = "MunicipalCodeFIPS"
	// RegionNameColumn holds the state abbreviation; the geo source has its
	// own region-name column so this one is dropped before joining.
	RegionNameColumn = "State"
	AverageColumn    = "average"
	YearColumn       = "year"
)

// monthRegex matches observation columns such as "2020-01" or "2020-01-31".
var monthRegex = regexp.MustCompile(`^\d{4}-\d{2}(-\d{2})?$`)

// AggregatePrices reduces the wide monthly price table to one row per county
// with the mean of the target year's monthly values in the average column.
//
// Rows outside region are removed before the county key is derived.
// Missing or unparseable months are excluded from the mean; a row with no
// usable month, or a year with no matching columns, gets a nil average.
// Month columns and the State column are dropped from the result.
func AggregatePrices(raw Table, year string, region string) (Table, error) {
	for _, col := range []string{StateCodeColumn, MunicipalCodeColumn} {
		if !raw.HasColumn(col) {
			return Table{}, &KeyColumnError{Table: raw.Name, Column: col}
		}
	}

	region, err := NormalizeRegion(region)
	if err != nil {
		return Table{}, err
	}

	t := raw.
		WithColumn(StateCodeColumn, func(r Row) Value { return PadLeft(FormatCode(r[StateCodeColumn]), regionWidth) }).
		WithColumn(MunicipalCodeColumn, func(r Row) Value { return PadLeft(FormatCode(r[MunicipalCodeColumn]), subRegionWidth) })

	if region != AllRegions {
		t = t.Filter(func(r Row) bool { return r[StateCodeColumn] == region })
	}

	t = t.WithColumn(KeyColumn, func(r Row) Value {
		return r[StateCodeColumn].(string) + r[MunicipalCodeColumn].(string)
	})

	yearCols := YearColumns(t.Columns, year)
	t = t.WithColumn(AverageColumn, func(r Row) Value { return mean(r, yearCols) })

	out := t.dropWhere(func(col string) bool {
		return col == RegionNameColumn || monthRegex.MatchString(col)
	}).WithTypes(map[string]ColumnType{
		StateCodeColumn:     TypeString,
		MunicipalCodeColumn: TypeString,
		KeyColumn:           TypeString,
		AverageColumn:       TypeFloat,
	})
	return out.Named("prices"), nil
}

// YearColumns returns the columns whose first four characters equal year,
// in header order.
func YearColumns(columns []string, year string) []string {
	var out []string
	for _, c := range columns {
		if len(c) >= 4 && c[:4] == year {
			out = append(out, c)
		}
	}
	return out
}

// PriceYears returns the distinct years named by the header's month columns,
// ascending.
func PriceYears(header []string) []int {
	seen := make(map[int]bool)
	var years []int
	for _, c := range header {
		if !isYearPrefixed(c) {
			continue
		}
		y, err := strconv.Atoi(c[:4])
		if err != nil || seen[y] {
			continue
		}
		seen[y] = true
		years = append(years, y)
	}
	slices.Sort(years)
	return years
}

func isYearPrefixed(c string) bool {
	if len(c) < 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if c[i] < '0' || c[i] > '9' {
			return false
		}
	}
	return true
}

// mean returns the arithmetic mean of the parseable cells, or nil if there are none.
func mean(r Row, cols []string) Value {
	var sum float64
	n := 0
	for _, c := range cols {
		if f, ok := ParseNumber(r[c]); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return sum / float64(n)
}
