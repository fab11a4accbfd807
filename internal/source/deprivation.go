package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/jszwec/csvutil"
)

// DeprivationRecord is one row of the county deprivation CSV mirror.
type DeprivationRecord struct {
	CountyFIPSCode string   `csv:"county_fips_code"`
	StateFIPSCode  string   `csv:"state_fips_code,omitempty"`
	Year           int      `csv:"year"`
	ADIPercent     *float64 `csv:"area_deprivation_index_percent,omitempty"`
	ADIStateRank   *float64 `csv:"area_deprivation_index_state_rank,omitempty"`
}

// deprivationColumns is the column order of tables built from records.
var deprivationColumns = []string{
	core.KeyColumn,
	"state_fips_code",
	core.YearColumn,
	"area_deprivation_index_percent",
	"area_deprivation_index_state_rank",
}

// DecodeDeprivationCSV decodes the deprivation mirror. Headers must include
// county_fips_code and year; the score columns are optional.
func DecodeDeprivationCSV(r io.Reader) ([]DeprivationRecord, error) {
	var records []DeprivationRecord

	dec, err := csvutil.NewDecoder(csv.NewReader(skipBOM(r)))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse csv deprivation header: %w", err)
	}

	if missing := missingRequired(dec.Header()); len(missing) > 0 {
		return nil, &core.KeyColumnError{Table: "adi", Column: missing[0]}
	}

	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("parse csv deprivation rows: %w", err)
	}
	return records, nil
}

func missingRequired(header []string) []string {
	var missing []string
	for _, col := range []string{core.KeyColumn, core.YearColumn} {
		if !slices.Contains(header, col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// DeprivationTable converts records for one year and region into a Table.
// region is a two-digit state code or core.AllRegions.
func DeprivationTable(records []DeprivationRecord, year int, region string) core.Table {
	t := core.Table{Name: "adi", Columns: slices.Clone(deprivationColumns), Types: map[string]core.ColumnType{
		core.KeyColumn:                      core.TypeString,
		"state_fips_code":                   core.TypeString,
		core.YearColumn:                     core.TypeInteger,
		"area_deprivation_index_percent":    core.TypeFloat,
		"area_deprivation_index_state_rank": core.TypeFloat,
	}}
	for _, rec := range records {
		if rec.Year != year {
			continue
		}
		key := core.NormalizeKey(rec.CountyFIPSCode)
		state := rec.StateFIPSCode
		if state != "" {
			state = core.PadLeft(state, 2)
		} else {
			if k, ok := key.(string); ok && len(k) >= 2 {
				state = k[:2]
			}
		}
		if !core.IsAllRegions(region) && state != region {
			continue
		}
		t.Rows = append(t.Rows, core.Row{
			core.KeyColumn:                      key,
			"state_fips_code":                   state,
			core.YearColumn:                     int64(rec.Year),
			"area_deprivation_index_percent":    floatOrNil(rec.ADIPercent),
			"area_deprivation_index_state_rank": floatOrNil(rec.ADIStateRank),
		})
	}
	return t
}

// DeprivationYears returns the distinct years in records, ascending.
func DeprivationYears(records []DeprivationRecord) []int {
	var years []int
	for _, rec := range records {
		if !slices.Contains(years, rec.Year) {
			years = append(years, rec.Year)
		}
	}
	slices.Sort(years)
	return years
}

func floatOrNil(f *float64) core.Value {
	if f == nil {
		return nil
	}
	return *f
}
