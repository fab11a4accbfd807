package core

import (
	"math"
	"slices"
)

// MissingYears returns the years present in both the price and deprivation
// sources but absent from the published table, ascending and de-duplicated.
func MissingYears(priceYears, adiYears, publishedYears []int) []int {
	adi := toSet(adiYears)
	published := toSet(publishedYears)

	seen := make(map[int]bool)
	var missing []int
	for _, y := range priceYears {
		if !adi[y] || published[y] || seen[y] {
			continue
		}
		seen[y] = true
		missing = append(missing, y)
	}
	slices.Sort(missing)
	return missing
}

func toSet(years []int) map[int]bool {
	s := make(map[int]bool, len(years))
	for _, y := range years {
		s[y] = true
	}
	return s
}

// YearsFromColumn returns the distinct whole-number values of col, ascending.
// It reads the result of a SELECT DISTINCT year query; other cells are skipped.
func YearsFromColumn(t Table, col string) []int {
	seen := make(map[int]bool)
	var years []int
	for _, v := range t.Column(col) {
		f, ok := ParseNumber(v)
		if !ok || f != math.Trunc(f) {
			continue
		}
		if y := int(f); !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	slices.Sort(years)
	return years
}
