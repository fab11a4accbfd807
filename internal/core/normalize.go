package core

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// KeyColumn is the composite county identifier every source is joined on.
const KeyColumn = "county_fips_code"

// AllRegions is the region sentinel that disables state filtering.
const AllRegions = "All"

const (
	regionWidth    = 2
	subRegionWidth = 3
	keyWidth       = regionWidth + subRegionWidth
)

var (
	regionRegex = regexp.MustCompile(`^\d{1,2}$`)
	yearRegex   = regexp.MustCompile(`^\d{4}$`)
)

// PadLeft left-pads s with zeros to width. Longer strings are returned unchanged.
func PadLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// FormatCode renders a raw code cell as a string. Integral floats lose their
// fractional part ("6.0" and 6.0 both become "6") so that codes read from a
// numeric CSV column pad the same way as codes read as text.
func FormatCode(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s := CleanCell(x)
		if strings.Contains(s, ".") {
			if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && !math.IsInf(f, 0) {
				return strconv.FormatInt(int64(f), 10)
			}
		}
		return s
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return FormatCode(float64(x))
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// CountyKey builds the 5-character county identifier from a state code and a
// county code, e.g. ("6", "7") -> "06007". Non-numeric input is padded as-is.
func CountyKey(region, subRegion Value) string {
	return PadLeft(FormatCode(region), regionWidth) + PadLeft(FormatCode(subRegion), subRegionWidth)
}

// NormalizeKey pads an existing composite key cell to full width.
// Missing cells stay missing.
func NormalizeKey(v Value) Value {
	if v == nil {
		return nil
	}
	s := FormatCode(v)
	if s == "" {
		return nil
	}
	return PadLeft(s, keyWidth)
}

// IsAllRegions reports whether region is the AllRegions sentinel (case-insensitive).
func IsAllRegions(region string) bool {
	return strings.EqualFold(strings.TrimSpace(region), AllRegions)
}

// NormalizeRegion validates a region argument and returns either AllRegions
// or the zero-padded two-digit state code.
func NormalizeRegion(region string) (string, error) {
	region = strings.TrimSpace(region)
	if IsAllRegions(region) {
		return AllRegions, nil
	}
	if !regionRegex.MatchString(region) {
		return "", fmt.Errorf("%w: %q (want a state FIPS code or %q)", ErrInvalidRegion, region, AllRegions)
	}
	return PadLeft(region, regionWidth), nil
}

// ParseYear validates a four-digit year argument.
func ParseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if !yearRegex.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidYear, s)
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidYear, s)
	}
	return y, nil
}
