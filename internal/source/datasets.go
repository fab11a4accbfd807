package source

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/JonMunkholm/countydash/internal/logging"
)

// Default public datasets.
const (
	DefaultPriceURL         = "https://files.zillowstatic.com/research/public_csvs/zhvi/County_zhvi_uc_sfrcondo_tier_0.0_0.33_sm_sa_month.csv"
	DefaultDeprivationTable = "bigquery-public-data.broadstreet_adi.area_deprivation_index_by_county"
	DefaultGeoTable         = "bigquery-public-data.geo_us_boundaries.counties"
)

var tableNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+){1,2}$`)

// ValidTableName reports whether name is a dataset.table or
// project.dataset.table reference safe to splice into a query.
func ValidTableName(name string) bool {
	return tableNameRegex.MatchString(name)
}

// Config selects where each input is read from.
type Config struct {
	PriceURL         string // Wide monthly price CSV
	DeprivationURL   string // Optional CSV mirror; when set, DeprivationTable is not queried
	DeprivationTable string
	GeoTable         string
}

// Datasets reads the pipeline inputs. It implements core.DatasetReader.
type Datasets struct {
	cfg     Config
	csv     *CSVReader
	querier core.Querier

	// The mirror is downloaded once per pipeline run.
	mu         sync.Mutex
	mirrorRun  string
	mirrorRecs []DeprivationRecord
}

// NewDatasets creates a reader. Geo, and deprivation when no mirror URL is
// configured, are read through querier.
func NewDatasets(cfg Config, csv *CSVReader, querier core.Querier) *Datasets {
	return &Datasets{cfg: cfg, csv: csv, querier: querier}
}

// Prices downloads the price CSV.
func (d *Datasets) Prices(ctx context.Context) (core.Table, error) {
	t, err := d.csv.Fetch(ctx, d.cfg.PriceURL)
	if err != nil {
		return core.Table{}, err
	}
	return t.Named("prices"), nil
}

// Deprivation returns one year of deprivation rows, narrowed to region.
func (d *Datasets) Deprivation(ctx context.Context, year int, region string) (core.Table, error) {
	if d.cfg.DeprivationURL != "" {
		records, err := d.deprivationRecords(ctx)
		if err != nil {
			return core.Table{}, err
		}
		return DeprivationTable(records, year, region), nil
	}

	sql := fmt.Sprintf("SELECT * FROM `%s` WHERE year = %d", d.cfg.DeprivationTable, year)
	if filter := regionFilter(region); filter != "" {
		sql += " AND " + filter
	}
	t, err := d.query(ctx, sql)
	if err != nil {
		return core.Table{}, fmt.Errorf("query deprivation: %w", err)
	}
	return t.Named("adi"), nil
}

// Geo returns county boundaries, narrowed to region.
func (d *Datasets) Geo(ctx context.Context, region string) (core.Table, error) {
	sql := fmt.Sprintf("SELECT * FROM `%s`", d.cfg.GeoTable)
	if filter := regionFilter(region); filter != "" {
		sql += " WHERE " + filter
	}
	t, err := d.query(ctx, sql)
	if err != nil {
		return core.Table{}, fmt.Errorf("query geo: %w", err)
	}
	return t.Named("geo"), nil
}

// DeprivationYears returns the distinct years of the deprivation source.
func (d *Datasets) DeprivationYears(ctx context.Context) ([]int, error) {
	if d.cfg.DeprivationURL != "" {
		records, err := d.deprivationRecords(ctx)
		if err != nil {
			return nil, err
		}
		return DeprivationYears(records), nil
	}

	sql := fmt.Sprintf("SELECT DISTINCT year FROM `%s`", d.cfg.DeprivationTable)
	t, err := d.query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query deprivation years: %w", err)
	}
	return core.YearsFromColumn(t, core.YearColumn), nil
}

// deprivationRecords returns the decoded mirror, reusing the previous download
// when ctx carries the same run ID. Calls without a run ID always download.
func (d *Datasets) deprivationRecords(ctx context.Context) ([]DeprivationRecord, error) {
	runID := logging.RunID(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if runID != "" && runID == d.mirrorRun {
		return d.mirrorRecs, nil
	}

	records, err := d.fetchMirror(ctx)
	if err != nil {
		return nil, err
	}
	if runID != "" {
		d.mirrorRun, d.mirrorRecs = runID, records
	}
	return records, nil
}

func (d *Datasets) fetchMirror(ctx context.Context) ([]DeprivationRecord, error) {
	body, err := d.csv.Open(ctx, d.cfg.DeprivationURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	records, err := DecodeDeprivationCSV(body)
	if err != nil {
		return nil, fmt.Errorf("fetch csv %s: %w", redact(d.cfg.DeprivationURL), err)
	}
	return records, nil
}

func (d *Datasets) query(ctx context.Context, sql string) (core.Table, error) {
	if d.querier == nil {
		return core.Table{}, fmt.Errorf("no warehouse querier configured for %q", sql)
	}
	return d.querier.Query(ctx, sql)
}

// regionFilter returns the SQL predicate for region, or "" for all regions.
// region has already been validated to two digits by core.NormalizeRegion.
func regionFilter(region string) string {
	if core.IsAllRegions(region) || region == "" {
		return ""
	}
	return fmt.Sprintf(`state_fips_code = "%s"`, strings.TrimSpace(region))
}
