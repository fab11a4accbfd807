package core

// types.go declares the collaborator interfaces the pipeline is built on and
// the value types that cross them.

import (
	"context"
	"fmt"
	"regexp"
)

// Querier runs a warehouse query and returns its result set as a Table.
// Satisfied by the BigQuery client adapter.
type Querier interface {
	Query(ctx context.Context, sql string) (Table, error)
}

// DatasetReader loads the three inputs of the merge pipeline.
//
// Region is either a two-digit state FIPS code or AllRegions. Implementations
// may narrow their reads by region; the pipeline filters again regardless.
type DatasetReader interface {
	// Prices returns the raw wide price table (one column per month).
	Prices(ctx context.Context) (Table, error)

	// Deprivation returns deprivation rows for a single year.
	Deprivation(ctx context.Context, year int, region string) (Table, error)

	// Geo returns county boundary rows.
	Geo(ctx context.Context, region string) (Table, error)

	// DeprivationYears returns the distinct years present in the deprivation source.
	DeprivationYears(ctx context.Context) ([]int, error)
}

// Publisher writes merged tables to the warehouse.
type Publisher interface {
	// EnsureDataset creates the dataset holding ref if it does not exist yet.
	EnsureDataset(ctx context.Context, ref TableRef) error

	// Publish writes t to ref using the given write mode. Columns listed in
	// overrides are created with the override type instead of the inferred one.
	Publish(ctx context.Context, ref TableRef, t Table, mode WriteMode, overrides SchemaOverrides) error

	// PublishedYears returns the distinct values of the year column in ref.
	// A table that does not exist yet has no published years and is not an error.
	PublishedYears(ctx context.Context, ref TableRef) ([]int, error)
}

// TableRef is a fully-qualified warehouse table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// String returns project.dataset.table.
func (r TableRef) String() string {
	return fmt.Sprintf("%s.%s.%s", r.Project, r.Dataset, r.Table)
}

var identRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks that every part is set and safe to splice into a query.
func (r TableRef) Validate() error {
	for _, part := range []string{r.Project, r.Dataset, r.Table} {
		if !identRegex.MatchString(part) {
			return fmt.Errorf("%w: %q", ErrInvalidTarget, r.String())
		}
	}
	return nil
}

// WriteMode selects how Publish treats an existing table.
type WriteMode string

const (
	WriteReplace WriteMode = "replace"
	WriteAppend  WriteMode = "append"
)

// ColumnType is a warehouse column type.
type ColumnType string

const (
	TypeString    ColumnType = "STRING"
	TypeInteger   ColumnType = "INTEGER"
	TypeFloat     ColumnType = "FLOAT"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeGeography ColumnType = "GEOGRAPHY"
)

// SchemaOverrides maps column names to the warehouse type they must be created with.
type SchemaOverrides map[string]ColumnType

// GeographyOverrides marks every named column as a geography column.
func GeographyOverrides(columns []string) SchemaOverrides {
	o := make(SchemaOverrides, len(columns))
	for _, c := range columns {
		o[c] = TypeGeography
	}
	return o
}

// YearResult records the outcome of publishing one year.
type YearResult struct {
	Year       int    `json:"year"`
	Rows       int    `json:"rows"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// UpdateReport summarises an incremental update run.
type UpdateReport struct {
	RunID     string       `json:"runId"`
	Region    string       `json:"region"`
	Target    string       `json:"target"`
	Missing   []int        `json:"missing"`
	Published []YearResult `json:"published"`
	Skipped   []YearResult `json:"skipped"` // Merged to zero rows; still missing afterwards
	Failed    []YearResult `json:"failed"`
}

// LoadReport summarises a full load, including the incremental update that follows it.
type LoadReport struct {
	RunID  string        `json:"runId"`
	Year   int           `json:"year"`
	Region string        `json:"region"`
	Target string        `json:"target"`
	Rows   int           `json:"rows"`
	Update *UpdateReport `json:"update,omitempty"`
}

// Coverage describes which years each source holds and which are still unpublished.
type Coverage struct {
	PriceYears       []int `json:"priceYears"`
	DeprivationYears []int `json:"deprivationYears"`
	PublishedYears   []int `json:"publishedYears"`
	Missing          []int `json:"missing"`
}
