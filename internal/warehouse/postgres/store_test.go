package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"
)

var testSchema = []core.ColumnSchema{
	{Name: "county_fips_code", Type: core.TypeString},
	{Name: "county_geom", Type: core.TypeGeography},
	{Name: "average", Type: core.TypeFloat},
	{Name: "year", Type: core.TypeInteger},
}

func TestPgType(t *testing.T) {
	tests := []struct {
		in   core.ColumnType
		want string
	}{
		{core.TypeString, "text"},
		{core.TypeInteger, "bigint"},
		{core.TypeFloat, "double precision"},
		{core.TypeBoolean, "boolean"},
		{core.TypeTimestamp, "timestamptz"},
		{core.TypeGeography, "geography"},
		{"", "text"},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			if got := pgType(tt.in); got != tt.want {
				t.Errorf("pgType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTableIdent(t *testing.T) {
	ref := core.TableRef{Project: "ignored", Dataset: "housing", Table: `odd"name`}
	want := `"housing"."odd""name"`
	if got := tableIdent(ref); got != want {
		t.Errorf("tableIdent() = %s, want %s", got, want)
	}
}

func TestCreateTableSQL(t *testing.T) {
	got := createTableSQL(`"housing"."county"`, testSchema)
	want := `CREATE TABLE IF NOT EXISTS "housing"."county" (` +
		`"county_fips_code" text, "county_geom" geography, "average" double precision, "year" bigint)`
	if got != want {
		t.Errorf("createTableSQL()\n got: %s\nwant: %s", got, want)
	}
}

func TestStagingTableSQL(t *testing.T) {
	got := stagingTableSQL(testSchema)
	want := `CREATE TEMP TABLE "countydash_staging" (` +
		`"county_fips_code" text, "county_geom" text, "average" double precision, "year" bigint) ON COMMIT DROP`
	if got != want {
		t.Errorf("stagingTableSQL()\n got: %s\nwant: %s", got, want)
	}
}

func TestInsertSelectSQL(t *testing.T) {
	got := insertSelectSQL(`"housing"."county"`, testSchema)
	want := `INSERT INTO "housing"."county" ("county_fips_code", "county_geom", "average", "year") ` +
		`SELECT "county_fips_code", ST_GeogFromText("county_geom"), "average", "year" FROM "countydash_staging"`
	if got != want {
		t.Errorf("insertSelectSQL()\n got: %s\nwant: %s", got, want)
	}
}

func TestAddColumnsSQL(t *testing.T) {
	got := addColumnsSQL(`"housing"."county"`, testSchema[2:])
	want := []string{
		`ALTER TABLE "housing"."county" ADD COLUMN IF NOT EXISTS "average" double precision`,
		`ALTER TABLE "housing"."county" ADD COLUMN IF NOT EXISTS "year" bigint`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("addColumnsSQL() mismatch (-want +got):\n%s", diff)
	}
}

func TestCopyRows(t *testing.T) {
	tbl := core.NewTable("merged", []string{"county_fips_code", "county_geom", "average", "year"}, []core.Row{
		{"county_fips_code": "06037", "county_geom": "POINT(1 2)", "average": 130.5, "year": 2021},
		{"county_fips_code": "06003", "average": "n/a", "year": int64(2021)},
	})

	got := copyRows(tbl, testSchema)
	want := [][]any{
		{"06037", "POINT(1 2)", 130.5, int64(2021)},
		{"06003", nil, nil, int64(2021)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("copyRows() mismatch (-want +got):\n%s", diff)
	}
}

func TestCopyRows_Timestamp(t *testing.T) {
	ts := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	tbl := core.NewTable("merged", []string{"loaded_at"}, []core.Row{{"loaded_at": ts}})

	got := copyRows(tbl, []core.ColumnSchema{{Name: "loaded_at", Type: core.TypeTimestamp}})
	if v, ok := got[0][0].(time.Time); !ok || !v.Equal(ts) {
		t.Errorf("copyRows() = %v, want %v", got[0][0], ts)
	}
}

func TestIsUndefinedTable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"undefined table", &pgconn.PgError{Code: "42P01"}, true},
		{"wrapped", fmt.Errorf("query: %w", &pgconn.PgError{Code: "42P01"}), true},
		{"undefined column", &pgconn.PgError{Code: "42703"}, false},
		{"other", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUndefinedTable(tt.err); got != tt.want {
				t.Errorf("isUndefinedTable() = %v, want %v", got, tt.want)
			}
		})
	}
}
