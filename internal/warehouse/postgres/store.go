// Package postgres publishes merged county tables to PostgreSQL with the
// PostGIS extension. Datasets map to schemas; geography columns are created
// as PostGIS geography and loaded from WKT.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/JonMunkholm/countydash/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// stagingTable receives COPY rows before geography columns are parsed.
const stagingTable = "countydash_staging"

// codeUndefinedTable is the SQLSTATE for a missing relation.
const codeUndefinedTable = "42P01"

// PoolConfig tunes the connection pool. Zero values keep pgxpool defaults.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store implements core.Publisher on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and verifies the connection.
func New(ctx context.Context, databaseURL string, cfg PoolConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureDataset creates the schema named by ref.Dataset.
func (s *Store) EnsureDataset(ctx context.Context, ref core.TableRef) error {
	sql := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{ref.Dataset}.Sanitize()
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("postgres: create schema %s: %w", ref.Dataset, err)
	}
	return nil
}

// Publish writes t to ref in one transaction. Replace drops and recreates the
// table; append adds any new columns and keeps existing rows.
func (s *Store) Publish(ctx context.Context, ref core.TableRef, t core.Table, mode core.WriteMode, overrides core.SchemaOverrides) error {
	if mode == core.WriteAppend && t.Len() == 0 {
		return nil
	}

	schema := core.InferSchema(t, overrides)
	table := tableIdent(ref)
	logger := logging.FromContext(ctx)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var stmts []string
	if mode == core.WriteReplace {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+table)
	}
	stmts = append(stmts, createTableSQL(table, schema))
	if mode == core.WriteAppend {
		stmts = append(stmts, addColumnsSQL(table, schema)...)
	}
	for _, sql := range stmts {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("postgres: prepare %s: %w", ref, err)
		}
	}

	if t.Len() > 0 {
		if _, err := tx.Exec(ctx, stagingTableSQL(schema)); err != nil {
			return fmt.Errorf("postgres: create staging table: %w", err)
		}

		n, err := tx.CopyFrom(ctx, pgx.Identifier{stagingTable}, columnNames(schema), pgx.CopyFromRows(copyRows(t, schema)))
		if err != nil {
			return fmt.Errorf("postgres: copy %s: %w", ref, err)
		}

		if _, err := tx.Exec(ctx, insertSelectSQL(table, schema)); err != nil {
			return fmt.Errorf("postgres: insert %s: %w", ref, err)
		}
		logger.Debug("rows copied", "table", ref.String(), "rows", n)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit %s: %w", ref, err)
	}

	slog.Info("published to postgres",
		"table", ref.String(),
		"mode", string(mode),
		"rows", t.Len(),
	)
	return nil
}

// PublishedYears returns the distinct years in ref. A missing table yields nil.
func (s *Store) PublishedYears(ctx context.Context, ref core.TableRef) ([]int, error) {
	sql := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1",
		quote(core.YearColumn), tableIdent(ref), quote(core.YearColumn))

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: published years %s: %w", ref, err)
	}
	years, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: published years %s: %w", ref, err)
	}

	out := make([]int, len(years))
	for i, y := range years {
		out[i] = int(y)
	}
	return out, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable
}

func tableIdent(ref core.TableRef) string {
	return pgx.Identifier{ref.Dataset, ref.Table}.Sanitize()
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// pgType maps a warehouse column type to its PostgreSQL type.
func pgType(t core.ColumnType) string {
	switch t {
	case core.TypeInteger:
		return "bigint"
	case core.TypeFloat:
		return "double precision"
	case core.TypeBoolean:
		return "boolean"
	case core.TypeTimestamp:
		return "timestamptz"
	case core.TypeGeography:
		return "geography"
	default:
		return "text"
	}
}

// stagingType is pgType with geography carried as WKT text.
func stagingType(t core.ColumnType) string {
	if t == core.TypeGeography {
		return "text"
	}
	return pgType(t)
}

func columnDefs(schema []core.ColumnSchema, typeOf func(core.ColumnType) string) string {
	defs := make([]string, len(schema))
	for i, c := range schema {
		defs[i] = quote(c.Name) + " " + typeOf(c.Type)
	}
	return strings.Join(defs, ", ")
}

func createTableSQL(table string, schema []core.ColumnSchema) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, columnDefs(schema, pgType))
}

func addColumnsSQL(table string, schema []core.ColumnSchema) []string {
	out := make([]string, len(schema))
	for i, c := range schema {
		out[i] = fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table, quote(c.Name), pgType(c.Type))
	}
	return out
}

func stagingTableSQL(schema []core.ColumnSchema) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (%s) ON COMMIT DROP", quote(stagingTable), columnDefs(schema, stagingType))
}

func insertSelectSQL(table string, schema []core.ColumnSchema) string {
	cols := make([]string, len(schema))
	exprs := make([]string, len(schema))
	for i, c := range schema {
		cols[i] = quote(c.Name)
		if c.Type == core.TypeGeography {
			exprs[i] = fmt.Sprintf("ST_GeogFromText(%s)", quote(c.Name))
		} else {
			exprs[i] = quote(c.Name)
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		table, strings.Join(cols, ", "), strings.Join(exprs, ", "), quote(stagingTable))
}

func columnNames(schema []core.ColumnSchema) []string {
	names := make([]string, len(schema))
	for i, c := range schema {
		names[i] = c.Name
	}
	return names
}

// copyRows converts t to COPY input, coercing each cell to its column type.
func copyRows(t core.Table, schema []core.ColumnSchema) [][]any {
	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		vals := make([]any, len(schema))
		for j, c := range schema {
			vals[j] = core.Coerce(r[c.Name], c.Type)
		}
		rows[i] = vals
	}
	return rows
}
