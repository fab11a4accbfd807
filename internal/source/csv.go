// Package source reads the pipeline inputs: the price CSV over HTTP, the
// deprivation and geo datasets through a warehouse query, and an optional
// CSV mirror of the deprivation data.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/JonMunkholm/countydash/internal/logging"
)

// DefaultHTTPTimeout bounds a single source download.
const DefaultHTTPTimeout = 2 * time.Minute

// missingTokens are cell values read as missing, matching what spreadsheet
// exports of these datasets use for empty observations.
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
}

// CSVReader downloads CSV files over HTTP.
type CSVReader struct {
	client *http.Client
}

// NewCSVReader creates a reader whose requests time out after timeout.
func NewCSVReader(timeout time.Duration) *CSVReader {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &CSVReader{client: &http.Client{Timeout: timeout}}
}

// Open issues the GET request and returns the body with any BOM removed.
// The caller must close the returned reader.
func (r *CSVReader) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch csv %s: %w", redact(url), err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch csv %s: %w", redact(url), err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch csv %s: unexpected status %s", redact(url), resp.Status)
	}

	return struct {
		io.Reader
		io.Closer
	}{skipBOM(resp.Body), resp.Body}, nil
}

// Fetch downloads url and parses it into a Table with inferred column types.
func (r *CSVReader) Fetch(ctx context.Context, url string) (core.Table, error) {
	start := time.Now()

	body, err := r.Open(ctx, url)
	if err != nil {
		return core.Table{}, err
	}
	defer body.Close()

	t, err := ReadTable("csv", body)
	if err != nil {
		return core.Table{}, fmt.Errorf("fetch csv %s: %w", redact(url), err)
	}

	logging.FromContext(ctx).Debug("csv fetched",
		"url", redact(url),
		"rows", t.Len(),
		"columns", len(t.Columns),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return t, nil
}

// ReadTable parses CSV from rd. The first record is the header.
//
// Column types are inferred per column: a column whose non-missing cells
// all parse as integers holds int64, one whose cells all parse as numbers
// holds float64, and anything else holds strings. Missing cells are nil.
func ReadTable(name string, rd io.Reader) (core.Table, error) {
	cr := csv.NewReader(rd)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return core.Table{Name: name}, nil
	}
	if err != nil {
		return core.Table{}, fmt.Errorf("parse csv header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return core.Table{}, fmt.Errorf("parse csv: %w", err)
		}
		records = append(records, rec)
	}

	kinds := make([]cellKind, len(header))
	for i := range header {
		kinds[i] = inferKind(records, i)
	}

	rows := make([]core.Row, len(records))
	for r, rec := range records {
		row := make(core.Row, len(header))
		for i, col := range header {
			row[col] = convertCell(rec[i], kinds[i])
		}
		rows[r] = row
	}

	types := make(map[string]core.ColumnType, len(header))
	for i, col := range header {
		if typ, ok := kindTypes[kinds[i]]; ok {
			types[col] = typ
		}
	}

	return core.Table{Name: name, Columns: header, Rows: rows, Types: types}, nil
}

type cellKind int

const (
	kindMissing cellKind = iota
	kindInt
	kindFloat
	kindString
)

// kindTypes declares a warehouse type for every column with at least one cell.
var kindTypes = map[cellKind]core.ColumnType{
	kindInt:    core.TypeInteger,
	kindFloat:  core.TypeFloat,
	kindString: core.TypeString,
}

func inferKind(records [][]string, col int) cellKind {
	kind := kindMissing
	for _, rec := range records {
		cell := strings.TrimSpace(rec[col])
		if missingTokens[cell] {
			continue
		}
		if kind == kindMissing {
			kind = kindInt
		}
		if kind == kindInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
				continue
			}
			kind = kindFloat
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return kindString
		}
	}
	return kind
}

func convertCell(cell string, kind cellKind) core.Value {
	trimmed := strings.TrimSpace(cell)
	if missingTokens[trimmed] {
		return nil
	}
	switch kind {
	case kindInt:
		n, _ := strconv.ParseInt(trimmed, 10, 64)
		return n
	case kindFloat:
		f, _ := strconv.ParseFloat(trimmed, 64)
		return f
	default:
		return cell
	}
}

// redact drops the query string, which for some mirrors carries a token.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
