// Package bigquery publishes merged tables to BigQuery and runs the source
// queries against the public datasets.
package bigquery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/JonMunkholm/countydash/internal/logging"
)

// DefaultLocation is where datasets are created when none is configured.
const DefaultLocation = "US"

// DefaultCreateTimeout bounds dataset creation.
const DefaultCreateTimeout = 30 * time.Second

// Config holds client settings.
type Config struct {
	Location      string
	CreateTimeout time.Duration
}

// Client wraps a BigQuery client. It implements core.Querier and core.Publisher.
type Client struct {
	bq            *bq.Client
	location      string
	createTimeout time.Duration
}

// New creates a client billed to projectID. Credentials come from the
// environment (Application Default Credentials).
func New(ctx context.Context, projectID string, cfg Config) (*Client, error) {
	c, err := bq.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery: new client: %w", err)
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = DefaultCreateTimeout
	}
	return &Client{bq: c, location: cfg.Location, createTimeout: cfg.CreateTimeout}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.bq.Close()
}

// Query runs sql and returns the full result set.
func (c *Client) Query(ctx context.Context, sql string) (core.Table, error) {
	start := time.Now()
	q := c.bq.Query(sql)
	q.Location = c.location

	it, err := q.Read(ctx)
	if err != nil {
		return core.Table{}, fmt.Errorf("bigquery: run query: %w", err)
	}

	t := core.Table{Name: "query"}
	for {
		var values []bq.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return core.Table{}, fmt.Errorf("bigquery: read rows: %w", err)
		}
		if t.Columns == nil {
			t.Columns = fieldNames(it.Schema)
			t.Types = columnTypes(it.Schema)
		}
		t.Rows = append(t.Rows, rowFromValues(it.Schema, values))
	}
	if t.Columns == nil {
		t.Columns = fieldNames(it.Schema)
		t.Types = columnTypes(it.Schema)
	}

	logging.FromContext(ctx).Debug("bigquery query completed",
		"rows", t.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return t, nil
}

// EnsureDataset creates the dataset holding ref. An existing dataset is not an error.
func (c *Client) EnsureDataset(ctx context.Context, ref core.TableRef) error {
	ctx, cancel := context.WithTimeout(ctx, c.createTimeout)
	defer cancel()

	ds := c.bq.DatasetInProject(ref.Project, ref.Dataset)
	err := ds.Create(ctx, &bq.DatasetMetadata{Location: c.location})
	if err != nil && !hasStatus(err, http.StatusConflict) {
		return fmt.Errorf("bigquery: create dataset %s.%s: %w", ref.Project, ref.Dataset, err)
	}
	if err == nil {
		logging.FromContext(ctx).Info("dataset created",
			"dataset", ref.Project+"."+ref.Dataset,
			"location", c.location,
		)
	}
	return nil
}

// Publish loads t into ref as newline-delimited JSON with an explicit schema.
// Replace truncates the table; append adds rows and allows new nullable columns.
func (c *Client) Publish(ctx context.Context, ref core.TableRef, t core.Table, mode core.WriteMode, overrides core.SchemaOverrides) error {
	if mode == core.WriteAppend && t.Len() == 0 {
		return nil
	}

	start := time.Now()
	columns := core.InferSchema(t, overrides)

	var buf bytes.Buffer
	if err := WriteNDJSON(&buf, t, columns); err != nil {
		return fmt.Errorf("bigquery: encode rows: %w", err)
	}

	src := bq.NewReaderSource(&buf)
	src.SourceFormat = bq.JSON
	src.Schema = Schema(columns)

	loader := c.bq.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table).LoaderFrom(src)
	loader.Location = c.location
	loader.CreateDisposition = bq.CreateIfNeeded
	switch mode {
	case core.WriteReplace:
		loader.WriteDisposition = bq.WriteTruncate
	case core.WriteAppend:
		loader.WriteDisposition = bq.WriteAppend
		loader.SchemaUpdateOptions = []string{"ALLOW_FIELD_ADDITION"}
	default:
		return fmt.Errorf("bigquery: unknown write mode %q", mode)
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("bigquery: start load %s: %w", ref, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("bigquery: wait for load %s: %w", ref, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("bigquery: load %s: %w", ref, err)
	}

	logging.FromContext(ctx).Info("bigquery load completed",
		"target", ref.String(),
		"mode", string(mode),
		"rows", t.Len(),
		"job_id", job.ID(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// PublishedYears returns the distinct years in ref. A missing table has none.
func (c *Client) PublishedYears(ctx context.Context, ref core.TableRef) ([]int, error) {
	tbl := c.bq.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table)
	if _, err := tbl.Metadata(ctx); err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("bigquery: table metadata %s: %w", ref, err)
	}

	t, err := c.Query(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM `%s`", core.YearColumn, ref))
	if err != nil {
		return nil, err
	}
	return core.YearsFromColumn(t, core.YearColumn), nil
}

func hasStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}
