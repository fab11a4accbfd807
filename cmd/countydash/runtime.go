package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/countydash/internal/config"
	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/JonMunkholm/countydash/internal/source"
	bq "github.com/JonMunkholm/countydash/internal/warehouse/bigquery"
	"github.com/JonMunkholm/countydash/internal/warehouse/postgres"
)

// runtime holds the wired service and the clients it must close.
type runtime struct {
	service   *core.Service
	overrides core.SchemaOverrides
	closers   []func()
}

// newRuntime connects the sources and the configured warehouse. Sources are
// always read through BigQuery in project; the publisher follows
// WAREHOUSE_DRIVER.
func newRuntime(ctx context.Context, cfg *config.Config, project string) (*runtime, error) {
	rt := &runtime{}

	client, err := bq.New(ctx, project, bq.Config{
		Location:      cfg.Warehouse.Location,
		CreateTimeout: cfg.Warehouse.CreateTimeout,
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() {
		if err := client.Close(); err != nil {
			slog.Warn("bigquery close", "error", err)
		}
	})

	datasets := source.NewDatasets(source.Config{
		PriceURL:         cfg.Sources.PriceURL,
		DeprivationURL:   cfg.Sources.DeprivationURL,
		DeprivationTable: cfg.Sources.DeprivationTable,
		GeoTable:         cfg.Sources.GeoTable,
	}, source.NewCSVReader(cfg.Sources.HTTPTimeout), client)

	var publisher core.Publisher
	switch strings.ToLower(cfg.Warehouse.Driver) {
	case "postgres":
		store, err := postgres.New(ctx, cfg.Warehouse.DatabaseURL, postgres.PoolConfig{
			MaxConns: cfg.Warehouse.MaxConns,
			MinConns: cfg.Warehouse.MinConns,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		publisher = store
	case "bigquery":
		publisher = client
	default:
		rt.Close()
		return nil, fmt.Errorf("unknown warehouse driver %q", cfg.Warehouse.Driver)
	}

	rt.overrides = core.GeographyOverrides(cfg.Warehouse.GeographyColumns)
	rt.service = core.NewService(datasets, publisher, rt.overrides)

	slog.Info("runtime ready",
		"project", project,
		"driver", cfg.Warehouse.Driver,
		"geography_columns", cfg.Warehouse.GeographyColumns,
	)
	return rt, nil
}

// Close releases clients in reverse order of creation.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
