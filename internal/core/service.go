package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/countydash/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Service runs the merge pipeline against injected sources and a warehouse.
type Service struct {
	reader    DatasetReader
	publisher Publisher
	overrides SchemaOverrides
	runs      *RunLimiter
}

// NewService creates a new Service instance. overrides is passed to every
// Publish call; a nil map publishes inferred types only.
func NewService(reader DatasetReader, publisher Publisher, overrides SchemaOverrides) *Service {
	return &Service{
		reader:    reader,
		publisher: publisher,
		overrides: overrides,
		runs:      NewRunLimiter(DefaultMaxConcurrentRuns),
	}
}

// RunStatus reports whether a load or update is currently running.
func (s *Service) RunStatus() RunLimiterStatus {
	return s.runs.Status()
}

// WaitForRuns blocks until the active run finishes or ctx is done.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.runs.WaitForDrain(ctx)
}

// Merge builds the merged table for one year without publishing it.
func (s *Service) Merge(ctx context.Context, year int, region string) (Table, error) {
	region, err := NormalizeRegion(region)
	if err != nil {
		return Table{}, err
	}
	ctx, _ = logging.EnsureRunID(ctx)
	prices, geo, err := s.fetchBase(ctx, region)
	if err != nil {
		return Table{}, err
	}
	return s.mergeYear(ctx, year, region, prices, geo)
}

// Coverage reports the years held by each source and the years still
// missing from target. A target table that does not exist yet counts as
// having no published years.
func (s *Service) Coverage(ctx context.Context, target TableRef) (Coverage, error) {
	if err := target.Validate(); err != nil {
		return Coverage{}, err
	}
	return s.coverage(ctx, target, nil)
}

// coverage runs the distinct-year lookups concurrently and differences them
// once all have returned. When prices is non-nil its header is used instead
// of fetching the price source again.
func (s *Service) coverage(ctx context.Context, target TableRef, prices *Table) (Coverage, error) {
	var cov Coverage
	g, gctx := errgroup.WithContext(ctx)

	if prices != nil {
		cov.PriceYears = PriceYears(prices.Columns)
	} else {
		g.Go(func() error {
			t, err := s.reader.Prices(gctx)
			if err != nil {
				return fmt.Errorf("price years: %w", err)
			}
			cov.PriceYears = PriceYears(t.Columns)
			return nil
		})
	}

	g.Go(func() error {
		years, err := s.reader.DeprivationYears(gctx)
		if err != nil {
			return fmt.Errorf("deprivation years: %w", err)
		}
		cov.DeprivationYears = years
		return nil
	})

	g.Go(func() error {
		years, err := s.publisher.PublishedYears(gctx, target)
		if errors.Is(err, ErrTableNotFound) {
			years, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("published years: %w", err)
		}
		cov.PublishedYears = years
		return nil
	})

	if err := g.Wait(); err != nil {
		return Coverage{}, err
	}

	cov.Missing = MissingYears(cov.PriceYears, cov.DeprivationYears, cov.PublishedYears)
	logging.FromContext(ctx).Debug("coverage computed",
		"target", target.String(),
		"price_years", len(cov.PriceYears),
		"deprivation_years", len(cov.DeprivationYears),
		"published_years", len(cov.PublishedYears),
		"missing", cov.Missing,
	)
	return cov, nil
}

// fetchBase loads the two year-independent sources concurrently. The geo
// table comes back key-normalized and filtered to region.
func (s *Service) fetchBase(ctx context.Context, region string) (prices, geo Table, err error) {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		t, err := s.reader.Prices(gctx)
		if err != nil {
			return fmt.Errorf("load prices: %w", err)
		}
		prices = t
		return nil
	})

	g.Go(func() error {
		t, err := s.reader.Geo(gctx, region)
		if err != nil {
			return fmt.Errorf("load geo: %w", err)
		}
		geo = FilterRegion(NormalizeKeys(t), region)
		return nil
	})

	if err := g.Wait(); err != nil {
		return Table{}, Table{}, err
	}

	logging.FromContext(ctx).Info("sources loaded",
		"region", region,
		"price_rows", prices.Len(),
		"geo_rows", geo.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return prices, geo, nil
}

// mergeYear aggregates prices for year, loads that year's deprivation rows,
// and joins everything with geo. Every output row carries the target year.
func (s *Service) mergeYear(ctx context.Context, year int, region string, prices, geo Table) (Table, error) {
	aggregated, err := AggregatePrices(prices, strconv.Itoa(year), region)
	if err != nil {
		return Table{}, fmt.Errorf("aggregate prices %d: %w", year, err)
	}

	adi, err := s.reader.Deprivation(ctx, year, region)
	if err != nil {
		return Table{}, fmt.Errorf("load deprivation %d: %w", year, err)
	}
	adi = FilterRegion(NormalizeKeys(adi), region)

	merged, err := MergeSources(geo, adi, aggregated)
	if err != nil {
		return Table{}, fmt.Errorf("merge %d: %w", year, err)
	}

	merged = StampYear(merged, year)
	logging.FromContext(ctx).Debug("merged year",
		"year", year,
		"region", region,
		"geo_rows", geo.Len(),
		"adi_rows", adi.Len(),
		"price_rows", aggregated.Len(),
		"rows", merged.Len(),
	)
	return merged, nil
}
