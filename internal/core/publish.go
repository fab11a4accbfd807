package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/countydash/internal/logging"
)

// FullLoad merges one year, replaces target with it, and then appends every
// other year the sources cover that target is still missing.
//
// The returned report is populated as far as the run got. When only the
// follow-up update fails for some years, the error is a *PartialError and
// report.Update lists which years failed.
func (s *Service) FullLoad(ctx context.Context, year, region string, target TableRef) (LoadReport, error) {
	y, err := ParseYear(year)
	if err != nil {
		return LoadReport{}, err
	}
	region, err = NormalizeRegion(region)
	if err != nil {
		return LoadReport{}, err
	}
	if err := target.Validate(); err != nil {
		return LoadReport{}, err
	}

	if !s.runs.TryAcquire() {
		return LoadReport{}, ErrUpdateInProgress
	}
	defer s.runs.Release()

	ctx, runID := logging.EnsureRunID(ctx)
	logger := logging.WithFields(ctx, "year", y, "region", region, "target", target.String())
	report := LoadReport{RunID: runID, Year: y, Region: region, Target: target.String()}

	start := time.Now()
	logger.Info("full load started")

	if err := s.publisher.EnsureDataset(ctx, target); err != nil {
		return report, fmt.Errorf("ensure dataset: %w", err)
	}

	prices, geo, err := s.fetchBase(ctx, region)
	if err != nil {
		return report, err
	}

	merged, err := s.mergeYear(ctx, y, region, prices, geo)
	if err != nil {
		return report, err
	}

	if err := s.publisher.Publish(ctx, target, merged, WriteReplace, s.overrides); err != nil {
		return report, fmt.Errorf("publish %d: %w", y, err)
	}
	report.Rows = merged.Len()
	logger.Info("full load published",
		"rows", merged.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	update, err := s.incrementalUpdate(ctx, region, target, prices, geo)
	update.RunID = runID
	report.Update = &update
	return report, err
}

// IncrementalUpdate appends every year present in both sources but missing
// from target, in ascending order.
//
// Each year is merged and appended independently. A failing year is
// recorded in the report and the loop moves on; when any year failed the
// returned error is a *PartialError. Running it again with no new source
// data finds nothing missing and appends nothing.
func (s *Service) IncrementalUpdate(ctx context.Context, region string, target TableRef) (UpdateReport, error) {
	region, err := NormalizeRegion(region)
	if err != nil {
		return UpdateReport{}, err
	}
	if err := target.Validate(); err != nil {
		return UpdateReport{}, err
	}

	if !s.runs.TryAcquire() {
		return UpdateReport{}, ErrUpdateInProgress
	}
	defer s.runs.Release()

	ctx, runID := logging.EnsureRunID(ctx)

	prices, geo, err := s.fetchBase(ctx, region)
	if err != nil {
		return UpdateReport{RunID: runID, Region: region, Target: target.String()}, err
	}

	report, err := s.incrementalUpdate(ctx, region, target, prices, geo)
	report.RunID = runID
	return report, err
}

func (s *Service) incrementalUpdate(ctx context.Context, region string, target TableRef, prices, geo Table) (UpdateReport, error) {
	report := UpdateReport{Region: region, Target: target.String()}
	logger := logging.WithFields(ctx, "region", region, "target", target.String())

	cov, err := s.coverage(ctx, target, &prices)
	if err != nil {
		return report, err
	}
	report.Missing = cov.Missing

	if len(cov.Missing) == 0 {
		logger.Info("no missing years")
		return report, nil
	}
	logger.Info("incremental update started", "missing", cov.Missing)

	failed := &PartialError{Attempted: len(cov.Missing)}
	for i, year := range cov.Missing {
		// Stop early on cancellation; the remaining years would all fail the same way.
		if err := ctx.Err(); err != nil {
			for _, y := range cov.Missing[i:] {
				failed.add(y, err)
				report.Failed = append(report.Failed, YearResult{Year: y, Error: err.Error()})
			}
			break
		}

		res, err := s.appendYear(ctx, year, region, target, prices, geo)
		if err != nil {
			logger.Error("append failed", "year", year, "error", err)
			res.Error = err.Error()
			failed.add(year, err)
			report.Failed = append(report.Failed, res)
			continue
		}
		if res.Rows == 0 {
			logger.Warn("year merged to no rows, nothing appended", "year", year)
			report.Skipped = append(report.Skipped, res)
			continue
		}
		logger.Info("append completed", "year", year, "rows", res.Rows, "duration_ms", res.DurationMs)
		report.Published = append(report.Published, res)
	}

	if len(failed.Years) > 0 {
		return report, failed
	}
	return report, nil
}

func (s *Service) appendYear(ctx context.Context, year int, region string, target TableRef, prices, geo Table) (YearResult, error) {
	start := time.Now()
	res := YearResult{Year: year}

	merged, err := s.mergeYear(ctx, year, region, prices, geo)
	if err != nil {
		res.DurationMs = time.Since(start).Milliseconds()
		return res, err
	}
	if merged.Len() == 0 {
		res.DurationMs = time.Since(start).Milliseconds()
		return res, nil
	}

	if err := s.publisher.Publish(ctx, target, merged, WriteAppend, s.overrides); err != nil {
		res.DurationMs = time.Since(start).Milliseconds()
		return res, fmt.Errorf("publish %d: %w", year, err)
	}

	res.Rows = merged.Len()
	res.DurationMs = time.Since(start).Milliseconds()
	return res, nil
}
