package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/countydash/internal/core"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status string                `json:"status"`
	Runs   core.RunLimiterStatus `json:"runs"`
}

// PartialResponse is returned when some years of an update failed.
type PartialResponse struct {
	Report any           `json:"report"`
	Error  ErrorResponse `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Runs: s.pipeline.RunStatus()})
}

// handleCoverage reports source and published years for the target table.
func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	cov, err := s.pipeline.Coverage(r.Context(), s.target(r))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, cov)
}

// handleIncremental appends every missing year. The run is detached from the
// request so a client disconnect does not abort a half-published update.
func (s *Server) handleIncremental(w http.ResponseWriter, r *http.Request) {
	target, err := s.adminTarget(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	report, err := s.pipeline.IncrementalUpdate(ctx, s.region(r), target)
	s.respondRun(w, r, report, err)
}

// handleFullLoad replaces the target with one year, then appends the rest.
func (s *Server) handleFullLoad(w http.ResponseWriter, r *http.Request) {
	year := r.URL.Query().Get("year")
	if year == "" {
		s.respondError(w, r, core.ErrInvalidYear, http.StatusBadRequest)
		return
	}
	target, err := s.adminTarget(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	report, err := s.pipeline.FullLoad(ctx, year, s.region(r), target)
	s.respondRun(w, r, report, err)
}

// respondRun writes a run report. A partial failure still returns the report.
func (s *Server) respondRun(w http.ResponseWriter, r *http.Request, report any, err error) {
	var partial *core.PartialError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.As(err, &partial):
		msg := s.logError(r, err, http.StatusMultiStatus)
		writeJSON(w, http.StatusMultiStatus, PartialResponse{Report: report, Error: errorResponse(msg)})
	default:
		s.respondError(w, r, err, statusFor(err))
	}
}

// target reads project, dataset and table from the query, falling back to
// the configured target for any that are missing.
func (s *Server) target(r *http.Request) core.TableRef {
	q := r.URL.Query()
	ref := core.TableRef{
		Project: s.opts.Target.Project,
		Dataset: s.opts.Target.Dataset,
		Table:   s.opts.Target.Table,
	}
	if v := q.Get("project"); v != "" {
		ref.Project = v
	}
	if v := q.Get("dataset"); v != "" {
		ref.Dataset = v
	}
	if v := q.Get("table"); v != "" {
		ref.Table = v
	}
	return ref
}

// adminTarget is target for the write routes. A full load drops the table it
// names, so naming anything but the configured table requires API keys.
func (s *Server) adminTarget(r *http.Request) (core.TableRef, error) {
	ref := s.target(r)
	if s.opts.Security.RequireAPIKey {
		return ref, nil
	}
	configured := core.TableRef{
		Project: s.opts.Target.Project,
		Dataset: s.opts.Target.Dataset,
		Table:   s.opts.Target.Table,
	}
	if ref != configured {
		return core.TableRef{}, fmt.Errorf("%w: %s", core.ErrTargetOverride, ref)
	}
	return ref, nil
}

func (s *Server) region(r *http.Request) string {
	if v := r.URL.Query().Get("region"); v != "" {
		return v
	}
	if s.opts.Target.Region != "" {
		return s.opts.Target.Region
	}
	return core.AllRegions
}
