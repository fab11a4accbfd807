package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JonMunkholm/countydash/internal/config"
	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/google/go-cmp/cmp"
)

type fakePipeline struct {
	err error

	gotYear   string
	gotRegion string
	gotTarget core.TableRef
}

func (f *fakePipeline) FullLoad(ctx context.Context, year, region string, target core.TableRef) (core.LoadReport, error) {
	f.gotYear, f.gotRegion, f.gotTarget = year, region, target
	return core.LoadReport{RunID: "run-1", Region: region, Target: target.String(), Rows: 3}, f.err
}

func (f *fakePipeline) IncrementalUpdate(ctx context.Context, region string, target core.TableRef) (core.UpdateReport, error) {
	f.gotRegion, f.gotTarget = region, target
	return core.UpdateReport{RunID: "run-1", Region: region, Target: target.String(), Missing: []int{2020}}, f.err
}

func (f *fakePipeline) Coverage(ctx context.Context, target core.TableRef) (core.Coverage, error) {
	f.gotTarget = target
	if f.err != nil {
		return core.Coverage{}, f.err
	}
	return core.Coverage{PriceYears: []int{2020, 2021}, DeprivationYears: []int{2020}, Missing: []int{2020}}, nil
}

func (f *fakePipeline) RunStatus() core.RunLimiterStatus {
	return core.RunLimiterStatus{Active: 0, Available: 1, MaxConcurrent: 1}
}

var defaultOpts = Options{
	Target: config.TargetConfig{Project: "proj", Dataset: "housing", Table: "county", Region: "06"},
}

func serve(t *testing.T, p Pipeline, opts Options, method, url string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	NewServer(p, opts).Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	rec := serve(t, &fakePipeline{}, defaultOpts, http.MethodGet, "/api/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	got := decode[HealthResponse](t, rec)
	if got.Status != "ok" || got.Runs.Available != 1 {
		t.Errorf("health = %+v", got)
	}
	if h := rec.Header().Get("X-Content-Type-Options"); h != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", h)
	}
}

func TestCoverage(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want core.TableRef
	}{
		{"configured target", "/api/coverage", core.TableRef{Project: "proj", Dataset: "housing", Table: "county"}},
		{"query overrides", "/api/coverage?dataset=other&table=merged", core.TableRef{Project: "proj", Dataset: "other", Table: "merged"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			rec := serve(t, p, defaultOpts, http.MethodGet, tt.url, nil)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if p.gotTarget != tt.want {
				t.Errorf("target = %+v, want %+v", p.gotTarget, tt.want)
			}
			got := decode[core.Coverage](t, rec)
			if diff := cmp.Diff([]int{2020}, got.Missing); diff != "" {
				t.Errorf("missing mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		url      string
		err      error
		wantCode int
		wantErr  string
	}{
		{"invalid target", http.MethodGet, "/api/coverage", fmt.Errorf("%w: %q", core.ErrInvalidTarget, "p.."), http.StatusBadRequest, "IN003"},
		{"invalid region", http.MethodPost, "/api/admin/incremental?region=CA", fmt.Errorf("%w: %q", core.ErrInvalidRegion, "CA"), http.StatusBadRequest, "IN002"},
		{"in progress", http.MethodPost, "/api/admin/incremental", core.ErrUpdateInProgress, http.StatusConflict, "UPD001"},
		{"missing key", http.MethodPost, "/api/admin/full-load?year=2021", &core.KeyColumnError{Table: "adi", Column: core.KeyColumn}, http.StatusBadGateway, "KEY001"},
		{"warehouse", http.MethodGet, "/api/coverage", errors.New("bigquery: load job failed"), http.StatusInternalServerError, "WH001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakePipeline{err: tt.err}, defaultOpts, tt.method, tt.url, nil)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			got := decode[ErrorResponse](t, rec)
			if got.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", got.Code, tt.wantErr)
			}
			if got.Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

func TestIncremental(t *testing.T) {
	p := &fakePipeline{}
	rec := serve(t, p, defaultOpts, http.MethodPost, "/api/admin/incremental", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if p.gotRegion != "06" {
		t.Errorf("region = %q, want configured %q", p.gotRegion, "06")
	}
	got := decode[core.UpdateReport](t, rec)
	if got.RunID != "run-1" {
		t.Errorf("runId = %q, want %q", got.RunID, "run-1")
	}
}

func TestIncremental_Partial(t *testing.T) {
	p := &fakePipeline{err: &core.PartialError{Attempted: 2, Years: []int{2020}, Errs: []error{errors.New("boom")}}}
	rec := serve(t, p, defaultOpts, http.MethodPost, "/api/admin/incremental?region=All", nil)

	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMultiStatus)
	}
	if p.gotRegion != "All" {
		t.Errorf("region = %q, want %q", p.gotRegion, "All")
	}

	var body struct {
		Report core.UpdateReport `json:"report"`
		Error  ErrorResponse     `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "UPD002" {
		t.Errorf("code = %q, want UPD002", body.Error.Code)
	}
	if diff := cmp.Diff([]int{2020}, body.Report.Missing); diff != "" {
		t.Errorf("report missing mismatch (-want +got):\n%s", diff)
	}
}

func TestFullLoad(t *testing.T) {
	p := &fakePipeline{}
	rec := serve(t, p, defaultOpts, http.MethodPost, "/api/admin/full-load?year=2021&region=36", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if p.gotYear != "2021" || p.gotRegion != "36" {
		t.Errorf("year, region = %q, %q, want 2021, 36", p.gotYear, p.gotRegion)
	}
	want := core.TableRef{Project: "proj", Dataset: "housing", Table: "county"}
	if p.gotTarget != want {
		t.Errorf("target = %+v, want %+v", p.gotTarget, want)
	}
}

func TestAdminRoutes_TargetOverride(t *testing.T) {
	keyed := defaultOpts
	keyed.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}

	tests := []struct {
		name       string
		opts       Options
		url        string
		wantStatus int
		wantTarget core.TableRef
	}{
		{
			name:       "full load override without api keys",
			opts:       defaultOpts,
			url:        "/api/admin/full-load?year=2021&project=other",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "incremental override without api keys",
			opts:       defaultOpts,
			url:        "/api/admin/incremental?table=scratch",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "naming the configured table is fine",
			opts:       defaultOpts,
			url:        "/api/admin/incremental?dataset=housing&table=county",
			wantStatus: http.StatusOK,
			wantTarget: core.TableRef{Project: "proj", Dataset: "housing", Table: "county"},
		},
		{
			name:       "override with api keys",
			opts:       keyed,
			url:        "/api/admin/full-load?year=2021&project=other",
			wantStatus: http.StatusOK,
			wantTarget: core.TableRef{Project: "other", Dataset: "housing", Table: "county"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			header := http.Header{}
			if tt.opts.Security.RequireAPIKey {
				header.Set("X-API-Key", "k1")
			}

			rec := serve(t, p, tt.opts, http.MethodPost, tt.url, header)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if p.gotTarget != tt.wantTarget {
				t.Errorf("target = %+v, want %+v", p.gotTarget, tt.wantTarget)
			}
			if tt.wantStatus == http.StatusForbidden {
				if got := decode[ErrorResponse](t, rec); got.Code != "IN004" {
					t.Errorf("code = %q, want IN004", got.Code)
				}
			}
		})
	}
}

func TestFullLoad_MissingYear(t *testing.T) {
	p := &fakePipeline{}
	rec := serve(t, p, defaultOpts, http.MethodPost, "/api/admin/full-load", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != "IN001" {
		t.Errorf("code = %q, want IN001", got.Code)
	}
	if p.gotTarget != (core.TableRef{}) {
		t.Error("pipeline should not be called without a year")
	}
}

func TestAdminRoutes_MethodNotAllowed(t *testing.T) {
	rec := serve(t, &fakePipeline{}, defaultOpts, http.MethodGet, "/api/admin/incremental", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestAdminRoutes_APIKey(t *testing.T) {
	opts := defaultOpts
	opts.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}

	tests := []struct {
		name   string
		url    string
		key    string
		status int
	}{
		{"missing key", "/api/admin/incremental", "", http.StatusUnauthorized},
		{"wrong key", "/api/admin/incremental", "nope", http.StatusForbidden},
		{"valid key", "/api/admin/incremental", "k2", http.StatusOK},
		{"health is open", "/api/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if tt.url == "/api/health" {
				method = http.MethodGet
			}
			header := http.Header{}
			if tt.key != "" {
				header.Set("X-API-Key", tt.key)
			}

			rec := serve(t, &fakePipeline{}, opts, method, tt.url, header)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrInvalidYear, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", core.ErrUpdateInProgress), http.StatusConflict},
		{fmt.Errorf("%w: p.d.t", core.ErrTargetOverride), http.StatusForbidden},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
