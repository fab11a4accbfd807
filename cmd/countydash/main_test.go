package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"testing"

	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/google/go-cmp/cmp"
)

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    []string
		wantErr bool
	}{
		{"full load ok", "run_full_load", []string{"2021", "06", "p", "d", "t"}, false},
		{"full load missing table", "run_full_load", []string{"2021", "06", "p", "d"}, true},
		{"full load extra", "run_full_load", []string{"2021", "06", "p", "d", "t", "x"}, true},
		{"incremental ok", "run_incremental_update", []string{"All", "p", "d", "t"}, false},
		{"incremental missing region", "run_incremental_update", []string{"p", "d", "t"}, true},
		{"coverage ok", "coverage", []string{"p", "d", "t"}, false},
		{"coverage none", "coverage", nil, true},
		{"merge ok", "merge", []string{"2020", "All"}, false},
		{"merge missing region", "merge", []string{"2020"}, true},
		{"serve ok", "serve", nil, false},
		{"serve args", "serve", []string{"x"}, true},
	}

	root := newRootCmd()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _, err := root.Find([]string{tt.command})
			if err != nil {
				t.Fatalf("Find(%q) error = %v", tt.command, err)
			}
			if cmd.Name() != tt.command {
				t.Fatalf("Find(%q) = %q", tt.command, cmd.Name())
			}

			err = cmd.Args(cmd, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Args(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestWrongArgCountFailsBeforeLoadingConfig(t *testing.T) {
	t.Setenv("WAREHOUSE_DRIVER", "not-a-driver")

	root := newRootCmd()
	root.SetArgs([]string{"run_full_load", "2021"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err := root.Execute()
	if err == nil {
		t.Fatal("Execute() expected error for wrong arg count")
	}
	// A config error would mention the driver; the arg check must win.
	if got := err.Error(); got == "" || strings.Contains(got, "WAREHOUSE_DRIVER") {
		t.Errorf("Execute() error = %q, want an argument count error", got)
	}
}

func TestServeResult(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"nil", nil, false},
		{"closed by shutdown", http.ErrServerClosed, false},
		{"port in use", fmt.Errorf("listen tcp :8080: %w", syscall.EADDRINUSE), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := serveResult(tt.err)
			if (err != nil) != tt.wantErr {
				t.Fatalf("serveResult(%v) = %v, wantErr %v", tt.err, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, tt.err) {
				t.Errorf("serveResult(%v) = %v, want it wrapped", tt.err, err)
			}
		})
	}
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantGuidance bool
	}{
		{"known pattern", fmt.Errorf("run: %w", core.ErrUpdateInProgress), true},
		{"unknown error", errors.New("something odd"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			reportError(&buf, tt.err)

			got := buf.String()
			if !strings.HasPrefix(got, "Error: "+tt.err.Error()) {
				t.Errorf("output = %q, want it to start with the error", got)
			}
			if has := strings.Contains(got, "(Code: "); has != tt.wantGuidance {
				t.Errorf("output = %q, guidance shown = %v, want %v", got, has, tt.wantGuidance)
			}
		})
	}
}

func TestNewMergePreview(t *testing.T) {
	merged := core.NewTable("merged",
		[]string{"county_fips_code", "county_geom", "average"},
		[]core.Row{
			{"county_fips_code": "06037", "county_geom": "POINT(1 2)", "average": 1.5},
			{"county_fips_code": "06001", "county_geom": nil, "average": nil},
		})

	got := newMergePreview(2020, "06", merged, core.GeographyOverrides([]string{"county_geom"}), 5)

	wantCols := []core.ColumnSchema{
		{Name: "county_fips_code", Type: core.TypeString},
		{Name: "county_geom", Type: core.TypeGeography},
		{Name: "average", Type: core.TypeFloat},
	}
	if diff := cmp.Diff(wantCols, got.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if got.Rows != 2 || len(got.Sample) != 2 {
		t.Errorf("rows = %d, sample = %d, want 2 and 2 (limit clamped)", got.Rows, len(got.Sample))
	}

	if none := newMergePreview(2020, "06", merged, nil, 0); none.Sample != nil {
		t.Errorf("sample = %v, want none without --rows", none.Sample)
	}
}
