package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/countydash/internal/config"
	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/JonMunkholm/countydash/internal/logging"
	"github.com/JonMunkholm/countydash/internal/web"
	"github.com/spf13/cobra"
)

// app carries what the root command loads before any subcommand runs.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "countydash",
		Short:         "Merge county housing prices, deprivation and boundaries into one warehouse table",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are valid by now; later failures are not usage errors.
			cmd.SilenceUsage = true

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
			slog.Debug("configuration loaded", "config", cfg.String())
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		a.fullLoadCmd(),
		a.incrementalCmd(),
		a.coverageCmd(),
		a.mergeCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) fullLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run_full_load <year> <region_code|All> <project_id> <dataset_name> <table_id>",
		Short: "Replace the table with one year, then append every missing year",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			target := core.TableRef{Project: args[2], Dataset: args[3], Table: args[4]}
			rt, err := newRuntime(ctx, a.cfg, target.Project)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.service.FullLoad(ctx, args[0], args[1], target)
			if report.RunID != "" {
				printJSON(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
}

func (a *app) incrementalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run_incremental_update <region_code|All> <project_id> <dataset_name> <table_id>",
		Short: "Append every year present in both sources but missing from the table",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			target := core.TableRef{Project: args[1], Dataset: args[2], Table: args[3]}
			rt, err := newRuntime(ctx, a.cfg, target.Project)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.service.IncrementalUpdate(ctx, args[0], target)
			if report.RunID != "" {
				printJSON(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
}

func (a *app) coverageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "coverage <project_id> <dataset_name> <table_id>",
		Short: "Show source years, published years and the years still missing",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			target := core.TableRef{Project: args[0], Dataset: args[1], Table: args[2]}
			rt, err := newRuntime(ctx, a.cfg, target.Project)
			if err != nil {
				return err
			}
			defer rt.Close()

			cov, err := rt.service.Coverage(ctx, target)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), cov)
			return nil
		},
	}
}

// mergePreview is what the merge command prints instead of publishing.
type mergePreview struct {
	Year    int                 `json:"year"`
	Region  string              `json:"region"`
	Rows    int                 `json:"rows"`
	Columns []core.ColumnSchema `json:"columns"`
	Sample  []core.Row          `json:"sample,omitempty"`
}

func newMergePreview(year int, region string, merged core.Table, overrides core.SchemaOverrides, limit int) mergePreview {
	p := mergePreview{
		Year:    year,
		Region:  region,
		Rows:    merged.Len(),
		Columns: core.InferSchema(merged, overrides),
	}
	if limit > merged.Len() {
		limit = merged.Len()
	}
	if limit > 0 {
		p.Sample = merged.Rows[:limit]
	}
	return p
}

func (a *app) mergeCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "merge <year> <region_code|All>",
		Short: "Build one year's merged table and print its schema without publishing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := core.ParseYear(args[0])
			if err != nil {
				return err
			}
			region, err := core.NormalizeRegion(args[1])
			if err != nil {
				return err
			}

			if a.cfg.Target.Project == "" {
				return fmt.Errorf("merge: TARGET_PROJECT is required")
			}

			ctx, stop := signalContext()
			defer stop()

			rt, err := newRuntime(ctx, a.cfg, a.cfg.Target.Project)
			if err != nil {
				return err
			}
			defer rt.Close()

			merged, err := rt.service.Merge(ctx, year, region)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), newMergePreview(year, region, merged, rt.overrides, limit))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "rows", 0, "number of merged rows to include in the output")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the admin HTTP server and, when UPDATE_INTERVAL is set, the update scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}
}

func (a *app) serve() error {
	cfg := a.cfg
	if cfg.Target.Project == "" {
		return fmt.Errorf("serve: TARGET_PROJECT is required")
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx, cfg, cfg.Target.Project)
	if err != nil {
		return err
	}
	defer rt.Close()

	server := web.NewServer(rt.service, web.Options{
		Target:         cfg.Target,
		Security:       cfg.Security,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	if cfg.Update.Interval > 0 {
		go rt.service.StartUpdateScheduler(jobCtx, core.ScheduleConfig{
			Region: cfg.Target.Region,
			Target: core.TableRef{
				Project: cfg.Target.Project,
				Dataset: cfg.Target.Dataset,
				Table:   cfg.Target.Table,
			},
			Interval: cfg.Update.Interval,
		})
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := rt.service.RunStatus(); status.Active > 0 {
			slog.Info("waiting for running update to complete", "active", status.Active)
			if err := rt.service.WaitForRuns(shutdownCtx); err != nil {
				slog.Warn("update did not complete in time", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	return serveResult(server.Start(cfg.Server.Addr(), cfg.Server))
}

// serveResult maps the listener's exit error to the command result. A
// shutdown-initiated close is a clean exit.
func serveResult(err error) error {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		slog.Info("server stopped")
		return nil
	}
	return fmt.Errorf("serve: %w", err)
}

// signalContext is cancelled on SIGINT or SIGTERM so a CLI run stops between years.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
