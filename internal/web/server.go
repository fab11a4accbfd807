// Package web provides the admin HTTP surface for the county merge pipeline.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/countydash/internal/config"
	"github.com/JonMunkholm/countydash/internal/core"
	"github.com/JonMunkholm/countydash/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Pipeline is the subset of core.Service the handlers call.
type Pipeline interface {
	FullLoad(ctx context.Context, year, region string, target core.TableRef) (core.LoadReport, error)
	IncrementalUpdate(ctx context.Context, region string, target core.TableRef) (core.UpdateReport, error)
	Coverage(ctx context.Context, target core.TableRef) (core.Coverage, error)
	RunStatus() core.RunLimiterStatus
}

// Options configures a Server.
type Options struct {
	Target         config.TargetConfig   // Defaults for requests that omit project, dataset, table or region
	Security       config.SecurityConfig // API key and trusted proxy settings
	RequestTimeout time.Duration         // Applies to read-only routes; loads run to completion
}

// Server is the admin HTTP server.
type Server struct {
	pipeline Pipeline
	opts     Options
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(pipeline Pipeline, opts Options) *Server {
	s := &Server{
		pipeline: pipeline,
		opts:     opts,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.opts.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.opts.RequestTimeout > 0 {
				r.Use(chimw.Timeout(s.opts.RequestTimeout))
			}
			r.Get("/health", s.handleHealth)
			r.Get("/coverage", s.handleCoverage)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(&s.opts.Security))
			r.Post("/incremental", s.handleIncremental)
			r.Post("/full-load", s.handleFullLoad)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string, cfg config.ServerConfig) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
