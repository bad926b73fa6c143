// Package httpserver wires the HTTP API onto a chi router and manages the
// listener lifecycle.
package httpserver

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/contentsync/internal/config"
	"git.home.luguber.info/inful/contentsync/internal/eventstore"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
	"git.home.luguber.info/inful/contentsync/internal/metrics"
	"git.home.luguber.info/inful/contentsync/internal/server/handlers"
	smw "git.home.luguber.info/inful/contentsync/internal/server/middleware"
	"git.home.luguber.info/inful/contentsync/internal/services"
)

// Options carries the services behind the endpoints.
type Options struct {
	Content  handlers.ContentService
	Sync     handlers.SyncService
	Health   handlers.HealthSource
	Events   eventstore.Store // optional
	Registry *prom.Registry   // optional; /metrics is not mounted when nil

	// DependsOn names services that must outlive the listener.
	DependsOn []string
}

// Server is the HTTP API.
type Server struct {
	cfg    config.ServerConfig
	router *chi.Mux
	server *http.Server
	addr   net.Addr
	deps   []string
}

// New builds the router.
func New(cfg config.ServerConfig, opts Options) *Server {
	logger := slog.Default()
	adapter := errors.NewHTTPErrorAdapter(logger)

	contentHandlers := handlers.NewContentHandlers(opts.Content)
	syncHandlers := handlers.NewSyncHandlers(opts.Sync)
	monitoringHandlers := handlers.NewMonitoringHandlers(opts.Health, opts.Events)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(smw.Logging(logger))
	r.Use(smw.Recover(logger, adapter))

	r.Get("/health", monitoringHandlers.HandleHealthCheck)
	if opts.Registry != nil {
		r.Handle("/metrics", metrics.HTTPHandler(opts.Registry))
	}
	r.Get("/events", monitoringHandlers.HandleEvents)

	r.Post("/content/edit", contentHandlers.HandleEdit)
	r.Get("/content/{contentType}/{slug}", contentHandlers.HandleGetPage)

	r.Get("/sync-status", syncHandlers.HandleStatus)
	r.Get("/conflict-info", syncHandlers.HandleConflictInfo)
	r.Post("/sync", syncHandlers.HandleSync)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		adapter.WriteErrorResponse(w, r, errors.NotFoundError("no such endpoint").WithContext("path", r.URL.Path).Build())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"success":false,"error":"method not allowed","code":"validation"}`))
	})

	return &Server{cfg: cfg, router: r, deps: opts.DependsOn}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr { return s.addr }

// Name implements services.ManagedService.
func (s *Server) Name() string { return "http" }

// Dependencies implements services.ManagedService.
func (s *Server) Dependencies() []string { return s.deps }

// Health implements services.ManagedService.
func (s *Server) Health() services.HealthStatus {
	if s.server == nil {
		return services.HealthStatusUnhealthy("not started")
	}
	return services.HealthStatusHealthy()
}

// Start binds the listener and serves in the background. Binding happens
// synchronously so address conflicts fail Start.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return errors.NetworkError("failed to bind HTTP listener").
			WithCause(err).WithContext("addr", s.cfg.Addr).Build()
	}
	s.addr = ln.Addr()
	s.server = &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout.Std(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout.Std(),
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", logfields.Error(err))
		}
	}()
	slog.Info("HTTP server listening", slog.String("addr", s.addr.String()))
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
