package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finledger/bankfeed/internal/api/handlers"
	"github.com/finledger/bankfeed/internal/api/middleware"
	"github.com/finledger/bankfeed/internal/connect"
	"github.com/finledger/bankfeed/internal/domain/reconcile"
	"github.com/finledger/bankfeed/internal/domain/suggest"
	"github.com/finledger/bankfeed/internal/importer"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
	"github.com/finledger/bankfeed/internal/scheduler"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Deps bundles the engine components the server exposes.
type Deps struct {
	Repo         storage.Repository
	Pipeline     *importer.Pipeline
	Suggester    *suggest.Suggester
	Coordinator  *reconcile.Coordinator
	Orchestrator *connect.Orchestrator
	Scheduler    *scheduler.Scheduler
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	deps       Deps
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Org-ID"},
	}
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Accounts and imports
		accountsHandler := handlers.NewAccountsHandler(s.deps.Repo)
		r.Get("/accounts", accountsHandler.List)
		r.Post("/accounts", accountsHandler.Create)
		r.Get("/accounts/{accountID}", accountsHandler.Get)
		r.Get("/stats", accountsHandler.Stats)

		importsHandler := handlers.NewImportsHandler(s.deps.Pipeline, s.deps.Repo)
		r.Post("/accounts/{accountID}/imports/preview", importsHandler.Preview)
		r.Post("/accounts/{accountID}/imports", importsHandler.Commit)
		r.Get("/accounts/{accountID}/imports", importsHandler.History)

		// Transactions
		transactionsHandler := handlers.NewTransactionsHandler(s.deps.Repo)
		r.Get("/transactions", transactionsHandler.List)
		r.Get("/transactions/{id}", transactionsHandler.Get)
		r.Delete("/transactions/{id}", transactionsHandler.Delete)
		r.Put("/transactions/{id}/checked", transactionsHandler.SetChecked)

		// Suggestion and reconciliation
		reconHandler := handlers.NewReconciliationHandler(s.deps.Suggester, s.deps.Coordinator, s.deps.Repo)
		r.Get("/transactions/{id}/suggestions", reconHandler.Suggest)
		r.Post("/transactions/{id}/reconcile", reconHandler.Reconcile)
		r.Get("/transactions/{id}/reconciliation", reconHandler.GetReconciliation)

		// Connection lifecycle
		connectionsHandler := handlers.NewConnectionsHandler(s.deps.Orchestrator, s.deps.Scheduler, s.deps.Repo)
		r.Get("/providers", connectionsHandler.ListProviders)
		r.Post("/connections/requests", connectionsHandler.Start)
		r.Get("/connections/requests/{token}", connectionsHandler.GetRequest)
		r.Post("/connections/requests/{token}/country", connectionsHandler.SelectCountry)
		r.Post("/connections/requests/{token}/institution", connectionsHandler.SelectInstitution)
		r.Post("/connections/requests/{token}/account", connectionsHandler.SelectAccount)
		r.Post("/connections/requests/{token}/initiate", connectionsHandler.Initiate)
		r.Post("/connections/requests/{token}/confirm", connectionsHandler.Confirm)
		r.Get("/connections", connectionsHandler.List)
		r.Get("/connections/{id}", connectionsHandler.Get)
		r.Delete("/connections/{id}", connectionsHandler.Delete)
		r.Post("/connections/{id}/sync", connectionsHandler.Sync)
		r.Put("/connections/{id}/sync-enabled", connectionsHandler.SetSyncEnabled)
	})
}

// Router exposes the router for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", slog.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
