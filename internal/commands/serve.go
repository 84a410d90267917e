package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/finledger/bankfeed/internal/adapters/providers"
	"github.com/finledger/bankfeed/internal/adapters/providers/bankdata"
	"github.com/finledger/bankfeed/internal/adapters/providers/linknode"
	"github.com/finledger/bankfeed/internal/api"
	"github.com/finledger/bankfeed/internal/connect"
	"github.com/finledger/bankfeed/internal/domain/reconcile"
	"github.com/finledger/bankfeed/internal/domain/suggest"
	"github.com/finledger/bankfeed/internal/importer"
	"github.com/finledger/bankfeed/internal/infrastructure/config"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
	"github.com/finledger/bankfeed/internal/observability"
	"github.com/finledger/bankfeed/internal/scheduler"
	"github.com/finledger/bankfeed/internal/statement"
)

func newServeCommand() *cobra.Command {
	var port int
	var verbose bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			if port != 0 {
				cfg.API.Port = port
			}
			if verbose {
				cfg.Observability.Logging.Level = "debug"
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (overrides config)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "verbose output")

	return cmd
}

// loadConfig resolves configuration from the --config flag, config.yaml,
// or environment variables, in that order.
func loadConfig(cmd *cobra.Command) *config.Config {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err := config.Load(path)
		if err == nil {
			return cfg
		}
		fmt.Fprintf(os.Stderr, "warning: %v, falling back to environment\n", err)
	}
	return config.LoadOrEnv()
}

func runServe(cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Observability.Logging)

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	registry, err := buildProviderRegistry(cfg, logger)
	if err != nil {
		return err
	}

	pipeline := importer.New(statement.DefaultRegistry(), store, logger)
	suggester := suggest.New(store, suggest.Config{
		AmountTolerance: cfg.Matching.AmountTolerance,
		DateWindowDays:  cfg.Matching.DateWindowDays,
		MinScore:        cfg.Matching.MinScore,
	}, logger)
	coordinator := reconcile.New(store, logger)
	orchestrator := connect.New(registry, store, logger)
	sched := scheduler.New(cfg.Scheduler, registry, pipeline, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Scheduler.Enabled {
		sched.Start(ctx)
		defer sched.Stop()
	}

	server := api.NewServer(api.Config{
		Port:           cfg.API.Port,
		AllowedOrigins: cfg.API.AllowedOrigins,
	}, api.Deps{
		Repo:         store,
		Pipeline:     pipeline,
		Suggester:    suggester,
		Coordinator:  coordinator,
		Orchestrator: orchestrator,
		Scheduler:    sched,
	}, logger)

	// Handle graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}

// buildProviderRegistry registers every configured aggregator. Providers
// without credentials are left out so they never appear in provider lists.
func buildProviderRegistry(cfg *config.Config, logger *slog.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry(logger)

	if cfg.Providers.Bankdata.Configured() {
		if err := registry.Register(bankdata.New(cfg.Providers.Bankdata)); err != nil {
			return nil, err
		}
	}
	if cfg.Providers.Linknode.Configured() {
		if err := registry.Register(linknode.New(cfg.Providers.Linknode)); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
