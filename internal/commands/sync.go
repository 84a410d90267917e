package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/finledger/bankfeed/internal/importer"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
	"github.com/finledger/bankfeed/internal/observability"
	"github.com/finledger/bankfeed/internal/scheduler"
	"github.com/finledger/bankfeed/internal/statement"
)

func newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [connection-id]",
		Short: "Sync bank connections once and exit",
		Long: "Fetches new transactions for the given connection, or for every " +
			"connection due for a scheduled sync when no ID is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
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
			sched := scheduler.New(cfg.Scheduler, registry, pipeline, store, logger)
			ctx := cmd.Context()

			if len(args) == 1 {
				result, err := sched.SyncConnection(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Synced connection %s: %d imported, %d skipped\n",
					args[0], result.Imported, result.Skipped)
				return nil
			}

			due, err := store.ListDueConnections(ctx, time.Now())
			if err != nil {
				return err
			}
			if len(due) == 0 {
				fmt.Println("No connections due for sync")
				return nil
			}

			var failures int
			for _, conn := range due {
				result, err := sched.SyncConnection(ctx, conn.ID)
				if err != nil {
					failures++
					fmt.Printf("Sync failed for %s (%s): %v\n", conn.ID, conn.InstitutionName, err)
					continue
				}
				fmt.Printf("Synced %s (%s): %d imported, %d skipped\n",
					conn.ID, conn.InstitutionName, result.Imported, result.Skipped)
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d connections failed to sync", failures, len(due))
			}
			return nil
		},
	}

	return cmd
}
