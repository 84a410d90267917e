package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/finledger/bankfeed/internal/importer"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
	"github.com/finledger/bankfeed/internal/observability"
	"github.com/finledger/bankfeed/internal/statement"
)

func newImportCommand() *cobra.Command {
	var accountID string
	var format string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <statement-file>",
		Short: "Import a bank statement file into an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd)
			logger := observability.NewLogger(cfg.Observability.Logging)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading statement file: %w", err)
			}

			store, err := storage.NewStorage(cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			pipeline := importer.New(statement.DefaultRegistry(), store, logger)
			ctx := cmd.Context()

			if dryRun {
				preview, err := pipeline.Preview(ctx, data, format)
				if err != nil {
					return err
				}
				fmt.Printf("Detected format: %s\n", preview.Format)
				fmt.Printf("Transactions:    %d\n", preview.Count)
				if preview.OpeningBalance != nil {
					fmt.Printf("Opening balance: %s\n", preview.OpeningBalance.StringFixed(2))
				}
				if preview.ClosingBalance != nil {
					fmt.Printf("Closing balance: %s\n", preview.ClosingBalance.StringFixed(2))
				}
				return nil
			}

			if accountID == "" {
				return fmt.Errorf("--account is required unless --dry-run is set")
			}

			result, err := pipeline.Commit(ctx, accountID, filepath.Base(args[0]), data, format)
			if err != nil {
				return err
			}

			fmt.Printf("Imported %d transactions, skipped %d duplicates (total %s)\n",
				result.Imported, result.Skipped, result.TotalAmount.StringFixed(2))
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account ID to import into")
	cmd.Flags().StringVar(&format, "format", "", "statement format (csv, lloyds, coop, camt053); auto-detected when empty")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and preview without persisting")

	return cmd
}
