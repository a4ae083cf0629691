package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/digital-asset-harvester/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the ledger schema to the latest version.

Other commands migrate automatically; this is useful after an upgrade
or to check the schema version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetBool("status")
			dbPath := settings.Current().Database.Path
			ctx := cmd.Context()

			store, err := storage.NewSQLiteStorage(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			current, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if status {
				fmt.Fprintf(out, "Database: %s\nCurrent version: %d\nLatest version: %d\n",
					dbPath, current, storage.ExpectedSchemaVersion)
				return nil
			}

			slog.Info("Running database migrations", "database", dbPath, "from", current)
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(out, "Database migrated to version %d\n", storage.ExpectedSchemaVersion)
			return nil
		},
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")
	return cmd
}
