package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"classattend/internal/config"
	"classattend/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply the embedded SQL migrations that have not run yet.

Example:
  attendctl migrate
  attendctl migrate --status`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "List pending migrations without applying them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.StoreBackend != "postgres" {
		return fmt.Errorf("migrate needs STORE_BACKEND=postgres, got %q", cfg.StoreBackend)
	}
	ctx := cmd.Context()
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if mustGetBool(cmd, "status") {
		pending, err := db.PendingMigrations(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(out, "Database is up to date")
			return nil
		}
		for _, name := range pending {
			fmt.Fprintln(out, "pending:", name)
		}
		return nil
	}

	n, err := db.Migrate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Applied %d migration(s)\n", n)
	return nil
}
