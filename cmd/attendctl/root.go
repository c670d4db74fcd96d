package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"classattend/internal/app"
	"classattend/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "Administer the classroom attendance service",
	Long: `attendctl talks directly to the attendance database. It uses the same
environment variables as the API (DATABASE_URL, APP_TIMEZONE, ...) and is
meant for operators: applying migrations, setting up courses and running
sessions when the instructor UI is unavailable.`,
	SilenceUsage: true,
}

var jsonOutput bool

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

// open builds the service without Redis; the CLI has no use for the queue.
func open(ctx context.Context) (*app.Components, error) {
	cfg := config.Load()
	cfg.QueueBackend = "memory"
	cfg.AutoMigrate = false
	return app.Build(ctx, cfg, nil)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}
