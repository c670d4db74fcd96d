package store

import (
	"context"
	"embed"
	"fmt"
	"log"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func (d *DB) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	_, err := d.Client.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}
	rows, err := d.Client.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// PendingMigrations returns the embedded migration files not yet applied, in order.
func (d *DB) PendingMigrations(ctx context.Context) ([]string, error) {
	applied, err := d.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !applied[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Migrate applies pending migrations, each in its own transaction.
func (d *DB) Migrate(ctx context.Context) (int, error) {
	files, err := d.PendingMigrations(ctx)
	if err != nil {
		return 0, err
	}
	for i, file := range files {
		content, err := migrationsFS.ReadFile("migrations/" + file)
		if err != nil {
			return i, fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := d.Client.BeginTx(ctx, nil)
		if err != nil {
			return i, fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return i, fmt.Errorf("execute migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, file); err != nil {
			_ = tx.Rollback()
			return i, fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return i, fmt.Errorf("commit migration %s: %w", file, err)
		}
		log.Printf("applied migration %s", file)
	}
	return len(files), nil
}
