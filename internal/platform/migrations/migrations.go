// Package migrations embeds the worker core's schema and applies it in
// execution order, mirroring the platform migrations runner this core was
// split out of.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
)

//go:embed *.sql
var files embed.FS

// Apply executes every embedded .sql file in lexical order inside a single
// transaction-per-file. Intended for first-boot bootstrap and test fixtures;
// cmd/migrate uses golang-migrate against db/migrations for tracked,
// reversible production migrations. The embedded set covers 0001-0007
// only; the sitemap_visits table (db/migrations/000008) is not part of it.
func Apply(ctx context.Context, db *sql.DB) error {
	entries, err := files.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
