package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"monitor-hub/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

func migrationProvider(db *DB) (*goose.Provider, error) {
	dialect := goose.DialectSQLite3
	dir := "migrations/sqlite"
	if db.Driver == DriverPostgres {
		dialect = goose.DialectPostgres
		dir = "migrations/postgres"
	}
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(dialect, db.DB, sub)
}

func ApplyMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	provider, err := migrationProvider(db)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations up: %w", err)
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logger.Printf("migration applied: version=%d in %s", res.Source.Version, res.Duration)
	}
	return nil
}

func SchemaVersion(ctx context.Context, db *DB) (int64, error) {
	provider, err := migrationProvider(db)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
