package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"monitor-hub/config"
	"monitor-hub/core/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB is a *sql.DB that accepts `?` placeholders on every supported driver.
type DB struct {
	*sql.DB
	Driver string
}

func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*DB, error) {
	if cfg.IsSQLite() {
		return openSQLite(cfg.DBPath, logger)
	}
	raw, err := sql.Open("pgx", cfg.DBURL)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(20)
	raw.SetMaxIdleConns(5)
	raw.SetConnMaxLifetime(30 * time.Minute)
	if err := pingDB(raw); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	logger.Printf("database: postgres connected")
	return &DB{DB: raw, Driver: DriverPostgres}, nil
}

func openSQLite(path string, logger *utils.Logger) (*DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "data/monitor-hub.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	raw, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY under fan-out.
	raw.SetMaxOpenConns(1)
	if err := pingDB(raw); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("sqlite open %s: %w", path, err)
	}
	logger.Printf("database: sqlite at %s", path)
	return &DB{DB: raw, Driver: DriverSQLite}, nil
}

func pingDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.DB.ExecContext(ctx, db.Rebind(query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.DB.QueryContext(ctx, db.Rebind(query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, db.Rebind(query), args...)
}

// Rebind rewrites `?` placeholders to `$n` for postgres. Queries in this
// package never contain a literal question mark.
func (db *DB) Rebind(query string) string {
	if db == nil || db.Driver != DriverPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
