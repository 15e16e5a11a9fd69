package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Connect opens the database for driver and runs migrations. An empty
// SQLite path opens a private in-memory database.
func Connect(ctx context.Context, driver, dsn string, logger log.Logger) (*sqlx.DB, error) {
	if driver == DriverSQLite && strings.TrimSpace(dsn) == "" {
		dsn = ":memory:"
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := runMigrations(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	level.Info(logger).Log("msg", "database migrations applied", "driver", driver)
	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB, driver string) error {
	var migrations []string
	switch driver {
	case DriverPostgres:
		migrations = []string{
			`CREATE TABLE IF NOT EXISTS nodes (
            root TEXT PRIMARY KEY,
            doc JSONB NOT NULL,
            updated_at BIGINT NOT NULL
        );`,
		}
	case DriverSQLite:
		migrations = []string{
			`PRAGMA foreign_keys = ON;`,
			`CREATE TABLE IF NOT EXISTS nodes (
            root TEXT PRIMARY KEY,
            doc TEXT NOT NULL,
            updated_at INTEGER NOT NULL
        );`,
		}
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
