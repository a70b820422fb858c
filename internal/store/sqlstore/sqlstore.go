// Package sqlstore implements store.Store on top of database/sql,
// supporting both sqlite (modernc.org/sqlite) and Postgres (jackc/pgx/v4)
// backends chosen by the DSN scheme.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "modernc.org/sqlite"

	"github.com/kalinbas/chain-assassin/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "schema_version"

// DB is the primary datastore handle for the game server. It wraps a
// *sql.DB selected and migrated according to the configured DSN.
type DB struct {
	*sql.DB
	driver string
}

// Open opens (and migrates) the store named by dsn. A dsn beginning with
// "postgres://" or "postgresql://" selects the Postgres backend; anything
// else is treated as a sqlite file path or "file:" DSN.
func Open(dsn string) (*DB, error) {
	log := logging.Named("sqlstore")

	driverName, migrateDriverName := "sqlite", "sqlite3"
	if isPostgres(dsn) {
		driverName, migrateDriverName = "pgx", "pgx"
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}

	if driverName == "sqlite" {
		// modernc.org/sqlite has no internal connection pool; a single
		// writer avoids "database is locked" under concurrent access.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := runMigrations(sqlDB, migrateDriverName); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infow("store opened", "driver", driverName)
	return &DB{DB: sqlDB, driver: driverName}, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://")
}

func runMigrations(sqlDB *sql.DB, driverName string) error {
	var drv database.Driver
	var err error

	switch driverName {
	case "pgx":
		drv, err = postgres.WithInstance(sqlDB, &postgres.Config{
			MigrationsTable: migrationsTable,
		})
	default:
		drv, err = sqlite3.WithInstance(sqlDB, &sqlite3.Config{
			MigrationsTable: migrationsTable,
		})
	}
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, driverName, drv)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// isUniqueViolation reports whether err is a primary-key/unique-index
// conflict, independent of backend.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || // sqlite
		strings.Contains(msg, "duplicate key") // postgres
}

// querier is satisfied by both *sql.DB and *sql.Tx; the per-entity files
// write queries against it using "?" placeholders, which execCtx rebinds
// to "$N" for the pgx backend.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rebind translates "?" placeholders to Postgres's "$N" form; sqlite and
// sqlite3-derived drivers accept "?" natively and pass through unchanged.
func rebind(driver, query string) string {
	if driver != "pgx" {
		return query
	}
	var b strings.Builder
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

// execCtx bundles a querier with the dialect needed to rebind it,
// letting every entity helper work unmodified against either the root
// DB or a transaction.
type execCtx struct {
	q      querier
	driver string
}

func (e execCtx) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return e.q.ExecContext(ctx, rebind(e.driver, query), args...)
}

func (e execCtx) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return e.q.QueryContext(ctx, rebind(e.driver, query), args...)
}

func (e execCtx) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return e.q.QueryRowContext(ctx, rebind(e.driver, query), args...)
}

func (db *DB) ec() execCtx {
	return execCtx{q: db.DB, driver: db.driver}
}
