// Package database centralises sqlx connection helpers for the metadata
// record store.  The production driver is go-sql-driver/mysql, which also
// works with MariaDB.  mattn/go-sqlite3 backs single-node development setups
// and the behavioural test-suite.
//
// Public entry points:
//
//	Open(driver, dsn)                      – quick helper with conservative pool sizes.
//	OpenWithOptions(ctx, driver, dsn, opt) – fine-grained control plus ping retries.
//
// Both helpers Ping the database before returning so callers can fail fast
// during bootstrap.  Callers should Close() the returned *sqlx.DB when no
// longer needed.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Supported driver names.  They double as golang-migrate database names.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Options tunes the pool and the bootstrap ping loop.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retries         int
	RetryBackoff    time.Duration
	Password        string // injected into a MySQL DSN when non-empty
}

// DefaultOptions are 15 max open, 5 idle, and a 30-minute connection
// lifetime.  Suitable for process-wide pools or for test setups.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    15,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		Retries:         0,
		RetryBackoff:    500 * time.Millisecond,
	}
}

// Open returns a *sqlx.DB with DefaultOptions.
func Open(driver, dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(context.Background(), driver, dsn, DefaultOptions())
}

// OpenWithOptions opens a pool for driver, applies opt, and pings until the
// store answers or opt.Retries is exhausted.
func OpenWithOptions(ctx context.Context, driver, dsn string, opt Options) (*sqlx.DB, error) {
	dsn, err := NormalizeDSN(driver, dsn, opt.Password)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY under
		// concurrent request workers.
		opt.MaxOpenConns, opt.MaxIdleConns = 1, 1
	}
	db.SetMaxOpenConns(opt.MaxOpenConns)
	db.SetMaxIdleConns(opt.MaxIdleConns)
	db.SetConnMaxLifetime(opt.ConnMaxLifetime)

	for attempt := 0; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if attempt >= opt.Retries {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(opt.RetryBackoff):
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("ping %s: %w", driver, err)
}

// NormalizeDSN forces the MySQL flags the repository depends on and injects
// password when supplied.  Other drivers pass
// through unchanged.
func NormalizeDSN(driver, dsn, password string) (string, error) {
	switch driver {
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		// RowsAffected must count matched rows, not changed rows.
		cfg.ClientFoundRows = true
		if password != "" {
			cfg.Passwd = password
		}
		return cfg.FormatDSN(), nil
	case DriverSQLite:
		return dsn, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
