// internal/database/migrate.go
//
// Embedded schema migrations.
//
// Context
// -------
// The `metadata` table ships inside the binary, one directory per driver
// (`migrations/mysql`, `migrations/sqlite3`).  golang-migrate reads them
// through its iofs source and applies them over a dedicated *sql.DB, since
// closing a migrate instance also closes the connection it was handed.
//
// Notes
// -----
//   - Each MySQL file holds one statement; the driver is not opened with
//     multiStatements.
//   - `Up` treats migrate.ErrNoChange as success.
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

// NewMigrator opens its own connection to dsn and returns a migrate
// instance bound to the embedded files for driver.  The caller must Close
// it.
func NewMigrator(driver, dsn, password string) (*migrate.Migrate, error) {
	dsn, err := NormalizeDSN(driver, dsn, password)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(migrationFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("migration open: %w", err)
	}

	var inst migratedb.Driver
	switch driver {
	case DriverMySQL:
		inst, err = migratemysql.WithInstance(conn, &migratemysql.Config{})
	case DriverSQLite:
		inst, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	default:
		err = fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	return migrate.NewWithInstance("iofs", src, driver, inst)
}

// Up applies every pending migration.
func Up(driver, dsn, password string) error {
	m, err := NewMigrator(driver, dsn, password)
	if err != nil {
		return fmt.Errorf("db migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db migrator: %w", err)
	}
	return nil
}

// Down rolls back count migrations.
func Down(driver, dsn, password string, count int) error {
	if count < 1 {
		return fmt.Errorf("invalid value[%d] for rollback", count)
	}
	m, err := NewMigrator(driver, dsn, password)
	if err != nil {
		return fmt.Errorf("db migrator: %w", err)
	}
	defer m.Close()

	if err := m.Steps(-count); err != nil {
		return fmt.Errorf("db migrator: %w", err)
	}
	return nil
}

// Version reports the applied schema version and its dirty flag.
func Version(driver, dsn, password string) (uint, bool, error) {
	m, err := NewMigrator(driver, dsn, password)
	if err != nil {
		return 0, false, fmt.Errorf("db migrator: %w", err)
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
