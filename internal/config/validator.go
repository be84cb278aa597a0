// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `LoadDir` calls `validateStruct` once defaults are applied.  Any tag
// mismatch or validation error aborts startup, so the binary never runs
// with partial or malformed configuration.
//
// Rules beyond the struct tags live here:
//
//   - a MySQL DSN must carry no inline password when `database.password`
//     is set, so the secret has one source of truth;
//   - policy overrides must name `metadata:` actions.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Database.Driver == "mysql" && c.Database.Password != "" && dsnHasPassword(c.Database.DSN) {
		return fmt.Errorf("database.dsn carries a password and database.password is set")
	}
	for action := range c.Policy {
		if !strings.HasPrefix(action, "metadata:") && action != "admin" && action != "admin_or_owner" {
			return fmt.Errorf("policy: unknown action %q", action)
		}
	}
	return nil
}

// dsnHasPassword reports whether a go-sql-driver DSN has `user:pass@`.
func dsnHasPassword(dsn string) bool {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return false
	}
	return strings.Contains(dsn[:at], ":")
}
