// internal/database/errors.go
//
// Driver error classification.
//
// The repository needs two answers from a failed INSERT or UPDATE: did the
// live-key unique index fire, and did some other constraint reject the row.
// Everything else (lost connections, timeouts, deadlocks) is returned to the
// caller untouched.  Keeping the driver types here means the metadata
// package never imports a driver.
package database

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// MySQL server error numbers.
const (
	mysqlDupEntry          = 1062
	mysqlBadNull           = 1048
	mysqlDataTooLong       = 1406
	mysqlTruncatedValue    = 1366
	mysqlCheckConstraint   = 3819
	mysqlNoReferencedRow   = 1452
	mysqlRowIsReferenced   = 1451
	mysqlWrongValueCounted = 1136
)

// IsDuplicate reports whether err is a unique-index violation.
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDupEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsConstraint reports whether the store rejected the row for a data or
// constraint reason other than uniqueness.
func IsConstraint(err error) bool {
	if IsDuplicate(err) {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlBadNull, mysqlDataTooLong, mysqlTruncatedValue, mysqlCheckConstraint,
			mysqlNoReferencedRow, mysqlRowIsReferenced, mysqlWrongValueCounted:
			return true
		}
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint || se.Code == sqlite3.ErrTooBig ||
			se.Code == sqlite3.ErrMismatch
	}
	return false
}
