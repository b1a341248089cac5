package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"
)

const (
	pgUniqueViolation   = "23505"
	pgUndefinedTable    = "42P01"
	pgUndefinedColumn   = "42703"
	mssqlInvalidObject  = 208
	mssqlInvalidColumn  = 207
	mssqlUniqueIndex    = 2601
	mssqlUniqueKey      = 2627
	mysqlNoSuchTable    = 1146
	mysqlBadField       = 1054
	mysqlDuplicateEntry = 1062
)

// IsUniqueViolation reports whether err is a unique/primary key violation on
// any supported backend. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if constraintName != "" {
		return strings.Contains(err.Error(), constraintName)
	}
	if pgCode(err) == pgUniqueViolation {
		return true
	}
	if n := mssqlNumber(err); n == mssqlUniqueIndex || n == mssqlUniqueKey {
		return true
	}
	if mysqlNumber(err) == mysqlDuplicateEntry {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsUndefinedTable reports whether err says a table or view does not exist.
func IsUndefinedTable(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgUndefinedTable || mssqlNumber(err) == mssqlInvalidObject || mysqlNumber(err) == mysqlNoSuchTable {
		return true
	}
	return strings.Contains(err.Error(), "no such table")
}

// IsUndefinedColumn reports whether err says a referenced column does not exist.
func IsUndefinedColumn(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgUndefinedColumn || mssqlNumber(err) == mssqlInvalidColumn || mysqlNumber(err) == mysqlBadField {
		return true
	}
	return strings.Contains(err.Error(), "no such column")
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func mssqlNumber(err error) int32 {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return msErr.Number
	}
	return 0
}

func mysqlNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}
