package enums

import (
	"fmt"
	"strings"
)

// DBDriver names a supported SQL backend.
type DBDriver string

const (
	DBDriverSQLServer DBDriver = "sqlserver"
	DBDriverPostgres  DBDriver = "postgres"
	DBDriverMySQL     DBDriver = "mysql"
	DBDriverSQLite    DBDriver = "sqlite"
)

var validDBDrivers = []DBDriver{
	DBDriverSQLServer,
	DBDriverPostgres,
	DBDriverMySQL,
	DBDriverSQLite,
}

var dbDriverAliases = map[string]DBDriver{
	"mssql":      DBDriverSQLServer,
	"postgresql": DBDriverPostgres,
	"pgx":        DBDriverPostgres,
	"sqlite3":    DBDriverSQLite,
}

// DBDrivers returns every supported driver.
func DBDrivers() []DBDriver {
	out := make([]DBDriver, len(validDBDrivers))
	copy(out, validDBDrivers)
	return out
}

// String implements fmt.Stringer.
func (d DBDriver) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DBDriver.
func (d DBDriver) IsValid() bool {
	for _, candidate := range validDBDrivers {
		if candidate == d {
			return true
		}
	}
	return false
}

// GooseDialect returns the dialect name goose expects for this driver.
func (d DBDriver) GooseDialect() string {
	switch d {
	case DBDriverSQLServer:
		return "mssql"
	case DBDriverSQLite:
		return "sqlite3"
	default:
		return string(d)
	}
}

// ParseDBDriver converts raw input into a DBDriver, accepting common aliases.
func ParseDBDriver(value string) (DBDriver, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if alias, ok := dbDriverAliases[normalized]; ok {
		return alias, nil
	}
	for _, candidate := range validDBDrivers {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid db driver %q", value)
}
