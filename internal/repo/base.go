package repo

import (
	"context"
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Base provides a shared foundation for repositories that read or write
// tables whose names are only known at runtime.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Table scopes a query to name, which may be schema-qualified.
func (b Base) Table(ctx context.Context, name string) *gorm.DB {
	return b.DB(ctx).Table(name)
}

// ValidateTableName accepts `table` or `schema.table` made of plain
// identifiers, so names from configuration can be quoted safely.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
