package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/salesmetrics-etl/internal/repo"
	"github.com/angelmondragon/salesmetrics-etl/internal/transform"
	"github.com/angelmondragon/salesmetrics-etl/pkg/db"
	"github.com/angelmondragon/salesmetrics-etl/pkg/db/models"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
)

const stageExtract = "extract"

// Extractor reads the raw sales and catalog tables from the source database.
type Extractor struct {
	repo.Base
	tables Tables
	logg   *logger.Logger
}

// New builds an extractor over client. Table names are checked up front so
// they can be quoted into queries.
func New(client *db.Client, tables Tables, logg *logger.Logger) (*Extractor, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source database client is required")
	}
	if err := tables.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid source table names")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Extractor{Base: repo.NewBase(client.DB()), tables: tables, logg: logg}, nil
}

// Tables returns the tables the extractor reads.
func (e *Extractor) Tables() Tables {
	return e.tables
}

// ExtractAll reads the three source tables into a dataset. It fails on the
// first table that cannot be read; no partial dataset is returned.
func (e *Extractor) ExtractAll(ctx context.Context) (transform.Dataset, error) {
	detail, err := e.SalesDetail(ctx)
	if err != nil {
		return transform.Dataset{}, err
	}
	header, err := e.SalesHeader(ctx)
	if err != nil {
		return transform.Dataset{}, err
	}
	products, err := e.Products(ctx)
	if err != nil {
		return transform.Dataset{}, err
	}
	return transform.Dataset{SalesDetail: detail, SalesHeader: header, Products: products}, nil
}

func (e *Extractor) SalesDetail(ctx context.Context) ([]models.OrderLine, error) {
	return fetch[models.OrderLine](ctx, e, e.tables.SalesDetail, salesDetailSource)
}

func (e *Extractor) SalesHeader(ctx context.Context) ([]models.OrderHeader, error) {
	return fetch[models.OrderHeader](ctx, e, e.tables.SalesHeader, salesHeaderSource)
}

func (e *Extractor) Products(ctx context.Context) ([]models.Product, error) {
	return fetch[models.Product](ctx, e, e.tables.Products, productsSource)
}

func fetch[T any](ctx context.Context, e *Extractor, table string, src source) ([]T, error) {
	start := time.Now()
	ctx = e.logg.WithFields(e.logg.WithTable(ctx, table), map[string]any{"dataset": src.dataset})

	columns, err := e.columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(table, columns, src.required); err != nil {
		return nil, err
	}
	if err := e.checkNulls(ctx, table, src); err != nil {
		return nil, err
	}

	tx := e.Table(ctx, table).Select(src.selects)
	rows, err := tx.Rows()
	if err != nil {
		return nil, queryError(table, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var item T
		if err := e.DB(ctx).ScanRows(rows, &item); err != nil {
			return nil, scanError(table, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(table, err)
	}

	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"rows":        len(out),
		"columns":     len(columns),
		"duration_ms": time.Since(start).Milliseconds(),
	}), "extract.table.loaded")
	return out, nil
}

// columns returns the column names of table without reading any rows.
func (e *Extractor) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := e.Table(ctx, table).Where("1 = 0").Rows()
	if err != nil {
		return nil, queryError(table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, queryError(table, err)
	}
	return cols, nil
}

func checkColumns(table string, got, required []string) error {
	present := make(map[string]struct{}, len(got))
	for _, c := range got {
		present[strings.ToLower(c)] = struct{}{}
	}

	var (
		err     error
		missing []string
	)
	for _, c := range required {
		if _, ok := present[strings.ToLower(c)]; !ok {
			missing = append(missing, c)
			err = multierr.Append(err, fmt.Errorf("column %s not found", c))
		}
	}
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(pkgerrors.CodeSchema, err, fmt.Sprintf("table %s is missing required columns", table)).
		WithStage(stageExtract).
		WithDetails(map[string]any{"table": table, "missing": missing})
}

// checkNulls rejects NULLs in columns the transform needs as values.
func (e *Extractor) checkNulls(ctx context.Context, table string, src source) error {
	if err := e.countNulls(ctx, table, src.numeric, pkgerrors.CodeNumeric); err != nil {
		return err
	}
	return e.countNulls(ctx, table, src.notNull, pkgerrors.CodeSchema)
}

func (e *Extractor) countNulls(ctx context.Context, table string, columns []string, code pkgerrors.Code) error {
	for _, col := range columns {
		var n int64
		err := e.Table(ctx, table).
			Where(clause.Eq{Column: clause.Column{Name: col}, Value: nil}).
			Count(&n).Error
		if err != nil {
			return queryError(table, err)
		}
		if n > 0 {
			return pkgerrors.New(code, fmt.Sprintf("table %s has %d NULL values in column %s", table, n, col)).
				WithStage(stageExtract).
				WithDetails(map[string]any{"table": table, "column": col, "rows": n})
		}
	}
	return nil
}

func queryError(table string, err error) error {
	if db.IsUndefinedTable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeSchema, err, fmt.Sprintf("table %s not found", table)).WithStage(stageExtract)
	}
	if db.IsUndefinedColumn(err) {
		return pkgerrors.Wrap(pkgerrors.CodeSchema, err, fmt.Sprintf("table %s: unknown column", table)).WithStage(stageExtract)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("reading %s", table)).WithStage(stageExtract)
}

func scanError(table string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "null") || strings.Contains(msg, "converting") || strings.Contains(msg, "parsing") {
		return pkgerrors.Wrap(pkgerrors.CodeNumeric, err, fmt.Sprintf("table %s has a value of an unexpected type", table)).WithStage(stageExtract)
	}
	return queryError(table, err)
}
