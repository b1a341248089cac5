package load

import (
	"context"
	"fmt"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/salesmetrics-etl/internal/repo"
	"github.com/angelmondragon/salesmetrics-etl/internal/transform"
	"github.com/angelmondragon/salesmetrics-etl/pkg/db"
	"github.com/angelmondragon/salesmetrics-etl/pkg/db/models"
	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
)

const (
	stageLoad        = "load"
	defaultBatchSize = 100
)

// Options controls how the reporting table is written.
type Options struct {
	Table     string
	BatchSize int
	Truncate  bool
}

// Result describes a completed load.
type Result struct {
	Table       string        `json:"table"`
	RowsWritten int64         `json:"rows_written"`
	RowsInTable int64         `json:"rows_in_table"`
	Batches     int           `json:"batches"`
	Truncated   bool          `json:"truncated"`
	BulkCopy    bool          `json:"bulk_copy"`
	ProcessedAt time.Time     `json:"processed_at"`
	Duration    time.Duration `json:"duration"`
	Warnings    []string      `json:"warnings,omitempty"`
}

// Loader writes product metrics into the reporting table.
type Loader struct {
	repo.Base
	client *db.Client
	opts   Options
	logg   *logger.Logger
}

func New(client *db.Client, opts Options, logg *logger.Logger) (*Loader, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reporting database client is required")
	}
	if err := repo.ValidateTableName(opts.Table); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target table")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Loader{Base: repo.NewBase(client.DB()), client: client, opts: opts, logg: logg}, nil
}

// TableName returns the reporting table name.
func (l *Loader) TableName() string {
	return l.opts.Table
}

// Load replaces the reporting rows with metrics in a single transaction, every
// row stamped with processedAt. After commit the table is counted and a
// mismatch is reported as a warning.
func (l *Loader) Load(ctx context.Context, metrics []transform.ProductMetric, processedAt time.Time) (*Result, error) {
	start := time.Now()
	ctx = l.logg.WithTable(ctx, l.opts.Table)

	rows := make([]models.ProductSalesMetric, len(metrics))
	for i, m := range metrics {
		rows[i] = m.Model(processedAt)
	}

	res := &Result{
		Table:       l.opts.Table,
		Truncated:   l.opts.Truncate,
		ProcessedAt: processedAt,
		BulkCopy:    l.client.Driver() == enums.DBDriverSQLServer,
	}

	err := l.client.WithTx(ctx, func(tx *gorm.DB) error {
		if l.opts.Truncate {
			if err := truncate(tx, l.client.Driver(), l.opts.Table); err != nil {
				return err
			}
		}
		if res.BulkCopy {
			n, err := copyIn(ctx, tx, l.opts.Table, rows)
			res.RowsWritten, res.Batches = n, 1
			return err
		}
		n, batches, err := l.insertBatches(ctx, tx, rows)
		res.RowsWritten, res.Batches = n, batches
		return err
	})
	if err != nil {
		return nil, l.writeError(err)
	}

	if err := l.Table(ctx, l.opts.Table).Count(&res.RowsInTable).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting loaded rows").WithStage(stageLoad)
	}
	if l.opts.Truncate && res.RowsInTable != int64(len(rows)) {
		msg := fmt.Sprintf("table has %d rows after load, expected %d", res.RowsInTable, len(rows))
		res.Warnings = append(res.Warnings, msg)
		l.logg.Warn(l.logg.WithField(ctx, "warning", msg), "load.count_mismatch")
	}
	res.Duration = time.Since(start)

	l.logg.Info(l.logg.WithFields(ctx, map[string]any{
		"rows_written":  res.RowsWritten,
		"rows_in_table": res.RowsInTable,
		"batches":       res.Batches,
		"bulk_copy":     res.BulkCopy,
		"duration_ms":   res.Duration.Milliseconds(),
	}), "load.completed")
	return res, nil
}

func (l *Loader) insertBatches(ctx context.Context, tx *gorm.DB, rows []models.ProductSalesMetric) (int64, int, error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}
	batches := (len(rows) + l.opts.BatchSize - 1) / l.opts.BatchSize
	result := tx.Table(l.opts.Table).CreateInBatches(&rows, l.opts.BatchSize)
	if result.Error != nil {
		return result.RowsAffected, batches, fmt.Errorf("insert batches: %w", result.Error)
	}
	l.logg.Debug(l.logg.WithFields(ctx, map[string]any{"batches": batches, "rows": result.RowsAffected}), "load.batches.inserted")
	return result.RowsAffected, batches, nil
}

// truncate empties the table. SQLite has no TRUNCATE statement.
func truncate(tx *gorm.DB, driver enums.DBDriver, table string) error {
	stmt := "TRUNCATE TABLE ?"
	if driver == enums.DBDriverSQLite {
		stmt = "DELETE FROM ?"
	}
	if err := tx.Exec(stmt, clause.Table{Name: table}).Error; err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

// copyIn streams rows through the SQL Server bulk copy protocol.
func copyIn(ctx context.Context, tx *gorm.DB, table string, rows []models.ProductSalesMetric) (int64, error) {
	stmt, err := tx.Statement.ConnPool.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, models.MetricColumns...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk copy: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Values()...); err != nil {
			return 0, fmt.Errorf("bulk copy row %d: %w", row.ProductID, err)
		}
	}
	result, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("flush bulk copy: %w", err)
	}
	return result.RowsAffected()
}

func (l *Loader) writeError(err error) error {
	switch {
	case db.IsUndefinedTable(err):
		return pkgerrors.Wrap(pkgerrors.CodeSchema, err, fmt.Sprintf("target table %s does not exist; run migrations first", l.opts.Table)).WithStage(stageLoad)
	case db.IsUniqueViolation(err, "") && !l.opts.Truncate:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "target table already holds these products; enable truncate to replace them").WithStage(stageLoad)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading reporting table").WithStage(stageLoad)
	}
}
