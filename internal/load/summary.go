package load

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/salesmetrics-etl/pkg/db"
	"github.com/angelmondragon/salesmetrics-etl/pkg/db/models"
	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
)

const topProducts = 5

// Summary is read back from the reporting table after a load.
type Summary struct {
	Table           string                          `json:"table"`
	Rows            int64                           `json:"rows"`
	TotalSales      decimal.Decimal                 `json:"total_sales"`
	TotalQuantity   int64                           `json:"total_quantity"`
	TierCounts      map[enums.PerformanceTier]int64 `json:"tier_counts"`
	LastProcessedAt *time.Time                      `json:"last_processed_at,omitempty"`
	Top             []models.ProductSalesMetric     `json:"top"`
}

// TierShare is the percentage of rows in tier.
func (s Summary) TierShare(tier enums.PerformanceTier) float64 {
	if s.Rows == 0 {
		return 0
	}
	return float64(s.TierCounts[tier]) / float64(s.Rows) * 100
}

type tierCount struct {
	Performance string
	N           int64
}

type totals struct {
	TotalSales decimal.Decimal
	TotalQty   int64
}

// Validate reads row count, sums, tier counts, the latest processing stamp and
// the top products by total sales from the reporting table.
func (l *Loader) Validate(ctx context.Context) (*Summary, error) {
	ctx = l.logg.WithTable(ctx, l.opts.Table)
	summary := &Summary{
		Table:      l.opts.Table,
		TierCounts: make(map[enums.PerformanceTier]int64, 3),
	}

	if err := l.Table(ctx, l.opts.Table).Count(&summary.Rows).Error; err != nil {
		return nil, l.readError(err)
	}

	var sums totals
	err := l.Table(ctx, l.opts.Table).
		Select("COALESCE(SUM(?), 0) AS total_sales, COALESCE(SUM(?), 0) AS total_qty",
			clause.Column{Name: "TotalSales"}, clause.Column{Name: "QtySold"}).
		Scan(&sums).Error
	if err != nil {
		return nil, l.readError(err)
	}
	summary.TotalSales = sums.TotalSales
	summary.TotalQuantity = sums.TotalQty

	var counts []tierCount
	err = l.Table(ctx, l.opts.Table).
		Select("? AS performance, COUNT(*) AS n", clause.Column{Name: "Performance"}).
		Clauses(clause.GroupBy{Columns: []clause.Column{{Name: "Performance"}}}).
		Scan(&counts).Error
	if err != nil {
		return nil, l.readError(err)
	}
	for _, c := range counts {
		tier, err := enums.ParsePerformanceTier(c.Performance)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeSchema, err, "unexpected performance value in reporting table").WithStage(stageLoad)
		}
		summary.TierCounts[tier] = c.N
	}

	var latest []models.ProductSalesMetric
	err = l.Table(ctx, l.opts.Table).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "ProcessedAt"}, Desc: true}).
		Limit(1).
		Find(&latest).Error
	if err != nil {
		return nil, l.readError(err)
	}
	if len(latest) == 1 {
		summary.LastProcessedAt = &latest[0].ProcessedAt
	}

	err = l.Table(ctx, l.opts.Table).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "TotalSales"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "ProductID"}}).
		Limit(topProducts).
		Find(&summary.Top).Error
	if err != nil {
		return nil, l.readError(err)
	}

	fields := map[string]any{
		"rows":           summary.Rows,
		"total_sales":    summary.TotalSales.StringFixed(2),
		"total_quantity": summary.TotalQuantity,
	}
	for _, tier := range enums.PerformanceTiers() {
		fields["tier_"+tier.String()] = summary.TierCounts[tier]
	}
	l.logg.Info(l.logg.WithFields(ctx, fields), "load.validate.summary")
	return summary, nil
}

func (l *Loader) readError(err error) error {
	if db.IsUndefinedTable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeSchema, err, fmt.Sprintf("target table %s does not exist", l.opts.Table)).WithStage(stageLoad)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading reporting table").WithStage(stageLoad)
}
