package load

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesmetrics-etl/internal/transform"
	"github.com/angelmondragon/salesmetrics-etl/pkg/db"
	"github.com/angelmondragon/salesmetrics-etl/pkg/db/models"
	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
)

const testTable = "product_sales_metrics"

func setupReportingDB(t *testing.T, migrate bool) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if migrate {
		require.NoError(t, conn.Table(testTable).AutoMigrate(&models.ProductSalesMetric{}))
	}
	return db.NewFromGorm(conn, enums.DBDriverSQLite)
}

func newTestLoader(t *testing.T, client *db.Client, opts Options) *Loader {
	t.Helper()
	if opts.Table == "" {
		opts.Table = testTable
	}
	l, err := New(client, opts, nil)
	require.NoError(t, err)
	return l
}

func ptr[T any](v T) *T {
	return &v
}

func sampleMetrics() []transform.ProductMetric {
	lastSale := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	return []transform.ProductMetric{
		{ProductID: 782, TotalSales: 1000, QtySold: 10, AvgUnitPrice: 100, LastSaleDate: lastSale, ProductName: ptr("Mountain-200 Black, 38"), ListPrice: ptr(2294.99), StandardCost: ptr(1251.98), NumOrders: 4, AvgTicket: 250, GrossMargin: ptr(45.45), AvgQtyPerOrder: 2.5, Performance: enums.PerformanceTierA},
		{ProductID: 783, TotalSales: 500.25, QtySold: 5, AvgUnitPrice: 100.05, LastSaleDate: lastSale, ProductName: ptr("Mountain-200 Black, 42"), NumOrders: 2, AvgTicket: 250.13, AvgQtyPerOrder: 2.5, Performance: enums.PerformanceTierB},
		{ProductID: 707, TotalSales: 250.25, QtySold: 12, AvgUnitPrice: 20.85, LastSaleDate: lastSale, NumOrders: 6, AvgTicket: 41.71, AvgQtyPerOrder: 2, Performance: enums.PerformanceTierC},
		{ProductID: 708, TotalSales: 120, QtySold: 6, AvgUnitPrice: 20, LastSaleDate: lastSale, NumOrders: 3, AvgTicket: 40, AvgQtyPerOrder: 2, Performance: enums.PerformanceTierC},
		{ProductID: 711, TotalSales: 80, QtySold: 4, AvgUnitPrice: 20, LastSaleDate: lastSale, NumOrders: 2, AvgTicket: 40, AvgQtyPerOrder: 2, Performance: enums.PerformanceTierC},
		{ProductID: 712, TotalSales: 10, QtySold: 1, AvgUnitPrice: 10, LastSaleDate: lastSale, NumOrders: 1, AvgTicket: 10, AvgQtyPerOrder: 1, Performance: enums.PerformanceTierC},
	}
}

func TestLoadWritesRowsInBatches(t *testing.T) {
	client := setupReportingDB(t, true)
	loader := newTestLoader(t, client, Options{BatchSize: 4, Truncate: true})
	processedAt := time.Date(2024, time.March, 11, 8, 0, 0, 0, time.UTC)

	res, err := loader.Load(context.Background(), sampleMetrics(), processedAt)
	require.NoError(t, err)

	assert.Equal(t, int64(6), res.RowsWritten)
	assert.Equal(t, int64(6), res.RowsInTable)
	assert.Equal(t, 2, res.Batches)
	assert.False(t, res.BulkCopy)
	assert.Empty(t, res.Warnings)

	var stored models.ProductSalesMetric
	require.NoError(t, client.DB().Table(testTable).Where("ProductID = ?", 783).Take(&stored).Error)
	assert.Equal(t, enums.PerformanceTierB, stored.Performance)
	assert.Nil(t, stored.GrossMargin)
	assert.Nil(t, stored.ListPrice)
	require.NotNil(t, stored.ProductName)
	assert.Equal(t, "Mountain-200 Black, 42", *stored.ProductName)
	assert.True(t, stored.ProcessedAt.Equal(processedAt))
}

func TestLoadIssuesOneInsertPerBatch(t *testing.T) {
	client := setupReportingDB(t, true)
	var inserts int
	require.NoError(t, client.DB().Callback().Create().After("gorm:create").Register("test:count_inserts", func(*gorm.DB) {
		inserts++
	}))
	loader := newTestLoader(t, client, Options{BatchSize: 5, Truncate: true})

	res, err := loader.Load(context.Background(), sampleMetrics(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, 2, inserts)
	assert.Equal(t, int64(6), res.RowsWritten)

	inserts = 0
	res, err = loader.Load(context.Background(), nil, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, res.Batches)
	assert.Zero(t, inserts)
	assert.Zero(t, res.RowsInTable)
}

func TestLoadReplacesPreviousRun(t *testing.T) {
	client := setupReportingDB(t, true)
	loader := newTestLoader(t, client, Options{Truncate: true})
	ctx := context.Background()

	_, err := loader.Load(ctx, sampleMetrics(), time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	second := time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC)
	res, err := loader.Load(ctx, sampleMetrics()[:3], second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RowsInTable)

	summary, err := loader.Validate(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary.LastProcessedAt)
	assert.True(t, summary.LastProcessedAt.Equal(second))
}

func TestLoadWithoutTruncateRejectsDuplicates(t *testing.T) {
	client := setupReportingDB(t, true)
	loader := newTestLoader(t, client, Options{Truncate: false})
	ctx := context.Background()

	_, err := loader.Load(ctx, sampleMetrics(), time.Now().UTC())
	require.NoError(t, err)

	_, err = loader.Load(ctx, sampleMetrics(), time.Now().UTC())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	var count int64
	require.NoError(t, client.DB().Table(testTable).Count(&count).Error)
	assert.Equal(t, int64(6), count, "failed load must roll back")
}

func TestLoadMissingTable(t *testing.T) {
	client := setupReportingDB(t, false)
	loader := newTestLoader(t, client, Options{Truncate: true})

	_, err := loader.Load(context.Background(), sampleMetrics(), time.Now().UTC())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSchema), "got %v", err)
	assert.Equal(t, "load", pkgerrors.StageOf(err))
}

func TestValidateSummarizesTable(t *testing.T) {
	client := setupReportingDB(t, true)
	loader := newTestLoader(t, client, Options{Truncate: true})
	ctx := context.Background()

	_, err := loader.Load(ctx, sampleMetrics(), time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	summary, err := loader.Validate(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(6), summary.Rows)
	assert.True(t, summary.TotalSales.Equal(decimal.RequireFromString("1960.5")), "got %s", summary.TotalSales)
	assert.Equal(t, int64(38), summary.TotalQuantity)
	assert.Equal(t, int64(1), summary.TierCounts[enums.PerformanceTierA])
	assert.Equal(t, int64(1), summary.TierCounts[enums.PerformanceTierB])
	assert.Equal(t, int64(4), summary.TierCounts[enums.PerformanceTierC])
	assert.InDelta(t, 66.67, summary.TierShare(enums.PerformanceTierC), 0.01)

	require.Len(t, summary.Top, 5)
	assert.Equal(t, int64(782), summary.Top[0].ProductID)
	assert.Equal(t, int64(711), summary.Top[4].ProductID)
}

func TestValidateEmptyTable(t *testing.T) {
	client := setupReportingDB(t, true)
	summary, err := newTestLoader(t, client, Options{}).Validate(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.Rows)
	assert.True(t, summary.TotalSales.IsZero())
	assert.Nil(t, summary.LastProcessedAt)
	assert.Empty(t, summary.Top)
	assert.Zero(t, summary.TierShare(enums.PerformanceTierA))
}

func TestNewValidatesOptions(t *testing.T) {
	client := setupReportingDB(t, false)

	_, err := New(client, Options{Table: "Analytics.Product Sales"}, nil)
	require.Error(t, err)

	_, err = New(nil, Options{Table: testTable}, nil)
	require.Error(t, err)

	l, err := New(client, Options{Table: "Analytics.ProductSalesMetrics"}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, l.opts.BatchSize)
	assert.Equal(t, "Analytics.ProductSalesMetrics", l.TableName())
}
