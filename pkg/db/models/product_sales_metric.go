package models

import (
	"time"

	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
)

// ProductSalesMetric is one row of the reporting table. The table name is
// configured at runtime, so callers pass it through gorm's Table().
type ProductSalesMetric struct {
	ProductID      int64                 `gorm:"column:ProductID;primaryKey;autoIncrement:false"`
	TotalSales     float64               `gorm:"column:TotalSales;not null"`
	QtySold        int64                 `gorm:"column:QtySold;not null"`
	AvgUnitPrice   float64               `gorm:"column:AvgUnitPrice;not null"`
	LastSaleDate   time.Time             `gorm:"column:LastSaleDate;not null"`
	ProductName    *string               `gorm:"column:ProductName"`
	ListPrice      *float64              `gorm:"column:ListPrice"`
	StandardCost   *float64              `gorm:"column:StandardCost"`
	NumOrders      int64                 `gorm:"column:NumOrders;not null"`
	AvgTicket      float64               `gorm:"column:AvgTicket;not null"`
	GrossMargin    *float64              `gorm:"column:GrossMargin"`
	AvgQtyPerOrder float64               `gorm:"column:AvgQtyPerOrder;not null"`
	Performance    enums.PerformanceTier `gorm:"column:Performance;type:char(1);not null"`
	ProcessedAt    time.Time             `gorm:"column:ProcessedAt;not null"`
}

// MetricColumns lists the reporting columns in insert order.
var MetricColumns = []string{
	"ProductID",
	"TotalSales",
	"QtySold",
	"AvgUnitPrice",
	"LastSaleDate",
	"ProductName",
	"ListPrice",
	"StandardCost",
	"NumOrders",
	"AvgTicket",
	"GrossMargin",
	"AvgQtyPerOrder",
	"Performance",
	"ProcessedAt",
}

// Values returns the row in MetricColumns order.
func (m ProductSalesMetric) Values() []any {
	return []any{
		m.ProductID,
		m.TotalSales,
		m.QtySold,
		m.AvgUnitPrice,
		m.LastSaleDate,
		nullable(m.ProductName),
		nullable(m.ListPrice),
		nullable(m.StandardCost),
		m.NumOrders,
		m.AvgTicket,
		nullable(m.GrossMargin),
		m.AvgQtyPerOrder,
		string(m.Performance),
		m.ProcessedAt,
	}
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
