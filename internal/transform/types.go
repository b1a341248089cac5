package transform

import (
	"time"

	"github.com/angelmondragon/salesmetrics-etl/pkg/db/models"
	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
)

// Dataset holds the three input tables of a run. A nil slice means the table
// was never supplied; an empty slice is a present but empty table.
type Dataset struct {
	SalesDetail []models.OrderLine
	SalesHeader []models.OrderHeader
	Products    []models.Product
}

// Sale is an order line joined with its header and, when known, its catalog
// entry. Position is the line's index in the sales detail input.
type Sale struct {
	Position    int
	OrderID     int64
	LineID      int64
	ProductID   int64
	Quantity    int64
	UnitPrice   float64
	Discount    float64
	LineTotal   float64
	OrderDate   time.Time
	CustomerID  int64
	TerritoryID *int64

	HasCatalog   bool
	ProductName  *string
	ListPrice    *float64
	StandardCost *float64
}

// ProductMetric is one output row: the sales of a single product inside the
// analysis window.
type ProductMetric struct {
	ProductID      int64
	TotalSales     float64
	QtySold        int64
	AvgUnitPrice   float64
	LastSaleDate   time.Time
	ProductName    *string
	ListPrice      *float64
	StandardCost   *float64
	NumOrders      int64
	AvgTicket      float64
	GrossMargin    *float64
	AvgQtyPerOrder float64
	Performance    enums.PerformanceTier
}

// Model converts the metric into a reporting row stamped with processedAt.
func (m ProductMetric) Model(processedAt time.Time) models.ProductSalesMetric {
	return models.ProductSalesMetric{
		ProductID:      m.ProductID,
		TotalSales:     m.TotalSales,
		QtySold:        m.QtySold,
		AvgUnitPrice:   m.AvgUnitPrice,
		LastSaleDate:   m.LastSaleDate,
		ProductName:    m.ProductName,
		ListPrice:      m.ListPrice,
		StandardCost:   m.StandardCost,
		NumOrders:      m.NumOrders,
		AvgTicket:      m.AvgTicket,
		GrossMargin:    m.GrossMargin,
		AvgQtyPerOrder: m.AvgQtyPerOrder,
		Performance:    m.Performance,
		ProcessedAt:    processedAt,
	}
}

// Options are the tunables of a run.
type Options struct {
	YearsToAnalyze int     `validate:"gte=1"`
	PercentileA    float64 `validate:"gte=0,lte=100,gtefield=PercentileB"`
	PercentileB    float64 `validate:"gte=0,lte=100"`
}

func DefaultOptions() Options {
	return Options{
		YearsToAnalyze: 2,
		PercentileA:    95,
		PercentileB:    80,
	}
}
