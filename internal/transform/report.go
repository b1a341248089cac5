package transform

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
)

// Report summarizes a successful run.
type Report struct {
	SalesDetailRows     int `json:"sales_detail_rows"`
	SalesHeaderRows     int `json:"sales_header_rows"`
	ProductRows         int `json:"product_rows"`
	JoinedRows          int `json:"joined_rows"`
	OrphanLines         int `json:"orphan_lines"`
	LinesWithoutCatalog int `json:"lines_without_catalog"`

	YearsAnalyzed int       `json:"years_analyzed"`
	MaxDate       time.Time `json:"max_date"`
	Cutoff        time.Time `json:"cutoff"`
	RowsKept      int       `json:"rows_kept"`
	RowsRemoved   int       `json:"rows_removed"`

	Products    int                           `json:"products"`
	PercentileA float64                       `json:"percentile_a"`
	PercentileB float64                       `json:"percentile_b"`
	ThresholdA  float64                       `json:"threshold_a"`
	ThresholdB  float64                       `json:"threshold_b"`
	TierCounts  map[enums.PerformanceTier]int `json:"tier_counts"`

	TotalSales     float64 `json:"total_sales"`
	TotalQuantity  int64   `json:"total_quantity"`
	TopProductID   int64   `json:"top_product_id"`
	TopProductName string  `json:"top_product_name,omitempty"`

	StageDurations map[Stage]time.Duration `json:"stage_durations"`
}

// TierShare returns the percentage of products in tier.
func (r Report) TierShare(tier enums.PerformanceTier) float64 {
	if r.Products == 0 {
		return 0
	}
	return float64(r.TierCounts[tier]) / float64(r.Products) * 100
}

// summarize fills the totals from the final, ordered metrics.
func (r *Report) summarize(metrics []ProductMetric) {
	r.Products = len(metrics)
	total := decimal.Zero
	var qty int64
	for _, m := range metrics {
		total = total.Add(decimal.NewFromFloat(m.TotalSales))
		qty += m.QtySold
	}
	r.TotalSales = total.InexactFloat64()
	r.TotalQuantity = qty
	if len(metrics) > 0 {
		r.TopProductID = metrics[0].ProductID
		if metrics[0].ProductName != nil {
			r.TopProductName = *metrics[0].ProductName
		}
	}
}
