package transform

import (
	"sort"

	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
)

// Thresholds are the total-sales boundaries of a classification.
type Thresholds struct {
	PercentileA float64
	PercentileB float64
	ValueA      float64
	ValueB      float64
	Counts      map[enums.PerformanceTier]int
}

// Classify assigns A to metrics at or above the pA percentile of total sales,
// B to those at or above the pB percentile, and C to the rest.
func Classify(metrics []ProductMetric, pA, pB float64) (Thresholds, error) {
	if len(metrics) == 0 {
		return Thresholds{}, emptyInputError(StageClassify, "no products to classify")
	}

	totals := make([]float64, len(metrics))
	for i, m := range metrics {
		totals[i] = m.TotalSales
	}

	valueA, err := Percentile(totals, pA)
	if err != nil {
		return Thresholds{}, err
	}
	valueB, err := Percentile(totals, pB)
	if err != nil {
		return Thresholds{}, err
	}

	th := Thresholds{
		PercentileA: pA,
		PercentileB: pB,
		ValueA:      valueA,
		ValueB:      valueB,
		Counts:      make(map[enums.PerformanceTier]int, 3),
	}
	for i := range metrics {
		tier := tierFor(metrics[i].TotalSales, valueA, valueB)
		metrics[i].Performance = tier
		th.Counts[tier]++
	}
	return th, nil
}

func tierFor(total, valueA, valueB float64) enums.PerformanceTier {
	switch {
	case total >= valueA:
		return enums.PerformanceTierA
	case total >= valueB:
		return enums.PerformanceTierB
	default:
		return enums.PerformanceTierC
	}
}

// SortByTotalSales orders metrics by total sales descending. Ties keep their
// current relative order.
func SortByTotalSales(metrics []ProductMetric) {
	sort.SliceStable(metrics, func(i, j int) bool {
		return metrics[i].TotalSales > metrics[j].TotalSales
	})
}
