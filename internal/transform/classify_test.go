package transform

import (
	"testing"

	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
)

// The fixed sample pins the interpolation method: any other percentile
// definition produces different values for at least one of these rows.
func TestPercentileConformance(t *testing.T) {
	sample := []float64{40, 15, 50, 20, 35}
	cases := []struct {
		q    float64
		want float64
	}{
		{0, 15},
		{25, 20},
		{40, 29},
		{50, 35},
		{80, 42},
		{95, 48},
		{100, 50},
	}
	for _, tc := range cases {
		got, err := Percentile(sample, tc.q)
		if err != nil {
			t.Fatalf("percentile %v: %v", tc.q, err)
		}
		if !approxEqual(got, tc.want) {
			t.Errorf("percentile(%v) = %v, want %v", tc.q, got, tc.want)
		}
	}
	if sample[0] != 40 {
		t.Fatal("percentile must not reorder the caller's slice")
	}
}

func TestPercentileEdgeCases(t *testing.T) {
	if got, err := Percentile([]float64{42}, 95); err != nil || got != 42 {
		t.Fatalf("single value: got %v, %v", got, err)
	}
	if got, err := Percentile([]float64{7, 7, 7}, 80); err != nil || got != 7 {
		t.Fatalf("constant sample: got %v, %v", got, err)
	}

	_, err := Percentile(nil, 50)
	requireCode(t, err, pkgerrors.CodeEmptyInput, StageClassify)

	if _, err := Percentile([]float64{1, 2}, 101); err == nil {
		t.Fatal("expected error for q > 100")
	}
}

func TestClassifyAssignsTiers(t *testing.T) {
	metrics := make([]ProductMetric, 0, 20)
	for i := 1; i <= 20; i++ {
		metrics = append(metrics, ProductMetric{ProductID: int64(i), TotalSales: float64(i * 10)})
	}

	th, err := Classify(metrics, 95, 80)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	// totals 10..200: p95 = 190.5, p80 = 162
	if !approxEqual(th.ValueA, 190.5) || !approxEqual(th.ValueB, 162) {
		t.Fatalf("unexpected thresholds %v / %v", th.ValueA, th.ValueB)
	}
	if th.Counts[enums.PerformanceTierA] != 1 || th.Counts[enums.PerformanceTierB] != 3 || th.Counts[enums.PerformanceTierC] != 16 {
		t.Fatalf("unexpected tier counts %v", th.Counts)
	}
	if metrics[19].Performance != enums.PerformanceTierA || metrics[16].Performance != enums.PerformanceTierB || metrics[15].Performance != enums.PerformanceTierC {
		t.Fatalf("unexpected tiers: %s %s %s", metrics[19].Performance, metrics[16].Performance, metrics[15].Performance)
	}
}

func TestClassifyBoundaryIsInclusive(t *testing.T) {
	metrics := []ProductMetric{
		{ProductID: 1, TotalSales: 100},
		{ProductID: 2, TotalSales: 100},
	}
	th, err := Classify(metrics, 95, 80)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if th.ValueA != 100 {
		t.Fatalf("expected threshold 100, got %v", th.ValueA)
	}
	for _, m := range metrics {
		if m.Performance != enums.PerformanceTierA {
			t.Fatalf("value equal to p95 belongs to tier A, got %s", m.Performance)
		}
	}
}

func TestClassifyMonotonicity(t *testing.T) {
	totals := []float64{3, 900, 45, 45, 12, 300, 7, 88, 150, 1, 64, 64, 2000, 5}
	metrics := make([]ProductMetric, len(totals))
	for i, v := range totals {
		metrics[i] = ProductMetric{ProductID: int64(i + 1), TotalSales: v}
	}
	th, err := Classify(metrics, 95, 80)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if th.ValueA < th.ValueB {
		t.Fatalf("p95 %v < p80 %v", th.ValueA, th.ValueB)
	}
	for _, hi := range metrics {
		for _, lo := range metrics {
			if hi.Performance.Rank() < lo.Performance.Rank() && hi.TotalSales < lo.TotalSales {
				t.Fatalf("tier %s product %d (%v) sells less than tier %s product %d (%v)",
					hi.Performance, hi.ProductID, hi.TotalSales, lo.Performance, lo.ProductID, lo.TotalSales)
			}
		}
	}
}

func TestSortByTotalSalesIsStable(t *testing.T) {
	metrics := []ProductMetric{
		{ProductID: 1, TotalSales: 50},
		{ProductID: 2, TotalSales: 80},
		{ProductID: 3, TotalSales: 50},
		{ProductID: 4, TotalSales: 80},
		{ProductID: 5, TotalSales: 10},
	}
	SortByTotalSales(metrics)

	want := []int64{2, 4, 1, 3, 5}
	for i, id := range want {
		if metrics[i].ProductID != id {
			t.Fatalf("position %d: expected product %d, got %d", i, id, metrics[i].ProductID)
		}
	}
}
