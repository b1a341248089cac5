package transform

import (
	"testing"
	"time"

	"github.com/angelmondragon/salesmetrics-etl/pkg/db/models"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
)

func TestJoinDropsOrphanLines(t *testing.T) {
	ds := scenarioDataset()
	ds.SalesDetail = append(ds.SalesDetail,
		line(99, 5, 1, 1, 100, 100),
		line(98, 6, 2, 1, 50, 50),
	)

	sales, stats, err := Join(ds)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if stats.OrphanLines != 2 {
		t.Fatalf("expected 2 orphan lines, got %d", stats.OrphanLines)
	}
	if len(sales) != len(ds.SalesDetail)-stats.OrphanLines {
		t.Fatalf("|Sales| = %d, want |L| - orphans = %d", len(sales), len(ds.SalesDetail)-stats.OrphanLines)
	}
	if stats.JoinedRows != len(sales) {
		t.Fatalf("joined rows %d != %d", stats.JoinedRows, len(sales))
	}
}

func TestJoinKeepsLinesWithoutCatalog(t *testing.T) {
	ds := scenarioDataset()
	ds.Products = []models.Product{product(1, "Road Frame", 400, 250)}

	sales, stats, err := Join(ds)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(sales) != 4 {
		t.Fatalf("left join must preserve rows, got %d", len(sales))
	}
	if stats.LinesWithoutCatalog != 1 {
		t.Fatalf("expected 1 line without catalog, got %d", stats.LinesWithoutCatalog)
	}
	last := sales[3]
	if last.HasCatalog || last.ProductName != nil || last.ListPrice != nil || last.StandardCost != nil {
		t.Fatalf("expected nil catalog fields, got %+v", last)
	}
}

func TestJoinPreservesDetailOrder(t *testing.T) {
	ds := scenarioDataset()
	ds.SalesHeader = []models.OrderHeader{
		header(13, day(2024, time.April, 10)),
		header(12, day(2024, time.March, 10)),
		header(11, day(2024, time.February, 10)),
		header(10, day(2024, time.January, 10)),
	}

	sales, _, err := Join(ds)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	for i, s := range sales {
		if s.Position != i || s.LineID != int64(i+1) {
			t.Fatalf("row %d out of order: %+v", i, s)
		}
	}
	if !sales[0].OrderDate.Equal(day(2024, time.January, 10)) {
		t.Fatalf("header fields not joined: %v", sales[0].OrderDate)
	}
}

func TestJoinRejectsDuplicateKeys(t *testing.T) {
	ds := scenarioDataset()
	ds.SalesHeader = append(ds.SalesHeader, header(10, day(2024, time.May, 1)))
	_, _, err := Join(ds)
	requireCode(t, err, pkgerrors.CodeSchema, StageJoin)

	ds = scenarioDataset()
	ds.Products = append(ds.Products, product(2, "Duplicate", 1, 1))
	_, _, err = Join(ds)
	requireCode(t, err, pkgerrors.CodeSchema, StageJoin)
}

func TestJoinRejectsMissingTables(t *testing.T) {
	cases := map[string]func(*Dataset){
		"sales_detail": func(ds *Dataset) { ds.SalesDetail = nil },
		"sales_header": func(ds *Dataset) { ds.SalesHeader = nil },
		"products":     func(ds *Dataset) { ds.Products = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			ds := scenarioDataset()
			mutate(&ds)
			_, _, err := Join(ds)
			requireCode(t, err, pkgerrors.CodeSchema, StageJoin)
		})
	}
}

func TestJoinAcceptsEmptyTables(t *testing.T) {
	sales, stats, err := Join(Dataset{
		SalesDetail: []models.OrderLine{},
		SalesHeader: []models.OrderHeader{},
		Products:    []models.Product{},
	})
	if err != nil {
		t.Fatalf("empty but present tables should join: %v", err)
	}
	if len(sales) != 0 || stats.JoinedRows != 0 {
		t.Fatalf("expected no rows, got %d", len(sales))
	}
}
