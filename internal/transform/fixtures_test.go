package transform

import (
	"math"
	"testing"
	"time"

	"github.com/angelmondragon/salesmetrics-etl/pkg/db/models"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}

func line(orderID, lineID, productID, qty int64, price, total float64) models.OrderLine {
	return models.OrderLine{
		OrderID:   orderID,
		LineID:    lineID,
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: price,
		LineTotal: total,
	}
}

func header(orderID int64, date time.Time) models.OrderHeader {
	return models.OrderHeader{OrderID: orderID, OrderDate: date, CustomerID: 1}
}

func product(id int64, name string, list, cost float64) models.Product {
	return models.Product{
		ProductID:     id,
		Name:          name,
		ProductNumber: name,
		ListPrice:     ptr(list),
		StandardCost:  ptr(cost),
	}
}

// scenarioDataset is product 1 sold three times (100, 200, 300) and product 2
// once (50), all inside the window.
func scenarioDataset() Dataset {
	return Dataset{
		SalesDetail: []models.OrderLine{
			line(10, 1, 1, 1, 100, 100),
			line(11, 2, 1, 2, 100, 200),
			line(12, 3, 1, 3, 100, 300),
			line(13, 4, 2, 1, 50, 50),
		},
		SalesHeader: []models.OrderHeader{
			header(10, day(2024, time.January, 10)),
			header(11, day(2024, time.February, 10)),
			header(12, day(2024, time.March, 10)),
			header(13, day(2024, time.April, 10)),
		},
		Products: []models.Product{
			product(1, "Road Frame", 400, 250),
			product(2, "Water Bottle", 10, 4),
		},
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code, stage Stage) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !pkgerrors.IsCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
	if got := pkgerrors.StageOf(err); got != stage.String() {
		t.Fatalf("expected stage %q, got %q (%v)", stage, got, err)
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
