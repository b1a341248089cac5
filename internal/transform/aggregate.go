package transform

import (
	"fmt"
	"math"
	"sort"
	"time"
)

type productGroup struct {
	first      Sale
	totalSales float64
	qtySold    int64
	priceSum   float64
	lines      int64
	lastSale   time.Time
}

// Aggregate groups the windowed sales by product. Groups come out in
// ascending product id order; catalog fields are taken from the group's first
// sale in input order.
func Aggregate(sales []Sale) ([]ProductMetric, error) {
	if len(sales) == 0 {
		return nil, emptyInputError(StageAggregate, "no sales rows to aggregate")
	}

	groups := make(map[int64]*productGroup)
	for _, s := range sales {
		if !isFinite(s.LineTotal) {
			return nil, numericError(StageAggregate, fmt.Sprintf("line_total is not finite for order %d line %d", s.OrderID, s.LineID),
				map[string]any{"order_id": s.OrderID, "line_id": s.LineID, "product_id": s.ProductID})
		}
		if !isFinite(s.UnitPrice) {
			return nil, numericError(StageAggregate, fmt.Sprintf("unit_price is not finite for order %d line %d", s.OrderID, s.LineID),
				map[string]any{"order_id": s.OrderID, "line_id": s.LineID, "product_id": s.ProductID})
		}

		g, ok := groups[s.ProductID]
		if !ok {
			g = &productGroup{first: s, lastSale: s.OrderDate}
			groups[s.ProductID] = g
		} else if s.Position < g.first.Position {
			g.first = s
		}
		g.totalSales += s.LineTotal
		g.qtySold += s.Quantity
		g.priceSum += s.UnitPrice
		g.lines++
		if s.OrderDate.After(g.lastSale) {
			g.lastSale = s.OrderDate
		}
	}

	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	metrics := make([]ProductMetric, 0, len(ids))
	for _, id := range ids {
		g := groups[id]
		if !isFinite(g.totalSales) {
			return nil, numericError(StageAggregate, fmt.Sprintf("total_sales overflowed for product %d", id),
				map[string]any{"product_id": id})
		}
		metrics = append(metrics, ProductMetric{
			ProductID:    id,
			TotalSales:   g.totalSales,
			QtySold:      g.qtySold,
			AvgUnitPrice: g.priceSum / float64(g.lines),
			LastSaleDate: g.lastSale,
			ProductName:  g.first.ProductName,
			ListPrice:    g.first.ListPrice,
			StandardCost: g.first.StandardCost,
			NumOrders:    g.lines,
		})
	}
	return metrics, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
