package transform

import "math"

const avgTicketPlaces = 2

// Derive fills avg ticket, gross margin and average quantity per order.
// Every metric has NumOrders >= 1 by construction.
func Derive(metrics []ProductMetric) {
	for i := range metrics {
		m := &metrics[i]
		orders := float64(m.NumOrders)
		m.AvgTicket = roundHalfEven(m.TotalSales/orders, avgTicketPlaces)
		m.GrossMargin = grossMargin(m.ListPrice, m.StandardCost)
		m.AvgQtyPerOrder = float64(m.QtySold) / orders
	}
}

// grossMargin is (list - cost) / list * 100, or nil when the list price is
// unknown or not positive, or the cost is unknown.
func grossMargin(listPrice, standardCost *float64) *float64 {
	if listPrice == nil || standardCost == nil || *listPrice <= 0 {
		return nil
	}
	margin := (*listPrice - *standardCost) / *listPrice * 100
	return &margin
}

// roundHalfEven rounds the scaled binary value to even, so 5.015, stored as
// 5.01499..., becomes 5.01.
func roundHalfEven(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.RoundToEven(v*scale) / scale
}
