package transform

import (
	"fmt"

	"github.com/angelmondragon/salesmetrics-etl/pkg/db/models"
)

// JoinStats counts what the join kept and dropped.
type JoinStats struct {
	DetailRows          int
	HeaderRows          int
	ProductRows         int
	JoinedRows          int
	OrphanLines         int
	LinesWithoutCatalog int
}

// Join inner-joins order lines with headers on order id, then left-joins the
// result with the catalog on product id. Output keeps the detail input order.
// Lines without a header are dropped and counted; lines without a catalog
// entry are kept with nil catalog fields and counted.
func Join(ds Dataset) ([]Sale, JoinStats, error) {
	if ds.SalesDetail == nil {
		return nil, JoinStats{}, schemaError(StageJoin, "sales_detail table is missing")
	}
	if ds.SalesHeader == nil {
		return nil, JoinStats{}, schemaError(StageJoin, "sales_header table is missing")
	}
	if ds.Products == nil {
		return nil, JoinStats{}, schemaError(StageJoin, "products table is missing")
	}

	stats := JoinStats{
		DetailRows:  len(ds.SalesDetail),
		HeaderRows:  len(ds.SalesHeader),
		ProductRows: len(ds.Products),
	}

	headers := make(map[int64]*models.OrderHeader, len(ds.SalesHeader))
	for i := range ds.SalesHeader {
		h := &ds.SalesHeader[i]
		if _, dup := headers[h.OrderID]; dup {
			return nil, stats, schemaError(StageJoin, fmt.Sprintf("sales_header has duplicate order_id %d", h.OrderID))
		}
		headers[h.OrderID] = h
	}

	catalog := make(map[int64]*models.Product, len(ds.Products))
	for i := range ds.Products {
		p := &ds.Products[i]
		if _, dup := catalog[p.ProductID]; dup {
			return nil, stats, schemaError(StageJoin, fmt.Sprintf("products has duplicate product_id %d", p.ProductID))
		}
		catalog[p.ProductID] = p
	}

	sales := make([]Sale, 0, len(ds.SalesDetail))
	for i, line := range ds.SalesDetail {
		header, ok := headers[line.OrderID]
		if !ok {
			stats.OrphanLines++
			continue
		}
		sale := Sale{
			Position:    i,
			OrderID:     line.OrderID,
			LineID:      line.LineID,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Discount:    line.Discount,
			LineTotal:   line.LineTotal,
			OrderDate:   header.OrderDate,
			CustomerID:  header.CustomerID,
			TerritoryID: header.TerritoryID,
		}
		if product, ok := catalog[line.ProductID]; ok {
			name := product.Name
			sale.HasCatalog = true
			sale.ProductName = &name
			sale.ListPrice = product.ListPrice
			sale.StandardCost = product.StandardCost
		} else {
			stats.LinesWithoutCatalog++
		}
		sales = append(sales, sale)
	}

	stats.JoinedRows = len(sales)
	return sales, stats, nil
}
