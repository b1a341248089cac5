package extract

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/salesmetrics-etl/internal/repo"
	"github.com/angelmondragon/salesmetrics-etl/pkg/config"
)

// Tables names the three source tables. Names may be schema-qualified.
type Tables struct {
	SalesDetail string
	SalesHeader string
	Products    string
}

func DefaultTables() Tables {
	return Tables{
		SalesDetail: "Sales.SalesOrderDetail",
		SalesHeader: "Sales.SalesOrderHeader",
		Products:    "Production.Product",
	}
}

// TablesFromConfig reads the table names from the source section.
func TablesFromConfig(cfg config.SourceConfig) Tables {
	return Tables{
		SalesDetail: cfg.SalesDetailTable,
		SalesHeader: cfg.SalesHeaderTable,
		Products:    cfg.ProductsTable,
	}
}

// Validate reports every malformed table name at once.
func (t Tables) Validate() error {
	var err error
	for _, tbl := range []struct{ label, name string }{
		{"sales detail", t.SalesDetail},
		{"sales header", t.SalesHeader},
		{"products", t.Products},
	} {
		if vErr := repo.ValidateTableName(tbl.name); vErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", tbl.label, vErr))
		}
	}
	return err
}

// source describes how one table is read.
type source struct {
	dataset  string
	selects  []string
	required []string
	numeric  []string
	notNull  []string
}

var salesDetailSource = source{
	dataset: "sales_detail",
	selects: []string{
		"SalesOrderID",
		"SalesOrderDetailID",
		"ProductID",
		"OrderQty",
		"UnitPrice",
		"UnitPriceDiscount",
		"LineTotal",
	},
	required: []string{"SalesOrderID", "SalesOrderDetailID", "ProductID", "OrderQty", "UnitPrice", "UnitPriceDiscount", "LineTotal"},
	numeric:  []string{"SalesOrderID", "ProductID", "OrderQty", "UnitPrice", "LineTotal"},
}

var salesHeaderSource = source{
	dataset: "sales_header",
	selects: []string{
		"SalesOrderID",
		"OrderDate",
		"DueDate",
		"ShipDate",
		"Status",
		"CustomerID",
		"TerritoryID",
		"SubTotal",
		"TaxAmt",
		"Freight",
		"TotalDue",
	},
	required: []string{"SalesOrderID", "OrderDate", "DueDate", "ShipDate", "Status", "CustomerID", "TerritoryID", "SubTotal", "TaxAmt", "Freight", "TotalDue"},
	numeric:  []string{"SalesOrderID"},
	notNull:  []string{"OrderDate"},
}

var productsSource = source{
	dataset: "products",
	selects: []string{
		"ProductID",
		"Name AS ProductName",
		"ProductNumber",
		"Color",
		"StandardCost",
		"ListPrice",
		"Size",
		"ProductSubcategoryID",
	},
	required: []string{"ProductID", "Name", "ProductNumber", "Color", "StandardCost", "ListPrice", "Size", "ProductSubcategoryID"},
	numeric:  []string{"ProductID"},
}
