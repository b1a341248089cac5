package models

import "time"

// OrderLine is one row of the sales detail table.
type OrderLine struct {
	OrderID   int64   `gorm:"column:SalesOrderID;not null"`
	LineID    int64   `gorm:"column:SalesOrderDetailID;primaryKey"`
	ProductID int64   `gorm:"column:ProductID;not null"`
	Quantity  int64   `gorm:"column:OrderQty;not null"`
	UnitPrice float64 `gorm:"column:UnitPrice;not null"`
	Discount  float64 `gorm:"column:UnitPriceDiscount;not null"`
	LineTotal float64 `gorm:"column:LineTotal;not null"`
}

// OrderHeader is one row of the sales header table. OrderID is unique.
type OrderHeader struct {
	OrderID     int64      `gorm:"column:SalesOrderID;primaryKey"`
	OrderDate   time.Time  `gorm:"column:OrderDate;not null"`
	DueDate     *time.Time `gorm:"column:DueDate"`
	ShipDate    *time.Time `gorm:"column:ShipDate"`
	Status      int        `gorm:"column:Status"`
	CustomerID  int64      `gorm:"column:CustomerID"`
	TerritoryID *int64     `gorm:"column:TerritoryID"`
	SubTotal    float64    `gorm:"column:SubTotal"`
	TaxAmt      float64    `gorm:"column:TaxAmt"`
	Freight     float64    `gorm:"column:Freight"`
	TotalDue    float64    `gorm:"column:TotalDue"`
}

// Product is a catalog entry. ProductID is unique; pricing may be unknown.
type Product struct {
	ProductID     int64    `gorm:"column:ProductID;primaryKey"`
	Name          string   `gorm:"column:ProductName"`
	ProductNumber string   `gorm:"column:ProductNumber"`
	Color         *string  `gorm:"column:Color"`
	StandardCost  *float64 `gorm:"column:StandardCost"`
	ListPrice     *float64 `gorm:"column:ListPrice"`
	Size          *string  `gorm:"column:Size"`
	SubcategoryID *int64   `gorm:"column:ProductSubcategoryID"`
}
