package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesmetrics-etl/pkg/db"
	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
)

const (
	salesDetailDDL = `
CREATE TABLE sales_detail (
  SalesOrderID INTEGER NOT NULL,
  SalesOrderDetailID INTEGER PRIMARY KEY,
  ProductID INTEGER NOT NULL,
  OrderQty INTEGER NOT NULL,
  UnitPrice REAL NOT NULL,
  UnitPriceDiscount REAL NOT NULL DEFAULT 0,
  LineTotal REAL
);`
	salesHeaderDDL = `
CREATE TABLE sales_header (
  SalesOrderID INTEGER PRIMARY KEY,
  OrderDate DATETIME NOT NULL,
  DueDate DATETIME,
  ShipDate DATETIME,
  Status INTEGER NOT NULL DEFAULT 5,
  CustomerID INTEGER NOT NULL,
  TerritoryID INTEGER,
  SubTotal REAL NOT NULL DEFAULT 0,
  TaxAmt REAL NOT NULL DEFAULT 0,
  Freight REAL NOT NULL DEFAULT 0,
  TotalDue REAL NOT NULL DEFAULT 0
);`
	productsDDL = `
CREATE TABLE products (
  ProductID INTEGER PRIMARY KEY,
  Name TEXT NOT NULL,
  ProductNumber TEXT NOT NULL,
  Color TEXT,
  StandardCost REAL,
  ListPrice REAL,
  Size TEXT,
  ProductSubcategoryID INTEGER
);`
)

var testTables = Tables{SalesDetail: "sales_detail", SalesHeader: "sales_header", Products: "products"}

func setupSourceDB(t *testing.T, ddl ...string) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return db.NewFromGorm(conn, enums.DBDriverSQLite)
}

func seedSource(t *testing.T, client *db.Client) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO sales_header (SalesOrderID, OrderDate, DueDate, ShipDate, CustomerID, TerritoryID, SubTotal, TaxAmt, Freight, TotalDue)
		 VALUES (43659, '2024-01-10 00:00:00', '2024-01-22 00:00:00', '2024-01-17 00:00:00', 29825, 5, 300, 24, 7.5, 331.5)`,
		`INSERT INTO sales_header (SalesOrderID, OrderDate, CustomerID) VALUES (43660, '2024-02-10 00:00:00', 29672)`,
		`INSERT INTO sales_detail (SalesOrderID, SalesOrderDetailID, ProductID, OrderQty, UnitPrice, UnitPriceDiscount, LineTotal)
		 VALUES (43659, 1, 776, 1, 100, 0, 100), (43659, 2, 777, 2, 100, 0, 200), (43660, 3, 776, 3, 100, 0.1, 270)`,
		`INSERT INTO products (ProductID, Name, ProductNumber, Color, StandardCost, ListPrice, Size, ProductSubcategoryID)
		 VALUES (776, 'Mountain-100 Black, 42', 'BK-M82B-42', 'Black', 1898.09, 3374.99, '42', 1)`,
		`INSERT INTO products (ProductID, Name, ProductNumber) VALUES (777, 'Adjustable Race', 'AR-5381')`,
	}
	for _, stmt := range stmts {
		require.NoError(t, client.Exec(ctx, stmt).Error)
	}
}

func newTestExtractor(t *testing.T, client *db.Client) *Extractor {
	t.Helper()
	e, err := New(client, testTables, nil)
	require.NoError(t, err)
	return e
}

func TestExtractAllReadsSourceTables(t *testing.T) {
	client := setupSourceDB(t, salesDetailDDL, salesHeaderDDL, productsDDL)
	seedSource(t, client)

	ds, err := newTestExtractor(t, client).ExtractAll(context.Background())
	require.NoError(t, err)

	require.Len(t, ds.SalesDetail, 3)
	require.Len(t, ds.SalesHeader, 2)
	require.Len(t, ds.Products, 2)

	line := ds.SalesDetail[2]
	assert.Equal(t, int64(43660), line.OrderID)
	assert.Equal(t, int64(3), line.LineID)
	assert.Equal(t, int64(776), line.ProductID)
	assert.Equal(t, int64(3), line.Quantity)
	assert.InDelta(t, 0.1, line.Discount, 1e-9)
	assert.InDelta(t, 270.0, line.LineTotal, 1e-9)

	first, second := ds.SalesHeader[0], ds.SalesHeader[1]
	assert.True(t, first.OrderDate.Equal(time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, first.TerritoryID)
	assert.Equal(t, int64(5), *first.TerritoryID)
	require.NotNil(t, first.ShipDate)
	assert.Nil(t, second.TerritoryID)
	assert.Nil(t, second.DueDate)
	assert.Equal(t, 5, second.Status)

	bike := ds.Products[0]
	assert.Equal(t, "Mountain-100 Black, 42", bike.Name)
	require.NotNil(t, bike.ListPrice)
	assert.InDelta(t, 3374.99, *bike.ListPrice, 1e-9)
	require.NotNil(t, bike.Color)

	race := ds.Products[1]
	assert.Nil(t, race.ListPrice)
	assert.Nil(t, race.StandardCost)
	assert.Nil(t, race.Color)
}

func TestExtractAllEmptyTables(t *testing.T) {
	client := setupSourceDB(t, salesDetailDDL, salesHeaderDDL, productsDDL)

	ds, err := newTestExtractor(t, client).ExtractAll(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, ds.SalesDetail)
	assert.NotNil(t, ds.SalesHeader)
	assert.NotNil(t, ds.Products)
	assert.Empty(t, ds.SalesDetail)
}

func TestExtractReportsAllMissingColumns(t *testing.T) {
	client := setupSourceDB(t, `CREATE TABLE sales_detail (
  SalesOrderID INTEGER NOT NULL,
  SalesOrderDetailID INTEGER PRIMARY KEY,
  ProductID INTEGER NOT NULL,
  OrderQty INTEGER NOT NULL,
  UnitPriceDiscount REAL NOT NULL DEFAULT 0
);`)

	_, err := newTestExtractor(t, client).SalesDetail(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSchema), "got %v", err)
	assert.Equal(t, "extract", pkgerrors.StageOf(err))
	assert.Contains(t, err.Error(), "UnitPrice not found")
	assert.Contains(t, err.Error(), "LineTotal not found")
}

func TestExtractMissingTable(t *testing.T) {
	client := setupSourceDB(t, salesDetailDDL)

	_, err := newTestExtractor(t, client).ExtractAll(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSchema), "got %v", err)
	assert.Contains(t, err.Error(), "sales_header")
}

func TestExtractRejectsNullNumericValues(t *testing.T) {
	client := setupSourceDB(t, salesDetailDDL)
	require.NoError(t, client.Exec(context.Background(),
		`INSERT INTO sales_detail (SalesOrderID, SalesOrderDetailID, ProductID, OrderQty, UnitPrice, LineTotal)
		 VALUES (1, 1, 1, 1, 10, NULL)`).Error)

	_, err := newTestExtractor(t, client).SalesDetail(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNumeric), "got %v", err)
	assert.Contains(t, err.Error(), "LineTotal")
}

func TestNewRejectsBadTableNames(t *testing.T) {
	client := setupSourceDB(t)

	_, err := New(client, Tables{SalesDetail: "sales; DROP TABLE x", SalesHeader: "ok", Products: "a.b.c"}, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "sales detail")
	assert.Contains(t, err.Error(), "products")

	_, err = New(nil, DefaultTables(), nil)
	require.Error(t, err)
}

func TestProbeSQLite(t *testing.T) {
	client := setupSourceDB(t, salesDetailDDL, salesHeaderDDL, productsDDL)

	res, err := NewProber(client, nil).Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enums.DBDriverSQLite, res.Driver)
	assert.NotEmpty(t, res.ServerVersion)
	assert.Equal(t, int64(3), res.BaseTables)
}

func TestQueryStrings(t *testing.T) {
	assert.Equal(t, "SELECT @@VERSION", versionQuery(enums.DBDriverSQLServer))
	assert.Equal(t, "SELECT version()", versionQuery(enums.DBDriverPostgres))
	assert.Contains(t, tableCountQuery(enums.DBDriverSQLServer), "INFORMATION_SCHEMA.TABLES")
	assert.Contains(t, tableCountQuery(enums.DBDriverSQLite), "sqlite_master")
}
