package bqexport

import (
	"encoding/json"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/salesmetrics-etl/internal/transform"
)

// MetricRow is one product metric tagged with the run that produced it.
type MetricRow struct {
	RunID          string                `bigquery:"run_id"`
	ProductID      int64                 `bigquery:"product_id"`
	ProductName    cbigquery.NullString  `bigquery:"product_name"`
	TotalSales     float64               `bigquery:"total_sales"`
	QtySold        int64                 `bigquery:"qty_sold"`
	AvgUnitPrice   float64               `bigquery:"avg_unit_price"`
	LastSaleDate   time.Time             `bigquery:"last_sale_date"`
	ListPrice      cbigquery.NullFloat64 `bigquery:"list_price"`
	StandardCost   cbigquery.NullFloat64 `bigquery:"standard_cost"`
	NumOrders      int64                 `bigquery:"num_orders"`
	AvgTicket      float64               `bigquery:"avg_ticket"`
	GrossMargin    cbigquery.NullFloat64 `bigquery:"gross_margin"`
	AvgQtyPerOrder float64               `bigquery:"avg_qty_per_order"`
	Performance    string                `bigquery:"performance"`
	ProcessedAt    time.Time             `bigquery:"processed_at"`
}

// RunRow records the outcome of one pipeline run.
type RunRow struct {
	RunID       string               `bigquery:"run_id"`
	Status      string               `bigquery:"status"`
	StartedAt   time.Time            `bigquery:"started_at"`
	FinishedAt  time.Time            `bigquery:"finished_at"`
	Products    int64                `bigquery:"products"`
	RowsLoaded  int64                `bigquery:"rows_loaded"`
	Exported    int64                `bigquery:"rows_exported"`
	TotalSales  float64              `bigquery:"total_sales"`
	ThresholdA  float64              `bigquery:"threshold_a"`
	ThresholdB  float64              `bigquery:"threshold_b"`
	FailedPhase cbigquery.NullString `bigquery:"failed_phase"`
	ErrorCode   cbigquery.NullString `bigquery:"error_code"`
	Report      cbigquery.NullJSON   `bigquery:"report"`
}

// NewMetricRow converts a transform metric for export.
func NewMetricRow(runID string, m transform.ProductMetric, processedAt time.Time) MetricRow {
	return MetricRow{
		RunID:          runID,
		ProductID:      m.ProductID,
		ProductName:    nullString(m.ProductName),
		TotalSales:     m.TotalSales,
		QtySold:        m.QtySold,
		AvgUnitPrice:   m.AvgUnitPrice,
		LastSaleDate:   m.LastSaleDate,
		ListPrice:      nullFloat(m.ListPrice),
		StandardCost:   nullFloat(m.StandardCost),
		NumOrders:      m.NumOrders,
		AvgTicket:      m.AvgTicket,
		GrossMargin:    nullFloat(m.GrossMargin),
		AvgQtyPerOrder: m.AvgQtyPerOrder,
		Performance:    m.Performance.String(),
		ProcessedAt:    processedAt,
	}
}

func nullString(v *string) cbigquery.NullString {
	if v == nil {
		return cbigquery.NullString{}
	}
	return cbigquery.NullString{StringVal: *v, Valid: true}
}

func nullFloat(v *float64) cbigquery.NullFloat64 {
	if v == nil {
		return cbigquery.NullFloat64{}
	}
	return cbigquery.NullFloat64{Float64: *v, Valid: true}
}

// EncodeJSON serializes the provided payload so it can be stored in BigQuery JSON columns.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		if len(value) == 0 {
			return cbigquery.NullJSON{}, nil
		}
		return cbigquery.NullJSON{Valid: true, JSONVal: string(value)}, nil
	}

	marshaled, err := json.Marshal(payload)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(marshaled)}, nil
}
