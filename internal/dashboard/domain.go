package dashboard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

// DefaultLowStockThreshold applies when no threshold is configured.
var DefaultLowStockThreshold = decimal.NewFromInt(10)

// Filter narrows the movement chart and selects a focus product.
type Filter struct {
	Keyword string
	From    time.Time
	To      time.Time
}

// Stats are the headline counters.
type Stats struct {
	Products         int             `json:"products"`
	ProductionOrders int             `json:"production_orders"`
	SalesOrders      int             `json:"sales_orders"`
	PurchaseOrders   int             `json:"purchase_orders"`
	Suppliers        int             `json:"suppliers"`
	LowStock         int             `json:"low_stock"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
}

// MonthRevenue is delivered revenue for one calendar month.
type MonthRevenue struct {
	Month   string          `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
}

// MonthAmount is a raw monthly sum as returned by the repository.
type MonthAmount struct {
	Month  time.Month
	Amount decimal.Decimal
}

// DayAmount is a value for one day.
type DayAmount struct {
	Day    string          `json:"day"`
	Amount decimal.Decimal `json:"amount"`
}

// MovementRow is one product's import or export total for one day, valued at
// the current unit price.
type MovementRow struct {
	Day         time.Time
	Direction   inventory.Direction
	ProductName string
	Unit        string
	Quantity    decimal.Decimal
	Value       decimal.Decimal
}

// MovementDetail is a per-product breakdown line.
type MovementDetail struct {
	Product    string          `json:"product"`
	Unit       string          `json:"unit"`
	Quantity   decimal.Decimal `json:"quantity"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// DailyMovement totals imports and exports for a day.
type DailyMovement struct {
	Day           string           `json:"day"`
	ImportTotal   decimal.Decimal  `json:"import_total"`
	ExportTotal   decimal.Decimal  `json:"export_total"`
	ImportDetails []MovementDetail `json:"import_details"`
	ExportDetails []MovementDetail `json:"export_details"`
}

// MaterialStock is a material with stock on hand.
type MaterialStock struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Unit        string          `json:"unit"`
	Stock       decimal.Decimal `json:"stock"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalValue  decimal.Decimal `json:"total_value"`
}

// Series kinds reported for a focus product.
const (
	SeriesMaterialUsage = "material_usage"
	SeriesRevenue       = "revenue"
)

// Focus describes the product matched by the keyword.
type Focus struct {
	ProductID   int64                 `json:"product_id"`
	ProductName string                `json:"product_name"`
	ProductType inventory.ProductType `json:"product_type"`
	Revenue     decimal.Decimal       `json:"revenue"`
	SeriesKind  string                `json:"series_kind"`
	Series      []DayAmount           `json:"series"`
}

// Overview is the full dashboard read model.
type Overview struct {
	Stats              Stats           `json:"stats"`
	MonthlyRevenue     []MonthRevenue  `json:"monthly_revenue"`
	Movements          []DailyMovement `json:"movements"`
	Materials          []MaterialStock `json:"materials"`
	MaterialTotalValue decimal.Decimal `json:"material_total_value"`
	Focus              *Focus          `json:"focus,omitempty"`
	SearchMessage      string          `json:"search_message,omitempty"`
	GeneratedAt        time.Time       `json:"generated_at"`
}

const dayLayout = "2006-01-02"

// GroupMovements folds movement rows into one entry per day, oldest first.
func GroupMovements(rows []MovementRow) []DailyMovement {
	byDay := map[string]*DailyMovement{}
	for _, row := range rows {
		day := row.Day.Format(dayLayout)
		dm, ok := byDay[day]
		if !ok {
			dm = &DailyMovement{Day: day, ImportDetails: []MovementDetail{}, ExportDetails: []MovementDetail{}}
			byDay[day] = dm
		}
		detail := MovementDetail{Product: row.ProductName, Unit: row.Unit, Quantity: row.Quantity, TotalValue: row.Value}
		switch row.Direction {
		case inventory.DirectionImport:
			dm.ImportTotal = dm.ImportTotal.Add(row.Quantity)
			dm.ImportDetails = mergeDetail(dm.ImportDetails, detail)
		case inventory.DirectionExport:
			dm.ExportTotal = dm.ExportTotal.Add(row.Quantity)
			dm.ExportDetails = mergeDetail(dm.ExportDetails, detail)
		}
	}
	out := make([]DailyMovement, 0, len(byDay))
	for _, dm := range byDay {
		sort.Slice(dm.ImportDetails, func(i, j int) bool { return dm.ImportDetails[i].Product < dm.ImportDetails[j].Product })
		sort.Slice(dm.ExportDetails, func(i, j int) bool { return dm.ExportDetails[i].Product < dm.ExportDetails[j].Product })
		out = append(out, *dm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func mergeDetail(details []MovementDetail, d MovementDetail) []MovementDetail {
	for i := range details {
		if details[i].Product == d.Product {
			details[i].Quantity = details[i].Quantity.Add(d.Quantity)
			details[i].TotalValue = details[i].TotalValue.Add(d.TotalValue)
			return details
		}
	}
	return append(details, d)
}

// FillMonths spreads monthly sums over January to December.
func FillMonths(rows []MonthAmount) []MonthRevenue {
	out := make([]MonthRevenue, 12)
	for i := range out {
		out[i] = MonthRevenue{Month: time.Month(i + 1).String()[:3], Revenue: decimal.Zero}
	}
	for _, r := range rows {
		if r.Month >= time.January && r.Month <= time.December {
			out[r.Month-1].Revenue = out[r.Month-1].Revenue.Add(r.Amount)
		}
	}
	return out
}

// CountLowStock counts products whose computed stock is below threshold.
func CountLowStock(items []inventory.ProductTotals, limit decimal.Decimal) int {
	n := 0
	for _, it := range items {
		if it.Totals.Stock().LessThan(limit) {
			n++
		}
	}
	return n
}

// MaterialsInStock values materials with positive stock at their current price.
func MaterialsInStock(items []inventory.ProductTotals) ([]MaterialStock, decimal.Decimal) {
	out := []MaterialStock{}
	total := decimal.Zero
	for _, it := range items {
		if it.Product.Type != inventory.ProductTypeMaterial {
			continue
		}
		stock := it.Totals.Stock()
		if !stock.IsPositive() {
			continue
		}
		value := stock.Mul(it.Product.UnitPrice)
		out = append(out, MaterialStock{
			ProductID:   it.Product.ID,
			ProductName: it.Product.Name,
			Unit:        it.Product.Unit,
			Stock:       stock,
			UnitPrice:   it.Product.UnitPrice,
			TotalValue:  value,
		})
		total = total.Add(value)
	}
	return out, total
}

func sumDays(days []DayAmount) decimal.Decimal {
	total := decimal.Zero
	for _, d := range days {
		total = total.Add(d.Amount)
	}
	return total
}
