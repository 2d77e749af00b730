package inventory

import "github.com/shopspring/decimal"

// Stock is opening plus imports minus exports. It is never clamped.
func (t Totals) Stock() decimal.Decimal {
	return t.Opening.Add(t.Imported).Sub(t.Exported)
}

// Valuate values totals at the product's current unit price.
func Valuate(p Product, t Totals) Valuation {
	return Valuation{
		ProductID:   p.ID,
		ProductCode: p.Code,
		ProductName: p.Name,
		ProductType: p.Type,
		Unit:        p.Unit,
		UnitPrice:   p.UnitPrice,
		Opening:     t.Opening,
		Imported:    t.Imported,
		Exported:    t.Exported,
		Stock:       t.Stock(),
		ImportValue: t.Imported.Mul(p.UnitPrice),
		ExportValue: t.Exported.Mul(p.UnitPrice),
		StockValue:  t.Stock().Mul(p.UnitPrice),
	}
}

// BuildReport values every product and sums the grand totals.
func BuildReport(items []ProductTotals) InventoryReport {
	report := InventoryReport{Items: make([]Valuation, 0, len(items))}
	for _, it := range items {
		v := Valuate(it.Product, it.Totals)
		report.Items = append(report.Items, v)
		report.TotalImportValue = report.TotalImportValue.Add(v.ImportValue)
		report.TotalExportValue = report.TotalExportValue.Add(v.ExportValue)
		report.TotalStockValue = report.TotalStockValue.Add(v.StockValue)
	}
	return report
}
