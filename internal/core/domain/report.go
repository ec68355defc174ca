package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Report is the data drawn on the one-page inventory report.
type Report struct {
	Items       []InventoryRecord
	TotalItems  int
	TotalPrice  decimal.Decimal
	GeneratedBy string
	GeneratedAt time.Time
}

// NewReport computes the totals for items. TotalItems is the sum of quantities.
func NewReport(items []InventoryRecord, generatedBy string, at time.Time) Report {
	r := Report{
		Items:       items,
		TotalPrice:  decimal.Zero,
		GeneratedBy: generatedBy,
		GeneratedAt: at,
	}
	for _, it := range items {
		r.TotalItems += it.Quantity
		r.TotalPrice = r.TotalPrice.Add(it.LineTotal())
	}
	return r
}

// ReportFilename is EasyInventory_<unix millis>.pdf.
func ReportFilename(at time.Time) string {
	return fmt.Sprintf("EasyInventory_%d.pdf", at.UnixMilli())
}

// FormatMoney renders a dollar amount with two decimals.
func FormatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

type GeneratedReport struct {
	Filename string
	Path     string
	Content  []byte
}
