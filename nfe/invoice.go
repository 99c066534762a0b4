package nfe

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the normalized form of one NF-e document issued by a supplier.
type Invoice struct {
	Key       string    `json:"key"`
	Number    string    `json:"number"`
	Series    string    `json:"series"`
	Version   string    `json:"version"`
	IssueDate time.Time `json:"issue_date"`
	Supplier  Supplier  `json:"supplier"`
	Items     []Item    `json:"items"`
	Totals    Totals    `json:"totals"`
}

type Supplier struct {
	TaxId     string `json:"tax_id"`
	Name      string `json:"name"`
	TradeName string `json:"trade_name,omitempty"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
}

type Item struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Ncm       string          `json:"ncm"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Barcode   string          `json:"barcode,omitempty"`
	Unit      string          `json:"unit"`
}

// Totals mirrors total/ICMSTot. TaxAmountA is vICMS, TaxAmountB is vIPI.
type Totals struct {
	GrandTotal decimal.Decimal `json:"grand_total"`
	TaxAmountA decimal.Decimal `json:"tax_amount_a"`
	TaxAmountB decimal.Decimal `json:"tax_amount_b"`
}

// ItemsTotal sums the line totals of every item.
func (inv *Invoice) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range inv.Items {
		sum = sum.Add(it.LineTotal)
	}
	return sum
}

// TotalsMismatch reports the difference between the declared grand total and the
// sum of line totals when it exceeds tolerance. The parser never rejects on this;
// freight, discounts and taxes legitimately move vNF away from the item sum.
func (inv *Invoice) TotalsMismatch(tolerance decimal.Decimal) (decimal.Decimal, bool) {
	diff := inv.Totals.GrandTotal.Sub(inv.ItemsTotal())
	return diff, diff.Abs().GreaterThan(tolerance)
}
