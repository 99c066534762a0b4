package escpos

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	ColumnsNarrow   = 32 // 58mm paper
	ColumnsStandard = 48 // 80mm paper

	defaultMerchantName = "LOJA DE CELULAR"
	totalsValueWidth    = 12
	itemValueWidth      = 10
)

// Sale is the outgoing sale to print. Money fields are cents.
type Sale struct {
	Id              int       `json:"id" validate:"gte=0"`
	Date            time.Time `json:"sale_date" validate:"required"`
	Items           []Item    `json:"items" validate:"required,min=1,dive"`
	Subtotal        int64     `json:"subtotal" validate:"gte=0"`
	Discount        int64     `json:"discount" validate:"gte=0"`
	GrandTotal      int64     `json:"total_amount" validate:"gte=0"`
	PaymentMethod   string    `json:"payment_method" validate:"required"`
	CustomerName    string    `json:"customer_name,omitempty"`
	SellerName      string    `json:"seller_name,omitempty"`
	MerchantName    string    `json:"merchant_name,omitempty"`
	MerchantTaxId   string    `json:"merchant_tax_id,omitempty"`
	MerchantAddress string    `json:"merchant_address,omitempty"`
}

type Item struct {
	Name      string          `json:"product_name" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice int64           `json:"unit_price" validate:"gte=0"`
	LineTotal int64           `json:"total_price" validate:"gte=0"`
}

// Options controls layout. Columns other than 32 or 48 read as 48. Location sets the
// zone the sale date prints in (UTC when nil).
type Options struct {
	Columns       int
	IncludeQRCode bool
	Location      *time.Location
}

// ColumnsForPaper maps paper width in millimetres to printable columns.
func ColumnsForPaper(mm int) int {
	if mm == 58 {
		return ColumnsNarrow
	}
	return ColumnsStandard
}

func (o Options) columns() int {
	if o.Columns == ColumnsNarrow {
		return ColumnsNarrow
	}
	return ColumnsStandard
}

// Encode renders sale into a printer-ready byte stream. It is deterministic and
// assumes a validated sale.
func Encode(sale *Sale, opts Options) []byte {
	return Join(Layout(sale, opts))
}

// Layout returns the receipt as its ordered segments. Every styled block is emitted
// as set style, text, reset style.
func Layout(sale *Sale, opts Options) []Segment {
	w := opts.columns()
	segs := make([]Segment, 0, 64+4*len(sale.Items))
	add := func(s ...Segment) { segs = append(segs, s...) }

	add(Init())
	add(header(sale, w)...)

	add(Align(AlignLeft))
	add(Line(fmt.Sprintf("Cupom: #%06d", sale.Id)))
	add(Line("Data: " + formatDate(sale.Date, opts.Location)))
	if sale.SellerName != "" {
		add(Line("Vendedor: " + sale.SellerName))
	}
	if sale.CustomerName != "" {
		add(Line("Cliente: " + sale.CustomerName))
	}
	add(Line(""))

	add(Rule('-', w))
	add(Bold(true), Line(padRight("ITEM", w-itemValueWidth)+padLeft("VALOR", itemValueWidth)), Bold(false))
	add(Rule('-', w))
	for _, it := range sale.Items {
		add(itemLines(it, w)...)
	}
	add(Rule('-', w))

	add(totals(sale, w)...)

	add(Line(""))
	add(Line("Pagamento: " + PaymentLabel(sale.PaymentMethod)))

	if opts.IncludeQRCode {
		add(Line(""))
		add(Align(AlignCenter))
		add(QRCode(QRPayload(sale)))
		add(Line(""))
	}

	add(Line(""))
	add(Align(AlignCenter))
	add(Rule('=', w))
	add(Line("Obrigado pela preferência!"))
	add(Line("Volte sempre!"))
	add(Rule('=', w))

	add(Feed(3), Cut())
	return segs
}

func header(sale *Sale, w int) []Segment {
	name := sale.MerchantName
	if name == "" {
		name = defaultMerchantName
	}
	segs := []Segment{
		Align(AlignCenter),
		Size(SizeDouble), Bold(true),
		Line(name),
		Size(SizeNormal), Bold(false),
		Line(""),
	}
	if sale.MerchantTaxId != "" {
		segs = append(segs, Line(documentLabel(sale.MerchantTaxId)+": "+FormatDocument(sale.MerchantTaxId)))
	}
	if sale.MerchantAddress != "" {
		segs = append(segs, Line(sale.MerchantAddress))
	}
	return append(segs,
		Line(""),
		Rule('=', w),
		Bold(true), Line("CUPOM NÃO FISCAL"), Bold(false),
		Rule('=', w),
		Line(""),
	)
}

func itemLines(it Item, w int) []Segment {
	qtyPrice := FormatQuantity(it.Quantity) + " x " + FormatCurrency(it.UnitPrice)
	total := FormatCurrency(it.LineTotal)
	return []Segment{
		Line(it.Name),
		Line(padRight(qtyPrice, w-utf8.RuneCountInString(total)) + total),
	}
}

func totals(sale *Sale, w int) []Segment {
	row := func(label, value string) string {
		return padRight(label, w-totalsValueWidth) + padLeft(value, totalsValueWidth)
	}
	segs := []Segment{Line(row("Subtotal:", FormatCurrency(sale.Subtotal)))}
	if sale.Discount > 0 {
		segs = append(segs, Line(row("Desconto:", "-"+FormatCurrency(sale.Discount))))
	}
	return append(segs,
		Bold(true), Size(SizeDoubleHeight),
		Line(row("TOTAL:", FormatCurrency(sale.GrandTotal))),
		Size(SizeNormal), Bold(false),
	)
}
