package escpos

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func sampleSale() *Sale {
	return &Sale{
		Id:   12345,
		Date: time.Date(2025, 12, 2, 10, 30, 0, 0, time.UTC),
		Items: []Item{
			{Name: "iPhone 15 Pro Max 256GB", Quantity: decimal.NewFromInt(1), UnitPrice: 760000, LineTotal: 760000},
			{Name: "Capinha Silicone", Quantity: decimal.NewFromInt(2), UnitPrice: 3500, LineTotal: 7000},
		},
		Subtotal:        767000,
		Discount:        7000,
		GrandTotal:      760000,
		PaymentMethod:   "credito",
		CustomerName:    "João da Silva",
		SellerName:      "Maria Vendedora",
		MerchantName:    "CellSync Loja Centro",
		MerchantTaxId:   "12345678000190",
		MerchantAddress: "Rua das Flores, 123 - Centro",
	}
}

func latin1(t *testing.T, s string) []byte {
	t.Helper()
	b, err := charmap.ISO8859_1.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(b)
}

func TestEncode_IsDeterministic(t *testing.T) {
	opts := Options{Columns: ColumnsStandard, IncludeQRCode: true}
	assert.Equal(t, Encode(sampleSale(), opts), Encode(sampleSale(), opts))
}

func TestEncode_StandardReceipt(t *testing.T) {
	out := Encode(sampleSale(), Options{Columns: ColumnsStandard, IncludeQRCode: true})

	assert.True(t, bytes.HasPrefix(out, []byte{0x1B, '@'}))
	assert.True(t, bytes.HasSuffix(out, []byte{0x1B, 'd', 3, 0x1D, 'V', 0}))
	assert.Equal(t, 1, bytes.Count(out, []byte{0x1D, 'V'}))

	for _, want := range []string{
		"CellSync Loja Centro",
		"CNPJ: 12.345.678/0001-90",
		"Rua das Flores, 123 - Centro",
		"CUPOM NÃO FISCAL",
		"Cupom: #012345",
		"Data: 02/12/2025 10:30",
		"Vendedor: Maria Vendedora",
		"Cliente: João da Silva",
		"iPhone 15 Pro Max 256GB",
		"2 x R$ 35,00",
		"-R$ 70,00",
		"Pagamento: Cartão de Crédito",
		"Obrigado pela preferência!",
		"Volte sempre!",
	} {
		assert.True(t, bytes.Contains(out, latin1(t, want)), "missing %q", want)
	}

	itemLine := "1 x R$ 7.600,00" + string(bytes.Repeat([]byte(" "), 48-15-11)) + "R$ 7.600,00\n"
	assert.True(t, bytes.Contains(out, []byte(itemLine)), "item line not right-justified to 48 columns")
	assert.True(t, bytes.Contains(out, []byte("Subtotal:"+string(bytes.Repeat([]byte(" "), 48-9-11))+"R$ 7.670,00\n")))
	assert.True(t, bytes.Contains(out, []byte{0x1B, 'E', 1, 0x1D, '!', 0x01}), "total must be bold double height")
	assert.True(t, bytes.Contains(out, []byte{0x1D, '(', 'k'}))
}

func TestEncode_NarrowPaperIsShorter(t *testing.T) {
	narrow := Encode(sampleSale(), Options{Columns: ColumnsNarrow, IncludeQRCode: true})
	standard := Encode(sampleSale(), Options{Columns: ColumnsStandard, IncludeQRCode: true})
	assert.Less(t, len(narrow), len(standard))
	assert.True(t, bytes.Contains(narrow, []byte(string(bytes.Repeat([]byte("="), 32))+"\n")))
	assert.False(t, bytes.Contains(narrow, bytes.Repeat([]byte("="), 33)))
}

func TestEncode_UnknownColumnsFallBackToStandard(t *testing.T) {
	assert.Equal(t,
		Encode(sampleSale(), Options{Columns: ColumnsStandard}),
		Encode(sampleSale(), Options{Columns: 40}))
}

func TestEncode_WithoutQRCode(t *testing.T) {
	out := Encode(sampleSale(), Options{Columns: ColumnsStandard})
	assert.False(t, bytes.Contains(out, []byte{0x1D, '(', 'k'}))
	assert.False(t, bytes.Contains(out, []byte("CUPOM:12345")))
}

func TestEncode_OptionalLinesAndDiscount(t *testing.T) {
	sale := sampleSale()
	sale.Discount = 0
	sale.CustomerName = ""
	sale.SellerName = ""
	sale.MerchantName = ""
	sale.MerchantTaxId = "12345678900"

	out := Encode(sale, Options{})
	assert.False(t, bytes.Contains(out, []byte("Desconto:")))
	assert.False(t, bytes.Contains(out, []byte("Cliente:")))
	assert.False(t, bytes.Contains(out, []byte("Vendedor:")))
	assert.True(t, bytes.Contains(out, []byte("LOJA DE CELULAR")))
	assert.True(t, bytes.Contains(out, []byte("CPF: 123.456.789-00")))
}

func TestEncode_DateUsesLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	sale := sampleSale()
	sale.Date = time.Date(2025, 12, 2, 13, 30, 0, 0, time.UTC)
	out := Encode(sale, Options{Location: loc})
	assert.True(t, bytes.Contains(out, []byte("Data: 02/12/2025 10:30")))
}

func TestLayout_SegmentKinds(t *testing.T) {
	segs := Layout(sampleSale(), Options{IncludeQRCode: true})
	require.NotEmpty(t, segs)
	assert.Equal(t, KindControl, segs[0].Kind)
	assert.Equal(t, Cut(), segs[len(segs)-1])

	barcodes := 0
	for _, s := range segs {
		switch s.Kind {
		case KindBarcode:
			barcodes++
		case KindText:
			assert.NotContains(t, string(s.Data), "\x1b", "text segments never carry control bytes")
		}
	}
	assert.Equal(t, 1, barcodes)
}

func TestText_ReplacesUnsupportedRunes(t *testing.T) {
	assert.Equal(t, []byte{'J', 'o', 0xE3, 'o'}, Text("João").Data)
	assert.Equal(t, []byte("? ok"), Text("€ ok").Data)
}
