package escpos

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var paymentLabels = map[string]string{
	"dinheiro":      "Dinheiro",
	"debito":        "Cartão de Débito",
	"credito":       "Cartão de Crédito",
	"pix":           "PIX",
	"boleto":        "Boleto",
	"transferencia": "Transferência",
}

// PaymentLabel maps a payment method code to its printed label; unknown codes print as-is.
func PaymentLabel(code string) string {
	if l, ok := paymentLabels[code]; ok {
		return l
	}
	return code
}

// FormatCurrency renders cents in pt-BR BRL style, e.g. 760000 -> "R$ 7.600,00".
func FormatCurrency(cents int64) string {
	d := decimal.New(cents, -2)
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("R$ ")
	b.WriteString(groupThousands(intPart, '.'))
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

func groupThousands(digits string, sep byte) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatQuantity prints whole quantities without decimals and fractions with a comma.
func FormatQuantity(q decimal.Decimal) string {
	return strings.Replace(q.String(), ".", ",", 1)
}

// FormatDocument groups an 11-digit CPF or a 14-digit CNPJ; anything else is returned unchanged.
func FormatDocument(doc string) string {
	digits := onlyDigits(doc)
	switch len(digits) {
	case 11:
		return digits[0:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:11]
	case 14:
		return digits[0:2] + "." + digits[2:5] + "." + digits[5:8] + "/" + digits[8:12] + "-" + digits[12:14]
	}
	return doc
}

func documentLabel(doc string) string {
	if len(onlyDigits(doc)) == 11 {
		return "CPF"
	}
	return "CNPJ"
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func formatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02/01/2006 15:04")
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func padLeft(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}
