package nfe

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses an NF-e numeric field. Issuers are supposed to send plain
// "1234.5600" values, but hand-edited documents show up with padding or a
// currency marker, so those are stripped first. A comma is ambiguous (pt-BR
// writes it as the decimal point) and is rejected.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		return decimal.Zero, fmt.Errorf("ambiguous decimal separator in %q", s)
	}
	if s != "" {
		s = strings.ReplaceAll(s, "R$", "")
		s = strings.TrimSpace(s)
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	var b strings.Builder
	b.Grow(len(s) + 1)
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
			continue
		}
		return decimal.Zero, fmt.Errorf("invalid decimal %q", s)
	}
	clean := b.String()
	if clean == "" {
		return decimal.Zero, fmt.Errorf("empty decimal")
	}
	if neg {
		clean = "-" + clean
	}
	return decimal.NewFromString(clean)
}
