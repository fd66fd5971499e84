package card

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Amount renders a backend decimal as "#,###.00": thousands grouped, two
// fraction digits, half-even rounding. Values that do not parse are returned
// as given.
func Amount(raw string) string {
	raw = strings.TrimSpace(raw)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}

	fixed := d.StringFixedBank(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
