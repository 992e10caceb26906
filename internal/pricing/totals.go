package pricing

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of fractional digits kept on every amount.
const MoneyPlaces = 2

// Round2 rounds to MoneyPlaces using round-half-up: ties go away from zero,
// so 30.015 becomes 30.02 and -30.015 becomes -30.02. The policy is fixed
// here rather than read from any shared context.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// FormatAmount renders an amount with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return Round2(d).StringFixed(MoneyPlaces)
}

// Line is the priced input of one quote row. VATRate is a percentage (20 = 20%).
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	VATRate   decimal.Decimal
}

// LineTotals are the rounded amounts of a single line.
type LineTotals struct {
	HT  decimal.Decimal
	VAT decimal.Decimal
	TTC decimal.Decimal
}

// Totals is the result of Recompute. Lines is index-aligned with the input.
type Totals struct {
	Lines      []LineTotals
	SubtotalHT decimal.Decimal
	TotalVAT   decimal.Decimal
	TotalTTC   decimal.Decimal
}

// Recompute prices every line then sums the already rounded line values.
// Rounding happens per line before summation; the quote-level TTC is
// derived from the rounded subtotal and VAT, not from the raw products.
func Recompute(lines []Line) Totals {
	out := Totals{Lines: make([]LineTotals, len(lines))}
	subtotal := decimal.Zero
	vat := decimal.Zero
	for i, l := range lines {
		ht := Round2(l.Quantity.Mul(l.UnitPrice))
		lineVAT := Round2(ht.Mul(l.VATRate.Shift(-2)))
		ttc := Round2(ht.Add(lineVAT))
		out.Lines[i] = LineTotals{HT: ht, VAT: lineVAT, TTC: ttc}
		subtotal = subtotal.Add(ht)
		vat = vat.Add(lineVAT)
	}
	out.SubtotalHT = Round2(subtotal)
	out.TotalVAT = Round2(vat)
	out.TotalTTC = Round2(subtotal.Add(vat))
	return out
}
