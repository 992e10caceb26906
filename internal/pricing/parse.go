// Package pricing holds the exact-decimal arithmetic used to price quotes:
// lenient parsing of user input and the per-line / per-quote totals engine.
package pricing

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Inputs beyond these bounds are treated as malformed. Arithmetic on a
// decimal rescales its coefficient, so an exponent like 1e2000000000 would
// never finish.
const (
	maxInputLen = 64
	maxExponent = 24
	maxDigits   = 30
)

// ParseDecimal turns loosely formatted numeric text into an exact decimal.
// A comma is accepted as decimal separator. Anything that does not parse
// (empty, garbage, NaN, Inf, out of range) yields fallback; the caller
// never sees an error.
func ParseDecimal(raw string, fallback decimal.Decimal) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > maxInputLen {
		return fallback
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent || d.NumDigits() > maxDigits {
		return fallback
	}
	return d
}

// RawNumber keeps the textual form of a JSON number or string so that a
// malformed value reaches ParseDecimal's fallback instead of failing the
// whole request body.
type RawNumber string

// UnmarshalJSON accepts "12,5", "12.5", 12.5 or null and never fails.
func (n *RawNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if b[0] == '"' {
		if s, err := strconv.Unquote(string(b)); err == nil {
			*n = RawNumber(s)
			return nil
		}
		*n = ""
		return nil
	}
	*n = RawNumber(b)
	return nil
}

// Or parses n, substituting def when n is empty. A non-empty but
// malformed value parses to zero, like any other bad input.
func (n RawNumber) Or(def string) decimal.Decimal {
	if strings.TrimSpace(string(n)) == "" {
		return ParseDecimal(def, decimal.Zero)
	}
	return ParseDecimal(string(n), decimal.Zero)
}
