// Package decimal provides the wire codec for exchange decimal values.
//
// The exchange encodes prices, quantities and fees as JSON strings to avoid
// floating point precision loss. Decimal wraps shopspring/decimal.Decimal
// and marshals/unmarshals through that string form.
package decimal

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal is a JSON-string-encoded arbitrary precision number.
type Decimal struct {
	decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{decimal.Zero}

// New wraps a shopspring/decimal.Decimal.
func New(d decimal.Decimal) Decimal {
	return Decimal{d}
}

// NewFromFloat constructs a Decimal from a float64, for call sites that
// only have derived analytics (VWAP, spread%) rather than wire values.
func NewFromFloat(f float64) Decimal {
	return Decimal{decimal.NewFromFloat(f)}
}

// Parse parses a decimal literal, as it appears on the wire.
func Parse(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("decimal: parse %q: %w", s, err)
	}
	return Decimal{d}, nil
}

// MustParse panics on parse failure; for use in tests and constant tables.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MarshalJSON renders the value as a JSON string, matching the exchange's
// wire format.
func (d Decimal) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('"')
	buf.WriteString(d.Decimal.String())
	buf.WriteByte('"')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts either a JSON string or a bare JSON number, since
// some endpoints are inconsistent about quoting numeric fields.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if string(data) == "null" || len(data) == 0 {
		d.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("decimal: unmarshal %q: %w", string(data), err)
	}
	d.Decimal = parsed
	return nil
}

// F64 returns the float64 approximation, for analytics that are inherently
// floating point (VWAP, spread percentage, imbalance ratio).
func (d Decimal) F64() float64 {
	f, _ := d.Decimal.Float64()
	return f
}
