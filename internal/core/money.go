package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// MaxAmount bounds every stored amount. Display and aggregation stay
// exact well below it.
var MaxAmount = decimal.New(1, 15)

// CheckRange rejects values whose magnitude exceeds MaxAmount.
func CheckRange(field string, d decimal.Decimal) error {
	if d.Abs().GreaterThan(MaxAmount) {
		return &ValidationError{Field: field, Reason: "exceeds " + MaxAmount.String()}
	}
	return nil
}

// ParseAmount parses a user supplied amount into a positive decimal.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Signs, empty
// strings, non-numeric input and zero are rejected with ErrInvalidAmount
// rather than coerced, as are values above MaxAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := CheckRange("amount", d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
