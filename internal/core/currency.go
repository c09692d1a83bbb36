package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "IDR"

// Rupiah is displayed without minor units and with dot grouping, as the
// id-ID locale does.
var localFormats = map[string]*money.Formatter{
	"IDR": money.NewFormatter(0, ",", ".", "Rp", "$ 1"),
}

// CurrencyFormatter renders amounts as display strings for one currency.
type CurrencyFormatter struct {
	code      string
	fraction  int32
	formatter *money.Formatter
}

func NewCurrencyFormatter(code string) (*CurrencyFormatter, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = DefaultCurrency
	}
	if f, ok := localFormats[code]; ok {
		return &CurrencyFormatter{code: code, fraction: int32(f.Fraction), formatter: f}, nil
	}
	cur := money.GetCurrency(code)
	if cur == nil {
		return nil, fmt.Errorf("unknown currency %q", code)
	}
	return &CurrencyFormatter{code: code, fraction: int32(cur.Fraction), formatter: cur.Formatter()}, nil
}

// MustCurrencyFormatter is NewCurrencyFormatter for codes known at compile time.
func MustCurrencyFormatter(code string) *CurrencyFormatter {
	f, err := NewCurrencyFormatter(code)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *CurrencyFormatter) Code() string { return f.code }

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// Format rounds half away from zero to the currency's minor unit.
func (f *CurrencyFormatter) Format(amount decimal.Decimal) string {
	minor := amount.Shift(f.fraction).Round(0)
	if minor.Abs().GreaterThan(maxMinor) {
		return f.formatWide(minor)
	}
	return f.formatter.Format(minor.IntPart())
}

// formatWide lays out minor units that do not fit in an int64 using the
// same separators and template as the money formatter.
func (f *CurrencyFormatter) formatWide(minor decimal.Decimal) string {
	digits := minor.Abs().String()
	frac := int(f.fraction)
	if len(digits) <= frac {
		digits = strings.Repeat("0", frac-len(digits)+1) + digits
	}
	whole, cents := digits[:len(digits)-frac], digits[len(digits)-frac:]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(f.formatter.Thousand)
		}
		b.WriteRune(r)
	}
	if frac > 0 {
		b.WriteString(f.formatter.Decimal)
		b.WriteString(cents)
	}

	out := strings.Replace(f.formatter.Template, "1", b.String(), 1)
	out = strings.Replace(out, "$", f.formatter.Grapheme, 1)
	if minor.IsNegative() {
		out = "-" + out
	}
	return out
}

// FormatFloat formats a raw number. NaN and infinities format as zero.
func (f *CurrencyFormatter) FormatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return f.Format(decimal.NewFromFloat(v))
}
