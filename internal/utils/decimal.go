package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

func NumericToFloat64(value pgtype.Numeric) float64 {
	if !value.Valid {
		return 0
	}
	f, err := value.Float64Value()
	if err == nil {
		return f.Float64
	}
	// fallback to string parse
	text, err := value.MarshalJSON()
	if err != nil {
		return 0
	}
	var out float64
	if _, err := fmt.Sscan(string(text), &out); err != nil {
		return 0
	}
	return out
}

// FormatCurrency renders whole-unit currencies (VND, IDR) with dot thousands
// separators and anything else with two decimals.
func FormatCurrency(amount float64, currency string) string {
	switch strings.ToUpper(currency) {
	case "VND":
		return groupThousands(amount) + " VND"
	case "IDR":
		return "Rp" + groupThousands(amount)
	}
	return fmt.Sprintf("%s %.2f", currency, amount)
}

func groupThousands(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatFloat(amount, 'f', 0, 64)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}
