package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMinor 最小货币单位转成展示金额，例如 995 gbp -> "9.95 GBP"
func FormatMinor(amount int64, currency string) string {
	return decimal.New(amount, -2).StringFixed(2) + " " + strings.ToUpper(currency)
}
