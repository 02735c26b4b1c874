package handler

import "github.com/shopspring/decimal"

// oneDecimal rounds f half away from zero to one decimal place
func oneDecimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(1)
}
