// Package money renders decimal amounts as user-facing currency strings.
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Format renders an amount like "$2.50". Display only; arithmetic stays on
// decimal.Decimal end to end.
func Format(amount decimal.Decimal) string {
	value, _ := amount.Float64()
	return printer.Sprint(currency.Symbol(currency.USD.Amount(value)))
}
