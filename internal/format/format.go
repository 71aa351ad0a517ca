// Package format renders prices and percentages for notification text.
package format

import (
	"github.com/shopspring/decimal"
)

var (
	million = decimal.NewFromInt(1_000_000)
	one     = decimal.NewFromInt(1)
)

// Price scales a USD price into a display string.
// Bands are inclusive on the lower edge: millions get two digits and an "M$" suffix,
// whole-dollar prices two digits, and sub-dollar prices six digits.
func Price(price decimal.Decimal) string {
	switch {
	case price.GreaterThanOrEqual(million):
		return price.Div(million).StringFixed(2) + "M$"
	case price.GreaterThanOrEqual(one):
		return "$" + price.StringFixed(2)
	default:
		return "$" + price.StringFixed(6)
	}
}

// Percent renders a signed percentage with two fractional digits.
func Percent(pct decimal.Decimal) string {
	fixed := pct.StringFixed(2)
	if pct.Round(2).IsPositive() {
		return "+" + fixed + "%"
	}
	return fixed + "%"
}
