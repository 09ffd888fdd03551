package domain

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// FormatUSD renders a cash amount for player-facing messages, e.g. "$1,234.57".
// Amounts under a dollar keep a third fraction digit when it is significant,
// so a $0.125 shortfall does not display as $0.13.
func FormatUSD(value float64) string {
	d := decimal.NewFromFloat(value)

	places := int32(2)
	if d.Abs().LessThan(decimal.NewFromInt(1)) && !d.Round(2).Equal(d.Round(3)) {
		places = 3
	}
	d = d.Round(places)

	negative := d.IsNegative()
	d = d.Abs()

	units := d.IntPart()
	frac := d.Sub(decimal.NewFromInt(units)).Shift(places).IntPart()

	formatted := fmt.Sprintf("$%s.%0*d", humanize.Comma(units), places, frac)
	if negative {
		return "-" + formatted
	}
	return formatted
}

// RoundTo rounds to the given number of decimal places, half away from zero.
func RoundTo(value float64, places int32) float64 {
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}
