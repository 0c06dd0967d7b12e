package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-editions/models"
)

// RateSource is the lookup a Converter depends on.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Converter turns whole source-currency amounts into display prices.
type Converter struct {
	rates  RateSource
	from   string
	to     string
	symbol string
}

// NewConverter builds a converter for the from -> to pair.
func NewConverter(rates RateSource, from, to, symbol string) *Converter {
	return &Converter{
		rates:  rates,
		from:   from,
		to:     to,
		symbol: symbol,
	}
}

// Rate returns the current conversion factor.
func (c *Converter) Rate(ctx context.Context) (decimal.Decimal, error) {
	return c.rates.Rate(ctx, c.from, c.to)
}

// Convert multiplies amount by the current rate and rounds to two decimals.
func (c *Converter) Convert(ctx context.Context, amount int) (models.Price, error) {
	rate, err := c.Rate(ctx)
	if err != nil {
		return models.Price{}, err
	}
	converted := Apply(amount, rate)
	return models.Price{
		Source:    amount,
		Amount:    converted,
		Display:   FormatPrice(c.symbol, converted),
		Currency:  c.to,
		Converted: time.Now(),
	}, nil
}

// Apply returns amount * rate rounded to two places. Ties round away from
// zero on the exact decimal product (1 x 0.125 -> 0.13), not half-to-even on
// a binary float, so a tie can land one cent above a float-based rounding.
func Apply(amount int, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(amount)).Mul(rate).Round(2)
}

// FormatPrice renders amount with trailing zeros trimmed but at least one
// fractional digit: 150 -> "$150.0", 43.99 -> "$43.99", 12.5 -> "$12.5".
func FormatPrice(symbol string, amount decimal.Decimal) string {
	text := amount.String()
	if !strings.Contains(text, ".") {
		text += ".0"
	}
	return symbol + text
}
