// Package pricing computes register totals. All arithmetic is done with
// arbitrary-precision decimals; rounding to two places happens only when
// a value is formatted for display or a receipt.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aamircoretechies/bison360-sub000/internal/models"
)

// DefaultTaxRate is the fixed 8% sales tax applied to the taxable base.
var DefaultTaxRate = decimal.NewFromFloat(0.08)

var oneHundred = decimal.NewFromInt(100)

// Quote is the derived pricing breakdown for a cart. It is never stored;
// callers recompute it whenever lines or discount change.
type Quote struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	TaxableBase decimal.Decimal `json:"taxable_base"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// Engine prices carts with a fixed tax rate.
type Engine struct {
	taxRate decimal.Decimal
}

// NewEngine creates a pricing engine. An unparseable or negative rate
// falls back to DefaultTaxRate.
func NewEngine(taxRate string) *Engine {
	rate, err := decimal.NewFromString(taxRate)
	if err != nil || rate.IsNegative() {
		rate = DefaultTaxRate
	}
	return &Engine{taxRate: rate}
}

// TaxRate returns the engine's configured rate.
func (e *Engine) TaxRate() decimal.Decimal {
	return e.taxRate
}

// Price computes the quote for the given lines and discount.
//
// Percentage discounts are clamped to [0,100]; fixed discounts to
// [0, subtotal]. The taxable base therefore never goes negative, so a
// discount can never produce a negative tax or total.
func (e *Engine) Price(lines []models.CartLine, discount models.DiscountConfig) Quote {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Subtotal())
	}

	disc := discountAmount(subtotal, discount)
	base := subtotal.Sub(disc)
	if base.IsNegative() {
		base = decimal.Zero
	}
	tax := base.Mul(e.taxRate)

	return Quote{
		Subtotal:    subtotal,
		Discount:    disc,
		TaxableBase: base,
		Tax:         tax,
		Total:       base.Add(tax),
	}
}

func discountAmount(subtotal decimal.Decimal, discount models.DiscountConfig) decimal.Decimal {
	amount := discount.Amount
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	switch discount.Type {
	case models.DiscountPercentage:
		if amount.GreaterThan(oneHundred) {
			amount = oneHundred
		}
		return subtotal.Mul(amount).Div(oneHundred)
	case models.DiscountFixed:
		if amount.GreaterThan(subtotal) {
			return subtotal
		}
		return amount
	default:
		return decimal.Zero
	}
}

// ChangeDue returns amountReceived minus total. It is defined only for
// cash tenders where amountReceived covers the total; otherwise an error
// is returned and the payment must not proceed.
func ChangeDue(total, amountReceived decimal.Decimal) (decimal.Decimal, error) {
	if amountReceived.LessThan(total) {
		return decimal.Zero, fmt.Errorf("%w: insufficient amount received", models.ErrValidation)
	}
	return amountReceived.Sub(total), nil
}

// Display rounds a monetary value to two places for receipts and UI.
func Display(v decimal.Decimal) string {
	return v.StringFixed(2)
}
