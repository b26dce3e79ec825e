package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aamircoretechies/bison360-sub000/internal/models"
)

func line(price string, qty int) models.CartLine {
	return models.CartLine{
		Product:  models.Product{ID: "p-" + price, Price: decimal.RequireFromString(price)},
		Quantity: qty,
	}
}

func pct(amount string) models.DiscountConfig {
	return models.DiscountConfig{Type: models.DiscountPercentage, Amount: decimal.RequireFromString(amount)}
}

func fixed(amount string) models.DiscountConfig {
	return models.DiscountConfig{Type: models.DiscountFixed, Amount: decimal.RequireFromString(amount)}
}

func TestPriceGroundBisonScenario(t *testing.T) {
	// Two pounds of ground bison at $12.99 with a 10% discount.
	e := NewEngine("0.08")
	q := e.Price([]models.CartLine{line("12.99", 2)}, pct("10"))

	assert.True(t, q.Subtotal.Equal(decimal.RequireFromString("25.98")), "subtotal %s", q.Subtotal)
	assert.True(t, q.Discount.Equal(decimal.RequireFromString("2.598")), "discount %s", q.Discount)
	assert.True(t, q.TaxableBase.Equal(decimal.RequireFromString("23.382")), "base %s", q.TaxableBase)
	assert.True(t, q.Tax.Equal(decimal.RequireFromString("1.87056")), "tax %s", q.Tax)
	assert.True(t, q.Total.Equal(decimal.RequireFromString("25.25256")), "total %s", q.Total)
	assert.Equal(t, "25.25", Display(q.Total))
}

func TestPriceIdentities(t *testing.T) {
	e := NewEngine("0.08")

	cases := []struct {
		name     string
		lines    []models.CartLine
		discount models.DiscountConfig
	}{
		{"no discount", []models.CartLine{line("5.00", 3), line("1.25", 1)}, pct("0")},
		{"percentage", []models.CartLine{line("9.99", 2)}, pct("25")},
		{"fixed", []models.CartLine{line("4.50", 4)}, fixed("3")},
		{"empty cart", nil, pct("50")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := e.Price(tc.lines, tc.discount)

			sum := decimal.Zero
			for _, l := range tc.lines {
				sum = sum.Add(l.Subtotal())
			}
			assert.True(t, q.Subtotal.Equal(sum))
			assert.True(t, q.TaxableBase.Equal(q.Subtotal.Sub(q.Discount)))
			assert.True(t, q.Tax.Equal(q.TaxableBase.Mul(decimal.RequireFromString("0.08"))))
			assert.True(t, q.Total.Equal(q.TaxableBase.Add(q.Tax)))
			assert.False(t, q.Total.IsNegative())
		})
	}
}

func TestDiscountClamping(t *testing.T) {
	e := NewEngine("0.08")
	lines := []models.CartLine{line("10.00", 1)}

	// Percentage above 100 clamps to the full subtotal.
	q := e.Price(lines, pct("150"))
	assert.True(t, q.Discount.Equal(decimal.RequireFromString("10")))
	assert.True(t, q.Total.IsZero())

	// Fixed discount above subtotal clamps to subtotal, never negative tax.
	q = e.Price(lines, fixed("25"))
	assert.True(t, q.Discount.Equal(decimal.RequireFromString("10")))
	assert.True(t, q.TaxableBase.IsZero())
	assert.True(t, q.Tax.IsZero())

	// Negative amounts are treated as zero.
	q = e.Price(lines, pct("-5"))
	assert.True(t, q.Discount.IsZero())
	q = e.Price(lines, fixed("-5"))
	assert.True(t, q.Discount.IsZero())
}

func TestFixedDiscountIsMinOfAmountAndSubtotal(t *testing.T) {
	e := NewEngine("0.08")
	q := e.Price([]models.CartLine{line("20.00", 1)}, fixed("5"))
	assert.True(t, q.Discount.Equal(decimal.RequireFromString("5")))
}

func TestChangeDue(t *testing.T) {
	total := decimal.RequireFromString("25.25")

	change, err := ChangeDue(total, decimal.RequireFromString("30.00"))
	require.NoError(t, err)
	assert.True(t, change.Equal(decimal.RequireFromString("4.75")))

	_, err = ChangeDue(total, decimal.RequireFromString("20.00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)

	// Exact tender yields zero change.
	change, err = ChangeDue(total, total)
	require.NoError(t, err)
	assert.True(t, change.IsZero())
}

func TestNewEngineBadRateFallsBack(t *testing.T) {
	for _, raw := range []string{"", "abc", "-0.08"} {
		e := NewEngine(raw)
		assert.True(t, e.TaxRate().Equal(DefaultTaxRate), "rate for %q", raw)
	}
}
