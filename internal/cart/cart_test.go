package cart

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aamircoretechies/bison360-sub000/internal/models"
)

func product(id, price string) models.Product {
	return models.Product{ID: id, SKU: "SKU-" + id, Name: id, Price: decimal.RequireFromString(price)}
}

func TestAddItemCollapsesDuplicates(t *testing.T) {
	c := New()
	p := product("bison-1lb", "12.99")

	require.NoError(t, c.AddItem(p, 10))
	require.NoError(t, c.AddItem(p, 10))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.True(t, lines[0].Subtotal().Equal(decimal.RequireFromString("25.98")))
}

func TestAddItemStockGuards(t *testing.T) {
	c := New()
	p := product("jerky", "7.50")

	err := c.AddItem(p, 0)
	assert.ErrorIs(t, err, models.ErrOutOfStock)
	assert.True(t, c.Empty())

	require.NoError(t, c.AddItem(p, 1))
	err = c.AddItem(p, 1)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Equal(t, 1, c.Quantity("jerky"))
}

func TestLineInvariants(t *testing.T) {
	c := New()
	a := product("a", "1.10")
	b := product("b", "2.20")

	require.NoError(t, c.AddItem(a, 99))
	require.NoError(t, c.AddItem(b, 99))
	require.NoError(t, c.AddItem(a, 99))
	require.NoError(t, c.UpdateQuantity("b", 5, 99))

	lines := c.Lines()
	require.Len(t, lines, 2)
	seen := map[string]bool{}
	for _, l := range lines {
		assert.False(t, seen[l.Product.ID], "duplicate line for %s", l.Product.ID)
		seen[l.Product.ID] = true
		assert.True(t, l.Subtotal().Equal(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))))
	}
	// Insertion order is preserved.
	assert.Equal(t, "a", lines[0].Product.ID)
	assert.Equal(t, "b", lines[1].Product.ID)
}

func TestUpdateQuantity(t *testing.T) {
	c := New()
	p := product("steak", "24.00")
	require.NoError(t, c.AddItem(p, 10))

	require.NoError(t, c.UpdateQuantity("steak", 4, 10))
	assert.Equal(t, 4, c.Quantity("steak"))

	err := c.UpdateQuantity("steak", 11, 10)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	err = c.UpdateQuantity("missing", 1, 10)
	assert.ErrorIs(t, err, models.ErrProductNotFound)

	// Zero or negative removes the line.
	require.NoError(t, c.UpdateQuantity("steak", 0, 10))
	assert.True(t, c.Empty())
}

func TestRemoveItem(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("x", "1.00"), 5))
	require.NoError(t, c.AddItem(product("y", "2.00"), 5))

	require.NoError(t, c.RemoveItem("x"))
	require.Len(t, c.Lines(), 1)
	assert.Equal(t, "y", c.Lines()[0].Product.ID)

	// Removing an absent product is a no-op.
	require.NoError(t, c.RemoveItem("x"))
	require.Len(t, c.Lines(), 1)

	// Index stays consistent after removal.
	require.NoError(t, c.AddItem(product("y", "2.00"), 5))
	assert.Equal(t, 2, c.Quantity("y"))
}

func TestClearResetsEverything(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("x", "3.00"), 5))
	require.NoError(t, c.SetDiscount(models.DiscountConfig{Type: models.DiscountFixed, Amount: decimal.RequireFromString("1")}))
	require.NoError(t, c.SelectMethod(models.MethodCash))
	require.NoError(t, c.SetAmountReceived(decimal.RequireFromString("20")))

	c.Clear()

	assert.True(t, c.Empty())
	assert.Equal(t, models.NoDiscount(), c.Discount())
	assert.Empty(t, string(c.Method()))
	assert.True(t, c.AmountReceived().IsZero())
	assert.Equal(t, StateIdle, c.State())
}

func TestSetDiscountValidation(t *testing.T) {
	c := New()

	err := c.SetDiscount(models.DiscountConfig{Type: "bogo", Amount: decimal.Zero})
	assert.ErrorIs(t, err, models.ErrValidation)

	err = c.SetDiscount(models.DiscountConfig{Type: models.DiscountPercentage, Amount: decimal.RequireFromString("-3")})
	assert.ErrorIs(t, err, models.ErrValidation)

	require.NoError(t, c.SetDiscount(models.DiscountConfig{Type: models.DiscountPercentage, Amount: decimal.RequireFromString("10")}))
}

func TestPaymentStateMachine(t *testing.T) {
	c := New()
	total := decimal.RequireFromString("25.25")
	require.NoError(t, c.AddItem(product("bison", "12.99"), 10))

	// Processing without a method is refused.
	err := c.BeginProcessing(total)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, StateIdle, c.State())

	require.NoError(t, c.SelectMethod(models.MethodCash))
	assert.Equal(t, StateMethodSelected, c.State())

	// Cash below total must not transition to Processing.
	require.NoError(t, c.SetAmountReceived(decimal.RequireFromString("20.00")))
	err = c.BeginProcessing(total)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, StateMethodSelected, c.State())

	require.NoError(t, c.SetAmountReceived(decimal.RequireFromString("30.00")))
	require.NoError(t, c.BeginProcessing(total))
	assert.Equal(t, StateProcessing, c.State())

	// Double submission while in flight is blocked, and so are mutations.
	err = c.BeginProcessing(total)
	assert.ErrorIs(t, err, models.ErrValidation)
	err = c.AddItem(product("gum", "0.99"), 10)
	assert.ErrorIs(t, err, models.ErrValidation)

	c.CompleteProcessing()
	assert.Equal(t, StateCompleted, c.State())

	require.NoError(t, c.CompleteSale())
	assert.Equal(t, StateIdle, c.State())
	assert.True(t, c.Empty())
}

func TestFailProcessingPreservesTender(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("bison", "12.99"), 10))
	require.NoError(t, c.SelectMethod(models.MethodCard))
	require.NoError(t, c.BeginProcessing(decimal.RequireFromString("14.03")))

	c.FailProcessing()

	assert.Equal(t, StateMethodSelected, c.State())
	assert.Equal(t, models.MethodCard, c.Method())
	require.Len(t, c.Lines(), 1)

	// Retry goes straight back to Processing.
	require.NoError(t, c.BeginProcessing(decimal.RequireFromString("14.03")))
}

func TestCancelReturnsToIdle(t *testing.T) {
	c := New()
	require.NoError(t, c.AddItem(product("bison", "12.99"), 10))
	require.NoError(t, c.SelectMethod(models.MethodSquare))

	require.NoError(t, c.Cancel())
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, string(c.Method()))
	// Cancelling the payment keeps the cart contents.
	require.Len(t, c.Lines(), 1)

	require.NoError(t, c.SelectMethod(models.MethodCash))
	require.NoError(t, c.SetAmountReceived(decimal.RequireFromString("99")))
	require.NoError(t, c.BeginProcessing(decimal.RequireFromString("14.03")))
	err := c.Cancel()
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestEmptyCartCannotCheckout(t *testing.T) {
	c := New()
	require.NoError(t, c.SelectMethod(models.MethodCard))
	err := c.BeginProcessing(decimal.Zero)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSessionManager(t *testing.T) {
	m := NewManager(time.Minute)

	s1 := m.Session("till-1")
	s2 := m.Session("till-1")
	assert.Same(t, s1, s2)

	require.NoError(t, s1.Do(func(c *Cart) error {
		return c.AddItem(product("x", "1.00"), 5)
	}))

	other := m.Session("till-2")
	require.NoError(t, other.Do(func(c *Cart) error {
		assert.True(t, c.Empty())
		return nil
	}))
}

func TestSessionSweep(t *testing.T) {
	m := NewManager(time.Nanosecond)
	m.Session("till-1")
	time.Sleep(time.Millisecond)

	m.Sweep()

	// A fresh session comes back empty after the sweep.
	s := m.Session("till-1")
	require.NoError(t, s.Do(func(c *Cart) error {
		assert.True(t, c.Empty())
		return nil
	}))
}
