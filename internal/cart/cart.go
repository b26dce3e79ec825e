// Package cart maintains per-terminal register sessions: the ordered
// product-to-line mapping of the in-progress sale plus the payment
// selection state machine that guards checkout.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aamircoretechies/bison360-sub000/internal/models"
)

// State is the register workflow state. Mutations to the cart are only
// permitted before Processing; Processing is the single suspension point
// while the gateway call is in flight.
type State string

const (
	StateIdle           State = "IDLE"
	StateMethodSelected State = "METHOD_SELECTED"
	StateProcessing     State = "PROCESSING"
	StateCompleted      State = "COMPLETED"
)

// Cart is the explicit state object for one register's in-progress sale.
// It is not safe for concurrent use; Session serializes access.
type Cart struct {
	lines          []models.CartLine
	index          map[string]int // product id -> position in lines
	discount       models.DiscountConfig
	method         models.PaymentMethod
	amountReceived decimal.Decimal
	state          State
}

// New creates an empty cart in the Idle state.
func New() *Cart {
	return &Cart{
		index:    make(map[string]int),
		discount: models.NoDiscount(),
		state:    StateIdle,
	}
}

// AddItem adds one unit of p to the cart. A line already holding p has
// its quantity incremented rather than a duplicate line appended.
// available is the authoritative stock count for p.
func (c *Cart) AddItem(p models.Product, available int) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if available <= 0 {
		return fmt.Errorf("%w: %s", models.ErrOutOfStock, p.ID)
	}

	if pos, ok := c.index[p.ID]; ok {
		if c.lines[pos].Quantity+1 > available {
			return fmt.Errorf("%w: %s has %d available", models.ErrInsufficientStock, p.ID, available)
		}
		c.lines[pos].Quantity++
		return nil
	}

	c.lines = append(c.lines, models.CartLine{Product: p, Quantity: 1})
	c.index[p.ID] = len(c.lines) - 1
	return nil
}

// UpdateQuantity overwrites the quantity of the line for productID.
// A quantity of zero or less removes the line.
func (c *Cart) UpdateQuantity(productID string, quantity, available int) error {
	if err := c.mutable(); err != nil {
		return err
	}

	pos, ok := c.index[productID]
	if !ok {
		return fmt.Errorf("%w: %s not in cart", models.ErrProductNotFound, productID)
	}

	if quantity <= 0 {
		c.removeAt(pos)
		return nil
	}
	if quantity > available {
		return fmt.Errorf("%w: %s has %d available", models.ErrInsufficientStock, productID, available)
	}

	c.lines[pos].Quantity = quantity
	return nil
}

// RemoveItem deletes the line for productID. Removing an absent product
// is a no-op.
func (c *Cart) RemoveItem(productID string) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if pos, ok := c.index[productID]; ok {
		c.removeAt(pos)
	}
	return nil
}

func (c *Cart) removeAt(pos int) {
	delete(c.index, c.lines[pos].Product.ID)
	c.lines = append(c.lines[:pos], c.lines[pos+1:]...)
	for i := pos; i < len(c.lines); i++ {
		c.index[c.lines[i].Product.ID] = i
	}
}

// Clear resets the whole transaction: lines, discount, payment method,
// amount received, and state.
func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[string]int)
	c.discount = models.NoDiscount()
	c.method = ""
	c.amountReceived = decimal.Zero
	c.state = StateIdle
}

// SetDiscount replaces the cart-wide discount configuration.
func (c *Cart) SetDiscount(d models.DiscountConfig) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if d.Type != models.DiscountPercentage && d.Type != models.DiscountFixed {
		return fmt.Errorf("%w: unknown discount type %q", models.ErrValidation, d.Type)
	}
	if d.Amount.IsNegative() {
		return fmt.Errorf("%w: negative discount amount", models.ErrValidation)
	}
	c.discount = d
	return nil
}

// SelectMethod moves Idle to MethodSelected. Re-selecting while already
// in MethodSelected just swaps the tender.
func (c *Cart) SelectMethod(m models.PaymentMethod) error {
	if !models.ValidPaymentMethod(m) {
		return fmt.Errorf("%w: unknown payment method %q", models.ErrValidation, m)
	}
	if c.state != StateIdle && c.state != StateMethodSelected {
		return fmt.Errorf("%w: cannot select method in state %s", models.ErrValidation, c.state)
	}
	c.method = m
	c.state = StateMethodSelected
	return nil
}

// SetAmountReceived records the cash tendered. Validity against the
// total is checked at BeginProcessing, not here, so the cashier can type
// freely.
func (c *Cart) SetAmountReceived(amount decimal.Decimal) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative amount received", models.ErrValidation)
	}
	c.amountReceived = amount
	return nil
}

// Cancel abandons the payment selection from any pre-Processing state,
// returning to Idle. The lines and discount survive.
func (c *Cart) Cancel() error {
	if c.state == StateProcessing {
		return fmt.Errorf("%w: payment in flight", models.ErrValidation)
	}
	c.method = ""
	c.amountReceived = decimal.Zero
	c.state = StateIdle
	return nil
}

// BeginProcessing guards entry into the Processing state: a method must
// be selected, the cart non-empty, and for cash the amount received must
// cover the total. A second submission while Processing is refused.
func (c *Cart) BeginProcessing(total decimal.Decimal) error {
	switch c.state {
	case StateProcessing:
		return fmt.Errorf("%w: payment already in progress", models.ErrValidation)
	case StateMethodSelected:
	default:
		return fmt.Errorf("%w: no payment method selected", models.ErrValidation)
	}
	if len(c.lines) == 0 {
		return fmt.Errorf("%w: cart is empty", models.ErrValidation)
	}
	if c.method == models.MethodCash && c.amountReceived.LessThan(total) {
		return fmt.Errorf("%w: insufficient amount received", models.ErrValidation)
	}
	c.state = StateProcessing
	return nil
}

// FailProcessing returns to MethodSelected after a declined payment,
// preserving the selected method and amount so the cashier can retry
// without re-entering anything.
func (c *Cart) FailProcessing() {
	if c.state == StateProcessing {
		c.state = StateMethodSelected
	}
}

// CompleteProcessing moves Processing to Completed.
func (c *Cart) CompleteProcessing() {
	if c.state == StateProcessing {
		c.state = StateCompleted
	}
}

// CompleteSale is the terminal action from Completed: the cart is
// cleared and the register returns to Idle.
func (c *Cart) CompleteSale() error {
	if c.state != StateCompleted {
		return fmt.Errorf("%w: no completed sale to close", models.ErrValidation)
	}
	c.Clear()
	return nil
}

func (c *Cart) mutable() error {
	if c.state == StateProcessing || c.state == StateCompleted {
		return fmt.Errorf("%w: cart locked in state %s", models.ErrValidation, c.state)
	}
	return nil
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []models.CartLine {
	out := make([]models.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Quantity returns the quantity of productID, zero if absent.
func (c *Cart) Quantity(productID string) int {
	if pos, ok := c.index[productID]; ok {
		return c.lines[pos].Quantity
	}
	return 0
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool { return len(c.lines) == 0 }

// Discount returns the current discount configuration.
func (c *Cart) Discount() models.DiscountConfig { return c.discount }

// Method returns the selected payment method, empty if none.
func (c *Cart) Method() models.PaymentMethod { return c.method }

// AmountReceived returns the cash tendered so far.
func (c *Cart) AmountReceived() decimal.Decimal { return c.amountReceived }

// State returns the register workflow state.
func (c *Cart) State() State { return c.state }
