package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry. Products are read-only within a
// register session.
type Product struct {
	ID        string          `db:"id" json:"id"`
	SKU       string          `db:"sku" json:"sku"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Category  string          `db:"category" json:"category"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Inventory represents product stock
type Inventory struct {
	ProductID string    `db:"product_id" json:"product_id"`
	Available int       `db:"available" json:"available"`
	Reserved  int       `db:"reserved" json:"reserved"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartLine is one product plus quantity in an in-progress sale. A cart
// holds at most one line per product id.
type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Subtotal is quantity times unit price, unrounded.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// DiscountType distinguishes the two discount shapes.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// DiscountConfig applies to the cart subtotal as a whole, never per line.
type DiscountConfig struct {
	Type   DiscountType    `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// NoDiscount is the zero-valued percentage discount a cart resets to.
func NoDiscount() DiscountConfig {
	return DiscountConfig{Type: DiscountPercentage, Amount: decimal.Zero}
}

// PaymentMethod is the tender type chosen at the register.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodCard   PaymentMethod = "card"
	MethodEBT    PaymentMethod = "ebt"
	MethodSquare PaymentMethod = "square"
)

// ValidPaymentMethod reports whether m is one of the supported tenders.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodCard, MethodEBT, MethodSquare:
		return true
	}
	return false
}

// Sale represents a completed register transaction.
type Sale struct {
	ID             string          `db:"id" json:"id"`
	TerminalID     string          `db:"terminal_id" json:"terminal_id"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount       decimal.Decimal `db:"discount" json:"discount"`
	Tax            decimal.Decimal `db:"tax" json:"tax"`
	Total          decimal.Decimal `db:"total" json:"total"`
	Method         PaymentMethod   `db:"method" json:"method"`
	Status         string          `db:"status" json:"status"`
	OfflineQueued  bool            `db:"offline_queued" json:"offline_queued"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// SaleItem represents one line of a persisted sale.
type SaleItem struct {
	ID        int64           `db:"id" json:"id"`
	SaleID    string          `db:"sale_id" json:"sale_id"`
	ProductID string          `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// Payment represents a gateway attempt for a sale.
type Payment struct {
	ID           int64           `db:"id" json:"id"`
	SaleID       string          `db:"sale_id" json:"sale_id"`
	Status       string          `db:"status" json:"status"`
	ProviderTxID string          `db:"provider_tx_id" json:"provider_tx_id,omitempty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Sale statuses
const (
	SaleStatusCompleted = "COMPLETED"
	SaleStatusQueued    = "QUEUED"
	SaleStatusSynced    = "SYNCED"
)

// Payment statuses
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// Pending sync record types
const (
	SyncTypeSale             = "sale"
	SyncTypeRefund           = "refund"
	SyncTypeInventoryUpdate  = "inventory_update"
	SyncTypePaymentReconcile = "payment_reconcile"
)

// Pending sync record statuses
const (
	SyncStatusPending = "pending"
	SyncStatusSyncing = "syncing"
	SyncStatusSynced  = "synced"
	SyncStatusFailed  = "failed"
)

// PendingSyncRecord is a sale (or other mutation) captured while the
// terminal was offline, awaiting transmission to the back office.
type PendingSyncRecord struct {
	ID         string          `db:"id" json:"id"`
	Type       string          `db:"type" json:"type"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Status     string          `db:"status" json:"status"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	Payload    []byte          `db:"payload" json:"-"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// Register workflow errors. All are recoverable and surfaced to the
// cashier, never fatal to the session.
var (
	ErrOutOfStock        = errors.New("product out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrSyncFailure       = errors.New("sync failed")
	ErrCartNotFound      = errors.New("cart not found")
	ErrProductNotFound   = errors.New("product not found")
)
