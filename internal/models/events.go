package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleCompleted   = "SALE_COMPLETED"
	EventTypeSaleQueued      = "SALE_QUEUED"
	EventTypeSaleSynced      = "SALE_SYNCED"
	EventTypeSyncRecord      = "SYNC_RECORD"
	EventTypeStockCommitted  = "STOCK_COMMITTED"
	EventTypePaymentDeclined = "PAYMENT_DECLINED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleLineData represents line data carried inside events
type SaleLineData struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SaleCompletedEvent published when a register sale finishes, either
// immediately (online) or later via the sync queue flush.
type SaleCompletedEvent struct {
	BaseEvent
	SaleID        string          `json:"sale_id"`
	TerminalID    string          `json:"terminal_id"`
	Total         decimal.Decimal `json:"total"`
	Method        PaymentMethod   `json:"method"`
	OfflineQueued bool            `json:"offline_queued"`
	Lines         []SaleLineData  `json:"lines"`
}

// SaleSyncedEvent published by the back office once a queued sale has
// been ingested.
type SaleSyncedEvent struct {
	BaseEvent
	SaleID     string `json:"sale_id"`
	TerminalID string `json:"terminal_id"`
}

// PaymentDeclinedEvent published when the gateway rejects a tender.
type PaymentDeclinedEvent struct {
	BaseEvent
	SaleID string `json:"sale_id"`
	Reason string `json:"reason"`
}

// StockCommittedEvent published after reserved stock is finally deducted.
type StockCommittedEvent struct {
	BaseEvent
	SaleID string         `json:"sale_id"`
	Lines  []SaleLineData `json:"lines"`
}
