package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aamircoretechies/bison360-sub000/internal/models"
)

// CreateSale persists a completed register sale.
func (s *Store) CreateSale(ctx context.Context, sale *models.Sale) error {
	query := `
		INSERT INTO sales (id, terminal_id, subtotal, discount, tax, total, method, status, offline_queued, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		sale.ID, sale.TerminalID, sale.Subtotal, sale.Discount, sale.Tax, sale.Total,
		sale.Method, sale.Status, sale.OfflineQueued, sale.IdempotencyKey,
	).Scan(&sale.CreatedAt, &sale.UpdatedAt)
}

// GetSaleByID retrieves a sale by ID
func (s *Store) GetSaleByID(ctx context.Context, id string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, "SELECT * FROM sales WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sale not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSaleByIdempotencyKey retrieves a sale by idempotency key, nil when absent.
func (s *Store) GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale, "SELECT * FROM sales WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// UpdateSaleStatus updates sale status
func (s *Store) UpdateSaleStatus(ctx context.Context, saleID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sales SET status = $1, updated_at = NOW() WHERE id = $2",
		status, saleID)
	return err
}

// GetSalesByTerminal retrieves recent sales for a terminal
func (s *Store) GetSalesByTerminal(ctx context.Context, terminalID string) ([]models.Sale, error) {
	var sales []models.Sale
	err := s.db.SelectContext(ctx, &sales,
		"SELECT * FROM sales WHERE terminal_id = $1 ORDER BY created_at DESC", terminalID)
	return sales, err
}

// CreateSaleItem creates a new sale line
func (s *Store) CreateSaleItem(ctx context.Context, item *models.SaleItem) error {
	query := `
		INSERT INTO sale_items (sale_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return s.db.GetContext(ctx, &item.ID, query,
		item.SaleID, item.ProductID, item.Quantity, item.UnitPrice)
}

// GetSaleItemsBySaleID retrieves all lines for a sale
func (s *Store) GetSaleItemsBySaleID(ctx context.Context, saleID string) ([]models.SaleItem, error) {
	var items []models.SaleItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM sale_items WHERE sale_id = $1", saleID)
	return items, err
}

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (sale_id, status, provider_tx_id, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		payment.SaleID, payment.Status, payment.ProviderTxID, payment.Amount,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

// GetPaymentBySaleID retrieves the latest payment attempt for a sale
func (s *Store) GetPaymentBySaleID(ctx context.Context, saleID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE sale_id = $1 ORDER BY created_at DESC LIMIT 1", saleID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment not found for sale: %s", saleID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// CreatePendingSync persists an offline queue record so a terminal
// restart does not lose queued sales.
func (s *Store) CreatePendingSync(ctx context.Context, rec *models.PendingSyncRecord) error {
	query := `
		INSERT INTO pending_sync (id, type, amount, status, retry_count, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		rec.ID, rec.Type, rec.Amount, rec.Status, rec.RetryCount, rec.Payload,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

// GetPendingSyncRecords retrieves queue records that still need syncing
func (s *Store) GetPendingSyncRecords(ctx context.Context) ([]models.PendingSyncRecord, error) {
	var recs []models.PendingSyncRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM pending_sync WHERE status IN ($1, $2) ORDER BY created_at",
		models.SyncStatusPending, models.SyncStatusFailed)
	return recs, err
}

// ResetStalledSyncRecords returns records stuck in syncing to pending.
// A crash between marking a record syncing and recording the transport
// outcome would otherwise orphan it, since the flush fetch only selects
// pending and failed records.
func (s *Store) ResetStalledSyncRecords(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE pending_sync SET status = $1, updated_at = NOW() WHERE status = $2",
		models.SyncStatusPending, models.SyncStatusSyncing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdatePendingSyncStatus updates a queue record after a flush attempt
func (s *Store) UpdatePendingSyncStatus(ctx context.Context, id, status string, retryCount int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE pending_sync SET status = $1, retry_count = $2, updated_at = NOW() WHERE id = $3",
		status, retryCount, id)
	return err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
