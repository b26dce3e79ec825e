package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aamircoretechies/bison360-sub000/internal/cart"
	"github.com/aamircoretechies/bison360-sub000/internal/models"
	"github.com/aamircoretechies/bison360-sub000/internal/pricing"
)

type memStore struct {
	mu           sync.Mutex
	products     map[string]models.Product
	sales        map[string]*models.Sale
	byKey        map[string]*models.Sale
	items        map[string][]models.SaleItem
	payments     []models.Payment
	saleWriteErr error
}

func newMemStore(products ...models.Product) *memStore {
	ms := &memStore{
		products: map[string]models.Product{},
		sales:    map[string]*models.Sale{},
		byKey:    map[string]*models.Sale{},
		items:    map[string][]models.SaleItem{},
	}
	for _, p := range products {
		ms.products[p.ID] = p
	}
	return ms
}

func (m *memStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	return &p, nil
}

func (m *memStore) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, models.ErrProductNotFound
}

func (m *memStore) GetProducts(ctx context.Context, category string) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, p := range m.products {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetSaleByID(ctx context.Context, id string) (*models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[id]
	if !ok {
		return nil, errors.New("sale not found")
	}
	return s, nil
}

func (m *memStore) GetSaleItemsBySaleID(ctx context.Context, saleID string) ([]models.SaleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[saleID], nil
}

func (m *memStore) GetSalesByTerminal(ctx context.Context, terminalID string) ([]models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Sale
	for _, s := range m.sales {
		if s.TerminalID == terminalID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) GetPaymentBySaleID(ctx context.Context, saleID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.payments) - 1; i >= 0; i-- {
		if m.payments[i].SaleID == saleID {
			p := m.payments[i]
			return &p, nil
		}
	}
	return nil, errors.New("payment not found")
}

func (m *memStore) GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[key], nil
}

func (m *memStore) CreateSale(ctx context.Context, sale *models.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saleWriteErr != nil {
		return m.saleWriteErr
	}
	sale.CreatedAt = time.Now()
	sale.UpdatedAt = sale.CreatedAt
	m.sales[sale.ID] = sale
	if sale.IdempotencyKey != "" {
		m.byKey[sale.IdempotencyKey] = sale
	}
	return nil
}

func (m *memStore) CreateSaleItem(ctx context.Context, item *models.SaleItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = int64(len(m.items[item.SaleID]) + 1)
	m.items[item.SaleID] = append(m.items[item.SaleID], *item)
	return nil
}

func (m *memStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment.ID = int64(len(m.payments) + 1)
	m.payments = append(m.payments, *payment)
	return nil
}

func (m *memStore) UpdateSaleStatus(ctx context.Context, saleID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sales[saleID]; ok {
		s.Status = status
	}
	return nil
}

type memStock struct {
	mu        sync.Mutex
	available map[string]int
	reserved  map[string]int
	commits   map[string]int
}

func newMemStock(available map[string]int) *memStock {
	return &memStock{available: available, reserved: map[string]int{}, commits: map[string]int{}}
}

func (s *memStock) Available(ctx context.Context, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available[productID], nil
}

func (s *memStock) ReserveStock(ctx context.Context, productID string, quantity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.available[productID] < quantity {
		return false, nil
	}
	s.available[productID] -= quantity
	s.reserved[productID] += quantity
	return true, nil
}

func (s *memStock) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved[productID] -= quantity
	s.available[productID] += quantity
	return nil
}

func (s *memStock) CommitStock(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved[productID] -= quantity
	s.commits[productID] += quantity
	return nil
}

type memPublisher struct {
	mu        sync.Mutex
	completed []*models.SaleCompletedEvent
	declined  []*models.PaymentDeclinedEvent
	committed []*models.StockCommittedEvent
}

func (p *memPublisher) PublishSaleCompleted(ctx context.Context, e *models.SaleCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, e)
	return nil
}

func (p *memPublisher) PublishPaymentDeclined(ctx context.Context, e *models.PaymentDeclinedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declined = append(p.declined, e)
	return nil
}

func (p *memPublisher) PublishStockCommitted(ctx context.Context, e *models.StockCommittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.committed = append(p.committed, e)
	return nil
}

type memQueue struct {
	mu   sync.Mutex
	recs []*models.PendingSyncRecord
}

func (q *memQueue) Enqueue(ctx context.Context, rec *models.PendingSyncRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recs = append(q.recs, rec)
	return nil
}

type stubProbe struct{ online bool }

func (p *stubProbe) Online() bool { return p.online }

type stubGateway struct {
	approve bool
	reason  string
	err     error
}

func (g *stubGateway) Charge(ctx context.Context, saleID string, method models.PaymentMethod, amount decimal.Decimal) (*ChargeResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	if !g.approve {
		return &ChargeResult{Approved: false, Reason: g.reason}, nil
	}
	return &ChargeResult{Approved: true, ProviderTxID: "TXN-test"}, nil
}

func bisonProduct() models.Product {
	return models.Product{
		ID:       "bison-1lb",
		SKU:      "BSN-001",
		Name:     "Ground Bison 1lb",
		Price:    decimal.RequireFromString("12.99"),
		Category: "meat",
	}
}

type fixture struct {
	svc       *RegisterService
	store     *memStore
	stock     *memStock
	publisher *memPublisher
	queue     *memQueue
	probe     *stubProbe
	gateway   *stubGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemStore(bisonProduct()),
		stock:     newMemStock(map[string]int{"bison-1lb": 10}),
		publisher: &memPublisher{},
		queue:     &memQueue{},
		probe:     &stubProbe{online: true},
		gateway:   &stubGateway{approve: true},
	}
	f.svc = NewRegisterService(
		f.store, f.stock, cart.NewManager(time.Hour), pricing.NewEngine("0.08"),
		f.gateway, f.publisher, f.queue, f.probe, time.Second,
	)
	return f
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (f *fixture) addBisonTwice(t *testing.T, terminal string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, terminal, "bison-1lb")
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, terminal, "bison-1lb")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	require.Equal(t, 2, view.Lines[0].Quantity)
}

func (f *fixture) tenPercentOff(t *testing.T, terminal string) {
	t.Helper()
	_, err := f.svc.SetDiscount(context.Background(), terminal, models.DiscountConfig{
		Type:   models.DiscountPercentage,
		Amount: decimal.RequireFromString("10"),
	})
	require.NoError(t, err)
}

func TestCheckoutCashHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addBisonTwice(t, "till-1")
	f.tenPercentOff(t, "till-1")

	view, err := f.svc.CartQuote(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, "25.25", view.DisplayTotal)

	receipt, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{
		Method:         models.MethodCash,
		AmountReceived: amount("30.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, "25.98", receipt.Subtotal)
	assert.Equal(t, "2.60", receipt.Discount)
	assert.Equal(t, "1.87", receipt.Tax)
	assert.Equal(t, "25.25", receipt.Total)
	assert.Equal(t, "30.00", receipt.AmountReceived)
	assert.Equal(t, "4.75", receipt.Change)
	assert.False(t, receipt.OfflineQueued)

	// Sale persisted, stock committed, event published, nothing queued.
	detail, err := f.svc.GetSale(ctx, receipt.SaleID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusCompleted, detail.Sale.Status)
	require.Len(t, detail.Items, 1)
	assert.Equal(t, 2, detail.Items[0].Quantity)
	require.NotNil(t, detail.Payment)
	assert.Equal(t, models.PaymentStatusSuccess, detail.Payment.Status)
	assert.Equal(t, 2, f.stock.commits["bison-1lb"])
	assert.Equal(t, 0, f.stock.reserved["bison-1lb"])
	assert.Equal(t, 8, f.stock.available["bison-1lb"])
	assert.Len(t, f.publisher.completed, 1)
	assert.Len(t, f.publisher.committed, 1)
	assert.Empty(t, f.queue.recs)

	// Cart sits in Completed until the cashier closes the sale.
	view, err = f.svc.CartQuote(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, cart.StateCompleted, view.State)

	require.NoError(t, f.svc.CompleteSale(ctx, "till-1"))
	view, err = f.svc.CartQuote(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, cart.StateIdle, view.State)
	assert.Empty(t, view.Lines)
}

func TestCheckoutCashInsufficientAmountRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addBisonTwice(t, "till-1")
	f.tenPercentOff(t, "till-1")

	_, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{
		Method:         models.MethodCash,
		AmountReceived: amount("20.00"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)

	// Never reached Processing: no sale, no event, no stock movement.
	assert.Empty(t, f.publisher.completed)
	assert.Empty(t, f.store.sales)
	assert.Equal(t, 0, f.stock.commits["bison-1lb"])

	view, err := f.svc.CartQuote(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, cart.StateMethodSelected, view.State)
}

func TestCheckoutOfflineQueuesSale(t *testing.T) {
	f := newFixture(t)
	f.probe.online = false
	ctx := context.Background()

	f.addBisonTwice(t, "till-1")

	receipt, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{Method: models.MethodCard})
	require.NoError(t, err)
	assert.True(t, receipt.OfflineQueued)

	detail, err := f.svc.GetSale(ctx, receipt.SaleID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusQueued, detail.Sale.Status)
	assert.True(t, detail.Sale.OfflineQueued)

	// The sale landed in the sync queue, not on the wire.
	assert.Empty(t, f.publisher.completed)
	require.Len(t, f.queue.recs, 1)
	rec := f.queue.recs[0]
	assert.Equal(t, models.SyncTypeSale, rec.Type)
	assert.Equal(t, models.SyncStatusPending, rec.Status)
	assert.NotEmpty(t, rec.Payload)
	assert.True(t, rec.Amount.Equal(detail.Sale.Total))
}

func TestCheckoutDeclinePreservesTender(t *testing.T) {
	f := newFixture(t)
	f.gateway.approve = false
	f.gateway.reason = "processor_declined"
	ctx := context.Background()

	f.addBisonTwice(t, "till-1")

	_, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{
		Method:         models.MethodCash,
		AmountReceived: amount("50.00"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPaymentFailed)

	// Method and amount survive for the retry.
	view, err := f.svc.CartQuote(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, cart.StateMethodSelected, view.State)
	assert.Equal(t, models.MethodCash, view.Method)
	assert.True(t, view.AmountReceived.Equal(decimal.RequireFromString("50.00")))
	assert.Len(t, f.publisher.declined, 1)

	// The payment-window reservation was unwound.
	assert.Equal(t, 0, f.stock.reserved["bison-1lb"])
	assert.Equal(t, 10, f.stock.available["bison-1lb"])

	// Retry with the gateway recovered succeeds without resending tender.
	f.gateway.approve = true
	receipt, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.Change)
}

func TestCancelPaymentClearsTenderKeepsItems(t *testing.T) {
	f := newFixture(t)
	f.gateway.approve = false
	f.gateway.reason = "processor_declined"
	ctx := context.Background()

	f.addBisonTwice(t, "till-1")

	_, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{
		Method:         models.MethodCash,
		AmountReceived: amount("50.00"),
	})
	require.ErrorIs(t, err, models.ErrPaymentFailed)

	view, err := f.svc.CancelPayment(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, cart.StateIdle, view.State)
	assert.Empty(t, view.Method)
	assert.True(t, view.AmountReceived.IsZero())
	assert.Len(t, view.Lines, 1)
}

func TestCheckoutSaleWriteFailureLeavesReconcileTrace(t *testing.T) {
	f := newFixture(t)
	f.store.saleWriteErr = errors.New("connection refused")
	ctx := context.Background()

	f.addBisonTwice(t, "till-1")
	f.tenPercentOff(t, "till-1")

	_, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{
		Method:         models.MethodCash,
		AmountReceived: amount("30.00"),
	})
	require.Error(t, err)

	// The captured charge leaves a reconciliation record even though the
	// sale row was lost.
	require.Len(t, f.queue.recs, 1)
	rec := f.queue.recs[0]
	assert.Equal(t, models.SyncTypePaymentReconcile, rec.Type)
	assert.True(t, rec.Amount.Equal(decimal.RequireFromString("25.25256")))
	assert.Contains(t, string(rec.Payload), "provider_tx_id")
	assert.Contains(t, string(rec.Payload), "till-1")

	// Stock reservations are unwound and the tender survives for retry.
	assert.Equal(t, 0, f.stock.reserved["bison-1lb"])
	assert.Equal(t, 10, f.stock.available["bison-1lb"])
	view, err := f.svc.CartQuote(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, cart.StateMethodSelected, view.State)
}

func TestCheckoutGatewayErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = context.DeadlineExceeded
	ctx := context.Background()

	f.addBisonTwice(t, "till-1")

	_, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{Method: models.MethodCard})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPaymentFailed)
	assert.Empty(t, f.store.sales)
	assert.Equal(t, 0, f.stock.commits["bison-1lb"])
	assert.Equal(t, 0, f.stock.reserved["bison-1lb"])
	assert.Equal(t, 10, f.stock.available["bison-1lb"])
}

func TestCheckoutReservationLostRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addBisonTwice(t, "till-1")

	// Another terminal sold the stock between add and checkout.
	f.stock.available["bison-1lb"] = 1

	_, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{Method: models.MethodCard})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Empty(t, f.store.sales)
	assert.Equal(t, 1, f.stock.available["bison-1lb"])

	view, err := f.svc.CartQuote(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, cart.StateMethodSelected, view.State)
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addBisonTwice(t, "till-1")

	first, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{
		Method:         models.MethodCard,
		IdempotencyKey: "retry-key",
	})
	require.NoError(t, err)

	// A network retry of the same request must not double-charge.
	replay, err := f.svc.Checkout(ctx, "till-1", &CheckoutRequest{
		Method:         models.MethodCard,
		IdempotencyKey: "retry-key",
	})
	require.NoError(t, err)
	assert.Equal(t, first.SaleID, replay.SaleID)
	assert.Equal(t, first.Total, replay.Total)
	assert.Len(t, f.store.sales, 1)
	assert.Equal(t, 2, f.stock.commits["bison-1lb"], "stock committed once")
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Checkout(context.Background(), "till-9", &CheckoutRequest{Method: models.MethodCard})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAddItemStockErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock.available["bison-1lb"] = 1

	_, err := f.svc.AddItem(ctx, "till-1", "bison-1lb")
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, "till-1", "bison-1lb")
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	f.stock.available["bison-1lb"] = 0
	_, err = f.svc.AddItem(ctx, "till-2", "bison-1lb")
	assert.ErrorIs(t, err, models.ErrOutOfStock)

	_, err = f.svc.AddItem(ctx, "till-1", "no-such-product")
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}

func TestScanItemAddsBySKU(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.ScanItem(ctx, "till-1", "BSN-001")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "bison-1lb", view.Lines[0].Product.ID)

	_, err = f.svc.ScanItem(ctx, "till-1", "NO-SUCH-SKU")
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}

func TestUpdateAndRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, "till-1", "bison-1lb")
	require.NoError(t, err)

	view, err := f.svc.UpdateQuantity(ctx, "till-1", "bison-1lb", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, view.Lines[0].Quantity)

	// Zero quantity removes the line.
	view, err = f.svc.UpdateQuantity(ctx, "till-1", "bison-1lb", 0)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)

	_, err = f.svc.AddItem(ctx, "till-1", "bison-1lb")
	require.NoError(t, err)
	view, err = f.svc.RemoveItem(ctx, "till-1", "bison-1lb")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestClearCartResetsDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addBisonTwice(t, "till-1")
	f.tenPercentOff(t, "till-1")

	require.NoError(t, f.svc.ClearCart(ctx, "till-1"))

	view, err := f.svc.CartQuote(ctx, "till-1")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Equal(t, models.NoDiscount(), view.Discount)
	assert.True(t, view.Quote.Total.IsZero())
}
