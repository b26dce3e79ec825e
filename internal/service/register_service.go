package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aamircoretechies/bison360-sub000/internal/cart"
	"github.com/aamircoretechies/bison360-sub000/internal/models"
	"github.com/aamircoretechies/bison360-sub000/internal/pricing"
	"github.com/aamircoretechies/bison360-sub000/internal/util"
)

// SalesStore is the slice of the persistence layer the register needs.
type SalesStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	GetProducts(ctx context.Context, category string) ([]models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	GetSaleByID(ctx context.Context, id string) (*models.Sale, error)
	GetSaleItemsBySaleID(ctx context.Context, saleID string) ([]models.SaleItem, error)
	GetSalesByTerminal(ctx context.Context, terminalID string) ([]models.Sale, error)
	GetPaymentBySaleID(ctx context.Context, saleID string) (*models.Payment, error)
	GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error)
	CreateSale(ctx context.Context, sale *models.Sale) error
	CreateSaleItem(ctx context.Context, item *models.SaleItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdateSaleStatus(ctx context.Context, saleID, status string) error
}

// StockKeeper is the inventory surface the register needs. A
// reservation is held only while a payment is in flight; it is
// committed on approval and released on decline.
type StockKeeper interface {
	Available(ctx context.Context, productID string) (int, error)
	ReserveStock(ctx context.Context, productID string, quantity int) (bool, error)
	ReleaseStock(ctx context.Context, productID string, quantity int) error
	CommitStock(ctx context.Context, productID string, quantity int) error
}

// SalePublisher publishes register events to the back office.
type SalePublisher interface {
	PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error
	PublishPaymentDeclined(ctx context.Context, event *models.PaymentDeclinedEvent) error
	PublishStockCommitted(ctx context.Context, event *models.StockCommittedEvent) error
}

// SyncEnqueuer captures sales completed while offline.
type SyncEnqueuer interface {
	Enqueue(ctx context.Context, rec *models.PendingSyncRecord) error
}

// ConnectivityProbe reports whether the back office is reachable.
type ConnectivityProbe interface {
	Online() bool
}

// RegisterService drives the whole register workflow: cart mutation,
// pricing, the payment state machine, and persistence of completed sales.
type RegisterService struct {
	store          SalesStore
	stock          StockKeeper
	carts          *cart.Manager
	pricer         *pricing.Engine
	gateway        PaymentGateway
	publisher      SalePublisher
	queue          SyncEnqueuer
	probe          ConnectivityProbe
	gatewayTimeout time.Duration
	logger         *zap.Logger
}

// NewRegisterService creates a new register service
func NewRegisterService(
	store SalesStore,
	stock StockKeeper,
	carts *cart.Manager,
	pricer *pricing.Engine,
	gateway PaymentGateway,
	publisher SalePublisher,
	queue SyncEnqueuer,
	probe ConnectivityProbe,
	gatewayTimeout time.Duration,
) *RegisterService {
	return &RegisterService{
		store:          store,
		stock:          stock,
		carts:          carts,
		pricer:         pricer,
		gateway:        gateway,
		publisher:      publisher,
		queue:          queue,
		probe:          probe,
		gatewayTimeout: gatewayTimeout,
		logger:         util.NamedLogger("register"),
	}
}

// CartView is the priced snapshot returned to the terminal UI.
type CartView struct {
	TerminalID     string                `json:"terminal_id"`
	State          cart.State            `json:"state"`
	Lines          []models.CartLine     `json:"lines"`
	Discount       models.DiscountConfig `json:"discount"`
	Quote          pricing.Quote         `json:"quote"`
	Method         models.PaymentMethod  `json:"method,omitempty"`
	AmountReceived decimal.Decimal       `json:"amount_received"`
	DisplayTotal   string                `json:"display_total"`
}

// AddItem adds one unit of productID to the terminal's cart.
func (s *RegisterService) AddItem(ctx context.Context, terminalID, productID string) (*CartView, error) {
	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	available, err := s.stock.Available(ctx, productID)
	if err != nil {
		return nil, err
	}

	session := s.carts.Session(terminalID)
	if err := session.Do(func(c *cart.Cart) error {
		return c.AddItem(*product, available)
	}); err != nil {
		return nil, err
	}

	util.CartOpsTotal.WithLabelValues("add").Inc()
	return s.view(terminalID, session)
}

// ScanItem adds one unit by barcode, the way most lines enter a sale.
func (s *RegisterService) ScanItem(ctx context.Context, terminalID, sku string) (*CartView, error) {
	product, err := s.store.GetProductBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	return s.AddItem(ctx, terminalID, product.ID)
}

// UpdateQuantity overwrites the quantity of productID in the cart.
func (s *RegisterService) UpdateQuantity(ctx context.Context, terminalID, productID string, quantity int) (*CartView, error) {
	available := 0
	if quantity > 0 {
		var err error
		available, err = s.stock.Available(ctx, productID)
		if err != nil {
			return nil, err
		}
	}

	session := s.carts.Session(terminalID)
	if err := session.Do(func(c *cart.Cart) error {
		return c.UpdateQuantity(productID, quantity, available)
	}); err != nil {
		return nil, err
	}

	util.CartOpsTotal.WithLabelValues("update").Inc()
	return s.view(terminalID, session)
}

// RemoveItem deletes productID's line from the cart.
func (s *RegisterService) RemoveItem(ctx context.Context, terminalID, productID string) (*CartView, error) {
	session := s.carts.Session(terminalID)
	if err := session.Do(func(c *cart.Cart) error {
		return c.RemoveItem(productID)
	}); err != nil {
		return nil, err
	}

	util.CartOpsTotal.WithLabelValues("remove").Inc()
	return s.view(terminalID, session)
}

// ClearCart resets the terminal's whole transaction.
func (s *RegisterService) ClearCart(ctx context.Context, terminalID string) error {
	session := s.carts.Session(terminalID)
	_ = session.Do(func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
	util.CartOpsTotal.WithLabelValues("clear").Inc()
	return nil
}

// SetDiscount applies a cart-wide discount.
func (s *RegisterService) SetDiscount(ctx context.Context, terminalID string, d models.DiscountConfig) (*CartView, error) {
	session := s.carts.Session(terminalID)
	if err := session.Do(func(c *cart.Cart) error {
		return c.SetDiscount(d)
	}); err != nil {
		return nil, err
	}
	return s.view(terminalID, session)
}

// CartQuote returns the priced snapshot of the terminal's cart.
func (s *RegisterService) CartQuote(ctx context.Context, terminalID string) (*CartView, error) {
	return s.view(terminalID, s.carts.Session(terminalID))
}

func (s *RegisterService) view(terminalID string, session *cart.Session) (*CartView, error) {
	var view CartView
	err := session.Do(func(c *cart.Cart) error {
		quote := s.pricer.Price(c.Lines(), c.Discount())
		view = CartView{
			TerminalID:     terminalID,
			State:          c.State(),
			Lines:          c.Lines(),
			Discount:       c.Discount(),
			Quote:          quote,
			Method:         c.Method(),
			AmountReceived: c.AmountReceived(),
			DisplayTotal:   pricing.Display(quote.Total),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// CheckoutRequest carries the tender for a checkout attempt.
type CheckoutRequest struct {
	Method         models.PaymentMethod
	AmountReceived *decimal.Decimal
	IdempotencyKey string
}

// ReceiptLine is one display-rounded line of a receipt.
type ReceiptLine struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

// Receipt summarizes a completed sale for display.
type Receipt struct {
	SaleID         string               `json:"sale_id"`
	TerminalID     string               `json:"terminal_id"`
	Lines          []ReceiptLine        `json:"lines"`
	Subtotal       string               `json:"subtotal"`
	Discount       string               `json:"discount"`
	Tax            string               `json:"tax"`
	Total          string               `json:"total"`
	Method         models.PaymentMethod `json:"method"`
	AmountReceived string               `json:"amount_received,omitempty"`
	Change         string               `json:"change,omitempty"`
	OfflineQueued  bool                 `json:"offline_queued"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Checkout runs the payment state machine for the terminal's cart:
// guard, Processing via the gateway, then persistence, stock commit, and
// either immediate publication or the offline queue. The cart is left in
// Completed; CompleteSale closes it out.
func (s *RegisterService) Checkout(ctx context.Context, terminalID string, req *CheckoutRequest) (*Receipt, error) {
	ctx, span := util.StartSpan(ctx, "RegisterService.Checkout")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existing, err := s.store.GetSaleByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate checkout request detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("sale_id", existing.ID))
		return s.receiptFromSale(ctx, existing)
	}

	session := s.carts.Session(terminalID)

	var (
		lines          []models.CartLine
		quote          pricing.Quote
		method         models.PaymentMethod
		amountReceived decimal.Decimal
	)
	err = session.Do(func(c *cart.Cart) error {
		if req.Method != "" {
			if err := c.SelectMethod(req.Method); err != nil {
				return err
			}
		}
		if req.AmountReceived != nil {
			if err := c.SetAmountReceived(*req.AmountReceived); err != nil {
				return err
			}
		}
		quote = s.pricer.Price(c.Lines(), c.Discount())
		if err := c.BeginProcessing(quote.Total); err != nil {
			return err
		}
		lines = c.Lines()
		method = c.Method()
		amountReceived = c.AmountReceived()
		return nil
	})
	if err != nil {
		util.SalesFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	saleID := uuid.New().String()

	// Hold the stock for the duration of the gateway call so a
	// concurrent terminal cannot sell the same last unit.
	if err := s.reserveLines(ctx, lines); err != nil {
		_ = session.Do(func(c *cart.Cart) error {
			c.FailProcessing()
			return nil
		})
		util.SalesFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, err
	}

	util.PaymentAttemptsTotal.WithLabelValues(string(method)).Inc()

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	result, err := s.gateway.Charge(gctx, saleID, method, quote.Total)
	if err != nil || !result.Approved {
		// Back to MethodSelected with the tender intact so the cashier
		// can retry without re-entering anything.
		s.releaseLines(ctx, lines)
		_ = session.Do(func(c *cart.Cart) error {
			c.FailProcessing()
			return nil
		})
		util.PaymentFailedTotal.Inc()
		util.SalesFailedTotal.WithLabelValues("payment_declined").Inc()

		reason := "gateway_error"
		if err == nil {
			reason = result.Reason
		}
		s.publishDeclined(ctx, saleID, reason)

		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPaymentFailed, err)
		}
		return nil, fmt.Errorf("%w: %s", models.ErrPaymentFailed, reason)
	}

	util.PaymentSuccessTotal.Inc()
	online := s.probe.Online()

	sale := &models.Sale{
		ID:             saleID,
		TerminalID:     terminalID,
		Subtotal:       quote.Subtotal,
		Discount:       quote.Discount,
		Tax:            quote.Tax,
		Total:          quote.Total,
		Method:         method,
		Status:         models.SaleStatusCompleted,
		OfflineQueued:  !online,
		IdempotencyKey: req.IdempotencyKey,
	}
	if !online {
		sale.Status = models.SaleStatusQueued
	}

	if err := s.store.CreateSale(ctx, sale); err != nil {
		// The charge is already captured; leave a durable trace for
		// back-office reconciliation before unwinding.
		s.recordOrphanedCharge(ctx, sale, result)
		s.releaseLines(ctx, lines)
		_ = session.Do(func(c *cart.Cart) error {
			c.FailProcessing()
			return nil
		})
		util.SalesFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to persist sale: %w", err)
	}

	payment := &models.Payment{
		SaleID:       saleID,
		Status:       models.PaymentStatusSuccess,
		ProviderTxID: result.ProviderTxID,
		Amount:       quote.Total,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		s.logger.Error("Failed to persist payment", zap.Error(err))
	}

	eventLines := make([]models.SaleLineData, 0, len(lines))
	for _, line := range lines {
		item := &models.SaleItem{
			SaleID:    saleID,
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
		}
		if err := s.store.CreateSaleItem(ctx, item); err != nil {
			s.logger.Error("Failed to persist sale item",
				zap.String("product_id", line.Product.ID),
				zap.Error(err))
		}
		if err := s.stock.CommitStock(ctx, line.Product.ID, line.Quantity); err != nil {
			util.StockCommitsFailed.WithLabelValues("error").Inc()
			s.logger.Error("Failed to commit stock",
				zap.String("product_id", line.Product.ID),
				zap.Error(err))
		}
		eventLines = append(eventLines, models.SaleLineData{
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
		})
	}

	event := &models.SaleCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCompleted,
			Timestamp: time.Now(),
		},
		SaleID:        saleID,
		TerminalID:    terminalID,
		Total:         quote.Total,
		Method:        method,
		OfflineQueued: !online,
		Lines:         eventLines,
	}

	if online {
		if err := s.publisher.PublishSaleCompleted(ctx, event); err != nil {
			s.logger.Error("Failed to publish SaleCompleted event", zap.Error(err))
		}
		stockEvent := &models.StockCommittedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockCommitted,
				Timestamp: time.Now(),
			},
			SaleID: saleID,
			Lines:  eventLines,
		}
		if err := s.publisher.PublishStockCommitted(ctx, stockEvent); err != nil {
			s.logger.Error("Failed to publish StockCommitted event", zap.Error(err))
		}
	} else {
		if err := s.enqueueOffline(ctx, event, quote.Total); err != nil {
			s.logger.Error("Failed to enqueue offline sale", zap.Error(err))
		} else {
			util.SalesQueuedTotal.Inc()
		}
	}

	util.SalesCompletedTotal.Inc()
	s.logger.Info("Sale completed",
		zap.String("sale_id", saleID),
		zap.String("terminal_id", terminalID),
		zap.Bool("offline_queued", !online))

	_ = session.Do(func(c *cart.Cart) error {
		c.CompleteProcessing()
		return nil
	})

	receipt := &Receipt{
		SaleID:        saleID,
		TerminalID:    terminalID,
		Lines:         receiptLines(lines),
		Subtotal:      pricing.Display(quote.Subtotal),
		Discount:      pricing.Display(quote.Discount),
		Tax:           pricing.Display(quote.Tax),
		Total:         pricing.Display(quote.Total),
		Method:        method,
		OfflineQueued: !online,
		CreatedAt:     sale.CreatedAt,
	}
	if method == models.MethodCash {
		change, err := pricing.ChangeDue(quote.Total, amountReceived)
		if err != nil {
			// Unreachable: BeginProcessing already guarded the amount.
			return nil, err
		}
		receipt.AmountReceived = pricing.Display(amountReceived)
		receipt.Change = pricing.Display(change)
	}
	return receipt, nil
}

// reserveLines reserves stock for every line, unwinding the earlier
// reservations when one fails.
func (s *RegisterService) reserveLines(ctx context.Context, lines []models.CartLine) error {
	for i, line := range lines {
		ok, err := s.stock.ReserveStock(ctx, line.Product.ID, line.Quantity)
		if err == nil && ok {
			continue
		}
		s.releaseLines(ctx, lines[:i])
		if err != nil {
			return fmt.Errorf("failed to reserve stock for %s: %w", line.Product.ID, err)
		}
		return fmt.Errorf("%w: %s", models.ErrInsufficientStock, line.Product.ID)
	}
	return nil
}

func (s *RegisterService) releaseLines(ctx context.Context, lines []models.CartLine) {
	for _, line := range lines {
		if err := s.stock.ReleaseStock(ctx, line.Product.ID, line.Quantity); err != nil {
			s.logger.Error("Failed to release reserved stock",
				zap.String("product_id", line.Product.ID),
				zap.Error(err))
		}
	}
}

func (s *RegisterService) enqueueOffline(ctx context.Context, event *models.SaleCompletedEvent, total decimal.Decimal) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal queued sale: %w", err)
	}
	rec := &models.PendingSyncRecord{
		ID:      uuid.New().String(),
		Type:    models.SyncTypeSale,
		Amount:  total,
		Status:  models.SyncStatusPending,
		Payload: payload,
	}
	return s.queue.Enqueue(ctx, rec)
}

// recordOrphanedCharge queues a reconciliation record for a charge the
// gateway captured but the sale write lost. Best effort: if the queue
// write also fails the provider transaction id still lands in the log.
func (s *RegisterService) recordOrphanedCharge(ctx context.Context, sale *models.Sale, result *ChargeResult) {
	s.logger.Error("Charge captured but sale not persisted",
		zap.String("sale_id", sale.ID),
		zap.String("terminal_id", sale.TerminalID),
		zap.String("provider_tx_id", result.ProviderTxID),
		zap.String("amount", sale.Total.StringFixed(2)))

	payload, err := json.Marshal(map[string]interface{}{
		"sale_id":        sale.ID,
		"terminal_id":    sale.TerminalID,
		"provider_tx_id": result.ProviderTxID,
		"method":         sale.Method,
		"amount":         sale.Total,
	})
	if err != nil {
		return
	}
	rec := &models.PendingSyncRecord{
		ID:      uuid.New().String(),
		Type:    models.SyncTypePaymentReconcile,
		Amount:  sale.Total,
		Status:  models.SyncStatusPending,
		Payload: payload,
	}
	if err := s.queue.Enqueue(ctx, rec); err != nil {
		s.logger.Error("Failed to queue charge reconciliation record",
			zap.String("provider_tx_id", result.ProviderTxID),
			zap.Error(err))
	}
}

func (s *RegisterService) publishDeclined(ctx context.Context, saleID, reason string) {
	if !s.probe.Online() {
		return
	}
	event := &models.PaymentDeclinedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentDeclined,
			Timestamp: time.Now(),
		},
		SaleID: saleID,
		Reason: reason,
	}
	if err := s.publisher.PublishPaymentDeclined(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentDeclined event", zap.Error(err))
	}
}

// CancelPayment abandons the payment selection before any gateway call,
// keeping the cart contents.
func (s *RegisterService) CancelPayment(ctx context.Context, terminalID string) (*CartView, error) {
	session := s.carts.Session(terminalID)
	if err := session.Do(func(c *cart.Cart) error {
		return c.Cancel()
	}); err != nil {
		return nil, err
	}
	return s.view(terminalID, session)
}

// CompleteSale is the terminal action after the receipt is shown: the
// cart clears and the register returns to Idle.
func (s *RegisterService) CompleteSale(ctx context.Context, terminalID string) error {
	session := s.carts.Session(terminalID)
	return session.Do(func(c *cart.Cart) error {
		return c.CompleteSale()
	})
}

// SaleDetail is a persisted sale with its lines and payment.
type SaleDetail struct {
	Sale    *models.Sale      `json:"sale"`
	Items   []models.SaleItem `json:"items"`
	Payment *models.Payment   `json:"payment,omitempty"`
}

// GetSale retrieves a persisted sale with its lines and payment.
func (s *RegisterService) GetSale(ctx context.Context, saleID string) (*SaleDetail, error) {
	sale, err := s.store.GetSaleByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetSaleItemsBySaleID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	payment, err := s.store.GetPaymentBySaleID(ctx, saleID)
	if err != nil {
		s.logger.Warn("No payment found for sale", zap.String("sale_id", saleID))
		payment = nil
	}
	return &SaleDetail{Sale: sale, Items: items, Payment: payment}, nil
}

// ListTerminalSales returns the terminal's sale history, newest first.
func (s *RegisterService) ListTerminalSales(ctx context.Context, terminalID string) ([]models.Sale, error) {
	return s.store.GetSalesByTerminal(ctx, terminalID)
}

// ListProducts returns the catalog, optionally filtered by category.
func (s *RegisterService) ListProducts(ctx context.Context, category string) ([]models.Product, error) {
	return s.store.GetProducts(ctx, category)
}

// GetProduct returns one catalog entry.
func (s *RegisterService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.store.GetProductByID(ctx, id)
}

func (s *RegisterService) receiptFromSale(ctx context.Context, sale *models.Sale) (*Receipt, error) {
	items, err := s.store.GetSaleItemsBySaleID(ctx, sale.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	rls := make([]ReceiptLine, 0, len(items))
	for _, item := range items {
		p := byID[item.ProductID]
		subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		rls = append(rls, ReceiptLine{
			ProductID: item.ProductID,
			SKU:       p.SKU,
			Name:      p.Name,
			Quantity:  item.Quantity,
			UnitPrice: pricing.Display(item.UnitPrice),
			Subtotal:  pricing.Display(subtotal),
		})
	}

	return &Receipt{
		SaleID:        sale.ID,
		TerminalID:    sale.TerminalID,
		Lines:         rls,
		Subtotal:      pricing.Display(sale.Subtotal),
		Discount:      pricing.Display(sale.Discount),
		Tax:           pricing.Display(sale.Tax),
		Total:         pricing.Display(sale.Total),
		Method:        sale.Method,
		OfflineQueued: sale.OfflineQueued,
		CreatedAt:     sale.CreatedAt,
	}, nil
}

func receiptLines(lines []models.CartLine) []ReceiptLine {
	out := make([]ReceiptLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, ReceiptLine{
			ProductID: line.Product.ID,
			SKU:       line.Product.SKU,
			Name:      line.Product.Name,
			Quantity:  line.Quantity,
			UnitPrice: pricing.Display(line.Product.Price),
			Subtotal:  pricing.Display(line.Subtotal()),
		})
	}
	return out
}
