package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aamircoretechies/bison360-sub000/internal/models"
	"github.com/aamircoretechies/bison360-sub000/internal/redisclient"
	"github.com/aamircoretechies/bison360-sub000/internal/store"
	"github.com/aamircoretechies/bison360-sub000/internal/util"
)

// InventoryClient handles stock operations. Redis is the fast path for
// the till; Postgres stays authoritative.
type InventoryClient struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(store *store.Store, redis *redisclient.Client) *InventoryClient {
	return &InventoryClient{
		store:  store,
		redis:  redis,
		logger: util.NamedLogger("inventory"),
	}
}

// Available returns the sellable stock for a product, preferring the
// Redis cache and falling back to the database.
func (ic *InventoryClient) Available(ctx context.Context, productID string) (int, error) {
	available, _, err := ic.redis.GetStock(ctx, productID)
	if err == nil {
		return available, nil
	}

	inv, err := ic.store.GetInventory(ctx, productID)
	if err != nil {
		return 0, err
	}
	return inv.Available, nil
}

// ReserveStock reserves stock for a product (fast path via Redis)
func (ic *InventoryClient) ReserveStock(ctx context.Context, productID string, quantity int) (bool, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.ReserveStock")
	defer span.End()

	success, err := ic.redis.ReserveStock(ctx, productID, quantity)
	if err != nil {
		ic.logger.Warn("Redis reservation failed, falling back to DB",
			zap.String("product_id", productID),
			zap.Error(err))

		return ic.reserveStockDB(ctx, productID, quantity)
	}

	if !success {
		return false, nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := ic.store.ReserveStockTx(ctx, productID, quantity); err != nil {
			ic.logger.Error("Failed to sync reservation to DB",
				zap.String("product_id", productID),
				zap.Error(err))
		}
	}()

	return true, nil
}

// reserveStockDB reserves stock using database transaction (fallback)
func (ic *InventoryClient) reserveStockDB(ctx context.Context, productID string, quantity int) (bool, error) {
	err := ic.store.ReserveStockTx(ctx, productID, quantity)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientStock) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReleaseStock releases reserved stock (compensation)
func (ic *InventoryClient) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.ReleaseStock")
	defer span.End()

	if err := ic.redis.ReleaseStock(ctx, productID, quantity); err != nil {
		ic.logger.Error("Failed to release stock in Redis",
			zap.String("product_id", productID),
			zap.Error(err))
	}

	return ic.store.ReleaseStock(ctx, productID, quantity)
}

// CommitStock commits reserved stock (final deduction at sale completion)
func (ic *InventoryClient) CommitStock(ctx context.Context, productID string, quantity int) error {
	ctx, span := util.StartSpan(ctx, "InventoryClient.CommitStock")
	defer span.End()

	if err := ic.redis.CommitStock(ctx, productID, quantity); err != nil {
		ic.logger.Error("Failed to commit stock in Redis",
			zap.String("product_id", productID),
			zap.Error(err))
	}

	return ic.store.CommitStock(ctx, productID, quantity)
}

// SyncStockToRedis seeds the Redis cache from the database at startup.
func (ic *InventoryClient) SyncStockToRedis(ctx context.Context) error {
	ic.logger.Info("Starting stock sync to Redis")

	products, err := ic.store.GetProducts(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	for _, product := range products {
		inv, err := ic.store.GetInventory(ctx, product.ID)
		if err != nil {
			ic.logger.Error("Failed to get inventory",
				zap.String("product_id", product.ID),
				zap.Error(err))
			continue
		}

		if err := ic.redis.InitStock(ctx, product.ID, inv.Available, inv.Reserved); err != nil {
			ic.logger.Error("Failed to init Redis stock",
				zap.String("product_id", product.ID),
				zap.Error(err))
		}
	}

	ic.logger.Info("Stock sync completed", zap.Int("count", len(products)))
	return nil
}

// GetInventory retrieves authoritative inventory for a product
func (ic *InventoryClient) GetInventory(ctx context.Context, productID string) (*models.Inventory, error) {
	return ic.store.GetInventory(ctx, productID)
}
