package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

//go:embed scripts/commit_stock.lua
var commitStockScript string

// Client is the register's fast path for stock checks and commits. The
// database stays authoritative; Redis mirrors it for sub-millisecond
// availability lookups at the till.
type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
	commitScript  *redis.Script
}

// NewClient creates a new Redis client with the stock Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		commitScript:  redis.NewScript(commitStockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID string) string {
	return fmt.Sprintf("stock:%s", productID)
}

// ReserveStock atomically moves quantity from available to reserved.
// Returns false when there is not enough available stock.
func (c *Client) ReserveStock(ctx context.Context, productID string, quantity int) (bool, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Result()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	success, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return success == 1, nil
}

// ReleaseStock atomically returns reserved quantity to available
// (compensation after a declined payment).
func (c *Client) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Result(); err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// CommitStock atomically deducts reserved quantity for good (sale paid).
func (c *Client) CommitStock(ctx context.Context, productID string, quantity int) error {
	if _, err := c.commitScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Result(); err != nil {
		return fmt.Errorf("commit stock script failed: %w", err)
	}
	return nil
}

// InitStock seeds the cached counts for a product.
func (c *Client) InitStock(ctx context.Context, productID string, available, reserved int) error {
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, stockKey(productID), "available", available)
	pipe.HSet(ctx, stockKey(productID), "reserved", reserved)

	_, err := pipe.Exec(ctx)
	return err
}

// GetStock retrieves the cached counts for a product.
func (c *Client) GetStock(ctx context.Context, productID string) (available, reserved int, err error) {
	result, err := c.rdb.HGetAll(ctx, stockKey(productID)).Result()
	if err != nil {
		return 0, 0, err
	}

	if len(result) == 0 {
		return 0, 0, fmt.Errorf("stock not cached for product %s", productID)
	}

	available, _ = strconv.Atoi(result["available"])
	reserved, _ = strconv.Atoi(result["reserved"])
	return available, reserved, nil
}
