package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"strconv"
	"time"

	"count-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/apply_count.lua
var applyCountScript string

//go:embed scripts/reset_session.lua
var resetSessionScript string

type Client struct {
	rdb         *redis.Client
	applyScript *redis.Script
	resetScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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
		rdb:         rdb,
		applyScript: redis.NewScript(applyCountScript),
		resetScript: redis.NewScript(resetSessionScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func aggregateKey(sessionID int64, key models.AggregateKey) string {
	return fmt.Sprintf("agg:%d:%d:%d", sessionID, key.ProductID, key.VariantID)
}

func sessionIndexKey(sessionID int64) string {
	return fmt.Sprintf("agg-index:%d", sessionID)
}

// litersToMl converts to the integer millilitre representation the hashes
// store. Rounded, not truncated: 1.85l is 1850ml even when the float sits a
// hair below it.
func litersToMl(liters float64) int64 {
	return int64(math.Round(liters * 1000))
}

// ApplyCount atomically folds one count observation into the live aggregate
// hash for its (session, product, variant). Liters travel as millilitres so
// the hash stays integer-only.
func (c *Client) ApplyCount(ctx context.Context, sessionID int64, key models.AggregateKey, bottleQty int, derivedLiters float64) error {
	ml := litersToMl(derivedLiters)

	keys := []string{aggregateKey(sessionID, key), sessionIndexKey(sessionID)}
	if _, err := c.applyScript.Run(ctx, c.rdb, keys, bottleQty, ml).Result(); err != nil {
		return fmt.Errorf("apply count script failed: %w", err)
	}
	return nil
}

// GetAggregate reads the live aggregate hash for one (session, product,
// variant). Returns a zero aggregate when nothing has been counted yet.
func (c *Client) GetAggregate(ctx context.Context, sessionID int64, key models.AggregateKey) (*models.ProductAggregate, error) {
	result, err := c.rdb.HGetAll(ctx, aggregateKey(sessionID, key)).Result()
	if err != nil {
		return nil, err
	}

	agg := &models.ProductAggregate{
		SessionID: sessionID,
		ProductID: key.ProductID,
		VariantID: key.VariantID,
	}
	if len(result) == 0 {
		return agg, nil
	}

	agg.CountedQty, _ = strconv.Atoi(result["qty"])
	agg.EventCount, _ = strconv.Atoi(result["events"])
	ml, _ := strconv.ParseInt(result["liters_ml"], 10, 64)
	agg.CountedLiters = float64(ml) / 1000

	return agg, nil
}

// ResetSession drops all live aggregate hashes for a session. Called before a
// cache repair so the fast path rebuilds from the authoritative log.
func (c *Client) ResetSession(ctx context.Context, sessionID int64) error {
	if _, err := c.resetScript.Run(ctx, c.rdb, []string{sessionIndexKey(sessionID)}).Result(); err != nil {
		return fmt.Errorf("reset session script failed: %w", err)
	}
	return nil
}

// SeedAggregate initializes a live aggregate hash from an authoritative row
// (used after ResetSession during cache repair).
func (c *Client) SeedAggregate(ctx context.Context, agg *models.ProductAggregate) error {
	key := aggregateKey(agg.SessionID, agg.Key())

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "qty", agg.CountedQty)
	pipe.HSet(ctx, key, "liters_ml", litersToMl(agg.CountedLiters))
	pipe.HSet(ctx, key, "events", agg.EventCount)
	pipe.SAdd(ctx, sessionIndexKey(agg.SessionID), key)

	_, err := pipe.Exec(ctx)
	return err
}
