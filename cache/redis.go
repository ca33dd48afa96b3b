package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"flowermarket-svc/config"
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ProductTTL     = 5 * time.Minute
	UnreadCountTTL = 30 * time.Second

	// GenerationTTL outlives any read-then-set window by a wide margin.
	GenerationTTL = 24 * time.Hour
)

// ErrMiss is returned for absent keys and when caching is disabled.
var ErrMiss = errors.New("cache miss")

var errStaleGeneration = errors.New("count generation changed")

// InitRedis returns nil when no host is configured; every Cache method
// treats a nil client as an always-missing cache.
func InitRedis(cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.RedisHost == "" {
		logger.Info("Redis disabled, caching off")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

type Cache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func New(rdb *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{rdb: rdb, logger: logger}
}

func ProductKey(id int) string {
	return "product:" + strconv.Itoa(id)
}

func UnreadUserKey(userID string) string {
	return "notifications:unread:user:" + userID
}

const UnreadBroadcastKey = "notifications:unread:broadcast"

func (c *Cache) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	data, err := c.get(ctx, ProductKey(id))
	middleware.RecordCacheLookup("product", err == nil)
	if err != nil {
		return nil, err
	}
	var p models.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Cache) SetProduct(ctx context.Context, p *models.Product) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	c.set(ctx, ProductKey(p.ID), data, ProductTTL)
}

func (c *Cache) InvalidateProduct(ctx context.Context, id int) {
	c.del(ctx, ProductKey(id))
}

func generationKey(key string) string {
	return key + ":gen"
}

// GetCount returns the cached count for key. On a miss it still reports the
// key's current generation, which the caller hands back to SetCount once it
// has loaded the value from the database.
func (c *Cache) GetCount(ctx context.Context, key string) (int, int64, error) {
	if c == nil || c.rdb == nil {
		return 0, 0, ErrMiss
	}
	values, err := c.rdb.MGet(ctx, key, generationKey(key)).Result()
	if err != nil {
		c.logger.Warn("Redis get failed", zap.String("key", key), zap.Error(err))
		middleware.RecordCacheLookup("unread_count", false)
		return 0, 0, ErrMiss
	}

	var gen int64
	if raw, ok := values[1].(string); ok {
		gen, _ = strconv.ParseInt(raw, 10, 64)
	}
	raw, ok := values[0].(string)
	middleware.RecordCacheLookup("unread_count", ok)
	if !ok {
		return 0, gen, ErrMiss
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, gen, ErrMiss
	}
	return count, gen, nil
}

// SetCount stores count unless key was invalidated after gen was read. The
// generation key is watched, so an invalidation racing the write aborts it.
func (c *Cache) SetCount(ctx context.Context, key string, count int, gen int64) {
	if c == nil || c.rdb == nil {
		return
	}
	genKey := generationKey(key)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, strconv.Itoa(count), UnreadCountTTL)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("Skipped stale unread count", zap.String("key", key))
	default:
		c.logger.Warn("Redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateCount bumps the key's generation and drops the cached value in
// one transaction.
func (c *Cache) InvalidateCount(ctx context.Context, key string) {
	if c == nil || c.rdb == nil {
		return
	}
	genKey := generationKey(key)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, GenerationTTL)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		c.logger.Warn("Redis invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) InvalidateUnread(ctx context.Context, n models.Notification) {
	if n.UserID != nil {
		c.InvalidateCount(ctx, UnreadUserKey(*n.UserID))
		return
	}
	if n.IsBroadcast() {
		c.InvalidateCount(ctx, UnreadBroadcastKey)
	}
}

// Deliver drops the unread counters touched by freshly committed notes.
func (c *Cache) Deliver(ctx context.Context, notes []models.Notification) {
	for _, n := range notes {
		c.InvalidateUnread(ctx, n)
	}
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, error) {
	if c == nil || c.rdb == nil {
		return nil, ErrMiss
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		c.logger.Warn("Redis get failed", zap.String("key", key), zap.Error(err))
		return nil, ErrMiss
	}
	return data, nil
}

func (c *Cache) set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("Redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) del(ctx context.Context, key string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("Redis delete failed", zap.String("key", key), zap.Error(err))
	}
}
