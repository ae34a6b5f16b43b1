package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"docredact/internal/logger"
)

// ResultStore persists encoded page results by key.
type ResultStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore is a ResultStore backed by Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL (redis://host:port/db) and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	const op = "NewRedisStore"

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, fmt.Sprintf("failed to parse Redis URL: %v", err))
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, WrapOCRError(op, err, "failed to connect to Redis")
	}

	return &RedisStore{client: client}, nil
}

// Get implements ResultStore.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set implements ResultStore.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// CachedEngine serves repeated pages from a ResultStore instead of the wrapped engine.
// Pages are keyed by engine name, language hints and the SHA-256 of the encoded image.
// Store failures degrade to a cache miss.
type CachedEngine struct {
	engine Engine
	store  ResultStore
	ttl    time.Duration
	log    zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEngine wraps engine with store; ttl of zero keeps entries forever.
func NewCachedEngine(engine Engine, store ResultStore, ttl time.Duration) *CachedEngine {
	return &CachedEngine{
		engine: engine,
		store:  store,
		ttl:    ttl,
		log:    logger.WithComponent("ocr-cache"),
	}
}

// Name implements Engine.
func (c *CachedEngine) Name() string { return c.engine.Name() }

// Recognize implements Engine.
func (c *CachedEngine) Recognize(ctx context.Context, in Input) (*PageResult, error) {
	key := cacheKey(c.engine.Name(), in)

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("OCR cache lookup failed")
	}
	if found {
		var cached PageResult
		if err := json.Unmarshal(data, &cached); err == nil {
			c.hits.Add(1)
			cached.Page = in.PageIndex
			c.log.Debug().Str("document", in.ID).Int("page", in.PageIndex).Msg("OCR cache hit")
			return &cached, nil
		}
		c.log.Warn().Str("key", key).Msg("Discarding corrupt OCR cache entry")
	}

	c.misses.Add(1)
	result, err := c.engine.Recognize(ctx, in)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(result)
	if err == nil {
		err = c.store.Set(ctx, key, encoded, c.ttl)
	}
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to store OCR result")
	}

	return result, nil
}

// Stats returns the cache hit and miss counts.
func (c *CachedEngine) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func cacheKey(engine string, in Input) string {
	sum := sha256.Sum256(in.Image)
	return fmt.Sprintf("ocr:%s:%s:%s", engine, strings.Join(in.Languages, "+"), hex.EncodeToString(sum[:]))
}
