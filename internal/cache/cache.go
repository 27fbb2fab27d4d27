package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// batchGetChunk bounds the number of keys fetched per MGET.
const batchGetChunk = 100

// EmbeddingCache is the content-addressed store mapping (controlKey,
// modelVersion) to a vector. Writes are idempotent: embeddings are
// deterministic for a given text and model version, so last-write-wins is
// safe under concurrent writers. Implementations must be safe for concurrent use.
type EmbeddingCache interface {
	Get(ctx context.Context, controlKey, modelVersion string) ([]float32, bool, error)
	Put(ctx context.Context, controlKey, modelVersion string, vector []float32) error
	// BatchGet resolves many keys at once; keys that cannot be served (absent,
	// corrupt, or lost to a chunk-level failure) are simply missing from the
	// result, since embeddings are lazily regenerable.
	BatchGet(ctx context.Context, controlKeys []string, modelVersion string) (map[string][]float32, error)
	Ping(ctx context.Context) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements EmbeddingCache using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, controlKey, modelVersion string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, EmbeddingKey(controlKey, modelVersion)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(raw)
	if err != nil {
		// A corrupt entry is a miss: the embedding will be regenerated and
		// the entry overwritten.
		return nil, false, nil
	}
	return vec, true, nil
}

func (c *RedisCache) Put(ctx context.Context, controlKey, modelVersion string, vector []float32) error {
	normalized := Normalize(vector)
	raw, err := encodeVector(normalized, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("encode embedding %s: %w", controlKey, err)
	}
	return c.client.Set(ctx, EmbeddingKey(controlKey, modelVersion), raw, 0).Err()
}

func (c *RedisCache) BatchGet(ctx context.Context, controlKeys []string, modelVersion string) (map[string][]float32, error) {
	result := make(map[string][]float32, len(controlKeys))

	for start := 0; start < len(controlKeys); start += batchGetChunk {
		end := start + batchGetChunk
		if end > len(controlKeys) {
			end = len(controlKeys)
		}
		chunk := controlKeys[start:end]

		redisKeys := make([]string, len(chunk))
		for i, ck := range chunk {
			redisKeys[i] = EmbeddingKey(ck, modelVersion)
		}

		values, err := c.client.MGet(ctx, redisKeys...).Result()
		if err != nil {
			// Degrade the whole chunk to misses rather than failing the call.
			continue
		}
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			vec, err := decodeVector([]byte(s))
			if err != nil {
				continue
			}
			result[chunk[i]] = vec
		}
	}
	return result, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

var _ EmbeddingCache = (*RedisCache)(nil)
