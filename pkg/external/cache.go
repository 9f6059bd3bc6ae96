package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pharmaguard-server/internal/domain"
)

// CacheClient wraps Redis with caching for generated explanations. The same
// (drug, gene, diplotype, phenotype, risk) tuple always yields the same
// narrative intent, so cached entries stay valid for the full TTL.
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient creates a new cache client and verifies connectivity.
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CacheClient{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// CachedExplanation represents a cached explanation with metadata.
type CachedExplanation struct {
	Data      *domain.Explanation `json:"data"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// GetExplanation retrieves a cached explanation. The bool reports a hit.
func (c *CacheClient) GetExplanation(ctx context.Context, req *domain.ExplanationRequest) (*domain.Explanation, bool, error) {
	key := c.generateExplanationKey(req)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get explanation cache: %w", err)
	}

	var cached CachedExplanation
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetExplanation caches an explanation. A zero ttl uses the default.
func (c *CacheClient) SetExplanation(ctx context.Context, req *domain.ExplanationRequest, data *domain.Explanation, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	key := c.generateExplanationKey(req)

	cached := CachedExplanation{
		Data:      data,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal explanation cache data: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, ttl).Err()
}

// Ping checks if the Redis connection is alive.
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *CacheClient) Close() error {
	return c.redis.Close()
}

// generateExplanationKey creates a standardized cache key for one analysis.
func (c *CacheClient) generateExplanationKey(req *domain.ExplanationRequest) string {
	return explanationKey(req)
}

// explanationKey hashes the identifying fields of one analysis into a cache
// key. Variant genotypes participate so that different detected variants
// never share a narrative. Shared by the Redis and in-memory tiers.
func explanationKey(req *domain.ExplanationRequest) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s", req.Drug, req.Gene, req.Diplotype, req.Phenotype, req.RiskLabel)
	for _, v := range req.Variants {
		data += fmt.Sprintf(":%s=%s", v.RSID, v.Genotype)
	}

	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("explanation:%x", hash[:8])
}
