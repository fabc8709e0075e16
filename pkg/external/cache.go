package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/symptom-assessment-server/internal/domain"
)

// EvidenceCache keeps search results in an in-memory LRU (hot) and,
// when configured, Redis (warm).
type EvidenceCache struct {
	memory   *expirable.LRU[string, []domain.EvidenceRecord]
	redis    *redis.Client
	redisTTL time.Duration
	logger   *logrus.Logger

	statsMu sync.Mutex
	stats   CacheStats
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	RedisHits    int64 `json:"redis_hits"`
	RedisMisses  int64 `json:"redis_misses"`
	Stores       int64 `json:"stores"`
}

// cachedEvidence is the Redis envelope
type cachedEvidence struct {
	Data      json.RawMessage `json:"data"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// NewEvidenceCache creates the cache. The Redis tier is enabled only when
// config.RedisURL is set, and must answer a ping.
func NewEvidenceCache(config domain.CacheConfig, logger *logrus.Logger) (*EvidenceCache, error) {
	if config.MemorySize <= 0 {
		config.MemorySize = 500
	}
	if config.MemoryTTL <= 0 {
		config.MemoryTTL = time.Hour
	}
	if config.RedisTTL <= 0 {
		config.RedisTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}

	cache := &EvidenceCache{
		memory:   expirable.NewLRU[string, []domain.EvidenceRecord](config.MemorySize, nil, config.MemoryTTL),
		redisTTL: config.RedisTTL,
		logger:   logger,
	}

	if config.RedisURL == "" {
		return cache, nil
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache.redis = client
	return cache, nil
}

// CacheKey derives a stable key for a search
func CacheKey(source domain.EvidenceSourceName, query domain.RefinedQuery, maxResults int) string {
	data := fmt.Sprintf("%s|%s|%s|%d", source, query.Terms, strings.Join(query.Symptoms, ","), maxResults)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("evidence:%s:%x", source, hash[:8])
}

// Get returns cached records, promoting Redis hits into memory
func (c *EvidenceCache) Get(ctx context.Context, key string) ([]domain.EvidenceRecord, bool) {
	if records, ok := c.memory.Get(key); ok {
		c.count(func(s *CacheStats) { s.MemoryHits++ })
		return records, true
	}
	c.count(func(s *CacheStats) { s.MemoryMisses++ })

	if c.redis == nil {
		return nil, false
	}

	records, ok := c.getFromRedis(ctx, key)
	if !ok {
		c.count(func(s *CacheStats) { s.RedisMisses++ })
		return nil, false
	}
	c.count(func(s *CacheStats) { s.RedisHits++ })
	c.memory.Add(key, records)
	return records, true
}

func (c *EvidenceCache) getFromRedis(ctx context.Context, key string) ([]domain.EvidenceRecord, bool) {
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis cache read failed")
		return nil, false
	}

	var cached cachedEvidence
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false
	}

	records, err := domain.UnmarshalEvidence(cached.Data)
	if err != nil {
		c.redis.Del(ctx, key)
		return nil, false
	}
	return records, true
}

// Set stores records in every tier. Results carrying a SourceError are never
// stored so a transient outage is not replayed.
func (c *EvidenceCache) Set(ctx context.Context, key string, records []domain.EvidenceRecord) {
	if _, failed := domain.FirstSourceError(records); failed || len(records) == 0 {
		return
	}
	c.memory.Add(key, records)
	c.count(func(s *CacheStats) { s.Stores++ })

	if c.redis == nil {
		return
	}

	data, err := domain.MarshalEvidence(records)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode evidence for cache")
		return
	}
	now := time.Now()
	payload, err := json.Marshal(cachedEvidence{
		Data:      data,
		CachedAt:  now,
		ExpiresAt: now.Add(c.redisTTL),
	})
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode cache envelope")
		return
	}
	if err := c.redis.Set(ctx, key, payload, c.redisTTL).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis cache write failed")
	}
}

// Len reports the number of entries held in memory
func (c *EvidenceCache) Len() int {
	return c.memory.Len()
}

// Stats returns a snapshot of hit/miss counters
func (c *EvidenceCache) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Ping checks the Redis tier when one is configured
func (c *EvidenceCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close releases the Redis connection
func (c *EvidenceCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func (c *EvidenceCache) count(update func(*CacheStats)) {
	c.statsMu.Lock()
	update(&c.stats)
	c.statsMu.Unlock()
}

// CachedSource serves repeated searches from an EvidenceCache
type CachedSource struct {
	source domain.EvidenceSource
	cache  *EvidenceCache
}

// NewCachedSource wraps source with cache
func NewCachedSource(source domain.EvidenceSource, cache *EvidenceCache) *CachedSource {
	return &CachedSource{source: source, cache: cache}
}

// Name implements domain.EvidenceSource
func (s *CachedSource) Name() domain.EvidenceSourceName {
	return s.source.Name()
}

// Search implements domain.EvidenceSource
func (s *CachedSource) Search(ctx context.Context, query domain.RefinedQuery, maxResults int) []domain.EvidenceRecord {
	key := CacheKey(s.source.Name(), query, maxResults)
	if records, ok := s.cache.Get(ctx, key); ok {
		return records
	}
	records := s.source.Search(ctx, query, maxResults)
	s.cache.Set(ctx, key, records)
	return records
}
