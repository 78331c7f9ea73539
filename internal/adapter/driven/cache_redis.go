package driven

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	port "github.com/alorle/guide-resolver/internal/port/driven"
)

const defaultRedisPrefix = "guide-resolver:"

// CacheRedisStore implements the CacheStore port on Redis so several
// resolver instances share stale payloads. Keys never expire; the cache
// manager decides freshness from the stored timestamp.
type CacheRedisStore struct {
	client *redis.Client
	prefix string
}

// NewCacheRedisStore parses a redis:// URL and creates a store. An empty
// prefix defaults to "guide-resolver:".
func NewCacheRedisStore(redisURL, prefix string) (*CacheRedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("redis url cannot be empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewCacheRedisStoreWithClient(redis.NewClient(opts), prefix)
}

// NewCacheRedisStoreWithClient wraps an existing client.
func NewCacheRedisStoreWithClient(client *redis.Client, prefix string) (*CacheRedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &CacheRedisStore{client: client, prefix: prefix}, nil
}

func (s *CacheRedisStore) key(k string) string {
	return s.prefix + k
}

// Load retrieves the record stored under key.
func (s *CacheRedisStore) Load(ctx context.Context, key string) (port.CacheRecord, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return port.CacheRecord{}, port.ErrCacheRecordNotFound
	}
	if err != nil {
		return port.CacheRecord{}, fmt.Errorf("redis get %q: %w", key, err)
	}
	return decodeCacheRecord(key, data)
}

// Save stores rec without expiry.
func (s *CacheRedisStore) Save(ctx context.Context, rec port.CacheRecord) error {
	if rec.Key == "" {
		return errors.New("cache key cannot be empty")
	}
	data, err := encodeCacheRecord(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(rec.Key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", rec.Key, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *CacheRedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *CacheRedisStore) Close() error {
	return s.client.Close()
}
