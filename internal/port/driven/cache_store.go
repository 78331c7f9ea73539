package driven

import (
	"context"
	"errors"
	"time"
)

// ErrCacheRecordNotFound is returned by CacheStore.Load for unknown keys.
var ErrCacheRecordNotFound = errors.New("cache record not found")

// CacheRecord is a serialized cache entry.
type CacheRecord struct {
	Key       string
	Payload   []byte
	FetchedAt time.Time
}

// CacheStore persists cache entries beyond the life of the process.
// This is a driven port implemented by concrete adapters (e.g., BoltDB, Redis).
type CacheStore interface {
	// Load returns the record for key or ErrCacheRecordNotFound.
	Load(ctx context.Context, key string) (CacheRecord, error)

	// Save stores rec, replacing any record with the same key.
	Save(ctx context.Context, rec CacheRecord) error

	// Ping checks if the store is accessible and operational.
	Ping(ctx context.Context) error
}
