// Package cache keeps computed payloads per key for a fixed TTL and keeps
// serving the last good payload when a refresh fails.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alorle/guide-resolver/internal/metrics"
	"github.com/alorle/guide-resolver/internal/port/driven"
)

const (
	// DefaultTTL is how long an entry is served without recomputing it.
	DefaultTTL = time.Hour

	storeTimeout = 5 * time.Second
)

// Entry is a cached payload with the time it was produced.
type Entry[T any] struct {
	Key       string
	Payload   T
	FetchedAt time.Time
}

// Age returns how old the entry is at now.
func (e Entry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Config configures a Manager. Store is optional; without it entries live
// only in memory.
type Config struct {
	TTL    time.Duration
	Store  driven.CacheStore
	Logger *slog.Logger
	Now    func() time.Time
}

// Manager is a TTL cache with stale-on-failure semantics. Expired entries
// are never evicted; they are replaced by the next successful computation.
type Manager[T any] struct {
	ttl    time.Duration
	store  driven.CacheStore
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry[T]
	flights singleflight.Group
}

// New creates a Manager. Zero config values fall back to DefaultTTL,
// slog.Default and time.Now.
func New[T any](cfg Config) *Manager[T] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager[T]{
		ttl:     cfg.TTL,
		store:   cfg.Store,
		logger:  cfg.Logger,
		now:     cfg.Now,
		entries: make(map[string]Entry[T]),
	}
}

// TTL returns the freshness window.
func (m *Manager[T]) TTL() time.Duration {
	return m.ttl
}

// GetOrCompute returns the fresh payload for key, or runs compute to replace
// it. If compute fails and any earlier payload exists, that payload is
// returned instead of the error. Concurrent callers for the same key share a
// single compute call, which runs detached from the caller's cancellation.
func (m *Manager[T]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (T, error)) (T, error) {
	if entry, ok := m.lookup(ctx, key); ok && m.fresh(entry) {
		metrics.RecordCacheLookup("fresh")
		return entry.Payload, nil
	}

	result, err, _ := m.flights.Do(key, func() (any, error) {
		if entry, ok := m.Peek(key); ok && m.fresh(entry) {
			return entry.Payload, nil
		}

		payload, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		m.Put(ctx, key, payload)
		return payload, nil
	})
	if err == nil {
		metrics.RecordCacheLookup("miss")
		return result.(T), nil
	}

	if prior, ok := m.Peek(key); ok {
		metrics.RecordCacheLookup("stale")
		m.logger.Warn("serving stale cache entry",
			"key", key,
			"fetched_at", prior.FetchedAt.Format(time.RFC3339),
			"age", prior.Age(m.now()).String(),
			"error", err,
		)
		return prior.Payload, nil
	}

	metrics.RecordCacheLookup("error")
	var zero T
	return zero, err
}

// Put records payload under key as of now, replacing any prior entry.
func (m *Manager[T]) Put(ctx context.Context, key string, payload T) {
	entry := Entry[T]{Key: key, Payload: payload, FetchedAt: m.now()}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()

	if m.store != nil {
		m.persist(ctx, entry)
	}
}

// Peek returns the in-memory entry for key without side effects.
func (m *Manager[T]) Peek(key string) (Entry[T], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	return entry, ok
}

func (m *Manager[T]) fresh(entry Entry[T]) bool {
	return entry.Age(m.now()) < m.ttl
}

// lookup checks memory, then the persistent store. A store hit is copied
// into memory so it can back stale serving.
func (m *Manager[T]) lookup(ctx context.Context, key string) (Entry[T], bool) {
	if entry, ok := m.Peek(key); ok {
		return entry, true
	}
	if m.store == nil {
		return Entry[T]{}, false
	}

	entry, err := m.restore(ctx, key)
	if err != nil {
		if !errors.Is(err, driven.ErrCacheRecordNotFound) {
			metrics.RecordCacheStoreError("load")
			m.logger.Warn("failed to load cache entry from store", "key", key, "error", err)
		}
		return Entry[T]{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.entries[key]; ok {
		return current, true
	}
	m.entries[key] = entry
	return entry, true
}

func (m *Manager[T]) restore(ctx context.Context, key string) (Entry[T], error) {
	rec, err := m.store.Load(ctx, key)
	if err != nil {
		return Entry[T]{}, err
	}

	var payload T
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return Entry[T]{}, fmt.Errorf("decoding cached payload: %w", err)
	}
	return Entry[T]{Key: key, Payload: payload, FetchedAt: rec.FetchedAt}, nil
}

func (m *Manager[T]) persist(ctx context.Context, entry Entry[T]) {
	data, err := json.Marshal(entry.Payload)
	if err != nil {
		metrics.RecordCacheStoreError("encode")
		m.logger.Warn("failed to encode cache entry", "key", entry.Key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	rec := driven.CacheRecord{Key: entry.Key, Payload: data, FetchedAt: entry.FetchedAt}
	if err := m.store.Save(ctx, rec); err != nil {
		metrics.RecordCacheStoreError("save")
		m.logger.Warn("failed to persist cache entry", "key", entry.Key, "error", err)
	}
}
