package driven

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	port "github.com/alorle/guide-resolver/internal/port/driven"
)

const (
	guideCacheBucket = "guide_cache"
)

// CacheBoltDBStore implements the CacheStore port using BoltDB.
type CacheBoltDBStore struct {
	db *bbolt.DB
}

// NewCacheBoltDBStore creates a BoltDB-backed cache store.
// It initializes the required bucket if it doesn't exist.
func NewCacheBoltDBStore(db *bbolt.DB) (*CacheBoltDBStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(guideCacheBucket))
		return err
	})
	if err != nil {
		return nil, err
	}

	return &CacheBoltDBStore{db: db}, nil
}

// cacheRecordDTO is used for JSON serialization.
type cacheRecordDTO struct {
	Payload   json.RawMessage `json:"payload"`
	FetchedAt string          `json:"fetched_at"`
}

func encodeCacheRecord(rec port.CacheRecord) ([]byte, error) {
	payload := rec.Payload
	if !json.Valid(payload) {
		return nil, fmt.Errorf("cache payload for %q is not valid JSON", rec.Key)
	}
	return json.Marshal(cacheRecordDTO{
		Payload:   payload,
		FetchedAt: rec.FetchedAt.UTC().Format(time.RFC3339Nano),
	})
}

func decodeCacheRecord(key string, data []byte) (port.CacheRecord, error) {
	var dto cacheRecordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return port.CacheRecord{}, fmt.Errorf("decoding cache record %q: %w", key, err)
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, dto.FetchedAt)
	if err != nil {
		return port.CacheRecord{}, fmt.Errorf("decoding cache record %q timestamp: %w", key, err)
	}
	return port.CacheRecord{Key: key, Payload: []byte(dto.Payload), FetchedAt: fetchedAt}, nil
}

// Load retrieves the record stored under key.
func (s *CacheBoltDBStore) Load(ctx context.Context, key string) (port.CacheRecord, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(guideCacheBucket))
		v := b.Get([]byte(key))
		if v == nil {
			return port.ErrCacheRecordNotFound
		}
		// v is only valid for the life of the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return port.CacheRecord{}, err
	}
	return decodeCacheRecord(key, data)
}

// Save stores rec, replacing any existing record for the key.
func (s *CacheBoltDBStore) Save(ctx context.Context, rec port.CacheRecord) error {
	if rec.Key == "" {
		return errors.New("cache key cannot be empty")
	}
	data, err := encodeCacheRecord(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(guideCacheBucket)).Put([]byte(rec.Key), data)
	})
}

// Ping checks if the database is accessible.
func (s *CacheBoltDBStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(guideCacheBucket)) == nil {
			return errors.New("guide cache bucket missing")
		}
		return nil
	})
}
