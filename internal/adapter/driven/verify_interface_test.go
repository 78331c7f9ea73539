package driven

import (
	port "github.com/alorle/guide-resolver/internal/port/driven"
)

// Compile-time check that GuideJSONFetcher implements GuideFetcher interface
var _ port.GuideFetcher = (*GuideJSONFetcher)(nil)

// Compile-time check that CacheBoltDBStore implements CacheStore interface
var _ port.CacheStore = (*CacheBoltDBStore)(nil)

// Compile-time check that CacheRedisStore implements CacheStore interface
var _ port.CacheStore = (*CacheRedisStore)(nil)
