package application

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alorle/guide-resolver/internal/cache"
	"github.com/alorle/guide-resolver/internal/guide"
	"github.com/alorle/guide-resolver/internal/metrics"
	"github.com/alorle/guide-resolver/internal/port/driven"
)

const (
	// DefaultFetchTimeout bounds a single upstream guide fetch.
	DefaultFetchTimeout = 15 * time.Second
	// DefaultConcurrency is how many countries ResolveAll works on at once.
	DefaultConcurrency = 3

	cacheKeyPrefix = "epg-"
)

// GuideCache is the cache the resolver reads and writes country guides through.
type GuideCache = cache.Manager[[]guide.ChannelGuide]

// ResolverConfig configures a GuideResolver. Zero values use defaults.
type ResolverConfig struct {
	FetchTimeout time.Duration
	Concurrency  int
	Fallback     guide.Synthesizer
	Now          func() time.Time
}

// GuideResolver produces a complete guide for every requested channel,
// combining cached results, upstream data and synthesized schedules.
// It never returns an error to its callers.
type GuideResolver struct {
	fetcher      driven.GuideFetcher
	cache        *GuideCache
	fallback     guide.Synthesizer
	fetchTimeout time.Duration
	concurrency  int
	now          func() time.Time
	logger       *slog.Logger
}

// NewGuideResolver creates a resolver. A nil cache gets a fresh in-memory
// cache with the default TTL.
func NewGuideResolver(fetcher driven.GuideFetcher, guides *GuideCache, cfg ResolverConfig, logger *slog.Logger) *GuideResolver {
	if logger == nil {
		logger = slog.Default()
	}
	if guides == nil {
		guides = cache.New[[]guide.ChannelGuide](cache.Config{Logger: logger, Now: cfg.Now})
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &GuideResolver{
		fetcher:      fetcher,
		cache:        guides,
		fallback:     cfg.Fallback,
		fetchTimeout: cfg.FetchTimeout,
		concurrency:  cfg.Concurrency,
		now:          cfg.Now,
		logger:       logger,
	}
}

// CacheKey returns the cache key for a country. Names differing only in case
// or surrounding space share a key.
func CacheKey(country string) string {
	return cacheKeyPrefix + guide.CanonicalCountry(country)
}

// ResolveCountry returns one guide per channel, in input order. Countries
// without a guide source get fallback guides that are neither fetched nor
// cached, so arbitrary names cannot grow the cache.
func (r *GuideResolver) ResolveCountry(ctx context.Context, country string, channels []guide.Channel) []guide.ChannelGuide {
	label := r.countryLabel(country)
	start := time.Now()
	defer func() {
		metrics.ObserveResolve(label, time.Since(start))
	}()

	if len(channels) == 0 {
		return []guide.ChannelGuide{}
	}

	if label == metrics.UnconfiguredCountry {
		r.logger.Info("no guide source for country, using fallback", "country", country)
		metrics.RecordCountryFallback(label, guide.FetchNotConfigured.String())
		return r.fallbackAll(channels)
	}

	key := CacheKey(country)
	guides, err := r.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]guide.ChannelGuide, error) {
		return r.compute(ctx, country, label, channels)
	})
	if err != nil {
		r.logger.Warn("guide source unavailable and nothing cached, using fallback",
			"country", country,
			"channels", len(channels),
			"error", err,
		)
		metrics.RecordCountryFallback(label, guide.FetchSourceUnavailable.String())
		guides = r.fallbackAll(channels)
		r.cache.Put(ctx, key, guides)
		return guides
	}

	return r.align(channels, guides)
}

// ResolveAll resolves every country with at most Concurrency countries in
// flight. A country whose resolution panics gets fallback guides; the rest of
// the batch is unaffected.
func (r *GuideResolver) ResolveAll(ctx context.Context, channelsByCountry map[string][]guide.Channel) map[string][]guide.ChannelGuide {
	results := make(map[string][]guide.ChannelGuide, len(channelsByCountry))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for _, country := range slices.Sorted(maps.Keys(channelsByCountry)) {
		channels := channelsByCountry[country]
		g.Go(func() error {
			guides := r.resolveIsolated(ctx, country, channels)

			mu.Lock()
			results[country] = guides
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *GuideResolver) resolveIsolated(ctx context.Context, country string, channels []guide.Channel) (guides []guide.ChannelGuide) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("country resolution failed, using fallback",
				"country", country,
				"panic", fmt.Sprint(p),
			)
			metrics.RecordCountryFallback(r.countryLabel(country), "resolution_failed")
			guides = r.fallbackAll(channels)
		}
	}()
	return r.ResolveCountry(ctx, country, channels)
}

// countryLabel is the metric label for country: its canonical name when it has
// a guide source, metrics.UnconfiguredCountry otherwise.
func (r *GuideResolver) countryLabel(country string) string {
	if !r.fetcher.Configured(country) {
		return metrics.UnconfiguredCountry
	}
	return guide.CanonicalCountry(country)
}

// compute fetches and matches. Only an unavailable source is returned as an
// error, so the cache can fall back to a stale payload.
func (r *GuideResolver) compute(ctx context.Context, country, label string, channels []guide.Channel) ([]guide.ChannelGuide, error) {
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	result := r.fetcher.FetchGuide(ctx, country)

	switch result.Status {
	case guide.FetchNotConfigured:
		r.logger.Info("no guide source for country, using fallback", "country", country)
		metrics.RecordCountryFallback(label, guide.FetchNotConfigured.String())
		return r.fallbackAll(channels), nil

	case guide.FetchSourceUnavailable:
		return nil, result.Err

	case guide.FetchOK:
		if len(result.Channels) == 0 {
			r.logger.Info("upstream guide has no channels, using fallback", "country", country)
			metrics.RecordCountryFallback(label, "empty_document")
			return r.fallbackAll(channels), nil
		}
		return r.matchAll(country, label, channels, result.Channels), nil

	default:
		return nil, fmt.Errorf("unknown fetch status %d for %s", result.Status, country)
	}
}

func (r *GuideResolver) matchAll(country, label string, channels []guide.Channel, upstream []guide.UpstreamChannel) []guide.ChannelGuide {
	now := r.now()
	guides := make([]guide.ChannelGuide, len(channels))
	matched := 0

	for i, ch := range channels {
		candidate, strategy, ok := guide.Match(ch, upstream)
		if ok {
			if programs := guide.ConvertProgrammes(candidate, guide.MaxPrograms); len(programs) > 0 {
				r.logger.Debug("matched channel",
					"country", country,
					"channel", ch.DisplayName(),
					"upstream_id", candidate.UpstreamID,
					"strategy", strategy.String(),
				)
				guides[i] = guide.NewChannelGuide(ch, programs)
				metrics.RecordChannelResolution(label, "upstream")
				matched++
				continue
			}
		}

		guides[i] = r.fallback.Guide(ch, now)
		metrics.RecordChannelResolution(label, "fallback")
	}

	r.logger.Info("resolved country guide",
		"country", country,
		"channels", len(channels),
		"matched", matched,
		"fallback", len(channels)-matched,
		"upstream_channels", len(upstream),
	)
	return guides
}

func (r *GuideResolver) fallbackAll(channels []guide.Channel) []guide.ChannelGuide {
	now := r.now()
	guides := make([]guide.ChannelGuide, len(channels))
	for i, ch := range channels {
		guides[i] = r.fallback.Guide(ch, now)
	}
	return guides
}

// align maps a cached payload, keyed per country only, onto the requested
// channel list. Channels absent from the payload get a fallback schedule.
func (r *GuideResolver) align(channels []guide.Channel, cached []guide.ChannelGuide) []guide.ChannelGuide {
	byID := make(map[string]guide.ChannelGuide, len(cached))
	for _, g := range cached {
		if _, seen := byID[g.ChannelID()]; !seen {
			byID[g.ChannelID()] = g
		}
	}

	now := r.now()
	out := make([]guide.ChannelGuide, len(channels))
	for i, ch := range channels {
		g, ok := byID[ch.ID()]
		if !ok || g.Len() == 0 {
			out[i] = r.fallback.Guide(ch, now)
			continue
		}
		if g.ChannelName() != ch.DisplayName() {
			g = guide.NewChannelGuide(ch, g.Programs())
		}
		out[i] = g
	}
	return out
}
