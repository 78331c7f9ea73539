package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alorle/guide-resolver/internal/cache"
	"github.com/alorle/guide-resolver/internal/guide"
	"github.com/alorle/guide-resolver/internal/metrics"
)

// mockGuideFetcher returns whatever fetchFunc produces and counts calls.
// Every country is configured unless configuredFunc says otherwise.
type mockGuideFetcher struct {
	fetchFunc      func(ctx context.Context, country string) guide.FetchResult
	configuredFunc func(country string) bool
	calls          atomic.Int32
}

func (m *mockGuideFetcher) FetchGuide(ctx context.Context, country string) guide.FetchResult {
	m.calls.Add(1)
	return m.fetchFunc(ctx, country)
}

func (m *mockGuideFetcher) Configured(country string) bool {
	if m.configuredFunc == nil {
		return true
	}
	return m.configuredFunc(country)
}

func fetcherReturning(result guide.FetchResult) *mockGuideFetcher {
	return &mockGuideFetcher{fetchFunc: func(context.Context, string) guide.FetchResult { return result }}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestResolver(fetcher *mockGuideFetcher, clock *testClock) *GuideResolver {
	guides := cache.New[[]guide.ChannelGuide](cache.Config{Now: clock.Now})
	return NewGuideResolver(fetcher, guides, ResolverConfig{Now: clock.Now}, nil)
}

func mustChannels(t *testing.T, pairs ...string) []guide.Channel {
	t.Helper()
	var channels []guide.Channel
	for i := 0; i+1 < len(pairs); i += 2 {
		ch, err := guide.NewChannel(pairs[i], pairs[i+1])
		if err != nil {
			t.Fatalf("NewChannel: %v", err)
		}
		channels = append(channels, ch)
	}
	return channels
}

func upstreamChannel(id string, count int, start time.Time) guide.UpstreamChannel {
	ch := guide.UpstreamChannel{UpstreamID: id}
	for i := range count {
		s := start.Add(time.Duration(i) * time.Hour)
		ch.Programmes = append(ch.Programmes, guide.UpstreamProgramme{
			Start: s.Format(time.RFC3339),
			Stop:  s.Add(time.Hour).Format(time.RFC3339),
			Title: fmt.Sprintf("%s show %d", id, i),
		})
	}
	return ch
}

func assertComplete(t *testing.T, channels []guide.Channel, guides []guide.ChannelGuide) {
	t.Helper()
	if len(guides) != len(channels) {
		t.Fatalf("expected %d guides, got %d", len(channels), len(guides))
	}
	for i, ch := range channels {
		if guides[i].ChannelID() != ch.ID() {
			t.Errorf("position %d: expected channel %q, got %q", i, ch.ID(), guides[i].ChannelID())
		}
		if n := guides[i].Len(); n < 1 || n > guide.MaxPrograms {
			t.Errorf("channel %q: expected 1..%d programs, got %d", ch.ID(), guide.MaxPrograms, n)
		}
	}
}

func titlesOf(g guide.ChannelGuide) []string {
	var out []string
	for _, p := range g.Programs() {
		out = append(out, p.Title())
	}
	return out
}

func TestGuideResolver_Completeness(t *testing.T) {
	clock := newTestClock()
	channels := mustChannels(t,
		"c1", "Sky Sports Main Event",
		"c2", "Totally Unknown Channel",
		"c3", "BBC One",
		"c4", "ESPN HD",
	)
	upstream := []guide.UpstreamChannel{
		upstreamChannel("skysports.mainevent.uk", 3, clock.Now()),
		upstreamChannel("bbc.one.uk", 20, clock.Now()),
	}

	tests := []struct {
		name   string
		result guide.FetchResult
	}{
		{"upstream ok", guide.Fetched(upstream)},
		{"empty document", guide.Fetched(nil)},
		{"not configured", guide.NotConfigured("UK")},
		{"source unavailable", guide.SourceUnavailable(errors.New("boom"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(fetcherReturning(tt.result), clock)
			guides := r.ResolveCountry(context.Background(), "UK", channels)
			assertComplete(t, channels, guides)
		})
	}
}

func TestGuideResolver_MatchedAndFallback(t *testing.T) {
	clock := newTestClock()
	channels := mustChannels(t, "c1", "BBC One", "c2", "Totally Unknown Channel", "c3", "ITV")
	upstream := []guide.UpstreamChannel{
		upstreamChannel("bbc.one.uk", 20, clock.Now()),
		upstreamChannel("itv.uk", 0, clock.Now()),
	}
	r := newTestResolver(fetcherReturning(guide.Fetched(upstream)), clock)

	guides := r.ResolveCountry(context.Background(), "UK", channels)

	if guides[0].Len() != guide.MaxPrograms {
		t.Errorf("expected upstream guide capped at %d, got %d", guide.MaxPrograms, guides[0].Len())
	}
	if got := guides[0].Programs()[0].Title(); got != "bbc.one.uk show 0" {
		t.Errorf("expected first upstream programme, got %q", got)
	}
	if guides[1].Len() != guide.DefaultFallbackSlots {
		t.Errorf("expected fallback for unmatched channel, got %d programs", guides[1].Len())
	}
	if guides[2].Len() != guide.DefaultFallbackSlots {
		t.Errorf("expected fallback for channel whose match has no programmes, got %d programs", guides[2].Len())
	}
	if guides[1].Programs()[0].Category() != guide.FallbackCategory {
		t.Errorf("expected fallback category, got %q", guides[1].Programs()[0].Category())
	}
}

func TestGuideResolver_InvalidProgrammesFallBack(t *testing.T) {
	clock := newTestClock()
	channels := mustChannels(t, "c1", "BBC One")
	upstream := []guide.UpstreamChannel{{
		UpstreamID: "bbc.one.uk",
		Programmes: []guide.UpstreamProgramme{{Start: "bad", Stop: "bad", Title: "Broken"}},
	}}
	r := newTestResolver(fetcherReturning(guide.Fetched(upstream)), clock)

	guides := r.ResolveCountry(context.Background(), "UK", channels)

	if guides[0].Len() != guide.DefaultFallbackSlots {
		t.Errorf("expected fallback when no programme converts, got %d programs", guides[0].Len())
	}
}

func TestGuideResolver_CacheFreshness(t *testing.T) {
	clock := newTestClock()
	channels := mustChannels(t, "c1", "BBC One")
	fetcher := fetcherReturning(guide.Fetched([]guide.UpstreamChannel{upstreamChannel("bbc.one.uk", 2, clock.Now())}))
	r := newTestResolver(fetcher, clock)
	ctx := context.Background()

	_ = r.ResolveCountry(ctx, "UK", channels)
	clock.Advance(30 * time.Minute)
	_ = r.ResolveCountry(ctx, "UK", channels)

	if fetcher.calls.Load() != 1 {
		t.Errorf("expected 1 upstream fetch within TTL, got %d", fetcher.calls.Load())
	}

	clock.Advance(31 * time.Minute)
	_ = r.ResolveCountry(ctx, "UK", channels)
	if fetcher.calls.Load() != 2 {
		t.Errorf("expected refetch after TTL, got %d fetches", fetcher.calls.Load())
	}
}

func TestGuideResolver_StaleOnFailure(t *testing.T) {
	clock := newTestClock()
	channels := mustChannels(t, "c1", "BBC One")
	var fail atomic.Bool
	fetcher := &mockGuideFetcher{fetchFunc: func(context.Context, string) guide.FetchResult {
		if fail.Load() {
			return guide.SourceUnavailable(errors.New("upstream down"))
		}
		return guide.Fetched([]guide.UpstreamChannel{upstreamChannel("bbc.one.uk", 5, clock.Now())})
	}}
	r := newTestResolver(fetcher, clock)
	ctx := context.Background()

	first := r.ResolveCountry(ctx, "UK", channels)

	fail.Store(true)
	clock.Advance(2 * time.Hour)
	second := r.ResolveCountry(ctx, "UK", channels)

	if fetcher.calls.Load() != 2 {
		t.Fatalf("expected a refresh attempt after TTL, got %d fetches", fetcher.calls.Load())
	}
	if fmt.Sprint(titlesOf(first[0])) != fmt.Sprint(titlesOf(second[0])) {
		t.Errorf("expected stale payload unchanged, got %v vs %v", titlesOf(first[0]), titlesOf(second[0]))
	}
	if second[0].Programs()[0].ID() != first[0].Programs()[0].ID() {
		t.Error("expected identical program ids from stale payload")
	}
}

func TestGuideResolver_UnavailableWithoutPriorIsCached(t *testing.T) {
	clock := newTestClock()
	channels := mustChannels(t, "c1", "BBC One", "c2", "ITV")
	fetcher := fetcherReturning(guide.SourceUnavailable(errors.New("down")))
	r := newTestResolver(fetcher, clock)
	ctx := context.Background()

	first := r.ResolveCountry(ctx, "UK", channels)
	assertComplete(t, channels, first)
	for _, g := range first {
		if g.Len() != guide.DefaultFallbackSlots {
			t.Errorf("expected fallback guide for %q, got %d programs", g.ChannelID(), g.Len())
		}
	}

	_ = r.ResolveCountry(ctx, "UK", channels)
	if fetcher.calls.Load() != 1 {
		t.Errorf("expected exhausted fallback to be cached, got %d fetches", fetcher.calls.Load())
	}
}

func TestGuideResolver_NoSourceCountry(t *testing.T) {
	clock := newTestClock()
	channels := mustChannels(t, "c1", "Globo", "c2", "SporTV", "c3", "ESPN Brasil")
	fetcher := fetcherReturning(guide.NotConfigured("Brazil"))
	fetcher.configuredFunc = func(string) bool { return false }
	r := newTestResolver(fetcher, clock)

	guides := r.ResolveCountry(context.Background(), "Brazil", channels)

	assertComplete(t, channels, guides)
	for _, g := range guides {
		if g.Len() != 8 {
			t.Errorf("expected 8 fallback programs for %q, got %d", g.ChannelID(), g.Len())
		}
	}
	if fetcher.calls.Load() != 0 {
		t.Errorf("expected no fetch for a country without a source, got %d", fetcher.calls.Load())
	}
}

func TestGuideResolver_UnconfiguredCountriesStayBounded(t *testing.T) {
	clock := newTestClock()
	fetcher := fetcherReturning(guide.NotConfigured(""))
	fetcher.configuredFunc = func(country string) bool { return country == "UK" }
	guides := cache.New[[]guide.ChannelGuide](cache.Config{Now: clock.Now})
	r := NewGuideResolver(fetcher, guides, ResolverConfig{Now: clock.Now}, nil)
	channels := mustChannels(t, "c1", "Globo")

	resolveSeries := testutil.CollectAndCount(metrics.ResolveDuration)
	fallbackSeries := testutil.CollectAndCount(metrics.CountryFallbacks)

	for i := range 500 {
		country := fmt.Sprintf("nowhere-%d", i)
		got := r.ResolveCountry(context.Background(), country, channels)
		assertComplete(t, channels, got)

		if _, ok := guides.Peek(CacheKey(country)); ok {
			t.Fatalf("expected %s not to be cached", country)
		}
	}

	if fetcher.calls.Load() != 0 {
		t.Errorf("expected no fetches for unconfigured countries, got %d", fetcher.calls.Load())
	}
	// At most the shared "unconfigured" series is added.
	if n := testutil.CollectAndCount(metrics.ResolveDuration); n > resolveSeries+1 {
		t.Errorf("resolve duration series grew from %d to %d", resolveSeries, n)
	}
	if n := testutil.CollectAndCount(metrics.CountryFallbacks); n > fallbackSeries+1 {
		t.Errorf("country fallback series grew from %d to %d", fallbackSeries, n)
	}
}

func TestGuideResolver_CountryCaseSharesCacheEntry(t *testing.T) {
	clock := newTestClock()
	fetcher := fetcherReturning(guide.Fetched([]guide.UpstreamChannel{upstreamChannel("bbc.one.uk", 4, clock.Now())}))
	r := newTestResolver(fetcher, clock)
	channels := mustChannels(t, "c1", "BBC One")

	for _, country := range []string{"UK", "uk", " Uk "} {
		guides := r.ResolveCountry(context.Background(), country, channels)
		if guides[0].Len() != 4 {
			t.Errorf("%q: expected upstream guide, got %d programs", country, guides[0].Len())
		}
	}

	if fetcher.calls.Load() != 1 {
		t.Errorf("expected one fetch shared across spellings, got %d", fetcher.calls.Load())
	}
}

func TestGuideResolver_AlignsCachedPayload(t *testing.T) {
	clock := newTestClock()
	fetcher := fetcherReturning(guide.Fetched([]guide.UpstreamChannel{upstreamChannel("bbc.one.uk", 4, clock.Now())}))
	r := newTestResolver(fetcher, clock)
	ctx := context.Background()

	_ = r.ResolveCountry(ctx, "UK", mustChannels(t, "c1", "BBC One"))

	channels := mustChannels(t, "c9", "Channel Nine", "c1", "BBC One HD")
	guides := r.ResolveCountry(ctx, "UK", channels)

	assertComplete(t, channels, guides)
	if fetcher.calls.Load() != 1 {
		t.Errorf("expected cached payload to be reused, got %d fetches", fetcher.calls.Load())
	}
	if guides[1].Len() != 4 {
		t.Errorf("expected cached upstream guide for c1, got %d programs", guides[1].Len())
	}
	if guides[1].ChannelName() != "BBC One HD" {
		t.Errorf("expected requested display name, got %q", guides[1].ChannelName())
	}
	if guides[0].Len() != guide.DefaultFallbackSlots {
		t.Errorf("expected fallback for channel missing from cache, got %d programs", guides[0].Len())
	}
}

func TestGuideResolver_FetchTimeout(t *testing.T) {
	clock := newTestClock()
	fetcher := &mockGuideFetcher{fetchFunc: func(ctx context.Context, _ string) guide.FetchResult {
		<-ctx.Done()
		return guide.SourceUnavailable(ctx.Err())
	}}
	guides := cache.New[[]guide.ChannelGuide](cache.Config{Now: clock.Now})
	r := NewGuideResolver(fetcher, guides, ResolverConfig{FetchTimeout: 20 * time.Millisecond, Now: clock.Now}, nil)
	channels := mustChannels(t, "c1", "BBC One")

	done := make(chan []guide.ChannelGuide, 1)
	go func() { done <- r.ResolveCountry(context.Background(), "UK", channels) }()

	select {
	case got := <-done:
		assertComplete(t, channels, got)
	case <-time.After(2 * time.Second):
		t.Fatal("ResolveCountry did not honour the fetch timeout")
	}
}

func TestGuideResolver_EmptyChannelList(t *testing.T) {
	fetcher := fetcherReturning(guide.Fetched(nil))
	r := newTestResolver(fetcher, newTestClock())

	guides := r.ResolveCountry(context.Background(), "UK", nil)

	if len(guides) != 0 {
		t.Errorf("expected no guides, got %d", len(guides))
	}
	if fetcher.calls.Load() != 0 {
		t.Errorf("expected no fetch for empty channel list, got %d", fetcher.calls.Load())
	}
}

func TestGuideResolver_ResolveAll(t *testing.T) {
	clock := newTestClock()
	var inFlight, maxInFlight atomic.Int32
	fetcher := &mockGuideFetcher{fetchFunc: func(_ context.Context, country string) guide.FetchResult {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)

		switch country {
		case "Broken":
			panic("parser exploded")
		case "Brazil":
			return guide.NotConfigured(country)
		default:
			return guide.Fetched([]guide.UpstreamChannel{upstreamChannel("bbc.one.uk", 3, clock.Now())})
		}
	}}
	guides := cache.New[[]guide.ChannelGuide](cache.Config{Now: clock.Now})
	r := NewGuideResolver(fetcher, guides, ResolverConfig{Concurrency: 2, Now: clock.Now}, nil)

	input := map[string][]guide.Channel{
		"UK":      mustChannels(t, "c1", "BBC One", "c2", "Unknown"),
		"Brazil":  mustChannels(t, "b1", "Globo"),
		"Broken":  mustChannels(t, "x1", "Anything", "x2", "Else"),
		"France":  mustChannels(t, "f1", "BBC One France"),
		"Germany": mustChannels(t, "g1", "Das Erste"),
	}

	results := r.ResolveAll(context.Background(), input)

	if len(results) != len(input) {
		t.Fatalf("expected %d countries, got %d", len(input), len(results))
	}
	for country, channels := range input {
		assertComplete(t, channels, results[country])
	}
	if results["UK"][0].Len() != 3 {
		t.Errorf("expected upstream guide for UK c1, got %d programs", results["UK"][0].Len())
	}
	for _, g := range results["Broken"] {
		if g.Len() != guide.DefaultFallbackSlots {
			t.Errorf("expected fallback for failed country, got %d programs", g.Len())
		}
	}
	if maxInFlight.Load() > 2 {
		t.Errorf("expected at most 2 concurrent fetches, saw %d", maxInFlight.Load())
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		country string
		want    string
	}{
		{"UK", "epg-uk"},
		{"uk", "epg-uk"},
		{" New Zealand ", "epg-new zealand"},
	}

	for _, tt := range tests {
		if got := CacheKey(tt.country); got != tt.want {
			t.Errorf("CacheKey(%q) = %q, want %q", tt.country, got, tt.want)
		}
	}
}
