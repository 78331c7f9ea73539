package driven

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/alorle/guide-resolver/internal/circuitbreaker"
	"github.com/alorle/guide-resolver/internal/guide"
	"github.com/alorle/guide-resolver/internal/metrics"
)

const (
	defaultFetchTimeout = 15 * time.Second
	maxDocumentSize     = 32 << 20
)

// GuideJSONFetcherConfig configures a GuideJSONFetcher.
type GuideJSONFetcherConfig struct {
	BaseURL   string
	Countries guide.CountryTable
	Client    *http.Client

	// RatePerSecond limits upstream requests across all countries; zero
	// disables limiting.
	RatePerSecond float64
	Burst         int

	// Breaker configures the per-country circuit breaker. Name, Logger and
	// OnStateChange are set by the fetcher.
	Breaker circuitbreaker.Config

	Logger *slog.Logger
}

// GuideJSONFetcher retrieves per-country guide documents from
// <base>/guides/<code>.json. It implements the driven.GuideFetcher port.
type GuideJSONFetcher struct {
	baseURL   string
	countries guide.CountryTable
	client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger

	breakerCfg circuitbreaker.Config
	mu         sync.Mutex
	breakers   map[string]*circuitbreaker.Breaker
}

// NewGuideJSONFetcher creates a fetcher. If cfg.Client is nil, a client with
// a 15-second timeout is used.
func NewGuideJSONFetcher(cfg GuideJSONFetcherConfig) (*GuideJSONFetcher, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("guide base url cannot be empty")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid guide base url: %w", err)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	countries := cfg.Countries
	if countries.Len() == 0 {
		countries = guide.NewCountryTable(nil)
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := max(cfg.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &GuideJSONFetcher{
		baseURL:    base,
		countries:  countries,
		client:     client,
		limiter:    limiter,
		logger:     logger,
		breakerCfg: cfg.Breaker,
		breakers:   make(map[string]*circuitbreaker.Breaker),
	}, nil
}

// Configured reports whether country is in the fetcher's country table.
func (f *GuideJSONFetcher) Configured(country string) bool {
	_, ok := f.countries.Lookup(country)
	return ok
}

// FetchGuide retrieves and parses the guide document for country.
func (f *GuideJSONFetcher) FetchGuide(ctx context.Context, country string) guide.FetchResult {
	code, ok := f.countries.Lookup(country)
	if !ok {
		f.logger.Warn("no guide source configured for country", "country", country)
		metrics.RecordUpstreamFetch(metrics.UnconfiguredCountry, guide.FetchNotConfigured.String(), 0)
		return guide.NotConfigured(country)
	}
	label := guide.CanonicalCountry(country)

	start := time.Now()
	var body []byte
	err := f.breaker(code).Execute(func() error {
		var fetchErr error
		body, fetchErr = f.fetchDocument(ctx, code)
		return fetchErr
	})
	elapsed := time.Since(start)

	if err != nil {
		f.logger.Warn("upstream guide fetch failed",
			"country", country,
			"code", code,
			"duration", elapsed,
			"error", err,
		)
		metrics.RecordUpstreamFetch(label, guide.FetchSourceUnavailable.String(), elapsed)
		return guide.SourceUnavailable(err)
	}

	channels, err := parseGuideDocument(body)
	if err != nil {
		f.logger.Warn("treating malformed guide document as empty",
			"country", country,
			"code", code,
			"error", err,
		)
	}

	f.logger.Debug("fetched upstream guide",
		"country", country,
		"code", code,
		"channels", len(channels),
		"duration", elapsed,
	)
	metrics.RecordUpstreamFetch(label, guide.FetchOK.String(), elapsed)
	return guide.Fetched(channels)
}

func (f *GuideJSONFetcher) breaker(code string) *circuitbreaker.Breaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if b, ok := f.breakers[code]; ok {
		return b
	}

	cfg := f.breakerCfg
	cfg.Name = code
	cfg.Logger = f.logger
	cfg.OnStateChange = func(name string, _, to circuitbreaker.State) {
		metrics.SetCircuitBreakerState(name, to.String())
		if to == circuitbreaker.StateOpen {
			metrics.RecordCircuitBreakerTrip(name)
		}
	}
	b := circuitbreaker.New(cfg)
	f.breakers[code] = b
	return b
}

func (f *GuideJSONFetcher) fetchDocument(ctx context.Context, code string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	endpoint := f.baseURL + "/guides/" + url.PathEscape(code) + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching guide document: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			f.logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			f.logger.Debug("failed to close decoded body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

// decodeBody unwraps the response body according to Content-Encoding.
// Setting Accept-Encoding ourselves disables the transport's transparent
// gzip handling, so both encodings are handled here. Closing the returned
// reader does not close resp.Body.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip body: %w", err)
		}
		return zr, nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}

// guideDocumentJSON is the upstream document root. Channels is decoded in a
// second step so a wrongly-typed list degrades to zero channels.
type guideDocumentJSON struct {
	Channels json.RawMessage `json:"channels"`
}

type channelJSON struct {
	ID         string          `json:"id"`
	Programmes []programmeJSON `json:"programmes"`
}

type programmeJSON struct {
	Start    string `json:"start"`
	Stop     string `json:"stop"`
	Title    string `json:"title"`
	Desc     string `json:"desc"`
	Category string `json:"category"`
}

// parseGuideDocument returns the channels of an upstream document. Any
// structural problem yields zero channels and an error wrapping
// guide.ErrMalformedDocument for logging.
func parseGuideDocument(body []byte) ([]guide.UpstreamChannel, error) {
	var doc guideDocumentJSON
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", guide.ErrMalformedDocument, err)
	}
	if len(doc.Channels) == 0 || string(doc.Channels) == "null" {
		return nil, nil
	}

	var raw []channelJSON
	if err := json.Unmarshal(doc.Channels, &raw); err != nil {
		return nil, fmt.Errorf("%w: channels: %w", guide.ErrMalformedDocument, err)
	}

	channels := make([]guide.UpstreamChannel, 0, len(raw))
	for _, ch := range raw {
		id := strings.TrimSpace(ch.ID)
		if id == "" {
			continue
		}
		programmes := make([]guide.UpstreamProgramme, len(ch.Programmes))
		for i, p := range ch.Programmes {
			programmes[i] = guide.UpstreamProgramme{
				Start:    p.Start,
				Stop:     p.Stop,
				Title:    p.Title,
				Desc:     p.Desc,
				Category: p.Category,
			}
		}
		channels = append(channels, guide.UpstreamChannel{UpstreamID: id, Programmes: programmes})
	}
	return channels, nil
}
