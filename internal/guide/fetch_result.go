package guide

import "fmt"

// FetchStatus tags the outcome of an upstream guide fetch.
type FetchStatus int

const (
	// FetchOK means the document was retrieved; it may hold zero channels.
	FetchOK FetchStatus = iota
	// FetchSourceUnavailable means the upstream could not be reached or
	// answered with a non-2xx status.
	FetchSourceUnavailable
	// FetchNotConfigured means the country has no guide source.
	FetchNotConfigured
)

// String returns the string representation of a FetchStatus.
func (s FetchStatus) String() string {
	switch s {
	case FetchOK:
		return "ok"
	case FetchSourceUnavailable:
		return "source_unavailable"
	case FetchNotConfigured:
		return "not_configured"
	default:
		return "unknown"
	}
}

// FetchResult is the tagged result of a guide fetch. Channels is only
// meaningful for FetchOK; Err is set for the other statuses.
type FetchResult struct {
	Status   FetchStatus
	Channels []UpstreamChannel
	Err      error
}

// Fetched builds a successful result.
func Fetched(channels []UpstreamChannel) FetchResult {
	return FetchResult{Status: FetchOK, Channels: channels}
}

// SourceUnavailable builds a result for a transport or HTTP failure.
// The cause is wrapped with ErrUpstreamFetch.
func SourceUnavailable(cause error) FetchResult {
	return FetchResult{
		Status: FetchSourceUnavailable,
		Err:    fmt.Errorf("%w: %w", ErrUpstreamFetch, cause),
	}
}

// NotConfigured builds a result for a country missing from the source table.
func NotConfigured(country string) FetchResult {
	return FetchResult{
		Status: FetchNotConfigured,
		Err:    fmt.Errorf("%w: %q", ErrNoGuideSource, country),
	}
}
