package driven

import (
	"context"

	"github.com/alorle/guide-resolver/internal/guide"
)

// GuideFetcher retrieves the upstream guide document for a country.
// This is a driven port implemented by concrete adapters (e.g., HTTP JSON source).
type GuideFetcher interface {
	// FetchGuide never returns an error directly: every outcome is tagged in
	// the result. Unknown countries yield guide.FetchNotConfigured, transport
	// and HTTP failures guide.FetchSourceUnavailable, and a readable document
	// guide.FetchOK with zero or more channels.
	FetchGuide(ctx context.Context, country string) guide.FetchResult

	// Configured reports whether country has a guide source. It does no I/O.
	Configured(country string) bool
}
