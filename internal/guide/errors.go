package guide

import "errors"

// Domain errors for guide resolution.
var (
	// Channel validation errors
	ErrEmptyChannelID   = errors.New("guide channel id cannot be empty")
	ErrEmptyDisplayName = errors.New("guide channel display name cannot be empty")

	// Program validation errors
	ErrEmptyTitle       = errors.New("guide program title cannot be empty")
	ErrInvalidTimeRange = errors.New("guide program start must be before end")
	ErrInvalidTimestamp = errors.New("invalid guide timestamp")

	// Upstream errors
	ErrNoGuideSource     = errors.New("no guide source for country")
	ErrUpstreamFetch     = errors.New("upstream guide fetch failed")
	ErrMalformedDocument = errors.New("malformed guide document")
)
