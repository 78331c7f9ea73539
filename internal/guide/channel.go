package guide

import "strings"

// Channel is a locally-known channel as supplied by the caller.
type Channel struct {
	id          string
	displayName string
}

// NewChannel creates a Channel, trimming whitespace from both fields.
// Returns ErrEmptyChannelID or ErrEmptyDisplayName when either is blank.
func NewChannel(id, displayName string) (Channel, error) {
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return Channel{}, ErrEmptyChannelID
	}

	trimmedName := strings.TrimSpace(displayName)
	if trimmedName == "" {
		return Channel{}, ErrEmptyDisplayName
	}

	return Channel{id: trimmedID, displayName: trimmedName}, nil
}

// ID returns the channel's identifier.
func (c Channel) ID() string {
	return c.id
}

// DisplayName returns the human-readable channel name.
func (c Channel) DisplayName() string {
	return c.displayName
}
