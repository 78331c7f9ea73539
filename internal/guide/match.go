package guide

import (
	"strings"
	"unicode"
)

// MatchStrategy identifies which naming rule paired a local channel with an
// upstream entry.
type MatchStrategy int

const (
	NoMatch MatchStrategy = iota
	// MatchByID: the upstream id contains the local display name.
	MatchByID
	// MatchByName: the local display name contains the upstream id.
	MatchByName
	// MatchBySubstring: whitespace-stripped forms contain each other.
	MatchBySubstring
)

// String returns the string representation of a MatchStrategy.
func (s MatchStrategy) String() string {
	switch s {
	case MatchByID:
		return "id_contains_name"
	case MatchByName:
		return "name_contains_id"
	case MatchBySubstring:
		return "substring"
	default:
		return "none"
	}
}

var idSeparators = strings.NewReplacer(".", " ", "_", " ", "-", " ")

// Normalize lowercases s and drops every rune that is not a letter or digit.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ToLower(s))
}

// MatchNames applies the three naming strategies in order and reports the
// first that succeeds.
func MatchNames(displayName, upstreamID string) MatchStrategy {
	local := Normalize(displayName)
	if local == "" {
		return NoMatch
	}

	if remote := Normalize(upstreamID); remote != "" && strings.Contains(remote, local) {
		return MatchByID
	}

	if remote := Normalize(idSeparators.Replace(upstreamID)); remote != "" && strings.Contains(local, remote) {
		return MatchByName
	}

	a, b := stripWhitespace(displayName), stripWhitespace(upstreamID)
	if a != "" && b != "" && (strings.Contains(a, b) || strings.Contains(b, a)) {
		return MatchBySubstring
	}

	return NoMatch
}

// NamesMatch reports whether a local display name and an upstream channel id
// refer to the same channel.
func NamesMatch(displayName, upstreamID string) bool {
	return MatchNames(displayName, upstreamID) != NoMatch
}

// Match returns the first upstream channel whose id matches the local channel.
// Upstream channels without programmes never match. No ranking is applied, so
// "Sky Sports 1" can pair with "skysports10.uk" if that entry comes first.
func Match(local Channel, upstream []UpstreamChannel) (UpstreamChannel, MatchStrategy, bool) {
	for _, candidate := range upstream {
		if !candidate.HasProgrammes() {
			continue
		}
		if strategy := MatchNames(local.DisplayName(), candidate.UpstreamID); strategy != NoMatch {
			return candidate, strategy, true
		}
	}
	return UpstreamChannel{}, NoMatch, false
}
