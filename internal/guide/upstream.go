package guide

import (
	"fmt"
	"strings"
	"time"
)

// UpstreamProgramme is a programme record as it appears in the upstream
// document. Fields are kept raw; conversion into Program validates them.
type UpstreamProgramme struct {
	Start    string
	Stop     string
	Title    string
	Desc     string
	Category string
}

// UpstreamChannel is a channel entry from the upstream guide document.
type UpstreamChannel struct {
	UpstreamID string
	Programmes []UpstreamProgramme
}

// HasProgrammes reports whether the channel carries any schedule at all.
func (c UpstreamChannel) HasProgrammes() bool {
	return len(c.Programmes) > 0
}

// timestampLayouts are tried in order when parsing upstream timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"20060102150405 -0700",
	"20060102150405",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	value := strings.TrimSpace(s)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// ConvertProgrammes turns the upstream programmes of ch into Programs,
// keeping at most limit of them in document order. Records with unparsable
// timestamps, an empty title or start >= stop are skipped.
func ConvertProgrammes(ch UpstreamChannel, limit int) []Program {
	if limit <= 0 {
		limit = MaxPrograms
	}

	programs := make([]Program, 0, min(limit, len(ch.Programmes)))
	for _, raw := range ch.Programmes {
		if len(programs) == limit {
			break
		}

		start, err := ParseTimestamp(raw.Start)
		if err != nil {
			continue
		}
		end, err := ParseTimestamp(raw.Stop)
		if err != nil {
			continue
		}

		id := programID(ch.UpstreamID, start, raw.Title)
		prog, err := NewProgram(id, raw.Title, start, end, raw.Desc, raw.Category)
		if err != nil {
			continue
		}
		programs = append(programs, prog)
	}

	return programs
}
