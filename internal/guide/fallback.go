package guide

import "time"

// Fallback schedule defaults.
const (
	DefaultFallbackSlots        = 8
	DefaultFallbackSlotDuration = 2 * time.Hour
	FallbackCategory            = "Sports"
)

// DefaultFallbackTitles is the round-robin pool for synthesized slots.
var DefaultFallbackTitles = []string{
	"Live Sports Coverage",
	"Sports News Update",
	"Match Highlights",
	"Pre-Game Show",
	"Post-Game Analysis",
	"Classic Matches",
}

// Synthesizer generates placeholder schedules for channels without guide
// data. The zero value uses the defaults.
type Synthesizer struct {
	Slots        int
	SlotDuration time.Duration
	Titles       []string
}

// NewSynthesizer returns a Synthesizer with the given shape, substituting
// defaults for non-positive values.
func NewSynthesizer(slots int, slotDuration time.Duration) Synthesizer {
	return Synthesizer{Slots: slots, SlotDuration: slotDuration}
}

func (s Synthesizer) slots() int {
	if s.Slots <= 0 {
		return DefaultFallbackSlots
	}
	return min(s.Slots, MaxPrograms)
}

func (s Synthesizer) slotDuration() time.Duration {
	if s.SlotDuration <= 0 {
		return DefaultFallbackSlotDuration
	}
	return s.SlotDuration
}

func (s Synthesizer) titles() []string {
	if len(s.Titles) == 0 {
		return DefaultFallbackTitles
	}
	return s.Titles
}

// Synthesize builds contiguous slots starting at now, truncated to the
// minute. It never fails and performs no I/O.
func (s Synthesizer) Synthesize(channelName string, now time.Time) []Program {
	titles := s.titles()
	duration := s.slotDuration()
	start := now.UTC().Truncate(time.Minute)
	description := "Sports programming on " + channelName

	count := s.slots()
	programs := make([]Program, 0, count)
	for i := range count {
		slotStart := start.Add(time.Duration(i) * duration)
		programs = append(programs, Program{
			id:          fallbackProgramID(channelName, i, slotStart),
			title:       titles[i%len(titles)],
			start:       slotStart,
			end:         slotStart.Add(duration),
			description: description,
			category:    FallbackCategory,
		})
	}
	return programs
}

// Guide synthesizes a complete ChannelGuide for ch.
func (s Synthesizer) Guide(ch Channel, now time.Time) ChannelGuide {
	return NewChannelGuide(ch, s.Synthesize(ch.DisplayName(), now))
}

// Synthesize generates a default-shaped fallback schedule for channelName.
func Synthesize(channelName string, now time.Time) []Program {
	return Synthesizer{}.Synthesize(channelName, now)
}
