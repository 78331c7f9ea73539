package guide

import (
	"encoding/json"
	"slices"
)

// MaxPrograms bounds the number of programs carried by a ChannelGuide.
const MaxPrograms = 12

// ChannelGuide is the resolved schedule for one channel.
type ChannelGuide struct {
	channelID   string
	channelName string
	programs    []Program
}

// NewChannelGuide builds a guide for ch. Programs are sorted by start time and
// truncated to MaxPrograms. The input slice is not modified.
func NewChannelGuide(ch Channel, programs []Program) ChannelGuide {
	sorted := slices.Clone(programs)
	slices.SortStableFunc(sorted, func(a, b Program) int {
		return a.start.Compare(b.start)
	})
	if len(sorted) > MaxPrograms {
		sorted = sorted[:MaxPrograms]
	}

	return ChannelGuide{
		channelID:   ch.ID(),
		channelName: ch.DisplayName(),
		programs:    sorted,
	}
}

// ChannelID returns the identifier of the channel this guide belongs to.
func (g ChannelGuide) ChannelID() string {
	return g.channelID
}

// ChannelName returns the display name of the channel.
func (g ChannelGuide) ChannelName() string {
	return g.channelName
}

// Programs returns a copy of the guide's programs in chronological order.
func (g ChannelGuide) Programs() []Program {
	return slices.Clone(g.programs)
}

// Len returns the number of programs.
func (g ChannelGuide) Len() int {
	return len(g.programs)
}

type channelGuideJSON struct {
	ChannelID   string    `json:"channelId"`
	ChannelName string    `json:"channelName"`
	Programs    []Program `json:"programs"`
}

// MarshalJSON implements json.Marshaler.
func (g ChannelGuide) MarshalJSON() ([]byte, error) {
	programs := g.programs
	if programs == nil {
		programs = []Program{}
	}
	return json.Marshal(channelGuideJSON{
		ChannelID:   g.channelID,
		ChannelName: g.channelName,
		Programs:    programs,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *ChannelGuide) UnmarshalJSON(data []byte) error {
	var dto channelGuideJSON
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	ch, err := NewChannel(dto.ChannelID, dto.ChannelName)
	if err != nil {
		return err
	}
	*g = NewChannelGuide(ch, dto.Programs)
	return nil
}
