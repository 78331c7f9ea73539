package guide

import (
	"encoding/json"
	"strings"
	"time"
)

// Program is a single broadcast slot in a channel guide.
type Program struct {
	id          string
	title       string
	start       time.Time
	end         time.Time
	description string
	category    string
}

// NewProgram creates a Program. The title must not be blank and start must be
// strictly before end.
func NewProgram(id, title string, start, end time.Time, description, category string) (Program, error) {
	trimmedTitle := strings.TrimSpace(title)
	if trimmedTitle == "" {
		return Program{}, ErrEmptyTitle
	}
	if !start.Before(end) {
		return Program{}, ErrInvalidTimeRange
	}

	return Program{
		id:          strings.TrimSpace(id),
		title:       trimmedTitle,
		start:       start.UTC(),
		end:         end.UTC(),
		description: strings.TrimSpace(description),
		category:    strings.TrimSpace(category),
	}, nil
}

func (p Program) ID() string          { return p.id }
func (p Program) Title() string       { return p.title }
func (p Program) Start() time.Time    { return p.start }
func (p Program) End() time.Time      { return p.end }
func (p Program) Description() string { return p.description }
func (p Program) Category() string    { return p.category }

// Duration returns the length of the slot.
func (p Program) Duration() time.Duration {
	return p.end.Sub(p.start)
}

type programJSON struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Program) MarshalJSON() ([]byte, error) {
	return json.Marshal(programJSON{
		ID:          p.id,
		Title:       p.title,
		Start:       p.start,
		End:         p.end,
		Description: p.description,
		Category:    p.category,
	})
}

// UnmarshalJSON implements json.Unmarshaler and re-applies NewProgram validation.
func (p *Program) UnmarshalJSON(data []byte) error {
	var dto programJSON
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}
	prog, err := NewProgram(dto.ID, dto.Title, dto.Start, dto.End, dto.Description, dto.Category)
	if err != nil {
		return err
	}
	*p = prog
	return nil
}
