package agenda

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sgacop30/sga/core"
)

const (
	// EventWindow is how long after its start an event is still listed.
	EventWindow = 10 * time.Hour
	DefaultTags = "sustentabilidade"
)

type Event struct {
	ID          int       `json:"id"`
	Title       string    `json:"titulo"`
	Description string    `json:"descricao"`
	Location    string    `json:"local"`
	Speaker     string    `json:"palestrante"`
	StartTime   time.Time `json:"data_hora_inicio"` // UTC
	EndTime     time.Time `json:"data_hora_fim"`    // UTC
	Tags        string    `json:"tags"`
	Important   bool      `json:"importante"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	CreatedAt   time.Time `json:"criado_em"`
	CreatedBy   *int      `json:"criado_por"`
}

// IsPast reports whether the event started more than EventWindow before now.
func (e Event) IsPast(now time.Time) bool {
	return e.StartTime.Before(now.Add(-EventWindow))
}

func (e Event) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// TagList splits the comma separated tags.
func (e Event) TagList() []string {
	tags := make([]string, 0)
	for _, t := range strings.Split(e.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// EventView is an Event as seen by a given user.
type EventView struct {
	Event
	IsFavorited bool `json:"is_favorited"`
	IsPast      bool `json:"is_past"`
}

type Favorite struct {
	UserID  int       `json:"usuario_id"`
	EventID int       `json:"evento_id"`
	AddedAt time.Time `json:"adicionado_em"`
}

// Reminder pairs a user with a favorited event.
type Reminder struct {
	UserID int
	Event  Event
}

// NewEvent contains information needed to create a new Event.
type NewEvent struct {
	Title       string    `json:"titulo" validate:"required,max=200"`
	Description string    `json:"descricao"`
	Location    string    `json:"local" validate:"required,max=200"`
	Speaker     string    `json:"palestrante" validate:"max=200"`
	StartTime   time.Time `json:"data_hora_inicio" validate:"required"`
	EndTime     time.Time `json:"data_hora_fim" validate:"required"`
	Tags        string    `json:"tags" validate:"max=200"`
	Important   bool      `json:"importante"`
	Latitude    *float64  `json:"latitude" validate:"omitempty,latitude"`
	Longitude   *float64  `json:"longitude" validate:"omitempty,longitude"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Description = strings.TrimSpace(ne.Description)
	ne.Location = core.CleanString(ne.Location)
	ne.Speaker = core.CleanString(ne.Speaker)
	ne.Tags = core.CleanString(ne.Tags)
	if ne.Tags == "" {
		ne.Tags = DefaultTags
	}

	if err := validate.Struct(ne); err != nil {
		return err
	}
	if !ne.EndTime.After(ne.StartTime) {
		return core.NewValidationError(ErrInvalidTimes, core.FieldError{Field: "data_hora_fim", Error: ErrInvalidTimes.Error()})
	}
	return nil
}
