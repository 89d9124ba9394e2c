package eventpage

import (
	"context"
	"encoding/json"
	"time"
)

// TicketType is one admission option listed on an event page.
type TicketType struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
	Quantity    *int    `json:"quantity,omitempty"`
}

// Attributes are the content fields rendered by every template.
type Attributes struct {
	Ingress       string          `json:"ingress,omitempty"`
	Body          string          `json:"body,omitempty"`
	FromDate      *time.Time      `json:"from_date,omitempty"`
	ToDate        *time.Time      `json:"to_date,omitempty"`
	HasTimeSlot   bool            `json:"has_time_slot"`
	TimeSlotStart string          `json:"time_slot_start,omitempty"`
	TimeSlotEnd   string          `json:"time_slot_end,omitempty"`
	Location      string          `json:"location,omitempty"`
	CoverImageURL string          `json:"cover_image_url,omitempty"`
	Images        []string        `json:"images"`
	TicketTypes   []TicketType    `json:"ticket_types"`
	Entrance      []string        `json:"entrance"`
	Parking       []string        `json:"parking"`
	Camping       []string        `json:"camping"`
	CustomStyles  json.RawMessage `json:"custom_styles,omitempty"`
}

// Event is a stored event page.
type Event struct {
	EventID    string
	UserID     string
	Title      string
	Slug       string
	TemplateID string
	Attributes Attributes
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Input is the user-editable part of an event.
type Input struct {
	Title      string
	TemplateID string
	Attributes Attributes
}

// EventRef identifies an event and its owner.
type EventRef struct {
	EventID string
	UserID  string
}

// Store is the persistence contract used by Service. Owner-scoped lookups return
// ErrEventNotFound both for missing events and for events owned by someone else.
type Store interface {
	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, eventID string, userID string) (Event, error)
	GetEventBySlug(ctx context.Context, slug string) (Event, error)
	ListEventsByOwner(ctx context.Context, userID string, limit int) ([]Event, error)
	UpdateEvent(ctx context.Context, event Event) error
	DeleteEvent(ctx context.Context, eventID string, userID string) error
	ListEventRefs(ctx context.Context, afterEventID string, limit int) ([]EventRef, error)
}
