package eventpage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultSlugCacheSize = 512
	defaultSlugCacheTTL  = 30 * time.Second
	defaultListLimit     = 100
	slugAttempts         = 3
	maxTitleLength       = 200
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithSlugCacheSize sets how many published events are kept for slug lookups.
func WithSlugCacheSize(size int) ServiceOption {
	return func(service *Service) {
		if size > 0 {
			service.slugCacheSize = size
		}
	}
}

// WithSlugCacheTTL bounds how long a cached public page is served before it is re-read.
// Other processes sharing the store only see an update or delete once their entry expires.
func WithSlugCacheTTL(ttl time.Duration) ServiceOption {
	return func(service *Service) {
		if ttl > 0 {
			service.slugCacheTTL = ttl
		}
	}
}

// WithSlugGenerator replaces GenerateSlug.
func WithSlugGenerator(generator func(title string) (string, error)) ServiceOption {
	return func(service *Service) {
		if generator != nil {
			service.slugFn = generator
		}
	}
}

// WithIDGenerator replaces the uuid event id source.
func WithIDGenerator(generator func() string) ServiceOption {
	return func(service *Service) {
		if generator != nil {
			service.idFn = generator
		}
	}
}

// Service owns event records: validation, slugs and owner-scoped CRUD.
type Service struct {
	store         Store
	nowFn         func() time.Time
	slugFn        func(title string) (string, error)
	idFn          func() string
	slugCacheSize int
	slugCacheTTL  time.Duration
	slugCache     *expirable.LRU[string, Event]

	// cacheMutex guards cacheEpoch, which advances on every invalidation.
	cacheMutex sync.Mutex
	cacheEpoch uint64
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:         store,
		nowFn:         now,
		slugFn:        GenerateSlug,
		idFn:          uuid.NewString,
		slugCacheSize: defaultSlugCacheSize,
		slugCacheTTL:  defaultSlugCacheTTL,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	service.slugCache = expirable.NewLRU[string, Event](service.slugCacheSize, nil, service.slugCacheTTL)
	return service, nil
}

// Create validates input and stores a new event owned by userID.
func (service *Service) Create(ctx context.Context, userID string, input Input) (Event, error) {
	owner := strings.TrimSpace(userID)
	if owner == "" {
		return Event{}, ErrInvalidOwner
	}
	normalized, err := normalizeInput(input)
	if err != nil {
		return Event{}, err
	}
	now := service.nowFn().UTC()
	event := Event{
		EventID:    service.idFn(),
		UserID:     owner,
		Title:      normalized.Title,
		TemplateID: normalized.TemplateID,
		Attributes: normalized.Attributes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for attempt := 1; attempt <= slugAttempts; attempt++ {
		slug, err := service.slugFn(event.Title)
		if err != nil {
			return Event{}, fmt.Errorf("generate slug: %w", err)
		}
		event.Slug = slug
		err = service.store.CreateEvent(ctx, event)
		if err == nil {
			return event, nil
		}
		if !errors.Is(err, ErrDuplicateSlug) {
			return Event{}, err
		}
	}
	return Event{}, fmt.Errorf("%w: gave up after %d attempts", ErrDuplicateSlug, slugAttempts)
}

// Get returns an event owned by userID.
func (service *Service) Get(ctx context.Context, eventID string, userID string) (Event, error) {
	return service.store.GetEvent(ctx, eventID, userID)
}

// GetBySlug returns a published event regardless of owner.
func (service *Service) GetBySlug(ctx context.Context, slug string) (Event, error) {
	normalized := strings.ToLower(strings.TrimSpace(slug))
	if cached, ok := service.slugCache.Get(normalized); ok {
		return cached, nil
	}
	service.cacheMutex.Lock()
	epoch := service.cacheEpoch
	service.cacheMutex.Unlock()

	event, err := service.store.GetEventBySlug(ctx, normalized)
	if err != nil {
		return Event{}, err
	}
	service.cacheMutex.Lock()
	defer service.cacheMutex.Unlock()
	// A row read before an invalidation may already be stale.
	if service.cacheEpoch == epoch {
		service.slugCache.Add(normalized, event)
	}
	return event, nil
}

func (service *Service) invalidateSlug(slug string) {
	service.cacheMutex.Lock()
	defer service.cacheMutex.Unlock()
	service.cacheEpoch++
	service.slugCache.Remove(slug)
}

// List returns the events owned by userID, newest first.
func (service *Service) List(ctx context.Context, userID string) ([]Event, error) {
	return service.store.ListEventsByOwner(ctx, userID, defaultListLimit)
}

// Update replaces the editable fields of an event owned by userID. The slug never changes.
func (service *Service) Update(ctx context.Context, eventID string, userID string, input Input) (Event, error) {
	normalized, err := normalizeInput(input)
	if err != nil {
		return Event{}, err
	}
	existing, err := service.store.GetEvent(ctx, eventID, userID)
	if err != nil {
		return Event{}, err
	}
	existing.Title = normalized.Title
	existing.TemplateID = normalized.TemplateID
	existing.Attributes = normalized.Attributes
	existing.UpdatedAt = service.nowFn().UTC()
	if err := service.store.UpdateEvent(ctx, existing); err != nil {
		return Event{}, err
	}
	service.invalidateSlug(existing.Slug)
	return existing, nil
}

// Delete removes an event owned by userID.
func (service *Service) Delete(ctx context.Context, eventID string, userID string) error {
	existing, err := service.store.GetEvent(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if err := service.store.DeleteEvent(ctx, eventID, userID); err != nil {
		return err
	}
	service.invalidateSlug(existing.Slug)
	return nil
}

// ListRefs pages through every stored event ordered by id.
func (service *Service) ListRefs(ctx context.Context, afterEventID string, limit int) ([]EventRef, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return service.store.ListEventRefs(ctx, afterEventID, limit)
}

func normalizeInput(input Input) (Input, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Input{}, fmt.Errorf("%w: title is required", ErrInvalidTitle)
	}
	if len(title) > maxTitleLength {
		return Input{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidTitle, maxTitleLength)
	}
	template, ok := TemplateByID(input.TemplateID)
	if !ok {
		return Input{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, input.TemplateID)
	}
	attributes := input.Attributes
	if attributes.FromDate != nil && attributes.ToDate != nil && attributes.ToDate.Before(*attributes.FromDate) {
		return Input{}, fmt.Errorf("%w: to_date precedes from_date", ErrInvalidDateRange)
	}
	if !attributes.HasTimeSlot {
		attributes.TimeSlotStart = ""
		attributes.TimeSlotEnd = ""
	}
	customStyles := bytes.TrimSpace(attributes.CustomStyles)
	if len(customStyles) > 0 && !bytes.Equal(customStyles, []byte("null")) {
		var styles map[string]any
		if err := json.Unmarshal(customStyles, &styles); err != nil {
			return Input{}, fmt.Errorf("%w: must be a JSON object", ErrInvalidCustomStyles)
		}
		attributes.CustomStyles = json.RawMessage(customStyles)
	} else {
		attributes.CustomStyles = nil
	}
	attributes.Images = nonNilStrings(attributes.Images)
	attributes.Entrance = nonNilStrings(attributes.Entrance)
	attributes.Parking = nonNilStrings(attributes.Parking)
	attributes.Camping = nonNilStrings(attributes.Camping)
	if attributes.TicketTypes == nil {
		attributes.TicketTypes = []TicketType{}
	}
	return Input{Title: title, TemplateID: template.ID, Attributes: attributes}, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
