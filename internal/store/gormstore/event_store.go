package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventpage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const constraintEventSlug = "idx_events_slug"

// EventStore implements eventpage.Store using GORM.
type EventStore struct {
	db *gorm.DB
}

// NewEventStore returns an EventStore backed by gorm.DB.
func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

func (store *EventStore) CreateEvent(ctx context.Context, event eventpage.Event) error {
	model, err := newEventModel(event)
	if err != nil {
		return wrapStorageFault(errorSubjectEvent, errorCodeInvalid, err)
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintEventSlug) {
		return wrapStoreError(errorSubjectEvent, errorCodeDuplicate, eventpage.ErrDuplicateSlug)
	}
	if err != nil {
		return wrapStorageFault(errorSubjectEvent, errorCodeCreate, err)
	}
	return nil
}

func (store *EventStore) GetEvent(ctx context.Context, eventID string, userID string) (eventpage.Event, error) {
	return store.takeEvent(ctx, store.db.Where("event_id = ? AND user_id = ?", eventID, userID))
}

func (store *EventStore) GetEventBySlug(ctx context.Context, slug string) (eventpage.Event, error) {
	return store.takeEvent(ctx, store.db.Where("slug = ?", slug))
}

func (store *EventStore) takeEvent(ctx context.Context, query *gorm.DB) (eventpage.Event, error) {
	var model Event
	err := query.WithContext(ctx).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return eventpage.Event{}, wrapStoreError(errorSubjectEvent, errorCodeGet, eventpage.ErrEventNotFound)
		}
		return eventpage.Event{}, wrapStorageFault(errorSubjectEvent, errorCodeGet, err)
	}
	event, err := mapEvent(model)
	if err != nil {
		return eventpage.Event{}, wrapStorageFault(errorSubjectEvent, errorCodeInvalid, err)
	}
	return event, nil
}

func (store *EventStore) ListEventsByOwner(ctx context.Context, userID string, limit int) ([]eventpage.Event, error) {
	var rows []Event
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStorageFault(errorSubjectEvent, errorCodeList, err)
	}
	events := make([]eventpage.Event, 0, len(rows))
	for _, row := range rows {
		event, err := mapEvent(row)
		if err != nil {
			return nil, wrapStorageFault(errorSubjectEvent, errorCodeInvalid, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (store *EventStore) UpdateEvent(ctx context.Context, event eventpage.Event) error {
	model, err := newEventModel(event)
	if err != nil {
		return wrapStorageFault(errorSubjectEvent, errorCodeInvalid, err)
	}
	result := store.db.WithContext(ctx).
		Model(&Event{}).
		Where("event_id = ? AND user_id = ?", event.EventID, event.UserID).
		Updates(map[string]any{
			"title":           model.Title,
			"template_id":     model.TemplateID,
			"ingress":         model.Ingress,
			"body":            model.Body,
			"from_date":       model.FromDate,
			"to_date":         model.ToDate,
			"has_time_slot":   model.HasTimeSlot,
			"time_slot_start": model.TimeSlotStart,
			"time_slot_end":   model.TimeSlotEnd,
			"location":        model.Location,
			"cover_image_url": model.CoverImageURL,
			"images":          model.Images,
			"ticket_types":    model.TicketTypes,
			"entrance":        model.Entrance,
			"parking":         model.Parking,
			"camping":         model.Camping,
			"custom_styles":   model.CustomStyles,
			"updated_at":      model.UpdatedAt,
		})
	if result.Error != nil {
		return wrapStorageFault(errorSubjectEvent, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectEvent, errorCodeUpdate, eventpage.ErrEventNotFound)
	}
	return nil
}

func (store *EventStore) DeleteEvent(ctx context.Context, eventID string, userID string) error {
	result := store.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		Delete(&Event{})
	if result.Error != nil {
		return wrapStorageFault(errorSubjectEvent, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectEvent, errorCodeDelete, eventpage.ErrEventNotFound)
	}
	return nil
}

func (store *EventStore) ListEventRefs(ctx context.Context, afterEventID string, limit int) ([]eventpage.EventRef, error) {
	var rows []Event
	err := store.db.WithContext(ctx).
		Select("event_id", "user_id").
		Where("event_id > ?", afterEventID).
		Order("event_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStorageFault(errorSubjectEvent, errorCodeList, err)
	}
	refs := make([]eventpage.EventRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, eventpage.EventRef{EventID: row.EventID, UserID: row.UserID})
	}
	return refs, nil
}

func newEventModel(event eventpage.Event) (Event, error) {
	attributes := event.Attributes
	images, err := jsonColumn(nonNil(attributes.Images))
	if err != nil {
		return Event{}, err
	}
	ticketTypes := attributes.TicketTypes
	if ticketTypes == nil {
		ticketTypes = []eventpage.TicketType{}
	}
	ticketTypesJSON, err := jsonColumn(ticketTypes)
	if err != nil {
		return Event{}, err
	}
	entrance, err := jsonColumn(nonNil(attributes.Entrance))
	if err != nil {
		return Event{}, err
	}
	parking, err := jsonColumn(nonNil(attributes.Parking))
	if err != nil {
		return Event{}, err
	}
	camping, err := jsonColumn(nonNil(attributes.Camping))
	if err != nil {
		return Event{}, err
	}
	var customStyles datatypes.JSON
	if len(attributes.CustomStyles) > 0 {
		customStyles = datatypes.JSON(attributes.CustomStyles)
	}
	return Event{
		EventID:       event.EventID,
		UserID:        event.UserID,
		Title:         event.Title,
		Slug:          event.Slug,
		TemplateID:    event.TemplateID,
		Ingress:       attributes.Ingress,
		Body:          attributes.Body,
		FromDate:      utcPointer(attributes.FromDate),
		ToDate:        utcPointer(attributes.ToDate),
		HasTimeSlot:   attributes.HasTimeSlot,
		TimeSlotStart: attributes.TimeSlotStart,
		TimeSlotEnd:   attributes.TimeSlotEnd,
		Location:      attributes.Location,
		CoverImageURL: attributes.CoverImageURL,
		Images:        images,
		TicketTypes:   ticketTypesJSON,
		Entrance:      entrance,
		Parking:       parking,
		Camping:       camping,
		CustomStyles:  customStyles,
		CreatedAt:     event.CreatedAt.UTC(),
		UpdatedAt:     event.UpdatedAt.UTC(),
	}, nil
}

func mapEvent(row Event) (eventpage.Event, error) {
	attributes := eventpage.Attributes{
		Ingress:       row.Ingress,
		Body:          row.Body,
		FromDate:      utcPointer(row.FromDate),
		ToDate:        utcPointer(row.ToDate),
		HasTimeSlot:   row.HasTimeSlot,
		TimeSlotStart: row.TimeSlotStart,
		TimeSlotEnd:   row.TimeSlotEnd,
		Location:      row.Location,
		CoverImageURL: row.CoverImageURL,
	}
	if err := decodeJSONColumn(row.Images, &attributes.Images); err != nil {
		return eventpage.Event{}, err
	}
	if err := decodeJSONColumn(row.TicketTypes, &attributes.TicketTypes); err != nil {
		return eventpage.Event{}, err
	}
	if err := decodeJSONColumn(row.Entrance, &attributes.Entrance); err != nil {
		return eventpage.Event{}, err
	}
	if err := decodeJSONColumn(row.Parking, &attributes.Parking); err != nil {
		return eventpage.Event{}, err
	}
	if err := decodeJSONColumn(row.Camping, &attributes.Camping); err != nil {
		return eventpage.Event{}, err
	}
	if len(row.CustomStyles) > 0 {
		attributes.CustomStyles = json.RawMessage(row.CustomStyles)
	}
	attributes.Images = nonNil(attributes.Images)
	attributes.Entrance = nonNil(attributes.Entrance)
	attributes.Parking = nonNil(attributes.Parking)
	attributes.Camping = nonNil(attributes.Camping)
	if attributes.TicketTypes == nil {
		attributes.TicketTypes = []eventpage.TicketType{}
	}
	return eventpage.Event{
		EventID:    row.EventID,
		UserID:     row.UserID,
		Title:      row.Title,
		Slug:       row.Slug,
		TemplateID: row.TemplateID,
		Attributes: attributes,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}, nil
}

func jsonColumn(value any) (datatypes.JSON, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

func decodeJSONColumn(column datatypes.JSON, target any) error {
	if len(column) == 0 {
		return nil
	}
	return json.Unmarshal(column, target)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
