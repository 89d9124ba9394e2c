package eventpage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"
)

type stubStore struct {
	mutex       sync.Mutex
	events      map[string]Event
	slugLookups int

	createErr error
	takenSlug map[string]bool
	// afterSlugRead runs once a slug lookup has read its row, before it returns.
	afterSlugRead func()
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{events: map[string]Event{}, takenSlug: map[string]bool{}}
}

func (store *stubStore) CreateEvent(_ context.Context, event Event) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.createErr != nil {
		return store.createErr
	}
	if store.takenSlug[event.Slug] {
		return ErrDuplicateSlug
	}
	for _, existing := range store.events {
		if existing.Slug == event.Slug {
			return ErrDuplicateSlug
		}
	}
	store.events[event.EventID] = event
	return nil
}

func (store *stubStore) GetEvent(_ context.Context, eventID string, userID string) (Event, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	event, exists := store.events[eventID]
	if !exists || event.UserID != userID {
		return Event{}, ErrEventNotFound
	}
	return event, nil
}

func (store *stubStore) GetEventBySlug(_ context.Context, slug string) (Event, error) {
	store.mutex.Lock()
	store.slugLookups++
	found, err := Event{}, ErrEventNotFound
	for _, event := range store.events {
		if event.Slug == slug {
			found, err = event, nil
			break
		}
	}
	hook := store.afterSlugRead
	store.afterSlugRead = nil
	store.mutex.Unlock()
	if hook != nil {
		hook()
	}
	return found, err
}

func (store *stubStore) ListEventsByOwner(_ context.Context, userID string, limit int) ([]Event, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	events := make([]Event, 0)
	for _, event := range store.events {
		if event.UserID == userID {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(left, right int) bool {
		return events[left].CreatedAt.After(events[right].CreatedAt)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (store *stubStore) UpdateEvent(_ context.Context, event Event) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	existing, exists := store.events[event.EventID]
	if !exists || existing.UserID != event.UserID {
		return ErrEventNotFound
	}
	store.events[event.EventID] = event
	return nil
}

func (store *stubStore) DeleteEvent(_ context.Context, eventID string, userID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	existing, exists := store.events[eventID]
	if !exists || existing.UserID != userID {
		return ErrEventNotFound
	}
	delete(store.events, eventID)
	return nil
}

func (store *stubStore) ListEventRefs(_ context.Context, afterEventID string, limit int) ([]EventRef, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	refs := make([]EventRef, 0, len(store.events))
	for _, event := range store.events {
		if event.EventID > afterEventID {
			refs = append(refs, EventRef{EventID: event.EventID, UserID: event.UserID})
		}
	}
	sort.Slice(refs, func(left, right int) bool {
		return refs[left].EventID < refs[right].EventID
	})
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// steppingClock advances one second per call so creation order is observable.
type steppingClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)}
}

func (clock *steppingClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.now = clock.now.Add(time.Second)
	return clock.now
}

func sequentialIDs() func() string {
	var (
		mutex   sync.Mutex
		counter int
	)
	return func() string {
		mutex.Lock()
		defer mutex.Unlock()
		counter++
		return "event-" + strconv.Itoa(counter)
	}
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	options = append([]ServiceOption{WithIDGenerator(sequentialIDs())}, options...)
	service, err := NewService(store, newSteppingClock().Now, options...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

func mustCreate(test *testing.T, service *Service, userID string, title string) Event {
	test.Helper()
	event, err := service.Create(context.Background(), userID, Input{Title: title, TemplateID: TemplateMinimalist})
	if err != nil {
		test.Fatalf("create event: %v", err)
	}
	return event
}
