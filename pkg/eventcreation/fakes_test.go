package eventcreation

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventpage"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
)

type fakeLedger struct {
	mutex        sync.Mutex
	balances     map[string]int64
	transactions []ledger.Transaction

	ensureErr error
	debitErr  error
	lookupErr error

	// debitCommitsBeforeErr applies the debit and then reports debitErr, as when a commit
	// acknowledgement is lost.
	debitCommitsBeforeErr bool

	// refuseDebit simulates a concurrent creation that consumed the last credit after the pre-check.
	refuseDebit bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: map[string]int64{}}
}

func (fake *fakeLedger) EnsureProfile(_ context.Context, userID ledger.UserID, _ string) (ledger.UserProfile, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	if fake.ensureErr != nil {
		return ledger.UserProfile{}, fake.ensureErr
	}
	balance, exists := fake.balances[userID.String()]
	if !exists {
		balance = ledger.NewUserCredits
		fake.balances[userID.String()] = balance
	}
	return ledger.UserProfile{UserID: userID, EventCredits: ledger.Credits(balance)}, nil
}

func (fake *fakeLedger) Debit(_ context.Context, userID ledger.UserID, amount ledger.PositiveCredits, description string, eventID ledger.EventID) (bool, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	if fake.debitErr != nil && !fake.debitCommitsBeforeErr {
		return false, fake.debitErr
	}
	if fake.refuseDebit || fake.balances[userID.String()] < amount.Int64() {
		return false, nil
	}
	fake.balances[userID.String()] -= amount.Int64()
	fake.transactions = append(fake.transactions, ledger.Transaction{
		TransactionID: "tx-" + strconv.Itoa(len(fake.transactions)+1),
		UserID:        userID,
		Amount:        amount.ToSigned().Negated(),
		Type:          ledger.TransactionDebit,
		Description:   description,
		EventID:       eventID,
	})
	if fake.debitErr != nil {
		return false, fake.debitErr
	}
	return true, nil
}

func (fake *fakeLedger) FindDebitForEvent(_ context.Context, userID ledger.UserID, eventID ledger.EventID) (ledger.Transaction, bool, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	if fake.lookupErr != nil {
		return ledger.Transaction{}, false, fake.lookupErr
	}
	for _, transaction := range fake.transactions {
		if transaction.UserID == userID && transaction.EventID == eventID {
			return transaction, true, nil
		}
	}
	return ledger.Transaction{}, false, nil
}

func (fake *fakeLedger) balance(userID ledger.UserID) int64 {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return fake.balances[userID.String()]
}

type fakeEvents struct {
	mutex        sync.Mutex
	events       map[string]eventpage.Event
	sequence     int
	createErr    error
	deleteErr    error
	deleteCalled bool
	deleteCtxErr error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{events: map[string]eventpage.Event{}}
}

func (fake *fakeEvents) Create(_ context.Context, userID string, input eventpage.Input) (eventpage.Event, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	if fake.createErr != nil {
		return eventpage.Event{}, fake.createErr
	}
	fake.sequence++
	event := eventpage.Event{
		EventID:    "event-" + strconv.Itoa(fake.sequence),
		UserID:     userID,
		Title:      input.Title,
		Slug:       "slug-" + strconv.Itoa(fake.sequence),
		TemplateID: input.TemplateID,
	}
	fake.events[event.EventID] = event
	return event, nil
}

func (fake *fakeEvents) Delete(ctx context.Context, eventID string, userID string) error {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.deleteCalled = true
	fake.deleteCtxErr = ctx.Err()
	if fake.deleteErr != nil {
		return fake.deleteErr
	}
	event, exists := fake.events[eventID]
	if !exists || event.UserID != userID {
		return eventpage.ErrEventNotFound
	}
	delete(fake.events, eventID)
	return nil
}

func (fake *fakeEvents) count() int {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return len(fake.events)
}

type recordingObserver struct {
	mutex    sync.Mutex
	states   []State
	outcomes []Outcome
}

func (observer *recordingObserver) ObserveState(_ context.Context, state State) {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	observer.states = append(observer.states, state)
}

func (observer *recordingObserver) ObserveOutcome(_ context.Context, outcome Outcome, _ time.Duration) {
	observer.mutex.Lock()
	defer observer.mutex.Unlock()
	observer.outcomes = append(observer.outcomes, outcome)
}

var errFakeStorage = ledger.StorageFault(errors.New("connection refused"))

func mustUserID(test *testing.T, raw string) ledger.UserID {
	test.Helper()
	userID, err := ledger.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}
