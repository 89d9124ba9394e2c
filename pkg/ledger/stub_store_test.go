package ledger

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"
)

// stubStore is an in-memory Store. WithTx snapshots state and restores it when fn fails,
// so rollback behaviour matches the SQL stores.
type stubStore struct {
	mutex        sync.Mutex
	profiles     map[string]UserProfile
	transactions []Transaction
	sequence     int

	insertTransactionErr error
	decrementErr         error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{profiles: map[string]UserProfile{}}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mutex.Lock()
	profilesSnapshot := make(map[string]UserProfile, len(store.profiles))
	for key, value := range store.profiles {
		profilesSnapshot[key] = value
	}
	transactionsSnapshot := append([]Transaction(nil), store.transactions...)
	store.mutex.Unlock()

	if err := fn(ctx, store); err != nil {
		store.mutex.Lock()
		store.profiles = profilesSnapshot
		store.transactions = transactionsSnapshot
		store.mutex.Unlock()
		return err
	}
	return nil
}

func (store *stubStore) InsertProfileIfAbsent(_ context.Context, profile ProfileInput) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.profiles[profile.UserID.String()]; exists {
		return false, nil
	}
	store.sequence++
	store.profiles[profile.UserID.String()] = UserProfile{
		ProfileID:    "profile-" + strconv.Itoa(store.sequence),
		UserID:       profile.UserID,
		Email:        profile.Email,
		EventCredits: profile.EventCredits,
		CreatedAt:    profile.CreatedAt,
		UpdatedAt:    profile.CreatedAt,
	}
	return true, nil
}

func (store *stubStore) GetProfile(_ context.Context, userID UserID) (UserProfile, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	profile, exists := store.profiles[userID.String()]
	if !exists {
		return UserProfile{}, ErrProfileNotFound
	}
	return profile, nil
}

func (store *stubStore) ListProfiles(_ context.Context, afterUserID string, limit int) ([]UserProfile, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	profiles := make([]UserProfile, 0, len(store.profiles))
	for key, profile := range store.profiles {
		if key > afterUserID {
			profiles = append(profiles, profile)
		}
	}
	sort.Slice(profiles, func(left, right int) bool {
		return profiles[left].UserID.String() < profiles[right].UserID.String()
	})
	if len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return profiles, nil
}

func (store *stubStore) DecrementCredits(_ context.Context, userID UserID, amount PositiveCredits, at time.Time) (bool, error) {
	if store.decrementErr != nil {
		return false, store.decrementErr
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	profile, exists := store.profiles[userID.String()]
	if !exists || profile.EventCredits.Int64() < amount.Int64() {
		return false, nil
	}
	profile.EventCredits -= Credits(amount)
	profile.UpdatedAt = at
	store.profiles[userID.String()] = profile
	return true, nil
}

func (store *stubStore) IncrementCredits(_ context.Context, userID UserID, amount PositiveCredits, at time.Time) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	profile, exists := store.profiles[userID.String()]
	if !exists {
		return ErrProfileNotFound
	}
	profile.EventCredits += Credits(amount)
	profile.UpdatedAt = at
	store.profiles[userID.String()] = profile
	return nil
}

func (store *stubStore) InsertTransaction(_ context.Context, input TransactionInput) error {
	if store.insertTransactionErr != nil {
		return store.insertTransactionErr
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if !input.IdempotencyKey().IsZero() {
		for _, existing := range store.transactions {
			if existing.UserID == input.UserID() && existing.IdempotencyKey == input.IdempotencyKey() {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	store.sequence++
	store.transactions = append(store.transactions, Transaction{
		TransactionID:  "tx-" + strconv.Itoa(store.sequence),
		UserID:         input.UserID(),
		Amount:         input.Amount(),
		Type:           input.Type(),
		Description:    input.Description(),
		EventID:        input.EventID(),
		IdempotencyKey: input.IdempotencyKey(),
		CreatedAt:      input.CreatedAt(),
	})
	return nil
}

func (store *stubStore) ListTransactions(_ context.Context, userID UserID, limit int) ([]Transaction, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	transactions := make([]Transaction, 0, len(store.transactions))
	for index := len(store.transactions) - 1; index >= 0; index-- {
		if store.transactions[index].UserID == userID {
			transactions = append(transactions, store.transactions[index])
		}
	}
	if len(transactions) > limit {
		transactions = transactions[:limit]
	}
	return transactions, nil
}

func (store *stubStore) FindTransactionByEvent(_ context.Context, userID UserID, eventID EventID, transactionType TransactionType) (Transaction, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, transaction := range store.transactions {
		if transaction.UserID == userID && transaction.EventID == eventID && transaction.Type == transactionType {
			return transaction, true, nil
		}
	}
	return Transaction{}, false, nil
}

func (store *stubStore) SumTransactions(_ context.Context, userID UserID) (SignedCredits, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var sum SignedCredits
	for _, transaction := range store.transactions {
		if transaction.UserID == userID {
			sum += transaction.Amount
		}
	}
	return sum, nil
}

func (store *stubStore) balance(test *testing.T, userID UserID) Credits {
	test.Helper()
	profile, err := store.GetProfile(context.Background(), userID)
	if err != nil {
		test.Fatalf("profile lookup: %v", err)
	}
	return profile.EventCredits
}

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

var errStubStorage = errors.New("connection reset")

func fixedClock() time.Time {
	return time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, fixedClock, options...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustEventID(test *testing.T, raw string) EventID {
	test.Helper()
	eventID, err := NewEventID(raw)
	if err != nil {
		test.Fatalf("event id: %v", err)
	}
	return eventID
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	key, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return key
}

func mustPositiveCredits(test *testing.T, raw int64) PositiveCredits {
	test.Helper()
	amount, err := NewPositiveCredits(raw)
	if err != nil {
		test.Fatalf("positive credits: %v", err)
	}
	return amount
}

func mustProvision(test *testing.T, service *Service, userID UserID) UserProfile {
	test.Helper()
	profile, err := service.EnsureProfile(context.Background(), userID, "")
	if err != nil {
		test.Fatalf("ensure profile: %v", err)
	}
	return profile
}
