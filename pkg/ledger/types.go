package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Credits is a non-negative credit balance.
type Credits int64

// PositiveCredits is a strictly positive credit amount used for mutations.
type PositiveCredits int64

// SignedCredits is a transaction amount: positive for credits, negative for debits.
type SignedCredits int64

// UserID identifies a profile owner as assigned by the identity provider.
type UserID struct {
	value string
}

// EventID identifies the event a transaction was recorded for.
type EventID struct {
	value string
}

// IdempotencyKey scopes duplicate detection for credit operations.
type IdempotencyKey struct {
	value string
}

// TransactionType is derived from the sign of a transaction amount.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// UserProfile is the per-user balance record.
type UserProfile struct {
	ProfileID    string
	UserID       UserID
	Email        string
	EventCredits Credits
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transaction is a single immutable line in the credit log.
type Transaction struct {
	TransactionID  string
	UserID         UserID
	Amount         SignedCredits
	Type           TransactionType
	Description    string
	EventID        EventID
	IdempotencyKey IdempotencyKey
	CreatedAt      time.Time
}

// ProfileInput carries the fields of a profile about to be provisioned.
type ProfileInput struct {
	UserID       UserID
	Email        string
	EventCredits Credits
	CreatedAt    time.Time
}

// TransactionInput is a validated transaction ready to be appended.
type TransactionInput struct {
	userID          UserID
	amount          SignedCredits
	transactionType TransactionType
	description     string
	eventID         EventID
	idempotencyKey  IdempotencyKey
	createdAt       time.Time
}

// Reconciliation compares a stored balance against the transaction log.
type Reconciliation struct {
	UserID         UserID
	Balance        Credits
	TransactionSum SignedCredits
}

// Consistent reports whether the balance equals the signed transaction sum.
func (reconciliation Reconciliation) Consistent() bool {
	return int64(reconciliation.Balance) == int64(reconciliation.TransactionSum)
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	// InsertProfileIfAbsent reports whether a new row was written; an existing row is left untouched.
	InsertProfileIfAbsent(ctx context.Context, profile ProfileInput) (bool, error)
	GetProfile(ctx context.Context, userID UserID) (UserProfile, error)
	ListProfiles(ctx context.Context, afterUserID string, limit int) ([]UserProfile, error)
	// DecrementCredits applies the decrement only when the balance covers it and reports whether it did.
	DecrementCredits(ctx context.Context, userID UserID, amount PositiveCredits, at time.Time) (bool, error)
	IncrementCredits(ctx context.Context, userID UserID, amount PositiveCredits, at time.Time) error
	InsertTransaction(ctx context.Context, transaction TransactionInput) error
	ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error)
	FindTransactionByEvent(ctx context.Context, userID UserID, eventID EventID, transactionType TransactionType) (Transaction, bool, error)
	SumTransactions(ctx context.Context, userID UserID) (SignedCredits, error)
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewEventID validates and normalizes an event id.
func NewEventID(raw string) (EventID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EventID{}, fmt.Errorf("%w: empty value", ErrInvalidEventID)
	}
	return EventID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EventID) String() string {
	return id.value
}

// IsZero reports whether no event is linked.
func (id EventID) IsZero() bool {
	return id.value == ""
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// IsZero reports whether the key is unset.
func (key IdempotencyKey) IsZero() bool {
	return key.value == ""
}

// NewCredits validates a balance value.
func NewCredits(raw int64) (Credits, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: balance must not be negative", ErrInvalidCredits)
	}
	return Credits(raw), nil
}

// Int64 exposes the raw balance.
func (credits Credits) Int64() int64 {
	return int64(credits)
}

// NewPositiveCredits validates a mutation amount.
func NewPositiveCredits(raw int64) (PositiveCredits, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidCredits)
	}
	return PositiveCredits(raw), nil
}

// Int64 exposes the raw amount.
func (amount PositiveCredits) Int64() int64 {
	return int64(amount)
}

// ToSigned returns the amount as a credit.
func (amount PositiveCredits) ToSigned() SignedCredits {
	return SignedCredits(amount)
}

// Int64 exposes the raw amount.
func (amount SignedCredits) Int64() int64 {
	return int64(amount)
}

// Negated flips the sign.
func (amount SignedCredits) Negated() SignedCredits {
	return -amount
}

// String returns the transaction type value.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// ParseTransactionType validates a stored transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(strings.TrimSpace(raw)) {
	case TransactionCredit:
		return TransactionCredit, nil
	case TransactionDebit:
		return TransactionDebit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
	}
}

// TransactionTypeFor derives the type from the sign of amount.
func TransactionTypeFor(amount SignedCredits) (TransactionType, error) {
	switch {
	case amount > 0:
		return TransactionCredit, nil
	case amount < 0:
		return TransactionDebit, nil
	default:
		return "", fmt.Errorf("%w: zero amount", ErrInvalidCredits)
	}
}

// NewTransactionInput validates a transaction before it is appended.
func NewTransactionInput(userID UserID, amount SignedCredits, description string, eventID EventID, idempotencyKey IdempotencyKey, createdAt time.Time) (TransactionInput, error) {
	if userID.String() == "" {
		return TransactionInput{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	transactionType, err := TransactionTypeFor(amount)
	if err != nil {
		return TransactionInput{}, err
	}
	return TransactionInput{
		userID:          userID,
		amount:          amount,
		transactionType: transactionType,
		description:     strings.TrimSpace(description),
		eventID:         eventID,
		idempotencyKey:  idempotencyKey,
		createdAt:       createdAt.UTC(),
	}, nil
}

// UserID returns the owning user.
func (input TransactionInput) UserID() UserID { return input.userID }

// Amount returns the signed amount.
func (input TransactionInput) Amount() SignedCredits { return input.amount }

// Type returns the derived transaction type.
func (input TransactionInput) Type() TransactionType { return input.transactionType }

// Description returns the free-text reason.
func (input TransactionInput) Description() string { return input.description }

// EventID returns the linked event, which may be zero.
func (input TransactionInput) EventID() EventID { return input.eventID }

// IdempotencyKey returns the dedupe key, which may be zero.
func (input TransactionInput) IdempotencyKey() IdempotencyKey { return input.idempotencyKey }

// CreatedAt returns the append time.
func (input TransactionInput) CreatedAt() time.Time { return input.createdAt }
