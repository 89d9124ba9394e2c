package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service contains the credit ledger logic over a Store.
type Service struct {
	store   Store
	nowFn   func() time.Time
	loggers []OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// EnsureProfile returns the profile for userID, provisioning it with NewUserCredits on first contact.
// An existing profile is returned unchanged, including its email.
func (service *Service) EnsureProfile(ctx context.Context, userID UserID, email string) (UserProfile, error) {
	var (
		profile UserProfile
		created bool
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		now := service.nowFn()
		inserted, err := transactionStore.InsertProfileIfAbsent(ctx, ProfileInput{
			UserID:       userID,
			Email:        strings.TrimSpace(email),
			EventCredits: Credits(NewUserCredits),
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		if inserted {
			welcome, err := NewTransactionInput(userID, SignedCredits(NewUserCredits), descriptionWelcomeCredit, EventID{}, IdempotencyKey{}, now)
			if err != nil {
				return err
			}
			if err := transactionStore.InsertTransaction(ctx, welcome); err != nil {
				return err
			}
		}
		created = inserted
		profile, err = transactionStore.GetProfile(ctx, userID)
		return err
	})
	if created || operationError != nil {
		service.logOperation(ctx, OperationLog{
			Operation:   operationEnsureProfile,
			UserID:      userID,
			Amount:      SignedCredits(NewUserCredits),
			Description: descriptionWelcomeCredit,
			Error:       operationError,
		})
	}
	if operationError != nil {
		return UserProfile{}, operationError
	}
	return profile, nil
}

// GetBalance returns the current credit balance.
func (service *Service) GetBalance(ctx context.Context, userID UserID) (Credits, error) {
	profile, err := service.store.GetProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	return profile.EventCredits, nil
}

// GetProfile returns the stored profile.
func (service *Service) GetProfile(ctx context.Context, userID UserID) (UserProfile, error) {
	return service.store.GetProfile(ctx, userID)
}

// Debit removes amount from the balance and appends the matching negative transaction.
// It reports false without mutating anything when the balance does not cover amount.
// The guard and the decrement are one conditional update, so concurrent debits cannot overdraw.
func (service *Service) Debit(ctx context.Context, userID UserID, amount PositiveCredits, description string, eventID EventID) (bool, error) {
	description = normalizeDescription(description, operationDebit)
	debited := false
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		now := service.nowFn()
		applied, err := transactionStore.DecrementCredits(ctx, userID, amount, now)
		if err != nil {
			return err
		}
		if !applied {
			// Either the guard failed or the profile is missing; only the latter is an error.
			if _, err := transactionStore.GetProfile(ctx, userID); err != nil {
				return err
			}
			return nil
		}
		transactionInput, err := NewTransactionInput(userID, amount.ToSigned().Negated(), description, eventID, IdempotencyKey{}, now)
		if err != nil {
			return err
		}
		if err := transactionStore.InsertTransaction(ctx, transactionInput); err != nil {
			return err
		}
		debited = true
		return nil
	})
	logEntry := OperationLog{
		Operation:   operationDebit,
		UserID:      userID,
		Amount:      amount.ToSigned().Negated(),
		EventID:     eventID,
		Description: description,
		Error:       operationError,
	}
	if operationError == nil && !debited {
		logEntry.Status = OperationStatusInsufficient
	}
	service.logOperation(ctx, logEntry)
	if operationError != nil {
		return false, operationError
	}
	return debited, nil
}

// Credit adds amount to the balance and appends the matching positive transaction.
// A non-zero idempotency key that was already recorded yields ErrDuplicateIdempotencyKey and no mutation.
func (service *Service) Credit(ctx context.Context, userID UserID, amount PositiveCredits, description string, eventID EventID, idempotencyKey IdempotencyKey) (bool, error) {
	description = normalizeDescription(description, operationCredit)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		now := service.nowFn()
		if err := transactionStore.IncrementCredits(ctx, userID, amount, now); err != nil {
			return err
		}
		transactionInput, err := NewTransactionInput(userID, amount.ToSigned(), description, eventID, idempotencyKey, now)
		if err != nil {
			return err
		}
		return transactionStore.InsertTransaction(ctx, transactionInput)
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationCredit,
		UserID:         userID,
		Amount:         amount.ToSigned(),
		EventID:        eventID,
		IdempotencyKey: idempotencyKey,
		Description:    description,
		Error:          operationError,
	})
	if operationError != nil {
		return false, operationError
	}
	return true, nil
}

// ListTransactions returns the newest transactions first. A non-positive limit selects the default.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error) {
	normalizedLimit, err := normalizeListLimit(limit)
	if err != nil {
		return nil, err
	}
	return service.store.ListTransactions(ctx, userID, normalizedLimit)
}

// FindDebitForEvent looks up the debit recorded for eventID. Callers use it before retrying a debit
// whose outcome is unknown.
func (service *Service) FindDebitForEvent(ctx context.Context, userID UserID, eventID EventID) (Transaction, bool, error) {
	return service.store.FindTransactionByEvent(ctx, userID, eventID, TransactionDebit)
}

// ListProfiles pages through profiles ordered by user id.
func (service *Service) ListProfiles(ctx context.Context, afterUserID string, limit int) ([]UserProfile, error) {
	normalizedLimit, err := normalizeListLimit(limit)
	if err != nil {
		return nil, err
	}
	return service.store.ListProfiles(ctx, afterUserID, normalizedLimit)
}

// Reconcile reads the balance and the transaction sum in one transaction.
func (service *Service) Reconcile(ctx context.Context, userID UserID) (Reconciliation, error) {
	var reconciliation Reconciliation
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		profile, err := transactionStore.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		sum, err := transactionStore.SumTransactions(ctx, userID)
		if err != nil {
			return err
		}
		reconciliation = Reconciliation{
			UserID:         userID,
			Balance:        profile.EventCredits,
			TransactionSum: sum,
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	return reconciliation, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if len(service.loggers) == 0 {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = OperationStatusError
		} else {
			entry.Status = OperationStatusOK
		}
	}
	for _, logger := range service.loggers {
		logger.LogOperation(ctx, entry)
	}
}

func normalizeDescription(raw string, fallback string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func normalizeListLimit(limit int) (int, error) {
	if limit <= 0 {
		return defaultListLimit, nil
	}
	if limit > MaxListLimit {
		return 0, fmt.Errorf("%w: %d > %d", ErrInvalidListLimit, limit, MaxListLimit)
	}
	return limit, nil
}

// IsBusinessError reports whether err is an expected business condition rather than a fault.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrDuplicateIdempotencyKey)
}
