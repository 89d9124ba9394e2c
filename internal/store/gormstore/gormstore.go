package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const constraintTransactionIdempotencyKey = "idx_credit_transactions_user_idem"

// Store implements ledger.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) InsertProfileIfAbsent(ctx context.Context, profileInput ledger.ProfileInput) (bool, error) {
	createdAt := profileInput.CreatedAt.UTC()
	profile := UserProfile{
		UserID:       profileInput.UserID.String(),
		Email:        profileInput.Email,
		EventCredits: profileInput.EventCredits.Int64(),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&profile)
	if result.Error != nil {
		return false, wrapStorageFault(errorSubjectProfile, errorCodeCreate, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) GetProfile(ctx context.Context, userID ledger.UserID) (ledger.UserProfile, error) {
	var model UserProfile
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.UserProfile{}, wrapStoreError(errorSubjectProfile, errorCodeGet, ledger.ErrProfileNotFound)
		}
		return ledger.UserProfile{}, wrapStorageFault(errorSubjectProfile, errorCodeGet, err)
	}
	profile, err := mapUserProfile(model)
	if err != nil {
		return ledger.UserProfile{}, wrapStorageFault(errorSubjectProfile, errorCodeInvalid, err)
	}
	return profile, nil
}

func (store *Store) ListProfiles(ctx context.Context, afterUserID string, limit int) ([]ledger.UserProfile, error) {
	var rows []UserProfile
	err := store.db.WithContext(ctx).
		Where("user_id > ?", afterUserID).
		Order("user_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStorageFault(errorSubjectProfile, errorCodeList, err)
	}
	profiles := make([]ledger.UserProfile, 0, len(rows))
	for _, row := range rows {
		profile, err := mapUserProfile(row)
		if err != nil {
			return nil, wrapStorageFault(errorSubjectProfile, errorCodeInvalid, err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// DecrementCredits guards and decrements in one statement so concurrent debits serialize on the row.
func (store *Store) DecrementCredits(ctx context.Context, userID ledger.UserID, amount ledger.PositiveCredits, at time.Time) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&UserProfile{}).
		Where("user_id = ? AND event_credits >= ?", userID.String(), amount.Int64()).
		Updates(map[string]any{
			"event_credits": gorm.Expr("event_credits - ?", amount.Int64()),
			"updated_at":    at.UTC(),
		})
	if result.Error != nil {
		return false, wrapStorageFault(errorSubjectProfile, errorCodeDebit, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) IncrementCredits(ctx context.Context, userID ledger.UserID, amount ledger.PositiveCredits, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&UserProfile{}).
		Where("user_id = ?", userID.String()).
		Updates(map[string]any{
			"event_credits": gorm.Expr("event_credits + ?", amount.Int64()),
			"updated_at":    at.UTC(),
		})
	if result.Error != nil {
		return wrapStorageFault(errorSubjectProfile, errorCodeCredit, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectProfile, errorCodeCredit, ledger.ErrProfileNotFound)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, transactionInput ledger.TransactionInput) error {
	transaction := CreditTransaction{
		UserID:         transactionInput.UserID().String(),
		Amount:         transactionInput.Amount().Int64(),
		Type:           transactionInput.Type().String(),
		Description:    transactionInput.Description(),
		EventID:        optionalString(transactionInput.EventID().String()),
		IdempotencyKey: optionalString(transactionInput.IdempotencyKey().String()),
		CreatedAt:      transactionInput.CreatedAt().UTC(),
	}
	if transaction.CreatedAt.IsZero() {
		transaction.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&transaction).Error
	if transaction.IdempotencyKey != nil && isUniqueViolation(err, constraintTransactionIdempotencyKey) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStorageFault(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.Transaction, error) {
	var rows []CreditTransaction
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStorageFault(errorSubjectTransaction, errorCodeList, err)
	}
	return mapTransactions(rows)
}

func (store *Store) FindTransactionByEvent(ctx context.Context, userID ledger.UserID, eventID ledger.EventID, transactionType ledger.TransactionType) (ledger.Transaction, bool, error) {
	var rows []CreditTransaction
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND event_id = ? AND type = ?", userID.String(), eventID.String(), transactionType.String()).
		Order("created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return ledger.Transaction{}, false, wrapStorageFault(errorSubjectTransaction, errorCodeLookup, err)
	}
	if len(rows) == 0 {
		return ledger.Transaction{}, false, nil
	}
	transaction, err := mapTransaction(rows[0])
	if err != nil {
		return ledger.Transaction{}, false, wrapStorageFault(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transaction, true, nil
}

func (store *Store) SumTransactions(ctx context.Context, userID ledger.UserID) (ledger.SignedCredits, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&CreditTransaction{}).
		Select("coalesce(sum(amount),0) as total").
		Where("user_id = ?", userID.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStorageFault(errorSubjectTransaction, errorCodeSum, err)
	}
	return ledger.SignedCredits(sum.Total), nil
}

type sqlSum struct {
	Total int64
}

func mapUserProfile(row UserProfile) (ledger.UserProfile, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.UserProfile{}, err
	}
	credits, err := ledger.NewCredits(row.EventCredits)
	if err != nil {
		return ledger.UserProfile{}, err
	}
	return ledger.UserProfile{
		ProfileID:    row.ProfileID,
		UserID:       userID,
		Email:        row.Email,
		EventCredits: credits,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}, nil
}

func mapTransactions(rows []CreditTransaction) ([]ledger.Transaction, error) {
	transactions := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStorageFault(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func mapTransaction(row CreditTransaction) (ledger.Transaction, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	transactionType, err := ledger.ParseTransactionType(row.Type)
	if err != nil {
		return ledger.Transaction{}, err
	}
	var eventID ledger.EventID
	if row.EventID != nil {
		if eventID, err = ledger.NewEventID(*row.EventID); err != nil {
			return ledger.Transaction{}, err
		}
	}
	var idempotencyKey ledger.IdempotencyKey
	if row.IdempotencyKey != nil {
		if idempotencyKey, err = ledger.NewIdempotencyKey(*row.IdempotencyKey); err != nil {
			return ledger.Transaction{}, err
		}
	}
	return ledger.Transaction{
		TransactionID:  row.TransactionID,
		UserID:         userID,
		Amount:         ledger.SignedCredits(row.Amount),
		Type:           transactionType,
		Description:    row.Description,
		EventID:        eventID,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      row.CreatedAt.UTC(),
	}, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
