package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	constraintTransactionIdempotencyKey = "idx_credit_transactions_user_idem"
	pgUniqueViolationCode               = "23505"
	errorOperationStore                 = "store"
	errorSubjectProfile                 = "profile"
	errorSubjectSchema                  = "schema"
	errorSubjectTransaction             = "transaction"
	errorCodeBegin                      = "begin"
	errorCodeCommit                     = "commit"
	errorCodeCreate                     = "create"
	errorCodeCredit                     = "credit"
	errorCodeDebit                      = "debit"
	errorCodeDuplicate                  = "duplicate"
	errorCodeGet                        = "get"
	errorCodeInsert                     = "insert"
	errorCodeInvalid                    = "invalid"
	errorCodeList                       = "list"
	errorCodeLookup                     = "lookup"
	errorCodeMigrate                    = "migrate"
	errorCodeSum                        = "sum"

	sqlInsertProfileIfAbsent = `
		insert into user_profiles(profile_id, user_id, email, event_credits, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $5)
		on conflict (user_id) do nothing
	`

	sqlSelectProfile = `
		select profile_id::text, user_id, email, event_credits, created_at, updated_at
		from user_profiles
		where user_id = $1
	`

	sqlListProfiles = `
		select profile_id::text, user_id, email, event_credits, created_at, updated_at
		from user_profiles
		where user_id > $1
		order by user_id asc
		limit $2
	`

	sqlDecrementCredits = `
		update user_profiles
		set event_credits = event_credits - $2, updated_at = $3
		where user_id = $1 and event_credits >= $2
	`

	sqlIncrementCredits = `
		update user_profiles
		set event_credits = event_credits + $2, updated_at = $3
		where user_id = $1
	`

	sqlInsertTransaction = `
		insert into credit_transactions(
			transaction_id, user_id, amount, type, description, event_id, idempotency_key, created_at
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	sqlTransactionColumns = `
		select transaction_id::text, user_id, amount, type, description, event_id, idempotency_key, created_at
		from credit_transactions
	`

	sqlListTransactions = sqlTransactionColumns + `
		where user_id = $1
		order by created_at desc
		limit $2
	`

	sqlFindTransactionByEvent = sqlTransactionColumns + `
		where user_id = $1 and event_id = $2 and type = $3
		order by created_at desc
		limit 1
	`

	sqlSumTransactions = `
		select coalesce(sum(amount),0) from credit_transactions where user_id = $1
	`
)

// dbtx is the query surface shared by the pool and an open transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Store implements ledger.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
	queries
}

// TxStore implements ledger.Store for an active transaction.
type TxStore struct {
	queries
}

// queries holds the statements shared by Store and TxStore.
type queries struct {
	db dbtx
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, queries: queries{db: pool}}
}

// Migrate creates the ledger tables when they are missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return wrapStorageFault(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStorageFault(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{queries: queries{db: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStorageFault(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, store)
}

func (store queries) InsertProfileIfAbsent(ctx context.Context, profileInput ledger.ProfileInput) (bool, error) {
	tag, err := store.db.Exec(ctx, sqlInsertProfileIfAbsent,
		uuid.NewString(),
		profileInput.UserID.String(),
		profileInput.Email,
		profileInput.EventCredits.Int64(),
		profileInput.CreatedAt.UTC(),
	)
	if err != nil {
		return false, wrapStorageFault(errorSubjectProfile, errorCodeCreate, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (store queries) GetProfile(ctx context.Context, userID ledger.UserID) (ledger.UserProfile, error) {
	profile, err := scanProfile(store.db.QueryRow(ctx, sqlSelectProfile, userID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.UserProfile{}, wrapStoreError(errorSubjectProfile, errorCodeGet, ledger.ErrProfileNotFound)
		}
		return ledger.UserProfile{}, wrapStorageFault(errorSubjectProfile, errorCodeGet, err)
	}
	return profile, nil
}

func (store queries) ListProfiles(ctx context.Context, afterUserID string, limit int) ([]ledger.UserProfile, error) {
	rows, err := store.db.Query(ctx, sqlListProfiles, afterUserID, limit)
	if err != nil {
		return nil, wrapStorageFault(errorSubjectProfile, errorCodeList, err)
	}
	defer rows.Close()
	var profiles []ledger.UserProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, wrapStorageFault(errorSubjectProfile, errorCodeInvalid, err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageFault(errorSubjectProfile, errorCodeList, err)
	}
	return profiles, nil
}

func (store queries) DecrementCredits(ctx context.Context, userID ledger.UserID, amount ledger.PositiveCredits, at time.Time) (bool, error) {
	tag, err := store.db.Exec(ctx, sqlDecrementCredits, userID.String(), amount.Int64(), at.UTC())
	if err != nil {
		return false, wrapStorageFault(errorSubjectProfile, errorCodeDebit, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (store queries) IncrementCredits(ctx context.Context, userID ledger.UserID, amount ledger.PositiveCredits, at time.Time) error {
	tag, err := store.db.Exec(ctx, sqlIncrementCredits, userID.String(), amount.Int64(), at.UTC())
	if err != nil {
		return wrapStorageFault(errorSubjectProfile, errorCodeCredit, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectProfile, errorCodeCredit, ledger.ErrProfileNotFound)
	}
	return nil
}

func (store queries) InsertTransaction(ctx context.Context, transactionInput ledger.TransactionInput) error {
	createdAt := transactionInput.CreatedAt().UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	idempotencyKey := optionalString(transactionInput.IdempotencyKey().String())
	_, err := store.db.Exec(ctx, sqlInsertTransaction,
		uuid.NewString(),
		transactionInput.UserID().String(),
		transactionInput.Amount().Int64(),
		transactionInput.Type().String(),
		transactionInput.Description(),
		optionalString(transactionInput.EventID().String()),
		idempotencyKey,
		createdAt,
	)
	if idempotencyKey != nil && isUniqueViolation(err, constraintTransactionIdempotencyKey) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStorageFault(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store queries) ListTransactions(ctx context.Context, userID ledger.UserID, limit int) ([]ledger.Transaction, error) {
	rows, err := store.db.Query(ctx, sqlListTransactions, userID.String(), limit)
	if err != nil {
		return nil, wrapStorageFault(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()
	var transactions []ledger.Transaction
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapStorageFault(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStorageFault(errorSubjectTransaction, errorCodeList, err)
	}
	return transactions, nil
}

func (store queries) FindTransactionByEvent(ctx context.Context, userID ledger.UserID, eventID ledger.EventID, transactionType ledger.TransactionType) (ledger.Transaction, bool, error) {
	transaction, err := scanTransaction(store.db.QueryRow(ctx, sqlFindTransactionByEvent, userID.String(), eventID.String(), transactionType.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Transaction{}, false, nil
		}
		return ledger.Transaction{}, false, wrapStorageFault(errorSubjectTransaction, errorCodeLookup, err)
	}
	return transaction, true, nil
}

func (store queries) SumTransactions(ctx context.Context, userID ledger.UserID) (ledger.SignedCredits, error) {
	var total int64
	if err := store.db.QueryRow(ctx, sqlSumTransactions, userID.String()).Scan(&total); err != nil {
		return 0, wrapStorageFault(errorSubjectTransaction, errorCodeSum, err)
	}
	return ledger.SignedCredits(total), nil
}

func scanProfile(row pgx.Row) (ledger.UserProfile, error) {
	var (
		profileID    string
		userIDValue  string
		email        string
		eventCredits int64
		createdAt    time.Time
		updatedAt    time.Time
	)
	if err := row.Scan(&profileID, &userIDValue, &email, &eventCredits, &createdAt, &updatedAt); err != nil {
		return ledger.UserProfile{}, err
	}
	userID, err := ledger.NewUserID(userIDValue)
	if err != nil {
		return ledger.UserProfile{}, err
	}
	credits, err := ledger.NewCredits(eventCredits)
	if err != nil {
		return ledger.UserProfile{}, err
	}
	return ledger.UserProfile{
		ProfileID:    profileID,
		UserID:       userID,
		Email:        email,
		EventCredits: credits,
		CreatedAt:    createdAt.UTC(),
		UpdatedAt:    updatedAt.UTC(),
	}, nil
}

func scanTransaction(row pgx.Row) (ledger.Transaction, error) {
	var (
		transactionID  string
		userIDValue    string
		amount         int64
		typeValue      string
		description    string
		eventIDValue   *string
		idempotencyKey *string
		createdAt      time.Time
	)
	if err := row.Scan(&transactionID, &userIDValue, &amount, &typeValue, &description, &eventIDValue, &idempotencyKey, &createdAt); err != nil {
		return ledger.Transaction{}, err
	}
	userID, err := ledger.NewUserID(userIDValue)
	if err != nil {
		return ledger.Transaction{}, err
	}
	transactionType, err := ledger.ParseTransactionType(typeValue)
	if err != nil {
		return ledger.Transaction{}, err
	}
	transaction := ledger.Transaction{
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        ledger.SignedCredits(amount),
		Type:          transactionType,
		Description:   description,
		CreatedAt:     createdAt.UTC(),
	}
	if eventIDValue != nil {
		if transaction.EventID, err = ledger.NewEventID(*eventIDValue); err != nil {
			return ledger.Transaction{}, err
		}
	}
	if idempotencyKey != nil {
		if transaction.IdempotencyKey, err = ledger.NewIdempotencyKey(*idempotencyKey); err != nil {
			return ledger.Transaction{}, err
		}
	}
	return transaction, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func wrapStorageFault(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, ledger.StorageFault(err))
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
