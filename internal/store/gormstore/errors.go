package gormstore

import (
	"errors"
	"strings"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolationCode      = "23505"
	sqliteConstraintUniqueCode = 2067

	errorOperationStore = "store"

	errorSubjectProfile     = "profile"
	errorSubjectTransaction = "transaction"
	errorSubjectEvent       = "event"

	errorCodeCreate    = "create"
	errorCodeDebit     = "debit"
	errorCodeCredit    = "credit"
	errorCodeDelete    = "delete"
	errorCodeDuplicate = "duplicate"
	errorCodeGet       = "get"
	errorCodeInsert    = "insert"
	errorCodeInvalid   = "invalid"
	errorCodeList      = "list"
	errorCodeLookup    = "lookup"
	errorCodeSum       = "sum"
	errorCodeUpdate    = "update"
)

// wrapStoreError tags a business error with the failing store call.
func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

// wrapStorageFault tags a driver error and marks it as an infrastructure failure.
func wrapStorageFault(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, ledger.StorageFault(err))
}

// isUniqueViolation matches a unique constraint failure across the supported drivers. An empty
// constraint name accepts any unique violation.
func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code() != sqliteConstraintUniqueCode {
			return false
		}
		if constraint == "" {
			return true
		}
		columns, known := sqliteUniqueColumns[constraint]
		return known && strings.Contains(sqliteErr.Error(), columns)
	}
	return false
}

// sqliteUniqueColumns maps an index name to the column list SQLite reports when it is violated.
var sqliteUniqueColumns = map[string]string{
	constraintTransactionIdempotencyKey: "credit_transactions.user_id, credit_transactions.idempotency_key",
	constraintEventSlug:                 "events.slug",
}
