package database

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Transaction errors.
var (
	ErrBeginningTransaction  = errors.New("failed to begin transaction")
	ErrCommittingTransaction = errors.New("failed to commit transaction")
)

// Classification tells whether a failed operation may be retried.
type Classification int

const (
	// NonRetryable is the default for unknown errors and constraint violations.
	NonRetryable Classification = iota
	// Retryable marks transient failures such as lost connections or lock contention.
	Retryable
)

// ErrorClassifier maps driver errors to a Classification.
type ErrorClassifier interface {
	Classify(err error) Classification
}

// PostgresErrorClassifier inspects pgconn error codes.
type PostgresErrorClassifier struct{}

// Classify implements ErrorClassifier.
//
// Retryable codes:
//   - Class 08, connection exceptions
//   - Class 40, transaction rollback, serialization failure, deadlock
//   - 57P03, cannot connect now
func (PostgresErrorClassifier) Classify(err error) Classification {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return NonRetryable
	}

	switch pgErr.Code {
	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.TransactionRollback,
		pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.CannotConnectNow:
		return Retryable
	}
	return NonRetryable
}

// SQLiteErrorClassifier treats busy and locked databases as transient.
type SQLiteErrorClassifier struct{}

// Classify implements ErrorClassifier.
func (SQLiteErrorClassifier) Classify(err error) Classification {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return NonRetryable
	}

	// extended result codes keep the primary code in the low byte
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return Retryable
	}
	return NonRetryable
}

// IsUniqueViolation reports whether err is a unique constraint failure on
// either supported driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
