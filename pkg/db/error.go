package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// IsDuplicateKeyErr reports a unique constraint violation on any supported
// dialect. A second subscription for the same owner and service lands here.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if code, ok := pgCode(err); ok {
		return code == pgUniqueViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 1062") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsForeignKeyErr reports a row referencing a missing parent, e.g. an
// allocation whose subscription was deleted concurrently.
func IsForeignKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	if code, ok := pgCode(err); ok {
		return code == pgForeignKeyViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 1452") || strings.Contains(msg, "FOREIGN KEY constraint failed")
}

// IsRetryableTxErr reports whether a transaction failed on a serialization
// conflict or deadlock and may succeed if retried.
func IsRetryableTxErr(err error) bool {
	code, ok := pgCode(err)
	return ok && (code == pgSerializationFailure || code == pgDeadlockDetected)
}

func pgCode(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}
