package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the service reacts to.
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeNotNullViolation     = "23502"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// PgError unwraps err into a *pgconn.PgError when possible.
func PgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func hasCode(err error, code string) bool {
	pgErr, ok := PgError(err)
	return ok && pgErr.Code == code
}

func IsUniqueViolation(err error) bool     { return hasCode(err, CodeUniqueViolation) }
func IsForeignKeyViolation(err error) bool { return hasCode(err, CodeForeignKeyViolation) }
func IsNotNullViolation(err error) bool    { return hasCode(err, CodeNotNullViolation) }
func IsCheckViolation(err error) bool      { return hasCode(err, CodeCheckViolation) }

// IsConstraint reports whether err was raised by the named constraint or index.
func IsConstraint(err error, name string) bool {
	pgErr, ok := PgError(err)
	return ok && pgErr.ConstraintName == name
}

// IsRetryable reports whether the transaction can be safely re-run.
func IsRetryable(err error) bool {
	return hasCode(err, CodeSerializationFailure) || hasCode(err, CodeDeadlockDetected)
}

// IsNoRows reports whether a single-row query found nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
