package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTransient marks infrastructure failures that are safe to retry.
var ErrTransient = errors.New("transient store failure")

const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
	codeTooManyConnections   = "53300"
)

// IsUniqueViolation reports a 23505 error, optionally restricted to one constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != CodeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == CodeForeignKeyViolation
}

// IsTransient reports whether err came from the connection or from a
// concurrency abort the server expects clients to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == codeSerializationFailure,
			pgErr.Code == codeDeadlockDetected,
			pgErr.Code == codeAdminShutdown,
			pgErr.Code == codeCannotConnectNow,
			pgErr.Code == codeTooManyConnections:
			return true
		}
	}
	return false
}

// Classify wraps transient errors with ErrTransient and leaves the rest alone.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
