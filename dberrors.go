package auth

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// isSerializationFailure matches the errors a losing concurrent
// transaction gets: postgres serialization and deadlock aborts, and a
// busy sqlite database.
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

// IsUniqueViolation reports whether err is a unique constraint failure
// from postgres or sqlite.
func IsUniqueViolation(err error) bool {
	return isUniqueViolation(err)
}

// supportsRowLocks is true for dialects that understand SELECT ... FOR
// UPDATE. SQLite serializes writers on its own.
func supportsRowLocks(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}

// IsSerializationFailure reports whether err means a concurrent
// transaction won and the work can be retried.
func IsSerializationFailure(err error) bool {
	return isSerializationFailure(err)
}
