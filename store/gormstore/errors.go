package gormstore

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/xraph/daybook"
)

// Postgres SQLSTATE codes.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgConnectionException  = "08"
)

// MySQL server error numbers.
const (
	myDuplicateEntry   = 1062
	myLockWaitTimeout  = 1205
	myDeadlock         = 1213
	myReadOnlyInstance = 1290
)

// isDuplicate reports a unique-constraint violation on either dialect.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == myDuplicateEntry
	}
	return false
}

// isTransient reports failures that a retry of the whole unit can cure.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
			return true
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == pgConnectionException:
			return true
		}
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case myLockWaitTimeout, myDeadlock, myReadOnlyInstance:
			return true
		}
	}
	return false
}

// isDomain reports the daybook sentinels a unit returns on purpose. They
// pass through untouched.
func isDomain(err error) bool {
	return daybook.IsNotFound(err) ||
		errors.Is(err, daybook.ErrAlreadyExists) ||
		errors.Is(err, daybook.ErrConcurrentUpdate) ||
		errors.Is(err, daybook.ErrDayLocked) ||
		errors.Is(err, daybook.ErrDayNotLocked) ||
		errors.Is(err, daybook.ErrPeriodClosed) ||
		errors.Is(err, daybook.ErrPeriodNotReady)
}

// translate maps a driver error onto the daybook error contract.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isDomain(err):
		return err
	case isDuplicate(err):
		return fmt.Errorf("daybook/gorm: %s: %w", op, daybook.ErrAlreadyExists)
	case isTransient(err):
		return fmt.Errorf("daybook/gorm: %s: %w: %w", op, daybook.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("daybook/gorm: %s: %w", op, err)
}

// notFound swaps gorm's record-not-found for the entity sentinel.
func notFound(op string, err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return translate(op, err)
}
