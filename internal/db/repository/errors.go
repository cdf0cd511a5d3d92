package repository

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateID is returned when inserting a certificate whose cert_id
	// is already taken. The existing record is left untouched.
	ErrDuplicateID = errors.New("certificate id already exists")

	// ErrAlreadyAttached is returned when attaching a transaction reference
	// to a certificate that already carries one. Transaction references are
	// single-write.
	ErrAlreadyAttached = errors.New("transaction reference already attached")
)

// isUniqueViolation reports whether err is a unique-constraint violation
// from either supported driver.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}

	return false
}
