// Package pgutils contains small helpers for working with PostgreSQL errors.
package pgutils

import "strings"

// PostgreSQL error codes.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// Class 23 — Integrity Constraint Violation
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
)

// IsUniqueViolation checks if the error is a unique constraint violation (23505).
// Used to map index-backed uniqueness races to domain conflicts.
func IsUniqueViolation(err error) bool {
	return containsErrorCode(err, CodeUniqueViolation)
}

// IsForeignKeyViolation checks if the error is a foreign key violation (23503).
func IsForeignKeyViolation(err error) bool {
	return containsErrorCode(err, CodeForeignKeyViolation)
}

// IsCheckViolation checks if the error is a check constraint violation (23514).
func IsCheckViolation(err error) bool {
	return containsErrorCode(err, CodeCheckViolation)
}

func containsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, code) || strings.Contains(errStr, "SQLSTATE "+code)
}
