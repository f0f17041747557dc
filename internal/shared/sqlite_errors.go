// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsSQLiteBusyError(err error) bool {
	return errContains(err, "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	return errContains(err, "database is locked")
}

// IsSQLiteConflictError checks if the error is either a SQLITE_BUSY
// or "database is locked" error. Both are transient and worth retrying.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// IsSQLiteUniqueError checks if the error is a UNIQUE constraint violation.
// Unlike busy errors these are permanent for the given row.
func IsSQLiteUniqueError(err error) bool {
	return errContains(err, "UNIQUE constraint failed")
}

// IsSQLiteForeignKeyError checks if the error is a FOREIGN KEY constraint violation.
func IsSQLiteForeignKeyError(err error) bool {
	return errContains(err, "FOREIGN KEY constraint failed")
}

func errContains(err error, substr string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), substr)
}
