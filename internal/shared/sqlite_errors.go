// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError reports either form of SQLite write contention.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// conflictRetries and conflictBaseDelay give 50ms, 100ms between three attempts.
const (
	conflictRetries   = 3
	conflictBaseDelay = 50 * time.Millisecond
)

// RetryOnConflict runs fn, retrying with exponential backoff while it fails
// with a SQLite conflict. Other errors are returned immediately.
func RetryOnConflict(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = fn()
		if err == nil || !IsSQLiteConflictError(err) {
			return err
		}
		if i == conflictRetries-1 {
			break
		}
		delay := conflictBaseDelay * time.Duration(1<<i)
		slog.Debug("storage conflict, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, conflictRetries, err)
}
