package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictClassification(t *testing.T) {
	assert.False(t, IsSQLiteConflictError(nil))
	assert.True(t, IsSQLiteConflictError(errors.New("sqlite: SQLITE_BUSY")))
	assert.True(t, IsSQLiteConflictError(errors.New("database is locked (5)")))
	assert.False(t, IsSQLiteConflictError(errors.New("no such table")))
}

func TestRetryOnConflictRetriesBusy(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("SQLITE_BUSY")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("constraint failed")
	err := RetryOnConflict(context.Background(), "test", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", func() error {
		calls++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Equal(t, conflictRetries, calls)
}
