package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/infra/sqlite"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsBusyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sqlite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: true},
		{name: "sqlite locked wrapped", err: fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), want: true},
		{name: "sqlite constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}, want: false},
		{name: "postgres serialization failure", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "postgres deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "postgres lock not available", err: &pgconn.PgError{Code: "55P03"}, want: true},
		{name: "postgres unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "message only", err: errors.New("database is locked"), want: true},
		{name: "domain error", err: domain.ErrNotFound, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsBusyError(tt.err))
		})
	}
}

func newInternalStore(t *testing.T, retry BusyRetry) (*store, *[]time.Duration) {
	t.Helper()

	db, err := sqlite.NewSQLite(filepath.Join(t.TempDir(), "busy.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := newStore(db, WithBusyRetry(retry))
	var sleeps []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return &s, &sleeps
}

func TestWriteRetriesBusyWithBackoff(t *testing.T) {
	t.Parallel()

	s, sleeps := newInternalStore(t, BusyRetry{Attempts: 5, Backoff: 10 * time.Millisecond})

	calls := 0
	err := s.write(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *sleeps)
}

func TestWriteGivesUpWithErrBusy(t *testing.T) {
	t.Parallel()

	s, sleeps := newInternalStore(t, BusyRetry{Attempts: 3, Backoff: time.Millisecond})

	calls := 0
	err := s.write(context.Background(), func(tx *gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.ErrorIs(t, err, domain.ErrBusy)
	assert.Equal(t, 3, calls)
	assert.Len(t, *sleeps, 2)
}

func TestWriteDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()

	s, sleeps := newInternalStore(t, BusyRetry{})

	calls := 0
	err := s.write(context.Background(), func(tx *gorm.DB) error {
		calls++
		return domain.ErrConflict
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)
}
