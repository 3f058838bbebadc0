package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

const (
	defaultBusyAttempts = 5
	defaultBusyBackoff  = 50 * time.Millisecond
)

// BusyRetry bounds how long a write waits out storage contention.
type BusyRetry struct {
	Attempts int
	Backoff  time.Duration
}

// Option configures the Gorm repositories.
type Option func(*store)

func WithNow(now func() time.Time) Option {
	return func(s *store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithBusyRetry(retry BusyRetry) Option {
	return func(s *store) {
		if retry.Attempts > 0 {
			s.busy.Attempts = retry.Attempts
		}
		if retry.Backoff > 0 {
			s.busy.Backoff = retry.Backoff
		}
	}
}

// store carries what every repository shares: the handle, the clock and the
// contention policy.
type store struct {
	db    *gorm.DB
	now   func() time.Time
	busy  BusyRetry
	sleep func(ctx context.Context, d time.Duration) error
}

func newStore(db *gorm.DB, opts ...Option) store {
	s := store{
		db:    db,
		now:   time.Now,
		busy:  BusyRetry{Attempts: defaultBusyAttempts, Backoff: defaultBusyBackoff},
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// timestamp is the current instant as persisted: UTC at microsecond precision, so
// PostgreSQL and SQLite round-trip the same value.
func (s *store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// write runs fn in one transaction, retrying it while storage reports contention.
// Every statement inside fn must go through tx.
func (s *store) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	backoff := s.busy.Backoff
	for attempt := 1; ; attempt++ {
		err := s.db.WithContext(ctx).Transaction(fn)
		if err == nil || !IsBusyError(err) {
			return err
		}
		if attempt >= s.busy.Attempts {
			return fmt.Errorf("%w: gave up after %d attempts: %v", domain.ErrBusy, attempt, err)
		}
		if err := s.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsBusyError reports whether err is transient lock contention from SQLite or PostgreSQL.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}

	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}

func applyLeadFilter(query *gorm.DB, filter domain.LeadFilter) *gorm.DB {
	if filter.Project != "" {
		query = query.Where("leads.project = ?", filter.Project)
	}
	if filter.LeadType != "" {
		query = query.Where("leads.lead_type = ?", filter.LeadType)
	}
	return query
}
