package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/observability"
	"github.com/kursadbilgin/relance-engine/internal/queue"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultDueScanInterval = 15 * time.Second
	defaultDueScanLimit    = 100
	// leaseScans is how many scan intervals a claim holds when no lease is configured.
	leaseScans = 4
)

// DueScanner periodically publishes a reminder for every pending follow-up whose
// planned time has come. An attempt is claimed (reminded_at set) before it is
// published, so concurrent scanners never publish it twice. A claim older than the
// lease is taken again, which recovers rows claimed by a scanner that died before
// publishing.
type DueScanner struct {
	calls     repository.CallRepository
	publisher queue.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	lease     time.Duration
	limit     int
	now       func() time.Time
	newID     func() string
}

func NewDueScanner(
	calls repository.CallRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	lease time.Duration,
	logger *zap.Logger,
) (*DueScanner, error) {
	if calls == nil {
		return nil, fmt.Errorf("call repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultDueScanInterval
	}
	if limit <= 0 {
		limit = defaultDueScanLimit
	}
	if lease <= 0 {
		lease = leaseScans * interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DueScanner{
		calls:     calls,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		lease:     lease,
		limit:     limit,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func (s *DueScanner) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *DueScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("due scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("due scan failed", zap.Error(err))
			}
		}
	}
}

func (s *DueScanner) scanDue(ctx context.Context) error {
	now := s.now().UTC()
	scanID := s.newID()
	ctx = observability.WithCorrelationID(ctx, scanID)
	logger := observability.WithContextLogger(s.logger, ctx)

	s.refreshOrphans(ctx, logger)

	staleBefore := now.Add(-s.lease)
	due, err := s.calls.DueForReminder(ctx, now, staleBefore, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due follow-ups: %w", err)
	}

	published := 0
	for i := range due {
		if s.publishOne(ctx, logger, scanID, &due[i], now, staleBefore) {
			published++
		}
	}

	if len(due) > 0 {
		logger.Info("due follow-ups scanned",
			zap.Int("due", len(due)),
			zap.Int("published", published),
		)
	}
	return nil
}

func (s *DueScanner) publishOne(
	ctx context.Context,
	logger *zap.Logger,
	scanID string,
	call *domain.CallView,
	now, staleBefore time.Time,
) bool {
	if call.RemindedAt != nil {
		logger.Warn("reclaiming follow-up whose reminder lease expired",
			zap.Int64("callId", call.ID),
			zap.Time("claimedAt", *call.RemindedAt),
		)
	}

	claimedAt := now.Truncate(time.Microsecond)
	claimed, err := s.calls.MarkReminded(ctx, call.ID, claimedAt, staleBefore)
	if err != nil {
		logger.Error("failed to claim due follow-up",
			zap.Int64("callId", call.ID),
			zap.Error(err),
		)
		return false
	}
	if !claimed {
		logger.Info("follow-up changed before reminder claim", zap.Int64("callId", call.ID))
		return false
	}

	msg := queue.FollowUpDueMessage{
		MessageID:     s.newID(),
		CorrelationID: scanID,
		CallID:        call.ID,
		LeadID:        call.LeadID,
		LeadKey:       call.LeadKey,
		Agent:         call.Agent,
		Project:       call.Project,
		AttemptLevel:  call.AttemptLevel,
		Priority:      call.Priority,
		ClaimedAt:     claimedAt,
	}
	if call.NextCallAt != nil {
		msg.NextCallAt = *call.NextCallAt
	}

	if err := s.publisher.Publish(ctx, queue.FollowUpsDueQueue, msg); err != nil {
		logger.Error("failed to publish due follow-up",
			zap.Int64("callId", call.ID),
			zap.String("queue", queue.FollowUpsDueQueue),
			zap.Error(err),
		)
		if _, releaseErr := s.calls.ReleaseReminder(ctx, call.ID); releaseErr != nil {
			logger.Error("failed to release unpublished follow-up",
				zap.Int64("callId", call.ID),
				zap.Error(releaseErr),
			)
		}
		return false
	}

	s.metrics.IncReminderPublished(call.Priority.String())
	return true
}

func (s *DueScanner) refreshOrphans(ctx context.Context, logger *zap.Logger) {
	count, err := s.calls.CountOrphans(ctx, domain.LeadFilter{})
	if err != nil {
		logger.Warn("failed to count orphan call attempts", zap.Error(err))
		return
	}
	s.metrics.SetOrphanCallAttempts(count)
	if count > 0 {
		logger.Warn("data integrity warning: orphan call attempts", zap.Int64("count", count))
	}
}
