package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/kpi"
	"github.com/kursadbilgin/relance-engine/internal/observability"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"go.uber.org/zap"
)

// DashboardCache memoizes dashboards per filter until the next write.
type DashboardCache interface {
	GetOrCompute(
		ctx context.Context,
		filter domain.LeadFilter,
		compute func(ctx context.Context) (kpi.Dashboard, error),
	) (kpi.Dashboard, bool, error)
	Invalidate(ctx context.Context) error
}

// FollowUpService records calls and drives the pending/closed lifecycle of call
// attempts.
type FollowUpService struct {
	calls      repository.CallRepository
	deliveries repository.DeliveryRepository
	cache      DashboardCache
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// FollowUpContext is what an agent sees before calling a lead back.
type FollowUpContext struct {
	Call       domain.CallView
	History    []domain.CallAttempt
	Deliveries []domain.ReminderDelivery
}

func NewFollowUpService(
	calls repository.CallRepository,
	deliveries repository.DeliveryRepository,
	cache DashboardCache,
	logger *zap.Logger,
) (*FollowUpService, error) {
	if calls == nil {
		return nil, fmt.Errorf("call repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FollowUpService{
		calls:      calls,
		deliveries: deliveries,
		cache:      cache,
		logger:     logger,
	}, nil
}

func (s *FollowUpService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *FollowUpService) RecordCall(ctx context.Context, cmd domain.RecordCall) (*domain.Completion, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	completion, err := s.calls.RecordCall(ctx, cmd)
	if err != nil {
		return nil, err
	}

	s.afterClose(ctx, completion)
	observability.WithContextLogger(s.logger, ctx).Info("call recorded",
		zap.Int64("leadId", cmd.LeadID),
		zap.Int64("callId", completion.Closed.ID),
		zap.String("agent", cmd.Agent),
		zap.String("result", completion.Closed.Result.String()),
		zap.Bool("followUpScheduled", completion.Next != nil),
	)
	return completion, nil
}

func (s *FollowUpService) ScheduleFollowUp(ctx context.Context, cmd domain.ScheduleFollowUp) (*domain.CallAttempt, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	scheduled, err := s.calls.ScheduleFollowUp(ctx, cmd)
	if err != nil {
		return nil, err
	}

	s.invalidateDashboards(ctx)
	observability.WithContextLogger(s.logger, ctx).Info("follow-up scheduled",
		zap.Int64("leadId", cmd.LeadID),
		zap.Int64("callId", scheduled.ID),
		zap.String("agent", cmd.Agent),
		zap.Timep("nextCallAt", scheduled.NextCallAt),
	)
	return scheduled, nil
}

// CompleteFollowUp closes a pending attempt. Attempts with neither date set are
// accepted too, which is how legacy orphans get reconciled.
func (s *FollowUpService) CompleteFollowUp(ctx context.Context, cmd domain.CompleteFollowUp) (*domain.Completion, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	completion, err := s.calls.CompleteFollowUp(ctx, cmd)
	if err != nil {
		return nil, err
	}

	s.afterClose(ctx, completion)
	observability.WithContextLogger(s.logger, ctx).Info("follow-up completed",
		zap.Int64("callId", completion.Closed.ID),
		zap.String("result", completion.Closed.Result.String()),
		zap.Bool("followUpScheduled", completion.Next != nil),
	)
	return completion, nil
}

func (s *FollowUpService) GetFollowUp(ctx context.Context, callID int64) (*FollowUpContext, error) {
	if callID <= 0 {
		return nil, fmt.Errorf("%w: call id is required", domain.ErrValidation)
	}

	view, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}

	history, err := s.calls.ListByLead(ctx, view.LeadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead history: %w", err)
	}

	result := &FollowUpContext{Call: *view, History: history}
	if s.deliveries != nil {
		deliveries, err := s.deliveries.ListByCall(ctx, callID)
		if err != nil {
			return nil, fmt.Errorf("failed to load reminder deliveries: %w", err)
		}
		result.Deliveries = deliveries
	}
	return result, nil
}

// ListPending returns the worklist. Orphan rows in scope are reported as integrity
// warnings on the page.
func (s *FollowUpService) ListPending(
	ctx context.Context,
	filter domain.LeadFilter,
	page domain.PageRequest,
) (domain.Page[domain.CallView], error) {
	result, err := s.calls.ListPending(ctx, filter, page)
	if err != nil {
		return result, err
	}
	result.IntegrityWarnings = s.countOrphans(ctx, filter)
	return result, nil
}

func (s *FollowUpService) ListClosed(
	ctx context.Context,
	filter domain.LeadFilter,
	page domain.PageRequest,
) (domain.Page[domain.CallView], error) {
	result, err := s.calls.ListClosed(ctx, filter, page)
	if err != nil {
		return result, err
	}
	result.IntegrityWarnings = s.countOrphans(ctx, filter)
	return result, nil
}

func (s *FollowUpService) afterClose(ctx context.Context, completion *domain.Completion) {
	s.invalidateDashboards(ctx)

	closed := completion.Closed
	definitive := closed.Result.IsDefinitive()
	s.metrics.IncCallClosed(definitive)
	if definitive || completion.Next != nil {
		return
	}

	// Non-definitive result with nothing planned: the lead drops off the worklist.
	project := "unknown"
	if view, err := s.calls.GetByID(ctx, closed.ID); err == nil {
		project = view.Project
	}
	s.metrics.IncUnscheduledNonDefinitive(project)
	observability.WithContextLogger(s.logger, ctx).Info("non-definitive result without follow-up",
		zap.Int64("leadId", closed.LeadID),
		zap.Int64("callId", closed.ID),
		zap.String("project", project),
		zap.String("result", closed.Result.String()),
	)
}

func (s *FollowUpService) countOrphans(ctx context.Context, filter domain.LeadFilter) int64 {
	logger := observability.WithContextLogger(s.logger, ctx)

	count, err := s.calls.CountOrphans(ctx, filter)
	if err != nil {
		logger.Warn("failed to count orphan call attempts", zap.Error(err))
		return 0
	}
	if filter == (domain.LeadFilter{}) {
		s.metrics.SetOrphanCallAttempts(count)
	}
	if count > 0 {
		logger.Warn("data integrity warning: orphan call attempts",
			zap.Int64("count", count),
			zap.String("project", filter.Project),
			zap.String("leadType", filter.LeadType),
		)
	}
	return count
}

func (s *FollowUpService) invalidateDashboards(ctx context.Context) {
	invalidateDashboards(ctx, s.cache, s.logger)
}

// invalidateDashboards never fails the write that triggered it; stale entries expire
// with their TTL.
func invalidateDashboards(ctx context.Context, cache DashboardCache, logger *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx); err != nil {
		observability.WithContextLogger(logger, ctx).Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}
