package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/kpi"
	"github.com/kursadbilgin/relance-engine/internal/observability"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"github.com/kursadbilgin/relance-engine/internal/temporal"
	"go.uber.org/zap"
)

// DashboardService computes the reactivity and combativity dashboard, through the
// cache when one is configured.
type DashboardService struct {
	leads   repository.LeadRepository
	cache   DashboardCache
	clock   *temporal.Clock
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewDashboardService(
	leads repository.LeadRepository,
	cache DashboardCache,
	clock *temporal.Clock,
	logger *zap.Logger,
) (*DashboardService, error) {
	if leads == nil {
		return nil, fmt.Errorf("lead repository is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DashboardService{
		leads:  leads,
		cache:  cache,
		clock:  clock,
		logger: logger,
	}, nil
}

func (s *DashboardService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// GetDashboard never fails because of the cache: a cache error falls back to a
// direct computation.
func (s *DashboardService) GetDashboard(ctx context.Context, filter domain.LeadFilter) (kpi.Dashboard, error) {
	if s.cache == nil {
		return s.compute(ctx, filter)
	}

	var computeErr error
	computed := false
	dashboard, hit, err := s.cache.GetOrCompute(ctx, filter, func(ctx context.Context) (kpi.Dashboard, error) {
		computed = true
		d, err := s.compute(ctx, filter)
		computeErr = err
		return d, err
	})
	if computeErr != nil {
		return kpi.Dashboard{}, computeErr
	}
	s.metrics.ObserveDashboardCache(hit, err)
	if err == nil {
		return dashboard, nil
	}

	observability.WithContextLogger(s.logger, ctx).Warn("dashboard cache unavailable",
		zap.String("project", filter.Project),
		zap.String("leadType", filter.LeadType),
		zap.Error(err),
	)
	if computed {
		return dashboard, nil
	}
	return s.compute(ctx, filter)
}

func (s *DashboardService) compute(ctx context.Context, filter domain.LeadFilter) (kpi.Dashboard, error) {
	stats, err := s.leads.Stats(ctx, filter)
	if err != nil {
		return kpi.Dashboard{}, fmt.Errorf("failed to load lead statistics: %w", err)
	}
	return kpi.BuildDashboard(kpi.SummarizeAll(stats, s.clock.Location())), nil
}
