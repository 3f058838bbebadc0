package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/kpi"
	"github.com/kursadbilgin/relance-engine/internal/observability"
	"github.com/kursadbilgin/relance-engine/internal/repository"
	"github.com/kursadbilgin/relance-engine/internal/temporal"
	"go.uber.org/zap"
)

type LeadService struct {
	leads  repository.LeadRepository
	calls  repository.CallRepository
	cache  DashboardCache
	clock  *temporal.Clock
	logger *zap.Logger
}

// CreateLeadInput is a lead as pushed by the CRM. LeadCreatedAt is a civil
// timestamp in the clock's timezone, or RFC 3339.
type CreateLeadInput struct {
	LeadKey       string
	Project       string
	LeadType      string
	LeadCreatedAt string
}

// LeadDetail is a lead with its indicators and every attempt, oldest first.
type LeadDetail struct {
	Summary kpi.LeadSummary
	History []domain.CallAttempt
}

func NewLeadService(
	leads repository.LeadRepository,
	calls repository.CallRepository,
	cache DashboardCache,
	clock *temporal.Clock,
	logger *zap.Logger,
) (*LeadService, error) {
	if leads == nil {
		return nil, fmt.Errorf("lead repository is required")
	}
	if calls == nil {
		return nil, fmt.Errorf("call repository is required")
	}
	if clock == nil {
		paris, err := temporal.LoadClock(temporal.DefaultTimezone)
		if err != nil {
			return nil, err
		}
		clock = paris
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LeadService{
		leads:  leads,
		calls:  calls,
		cache:  cache,
		clock:  clock,
		logger: logger,
	}, nil
}

// CreateLead is idempotent on LeadKey: a known key returns the stored lead with
// created=false and leaves it untouched.
func (s *LeadService) CreateLead(ctx context.Context, in CreateLeadInput) (*domain.Lead, bool, error) {
	createdAt, err := s.clock.ParseCivil(in.LeadCreatedAt)
	if err != nil {
		return nil, false, err
	}

	lead := &domain.Lead{
		LeadKey:       strings.TrimSpace(in.LeadKey),
		Project:       strings.TrimSpace(in.Project),
		LeadType:      strings.TrimSpace(in.LeadType),
		LeadCreatedAt: createdAt,
	}
	if err := lead.Validate(); err != nil {
		return nil, false, err
	}

	created, err := s.leads.Create(ctx, lead)
	if err != nil {
		return nil, false, err
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	if !created {
		logger.Debug("lead already known", zap.String("leadKey", lead.LeadKey), zap.Int64("leadId", lead.ID))
		return lead, false, nil
	}

	invalidateDashboards(ctx, s.cache, s.logger)
	logger.Info("lead created",
		zap.Int64("leadId", lead.ID),
		zap.String("leadKey", lead.LeadKey),
		zap.String("project", lead.Project),
	)
	return lead, true, nil
}

func (s *LeadService) GetLead(ctx context.Context, id int64) (*LeadDetail, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: lead id is required", domain.ErrValidation)
	}

	stats, err := s.leads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	history, err := s.calls.ListByLead(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead history: %w", err)
	}

	return &LeadDetail{
		Summary: kpi.Summarize(*stats, s.clock.Location()),
		History: history,
	}, nil
}

func (s *LeadService) ListLeads(
	ctx context.Context,
	filter domain.LeadFilter,
	page domain.PageRequest,
) (domain.Page[kpi.LeadSummary], error) {
	stats, err := s.leads.List(ctx, filter, page)
	if err != nil {
		return domain.Page[kpi.LeadSummary]{}, err
	}

	return domain.Page[kpi.LeadSummary]{
		Items:    kpi.SummarizeAll(stats.Items, s.clock.Location()),
		Page:     stats.Page,
		PageSize: stats.PageSize,
		Total:    stats.Total,
	}, nil
}

// Clock exposes the timezone used to read and render civil timestamps.
func (s *LeadService) Clock() *temporal.Clock {
	return s.clock
}
