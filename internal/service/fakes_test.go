package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/kpi"
	"github.com/kursadbilgin/relance-engine/internal/provider"
	"github.com/kursadbilgin/relance-engine/internal/queue"
	"github.com/kursadbilgin/relance-engine/internal/ratelimit"
	"github.com/kursadbilgin/relance-engine/internal/repository"
)

var (
	_ repository.CallRepository     = (*fakeCallRepo)(nil)
	_ repository.LeadRepository     = (*fakeLeadRepo)(nil)
	_ repository.DeliveryRepository = (*fakeDeliveryRepo)(nil)
	_ DashboardCache                = (*fakeDashboardCache)(nil)
	_ queue.Publisher               = (*fakePublisher)(nil)
	_ queue.Consumer                = (*fakeConsumer)(nil)
	_ provider.Dialer               = (*fakeDialer)(nil)
	_ ratelimit.RateLimiter         = (*fakeRateLimiter)(nil)
)

type fakeCallRepo struct {
	recordCallFn       func(ctx context.Context, cmd domain.RecordCall) (*domain.Completion, error)
	scheduleFollowUpFn func(ctx context.Context, cmd domain.ScheduleFollowUp) (*domain.CallAttempt, error)
	completeFollowUpFn func(ctx context.Context, cmd domain.CompleteFollowUp) (*domain.Completion, error)
	getByIDFn          func(ctx context.Context, id int64) (*domain.CallView, error)
	listByLeadFn       func(ctx context.Context, leadID int64) ([]domain.CallAttempt, error)
	listPendingFn      func(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error)
	listClosedFn       func(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error)
	countOrphansFn     func(ctx context.Context, filter domain.LeadFilter) (int64, error)
	dueForReminderFn   func(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.CallView, error)
	markRemindedFn     func(ctx context.Context, id int64, at, staleBefore time.Time) (bool, error)
	releaseReminderFn  func(ctx context.Context, id int64) (bool, error)
}

func (f *fakeCallRepo) RecordCall(ctx context.Context, cmd domain.RecordCall) (*domain.Completion, error) {
	if f.recordCallFn != nil {
		return f.recordCallFn(ctx, cmd)
	}
	return &domain.Completion{}, nil
}

func (f *fakeCallRepo) ScheduleFollowUp(ctx context.Context, cmd domain.ScheduleFollowUp) (*domain.CallAttempt, error) {
	if f.scheduleFollowUpFn != nil {
		return f.scheduleFollowUpFn(ctx, cmd)
	}
	return &domain.CallAttempt{}, nil
}

func (f *fakeCallRepo) CompleteFollowUp(ctx context.Context, cmd domain.CompleteFollowUp) (*domain.Completion, error) {
	if f.completeFollowUpFn != nil {
		return f.completeFollowUpFn(ctx, cmd)
	}
	return &domain.Completion{}, nil
}

func (f *fakeCallRepo) GetByID(ctx context.Context, id int64) (*domain.CallView, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeCallRepo) ListByLead(ctx context.Context, leadID int64) ([]domain.CallAttempt, error) {
	if f.listByLeadFn != nil {
		return f.listByLeadFn(ctx, leadID)
	}
	return nil, nil
}

func (f *fakeCallRepo) ListPending(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error) {
	if f.listPendingFn != nil {
		return f.listPendingFn(ctx, filter, page)
	}
	return domain.Page[domain.CallView]{}, nil
}

func (f *fakeCallRepo) ListClosed(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error) {
	if f.listClosedFn != nil {
		return f.listClosedFn(ctx, filter, page)
	}
	return domain.Page[domain.CallView]{}, nil
}

func (f *fakeCallRepo) CountOrphans(ctx context.Context, filter domain.LeadFilter) (int64, error) {
	if f.countOrphansFn != nil {
		return f.countOrphansFn(ctx, filter)
	}
	return 0, nil
}

func (f *fakeCallRepo) DueForReminder(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.CallView, error) {
	if f.dueForReminderFn != nil {
		return f.dueForReminderFn(ctx, now, staleBefore, limit)
	}
	return nil, nil
}

func (f *fakeCallRepo) MarkReminded(ctx context.Context, id int64, at, staleBefore time.Time) (bool, error) {
	if f.markRemindedFn != nil {
		return f.markRemindedFn(ctx, id, at, staleBefore)
	}
	return true, nil
}

func (f *fakeCallRepo) ReleaseReminder(ctx context.Context, id int64) (bool, error) {
	if f.releaseReminderFn != nil {
		return f.releaseReminderFn(ctx, id)
	}
	return true, nil
}

type fakeLeadRepo struct {
	createFn  func(ctx context.Context, lead *domain.Lead) (bool, error)
	getByIDFn func(ctx context.Context, id int64) (*domain.LeadStats, error)
	listFn    func(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.LeadStats], error)
	statsFn   func(ctx context.Context, filter domain.LeadFilter) ([]domain.LeadStats, error)
}

func (f *fakeLeadRepo) Create(ctx context.Context, lead *domain.Lead) (bool, error) {
	if f != nil && f.createFn != nil {
		return f.createFn(ctx, lead)
	}
	return true, nil
}

func (f *fakeLeadRepo) GetByID(ctx context.Context, id int64) (*domain.LeadStats, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeLeadRepo) List(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.LeadStats], error) {
	if f.listFn != nil {
		return f.listFn(ctx, filter, page)
	}
	return domain.Page[domain.LeadStats]{}, nil
}

func (f *fakeLeadRepo) Stats(ctx context.Context, filter domain.LeadFilter) ([]domain.LeadStats, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, filter)
	}
	return nil, nil
}

type fakeDeliveryRepo struct {
	createFn      func(ctx context.Context, d *domain.ReminderDelivery) error
	listByCallFn  func(ctx context.Context, callID int64) ([]domain.ReminderDelivery, error)
	countByCallFn func(ctx context.Context, callID int64) (int, error)
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *domain.ReminderDelivery) error {
	if f != nil && f.createFn != nil {
		return f.createFn(ctx, d)
	}
	return nil
}

func (f *fakeDeliveryRepo) ListByCall(ctx context.Context, callID int64) ([]domain.ReminderDelivery, error) {
	if f != nil && f.listByCallFn != nil {
		return f.listByCallFn(ctx, callID)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) CountByCall(ctx context.Context, callID int64) (int, error) {
	if f != nil && f.countByCallFn != nil {
		return f.countByCallFn(ctx, callID)
	}
	return 0, nil
}

type fakeDashboardCache struct {
	getOrComputeFn func(ctx context.Context, filter domain.LeadFilter, compute func(ctx context.Context) (kpi.Dashboard, error)) (kpi.Dashboard, bool, error)
	invalidateFn   func(ctx context.Context) error
	invalidations  int
}

func (f *fakeDashboardCache) GetOrCompute(
	ctx context.Context,
	filter domain.LeadFilter,
	compute func(ctx context.Context) (kpi.Dashboard, error),
) (kpi.Dashboard, bool, error) {
	if f.getOrComputeFn != nil {
		return f.getOrComputeFn(ctx, filter, compute)
	}
	d, err := compute(ctx)
	return d, false, err
}

func (f *fakeDashboardCache) Invalidate(ctx context.Context) error {
	f.invalidations++
	if f.invalidateFn != nil {
		return f.invalidateFn(ctx)
	}
	return nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.FollowUpDueMessage) error
	closeFn   func() error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.FollowUpDueMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queue string, handler queue.MessageHandler) error
	closeFn   func() error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeDialer struct {
	dialFn func(ctx context.Context, req provider.DialRequest) (*provider.ProviderResponse, error)
}

func (f *fakeDialer) Dial(ctx context.Context, req provider.DialRequest) (*provider.ProviderResponse, error) {
	if f.dialFn != nil {
		return f.dialFn(ctx, req)
	}
	return &provider.ProviderResponse{}, nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, agent string) (bool, error)
	waitFn  func(ctx context.Context, agent string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, agent string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, agent)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, agent string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, agent)
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
