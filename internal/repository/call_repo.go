package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/relance-engine/internal/domain"
	"gorm.io/gorm"
)

const (
	pendingCondition = "call_attempts.done_at IS NULL AND call_attempts.next_call_at IS NOT NULL"
	closedCondition  = "call_attempts.done_at IS NOT NULL"
	orphanCondition  = "call_attempts.done_at IS NULL AND call_attempts.next_call_at IS NULL"

	// unclaimedCondition matches rows never claimed or claimed before the lease cut-off.
	unclaimedCondition = "(call_attempts.reminded_at IS NULL OR call_attempts.reminded_at < ?)"
)

type CallRepository interface {
	// RecordCall stores an executed call: the lead's phone, one closed attempt and the
	// optional chained pending attempt, atomically.
	RecordCall(ctx context.Context, cmd domain.RecordCall) (*domain.Completion, error)
	ScheduleFollowUp(ctx context.Context, cmd domain.ScheduleFollowUp) (*domain.CallAttempt, error)
	// CompleteFollowUp closes an attempt that has no done_at yet and chains the next one.
	CompleteFollowUp(ctx context.Context, cmd domain.CompleteFollowUp) (*domain.Completion, error)
	GetByID(ctx context.Context, id int64) (*domain.CallView, error)
	ListByLead(ctx context.Context, leadID int64) ([]domain.CallAttempt, error)
	ListPending(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error)
	ListClosed(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error)
	CountOrphans(ctx context.Context, filter domain.LeadFilter) (int64, error)
	// DueForReminder returns pending attempts planned at or before now that were never
	// claimed, or whose claim is older than staleBefore.
	DueForReminder(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.CallView, error)
	// MarkReminded claims a pending attempt at the given time. It reports false when
	// another scanner holds a claim newer than staleBefore.
	MarkReminded(ctx context.Context, id int64, at, staleBefore time.Time) (bool, error)
	// ReleaseReminder clears reminded_at on a pending attempt so the next scan picks
	// it up again.
	ReleaseReminder(ctx context.Context, id int64) (bool, error)
}

type GormCallRepo struct {
	store
}

func NewGormCallRepo(db *gorm.DB, opts ...Option) *GormCallRepo {
	return &GormCallRepo{store: newStore(db, opts...)}
}

func (r *GormCallRepo) RecordCall(ctx context.Context, cmd domain.RecordCall) (*domain.Completion, error) {
	if cmd.Result.IsPlanned() {
		return nil, fmt.Errorf("%w: result %q is reserved for scheduled follow-ups", domain.ErrValidation, domain.ResultPlanned)
	}
	now := r.timestamp()

	var completion domain.Completion
	err := r.write(ctx, func(tx *gorm.DB) error {
		completion = domain.Completion{}

		if err := ensureLeadExists(tx, cmd.LeadID); err != nil {
			return err
		}
		if err := tx.Model(&LeadModel{}).Where("id = ?", cmd.LeadID).Update("phone", cmd.Phone).Error; err != nil {
			return err
		}

		closed := &CallAttemptModel{
			LeadID:       cmd.LeadID,
			Agent:        cmd.Agent,
			AttemptLevel: cmd.AttemptLevel,
			Result:       cmd.Result,
			Priority:     cmd.Priority,
			DoneAt:       &now,
			CreatedAt:    now,
		}
		if err := tx.Create(closed).Error; err != nil {
			return err
		}
		completion.Closed = *callModelToDomain(closed)

		if cmd.FollowUp != nil {
			next := pendingModel(cmd.LeadID, cmd.Agent, *cmd.FollowUp, now)
			if err := tx.Create(next).Error; err != nil {
				return err
			}
			completion.Next = callModelToDomain(next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &completion, nil
}

func (r *GormCallRepo) ScheduleFollowUp(ctx context.Context, cmd domain.ScheduleFollowUp) (*domain.CallAttempt, error) {
	now := r.timestamp()

	var scheduled *domain.CallAttempt
	err := r.write(ctx, func(tx *gorm.DB) error {
		if err := ensureLeadExists(tx, cmd.LeadID); err != nil {
			return err
		}

		model := pendingModel(cmd.LeadID, cmd.Agent, domain.FollowUp{
			AttemptLevel: cmd.AttemptLevel,
			At:           cmd.At,
			Priority:     cmd.Priority,
		}, now)
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		scheduled = callModelToDomain(model)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return scheduled, nil
}

func (r *GormCallRepo) CompleteFollowUp(ctx context.Context, cmd domain.CompleteFollowUp) (*domain.Completion, error) {
	now := r.timestamp()

	var completion domain.Completion
	err := r.write(ctx, func(tx *gorm.DB) error {
		completion = domain.Completion{}

		result := tx.Model(&CallAttemptModel{}).
			Where("id = ? AND done_at IS NULL", cmd.CallID).
			Updates(map[string]any{
				"done_at":      now,
				"result":       cmd.Result.String(),
				"priority":     cmd.Priority.String(),
				"next_call_at": nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&CallAttemptModel{}).Where("id = ?", cmd.CallID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrConflict
		}

		var closed CallAttemptModel
		if err := tx.First(&closed, "id = ?", cmd.CallID).Error; err != nil {
			return err
		}
		completion.Closed = *callModelToDomain(&closed)

		if cmd.FollowUp != nil {
			next := pendingModel(closed.LeadID, closed.Agent, *cmd.FollowUp, now)
			if err := tx.Create(next).Error; err != nil {
				return err
			}
			completion.Next = callModelToDomain(next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &completion, nil
}

func (r *GormCallRepo) GetByID(ctx context.Context, id int64) (*domain.CallView, error) {
	var rows []callViewRow
	err := r.viewQuery(ctx, domain.LeadFilter{}).
		Select(callViewColumns).
		Where("call_attempts.id = ?", id).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return callViewRowToDomain(&rows[0]), nil
}

func (r *GormCallRepo) ListByLead(ctx context.Context, leadID int64) ([]domain.CallAttempt, error) {
	var models []CallAttemptModel
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.CallAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *callModelToDomain(&models[i]))
	}
	return attempts, nil
}

func (r *GormCallRepo) ListPending(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error) {
	return r.listViews(ctx, filter, page, pendingCondition,
		"call_attempts.next_call_at ASC", "call_attempts.id ASC")
}

func (r *GormCallRepo) ListClosed(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.CallView], error) {
	return r.listViews(ctx, filter, page, closedCondition,
		"call_attempts.done_at DESC", "call_attempts.id DESC")
}

func (r *GormCallRepo) CountOrphans(ctx context.Context, filter domain.LeadFilter) (int64, error) {
	var count int64
	err := r.viewQuery(ctx, filter).Where(orphanCondition).Count(&count).Error
	return count, err
}

func (r *GormCallRepo) DueForReminder(ctx context.Context, now, staleBefore time.Time, limit int) ([]domain.CallView, error) {
	var rows []callViewRow
	err := r.viewQuery(ctx, domain.LeadFilter{}).
		Select(callViewColumns).
		Where(pendingCondition).
		Where("call_attempts.next_call_at <= ?", now.UTC()).
		Where(unclaimedCondition, staleBefore.UTC()).
		Order("call_attempts.next_call_at ASC").
		Order("call_attempts.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return viewsFromRows(rows), nil
}

func (r *GormCallRepo) MarkReminded(ctx context.Context, id int64, at, staleBefore time.Time) (bool, error) {
	at = at.UTC().Truncate(time.Microsecond)

	updated := false
	err := r.write(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&CallAttemptModel{}).
			Where("id = ? AND done_at IS NULL", id).
			Where(unclaimedCondition, staleBefore.UTC()).
			Update("reminded_at", at)
		if result.Error != nil {
			return result.Error
		}
		updated = result.RowsAffected == 1
		return nil
	})
	return updated, err
}

func (r *GormCallRepo) ReleaseReminder(ctx context.Context, id int64) (bool, error) {
	released := false
	err := r.write(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&CallAttemptModel{}).
			Where("id = ? AND done_at IS NULL AND reminded_at IS NOT NULL", id).
			Update("reminded_at", nil)
		if result.Error != nil {
			return result.Error
		}
		released = result.RowsAffected == 1
		return nil
	})
	return released, err
}

func (r *GormCallRepo) viewQuery(ctx context.Context, filter domain.LeadFilter) *gorm.DB {
	query := r.db.WithContext(ctx).
		Table("call_attempts").
		Joins("JOIN leads ON leads.id = call_attempts.lead_id")
	return applyLeadFilter(query, filter)
}

func (r *GormCallRepo) listViews(
	ctx context.Context,
	filter domain.LeadFilter,
	page domain.PageRequest,
	condition string,
	orders ...string,
) (domain.Page[domain.CallView], error) {
	page = page.Normalize()
	result := domain.Page[domain.CallView]{Page: page.Page, PageSize: page.PageSize}

	query := r.viewQuery(ctx, filter).Where(condition)
	if err := query.Count(&result.Total).Error; err != nil {
		return result, err
	}

	query = query.Select(callViewColumns)
	for _, order := range orders {
		query = query.Order(order)
	}

	var rows []callViewRow
	if err := query.Offset(page.Offset()).Limit(page.PageSize).Scan(&rows).Error; err != nil {
		return result, err
	}

	result.Items = viewsFromRows(rows)
	return result, nil
}

func viewsFromRows(rows []callViewRow) []domain.CallView {
	views := make([]domain.CallView, 0, len(rows))
	for i := range rows {
		views = append(views, *callViewRowToDomain(&rows[i]))
	}
	return views
}

func pendingModel(leadID int64, agent string, f domain.FollowUp, now time.Time) *CallAttemptModel {
	at := f.At.Truncate(time.Microsecond)
	return callModelFromDomain(&domain.CallAttempt{
		LeadID:       leadID,
		Agent:        agent,
		AttemptLevel: f.AttemptLevel,
		Result:       domain.ResultPlanned,
		Priority:     f.Priority,
		NextCallAt:   &at,
		CreatedAt:    now,
	})
}

// ensureLeadExists uses Find so an unknown lead is a plain miss, not a
// record-not-found error reported by the gorm logger.
func ensureLeadExists(tx *gorm.DB, leadID int64) error {
	var lead LeadModel
	result := tx.Select("id").Where("id = ?", leadID).Limit(1).Find(&lead)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
