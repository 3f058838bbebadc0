package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/relance-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LeadRepository interface {
	// Create inserts the lead unless its key already exists. lead is filled with the
	// stored row either way; created reports whether this call inserted it.
	Create(ctx context.Context, lead *domain.Lead) (created bool, err error)
	GetByID(ctx context.Context, id int64) (*domain.LeadStats, error)
	List(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.LeadStats], error)
	// Stats returns every lead in scope with its aggregates.
	Stats(ctx context.Context, filter domain.LeadFilter) ([]domain.LeadStats, error)
}

type GormLeadRepo struct {
	store
}

func NewGormLeadRepo(db *gorm.DB, opts ...Option) *GormLeadRepo {
	return &GormLeadRepo{store: newStore(db, opts...)}
}

func (r *GormLeadRepo) Create(ctx context.Context, lead *domain.Lead) (bool, error) {
	model := leadModelFromDomain(lead)
	if model == nil {
		return false, fmt.Errorf("%w: lead is required", domain.ErrValidation)
	}
	model.ID = 0
	model.Phone = nil
	model.CreatedAt = r.timestamp()

	created := false
	err := r.write(ctx, func(tx *gorm.DB) error {
		created = false
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lead_key"}},
			DoNothing: true,
		}).Create(model)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 && model.ID != 0 {
			created = true
			return nil
		}

		var existing LeadModel
		if err := tx.Where("lead_key = ?", model.LeadKey).First(&existing).Error; err != nil {
			return err
		}
		*model = existing
		return nil
	})
	if err != nil {
		return false, err
	}

	*lead = *leadModelToDomain(model)
	return created, nil
}

func (r *GormLeadRepo) GetByID(ctx context.Context, id int64) (*domain.LeadStats, error) {
	var model LeadModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	closed, err := r.closedAttempts(r.db.WithContext(ctx).Where("call_attempts.lead_id = ?", id))
	if err != nil {
		return nil, err
	}

	stats := aggregateLeads([]LeadModel{model}, closed)
	return &stats[0], nil
}

func (r *GormLeadRepo) List(ctx context.Context, filter domain.LeadFilter, page domain.PageRequest) (domain.Page[domain.LeadStats], error) {
	page = page.Normalize()
	result := domain.Page[domain.LeadStats]{Page: page.Page, PageSize: page.PageSize}

	query := applyLeadFilter(r.db.WithContext(ctx).Model(&LeadModel{}), filter)
	if err := query.Count(&result.Total).Error; err != nil {
		return result, err
	}

	var models []LeadModel
	err := query.
		Order("leads.lead_created_at DESC").
		Order("leads.id DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&models).Error
	if err != nil {
		return result, err
	}
	if len(models) == 0 {
		result.Items = []domain.LeadStats{}
		return result, nil
	}

	ids := make([]int64, 0, len(models))
	for i := range models {
		ids = append(ids, models[i].ID)
	}
	closed, err := r.closedAttempts(r.db.WithContext(ctx).Where("call_attempts.lead_id IN ?", ids))
	if err != nil {
		return result, err
	}

	result.Items = aggregateLeads(models, closed)
	return result, nil
}

func (r *GormLeadRepo) Stats(ctx context.Context, filter domain.LeadFilter) ([]domain.LeadStats, error) {
	var models []LeadModel
	err := applyLeadFilter(r.db.WithContext(ctx).Model(&LeadModel{}), filter).
		Order("leads.id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	scoped := applyLeadFilter(
		r.db.WithContext(ctx).Joins("JOIN leads ON leads.id = call_attempts.lead_id"),
		filter,
	)
	closed, err := r.closedAttempts(scoped)
	if err != nil {
		return nil, err
	}

	return aggregateLeads(models, closed), nil
}

type closedAttemptRow struct {
	ID     int64
	LeadID int64
	Result domain.Result
	DoneAt time.Time
}

// closedAttempts loads the closed attempts selected by query, oldest first.
func (r *GormLeadRepo) closedAttempts(query *gorm.DB) ([]closedAttemptRow, error) {
	var rows []closedAttemptRow
	err := query.
		Model(&CallAttemptModel{}).
		Select("call_attempts.id, call_attempts.lead_id, call_attempts.result, call_attempts.done_at").
		Where("call_attempts.done_at IS NOT NULL").
		Order("call_attempts.done_at ASC").
		Order("call_attempts.id ASC").
		Scan(&rows).Error
	return rows, err
}

// aggregateLeads folds closed attempts (oldest first) into per-lead stats, keeping
// the order of leads.
func aggregateLeads(leads []LeadModel, closed []closedAttemptRow) []domain.LeadStats {
	stats := make([]domain.LeadStats, len(leads))
	index := make(map[int64]int, len(leads))
	for i := range leads {
		stats[i] = domain.LeadStats{Lead: *leadModelToDomain(&leads[i])}
		index[leads[i].ID] = i
	}

	for _, row := range closed {
		i, ok := index[row.LeadID]
		if !ok {
			continue
		}
		doneAt := row.DoneAt.UTC()
		result := row.Result

		s := &stats[i]
		s.CallCount++
		if s.FirstCallAt == nil {
			s.FirstCallAt = &doneAt
		}
		s.LastDoneAt = &doneAt
		s.LastResult = &result
	}

	return stats
}
