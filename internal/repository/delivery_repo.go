package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kursadbilgin/relance-engine/internal/domain"
	"gorm.io/gorm"
)

// DeliveryRepository keeps the dialer hand-off log of each follow-up reminder.
type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.ReminderDelivery) error
	ListByCall(ctx context.Context, callID int64) ([]domain.ReminderDelivery, error)
	// CountByCall returns how many hand-offs were already logged for callID.
	CountByCall(ctx context.Context, callID int64) (int, error)
}

type GormDeliveryRepo struct {
	store
}

func NewGormDeliveryRepo(db *gorm.DB, opts ...Option) *GormDeliveryRepo {
	return &GormDeliveryRepo{store: newStore(db, opts...)}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.ReminderDelivery) error {
	model := deliveryModelFromDomain(d)
	if model == nil {
		return fmt.Errorf("%w: delivery is required", domain.ErrValidation)
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = r.timestamp()
	}

	err := r.write(ctx, func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		return err
	}

	*d = *deliveryModelToDomain(model)
	return nil
}

func (r *GormDeliveryRepo) ListByCall(ctx context.Context, callID int64) ([]domain.ReminderDelivery, error) {
	var models []ReminderDeliveryModel
	err := r.db.WithContext(ctx).
		Where("call_id = ?", callID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.ReminderDelivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}

	return deliveries, nil
}

func (r *GormDeliveryRepo) CountByCall(ctx context.Context, callID int64) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ReminderDeliveryModel{}).Where("call_id = ?", callID).Count(&count).Error
	return int(count), err
}
