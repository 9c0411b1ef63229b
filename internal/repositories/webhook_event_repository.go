package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"fieldpay/internal/models/db_models"
)

type WebhookEventRepository interface {
	// Begin records a delivery. For a redelivery it bumps the attempt counter
	// and returns the previously stored row; for a first delivery it returns nil.
	Begin(ctx context.Context, event *db_models.WebhookEvent) (*db_models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processingError string) error
}

type webhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Begin(ctx context.Context, event *db_models.WebhookEvent) (*db_models.WebhookEvent, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return nil, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return nil, nil
	}

	var existing db_models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", event.Provider, event.EventID).
		First(&existing).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Model(&db_models.WebhookEvent{}).
		Where("id = ?", existing.ID).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processingError string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&db_models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     now,
			"processing_error": processingError,
			"updated_at":       now.Unix(),
		}).Error
}
