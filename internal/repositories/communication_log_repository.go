package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"fieldpay/internal/models/db_models"
)

type CommunicationLogRepository interface {
	Create(ctx context.Context, entry *db_models.CommunicationLog) error
	ListByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]db_models.CommunicationLog, error)
}

type communicationLogRepository struct {
	db *gorm.DB
}

func NewCommunicationLogRepository(db *gorm.DB) CommunicationLogRepository {
	return &communicationLogRepository{db: db}
}

func (r *communicationLogRepository) Create(ctx context.Context, entry *db_models.CommunicationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *communicationLogRepository) ListByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]db_models.CommunicationLog, error) {
	var entries []db_models.CommunicationLog
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}
