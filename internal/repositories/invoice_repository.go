package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"fieldpay/internal/models/db_models"
)

type InvoiceRepository interface {
	FindById(ctx context.Context, tenantID, id uuid.UUID) (*db_models.Invoice, error)
	// MarkPaid moves the invoice to PAID unless it already is. Reports whether
	// this call performed the transition.
	MarkPaid(ctx context.Context, tenantID, id uuid.UUID, paidAt time.Time) (bool, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) FindById(ctx context.Context, tenantID, id uuid.UUID) (*db_models.Invoice, error) {
	var invoice db_models.Invoice
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) MarkPaid(ctx context.Context, tenantID, id uuid.UUID, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db_models.Invoice{}).
		Where("tenant_id = ? AND id = ? AND status <> ?", tenantID, id, db_models.InvoiceStatusPaid).
		Updates(map[string]interface{}{
			"status":     db_models.InvoiceStatusPaid,
			"paid_at":    paidAt,
			"updated_at": paidAt.Unix(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
