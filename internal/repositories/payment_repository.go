package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"fieldpay/internal/models/db_models"
)

type PaymentRepository interface {
	FindByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*db_models.Payment, error)
	// CreateIfAbsent inserts payment unless a row with the same tenant and
	// reference number exists. It returns the stored row and whether it was created.
	CreateIfAbsent(ctx context.Context, payment *db_models.Payment) (*db_models.Payment, bool, error)
	SumByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (decimal.Decimal, error)
	ListByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]db_models.Payment, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) FindByReference(ctx context.Context, tenantID uuid.UUID, reference string) (*db_models.Payment, error) {
	var payment db_models.Payment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND reference_number = ?", tenantID, reference).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) CreateIfAbsent(ctx context.Context, payment *db_models.Payment) (*db_models.Payment, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(payment)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return nil, false, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return payment, true, nil
	}
	if payment.ReferenceNumber == nil {
		return nil, false, errors.New("payment insert affected no rows")
	}

	existing, err := r.FindByReference(ctx, payment.TenantID, *payment.ReferenceNumber)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.New("payment conflict but no existing row found")
	}
	return existing, false, nil
}

func (r *paymentRepository) SumByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := r.db.WithContext(ctx).
		Model(&db_models.Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *paymentRepository) ListByInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]db_models.Payment, error) {
	var payments []db_models.Payment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("payment_date ASC").
		Find(&payments).Error
	return payments, err
}
