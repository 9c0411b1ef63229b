package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"fieldpay/internal/models/db_models"
)

type PaymentMethodRepository interface {
	FindById(ctx context.Context, tenantID, id uuid.UUID) (*db_models.PaymentMethod, error)
	FindGateway(ctx context.Context, tenantID, accountID uuid.UUID, methodType db_models.PaymentMethodType) (*db_models.PaymentMethod, error)
	// CreateGateway inserts the synthetic gateway method, returning the existing
	// one when a concurrent insert won.
	CreateGateway(ctx context.Context, method *db_models.PaymentMethod) (*db_models.PaymentMethod, error)
	// SetDefault clears every default of the account, then flags id.
	SetDefault(ctx context.Context, tenantID, accountID, id uuid.UUID) error
}

type paymentMethodRepository struct {
	db *gorm.DB
}

func NewPaymentMethodRepository(db *gorm.DB) PaymentMethodRepository {
	return &paymentMethodRepository{db: db}
}

func (r *paymentMethodRepository) FindById(ctx context.Context, tenantID, id uuid.UUID) (*db_models.PaymentMethod, error) {
	var method db_models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&method).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &method, nil
}

func (r *paymentMethodRepository) FindGateway(ctx context.Context, tenantID, accountID uuid.UUID, methodType db_models.PaymentMethodType) (*db_models.PaymentMethod, error) {
	var method db_models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND account_id = ? AND type = ? AND is_gateway = TRUE", tenantID, accountID, methodType).
		First(&method).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &method, nil
}

func (r *paymentMethodRepository) CreateGateway(ctx context.Context, method *db_models.PaymentMethod) (*db_models.PaymentMethod, error) {
	method.IsGateway = true
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(method)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return nil, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return method, nil
	}

	existing, err := r.FindGateway(ctx, method.TenantID, method.AccountID, method.Type)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.New("gateway payment method conflict but no existing row found")
	}
	return existing, nil
}

func (r *paymentMethodRepository) SetDefault(ctx context.Context, tenantID, accountID, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db_models.PaymentMethod{}).
			Where("tenant_id = ? AND account_id = ? AND is_default = TRUE", tenantID, accountID).
			Update("is_default", false).Error; err != nil {
			return err
		}

		res := tx.Model(&db_models.PaymentMethod{}).
			Where("tenant_id = ? AND account_id = ? AND id = ?", tenantID, accountID, id).
			Update("is_default", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
