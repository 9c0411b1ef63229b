package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"fieldpay/internal/models/db_models"
)

type AccountRepository interface {
	FindById(ctx context.Context, tenantID, id uuid.UUID) (*db_models.Account, error)
	// SetGatewayCustomerID stores customerID only if the account has none yet and
	// returns the id that ends up stored.
	SetGatewayCustomerID(ctx context.Context, tenantID, id uuid.UUID, customerID string) (string, error)
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{
		db: db,
	}
}

func (a *accountRepository) FindById(ctx context.Context, tenantID, id uuid.UUID) (*db_models.Account, error) {
	var account db_models.Account
	err := a.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&account).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &account, nil
}

func (a *accountRepository) SetGatewayCustomerID(ctx context.Context, tenantID, id uuid.UUID, customerID string) (string, error) {
	res := a.db.WithContext(ctx).
		Model(&db_models.Account{}).
		Where("tenant_id = ? AND id = ? AND (gateway_customer_id IS NULL OR gateway_customer_id = '')", tenantID, id).
		Update("gateway_customer_id", customerID)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 1 {
		return customerID, nil
	}

	account, err := a.FindById(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	if account == nil || !account.HasGatewayCustomer() {
		return "", gorm.ErrRecordNotFound
	}
	return *account.GatewayCustomerID, nil
}
