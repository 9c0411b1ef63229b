package db_models

import "github.com/google/uuid"

// Account is the billed customer of a tenant.
type Account struct {
	BaseModel
	TenantID          uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name              string    `gorm:"size:255;not null" json:"name"`
	Email             string    `gorm:"size:255" json:"email"`
	GatewayCustomerID *string   `gorm:"size:255" json:"gateway_customer_id,omitempty"`
}

func (a *Account) HasGatewayCustomer() bool {
	return a.GatewayCustomerID != nil && *a.GatewayCustomerID != ""
}
