package db_models

import "github.com/google/uuid"

type PaymentMethodType string

const (
	PaymentMethodCard         PaymentMethodType = "card"
	PaymentMethodBankTransfer PaymentMethodType = "bank_transfer"
	PaymentMethodCash         PaymentMethodType = "cash"
	PaymentMethodCheck        PaymentMethodType = "check"
	PaymentMethodStripe       PaymentMethodType = "stripe"
)

// PaymentMethod belongs to an account. IsGateway marks the synthetic record
// that gateway-originated payments are attributed to.
type PaymentMethod struct {
	BaseModel
	TenantID  uuid.UUID         `gorm:"type:uuid;not null;index" json:"tenant_id"`
	AccountID uuid.UUID         `gorm:"type:uuid;not null;index" json:"account_id"`
	Type      PaymentMethodType `gorm:"size:32;not null" json:"type"`
	Label     string            `gorm:"size:255" json:"label"`
	IsDefault bool              `gorm:"not null;default:false" json:"is_default"`
	IsGateway bool              `gorm:"not null;default:false" json:"is_gateway"`
}
