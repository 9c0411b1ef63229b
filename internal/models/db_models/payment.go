package db_models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is immutable once written. ReferenceNumber holds the gateway
// transaction id and is unique per tenant.
type Payment struct {
	BaseModel
	TenantID        uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:ux_payments_tenant_reference,priority:1" json:"tenant_id"`
	InvoiceID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	PaymentMethodID *uuid.UUID      `gorm:"type:uuid" json:"payment_method_id,omitempty"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	PaymentDate     time.Time       `gorm:"not null" json:"payment_date"`
	ReferenceNumber *string         `gorm:"size:255;uniqueIndex:ux_payments_tenant_reference,priority:2" json:"reference_number,omitempty"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedBy       string          `gorm:"size:64" json:"created_by"`

	Invoice *Invoice `gorm:"foreignKey:InvoiceID" json:"-"`
}
