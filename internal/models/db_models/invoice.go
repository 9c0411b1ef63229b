package db_models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	InvoiceStatusVoid      InvoiceStatus = "VOID"
)

// Invoice is created by the invoicing flow; the payment core only reads it and
// moves it to PAID through the ledger.
type Invoice struct {
	BaseModel
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:ux_invoices_tenant_number,priority:1" json:"tenant_id"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"account_id"`
	InvoiceNumber string          `gorm:"size:64;not null;uniqueIndex:ux_invoices_tenant_number,priority:2" json:"invoice_number"`
	Status        InvoiceStatus   `gorm:"size:20;not null;index" json:"status"`
	Subtotal      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	TaxAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax_amount"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	Currency      string          `gorm:"size:3;not null;default:'usd'" json:"currency"`
	IssueDate     time.Time       `gorm:"not null" json:"issue_date"`
	DueDate       time.Time       `gorm:"not null" json:"due_date"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`

	Account *Account `gorm:"foreignKey:AccountID" json:"-"`
}

func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}

// Validate checks total_amount = subtotal + tax_amount.
func (i *Invoice) Validate() error {
	if !i.Subtotal.Add(i.TaxAmount).Equal(i.TotalAmount) {
		return fmt.Errorf("invoice %s total %s does not equal subtotal %s + tax %s",
			i.InvoiceNumber, i.TotalAmount, i.Subtotal, i.TaxAmount)
	}
	return nil
}
