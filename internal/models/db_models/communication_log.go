package db_models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CommunicationType string

const (
	CommunicationEmail  CommunicationType = "EMAIL"
	CommunicationSystem CommunicationType = "SYSTEM"
)

type CommunicationCategory string

const (
	CategoryPaymentReceived     CommunicationCategory = "PAYMENT_RECEIVED"
	CategoryPaymentFailed       CommunicationCategory = "PAYMENT_FAILED"
	CategoryPaymentReminder     CommunicationCategory = "PAYMENT_REMINDER"
	CategorySubscriptionCreated CommunicationCategory = "SUBSCRIPTION_CREATED"
	CategorySubscriptionUpdated CommunicationCategory = "SUBSCRIPTION_UPDATED"
	CategorySubscriptionDeleted CommunicationCategory = "SUBSCRIPTION_DELETED"
)

// CommunicationLog is append-only.
type CommunicationLog struct {
	BaseModel
	TenantID         uuid.UUID             `gorm:"type:uuid;not null;index" json:"tenant_id"`
	AccountID        *uuid.UUID            `gorm:"type:uuid;index" json:"account_id,omitempty"`
	InvoiceID        *uuid.UUID            `gorm:"type:uuid;index" json:"invoice_id,omitempty"`
	Type             CommunicationType     `gorm:"size:16;not null" json:"type"`
	Category         CommunicationCategory `gorm:"size:40;not null;index" json:"category"`
	Subject          string                `gorm:"size:255" json:"subject"`
	Content          string                `gorm:"type:text" json:"content"`
	Metadata         datatypes.JSON        `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	FollowUpRequired bool                  `gorm:"not null;default:false;index" json:"follow_up_required"`
	FollowUpDate     *time.Time            `json:"follow_up_date,omitempty"`
	CreatedBy        string                `gorm:"size:64" json:"created_by"`
}
