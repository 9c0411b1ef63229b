package db_models

import "time"

// WebhookEvent stores every verified delivery from the payment processor,
// deduplicated on (provider, event_id).
type WebhookEvent struct {
	BaseModel
	Provider        string     `gorm:"size:20;not null;uniqueIndex:ux_webhook_events_provider_event,priority:1" json:"provider"`
	EventID         string     `gorm:"size:191;not null;uniqueIndex:ux_webhook_events_provider_event,priority:2" json:"event_id"`
	EventType       string     `gorm:"size:100;not null;index" json:"event_type"`
	Payload         string     `gorm:"type:text;not null" json:"payload"`
	SignatureValid  bool       `gorm:"not null;default:false" json:"signature_valid"`
	Attempts        int        `gorm:"not null;default:1" json:"attempts"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
}

// Succeeded reports whether a previous delivery was handled without error.
func (e *WebhookEvent) Succeeded() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
