package request_models

import "github.com/shopspring/decimal"

type RetryPaymentRequest struct {
	Attempt     int `json:"attempt" binding:"omitempty,min=1"`
	MaxAttempts int `json:"max_attempts" binding:"omitempty,min=1,max=10"`
}

type CreateRecurringPaymentRequest struct {
	InvoiceID   string          `json:"invoice_id" binding:"required,uuid"`
	Interval    string          `json:"interval" binding:"required,oneof=weekly monthly quarterly yearly"`
	Amount      decimal.Decimal `json:"amount" binding:"required,gt=0"`
	Currency    string          `json:"currency" binding:"omitempty,len=3"`
	ProductName string          `json:"product_name" binding:"omitempty,max=120"`
}

type CancelRecurringPaymentQuery struct {
	Immediately bool `form:"immediately"`
}
