package response_models

type PaymentIntentResponse struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret,omitempty"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status,omitempty"`
}

type RetryPaymentResponse struct {
	Success         bool   `json:"success"`
	Attempt         int    `json:"attempt"`
	Message         string `json:"message"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret,omitempty"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

type InvoiceBalanceResponse struct {
	InvoiceID   string `json:"invoice_id"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	Total       string `json:"total"`
	Paid        string `json:"paid"`
	Outstanding string `json:"outstanding"`
}

type PaymentResponse struct {
	ID              string  `json:"id"`
	InvoiceID       string  `json:"invoice_id"`
	PaymentMethodID *string `json:"payment_method_id,omitempty"`
	Amount          string  `json:"amount"`
	Currency        string  `json:"currency"`
	ReferenceNumber *string `json:"reference_number,omitempty"`
	PaymentDate     string  `json:"payment_date"`
	Notes           string  `json:"notes,omitempty"`
	CreatedBy       string  `json:"created_by"`
}

type RecurringPaymentResponse struct {
	SubscriptionID    string `json:"subscription_id"`
	CustomerID        string `json:"customer_id,omitempty"`
	PriceID           string `json:"price_id,omitempty"`
	Status            string `json:"status"`
	CurrentPeriodEnd  string `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	ClientSecret      string `json:"client_secret,omitempty"`
}
