package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"fieldpay/pkg/utils"
)

// Metadata keys written on every gateway object so webhook events can be
// attributed to a tenant without a local join.
const (
	MetaInvoiceID = "invoiceId"
	MetaTenantID  = "tenantId"
	MetaAccountID = "accountId"
	MetaCreatedBy = "createdBy"
)

type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntentResult, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error)
	ConfirmPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error)
	CancelPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error)

	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error)
	CreatePrice(ctx context.Context, input CreatePriceInput) (*PriceResult, error)

	CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*SubscriptionResult, error)
	CancelSubscription(ctx context.Context, id string, immediately bool) (*SubscriptionResult, error)
	GetSubscription(ctx context.Context, id string) (*SubscriptionResult, error)

	// VerifyWebhookSignature must be given the request body exactly as received.
	VerifyWebhookSignature(payload []byte, signature string) (*GatewayEvent, error)
}

type CreatePaymentIntentInput struct {
	Amount         decimal.Decimal
	Currency       string
	InvoiceID      string
	TenantID       string
	CreatedBy      string
	CustomerID     string
	CustomerEmail  string
	CustomerName   string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type PaymentIntentResult struct {
	PaymentIntentID string
	ClientSecret    string
	Amount          decimal.Decimal
	Currency        string
	Status          string
	Metadata        map[string]string
	// Last charge failure, empty while none happened.
	ErrorCode    string
	DeclineCode  string
	ErrorMessage string
}

type CreatePriceInput struct {
	Amount      decimal.Decimal
	Currency    string
	Interval    GatewayInterval
	ProductName string
	Metadata    map[string]string
}

type PriceResult struct {
	PriceID   string
	ProductID string
}

type SubscriptionResult struct {
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	ClientSecret      string
	Metadata          map[string]string
}

// GatewayEvent is a verified webhook delivery. Object holds the raw JSON of
// the event's data object.
type GatewayEvent struct {
	ID      string
	Type    string
	Created time.Time
	Object  json.RawMessage
}

type BillingInterval string

const (
	IntervalWeekly    BillingInterval = "weekly"
	IntervalMonthly   BillingInterval = "monthly"
	IntervalQuarterly BillingInterval = "quarterly"
	IntervalYearly    BillingInterval = "yearly"
)

// GatewayInterval is a recurring price period: Count units of Unit.
type GatewayInterval struct {
	Unit  string
	Count int64
}

// Quarterly billing is one price charged every three months.
var billingIntervals = map[BillingInterval]GatewayInterval{
	IntervalWeekly:    {Unit: "week", Count: 1},
	IntervalMonthly:   {Unit: "month", Count: 1},
	IntervalQuarterly: {Unit: "month", Count: 3},
	IntervalYearly:    {Unit: "year", Count: 1},
}

func ResolveInterval(interval BillingInterval) (GatewayInterval, error) {
	gi, ok := billingIntervals[interval]
	if !ok {
		return GatewayInterval{}, utils.NewValidation("unsupported billing interval %q", interval)
	}
	return gi, nil
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a currency amount to integer cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
