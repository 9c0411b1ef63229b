package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"fieldpay/pkg/utils"
)

type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	APIURL         string // optional, points every backend at a mock or proxy
	Currency       string
	MinChargeMinor int64
}

// StripeGateway implements PaymentGateway on a stripe client. It never retries:
// network retries are disabled on the backend and retry policy lives in the orchestrator.
type StripeGateway struct {
	client         *client.API
	webhookSecret  string
	currency       string
	minChargeMinor int64
	log            zerolog.Logger
}

func NewStripeGateway(cfg StripeConfig, log zerolog.Logger) *StripeGateway {
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripeLogger{log: log},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	sc := &client.API{}
	sc.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}
	minCharge := cfg.MinChargeMinor
	if minCharge <= 0 {
		minCharge = 50
	}

	return &StripeGateway{
		client:         sc,
		webhookSecret:  cfg.WebhookSecret,
		currency:       currency,
		minChargeMinor: minCharge,
		log:            log,
	}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, input CreatePaymentIntentInput) (*PaymentIntentResult, error) {
	minor := ToMinorUnits(input.Amount)
	if !input.Amount.IsPositive() || minor <= 0 {
		return nil, utils.NewValidation("payment amount must be greater than zero")
	}
	if minor < g.minChargeMinor {
		return nil, utils.NewValidation("payment amount %s is below the minimum charge of %s",
			input.Amount.StringFixed(2), FromMinorUnits(g.minChargeMinor).StringFixed(2))
	}
	if input.InvoiceID == "" || input.TenantID == "" {
		return nil, utils.NewValidation("invoice and tenant are required to create a payment intent")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minor),
		Currency: stripe.String(g.currencyOr(input.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if input.CustomerID != "" {
		params.Customer = stripe.String(input.CustomerID)
	}
	if input.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(input.CustomerEmail)
	}
	if input.Description != "" {
		params.Description = stripe.String(input.Description)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	if input.CustomerName != "" {
		params.AddMetadata("customerName", input.CustomerName)
	}
	params.AddMetadata(MetaInvoiceID, input.InvoiceID)
	params.AddMetadata(MetaTenantID, input.TenantID)
	params.AddMetadata(MetaCreatedBy, input.CreatedBy)
	if input.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(input.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return nil, g.fail("create payment intent", err)
	}

	g.log.Info().
		Str("payment_intent_id", pi.ID).
		Str("invoice_id", input.InvoiceID).
		Int64("amount_minor", pi.Amount).
		Msg("payment intent created")
	return intentResult(pi), nil
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error) {
	if id == "" {
		return nil, utils.NewValidation("payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, g.fail("retrieve payment intent", err)
	}
	return intentResult(pi), nil
}

func (g *StripeGateway) ConfirmPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error) {
	if id == "" {
		return nil, utils.NewValidation("payment intent id is required")
	}
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.Confirm(id, params)
	if err != nil {
		return nil, g.fail("confirm payment intent", err)
	}
	return intentResult(pi), nil
}

func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, id string) (*PaymentIntentResult, error) {
	if id == "" {
		return nil, utils.NewValidation("payment intent id is required")
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.Cancel(id, params)
	if err != nil {
		return nil, g.fail("cancel payment intent", err)
	}
	return intentResult(pi), nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	cus, err := g.client.Customers.New(params)
	if err != nil {
		return "", g.fail("create customer", err)
	}
	g.log.Info().Str("customer_id", cus.ID).Msg("customer created")
	return cus.ID, nil
}

// CreatePrice reuses a product with the same name when one exists, then
// creates a recurring price under it.
func (g *StripeGateway) CreatePrice(ctx context.Context, input CreatePriceInput) (*PriceResult, error) {
	minor := ToMinorUnits(input.Amount)
	if minor < g.minChargeMinor {
		return nil, utils.NewValidation("recurring amount %s is below the minimum charge of %s",
			input.Amount.StringFixed(2), FromMinorUnits(g.minChargeMinor).StringFixed(2))
	}
	if input.Interval.Unit == "" || input.Interval.Count < 1 {
		return nil, utils.NewValidation("recurring interval is required")
	}
	if strings.TrimSpace(input.ProductName) == "" {
		return nil, utils.NewValidation("product name is required")
	}

	productID, err := g.findOrCreateProduct(ctx, input.ProductName, input.Metadata)
	if err != nil {
		return nil, err
	}

	params := &stripe.PriceParams{
		Currency:   stripe.String(g.currencyOr(input.Currency)),
		UnitAmount: stripe.Int64(minor),
		Product:    stripe.String(productID),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(input.Interval.Unit),
			IntervalCount: stripe.Int64(input.Interval.Count),
		},
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	price, err := g.client.Prices.New(params)
	if err != nil {
		return nil, g.fail("create price", err)
	}
	return &PriceResult{PriceID: price.ID, ProductID: productID}, nil
}

func (g *StripeGateway) findOrCreateProduct(ctx context.Context, name string, metadata map[string]string) (string, error) {
	search := &stripe.ProductSearchParams{}
	search.Query = fmt.Sprintf("name:'%s'", strings.ReplaceAll(name, "'", `\'`))
	search.Context = ctx

	iter := g.client.Products.Search(search)
	for iter.Next() {
		p := iter.Product()
		if strings.EqualFold(p.Name, name) {
			return p.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", g.fail("search products", err)
	}

	params := &stripe.ProductParams{Name: stripe.String(name)}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	product, err := g.client.Products.New(params)
	if err != nil {
		return "", g.fail("create product", err)
	}
	g.log.Info().Str("product_id", product.ID).Str("name", name).Msg("product created")
	return product.ID, nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, customerID, priceID string, metadata map[string]string) (*SubscriptionResult, error) {
	if customerID == "" || priceID == "" {
		return nil, utils.NewValidation("customer and price are required to create a subscription")
	}
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand("latest_invoice.payment_intent")
	params.Context = ctx

	sub, err := g.client.Subscriptions.New(params)
	if err != nil {
		return nil, g.fail("create subscription", err)
	}
	return subscriptionResult(sub), nil
}

// CancelSubscription terminates immediately, or flags cancel_at_period_end and
// leaves the subscription active until the period boundary.
func (g *StripeGateway) CancelSubscription(ctx context.Context, id string, immediately bool) (*SubscriptionResult, error) {
	if id == "" {
		return nil, utils.NewValidation("subscription id is required")
	}

	var (
		sub *stripe.Subscription
		err error
	)
	if immediately {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		sub, err = g.client.Subscriptions.Cancel(id, params)
	} else {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx
		sub, err = g.client.Subscriptions.Update(id, params)
	}
	if err != nil {
		return nil, g.fail("cancel subscription", err)
	}
	return subscriptionResult(sub), nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, id string) (*SubscriptionResult, error) {
	if id == "" {
		return nil, utils.NewValidation("subscription id is required")
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := g.client.Subscriptions.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == 404 {
			return nil, utils.NewNotFound("subscription %s not found", id)
		}
		return nil, g.fail("retrieve subscription", err)
	}
	return subscriptionResult(sub), nil
}

func (g *StripeGateway) VerifyWebhookSignature(payload []byte, signature string) (*GatewayEvent, error) {
	if signature == "" {
		return nil, utils.NewInvalidSignature(errors.New("missing stripe-signature header"))
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		g.log.Warn().Err(err).Msg("webhook signature verification failed")
		return nil, utils.NewInvalidSignature(err)
	}

	ev := &GatewayEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: utils.FromUnixSeconds(event.Created),
	}
	if event.Data != nil {
		ev.Object = event.Data.Raw
	}
	return ev, nil
}

func (g *StripeGateway) currencyOr(currency string) string {
	if currency == "" {
		return g.currency
	}
	return strings.ToLower(currency)
}

// fail logs the full processor error and returns a gateway error whose message
// is safe to show to callers.
func (g *StripeGateway) fail(op string, err error) error {
	var se *stripe.Error
	ev := g.log.Error().Err(err).Str("op", op)
	if errors.As(err, &se) {
		ev = ev.Str("stripe_type", string(se.Type)).
			Str("stripe_code", string(se.Code)).
			Str("decline_code", string(se.DeclineCode)).
			Int("http_status", se.HTTPStatusCode).
			Str("request_id", se.RequestID)
	}
	ev.Msg("payment processor request failed")

	return utils.NewGatewayError(publicGatewayMessage(op, se), err)
}

func publicGatewayMessage(op string, se *stripe.Error) string {
	if se != nil && se.Type == stripe.ErrorTypeCard {
		switch se.Code {
		case stripe.ErrorCodeCardDeclined:
			return "Payment was declined by the card issuer"
		case stripe.ErrorCodeExpiredCard:
			return "Card has expired"
		case stripe.ErrorCodeIncorrectCVC:
			return "Card security code is incorrect"
		}
		return "Card could not be charged"
	}
	return fmt.Sprintf("Payment processor failed to %s", op)
}

func intentResult(pi *stripe.PaymentIntent) *PaymentIntentResult {
	res := &PaymentIntentResult{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		Amount:          FromMinorUnits(pi.Amount),
		Currency:        string(pi.Currency),
		Status:          string(pi.Status),
		Metadata:        pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		res.ErrorCode = string(pi.LastPaymentError.Code)
		res.DeclineCode = string(pi.LastPaymentError.DeclineCode)
		res.ErrorMessage = pi.LastPaymentError.Msg
	}
	return res
}

func subscriptionResult(sub *stripe.Subscription) *SubscriptionResult {
	res := &SubscriptionResult{
		SubscriptionID:    sub.ID,
		Status:            string(sub.Status),
		CurrentPeriodEnd:  utils.FromUnixSeconds(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		res.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		res.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		res.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return res
}

// ------------------- Event payloads -------------------

type IntentEvent struct {
	ID             string
	Status         string
	Amount         decimal.Decimal
	AmountReceived decimal.Decimal
	Currency       string
	Metadata       map[string]string
	ErrorCode      string
	DeclineCode    string
	ErrorMessage   string
}

func PaymentIntentFromEvent(ev *GatewayEvent) (*IntentEvent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Object, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent of event %s: %w", ev.ID, err)
	}
	out := &IntentEvent{
		ID:             pi.ID,
		Status:         string(pi.Status),
		Amount:         FromMinorUnits(pi.Amount),
		AmountReceived: FromMinorUnits(pi.AmountReceived),
		Currency:       string(pi.Currency),
		Metadata:       pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		out.ErrorCode = string(pi.LastPaymentError.Code)
		out.DeclineCode = string(pi.LastPaymentError.DeclineCode)
		out.ErrorMessage = pi.LastPaymentError.Msg
	}
	return out, nil
}

type InvoiceEvent struct {
	ID              string
	SubscriptionID  string
	CustomerID      string
	PaymentIntentID string
	Status          string
	AmountPaid      decimal.Decimal
	AmountDue       decimal.Decimal
	Currency        string
	AttemptCount    int64
	Metadata        map[string]string
	ErrorCode       string
	DeclineCode     string
	ErrorMessage    string
}

// invoicePayload decodes only what the handlers need. Subscription and
// customer may be ids or expanded objects depending on the API version.
type invoicePayload struct {
	ID                  string            `json:"id"`
	Status              string            `json:"status"`
	AmountPaid          int64             `json:"amount_paid"`
	AmountDue           int64             `json:"amount_due"`
	Currency            string            `json:"currency"`
	AttemptCount        int64             `json:"attempt_count"`
	Metadata            map[string]string `json:"metadata"`
	Subscription        json.RawMessage   `json:"subscription"`
	Customer            json.RawMessage   `json:"customer"`
	PaymentIntent       json.RawMessage   `json:"payment_intent"`
	SubscriptionDetails *struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
	LastFinalizationError *struct {
		Message string `json:"message"`
	} `json:"last_finalization_error"`
}

// expandedIntent is the part of an expanded payment_intent the failure path reads.
type expandedIntent struct {
	LastPaymentError *struct {
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"last_payment_error"`
}

func InvoiceFromEvent(ev *GatewayEvent) (*InvoiceEvent, error) {
	var p invoicePayload
	if err := json.Unmarshal(ev.Object, &p); err != nil {
		return nil, fmt.Errorf("decode invoice of event %s: %w", ev.ID, err)
	}

	// Subscription metadata carries the tenant linkage; invoice metadata wins on overlap.
	meta := map[string]string{}
	if p.SubscriptionDetails != nil {
		for k, v := range p.SubscriptionDetails.Metadata {
			meta[k] = v
		}
	}
	for k, v := range p.Metadata {
		meta[k] = v
	}

	out := &InvoiceEvent{
		ID:              p.ID,
		SubscriptionID:  expandableID(p.Subscription),
		CustomerID:      expandableID(p.Customer),
		PaymentIntentID: expandableID(p.PaymentIntent),
		Status:          p.Status,
		AmountPaid:      FromMinorUnits(p.AmountPaid),
		AmountDue:       FromMinorUnits(p.AmountDue),
		Currency:        p.Currency,
		AttemptCount:    p.AttemptCount,
		Metadata:        meta,
	}
	// Declines live on the payment intent; finalization errors only cover
	// invoices that never reached a charge.
	var pi expandedIntent
	if len(p.PaymentIntent) > 0 && p.PaymentIntent[0] == '{' {
		if err := json.Unmarshal(p.PaymentIntent, &pi); err == nil && pi.LastPaymentError != nil {
			out.ErrorCode = pi.LastPaymentError.Code
			out.DeclineCode = pi.LastPaymentError.DeclineCode
			out.ErrorMessage = pi.LastPaymentError.Message
		}
	}
	if out.ErrorMessage == "" && p.LastFinalizationError != nil {
		out.ErrorMessage = p.LastFinalizationError.Message
	}
	return out, nil
}

type SubscriptionEvent struct {
	ID                string
	Status            string
	CustomerID        string
	CurrentPeriodEnd  int64
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

func SubscriptionFromEvent(ev *GatewayEvent) (*SubscriptionEvent, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(ev.Object, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription of event %s: %w", ev.ID, err)
	}
	out := &SubscriptionEvent{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out, nil
}

func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// stripeLogger routes the stripe client's own logging into zerolog.
type stripeLogger struct {
	log zerolog.Logger
}

func (l *stripeLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
func (l *stripeLogger) Infof(format string, v ...interface{})  { l.log.Debug().Msgf(format, v...) }
func (l *stripeLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l *stripeLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
