package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"fieldpay/internal/models/db_models"
	"fieldpay/internal/repositories"
	"fieldpay/pkg/utils"
)

type PaymentServiceConfig struct {
	Currency string
	Retry    RetryPolicy
}

type RetryRequest struct {
	TenantID    uuid.UUID
	InvoiceID   uuid.UUID
	UserID      string
	Attempt     int
	MaxAttempts int
}

type RetryResult struct {
	Success         bool
	Attempt         int
	Message         string
	PaymentIntentID string
	ClientSecret    string
	Amount          decimal.Decimal
	Currency        string
}

type RecurringPaymentInput struct {
	InvoiceID   uuid.UUID
	Interval    BillingInterval
	Amount      decimal.Decimal
	Currency    string
	ProductName string
}

type RecurringPaymentResult struct {
	SubscriptionID   string
	CustomerID       string
	PriceID          string
	Status           string
	CurrentPeriodEnd time.Time
	ClientSecret     string
}

// PaymentService drives payment workflows against the ledger and the gateway.
// API methods return utils.AppError kinds; webhook handlers return plain errors
// that the dispatcher converts into an acknowledged failure.
type PaymentService interface {
	CreateInvoicePaymentIntent(ctx context.Context, tenantID, invoiceID uuid.UUID, userID, idempotencyKey string) (*PaymentIntentResult, error)
	RetryPayment(ctx context.Context, req RetryRequest) (*RetryResult, error)
	ConfirmPaymentIntent(ctx context.Context, tenantID uuid.UUID, paymentIntentID string) (*PaymentIntentResult, error)
	CancelPaymentIntent(ctx context.Context, tenantID uuid.UUID, paymentIntentID string) (*PaymentIntentResult, error)
	SendPaymentReminder(ctx context.Context, tenantID, invoiceID uuid.UUID, userID string) (*InvoiceBalance, error)

	CreateRecurringPayment(ctx context.Context, tenantID uuid.UUID, userID string, input RecurringPaymentInput) (*RecurringPaymentResult, error)
	CancelRecurringPayment(ctx context.Context, tenantID uuid.UUID, subscriptionID string, immediately bool) (*SubscriptionResult, error)
	GetRecurringPayment(ctx context.Context, tenantID uuid.UUID, subscriptionID string) (*SubscriptionResult, error)

	HandlePaymentIntentSucceeded(ctx context.Context, ev *GatewayEvent) error
	HandlePaymentIntentFailed(ctx context.Context, ev *GatewayEvent) error
	HandleInvoicePaymentSucceeded(ctx context.Context, ev *GatewayEvent) error
	HandleInvoicePaymentFailed(ctx context.Context, ev *GatewayEvent) error
	HandleSubscriptionLifecycle(ctx context.Context, ev *GatewayEvent, change SubscriptionChange) error
}

type paymentService struct {
	ledger        LedgerService
	accounts      repositories.AccountRepository
	gateway       PaymentGateway
	notifications NotificationService
	locker        AccountLocker
	sleeper       Sleeper
	retry         RetryPolicy
	currency      string
	flight        singleflight.Group
	log           zerolog.Logger
	now           func() time.Time
}

func NewPaymentService(
	ledger LedgerService,
	accounts repositories.AccountRepository,
	gateway PaymentGateway,
	notifications NotificationService,
	locker AccountLocker,
	sleeper Sleeper,
	cfg PaymentServiceConfig,
	log zerolog.Logger,
) PaymentService {
	retry := cfg.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = DefaultMaxAttempts
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = DefaultBaseDelay
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = DefaultMaxDelay
	}
	if sleeper == nil {
		sleeper = NewTimerSleeper()
	}
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}

	return &paymentService{
		ledger:        ledger,
		accounts:      accounts,
		gateway:       gateway,
		notifications: notifications,
		locker:        locker,
		sleeper:       sleeper,
		retry:         retry,
		currency:      currency,
		log:           log,
		now:           time.Now,
	}
}

// ------------------- Pay now / retry -------------------

func (p *paymentService) CreateInvoicePaymentIntent(ctx context.Context, tenantID, invoiceID uuid.UUID, userID, idempotencyKey string) (*PaymentIntentResult, error) {
	invoice, err := p.ledger.FindInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, apiError(err)
	}
	if invoice.IsPaid() {
		return nil, alreadyPaid(invoice)
	}

	intent, err := p.chargeInvoice(ctx, tenantID, invoice, userID, 0, idempotencyKey)
	if err != nil {
		return nil, apiError(err)
	}
	return intent, nil
}

// RetryPayment runs the retry state machine for one invoice. Each pass
// re-reads the invoice so a payment settled meanwhile aborts the sequence.
func (p *paymentService) RetryPayment(ctx context.Context, req RetryRequest) (*RetryResult, error) {
	attempt := req.Attempt
	if attempt < 1 {
		attempt = 1
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = p.retry.MaxAttempts
	}
	logger := p.log.With().
		Str("tenant_id", req.TenantID.String()).
		Str("invoice_id", req.InvoiceID.String()).
		Int("max_attempts", maxAttempts).
		Logger()

	for {
		invoice, err := p.ledger.FindInvoice(ctx, req.TenantID, req.InvoiceID)
		if err != nil {
			return nil, apiError(err)
		}
		if invoice.IsPaid() {
			logger.Info().Int("attempt", attempt).Msg("retry aborted, invoice already paid")
			return nil, alreadyPaid(invoice)
		}
		if attempt > maxAttempts {
			logger.Warn().Int("attempt", attempt).Msg("retry attempts exhausted")
			return nil, utils.NewTerminal("Maximum retry attempts (%d) reached for invoice %s", maxAttempts, req.InvoiceID)
		}

		if delay := p.retry.Delay(attempt); delay > 0 {
			if err := p.sleeper.Sleep(ctx, delay); err != nil {
				return nil, apiError(err)
			}
		}

		intent, err := p.chargeInvoice(ctx, req.TenantID, invoice, req.UserID, attempt, "")
		if err == nil {
			logger.Info().Int("attempt", attempt).Str("payment_intent_id", intent.PaymentIntentID).Msg("payment retry succeeded")
			return &RetryResult{
				Success:         true,
				Attempt:         attempt,
				Message:         fmt.Sprintf("Payment retry attempt %d succeeded", attempt),
				PaymentIntentID: intent.PaymentIntentID,
				ClientSecret:    intent.ClientSecret,
				Amount:          intent.Amount,
				Currency:        intent.Currency,
			}, nil
		}
		if !IsRetryable(err) {
			return nil, apiError(err)
		}

		logger.Warn().Err(err).Int("attempt", attempt).Msg("payment attempt failed, will retry")
		attempt++
	}
}

// chargeInvoice creates a payment intent for the outstanding balance.
func (p *paymentService) chargeInvoice(ctx context.Context, tenantID uuid.UUID, invoice *db_models.Invoice, userID string, attempt int, idempotencyKey string) (*PaymentIntentResult, error) {
	paid, err := p.ledger.TotalPaid(ctx, tenantID, invoice.ID)
	if err != nil {
		return nil, err
	}
	outstanding := invoice.TotalAmount.Sub(paid)
	if !outstanding.IsPositive() {
		if _, err := p.ledger.SettleIfComplete(ctx, tenantID, invoice.ID); err != nil {
			p.log.Warn().Err(err).Str("invoice_id", invoice.ID.String()).Msg("settle fully paid invoice")
		}
		return nil, alreadyPaid(invoice)
	}

	input := CreatePaymentIntentInput{
		Amount:         outstanding,
		Currency:       p.currencyFor(invoice.Currency),
		InvoiceID:      invoice.ID.String(),
		TenantID:       tenantID.String(),
		CreatedBy:      userID,
		Description:    fmt.Sprintf("Invoice %s", invoice.InvoiceNumber),
		IdempotencyKey: idempotencyKey,
		Metadata: map[string]string{
			MetaAccountID:   invoice.AccountID.String(),
			"invoiceNumber": invoice.InvoiceNumber,
		},
	}
	if attempt > 0 {
		input.Metadata["attempt"] = strconv.Itoa(attempt)
	}

	account, err := p.accounts.FindById(ctx, tenantID, invoice.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: load account: %w", utils.ErrDatabaseError, err)
	}
	if account != nil {
		input.CustomerEmail = account.Email
		input.CustomerName = account.Name
		if account.HasGatewayCustomer() {
			input.CustomerID = *account.GatewayCustomerID
		}
	}

	return p.gateway.CreatePaymentIntent(ctx, input)
}

func (p *paymentService) ConfirmPaymentIntent(ctx context.Context, tenantID uuid.UUID, paymentIntentID string) (*PaymentIntentResult, error) {
	if err := p.ownIntent(ctx, tenantID, paymentIntentID); err != nil {
		return nil, apiError(err)
	}
	res, err := p.gateway.ConfirmPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, apiError(err)
	}
	return res, nil
}

func (p *paymentService) CancelPaymentIntent(ctx context.Context, tenantID uuid.UUID, paymentIntentID string) (*PaymentIntentResult, error) {
	if err := p.ownIntent(ctx, tenantID, paymentIntentID); err != nil {
		return nil, apiError(err)
	}
	res, err := p.gateway.CancelPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, apiError(err)
	}
	return res, nil
}

func (p *paymentService) ownIntent(ctx context.Context, tenantID uuid.UUID, paymentIntentID string) error {
	intent, err := p.gateway.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return err
	}
	if intent.Metadata[MetaTenantID] != tenantID.String() {
		return utils.NewNotFound("payment intent %s not found", paymentIntentID)
	}
	return nil
}

func (p *paymentService) SendPaymentReminder(ctx context.Context, tenantID, invoiceID uuid.UUID, userID string) (*InvoiceBalance, error) {
	invoice, err := p.ledger.FindInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, apiError(err)
	}
	if invoice.IsPaid() {
		return nil, alreadyPaid(invoice)
	}
	balance, err := p.ledger.Outstanding(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, apiError(err)
	}
	if !balance.Outstanding.IsPositive() {
		return nil, alreadyPaid(invoice)
	}

	err = p.notifications.PaymentReminder(ctx, ReminderNotice{
		TenantID:      tenantID,
		AccountID:     invoice.AccountID,
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		Outstanding:   balance.Outstanding,
		Currency:      p.currencyFor(invoice.Currency),
		DueDate:       invoice.DueDate,
		CreatedBy:     userID,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return balance, nil
}

// ------------------- Recurring payments -------------------

func (p *paymentService) CreateRecurringPayment(ctx context.Context, tenantID uuid.UUID, userID string, input RecurringPaymentInput) (*RecurringPaymentResult, error) {
	interval, err := ResolveInterval(input.Interval)
	if err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, utils.NewValidation("recurring amount must be greater than zero")
	}

	invoice, err := p.ledger.FindInvoice(ctx, tenantID, input.InvoiceID)
	if err != nil {
		return nil, apiError(err)
	}
	account, err := p.accounts.FindById(ctx, tenantID, invoice.AccountID)
	if err != nil {
		return nil, apiError(err)
	}
	if account == nil {
		return nil, utils.NewNotFound("account %s not found", invoice.AccountID)
	}
	if strings.TrimSpace(account.Email) == "" {
		return nil, utils.NewBadRequest("account has no email address, recurring payments need an addressable customer", nil)
	}

	customerID, err := p.ensureCustomer(ctx, tenantID, account)
	if err != nil {
		return nil, apiError(err)
	}

	metadata := map[string]string{
		MetaTenantID:  tenantID.String(),
		MetaInvoiceID: invoice.ID.String(),
		MetaAccountID: account.ID.String(),
		MetaCreatedBy: userID,
	}
	productName := strings.TrimSpace(input.ProductName)
	if productName == "" {
		productName = fmt.Sprintf("%s recurring service", account.Name)
	}
	currency := input.Currency
	if currency == "" {
		currency = p.currencyFor(invoice.Currency)
	}

	price, err := p.gateway.CreatePrice(ctx, CreatePriceInput{
		Amount:      input.Amount,
		Currency:    currency,
		Interval:    interval,
		ProductName: productName,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, apiError(err)
	}

	sub, err := p.gateway.CreateSubscription(ctx, customerID, price.PriceID, metadata)
	if err != nil {
		return nil, apiError(err)
	}

	p.log.Info().
		Str("tenant_id", tenantID.String()).
		Str("invoice_id", invoice.ID.String()).
		Str("subscription_id", sub.SubscriptionID).
		Str("interval", string(input.Interval)).
		Msg("recurring payment created")

	return &RecurringPaymentResult{
		SubscriptionID:   sub.SubscriptionID,
		CustomerID:       customerID,
		PriceID:          price.PriceID,
		Status:           sub.Status,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		ClientSecret:     sub.ClientSecret,
	}, nil
}

// ensureCustomer returns the account's gateway customer, creating it at most
// once per account: concurrent callers in this process share one flight, and
// processes coordinate through the account lock and a conditional update.
func (p *paymentService) ensureCustomer(ctx context.Context, tenantID uuid.UUID, account *db_models.Account) (string, error) {
	if account.HasGatewayCustomer() {
		return *account.GatewayCustomerID, nil
	}

	key := fmt.Sprintf("fieldpay:customer:%s:%s", tenantID, account.ID)
	v, err, _ := p.flight.Do(key, func() (interface{}, error) {
		unlock, err := p.locker.Lock(ctx, key)
		if err != nil {
			return "", err
		}
		defer unlock()

		fresh, err := p.accounts.FindById(ctx, tenantID, account.ID)
		if err != nil {
			return "", fmt.Errorf("%w: reload account: %w", utils.ErrDatabaseError, err)
		}
		if fresh != nil && fresh.HasGatewayCustomer() {
			return *fresh.GatewayCustomerID, nil
		}

		created, err := p.gateway.CreateCustomer(ctx, account.Email, account.Name, map[string]string{
			MetaTenantID:  tenantID.String(),
			MetaAccountID: account.ID.String(),
		})
		if err != nil {
			return "", err
		}

		stored, err := p.accounts.SetGatewayCustomerID(ctx, tenantID, account.ID, created)
		if err != nil {
			// The remote customer exists; keep going with it so this request
			// completes. The next setup will link a customer again.
			p.log.Error().Err(err).
				Str("tenant_id", tenantID.String()).
				Str("account_id", account.ID.String()).
				Str("customer_id", created).
				Msg("gateway customer created but not saved on account")
			return created, nil
		}
		if stored != created {
			p.log.Warn().
				Str("account_id", account.ID.String()).
				Str("orphan_customer_id", created).
				Str("customer_id", stored).
				Msg("account already linked to another customer")
		}
		return stored, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *paymentService) CancelRecurringPayment(ctx context.Context, tenantID uuid.UUID, subscriptionID string, immediately bool) (*SubscriptionResult, error) {
	if _, err := p.ownSubscription(ctx, tenantID, subscriptionID); err != nil {
		return nil, apiError(err)
	}
	sub, err := p.gateway.CancelSubscription(ctx, subscriptionID, immediately)
	if err != nil {
		return nil, apiError(err)
	}
	p.log.Info().
		Str("tenant_id", tenantID.String()).
		Str("subscription_id", subscriptionID).
		Bool("immediately", immediately).
		Msg("recurring payment cancelled")
	return sub, nil
}

func (p *paymentService) GetRecurringPayment(ctx context.Context, tenantID uuid.UUID, subscriptionID string) (*SubscriptionResult, error) {
	sub, err := p.ownSubscription(ctx, tenantID, subscriptionID)
	if err != nil {
		return nil, apiError(err)
	}
	return sub, nil
}

func (p *paymentService) ownSubscription(ctx context.Context, tenantID uuid.UUID, subscriptionID string) (*SubscriptionResult, error) {
	sub, err := p.gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Metadata[MetaTenantID] != tenantID.String() {
		return nil, utils.NewNotFound("subscription %s not found", subscriptionID)
	}
	return sub, nil
}

// ------------------- Webhook handlers -------------------

// eventScope is the tenant linkage carried in gateway metadata.
type eventScope struct {
	tenantID  uuid.UUID
	invoiceID uuid.UUID
	createdBy string
}

// scopeFrom reads invoice and tenant ids from metadata. ok=false means the
// event cannot be attributed and must be dropped.
func (p *paymentService) scopeFrom(ev *GatewayEvent, meta map[string]string) (eventScope, bool) {
	logger := p.log.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()

	rawInvoice := meta[MetaInvoiceID]
	if rawInvoice == "" {
		logger.Warn().Msg("event has no invoiceId metadata, dropping")
		return eventScope{}, false
	}
	invoiceID, err := uuid.Parse(rawInvoice)
	if err != nil {
		logger.Warn().Str("invoice_id", rawInvoice).Msg("event invoiceId is not a valid id, dropping")
		return eventScope{}, false
	}
	tenantID, err := uuid.Parse(meta[MetaTenantID])
	if err != nil {
		logger.Warn().Str("tenant_id", meta[MetaTenantID]).Msg("event has no valid tenantId metadata, dropping")
		return eventScope{}, false
	}

	createdBy := meta[MetaCreatedBy]
	if createdBy == "" {
		createdBy = "stripe-webhook"
	}
	return eventScope{tenantID: tenantID, invoiceID: invoiceID, createdBy: createdBy}, true
}

func (p *paymentService) HandlePaymentIntentSucceeded(ctx context.Context, ev *GatewayEvent) error {
	intent, err := PaymentIntentFromEvent(ev)
	if err != nil {
		return err
	}
	scope, ok := p.scopeFrom(ev, intent.Metadata)
	if !ok {
		return nil
	}
	if intent.Status != "succeeded" {
		return fmt.Errorf("payment intent %s has status %q, expected succeeded", intent.ID, intent.Status)
	}

	amount := intent.AmountReceived
	if !amount.IsPositive() {
		amount = intent.Amount
	}
	return p.recordGatewayPayment(ctx, ev, scope, intent.ID, amount, intent.Currency,
		fmt.Sprintf("Stripe payment intent %s", intent.ID))
}

func (p *paymentService) HandleInvoicePaymentSucceeded(ctx context.Context, ev *GatewayEvent) error {
	inv, err := InvoiceFromEvent(ev)
	if err != nil {
		return err
	}
	scope, ok := p.scopeFrom(ev, inv.Metadata)
	if !ok {
		return nil
	}
	if !inv.AmountPaid.IsPositive() {
		p.log.Info().Str("event_id", ev.ID).Str("gateway_invoice_id", inv.ID).Msg("subscription invoice paid nothing, skipping")
		return nil
	}
	return p.recordGatewayPayment(ctx, ev, scope, inv.ID, inv.AmountPaid, inv.Currency,
		fmt.Sprintf("Stripe subscription %s invoice %s", inv.SubscriptionID, inv.ID))
}

// recordGatewayPayment records a processor payment idempotently by reference,
// settles the invoice, and sends the receipt only for a newly created payment.
func (p *paymentService) recordGatewayPayment(ctx context.Context, ev *GatewayEvent, scope eventScope, reference string, amount decimal.Decimal, currency, notes string) error {
	invoice, err := p.ledger.FindInvoice(ctx, scope.tenantID, scope.invoiceID)
	if err != nil {
		return err
	}
	method, err := p.ledger.EnsurePaymentMethod(ctx, scope.tenantID, invoice.AccountID, db_models.PaymentMethodStripe)
	if err != nil {
		return err
	}

	paymentDate := ev.Created
	if paymentDate.IsZero() {
		paymentDate = p.now()
	}
	payment, created, err := p.ledger.RecordPayment(ctx, scope.tenantID, RecordPaymentInput{
		InvoiceID:       invoice.ID,
		Amount:          amount,
		Currency:        currency,
		ReferenceNumber: reference,
		PaymentDate:     paymentDate,
		PaymentMethodID: &method.ID,
		Notes:           notes,
		CreatedBy:       scope.createdBy,
	})
	if err != nil {
		return err
	}

	settlement, err := p.ledger.SettleIfComplete(ctx, scope.tenantID, invoice.ID)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	err = p.notifications.PaymentReceived(ctx, PaymentReceivedNotice{
		TenantID:      scope.tenantID,
		AccountID:     invoice.AccountID,
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		PaymentID:     payment.ID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Reference:     reference,
		Settled:       settlement.Settled,
		CreatedBy:     scope.createdBy,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("payment_id", payment.ID.String()).Msg("payment recorded but receipt notification failed")
	}
	return nil
}

func (p *paymentService) HandlePaymentIntentFailed(ctx context.Context, ev *GatewayEvent) error {
	intent, err := PaymentIntentFromEvent(ev)
	if err != nil {
		return err
	}
	scope, ok := p.scopeFrom(ev, intent.Metadata)
	if !ok {
		return nil
	}
	invoice, err := p.ledger.FindInvoice(ctx, scope.tenantID, scope.invoiceID)
	if err != nil {
		return err
	}

	return p.notifications.PaymentFailed(ctx, PaymentFailedNotice{
		TenantID:      scope.tenantID,
		AccountID:     invoice.AccountID,
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		Reference:     intent.ID,
		Source:        "payment_intent",
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		ErrorCode:     intent.ErrorCode,
		DeclineCode:   intent.DeclineCode,
		ErrorMessage:  intent.ErrorMessage,
	})
}

func (p *paymentService) HandleInvoicePaymentFailed(ctx context.Context, ev *GatewayEvent) error {
	inv, err := InvoiceFromEvent(ev)
	if err != nil {
		return err
	}
	scope, ok := p.scopeFrom(ev, inv.Metadata)
	if !ok {
		return nil
	}
	invoice, err := p.ledger.FindInvoice(ctx, scope.tenantID, scope.invoiceID)
	if err != nil {
		return err
	}

	if inv.ErrorCode == "" && inv.PaymentIntentID != "" {
		intent, err := p.gateway.GetPaymentIntent(ctx, inv.PaymentIntentID)
		if err != nil {
			p.log.Warn().Err(err).Str("payment_intent_id", inv.PaymentIntentID).Msg("could not load decline details")
		} else {
			inv.ErrorCode = intent.ErrorCode
			inv.DeclineCode = intent.DeclineCode
			if intent.ErrorMessage != "" {
				inv.ErrorMessage = intent.ErrorMessage
			}
		}
	}

	message := inv.ErrorMessage
	if message == "" {
		message = fmt.Sprintf("Subscription invoice payment failed (attempt %d)", inv.AttemptCount)
	}
	return p.notifications.PaymentFailed(ctx, PaymentFailedNotice{
		TenantID:      scope.tenantID,
		AccountID:     invoice.AccountID,
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		Reference:     inv.ID,
		Source:        "invoice",
		Amount:        inv.AmountDue,
		Currency:      inv.Currency,
		ErrorCode:     inv.ErrorCode,
		DeclineCode:   inv.DeclineCode,
		ErrorMessage:  message,
	})
}

func (p *paymentService) HandleSubscriptionLifecycle(ctx context.Context, ev *GatewayEvent, change SubscriptionChange) error {
	sub, err := SubscriptionFromEvent(ev)
	if err != nil {
		return err
	}
	logger := p.log.With().Str("event_id", ev.ID).Str("subscription_id", sub.ID).Logger()

	for _, key := range []string{MetaInvoiceID, MetaAccountID, MetaTenantID} {
		if sub.Metadata[key] == "" {
			logger.Warn().Str("missing", key).Msg("subscription event lacks attribution metadata, dropping")
			return nil
		}
	}
	tenantID, errT := uuid.Parse(sub.Metadata[MetaTenantID])
	accountID, errA := uuid.Parse(sub.Metadata[MetaAccountID])
	invoiceID, errI := uuid.Parse(sub.Metadata[MetaInvoiceID])
	if err := errors.Join(errT, errA, errI); err != nil {
		logger.Warn().Err(err).Msg("subscription event metadata is malformed, dropping")
		return nil
	}

	return p.notifications.SubscriptionEvent(ctx, SubscriptionNotice{
		TenantID:          tenantID,
		AccountID:         accountID,
		InvoiceID:         invoiceID,
		SubscriptionID:    sub.ID,
		Status:            sub.Status,
		Change:            change,
		CurrentPeriodEnd:  utils.FromUnixSeconds(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	})
}

// ------------------- helpers -------------------

func (p *paymentService) currencyFor(currency string) string {
	if currency == "" {
		return p.currency
	}
	return strings.ToLower(currency)
}

func alreadyPaid(invoice *db_models.Invoice) error {
	return utils.NewTerminal("Invoice %s is already paid", invoice.InvoiceNumber)
}

// apiError keeps classified errors and wraps anything else as a bad request
// carrying the original message.
func apiError(err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return utils.NewBadRequest(err.Error(), err)
}
