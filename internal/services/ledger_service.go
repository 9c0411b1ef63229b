package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"fieldpay/internal/models/db_models"
	"fieldpay/internal/repositories"
	"fieldpay/pkg/utils"
)

type RecordPaymentInput struct {
	InvoiceID       uuid.UUID
	Amount          decimal.Decimal
	Currency        string
	ReferenceNumber string
	PaymentDate     time.Time
	PaymentMethodID *uuid.UUID
	Notes           string
	CreatedBy       string
}

type Settlement struct {
	Invoice     *db_models.Invoice
	TotalPaid   decimal.Decimal
	PercentPaid decimal.Decimal
	Settled     bool
	// Transitioned is true only for the call that moved the invoice to PAID.
	Transitioned bool
}

type InvoiceBalance struct {
	InvoiceID   uuid.UUID
	Status      db_models.InvoiceStatus
	Currency    string
	Total       decimal.Decimal
	Paid        decimal.Decimal
	Outstanding decimal.Decimal
}

// LedgerService owns invoice and payment bookkeeping. Every call is scoped
// by an explicit tenant id.
type LedgerService interface {
	FindInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*db_models.Invoice, error)
	RecordPayment(ctx context.Context, tenantID uuid.UUID, input RecordPaymentInput) (*db_models.Payment, bool, error)
	TotalPaid(ctx context.Context, tenantID, invoiceID uuid.UUID) (decimal.Decimal, error)
	Outstanding(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceBalance, error)
	SettleIfComplete(ctx context.Context, tenantID, invoiceID uuid.UUID) (*Settlement, error)
	EnsurePaymentMethod(ctx context.Context, tenantID, accountID uuid.UUID, methodType db_models.PaymentMethodType) (*db_models.PaymentMethod, error)
	SetDefaultPaymentMethod(ctx context.Context, tenantID, accountID, methodID uuid.UUID) error
	ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]db_models.Payment, error)
}

type ledgerService struct {
	invoices repositories.InvoiceRepository
	payments repositories.PaymentRepository
	methods  repositories.PaymentMethodRepository
	log      zerolog.Logger
	now      func() time.Time
}

func NewLedgerService(
	invoices repositories.InvoiceRepository,
	payments repositories.PaymentRepository,
	methods repositories.PaymentMethodRepository,
	log zerolog.Logger,
) LedgerService {
	return &ledgerService{
		invoices: invoices,
		payments: payments,
		methods:  methods,
		log:      log,
		now:      time.Now,
	}
}

func (l *ledgerService) FindInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*db_models.Invoice, error) {
	invoice, err := l.invoices.FindById(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("%w: load invoice %s: %w", utils.ErrDatabaseError, invoiceID, err)
	}
	if invoice == nil {
		return nil, utils.NewNotFound("invoice %s not found", invoiceID)
	}
	return invoice, nil
}

// RecordPayment is idempotent on (tenant, reference number): a repeated
// reference returns the stored payment unchanged and created=false.
func (l *ledgerService) RecordPayment(ctx context.Context, tenantID uuid.UUID, input RecordPaymentInput) (*db_models.Payment, bool, error) {
	if !input.Amount.IsPositive() {
		return nil, false, utils.NewValidation("payment amount must be greater than zero")
	}

	invoice, err := l.FindInvoice(ctx, tenantID, input.InvoiceID)
	if err != nil {
		return nil, false, err
	}

	ref := strings.TrimSpace(input.ReferenceNumber)
	if ref != "" {
		existing, err := l.payments.FindByReference(ctx, tenantID, ref)
		if err != nil {
			return nil, false, fmt.Errorf("%w: lookup payment %s: %w", utils.ErrDatabaseError, ref, err)
		}
		if existing != nil {
			l.log.Info().
				Str("tenant_id", tenantID.String()).
				Str("reference", ref).
				Str("payment_id", existing.ID.String()).
				Msg("payment already recorded")
			return existing, false, nil
		}
	}

	paymentDate := input.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = l.now()
	}
	currency := input.Currency
	if currency == "" {
		currency = invoice.Currency
	}

	payment := &db_models.Payment{
		TenantID:        tenantID,
		InvoiceID:       invoice.ID,
		PaymentMethodID: input.PaymentMethodID,
		Amount:          input.Amount.Round(2),
		Currency:        strings.ToLower(currency),
		PaymentDate:     paymentDate,
		Notes:           input.Notes,
		CreatedBy:       input.CreatedBy,
	}
	if ref != "" {
		payment.ReferenceNumber = &ref
	}

	stored, created, err := l.payments.CreateIfAbsent(ctx, payment)
	if err != nil {
		return nil, false, fmt.Errorf("%w: record payment: %w", utils.ErrDatabaseError, err)
	}

	l.log.Info().
		Str("tenant_id", tenantID.String()).
		Str("invoice_id", invoice.ID.String()).
		Str("payment_id", stored.ID.String()).
		Str("amount", stored.Amount.StringFixed(2)).
		Bool("created", created).
		Msg("payment recorded")
	return stored, created, nil
}

func (l *ledgerService) TotalPaid(ctx context.Context, tenantID, invoiceID uuid.UUID) (decimal.Decimal, error) {
	total, err := l.payments.SumByInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: sum payments: %w", utils.ErrDatabaseError, err)
	}
	return total, nil
}

func (l *ledgerService) Outstanding(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceBalance, error) {
	invoice, err := l.FindInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	paid, err := l.TotalPaid(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	outstanding := invoice.TotalAmount.Sub(paid)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	return &InvoiceBalance{
		InvoiceID:   invoice.ID,
		Status:      invoice.Status,
		Currency:    invoice.Currency,
		Total:       invoice.TotalAmount,
		Paid:        paid,
		Outstanding: outstanding,
	}, nil
}

// SettleIfComplete moves the invoice to PAID once payments cover the total.
// A partial balance only gets logged; PAID never reverts.
func (l *ledgerService) SettleIfComplete(ctx context.Context, tenantID, invoiceID uuid.UUID) (*Settlement, error) {
	invoice, err := l.FindInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	paid, err := l.TotalPaid(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}

	s := &Settlement{
		Invoice:     invoice,
		TotalPaid:   paid,
		PercentPaid: percentPaid(paid, invoice.TotalAmount),
	}
	logger := l.log.With().
		Str("tenant_id", tenantID.String()).
		Str("invoice_id", invoiceID.String()).
		Str("paid", paid.StringFixed(2)).
		Str("total", invoice.TotalAmount.StringFixed(2)).
		Logger()

	if invoice.IsPaid() {
		s.Settled = true
		return s, nil
	}
	if paid.LessThan(invoice.TotalAmount) {
		logger.Info().Str("percent_paid", s.PercentPaid.StringFixed(2)).Msg("invoice partially paid")
		return s, nil
	}

	if err := invoice.Validate(); err != nil {
		logger.Error().Err(err).Msg("invoice totals inconsistent, not settling")
		return nil, utils.NewValidation("invoice %s totals are inconsistent", invoice.InvoiceNumber)
	}

	now := l.now()
	transitioned, err := l.invoices.MarkPaid(ctx, tenantID, invoiceID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: mark invoice paid: %w", utils.ErrDatabaseError, err)
	}
	invoice.Status = db_models.InvoiceStatusPaid
	if transitioned {
		invoice.PaidAt = &now
		logger.Info().Msg("invoice settled")
	}
	s.Settled = true
	s.Transitioned = transitioned
	return s, nil
}

func percentPaid(paid, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.NewFromInt(100)
	}
	return paid.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
}

// EnsurePaymentMethod finds or creates the synthetic gateway payment method
// that gateway-originated payments are attributed to.
func (l *ledgerService) EnsurePaymentMethod(ctx context.Context, tenantID, accountID uuid.UUID, methodType db_models.PaymentMethodType) (*db_models.PaymentMethod, error) {
	method, err := l.methods.FindGateway(ctx, tenantID, accountID, methodType)
	if err != nil {
		return nil, fmt.Errorf("%w: find gateway payment method: %w", utils.ErrDatabaseError, err)
	}
	if method != nil {
		return method, nil
	}

	method, err = l.methods.CreateGateway(ctx, &db_models.PaymentMethod{
		TenantID:  tenantID,
		AccountID: accountID,
		Type:      methodType,
		Label:     fmt.Sprintf("%s (gateway)", methodType),
		IsGateway: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create gateway payment method: %w", utils.ErrDatabaseError, err)
	}
	return method, nil
}

func (l *ledgerService) SetDefaultPaymentMethod(ctx context.Context, tenantID, accountID, methodID uuid.UUID) error {
	method, err := l.methods.FindById(ctx, tenantID, methodID)
	if err != nil {
		return fmt.Errorf("%w: load payment method: %w", utils.ErrDatabaseError, err)
	}
	if method == nil || method.AccountID != accountID {
		return utils.NewNotFound("payment method %s not found", methodID)
	}

	if err := l.methods.SetDefault(ctx, tenantID, accountID, methodID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFound("payment method %s not found", methodID)
		}
		return fmt.Errorf("%w: set default payment method: %w", utils.ErrDatabaseError, err)
	}
	return nil
}

func (l *ledgerService) ListPayments(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]db_models.Payment, error) {
	if _, err := l.FindInvoice(ctx, tenantID, invoiceID); err != nil {
		return nil, err
	}
	payments, err := l.payments.ListByInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("%w: list payments: %w", utils.ErrDatabaseError, err)
	}
	return payments, nil
}
