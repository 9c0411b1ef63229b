package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"fieldpay/internal/models/db_models"
	"fieldpay/pkg/utils"
)

func TestRecordPaymentIsIdempotentByReference(t *testing.T) {
	f := newFixture(&mockGateway{})
	acct := f.store.addAccount(f.tenantID, "Acme Lawns", "billing@acme.test")
	inv := f.store.addInvoice(f.tenantID, acct.ID, "INV-1", "100.00", db_models.InvoiceStatusSent)
	ctx := context.Background()

	input := RecordPaymentInput{
		InvoiceID:       inv.ID,
		Amount:          decimal.RequireFromString("100"),
		ReferenceNumber: "pi_1",
		CreatedBy:       "stripe-webhook",
	}
	first, created, err := f.ledger.RecordPayment(ctx, f.tenantID, input)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := f.ledger.RecordPayment(ctx, f.tenantID, input)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	payments := f.store.paymentsFor(inv.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, "100.00", payments[0].Amount.StringFixed(2))
	assert.Equal(t, "usd", payments[0].Currency)
}

func TestRecordPaymentConcurrentSameReference(t *testing.T) {
	f := newFixture(&mockGateway{})
	acct := f.store.addAccount(f.tenantID, "Acme Lawns", "billing@acme.test")
	inv := f.store.addInvoice(f.tenantID, acct.ID, "INV-2", "100.00", db_models.InvoiceStatusSent)

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := f.ledger.RecordPayment(context.Background(), f.tenantID, RecordPaymentInput{
				InvoiceID: inv.ID, Amount: decimal.RequireFromString("25"), ReferenceNumber: "pi_same",
			})
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	assert.Len(t, f.store.paymentsFor(inv.ID), 1)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(&mockGateway{})
	acct := f.store.addAccount(f.tenantID, "Acme Lawns", "billing@acme.test")
	inv := f.store.addInvoice(f.tenantID, acct.ID, "INV-3", "100.00", db_models.InvoiceStatusSent)

	_, _, err := f.ledger.RecordPayment(context.Background(), f.tenantID, RecordPaymentInput{
		InvoiceID: inv.ID, Amount: decimal.Zero,
	})
	assert.True(t, errors.Is(err, utils.ErrValidation))

	_, _, err = f.ledger.RecordPayment(context.Background(), uuid.New(), RecordPaymentInput{
		InvoiceID: inv.ID, Amount: decimal.RequireFromString("5"),
	})
	assert.True(t, errors.Is(err, utils.ErrNotFound), "other tenants cannot see the invoice")
}

func TestSettleIfCompletePartialThenFull(t *testing.T) {
	f := newFixture(&mockGateway{})
	acct := f.store.addAccount(f.tenantID, "Acme Lawns", "billing@acme.test")
	inv := f.store.addInvoice(f.tenantID, acct.ID, "INV-4", "200.00", db_models.InvoiceStatusSent)
	ctx := context.Background()

	_, _, err := f.ledger.RecordPayment(ctx, f.tenantID, RecordPaymentInput{
		InvoiceID: inv.ID, Amount: decimal.RequireFromString("50"), ReferenceNumber: "chk-1",
	})
	require.NoError(t, err)

	s, err := f.ledger.SettleIfComplete(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.False(t, s.Settled)
	assert.Equal(t, "25.00", s.PercentPaid.StringFixed(2))
	assert.Equal(t, db_models.InvoiceStatusSent, f.store.invoice(inv.ID).Status)

	_, _, err = f.ledger.RecordPayment(ctx, f.tenantID, RecordPaymentInput{
		InvoiceID: inv.ID, Amount: decimal.RequireFromString("150"), ReferenceNumber: "chk-2",
	})
	require.NoError(t, err)

	s, err = f.ledger.SettleIfComplete(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.True(t, s.Settled)
	assert.True(t, s.Transitioned)
	stored := f.store.invoice(inv.ID)
	assert.Equal(t, db_models.InvoiceStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)

	s, err = f.ledger.SettleIfComplete(ctx, f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.True(t, s.Settled)
	assert.False(t, s.Transitioned)
}

func TestSettleIfCompleteRejectsInconsistentTotals(t *testing.T) {
	f := newFixture(&mockGateway{})
	acct := f.store.addAccount(f.tenantID, "Acme Lawns", "billing@acme.test")
	inv := f.store.addInvoice(f.tenantID, acct.ID, "INV-X", "10.00", db_models.InvoiceStatusSent)
	inv.Subtotal = decimal.RequireFromString("100.00")
	ctx := context.Background()

	_, _, err := f.ledger.RecordPayment(ctx, f.tenantID, RecordPaymentInput{
		InvoiceID: inv.ID, Amount: decimal.RequireFromString("10"), ReferenceNumber: "chk-x",
	})
	require.NoError(t, err)

	s, err := f.ledger.SettleIfComplete(ctx, f.tenantID, inv.ID)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))
	assert.Equal(t, db_models.InvoiceStatusSent, f.store.invoice(inv.ID).Status)
}

func TestOutstandingNeverNegative(t *testing.T) {
	f := newFixture(&mockGateway{})
	acct := f.store.addAccount(f.tenantID, "Acme Lawns", "billing@acme.test")
	inv := f.store.addInvoice(f.tenantID, acct.ID, "INV-5", "40.00", db_models.InvoiceStatusSent)

	_, _, err := f.ledger.RecordPayment(context.Background(), f.tenantID, RecordPaymentInput{
		InvoiceID: inv.ID, Amount: decimal.RequireFromString("55.5"), ReferenceNumber: "over",
	})
	require.NoError(t, err)

	b, err := f.ledger.Outstanding(context.Background(), f.tenantID, inv.ID)
	require.NoError(t, err)
	assert.True(t, b.Outstanding.IsZero())
	assert.Equal(t, "55.50", b.Paid.StringFixed(2))
}

func TestEnsurePaymentMethodReusesGatewayRecord(t *testing.T) {
	f := newFixture(&mockGateway{})
	acct := f.store.addAccount(f.tenantID, "Acme Lawns", "billing@acme.test")
	ctx := context.Background()

	first, err := f.ledger.EnsurePaymentMethod(ctx, f.tenantID, acct.ID, db_models.PaymentMethodStripe)
	require.NoError(t, err)
	assert.True(t, first.IsGateway)

	second, err := f.ledger.EnsurePaymentMethod(ctx, f.tenantID, acct.ID, db_models.PaymentMethodStripe)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestSetDefaultPaymentMethod(t *testing.T) {
	f := newFixture(&mockGateway{})
	acct := f.store.addAccount(f.tenantID, "Acme Lawns", "billing@acme.test")
	other := f.store.addAccount(f.tenantID, "Birch Pools", "ops@birch.test")
	ctx := context.Background()

	card, err := fakeMethods{f.store}.CreateGateway(ctx, &db_models.PaymentMethod{
		TenantID: f.tenantID, AccountID: acct.ID, Type: db_models.PaymentMethodCard, Label: "Visa 4242",
	})
	require.NoError(t, err)

	require.NoError(t, f.ledger.SetDefaultPaymentMethod(ctx, f.tenantID, acct.ID, card.ID))
	stored, _ := fakeMethods{f.store}.FindById(ctx, f.tenantID, card.ID)
	assert.True(t, stored.IsDefault)

	err = f.ledger.SetDefaultPaymentMethod(ctx, f.tenantID, other.ID, card.ID)
	assert.True(t, errors.Is(err, utils.ErrNotFound))

	err = f.ledger.SetDefaultPaymentMethod(ctx, f.tenantID, acct.ID, uuid.New())
	assert.True(t, errors.Is(err, utils.ErrNotFound))
}
