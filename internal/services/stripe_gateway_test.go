package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
	"fieldpay/pkg/utils"
)

const testWebhookSecret = "whsec_test_secret"

func newTestGateway(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewStripeGateway(StripeConfig{
		SecretKey:      "sk_test_123",
		WebhookSecret:  testWebhookSecret,
		APIURL:         srv.URL,
		Currency:       "usd",
		MinChargeMinor: 50,
	}, zerolog.Nop())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestMinorUnitConversion(t *testing.T) {
	assert.Equal(t, int64(10000), ToMinorUnits(decimal.RequireFromString("100")))
	assert.Equal(t, int64(1999), ToMinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1), ToMinorUnits(decimal.RequireFromString("0.005")))
	assert.True(t, FromMinorUnits(10000).Equal(decimal.RequireFromString("100.00")))
}

func TestResolveInterval(t *testing.T) {
	q, err := ResolveInterval(IntervalQuarterly)
	require.NoError(t, err)
	assert.Equal(t, GatewayInterval{Unit: "month", Count: 3}, q)

	w, err := ResolveInterval(IntervalWeekly)
	require.NoError(t, err)
	assert.Equal(t, GatewayInterval{Unit: "week", Count: 1}, w)

	_, err = ResolveInterval("fortnightly")
	assert.True(t, errors.Is(err, utils.ErrValidation))
}

func TestCreatePaymentIntentBelowMinimum(t *testing.T) {
	called := false
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := g.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		Amount:    decimal.RequireFromString("0.49"),
		InvoiceID: "inv_1",
		TenantID:  "t_1",
	})
	assert.True(t, errors.Is(err, utils.ErrValidation))

	_, err = g.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		Amount:    decimal.Zero,
		InvoiceID: "inv_1",
		TenantID:  "t_1",
	})
	assert.True(t, errors.Is(err, utils.ErrValidation))
	assert.False(t, called)
}

func TestCreatePaymentIntentSendsMetadata(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "10000", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "true", r.PostForm.Get("automatic_payment_methods[enabled]"))
		assert.Equal(t, "jane@example.com", r.PostForm.Get("receipt_email"))
		assert.Equal(t, "inv_1", r.PostForm.Get("metadata[invoiceId]"))
		assert.Equal(t, "t_1", r.PostForm.Get("metadata[tenantId]"))
		assert.Equal(t, "u_1", r.PostForm.Get("metadata[createdBy]"))
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		writeJSON(w, http.StatusOK, `{
			"id": "pi_1", "object": "payment_intent", "client_secret": "pi_1_secret_x",
			"amount": 10000, "currency": "usd", "status": "requires_payment_method",
			"metadata": {"invoiceId": "inv_1", "tenantId": "t_1", "createdBy": "u_1"}
		}`)
	})

	res, err := g.CreatePaymentIntent(context.Background(), CreatePaymentIntentInput{
		Amount:         decimal.RequireFromString("100"),
		InvoiceID:      "inv_1",
		TenantID:       "t_1",
		CreatedBy:      "u_1",
		CustomerEmail:  "jane@example.com",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", res.PaymentIntentID)
	assert.Equal(t, "pi_1_secret_x", res.ClientSecret)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, "inv_1", res.Metadata[MetaInvoiceID])
}

func TestGatewayErrorIsSanitized(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusPaymentRequired, `{"error": {
			"type": "card_error", "code": "card_declined", "decline_code": "insufficient_funds",
			"message": "Your card has insufficient funds."
		}}`)
	})

	_, err := g.ConfirmPaymentIntent(context.Background(), "pi_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrGateway))
	assert.Equal(t, "Payment was declined by the card issuer", utils.PublicMessage(err))
}

func TestGetSubscriptionNotFound(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error": {"type": "invalid_request_error", "code": "resource_missing", "message": "No such subscription"}}`)
	})

	_, err := g.GetSubscription(context.Background(), "sub_missing")
	assert.True(t, errors.Is(err, utils.ErrNotFound))
}

func TestCreatePriceReusesProductAndSetsQuarterlyInterval(t *testing.T) {
	var productCreated bool
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/products/search":
			writeJSON(w, http.StatusOK, `{
				"object": "search_result", "url": "/v1/products/search", "has_more": false,
				"data": [{"id": "prod_1", "object": "product", "name": "Lawn Care Plan"}]
			}`)
		case "/v1/products":
			productCreated = true
			writeJSON(w, http.StatusOK, `{"id": "prod_new", "object": "product", "name": "Lawn Care Plan"}`)
		case "/v1/prices":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "prod_1", r.PostForm.Get("product"))
			assert.Equal(t, "30000", r.PostForm.Get("unit_amount"))
			assert.Equal(t, "month", r.PostForm.Get("recurring[interval]"))
			assert.Equal(t, "3", r.PostForm.Get("recurring[interval_count]"))
			writeJSON(w, http.StatusOK, `{"id": "price_1", "object": "price"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	interval, err := ResolveInterval(IntervalQuarterly)
	require.NoError(t, err)

	res, err := g.CreatePrice(context.Background(), CreatePriceInput{
		Amount:      decimal.RequireFromString("300"),
		Interval:    interval,
		ProductName: "Lawn Care Plan",
	})
	require.NoError(t, err)
	assert.Equal(t, "price_1", res.PriceID)
	assert.Equal(t, "prod_1", res.ProductID)
	assert.False(t, productCreated)
}

func TestCancelSubscriptionModes(t *testing.T) {
	var gotMethod, gotPath, gotFlag string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		_ = r.ParseForm()
		gotFlag = r.PostForm.Get("cancel_at_period_end")
		writeJSON(w, http.StatusOK, `{"id": "sub_1", "object": "subscription", "status": "active", "cancel_at_period_end": true}`)
	})

	res, err := g.CancelSubscription(context.Background(), "sub_1", false)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/subscriptions/sub_1", gotPath)
	assert.Equal(t, "true", gotFlag)
	assert.True(t, res.CancelAtPeriodEnd)

	_, err = g.CancelSubscription(context.Background(), "sub_1", true)
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/v1/subscriptions/sub_1", gotPath)
}

func signedEvent(t *testing.T, payload []byte) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  testWebhookSecret,
	})
	return signed.Header
}

func TestVerifyWebhookSignature(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","created":1700000000,
		"data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded","amount":10000,"currency":"usd",
		"metadata":{"invoiceId":"inv_1","tenantId":"t_1"}}}}`)

	ev, err := g.VerifyWebhookSignature(payload, signedEvent(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, "payment_intent.succeeded", ev.Type)

	intent, err := PaymentIntentFromEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", intent.Status)
	assert.Equal(t, "inv_1", intent.Metadata[MetaInvoiceID])
	assert.True(t, intent.Amount.Equal(decimal.RequireFromString("100")))

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-3] = ' '
	_, err = g.VerifyWebhookSignature(tampered, signedEvent(t, payload))
	assert.True(t, errors.Is(err, utils.ErrInvalidSignature))

	_, err = g.VerifyWebhookSignature(payload, "")
	assert.True(t, errors.Is(err, utils.ErrInvalidSignature))
}

func TestInvoiceFromEventMergesSubscriptionMetadata(t *testing.T) {
	obj, _ := json.Marshal(map[string]any{
		"id":            "in_1",
		"status":        "paid",
		"amount_paid":   30000,
		"currency":      "usd",
		"subscription":  "sub_1",
		"customer":      map[string]any{"id": "cus_1"},
		"attempt_count": 1,
		"subscription_details": map[string]any{
			"metadata": map[string]string{"invoiceId": "inv_1", "tenantId": "t_1", "accountId": "a_1"},
		},
	})

	inv, err := InvoiceFromEvent(&GatewayEvent{ID: "evt_2", Type: "invoice.payment_succeeded", Object: obj})
	require.NoError(t, err)
	assert.Equal(t, "sub_1", inv.SubscriptionID)
	assert.Equal(t, "cus_1", inv.CustomerID)
	assert.Equal(t, "inv_1", inv.Metadata[MetaInvoiceID])
	assert.Equal(t, "t_1", inv.Metadata[MetaTenantID])
	assert.True(t, inv.AmountPaid.Equal(decimal.RequireFromString("300")))
}

func TestInvoiceFromEventReadsExpandedIntentDecline(t *testing.T) {
	obj, _ := json.Marshal(map[string]any{
		"id":            "in_2",
		"status":        "open",
		"amount_due":    5000,
		"currency":      "usd",
		"customer":      "cus_1",
		"attempt_count": 1,
		"payment_intent": map[string]any{
			"id": "pi_2",
			"last_payment_error": map[string]any{
				"code": "card_declined", "decline_code": "do_not_honor", "message": "Your card was declined.",
			},
		},
		"last_finalization_error": map[string]any{"message": "ignored"},
	})

	inv, err := InvoiceFromEvent(&GatewayEvent{ID: "evt_3", Type: "invoice.payment_failed", Object: obj})
	require.NoError(t, err)
	assert.Equal(t, "pi_2", inv.PaymentIntentID)
	assert.Equal(t, "card_declined", inv.ErrorCode)
	assert.Equal(t, "do_not_honor", inv.DeclineCode)
	assert.Equal(t, "Your card was declined.", inv.ErrorMessage)
}
