package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"fieldpay/internal/models/db_models"
	"fieldpay/internal/repositories"
	"fieldpay/pkg/utils"
)

const webhookProvider = "stripe"

type EventKind int

const (
	EventUnhandled EventKind = iota
	EventPaymentIntentSucceeded
	EventPaymentIntentFailed
	EventPaymentIntentCanceled
	EventInvoicePaymentSucceeded
	EventInvoicePaymentFailed
	EventSubscriptionCreated
	EventSubscriptionUpdated
	EventSubscriptionDeleted
	EventPaymentMethodAttached
)

var eventKinds = map[string]EventKind{
	"payment_intent.succeeded":      EventPaymentIntentSucceeded,
	"payment_intent.payment_failed": EventPaymentIntentFailed,
	"payment_intent.canceled":       EventPaymentIntentCanceled,
	"invoice.payment_succeeded":     EventInvoicePaymentSucceeded,
	"invoice.payment_failed":        EventInvoicePaymentFailed,
	"customer.subscription.created": EventSubscriptionCreated,
	"customer.subscription.updated": EventSubscriptionUpdated,
	"customer.subscription.deleted": EventSubscriptionDeleted,
	"payment_method.attached":       EventPaymentMethodAttached,
}

func ClassifyEvent(eventType string) EventKind {
	return eventKinds[eventType]
}

func (k EventKind) String() string {
	for name, kind := range eventKinds {
		if kind == k {
			return name
		}
	}
	return "unhandled"
}

type WebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"eventId,omitempty"`
	EventType string `json:"eventType,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WebhookService turns a processor delivery into an HTTP status and body.
// Only a signature failure yields 400; every other outcome is a 200 so the
// processor does not redeliver.
type WebhookService interface {
	Handle(ctx context.Context, payload []byte, signature string) (int, WebhookResponse)
}

type webhookService struct {
	gateway  PaymentGateway
	payments PaymentService
	events   repositories.WebhookEventRepository
	log      zerolog.Logger
}

func NewWebhookService(gateway PaymentGateway, payments PaymentService, events repositories.WebhookEventRepository, log zerolog.Logger) WebhookService {
	return &webhookService{
		gateway:  gateway,
		payments: payments,
		events:   events,
		log:      log,
	}
}

func (w *webhookService) Handle(ctx context.Context, payload []byte, signature string) (status int, resp WebhookResponse) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Str("event_id", resp.EventID).Msg("webhook processing panicked")
			status = http.StatusOK
			resp = WebhookResponse{
				Received:  false,
				EventID:   resp.EventID,
				EventType: resp.EventType,
				Error:     "internal_error",
				Message:   "Webhook processing failed",
			}
		}
	}()

	ev, err := w.gateway.VerifyWebhookSignature(payload, signature)
	if err != nil {
		return http.StatusBadRequest, WebhookResponse{
			Received: false,
			Error:    "invalid_signature",
			Message:  utils.PublicMessage(err),
		}
	}
	resp = WebhookResponse{EventID: ev.ID, EventType: ev.Type}
	logger := w.log.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()

	record, duplicate := w.begin(ctx, ev, payload)
	if duplicate {
		logger.Info().Msg("event already processed, acknowledging duplicate")
		resp.Received = true
		resp.Duplicate = true
		return http.StatusOK, resp
	}

	err = w.dispatch(ctx, ClassifyEvent(ev.Type), ev)
	w.finish(ctx, record, err)

	if err != nil {
		logger.Error().Err(err).Msg("webhook handler failed")
		resp.Received = false
		resp.Error = "handler_failed"
		resp.Message = err.Error()
		return http.StatusOK, resp
	}
	resp.Received = true
	return http.StatusOK, resp
}

// dispatch runs the handler for kind. A panicking handler is reported as an error.
func (w *webhookService) dispatch(ctx context.Context, kind EventKind, ev *GatewayEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", ev.Type, r)
		}
	}()

	switch kind {
	case EventPaymentIntentSucceeded:
		return w.payments.HandlePaymentIntentSucceeded(ctx, ev)
	case EventPaymentIntentFailed:
		return w.payments.HandlePaymentIntentFailed(ctx, ev)
	case EventInvoicePaymentSucceeded:
		return w.payments.HandleInvoicePaymentSucceeded(ctx, ev)
	case EventInvoicePaymentFailed:
		return w.payments.HandleInvoicePaymentFailed(ctx, ev)
	case EventSubscriptionCreated:
		return w.payments.HandleSubscriptionLifecycle(ctx, ev, SubscriptionCreated)
	case EventSubscriptionUpdated:
		return w.payments.HandleSubscriptionLifecycle(ctx, ev, SubscriptionUpdated)
	case EventSubscriptionDeleted:
		return w.payments.HandleSubscriptionLifecycle(ctx, ev, SubscriptionDeleted)
	case EventPaymentIntentCanceled, EventPaymentMethodAttached:
		w.log.Info().Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("event logged")
		return nil
	default:
		w.log.Info().Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("unhandled event type acknowledged")
		return nil
	}
}

// begin records the delivery. It reports duplicate=true when the same event
// was already handled successfully. Storage failures never block handling.
func (w *webhookService) begin(ctx context.Context, ev *GatewayEvent, payload []byte) (*db_models.WebhookEvent, bool) {
	if w.events == nil {
		return nil, false
	}
	record := &db_models.WebhookEvent{
		Provider:       webhookProvider,
		EventID:        ev.ID,
		EventType:      ev.Type,
		Payload:        string(payload),
		SignatureValid: true,
		Attempts:       1,
	}
	existing, err := w.events.Begin(ctx, record)
	if err != nil {
		w.log.Warn().Err(err).Str("event_id", ev.ID).Msg("could not record webhook event")
		return nil, false
	}
	if existing == nil {
		return record, false
	}
	if existing.Succeeded() {
		return existing, true
	}
	return existing, false
}

func (w *webhookService) finish(ctx context.Context, record *db_models.WebhookEvent, handleErr error) {
	if record == nil {
		return
	}
	msg := ""
	if handleErr != nil {
		msg = handleErr.Error()
	}
	if err := w.events.MarkProcessed(ctx, record.ID, msg); err != nil {
		w.log.Warn().Err(err).Str("event_id", record.EventID).Msg("could not mark webhook event processed")
	}
}
