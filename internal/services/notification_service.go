package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"fieldpay/internal/models/db_models"
	"fieldpay/internal/repositories"
	"fieldpay/pkg/utils"
)

type PaymentReceivedNotice struct {
	TenantID      uuid.UUID
	AccountID     uuid.UUID
	InvoiceID     uuid.UUID
	InvoiceNumber string
	PaymentID     uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Reference     string
	Settled       bool
	CreatedBy     string
}

type PaymentFailedNotice struct {
	TenantID      uuid.UUID
	AccountID     uuid.UUID
	InvoiceID     uuid.UUID
	InvoiceNumber string
	Reference     string
	Source        string // payment_intent or invoice
	Amount        decimal.Decimal
	Currency      string
	ErrorCode     string
	DeclineCode   string
	ErrorMessage  string
}

type SubscriptionChange string

const (
	SubscriptionCreated SubscriptionChange = "created"
	SubscriptionUpdated SubscriptionChange = "updated"
	SubscriptionDeleted SubscriptionChange = "deleted"
)

type SubscriptionNotice struct {
	TenantID          uuid.UUID
	AccountID         uuid.UUID
	InvoiceID         uuid.UUID
	SubscriptionID    string
	Status            string
	Change            SubscriptionChange
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

type ReminderNotice struct {
	TenantID      uuid.UUID
	AccountID     uuid.UUID
	InvoiceID     uuid.UUID
	InvoiceNumber string
	Outstanding   decimal.Decimal
	Currency      string
	DueDate       time.Time
	CreatedBy     string
}

// NotificationService writes the communication log and sends customer email.
// Email is best-effort: its outcome is recorded on the log row and never
// turned into an error.
type NotificationService interface {
	PaymentReceived(ctx context.Context, notice PaymentReceivedNotice) error
	PaymentFailed(ctx context.Context, notice PaymentFailedNotice) error
	SubscriptionEvent(ctx context.Context, notice SubscriptionNotice) error
	PaymentReminder(ctx context.Context, notice ReminderNotice) error
}

type notificationService struct {
	logs       repositories.CommunicationLogRepository
	accounts   repositories.AccountRepository
	mailer     Mailer
	appName    string
	appBaseURL string
	log        zerolog.Logger
	now        func() time.Time
}

func NewNotificationService(
	logs repositories.CommunicationLogRepository,
	accounts repositories.AccountRepository,
	mailer Mailer,
	appName, appBaseURL string,
	log zerolog.Logger,
) NotificationService {
	return &notificationService{
		logs:       logs,
		accounts:   accounts,
		mailer:     mailer,
		appName:    appName,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		log:        log,
		now:        time.Now,
	}
}

func (n *notificationService) PaymentReceived(ctx context.Context, notice PaymentReceivedNotice) error {
	amount := formatMoney(notice.Amount, notice.Currency)
	subject := fmt.Sprintf("Payment received for invoice %s", notice.InvoiceNumber)
	content := fmt.Sprintf("Payment of %s was received for invoice %s (reference %s).", amount, notice.InvoiceNumber, notice.Reference)

	meta := map[string]any{
		"paymentId": notice.PaymentID.String(),
		"reference": notice.Reference,
		"amount":    notice.Amount.StringFixed(2),
		"currency":  notice.Currency,
		"settled":   notice.Settled,
	}
	lines := []string{"Amount: " + amount, "Reference: " + notice.Reference}
	if notice.Settled {
		lines = append(lines, "Your invoice is now paid in full.")
	}

	entry := n.newEntry(notice.TenantID, notice.AccountID, notice.InvoiceID, db_models.CategoryPaymentReceived, subject, content)
	entry.CreatedBy = notice.CreatedBy
	n.email(ctx, notice.TenantID, notice.AccountID, entry, meta, EmailData{
		Title:     "Thank you for your payment",
		Intro:     content,
		Lines:     lines,
		ButtonURL: n.invoiceURL(notice.InvoiceID),
		ButtonTxt: "View invoice",
	})
	return n.write(ctx, entry, meta)
}

func (n *notificationService) PaymentFailed(ctx context.Context, notice PaymentFailedNotice) error {
	reason := notice.ErrorMessage
	if reason == "" {
		reason = "The payment could not be completed."
	}
	subject := fmt.Sprintf("Payment failed for invoice %s", notice.InvoiceNumber)
	content := fmt.Sprintf("Payment attempt %s for invoice %s failed: %s", notice.Reference, notice.InvoiceNumber, reason)

	meta := map[string]any{
		"reference":   notice.Reference,
		"source":      notice.Source,
		"errorCode":   notice.ErrorCode,
		"declineCode": notice.DeclineCode,
		"message":     notice.ErrorMessage,
	}
	if !notice.Amount.IsZero() {
		meta["amount"] = notice.Amount.StringFixed(2)
		meta["currency"] = notice.Currency
	}

	entry := n.newEntry(notice.TenantID, notice.AccountID, notice.InvoiceID, db_models.CategoryPaymentFailed, subject, content)
	followUp := utils.FollowUpDate(n.now())
	entry.FollowUpRequired = true
	entry.FollowUpDate = &followUp

	n.email(ctx, notice.TenantID, notice.AccountID, entry, meta, EmailData{
		Title:     "We couldn't process your payment",
		Intro:     fmt.Sprintf("Your payment for invoice %s did not go through. %s", notice.InvoiceNumber, reason),
		ButtonURL: n.invoiceURL(notice.InvoiceID),
		ButtonTxt: "Update payment",
	})
	return n.write(ctx, entry, meta)
}

func (n *notificationService) SubscriptionEvent(ctx context.Context, notice SubscriptionNotice) error {
	var category db_models.CommunicationCategory
	switch notice.Change {
	case SubscriptionCreated:
		category = db_models.CategorySubscriptionCreated
	case SubscriptionUpdated:
		category = db_models.CategorySubscriptionUpdated
	case SubscriptionDeleted:
		category = db_models.CategorySubscriptionDeleted
	default:
		return fmt.Errorf("unknown subscription change %q", notice.Change)
	}

	subject := fmt.Sprintf("Subscription %s %s", notice.SubscriptionID, notice.Change)
	content := fmt.Sprintf("Recurring payment %s is now %s.", notice.SubscriptionID, notice.Status)

	meta := map[string]any{
		"subscriptionId":    notice.SubscriptionID,
		"status":            notice.Status,
		"cancelAtPeriodEnd": notice.CancelAtPeriodEnd,
	}
	if !notice.CurrentPeriodEnd.IsZero() {
		meta["currentPeriodEnd"] = utils.FormatRFC3339(notice.CurrentPeriodEnd)
	}

	entry := n.newEntry(notice.TenantID, notice.AccountID, notice.InvoiceID, category, subject, content)
	if notice.Change == SubscriptionDeleted {
		followUp := utils.FollowUpDate(n.now())
		entry.FollowUpRequired = true
		entry.FollowUpDate = &followUp
	}
	return n.write(ctx, entry, meta)
}

func (n *notificationService) PaymentReminder(ctx context.Context, notice ReminderNotice) error {
	amount := formatMoney(notice.Outstanding, notice.Currency)
	subject := fmt.Sprintf("Payment reminder for invoice %s", notice.InvoiceNumber)
	content := fmt.Sprintf("Invoice %s has an outstanding balance of %s.", notice.InvoiceNumber, amount)

	meta := map[string]any{
		"outstanding": notice.Outstanding.StringFixed(2),
		"currency":    notice.Currency,
		"dueDate":     utils.FormatRFC3339(notice.DueDate),
	}

	entry := n.newEntry(notice.TenantID, notice.AccountID, notice.InvoiceID, db_models.CategoryPaymentReminder, subject, content)
	entry.CreatedBy = notice.CreatedBy
	now := n.now()
	if !notice.DueDate.IsZero() && notice.DueDate.Before(now) {
		followUp := utils.FollowUpDate(now)
		entry.FollowUpRequired = true
		entry.FollowUpDate = &followUp
	}

	lines := []string{"Outstanding: " + amount}
	if !notice.DueDate.IsZero() {
		lines = append(lines, "Due date: "+notice.DueDate.Format("January 2, 2006"))
	}
	n.email(ctx, notice.TenantID, notice.AccountID, entry, meta, EmailData{
		Title:     "Payment reminder",
		Intro:     content,
		Lines:     lines,
		ButtonURL: n.invoiceURL(notice.InvoiceID),
		ButtonTxt: "Pay now",
	})
	return n.write(ctx, entry, meta)
}

func (n *notificationService) newEntry(tenantID, accountID, invoiceID uuid.UUID, category db_models.CommunicationCategory, subject, content string) *db_models.CommunicationLog {
	entry := &db_models.CommunicationLog{
		TenantID:  tenantID,
		Type:      db_models.CommunicationSystem,
		Category:  category,
		Subject:   subject,
		Content:   content,
		CreatedBy: "system",
	}
	if accountID != uuid.Nil {
		entry.AccountID = &accountID
	}
	if invoiceID != uuid.Nil {
		entry.InvoiceID = &invoiceID
	}
	return entry
}

// email sends to the account's address and records the outcome in meta.
// A successful send turns the entry into an EMAIL log.
func (n *notificationService) email(ctx context.Context, tenantID, accountID uuid.UUID, entry *db_models.CommunicationLog, meta map[string]any, data EmailData) {
	if n.mailer == nil || accountID == uuid.Nil {
		return
	}

	account, err := n.accounts.FindById(ctx, tenantID, accountID)
	if err != nil {
		n.log.Warn().Err(err).Str("account_id", accountID.String()).Msg("could not load account for email")
		meta["email"] = map[string]any{"sent": false, "error": "account lookup failed"}
		return
	}
	if account == nil || strings.TrimSpace(account.Email) == "" {
		meta["email"] = map[string]any{"sent": false, "error": "account has no email address"}
		return
	}

	data.AppName = n.appName
	data.Year = n.now().Year()
	html, text, err := RenderEmail(data)
	if err != nil {
		n.log.Error().Err(err).Msg("render email")
		meta["email"] = map[string]any{"sent": false, "error": "render failed"}
		return
	}

	res := n.mailer.SendEmail(ctx, EmailMessage{
		To:          account.Email,
		ToName:      account.Name,
		Subject:     entry.Subject,
		HTMLContent: html,
		TextContent: text,
	})
	if !res.Success {
		n.log.Warn().
			Str("tenant_id", tenantID.String()).
			Str("category", string(entry.Category)).
			Str("error", res.Error).
			Msg("notification email not sent")
		meta["email"] = map[string]any{"sent": false, "error": res.Error}
		return
	}

	entry.Type = db_models.CommunicationEmail
	meta["email"] = map[string]any{"sent": true, "messageId": res.MessageID, "to": account.Email}
}

func (n *notificationService) write(ctx context.Context, entry *db_models.CommunicationLog, meta map[string]any) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode communication metadata: %w", err)
	}
	entry.Metadata = datatypes.JSON(raw)

	if err := n.logs.Create(ctx, entry); err != nil {
		n.log.Error().Err(err).Str("category", string(entry.Category)).Msg("write communication log")
		return fmt.Errorf("%w: write communication log: %w", utils.ErrDatabaseError, err)
	}
	return nil
}

func (n *notificationService) invoiceURL(invoiceID uuid.UUID) string {
	if n.appBaseURL == "" || invoiceID == uuid.Nil {
		return ""
	}
	return fmt.Sprintf("%s/invoices/%s", n.appBaseURL, invoiceID)
}

func formatMoney(amount decimal.Decimal, currency string) string {
	return fmt.Sprintf("%s %s", amount.StringFixed(2), strings.ToUpper(currency))
}
