package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"fieldpay/internal/models/request_models"
	"fieldpay/internal/models/response_models"
	"fieldpay/internal/services"
	"fieldpay/pkg/utils"
)

type PaymentController struct {
	paymentService services.PaymentService
	ledgerService  services.LedgerService
}

func NewPaymentController(paymentService services.PaymentService, ledgerService services.LedgerService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		ledgerService:  ledgerService,
	}
}

// scope reads the tenant and user set by the JWT middleware.
func scope(c *gin.Context) (uuid.UUID, string, bool) {
	tenantID, err := uuid.Parse(c.GetString("tenant_id"))
	userID := c.GetString("user_id")
	if err != nil || userID == "" {
		utils.RespondError(c, http.StatusUnauthorized, "tenant and user are required")
		return uuid.Nil, "", false
	}
	return tenantID, userID, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// CreatePaymentIntent godoc
// @Summary Create a payment intent for an invoice's outstanding balance
// @Tags Billing
// @Produce json
// @Param id path string true "Invoice ID"
// @Param Idempotency-Key header string false "Idempotency key forwarded to the processor"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/invoices/{id}/payment-intent [post]
func (p *PaymentController) CreatePaymentIntent(c *gin.Context) {
	tenantID, userID, ok := scope(c)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	intent, err := p.paymentService.CreateInvoicePaymentIntent(c.Request.Context(), tenantID, invoiceID, userID, c.GetHeader("Idempotency-Key"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toIntentResponse(intent), "Payment intent created successfully")
}

// RetryPayment godoc
// @Summary Retry charging an invoice with backoff
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param request body request_models.RetryPaymentRequest false "Retry options"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/invoices/{id}/retry [post]
func (p *PaymentController) RetryPayment(c *gin.Context) {
	tenantID, userID, ok := scope(c)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var request request_models.RetryPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	result, err := p.paymentService.RetryPayment(c.Request.Context(), services.RetryRequest{
		TenantID:    tenantID,
		InvoiceID:   invoiceID,
		UserID:      userID,
		Attempt:     request.Attempt,
		MaxAttempts: request.MaxAttempts,
	})
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, response_models.RetryPaymentResponse{
		Success:         result.Success,
		Attempt:         result.Attempt,
		Message:         result.Message,
		PaymentIntentID: result.PaymentIntentID,
		ClientSecret:    result.ClientSecret,
		Amount:          money(result.Amount),
		Currency:        result.Currency,
	}, result.Message)
}

// GetBalance godoc
// @Summary Get the paid and outstanding amounts of an invoice
// @Tags Billing
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/invoices/{id}/balance [get]
func (p *PaymentController) GetBalance(c *gin.Context) {
	tenantID, _, ok := scope(c)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	balance, err := p.ledgerService.Outstanding(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toBalanceResponse(balance), "Invoice balance retrieved successfully")
}

// ListPayments godoc
// @Summary List payments recorded against an invoice
// @Tags Billing
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/invoices/{id}/payments [get]
func (p *PaymentController) ListPayments(c *gin.Context) {
	tenantID, _, ok := scope(c)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	payments, err := p.ledgerService.ListPayments(c.Request.Context(), tenantID, invoiceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	out := make([]response_models.PaymentResponse, 0, len(payments))
	for _, pm := range payments {
		item := response_models.PaymentResponse{
			ID:              pm.ID.String(),
			InvoiceID:       pm.InvoiceID.String(),
			Amount:          pm.Amount.StringFixed(2),
			Currency:        pm.Currency,
			ReferenceNumber: pm.ReferenceNumber,
			PaymentDate:     utils.FormatRFC3339(pm.PaymentDate),
			Notes:           pm.Notes,
			CreatedBy:       pm.CreatedBy,
		}
		if pm.PaymentMethodID != nil {
			id := pm.PaymentMethodID.String()
			item.PaymentMethodID = &id
		}
		out = append(out, item)
	}
	utils.RespondSuccess(c, out, "Payments retrieved successfully")
}

// SendReminder godoc
// @Summary Send a payment reminder for an unpaid invoice
// @Tags Billing
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/invoices/{id}/reminder [post]
func (p *PaymentController) SendReminder(c *gin.Context) {
	tenantID, userID, ok := scope(c)
	if !ok {
		return
	}
	invoiceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	balance, err := p.paymentService.SendPaymentReminder(c.Request.Context(), tenantID, invoiceID, userID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toBalanceResponse(balance), "Payment reminder sent")
}

// ConfirmPaymentIntent godoc
// @Summary Confirm a payment intent
// @Tags Billing
// @Produce json
// @Param id path string true "Payment intent ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/payment-intents/{id}/confirm [post]
func (p *PaymentController) ConfirmPaymentIntent(c *gin.Context) {
	tenantID, _, ok := scope(c)
	if !ok {
		return
	}

	intent, err := p.paymentService.ConfirmPaymentIntent(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toIntentResponse(intent), "Payment intent confirmed")
}

// CancelPaymentIntent godoc
// @Summary Cancel a payment intent
// @Tags Billing
// @Produce json
// @Param id path string true "Payment intent ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/payment-intents/{id}/cancel [post]
func (p *PaymentController) CancelPaymentIntent(c *gin.Context) {
	tenantID, _, ok := scope(c)
	if !ok {
		return
	}

	intent, err := p.paymentService.CancelPaymentIntent(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toIntentResponse(intent), "Payment intent cancelled")
}

// CreateRecurringPayment godoc
// @Summary Set up a recurring payment for an invoice's account
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body request_models.CreateRecurringPaymentRequest true "Recurring payment"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/recurring [post]
func (p *PaymentController) CreateRecurringPayment(c *gin.Context) {
	tenantID, userID, ok := scope(c)
	if !ok {
		return
	}

	var request request_models.CreateRecurringPaymentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	result, err := p.paymentService.CreateRecurringPayment(c.Request.Context(), tenantID, userID, services.RecurringPaymentInput{
		InvoiceID:   uuid.MustParse(request.InvoiceID),
		Interval:    services.BillingInterval(request.Interval),
		Amount:      request.Amount,
		Currency:    request.Currency,
		ProductName: request.ProductName,
	})
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toSubscriptionResponse(&services.SubscriptionResult{
		SubscriptionID:   result.SubscriptionID,
		CustomerID:       result.CustomerID,
		PriceID:          result.PriceID,
		Status:           result.Status,
		CurrentPeriodEnd: result.CurrentPeriodEnd,
		ClientSecret:     result.ClientSecret,
	}), "Recurring payment created successfully")
}

// GetRecurringPayment godoc
// @Summary Get a recurring payment
// @Tags Billing
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/recurring/{id} [get]
func (p *PaymentController) GetRecurringPayment(c *gin.Context) {
	tenantID, _, ok := scope(c)
	if !ok {
		return
	}

	sub, err := p.paymentService.GetRecurringPayment(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toSubscriptionResponse(sub), "Recurring payment retrieved successfully")
}

// CancelRecurringPayment godoc
// @Summary Cancel a recurring payment now or at period end
// @Tags Billing
// @Produce json
// @Param id path string true "Subscription ID"
// @Param immediately query bool false "Cancel now instead of at period end"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/recurring/{id} [delete]
func (p *PaymentController) CancelRecurringPayment(c *gin.Context) {
	tenantID, _, ok := scope(c)
	if !ok {
		return
	}

	var query request_models.CancelRecurringPaymentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	sub, err := p.paymentService.CancelRecurringPayment(c.Request.Context(), tenantID, c.Param("id"), query.Immediately)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toSubscriptionResponse(sub), "Recurring payment cancelled")
}

// SetDefaultPaymentMethod godoc
// @Summary Mark a payment method as the account default
// @Tags Billing
// @Produce json
// @Param id path string true "Account ID"
// @Param methodId path string true "Payment method ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/accounts/{id}/payment-methods/{methodId}/default [put]
func (p *PaymentController) SetDefaultPaymentMethod(c *gin.Context) {
	tenantID, _, ok := scope(c)
	if !ok {
		return
	}
	accountID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	methodID, ok := pathUUID(c, "methodId")
	if !ok {
		return
	}

	if err := p.ledgerService.SetDefaultPaymentMethod(c.Request.Context(), tenantID, accountID, methodID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, gin.H{"payment_method_id": methodID.String()}, "Default payment method updated")
}

func toIntentResponse(intent *services.PaymentIntentResult) response_models.PaymentIntentResponse {
	return response_models.PaymentIntentResponse{
		PaymentIntentID: intent.PaymentIntentID,
		ClientSecret:    intent.ClientSecret,
		Amount:          money(intent.Amount),
		Currency:        intent.Currency,
		Status:          intent.Status,
	}
}

func toBalanceResponse(b *services.InvoiceBalance) response_models.InvoiceBalanceResponse {
	return response_models.InvoiceBalanceResponse{
		InvoiceID:   b.InvoiceID.String(),
		Status:      string(b.Status),
		Currency:    b.Currency,
		Total:       money(b.Total),
		Paid:        money(b.Paid),
		Outstanding: money(b.Outstanding),
	}
}

func toSubscriptionResponse(sub *services.SubscriptionResult) response_models.RecurringPaymentResponse {
	out := response_models.RecurringPaymentResponse{
		SubscriptionID:    sub.SubscriptionID,
		CustomerID:        sub.CustomerID,
		PriceID:           sub.PriceID,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		ClientSecret:      sub.ClientSecret,
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		out.CurrentPeriodEnd = utils.FormatRFC3339(sub.CurrentPeriodEnd)
	}
	return out
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
