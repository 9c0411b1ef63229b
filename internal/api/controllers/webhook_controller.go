package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"fieldpay/internal/services"
)

const maxWebhookBody = 1 << 20

type WebhookController struct {
	webhookService services.WebhookService
}

func NewWebhookController(webhookService services.WebhookService) *WebhookController {
	return &WebhookController{webhookService: webhookService}
}

// HandleStripeWebhook godoc
// @Summary Receive payment processor events
// @Description Signature-verified; only an invalid signature is answered with 400.
// @Tags Billing
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Processor signature"
// @Success 200 {object} services.WebhookResponse
// @Failure 400 {object} services.WebhookResponse
// @Router /billing/stripe/webhook [post]
func (w *WebhookController) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusOK, services.WebhookResponse{
			Received: false,
			Error:    "invalid_payload",
			Message:  "Could not read request body",
		})
		return
	}

	status, resp := w.webhookService.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	c.JSON(status, resp)
}
