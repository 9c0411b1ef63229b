package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"fieldpay/internal/api/controllers"
	"fieldpay/pkg/middleware"
	"fieldpay/pkg/utils"
)

func NewRouter(
	jwtSecret []byte,
	paymentController *controllers.PaymentController,
	webhookController *controllers.WebhookController,
	log zerolog.Logger) *gin.Engine {

	utils.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceIDMiddleware())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORSMiddleware())

	RegisterRoutes(r, jwtSecret, paymentController, webhookController)

	return r
}

func RegisterRoutes(r *gin.Engine,
	jwtSecret []byte,
	paymentController *controllers.PaymentController,
	webhookController *controllers.WebhookController) {

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })

	billing := r.Group("/billing")
	billing.POST("/stripe/webhook", webhookController.HandleStripeWebhook)

	authed := billing.Group("", middleware.JWTAuthMiddleware(jwtSecret))

	invoices := authed.Group("/invoices/:id")
	invoices.POST("/payment-intent", paymentController.CreatePaymentIntent)
	invoices.POST("/retry", paymentController.RetryPayment)
	invoices.GET("/balance", paymentController.GetBalance)
	invoices.GET("/payments", paymentController.ListPayments)
	invoices.POST("/reminder", paymentController.SendReminder)

	intents := authed.Group("/payment-intents/:id")
	intents.POST("/confirm", paymentController.ConfirmPaymentIntent)
	intents.POST("/cancel", paymentController.CancelPaymentIntent)

	recurring := authed.Group("/recurring")
	recurring.POST("", paymentController.CreateRecurringPayment)
	recurring.GET("/:id", paymentController.GetRecurringPayment)
	recurring.DELETE("/:id", paymentController.CancelRecurringPayment)

	authed.PUT("/accounts/:id/payment-methods/:methodId/default", paymentController.SetDefaultPaymentMethod)
}
