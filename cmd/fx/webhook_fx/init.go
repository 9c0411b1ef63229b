package webhook_fx

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
	"fieldpay/internal/logger"
	"fieldpay/internal/repositories"
	"fieldpay/internal/services"
)

var Module = fx.Provide(
	provideWebhookEventRepo,
	provideWebhookService,
)

func provideWebhookEventRepo(db *gorm.DB) repositories.WebhookEventRepository {
	return repositories.NewWebhookEventRepository(db)
}

func provideWebhookService(
	gateway services.PaymentGateway,
	payments services.PaymentService,
	events repositories.WebhookEventRepository,
) services.WebhookService {
	return services.NewWebhookService(gateway, payments, events, logger.WithComponent("webhooks"))
}
