package gateway_fx

import (
	"go.uber.org/fx"
	"fieldpay/internal/config"
	"fieldpay/internal/logger"
	"fieldpay/internal/services"
)

var Module = fx.Provide(provideGateway)

func provideGateway(cfg *config.Config) services.PaymentGateway {
	return services.NewStripeGateway(services.StripeConfig{
		SecretKey:      cfg.StripeSecretKey,
		WebhookSecret:  cfg.StripeWebhookSecret,
		APIURL:         cfg.StripeAPIURL,
		Currency:       cfg.DefaultCurrency,
		MinChargeMinor: cfg.MinChargeMinor,
	}, logger.WithComponent("stripe"))
}
