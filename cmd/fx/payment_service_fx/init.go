package payment_service_fx

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
	"fieldpay/internal/config"
	"fieldpay/internal/logger"
	"fieldpay/internal/repositories"
	"fieldpay/internal/services"
)

var Module = fx.Provide(
	provideCommunicationLogRepo,
	provideNotificationService,
	providePaymentService,
)

func provideCommunicationLogRepo(db *gorm.DB) repositories.CommunicationLogRepository {
	return repositories.NewCommunicationLogRepository(db)
}

func provideNotificationService(
	cfg *config.Config,
	logs repositories.CommunicationLogRepository,
	accounts repositories.AccountRepository,
	mailer services.Mailer,
) services.NotificationService {
	return services.NewNotificationService(logs, accounts, mailer, cfg.AppName, cfg.AppBaseURL, logger.WithComponent("notifications"))
}

func providePaymentService(
	cfg *config.Config,
	ledger services.LedgerService,
	accounts repositories.AccountRepository,
	gateway services.PaymentGateway,
	notifications services.NotificationService,
	locker services.AccountLocker,
) services.PaymentService {
	return services.NewPaymentService(ledger, accounts, gateway, notifications, locker, services.NewTimerSleeper(),
		services.PaymentServiceConfig{
			Currency: cfg.DefaultCurrency,
			Retry: services.RetryPolicy{
				MaxAttempts: cfg.RetryMaxAttempts,
				BaseDelay:   cfg.RetryBaseDelay,
				MaxDelay:    cfg.RetryMaxDelay,
			},
		},
		logger.WithComponent("payments"))
}
