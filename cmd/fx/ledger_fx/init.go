package ledger_fx

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
	"fieldpay/internal/logger"
	"fieldpay/internal/repositories"
	"fieldpay/internal/services"
)

var Module = fx.Provide(
	provideInvoiceRepo,
	providePaymentRepo,
	providePaymentMethodRepo,
	provideLedgerService,
)

func provideInvoiceRepo(db *gorm.DB) repositories.InvoiceRepository {
	return repositories.NewInvoiceRepository(db)
}

func providePaymentRepo(db *gorm.DB) repositories.PaymentRepository {
	return repositories.NewPaymentRepository(db)
}

func providePaymentMethodRepo(db *gorm.DB) repositories.PaymentMethodRepository {
	return repositories.NewPaymentMethodRepository(db)
}

func provideLedgerService(
	invoices repositories.InvoiceRepository,
	payments repositories.PaymentRepository,
	methods repositories.PaymentMethodRepository,
) services.LedgerService {
	return services.NewLedgerService(invoices, payments, methods, logger.WithComponent("ledger"))
}
