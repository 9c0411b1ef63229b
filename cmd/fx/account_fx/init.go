package account_fx

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"fieldpay/internal/config"
	"fieldpay/internal/logger"
	"fieldpay/internal/repositories"
	"fieldpay/internal/services"
	mem "fieldpay/pkg/memcache"
)

var Module = fx.Provide(
	provideAccountRepo, provideAccountLocker)

func provideAccountRepo(db *gorm.DB) repositories.AccountRepository {
	return repositories.NewAccountRepository(db)
}

func provideAccountLocker(cfg *config.Config, client *redis.Client, leases mem.LeaseStore) services.AccountLocker {
	return services.NewAccountLocker(client, leases, cfg.CustomerLockTTL, logger.WithComponent("account_lock"))
}
