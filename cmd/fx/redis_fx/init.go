package redis_fx

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"fieldpay/internal/config"
	"fieldpay/internal/infra"
)

var Module = fx.Provide(provideRedis)

// provideRedis yields a nil client when REDIS_URL is unset.
func provideRedis(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	client, err := infra.InitRedis(context.Background(), cfg.RedisURL)
	if err != nil || client == nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}
