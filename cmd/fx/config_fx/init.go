package config_fx

import (
	"go.uber.org/fx"
	"fieldpay/internal/config"
	"fieldpay/internal/logger"
)

var Module = fx.Provide(provideConfig)

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return nil, err
	}
	return cfg, nil
}
